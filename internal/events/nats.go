package events

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// SubjectPrefix is prepended to the event type to form the NATS subject.
const SubjectPrefix = "doc-chat.events."

// NewNATS constructs a thin NATS-based publisher.
func NewNATS(log *slog.Logger, nc *nats.Conn) *NATSPublisher {
	return &NATSPublisher{log: log, nc: nc}
}

type NATSPublisher struct {
	log *slog.Logger
	nc  *nats.Conn
}

func (p *NATSPublisher) Publish(_ context.Context, event Event) error {
	if event.Type == "" {
		return errors.New("event type required")
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}
	p.log.Debug("publishing event", "id", event.ID, "type", event.Type, "session_id", event.SessionID)
	return p.nc.Publish(Subject(event.Type), body)
}

// Close flushes pending events and closes the connection.
func (p *NATSPublisher) Close() error {
	return p.nc.Drain()
}

// Subject returns the NATS subject for an event type.
func Subject(t Type) string {
	return SubjectPrefix + string(t)
}
