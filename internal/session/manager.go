package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown or expired session ids.
var ErrNotFound = errors.New("session not found")

const DefaultTTL = time.Hour

// Manager keeps every live session in memory. Nothing survives a restart.
type Manager struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	log      *slog.Logger
	onRemove func(*Session)
}

// NewManager returns a registry expiring sessions idle for longer than ttl.
func NewManager(ttl time.Duration, log *slog.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
		log:      log,
	}
}

// Create starts a session in NoDocument with an empty transcript.
func (m *Manager) Create() *Session {
	s := newSession()
	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()
	return s
}

func (m *Manager) Get(id uuid.UUID) (*Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

// OnRemove registers fn to run for every session removed by Delete or Sweep.
// fn runs after the registry lock is released.
func (m *Manager) OnRemove(fn func(*Session)) {
	m.mu.Lock()
	m.onRemove = fn
	m.mu.Unlock()
}

// Acquire looks up a session and claims it for one action (see Begin). It
// fails with ErrNotFound if the session was removed before the claim held.
func (m *Manager) Acquire(id uuid.UUID) (*Session, error) {
	s, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	if err := m.claim(s); err != nil {
		return nil, err
	}
	return s, nil
}

// claim runs Begin and then re-checks membership. Sweep only removes
// sessions whose action lock it can take, so a claim that holds after the
// re-check cannot be swept until End.
func (m *Manager) claim(s *Session) error {
	if err := s.Begin(); err != nil {
		return err
	}
	m.mu.RLock()
	current, ok := m.sessions[s.ID]
	m.mu.RUnlock()
	if !ok || current != s {
		s.End()
		return ErrNotFound
	}
	return nil
}

func (m *Manager) Delete(id uuid.UUID) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.sessions, id)
	fn := m.onRemove
	m.mu.Unlock()

	if fn != nil {
		fn(s)
	}
	return nil
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Sweep removes sessions idle since before now-ttl and returns how many went.
// Sessions in the middle of an action are kept.
func (m *Manager) Sweep(now time.Time) int {
	cutoff := now.Add(-m.ttl)
	m.mu.Lock()
	var removed []*Session
	for id, s := range m.sessions {
		if !s.LastActive().Before(cutoff) {
			continue
		}
		if !s.action.TryLock() {
			continue
		}
		delete(m.sessions, id)
		s.action.Unlock()
		removed = append(removed, s)
	}
	fn := m.onRemove
	m.mu.Unlock()

	if fn != nil {
		for _, s := range removed {
			fn(s)
		}
	}
	return len(removed)
}

// Run sweeps expired sessions every interval until ctx is done.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = m.ttl / 4
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			if n := m.Sweep(now); n > 0 {
				m.log.Info("expired idle sessions", "count", n, "remaining", m.Len())
			}
		}
	}
}
