package llm

import (
	"context"
	"errors"
	"strings"
)

var (
	// ErrUpload wraps failures storing a document with the provider.
	ErrUpload = errors.New("document upload failed")
	// ErrNoSession is returned when a message is sent without an active chat session.
	ErrNoSession = errors.New("no active chat session")
	// ErrGeneration wraps transport and provider failures during generation.
	ErrGeneration = errors.New("generation failed")
)

// Stream is a lazy, finite sequence of answer fragments. It is consumed once:
// after Next returns false it never yields again. Fragments already returned
// before a failure stay valid; Err reports the failure.
type Stream interface {
	Next() bool
	Current() string
	Err() error
	Close() error
}

// Generator answers a fully composed prompt without keeping any state.
type Generator interface {
	Generate(ctx context.Context, prompt string) Stream
}

// FileHandle references a document held in the provider's file store.
type FileHandle struct {
	URI      string
	MIMEType string
	Name     string
}

// ChatSession is a multi-turn conversation grounded on an uploaded file.
type ChatSession interface {
	Send(ctx context.Context, message string) (string, error)
}

// FileChat stores documents remotely and opens conversations over them.
type FileChat interface {
	UploadFile(ctx context.Context, name string, content []byte) (FileHandle, error)
	CreateSession(ctx context.Context, file FileHandle) (ChatSession, error)
	// DeleteFile removes a stored document. Provider files do not expire.
	DeleteFile(ctx context.Context, file FileHandle) error
}

// Collect drains a stream into the full answer and closes it. On failure the
// text gathered so far is returned alongside the error.
func Collect(s Stream) (string, error) {
	defer s.Close()
	var builder strings.Builder
	for s.Next() {
		builder.WriteString(s.Current())
	}
	return builder.String(), s.Err()
}

// StaticStream replays a fixed list of fragments, then ends with err.
type StaticStream struct {
	fragments []string
	err       error
	pos       int
	cur       string
}

// NewStaticStream returns a stream over fragments that finishes cleanly.
func NewStaticStream(fragments ...string) *StaticStream {
	return &StaticStream{fragments: fragments}
}

// NewFailingStream returns a stream that yields fragments and then fails with err.
func NewFailingStream(err error, fragments ...string) *StaticStream {
	return &StaticStream{fragments: fragments, err: err}
}

func (s *StaticStream) Next() bool {
	if s.pos >= len(s.fragments) {
		s.cur = ""
		return false
	}
	s.cur = s.fragments[s.pos]
	s.pos++
	return true
}

func (s *StaticStream) Current() string { return s.cur }

func (s *StaticStream) Err() error {
	if s.pos < len(s.fragments) {
		return nil
	}
	return s.err
}

func (s *StaticStream) Close() error {
	s.pos = len(s.fragments)
	return nil
}
