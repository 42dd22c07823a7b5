package session

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"doc-chat/internal/chunker"
	"doc-chat/internal/llm"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestTranscriptAppendOnly(t *testing.T) {
	var tr Transcript
	tr.Append(RoleUser, "What is the APR?")
	tr.Append(RoleAssistant, "The APR is 5% (Page 1).")

	msgs := tr.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, RoleAssistant, msgs[1].Role)

	msgs[0].Content = "changed"
	assert.Equal(t, "What is the APR?", tr.Messages()[0].Content, "Messages must return a copy")

	tr.Reset()
	assert.Equal(t, 0, tr.Len())
}

func TestSessionLifecycle(t *testing.T) {
	m := NewManager(time.Hour, testLogger())
	s := m.Create()

	assert.Equal(t, StateNoDocument, s.State())
	assert.Nil(t, s.Document())
	assert.Empty(t, s.Messages())

	s.Append(RoleUser, "old question")
	chunks := []chunker.Chunk{{Page: 1, Text: "text"}}
	s.Activate(Document{Name: "a.pdf", Chunks: 1}, chunks, nil, false)
	assert.Equal(t, StateDocumentReady, s.State())
	assert.Equal(t, chunks, s.Chunks())
	assert.Len(t, s.Messages(), 1, "transcript kept when reset is off")

	chat := new(llm.MockChatSession)
	s.Activate(Document{Name: "b.pdf"}, nil, chat, true)
	assert.Empty(t, s.Messages(), "transcript cleared when reset is on")
	assert.Empty(t, s.Chunks())
	assert.Equal(t, chat, s.Chat())
	assert.Equal(t, "b.pdf", s.Snapshot().Document.Name)
}

func TestSessionBeginIsExclusive(t *testing.T) {
	s := NewManager(time.Hour, testLogger()).Create()

	require.NoError(t, s.Begin())
	assert.ErrorIs(t, s.Begin(), ErrBusy)
	s.End()
	assert.NoError(t, s.Begin())
	s.End()
}

func TestManagerGetDelete(t *testing.T) {
	m := NewManager(time.Hour, testLogger())
	s := m.Create()

	got, err := m.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.Delete(s.ID))
	assert.ErrorIs(t, m.Delete(s.ID), ErrNotFound)
	assert.Equal(t, 0, m.Len())
}

func TestManagerSweep(t *testing.T) {
	m := NewManager(time.Minute, testLogger())
	idle := m.Create()
	busy := m.Create()
	require.NoError(t, busy.Begin())
	defer busy.End()

	assert.Equal(t, 0, m.Sweep(time.Now()))

	removed := m.Sweep(time.Now().Add(2 * time.Minute))
	assert.Equal(t, 1, removed)

	_, err := m.Get(idle.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.Get(busy.ID)
	assert.NoError(t, err, "sessions running an action are not expired")
}

func TestManagerRunStopsWithContext(t *testing.T) {
	m := NewManager(time.Minute, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, 10*time.Millisecond) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestActivateReturnsPreviousDocument(t *testing.T) {
	s := NewManager(time.Hour, testLogger()).Create()

	assert.Nil(t, s.Activate(Document{Name: "a.pdf", FileURI: "file-a"}, nil, nil, true))
	prev := s.Activate(Document{Name: "b.pdf", FileURI: "file-b"}, nil, nil, true)
	require.NotNil(t, prev)
	assert.Equal(t, "file-a", prev.FileURI)
}

func TestManagerAcquire(t *testing.T) {
	m := NewManager(time.Hour, testLogger())
	s := m.Create()

	got, err := m.Acquire(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Acquire(s.ID)
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, 0, m.Sweep(time.Now().Add(2*time.Hour)), "acquired sessions are not swept")
	s.End()

	_, err = m.Acquire(uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestManagerClaimAfterRemoval(t *testing.T) {
	m := NewManager(time.Minute, testLogger())
	s := m.Create()

	// The session was looked up, then swept before the action lock was taken.
	require.Equal(t, 1, m.Sweep(time.Now().Add(2*time.Minute)))
	assert.ErrorIs(t, m.claim(s), ErrNotFound)

	require.NoError(t, s.Begin(), "a failed claim releases the action lock")
	s.End()
}

func TestManagerOnRemove(t *testing.T) {
	m := NewManager(time.Minute, testLogger())
	var removed []uuid.UUID
	m.OnRemove(func(s *Session) { removed = append(removed, s.ID) })

	deleted := m.Create()
	expired := m.Create()
	require.NoError(t, m.Delete(deleted.ID))
	require.Equal(t, 1, m.Sweep(time.Now().Add(2*time.Minute)))

	assert.Equal(t, []uuid.UUID{deleted.ID, expired.ID}, removed)
}
