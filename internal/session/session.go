package session

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"doc-chat/internal/chunker"
	"doc-chat/internal/llm"
)

// State is the position of a session in the interaction loop.
type State string

const (
	StateNoDocument       State = "no_document"
	StateDocumentReady    State = "document_ready"
	StateAwaitingResponse State = "awaiting_response"
)

// ErrBusy is returned when an action arrives while another one is still running.
var ErrBusy = errors.New("session is busy with another request")

// Document describes the active upload.
type Document struct {
	Name       string    `json:"name"`
	MIMEType   string    `json:"mime_type"`
	Size       int64     `json:"size"`
	Pages      int       `json:"pages,omitempty"`
	Chunks     int       `json:"chunks,omitempty"`
	FileURI    string    `json:"file_uri,omitempty"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Session holds one user's state: the active document, its chunks or remote
// chat handle, and the transcript. Actions are serialized with Begin/End;
// field access is guarded separately so reads never wait on a running action.
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	action     sync.Mutex
	lastActive atomic.Int64

	mu         sync.RWMutex
	state      State
	document   *Document
	chunks     []chunker.Chunk
	chat       llm.ChatSession
	transcript Transcript
}

// Snapshot is a read-only copy of a session for rendering.
type Snapshot struct {
	ID       uuid.UUID `json:"session_id"`
	State    State     `json:"state"`
	Document *Document `json:"document,omitempty"`
	Messages []Message `json:"messages"`
	Created  time.Time `json:"created_at"`
}

func newSession() *Session {
	s := &Session{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
		state:     StateNoDocument,
	}
	s.touch()
	return s
}

// Begin claims the session for one action. It fails fast with ErrBusy instead
// of queueing behind a running action.
func (s *Session) Begin() error {
	if !s.action.TryLock() {
		return ErrBusy
	}
	s.touch()
	return nil
}

// End releases the session claimed by Begin.
func (s *Session) End() {
	s.touch()
	s.action.Unlock()
}

func (s *Session) touch() {
	s.lastActive.Store(time.Now().UnixNano())
}

// LastActive reports when the session last started or finished an action.
func (s *Session) LastActive() time.Time {
	return time.Unix(0, s.lastActive.Load())
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) SetState(state State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state
}

// Chunks returns the cached chunks of the active document.
func (s *Session) Chunks() []chunker.Chunk {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chunks
}

// Chat returns the remote conversation of the active document, if any.
func (s *Session) Chat() llm.ChatSession {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chat
}

// Document returns a copy of the active document description, or nil.
func (s *Session) Document() *Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.document == nil {
		return nil
	}
	doc := *s.document
	return &doc
}

// Activate replaces the active document and moves the session to
// DocumentReady. The previous chunks and chat handle are discarded; the
// previous document, if any, is returned so its remote file can be released.
func (s *Session) Activate(doc Document, chunks []chunker.Chunk, chat llm.ChatSession, resetTranscript bool) *Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev := s.document
	s.document = &doc
	s.chunks = chunks
	s.chat = chat
	s.state = StateDocumentReady
	if resetTranscript {
		s.transcript.Reset()
	}
	return prev
}

// Append adds a message to the transcript.
func (s *Session) Append(role Role, content string) Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.Append(role, content)
}

func (s *Session) Messages() []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.transcript.Messages()
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var doc *Document
	if s.document != nil {
		d := *s.document
		doc = &d
	}
	return Snapshot{
		ID:       s.ID,
		State:    s.state,
		Document: doc,
		Messages: s.transcript.Messages(),
		Created:  s.CreatedAt,
	}
}
