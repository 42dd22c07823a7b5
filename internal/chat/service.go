package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"doc-chat/internal/cache"
	"doc-chat/internal/chunker"
	"doc-chat/internal/events"
	"doc-chat/internal/llm"
	"doc-chat/internal/pdftext"
	"doc-chat/internal/prompt"
	"doc-chat/internal/session"
)

// Mode selects how a document grounds the model's answers.
type Mode string

const (
	// ModeContext extracts and chunks the PDF locally and injects the first
	// chunks into every prompt.
	ModeContext Mode = "context"
	// ModeFile uploads the PDF to the provider and keeps a remote conversation.
	ModeFile Mode = "file"
)

const DefaultMaxChunks = 5

var (
	// ErrNoDocument is a warning: a question arrived before any document was processed.
	ErrNoDocument = errors.New("please process a document first")
	// ErrEmptyDocument is returned when no text could be extracted from the PDF.
	ErrEmptyDocument = errors.New("no text could be extracted from the document")
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question is empty")
)

const releaseTimeout = 10 * time.Second

// Extractor turns PDF bytes into per-page text.
type Extractor interface {
	Extract(content []byte) ([]chunker.Page, error)
}

// Options configures the interaction loop.
type Options struct {
	Mode      Mode
	Chunking  chunker.Options
	MaxChunks int
	// ResetOnUpload clears the transcript whenever a new document becomes active.
	ResetOnUpload bool
	Model         string
	CacheTTL      time.Duration
}

// Service binds uploads and questions to the chunker, prompt composer,
// generation client and transcript of a session.
type Service struct {
	opts      Options
	log       *slog.Logger
	extractor Extractor
	generator llm.Generator
	files     llm.FileChat
	cache     cache.Cache
	events    events.Publisher
}

// Deps are the collaborators of a Service. Generator is required in context
// mode, Files in file mode. Cache and Events default to no-ops.
type Deps struct {
	Log       *slog.Logger
	Extractor Extractor
	Generator llm.Generator
	Files     llm.FileChat
	Cache     cache.Cache
	Events    events.Publisher
}

// NewService validates the options against the collaborators it was given.
func NewService(opts Options, deps Deps) (*Service, error) {
	switch opts.Mode {
	case ModeContext:
		if deps.Generator == nil {
			return nil, errors.New("context mode requires a generator")
		}
		if err := opts.Chunking.Validate(); err != nil {
			return nil, err
		}
		if opts.MaxChunks <= 0 {
			opts.MaxChunks = DefaultMaxChunks
		}
		if deps.Extractor == nil {
			deps.Extractor = pdftext.Extractor{}
		}
	case ModeFile:
		if deps.Files == nil {
			return nil, errors.New("file mode requires a file chat client")
		}
	default:
		return nil, fmt.Errorf("invalid chat mode: %q (valid options: context, file)", opts.Mode)
	}
	if deps.Log == nil {
		deps.Log = slog.Default()
	}
	if deps.Cache == nil {
		deps.Cache = cache.NewNoOpCache()
	}
	if deps.Events == nil {
		deps.Events = events.NoOpPublisher{}
	}
	return &Service{
		opts:      opts,
		log:       deps.Log,
		extractor: deps.Extractor,
		generator: deps.Generator,
		files:     deps.Files,
		cache:     deps.Cache,
		events:    deps.Events,
	}, nil
}

func (s *Service) Mode() Mode {
	return s.opts.Mode
}

// LoadDocument makes content the active document of sess. On failure the
// session keeps its previous document and state.
func (s *Service) LoadDocument(ctx context.Context, sess *session.Session, name string, content []byte) (session.Document, error) {
	log := s.log.With("session_id", sess.ID, "filename", name)
	if !pdftext.IsPDF(content) {
		return session.Document{}, pdftext.ErrNotPDF
	}

	doc := session.Document{
		Name:       name,
		MIMEType:   pdftext.MIMEType,
		Size:       int64(len(content)),
		UploadedAt: time.Now().UTC(),
	}

	switch s.opts.Mode {
	case ModeFile:
		handle, err := s.files.UploadFile(ctx, name, content)
		if err != nil {
			log.Error("document upload failed", "err", err)
			return session.Document{}, err
		}
		remote, err := s.files.CreateSession(ctx, handle)
		if err != nil {
			log.Error("chat session creation failed", "err", err, "file_uri", handle.URI)
			s.deleteFile(ctx, handle)
			return session.Document{}, err
		}
		doc.FileURI = handle.URI
		if handle.MIMEType != "" {
			doc.MIMEType = handle.MIMEType
		}
		if prev := sess.Activate(doc, nil, remote, s.opts.ResetOnUpload); prev != nil && prev.FileURI != "" {
			s.deleteFile(ctx, llm.FileHandle{URI: prev.FileURI, MIMEType: prev.MIMEType, Name: prev.Name})
		}
	default:
		pages, err := s.extractor.Extract(content)
		if err != nil {
			log.Warn("pdf extraction failed", "err", err)
			return session.Document{}, err
		}
		chunks, err := chunker.Split(pages, s.opts.Chunking)
		if err != nil {
			return session.Document{}, err
		}
		if len(chunks) == 0 {
			return session.Document{}, ErrEmptyDocument
		}
		doc.Pages = len(pages)
		doc.Chunks = len(chunks)
		sess.Activate(doc, chunks, nil, s.opts.ResetOnUpload)
	}

	log.Info("document ready", "mode", s.opts.Mode, "pages", doc.Pages, "chunks", doc.Chunks, "file_uri", doc.FileURI)
	s.publish(ctx, events.Event{
		Type:      events.TypeDocumentReady,
		SessionID: sess.ID,
		Attributes: map[string]string{
			"filename": name,
			"mode":     string(s.opts.Mode),
			"chunks":   strconv.Itoa(doc.Chunks),
		},
	})
	return doc, nil
}

// Ask answers question against the active document of sess. The user message
// is recorded before generation starts, so it stays in the transcript when
// generation fails; the assistant message is recorded only on success.
// onFragment, when set, receives each streamed fragment as it arrives.
func (s *Service) Ask(ctx context.Context, sess *session.Session, question string, onFragment func(string)) (session.Message, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return session.Message{}, ErrEmptyQuestion
	}
	if sess.State() == session.StateNoDocument {
		return session.Message{}, ErrNoDocument
	}
	if s.opts.Mode == ModeFile && sess.Chat() == nil {
		return session.Message{}, llm.ErrNoSession
	}

	log := s.log.With("session_id", sess.ID)
	sess.Append(session.RoleUser, question)
	sess.SetState(session.StateAwaitingResponse)
	defer sess.SetState(session.StateDocumentReady)

	start := time.Now()
	var (
		answer string
		err    error
	)
	if s.opts.Mode == ModeFile {
		answer, err = s.askRemote(ctx, sess, question, onFragment)
	} else {
		answer, err = s.askWithContext(ctx, sess, question, onFragment)
	}
	if err != nil {
		log.Error("generation failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		s.publish(ctx, events.Event{
			Type:       events.TypeAnswerFailed,
			SessionID:  sess.ID,
			Attributes: map[string]string{"error": err.Error()},
		})
		return session.Message{}, err
	}

	msg := sess.Append(session.RoleAssistant, answer)
	log.Info("answer completed", "duration_ms", time.Since(start).Milliseconds(), "answer_len", len(answer))
	s.publish(ctx, events.Event{
		Type:       events.TypeAnswerCompleted,
		SessionID:  sess.ID,
		Attributes: map[string]string{"mode": string(s.opts.Mode)},
	})
	return msg, nil
}

func (s *Service) askRemote(ctx context.Context, sess *session.Session, question string, onFragment func(string)) (string, error) {
	remote := sess.Chat()
	if remote == nil {
		return "", llm.ErrNoSession
	}
	answer, err := remote.Send(ctx, question)
	if err != nil {
		if !errors.Is(err, llm.ErrGeneration) && !errors.Is(err, llm.ErrNoSession) {
			err = fmt.Errorf("%w: %w", llm.ErrGeneration, err)
		}
		return "", err
	}
	if onFragment != nil {
		onFragment(answer)
	}
	return answer, nil
}

func (s *Service) askWithContext(ctx context.Context, sess *session.Session, question string, onFragment func(string)) (string, error) {
	contextText := prompt.BuildContext(sess.Chunks(), s.opts.MaxChunks)
	composed := prompt.Compose(question, contextText)
	key := cache.GenerateKey(s.opts.Model, composed)

	stream := s.cachedStream(ctx, key)
	hit := stream != nil
	if !hit {
		stream = s.generator.Generate(ctx, composed)
	}
	defer stream.Close()

	var builder strings.Builder
	for stream.Next() {
		fragment := stream.Current()
		builder.WriteString(fragment)
		if onFragment != nil {
			onFragment(fragment)
		}
	}
	if err := stream.Err(); err != nil {
		if !errors.Is(err, llm.ErrGeneration) {
			err = fmt.Errorf("%w: %w", llm.ErrGeneration, err)
		}
		return "", err
	}

	answer := builder.String()
	if strings.TrimSpace(answer) == "" {
		return "", fmt.Errorf("%w: empty answer", llm.ErrGeneration)
	}
	if hit {
		return answer, nil
	}
	if err := s.cache.SetAnswer(ctx, key, &cache.Answer{
		Text:      answer,
		Model:     s.opts.Model,
		CreatedAt: time.Now().UTC(),
	}, s.opts.CacheTTL); err != nil {
		s.log.Warn("failed to cache answer", "err", err)
	}
	return answer, nil
}

// cachedStream replays a cached answer as a single fragment, or returns nil on a miss.
func (s *Service) cachedStream(ctx context.Context, key string) llm.Stream {
	cached, err := s.cache.GetAnswer(ctx, key)
	if err != nil {
		s.log.Warn("cache lookup failed", "err", err)
		return nil
	}
	if cached == nil {
		return nil
	}
	s.log.Info("cache hit", "key", key)
	return llm.NewStaticStream(cached.Text)
}

// Release frees provider resources held by sess. It is called when a
// session is deleted or expires.
func (s *Service) Release(ctx context.Context, sess *session.Session) {
	if s.opts.Mode != ModeFile {
		return
	}
	doc := sess.Document()
	if doc == nil || doc.FileURI == "" {
		return
	}
	s.deleteFile(ctx, llm.FileHandle{URI: doc.FileURI, MIMEType: doc.MIMEType, Name: doc.Name})
}

// deleteFile removes a remote file even when ctx was already cancelled;
// failures are logged only.
func (s *Service) deleteFile(ctx context.Context, file llm.FileHandle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.files.DeleteFile(ctx, file); err != nil {
		s.log.Warn("failed to delete remote file", "err", err, "file_uri", file.URI)
		return
	}
	s.log.Info("remote file deleted", "file_uri", file.URI)
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := events.PublishWithRetry(ctx, s.events, event, 3, 100*time.Millisecond); err != nil {
		s.log.Warn("failed to publish event", "type", event.Type, "err", err)
	}
}
