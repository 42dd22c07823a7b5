package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"doc-chat/internal/app"
	"doc-chat/internal/chat"
	"doc-chat/internal/httputil"
	"doc-chat/internal/llm"
	"doc-chat/internal/pdftext"
	"doc-chat/internal/session"
)

// multipartOverhead allows for boundaries and part headers around the file.
const multipartOverhead = 1 << 20

type askRequest struct {
	Question string `json:"question" validate:"required,max=4000"`
}

func main() {
	deps, err := app.Build()
	if err != nil {
		slog.Default().Error("failed to build dependencies", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, deps); err != nil {
		deps.Log.Error("server failed", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, deps app.Deps) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.Port),
		Handler:           newRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		deps.Log.Info("doc-chat listening", "addr", srv.Addr, "mode", deps.Chat.Mode())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return deps.Sessions.Run(ctx, deps.Config.SessionSweepInt)
	})
	g.Go(func() error {
		<-ctx.Done()
		deps.Log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func newRouter(deps app.Deps) http.Handler {
	r := httputil.NewRouter(deps.Log)

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", createSessionHandler(deps))
		r.Get("/{id}", getSessionHandler(deps))
		r.Delete("/{id}", deleteSessionHandler(deps))
		r.Post("/{id}/document", uploadHandler(deps))
		r.Post("/{id}/messages", askHandler(deps))
		r.Get("/{id}/messages", messagesHandler(deps))
	})
	r.Get("/healthz", httputil.HealthHandler(deps.Log))

	return r
}

func createSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess := deps.Sessions.Create()
		deps.Log.Info("session created", "session_id", sess.ID)
		httputil.WriteJSON(w, http.StatusCreated, sess.Snapshot())
	}
}

func getSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := lookupSession(deps, w, r)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, sess.Snapshot())
	}
}

func deleteSessionHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			httputil.Fail(deps.Log, w, "invalid session id", err, http.StatusBadRequest)
			return
		}
		if err := deps.Sessions.Delete(id); err != nil {
			httputil.Fail(deps.Log, w, "session not found", err, http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func messagesHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := lookupSession(deps, w, r)
		if !ok {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"session_id": sess.ID,
			"messages":   sess.Messages(),
		})
	}
}

func uploadHandler(deps app.Deps) http.HandlerFunc {
	maxFileSize := deps.Config.MaxUploadSize

	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := acquireSession(deps, w, r)
		if !ok {
			return
		}
		defer sess.End()
		log := deps.Log.With("session_id", sess.ID)

		if r.ContentLength > maxFileSize {
			httputil.Fail(log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, maxFileSize+multipartOverhead)

		file, header, err := r.FormFile("file")
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				httputil.Fail(log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), err, http.StatusBadRequest)
				return
			}
			httputil.Fail(log, w, "file is required", err, http.StatusBadRequest)
			return
		}
		defer file.Close()

		if header.Size > maxFileSize {
			httputil.Fail(log, w, fmt.Sprintf("file too large (max %d bytes)", maxFileSize), nil, http.StatusBadRequest)
			return
		}

		content, err := io.ReadAll(file)
		if err != nil {
			httputil.Fail(log, w, "failed to read file", err, http.StatusInternalServerError)
			return
		}

		doc, err := deps.Chat.LoadDocument(r.Context(), sess, header.Filename, content)
		if err != nil {
			status, message := uploadFailure(err)
			httputil.Fail(log, w, message, err, status)
			return
		}

		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"session_id": sess.ID,
			"state":      sess.State(),
			"document":   doc,
		})
	}
}

// uploadFailure maps a LoadDocument error to a status and a user-facing message.
func uploadFailure(err error) (int, string) {
	switch {
	case errors.Is(err, pdftext.ErrNotPDF):
		return http.StatusBadRequest, "only PDF files are supported"
	case errors.Is(err, chat.ErrEmptyDocument):
		return http.StatusBadRequest, chat.ErrEmptyDocument.Error()
	case errors.Is(err, llm.ErrUpload), errors.Is(err, llm.ErrNoSession), errors.Is(err, llm.ErrGeneration):
		return http.StatusBadGateway, "failed to process document: " + err.Error()
	default:
		return http.StatusBadRequest, "failed to read PDF"
	}
}

func askHandler(deps app.Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, ok := acquireSession(deps, w, r)
		if !ok {
			return
		}
		defer sess.End()
		log := deps.Log.With("session_id", sess.ID)

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httputil.Fail(log, w, "invalid payload", err, http.StatusBadRequest)
			return
		}
		if err := httputil.Validator.Struct(&req); err != nil {
			httputil.ValidationError(log, w, err)
			return
		}

		if wantsStream(r) {
			streamAnswer(r.Context(), deps, log, w, sess, req.Question)
			return
		}

		msg, err := deps.Chat.Ask(r.Context(), sess, req.Question, nil)
		if err != nil {
			writeAskFailure(log, w, err)
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]any{
			"session_id": sess.ID,
			"message":    msg,
		})
	}
}

// streamAnswer relays fragments as SSE content events. Only the empty-question
// and no-document checks get a regular status code; once the stream is open
// the status is 200 and a generation failure arrives as an error event.
func streamAnswer(ctx context.Context, deps app.Deps, log *slog.Logger, w http.ResponseWriter, sess *session.Session, question string) {
	if strings.TrimSpace(question) == "" {
		httputil.Fail(log, w, chat.ErrEmptyQuestion.Error(), chat.ErrEmptyQuestion, http.StatusBadRequest)
		return
	}
	if sess.State() == session.StateNoDocument {
		httputil.Warn(log, w, chat.ErrNoDocument.Error(), http.StatusConflict)
		return
	}

	sse, err := httputil.NewSSEWriter(w)
	if err != nil {
		httputil.Fail(log, w, "streaming unsupported", err, http.StatusInternalServerError)
		return
	}

	msg, err := deps.Chat.Ask(ctx, sess, question, func(fragment string) {
		if sendErr := sse.Send(httputil.StreamChunk{Type: httputil.EventContent, Content: fragment}); sendErr != nil {
			log.Warn("failed to write fragment", "err", sendErr)
		}
	})
	if err != nil {
		if sendErr := sse.Send(httputil.StreamChunk{Type: httputil.EventError, Content: err.Error()}); sendErr != nil {
			log.Warn("failed to write error event", "err", sendErr)
		}
		return
	}
	if err := sse.Send(httputil.StreamChunk{Type: httputil.EventDone, Data: msg}); err != nil {
		log.Warn("failed to write done event", "err", err)
	}
}

func writeAskFailure(log *slog.Logger, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, chat.ErrNoDocument):
		httputil.Warn(log, w, err.Error(), http.StatusConflict)
	case errors.Is(err, chat.ErrEmptyQuestion):
		httputil.Fail(log, w, err.Error(), err, http.StatusBadRequest)
	case errors.Is(err, llm.ErrGeneration), errors.Is(err, llm.ErrNoSession):
		httputil.Fail(log, w, err.Error(), err, http.StatusBadGateway)
	default:
		httputil.Fail(log, w, "failed to answer question", err, http.StatusInternalServerError)
	}
}

func wantsStream(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/event-stream")
}

// acquireSession resolves the {id} path parameter and claims the session for
// one action, writing 400, 404 or 409 on failure. The caller must call End.
func acquireSession(deps app.Deps, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Fail(deps.Log, w, "invalid session id", err, http.StatusBadRequest)
		return nil, false
	}
	sess, err := deps.Sessions.Acquire(id)
	switch {
	case errors.Is(err, session.ErrBusy):
		httputil.Fail(deps.Log, w, err.Error(), err, http.StatusConflict)
		return nil, false
	case err != nil:
		httputil.Fail(deps.Log, w, "session not found", err, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}

// lookupSession resolves the {id} path parameter, writing 400 or 404 on failure.
func lookupSession(deps app.Deps, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.Fail(deps.Log, w, "invalid session id", err, http.StatusBadRequest)
		return nil, false
	}
	sess, err := deps.Sessions.Get(id)
	if err != nil {
		httputil.Fail(deps.Log, w, "session not found", err, http.StatusNotFound)
		return nil, false
	}
	return sess, true
}
