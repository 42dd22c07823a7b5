package httputil

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFailWritesJSONError(t *testing.T) {
	w := httptest.NewRecorder()
	Fail(testLogger(), w, "upload failed", errors.New("boom"), http.StatusBadGateway)

	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "upload failed", body["error"])
}

func TestFailDefaultsToInternalError(t *testing.T) {
	w := httptest.NewRecorder()
	Fail(testLogger(), w, "oops", nil, 0)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestWarn(t *testing.T) {
	w := httptest.NewRecorder()
	Warn(testLogger(), w, "please process a document first", http.StatusConflict)

	assert.Equal(t, http.StatusConflict, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "please process a document first", body["warning"])
}

func TestValidationError(t *testing.T) {
	type req struct {
		Question string `json:"question" validate:"required,max=5"`
	}
	err := Validator.Struct(&req{Question: "too long question"})
	require.Error(t, err)

	w := httptest.NewRecorder()
	ValidationError(testLogger(), w, err)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Error  string   `json:"error"`
		Fields []string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, []string{"question must be at most 5 characters"}, body.Fields)
}

func TestSSEWriter(t *testing.T) {
	w := httptest.NewRecorder()
	sse, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, sse.Send(StreamChunk{Type: EventContent, Content: "The APR"}))
	require.NoError(t, sse.Send(StreamChunk{Type: EventDone}))

	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: content\ndata: {\"type\":\"content\",\"content\":\"The APR\"}\n\n"), body)
	assert.Contains(t, body, "event: done\ndata: {\"type\":\"done\"}\n\n")
}

func TestHealthHandler(t *testing.T) {
	w := httptest.NewRecorder()
	HealthHandler(testLogger())(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
