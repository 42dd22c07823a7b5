package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewOpenAIClient("test-key", "gpt-4o-mini", srv.URL+"/")
	require.NoError(t, err)
	return client
}

func writeChunk(w io.Writer, content string) {
	body, _ := json.Marshal(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion.chunk",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{"index": 0, "delta": map[string]any{"content": content}}},
	})
	fmt.Fprintf(w, "data: %s\n\n", body)
}

func writeCompletion(w http.ResponseWriter, content string) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":      "chatcmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]any{{
			"index":         0,
			"finish_reason": "stop",
			"message":       map[string]any{"role": "assistant", "content": content},
		}},
	})
}

func writeError(w http.ResponseWriter, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":{"message":"provider unavailable","type":"server_error"}}`))
}

func TestNewOpenAIClientRequiresKey(t *testing.T) {
	_, err := NewOpenAIClient("", "", "")
	assert.Error(t, err)
}

func TestGenerateStreamsFragments(t *testing.T) {
	var prompt string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		prompt = string(body)

		w.Header().Set("Content-Type", "text/event-stream")
		writeChunk(w, "The APR ")
		writeChunk(w, "is 5% ")
		writeChunk(w, "(Page 1).")
		fmt.Fprint(w, "data: [DONE]\n\n")
	})

	stream := client.Generate(context.Background(), "What is the APR?")
	var fragments []string
	for stream.Next() {
		fragments = append(fragments, stream.Current())
	}
	require.NoError(t, stream.Err())
	require.NoError(t, stream.Close())

	assert.Equal(t, []string{"The APR ", "is 5% ", "(Page 1)."}, fragments)
	assert.Contains(t, prompt, "What is the APR?")
	assert.Contains(t, prompt, `"stream":true`)
	assert.False(t, stream.Next(), "stream must not restart")
}

func TestGenerateProviderFailure(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeError(w, http.StatusInternalServerError)
	})

	answer, err := Collect(client.Generate(context.Background(), "q"))
	assert.ErrorIs(t, err, ErrGeneration)
	assert.Empty(t, answer)
	assert.Equal(t, int32(1), calls.Load(), "generation must not be retried")
}

func TestUploadFileAndChat(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TMPDIR", tmpDir)

	var chatBodies []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files":
			assert.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "user_data", r.FormValue("purpose"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"file-abc","object":"file","bytes":9,"created_at":1,"filename":"loan.pdf","purpose":"user_data","status":"processed"}`))
		case "/chat/completions":
			body, _ := io.ReadAll(r.Body)
			chatBodies = append(chatBodies, string(body))
			writeCompletion(w, fmt.Sprintf("answer %d", len(chatBodies)))
		default:
			http.NotFound(w, r)
		}
	})

	handle, err := client.UploadFile(context.Background(), "loan.pdf", []byte("%PDF-1.4\n"))
	require.NoError(t, err)
	assert.Equal(t, FileHandle{URI: "file-abc", MIMEType: "application/pdf", Name: "loan.pdf"}, handle)
	assertDirEmpty(t, tmpDir)

	chat, err := client.CreateSession(context.Background(), handle)
	require.NoError(t, err)

	first, err := chat.Send(context.Background(), "What is the APR?")
	require.NoError(t, err)
	assert.Equal(t, "answer 1", first)

	second, err := chat.Send(context.Background(), "And the term?")
	require.NoError(t, err)
	assert.Equal(t, "answer 2", second)

	require.Len(t, chatBodies, 2)
	assert.Contains(t, chatBodies[0], "file-abc")
	assert.Contains(t, chatBodies[1], "file-abc")
	assert.Contains(t, chatBodies[1], "What is the APR?")
	assert.Contains(t, chatBodies[1], "answer 1")
	assert.Equal(t, 5, chat.(*OpenAIChatSession).Turns())
}

func TestUploadFileFailureRemovesTempFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TMPDIR", tmpDir)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusBadGateway)
	})

	_, err := client.UploadFile(context.Background(), "loan.pdf", []byte("%PDF-1.4\n"))
	assert.ErrorIs(t, err, ErrUpload)
	assertDirEmpty(t, tmpDir)
}

func TestChatSessionFailedTurnIsDropped(t *testing.T) {
	fail := true
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if fail {
			writeError(w, http.StatusServiceUnavailable)
			return
		}
		body, _ := io.ReadAll(r.Body)
		assert.False(t, strings.Contains(string(body), "lost question"))
		writeCompletion(w, "ok")
	})

	chat, err := client.CreateSession(context.Background(), FileHandle{URI: "file-abc"})
	require.NoError(t, err)

	_, err = chat.Send(context.Background(), "lost question")
	assert.ErrorIs(t, err, ErrGeneration)

	fail = false
	answer, err := chat.Send(context.Background(), "next question")
	require.NoError(t, err)
	assert.Equal(t, "ok", answer)
}

func TestNilChatSession(t *testing.T) {
	var chat *OpenAIChatSession
	_, err := chat.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoSession)
}

func assertDirEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "temporary upload file should be removed")
}

func TestDeleteFile(t *testing.T) {
	var deleted []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			writeError(w, http.StatusMethodNotAllowed)
			return
		}
		deleted = append(deleted, r.URL.Path)
		if r.URL.Path == "/files/file-gone" {
			writeError(w, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"file-abc","object":"file","deleted":true}`))
	})

	require.NoError(t, client.DeleteFile(context.Background(), FileHandle{URI: "file-abc"}))
	assert.Error(t, client.DeleteFile(context.Background(), FileHandle{URI: "file-gone"}))
	assert.NoError(t, client.DeleteFile(context.Background(), FileHandle{}), "empty handle is a no-op")
	assert.Equal(t, []string{"/files/file-abc", "/files/file-gone"}, deleted)
}
