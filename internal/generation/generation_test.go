package generation

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragchat/internal/domain"
)

func chatServer(t *testing.T, handler func(n int32, w http.ResponseWriter, prompt string)) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := calls.Add(1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)
		assert.Equal(t, DefaultModel, req.Model)
		w.Header().Set("Content-Type", "application/json")
		handler(n, w, req.Messages[0].Content)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func reply(w http.ResponseWriter, content string) {
	_ = json.NewEncoder(w).Encode(map[string]any{
		"id":     "chatcmpl-1",
		"object": "chat.completion",
		"choices": []map[string]any{
			{"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": content}},
		},
	})
}

func TestGenerateTrimsOutput(t *testing.T) {
	srv, _ := chatServer(t, func(_ int32, w http.ResponseWriter, prompt string) {
		assert.Equal(t, "hello prompt", prompt)
		reply(w, "\n  The sky is blue.  \n")
	})
	c := NewClient(Config{BaseURL: srv.URL + "/v1"})

	got, err := c.Generate(context.Background(), "hello prompt")
	require.NoError(t, err)
	assert.Equal(t, "The sky is blue.", got)
}

func TestGenerateRetriesRateLimit(t *testing.T) {
	srv, calls := chatServer(t, func(n int32, w http.ResponseWriter, _ string) {
		if n == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"error":{"message":"slow down"}}`))
			return
		}
		reply(w, "ok")
	})
	c := NewClient(Config{BaseURL: srv.URL + "/v1", MaxRetries: 2, RetryDelay: time.Millisecond})

	got, err := c.Generate(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(2), calls.Load())
}

func TestGenerateTimeout(t *testing.T) {
	srv, _ := chatServer(t, func(_ int32, w http.ResponseWriter, _ string) {
		time.Sleep(200 * time.Millisecond)
		reply(w, "late")
	})
	c := NewClient(Config{BaseURL: srv.URL + "/v1", Timeout: 20 * time.Millisecond, RetryDelay: time.Millisecond})

	_, err := c.Generate(context.Background(), "p")
	assert.ErrorIs(t, err, domain.ErrTimeout)
}

func TestGenerateNoChoices(t *testing.T) {
	srv, _ := chatServer(t, func(_ int32, w http.ResponseWriter, _ string) {
		_, _ = w.Write([]byte(`{"id":"x","choices":[]}`))
	})
	c := NewClient(Config{BaseURL: srv.URL + "/v1"})

	_, err := c.Generate(context.Background(), "p")
	assert.Error(t, err)
}
