package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fixdesk/hub/internal/huberrors"
)

func newTestServer(t *testing.T, status int, body string, calls *atomic.Int32) *httptest.Server {
	t.Helper()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)

		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), "unexpected path %s", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "gpt-test", req["model"])

		messages, _ := req["messages"].([]any)
		assert.Len(t, messages, 2)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)

	return srv
}

func TestClient_Complete(t *testing.T) {
	t.Run("returns first choice content", func(t *testing.T) {
		var calls atomic.Int32

		srv := newTestServer(t, http.StatusOK, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-test",
			"choices": [{"index": 0, "finish_reason": "stop",
				"message": {"role": "assistant", "content": " Restart the print spooler service. "}}]
		}`, &calls)

		c := NewClient("test-key", WithModel("gpt-test"), WithBaseURL(srv.URL+"/v1/"))

		got, err := c.Complete(context.Background(), "system", "printer offline")
		require.NoError(t, err)
		assert.Equal(t, "Restart the print spooler service.", got)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("empty choices is an oracle error", func(t *testing.T) {
		var calls atomic.Int32

		srv := newTestServer(t, http.StatusOK, `{
			"id": "chatcmpl-1", "object": "chat.completion", "created": 1, "model": "gpt-test", "choices": []
		}`, &calls)

		c := NewClient("test-key", WithModel("gpt-test"), WithBaseURL(srv.URL+"/v1/"))

		_, err := c.Complete(context.Background(), "system", "printer offline")
		require.Error(t, err)
		assert.ErrorIs(t, err, huberrors.ErrOracle)
		assert.ErrorIs(t, err, ErrNoCompletion)
	})

	t.Run("upstream failure is reported once without retry", func(t *testing.T) {
		var calls atomic.Int32

		srv := newTestServer(t, http.StatusInternalServerError, `{"error": {"message": "boom", "type": "server_error"}}`, &calls)

		c := NewClient("test-key", WithModel("gpt-test"), WithBaseURL(srv.URL+"/v1/"))

		_, err := c.Complete(context.Background(), "system", "printer offline")
		require.Error(t, err)
		assert.ErrorIs(t, err, huberrors.ErrOracle)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("empty prompt is rejected without a request", func(t *testing.T) {
		c := NewClient("test-key")

		_, err := c.Complete(context.Background(), "system", "   ")
		assert.ErrorIs(t, err, ErrEmptyPrompt)
		assert.ErrorIs(t, err, huberrors.ErrOracle)
	})
}
