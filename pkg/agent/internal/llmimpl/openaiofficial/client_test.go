package openaiofficial

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectra/pkg/agent/llm"
	"spectra/pkg/agent/llmerrors"
)

func TestCompleteAgainstFakeAPI(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/responses", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "resp_1", "object": "response", "created_at": 1, "model": "gpt-test", "status": "completed",
			"output": [{"type": "message", "id": "m1", "role": "assistant", "status": "completed",
				"content": [{"type": "output_text", "text": "{\"module\":\"m\"}", "annotations": []}]}],
			"usage": {"input_tokens": 12, "output_tokens": 6, "total_tokens": 18,
				"input_tokens_details": {"cached_tokens": 0}, "output_tokens_details": {"reasoning_tokens": 0}}
		}`))
	}))
	defer srv.Close()

	client := New("key", "gpt-test", option.WithBaseURL(srv.URL))
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("only JSON"),
		llm.NewUserMessage("recon"),
	}))
	require.NoError(t, err)
	assert.Equal(t, `{"module":"m"}`, resp.Content)
	assert.Equal(t, 12, resp.PromptTokens)
	assert.Equal(t, 6, resp.CompletionTokens)
	assert.Equal(t, "only JSON", body["instructions"])
	assert.Equal(t, "recon", body["input"])
}

func TestCompleteRequiresInput(t *testing.T) {
	client := New("key", "gpt-test")
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewSystemMessage("x")}))
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
}

func TestCompleteClassifiesRateLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"slow down","type":"rate_limit"}}`))
	}))
	defer srv.Close()

	client := New("key", "gpt-test", option.WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("x")}))
	assert.Equal(t, llmerrors.ErrorTypeRateLimit, llmerrors.TypeOf(err))
}
