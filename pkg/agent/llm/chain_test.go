package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var calls []string

	tag := func(name string) Middleware {
		return func(next LLMClient) LLMClient {
			return WrapClient(
				func(ctx context.Context, req CompletionRequest) (CompletionResponse, error) {
					calls = append(calls, name)
					return next.Complete(ctx, req)
				},
				next.GetModelName,
			)
		}
	}

	base := ClientFunc("base-model", func(_ context.Context, _ CompletionRequest) (CompletionResponse, error) {
		calls = append(calls, "base")
		return CompletionResponse{Content: "ok"}, nil
	})

	client := Chain(base, tag("outer"), tag("inner"))
	resp, err := client.Complete(context.Background(), NewCompletionRequest([]CompletionMessage{NewUserMessage("hi")}))
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, []string{"outer", "inner", "base"}, calls)
	assert.Equal(t, "base-model", client.GetModelName())
}

func TestNewCompletionRequestDefaults(t *testing.T) {
	req := NewCompletionRequest([]CompletionMessage{NewSystemMessage("s"), NewUserMessage("u")})
	assert.Len(t, req.Messages, 2)
	assert.Equal(t, RoleSystem, req.Messages[0].Role)
	assert.Equal(t, RoleUser, req.Messages[1].Role)
	assert.Equal(t, DefaultMaxTokens, req.MaxTokens)
	assert.Equal(t, float32(TemperatureDeterministic), req.Temperature)
	assert.False(t, req.JSONMode)
}

func TestHasUsage(t *testing.T) {
	assert.False(t, CompletionResponse{Content: "x"}.HasUsage())
	assert.True(t, CompletionResponse{PromptTokens: 12}.HasUsage())
}
