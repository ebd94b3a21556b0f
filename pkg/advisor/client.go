// Package advisor asks a language-model backend for an attack plan and turns the
// reply into a validated plan.Outcome.
package advisor

import (
	"context"
	"fmt"
	"strings"

	"spectra/pkg/agent/llm"
	"spectra/pkg/agent/llmerrors"
	"spectra/pkg/failure"
	"spectra/pkg/logx"
)

// Predictor sends a prompt and returns the raw reply text.
type Predictor interface {
	Predict(ctx context.Context, prompt string) (string, error)
}

// Client adapts an llm.LLMClient (already wrapped with retry and timeout
// middleware) into a Predictor.
type Client struct {
	llm         llm.LLMClient
	logger      *logx.Logger
	maxTokens   int
	temperature float32
}

// NewClient creates an advisor client. Non-positive maxTokens falls back to llm.DefaultMaxTokens.
func NewClient(client llm.LLMClient, maxTokens int, temperature float32) *Client {
	if maxTokens <= 0 {
		maxTokens = llm.DefaultMaxTokens
	}
	return &Client{
		llm:         client,
		maxTokens:   maxTokens,
		temperature: temperature,
		logger:      logx.NewLogger("advisor"),
	}
}

// systemRole frames every request; the per-run instructions travel in the prompt.
const systemRole = "You plan authorized penetration tests against a single target host."

// Predict sends prompt as the user turn and returns the reply text.
// Any failure that survives the retry middleware becomes an ADVISOR_FAILURE.
func (c *Client) Predict(ctx context.Context, prompt string) (string, error) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage(systemRole),
		llm.NewUserMessage(prompt),
	})
	req.MaxTokens = c.maxTokens
	req.Temperature = c.temperature
	req.JSONMode = true

	logx.Debug(ctx, "advisor", "prompt: %s", promptExcerpt(prompt, 400))

	resp, err := c.llm.Complete(ctx, req)
	if err != nil {
		c.logger.Error("advisor prediction failed: %v", err)
		return "", failure.Wrap(failure.ReasonAdvisor, "advisor prediction failed", err).
			WithDetail("model", c.llm.GetModelName()).
			WithDetail("error_type", llmerrors.TypeOf(err).String())
	}
	if strings.TrimSpace(resp.Content) == "" {
		return "", failure.New(failure.ReasonAdvisor, "advisor returned an empty reply").
			WithDetail("model", c.llm.GetModelName())
	}

	logx.Debug(ctx, "advisor", "raw response: %s", resp.Content)
	return resp.Content, nil
}

// String identifies the backend model.
func (c *Client) String() string {
	return fmt.Sprintf("advisor(%s)", c.llm.GetModelName())
}
