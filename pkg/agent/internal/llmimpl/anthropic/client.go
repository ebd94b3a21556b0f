// Package anthropic backs the advisor with Anthropic's Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"spectra/pkg/agent/llm"
	"spectra/pkg/agent/llmerrors"
)

// Client implements llm.LLMClient for Claude models.
type Client struct {
	api   anthropic.Client
	model anthropic.Model
}

// New returns a Claude client. The SDK's own retries are off because the
// advisor chain retries.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &Client{api: anthropic.NewClient(opts...), model: anthropic.Model(model)}
}

// splitSystem pulls system messages into one system prompt and folds the rest
// into strictly alternating turns that open and close on the user.
func splitSystem(messages []llm.CompletionMessage) (string, []llm.CompletionMessage, error) {
	if len(messages) == 0 {
		return "", nil, errors.New("no messages")
	}
	var system []string
	var turns []llm.CompletionMessage
	for _, m := range messages {
		if m.Role == llm.RoleSystem {
			system = append(system, m.Content)
			continue
		}
		role := llm.RoleUser
		if m.Role == llm.RoleAssistant {
			role = llm.RoleAssistant
		}
		if n := len(turns); n > 0 && turns[n-1].Role == role {
			turns[n-1].Content += "\n\n" + m.Content
			continue
		}
		turns = append(turns, llm.CompletionMessage{Role: role, Content: m.Content})
	}
	switch {
	case len(turns) == 0:
		return "", nil, errors.New("only system messages")
	case turns[0].Role != llm.RoleUser:
		return "", nil, fmt.Errorf("conversation opens with %s", turns[0].Role)
	case turns[len(turns)-1].Role != llm.RoleUser:
		return "", nil, fmt.Errorf("conversation closes with %s", turns[len(turns)-1].Role)
	}
	return strings.Join(system, "\n\n"), turns, nil
}

// Complete sends one Messages request.
//
//nolint:gocritic // CompletionRequest passed by value to match llm.LLMClient
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	system, turns, err := splitSystem(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "cannot build Claude conversation: "+err.Error())
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	for _, t := range turns {
		block := anthropic.NewTextBlock(t.Content)
		if t.Role == llm.RoleAssistant {
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(block))
		} else {
			params.Messages = append(params.Messages, anthropic.NewUserMessage(block))
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	msg, err := c.api.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	var text strings.Builder
	if msg != nil {
		for _, block := range msg.Content {
			if block.Type == "text" {
				text.WriteString(block.Text)
			}
		}
	}
	if text.Len() == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Claude returned no text")
	}

	return llm.CompletionResponse{
		Content:          text.String(),
		StopReason:       string(msg.StopReason),
		PromptTokens:     int(msg.Usage.InputTokens),
		CompletionTokens: int(msg.Usage.OutputTokens),
	}, nil
}

// GetModelName returns the Claude model ID.
func (c *Client) GetModelName() string { return string(c.model) }

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llmerrors.FromStatus(apiErr.StatusCode, err)
	}
	lower := strings.ToLower(err.Error())
	for _, hint := range []string{"connection", "eof", "reset"} {
		if strings.Contains(lower, hint) {
			return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Anthropic API unreachable")
		}
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Anthropic API error")
}
