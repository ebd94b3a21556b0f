// Package openaiofficial backs the advisor with OpenAI's Responses API.
package openaiofficial

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"spectra/pkg/agent/llm"
	"spectra/pkg/agent/llmerrors"
)

// Client implements llm.LLMClient for OpenAI models.
type Client struct {
	api   openai.Client
	model string
}

// New returns an OpenAI client with SDK retries off.
func New(apiKey, model string, opts ...option.RequestOption) *Client {
	opts = append([]option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}, opts...)
	return &Client{api: openai.NewClient(opts...), model: model}
}

// Complete sends one Responses request. System messages become instructions
// and the other turns are flattened into a single input string.
//
//nolint:gocritic // CompletionRequest passed by value to match llm.LLMClient
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	var instructions, input []string
	for _, msg := range in.Messages {
		switch msg.Role {
		case llm.RoleSystem:
			instructions = append(instructions, msg.Content)
		case llm.RoleAssistant:
			input = append(input, "Assistant: "+msg.Content)
		default:
			input = append(input, msg.Content)
		}
	}
	if len(input) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list must contain a user message")
	}

	params := responses.ResponseNewParams{
		Model:           o.model,
		MaxOutputTokens: openai.Int(int64(in.MaxTokens)),
		Temperature:     openai.Float(float64(in.Temperature)),
		Input:           responses.ResponseNewParamsInputUnion{OfString: openai.String(strings.Join(input, "\n\n"))},
	}
	if len(instructions) > 0 {
		params.Instructions = openai.String(strings.Join(instructions, "\n\n"))
	}

	resp, err := o.api.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || strings.TrimSpace(resp.OutputText()) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "OpenAI returned no text")
	}

	return llm.CompletionResponse{
		Content:          resp.OutputText(),
		StopReason:       string(resp.Status),
		PromptTokens:     int(resp.Usage.InputTokens),
		CompletionTokens: int(resp.Usage.OutputTokens),
	}, nil
}

// GetModelName returns the OpenAI model ID.
func (o *Client) GetModelName() string { return o.model }

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llmerrors.FromStatus(apiErr.StatusCode, err)
	}
	return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "OpenAI Responses API failed")
}
