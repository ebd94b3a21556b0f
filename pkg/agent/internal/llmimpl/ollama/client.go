// Package ollama is the default advisor backend: a model served by a local or
// LAN Ollama instance.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"spectra/pkg/agent/llm"
	"spectra/pkg/agent/llmerrors"
)

// DefaultHost is the Ollama server URL used when none is configured.
const DefaultHost = "http://localhost:11434"

// seed pins sampling so the same recon gives the same plan at temperature 0.
const seed = 42

// Client implements llm.LLMClient over Ollama's chat endpoint.
type Client struct {
	api   *api.Client
	host  *url.URL
	model string
}

// New creates a client for model on hostURL. An unparseable host falls back to
// DefaultHost; a nil httpClient uses http.DefaultClient.
func New(hostURL, model string, httpClient *http.Client) *Client {
	host, err := url.Parse(hostURL)
	if err != nil || host.Scheme == "" || host.Host == "" {
		host, _ = url.Parse(DefaultHost)
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{api: api.NewClient(host, httpClient), host: host, model: model}
}

// Complete sends one non-streaming chat request.
//
//nolint:gocritic // CompletionRequest passed by value to match llm.LLMClient
func (c *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}
	messages := make([]api.Message, len(in.Messages))
	for i, m := range in.Messages {
		messages[i] = api.Message{Role: string(m.Role), Content: m.Content}
	}

	stream := false
	req := &api.ChatRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
			"seed":        seed,
		},
	}
	if in.JSONMode {
		req.Format = json.RawMessage(`"json"`)
	}

	var last api.ChatResponse
	if err := c.api.Chat(ctx, req, func(r api.ChatResponse) error {
		last = r
		return nil
	}); err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if strings.TrimSpace(last.Message.Content) == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Ollama returned an empty message")
	}
	return llm.CompletionResponse{
		Content:          last.Message.Content,
		StopReason:       getStopReason(&last),
		PromptTokens:     last.PromptEvalCount,
		CompletionTokens: last.EvalCount,
	}, nil
}

// GetModelName returns the served model.
func (c *Client) GetModelName() string { return c.model }

// Host returns the server URL.
func (c *Client) Host() string { return c.host.String() }

func getStopReason(resp *api.ChatResponse) string {
	switch {
	case !resp.Done:
		return "incomplete"
	case resp.DoneReason == "" || resp.DoneReason == "stop":
		return "end_turn"
	case resp.DoneReason == "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError maps Ollama failures onto retry classes. Cancellation passes
// through untouched so the retry middleware stops.
func classifyError(err error) error {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		classified := llmerrors.FromStatus(statusErr.StatusCode, err)
		if statusErr.StatusCode == http.StatusNotFound {
			classified.Message = fmt.Sprintf("model not found on Ollama server: %s", statusErr.ErrorMessage)
		}
		return classified
	}

	msg := err.Error()
	switch {
	case strings.Contains(msg, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
	case strings.Contains(msg, "timeout"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "request timeout")
	default:
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeUnknown, err, "Ollama API error")
	}
}
