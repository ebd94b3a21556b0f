// Package llm provides interfaces and types for the language-model clients that back the advisor.
package llm

import "context"

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the operator side.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens bounds advisor replies; a plan object is small.
	DefaultMaxTokens = 1024

	// TemperatureDeterministic is used for plan generation so identical recon yields
	// identical plans as far as the backend allows.
	TemperatureDeterministic = 0.0
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
//
//nolint:govet // value semantics preferred over field alignment
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
	// JSONMode asks backends that support it to constrain output to a JSON object.
	JSONMode bool
}

// CompletionResponse is a backend reply. Token counts are zero when the backend
// does not report usage.
type CompletionResponse struct {
	Content          string
	StopReason       string // "end_turn", "max_tokens", ...
	PromptTokens     int
	CompletionTokens int
}

// HasUsage reports whether the backend returned token counts.
func (r CompletionResponse) HasUsage() bool {
	return r.PromptTokens > 0 || r.CompletionTokens > 0
}

// LLMClient defines the interface for language model interactions.
// There is no streaming contract: the advisor needs the whole reply before validating it.
type LLMClient interface { //nolint:revive // name kept for symmetry with provider packages
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDeterministic,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleSystem, Content: content}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{Role: RoleUser, Content: content}
}
