// Package agent builds the advisor's language-model client.
//
// Provider implementations live under internal/llmimpl and are never used
// directly; LLMClientFactory wraps the selected one in the middleware chain
//
//	metrics -> retry -> timeout -> provider
//
// so every advisor call is measured once, retried with linear backoff, and each
// individual attempt is bounded by the configured timeout.
package agent
