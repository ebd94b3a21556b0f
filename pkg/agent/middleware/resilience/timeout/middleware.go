// Package timeout bounds each advisor call so a hung backend cannot stall PLANNING.
package timeout

import (
	"context"
	"time"

	"spectra/pkg/agent/llm"
)

// Middleware gives every Complete call its own deadline of d. The retry layer
// sits outside it, so each attempt gets a fresh budget. d <= 0 leaves calls unbounded.
func Middleware(d time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		if d <= 0 {
			return next
		}
		complete := func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
			ctx, cancel := context.WithTimeout(ctx, d)
			defer cancel()
			return next.Complete(ctx, req)
		}
		return llm.WrapClient(complete, next.GetModelName)
	}
}
