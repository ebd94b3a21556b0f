// Package retry provides bounded retry with linear backoff for advisor calls.
package retry

import (
	"context"
	"errors"
	"strings"
	"time"

	"spectra/pkg/agent/llmerrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts int           `json:"max_attempts"` // Maximum number of attempts (including initial)
	BaseDelay   time.Duration `json:"base_delay"`   // Delay unit; attempt k waits (k-1) * BaseDelay first
	MaxDelay    time.Duration `json:"max_delay"`    // Cap on a single wait, zero means uncapped
}

// DefaultConfig mirrors two retries after the initial call with a one second base.
//
//nolint:gochecknoglobals // Sensible default config pattern
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   time.Second,
	MaxDelay:    30 * time.Second,
}

// FromRetries builds a Config from a retry count (attempts after the first).
func FromRetries(retries int, base time.Duration) Config {
	if retries < 0 {
		retries = 0
	}
	return Config{MaxAttempts: retries + 1, BaseDelay: base, MaxDelay: DefaultConfig.MaxDelay}
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default error classifier that determines retry behavior.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}

	// Cancellation comes from the caller; retrying would ignore the shutdown request.
	if errors.Is(err, context.Canceled) {
		return false
	}

	// Per-request timeouts surface as DeadlineExceeded while the parent context is still live.
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}

	errStr := strings.ToLower(err.Error())
	for _, marker := range []string{"401", "403", "404", "invalid api key", "unauthorized"} {
		if strings.Contains(errStr, marker) {
			return false
		}
	}

	// The backend is an opaque model server; unknown failures are usually transient.
	return true
}

// Policy combines a Config with a Classifier.
type Policy struct {
	Classifier Classifier
	Config     Config
}

// NewPolicy creates a new retry policy with the given config and the default classifier.
func NewPolicy(config Config) *Policy {
	if config.MaxAttempts < 1 {
		config.MaxAttempts = 1
	}
	return &Policy{Config: config, Classifier: ShouldRetry}
}

// ShouldRetry applies the policy's classifier.
func (p *Policy) ShouldRetry(err error) bool {
	if p.Classifier == nil {
		return ShouldRetry(err)
	}
	return p.Classifier(err)
}

// CalculateDelay returns the wait before the given 1-based attempt.
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 || p.Config.BaseDelay <= 0 {
		return 0
	}
	delay := time.Duration(attempt-1) * p.Config.BaseDelay
	if p.Config.MaxDelay > 0 && delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}
	return delay
}
