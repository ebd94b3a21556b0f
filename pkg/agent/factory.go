package agent

import (
	"fmt"

	"spectra/pkg/agent/internal/llmimpl/anthropic"
	"spectra/pkg/agent/internal/llmimpl/google"
	"spectra/pkg/agent/internal/llmimpl/ollama"
	"spectra/pkg/agent/internal/llmimpl/openaiofficial"
	"spectra/pkg/agent/llm"
	"spectra/pkg/agent/middleware/metrics"
	"spectra/pkg/agent/middleware/resilience/retry"
	"spectra/pkg/agent/middleware/resilience/timeout"
	"spectra/pkg/config"
	"spectra/pkg/logx"
)

// LLMClientFactory creates LLM clients with properly configured middleware chains.
type LLMClientFactory struct {
	recorder metrics.Recorder
	logger   *logx.Logger
	config   config.AdvisorConfig
}

// NewLLMClientFactory creates a factory for the given advisor settings.
// A nil recorder disables request metrics.
func NewLLMClientFactory(cfg config.AdvisorConfig, recorder metrics.Recorder) *LLMClientFactory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &LLMClientFactory{
		config:   cfg,
		recorder: recorder,
		logger:   logx.NewLogger("advisor-llm"),
	}
}

// CreateClient creates the configured provider client with the full middleware chain.
// API keys come from the secrets file or environment via config.GetAPIKey.
func (f *LLMClientFactory) CreateClient() (llm.LLMClient, error) {
	raw, err := f.createRawClient()
	if err != nil {
		return nil, err
	}
	return f.Wrap(raw), nil
}

// Wrap applies the middleware chain to an existing client.
func (f *LLMClientFactory) Wrap(raw llm.LLMClient) llm.LLMClient {
	policy := retry.NewPolicy(retry.FromRetries(f.config.Retries, f.config.Backoff.D()))
	return llm.Chain(raw,
		metrics.Middleware(f.recorder, nil, f.logger),
		retry.Middleware(policy, f.logger),
		timeout.Middleware(f.config.Timeout.D()),
	)
}

func (f *LLMClientFactory) createRawClient() (llm.LLMClient, error) {
	provider := f.config.Provider
	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	switch provider {
	case config.ProviderOllama:
		host := f.config.Host
		if host == "" {
			host = apiKey
		}
		return ollama.New(host, f.config.Model, nil), nil
	case config.ProviderAnthropic:
		return anthropic.New(apiKey, f.config.Model), nil
	case config.ProviderOpenAI:
		return openaiofficial.New(apiKey, f.config.Model), nil
	case config.ProviderGoogle:
		return google.New(apiKey, f.config.Model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}
