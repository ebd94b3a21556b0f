package agent

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectra/pkg/agent/llm"
	"spectra/pkg/agent/llmerrors"
	"spectra/pkg/config"
)

type countingRecorder struct {
	requests atomic.Int32
	failures atomic.Int32
}

func (c *countingRecorder) ObserveRequest(_ string, _, _ int, success bool, _ string, _ time.Duration) {
	c.requests.Add(1)
	if !success {
		c.failures.Add(1)
	}
}

func advisorConfig(provider string) config.AdvisorConfig {
	return config.AdvisorConfig{
		Provider: provider,
		Model:    "test-model",
		Retries:  2,
		Backoff:  config.Duration(time.Millisecond),
		Timeout:  config.Duration(time.Second),
	}
}

func TestCreateClientPerProvider(t *testing.T) {
	t.Setenv(config.EnvAnthropicAPIKey, "a")
	t.Setenv(config.EnvOpenAIAPIKey, "o")
	t.Setenv(config.EnvGoogleAPIKey, "g")

	for _, provider := range []string{config.ProviderOllama, config.ProviderAnthropic, config.ProviderOpenAI, config.ProviderGoogle} {
		client, err := NewLLMClientFactory(advisorConfig(provider), nil).CreateClient()
		require.NoError(t, err, provider)
		assert.Equal(t, "test-model", client.GetModelName())
	}
}

func TestCreateClientMissingKey(t *testing.T) {
	t.Setenv(config.EnvAnthropicAPIKey, "")
	_, err := NewLLMClientFactory(advisorConfig(config.ProviderAnthropic), nil).CreateClient()
	assert.Error(t, err)

	_, err = NewLLMClientFactory(advisorConfig("skynet"), nil).CreateClient()
	assert.Error(t, err)
}

func TestWrapRetriesAndMeasuresOnce(t *testing.T) {
	rec := &countingRecorder{}
	var calls atomic.Int32
	raw := llm.ClientFunc("m", func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		calls.Add(1)
		return llm.CompletionResponse{}, errors.New("connection refused")
	})

	client := NewLLMClientFactory(advisorConfig(config.ProviderOllama), rec).Wrap(raw)
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	assert.True(t, llmerrors.IsServiceUnavailable(err))
	assert.Equal(t, int32(3), calls.Load())
	assert.Equal(t, int32(1), rec.requests.Load())
	assert.Equal(t, int32(1), rec.failures.Load())
}
