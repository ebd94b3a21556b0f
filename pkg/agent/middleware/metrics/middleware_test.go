package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectra/pkg/agent/llm"
	"spectra/pkg/agent/llmerrors"
)

type observation struct {
	model     string
	errorType string
	prompt    int
	reply     int
	success   bool
}

type fakeRecorder struct {
	seen []observation
}

func (f *fakeRecorder) ObserveRequest(model string, p, c int, success bool, errorType string, _ time.Duration) {
	f.seen = append(f.seen, observation{model: model, prompt: p, reply: c, success: success, errorType: errorType})
}

func TestMiddlewareRecordsSuccess(t *testing.T) {
	rec := &fakeRecorder{}
	base := llm.ClientFunc("dolphin-llama3", func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: `{"manual_review": true}`}, nil
	})
	extract := func(llm.CompletionRequest, llm.CompletionResponse) (int, int) { return 7, 3 }

	client := llm.Chain(base, Middleware(rec, extract, nil))
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.NoError(t, err)
	require.Len(t, rec.seen, 1)
	assert.Equal(t, observation{model: "dolphin-llama3", prompt: 7, reply: 3, success: true}, rec.seen[0])
}

func TestMiddlewareRecordsErrorType(t *testing.T) {
	rec := &fakeRecorder{}
	base := llm.ClientFunc("m", func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeRateLimit, "429")
	})
	_, err := llm.Chain(base, Middleware(rec, nil, nil)).Complete(context.Background(), llm.CompletionRequest{})
	require.Error(t, err)
	require.Len(t, rec.seen, 1)
	assert.False(t, rec.seen[0].success)
	assert.Equal(t, "rate_limit", rec.seen[0].errorType)
}

func TestDefaultUsageExtractorPrefersReportedUsage(t *testing.T) {
	req := llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("scan these ports")})

	p, c := DefaultUsageExtractor(req, llm.CompletionResponse{Content: "{}", PromptTokens: 120, CompletionTokens: 9})
	assert.Equal(t, 120, p)
	assert.Equal(t, 9, c)

	p, c = DefaultUsageExtractor(req, llm.CompletionResponse{Content: "{}"})
	assert.Positive(t, p)
	assert.Positive(t, c)
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, "timeout", getErrorType(context.DeadlineExceeded))
	assert.Equal(t, "canceled", getErrorType(context.Canceled))
	assert.Equal(t, "unknown", getErrorType(errors.New("x")))
	assert.Equal(t, "", getErrorType(nil))
}

func TestPrometheusRecorder(t *testing.T) {
	reg := prometheus.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveRequest("m", 10, 4, true, "", 20*time.Millisecond)
	rec.ObserveRequest("m", 0, 0, false, "transient", time.Millisecond)

	assert.InDelta(t, 1, testutil.ToFloat64(rec.requestsTotal.WithLabelValues("m", "success", "")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(rec.requestsTotal.WithLabelValues("m", "error", "transient")), 0)
	assert.InDelta(t, 10, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("m", "prompt")), 0)
	assert.InDelta(t, 4, testutil.ToFloat64(rec.tokensTotal.WithLabelValues("m", "completion")), 0)
}

func TestNopRecorderPassesResponsesThrough(t *testing.T) {
	base := llm.ClientFunc("m", func(context.Context, llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: "{}"}, nil
	})
	client := llm.Chain(base, Middleware(Nop(), nil, nil))
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("x")}))
	require.NoError(t, err)
	assert.Equal(t, "{}", resp.Content)
}
