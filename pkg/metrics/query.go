package metrics

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/prometheus/client_golang/api"
	v1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"
)

// RunStats aggregates run counters scraped from one or more spectra textfiles.
type RunStats struct {
	ByStatus         map[string]int64 `json:"by_status"`
	ByReason         map[string]int64 `json:"by_reason"`
	PromptTokens     int64            `json:"prompt_tokens"`
	CompletionTokens int64            `json:"completion_tokens"`
	Total            int64            `json:"total"`
}

// Reasons returns reason labels sorted by descending count.
func (s *RunStats) Reasons() []string {
	out := make([]string, 0, len(s.ByReason))
	for r := range s.ByReason {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if s.ByReason[out[i]] != s.ByReason[out[j]] {
			return s.ByReason[out[i]] > s.ByReason[out[j]]
		}
		return out[i] < out[j]
	})
	return out
}

// QueryService reads spectra metrics back from a Prometheus server that scrapes
// the textfile export.
type QueryService struct {
	queryAPI v1.API
}

// NewQueryService creates a new metrics query service.
func NewQueryService(prometheusURL string) (*QueryService, error) {
	client, err := api.NewClient(api.Config{
		Address: prometheusURL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Prometheus client: %w", err)
	}
	return &QueryService{queryAPI: v1.NewAPI(client)}, nil
}

// GetRunStats returns run totals over the given range, e.g. "24h" or "7d".
func (q *QueryService) GetRunStats(ctx context.Context, window string) (*RunStats, error) {
	stats := &RunStats{
		ByStatus: map[string]int64{},
		ByReason: map[string]int64{},
	}

	byStatus, err := q.vector(ctx, fmt.Sprintf(`sum by (status) (increase(%s[%s]))`, runsMetric, window))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by status: %w", err)
	}
	for _, sample := range byStatus {
		n := int64(sample.Value)
		stats.ByStatus[string(sample.Metric["status"])] = n
		stats.Total += n
	}

	byReason, err := q.vector(ctx, fmt.Sprintf(`sum by (reason) (increase(%s[%s]))`, runsMetric, window))
	if err != nil {
		return nil, fmt.Errorf("failed to query runs by reason: %w", err)
	}
	for _, sample := range byReason {
		stats.ByReason[string(sample.Metric["reason"])] = int64(sample.Value)
	}

	tokens, err := q.vector(ctx, fmt.Sprintf(`sum by (type) (increase(spectra_advisor_tokens_total[%s]))`, window))
	if err != nil {
		return nil, fmt.Errorf("failed to query advisor tokens: %w", err)
	}
	for _, sample := range tokens {
		switch sample.Metric["type"] {
		case "prompt":
			stats.PromptTokens = int64(sample.Value)
		case "completion":
			stats.CompletionTokens = int64(sample.Value)
		}
	}

	return stats, nil
}

func (q *QueryService) vector(ctx context.Context, query string) (model.Vector, error) {
	result, _, err := q.queryAPI.Query(ctx, query, time.Now())
	if err != nil {
		return nil, err //nolint:wrapcheck // wrapped by caller
	}
	vector, ok := result.(model.Vector)
	if !ok {
		return nil, fmt.Errorf("unexpected result type %s", result.Type())
	}
	return vector, nil
}
