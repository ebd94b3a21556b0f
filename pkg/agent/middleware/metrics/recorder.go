// Package metrics counts advisor completions: calls, failures by class, token
// usage and latency per model.
package metrics

import "time"

// Recorder receives one observation per finished advisor call.
type Recorder interface {
	ObserveRequest(model string, promptTokens, completionTokens int, success bool, errorType string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveRequest(string, int, int, bool, string, time.Duration) {}

// Nop returns a Recorder for runs without a metrics registry.
func Nop() Recorder { return nopRecorder{} }
