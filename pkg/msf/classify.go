package msf

import (
	"strings"

	"spectra/pkg/failure"
)

// logPatterns are matched case-insensitively in order; the first hit wins.
//
//nolint:gochecknoglobals // fixed lookup table
var logPatterns = []struct {
	reason  failure.Reason
	needles []string
}{
	{failure.ReasonNetworkBlock, []string{
		"connection refused",
		"rex::connectionrefused",
		"rex::connectiontimeout",
		"rex::hostunreachable",
		"connection timed out",
		"connection reset",
		"no route to host",
		"unreachable",
	}},
	{failure.ReasonIncompatible, []string{
		"incompatible",
		"invalid payload",
		"no-target",
		"bad-config",
		"is not a compatible payload",
		"payload failed",
		"architecture",
		"unknown command: set payload",
	}},
	{failure.ReasonPatched, []string{
		"not vulnerable",
		"not exploitable",
		"patched",
		"the target is safe",
		"target is not vulnerable",
	}},
}

// ClassifyLog maps console output to a failure reason. Output that matches no known
// pattern is ReasonUndefined.
func ClassifyLog(log string) failure.Reason {
	lower := strings.ToLower(log)
	for _, p := range logPatterns {
		for _, needle := range p.needles {
			if strings.Contains(lower, needle) {
				return p.reason
			}
		}
	}
	return failure.ReasonUndefined
}

// Classifier satisfies the orchestrator's log classifier contract.
type Classifier struct{}

// Classify calls ClassifyLog.
func (Classifier) Classify(log string) failure.Reason {
	return ClassifyLog(log)
}
