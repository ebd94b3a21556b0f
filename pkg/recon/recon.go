package recon

import (
	"context"
	"errors"

	"spectra/pkg/orchestrator"
)

var _ orchestrator.Scanner = (*Scanner)(nil)

// Scan runs the service scan and hands its outcome to planning. A failed scan is
// returned with status error alongside a non-nil error.
func (s *Scanner) Scan(ctx context.Context, target string) (orchestrator.Recon, error) {
	res := s.ScanServices(ctx, target)
	return toRecon(res)
}

func toRecon(res *Result) (orchestrator.Recon, error) {
	rec := orchestrator.Recon{Status: string(res.Status), Raw: res.Raw}
	if res.Parsed != nil {
		rec.Parsed = res.Parsed
	}
	if res.Usable() {
		return rec, nil
	}

	msg := res.Error
	if res.LastError != "" {
		msg += ": " + res.LastError
	}
	if msg == "" {
		msg = "scan failed"
	}
	return rec, errors.New(msg)
}
