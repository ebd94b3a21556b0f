package advisor

import (
	"context"

	"spectra/pkg/logx"
	"spectra/pkg/plan"
)

// Advisor produces a plan.Outcome from recon output.
type Advisor struct {
	predictor      Predictor
	validator      *plan.Validator
	logger         *logx.Logger
	maxReconTokens int
}

// Options configure an Advisor.
type Options struct {
	// RequireManualApproval marks every valid plan as needing operator review.
	RequireManualApproval bool
	// MaxReconTokens caps the recon section of the prompt; zero means unbounded.
	MaxReconTokens int
}

// New creates an Advisor on top of a Predictor.
func New(predictor Predictor, opts Options) *Advisor {
	return &Advisor{
		predictor:      predictor,
		validator:      plan.NewValidator(plan.Options{RequireManualApproval: opts.RequireManualApproval}),
		maxReconTokens: opts.MaxReconTokens,
		logger:         logx.NewLogger("advisor"),
	}
}

// Strategy builds the prompt, asks the backend and validates the reply.
// A backend failure is returned as an error (reason ADVISOR_FAILURE); anything
// wrong with the reply itself becomes a manual-review Outcome.
func (a *Advisor) Strategy(ctx context.Context, recon any) (plan.Outcome, error) {
	prompt := BuildPrompt(recon, a.maxReconTokens)

	raw, err := a.predictor.Predict(ctx, prompt)
	if err != nil {
		return plan.Outcome{}, err
	}

	outcome := a.validator.FromAdvisorText(ctx, raw)
	if review, ok := outcome.ManualReview(); ok {
		a.logger.Warn("advisor requested manual review: %s", review.Rationale)
	} else if p, ok := outcome.Plan(); ok {
		a.logger.Info("advisor proposed %s with %s (vector %s)", p.Module, p.Payload, p.Vector)
	}
	return outcome, nil
}
