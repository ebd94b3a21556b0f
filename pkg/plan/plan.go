// Package plan turns untrusted advisor text into a validated action plan or an explicit
// manual-review outcome. Nothing in this package performs I/O besides logging.
package plan

import (
	"encoding/json"
	"maps"
)

// Vector is the attack surface a plan targets.
type Vector string

// Allowed vectors.
const (
	VectorSystem Vector = "system"
	VectorWeb    Vector = "web"
)

// Valid reports whether v is one of the allowed vectors.
func (v Vector) Valid() bool {
	return v == VectorSystem || v == VectorWeb
}

// DefaultManualReviewRationale is used when the advisor asks for review without saying why.
const DefaultManualReviewRationale = "advisor signaled manual review"

// Plan is a schema-conformant proposed action. Values handed out by Outcome are copies.
//
//nolint:govet // field order mirrors the wire schema
type Plan struct {
	Module       string         `json:"module"`
	Payload      string         `json:"payload"`
	Options      map[string]any `json:"options"`
	Vector       Vector         `json:"vector"`
	Rationale    string         `json:"rationale,omitempty"`
	ManualReview bool           `json:"manual_review"`
	Confidence   *float64       `json:"confidence,omitempty"`
}

// Map renders the plan as a plain mapping, used for result details and persistence.
func (p Plan) Map() map[string]any {
	m := map[string]any{
		"module":        p.Module,
		"payload":       p.Payload,
		"options":       maps.Clone(p.Options),
		"vector":        string(p.Vector),
		"manual_review": p.ManualReview,
	}
	if p.Rationale != "" {
		m["rationale"] = p.Rationale
	}
	if p.Confidence != nil {
		m["confidence"] = *p.Confidence
	}
	return m
}

// JSON returns the plan encoded as JSON.
func (p Plan) JSON() string {
	data, err := json.Marshal(p)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func (p Plan) clone() Plan {
	cp := p
	cp.Options = maps.Clone(p.Options)
	if cp.Options == nil {
		cp.Options = map[string]any{}
	}
	if p.Confidence != nil {
		c := *p.Confidence
		cp.Confidence = &c
	}
	return cp
}

// ManualReview is the terminal outcome meaning no automated action should be taken.
type ManualReview struct {
	Rationale string `json:"rationale"`
}

// Outcome is either a validated Plan or a ManualReview, never both and never neither.
// Only this package constructs outcomes.
type Outcome struct {
	plan   *Plan
	review *ManualReview
}

func planOutcome(p Plan) Outcome {
	return Outcome{plan: &p}
}

func reviewOutcome(rationale string) Outcome {
	return Outcome{review: &ManualReview{Rationale: rationale}}
}

// Plan returns a copy of the validated plan, if this outcome carries one.
func (o Outcome) Plan() (Plan, bool) {
	if o.plan == nil {
		return Plan{}, false
	}
	return o.plan.clone(), true
}

// ManualReview returns the review request, if this outcome carries one.
func (o Outcome) ManualReview() (ManualReview, bool) {
	if o.review == nil {
		return ManualReview{}, false
	}
	return *o.review, true
}

// IsManualReview reports whether the outcome is a manual-review request.
func (o Outcome) IsManualReview() bool {
	return o.review != nil
}

// Map renders the outcome in its wire shape. A manual review collapses to
// {"manual_review": true, "rationale": ...}.
func (o Outcome) Map() map[string]any {
	if o.review != nil {
		return map[string]any{"manual_review": true, "rationale": o.review.Rationale}
	}
	if o.plan != nil {
		return o.plan.Map()
	}
	return map[string]any{}
}
