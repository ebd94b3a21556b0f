package plan

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"spectra/pkg/failure"
	"spectra/pkg/logx"
)

// Schema keys. Anything else in the object invalidates it.
const (
	keyModule       = "module"
	keyPayload      = "payload"
	keyOptions      = "options"
	keyVector       = "vector"
	keyRationale    = "rationale"
	keyManualReview = "manual_review"
	keyConfidence   = "confidence"
)

//nolint:gochecknoglobals // fixed schema key set
var allowedKeys = map[string]struct{}{
	keyModule:       {},
	keyPayload:      {},
	keyOptions:      {},
	keyVector:       {},
	keyRationale:    {},
	keyManualReview: {},
	keyConfidence:   {},
}

// Options tunes validation.
type Options struct {
	// RequireManualApproval forces a validated plan to carry ManualReview=true.
	RequireManualApproval bool
}

// DecodeAndValidate decodes candidate and validates it against the strict plan schema.
//
// It returns an error (reason VALIDATION_ERROR) only when candidate is not valid JSON.
// Every other problem yields a ManualReview outcome whose rationale names the violation.
// The function is pure and safe for concurrent use.
func DecodeAndValidate(candidate string, opts Options) (Outcome, error) {
	dec := json.NewDecoder(strings.NewReader(candidate))
	dec.UseNumber()

	var data any
	if err := dec.Decode(&data); err != nil {
		return Outcome{}, failure.Wrap(failure.ReasonValidation, "invalid JSON from advisor", err)
	}
	if dec.More() {
		return Outcome{}, failure.New(failure.ReasonValidation, "trailing data after JSON object")
	}

	obj, isObject := data.(map[string]any)

	// An explicit request for human oversight wins over everything else.
	if isObject && truthy(obj[keyManualReview]) {
		rationale := DefaultManualReviewRationale
		if r, ok := obj[keyRationale].(string); ok && strings.TrimSpace(r) != "" {
			rationale = r
		}
		return reviewOutcome(rationale), nil
	}

	if !isObject {
		return reviewOutcome(fmt.Sprintf("ValidationError: expected a JSON object, got %s", kindOf(data))), nil
	}

	p, violations := decodePlan(obj)
	if len(violations) > 0 {
		return reviewOutcome("ValidationError: " + strings.Join(violations, "; ")), nil
	}

	if !p.Vector.Valid() {
		return reviewOutcome(fmt.Sprintf("Invalid vector: %s", p.Vector)), nil
	}

	if opts.RequireManualApproval {
		p.ManualReview = true
	}
	return planOutcome(p), nil
}

// decodePlan checks types and presence of every field. It never coerces.
func decodePlan(obj map[string]any) (Plan, []string) {
	var violations []string
	addf := func(format string, args ...any) {
		violations = append(violations, fmt.Sprintf(format, args...))
	}

	for key := range obj {
		if _, ok := allowedKeys[key]; !ok {
			addf("%s: extra fields not permitted", key)
		}
	}

	p := Plan{Options: map[string]any{}}

	p.Module = requiredString(obj, keyModule, addf)
	p.Payload = requiredString(obj, keyPayload, addf)

	if raw, ok := obj[keyVector]; !ok {
		addf("%s: field required", keyVector)
	} else if s, isString := raw.(string); !isString {
		addf("%s: expected string, got %s", keyVector, kindOf(raw))
	} else {
		p.Vector = Vector(s)
	}

	if raw, ok := obj[keyOptions]; ok {
		if m, isMap := raw.(map[string]any); isMap {
			p.Options = normalizeNumbers(m).(map[string]any)
		} else {
			addf("%s: expected object, got %s", keyOptions, kindOf(raw))
		}
	}

	if raw, ok := obj[keyRationale]; ok && raw != nil {
		if s, isString := raw.(string); isString {
			p.Rationale = s
		} else {
			addf("%s: expected string, got %s", keyRationale, kindOf(raw))
		}
	}

	if raw, ok := obj[keyManualReview]; ok && raw != nil {
		if b, isBool := raw.(bool); isBool {
			p.ManualReview = b
		} else {
			addf("%s: expected boolean, got %s", keyManualReview, kindOf(raw))
		}
	}

	if raw, ok := obj[keyConfidence]; ok && raw != nil {
		n, isNumber := raw.(json.Number)
		if !isNumber {
			addf("%s: expected number, got %s", keyConfidence, kindOf(raw))
		} else if f, err := n.Float64(); err != nil {
			addf("%s: %v", keyConfidence, err)
		} else if f < 0 || f > 1 {
			addf("%s: must be within [0, 1], got %v", keyConfidence, f)
		} else {
			p.Confidence = &f
		}
	}

	sort.Strings(violations)
	return p, violations
}

func requiredString(obj map[string]any, key string, addf func(string, ...any)) string {
	raw, ok := obj[key]
	if !ok {
		addf("%s: field required", key)
		return ""
	}
	s, isString := raw.(string)
	if !isString {
		addf("%s: expected string, got %s", key, kindOf(raw))
		return ""
	}
	if strings.TrimSpace(s) == "" {
		addf("%s: must not be empty", key)
	}
	return s
}

// truthy follows JSON truthiness: false, null, 0, "" and empty containers are false.
func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case json.Number:
		f, err := t.Float64()
		return err != nil || f != 0
	case string:
		return t != ""
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	default:
		return true
	}
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// normalizeNumbers converts json.Number leaves into int64 or float64 so option values
// look like ordinary decoded JSON to callers.
func normalizeNumbers(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = normalizeNumbers(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = normalizeNumbers(val)
		}
		return out
	default:
		return v
	}
}

// Validator turns raw advisor text into an Outcome. Every failure on this path
// downgrades to manual review; it never returns an error.
type Validator struct {
	opts Options
}

// NewValidator creates a validator with the given options.
func NewValidator(opts Options) *Validator {
	return &Validator{opts: opts}
}

// FromAdvisorText extracts, decodes and validates the first JSON object in text.
func (v *Validator) FromAdvisorText(ctx context.Context, text string) Outcome {
	candidate, ok := ExtractCandidate(text)
	if !ok {
		logx.Debug(ctx, "plan", "no JSON object in advisor response (%d bytes)", len(text))
		return reviewOutcome("advisor did not return JSON")
	}

	outcome, err := DecodeAndValidate(candidate, v.opts)
	if err != nil {
		logx.Debug(ctx, "plan", "decode failed: %v", err)
		return reviewOutcome("invalid JSON from advisor")
	}

	if review, isReview := outcome.ManualReview(); isReview {
		logx.Debug(ctx, "plan", "manual review: %s", review.Rationale)
	}
	return outcome
}
