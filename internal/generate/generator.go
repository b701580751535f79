// Package generate produces candidate outreach emails for a lead, either
// through the Anthropic API or a deterministic template fallback.
package generate

import (
	"context"
	"strings"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

// Policy decides what happens when no model credential is configured.
type Policy string

const (
	// PolicyStrict requires a working model backend.
	PolicyStrict Policy = "strict"
	// PolicyFallback renders seed templates when no backend is configured.
	PolicyFallback Policy = "fallback"
)

// Budget admits paid calls. cost.Ledger implements it.
type Budget interface {
	Reserve(estimateEUR float64) error
	RecordActual(eur float64)
}

// Request carries everything needed to write candidates for one lead.
type Request struct {
	CampaignID string
	Profile    model.ParentProfile
	Lead       model.Lead
	Snippets   []string
	Labels     []string

	// Feedback and Previous are set on repair attempts.
	Feedback []model.QualityViolation
	Previous []model.Variant
}

// IsRepair reports whether the request asks for a rewrite.
func (r Request) IsRepair() bool {
	return len(r.Feedback) > 0
}

// Result holds the candidates produced by one logical generation call.
type Result struct {
	Variants    []model.Variant
	Recommended string
	ChargedEUR  float64
	Fallback    bool
}

// Generator writes candidates. Implementations must be safe for concurrent use.
type Generator interface {
	Generate(ctx context.Context, req Request, budget Budget) (Result, error)
}

// LabelsFor returns the candidate labels for a variant mode.
func LabelsFor(variantMode string) []string {
	if variantMode == "abc" {
		return []string{model.LabelA, model.LabelB, model.LabelC}
	}
	return []string{model.LabelA, model.LabelB}
}

// New selects the generator for the policy. A nil client under the strict
// policy is a configuration error.
func New(policy Policy, client anthropic.Client, opts LLMOptions) (Generator, error) {
	if client == nil {
		if policy == PolicyStrict {
			return nil, &resilience.ConfigurationError{Msg: "llm_policy strict requires an anthropic key"}
		}
		return NewFallback(), nil
	}
	return NewLLM(client, opts), nil
}

// normalizeRecommended maps the model's pick onto an existing label.
func normalizeRecommended(value string, variants []model.Variant) string {
	v := strings.ToUpper(strings.TrimSpace(value))
	for _, c := range variants {
		if c.Label == v {
			return v
		}
	}
	if len(variants) > 0 {
		return variants[0].Label
	}
	return model.LabelA
}
