// Package repair rewrites candidates that fail the quality gate, feeding the
// violations back to the generator until they pass or the rewrite budget is spent.
package repair

import (
	"context"

	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/generate"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/quality"
)

// State is the position of a record in the repair state machine.
type State string

const (
	StateGenerated State = "generated"
	StateGated     State = "gated"
	StateRepairing State = "repairing"
	StatePassed    State = "passed"
	StateExhausted State = "exhausted"
)

// Call performs one logical generation call. The controller supplies it with
// retry and budget handling already applied.
type Call func(ctx context.Context, req generate.Request) (generate.Result, error)

// Outcome is the result of running the loop for one record.
type Outcome struct {
	State       State
	Variants    []model.Variant
	Recommended string
	Attempts    int
	Violations  []model.QualityViolation
	ChargedEUR  float64
	Trace       []State
}

// Passed reports whether every candidate cleared the gate.
func (o Outcome) Passed() bool {
	return o.State == StatePassed
}

// Flags returns the risk flags of the remaining violations.
func (o Outcome) Flags() []string {
	flags := make([]string, 0, len(o.Violations))
	for _, v := range o.Violations {
		flags = append(flags, v.Flag())
	}
	return flags
}

// Loop runs gate checks and bounded rewrites.
type Loop struct {
	gate   *quality.Gate
	budget int
}

// New creates a Loop allowing up to rewriteBudget repair calls per record.
func New(gate *quality.Gate, rewriteBudget int) *Loop {
	if rewriteBudget < 0 {
		rewriteBudget = 0
	}
	return &Loop{gate: gate, budget: rewriteBudget}
}

// Run gates the initial candidates and repairs the failing ones. Only failing
// labels are sent back for rewriting, all of them in a single call per
// attempt. When call fails the outcome so far is returned with the error.
func (l *Loop) Run(ctx context.Context, req generate.Request, initial generate.Result, call Call) (Outcome, error) {
	out := Outcome{
		State:       StateGenerated,
		Variants:    append([]model.Variant(nil), initial.Variants...),
		Recommended: initial.Recommended,
		Trace:       []State{StateGenerated},
	}

	failing := l.gateAll(&out)
	log := zap.L().With(zap.String("campaign_id", req.CampaignID), zap.String("lead_key", req.Lead.Key))

	for len(failing) > 0 && out.Attempts < l.budget {
		out.Attempts++
		out.transition(StateRepairing)
		log.Debug("repair: rewriting candidates",
			zap.Int("attempt", out.Attempts), zap.Strings("labels", failing), zap.Int("violations", len(out.Violations)))

		repairReq := req
		repairReq.Labels = failing
		repairReq.Feedback = out.Violations
		repairReq.Previous = out.pick(failing)

		res, err := call(ctx, repairReq)
		out.ChargedEUR += res.ChargedEUR
		if err != nil {
			return out, err
		}
		for _, v := range res.Variants {
			out.replace(v)
		}
		failing = l.gateAll(&out)
	}

	if len(failing) == 0 {
		out.transition(StatePassed)
		return out, nil
	}
	out.transition(StateExhausted)
	log.Info("repair: rewrite budget exhausted",
		zap.Int("attempts", out.Attempts), zap.Strings("flags", out.Flags()))
	return out, nil
}

// gateAll checks every candidate and returns the failing labels in order.
func (l *Loop) gateAll(out *Outcome) []string {
	out.Violations = nil
	var failing []string
	for _, r := range l.gate.CheckAll(out.Variants) {
		if !r.Passed() {
			failing = append(failing, r.Label)
		}
		out.Violations = append(out.Violations, r.Violations...)
	}
	out.transition(StateGated)
	return failing
}

func (o *Outcome) transition(s State) {
	o.State = s
	o.Trace = append(o.Trace, s)
}

func (o *Outcome) pick(labels []string) []model.Variant {
	var vs []model.Variant
	for _, l := range labels {
		for _, v := range o.Variants {
			if v.Label == l {
				vs = append(vs, v)
			}
		}
	}
	return vs
}

func (o *Outcome) replace(v model.Variant) {
	for i := range o.Variants {
		if o.Variants[i].Label == v.Label {
			o.Variants[i] = v
			return
		}
	}
	o.Variants = append(o.Variants, v)
}
