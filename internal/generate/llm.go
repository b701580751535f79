package generate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/pkg/anthropic"
)

const (
	defaultMaxTokens   = 1500
	defaultCallTimeout = 60 * time.Second
	stopReasonRefusal  = "refusal"
	temperature        = 0.5
)

// LLMOptions configures the model-backed generator.
type LLMOptions struct {
	Model       string
	MaxTokens   int64
	CallTimeout time.Duration
	Calculator  *cost.Calculator
}

// LLMGenerator writes candidates with the Anthropic Messages API.
type LLMGenerator struct {
	client   anthropic.Client
	opts     LLMOptions
	fallback *FallbackGenerator
}

// NewLLM creates an LLMGenerator.
func NewLLM(client anthropic.Client, opts LLMOptions) *LLMGenerator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = defaultCallTimeout
	}
	if opts.Calculator == nil {
		opts.Calculator = cost.NewCalculator(cost.DefaultRates())
	}
	return &LLMGenerator{client: client, opts: opts, fallback: NewFallback()}
}

// Generate performs exactly one model call. The estimated cost is reserved
// against budget before the call and stays charged if the call fails.
func (g *LLMGenerator) Generate(ctx context.Context, req Request, budget Budget) (Result, error) {
	system := SystemPrompt(req.Profile)
	user := UserPrompt(req)

	estimate := g.opts.Calculator.Estimate(g.opts.Model, len(system)+len(user), g.opts.MaxTokens)
	if err := budget.Reserve(estimate); err != nil {
		return Result{}, err
	}
	res := Result{ChargedEUR: estimate}

	callCtx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
	defer cancel()

	temp := temperature
	resp, err := g.client.CreateMessage(callCtx, anthropic.MessageRequest{
		Model:       g.opts.Model,
		MaxTokens:   g.opts.MaxTokens,
		System:      []anthropic.SystemBlock{anthropic.CachedSystem(system)},
		Messages:    []anthropic.Message{{Role: "user", Content: user}},
		Temperature: &temp,
	})
	if err != nil {
		return res, classify(ctx, callCtx, err)
	}

	resp.Usage.LogUsage(g.opts.Model, req.Lead.Key)
	budget.RecordActual(g.opts.Calculator.Anthropic(g.opts.Model, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens)))

	if resp.StopReason == stopReasonRefusal {
		return res, &resilience.RejectedError{Reason: "model declined to write for " + req.Lead.CompanyName}
	}

	variants, recommended, err := ParseCompletion(resp.Text(), req.Labels)
	if err != nil {
		return res, resilience.NewGenerationError(model.ErrCodeInvalidResponse, err)
	}

	variants, err = g.fillMissing(ctx, req, variants)
	if err != nil {
		return res, err
	}
	res.Variants = variants
	res.Recommended = normalizeRecommended(recommended, variants)
	return res, nil
}

// fillMissing completes a partial reply with fallback candidates so every
// requested label is present.
func (g *LLMGenerator) fillMissing(ctx context.Context, req Request, got []model.Variant) ([]model.Variant, error) {
	if len(got) == len(req.Labels) {
		return got, nil
	}
	have := make(map[string]model.Variant, len(got))
	for _, v := range got {
		have[v.Label] = v
	}
	var missing []string
	for _, l := range req.Labels {
		if _, ok := have[l]; !ok {
			missing = append(missing, l)
		}
	}
	fbReq := req
	fbReq.Labels = missing
	fb, err := g.fallback.Generate(ctx, fbReq, nil)
	if err != nil {
		return nil, err
	}
	for _, v := range fb.Variants {
		have[v.Label] = v
	}
	zap.L().Warn("generate: completion missing variants, filled from templates",
		zap.String("lead_key", req.Lead.Key), zap.Strings("labels", missing))

	out := make([]model.Variant, 0, len(req.Labels))
	for _, l := range req.Labels {
		out = append(out, have[l])
	}
	return out, nil
}

// classify maps a backend error onto the generation taxonomy.
func classify(parent, call context.Context, err error) error {
	if parent.Err() != nil {
		return eris.Wrap(parent.Err(), "generate: run cancelled")
	}
	if errors.Is(call.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return resilience.NewGenerationError(model.ErrCodeTimeout, err)
	}
	status := anthropic.StatusCode(err)
	switch {
	case status == 0:
		return resilience.NewGenerationError("llm_unavailable", err)
	case resilience.IsTransientHTTPStatus(status):
		return resilience.NewGenerationError(fmt.Sprintf("llm_http_%d", status), err)
	default:
		return &resilience.RejectedError{Reason: fmt.Sprintf("backend returned %d: %v", status, err)}
	}
}
