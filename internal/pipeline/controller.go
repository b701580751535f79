package pipeline

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/generate"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/repair"
	"github.com/sells-group/outreach-cli/internal/resilience"
)

// ControllerConfig bounds a generation run.
type ControllerConfig struct {
	MaxConcurrency     int
	MaxRetries         int
	BackoffBaseSeconds float64
	// Sleep replaces the backoff timer; tests inject a recorder.
	Sleep resilience.Sleeper
	Now   func() time.Time
	// OnStatus, when set, sees every record status transition.
	OnStatus func(leadKey string, status model.RecordStatus)
}

// Controller generates records for many leads at once under a concurrency
// bound, a retry policy and the ledger's cost cap.
type Controller struct {
	gen    generate.Generator
	ledger *cost.Ledger
	loop   *repair.Loop
	limit  int
	retry  resilience.RetryConfig
	now    func() time.Time
	notify func(string, model.RecordStatus)
}

// NewController creates a Controller.
func NewController(gen generate.Generator, ledger *cost.Ledger, loop *repair.Loop, cfg ControllerConfig) *Controller {
	limit := cfg.MaxConcurrency
	if limit < 1 {
		limit = 1
	}
	retry := resilience.FromCampaign(cfg.MaxRetries, cfg.BackoffBaseSeconds)
	retry.Sleep = cfg.Sleep
	retry.OnRetry = resilience.RetryLogger("llm", "generate")
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{gen: gen, ledger: ledger, loop: loop, limit: limit, retry: retry, now: now, notify: cfg.OnStatus}
}

// RunStats summarizes a controller run.
type RunStats struct {
	Leads       int                        `json:"leads"`
	Statuses    map[model.RecordStatus]int `json:"statuses"`
	ErrorCodes  map[string]int             `json:"error_codes,omitempty"`
	Repaired    int                        `json:"repaired"`
	CostCapStop bool                       `json:"cost_cap_stop"`
	Ledger      cost.LedgerSnapshot        `json:"ledger"`
}

// Run generates one record per request. Per-lead failures are recorded on
// the lead and never abort the run. Once the ledger refuses a reservation no
// further lead is admitted; leads already in flight finish. Records come back
// in request order.
func (c *Controller) Run(ctx context.Context, reqs []generate.Request) ([]model.CampaignRecord, RunStats) {
	records := make([]model.CampaignRecord, len(reqs))
	var mu sync.Mutex
	stats := RunStats{Leads: len(reqs), Statuses: make(map[model.RecordStatus]int), ErrorCodes: make(map[string]int)}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(c.limit)
	for i, req := range reqs {
		g.Go(func() error {
			var rec model.CampaignRecord
			var repaired bool
			if c.ledger.Stopped() {
				rec = c.newRecord(req)
				rec.Fail(model.ErrCodeCostCap, "not admitted: run cost cap reached")
				c.observe(&rec)
			} else {
				rec, repaired = c.runLead(gCtx, req)
			}
			rec.UpdatedAt = c.now().UTC()
			records[i] = rec

			mu.Lock()
			stats.Statuses[rec.Status]++
			if rec.ErrorCode != "" {
				stats.ErrorCodes[rec.ErrorCode]++
			}
			if repaired {
				stats.Repaired++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	stats.Ledger = c.ledger.Snapshot()
	stats.CostCapStop = stats.Ledger.Stopped
	return records, stats
}

func (c *Controller) newRecord(req generate.Request) model.CampaignRecord {
	return model.CampaignRecord{
		CampaignID:      req.CampaignID,
		LeadKey:         req.Lead.Key,
		ParentSlug:      req.Profile.Slug,
		Lead:            req.Lead,
		Status:          model.RecordPending,
		EvidenceSummary: req.Lead.Evidence.Summary(3),
	}
}

// call runs one logical generation with retries. Charges from failed
// attempts are kept in the returned result.
func (c *Controller) call(ctx context.Context, req generate.Request) (generate.Result, error) {
	var charged float64
	res, err := resilience.DoVal(ctx, c.retry, func(ctx context.Context) (generate.Result, error) {
		r, err := c.gen.Generate(ctx, req, c.ledger)
		charged += r.ChargedEUR
		return r, err
	})
	res.ChargedEUR = charged
	return res, err
}

func (c *Controller) runLead(ctx context.Context, req generate.Request) (model.CampaignRecord, bool) {
	log := zap.L().With(zap.String("campaign_id", req.CampaignID), zap.String("lead_key", req.Lead.Key))
	rec := c.newRecord(req)

	initial, err := c.call(ctx, req)
	rec.CostEUR = initial.ChargedEUR
	if err != nil {
		code, reason := failure(err)
		log.Warn("pipeline: generation failed", zap.String("error_code", code), zap.Error(err))
		rec.Fail(code, reason)
		c.observe(&rec)
		return rec, false
	}
	c.transition(&rec, model.RecordGenerated)
	rec.Variants = initial.Variants
	rec.RecommendedVariant = initial.Recommended

	// The loop only calls back when a candidate failed the gate.
	repairCall := func(ctx context.Context, r generate.Request) (generate.Result, error) {
		if rec.Status != model.RecordNeedsRepair {
			c.transition(&rec, model.RecordNeedsRepair)
		}
		return c.call(ctx, r)
	}
	out, err := c.loop.Run(ctx, req, initial, repairCall)
	rec.CostEUR += out.ChargedEUR
	rec.Variants = out.Variants
	rec.RecommendedVariant = out.Recommended
	repaired := out.Attempts > 0

	if err != nil {
		code, reason := failure(err)
		log.Warn("pipeline: repair call failed", zap.String("error_code", code), zap.Int("attempt", out.Attempts), zap.Error(err))
		rec.AddRiskFlags(out.Flags()...)
		rec.Fail(code, reason)
		rec.GenerationStatus = model.GenerationFailedCopyGuard
		c.observe(&rec)
		return rec, repaired
	}

	if !out.Passed() {
		rec.AddRiskFlags(out.Flags()...)
		rec.Fail(model.ErrCodeQualityBudget, "quality gate still failing after rewrite budget")
		rec.GenerationStatus = model.GenerationFailedCopyGuard
		rec.GenerationWarning = joinWarning(rec.GenerationWarning, "quality_budget_exhausted")
		for i := range rec.Variants {
			rec.Variants[i].GenerationWarning = joinWarning(rec.Variants[i].GenerationWarning, "quality_budget_exhausted")
		}
		log.Info("pipeline: lead exhausted rewrite budget", zap.Strings("risk_flags", rec.RiskFlags))
		c.observe(&rec)
		return rec, repaired
	}

	c.transition(&rec, model.RecordReadyForApproval)
	rec.GenerationStatus = model.GenerationOK
	rec.RiskFlags = nil
	rec.SelectRecommended()
	if initial.Fallback {
		rec.GenerationWarning = joinWarning(rec.GenerationWarning, generate.FallbackWarning)
	}
	return rec, repaired
}

func (c *Controller) transition(rec *model.CampaignRecord, s model.RecordStatus) {
	rec.Status = s
	c.observe(rec)
}

func (c *Controller) observe(rec *model.CampaignRecord) {
	if c.notify != nil {
		c.notify(rec.LeadKey, rec.Status)
	}
}

// failure maps a generation error onto a record error code and reason.
func failure(err error) (string, string) {
	var ge *resilience.GenerationError
	switch {
	case errors.Is(err, resilience.ErrCostCapReached):
		return model.ErrCodeCostCap, "run cost cap reached"
	case resilience.IsRejected(err):
		return model.ErrCodeRejected, err.Error()
	case errors.Is(err, context.Canceled):
		return model.ErrCodeCancelled, "run cancelled"
	case errors.As(err, &ge) && ge.Code == model.ErrCodeTimeout:
		return model.ErrCodeTimeout, err.Error()
	default:
		return model.ErrCodeRetryExhausted, err.Error()
	}
}

func joinWarning(existing, w string) string {
	if existing == "" {
		return w
	}
	return existing + "; " + w
}
