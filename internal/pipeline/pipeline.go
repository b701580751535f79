// Package pipeline runs a campaign: lead dedup, enrichment, knowledge
// retrieval, bounded generation with repair, and approval-queue staging.
package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/outreach-cli/internal/approval"
	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/cost"
	"github.com/sells-group/outreach-cli/internal/enrich"
	"github.com/sells-group/outreach-cli/internal/export"
	"github.com/sells-group/outreach-cli/internal/generate"
	"github.com/sells-group/outreach-cli/internal/lead"
	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/quality"
	"github.com/sells-group/outreach-cli/internal/reconcile"
	"github.com/sells-group/outreach-cli/internal/repair"
	"github.com/sells-group/outreach-cli/internal/resilience"
	"github.com/sells-group/outreach-cli/internal/store"
)

// Stages, in execution order. A run stops after the selected stage.
const (
	StageDedup    = "dedup"
	StageEnrich   = "enrich"
	StageRetrieve = "retrieve"
	StageGenerate = "generate"
	StageAll      = "all"
)

var stageOrder = map[string]int{
	StageDedup:    1,
	StageEnrich:   2,
	StageRetrieve: 3,
	StageGenerate: 4,
	StageAll:      4,
}

// ErrEstimateExceedsCap aborts a run whose pre-flight estimate is over the
// cost cap.
var ErrEstimateExceedsCap = eris.New("pipeline: estimated spend exceeds cost cap")

// SnippetRetriever returns knowledge snippets for a lead.
type SnippetRetriever interface {
	Retrieve(ctx context.Context, parentSlug string, l model.Lead) ([]string, error)
}

// Deps are the collaborators of a Pipeline. Retriever and Publisher are
// optional.
type Deps struct {
	Store     store.Store
	Generator generate.Generator
	Enrichers map[string]enrich.Enricher
	Retriever SnippetRetriever
	Publisher approval.Publisher
	Sleep     resilience.Sleeper
	Now       func() time.Time
}

// Pipeline is the campaign orchestrator.
type Pipeline struct {
	cfg  *config.Config
	deps Deps
	now  func() time.Time
}

// New creates a Pipeline.
func New(cfg *config.Config, deps Deps) *Pipeline {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	if deps.Enrichers == nil {
		deps.Enrichers = map[string]enrich.Enricher{enrich.ModeMinimal: enrich.Minimal{}}
	}
	return &Pipeline{cfg: cfg, deps: deps, now: now}
}

// Options selects what a run does.
type Options struct {
	// CampaignID reuses an existing campaign when set.
	CampaignID string
	Name       string
	ParentSlug string
	Stage      string
	// ForceCostOverride runs even when the estimate is over the cap.
	ForceCostOverride bool
	// Regenerate drops prior rows that no longer match a lead.
	Regenerate bool
	// Force lists lead keys regenerated even when approved.
	Force []string
	// Prior is the approval snapshot to reconcile against. When nil the
	// campaign's stored records are used.
	Prior []model.ApprovalRow
}

// Result is the outcome of a run.
type Result struct {
	Stage       string                 `json:"stage"`
	Campaign    *model.Campaign        `json:"campaign,omitempty"`
	Leads       []model.Lead           `json:"leads"`
	Skipped     int                    `json:"skipped"`
	Carried     int                    `json:"carried"`
	EstimateEUR float64                `json:"estimate_eur"`
	Records     []model.CampaignRecord `json:"records,omitempty"`
	Rows        []model.ApprovalRow    `json:"-"`
	Run         RunStats               `json:"run"`
	Reconcile   reconcile.Stats        `json:"reconcile"`
	Published   approval.Stats         `json:"published"`
	Purged      int                    `json:"purged"`
}

// Run executes the campaign over a lead sheet.
func (p *Pipeline) Run(ctx context.Context, sheet *lead.Sheet, opts Options) (*Result, error) {
	cc := p.cfg.Campaign
	stage := opts.Stage
	if stage == "" {
		stage = StageAll
	}
	last, ok := stageOrder[stage]
	if !ok {
		return nil, &resilience.ConfigurationError{Msg: fmt.Sprintf("unknown stage %q", stage)}
	}

	prof, err := p.loadProfile(ctx, opts.ParentSlug)
	if err != nil {
		return nil, err
	}
	log := zap.L().With(zap.String("parent", prof.Slug), zap.String("stage", stage))
	res := &Result{Stage: stage}

	trackStage := func(name string, fn func() error) error {
		start := time.Now()
		err := fn()
		duration := time.Since(start).Milliseconds()
		if err != nil {
			log.Error("pipeline: stage failed", zap.String("name", name), zap.Int64("duration_ms", duration), zap.Error(err))
			return err
		}
		log.Info("pipeline: stage complete", zap.String("name", name), zap.Int64("duration_ms", duration))
		return nil
	}

	// Dedup.
	_ = trackStage(StageDedup, func() error {
		res.Leads = lead.Build(sheet.Valid(), cc.RecipientMode)
		res.Skipped = len(sheet.Skipped())
		return nil
	})
	if last < stageOrder[StageEnrich] {
		return res, nil
	}

	// Enrich.
	if err := trackStage(StageEnrich, func() error {
		return p.enrich(ctx, res.Leads)
	}); err != nil {
		return nil, err
	}
	if last < stageOrder[StageRetrieve] {
		return res, nil
	}

	// Retrieve.
	snippets := make([][]string, len(res.Leads))
	_ = trackStage(StageRetrieve, func() error {
		for i, l := range res.Leads {
			snippets[i] = p.retrieve(ctx, prof.Slug, l)
		}
		return nil
	})
	if last < stageOrder[StageGenerate] {
		return res, nil
	}

	campaign, err := p.openCampaign(ctx, prof.Slug, opts)
	if err != nil {
		return nil, err
	}
	res.Campaign = campaign
	log = log.With(zap.String("campaign_id", campaign.ID))

	prior := opts.Prior
	stored, err := p.deps.Store.ListRecords(ctx, campaign.ID)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load stored records")
	}
	if prior == nil {
		prior = export.FromRecords(stored)
	}
	force := make(map[string]bool, len(opts.Force))
	for _, k := range opts.Force {
		force[k] = true
	}

	// Approved leads keep their record; everything else is generated.
	storedByKey := make(map[string]model.CampaignRecord, len(stored))
	for _, r := range stored {
		storedByKey[r.LeadKey] = r
	}
	approvedRows := make(map[string]model.ApprovalRow)
	for _, r := range prior {
		if r.CampaignID == campaign.ID && model.RecordStatus(r.Status) == model.RecordApproved {
			approvedRows[r.LeadKey] = r
		}
	}

	labels := generate.LabelsFor(cc.VariantMode)
	var reqs []generate.Request
	var carried []model.CampaignRecord
	for i, l := range res.Leads {
		if row, ok := approvedRows[l.Key]; ok && !force[l.Key] {
			rec, found := storedByKey[l.Key]
			if !found {
				rec = recordFromRow(row, l)
			}
			carried = append(carried, rec)
			continue
		}
		reqs = append(reqs, generate.Request{
			CampaignID: campaign.ID,
			Profile:    prof,
			Lead:       l,
			Snippets:   snippets[i],
			Labels:     labels,
		})
	}
	res.Carried = len(carried)

	res.EstimateEUR = float64(len(reqs)) * cc.EstimatePerLeadEUR
	if res.EstimateEUR > cc.CostCapEUR && !opts.ForceCostOverride {
		p.finish(ctx, campaign.ID, model.RunFailed, map[string]any{"estimate_eur": res.EstimateEUR, "cost_cap_eur": cc.CostCapEUR})
		return nil, eris.Wrapf(ErrEstimateExceedsCap, "estimate %.2f EUR for %d leads, cap %.2f EUR", res.EstimateEUR, len(reqs), cc.CostCapEUR)
	}

	// Generate, gate and repair.
	var generated []model.CampaignRecord
	_ = trackStage(StageGenerate, func() error {
		ctrl := NewController(
			p.deps.Generator,
			cost.NewLedger(cc.CostCapEUR),
			repair.New(quality.NewGate(quality.RulesFor(p.cfg.Quality, prof)), cc.RewriteBudget),
			ControllerConfig{
				MaxConcurrency:     cc.MaxConcurrency,
				MaxRetries:         cc.MaxRetries,
				BackoffBaseSeconds: cc.BackoffBaseSeconds,
				Sleep:              p.deps.Sleep,
				Now:                p.now,
			},
		)
		generated, res.Run = ctrl.Run(ctx, reqs)
		for i := range generated {
			if !generated[i].Lead.Evidence.HasSources() {
				generated[i].GenerationWarning = joinWarning(generated[i].GenerationWarning, enrich.FlagLimitedSources)
			}
		}
		return nil
	})
	if ctx.Err() != nil {
		p.finish(context.WithoutCancel(ctx), campaign.ID, model.RunFailed, map[string]any{"error": "cancelled"})
		return nil, eris.Wrap(ctx.Err(), "pipeline: run cancelled")
	}

	fresh := make([]model.CampaignRecord, 0, len(generated)+len(carried)+res.Skipped)
	fresh = append(fresh, generated...)
	fresh = append(fresh, carried...)
	taken := make(map[string]bool, len(res.Leads)+len(fresh))
	for _, l := range res.Leads {
		taken[l.Key] = true
	}
	for _, r := range fresh {
		taken[r.LeadKey] = true
	}
	fresh = append(fresh, p.skippedRecords(sheet.Skipped(), campaign.ID, prof.Slug, taken)...)

	// Stage for approval.
	if err := trackStage("stage", func() error {
		var rstats reconcile.Stats
		res.Rows, rstats = reconcile.Merge(export.FromRecords(fresh), prior, reconcile.Options{
			Regenerate: opts.Regenerate,
			Force:      force,
			Now:        p.now(),
		})
		res.Reconcile = rstats
		res.Records = p.recordsFor(res.Rows, fresh, storedByKey)
		if err := p.deps.Store.UpsertRecords(ctx, res.Records); err != nil {
			return eris.Wrap(err, "pipeline: persist records")
		}
		if p.deps.Publisher != nil {
			stats, err := p.deps.Publisher.Publish(ctx, res.Rows)
			res.Published = stats
			if err != nil {
				log.Warn("pipeline: publish approval rows failed", zap.Error(err))
			}
		}
		return nil
	}); err != nil {
		p.finish(ctx, campaign.ID, model.RunFailed, map[string]any{"error": err.Error()})
		return nil, err
	}

	status := model.RunCompleted
	if res.Run.CostCapStop {
		status = model.RunCostCapReached
	}
	p.finish(ctx, campaign.ID, status, map[string]any{
		"leads":        len(res.Leads),
		"skipped":      res.Skipped,
		"carried":      res.Carried,
		"estimate_eur": res.EstimateEUR,
		"run":          res.Run,
		"reconcile":    res.Reconcile,
	})
	campaign.Status = status
	res.Purged = p.purge(ctx)

	log.Info("pipeline: campaign complete",
		zap.String("status", string(status)),
		zap.Int("records", len(res.Records)),
		zap.Float64("spent_eur", res.Run.Ledger.ChargedEUR),
	)
	return res, nil
}

func (p *Pipeline) loadProfile(ctx context.Context, slug string) (model.ParentProfile, error) {
	if slug == "" {
		active, err := p.deps.Store.GetSetting(ctx, store.SettingActiveParent)
		if err != nil {
			return model.ParentProfile{}, eris.Wrap(err, "pipeline: read active parent")
		}
		slug = active
	}
	if slug == "" {
		slug = p.cfg.Campaign.ActiveParent
	}
	if slug == "" {
		return model.ParentProfile{}, &resilience.ConfigurationError{Msg: "no parent profile selected"}
	}
	prof, err := p.deps.Store.GetProfile(ctx, slug)
	if err != nil {
		return model.ParentProfile{}, &resilience.ConfigurationError{Msg: fmt.Sprintf("parent profile %q: %v", slug, err)}
	}
	return *prof, nil
}

func (p *Pipeline) enrich(ctx context.Context, leads []model.Lead) error {
	mode := enrich.ResolveMode(p.cfg.Campaign.EnrichmentMode, p.cfg.Campaign.RecipientMode)
	e, ok := p.deps.Enrichers[mode]
	if !ok {
		zap.L().Warn("pipeline: enrichment mode unavailable, using minimal", zap.String("mode", mode))
		e = enrich.Minimal{}
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(max(p.cfg.Campaign.MaxConcurrency, 1))
	for i := range leads {
		g.Go(func() error {
			ev, err := e.Enrich(gCtx, leads[i])
			if err != nil {
				zap.L().Warn("pipeline: enrichment failed, using sheet fields",
					zap.String("lead_key", leads[i].Key), zap.Error(err))
				ev, _ = enrich.Minimal{}.Enrich(gCtx, leads[i])
			}
			leads[i].Evidence = ev
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return eris.Wrap(ctx.Err(), "pipeline: enrich")
}

func (p *Pipeline) retrieve(ctx context.Context, parent string, l model.Lead) []string {
	if p.deps.Retriever == nil {
		return nil
	}
	snippets, err := p.deps.Retriever.Retrieve(ctx, parent, l)
	if err != nil {
		zap.L().Warn("pipeline: knowledge retrieval failed", zap.String("lead_key", l.Key), zap.Error(err))
		return nil
	}
	return snippets
}

func (p *Pipeline) openCampaign(ctx context.Context, parent string, opts Options) (*model.Campaign, error) {
	if opts.CampaignID != "" {
		if c, err := p.deps.Store.GetCampaign(ctx, opts.CampaignID); err == nil {
			if err := p.deps.Store.UpdateCampaign(ctx, c.ID, model.RunRunning, c.Summary); err != nil {
				return nil, eris.Wrap(err, "pipeline: reopen campaign")
			}
			c.Status = model.RunRunning
			return c, nil
		}
	}
	name := opts.Name
	if name == "" {
		name = parent + " " + p.now().UTC().Format("2006-01-02 15:04")
	}
	c, err := p.deps.Store.CreateCampaign(ctx, model.Campaign{
		ID:            opts.CampaignID,
		ParentSlug:    parent,
		Name:          name,
		RecipientMode: p.cfg.Campaign.RecipientMode,
		VariantMode:   p.cfg.Campaign.VariantMode,
		OutputSchema:  p.cfg.Campaign.OutputSchema,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create campaign")
	}
	return c, nil
}

func (p *Pipeline) finish(ctx context.Context, id string, status model.RunStatus, summary map[string]any) {
	if err := p.deps.Store.UpdateCampaign(ctx, id, status, summary); err != nil {
		zap.L().Warn("pipeline: failed to update campaign status", zap.String("campaign_id", id), zap.Error(err))
	}
}

func (p *Pipeline) purge(ctx context.Context) int {
	days := p.cfg.Campaign.RetentionDays
	if days <= 0 {
		return 0
	}
	n, err := p.deps.Store.PurgeExpired(ctx, p.now().AddDate(0, 0, -days))
	if err != nil {
		zap.L().Warn("pipeline: retention purge failed", zap.Error(err))
		return 0
	}
	if n > 0 {
		zap.L().Info("pipeline: purged expired campaigns", zap.Int("count", n), zap.Int("retention_days", days))
	}
	return n
}

// skippedRecords turns rows that failed validation into failed records so
// they still show up in the approval queue. Keys never collide with taken.
func (p *Pipeline) skippedRecords(rows []lead.Row, campaignID, parent string, taken map[string]bool) []model.CampaignRecord {
	recs := make([]model.CampaignRecord, 0, len(rows))
	for _, r := range rows {
		l := lead.FromRow(r, p.cfg.Campaign.RecipientMode)
		l.Key = lead.UniqueKey(fmt.Sprintf("skipped-row-%d", r.Index), taken)
		rec := model.CampaignRecord{
			CampaignID:       campaignID,
			LeadKey:          l.Key,
			ParentSlug:       parent,
			Lead:             l,
			GenerationStatus: model.GenerationSkippedValidation,
			UpdatedAt:        p.now().UTC(),
		}
		rec.Fail(model.ErrCodeSkipped, "missing required fields: "+strings.Join(r.Missing, ", "))
		recs = append(recs, rec)
	}
	return recs
}

// recordsFor builds the records to persist from the reconciled rows. The
// row's reviewer fields win over whatever the record carried.
func (p *Pipeline) recordsFor(rows []model.ApprovalRow, fresh []model.CampaignRecord, stored map[string]model.CampaignRecord) []model.CampaignRecord {
	freshByKey := make(map[string]model.CampaignRecord, len(fresh))
	for _, r := range fresh {
		freshByKey[r.LeadKey] = r
	}
	out := make([]model.CampaignRecord, 0, len(rows))
	for _, row := range rows {
		rec, ok := freshByKey[row.LeadKey]
		if !ok || rec.CampaignID != row.CampaignID {
			if s, found := stored[row.LeadKey]; found && s.CampaignID == row.CampaignID {
				rec = s
			} else {
				rec = recordFromRow(row, model.Lead{Key: row.LeadKey})
			}
		}
		export.ApplyReview(&rec, row)
		if t, err := time.Parse(time.RFC3339, row.UpdatedAt); err == nil {
			rec.UpdatedAt = t
		}
		out = append(out, rec)
	}
	return out
}

// recordFromRow rebuilds a record from a snapshot row.
func recordFromRow(row model.ApprovalRow, l model.Lead) model.CampaignRecord {
	if l.CompanyName == "" {
		l.CompanyName = row.CompanyName
		l.ContactName = row.ContactName
		l.ContactTitle = row.ContactTitle
		l.ContactEmail = row.ContactEmail
	}
	rec := model.CampaignRecord{
		CampaignID:         row.CampaignID,
		LeadKey:            row.LeadKey,
		ParentSlug:         row.ParentSlug,
		Lead:               l,
		Status:             model.RecordStatus(row.Status),
		RecommendedVariant: row.RecommendedVariant,
		FinalSubject:       row.FinalSubject,
		FinalBody:          row.FinalBody,
		SelectedVariant:    row.SelectedVariant,
		GenerationStatus:   model.GenerationStatus(row.GenerationStatus),
		GenerationWarning:  row.GenerationWarning,
		ErrorCode:          row.ErrorCode,
		EvidenceSummary:    row.EvidenceSummary,
		ReviewerNotes:      row.ReviewerNotes,
		ApprovedVariant:    row.ApprovedVariant,
	}
	for _, f := range strings.Split(row.RiskFlags, ";") {
		rec.AddRiskFlags(strings.TrimSpace(f))
	}
	for _, v := range []model.Variant{
		{Label: model.LabelA, Subject: row.VariantASubject, Body: row.VariantABody},
		{Label: model.LabelB, Subject: row.VariantBSubject, Body: row.VariantBBody},
		{Label: model.LabelC, Subject: row.VariantCSubject, Body: row.VariantCBody},
	} {
		if v.Subject != "" || v.Body != "" {
			rec.Variants = append(rec.Variants, v)
		}
	}
	return rec
}
