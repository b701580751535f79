// Package monitoring summarizes recent campaign runs and raises alerts when
// failure rate or spend cross configured thresholds.
package monitoring

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/outreach-cli/internal/model"
	"github.com/sells-group/outreach-cli/internal/store"
)

// MetricsSnapshot holds a point-in-time view of campaign health.
type MetricsSnapshot struct {
	CampaignsTotal     int     `json:"campaigns_total"`
	CampaignsCompleted int     `json:"campaigns_completed"`
	CampaignsFailed    int     `json:"campaigns_failed"`
	CampaignsCostCap   int     `json:"campaigns_cost_cap_reached"`
	CampaignsRunning   int     `json:"campaigns_running"`
	FailRate           float64 `json:"fail_rate"`
	Leads              int     `json:"leads"`
	SpendEUR           float64 `json:"spend_eur"`

	LookbackHours int       `json:"lookback_hours"`
	CollectedAt   time.Time `json:"collected_at"`
}

// CampaignLister is the store subset the collector reads.
type CampaignLister interface {
	ListCampaigns(ctx context.Context, filter store.CampaignFilter) ([]model.Campaign, error)
}

// Collector gathers metrics from the store.
type Collector struct {
	store CampaignLister
	now   func() time.Time
}

// NewCollector creates a new metrics collector.
func NewCollector(st CampaignLister) *Collector {
	return &Collector{store: st, now: time.Now}
}

// Collect gathers a snapshot over the given lookback window. Spend and lead
// counts come from each campaign's run summary.
func (c *Collector) Collect(ctx context.Context, lookbackHours int) (*MetricsSnapshot, error) {
	now := c.now().UTC()
	snap := &MetricsSnapshot{LookbackHours: lookbackHours, CollectedAt: now}

	campaigns, err := c.store.ListCampaigns(ctx, store.CampaignFilter{
		CreatedAfter: now.Add(-time.Duration(lookbackHours) * time.Hour),
		Limit:        10000,
	})
	if err != nil {
		return nil, eris.Wrap(err, "monitoring: list campaigns")
	}

	snap.CampaignsTotal = len(campaigns)
	for _, cp := range campaigns {
		switch cp.Status {
		case model.RunCompleted:
			snap.CampaignsCompleted++
		case model.RunFailed:
			snap.CampaignsFailed++
		case model.RunCostCapReached:
			snap.CampaignsCostCap++
		case model.RunRunning:
			snap.CampaignsRunning++
		}
		snap.Leads += int(number(cp.Summary, "leads"))
		snap.SpendEUR += number(cp.Summary, "run", "ledger", "charged_eur")
	}

	finished := snap.CampaignsCompleted + snap.CampaignsFailed + snap.CampaignsCostCap
	if finished > 0 {
		snap.FailRate = float64(snap.CampaignsFailed) / float64(finished)
	}
	return snap, nil
}

// number walks a decoded JSON summary and returns the numeric leaf, or 0.
func number(m map[string]any, path ...string) float64 {
	var cur any = m
	for _, p := range path {
		obj, ok := cur.(map[string]any)
		if !ok {
			return 0
		}
		cur = obj[p]
	}
	switch v := cur.(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
