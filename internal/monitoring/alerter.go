package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/outreach-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertFailureRate AlertType = "campaign_failure_rate"
	AlertCostCap     AlertType = "campaign_cost_cap"
	AlertSpend       AlertType = "campaign_spend"
)

// minFinished is the number of finished campaigns needed before the failure
// rate is judged.
const minFinished = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.CampaignsCompleted + snap.CampaignsFailed + snap.CampaignsCostCap
	if finished >= minFinished && a.cfg.FailureRateThreshold > 0 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertFailureRate,
			Severity: "high",
			Message: fmt.Sprintf("Campaign failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100, snap.CampaignsFailed, finished, snap.LookbackHours),
			Details: map[string]any{
				"fail_rate": snap.FailRate,
				"threshold": a.cfg.FailureRateThreshold,
				"failed":    snap.CampaignsFailed,
				"finished":  finished,
			},
			Timestamp: now,
		})
	}

	if snap.CampaignsCostCap > 0 {
		alerts = append(alerts, Alert{
			Type:     AlertCostCap,
			Severity: "medium",
			Message:  fmt.Sprintf("%d campaign(s) stopped at the cost cap in last %dh", snap.CampaignsCostCap, snap.LookbackHours),
			Details: map[string]any{
				"cost_cap_reached": snap.CampaignsCostCap,
				"campaigns_total":  snap.CampaignsTotal,
			},
			Timestamp: now,
		})
	}

	if a.cfg.SpendThresholdEUR > 0 && snap.SpendEUR > a.cfg.SpendThresholdEUR {
		alerts = append(alerts, Alert{
			Type:     AlertSpend,
			Severity: "high",
			Message: fmt.Sprintf("Generation spend EUR %.2f exceeds threshold EUR %.2f in last %dh",
				snap.SpendEUR, a.cfg.SpendThresholdEUR, snap.LookbackHours),
			Details: map[string]any{
				"spend_eur":     snap.SpendEUR,
				"threshold_eur": a.cfg.SpendThresholdEUR,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert", zap.String("type", string(alert.Type)), zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
