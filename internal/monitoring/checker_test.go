package monitoring

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/sells-group/outreach-cli/internal/config"
	"github.com/sells-group/outreach-cli/internal/model"
)

func TestChecker_Check(t *testing.T) {
	st := &fakeLister{campaigns: []model.Campaign{{ID: "a", Status: model.RunCostCapReached}}}
	cfg := config.MonitoringConfig{LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(st), NewAlerter(cfg), cfg)

	alerts := checker.Check(context.Background())
	assert.Len(t, alerts, 1)
	assert.Equal(t, AlertCostCap, alerts[0].Type)
}

func TestChecker_RunStopsOnCancel(t *testing.T) {
	cfg := config.MonitoringConfig{CheckIntervalSecs: 1, LookbackWindowHours: 24}
	checker := NewChecker(NewCollector(&fakeLister{}), NewAlerter(cfg), cfg)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		checker.Run(ctx)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Checker.Run did not stop after context cancellation")
	}
}
