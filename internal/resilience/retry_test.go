package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// recordingSleeper captures requested delays without waiting.
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.delays = append(r.delays, d)
	r.mu.Unlock()
	return ctx.Err()
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	var calls int
	err := Do(context.Background(), DefaultRetryConfig(), func(_ context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_SuccessAfterRetry(t *testing.T) {
	var calls int
	sl := &recordingSleeper{}
	cfg := RetryConfig{MaxAttempts: 3, Sleep: sl.Sleep}

	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		if calls < 3 {
			return NewTransientError(errors.New("temporary"), 503)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
	if len(sl.delays) != 2 {
		t.Errorf("expected 2 sleeps, got %d", len(sl.delays))
	}
}

func TestDo_NonTransientError_NoRetry(t *testing.T) {
	var calls int
	err := Do(context.Background(), RetryConfig{MaxAttempts: 5}, func(_ context.Context) error {
		calls++
		return errors.New("bad request")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_ContextCancelled_StopsRetry(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var calls int
	err := Do(ctx, RetryConfig{MaxAttempts: 5, Sleep: SleepContext, InitialBackoff: time.Hour}, func(_ context.Context) error {
		calls++
		cancel()
		return NewTransientError(errors.New("temporary"), 503)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestDo_OnRetryCallback(t *testing.T) {
	var retries []int
	sl := &recordingSleeper{}
	cfg := RetryConfig{
		MaxAttempts: 3,
		Sleep:       sl.Sleep,
		OnRetry:     func(attempt int, _ error) { retries = append(retries, attempt) },
	}
	_ = Do(context.Background(), cfg, func(_ context.Context) error {
		return NewTransientError(errors.New("temporary"), 500)
	})
	if len(retries) != 2 || retries[0] != 1 || retries[1] != 2 {
		t.Errorf("expected retries [1 2], got %v", retries)
	}
}

func TestDoVal_ReturnsValueOnSuccess(t *testing.T) {
	val, err := DoVal(context.Background(), DefaultRetryConfig(), func(_ context.Context) (string, error) {
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if val != "ok" {
		t.Errorf("expected ok, got %q", val)
	}
}

func TestDoVal_ReturnsZeroOnFailure(t *testing.T) {
	sl := &recordingSleeper{}
	val, err := DoVal(context.Background(), RetryConfig{MaxAttempts: 2, Sleep: sl.Sleep}, func(_ context.Context) (int, error) {
		return 42, NewTransientError(errors.New("fail"), 502)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if val != 0 {
		t.Errorf("expected zero value, got %d", val)
	}
}

func TestFromCampaign_BackoffSchedule(t *testing.T) {
	sl := &recordingSleeper{}
	cfg := FromCampaign(3, 1.0)
	cfg.Sleep = sl.Sleep

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return NewGenerationError("llm_timeout", errors.New("deadline"))
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 4 {
		t.Errorf("expected 4 calls, got %d", calls)
	}
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	if len(sl.delays) != len(want) {
		t.Fatalf("expected delays %v, got %v", want, sl.delays)
	}
	for i := range want {
		if sl.delays[i] != want[i] {
			t.Errorf("retry %d: expected %v, got %v", i+1, want[i], sl.delays[i])
		}
	}
}

func TestFromCampaign_RejectedNotRetried(t *testing.T) {
	sl := &recordingSleeper{}
	cfg := FromCampaign(3, 1.0)
	cfg.Sleep = sl.Sleep

	var calls int
	err := Do(context.Background(), cfg, func(_ context.Context) error {
		calls++
		return &RejectedError{Reason: "refusal"}
	})
	if !IsRejected(err) {
		t.Fatalf("expected rejected error, got %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
	if len(sl.delays) != 0 {
		t.Errorf("expected no sleeps, got %v", sl.delays)
	}
}

func TestFromCampaign_ZeroRetries(t *testing.T) {
	cfg := FromCampaign(-1, 1.0)
	if cfg.MaxAttempts != 1 {
		t.Errorf("expected 1 attempt, got %d", cfg.MaxAttempts)
	}
}

func TestExponential(t *testing.T) {
	s := Exponential(500 * time.Millisecond)
	want := []time.Duration{500 * time.Millisecond, time.Second, 2 * time.Second, 4 * time.Second}
	for i, w := range want {
		if got := s(i + 1); got != w {
			t.Errorf("retry %d: expected %v, got %v", i+1, w, got)
		}
	}
	if got := s(0); got != 500*time.Millisecond {
		t.Errorf("retry 0 should clamp to first delay, got %v", got)
	}
}

func TestComputeBackoff_ExponentialGrowth(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     10 * time.Second,
		Multiplier:     2.0,
	})

	expected := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond}
	for i, want := range expected {
		if d := computeBackoff(i, cfg); d != want {
			t.Errorf("attempt %d: expected %v, got %v", i, want, d)
		}
	}
}

func TestComputeBackoff_CapsAtMax(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     5 * time.Second,
		Multiplier:     10.0,
	})

	if delay := computeBackoff(5, cfg); delay > 5*time.Second {
		t.Errorf("expected delay capped at 5s, got %v", delay)
	}
}

func TestComputeBackoff_WithJitter(t *testing.T) {
	cfg := applyDefaults(RetryConfig{
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.5,
	})

	for i := 0; i < 100; i++ {
		d := computeBackoff(0, cfg)
		if d < 500*time.Millisecond || d > 1500*time.Millisecond {
			t.Errorf("delay %v outside expected range [500ms, 1500ms]", d)
		}
	}
}

func TestSleepContext_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := SleepContext(ctx, time.Hour); err == nil {
		t.Error("expected context error")
	}
}

func TestRetryLogger(t *testing.T) {
	t.Parallel()
	logger := RetryLogger("anthropic", "create_message")
	logger(1, errors.New("test error"))
}
