package ai

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps test backoffs in the microsecond range.
var fastRetry = RetryConfig{
	MaxRetries:    3,
	InitialDelay:  time.Microsecond,
	MaxDelay:      10 * time.Microsecond,
	BackoffFactor: 2.0,
}

func TestRetry_SucceedsAfterTransientFailures(t *testing.T) {
	calls := 0
	err := fastRetry.Retry(context.Background(), 0, func() error {
		calls++
		if calls < 3 {
			return NewRecoverableError(errors.New("rate limited"), "transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	err := fastRetry.Retry(context.Background(), 2, func() error {
		calls++
		return NewRecoverableError(errors.New("still down"), "transient")
	})
	if !IsRecoverable(err) {
		t.Fatalf("Retry = %v, want recoverable", err)
	}
	// First call plus two retries.
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetry_FatalFailsFast(t *testing.T) {
	calls := 0
	err := fastRetry.Retry(context.Background(), 0, func() error {
		calls++
		return NewFatalError(errors.New("bad api key"), "rejected")
	})
	if !IsFatal(err) {
		t.Fatalf("Retry = %v, want fatal", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetry_UnclassifiedErrorsAreRetried(t *testing.T) {
	calls := 0
	err := fastRetry.Retry(context.Background(), 0, func() error {
		calls++
		if calls == 1 {
			return errors.New("connection reset")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry = %v, want nil", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetry_CanceledContextStopsBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	slow := fastRetry
	slow.InitialDelay = time.Hour

	calls := 0
	err := slow.Retry(ctx, 0, func() error {
		calls++
		return NewRecoverableError(errors.New("down"), "transient")
	})
	if !IsCanceled(err) {
		t.Fatalf("Retry = %v, want canceled", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDelay_BacksOffAndCaps(t *testing.T) {
	cfg := RetryConfig{
		InitialDelay:  100 * time.Millisecond,
		MaxDelay:      time.Second,
		BackoffFactor: 2.0,
	}

	if d := cfg.Delay(0); d != 100*time.Millisecond {
		t.Errorf("Delay(0) = %v, want 100ms", d)
	}
	if d := cfg.Delay(2); d != 400*time.Millisecond {
		t.Errorf("Delay(2) = %v, want 400ms", d)
	}
	if d := cfg.Delay(10); d != time.Second {
		t.Errorf("Delay(10) = %v, want the cap", d)
	}
}

func TestDelay_JitterStaysBounded(t *testing.T) {
	cfg := DefaultRetryConfig
	for i := 0; i < 50; i++ {
		d := cfg.Delay(1)
		lo := 180 * time.Millisecond
		hi := 220 * time.Millisecond
		if d < lo || d > hi {
			t.Fatalf("Delay(1) = %v, want within [%v, %v]", d, lo, hi)
		}
	}
}
