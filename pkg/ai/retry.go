package ai

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"
)

// Delay returns the backoff delay before retry attempt n (0-based), with
// jitter applied and the result capped at MaxDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	d := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	if limit := float64(c.MaxDelay); limit > 0 && d > limit {
		d = limit
	}
	if c.JitterPercent > 0 {
		d += d * float64(c.JitterPercent) * (rand.Float64()*2 - 1)
	}
	return time.Duration(d)
}

// Retry runs fn until it succeeds, fails fatally, or the retry budget runs
// out. maxRetries is the number of re-attempts after the first call; zero or
// negative selects the config's MaxRetries. Errors not classified through the
// taxonomy are treated as recoverable; fatal and canceled errors return
// immediately.
func (c RetryConfig) Retry(ctx context.Context, maxRetries int, fn func() error) error {
	if maxRetries <= 0 {
		maxRetries = c.MaxRetries
	}
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if IsFatal(err) || IsCanceled(err) {
			return err
		}
		if attempt >= maxRetries {
			return err
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("%v: %w", err, ErrCanceled)
		case <-time.After(c.Delay(attempt)):
		}
	}
}
