package resilience

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	Jitter       float64 // 0-1, adds randomness
}

// DefaultRetryConfig returns sensible defaults
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// Retry executes fn with exponential backoff
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	delay := cfg.InitialDelay

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
		}

		if attempt < cfg.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(addJitter(delay, cfg.Jitter)):
			}
			delay = nextDelay(delay, cfg)
		}
	}
	return lastErr
}

func nextDelay(current time.Duration, cfg RetryConfig) time.Duration {
	next := time.Duration(float64(current) * cfg.Multiplier)
	if next > cfg.MaxDelay {
		return cfg.MaxDelay
	}
	return next
}

func addJitter(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	delta := float64(d) * jitter
	return d + time.Duration(rand.Float64()*delta*2-delta)
}

// NonRetryable wraps an error to signal WithRetry that no further attempts
// should be made, bypassing any remaining budget.
type NonRetryable struct {
	Err error
}

func (e *NonRetryable) Error() string { return e.Err.Error() }
func (e *NonRetryable) Unwrap() error { return e.Err }

// MarkNonRetryable wraps err so WithRetry stops immediately instead of
// consuming the remaining attempt budget.
func MarkNonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryable{Err: err}
}

// WithRetry runs op up to attempts times. Delay before attempt k (1-indexed)
// is min(baseDelay*2^(k-1), maxDelay) plus up to 30% jitter. Cancellation is
// checked between attempts. An error wrapped with MarkNonRetryable aborts
// immediately without consuming further attempts.
func WithRetry(ctx context.Context, attempts int, baseDelay, maxDelay time.Duration, op func(ctx context.Context) error) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for k := 1; k <= attempts; k++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := op(ctx)
		if err == nil {
			return nil
		}

		var nonRetryable *NonRetryable
		if asNonRetryable(err, &nonRetryable) {
			return nonRetryable.Err
		}

		lastErr = err
		if k == attempts {
			break
		}

		delay := backoffDelay(k, baseDelay, maxDelay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return lastErr
}

// backoffDelay computes min(baseDelay*2^(k-1), maxDelay) + uniform(0, 0.3*that).
func backoffDelay(k int, baseDelay, maxDelay time.Duration) time.Duration {
	raw := float64(baseDelay) * math.Pow(2, float64(k-1))
	if raw > float64(maxDelay) {
		raw = float64(maxDelay)
	}
	jittered := raw + rand.Float64()*0.3*raw
	return time.Duration(jittered)
}

func asNonRetryable(err error, target **NonRetryable) bool {
	for err != nil {
		if nr, ok := err.(*NonRetryable); ok {
			*target = nr
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}
