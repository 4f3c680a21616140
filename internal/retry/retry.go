// Package retry runs an operation under exponential backoff.
package retry

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"time"

	"github.com/pushgate/internal/logging"
)

// ErrGiveUp can be wrapped by a RetryFunc to stop retrying at once
var ErrGiveUp = stderrors.New("retry: give up")

// RetryConfig configures retry behavior
type RetryConfig struct {
	MaxAttempts  int           // 0 means bounded only by MaxElapsed
	InitialDelay time.Duration // delay before the second attempt
	MaxDelay     time.Duration // cap for a single delay
	Multiplier   float64       // growth factor per attempt
	MaxElapsed   time.Duration // 0 means bounded only by MaxAttempts
}

// DefaultRetryConfig returns a default retry configuration
// Pattern: 1s, 2s, 4s, 8s, max 60s
func DefaultRetryConfig() *RetryConfig {
	return &RetryConfig{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
	}
}

// LockWaitConfig polls quickly and gives up once wait has elapsed.
// A zero wait makes exactly one attempt.
func LockWaitConfig(wait time.Duration) *RetryConfig {
	cfg := &RetryConfig{
		InitialDelay: 10 * time.Millisecond,
		MaxDelay:     250 * time.Millisecond,
		Multiplier:   2.0,
		MaxElapsed:   wait,
	}
	if wait <= 0 {
		cfg.MaxAttempts = 1
	}
	return cfg
}

// RetryResult contains information about the retry operation
type RetryResult struct {
	Attempts      int           `json:"attempts"`
	Success       bool          `json:"success"`
	TotalDuration time.Duration `json:"totalDuration"`
	LastError     error         `json:"lastError,omitempty"`
}

// RetryFunc is a function that can be retried
type RetryFunc func(ctx context.Context, attempt int) error

// WithExponentialBackoff executes fn until it succeeds, returns ErrGiveUp,
// the context ends, or the attempt/elapsed budget runs out.
func WithExponentialBackoff(ctx context.Context, config *RetryConfig, fn RetryFunc) *RetryResult {
	logger := logging.FromContext(ctx)
	start := time.Now()
	result := &RetryResult{}

	for attempt := 1; ; attempt++ {
		result.Attempts = attempt

		err := fn(ctx, attempt)
		if err == nil {
			result.Success = true
			result.TotalDuration = time.Since(start)
			if attempt > 1 {
				logger.Debug().Int("attempts", attempt).Dur("totalDuration", result.TotalDuration).
					Msg("operation succeeded after retry")
			}
			return result
		}
		result.LastError = err

		if stderrors.Is(err, ErrGiveUp) {
			break
		}
		if config.MaxAttempts > 0 && attempt >= config.MaxAttempts {
			break
		}
		if ctx.Err() != nil {
			result.LastError = ctx.Err()
			break
		}

		delay := calculateDelay(config, attempt)
		if config.MaxElapsed > 0 {
			remaining := config.MaxElapsed - time.Since(start)
			if remaining <= 0 {
				break
			}
			if delay > remaining {
				delay = remaining
			}
		}

		logger.Debug().Int("attempt", attempt).Dur("delay", delay).Err(err).
			Msg("operation failed, retrying with exponential backoff")

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result
		}
	}

	result.TotalDuration = time.Since(start)
	return result
}

// calculateDelay returns initialDelay * multiplier^(attempt-1), capped at MaxDelay
func calculateDelay(config *RetryConfig, attempt int) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.Multiplier, float64(attempt-1))
	if config.MaxDelay > 0 && delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}

// WithRetry is a simpler retry function that uses default configuration
func WithRetry(ctx context.Context, fn RetryFunc) error {
	result := WithExponentialBackoff(ctx, DefaultRetryConfig(), fn)
	if !result.Success {
		return fmt.Errorf("operation failed after %d attempts: %w", result.Attempts, result.LastError)
	}
	return nil
}
