package dispatch

import (
	"context"
	"math/rand"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/praeco/internal/common"
)

// RetryPolicy defines extraction retry behavior with exponential backoff
type RetryPolicy struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// NewRetryPolicy creates a retry policy from dispatch configuration
func NewRetryPolicy(config common.DispatchConfig) *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    config.MaxRetries,
		InitialBackoff: config.BackoffBase(),
		MaxBackoff:     config.BackoffCap(),
	}
}

// CalculateBackoff calculates the backoff duration with exponential
// backoff and jitter (±25%)
func (p *RetryPolicy) CalculateBackoff(attempt int) time.Duration {
	backoff := float64(p.InitialBackoff)
	for i := 0; i < attempt; i++ {
		backoff *= 2
		if backoff >= float64(p.MaxBackoff) {
			backoff = float64(p.MaxBackoff)
			break
		}
	}

	jitter := backoff * 0.25 * (rand.Float64()*2 - 1)
	backoff += jitter
	if backoff < 0 {
		backoff = float64(p.InitialBackoff)
	}
	if backoff > float64(p.MaxBackoff) {
		backoff = float64(p.MaxBackoff)
	}
	return time.Duration(backoff)
}

// Execute wraps fn with a retry loop. Only transient failures (transport
// errors, timeouts) are retried; engine availability and disabled-source
// errors fail immediately. Returns the number of attempts made.
func (p *RetryPolicy) Execute(ctx context.Context, logger arbor.ILogger, fn func() error) (int, error) {
	var lastErr error

	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		lastErr = fn()
		if lastErr == nil {
			return attempt + 1, nil
		}

		if !common.IsRetryable(lastErr) {
			logger.Debug().
				Int("attempt", attempt+1).
				Err(lastErr).
				Msg("Non-retryable error, failing immediately")
			return attempt + 1, lastErr
		}

		if attempt < p.MaxAttempts-1 {
			backoff := p.CalculateBackoff(attempt)
			logger.Debug().
				Int("attempt", attempt+1).
				Err(lastErr).
				Dur("backoff", backoff).
				Msg("Retrying after backoff")

			select {
			case <-ctx.Done():
				return attempt + 1, ctx.Err()
			case <-time.After(backoff):
			}
		}
	}

	logger.Warn().
		Int("max_attempts", p.MaxAttempts).
		Err(lastErr).
		Msg("All retry attempts exhausted")
	return p.MaxAttempts, lastErr
}
