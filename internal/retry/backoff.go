package retry

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Config configures exponential backoff between attempts.
type Config struct {
	BaseDelay  time.Duration `json:"base_delay"` // delay before the first retry
	MaxDelay   time.Duration `json:"max_delay"`  // ceiling on any single delay
	Multiplier float64       `json:"multiplier"` // exponential growth factor
	Jitter     bool          `json:"jitter"`     // randomize to avoid thundering herd
}

// DefaultConfig returns sensible backoff defaults.
func DefaultConfig() Config {
	return Config{
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
		Jitter:     true,
	}
}

// LLMConfig returns backoff tuned for LLM provider calls, which tolerate
// longer waits and punish aggressive re-submission with rate limits.
func LLMConfig() Config {
	return Config{
		BaseDelay:  2 * time.Second,
		MaxDelay:   60 * time.Second,
		Multiplier: 2.5,
		Jitter:     true,
	}
}

// Delay returns the backoff delay for the given zero-based attempt number.
func (c Config) Delay(attempt int) time.Duration {
	delay := float64(c.BaseDelay) * math.Pow(c.Multiplier, float64(attempt))
	if delay > float64(c.MaxDelay) {
		delay = float64(c.MaxDelay)
	}
	if c.Jitter {
		jitterRange := delay * 0.1
		delay += (rand.Float64() - 0.5) * 2 * jitterRange
		if delay < 0 {
			delay = float64(c.BaseDelay)
		}
	}
	return time.Duration(delay)
}

// Wait sleeps for the attempt's backoff delay, cutting short when the context
// is cancelled. It returns the context error in that case.
func (c Config) Wait(ctx context.Context, attempt int) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.Delay(attempt)):
		return nil
	}
}
