// Package retry provides bounded backoff retry logic.
//
// Two backoff shapes are supported: Linear (delay = BaseDelay × attempt,
// used for relay reconnects) and Exponential (delay = BaseDelay × 2^attempt,
// used for upstream HTTP fetches).
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	werrors "github.com/nearobot/wallet/internal/errors"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	Linear Backoff = iota
	Exponential
)

// Config holds retry configuration.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Backoff     Backoff
	Jitter      bool
}

// DefaultConfig returns sensible defaults for HTTP-style retries.
func DefaultConfig() Config {
	return Config{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Backoff:     Exponential,
		Jitter:      true,
	}
}

// Delay returns the wait before retrying after attempt n (1-based).
func (c Config) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	var d time.Duration
	switch c.Backoff {
	case Linear:
		d = time.Duration(attempt) * c.BaseDelay
	default:
		d = time.Duration(float64(c.BaseDelay) * math.Pow(2, float64(attempt-1)))
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	return d
}

// Do executes fn with backoff. Only retries if the error is retryable.
func Do(ctx context.Context, cfg Config, fn func(ctx context.Context) error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !werrors.IsRetryable(lastErr) {
			return lastErr
		}
		if attempt == cfg.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(cfg.Delay(attempt)):
		}
	}
	return lastErr
}
