// Package provider holds what the music-service adapters share: a rate
// limit on outgoing calls and a bounded retry of transient failures.
package provider

import (
	"context"
	"log/slog"
	"time"

	"github.com/avast/retry-go"
	"golang.org/x/time/rate"
)

// Throttle spaces calls to a remote API and retries the ones that fail
// transiently.
type Throttle struct {
	limiter  *rate.Limiter
	attempts uint
	delay    time.Duration
	logger   *slog.Logger
}

// NewThrottle allows one call per interval and up to attempts tries per call.
func NewThrottle(interval time.Duration, attempts uint, logger *slog.Logger) *Throttle {
	if attempts == 0 {
		attempts = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Throttle{
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
		attempts: attempts,
		delay:    interval,
		logger:   logger,
	}
}

// Do calls fn until it succeeds, fails with an error retryable rejects, or
// the attempts run out. The last error is returned.
func (t *Throttle) Do(ctx context.Context, what string, retryable func(error) bool, fn func() error) error {
	return retry.Do(
		func() error {
			if err := t.limiter.Wait(ctx); err != nil {
				return err
			}
			return fn()
		},
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil || !retryable(err) {
				return false
			}
			t.logger.Warn("remote call failed, retrying", "call", what, "error", err)
			return true
		}),
		retry.Attempts(t.attempts),
		retry.Delay(t.delay),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
}
