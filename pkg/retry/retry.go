// Package retry wraps retry-go with exponential backoff. It is used only for
// establishing backend connections at startup; processor calls are never retried.
package retry

import (
	"context"
	"time"

	"github.com/avast/retry-go/v4"
)

// Config holds retry configuration
type Config struct {
	MaxAttempts  uint
	InitialDelay time.Duration
	MaxDelay     time.Duration

	// OnRetry is called after a failed attempt. n is zero-based.
	OnRetry func(n uint, err error)
}

// DefaultConfig returns default retry configuration
func DefaultConfig() Config {
	return Config{
		MaxAttempts:  5,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
	}
}

// Do executes fn with exponential backoff until it succeeds, attempts run
// out, or ctx is done. The last error is returned.
func Do(ctx context.Context, cfg Config, fn func() error) error {
	onRetry := cfg.OnRetry
	if onRetry == nil {
		onRetry = func(uint, error) {}
	}
	return retry.Do(
		fn,
		retry.Context(ctx),
		retry.Attempts(cfg.MaxAttempts),
		retry.Delay(cfg.InitialDelay),
		retry.MaxDelay(cfg.MaxDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(onRetry),
	)
}

// DoWithResult is Do for functions that produce a value.
func DoWithResult[T any](ctx context.Context, cfg Config, fn func() (T, error)) (T, error) {
	var result T
	err := Do(ctx, cfg, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}
