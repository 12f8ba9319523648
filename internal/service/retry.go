package service

import (
	"context"
	"math/rand"
	"time"
)

// RetryConfig bounds how a single pipeline step is retried.
type RetryConfig struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// DefaultRetryConfig gives each step up to 3 attempts with exponential
// backoff starting at 500ms.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:  3,
		BaseDelay: 500 * time.Millisecond,
		MaxDelay:  10 * time.Second,
	}
}

// withRetry runs fn until it succeeds, returns a non-retryable error,
// or exhausts the attempt budget. Between attempts it sleeps an
// exponentially growing, jittered delay, honoring context cancellation.
// A nil retryable classifier treats every error as permanent: nothing
// is retried.
func withRetry(ctx context.Context, cfg RetryConfig, retryable func(error) bool, fn func() error) error {
	if cfg.Attempts <= 0 {
		cfg = DefaultRetryConfig()
	}

	var err error
	delay := cfg.BaseDelay
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if retryable == nil || !retryable(err) {
			return err
		}
		if attempt >= cfg.Attempts {
			return err
		}

		sleep := delay
		if sleep > 0 {
			sleep = time.Duration(rand.Int63n(int64(sleep))) + sleep/2
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(sleep):
		}

		delay *= 2
		if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
			delay = cfg.MaxDelay
		}
	}
}
