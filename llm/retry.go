package llm

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig bounds the exponential back-off retry budget for transient
// LLM failures (SPEC_FULL §4.2). Zero value uses sensible defaults.
type RetryConfig struct {
	MaxRetries int
}

// withRetry runs fn, retrying on any error it returns up to cfg.MaxRetries
// times with exponential back-off (2^n seconds), except errors fn wraps in
// backoff.Permanent, which stop retrying immediately. The loop is
// cenkalti/backoff/v4's own iterative implementation — no recursive retry
// helper exists anywhere in this package, per SPEC_FULL.md §9.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.Multiplier = 2
	bo.MaxElapsedTime = 0 // bounded by MaxRetries below, not wall-clock

	policy := backoff.WithContext(backoff.WithMaxRetries(bo, uint64(maxRetries)), ctx)
	return backoff.Retry(fn, policy)
}
