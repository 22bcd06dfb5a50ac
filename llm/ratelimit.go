package llm

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter throttles outgoing LLM calls to a fixed rate, independent of
// whatever per-provider limits the upstream API enforces. It wraps a
// Provider so callers get the same interface back with waiting built in.
type RateLimiter struct {
	Provider
	limiter *rate.Limiter
}

// NewRateLimiter wraps provider with a token-bucket limiter allowing
// requestsPerSecond sustained calls and burst simultaneous calls.
func NewRateLimiter(provider Provider, requestsPerSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		Provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Chat waits for a rate limit token before delegating to the wrapped
// Provider. It returns ctx.Err() if the wait is cancelled before a token
// becomes available.
func (r *RateLimiter) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.Chat(ctx, req)
}

// Embed waits for a rate limit token before delegating to the wrapped
// Provider.
func (r *RateLimiter) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return r.Provider.Embed(ctx, texts)
}
