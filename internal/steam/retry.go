package steam

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy is a reusable retry schedule, independent of any call site.
// Transient errors use a fixed pause; rate limits escalate linearly with the
// attempt number. Every delay gets a small randomized jitter so concurrent
// workers do not retry in lockstep.
type RetryPolicy struct {
	MaxAttempts       int           // attempts for transient network/parse errors
	TransientPause    time.Duration // fixed pause between transient retries
	RateLimitAttempts int           // attempts before surfacing rate_limited
	RateLimitWait     time.Duration // base 429 wait, multiplied by attempt number
	JitterFraction    float64       // max extra delay as a fraction of the base
}

// DefaultRetryPolicy mirrors the store's observed tolerance: three transient
// attempts 5s apart, three 429 attempts at 30s/60s/90s.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		TransientPause:    5 * time.Second,
		RateLimitAttempts: 3,
		RateLimitWait:     30 * time.Second,
		JitterFraction:    0.2,
	}
}

// TransientDelay returns the wait before the next transient retry.
func (p RetryPolicy) TransientDelay() time.Duration {
	return p.jittered(p.TransientPause)
}

// RateLimitDelay returns the wait after the given 1-based rate limited attempt.
func (p RetryPolicy) RateLimitDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	return p.jittered(time.Duration(attempt) * p.RateLimitWait)
}

func (p RetryPolicy) jittered(base time.Duration) time.Duration {
	if base <= 0 || p.JitterFraction <= 0 {
		return base
	}
	jitter := time.Duration(rand.Float64() * p.JitterFraction * float64(base))
	return base + jitter
}

// sleep waits for the given delay or until the context is cancelled,
// whichever comes first. Returns the context error on cancellation.
func sleep(ctx context.Context, delay time.Duration) error {
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
