package llm

import (
	"context"
	"math"
	"math/rand"
	"time"

	"github.com/okapihq/okapi/internal/core/domain"
)

// RetryPolicy configures per-adapter retry with exponential backoff.
// The router handles failover across providers; this handles transient
// failures within one provider.
type RetryPolicy struct {
	MaxRetries        int     // retry attempts, not counting the initial call
	BaseDelay         float64 // initial delay in seconds
	MaxDelay          float64 // cap on the delay between retries, seconds
	BackoffMultiplier float64
	Jitter            bool
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries:        2,
		BaseDelay:         1.0,
		MaxDelay:          30.0,
		BackoffMultiplier: 2.0,
		Jitter:            true,
	}
}

// Delay computes the backoff for attempt n (0-indexed).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	delay := math.Min(p.BaseDelay*math.Pow(p.BackoffMultiplier, float64(attempt)), p.MaxDelay)
	if p.Jitter {
		delay = delay * (0.5 + rand.Float64())
	}
	return time.Duration(delay * float64(time.Second))
}

// withRetry executes fn, retrying only errors classified retryable.
func withRetry(ctx context.Context, policy RetryPolicy, fn func(ctx context.Context) (domain.LLMResponse, error)) (domain.LLMResponse, error) {
	resp, err := fn(ctx)
	if err == nil {
		return resp, nil
	}

	for attempt := 0; attempt < policy.MaxRetries; attempt++ {
		if !domain.IsRetryable(err) {
			return domain.LLMResponse{}, err
		}

		select {
		case <-ctx.Done():
			return domain.LLMResponse{}, ctx.Err()
		case <-time.After(policy.Delay(attempt)):
		}

		resp, err = fn(ctx)
		if err == nil {
			return resp, nil
		}
	}

	return domain.LLMResponse{}, err
}
