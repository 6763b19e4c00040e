package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/okapihq/okapi/internal/core/domain"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{
		MaxRetries:        maxRetries,
		BaseDelay:         0.001,
		MaxDelay:          0.01,
		BackoffMultiplier: 2.0,
	}
}

func TestRetryPolicy_Delay(t *testing.T) {
	p := RetryPolicy{BaseDelay: 1.0, MaxDelay: 4.0, BackoffMultiplier: 2.0}

	assert.Equal(t, time.Second, p.Delay(0))
	assert.Equal(t, 2*time.Second, p.Delay(1))
	assert.Equal(t, 4*time.Second, p.Delay(2))
	// capped at MaxDelay
	assert.Equal(t, 4*time.Second, p.Delay(5))
}

func TestRetryPolicy_DelayJitterBounds(t *testing.T) {
	p := RetryPolicy{BaseDelay: 1.0, MaxDelay: 30.0, BackoffMultiplier: 2.0, Jitter: true}

	for i := 0; i < 20; i++ {
		d := p.Delay(0)
		assert.GreaterOrEqual(t, d, 500*time.Millisecond)
		assert.LessOrEqual(t, d, 1500*time.Millisecond)
	}
}

func TestWithRetry_SucceedsAfterTransientFailure(t *testing.T) {
	calls := 0
	resp, err := withRetry(context.Background(), fastPolicy(2), func(ctx context.Context) (domain.LLMResponse, error) {
		calls++
		if calls < 2 {
			return domain.LLMResponse{}, domain.NewProviderError("p1", "overloaded", true, nil)
		}
		return domain.LLMResponse{Content: "ok"}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
	assert.Equal(t, 2, calls)
}

func TestWithRetry_StopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := withRetry(context.Background(), fastPolicy(3), func(ctx context.Context) (domain.LLMResponse, error) {
		calls++
		return domain.LLMResponse{}, domain.NewProviderError("p1", "invalid api key", false, nil)
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.False(t, domain.IsRetryable(err))
}

func TestWithRetry_ExhaustsBudget(t *testing.T) {
	calls := 0
	wantErr := domain.NewProviderError("p1", "still down", true, nil)
	_, err := withRetry(context.Background(), fastPolicy(2), func(ctx context.Context) (domain.LLMResponse, error) {
		calls++
		return domain.LLMResponse{}, wantErr
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, wantErr)
	assert.Equal(t, 3, calls) // initial call plus two retries
}

func TestWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := withRetry(ctx, fastPolicy(2), func(ctx context.Context) (domain.LLMResponse, error) {
		calls++
		return domain.LLMResponse{}, domain.NewProviderError("p1", "overloaded", true, nil)
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, 1, calls)
}
