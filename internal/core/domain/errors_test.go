package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProviderErrorFromStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{400, false},
		{401, false},
		{403, false},
		{404, false},
		{422, false},
		{408, true},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
		{418, true}, // unknown codes default to retryable
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("status %d", tt.status), func(t *testing.T) {
			err := ProviderErrorFromStatus("openai", tt.status, "oops", nil)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, ErrorKindProvider, err.Kind)
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestAgentError_ErrorString(t *testing.T) {
	err := ProviderErrorFromStatus("openai", 429, "rate limited", errors.New("underlying"))
	msg := err.Error()
	assert.Contains(t, msg, "provider")
	assert.Contains(t, msg, "[openai]")
	assert.Contains(t, msg, "rate limited")
	assert.Contains(t, msg, "status=429")
	assert.Contains(t, msg, "underlying")
}

func TestAgentError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := NewProviderError("p1", "wrapped", true, cause)
	assert.ErrorIs(t, err, cause)
}

func TestIsRetryable(t *testing.T) {
	assert.False(t, IsRetryable(nil))
	assert.True(t, IsRetryable(NewProviderError("p", "x", true, nil)))
	assert.False(t, IsRetryable(NewProviderError("p", "x", false, nil)))

	// Wrapped AgentError keeps its classification.
	wrapped := fmt.Errorf("calling provider: %w", NewProviderError("p", "x", false, nil))
	assert.False(t, IsRetryable(wrapped))

	assert.False(t, IsRetryable(context.Canceled))
	assert.True(t, IsRetryable(context.DeadlineExceeded))

	assert.True(t, IsRetryable(errors.New("dial tcp: connection refused")))
	assert.True(t, IsRetryable(errors.New("429 Too Many Requests: rate limit exceeded")))
	assert.False(t, IsRetryable(errors.New("invalid api key")))
}
