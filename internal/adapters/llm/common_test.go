package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("hi"))
	assert.Equal(t, 26, estimateTokens(string(make([]byte, 100))))
}

func TestSupportsModel(t *testing.T) {
	assert.True(t, supportsModel(nil, "anything"))
	assert.True(t, supportsModel([]string{"gpt-4o-mini"}, "gpt-4o-mini"))
	assert.False(t, supportsModel([]string{"gpt-4o-mini"}, "other"))
}
