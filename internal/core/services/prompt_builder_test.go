package services

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/okapihq/okapi/internal/core/domain"
)

func TestBuildThinking_IncludesCatalogAndMessage(t *testing.T) {
	b := NewPromptBuilder()

	prompt := b.BuildThinking(nil, "What time is it?", "Available Tools:\n- clock: current time\n")

	assert.Contains(t, prompt, "Thought:")
	assert.Contains(t, prompt, "Final Answer:")
	assert.Contains(t, prompt, "- clock: current time")
	assert.Contains(t, prompt, "User: What time is it?")
}

func TestBuildThinking_IncludesHistory(t *testing.T) {
	b := NewPromptBuilder()
	state := domain.NewReasoningState("conv-1", 10)
	state.CurrentThought = "I should check the weather"
	state.Observations = []domain.ToolResult{
		{ToolName: "weather", Success: true},
		{ToolName: "calculator", Success: false},
	}

	prompt := b.BuildThinking(state, "continue", "")

	assert.Contains(t, prompt, "1. tool weather (ok)")
	assert.Contains(t, prompt, "2. tool calculator (failed)")
	assert.Contains(t, prompt, "I should check the weather")
}

func TestBuildObserving(t *testing.T) {
	b := NewPromptBuilder()
	state := domain.NewReasoningState("conv-1", 10)
	state.CurrentThought = "compute the sum"

	prompt := b.BuildObserving(state, "Tool calculator succeeded in 2ms: 4")

	assert.Contains(t, prompt, "Observation: Tool calculator succeeded in 2ms: 4")
	assert.Contains(t, prompt, "compute the sum")
	assert.Contains(t, prompt, "Final Answer:")
}

func TestBuildErrorRecovery(t *testing.T) {
	b := NewPromptBuilder()

	prompt := b.BuildErrorRecovery(nil, "provider unavailable")

	assert.Contains(t, prompt, "The previous step failed: provider unavailable")
	assert.Contains(t, prompt, "Recover gracefully")
}

func TestAdjustForBackend(t *testing.T) {
	b := NewPromptBuilder()
	base := "do the thing"

	assert.Equal(t, base, b.AdjustForBackend(base, "openai"))
	assert.Equal(t, base, b.AdjustForBackend(base, ""))

	ollama := b.AdjustForBackend(base, "ollama")
	assert.True(t, strings.HasPrefix(ollama, base))
	assert.Contains(t, ollama, "Remember:")

	gemini := b.AdjustForBackend(base, "gemini")
	assert.True(t, strings.HasSuffix(gemini, base))
	assert.Contains(t, gemini, "Follow the response format strictly.")
}
