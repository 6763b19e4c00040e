package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseThinking_ToolCall(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseThinking("Thought: I need to calculate this\nAction: calculator\nParameters: {\"expr\": \"2+2\"}")

	assert.Equal(t, "I need to calculate this", parsed.Thought)
	assert.False(t, parsed.HasFinal)
	require.NotNil(t, parsed.Action)
	assert.Equal(t, "calculator", parsed.Action.Name)
	assert.Equal(t, "2+2", parsed.Action.Parameters["expr"])
	assert.NotEmpty(t, parsed.Action.CallID)
	assert.Empty(t, parsed.ParseWarning)
}

func TestParseThinking_FinalAnswer(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseThinking("Thought: this is trivial\nFinal Answer: The capital of France is Paris.")

	assert.True(t, parsed.HasFinal)
	assert.Equal(t, "The capital of France is Paris.", parsed.FinalAnswer)
	assert.Equal(t, "this is trivial", parsed.Thought)
	assert.Nil(t, parsed.Action)
}

func TestParseThinking_FinalAnswerWinsOverAction(t *testing.T) {
	p := NewResponseParser()

	// A confused model emitting both markers terminates the loop.
	parsed := p.ParseThinking("Action: calculator\nFinal Answer: 4")

	assert.True(t, parsed.HasFinal)
	assert.Equal(t, "4", parsed.FinalAnswer)
	assert.Nil(t, parsed.Action)
}

func TestParseThinking_FreeformTextBecomesThought(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseThinking("  I am not sure what to do here.  ")

	assert.False(t, parsed.HasFinal)
	assert.Nil(t, parsed.Action)
	assert.Equal(t, "I am not sure what to do here.", parsed.Thought)
}

func TestParseThinking_NestedParameters(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseThinking(`Thought: nested payload
Action: search
Parameters: {"query": "go testing", "filter": {"lang": "en", "max": 3}}`)

	require.NotNil(t, parsed.Action)
	assert.Empty(t, parsed.ParseWarning)
	filter, ok := parsed.Action.Parameters["filter"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "en", filter["lang"])
}

func TestParseThinking_BracesInsideStrings(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseThinking(`Action: echo
Parameters: {"text": "a } inside a string {"}`)

	require.NotNil(t, parsed.Action)
	assert.Empty(t, parsed.ParseWarning)
	assert.Equal(t, "a } inside a string {", parsed.Action.Parameters["text"])
}

func TestParseThinking_MalformedParametersDegrade(t *testing.T) {
	p := NewResponseParser()

	tests := []struct {
		name string
		text string
	}{
		{"invalid json", "Action: calculator\nParameters: {expr: 2+2}"},
		{"unterminated", `Action: calculator\nParameters: {"expr": "2+2"`},
		{"no object", "Action: calculator\nParameters: not json at all"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			parsed := p.ParseThinking(tt.text)
			require.NotNil(t, parsed.Action)
			assert.Equal(t, "calculator", parsed.Action.Name)
			assert.Empty(t, parsed.Action.Parameters)
			assert.NotEmpty(t, parsed.ParseWarning)
		})
	}
}

func TestParseThinking_ActionWithoutParameters(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseThinking("Thought: just check the time\nAction: clock")

	require.NotNil(t, parsed.Action)
	assert.Equal(t, "clock", parsed.Action.Name)
	assert.Empty(t, parsed.Action.Parameters)
	assert.Empty(t, parsed.ParseWarning)
}

func TestParseThinking_CaseInsensitiveMarkers(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseThinking("thought: lowercase works\naction: calculator\nparameters: {\"expr\": \"1\"}")

	assert.Equal(t, "lowercase works", parsed.Thought)
	require.NotNil(t, parsed.Action)
	assert.Equal(t, "calculator", parsed.Action.Name)
}

func TestParseObserving_FinalAnswer(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseObserving("Final Answer: 4")

	assert.True(t, parsed.Complete)
	assert.Equal(t, "4", parsed.FinalAnswer)
}

func TestParseObserving_MultilineFinalAnswer(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseObserving("Final Answer: line one\nline two")

	assert.True(t, parsed.Complete)
	assert.Equal(t, "line one\nline two", parsed.FinalAnswer)
}

func TestParseObserving_NextThought(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseObserving("Thought: the result is wrong, try another tool")

	assert.False(t, parsed.Complete)
	assert.Equal(t, "the result is wrong, try another tool", parsed.NextThought)
}

func TestParseObserving_FreeformContinuation(t *testing.T) {
	p := NewResponseParser()

	parsed := p.ParseObserving("CONTINUE need more data")

	assert.False(t, parsed.Complete)
	assert.Equal(t, "need more data", parsed.NextThought)
}
