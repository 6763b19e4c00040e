package services

import (
	"fmt"
	"strings"

	"github.com/okapihq/okapi/internal/core/domain"
)

// PromptBuilder renders phase-specific prompts. It is stateless; the
// per-backend adjustment pass is purely cosmetic and never changes the
// protocol the parser relies on.
type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder { return &PromptBuilder{} }

const protocolBlock = `You reason in steps: Thought -> Action -> Observation -> ... -> Final Answer.

FORMAT (tool call):
Thought: <your reasoning>
Action: <EXACT tool name from the list below>
Parameters: <JSON object on one line>

FORMAT (direct answer):
Thought: <your reasoning>
Final Answer: <your response>

RULES:
1. Always start with "Thought:".
2. For simple questions answer directly with "Final Answer:" and no tool.
3. Use the EXACT tool name from the catalog. Do not invent tool names.
4. Parameters must be valid JSON on one line.`

// BuildThinking renders the thinking-phase prompt from the user
// message, accumulated observations and the tool catalog.
func (b *PromptBuilder) BuildThinking(state *domain.ReasoningState, userMessage, toolCatalog string) string {
	var sb strings.Builder
	sb.WriteString("You are an autonomous assistant with access to tools.\n\n")
	sb.WriteString(protocolBlock)
	sb.WriteString("\n\n")
	sb.WriteString(toolCatalog)

	if state != nil && len(state.Observations) > 0 {
		sb.WriteString("\nWhat has happened so far:\n")
		for i, obs := range state.Observations {
			status := "ok"
			if !obs.Success {
				status = "failed"
			}
			fmt.Fprintf(&sb, "%d. tool %s (%s)\n", i+1, obs.ToolName, status)
		}
	}
	if state != nil && state.CurrentThought != "" {
		sb.WriteString("\nYour previous thought: ")
		sb.WriteString(state.CurrentThought)
		sb.WriteByte('\n')
	}

	sb.WriteString("\nNow respond to:\nUser: ")
	sb.WriteString(userMessage)
	return sb.String()
}

// BuildObserving renders the observing-phase prompt around the most
// recent tool observation.
func (b *PromptBuilder) BuildObserving(state *domain.ReasoningState, observation string) string {
	var sb strings.Builder
	sb.WriteString("You just executed a tool. Here is what it returned:\n\n")
	sb.WriteString("Observation: ")
	sb.WriteString(observation)
	sb.WriteString("\n\n")
	if state != nil && state.CurrentThought != "" {
		sb.WriteString("Your reasoning so far: ")
		sb.WriteString(state.CurrentThought)
		sb.WriteString("\n\n")
	}
	sb.WriteString(`Decide what to do next.
If the observation answers the task, reply with:
Final Answer: <your response>
Otherwise reply with:
Thought: <what to do next>`)
	return sb.String()
}

// BuildErrorRecovery renders the prompt used when resuming a
// conversation that hit an error.
func (b *PromptBuilder) BuildErrorRecovery(state *domain.ReasoningState, lastError string) string {
	var sb strings.Builder
	sb.WriteString("The previous step failed: ")
	sb.WriteString(lastError)
	sb.WriteString("\n\nRecover gracefully. Either try a different approach with a tool, or answer directly:\n")
	sb.WriteString("Thought: <recovery plan>\nFinal Answer: <response if you can answer now>")
	return sb.String()
}

// AdjustForBackend applies a cosmetic final transform keyed by the
// provider family. Local models get an extra format reminder; hosted
// APIs get the prompt as-is.
func (b *PromptBuilder) AdjustForBackend(prompt, providerID string) string {
	id := strings.ToLower(providerID)
	switch {
	case strings.Contains(id, "ollama"):
		return prompt + "\n\nRemember: reply using the exact Thought/Action/Parameters or Thought/Final Answer format, nothing else."
	case strings.Contains(id, "gemini"):
		return "Follow the response format strictly.\n\n" + prompt
	default:
		return prompt
	}
}
