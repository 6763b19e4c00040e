package domain

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"
)

// ConversationID uniquely identifies a conversation
type ConversationID string

// Phase is the engine's current step in the reasoning loop
type Phase string

const (
	PhaseThinking  Phase = "THINKING"
	PhaseActing    Phase = "ACTING"
	PhaseObserving Phase = "OBSERVING"
)

// ConversationStatus tracks the lifecycle of a conversation
type ConversationStatus string

const (
	StatusActive    ConversationStatus = "ACTIVE"
	StatusError     ConversationStatus = "ERROR"
	StatusCompleted ConversationStatus = "COMPLETED"
)

// ReasoningState holds the progress of one in-flight conversation turn.
// Invariant: PendingAction is non-nil only while CurrentPhase == PhaseActing.
type ReasoningState struct {
	ConversationID ConversationID `json:"conversation_id"`
	CurrentPhase   Phase          `json:"current_phase"`
	IterationCount int            `json:"iteration_count"`
	MaxIterations  int            `json:"max_iterations"`
	CurrentThought string         `json:"current_thought,omitempty"`
	PendingAction  *ToolCall      `json:"pending_action,omitempty"`
	PendingWarning string         `json:"pending_warning,omitempty"`
	Observations   []ToolResult   `json:"observations,omitempty"`
}

// NewReasoningState creates a fresh state positioned at the thinking phase.
func NewReasoningState(convID ConversationID, maxIterations int) *ReasoningState {
	return &ReasoningState{
		ConversationID: convID,
		CurrentPhase:   PhaseThinking,
		MaxIterations:  maxIterations,
	}
}

// LastObservation returns the most recent tool result, or nil when none exist.
func (s *ReasoningState) LastObservation() *ToolResult {
	if len(s.Observations) == 0 {
		return nil
	}
	return &s.Observations[len(s.Observations)-1]
}

// ConversationContext carries everything that survives across turns.
type ConversationContext struct {
	AgentID   string          `json:"agent_id,omitempty"`
	UserID    string          `json:"user_id,omitempty"`
	Data      map[string]any  `json:"data,omitempty"`
	Reasoning *ReasoningState `json:"reasoning,omitempty"`
}

// ConversationState is the authoritative per-conversation record owned
// by the state manager. Cached in memory, written through to Memory.
type ConversationState struct {
	ID           ConversationID      `json:"id"`
	Status       ConversationStatus  `json:"status"`
	CurrentPhase Phase               `json:"current_phase"`
	Context      ConversationContext `json:"context"`
	LastActivity time.Time           `json:"last_activity"`
}

// ResponseType classifies the terminal outcome of a turn
type ResponseType string

const (
	ResponseAnswer    ResponseType = "answer"
	ResponseTruncated ResponseType = "truncated"
	ResponseError     ResponseType = "error"
)

// AgentResponse is the user-facing result of one turn.
type AgentResponse struct {
	ConversationID ConversationID `json:"conversation_id"`
	Type           ResponseType   `json:"type"`
	Content        string         `json:"content"`
	Thought        string         `json:"thought,omitempty"`
	Iterations     int            `json:"iterations"`
	ToolCalls      int            `json:"tool_calls"`
}

// ProgressKind tags incremental events emitted by the streaming engine
type ProgressKind string

const (
	ProgressThinking    ProgressKind = "thinking"
	ProgressAction      ProgressKind = "action"
	ProgressObservation ProgressKind = "observation"
	ProgressComplete    ProgressKind = "complete"
	ProgressError       ProgressKind = "error"
)

// ProgressEvent is one item on the streaming channel. Response is
// non-nil only for complete events.
type ProgressEvent struct {
	ConversationID ConversationID `json:"conversation_id"`
	Kind           ProgressKind   `json:"kind"`
	Text           string         `json:"text,omitempty"`
	Response       *AgentResponse `json:"response,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// PhaseTransition records one (from, to) hop in a conversation's flow record.
type PhaseTransition struct {
	From Phase     `json:"from"`
	To   Phase     `json:"to"`
	At   time.Time `json:"at"`
}

// FlowError is one captured failure in a conversation's flow record.
type FlowError struct {
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// FlowRecord is the lightweight per-conversation tracking record kept
// alongside ConversationState and persisted on termination.
type FlowRecord struct {
	ConversationID ConversationID    `json:"conversation_id"`
	AgentID        string            `json:"agent_id,omitempty"`
	UserID         string            `json:"user_id,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	EndedAt        time.Time         `json:"ended_at,omitempty"`
	Phase          Phase             `json:"phase"`
	Iteration      int               `json:"iteration"`
	Transitions    []PhaseTransition `json:"transitions,omitempty"`
	Errors         []FlowError       `json:"errors,omitempty"`
}

var ErrConversationNotFound = errors.New("conversation not found")

// NewConversationID generates a compact random conversation ID (conv-<12 hex>)
func NewConversationID() ConversationID {
	b := make([]byte, 6)
	_, _ = rand.Read(b)
	return ConversationID("conv-" + hex.EncodeToString(b))
}
