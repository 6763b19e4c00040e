package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/okapihq/okapi/internal/core/domain"
	"github.com/okapihq/okapi/internal/core/ports"
)

// StateManager owns the lifecycle of per-conversation state: a
// concurrency-safe in-memory cache with the authoritative copy written
// through to Memory on every mutation, plus a flow-tracking record per
// conversation.
type StateManager struct {
	logger *slog.Logger
	memory ports.Memory
	audit  ports.FlowAudit // optional

	mu     sync.RWMutex
	states map[domain.ConversationID]*domain.ConversationState
	flows  map[domain.ConversationID]*domain.FlowRecord

	defaultMaxIterations int
}

func NewStateManager(logger *slog.Logger, memory ports.Memory, audit ports.FlowAudit, defaultMaxIterations int) *StateManager {
	if defaultMaxIterations <= 0 {
		defaultMaxIterations = 10
	}
	return &StateManager{
		logger:               logger,
		memory:               memory,
		audit:                audit,
		states:               make(map[domain.ConversationID]*domain.ConversationState),
		flows:                make(map[domain.ConversationID]*domain.FlowRecord),
		defaultMaxIterations: defaultMaxIterations,
	}
}

// Initialize returns the cached live state if present, restores from
// persisted context if available, or constructs a fresh ACTIVE state in
// the thinking phase. A flow-tracking record is (re)established either
// way.
func (m *StateManager) Initialize(ctx context.Context, id domain.ConversationID, seed domain.ConversationContext) (*domain.ConversationState, error) {
	m.mu.RLock()
	if state, ok := m.states[id]; ok {
		m.mu.RUnlock()
		m.ensureFlow(id, state.Context)
		return state, nil
	}
	m.mu.RUnlock()

	restored, err := m.memory.RetrieveContext(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("retrieve conversation context: %w", err)
	}

	var state *domain.ConversationState
	if restored != nil {
		if restored.Reasoning == nil {
			restored.Reasoning = domain.NewReasoningState(id, m.defaultMaxIterations)
		}
		state = &domain.ConversationState{
			ID:           id,
			Status:       domain.StatusActive,
			CurrentPhase: restored.Reasoning.CurrentPhase,
			Context:      *restored,
			LastActivity: time.Now(),
		}
		m.logger.Info("restored conversation from memory", "conversation_id", string(id))
	} else {
		seed.Reasoning = domain.NewReasoningState(id, m.defaultMaxIterations)
		if seed.Data == nil {
			seed.Data = make(map[string]any)
		}
		state = &domain.ConversationState{
			ID:           id,
			Status:       domain.StatusActive,
			CurrentPhase: domain.PhaseThinking,
			Context:      seed,
			LastActivity: time.Now(),
		}
		m.logger.Info("created conversation state", "conversation_id", string(id))
	}

	m.mu.Lock()
	m.states[id] = state
	m.mu.Unlock()
	m.ensureFlow(id, state.Context)

	return state, nil
}

// Update stamps the activity timestamp, caches the state and writes it
// through to Memory. The flow record snapshots phase and iteration.
func (m *StateManager) Update(ctx context.Context, id domain.ConversationID, state *domain.ConversationState) error {
	state.LastActivity = time.Now()
	if state.Context.Reasoning != nil {
		state.CurrentPhase = state.Context.Reasoning.CurrentPhase
	}

	m.mu.Lock()
	m.states[id] = state
	if flow, ok := m.flows[id]; ok {
		flow.Phase = state.CurrentPhase
		if state.Context.Reasoning != nil {
			flow.Iteration = state.Context.Reasoning.IterationCount
		}
	}
	m.mu.Unlock()

	if err := m.memory.StoreContext(ctx, id, state.Context); err != nil {
		return fmt.Errorf("store conversation context: %w", err)
	}
	return nil
}

// TransitionPhase records a (from, to, timestamp) hop in the flow
// record and persists the updated state.
func (m *StateManager) TransitionPhase(ctx context.Context, id domain.ConversationID, newPhase domain.Phase) error {
	state, err := m.get(id)
	if err != nil {
		return err
	}

	from := state.CurrentPhase
	if state.Context.Reasoning != nil {
		state.Context.Reasoning.CurrentPhase = newPhase
	}
	state.CurrentPhase = newPhase

	m.mu.Lock()
	if flow, ok := m.flows[id]; ok {
		flow.Transitions = append(flow.Transitions, domain.PhaseTransition{
			From: from,
			To:   newPhase,
			At:   time.Now(),
		})
	}
	m.mu.Unlock()

	return m.Update(ctx, id, state)
}

// HandleError marks the conversation ERROR and appends error metadata
// to the context data map and the flow record.
func (m *StateManager) HandleError(ctx context.Context, id domain.ConversationID, message string, cause error) error {
	state, err := m.get(id)
	if err != nil {
		return err
	}

	state.Status = domain.StatusError
	if state.Context.Data == nil {
		state.Context.Data = make(map[string]any)
	}
	state.Context.Data["last_error"] = message
	state.Context.Data["last_error_at"] = time.Now().Format(time.RFC3339)
	count, _ := state.Context.Data["error_count"].(int)
	state.Context.Data["error_count"] = count + 1

	detail := message
	if cause != nil {
		detail = fmt.Sprintf("%s: %v", message, cause)
	}

	m.mu.Lock()
	if flow, ok := m.flows[id]; ok {
		flow.Errors = append(flow.Errors, domain.FlowError{Message: detail, At: time.Now()})
	}
	m.mu.Unlock()

	m.logger.Error("conversation entered error state",
		"conversation_id", string(id), "error", detail)

	return m.Update(ctx, id, state)
}

// AttemptRecovery resets an ERROR conversation back to ACTIVE/THINKING.
// It never returns an error: recovery failures report false. Calling it
// on a non-ERROR conversation is a successful no-op.
func (m *StateManager) AttemptRecovery(ctx context.Context, id domain.ConversationID) bool {
	state, err := m.get(id)
	if err != nil {
		m.logger.Warn("recovery requested for unknown conversation", "conversation_id", string(id))
		return false
	}

	if state.Status != domain.StatusError {
		return true
	}

	state.Status = domain.StatusActive
	state.CurrentPhase = domain.PhaseThinking
	if state.Context.Reasoning != nil {
		state.Context.Reasoning.CurrentPhase = domain.PhaseThinking
		state.Context.Reasoning.PendingAction = nil
	}
	delete(state.Context.Data, "last_error")

	if err := m.Update(ctx, id, state); err != nil {
		m.logger.Warn("recovery persistence failed", "conversation_id", string(id), "error", err)
		return false
	}

	m.logger.Info("conversation recovered", "conversation_id", string(id))
	return true
}

// Terminate marks the conversation COMPLETED, persists it, hands the
// flow record to the audit sink and evicts both from the cache. The
// persisted record remains in Memory.
func (m *StateManager) Terminate(ctx context.Context, id domain.ConversationID) error {
	state, err := m.get(id)
	if err != nil {
		return err
	}

	state.Status = domain.StatusCompleted
	if err := m.Update(ctx, id, state); err != nil {
		return err
	}

	m.mu.Lock()
	flow := m.flows[id]
	delete(m.states, id)
	delete(m.flows, id)
	m.mu.Unlock()

	if flow != nil {
		flow.EndedAt = time.Now()
		if m.audit != nil {
			if err := m.audit.SaveFlowRecord(ctx, *flow); err != nil {
				m.logger.Warn("flow record persistence failed", "conversation_id", string(id), "error", err)
			}
		}
	}

	m.logger.Info("conversation terminated", "conversation_id", string(id))
	return nil
}

// Get returns the cached live state.
func (m *StateManager) Get(id domain.ConversationID) (*domain.ConversationState, error) {
	return m.get(id)
}

func (m *StateManager) get(id domain.ConversationID) (*domain.ConversationState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	state, ok := m.states[id]
	if !ok {
		return nil, domain.ErrConversationNotFound
	}
	return state, nil
}

func (m *StateManager) ensureFlow(id domain.ConversationID, c domain.ConversationContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.flows[id]; ok {
		return
	}
	m.flows[id] = &domain.FlowRecord{
		ConversationID: id,
		AgentID:        c.AgentID,
		UserID:         c.UserID,
		StartedAt:      time.Now(),
		Phase:          domain.PhaseThinking,
	}
}
