package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/okapihq/okapi/internal/core/domain"
)

const (
	truncationMessage = "I could not finish reasoning about this request within the allowed number of steps. Here is how far I got: "
	userErrorMessage  = "I ran into a problem while working on this request. Please try again."
)

// EngineConfig tunes the reasoning loop.
type EngineConfig struct {
	MaxIterations int           // hard liveness bound per turn
	LLMTimeout    time.Duration // timebox per language-model call
	Model         string        // optional model constraint for routing
	Temperature   float64
	Provider      string // optional explicit provider id, empty = automatic
}

// Callbacks is the four-callback streaming contract. OnComplete is
// required; the others may be nil.
type Callbacks struct {
	OnThinking    func(text string)
	OnAction      func(text string)
	OnObservation func(text string)
	OnComplete    func(resp *domain.AgentResponse)
}

// ReasoningEngine drives one conversation turn to completion through
// the thinking/acting/observing cycle. Phases never run concurrently
// for the same conversation; concurrency exists only across
// conversations.
type ReasoningEngine struct {
	logger  *slog.Logger
	router  *ProviderRouter
	invoker *ToolInvoker
	prompts *PromptBuilder
	parser  *ResponseParser
	states  *StateManager
	bus     *EventBus // optional, feeds the transport layer
	cfg     EngineConfig
}

func NewReasoningEngine(
	logger *slog.Logger,
	router *ProviderRouter,
	invoker *ToolInvoker,
	prompts *PromptBuilder,
	parser *ResponseParser,
	states *StateManager,
	bus *EventBus,
	cfg EngineConfig,
) *ReasoningEngine {
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = 10
	}
	if cfg.LLMTimeout <= 0 {
		cfg.LLMTimeout = 30 * time.Second
	}
	return &ReasoningEngine{
		logger:  logger,
		router:  router,
		invoker: invoker,
		prompts: prompts,
		parser:  parser,
		states:  states,
		bus:     bus,
		cfg:     cfg,
	}
}

// ProcessTurn runs the loop to completion and returns the final
// response. Failures inside a phase are captured against the
// conversation and surface as an error-typed response, never as a
// crash of the loop driver.
func (e *ReasoningEngine) ProcessTurn(ctx context.Context, convID domain.ConversationID, userMessage string, seed domain.ConversationContext) (*domain.AgentResponse, error) {
	return e.run(ctx, convID, userMessage, seed, nil)
}

// ProcessTurnStreaming runs the identical state machine, delivering
// typed progress events on the returned channel. The channel is closed
// after the terminal complete (or error) event. Events are sent
// synchronously from the loop worker: a slow consumer stalls the loop.
func (e *ReasoningEngine) ProcessTurnStreaming(ctx context.Context, convID domain.ConversationID, userMessage string, seed domain.ConversationContext) (<-chan domain.ProgressEvent, error) {
	events := make(chan domain.ProgressEvent)
	go func() {
		defer close(events)
		emit := func(ev domain.ProgressEvent) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}
		resp, err := e.run(ctx, convID, userMessage, seed, emit)
		if err != nil {
			emit(domain.ProgressEvent{
				ConversationID: convID,
				Kind:           domain.ProgressError,
				Text:           userErrorMessage,
				Timestamp:      time.Now(),
			})
			return
		}
		emit(domain.ProgressEvent{
			ConversationID: convID,
			Kind:           domain.ProgressComplete,
			Text:           resp.Content,
			Response:       resp,
			Timestamp:      time.Now(),
		})
	}()
	return events, nil
}

// ProcessTurnWithCallbacks adapts the event channel to the callback
// contract. OnComplete must be non-nil.
func (e *ReasoningEngine) ProcessTurnWithCallbacks(ctx context.Context, convID domain.ConversationID, userMessage string, seed domain.ConversationContext, cb Callbacks) error {
	if cb.OnComplete == nil {
		return fmt.Errorf("OnComplete callback is required")
	}

	events, err := e.ProcessTurnStreaming(ctx, convID, userMessage, seed)
	if err != nil {
		return err
	}
	for ev := range events {
		switch ev.Kind {
		case domain.ProgressThinking:
			if cb.OnThinking != nil {
				cb.OnThinking(ev.Text)
			}
		case domain.ProgressAction:
			if cb.OnAction != nil {
				cb.OnAction(ev.Text)
			}
		case domain.ProgressObservation:
			if cb.OnObservation != nil {
				cb.OnObservation(ev.Text)
			}
		case domain.ProgressComplete:
			cb.OnComplete(ev.Response)
		case domain.ProgressError:
			cb.OnComplete(&domain.AgentResponse{
				ConversationID: convID,
				Type:           domain.ResponseError,
				Content:        ev.Text,
			})
		}
	}
	return nil
}

// run is the single loop driver behind both delivery modes.
func (e *ReasoningEngine) run(ctx context.Context, convID domain.ConversationID, userMessage string, seed domain.ConversationContext, emit func(domain.ProgressEvent)) (*domain.AgentResponse, error) {
	state, err := e.states.Initialize(ctx, convID, seed)
	if err != nil {
		return nil, fmt.Errorf("initialize conversation: %w", err)
	}

	rs := state.Context.Reasoning
	if rs.MaxIterations <= 0 {
		rs.MaxIterations = e.cfg.MaxIterations
	}

	progress := func(kind domain.ProgressKind, text string) {
		ev := domain.ProgressEvent{
			ConversationID: convID,
			Kind:           kind,
			Text:           text,
			Timestamp:      time.Now(),
		}
		if emit != nil {
			emit(ev)
		}
		if e.bus != nil {
			e.bus.Publish(ev)
		}
	}

	e.logger.Info("turn started",
		"conversation_id", string(convID), "phase", string(rs.CurrentPhase))

	for rs.IterationCount < rs.MaxIterations {
		switch rs.CurrentPhase {

		case domain.PhaseThinking:
			resp, done, err := e.stepThinking(ctx, convID, rs, userMessage, progress)
			if err != nil {
				return e.failTurn(ctx, convID, rs, err)
			}
			if done {
				return e.completeTurn(ctx, convID, state, rs, resp)
			}

		case domain.PhaseActing:
			e.stepActing(ctx, convID, rs, progress)

		case domain.PhaseObserving:
			resp, done, err := e.stepObserving(ctx, convID, rs, progress)
			if err != nil {
				return e.failTurn(ctx, convID, rs, err)
			}
			if done {
				return e.completeTurn(ctx, convID, state, rs, resp)
			}

		default:
			// Unknown phase is a reasoning fault: retry from thinking.
			e.logger.Warn("unknown phase, resetting to thinking",
				"conversation_id", string(convID), "phase", string(rs.CurrentPhase))
			_ = e.states.TransitionPhase(ctx, convID, domain.PhaseThinking)
		}

		rs.IterationCount++
		if err := e.states.Update(ctx, convID, state); err != nil {
			e.logger.Warn("state persistence failed mid-turn",
				"conversation_id", string(convID), "error", err)
		}
	}

	e.logger.Info("iteration budget exhausted",
		"conversation_id", string(convID), "iterations", rs.IterationCount)
	resp := &domain.AgentResponse{
		ConversationID: convID,
		Type:           domain.ResponseTruncated,
		Content:        truncationMessage + rs.CurrentThought,
		Thought:        rs.CurrentThought,
		Iterations:     rs.IterationCount,
		ToolCalls:      len(rs.Observations),
	}
	return e.completeTurn(ctx, convID, state, rs, resp)
}

// stepThinking builds the thinking prompt, consults a provider and
// decides between terminating, acting, or passing the thought through
// as the answer.
func (e *ReasoningEngine) stepThinking(ctx context.Context, convID domain.ConversationID, rs *domain.ReasoningState, userMessage string, progress func(domain.ProgressKind, string)) (*domain.AgentResponse, bool, error) {
	prompt := e.prompts.BuildThinking(rs, userMessage, e.invoker.DescribeAvailableTools())
	prompt = e.prompts.AdjustForBackend(prompt, e.cfg.Provider)

	reply, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, false, err
	}

	parsed := e.parser.ParseThinking(reply.Content)
	if parsed.Thought != "" {
		rs.CurrentThought = parsed.Thought
	}
	progress(domain.ProgressThinking, parsed.Thought)

	if parsed.HasFinal {
		return e.answer(convID, rs, parsed.FinalAnswer), true, nil
	}

	if parsed.Action != nil {
		if parsed.ParseWarning != "" {
			e.logger.Warn("action parameters degraded",
				"conversation_id", string(convID), "tool", parsed.Action.Name, "warning", parsed.ParseWarning)
		}
		if err := e.states.TransitionPhase(ctx, convID, domain.PhaseActing); err != nil {
			return nil, false, err
		}
		rs.PendingAction = parsed.Action
		rs.PendingWarning = parsed.ParseWarning
		return nil, false, nil
	}

	// No action and no final marker: the thought itself is the answer.
	return e.answer(convID, rs, parsed.Thought), true, nil
}

// stepActing executes the pending tool call and appends its result to
// the observations. A missing pending action is a logic fault handled
// by returning to thinking.
func (e *ReasoningEngine) stepActing(ctx context.Context, convID domain.ConversationID, rs *domain.ReasoningState, progress func(domain.ProgressKind, string)) {
	if rs.PendingAction == nil {
		e.logger.Warn("acting phase without pending action, returning to thinking",
			"conversation_id", string(convID))
		_ = e.states.TransitionPhase(ctx, convID, domain.PhaseThinking)
		return
	}

	call := *rs.PendingAction
	progress(domain.ProgressAction, fmt.Sprintf("Executing tool %s", call.Name))

	result := e.invoker.ExecuteSafely(ctx, call)
	if rs.PendingWarning != "" {
		// Surface the degraded parameter parse instead of smuggling it:
		// the warning rides on the observation the model sees next.
		result.SetMeta("parameter_parse_warning", rs.PendingWarning)
	}
	rs.Observations = append(rs.Observations, result)
	rs.PendingAction = nil
	rs.PendingWarning = ""

	_ = e.states.TransitionPhase(ctx, convID, domain.PhaseObserving)
	progress(domain.ProgressObservation, e.invoker.FormatForObservation(result))
}

// stepObserving reflects on the latest observation and either
// terminates with a final answer or loops back to thinking.
func (e *ReasoningEngine) stepObserving(ctx context.Context, convID domain.ConversationID, rs *domain.ReasoningState, progress func(domain.ProgressKind, string)) (*domain.AgentResponse, bool, error) {
	last := rs.LastObservation()
	if last == nil {
		// Nothing to observe: reasoning fault, retry from thinking.
		e.logger.Warn("observing phase without observations, returning to thinking",
			"conversation_id", string(convID))
		return nil, false, e.states.TransitionPhase(ctx, convID, domain.PhaseThinking)
	}

	observation := e.invoker.FormatForObservation(*last)
	prompt := e.prompts.BuildObserving(rs, observation)
	prompt = e.prompts.AdjustForBackend(prompt, e.cfg.Provider)

	reply, err := e.generate(ctx, prompt)
	if err != nil {
		return nil, false, err
	}

	parsed := e.parser.ParseObserving(reply.Content)
	if parsed.Complete {
		return e.answer(convID, rs, parsed.FinalAnswer), true, nil
	}

	if parsed.NextThought != "" {
		rs.CurrentThought = parsed.NextThought
	}
	progress(domain.ProgressThinking, parsed.NextThought)
	return nil, false, e.states.TransitionPhase(ctx, convID, domain.PhaseThinking)
}

func (e *ReasoningEngine) generate(ctx context.Context, prompt string) (domain.LLMResponse, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.LLMTimeout)
	defer cancel()

	req := domain.LLMRequest{
		Prompt:      prompt,
		Model:       e.cfg.Model,
		Temperature: e.cfg.Temperature,
	}
	return e.router.Generate(callCtx, req, e.cfg.Provider)
}

func (e *ReasoningEngine) answer(convID domain.ConversationID, rs *domain.ReasoningState, content string) *domain.AgentResponse {
	return &domain.AgentResponse{
		ConversationID: convID,
		Type:           domain.ResponseAnswer,
		Content:        content,
		Thought:        rs.CurrentThought,
		Iterations:     rs.IterationCount,
		ToolCalls:      len(rs.Observations),
	}
}

// completeTurn folds the reasoning state back into the persistent
// context: the next turn starts at thinking with a clean iteration
// budget, while the conversation record survives.
func (e *ReasoningEngine) completeTurn(ctx context.Context, convID domain.ConversationID, state *domain.ConversationState, rs *domain.ReasoningState, resp *domain.AgentResponse) (*domain.AgentResponse, error) {
	rs.PendingAction = nil
	rs.CurrentPhase = domain.PhaseThinking
	rs.IterationCount = 0

	if err := e.states.Update(ctx, convID, state); err != nil {
		e.logger.Warn("final state persistence failed",
			"conversation_id", string(convID), "error", err)
	}

	e.logger.Info("turn completed",
		"conversation_id", string(convID), "type", string(resp.Type),
		"iterations", resp.Iterations, "tool_calls", resp.ToolCalls)
	return resp, nil
}

// failTurn records the failure against the conversation and returns an
// apologetic error-typed response. The conversation can be resumed via
// the state manager's recovery path.
func (e *ReasoningEngine) failTurn(ctx context.Context, convID domain.ConversationID, rs *domain.ReasoningState, cause error) (*domain.AgentResponse, error) {
	e.logger.Error("turn failed", "conversation_id", string(convID), "error", cause)

	if err := e.states.HandleError(ctx, convID, cause.Error(), cause); err != nil {
		e.logger.Warn("error capture failed", "conversation_id", string(convID), "error", err)
	}

	return &domain.AgentResponse{
		ConversationID: convID,
		Type:           domain.ResponseError,
		Content:        userErrorMessage,
		Thought:        rs.CurrentThought,
		Iterations:     rs.IterationCount,
		ToolCalls:      len(rs.Observations),
	}, nil
}
