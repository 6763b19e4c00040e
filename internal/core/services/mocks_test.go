package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/okapihq/okapi/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeAdapter is a scriptable backend. Replies are consumed in order;
// when the script runs out the last entry repeats. A nil Err means
// success.
type fakeAdapter struct {
	id     string
	models []string

	mu      sync.Mutex
	script  []fakeReply
	cursor  int
	calls   int
	prompts []string
}

type fakeReply struct {
	content string
	err     error
}

func newFakeAdapter(id string, script ...fakeReply) *fakeAdapter {
	return &fakeAdapter{id: id, script: script}
}

func (f *fakeAdapter) ProviderID() string { return f.id }

func (f *fakeAdapter) GenerateResponse(_ context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.prompts = append(f.prompts, req.PromptText())

	if len(f.script) == 0 {
		return domain.LLMResponse{Content: "Final Answer: done", Provider: f.id}, nil
	}
	reply := f.script[f.cursor]
	if f.cursor < len(f.script)-1 {
		f.cursor++
	}
	if reply.err != nil {
		return domain.LLMResponse{}, reply.err
	}
	return domain.LLMResponse{Content: reply.content, Provider: f.id}, nil
}

func (f *fakeAdapter) CheckHealth(context.Context) domain.ProviderHealth {
	return domain.ProviderHealth{ProviderID: f.id, Status: domain.HealthHealthy}
}

func (f *fakeAdapter) SupportsModel(model string) bool {
	if len(f.models) == 0 {
		return true
	}
	for _, m := range f.models {
		if m == model {
			return true
		}
	}
	return false
}

func (f *fakeAdapter) EstimateTokenCount(req domain.LLMRequest) int {
	return len(req.PromptText()) / 4
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// memoryStore is an in-memory Memory plus FlowAudit used by state and
// engine tests.
type memoryStore struct {
	mu       sync.Mutex
	contexts map[domain.ConversationID]domain.ConversationContext
	flows    []domain.FlowRecord
	storeErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{contexts: make(map[domain.ConversationID]domain.ConversationContext)}
}

func (s *memoryStore) RetrieveContext(_ context.Context, id domain.ConversationID) (*domain.ConversationContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.contexts[id]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *memoryStore) StoreContext(_ context.Context, id domain.ConversationID, c domain.ConversationContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.storeErr != nil {
		return s.storeErr
	}
	s.contexts[id] = c
	return nil
}

func (s *memoryStore) SaveFlowRecord(_ context.Context, rec domain.FlowRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows = append(s.flows, rec)
	return nil
}

func (s *memoryStore) savedFlows() []domain.FlowRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.FlowRecord(nil), s.flows...)
}

// fakeFramework is a scriptable tool framework.
type fakeFramework struct {
	defs  []domain.ToolDefinition
	execs map[string]func(ctx context.Context, params map[string]any) (domain.ToolResult, error)

	mu    sync.Mutex
	calls map[string]int
}

func newFakeFramework() *fakeFramework {
	return &fakeFramework{
		execs: make(map[string]func(ctx context.Context, params map[string]any) (domain.ToolResult, error)),
		calls: make(map[string]int),
	}
}

func (f *fakeFramework) addTool(def domain.ToolDefinition, exec func(ctx context.Context, params map[string]any) (domain.ToolResult, error)) {
	f.defs = append(f.defs, def)
	f.execs[def.Name] = exec
}

func (f *fakeFramework) ListTools() []domain.ToolDefinition {
	return append([]domain.ToolDefinition(nil), f.defs...)
}

func (f *fakeFramework) ExecuteTool(ctx context.Context, name string, params map[string]any) (domain.ToolResult, error) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()

	exec, ok := f.execs[name]
	if !ok {
		return domain.ToolResult{}, fmt.Errorf("no executor for tool %s", name)
	}
	return exec(ctx, params)
}

func (f *fakeFramework) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}
