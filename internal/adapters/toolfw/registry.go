package toolfw

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/okapihq/okapi/internal/core/domain"
	"github.com/okapihq/okapi/internal/core/ports"
)

// Executor is the function signature behind a registered tool.
type Executor func(ctx context.Context, params map[string]any) (any, error)

// Registry is the reference ToolFramework implementation: a
// concurrency-safe catalog of named tools.
type Registry struct {
	logger *slog.Logger
	mu     sync.RWMutex
	defs   map[string]domain.ToolDefinition
	execs  map[string]Executor
}

var _ ports.ToolFramework = (*Registry)(nil)

func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{
		logger: logger,
		defs:   make(map[string]domain.ToolDefinition),
		execs:  make(map[string]Executor),
	}
}

// Register adds a tool. Registering an existing name replaces it.
func (r *Registry) Register(def domain.ToolDefinition, exec Executor) error {
	if def.Name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if exec == nil {
		return fmt.Errorf("tool %s has no executor", def.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.defs[def.Name] = def
	r.execs[def.Name] = exec
	r.logger.Info("tool registered", "tool", def.Name)
	return nil
}

func (r *Registry) ListTools() []domain.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.ToolDefinition, 0, len(r.defs))
	for _, def := range r.defs {
		out = append(out, def)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (r *Registry) ExecuteTool(ctx context.Context, name string, params map[string]any) (domain.ToolResult, error) {
	r.mu.RLock()
	exec, ok := r.execs[name]
	r.mu.RUnlock()
	if !ok {
		return domain.ToolResult{}, fmt.Errorf("tool not found: %s", name)
	}

	start := time.Now()
	value, err := exec(ctx, params)
	elapsed := time.Since(start)
	if err != nil {
		return domain.ToolResult{}, err
	}

	return domain.ToolResult{
		ToolName:   name,
		Success:    true,
		Result:     value,
		DurationMs: elapsed.Milliseconds(),
	}, nil
}
