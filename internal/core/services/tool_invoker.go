package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/okapihq/okapi/internal/core/domain"
	"github.com/okapihq/okapi/internal/core/ports"
)

const maxSuggestions = 3

// ToolInvoker validates and executes tool calls through the tool
// framework. It never returns an error to the caller: every failure
// mode becomes a structured ToolResult so the reasoning loop can keep
// going.
type ToolInvoker struct {
	logger  *slog.Logger
	fw      ports.ToolFramework
	timeout time.Duration
}

func NewToolInvoker(logger *slog.Logger, fw ports.ToolFramework, timeout time.Duration) *ToolInvoker {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &ToolInvoker{logger: logger, fw: fw, timeout: timeout}
}

// IsAvailable reports whether a tool is currently in the catalog.
func (t *ToolInvoker) IsAvailable(name string) bool {
	for _, def := range t.fw.ListTools() {
		if def.Name == name {
			return true
		}
	}
	return false
}

// ListTools returns the current catalog sorted by name.
func (t *ToolInvoker) ListTools() []domain.ToolDefinition {
	defs := t.fw.ListTools()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// DescribeAvailableTools renders the catalog for prompt inclusion.
// Compact format: name: description | params: {...} | required: ...
func (t *ToolInvoker) DescribeAvailableTools() string {
	defs := t.fw.ListTools()
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })

	var sb strings.Builder
	sb.WriteString("Available Tools:\n")
	for _, def := range defs {
		sb.WriteString("- ")
		sb.WriteString(def.Name)
		sb.WriteString(": ")
		sb.WriteString(def.Description)

		if types := def.ParameterTypes(); len(types) > 0 {
			names := make([]string, 0, len(types))
			for n := range types {
				names = append(names, n)
			}
			sort.Strings(names)
			parts := make([]string, 0, len(names))
			for _, n := range names {
				parts = append(parts, n+":"+types[n])
			}
			sb.WriteString(" | params: {" + strings.Join(parts, ", ") + "}")
		}
		if req := def.RequiredParameters(); len(req) > 0 {
			sb.WriteString(" | required: " + strings.Join(req, ", "))
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}

// ExecuteSafely runs a tool call, converting unknown tools, invalid
// parameters, framework errors, panics and timeouts into structured
// failures. On success the result metadata is enriched with execution
// details.
func (t *ToolInvoker) ExecuteSafely(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	def, found := t.lookup(call.Name)
	if !found {
		t.logger.Warn("tool not found", "tool", call.Name)
		return t.failure(call, fmt.Sprintf("tool not found: %s", call.Name))
	}

	if err := t.validateParameters(def, call.Parameters); err != nil {
		t.logger.Warn("tool parameter validation failed", "tool", call.Name, "error", err)
		return t.failure(call, fmt.Sprintf("invalid parameters for %s: %v", call.Name, err))
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	start := time.Now()
	result, err := t.execute(execCtx, call)
	elapsed := time.Since(start)

	if err != nil {
		t.logger.Warn("tool execution failed", "tool", call.Name, "error", err, "duration", elapsed)
		res := t.failure(call, err.Error())
		res.DurationMs = elapsed.Milliseconds()
		return res
	}

	result.ToolName = call.Name
	result.CallID = call.CallID
	if result.DurationMs == 0 {
		result.DurationMs = elapsed.Milliseconds()
	}
	result.SetMeta("invoked_by", "tool-invoker")
	result.SetMeta("parameter_count", len(call.Parameters))
	result.SetMeta("status", "completed")
	return result
}

// execute isolates the framework call so a panicking tool cannot take
// down the loop driver.
func (t *ToolInvoker) execute(ctx context.Context, call domain.ToolCall) (result domain.ToolResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %s panicked: %v", call.Name, r)
		}
	}()
	return t.fw.ExecuteTool(ctx, call.Name, call.Parameters)
}

func (t *ToolInvoker) validateParameters(def domain.ToolDefinition, params map[string]any) error {
	for _, required := range def.RequiredParameters() {
		if _, ok := params[required]; !ok {
			return fmt.Errorf("missing required parameter %q", required)
		}
	}
	if def.Parameters != nil {
		value := map[string]any{}
		for k, v := range params {
			value[k] = v
		}
		if err := def.Parameters.VisitJSON(value); err != nil {
			return err
		}
	}
	return nil
}

// SuggestAlternatives returns up to three catalog tools resembling the
// failed name, scored by word overlap with Levenshtein distance as the
// tiebreaker. Used only to enrich observation text.
func (t *ToolInvoker) SuggestAlternatives(failedName string, _ string) []string {
	inputWords := splitToolWords(failedName)

	type scored struct {
		name  string
		score int
		dist  int
	}
	var candidates []scored
	for _, def := range t.fw.ListTools() {
		if def.Name == failedName {
			continue
		}
		score := wordOverlapScore(inputWords, splitToolWords(def.Name))
		if score < 1 {
			continue
		}
		candidates = append(candidates, scored{
			name:  def.Name,
			score: score,
			dist:  levenshtein(failedName, def.Name),
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		if candidates[i].dist != candidates[j].dist {
			return candidates[i].dist < candidates[j].dist
		}
		return candidates[i].name < candidates[j].name
	})

	out := make([]string, 0, maxSuggestions)
	for _, c := range candidates {
		out = append(out, c.name)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}

// FormatForObservation produces the natural-language observation string
// fed back into the next prompt.
func (t *ToolInvoker) FormatForObservation(result domain.ToolResult) string {
	var msg string
	if result.Success {
		payload, err := json.Marshal(result.Result)
		if err != nil {
			payload = []byte(fmt.Sprintf("%v", result.Result))
		}
		msg = fmt.Sprintf("Tool %s succeeded in %dms: %s", result.ToolName, result.DurationMs, payload)
	} else {
		msg = fmt.Sprintf("Tool %s failed: %s", result.ToolName, result.ErrorMessage)
		if suggestions := t.SuggestAlternatives(result.ToolName, result.ErrorMessage); len(suggestions) > 0 {
			msg += " Available alternatives: " + strings.Join(suggestions, ", ") + "."
		}
	}
	if warning, ok := result.Metadata["parameter_parse_warning"].(string); ok && warning != "" {
		msg += " Note: the parameter block could not be fully parsed (" + warning + "), the tool ran with recovered parameters."
	}
	return msg
}

func (t *ToolInvoker) lookup(name string) (domain.ToolDefinition, bool) {
	for _, def := range t.fw.ListTools() {
		if def.Name == name {
			return def, true
		}
	}
	return domain.ToolDefinition{}, false
}

func (t *ToolInvoker) failure(call domain.ToolCall, message string) domain.ToolResult {
	res := domain.ToolResult{
		ToolName:     call.Name,
		CallID:       call.CallID,
		Success:      false,
		ErrorMessage: message,
	}
	res.SetMeta("invoked_by", "tool-invoker")
	res.SetMeta("parameter_count", len(call.Parameters))
	res.SetMeta("status", "failed")
	return res
}

// --- name similarity helpers ---

func splitToolWords(name string) []string {
	var parts []string
	for _, p := range strings.Split(strings.ToLower(name), "_") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	return parts
}

func wordOverlapScore(a, b []string) int {
	set := make(map[string]bool, len(b))
	for _, w := range b {
		set[w] = true
	}
	score := 0
	for _, w := range a {
		if set[w] {
			score++
		}
	}
	return score
}

func levenshtein(a, b string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}
	prev := make([]int, lb+1)
	curr := make([]int, lb+1)
	for j := 0; j <= lb; j++ {
		prev[j] = j
	}
	for i := 1; i <= la; i++ {
		curr[0] = i
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(curr[j-1]+1, min(prev[j]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[lb]
}
