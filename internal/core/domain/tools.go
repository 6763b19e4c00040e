package domain

import (
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/google/uuid"
)

// ToolCall is an intent to execute a tool. CallID is unique per
// invocation and lets tool implementations correlate or deduplicate.
type ToolCall struct {
	CallID     string         `json:"call_id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// NewToolCall assigns a fresh call ID.
func NewToolCall(name string, params map[string]any) ToolCall {
	return ToolCall{
		CallID:     uuid.New().String(),
		Name:       name,
		Parameters: params,
	}
}

// ToolResult is produced exactly once per ToolCall and appended to the
// reasoning state's observations. Only Metadata may be enriched after
// creation.
type ToolResult struct {
	ToolName     string         `json:"tool_name"`
	CallID       string         `json:"call_id,omitempty"`
	Success      bool           `json:"success"`
	Result       any            `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
	DurationMs   int64          `json:"duration_ms"`
}

// SetMeta enriches the result metadata, allocating lazily.
func (r *ToolResult) SetMeta(key string, value any) {
	if r.Metadata == nil {
		r.Metadata = make(map[string]any)
	}
	r.Metadata[key] = value
}

// ToolDefinition describes an executable capability: its name, a short
// description for the prompt catalog, and a JSON schema for its parameters.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *openapi3.Schema
}

// RequiredParameters returns the declared required parameter names.
func (d ToolDefinition) RequiredParameters() []string {
	if d.Parameters == nil {
		return nil
	}
	return d.Parameters.Required
}

// ParameterTypes renders a name -> type view of the parameter schema
// for prompt catalogs.
func (d ToolDefinition) ParameterTypes() map[string]string {
	if d.Parameters == nil || len(d.Parameters.Properties) == 0 {
		return nil
	}
	out := make(map[string]string, len(d.Parameters.Properties))
	for name, ref := range d.Parameters.Properties {
		out[name] = schemaTypeName(ref)
	}
	return out
}

func schemaTypeName(ref *openapi3.SchemaRef) string {
	if ref == nil || ref.Value == nil || ref.Value.Type == nil || len(*ref.Value.Type) == 0 {
		return "any"
	}
	return (*ref.Value.Type)[0]
}
