package ports

import (
	"context"

	"github.com/okapihq/okapi/internal/core/domain"
)

// BackendAdapter abstracts one language-model vendor. Adapters own
// their vendor-specific request/response translation and retry/backoff;
// errors returned by GenerateResponse must be classified via
// domain.AgentError so the router can decide on failover.
type BackendAdapter interface {
	// ProviderID returns the stable registry key for this adapter.
	ProviderID() string

	// GenerateResponse performs one generation call.
	GenerateResponse(ctx context.Context, req domain.LLMRequest) (domain.LLMResponse, error)

	// CheckHealth performs a lightweight vendor-specific probe. Probe
	// failures are folded into the returned status, never raised.
	CheckHealth(ctx context.Context) domain.ProviderHealth

	// SupportsModel reports whether the adapter can serve the model.
	// Adapters with no declared catalog accept any model.
	SupportsModel(model string) bool

	// EstimateTokenCount approximates the request's input token count.
	EstimateTokenCount(req domain.LLMRequest) int
}

// ToolFramework abstracts the tool execution runtime consumed by the
// tool invoker. ExecuteTool may return an error; the invoker converts
// every failure into a structured ToolResult.
type ToolFramework interface {
	ListTools() []domain.ToolDefinition
	ExecuteTool(ctx context.Context, name string, params map[string]any) (domain.ToolResult, error)
}

// Memory abstracts conversation persistence. RetrieveContext returns
// (nil, nil) when no context has been stored for the id.
type Memory interface {
	RetrieveContext(ctx context.Context, id domain.ConversationID) (*domain.ConversationContext, error)
	StoreContext(ctx context.Context, id domain.ConversationID, c domain.ConversationContext) error
}

// FlowAudit receives completed per-conversation flow records. Optional;
// a nil implementation disables the audit trail.
type FlowAudit interface {
	SaveFlowRecord(ctx context.Context, rec domain.FlowRecord) error
}
