package domain

import "time"

// ChatMessage is one entry of a structured message list.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// LLMRequest is a transient per-call request to a language-model backend.
// Either Prompt or Messages is set; both set means Messages wins.
type LLMRequest struct {
	Prompt      string         `json:"prompt,omitempty"`
	Messages    []ChatMessage  `json:"messages,omitempty"`
	Model       string         `json:"model,omitempty"`
	Temperature float64        `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// PromptText flattens the request into a single prompt string.
func (r LLMRequest) PromptText() string {
	if len(r.Messages) == 0 {
		return r.Prompt
	}
	var out string
	for i, m := range r.Messages {
		if i > 0 {
			out += "\n"
		}
		out += m.Role + ": " + m.Content
	}
	return out
}

// TokenUsage carries per-call token accounting.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// LLMResponse is a transient per-call backend reply.
type LLMResponse struct {
	Content  string         `json:"content"`
	Usage    TokenUsage     `json:"usage"`
	Provider string         `json:"provider,omitempty"`
	Model    string         `json:"model,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// HealthState classifies a provider's last known condition
type HealthState string

const (
	HealthHealthy   HealthState = "HEALTHY"
	HealthDegraded  HealthState = "DEGRADED"
	HealthUnhealthy HealthState = "UNHEALTHY"
	HealthUnknown   HealthState = "UNKNOWN"
)

// ProviderHealth is the cached result of the latest probe or failure
// for one provider. Read by the router's selection algorithm.
type ProviderHealth struct {
	ProviderID     string      `json:"provider_id"`
	Status         HealthState `json:"status"`
	ResponseTimeMs int64       `json:"response_time_ms"`
	Message        string      `json:"message,omitempty"`
	LastCheck      time.Time   `json:"last_check"`
}
