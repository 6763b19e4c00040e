package llm

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/okapihq/okapi/internal/core/domain"
)

// OllamaAdapter talks to a local or remote Ollama instance through the
// official API client.
type OllamaAdapter struct {
	client       *api.Client
	id           string
	defaultModel string
	models       []string
	retry        RetryPolicy
}

func NewOllamaAdapter(id, baseURL, defaultModel string, models []string) (*OllamaAdapter, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse ollama base url: %w", err)
	}
	if id == "" {
		id = "ollama"
	}
	if defaultModel == "" {
		defaultModel = "qwen2.5:latest"
	}
	return &OllamaAdapter{
		client:       api.NewClient(u, &http.Client{Timeout: 120 * time.Second}),
		id:           id,
		defaultModel: defaultModel,
		models:       models,
		retry:        DefaultRetryPolicy(),
	}, nil
}

func (a *OllamaAdapter) ProviderID() string { return a.id }

func (a *OllamaAdapter) GenerateResponse(ctx context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	return withRetry(ctx, a.retry, func(ctx context.Context) (domain.LLMResponse, error) {
		return a.generateOnce(ctx, req)
	})
}

func (a *OllamaAdapter) generateOnce(ctx context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	stream := false
	genReq := &api.GenerateRequest{
		Model:  model,
		Prompt: req.PromptText(),
		Stream: &stream,
	}
	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		genReq.Options = opts
	}

	var sb strings.Builder
	var final api.GenerateResponse
	err := a.client.Generate(ctx, genReq, func(r api.GenerateResponse) error {
		sb.WriteString(r.Response)
		final = r
		return nil
	})
	if err != nil {
		// Ollama surfaces connection and 5xx problems as plain errors.
		return domain.LLMResponse{}, domain.NewProviderError(a.id, "ollama generate failed", domain.IsRetryable(err), err)
	}

	return domain.LLMResponse{
		Content:  sb.String(),
		Provider: a.id,
		Model:    model,
		Usage: domain.TokenUsage{
			InputTokens:  final.PromptEvalCount,
			OutputTokens: final.EvalCount,
			TotalTokens:  final.PromptEvalCount + final.EvalCount,
		},
	}, nil
}

func (a *OllamaAdapter) CheckHealth(ctx context.Context) domain.ProviderHealth {
	start := time.Now()
	err := a.client.Heartbeat(ctx)
	h := domain.ProviderHealth{
		ProviderID:     a.id,
		Status:         domain.HealthHealthy,
		ResponseTimeMs: time.Since(start).Milliseconds(),
		LastCheck:      time.Now(),
	}
	if err != nil {
		h.Status = domain.HealthUnhealthy
		h.Message = err.Error()
	}
	return h
}

func (a *OllamaAdapter) SupportsModel(model string) bool {
	return supportsModel(a.models, model)
}

func (a *OllamaAdapter) EstimateTokenCount(req domain.LLMRequest) int {
	return estimateTokens(req.PromptText())
}
