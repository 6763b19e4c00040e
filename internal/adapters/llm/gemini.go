package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/okapihq/okapi/internal/core/domain"
)

// GeminiAdapter speaks the Gemini API through the official Go SDK.
type GeminiAdapter struct {
	client       *genai.Client
	id           string
	defaultModel string
	models       []string
	retry        RetryPolicy
}

func NewGeminiAdapter(ctx context.Context, id, apiKey, defaultModel string, models []string) (*GeminiAdapter, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if id == "" {
		id = "gemini"
	}
	if defaultModel == "" {
		defaultModel = "gemini-2.0-flash"
	}
	return &GeminiAdapter{
		client:       client,
		id:           id,
		defaultModel: defaultModel,
		models:       models,
		retry:        DefaultRetryPolicy(),
	}, nil
}

func (a *GeminiAdapter) ProviderID() string { return a.id }

func (a *GeminiAdapter) GenerateResponse(ctx context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	return withRetry(ctx, a.retry, func(ctx context.Context) (domain.LLMResponse, error) {
		return a.generateOnce(ctx, req)
	})
}

func (a *GeminiAdapter) generateOnce(ctx context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(float32(req.Temperature))
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}

	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(req.PromptText()), cfg)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return domain.LLMResponse{}, domain.ProviderErrorFromStatus(a.id, apiErr.Code, apiErr.Message, err)
		}
		return domain.LLMResponse{}, domain.NewProviderError(a.id, "gemini generate failed", domain.IsRetryable(err), err)
	}

	out := domain.LLMResponse{
		Content:  resp.Text(),
		Provider: a.id,
		Model:    model,
	}
	if resp.UsageMetadata != nil {
		out.Usage = domain.TokenUsage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:  int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func (a *GeminiAdapter) CheckHealth(ctx context.Context) domain.ProviderHealth {
	start := time.Now()
	_, err := a.client.Models.CountTokens(ctx, a.defaultModel, genai.Text("ping"), nil)
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

func (a *GeminiAdapter) SupportsModel(model string) bool {
	return supportsModel(a.models, model)
}

func (a *GeminiAdapter) EstimateTokenCount(req domain.LLMRequest) int {
	return estimateTokens(req.PromptText())
}
