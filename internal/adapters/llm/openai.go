package llm

import (
	"context"
	"errors"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"

	"github.com/okapihq/okapi/internal/core/domain"
)

// OpenAIAdapter speaks the OpenAI chat completions API. With a custom
// base URL it also covers Azure, Together and other compatible servers.
type OpenAIAdapter struct {
	client       openai.Client
	id           string
	defaultModel string
	models       []string
	retry        RetryPolicy
}

func NewOpenAIAdapter(id, apiKey, baseURL, defaultModel string, models []string) *OpenAIAdapter {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if id == "" {
		id = "openai"
	}
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return &OpenAIAdapter{
		client:       openai.NewClient(opts...),
		id:           id,
		defaultModel: defaultModel,
		models:       models,
		retry:        DefaultRetryPolicy(),
	}
}

func (a *OpenAIAdapter) ProviderID() string { return a.id }

func (a *OpenAIAdapter) GenerateResponse(ctx context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	return withRetry(ctx, a.retry, func(ctx context.Context) (domain.LLMResponse, error) {
		return a.generateOnce(ctx, req)
	})
}

func (a *OpenAIAdapter) generateOnce(ctx context.Context, req domain.LLMRequest) (domain.LLMResponse, error) {
	model := req.Model
	if model == "" {
		model = a.defaultModel
	}

	params := openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(model),
		Messages: a.toMessages(req),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.LLMResponse{}, a.classify(err)
	}
	if len(completion.Choices) == 0 {
		return domain.LLMResponse{}, domain.NewProviderError(a.id, "empty choices in completion", true, nil)
	}

	return domain.LLMResponse{
		Content:  completion.Choices[0].Message.Content,
		Provider: a.id,
		Model:    model,
		Usage: domain.TokenUsage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
			TotalTokens:  int(completion.Usage.TotalTokens),
		},
	}, nil
}

func (a *OpenAIAdapter) CheckHealth(ctx context.Context) domain.ProviderHealth {
	start := time.Now()
	_, err := a.client.Models.List(ctx)
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

func (a *OpenAIAdapter) SupportsModel(model string) bool {
	return supportsModel(a.models, model)
}

func (a *OpenAIAdapter) EstimateTokenCount(req domain.LLMRequest) int {
	return estimateTokens(req.PromptText())
}

func (a *OpenAIAdapter) toMessages(req domain.LLMRequest) []openai.ChatCompletionMessageParamUnion {
	if len(req.Messages) == 0 {
		return []openai.ChatCompletionMessageParamUnion{openai.UserMessage(req.Prompt)}
	}
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case "system":
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case "assistant":
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}

func (a *OpenAIAdapter) classify(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return domain.ProviderErrorFromStatus(a.id, apiErr.StatusCode, apiErr.Message, err)
	}
	return domain.NewProviderError(a.id, "request failed", domain.IsRetryable(err), err)
}
