package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"github.com/ppiankov/competia/internal/model"
)

// OpenAIProvider implements the Provider interface for OpenAI models.
type OpenAIProvider struct {
	client   *openai.Client
	settings model.ProviderSettings
	pricing  *PriceTable
}

// NewOpenAIProvider creates a new OpenAI provider.
func NewOpenAIProvider(settings model.ProviderSettings, pricing *PriceTable) (*OpenAIProvider, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}

	clientConfig := openai.DefaultConfig(settings.APIKey)
	if settings.BaseURL != "" {
		clientConfig.BaseURL = settings.BaseURL
	}

	return &OpenAIProvider{
		client:   openai.NewClientWithConfig(clientConfig),
		settings: settings,
		pricing:  pricing,
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// IsAvailable checks if the provider is properly configured.
func (p *OpenAIProvider) IsAvailable(ctx context.Context) bool {
	// Lightweight API call; failures here usually mean a bad key.
	_, err := p.client.ListModels(ctx)
	return err == nil
}

// GenerateText sends a plain-text generation request.
func (p *OpenAIProvider) GenerateText(ctx context.Context, req Request) (*Generation, error) {
	return p.generate(ctx, req, false)
}

// GenerateJSON sends a request with JSON response formatting enforced.
func (p *OpenAIProvider) GenerateJSON(ctx context.Context, req Request) (*Generation, error) {
	return p.generate(ctx, req, true)
}

// EstimateCost estimates the USD cost for the given token counts.
func (p *OpenAIProvider) EstimateCost(modelName string, inputTokens, outputTokens int) float64 {
	if modelName == "" {
		modelName = p.defaultModel()
	}
	return p.pricing.Estimate(modelName, inputTokens, outputTokens)
}

func (p *OpenAIProvider) defaultModel() string {
	if p.settings.Model != "" {
		return p.settings.Model
	}
	return openai.GPT4oMini
}

func (p *OpenAIProvider) generate(ctx context.Context, req Request, asJSON bool) (*Generation, error) {
	modelName := req.Model
	if modelName == "" {
		modelName = p.defaultModel()
	}

	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2000
	}

	timeout := time.Duration(p.settings.Timeout) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	ctxWithTimeout, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	chatReq := openai.ChatCompletionRequest{
		Model: modelName,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: req.System,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: req.Prompt,
			},
		},
		MaxTokens:   maxTokens,
		Temperature: 0.2, // Low temperature for extraction fidelity
	}
	if asJSON {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctxWithTimeout, chatReq)
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response from OpenAI")
	}

	return &Generation{
		Content:      strings.TrimSpace(resp.Choices[0].Message.Content),
		Model:        modelName,
		InputTokens:  resp.Usage.PromptTokens,
		OutputTokens: resp.Usage.CompletionTokens,
	}, nil
}
