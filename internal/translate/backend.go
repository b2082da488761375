package translate

import (
	"context"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/schema"

	"guideline-translator/internal/logger"
	"guideline-translator/internal/types"
)

// Backend performs a single chat completion. Implementations return the
// completion text and the number of tokens consumed.
type Backend interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, int, error)
}

// OpenAIBackend talks to an OpenAI-compatible chat completions endpoint.
type OpenAIBackend struct {
	chatModel *openai.ChatModel
	model     string
}

// NewOpenAIBackend creates a backend for the given credentials. baseURL may
// be empty to use the default OpenAI endpoint.
func NewOpenAIBackend(ctx context.Context, apiKey, baseURL, model string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, types.NewAppError(types.ErrConfig, "OpenAI API key is not configured", nil)
	}

	cfg := &openai.ChatModelConfig{
		Model:  model,
		APIKey: apiKey,
	}
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, types.NewAppError(types.ErrBackend, "failed to create chat model", err)
	}

	return &OpenAIBackend{chatModel: chatModel, model: model}, nil
}

// Complete sends a system and user message pair and returns the response content.
func (b *OpenAIBackend) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, int, error) {
	messages := []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage(userPrompt),
	}

	resp, err := b.chatModel.Generate(ctx, messages)
	if err != nil {
		return "", 0, classifyBackendError(err)
	}

	if resp == nil || resp.Content == "" {
		return "", 0, types.NewAppError(types.ErrBackend, "backend returned empty response", nil)
	}

	tokens := 0
	if resp.ResponseMeta != nil && resp.ResponseMeta.Usage != nil {
		tokens = resp.ResponseMeta.Usage.TotalTokens
	}

	logger.Debug("chat completion succeeded",
		logger.String("model", b.model),
		logger.Int("tokensUsed", tokens))

	return resp.Content, tokens, nil
}

// classifyBackendError maps transport failures onto the error taxonomy so
// retry logic can tell transient errors from permanent ones.
func classifyBackendError(err error) error {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "429") || strings.Contains(msg, "rate limit"):
		return types.NewAppError(types.ErrRateLimit, "backend rate limit exceeded", err)
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection") ||
		strings.Contains(msg, "no such host") || strings.Contains(msg, "eof"):
		return types.NewAppError(types.ErrNetwork, "backend request failed", err)
	default:
		return types.NewAppError(types.ErrBackend, "backend returned an error", err)
	}
}

// isRetryableBackendError reports whether a unit translation should be retried.
func isRetryableBackendError(err error) bool {
	if err == nil {
		return false
	}
	if appErr, ok := err.(*types.AppError); ok {
		switch appErr.Code {
		case types.ErrNetwork, types.ErrRateLimit:
			return true
		case types.ErrBackend:
			return strings.Contains(strings.ToLower(appErr.Error()), "status 5")
		}
	}
	return false
}
