package llm

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/internal/types"
)

var _ types.Backend = (*OpenAIBackend)(nil)

// OpenAIBackend serves "OpenAI: <model>" ids with the official SDK.
type OpenAIBackend struct {
	newCompletion func(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error)
}

func NewOpenAIBackend(apiKey, baseURL string) (*OpenAIBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai: API key is required")
	}

	// Retries are owned by the Generator.
	opts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	client := openai.NewClient(opts...)

	return &OpenAIBackend{newCompletion: client.Chat.Completions.New}, nil
}

func (b *OpenAIBackend) Complete(ctx context.Context, model string, req models.GenerateRequest) (string, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}
	messages = append(messages, openai.UserMessage(req.Prompt))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    messages,
		Temperature: openai.Float(req.Temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	}

	completion, err := b.newCompletion(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) && transientStatus(apiErr.StatusCode) {
			return "", Transient(fmt.Errorf("openai: %w", err))
		}
		return "", fmt.Errorf("openai: %w", err)
	}

	if len(completion.Choices) == 0 {
		return "", fmt.Errorf("openai: no choices returned")
	}
	return completion.Choices[0].Message.Content, nil
}
