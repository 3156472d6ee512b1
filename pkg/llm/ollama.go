package llm

import (
	"context"
	"fmt"
	"sync"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/internal/types"
)

var _ types.Backend = (*OllamaBackend)(nil)

// OllamaBackend serves "Ollama: <model>" ids through langchaingo.
type OllamaBackend struct {
	baseURL string

	mu     sync.Mutex
	models map[string]llms.Model
}

func NewOllamaBackend(baseURL string) *OllamaBackend {
	if baseURL == "" {
		baseURL = "http://localhost:11434" // Default Ollama URL
	}
	return &OllamaBackend{
		baseURL: baseURL,
		models:  make(map[string]llms.Model),
	}
}

func (b *OllamaBackend) model(name string) (llms.Model, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if m, ok := b.models[name]; ok {
		return m, nil
	}
	m, err := ollama.New(ollama.WithModel(name), ollama.WithServerURL(b.baseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}
	b.models[name] = m
	return m, nil
}

func (b *OllamaBackend) Complete(ctx context.Context, model string, req models.GenerateRequest) (string, error) {
	m, err := b.model(model)
	if err != nil {
		return "", err
	}
	return completeWithModel(ctx, m, req)
}

// completeWithModel runs a system + human exchange against any langchaingo model.
func completeWithModel(ctx context.Context, m llms.Model, req models.GenerateRequest) (string, error) {
	content := make([]llms.MessageContent, 0, 2)
	if req.SystemPrompt != "" {
		content = append(content, llms.TextParts(llms.ChatMessageTypeSystem, req.SystemPrompt))
	}
	content = append(content, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	response, err := m.GenerateContent(ctx, content,
		llms.WithTemperature(req.Temperature),
		llms.WithMaxTokens(req.MaxTokens),
	)
	if err != nil {
		if looksTransient(err) {
			return "", Transient(fmt.Errorf("chat error: %w", err))
		}
		return "", fmt.Errorf("chat error: %w", err)
	}

	if response == nil || len(response.Choices) == 0 || response.Choices[0] == nil {
		return "", fmt.Errorf("no response from LLM")
	}
	return response.Choices[0].Content, nil
}
