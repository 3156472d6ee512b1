package llm

import (
	"context"
	"fmt"

	"github.com/phuslu/log"
	"github.com/xhad/lucy/pkg/config"
)

// NewEmbedderFromConfig builds the embedder described by cfg.Embedder.
func NewEmbedderFromConfig(cfg *config.Config, logger *log.Logger) (*Embedder, error) {
	return NewEmbedderWithConfig(EmbedderConfig{
		Provider:   cfg.Embedder.Provider,
		Model:      cfg.Embedder.Model,
		BaseURL:    cfg.Embedder.BaseURL,
		APIKey:     cfg.Embedder.APIKey,
		Dimensions: cfg.Embedder.Dimensions,
		BatchSize:  cfg.Embedder.BatchSize,
		RateLimit:  cfg.Embedder.RateLimit,
		Logger:     logger,
	})
}

// NewGeneratorFromConfig registers a backend for every provider whose
// credentials are present. Ollama needs none and is always available.
func NewGeneratorFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Generator, error) {
	g := NewGenerator(GeneratorConfig{
		Timeout:      cfg.Timeout(),
		RetryBackoff: cfg.RetryBackoff(),
		MaxRetries:   cfg.LLM.MaxRetries,
		MaxTokens:    cfg.LLM.MaxTokens,
		Logger:       logger,
	})

	g.Register(PrefixOllama, NewOllamaBackend(cfg.LLM.Ollama.BaseURL))

	if cfg.LLM.OpenAI.APIKey != "" {
		backend, err := NewOpenAIBackend(cfg.LLM.OpenAI.APIKey, cfg.LLM.OpenAI.BaseURL)
		if err != nil {
			return nil, err
		}
		g.Register(PrefixOpenAI, backend)
	}
	if cfg.LLM.Anthropic.APIKey != "" {
		backend, err := NewAnthropicBackend(cfg.LLM.Anthropic.APIKey)
		if err != nil {
			return nil, err
		}
		g.Register(PrefixAnthropic, backend)
	}
	if cfg.LLM.Gemini.APIKey != "" {
		backend, err := NewGeminiBackend(ctx, cfg.LLM.Gemini.APIKey)
		if err != nil {
			return nil, fmt.Errorf("gemini backend: %w", err)
		}
		g.Register(PrefixGemini, backend)
	}

	return g, nil
}

// AvailableModels filters the configured model ids down to those with a
// registered backend.
func (g *Generator) AvailableModels(configured []string) []string {
	var available []string
	for _, m := range configured {
		if g.Supports(m) {
			available = append(available, m)
		}
	}
	return available
}
