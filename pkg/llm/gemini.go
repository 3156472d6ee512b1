package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/internal/types"
	"google.golang.org/genai"
)

var _ types.Backend = (*GeminiBackend)(nil)

// GeminiBackend serves "Gemini: <model>" ids.
type GeminiBackend struct {
	client *genai.Client
}

func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: API key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

func geminiConfig(req models.GenerateRequest) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.SystemPrompt != "" {
		config.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	return config
}

func (b *GeminiBackend) Complete(ctx context.Context, model string, req models.GenerateRequest) (string, error) {
	config := geminiConfig(req)
	contents := []*genai.Content{genai.NewContentFromText(req.Prompt, genai.RoleUser)}
	resp, err := b.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		if looksTransient(err) {
			return "", Transient(fmt.Errorf("gemini: %w", err))
		}
		return "", fmt.Errorf("gemini: %w", err)
	}

	var response strings.Builder
	if resp != nil {
		for _, candidate := range resp.Candidates {
			if candidate.Content == nil {
				continue
			}
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					response.WriteString(part.Text)
				}
			}
			if response.Len() > 0 {
				break
			}
		}
	}
	return response.String(), nil
}
