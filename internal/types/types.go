package types

import (
	"context"

	"github.com/xhad/lucy/internal/models"
)

// Core interfaces

type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) []models.EmbeddingResult
	Dimensions() int
	ModelName() string
}

type Generator interface {
	Generate(ctx context.Context, req models.GenerateRequest) (*models.Generation, error)
	Supports(model string) bool
}

type Chunker interface {
	Split(doc models.Document) ([]models.Chunk, error)
	Process(docs []models.Document) ([]models.Chunk, error)
}

// Backend is one text-generation provider reached through a model prefix.
type Backend interface {
	Complete(ctx context.Context, model string, req models.GenerateRequest) (string, error)
}
