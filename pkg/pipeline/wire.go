package pipeline

import (
	"context"
	"fmt"

	"github.com/phuslu/log"
	"github.com/xhad/lucy/pkg/config"
	"github.com/xhad/lucy/pkg/llm"
	"github.com/xhad/lucy/pkg/processor"
	"github.com/xhad/lucy/pkg/prompt"
	"github.com/xhad/lucy/pkg/store"
)

// NewFromConfig builds every component described by cfg. The generator
// is returned as well so callers can list available models.
func NewFromConfig(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Pipeline, *llm.Generator, error) {
	chunker, err := processor.NewWithConfig(processor.ProcessorConfig{
		ChunkSize:    cfg.Processor.ChunkSize,
		ChunkOverlap: cfg.Processor.ChunkOverlap,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create processor: %w", err)
	}

	embedder, err := llm.NewEmbedderFromConfig(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create embedder: %w", err)
	}

	generator, err := llm.NewGeneratorFromConfig(ctx, cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create generator: %w", err)
	}

	builder, err := prompt.NewBuilder(prompt.BuilderConfig{
		Template:        cfg.LLM.Template,
		MaxContextChars: cfg.Retrieval.MaxContextChars,
		Logger:          logger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create prompt builder: %w", err)
	}

	// Prefer the first configured model that actually has a backend.
	defaultModel := cfg.DefaultModel()
	if available := generator.AvailableModels(cfg.LLM.Models); len(available) > 0 {
		defaultModel = available[0]
	}

	p := New(Config{
		Snapshot: store.SnapshotConfig{
			Location:  cfg.Index.Location,
			TableName: cfg.Index.TableName,
			Logger:    logger,
		},
		TopK:                 cfg.Retrieval.TopK,
		DefaultModel:         defaultModel,
		SystemPrompt:         cfg.LLM.SystemPrompt,
		GeneralContext:       cfg.LLM.GeneralContext,
		Temperature:          cfg.LLM.Temperature,
		MaxTokens:            cfg.LLM.MaxTokens,
		DropFailedEmbeddings: cfg.Index.DropFailedEmbeddings,
		Logger:               logger,
	}, chunker, embedder, generator, builder)

	return p, generator, nil
}
