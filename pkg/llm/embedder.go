package llm

import (
	"context"
	"fmt"

	"github.com/phuslu/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/internal/types"
	"github.com/xhad/lucy/pkg/logging"
	"golang.org/x/time/rate"
)

var _ types.Embedder = (*Embedder)(nil)

// EmbedderConfig represents the configuration for an embedder.
type EmbedderConfig struct {
	Provider   string // ollama, openai or hash
	Model      string
	BaseURL    string
	APIKey     string
	Dimensions int
	BatchSize  int
	RateLimit  float64 // backend calls per second, 0 for unlimited
	Logger     *log.Logger
}

// Embedder maps texts to fixed-dimension vectors through a langchaingo client.
type Embedder struct {
	config  EmbedderConfig
	client  embeddings.Embedder
	limiter *rate.Limiter
	logger  *log.Logger
}

// NewEmbedderWithConfig creates the embedding client named by config.Provider.
func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	config = embedderDefaults(config)

	var client embeddings.Embedder
	switch config.Provider {
	case "ollama":
		emb, err := ollama.New(ollama.WithModel(config.Model), ollama.WithServerURL(config.BaseURL))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ollama embeddings: %w", err)
		}
		client, err = embeddings.NewEmbedder(emb, embeddings.WithBatchSize(config.BatchSize))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	case "openai":
		opts := []lcopenai.Option{lcopenai.WithEmbeddingModel(config.Model), lcopenai.WithToken(config.APIKey)}
		if config.BaseURL != "" {
			opts = append(opts, lcopenai.WithBaseURL(config.BaseURL))
		}
		emb, err := lcopenai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize openai embeddings: %w", err)
		}
		client, err = embeddings.NewEmbedder(emb, embeddings.WithBatchSize(config.BatchSize))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	case "hash":
		client = NewHashClient(config.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedder provider: %s", config.Provider)
	}

	return NewEmbedderWithClient(config, client), nil
}

// NewEmbedderWithClient wraps an existing langchaingo embedder.
func NewEmbedderWithClient(config EmbedderConfig, client embeddings.Embedder) *Embedder {
	config = embedderDefaults(config)

	e := &Embedder{
		config: config,
		client: client,
		logger: logging.OrDiscard(config.Logger),
	}
	if config.RateLimit > 0 {
		e.limiter = rate.NewLimiter(rate.Limit(config.RateLimit), 1)
	}
	return e
}

func embedderDefaults(config EmbedderConfig) EmbedderConfig {
	if config.Provider == "" {
		config.Provider = "ollama"
	}
	if config.Model == "" {
		config.Model = "all-minilm"
	}
	if config.BaseURL == "" && config.Provider == "ollama" {
		config.BaseURL = "http://localhost:11434" // Default Ollama URL
	}
	if config.Dimensions <= 0 {
		config.Dimensions = 384
	}
	if config.BatchSize <= 0 {
		config.BatchSize = 32
	}
	return config
}

func (e *Embedder) Dimensions() int { return e.config.Dimensions }

func (e *Embedder) ModelName() string { return e.config.Provider + "/" + e.config.Model }

// Embed returns the vector for text. On failure it returns a zero vector of
// the configured dimension together with an *EmbeddingError.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.embedOne(ctx, text)
	if err != nil {
		return make([]float32, e.config.Dimensions), &EmbeddingError{Err: err}
	}
	return vec, nil
}

func (e *Embedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	vec, err := e.client.EmbedQuery(ctx, text)
	if err != nil {
		return nil, err
	}
	if len(vec) != e.config.Dimensions {
		return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", e.config.Dimensions, len(vec))
	}
	return vec, nil
}

// EmbedMany embeds texts in batches. A failed batch is retried item by item
// so one bad text only costs its own result.
func (e *Embedder) EmbedMany(ctx context.Context, texts []string) []models.EmbeddingResult {
	results := make([]models.EmbeddingResult, len(texts))

	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := min(start+e.config.BatchSize, len(texts))
		batch := texts[start:end]

		vectors, err := e.embedBatch(ctx, batch)
		if err == nil {
			for i, vec := range vectors {
				results[start+i] = models.EmbeddingResult{Vector: vec}
			}
			continue
		}

		if ctx.Err() != nil {
			e.fail(results, start, len(texts), ctx.Err())
			return results
		}

		e.logger.Warn().Err(err).Int("batch_start", start).Int("batch_size", len(batch)).
			Msg("batch embedding failed, retrying items one by one")

		for i, text := range batch {
			vec, err := e.embedOne(ctx, text)
			if err != nil {
				e.logger.Warn().Err(err).Int("item", start+i).Msg("embedding failed, using zero vector")
				results[start+i] = models.EmbeddingResult{
					Vector: make([]float32, e.config.Dimensions),
					Err:    &EmbeddingError{Index: start + i, Err: err},
				}
				continue
			}
			results[start+i] = models.EmbeddingResult{Vector: vec}
		}
	}

	return results
}

func (e *Embedder) embedBatch(ctx context.Context, batch []string) ([][]float32, error) {
	if err := e.wait(ctx); err != nil {
		return nil, err
	}
	vectors, err := e.client.EmbedDocuments(ctx, batch)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(batch) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(batch), len(vectors))
	}
	for _, vec := range vectors {
		if len(vec) != e.config.Dimensions {
			return nil, fmt.Errorf("dimension mismatch: expected %d, got %d", e.config.Dimensions, len(vec))
		}
	}
	return vectors, nil
}

func (e *Embedder) fail(results []models.EmbeddingResult, from, to int, err error) {
	for i := from; i < to; i++ {
		results[i] = models.EmbeddingResult{
			Vector: make([]float32, e.config.Dimensions),
			Err:    &EmbeddingError{Index: i, Err: err},
		}
	}
}

func (e *Embedder) wait(ctx context.Context) error {
	if e.limiter == nil {
		return ctx.Err()
	}
	return e.limiter.Wait(ctx)
}
