package retriever

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/phuslu/log"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/internal/types"
	"github.com/xhad/lucy/pkg/logging"
	"github.com/xhad/lucy/pkg/store"
)

// ErrQuestionEmbedding wraps a failure to embed the question itself.
var ErrQuestionEmbedding = errors.New("failed to embed question")

// Searcher is the read side of a vector index.
type Searcher interface {
	Query(vec []float32, k int) ([]models.ScoredChunk, error)
}

// Retriever embeds a question and looks up its nearest chunks.
type Retriever struct {
	embedder types.Embedder
	logger   *log.Logger
}

func New(embedder types.Embedder, logger *log.Logger) *Retriever {
	return &Retriever{embedder: embedder, logger: logging.OrDiscard(logger)}
}

// Retrieve returns the k chunks of index closest to question, best first.
func (r *Retriever) Retrieve(ctx context.Context, index Searcher, question string, k int) (*models.RetrievalResult, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %w, got %d", store.ErrInvalidQuery, store.ErrInvalidK, k)
	}
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("%w: empty question", store.ErrInvalidQuery)
	}

	start := time.Now()
	vec, err := r.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQuestionEmbedding, err)
	}

	chunks, err := index.Query(vec, k)
	if err != nil {
		return nil, err
	}

	r.logger.Debug().Int("k", k).Int("results", len(chunks)).Dur("duration", time.Since(start)).
		Msg("retrieved context")

	return &models.RetrievalResult{Question: question, K: k, Chunks: chunks}, nil
}
