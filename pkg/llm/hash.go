package llm

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/tmc/langchaingo/embeddings"
)

var _ embeddings.Embedder = (*HashClient)(nil)

var tokenPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// HashClient is an offline embedder that hashes lowercased tokens into a
// fixed number of signed buckets and L2-normalizes the result. Texts sharing
// words land close together, which is enough for keyword-style retrieval.
type HashClient struct {
	dimensions int
}

func NewHashClient(dimensions int) *HashClient {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &HashClient{dimensions: dimensions}
}

func (c *HashClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vectors[i] = c.vector(text)
	}
	return vectors, nil
}

func (c *HashClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c.vector(text), nil
}

func (c *HashClient) vector(text string) []float32 {
	vec := make([]float32, c.dimensions)
	for _, tok := range tokenPattern.FindAllString(strings.ToLower(text), -1) {
		h := xxhash.Sum64String(tok)
		bucket := h % uint64(c.dimensions)
		if h&(1<<63) != 0 {
			vec[bucket]--
		} else {
			vec[bucket]++
		}
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec
	}
	norm = math.Sqrt(norm)
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
