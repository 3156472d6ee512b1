package llm_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/lucy/pkg/llm"
)

// flakyClient fails any text containing "poison"; a batch holding one fails whole.
type flakyClient struct {
	dims       int
	batchCalls int
}

func (c *flakyClient) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	c.batchCalls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.Contains(text, "poison") {
			return nil, errors.New("backend rejected input")
		}
		out[i] = c.vec(text)
	}
	return out, nil
}

func (c *flakyClient) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "poison") {
		return nil, errors.New("backend rejected input")
	}
	return c.vec(text), nil
}

func (c *flakyClient) vec(text string) []float32 {
	v := make([]float32, c.dims)
	v[len(text)%c.dims] = 1
	return v
}

func TestEmbedMany_PartialFailureKeepsOrder(t *testing.T) {
	client := &flakyClient{dims: 4}
	emb := llm.NewEmbedderWithClient(llm.EmbedderConfig{Provider: "test", Model: "fake", Dimensions: 4, BatchSize: 2}, client)

	texts := []string{"a", "bb", "poison", "ccc", "dddd"}
	results := emb.EmbedMany(context.Background(), texts)
	require.Len(t, results, len(texts))

	for i, r := range results {
		assert.Len(t, r.Vector, 4, "item %d", i)
		if i == 2 {
			var embErr *llm.EmbeddingError
			require.ErrorAs(t, r.Err, &embErr)
			assert.Equal(t, 2, embErr.Index)
			assert.Equal(t, []float32{0, 0, 0, 0}, r.Vector)
			continue
		}
		assert.NoError(t, r.Err, "item %d", i)
	}
	assert.Equal(t, float32(1), results[1].Vector[2])
}

func TestEmbedMany_CancelledContextFailsRemaining(t *testing.T) {
	emb := llm.NewEmbedderWithClient(llm.EmbedderConfig{Dimensions: 4, BatchSize: 1}, &flakyClient{dims: 4})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	results := emb.EmbedMany(ctx, []string{"a", "b", "c"})
	require.Len(t, results, 3)
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestEmbed_FailureReturnsZeroVector(t *testing.T) {
	emb := llm.NewEmbedderWithClient(llm.EmbedderConfig{Dimensions: 4}, &flakyClient{dims: 4})

	vec, err := emb.Embed(context.Background(), "poison pill")
	var embErr *llm.EmbeddingError
	require.ErrorAs(t, err, &embErr)
	assert.Equal(t, []float32{0, 0, 0, 0}, vec)
}

func TestEmbed_DimensionMismatch(t *testing.T) {
	emb := llm.NewEmbedderWithClient(llm.EmbedderConfig{Dimensions: 8}, &flakyClient{dims: 4})

	_, err := emb.Embed(context.Background(), "hello")
	assert.ErrorContains(t, err, "dimension mismatch")
}

func TestHashEmbedder(t *testing.T) {
	emb, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "hash", Model: "xxhash-bow", Dimensions: 64})
	require.NoError(t, err)
	assert.Equal(t, 64, emb.Dimensions())
	assert.Equal(t, "hash/xxhash-bow", emb.ModelName())

	ctx := context.Background()
	a, err := emb.Embed(ctx, "The capital of Borealia is Nivoria.")
	require.NoError(t, err)
	b, err := emb.Embed(ctx, "the CAPITAL of borealia is nivoria")
	require.NoError(t, err)
	assert.Equal(t, a, b)

	var norm float32
	for _, v := range a {
		norm += v * v
	}
	assert.InDelta(t, 1.0, norm, 1e-5)

	empty, err := emb.Embed(ctx, "")
	require.NoError(t, err)
	assert.Len(t, empty, 64)
}

func TestNewEmbedderWithConfig_UnknownProvider(t *testing.T) {
	_, err := llm.NewEmbedderWithConfig(llm.EmbedderConfig{Provider: "carrier-pigeon"})
	assert.Error(t, err)
}
