package processor_test

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/lucy/internal/models"
	"github.com/xhad/lucy/pkg/processor"
)

func TestProcessor_SingleChunk(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)

	doc := models.Document{
		ID:       "doc1",
		Source:   "borealia.pdf",
		Content:  "The capital of Borealia is Nivoria.",
		Metadata: map[string]interface{}{"page": 1},
	}

	chunks, err := p.Split(doc)
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	assert.Equal(t, "doc1_0", chunks[0].ID)
	assert.Equal(t, "doc1", chunks[0].DocumentID)
	assert.Equal(t, "The capital of Borealia is Nivoria.", chunks[0].Content)
	assert.Equal(t, "borealia.pdf", chunks[0].Metadata["source"])
	assert.Equal(t, "doc1", chunks[0].Metadata["document_id"])
	assert.Equal(t, 1, chunks[0].Metadata["page"])
}

func TestProcessor_OverlapKeepsBoundaryPhrases(t *testing.T) {
	config := processor.ProcessorConfig{
		ChunkSize:    60,
		ChunkOverlap: processor.Overlap(20),
	}
	p, err := processor.NewWithConfig(config)
	require.NoError(t, err)

	words := make([]string, 120)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}
	doc := models.Document{ID: "doc", Source: "words.txt", Content: strings.Join(words, " ")}

	chunks, err := p.Split(doc)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Content), config.ChunkSize)
		assert.Equal(t, i, c.Position)
		assert.Equal(t, "words.txt", c.Metadata["source"])
	}

	// Every adjacent word pair must survive intact in at least one chunk.
	for i := 0; i+1 < len(words); i++ {
		pair := words[i] + " " + words[i+1]
		found := false
		for _, c := range chunks {
			if strings.Contains(" "+c.Content+" ", " "+pair+" ") {
				found = true
				break
			}
		}
		assert.True(t, found, "pair %q lost at a chunk boundary", pair)
	}
}

func TestProcessor_EmptyDocument(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)

	chunks, err := p.Split(models.Document{ID: "empty", Content: "  \n\n \t "})
	assert.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestProcessor_ProcessPagesKeepsIDsUnique(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 40, ChunkOverlap: processor.Overlap(10)})
	require.NoError(t, err)

	docs := []models.Document{
		{ID: "upload", Content: "Page one talks about rivers and the mountains beyond them.", Metadata: map[string]interface{}{"page": 1}},
		{ID: "upload", Content: "Page two talks about deserts and the oceans beside them.", Metadata: map[string]interface{}{"page": 2}},
	}

	chunks, err := p.Process(docs)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	seen := make(map[string]bool)
	for i, c := range chunks {
		assert.False(t, seen[c.ID], "duplicate chunk id %s", c.ID)
		seen[c.ID] = true
		assert.Equal(t, i, c.Position)
	}
	assert.Equal(t, 2, chunks[len(chunks)-1].Metadata["page"])
}

func TestProcessor_CleansWhitespaceAndInvalidUTF8(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{})
	require.NoError(t, err)

	chunks, err := p.Split(models.Document{ID: "d", Content: "Hello   \xffworld\t\tagain"})
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "Hello world again", chunks[0].Content)
}

func TestProcessor_ZeroOverlap(t *testing.T) {
	p, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 60, ChunkOverlap: processor.Overlap(0)})
	require.NoError(t, err)

	words := make([]string, 120)
	for i := range words {
		words[i] = fmt.Sprintf("w%d", i)
	}

	chunks, err := p.Split(models.Document{ID: "doc", Content: strings.Join(words, " ")})
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)

	var got []string
	for _, c := range chunks {
		got = append(got, strings.Fields(c.Content)...)
	}
	assert.Equal(t, words, got, "chunks without overlap must not repeat words")
}

func TestNewWithConfig_DefaultOverlapFollowsSize(t *testing.T) {
	_, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 150})
	assert.NoError(t, err)

	_, err = processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 4})
	assert.NoError(t, err)
}

func TestNewWithConfig_RejectsOverlapNotBelowSize(t *testing.T) {
	_, err := processor.NewWithConfig(processor.ProcessorConfig{ChunkSize: 100, ChunkOverlap: processor.Overlap(100)})
	assert.Error(t, err)
}
