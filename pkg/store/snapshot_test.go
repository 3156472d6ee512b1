package store_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/lucy/pkg/store"
)

func buildIndex(t *testing.T, source string, contents ...string) *store.Index {
	t.Helper()
	entries := make([]store.Entry, len(contents))
	for i, c := range contents {
		vec := make([]float32, 4)
		vec[i%4] = 1
		entries[i] = entry(source+"_"+c, i, c, vec...)
		entries[i].Chunk.Metadata["page"] = i + 1
		entries[i].Chunk.Metadata["score_hint"] = 0.5
	}
	idx, err := store.Build(entries, store.Manifest{EmbeddingModel: "hash/xxhash-bow", DocumentID: "doc", Source: source})
	require.NoError(t, err)
	return idx
}

func TestSnapshot_BadgerRoundTrip(t *testing.T) {
	ctx := context.Background()
	config := store.SnapshotConfig{Location: filepath.Join(t.TempDir(), "index")}

	idx := buildIndex(t, "borealia.pdf", "alpha", "beta", "gamma", "delta", "epsilon")
	require.NoError(t, store.Save(ctx, idx, config))

	loaded, err := store.Load(ctx, config, store.Expect{Dimension: 4, EmbeddingModel: "hash/xxhash-bow"})
	require.NoError(t, err)

	assert.Equal(t, idx.Len(), loaded.Len())
	assert.Equal(t, idx.Manifest().Source, loaded.Manifest().Source)
	assert.Equal(t, idx.Manifest().CreatedAt.Unix(), loaded.Manifest().CreatedAt.Unix())
	for i, e := range loaded.Entries() {
		assert.Equal(t, idx.Entries()[i].Chunk.ID, e.Chunk.ID)
		assert.Equal(t, idx.Entries()[i].Chunk.Content, e.Chunk.Content)
		assert.Equal(t, idx.Entries()[i].Vector, e.Vector)
		assert.Equal(t, idx.Entries()[i].Chunk.Metadata, e.Chunk.Metadata)
		assert.IsType(t, 0, e.Chunk.Metadata["page"])
	}

	want, err := idx.Query([]float32{0, 1, 0, 0}, 2)
	require.NoError(t, err)
	got, err := loaded.Query([]float32{0, 1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, want[0].Chunk.ID, got[0].Chunk.ID)
	assert.Equal(t, want[1].Chunk.ID, got[1].Chunk.ID)
}

func TestSnapshot_SaveReplacesPrevious(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	config := store.SnapshotConfig{Location: filepath.Join(dir, "index")}

	require.NoError(t, store.Save(ctx, buildIndex(t, "first.pdf", "a", "b", "c"), config))
	require.NoError(t, store.Save(ctx, buildIndex(t, "second.pdf", "x"), config))

	loaded, err := store.Load(ctx, config, store.Expect{})
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.Len())
	assert.Equal(t, "second.pdf", loaded.Manifest().Source)

	// No temp or backup directories are left behind.
	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestSnapshot_LoadMissing(t *testing.T) {
	_, err := store.Load(context.Background(), store.SnapshotConfig{Location: filepath.Join(t.TempDir(), "nothing")}, store.Expect{})
	assert.ErrorIs(t, err, store.ErrIndexLoad)
}

func TestSnapshot_LoadRejectsMismatch(t *testing.T) {
	ctx := context.Background()
	config := store.SnapshotConfig{Location: filepath.Join(t.TempDir(), "index")}
	require.NoError(t, store.Save(ctx, buildIndex(t, "doc.pdf", "a", "b"), config))

	_, err := store.Load(ctx, config, store.Expect{Dimension: 384})
	assert.ErrorIs(t, err, store.ErrIndexLoad)

	_, err = store.Load(ctx, config, store.Expect{Dimension: 4, EmbeddingModel: "ollama/all-minilm"})
	assert.ErrorIs(t, err, store.ErrIndexLoad)
}

func TestSnapshot_SaveEmpty(t *testing.T) {
	err := store.Save(context.Background(), &store.Index{}, store.SnapshotConfig{Location: t.TempDir()})
	assert.Error(t, err)
}

func TestSnapshot_LoadMissingIsNoSnapshot(t *testing.T) {
	_, err := store.Load(context.Background(), store.SnapshotConfig{Location: filepath.Join(t.TempDir(), "nothing")}, store.Expect{})
	assert.ErrorIs(t, err, store.ErrNoSnapshot)
}
