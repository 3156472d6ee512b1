package store

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/xhad/lucy/internal/models"
)

// FormatVersion is written into every snapshot manifest.
const FormatVersion = 1

var (
	ErrIndexBuild   = errors.New("index build failed")
	ErrIndexLoad    = errors.New("index load failed")
	ErrInvalidQuery = errors.New("invalid query")

	// ErrInvalidK and ErrDimensionMismatch refine ErrInvalidQuery.
	ErrInvalidK          = errors.New("k must be positive")
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrNoSnapshot means nothing has been saved at a location yet.
	ErrNoSnapshot = errors.New("no snapshot")
)

// Manifest describes an index snapshot.
type Manifest struct {
	Version        int       `json:"version"`
	Dimension      int       `json:"dimension"`
	EmbeddingModel string    `json:"embedding_model"`
	Count          int       `json:"count"`
	DocumentID     string    `json:"document_id"`
	Source         string    `json:"source"`
	CreatedAt      time.Time `json:"created_at"`
}

// Entry pairs a chunk with its embedding.
type Entry struct {
	Vector []float32
	Chunk  models.Chunk
}

// Index is an immutable in-memory vector index searched by brute-force
// cosine similarity. The zero value is an empty index.
type Index struct {
	manifest Manifest
	entries  []Entry
	norms    []float64
}

// Build validates entries and returns an index over them. Dimension, Count
// and Version of the manifest are filled from the entries.
func Build(entries []Entry, manifest Manifest) (*Index, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: no entries", ErrIndexBuild)
	}

	dim := len(entries[0].Vector)
	if dim == 0 {
		return nil, fmt.Errorf("%w: zero-dimension vector", ErrIndexBuild)
	}

	idx := &Index{
		entries: make([]Entry, len(entries)),
		norms:   make([]float64, len(entries)),
	}
	for i, e := range entries {
		if len(e.Vector) != dim {
			return nil, fmt.Errorf("%w: entry %d has dimension %d, expected %d", ErrIndexBuild, i, len(e.Vector), dim)
		}
		if strings.TrimSpace(e.Chunk.Content) == "" {
			return nil, fmt.Errorf("%w: entry %d has an empty chunk", ErrIndexBuild, i)
		}
		idx.entries[i] = e
		idx.norms[i] = norm(e.Vector)
	}

	manifest.Version = FormatVersion
	manifest.Dimension = dim
	manifest.Count = len(entries)
	if manifest.CreatedAt.IsZero() {
		manifest.CreatedAt = time.Now().UTC()
	}
	idx.manifest = manifest

	return idx, nil
}

func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entries)
}

func (idx *Index) Dimension() int {
	if idx == nil {
		return 0
	}
	return idx.manifest.Dimension
}

func (idx *Index) Manifest() Manifest {
	if idx == nil {
		return Manifest{}
	}
	return idx.manifest
}

// Entries returns the indexed pairs in insertion order. The slice is shared
// and must not be modified.
func (idx *Index) Entries() []Entry {
	if idx == nil {
		return nil
	}
	return idx.entries
}

// Query returns the k entries most similar to vec, best first. Ties keep
// insertion order. An empty index yields an empty result.
func (idx *Index) Query(vec []float32, k int) ([]models.ScoredChunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("%w: %w, got %d", ErrInvalidQuery, ErrInvalidK, k)
	}
	if idx.Len() == 0 {
		return []models.ScoredChunk{}, nil
	}
	if len(vec) != idx.manifest.Dimension {
		return nil, fmt.Errorf("%w: %w: query dimension %d, index dimension %d",
			ErrInvalidQuery, ErrDimensionMismatch, len(vec), idx.manifest.Dimension)
	}

	qnorm := norm(vec)
	scored := make([]models.ScoredChunk, len(idx.entries))
	for i, e := range idx.entries {
		scored[i] = models.ScoredChunk{Chunk: e.Chunk, Score: cosine(vec, qnorm, e.Vector, idx.norms[i])}
	}

	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})

	return scored[:min(k, len(scored))], nil
}

// cosine is 0 when either vector is all zeros.
func cosine(a []float32, anorm float64, b []float32, bnorm float64) float64 {
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (anorm * bnorm)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}
