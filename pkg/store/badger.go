package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"
	"github.com/timshannon/badgerhold/v4"
	"github.com/xhad/lucy/internal/models"
)

const manifestKey = "manifest"

// chunkRecord is the stored form of one Entry.
type chunkRecord struct {
	ID         string
	DocumentID string
	Position   int
	Content    string
	Metadata   map[string]interface{}
	Vector     []float32
}

func openBadger(dir string, readOnly bool) (*badgerhold.Store, error) {
	options := badgerhold.DefaultOptions
	options.Dir = dir
	options.ValueDir = dir
	options.Logger = nil
	options.ReadOnly = readOnly
	options.Encoder = json.Marshal
	options.Decoder = json.Unmarshal

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store at %s: %w", dir, err)
	}
	return store, nil
}

// saveBadger writes the snapshot into a sibling temp directory and swaps it
// into place, so a crash mid-write leaves the previous snapshot intact.
func saveBadger(ctx context.Context, idx *Index, location string) error {
	if location == "" {
		return fmt.Errorf("index location is empty")
	}
	location = filepath.Clean(location)
	if err := os.MkdirAll(filepath.Dir(location), 0o755); err != nil {
		return fmt.Errorf("failed to create index directory: %w", err)
	}

	tmp := fmt.Sprintf("%s.tmp-%s", location, uuid.NewString())
	if err := writeBadger(ctx, idx, tmp); err != nil {
		os.RemoveAll(tmp)
		return err
	}

	var old string
	if _, err := os.Stat(location); err == nil {
		old = fmt.Sprintf("%s.old-%s", location, uuid.NewString())
		if err := os.Rename(location, old); err != nil {
			os.RemoveAll(tmp)
			return fmt.Errorf("failed to move previous snapshot aside: %w", err)
		}
	}
	if err := os.Rename(tmp, location); err != nil {
		if old != "" {
			os.Rename(old, location)
		}
		os.RemoveAll(tmp)
		return fmt.Errorf("failed to install snapshot: %w", err)
	}
	if old != "" {
		os.RemoveAll(old)
	}
	return nil
}

func writeBadger(ctx context.Context, idx *Index, dir string) error {
	store, err := openBadger(dir, false)
	if err != nil {
		return err
	}

	for _, e := range idx.Entries() {
		if err := ctx.Err(); err != nil {
			store.Close()
			return err
		}
		record := chunkRecord{
			ID:         e.Chunk.ID,
			DocumentID: e.Chunk.DocumentID,
			Position:   e.Chunk.Position,
			Content:    e.Chunk.Content,
			Metadata:   e.Chunk.Metadata,
			Vector:     e.Vector,
		}
		if err := store.Upsert(e.Chunk.ID, record); err != nil {
			store.Close()
			return fmt.Errorf("failed to store chunk %s: %w", e.Chunk.ID, err)
		}
	}

	// The manifest goes last: a snapshot without one is incomplete.
	if err := store.Upsert(manifestKey, idx.Manifest()); err != nil {
		store.Close()
		return fmt.Errorf("failed to store manifest: %w", err)
	}

	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close badger store: %w", err)
	}
	return nil
}

func loadBadger(ctx context.Context, location string) (*Index, error) {
	if location == "" {
		return nil, fmt.Errorf("index location is empty")
	}
	if _, err := os.Stat(location); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s", ErrNoSnapshot, location)
		}
		return nil, fmt.Errorf("failed to stat snapshot: %w", err)
	}

	store, err := openBadger(location, true)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	var manifest Manifest
	if err := store.Get(manifestKey, &manifest); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return nil, fmt.Errorf("snapshot at %s has no manifest", location)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []chunkRecord
	if err := store.Find(&records, nil); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Position < records[j].Position })

	entries := make([]Entry, len(records))
	for i, r := range records {
		entries[i] = Entry{
			Vector: r.Vector,
			Chunk: models.Chunk{
				ID:         r.ID,
				DocumentID: r.DocumentID,
				Position:   r.Position,
				Content:    r.Content,
				Metadata:   r.Metadata,
			},
		}
	}

	return restore(entries, manifest)
}
