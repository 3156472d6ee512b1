package store

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/phuslu/log"
	"github.com/xhad/lucy/pkg/logging"
)

// SnapshotConfig says where an index snapshot lives. A postgres:// or
// postgresql:// location selects the pgvector backend, anything else is a
// Badger directory.
type SnapshotConfig struct {
	Location  string
	TableName string // pgvector only
	Logger    *log.Logger
}

// Expect is what the active embedder requires of a loaded snapshot.
type Expect struct {
	Dimension      int
	EmbeddingModel string
}

// Save writes idx to the configured location, replacing whatever was there.
func Save(ctx context.Context, idx *Index, config SnapshotConfig) error {
	if idx.Len() == 0 {
		return fmt.Errorf("cannot save an empty index")
	}
	logger := logging.OrDiscard(config.Logger)

	var err error
	if isPostgres(config.Location) {
		err = savePgvector(ctx, idx, config)
	} else {
		err = saveBadger(ctx, idx, config.Location)
	}
	if err != nil {
		return err
	}

	logger.Info().Str("location", redact(config.Location)).Int("chunks", idx.Len()).
		Int("dimension", idx.Dimension()).Msg("index snapshot saved")
	return nil
}

// Load reads the snapshot at the configured location and checks it against
// expect. Every failure wraps ErrIndexLoad.
func Load(ctx context.Context, config SnapshotConfig, expect Expect) (*Index, error) {
	var (
		idx *Index
		err error
	)
	if isPostgres(config.Location) {
		idx, err = loadPgvector(ctx, config)
	} else {
		idx, err = loadBadger(ctx, config.Location)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIndexLoad, err)
	}

	m := idx.Manifest()
	if expect.Dimension != 0 && m.Dimension != expect.Dimension {
		return nil, fmt.Errorf("%w: snapshot dimension %d, embedder dimension %d", ErrIndexLoad, m.Dimension, expect.Dimension)
	}
	if expect.EmbeddingModel != "" && m.EmbeddingModel != expect.EmbeddingModel {
		return nil, fmt.Errorf("%w: snapshot built with %q, embedder is %q", ErrIndexLoad, m.EmbeddingModel, expect.EmbeddingModel)
	}

	logging.OrDiscard(config.Logger).Info().Str("location", redact(config.Location)).
		Int("chunks", idx.Len()).Str("source", m.Source).Msg("index snapshot loaded")
	return idx, nil
}

// restore rebuilds an index from stored entries and checks them against
// their manifest.
func restore(entries []Entry, manifest Manifest) (*Index, error) {
	if manifest.Version != FormatVersion {
		return nil, fmt.Errorf("unknown snapshot format version %d", manifest.Version)
	}
	if len(entries) != manifest.Count {
		return nil, fmt.Errorf("snapshot holds %d chunks, manifest says %d", len(entries), manifest.Count)
	}
	for _, e := range entries {
		restoreNumbers(e.Chunk.Metadata)
	}
	idx, err := Build(entries, manifest)
	if err != nil {
		return nil, err
	}
	if idx.Dimension() != manifest.Dimension {
		return nil, fmt.Errorf("snapshot vectors have dimension %d, manifest says %d", idx.Dimension(), manifest.Dimension)
	}
	return idx, nil
}

// restoreNumbers turns whole JSON numbers back into ints, so metadata such
// as page numbers keeps the type it had when the index was built.
func restoreNumbers(metadata map[string]interface{}) {
	for k, v := range metadata {
		f, ok := v.(float64)
		if ok && f == math.Trunc(f) && math.Abs(f) <= math.MaxInt32 {
			metadata[k] = int(f)
		}
	}
}

func isPostgres(location string) bool {
	return strings.HasPrefix(location, "postgres://") || strings.HasPrefix(location, "postgresql://")
}

// redact hides the password of a connection URL in logs.
func redact(location string) string {
	if !isPostgres(location) {
		return location
	}
	scheme, rest, _ := strings.Cut(location, "://")
	userinfo, host, ok := strings.Cut(rest, "@")
	if !ok {
		return location
	}
	user, _, _ := strings.Cut(userinfo, ":")
	return scheme + "://" + user + ":***@" + host
}
