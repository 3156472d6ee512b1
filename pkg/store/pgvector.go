package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	"github.com/xhad/lucy/internal/models"
)

func connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return pool, nil
}

func tableNames(config SnapshotConfig) (chunks, manifest string) {
	name := config.TableName
	if name == "" {
		name = "lucy_chunks"
	}
	return pgx.Identifier{name}.Sanitize(), pgx.Identifier{name + "_manifest"}.Sanitize()
}

// savePgvector replaces both tables inside one transaction; readers keep
// seeing the previous snapshot until commit.
func savePgvector(ctx context.Context, idx *Index, config SnapshotConfig) error {
	pool, err := connect(ctx, config.Location)
	if err != nil {
		return err
	}
	defer pool.Close()

	// Enable pgvector extension
	if _, err := pool.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("failed to create vector extension: %w", err)
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	chunkTable, manifestTable := tableNames(config)

	statements := []string{
		fmt.Sprintf("DROP TABLE IF EXISTS %s", chunkTable),
		fmt.Sprintf(`
			CREATE TABLE %s (
				id TEXT PRIMARY KEY,
				document_id TEXT NOT NULL,
				position INTEGER NOT NULL,
				content TEXT NOT NULL,
				metadata JSONB,
				embedding vector(%d)
			)`, chunkTable, idx.Dimension()),
		fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				id INTEGER PRIMARY KEY,
				manifest JSONB NOT NULL
			)`, manifestTable),
		fmt.Sprintf("DELETE FROM %s", manifestTable),
	}
	for _, stmt := range statements {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to prepare tables: %w", err)
		}
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (id, document_id, position, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5, $6)`, chunkTable)

	batch := &pgx.Batch{}
	for _, e := range idx.Entries() {
		batch.Queue(insert,
			e.Chunk.ID,
			e.Chunk.DocumentID,
			e.Chunk.Position,
			e.Chunk.Content,
			e.Chunk.Metadata,
			pgvector.NewVector(e.Vector),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert chunks: %w", err)
	}

	manifest, err := json.Marshal(idx.Manifest())
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("INSERT INTO %s (id, manifest) VALUES (1, $1)", manifestTable), manifest); err != nil {
		return fmt.Errorf("failed to store manifest: %w", err)
	}

	// Commit transaction
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func loadPgvector(ctx context.Context, config SnapshotConfig) (*Index, error) {
	pool, err := connect(ctx, config.Location)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	chunkTable, manifestTable := tableNames(config)

	var raw []byte
	err = pool.QueryRow(ctx, fmt.Sprintf("SELECT manifest FROM %s WHERE id = 1", manifestTable)).Scan(&raw)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == "42P01") {
			return nil, fmt.Errorf("%w in table %s", ErrNoSnapshot, manifestTable)
		}
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	var manifest Manifest
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("failed to decode manifest: %w", err)
	}

	rows, err := pool.Query(ctx, fmt.Sprintf(`
		SELECT id, document_id, position, content, metadata, embedding
		FROM %s
		ORDER BY position`, chunkTable))
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var (
			chunk     models.Chunk
			embedding pgvector.Vector
		)
		err := rows.Scan(
			&chunk.ID,
			&chunk.DocumentID,
			&chunk.Position,
			&chunk.Content,
			&chunk.Metadata,
			&embedding,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		entries = append(entries, Entry{Vector: embedding.Slice(), Chunk: chunk})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read chunks: %w", err)
	}

	return restore(entries, manifest)
}
