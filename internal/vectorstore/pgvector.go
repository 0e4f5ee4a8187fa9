package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/p-n-ai/pai-quizzer/internal/embedding"
)

const dbTimeout = 10 * time.Second

// PGVector is a PostgreSQL-backed Store using the pgvector extension.
type PGVector struct {
	pool     *pgxpool.Pool
	embedder embedding.Embedder
}

// NewPGVector creates a pgvector store. Call EnsureSchema before first use.
func NewPGVector(pool *pgxpool.Pool, embedder embedding.Embedder) (*PGVector, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PGVector{pool: pool, embedder: embedder}, nil
}

// EnsureSchema creates the extension and tables if missing.
func (s *PGVector) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS quiz_collections (
			name TEXT PRIMARY KEY,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS quiz_chunks (
			collection TEXT NOT NULL REFERENCES quiz_collections(name) ON DELETE CASCADE,
			id TEXT NOT NULL,
			position INTEGER NOT NULL,
			document TEXT NOT NULL,
			metadata JSONB NOT NULL,
			embedding vector NOT NULL,
			PRIMARY KEY (collection, id)
		);`)
	if err != nil {
		return fmt.Errorf("ensure vector schema: %w", err)
	}
	return nil
}

func (s *PGVector) CreateCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_collections (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", name, ErrCollectionExists)
	}
	return nil
}

func (s *PGVector) HasCollection(ctx context.Context, name string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM quiz_collections WHERE name = $1)`, name,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("lookup collection: %w", err)
	}
	return exists, nil
}

func (s *PGVector) DeleteCollection(ctx context.Context, name string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM quiz_collections WHERE name = $1`, name)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	return nil
}

func (s *PGVector) Add(ctx context.Context, name string, ids, documents []string, metadatas []Metadata) error {
	return s.write(ctx, name, ids, documents, metadatas, false)
}

func (s *PGVector) Replace(ctx context.Context, name string, ids, documents []string, metadatas []Metadata) error {
	if err := s.mustExist(ctx, name); err != nil {
		return err
	}
	return s.write(ctx, name, ids, documents, metadatas, true)
}

func (s *PGVector) write(ctx context.Context, name string, ids, documents []string, metadatas []Metadata, replace bool) error {
	if err := checkAdd(ids, documents, metadatas); err != nil {
		return err
	}
	vectors, err := s.embedder.EmbedBatch(ctx, documents)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if replace {
		if _, err := tx.Exec(ctx, `DELETE FROM quiz_chunks WHERE collection = $1`, name); err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}
	}

	var base int
	err = tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(position) + 1, 0) FROM quiz_chunks WHERE collection = $1`, name,
	).Scan(&base)
	if err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	batch := &pgx.Batch{}
	for i := range ids {
		md, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		batch.Queue(
			`INSERT INTO quiz_chunks (collection, id, position, document, metadata, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6)
			 ON CONFLICT (collection, id) DO UPDATE
			 SET document = EXCLUDED.document, metadata = EXCLUDED.metadata, embedding = EXCLUDED.embedding`,
			name, ids[i], base+i, documents[i], md, pgvector.NewVector(vectors[i]),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		var pgErr interface{ SQLState() string }
		if errors.As(err, &pgErr) && pgErr.SQLState() == "23503" {
			return fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
		}
		return fmt.Errorf("insert chunks: %w", err)
	}
	return tx.Commit(ctx)
}

func (s *PGVector) Query(ctx context.Context, name, text string, k int) ([]Record, error) {
	qv, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if err := s.mustExist(ctx, name); err != nil {
		return nil, err
	}
	if k < 0 {
		k = 0
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, document, metadata, embedding <=> $2 AS distance
		 FROM quiz_chunks
		 WHERE collection = $1
		 ORDER BY distance, position
		 LIMIT $3`,
		name, pgvector.NewVector(qv), k,
	)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	return scanRecords(rows, true)
}

func (s *PGVector) Get(ctx context.Context, name string) ([]Record, error) {
	if err := s.mustExist(ctx, name); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id, document, metadata FROM quiz_chunks WHERE collection = $1 ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("get chunks: %w", err)
	}
	return scanRecords(rows, false)
}

func (s *PGVector) Count(ctx context.Context, name string) (int, error) {
	if err := s.mustExist(ctx, name); err != nil {
		return 0, err
	}

	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var n int
	if err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM quiz_chunks WHERE collection = $1`, name,
	).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}

func (s *PGVector) mustExist(ctx context.Context, name string) error {
	ok, err := s.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	return nil
}

func scanRecords(rows pgx.Rows, withDistance bool) ([]Record, error) {
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var (
			id, doc string
			md      []byte
			rec     Record
		)
		dest := []any{&id, &doc, &md}
		if withDistance {
			dest = append(dest, &rec.Distance)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		if err := json.Unmarshal(md, &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
		rec.ID = id
		rec.Document = doc
		out = append(out, rec)
	}
	return out, rows.Err()
}
