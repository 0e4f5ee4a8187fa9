package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// Postgres stores blobs in a bytea column.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a PostgreSQL-backed blob store.
func NewPostgres(pool *pgxpool.Pool) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the blob table if missing.
func (s *Postgres) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS quiz_images (
			id TEXT PRIMARY KEY,
			extension TEXT NOT NULL,
			data BYTEA NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("ensure blob schema: %w", err)
	}
	return nil
}

func (s *Postgres) Put(ctx context.Context, data []byte, extension string) (string, error) {
	ext, err := normalizeExtension(extension)
	if err != nil {
		return "", err
	}
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	id := newID()
	if _, err := s.pool.Exec(ctx,
		`INSERT INTO quiz_images (id, extension, data) VALUES ($1, $2, $3)`,
		id, ext, data,
	); err != nil {
		return "", fmt.Errorf("insert image: %w", err)
	}
	return id, nil
}

func (s *Postgres) Get(ctx context.Context, id string) (*Blob, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	b := Blob{ID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT extension, data FROM quiz_images WHERE id = $1`, id,
	).Scan(&b.Extension, &b.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return &b, nil
}

func (s *Postgres) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM quiz_images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}
