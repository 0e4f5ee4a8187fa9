package vectorstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"github.com/p-n-ai/pai-quizzer/internal/embedding"
)

// SQLite is a file-backed Store. Vectors are stored as JSON and searched by
// brute force, which is fine at deck scale.
type SQLite struct {
	db       *sql.DB
	embedder embedding.Embedder
}

// NewSQLite opens (or creates) the database at path.
func NewSQLite(path string, embedder embedding.Embedder) (*SQLite, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLite{db: db, embedder: embedder}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return s, nil
}

func (s *SQLite) initSchema() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE TABLE IF NOT EXISTS chunks (
		collection TEXT NOT NULL REFERENCES collections(name) ON DELETE CASCADE,
		id TEXT NOT NULL,
		position INTEGER NOT NULL,
		document TEXT NOT NULL,
		metadata TEXT NOT NULL,
		embedding TEXT NOT NULL,
		PRIMARY KEY (collection, id)
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_collection ON chunks(collection, position);
	`)
	return err
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateCollection(ctx context.Context, name string) error {
	ok, err := s.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if ok {
		return fmt.Errorf("%s: %w", name, ErrCollectionExists)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO collections (name) VALUES (?)`, name); err != nil {
		return fmt.Errorf("create collection: %w", err)
	}
	return nil
}

func (s *SQLite) HasCollection(ctx context.Context, name string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, name).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("lookup collection: %w", err)
	}
	return true, nil
}

func (s *SQLite) DeleteCollection(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("delete collection: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	return nil
}

func (s *SQLite) Add(ctx context.Context, name string, ids, documents []string, metadatas []Metadata) error {
	return s.write(ctx, name, ids, documents, metadatas, false)
}

func (s *SQLite) Replace(ctx context.Context, name string, ids, documents []string, metadatas []Metadata) error {
	return s.write(ctx, name, ids, documents, metadatas, true)
}

func (s *SQLite) write(ctx context.Context, name string, ids, documents []string, metadatas []Metadata, replace bool) error {
	if err := checkAdd(ids, documents, metadatas); err != nil {
		return err
	}
	ok, err := s.HasCollection(ctx, name)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}

	vectors, err := s.embedder.EmbedBatch(ctx, documents)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if replace {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE collection = ?`, name); err != nil {
			return fmt.Errorf("clear chunks: %w", err)
		}
	}

	var base int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(position) + 1, 0) FROM chunks WHERE collection = ?`, name).Scan(&base); err != nil {
		return fmt.Errorf("next position: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO chunks (collection, id, position, document, metadata, embedding)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range ids {
		md, err := json.Marshal(metadatas[i])
		if err != nil {
			return fmt.Errorf("encode metadata: %w", err)
		}
		vec, err := json.Marshal(vectors[i])
		if err != nil {
			return fmt.Errorf("encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, name, ids[i], base+i, documents[i], string(md), string(vec)); err != nil {
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return tx.Commit()
}

type sqliteRow struct {
	rec Record
	vec []float32
}

func (s *SQLite) rows(ctx context.Context, name string) ([]sqliteRow, error) {
	ok, err := s.HasCollection(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document, metadata, embedding FROM chunks
		WHERE collection = ? ORDER BY position`, name)
	if err != nil {
		return nil, fmt.Errorf("query chunks: %w", err)
	}
	defer rows.Close()

	var out []sqliteRow
	for rows.Next() {
		var id, doc, md, vec string
		if err := rows.Scan(&id, &doc, &md, &vec); err != nil {
			return nil, fmt.Errorf("scan chunk: %w", err)
		}
		r := sqliteRow{rec: Record{ID: id, Document: doc}}
		if err := json.Unmarshal([]byte(md), &r.rec.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", id, err)
		}
		if err := json.Unmarshal([]byte(vec), &r.vec); err != nil {
			return nil, fmt.Errorf("decode embedding for %s: %w", id, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) Query(ctx context.Context, name, text string, k int) ([]Record, error) {
	qv, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	rows, err := s.rows(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.rec
		out[i].Distance = 1 - embedding.Cosine(qv, r.vec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Distance < out[j].Distance })
	if k >= 0 && len(out) > k {
		out = out[:k]
	}
	return out, nil
}

func (s *SQLite) Get(ctx context.Context, name string) ([]Record, error) {
	rows, err := s.rows(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(rows))
	for i, r := range rows {
		out[i] = r.rec
	}
	return out, nil
}

func (s *SQLite) Count(ctx context.Context, name string) (int, error) {
	ok, err := s.HasCollection(ctx, name)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%s: %w", name, ErrCollectionNotFound)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks WHERE collection = ?`, name).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chunks: %w", err)
	}
	return n, nil
}
