package quiz

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const dbTimeout = 5 * time.Second

// PostgresAttemptStore is a PostgreSQL-backed AttemptStore.
type PostgresAttemptStore struct {
	pool *pgxpool.Pool
}

// NewPostgresAttemptStore creates the store. Call EnsureSchema before first use.
func NewPostgresAttemptStore(pool *pgxpool.Pool) (*PostgresAttemptStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is nil")
	}
	return &PostgresAttemptStore{pool: pool}, nil
}

// EnsureSchema creates the attempts table if missing.
func (s *PostgresAttemptStore) EnsureSchema(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS quiz_attempts (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			student_id TEXT NOT NULL,
			question_id TEXT NOT NULL,
			number INTEGER NOT NULL CHECK (number > 0),
			answer TEXT NOT NULL,
			grade SMALLINT NOT NULL CHECK (grade BETWEEN 0 AND 2),
			feedback TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			UNIQUE (student_id, question_id, number)
		)`)
	if err != nil {
		return fmt.Errorf("ensure attempts schema: %w", err)
	}
	return nil
}

func (s *PostgresAttemptStore) RecordAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	err := s.pool.QueryRow(ctx,
		`INSERT INTO quiz_attempts (student_id, question_id, number, answer, grade, feedback)
		 SELECT $1::text, $2::text, $3::int, $4, $5, $6
		 WHERE $3::int = (SELECT COUNT(*)::int + 1 FROM quiz_attempts WHERE student_id = $1 AND question_id = $2)
		 RETURNING id::text, created_at`,
		a.StudentID, a.QuestionID, a.Number, a.Answer, a.Grade, a.Feedback,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == "23505") {
			return Attempt{}, fmt.Errorf("attempt %d for %s: %w", a.Number, a.QuestionID, ErrAttemptConflict)
		}
		return Attempt{}, fmt.Errorf("insert attempt: %w", err)
	}
	return a, nil
}

func (s *PostgresAttemptStore) ListAttempts(ctx context.Context, studentID, questionID string) ([]Attempt, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	rows, err := s.pool.Query(ctx,
		`SELECT id::text, student_id, question_id, number, answer, grade, feedback, created_at
		 FROM quiz_attempts
		 WHERE student_id = $1 AND question_id = $2
		 ORDER BY number ASC`,
		studentID, questionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.ID, &a.StudentID, &a.QuestionID, &a.Number, &a.Answer, &a.Grade, &a.Feedback, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
