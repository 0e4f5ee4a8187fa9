package quiz_test

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/p-n-ai/pai-quizzer/internal/quiz"
)

func TestNewPostgresAttemptStore_NilPool(t *testing.T) {
	if _, err := quiz.NewPostgresAttemptStore(nil); err == nil {
		t.Fatal("NewPostgresAttemptStore(nil) should fail")
	}
}

func TestPostgresAttemptStore(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := t.Context()
	ctr, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("quiz"),
		postgres.WithUsername("quiz"),
		postgres.WithPassword("quiz"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatal(err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatal(err)
	}
	defer pool.Close()

	store, err := quiz.NewPostgresAttemptStore(pool)
	if err != nil {
		t.Fatal(err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema() error = %v", err)
	}

	policy := quiz.NewAttemptPolicy(&scriptedGrader{grades: []quiz.Grade{{Score: 1, Feedback: "Close."}, {Score: 2, Feedback: "Good job."}}}, store)
	q := franceQuestion()
	if _, err := policy.Submit(ctx, "s1", q, "Paris?"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if _, err := policy.Submit(ctx, "s1", q, "Paris"); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	attempts, err := store.ListAttempts(ctx, "s1", q.ID)
	if err != nil || len(attempts) != 2 {
		t.Fatalf("ListAttempts() = %v, %v", attempts, err)
	}
	if attempts[0].Number != 1 || attempts[1].Grade != 2 || attempts[1].Answer != "Paris" {
		t.Errorf("attempts = %+v", attempts)
	}

	if _, err := store.RecordAttempt(ctx, quiz.Attempt{StudentID: "s1", QuestionID: q.ID, Number: 2}); !errors.Is(err, quiz.ErrAttemptConflict) {
		t.Errorf("duplicate RecordAttempt() error = %v", err)
	}

	report, err := quiz.FinalScore(ctx, store, "s1", "Geo", []quiz.Question{*q})
	if err != nil || report.Percent != 100 {
		t.Errorf("FinalScore() = %+v, %v", report, err)
	}
}
