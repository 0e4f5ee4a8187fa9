package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/p-n-ai/pai-quizzer/internal/ai"
	"github.com/p-n-ai/pai-quizzer/internal/api"
	"github.com/p-n-ai/pai-quizzer/internal/blobstore"
	"github.com/p-n-ai/pai-quizzer/internal/embedding"
	"github.com/p-n-ai/pai-quizzer/internal/ingest"
	"github.com/p-n-ai/pai-quizzer/internal/platform/cache"
	"github.com/p-n-ai/pai-quizzer/internal/platform/config"
	"github.com/p-n-ai/pai-quizzer/internal/platform/database"
	"github.com/p-n-ai/pai-quizzer/internal/quiz"
	"github.com/p-n-ai/pai-quizzer/internal/rag"
	"github.com/p-n-ai/pai-quizzer/internal/vectorstore"
	"github.com/p-n-ai/pai-quizzer/internal/vision"
)

// app is the assembled service.
type app struct {
	deps     api.Deps
	pipeline *ingest.Pipeline
	closers  []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func (a *app) onClose(fn func()) { a.closers = append(a.closers, fn) }

// newLogger builds the process logger from the log settings.
func newLogger(w io.Writer, cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// newRouter registers every configured provider, in fallback order.
func newRouter(cfg config.AIConfig) (*ai.Router, error) {
	router := ai.NewRouter()
	if cfg.OpenAI.APIKey != "" {
		router.Register("openai", ai.NewOpenAIProvider(cfg.OpenAI.APIKey, ai.WithDefaultModel(cfg.OpenAI.Model)))
	}
	if cfg.Anthropic.APIKey != "" {
		p, err := ai.NewAnthropicProvider(cfg.Anthropic.APIKey, ai.WithAnthropicModel(cfg.Anthropic.Model))
		if err != nil {
			return nil, fmt.Errorf("anthropic provider: %w", err)
		}
		router.Register("anthropic", p)
	}
	if cfg.Google.APIKey != "" {
		router.Register("google", ai.NewGoogleProvider(cfg.Google.APIKey, ai.WithGoogleModel(cfg.Google.Model)))
	}
	if cfg.DeepSeek.APIKey != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(cfg.DeepSeek.APIKey, ai.WithDefaultModel(cfg.DeepSeek.Model)), ai.TextOnly())
	}
	if cfg.OpenRouter.APIKey != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(cfg.OpenRouter.APIKey, ai.WithOpenRouterModel(cfg.OpenRouter.Model)))
	}
	if cfg.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.Ollama.URL, ai.WithOllamaModel(cfg.Ollama.Model)))
	}
	if !router.HasProvider() {
		return nil, fmt.Errorf("no AI providers configured")
	}
	if !router.HasVisionProvider() {
		slog.Warn("no vision-capable AI provider configured, image description and image questions will fail")
	}
	return router, nil
}

func (a *app) newEmbedder(ctx context.Context, cfg *config.Config) (embedding.Embedder, error) {
	switch cfg.Embedding.Backend {
	case "gemini":
		g, err := embedding.NewGemini(ctx, cfg.AI.Google.APIKey, cfg.Embedding.Model)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = g.Close() })
		return g, nil
	case "ollama":
		return embedding.NewOllama(cfg.AI.Ollama.URL, cfg.Embedding.Model), nil
	default:
		return embedding.NewHashing(cfg.Embedding.Dimension), nil
	}
}

// build assembles the service from configuration. Resources opened along
// the way are released by app.Close, also when build fails.
func build(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	checks := map[string]api.Check{}

	router, err := newRouter(cfg.AI)
	if err != nil {
		return nil, err
	}
	checks["ai"] = router.HealthCheck
	policy := ai.DefaultRetryPolicy()
	if cfg.AI.MaxRetries > 0 {
		policy.MaxAttempts = cfg.AI.MaxRetries
	}
	model := ai.NewBudget(ai.NewRetrier(router, ai.WithRetryPolicy(policy)), cfg.AI.TokenBudget)

	var db *database.DB
	if cfg.NeedsDatabase() {
		db, err = database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.onClose(db.Close)
		checks["database"] = db.HealthCheck
	}
	var schemas []database.SchemaOwner

	embedder, err := a.newEmbedder(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}

	var store vectorstore.Store
	switch cfg.VectorStore.Backend {
	case "sqlite":
		s, err := vectorstore.NewSQLite(cfg.VectorStore.Path, embedder)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = s.Close() })
		store = s
	case "pgvector":
		s, err := vectorstore.NewPGVector(db.Pool, embedder)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
		store = s
	default:
		store = vectorstore.NewMemory(embedder)
	}

	var blobs blobstore.Store
	switch cfg.BlobStore.Backend {
	case "postgres":
		b, err := blobstore.NewPostgres(db.Pool)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, b)
		blobs = b
	case "s3":
		s3cfg := cfg.BlobStore.S3
		b, err := blobstore.NewS3(ctx, blobstore.S3Config{
			Bucket:          s3cfg.Bucket,
			Region:          s3cfg.Region,
			Endpoint:        s3cfg.Endpoint,
			AccessKeyID:     s3cfg.AccessKeyID,
			SecretAccessKey: s3cfg.SecretAccessKey,
			Prefix:          s3cfg.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 blob store: %w", err)
		}
		blobs = b
	default:
		blobs = blobstore.NewMemory()
	}

	var attempts quiz.AttemptStore = quiz.NewMemoryAttemptStore()
	if cfg.Quiz.AttemptStore == "postgres" {
		s, err := quiz.NewPostgresAttemptStore(db.Pool)
		if err != nil {
			return nil, err
		}
		schemas = append(schemas, s)
		attempts = s
	}

	if err := database.EnsureSchemas(ctx, schemas...); err != nil {
		return nil, err
	}

	indexer := rag.NewIndexer(store, blobs)
	retriever := rag.NewRetriever(store)

	visionOpts := []vision.Option{
		vision.WithCacheTTL(cfg.Vision.CacheTTL),
		vision.WithHistory(vision.NewHistory(cfg.Vision.HistorySize)),
		vision.WithTopK(cfg.Vision.TopK),
		vision.WithMaxTokens(cfg.Vision.MaxTokens),
	}
	if cfg.OCR.Backend == "tesseract" {
		visionOpts = append(visionOpts, vision.WithOCR(vision.TesseractOCR{
			Binary:   cfg.OCR.Binary,
			Language: cfg.OCR.Language,
		}))
	}
	if cfg.Vision.CacheBackend == "redis" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return nil, fmt.Errorf("connect cache: %w", err)
		}
		a.onClose(func() { _ = c.Close() })
		checks["cache"] = c.HealthCheck
		visionOpts = append(visionOpts, vision.WithCache(c.Namespace("quiz:desc:")))
	}
	describer := vision.NewDescriber(model, retriever, visionOpts...)

	generator := quiz.NewGenerator(model, retriever, blobs)
	grader := quiz.NewGrader(model, quiz.WithCorrectFeedback(cfg.Quiz.CorrectFeedback))

	a.pipeline = ingest.NewPipeline(indexer, describer)
	a.deps = api.Deps{
		Pipeline:       a.pipeline,
		Indexer:        indexer,
		Retriever:      retriever,
		Questions:      generator,
		Batch:          quiz.NewBatchGenerator(generator, quiz.WithInterval(cfg.Quiz.BatchInterval)),
		Grader:         grader,
		Attempts:       quiz.NewAttemptPolicy(grader, attempts, quiz.WithMaxAttempts(cfg.Quiz.MaxAttempts)),
		Describer:      describer,
		Blobs:          blobs,
		Usage:          model,
		Checks:         checks,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	}

	slog.Info("components ready",
		"embedder", embedder.Name(),
		"vector_store", cfg.VectorStore.Backend,
		"blob_store", cfg.BlobStore.Backend,
		"ocr", cfg.OCR.Backend,
		"description_cache", cfg.Vision.CacheBackend,
		"attempt_store", cfg.Quiz.AttemptStore,
	)
	return a, nil
}

// watch ingests presentations dropped into dir until ctx is done.
func (a *app) watch(ctx context.Context, cfg config.IngestConfig) error {
	w, err := ingest.NewWatcher(a.pipeline.IngestFile,
		ingest.WithSettle(cfg.Settle),
		ingest.WithResultHandler(func(path string, res ingest.Result, err error) {
			if err != nil {
				slog.Error("ingest failed", "path", path, "error", err)
				return
			}
			slog.Info("ingested presentation",
				"path", path,
				"collection_id", res.CollectionID,
				"described", res.Report.Described,
				"failures", len(res.Report.Failures),
			)
		}),
	)
	if err != nil {
		return err
	}
	return w.Run(ctx, cfg.WatchDir)
}
