// Package ingest turns presentation files into indexed, described
// collections, either on request or by watching a directory.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/p-n-ai/pai-quizzer/internal/presentation"
	"github.com/p-n-ai/pai-quizzer/internal/rag"
	"github.com/p-n-ai/pai-quizzer/internal/vision"
)

// Describer describes the images of a presentation in place.
type Describer interface {
	DescribePresentation(ctx context.Context, p *presentation.Presentation, collectionID string) (vision.Report, error)
}

// Result is the outcome of one ingestion.
type Result struct {
	CollectionID string                     `json:"collection_id"`
	Presentation *presentation.Presentation `json:"presentation"`
	Report       vision.Report              `json:"report"`
}

// Pipeline indexes a presentation and describes its images.
type Pipeline struct {
	indexer   *rag.Indexer
	describer Describer
}

// NewPipeline creates a pipeline. describer may be nil to skip image
// descriptions.
func NewPipeline(indexer *rag.Indexer, describer Describer) *Pipeline {
	return &Pipeline{indexer: indexer, describer: describer}
}

// Ingest uploads p's images, creates its collection, describes the images
// using that collection as context and reindexes the described deck. A deck
// whose only content is images is described first and indexed afterwards.
func (pl *Pipeline) Ingest(ctx context.Context, p *presentation.Presentation) (Result, error) {
	res := Result{Presentation: p}

	id, err := pl.indexer.CreateCollection(ctx, p)
	switch {
	case errors.Is(err, rag.ErrEmptyContent) && pl.describer != nil && len(p.Images()) > 0:
		return pl.ingestImageOnly(ctx, p)
	case err != nil:
		return res, fmt.Errorf("index %s: %w", p.Name, err)
	}
	res.CollectionID = id

	if pl.describer == nil || len(p.Images()) == 0 {
		return res, nil
	}

	res.Report, err = pl.describer.DescribePresentation(ctx, p, id)
	if err != nil {
		return res, fmt.Errorf("describe %s: %w", p.Name, err)
	}
	if res.Report.Described > 0 {
		if err := pl.indexer.Reindex(ctx, id, p); err != nil {
			return res, fmt.Errorf("reindex %s: %w", p.Name, err)
		}
	}

	slog.Info("presentation ingested",
		"collection_id", id,
		"presentation", p.Name,
		"described", res.Report.Described,
		"failed", len(res.Report.Failures),
	)
	return res, nil
}

func (pl *Pipeline) ingestImageOnly(ctx context.Context, p *presentation.Presentation) (Result, error) {
	res := Result{Presentation: p}
	if err := pl.indexer.UploadImages(ctx, p); err != nil {
		return res, err
	}

	var err error
	res.Report, err = pl.describer.DescribePresentation(ctx, p, "")
	if err != nil {
		return res, fmt.Errorf("describe %s: %w", p.Name, err)
	}

	res.CollectionID, err = pl.indexer.CreateCollection(ctx, p)
	if err != nil {
		return res, fmt.Errorf("index %s: %w", p.Name, err)
	}
	slog.Info("image-only presentation ingested",
		"collection_id", res.CollectionID,
		"presentation", p.Name,
		"described", res.Report.Described,
	)
	return res, nil
}

// Load parses a .pptx deck or a .yaml/.yml manifest.
func Load(path string) (*presentation.Presentation, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pptx":
		return presentation.ParsePPTXFile(path)
	case ".yaml", ".yml":
		return presentation.LoadManifest(path)
	default:
		return nil, fmt.Errorf("unsupported presentation file %s", filepath.Base(path))
	}
}

// IngestFile loads and ingests the file at path.
func (pl *Pipeline) IngestFile(ctx context.Context, path string) (Result, error) {
	p, err := Load(path)
	if err != nil {
		return Result{}, err
	}
	return pl.Ingest(ctx, p)
}
