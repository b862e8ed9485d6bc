package service

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"htsfinder/internal/domain"
	"htsfinder/internal/embedding"
	"htsfinder/internal/normalize"
	"htsfinder/internal/vectorstore"
)

// Pipeline runs the ingest flow: flatten the raw CSV, embed row texts and
// upload the vectors. Collaborator failures abort the run; a partially
// embedded schedule would corrupt retrieval consistency.
type Pipeline struct {
	flattener *normalize.Flattener
	embedder  embedding.Embedder
	store     vectorstore.Storage
	log       *slog.Logger
}

// Stats reports the outcome of one ingest run.
type Stats struct {
	Processed int // rows normalized and embedded
	Skipped   int // rows dropped by validation
	Uploaded  int // points written to the store
}

func NewPipeline(flattener *normalize.Flattener, embedder embedding.Embedder, store vectorstore.Storage, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{flattener: flattener, embedder: embedder, store: store, log: log}
}

// corpusPreparer is implemented by local embedders that need a pass over
// the corpus before embedding (TF-IDF).
type corpusPreparer interface {
	Prepare(corpus []string) error
}

// Ingest normalizes the schedule from r and uploads one vector per row.
func (p *Pipeline) Ingest(ctx context.Context, r io.Reader) (Stats, error) {
	res, err := p.flattener.Flatten(r)
	if err != nil {
		return Stats{}, fmt.Errorf("flatten: %w", err)
	}
	stats := Stats{Processed: len(res.Rows), Skipped: res.Skipped}
	if len(res.Rows) == 0 {
		return stats, fmt.Errorf("no usable rows in input (skipped %d)", res.Skipped)
	}
	p.log.Info("normalized schedule", "rows", stats.Processed, "skipped", stats.Skipped)

	texts := make([]string, len(res.Rows))
	for i, row := range res.Rows {
		texts[i] = row.Text
	}
	if prep, ok := p.embedder.(corpusPreparer); ok {
		if err := prep.Prepare(texts); err != nil {
			return stats, &domain.EmbeddingError{Op: "prepare", Err: err}
		}
	}
	vectors, err := p.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return stats, err
	}
	p.log.Info("embedded rows", "embedder", p.embedder.Name(), "dimension", p.embedder.Dimension())

	if err := p.store.Init(ctx, p.embedder.Dimension()); err != nil {
		return stats, err
	}
	if err := p.store.Upsert(ctx, res.Rows, vectors); err != nil {
		return stats, err
	}
	stats.Uploaded = len(res.Rows)
	p.log.Info("uploaded points", "count", stats.Uploaded)
	return stats, nil
}
