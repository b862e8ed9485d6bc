package embedding

import "context"

// Embedder converts free text into a numeric vector representation.
// Dimension is fixed for the duration of one pipeline run.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(ctx context.Context, text string) ([]float64, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float64, error)
}
