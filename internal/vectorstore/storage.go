package vectorstore

import (
	"context"

	"htsfinder/internal/domain"
)

// Storage persists row vectors with filterable payloads and supports
// similarity search restricted by those filters.
type Storage interface {
	Init(ctx context.Context, dimension int) error
	Upsert(ctx context.Context, rows []domain.HtsRow, vectors [][]float64) error
	SearchByVector(ctx context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.SearchResult, error)
	GetByFilter(ctx context.Context, filter domain.Filter, limit int) ([]domain.HtsRow, error)
	Count(ctx context.Context) (int, error)
	Clear(ctx context.Context) error
}
