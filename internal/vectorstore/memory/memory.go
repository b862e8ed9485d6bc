package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"htsfinder/internal/domain"
)

// Storage is an in-memory vector store using brute-force cosine
// similarity. It mirrors the filter semantics of the Qdrant store and
// backs tests and keyless local runs.
type Storage struct {
	mu        sync.RWMutex
	dimension int
	vectors   [][]float64
	rows      []domain.HtsRow
	byDigits  map[string]int
}

func NewStorage() *Storage {
	return &Storage{byDigits: make(map[string]int)}
}

func (s *Storage) Init(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return &domain.StoreError{Op: "init", Err: errors.New("invalid dimension")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dimension = dimension
	return nil
}

// Upsert replaces rows with the same digit string, matching the
// deterministic point ids of the Qdrant store.
func (s *Storage) Upsert(_ context.Context, rows []domain.HtsRow, vectors [][]float64) error {
	if len(rows) != len(vectors) {
		return &domain.StoreError{Op: "upsert", Err: errors.New("rows and vectors length mismatch")}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, v := range vectors {
		if len(v) != s.dimension {
			return &domain.StoreError{Op: "upsert", Err: errors.New("vector dimension mismatch")}
		}
		if j, ok := s.byDigits[rows[i].Digits]; ok {
			s.rows[j] = rows[i]
			s.vectors[j] = v
			continue
		}
		s.byDigits[rows[i].Digits] = len(s.rows)
		s.rows = append(s.rows, rows[i])
		s.vectors = append(s.vectors, v)
	}
	return nil
}

func (s *Storage) SearchByVector(_ context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if topK <= 0 {
		topK = 10
	}
	results := make([]domain.SearchResult, 0, topK)
	for i := range s.rows {
		if !filter.Matches(s.rows[i]) {
			continue
		}
		results = append(results, domain.SearchResult{Row: s.rows[i], Score: dot(s.vectors[i], vector)})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK < len(results) {
		results = results[:topK]
	}
	return results, nil
}

// GetByFilter returns matching rows in hts_code order.
func (s *Storage) GetByFilter(_ context.Context, filter domain.Filter, limit int) ([]domain.HtsRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 200
	}
	var rows []domain.HtsRow
	for i := range s.rows {
		if filter.Matches(s.rows[i]) {
			rows = append(rows, s.rows[i])
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Digits < rows[j].Digits })
	if limit < len(rows) {
		rows = rows[:limit]
	}
	return rows, nil
}

func (s *Storage) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows), nil
}

func (s *Storage) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectors = nil
	s.rows = nil
	s.byDigits = make(map[string]int)
	return nil
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
