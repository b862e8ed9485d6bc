package memory

import (
	"context"
	"testing"

	"htsfinder/internal/domain"
)

func row(code, prefix4, prefix6 string) domain.HtsRow {
	return domain.HtsRow{HtsCode: code, Digits: code, Prefix4: prefix4, Prefix6: prefix6, Text: "t"}
}

func newStore(t *testing.T) *Storage {
	t.Helper()
	s := NewStorage()
	if err := s.Init(context.Background(), 2); err != nil {
		t.Fatalf("Init: %v", err)
	}
	err := s.Upsert(context.Background(), []domain.HtsRow{
		row("0101210010", "0101", "010121"),
		row("0101290010", "0101", "010129"),
		row("0302110000", "0302", "030211"),
	}, [][]float64{
		{1, 0},
		{0.5, 0.5},
		{0, 1},
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return s
}

func TestGetByFilterPrefix4(t *testing.T) {
	s := newStore(t)
	rows, err := s.GetByFilter(context.Background(), domain.Filter{Prefix4: "0101"}, 0)
	if err != nil {
		t.Fatalf("GetByFilter: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Prefix4 != "0101" {
			t.Errorf("row %s has prefix4 %q", r.Digits, r.Prefix4)
		}
	}
	// Ordered by code.
	if rows[0].Digits > rows[1].Digits {
		t.Errorf("rows out of order: %s before %s", rows[0].Digits, rows[1].Digits)
	}
}

func TestGetByFilterExactCode(t *testing.T) {
	s := newStore(t)
	rows, err := s.GetByFilter(context.Background(), domain.Filter{HtsCode: "0302110000"}, 0)
	if err != nil {
		t.Fatalf("GetByFilter: %v", err)
	}
	if len(rows) != 1 || rows[0].Digits != "0302110000" {
		t.Fatalf("rows = %v", rows)
	}
}

func TestSearchByVectorFilterAndOrder(t *testing.T) {
	s := newStore(t)
	results, err := s.SearchByVector(context.Background(), []float64{1, 0}, domain.Filter{Prefix4: "0101"}, 10)
	if err != nil {
		t.Fatalf("SearchByVector: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("got %d results, want 2", len(results))
	}
	if results[0].Row.Digits != "0101210010" {
		t.Errorf("best match = %s, want 0101210010", results[0].Row.Digits)
	}
	if results[0].Score < results[1].Score {
		t.Errorf("results not sorted by score: %v", results)
	}
	for _, r := range results {
		if r.Row.Prefix4 != "0101" {
			t.Errorf("filtered search returned foreign prefix4 %q", r.Row.Prefix4)
		}
	}
}

func TestUpsertReplacesSameCode(t *testing.T) {
	s := newStore(t)
	updated := row("0101210010", "0101", "010121")
	updated.Description = "updated"
	if err := s.Upsert(context.Background(), []domain.HtsRow{updated}, [][]float64{{0, 1}}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	n, _ := s.Count(context.Background())
	if n != 3 {
		t.Errorf("Count = %d, want 3 after replacing", n)
	}
	rows, _ := s.GetByFilter(context.Background(), domain.Filter{HtsCode: "0101210010"}, 0)
	if len(rows) != 1 || rows[0].Description != "updated" {
		t.Errorf("rows = %v", rows)
	}
}

func TestUpsertDimensionMismatch(t *testing.T) {
	s := NewStorage()
	if err := s.Init(context.Background(), 3); err != nil {
		t.Fatalf("Init: %v", err)
	}
	err := s.Upsert(context.Background(), []domain.HtsRow{row("0101210010", "0101", "010121")}, [][]float64{{1, 0}})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestClear(t *testing.T) {
	s := newStore(t)
	if err := s.Clear(context.Background()); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	n, _ := s.Count(context.Background())
	if n != 0 {
		t.Errorf("Count = %d after Clear", n)
	}
}
