package service

import (
	"context"
	"errors"
	"testing"

	"htsfinder/internal/domain"
	"htsfinder/internal/normalize"
	"htsfinder/internal/vectorstore/memory"
)

// fakeEmbedder returns canned vectors keyed by text.
type fakeEmbedder struct {
	vecs map[string][]float64
	dim  int
}

func (f *fakeEmbedder) Name() string   { return "fake" }
func (f *fakeEmbedder) Dimension() int { return f.dim }

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float64, error) {
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return make([]float64, f.dim), nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func mustRow(t *testing.T, code, desc string, specs ...string) domain.HtsRow {
	t.Helper()
	row, err := normalize.NormalizeRow(normalize.RawRow{Code: code, Description: desc, SpecLevels: specs})
	if err != nil {
		t.Fatalf("NormalizeRow(%q): %v", code, err)
	}
	return row
}

func seededNarrower(t *testing.T) (*Narrower, *fakeEmbedder) {
	t.Helper()
	rows := []domain.HtsRow{
		mustRow(t, "0101.21.00.10", "Live horses", "Purebred breeding animals", "Males"),
		mustRow(t, "0101.21.00.20", "Live horses", "Purebred breeding animals", "Females"),
		mustRow(t, "0101.29.00.10", "Live horses", "Other", "Imported for immediate slaughter"),
		mustRow(t, "0302.11.00.00", "Fish, fresh or chilled", "Trout"),
	}
	emb := &fakeEmbedder{dim: 2, vecs: map[string][]float64{
		rows[0].Text: {1, 0},
		rows[1].Text: {1, 0}, // deliberate tie with row 0
		rows[2].Text: {0.6, 0.4},
		rows[3].Text: {0, 1},
		"horses":     {1, 0},
		"fish":       {0, 1},
	}}
	store := memory.NewStorage()
	ctx := context.Background()
	if err := store.Init(ctx, 2); err != nil {
		t.Fatalf("Init: %v", err)
	}
	vecs, err := emb.EmbedBatch(ctx, []string{rows[0].Text, rows[1].Text, rows[2].Text, rows[3].Text})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if err := store.Upsert(ctx, rows, vecs); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	return NewNarrower(emb, store), emb
}

func TestExactLookup(t *testing.T) {
	n, _ := seededNarrower(t)
	ctx := context.Background()

	row, err := n.ExactLookup(ctx, "0101.21.00.10")
	if err != nil {
		t.Fatalf("ExactLookup: %v", err)
	}
	if row.Digits != "0101210010" || row.Prefix4 != "0101" || row.Prefix6 != "010121" {
		t.Errorf("row = %+v", row)
	}

	// Dot placement must not matter.
	row2, err := n.ExactLookup(ctx, "01012100.10")
	if err != nil {
		t.Fatalf("ExactLookup without dots: %v", err)
	}
	if row2.Digits != row.Digits {
		t.Errorf("normalized lookups disagree: %q vs %q", row2.Digits, row.Digits)
	}
}

func TestExactLookupNotFound(t *testing.T) {
	n, _ := seededNarrower(t)
	_, err := n.ExactLookup(context.Background(), "9999.99.99.99")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExactLookupRejectsShortCode(t *testing.T) {
	n, _ := seededNarrower(t)
	_, err := n.ExactLookup(context.Background(), "01")
	var ve *domain.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want ValidationError", err)
	}
}

func TestPrefixNarrowPurity(t *testing.T) {
	n, _ := seededNarrower(t)
	rows, err := n.PrefixNarrow(context.Background(), "0101")
	if err != nil {
		t.Fatalf("PrefixNarrow: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("got %d rows, want 3", len(rows))
	}
	for _, r := range rows {
		if r.Prefix4 != "0101" {
			t.Errorf("foreign prefix4 %q in results", r.Prefix4)
		}
	}
	for i := 1; i < len(rows); i++ {
		if rows[i-1].Digits > rows[i].Digits {
			t.Errorf("rows out of order at %d", i)
		}
	}
}

func TestPrefixNarrowSixDigits(t *testing.T) {
	n, _ := seededNarrower(t)
	rows, err := n.PrefixNarrow(context.Background(), "0101.21")
	if err != nil {
		t.Fatalf("PrefixNarrow: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}
	for _, r := range rows {
		if r.Prefix6 != "010121" {
			t.Errorf("foreign prefix6 %q", r.Prefix6)
		}
	}
}

func TestPrefixNarrowRejectsOddLength(t *testing.T) {
	n, _ := seededNarrower(t)
	for _, prefix := range []string{"010", "01012", "0101210"} {
		_, err := n.PrefixNarrow(context.Background(), prefix)
		var ve *domain.ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("PrefixNarrow(%q) err = %v, want ValidationError", prefix, err)
		}
	}
}

func TestSemanticNarrowOrderingAndTieBreak(t *testing.T) {
	n, _ := seededNarrower(t)
	results, err := n.SemanticNarrow(context.Background(), "horses", domain.Filter{}, 10)
	if err != nil {
		t.Fatalf("SemanticNarrow: %v", err)
	}
	if len(results) != 4 {
		t.Fatalf("got %d results, want 4", len(results))
	}
	for i := 1; i < len(results); i++ {
		prev, cur := results[i-1], results[i]
		if prev.Score < cur.Score {
			t.Fatalf("scores not descending at %d", i)
		}
		if prev.Score == cur.Score && prev.Row.Digits > cur.Row.Digits {
			t.Errorf("tie not broken by ascending code: %s before %s", prev.Row.Digits, cur.Row.Digits)
		}
	}
	// The two tied purebred rows come first, males before females.
	if results[0].Row.Digits != "0101210010" || results[1].Row.Digits != "0101210020" {
		t.Errorf("top results = %s, %s", results[0].Row.Digits, results[1].Row.Digits)
	}
}

func TestSemanticNarrowHonorsFilter(t *testing.T) {
	n, _ := seededNarrower(t)
	results, err := n.SemanticNarrow(context.Background(), "fish", domain.Filter{Prefix4: "0101"}, 10)
	if err != nil {
		t.Fatalf("SemanticNarrow: %v", err)
	}
	for _, r := range results {
		if r.Row.Prefix4 != "0101" {
			t.Errorf("filtered search returned %q", r.Row.Prefix4)
		}
	}
}

func TestDistinctPrefix4(t *testing.T) {
	n, _ := seededNarrower(t)
	results, err := n.SemanticNarrow(context.Background(), "horses", domain.Filter{}, 10)
	if err != nil {
		t.Fatalf("SemanticNarrow: %v", err)
	}
	prefixes := DistinctPrefix4(results)
	if len(prefixes) != 2 {
		t.Errorf("DistinctPrefix4 = %v, want two headings", prefixes)
	}
}
