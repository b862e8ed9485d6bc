package service

import (
	"context"
	"fmt"
	"sort"

	"htsfinder/internal/domain"
	"htsfinder/internal/embedding"
	"htsfinder/internal/normalize"
	"htsfinder/internal/vectorstore"
)

// Narrower translates user input into filtered store queries. Input codes
// are normalized the same way ingest normalizes them, so lookups match
// regardless of dot placement.
type Narrower struct {
	embedder embedding.Embedder
	store    vectorstore.Storage
	scanCap  int
}

func NewNarrower(embedder embedding.Embedder, store vectorstore.Storage) *Narrower {
	return &Narrower{embedder: embedder, store: store, scanCap: 500}
}

// ExactLookup resolves a full code to its row via a payload filter.
// No vector similarity is involved. Returns domain.ErrNotFound when the
// code is absent.
func (n *Narrower) ExactLookup(ctx context.Context, code string) (domain.HtsRow, error) {
	digits := normalize.Digits(code)
	if len(digits) < 4 {
		return domain.HtsRow{}, &domain.ValidationError{Field: "hts_code", Reason: fmt.Sprintf("need at least 4 digits, got %q", code)}
	}
	rows, err := n.store.GetByFilter(ctx, domain.Filter{HtsCode: digits}, 1)
	if err != nil {
		return domain.HtsRow{}, err
	}
	if len(rows) == 0 {
		return domain.HtsRow{}, domain.ErrNotFound
	}
	return rows[0], nil
}

// PrefixNarrow lists rows under a 4- or 6-digit prefix, ordered by code.
func (n *Narrower) PrefixNarrow(ctx context.Context, prefix string) ([]domain.HtsRow, error) {
	digits := normalize.Digits(prefix)
	var filter domain.Filter
	switch len(digits) {
	case 4:
		filter.Prefix4 = digits
	case 6:
		filter.Prefix6 = digits
	default:
		return nil, &domain.ValidationError{Field: "prefix", Reason: fmt.Sprintf("prefix must have 4 or 6 digits, got %q", prefix)}
	}
	rows, err := n.store.GetByFilter(ctx, filter, n.scanCap)
	if err != nil {
		return nil, err
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Digits < rows[j].Digits })
	return rows, nil
}

// SemanticNarrow embeds the query and runs a filtered similarity search.
// Results are ordered by descending score; equal scores fall back to
// ascending code so the ordering is deterministic.
func (n *Narrower) SemanticNarrow(ctx context.Context, query string, filter domain.Filter, topK int) ([]domain.SearchResult, error) {
	vec, err := n.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	results, err := n.store.SearchByVector(ctx, vec, filter, topK)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Row.Digits < results[j].Row.Digits
	})
	return results, nil
}

// DistinctPrefix4 returns the distinct headings present in results, in
// result order. More than one heading means the caller should ask the
// user to pick before narrowing further.
func DistinctPrefix4(results []domain.SearchResult) []string {
	seen := make(map[string]struct{}, len(results))
	var out []string
	for _, r := range results {
		if _, ok := seen[r.Row.Prefix4]; ok {
			continue
		}
		seen[r.Row.Prefix4] = struct{}{}
		out = append(out, r.Row.Prefix4)
	}
	return out
}
