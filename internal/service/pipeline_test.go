package service

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"htsfinder/internal/domain"
	"htsfinder/internal/embedding/tfidf"
	"htsfinder/internal/normalize"
	"htsfinder/internal/vectorstore/memory"
)

const pipelineCSV = `HTS Number,Indent,Description,Unit of Quantity,General Rate of Duty,Special Rate of Duty,Column 2 Rate of Duty
0101,0,Live horses asses mules and hinnies:,,,,
,1,Horses:,,,,
0101.21.00,2,Purebred breeding animals,No.,Free,,Free
0101.21.00.10,3,Males,,,,
0101.21.00.20,3,Females,,,,
0302,0,"Fish, fresh or chilled:",,,,
0302.11.00.00,1,Trout,kg,Free,,2.2¢/kg
`

func newPipeline(t *testing.T) (*Pipeline, *memory.Storage, *tfidf.Embedder) {
	t.Helper()
	emb := tfidf.NewEmbedder()
	store := memory.NewStorage()
	flattener := normalize.NewFlattener(normalize.DefaultColumns())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPipeline(flattener, emb, store, logger), store, emb
}

func TestIngestRoundTrip(t *testing.T) {
	p, store, emb := newPipeline(t)
	ctx := context.Background()

	stats, err := p.Ingest(ctx, strings.NewReader(pipelineCSV))
	if err != nil {
		t.Fatalf("Ingest: %v", err)
	}
	if stats.Processed != 3 || stats.Skipped != 0 || stats.Uploaded != 3 {
		t.Fatalf("stats = %+v", stats)
	}

	n := NewNarrower(emb, store)
	row, err := n.ExactLookup(ctx, "0101.21.00.10")
	if err != nil {
		t.Fatalf("ExactLookup after ingest: %v", err)
	}
	if row.Digits != "0101210010" || row.Prefix4 != "0101" || row.Prefix6 != "010121" {
		t.Errorf("round-trip row = %+v", row)
	}
	if row.Unit != "No." || row.RateGeneral != "Free" {
		t.Errorf("round-trip lost inherited fields: %+v", row)
	}

	// Semantic retrieval finds the trout row for a fish query.
	results, err := n.SemanticNarrow(ctx, "fresh trout fish", domain.Filter{}, 1)
	if err != nil {
		t.Fatalf("SemanticNarrow: %v", err)
	}
	if len(results) != 1 || results[0].Row.Prefix4 != "0302" {
		t.Errorf("semantic top result = %+v", results)
	}
}

func TestIngestEmptyInputFails(t *testing.T) {
	p, _, _ := newPipeline(t)
	_, err := p.Ingest(context.Background(), strings.NewReader("HTS Number,Indent,Description\n"))
	if err == nil {
		t.Fatal("expected error for input with no usable rows")
	}
}
