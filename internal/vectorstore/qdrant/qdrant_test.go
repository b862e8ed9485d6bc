package qdrant

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"htsfinder/internal/domain"
)

// indexServer answers collection GETs as existing and replies to payload
// index PUTs with the given status.
func indexServer(indexStatus int) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet:
			fmt.Fprint(w, `{"result":{}}`)
		case strings.HasSuffix(r.URL.Path, "/index"):
			w.WriteHeader(indexStatus)
			fmt.Fprint(w, `{}`)
		default:
			fmt.Fprint(w, `{}`)
		}
	}))
}

func TestInitToleratesExistingIndexes(t *testing.T) {
	srv := indexServer(http.StatusBadRequest)
	defer srv.Close()
	st, err := NewStorage(Config{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Init(context.Background(), 8); err != nil {
		t.Fatalf("Init with pre-existing indexes: %v", err)
	}
}

func TestInitSurfacesIndexFailures(t *testing.T) {
	srv := indexServer(http.StatusUnauthorized)
	defer srv.Close()
	st, err := NewStorage(Config{URL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	err = st.Init(context.Background(), 8)
	var se *domain.StoreError
	if !errors.As(err, &se) {
		t.Fatalf("Init err = %v, want StoreError on rejected index creation", err)
	}
}

func TestBuildFilter(t *testing.T) {
	if f := buildFilter(domain.Filter{}); f != nil {
		t.Errorf("empty filter should map to nil, got %v", f)
	}

	f := buildFilter(domain.Filter{HtsCode: "0101210010", Prefix4: "0101"})
	must, ok := f["must"].([]map[string]any)
	if !ok || len(must) != 2 {
		t.Fatalf("filter = %v", f)
	}
	if must[0]["key"] != "hts_code" {
		t.Errorf("first clause = %v", must[0])
	}
	if must[1]["key"] != "prefix4" {
		t.Errorf("second clause = %v", must[1])
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := domain.HtsRow{Digits: "0101210010"}
	b := domain.HtsRow{Digits: "0101210010", Description: "differs, id must not"}
	c := domain.HtsRow{Digits: "0101210020"}
	if pointID(a) != pointID(b) {
		t.Error("same code produced different point ids")
	}
	if pointID(a) == pointID(c) {
		t.Error("different codes produced the same point id")
	}
}

func TestRowPayloadRoundTrip(t *testing.T) {
	row := domain.HtsRow{
		HtsCode:     "0101.21.00.10",
		Digits:      "0101210010",
		Prefix4:     "0101",
		Prefix6:     "010121",
		Description: "Live horses",
		SpecLevels:  []string{"Purebred breeding animals", "Males"},
		Unit:        "No.",
		RateGeneral: "Free",
		Text:        "Live horses Purebred breeding animals Males",
	}
	payload := rowPayload(row)
	// Mimic JSON decoding, which turns the string slice into []any.
	levels := make([]any, 0, len(row.SpecLevels))
	for _, l := range row.SpecLevels {
		levels = append(levels, l)
	}
	payload["spec_levels"] = levels

	got := rowFromPayload(payload)
	if got.HtsCode != row.HtsCode || got.Digits != row.Digits || got.Prefix6 != row.Prefix6 {
		t.Errorf("round trip = %+v", got)
	}
	if len(got.SpecLevels) != 2 || got.SpecLevels[1] != "Males" {
		t.Errorf("SpecLevels = %v", got.SpecLevels)
	}
	if got.Unit != "No." || got.RateGeneral != "Free" {
		t.Errorf("rates lost: %+v", got)
	}
}
