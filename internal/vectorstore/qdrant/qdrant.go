package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"htsfinder/internal/domain"
)

// Upsert chunk size, mirrors the embedding batch to keep request bodies
// bounded.
const upsertChunk = 64

// Storage is a minimal REST client to Qdrant. Collections use cosine
// distance; keyword payload indexes are kept on the filterable fields.
type Storage struct {
	url        string
	apiKey     string
	collection string
	dimension  int
	client     *http.Client
}

type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

func NewStorage(cfg Config) (*Storage, error) {
	if cfg.URL == "" {
		return nil, &domain.ConfigError{Reason: "qdrant URL is required"}
	}
	if cfg.Collection == "" {
		cfg.Collection = "hts_embeddings"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Storage{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		client:     &http.Client{Timeout: timeout},
	}, nil
}

// Init creates the collection if missing and ensures keyword indexes on
// hts_code, prefix4 and prefix6 so filtered lookups stay fast.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return &domain.StoreError{Op: "init", Err: errors.New("invalid dimension")}
	}
	s.dimension = dimension
	exists, err := s.collectionExists(ctx)
	if err != nil {
		return &domain.StoreError{Op: "init", Err: err}
	}
	if !exists {
		body := map[string]any{
			"vectors": map[string]any{
				"size":     dimension,
				"distance": "Cosine",
			},
		}
		if err := s.doJSON(ctx, http.MethodPut, s.collectionURL(""), body, nil); err != nil {
			return &domain.StoreError{Op: "create collection", Err: err}
		}
	}
	for _, field := range []string{"hts_code", "prefix4", "prefix6"} {
		body := map[string]any{
			"field_name":   field,
			"field_schema": "keyword",
		}
		err := s.doJSON(ctx, http.MethodPut, s.collectionURL("/index"), body, nil)
		var se *statusError
		if errors.As(err, &se) && (se.code == http.StatusBadRequest || se.code == http.StatusConflict) {
			// Qdrant rejects re-creating an existing index; that is fine.
			continue
		}
		if err != nil {
			return &domain.StoreError{Op: "create index " + field, Err: err}
		}
	}
	return nil
}

// Upsert writes rows and their vectors in chunks, waiting for each chunk
// to be persisted. Point ids are deterministic UUIDs of the digit string,
// so re-ingesting a schedule overwrites instead of duplicating.
func (s *Storage) Upsert(ctx context.Context, rows []domain.HtsRow, vectors [][]float64) error {
	if len(rows) != len(vectors) {
		return &domain.StoreError{Op: "upsert", Err: errors.New("rows and vectors length mismatch")}
	}
	for start := 0; start < len(rows); start += upsertChunk {
		end := start + upsertChunk
		if end > len(rows) {
			end = len(rows)
		}
		points := make([]map[string]any, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, map[string]any{
				"id":      pointID(rows[i]),
				"vector":  vectors[i],
				"payload": rowPayload(rows[i]),
			})
		}
		body := map[string]any{"points": points}
		if err := s.doJSON(ctx, http.MethodPut, s.collectionURL("/points?wait=true"), body, nil); err != nil {
			return &domain.StoreError{Op: fmt.Sprintf("upsert rows %d..%d", start, end), Err: err}
		}
	}
	return nil
}

// SearchByVector runs a filtered similarity search and returns results in
// Qdrant's score order.
func (s *Storage) SearchByVector(ctx context.Context, vector []float64, filter domain.Filter, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 10
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := buildFilter(filter); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionURL("/points/search"), req, &resp); err != nil {
		return nil, &domain.StoreError{Op: "search", Err: err}
	}
	results := make([]domain.SearchResult, 0, len(resp.Result))
	for _, r := range resp.Result {
		results = append(results, domain.SearchResult{Row: rowFromPayload(r.Payload), Score: r.Score})
	}
	return results, nil
}

// GetByFilter scrolls all points matching the filter, up to limit.
func (s *Storage) GetByFilter(ctx context.Context, filter domain.Filter, limit int) ([]domain.HtsRow, error) {
	if limit <= 0 {
		limit = 200
	}
	var rows []domain.HtsRow
	var offset any
	for len(rows) < limit {
		page := limit - len(rows)
		if page > 100 {
			page = 100
		}
		req := map[string]any{
			"limit":        page,
			"with_payload": true,
		}
		if f := buildFilter(filter); f != nil {
			req["filter"] = f
		}
		if offset != nil {
			req["offset"] = offset
		}
		var resp struct {
			Result struct {
				Points []struct {
					Payload map[string]any `json:"payload"`
				} `json:"points"`
				NextPageOffset any `json:"next_page_offset"`
			} `json:"result"`
		}
		if err := s.doJSON(ctx, http.MethodPost, s.collectionURL("/points/scroll"), req, &resp); err != nil {
			return nil, &domain.StoreError{Op: "scroll", Err: err}
		}
		for _, p := range resp.Result.Points {
			rows = append(rows, rowFromPayload(p.Payload))
		}
		if resp.Result.NextPageOffset == nil || len(resp.Result.Points) == 0 {
			break
		}
		offset = resp.Result.NextPageOffset
	}
	return rows, nil
}

// Count returns the exact number of stored points.
func (s *Storage) Count(ctx context.Context) (int, error) {
	req := map[string]any{"exact": true}
	var resp struct {
		Result struct {
			Count int `json:"count"`
		} `json:"result"`
	}
	if err := s.doJSON(ctx, http.MethodPost, s.collectionURL("/points/count"), req, &resp); err != nil {
		return 0, &domain.StoreError{Op: "count", Err: err}
	}
	return resp.Result.Count, nil
}

// Clear drops the collection. Init must run again before further use.
func (s *Storage) Clear(ctx context.Context) error {
	if err := s.doJSON(ctx, http.MethodDelete, s.collectionURL(""), nil, nil); err != nil {
		return &domain.StoreError{Op: "clear", Err: err}
	}
	return nil
}

func (s *Storage) collectionExists(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.collectionURL(""), nil)
	if err != nil {
		return false, err
	}
	s.auth(req)
	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false, nil
	}
	if resp.StatusCode >= 300 {
		return false, fmt.Errorf("qdrant GET collection: %s", resp.Status)
	}
	return true, nil
}

func (s *Storage) collectionURL(suffix string) string {
	return fmt.Sprintf("%s/collections/%s%s", s.url, s.collection, suffix)
}

func (s *Storage) auth(req *http.Request) {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
}

// doJSON issues one request with a single retry on transport failure.
func (s *Storage) doJSON(ctx context.Context, method, url string, body, out any) error {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		var reader *bytes.Reader
		if body != nil {
			data, err := json.Marshal(body)
			if err != nil {
				return err
			}
			reader = bytes.NewReader(data)
		} else {
			reader = bytes.NewReader(nil)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		s.auth(req)
		resp, err := s.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			lastErr = err
			continue
		}
		if resp.StatusCode >= 300 {
			resp.Body.Close()
			return &statusError{method: method, url: url, code: resp.StatusCode, status: resp.Status}
		}
		if out != nil {
			err = json.NewDecoder(resp.Body).Decode(out)
			resp.Body.Close()
			return err
		}
		resp.Body.Close()
		return nil
	}
	return lastErr
}

// statusError carries the HTTP status of a rejected Qdrant call so
// callers can tell expected 4xx replies from auth or transport failures.
type statusError struct {
	method string
	url    string
	code   int
	status string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("qdrant %s %s: %s", e.method, e.url, e.status)
}

// pointID derives a stable UUID from the normalized code so upserts are
// idempotent across runs.
func pointID(row domain.HtsRow) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("hts:"+row.Digits)).String()
}

func buildFilter(f domain.Filter) map[string]any {
	var must []map[string]any
	match := func(key, value string) map[string]any {
		return map[string]any{
			"key":   key,
			"match": map[string]any{"value": value},
		}
	}
	if f.HtsCode != "" {
		must = append(must, match("hts_code", f.HtsCode))
	}
	if f.Prefix6 != "" {
		must = append(must, match("prefix6", f.Prefix6))
	}
	if f.Prefix4 != "" {
		must = append(must, match("prefix4", f.Prefix4))
	}
	if len(must) == 0 {
		return nil
	}
	return map[string]any{"must": must}
}

func rowPayload(row domain.HtsRow) map[string]any {
	return map[string]any{
		"hts_code":     row.Digits,
		"code":         row.HtsCode,
		"prefix4":      row.Prefix4,
		"prefix6":      row.Prefix6,
		"description":  row.Description,
		"spec_levels":  row.SpecLevels,
		"unit":         row.Unit,
		"rate_general": row.RateGeneral,
		"rate_special": row.RateSpecial,
		"rate_col2":    row.RateCol2,
		"text":         row.Text,
	}
}

func rowFromPayload(payload map[string]any) domain.HtsRow {
	str := func(key string) string {
		v, _ := payload[key].(string)
		return v
	}
	row := domain.HtsRow{
		HtsCode:     str("code"),
		Digits:      str("hts_code"),
		Prefix4:     str("prefix4"),
		Prefix6:     str("prefix6"),
		Description: str("description"),
		Unit:        str("unit"),
		RateGeneral: str("rate_general"),
		RateSpecial: str("rate_special"),
		RateCol2:    str("rate_col2"),
		Text:        str("text"),
	}
	if levels, ok := payload["spec_levels"].([]any); ok {
		for _, l := range levels {
			if v, ok := l.(string); ok {
				row.SpecLevels = append(row.SpecLevels, v)
			}
		}
	}
	return row
}
