package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"htsfinder/internal/config"
	"htsfinder/internal/embedding"
	"htsfinder/internal/embedding/openai"
	"htsfinder/internal/embedding/tfidf"
	"htsfinder/internal/fetch"
	"htsfinder/internal/normalize"
	"htsfinder/internal/service"
	"htsfinder/internal/vectorstore"
	"htsfinder/internal/vectorstore/memory"
	"htsfinder/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath, csvPath string
	var doFetch bool
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/htsfinder/config.yaml if not provided)")
	flag.StringVar(&csvPath, "csv", "", "Path to a raw HTS schedule CSV")
	flag.BoolVar(&doFetch, "fetch", false, "Download the latest schedule from the USITC archive")
	flag.Parse()

	var cfg *config.AppConfig
	var err error
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("%v", err)
	}
	if csvPath == "" && !doFetch {
		log.Fatalf("either --csv or --fetch is required")
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	ctx := context.Background()

	if doFetch {
		fc := fetch.NewClient(fetch.Config{
			ArchiveURL: cfg.Fetch.ArchiveURL,
			Timeout:    time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		})
		if csvPath == "" {
			csvPath = "hts_latest.csv"
		}
		src, err := fc.LatestCSV(ctx, csvPath)
		if err != nil {
			log.Fatalf("fetch failed: %v", err)
		}
		logger.Info("downloaded schedule", "from", src, "to", csvPath)
	}

	emb := buildEmbedder(cfg)
	st := buildStore(cfg)

	f, err := os.Open(csvPath)
	if err != nil {
		log.Fatalf("open csv: %v", err)
	}
	defer f.Close()

	flattener := normalize.NewFlattener(cfg.CSV.Columns, normalize.WithLeafDigits(cfg.CSV.LeafDigits))
	pipeline := service.NewPipeline(flattener, emb, st, logger)
	stats, err := pipeline.Ingest(ctx, f)
	if err != nil {
		log.Fatalf("ingest failed (processed %d, skipped %d): %v", stats.Processed, stats.Skipped, err)
	}
	logger.Info("ingest complete", "processed", stats.Processed, "skipped", stats.Skipped, "uploaded", stats.Uploaded)
}

func buildEmbedder(cfg *config.AppConfig) embedding.Embedder {
	switch cfg.Embedder.Type {
	case "openai", "":
		o := cfg.Embedder.OpenAI
		client, err := openai.NewClient(openai.Config{
			BaseURL:   o.BaseURL,
			APIKeyEnv: o.APIKeyEnv,
			Model:     o.Model,
			Timeout:   time.Duration(o.TimeoutSecs) * time.Second,
			BatchSize: o.BatchSize,
		})
		if err != nil {
			log.Fatalf("openai embedder init failed: %v", err)
		}
		return client
	case "tfidf":
		return tfidf.NewEmbedder()
	default:
		log.Fatalf("unknown embedder: %s", cfg.Embedder.Type)
		return nil
	}
}

func buildStore(cfg *config.AppConfig) vectorstore.Storage {
	switch cfg.VectorStore.Type {
	case "qdrant", "":
		q := cfg.VectorStore.Qdrant
		st, err := qdrant.NewStorage(qdrant.Config{
			URL:        q.URL,
			APIKey:     q.APIKey,
			Collection: q.Collection,
			Timeout:    time.Duration(q.TimeoutSecs) * time.Second,
		})
		if err != nil {
			log.Fatalf("qdrant store init failed: %v", err)
		}
		return st
	case "memory":
		return memory.NewStorage()
	default:
		log.Fatalf("unknown vector store: %s", cfg.VectorStore.Type)
		return nil
	}
}
