package main

import (
	"flag"
	"log"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"htsfinder/internal/config"
	"htsfinder/internal/embedding"
	"htsfinder/internal/embedding/openai"
	"htsfinder/internal/service"
	"htsfinder/internal/tui"
	"htsfinder/internal/vectorstore"
	"htsfinder/internal/vectorstore/qdrant"
)

func main() {
	_ = godotenv.Load()

	var cfgPath string
	flag.StringVar(&cfgPath, "config", "", "Path to YAML config file (optional; uses ~/.config/htsfinder/config.yaml if not provided)")
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

	emb := buildEmbedder(cfg)
	st := buildStore(cfg)

	narrower := service.NewNarrower(emb, st)
	m := tui.New(narrower, service.NewSessionStore(), cfg.TUI.TopK)
	if _, err := tea.NewProgram(m).Run(); err != nil {
		log.Fatal(err)
	}
}

// The query front end talks to an already-populated collection, so the
// offline tfidf embedder cannot serve it: its vocabulary would not match
// the stored vectors without re-running ingest in the same process.
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
	default:
		log.Fatalf("embedder %q is not usable for querying; use openai", cfg.Embedder.Type)
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
	default:
		log.Fatalf("vector store %q is not usable for querying; use qdrant", cfg.VectorStore.Type)
		return nil
	}
}
