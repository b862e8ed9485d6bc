package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"htsfinder/internal/domain"
	"htsfinder/internal/normalize"
)

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible
// embedder. The API key itself lives only in the environment.
type OpenAIEmbedderConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	Model       string `yaml:"model"`
	TimeoutSecs int    `yaml:"timeout_secs"`
	BatchSize   int    `yaml:"batch_size"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string                `yaml:"type"`
	OpenAI *OpenAIEmbedderConfig `yaml:"openai,omitempty"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string        `yaml:"type"`
	Qdrant *QdrantConfig `yaml:"qdrant,omitempty"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
// URL and APIKey fall back to QDRANT_URL / QDRANT_API_KEY.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// CSVConfig maps the schedule's column names and the leaf emission
// threshold.
type CSVConfig struct {
	Columns    normalize.Columns `yaml:"columns"`
	LeafDigits int               `yaml:"leaf_digits"`
}

// FetchConfig configures the schedule download step.
type FetchConfig struct {
	ArchiveURL  string `yaml:"archive_url"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// TUIConfig configures the interactive front end.
type TUIConfig struct {
	TopK int `yaml:"top_k"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	CSV         CSVConfig         `yaml:"csv"`
	Fetch       FetchConfig       `yaml:"fetch"`
	TUI         TUIConfig         `yaml:"tui"`
}

// Load reads a config from a specified path. If the file does not exist,
// returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	applyConfigDefaults(&cfg)
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then
// ~/.config/htsfinder/config.yaml. If neither exists, it writes defaults
// to the user path and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks that everything the selected components require is
// present. Missing credentials fail here, at startup, never later as a
// silent degradation.
func (cfg *AppConfig) Validate() error {
	switch cfg.Embedder.Type {
	case "openai", "":
		env := "OPENAI_API_KEY"
		if cfg.Embedder.OpenAI != nil && cfg.Embedder.OpenAI.APIKeyEnv != "" {
			env = cfg.Embedder.OpenAI.APIKeyEnv
		}
		if os.Getenv(env) == "" {
			return &domain.ConfigError{Reason: fmt.Sprintf("embedder %q requires %s to be set", "openai", env)}
		}
	case "tfidf":
	default:
		return &domain.ConfigError{Reason: fmt.Sprintf("unknown embedder type %q", cfg.Embedder.Type)}
	}
	switch cfg.VectorStore.Type {
	case "qdrant", "":
		q := cfg.VectorStore.Qdrant
		if q == nil || q.URL == "" {
			return &domain.ConfigError{Reason: "vector store \"qdrant\" requires QDRANT_URL to be set"}
		}
		if q.APIKey == "" {
			return &domain.ConfigError{Reason: "vector store \"qdrant\" requires QDRANT_API_KEY to be set"}
		}
	case "memory":
	default:
		return &domain.ConfigError{Reason: fmt.Sprintf("unknown vector store type %q", cfg.VectorStore.Type)}
	}
	return nil
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "htsfinder", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := &AppConfig{
		Embedder:    EmbedderConfig{Type: "openai"},
		VectorStore: VectorStoreConfig{Type: "qdrant"},
	}
	applyConfigDefaults(cfg)
	return cfg
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.OpenAI == nil {
			cfg.Embedder.OpenAI = &OpenAIEmbedderConfig{}
		}
		o := cfg.Embedder.OpenAI
		if o.BaseURL == "" {
			o.BaseURL = "https://api.openai.com/v1"
		}
		if o.APIKeyEnv == "" {
			o.APIKeyEnv = "OPENAI_API_KEY"
		}
		if o.Model == "" {
			o.Model = "text-embedding-3-small"
		}
		if o.TimeoutSecs == 0 {
			o.TimeoutSecs = 30
		}
		if o.BatchSize == 0 {
			o.BatchSize = 64
		}
	}
	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "qdrant"
	}
	if cfg.VectorStore.Type == "qdrant" {
		if cfg.VectorStore.Qdrant == nil {
			cfg.VectorStore.Qdrant = &QdrantConfig{}
		}
		q := cfg.VectorStore.Qdrant
		if q.URL == "" {
			q.URL = os.Getenv("QDRANT_URL")
		}
		if q.APIKey == "" {
			q.APIKey = os.Getenv("QDRANT_API_KEY")
		}
		if q.Collection == "" {
			q.Collection = "hts_embeddings"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 60
		}
	}
	if cfg.CSV.Columns == (normalize.Columns{}) {
		cfg.CSV.Columns = normalize.DefaultColumns()
	}
	if cfg.CSV.LeafDigits == 0 {
		cfg.CSV.LeafDigits = 10
	}
	if cfg.Fetch.ArchiveURL == "" {
		cfg.Fetch.ArchiveURL = "https://www.usitc.gov/harmonized_tariff_information/hts/archive/list"
	}
	if cfg.Fetch.TimeoutSecs == 0 {
		cfg.Fetch.TimeoutSecs = 60
	}
	if cfg.TUI.TopK == 0 {
		cfg.TUI.TopK = 10
	}
}
