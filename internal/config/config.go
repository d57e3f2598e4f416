package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LogConfig controls the rotated log file and console verbosity.
type LogConfig struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	JSON       bool   `yaml:"json"`
	MaxSizeMB  int    `yaml:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `yaml:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `yaml:"max_age_days" validate:"gte=0"`
}

// ChunkerConfig configures how extracted text is split into chunks.
type ChunkerConfig struct {
	MaxChars     int `yaml:"max_chars" validate:"gt=0"`
	OverlapChars int `yaml:"overlap_chars" validate:"gte=0,ltfield=MaxChars"`
}

// OpenAIEmbedderConfig holds configuration for the OpenAI-compatible embedder.
type OpenAIEmbedderConfig struct {
	BaseURL        string  `yaml:"base_url" validate:"required,url"`
	APIKeyEnv      string  `yaml:"api_key_env"`
	Model          string  `yaml:"model" validate:"required"`
	Dimensions     int     `yaml:"dimensions" validate:"gte=0"`
	TimeoutSecs    int     `yaml:"timeout_secs" validate:"gt=0"`
	BatchSize      int     `yaml:"batch_size" validate:"gt=0"`
	MaxRetries     int     `yaml:"max_retries" validate:"gte=0"`
	Parallelism    int     `yaml:"parallelism" validate:"gt=0"`
	RequestsPerSec float64 `yaml:"requests_per_sec" validate:"gte=0"`
	CacheTTLSecs   int     `yaml:"cache_ttl_secs" validate:"gte=0"`
}

// EmbedderConfig configures the text embedder.
type EmbedderConfig struct {
	OpenAI OpenAIEmbedderConfig `yaml:"openai"`
}

// SQLiteConfig points at a local database file.
type SQLiteConfig struct {
	Path string `yaml:"path" validate:"required"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	Host       string `yaml:"host" validate:"required"`
	Port       int    `yaml:"port" validate:"gt=0"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection" validate:"required"`
	// Dimensions sizes a new collection; zero lets the first batch decide.
	Dimensions int    `yaml:"dimensions" validate:"gte=0"`
}

// PgvectorConfig contains connection details for a Postgres database with pgvector.
type PgvectorConfig struct {
	DSN   string `yaml:"dsn" validate:"required"`
	Table string `yaml:"table" validate:"required"`
}

// VectorStoreConfig selects and configures the vector index backend.
type VectorStoreConfig struct {
	Type     string          `yaml:"type" validate:"oneof=memory sqlite qdrant pgvector"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty" validate:"required_if=Type sqlite"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty" validate:"required_if=Type qdrant"`
	Pgvector *PgvectorConfig `yaml:"pgvector,omitempty" validate:"required_if=Type pgvector"`
}

// CatalogConfig selects the document catalog backend.
type CatalogConfig struct {
	Type   string        `yaml:"type" validate:"oneof=memory sqlite"`
	SQLite *SQLiteConfig `yaml:"sqlite,omitempty" validate:"required_if=Type sqlite"`
}

// RetrievalConfig tunes the query path.
type RetrievalConfig struct {
	TopK int `yaml:"top_k" validate:"gte=1"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Log         LogConfig         `yaml:"log"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Catalog     CatalogConfig     `yaml:"catalog"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
}

var validate = validator.New()

// Validate checks field constraints and backend-specific requirements.
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// APIKey resolves the embedder API key from the configured environment variable.
func (c *AppConfig) APIKey() string {
	if c.Embedder.OpenAI.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.Embedder.OpenAI.APIKeyEnv)
}

// LoadEnv loads variables from .env in the working directory when present.
func LoadEnv() {
	_ = godotenv.Load()
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
// ${VAR} references are expanded from the environment before parsing.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig()
		}
		return nil, err
	}
	cfg, err := defaultConfig()
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	// scalar defaults are already in place; explicit zeros stay zero
	applyBackendDefaults(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/certrag/config.yaml.
// If neither exists, it writes defaults to ~/.config/certrag/config.yaml and returns them.
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
	cfg, err := defaultConfig()
	if err != nil {
		return nil, "", err
	}
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

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "certrag", "config.yaml"), nil
}

func dataDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".certrag"), nil
}

func defaultConfig() (*AppConfig, error) {
	dir, err := dataDir()
	if err != nil {
		return nil, err
	}
	cfg := &AppConfig{
		Log: LogConfig{Path: filepath.Join(dir, "certrag.log"), Level: "info"},
		VectorStore: VectorStoreConfig{
			Type:   "sqlite",
			SQLite: &SQLiteConfig{Path: filepath.Join(dir, "index.db")},
		},
		Catalog: CatalogConfig{
			Type:   "sqlite",
			SQLite: &SQLiteConfig{Path: filepath.Join(dir, "catalog.db")},
		},
	}
	applyConfigDefaults(cfg)
	return cfg, nil
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Chunker.MaxChars == 0 {
		cfg.Chunker.MaxChars = 1500
	}
	if cfg.Chunker.OverlapChars == 0 {
		cfg.Chunker.OverlapChars = 200
	}
	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}

	oa := &cfg.Embedder.OpenAI
	if oa.BaseURL == "" {
		oa.BaseURL = "https://api.openai.com/v1"
	}
	if oa.APIKeyEnv == "" {
		oa.APIKeyEnv = "OPENAI_API_KEY"
	}
	if oa.Model == "" {
		oa.Model = "text-embedding-3-small"
	}
	if oa.TimeoutSecs == 0 {
		oa.TimeoutSecs = 30
	}
	if oa.BatchSize == 0 {
		oa.BatchSize = 32
	}
	if oa.MaxRetries == 0 {
		oa.MaxRetries = 3
	}
	if oa.Parallelism == 0 {
		oa.Parallelism = 2
	}
	if oa.CacheTTLSecs == 0 {
		oa.CacheTTLSecs = 600
	}
	applyBackendDefaults(cfg)
}

// applyBackendDefaults fills backend sections that the YAML may have allocated.
func applyBackendDefaults(cfg *AppConfig) {
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Port == 0 {
			q.Port = 6334
		}
		if q.Collection == "" {
			q.Collection = "certrag"
		}
	}
	if p := cfg.VectorStore.Pgvector; p != nil && p.Table == "" {
		p.Table = "certrag_records"
	}
}
