// Package bootstrap assembles the application from configuration. Every
// component is created here once and handed down explicitly.
package bootstrap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"certrag/internal/catalog"
	catalogmem "certrag/internal/catalog/memory"
	catalogsqlite "certrag/internal/catalog/sqlite"
	"certrag/internal/chunker"
	"certrag/internal/config"
	"certrag/internal/domain"
	"certrag/internal/embedding"
	"certrag/internal/embedding/openai"
	"certrag/internal/logger"
	"certrag/internal/service"
	"certrag/internal/vectorstore"
	"certrag/internal/vectorstore/memory"
	"certrag/internal/vectorstore/pgvector"
	"certrag/internal/vectorstore/qdrant"
	"certrag/internal/vectorstore/sqlite"
)

// Container owns the long-lived components and closes them in reverse order.
type Container struct {
	Config   *config.AppConfig
	Log      logger.Logger
	Index    vectorstore.Storage
	Catalog  catalog.Store
	Embedder embedding.Embedder
	Service  *service.RAGServiceImpl
}

// NewLogger builds the application logger. Interactive sessions log to the
// file only so the terminal stays clean.
func NewLogger(cfg config.LogConfig, interactive bool) logger.Logger {
	opts := logger.Options{
		FilePath:   cfg.Path,
		Level:      cfg.Level,
		JSON:       cfg.JSON,
		MaxSizeMB:  cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAgeDays: cfg.MaxAgeDays,
	}
	if opts.FilePath != "" {
		_ = os.MkdirAll(filepath.Dir(opts.FilePath), 0o755)
	}
	if interactive {
		return logger.NewIsolatedLogger(opts)
	}
	return logger.NewZapLogger(opts)
}

// New wires a container from cfg. The embedder is supplied by the caller when
// non-nil, otherwise the configured OpenAI-compatible client is used.
func New(cfg *config.AppConfig, log logger.Logger, emb embedding.Embedder) (*Container, error) {
	c := &Container{Config: cfg, Log: log, Embedder: emb}
	if emb == nil {
		if err := checkDimensions(cfg); err != nil {
			return nil, err
		}
	}

	index, err := openIndex(cfg.VectorStore)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	c.Index = index

	store, err := openCatalog(cfg.Catalog)
	if err != nil {
		_ = index.Close()
		return nil, fmt.Errorf("open catalog: %w", err)
	}
	c.Catalog = store

	if c.Embedder == nil {
		oa := cfg.Embedder.OpenAI
		c.Embedder = openai.NewClient(openai.Config{
			BaseURL:        oa.BaseURL,
			APIKey:         cfg.APIKey(),
			Model:          oa.Model,
			Dimensions:     oa.Dimensions,
			Timeout:        time.Duration(oa.TimeoutSecs) * time.Second,
			BatchSize:      oa.BatchSize,
			Parallelism:    oa.Parallelism,
			MaxRetries:     oa.MaxRetries,
			RequestsPerSec: oa.RequestsPerSec,
			CacheTTL:       time.Duration(oa.CacheTTLSecs) * time.Second,
		}, log)
	}

	splitter := chunker.NewSplitter(cfg.Chunker.MaxChars, cfg.Chunker.OverlapChars)
	c.Service = service.NewRAGService(splitter, c.Embedder, c.Index, c.Catalog, cfg.Retrieval.TopK, log)

	log.Debug("bootstrap", "container ready", map[string]interface{}{
		"vector_store": cfg.VectorStore.Type,
		"catalog":      cfg.Catalog.Type,
		"embedder":     c.Embedder.Name(),
	})
	return c, nil
}

// checkDimensions fails fast when the embedder and a pre-sized collection disagree.
func checkDimensions(cfg *config.AppConfig) error {
	q := cfg.VectorStore.Qdrant
	want := cfg.Embedder.OpenAI.Dimensions
	if cfg.VectorStore.Type != "qdrant" || q == nil || q.Dimensions == 0 || want == 0 {
		return nil
	}
	if q.Dimensions != want {
		return fmt.Errorf("%w: qdrant collection dimensions %d differ from embedder dimensions %d",
			domain.ErrInvalidInput, q.Dimensions, want)
	}
	return nil
}

func openIndex(cfg config.VectorStoreConfig) (vectorstore.Storage, error) {
	switch cfg.Type {
	case "memory", "":
		return memory.NewStorage(), nil
	case "sqlite":
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		return sqlite.Open(cfg.SQLite.Path)
	case "qdrant":
		q := cfg.Qdrant
		return qdrant.NewStorage(qdrant.Config{
			Host:       q.Host,
			Port:       q.Port,
			APIKey:     q.APIKey,
			UseTLS:     q.UseTLS,
			Collection: q.Collection,
			Dimension:  q.Dimensions,
		})
	case "pgvector":
		return pgvector.Open(cfg.Pgvector.DSN, cfg.Pgvector.Table)
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func openCatalog(cfg config.CatalogConfig) (catalog.Store, error) {
	switch cfg.Type {
	case "memory", "":
		return catalogmem.NewStore(), nil
	case "sqlite":
		if err := ensureDir(cfg.SQLite.Path); err != nil {
			return nil, err
		}
		return catalogsqlite.Open(cfg.SQLite.Path)
	default:
		return nil, fmt.Errorf("unknown catalog: %s", cfg.Type)
	}
}

func ensureDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), 0o755)
}

// Close releases the stores and flushes the logger.
func (c *Container) Close() error {
	var errs []error
	if c.Catalog != nil {
		errs = append(errs, c.Catalog.Close())
	}
	if c.Index != nil {
		errs = append(errs, c.Index.Close())
	}
	// syncing stderr fails on some terminals
	_ = c.Log.Sync()
	return errors.Join(errs...)
}
