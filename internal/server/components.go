// Package server assembles the assistant and runs it for both the CLI and
// the long-running gateway process.
package server

import (
	"errors"
	"fmt"

	"pawbot/internal/assistant"
	"pawbot/internal/config"
	"pawbot/internal/fallback"
	"pawbot/internal/history"
	"pawbot/internal/knowledge"
	"pawbot/internal/provider"
	"pawbot/internal/provider/openai"
	"pawbot/internal/session"
	"pawbot/internal/storage"
	"pawbot/internal/websearch"
)

// Session backend drivers.
const (
	DriverSQLite = "sqlite"
	DriverFile   = "file"
)

// ErrUnknownDriver is returned for an unsupported storage.driver.
var ErrUnknownDriver = errors.New("server: unknown storage driver")

// Components are the wired collaborators of one assistant instance.
type Components struct {
	Config    *config.Config
	DB        *storage.DB
	Store     *session.Store
	Model     provider.Provider
	Index     *knowledge.SQLiteIndex
	Ingester  *knowledge.Ingester
	Resolver  *knowledge.Resolver
	Assistant *assistant.Assistant
	DocsDir   string
}

// Build opens storage and wires the assistant described by cfg.
// prov overrides the configured model endpoint when not nil.
func Build(cfg *config.Config, prov provider.Provider) (*Components, error) {
	dbPath := cfg.Storage.Path
	if dbPath == "" {
		p, err := config.DefaultDataPath()
		if err != nil {
			return nil, err
		}
		dbPath = p
	}

	docsDir, err := resolveDocsDir(cfg.Knowledge.DocsDir)
	if err != nil {
		return nil, err
	}

	db, err := storage.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	backend, err := openBackend(cfg.Storage, db)
	if err != nil {
		db.Close()
		return nil, err
	}
	store := session.NewStore(backend, cfg.Assistant.SystemPrompt)

	if prov == nil {
		prov = openai.New(openai.Config{
			APIKey:    cfg.Model.APIKey,
			Endpoint:  cfg.Model.Endpoint,
			Model:     cfg.Model.Name,
			MaxTokens: cfg.Model.MaxOutputTokens,
			Timeout:   cfg.Model.Timeout,
		})
	}
	model := provider.NewRetrying(prov, provider.RetryPolicy{
		MaxAttempts: cfg.Model.Retry.MaxAttempts,
		Delay:       cfg.Model.Retry.Delay,
	})

	index := knowledge.NewSQLiteIndex(db, knowledge.BM25Config{K1: 1.2, B: 0.75})
	ingester := knowledge.NewIngester(db, index, docsDir, knowledge.ChunkerOptions{
		MaxChars: cfg.Knowledge.ChunkChars,
		Overlap:  cfg.Knowledge.ChunkOverlap,
	})
	resolver := knowledge.NewResolver(docsDir)

	// summaries are best effort, so the history manager skips the retries
	hist := history.NewManager(history.FromConfig(cfg), prov, store)
	retriever := knowledge.NewRetriever(index, knowledge.RetrieverConfigFrom(cfg))
	searcher := websearch.NewModelSearcher(model, cfg.Model.Name)
	machine := fallback.NewMachine(searcher, fallback.FromConfig(cfg))

	a := assistant.New(assistant.FromConfig(cfg), store, hist, retriever, machine, model)
	a.SetSearcher(searcher)
	a.SetResolver(resolver)

	return &Components{
		Config:    cfg,
		DB:        db,
		Store:     store,
		Model:     model,
		Index:     index,
		Ingester:  ingester,
		Resolver:  resolver,
		Assistant: a,
		DocsDir:   docsDir,
	}, nil
}

// Close releases the database.
func (c *Components) Close() error {
	if c.DB == nil {
		return nil
	}
	return c.DB.Close()
}

func openBackend(cfg config.StorageConfig, db *storage.DB) (session.Backend, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return session.NewSQLiteBackend(db), nil
	case DriverFile:
		dir := cfg.Dir
		if dir == "" {
			d, err := config.DefaultSessionsDir()
			if err != nil {
				return nil, err
			}
			dir = d
		}
		dir, err := config.ExpandPath(dir)
		if err != nil {
			return nil, err
		}
		return session.NewFileBackend(dir)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}

func resolveDocsDir(dir string) (string, error) {
	if dir == "" {
		return config.DefaultDocsDir()
	}
	return config.ExpandPath(dir)
}
