package knowledge

import (
	"context"
	"fmt"
	"sync"

	"pawbot/internal/storage"
	"pawbot/pkg/logger"
)

// SQLiteIndex ranks the chunks stored in SQLite with BM25. The chunk table
// is read into memory on first use and again after every Refresh.
type SQLiteIndex struct {
	db  *storage.DB
	cfg BM25Config

	mu     sync.RWMutex
	corpus *bm25Corpus
}

var _ Index = (*SQLiteIndex)(nil)

// NewSQLiteIndex creates an index over db. A nil db yields an index whose
// searches fail with ErrIndexUnavailable.
func NewSQLiteIndex(db *storage.DB, cfg BM25Config) *SQLiteIndex {
	return &SQLiteIndex{db: db, cfg: cfg}
}

// Search implements Index.
func (x *SQLiteIndex) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	corpus, err := x.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return corpus.score(query, topK), nil
}

// Refresh reloads the chunk table.
func (x *SQLiteIndex) Refresh(ctx context.Context) error {
	if x.db == nil {
		return ErrIndexUnavailable
	}
	chunks, err := x.db.AllChunks(ctx)
	if err != nil {
		return fmt.Errorf("knowledge: load chunks: %w", err)
	}

	hits := make([]Hit, len(chunks))
	for i, c := range chunks {
		hits[i] = Hit{Text: c.Content, Source: c.Source, Page: c.Page, Section: c.Section}
	}
	corpus := newBM25Corpus(x.cfg, hits)

	x.mu.Lock()
	x.corpus = corpus
	x.mu.Unlock()

	logger.Debug().Int("chunks", len(hits)).Msg("knowledge index refreshed")
	return nil
}

// Size returns the number of indexed chunks.
func (x *SQLiteIndex) Size() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if x.corpus == nil {
		return 0
	}
	return len(x.corpus.docs)
}

func (x *SQLiteIndex) snapshot(ctx context.Context) (*bm25Corpus, error) {
	x.mu.RLock()
	c := x.corpus
	x.mu.RUnlock()
	if c != nil {
		return c, nil
	}
	if err := x.Refresh(ctx); err != nil {
		return nil, err
	}
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.corpus, nil
}
