package session

import (
	"context"
	"errors"

	"pawbot/internal/storage"
)

// SQLiteBackend keeps records in the kv_store table.
type SQLiteBackend struct {
	db *storage.DB
}

var _ Backend = (*SQLiteBackend)(nil)

// NewSQLiteBackend creates a backend over an open database.
func NewSQLiteBackend(db *storage.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

// Get implements Backend.
func (b *SQLiteBackend) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := b.db.KVGet(ctx, key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return []byte(v), nil
}

// Put implements Backend. All entries commit in one transaction.
func (b *SQLiteBackend) Put(ctx context.Context, entries ...Entry) error {
	pairs := make([]storage.KV, len(entries))
	for i, e := range entries {
		pairs[i] = storage.KV{Key: e.Key, Value: string(e.Value)}
	}
	return b.db.KVSetMany(ctx, pairs)
}

// Keys implements Backend.
func (b *SQLiteBackend) Keys(ctx context.Context, prefix string) ([]string, error) {
	return b.db.KVKeys(ctx, prefix)
}
