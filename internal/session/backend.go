package session

import "context"

// Entry is one key/value pair handed to Backend.Put.
type Entry struct {
	Key   string
	Value []byte
}

// Backend is the key-value store behind Store.
type Backend interface {
	// Get returns ErrNotFound for a missing key.
	Get(ctx context.Context, key string) ([]byte, error)
	// Put writes entries in order. A failure never leaves a partially
	// written value behind; earlier entries may already be stored.
	Put(ctx context.Context, entries ...Entry) error
	// Keys lists keys with the given prefix in lexical order.
	Keys(ctx context.Context, prefix string) ([]string, error)
}
