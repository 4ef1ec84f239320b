package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileBackend_PutGet(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = b.Get(ctx, "conversations/1/epoch")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.Put(ctx, Entry{Key: "conversations/1/epoch", Value: []byte(`{"epoch":0}`)}))
	data, err := b.Get(ctx, "conversations/1/epoch")
	require.NoError(t, err)
	assert.Equal(t, `{"epoch":0}`, string(data))

	info, err := os.Stat(filepath.Join(dir, "conversations", "1", "epoch.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	// no temp files left behind
	entries, err := os.ReadDir(filepath.Join(dir, "conversations", "1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFileBackend_RejectsTraversal(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"../escape", "a//b", "a/./b", ""} {
		err := b.Put(context.Background(), Entry{Key: key, Value: []byte("x")})
		assert.Error(t, err, key)
	}
}

func TestFileBackend_Keys(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, b.Put(ctx,
		Entry{Key: "conversations/1/history/0", Value: []byte("{}")},
		Entry{Key: "conversations/1/history/1", Value: []byte("{}")},
		Entry{Key: "conversations/1/epoch", Value: []byte("{}")},
		Entry{Key: "conversations/2/history/0", Value: []byte("{}")},
	))

	keys, err := b.Keys(ctx, "conversations/1/history/")
	require.NoError(t, err)
	assert.Equal(t, []string{"conversations/1/history/0", "conversations/1/history/1"}, keys)

	keys, err = b.Keys(ctx, "conversations/9/history/")
	require.NoError(t, err)
	assert.Empty(t, keys)
}
