package knowledge

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolver_Resolve(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "price"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "price", "list.pdf"), []byte("%PDF"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "return.pdf"), []byte("%PDF"), 0644))

	r := NewResolver(dir)

	got, err := r.Resolve("price/list.pdf")
	require.NoError(t, err)
	assert.Equal(t, "list.pdf", filepath.Base(got))

	// sources recorded relative to another root fall back to the base name
	got, err = r.Resolve("knowledge/4lapy_docs/return.pdf")
	require.NoError(t, err)
	assert.Equal(t, "return.pdf", filepath.Base(got))

	_, err = r.Resolve("missing.pdf")
	assert.ErrorIs(t, err, ErrSourceNotFound)

	_, err = r.Resolve("../../etc/passwd")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	_, err = r.Resolve("price")
	assert.ErrorIs(t, err, ErrSourceNotFound, "directories are not attachments")

	_, err = r.Resolve("")
	assert.ErrorIs(t, err, ErrSourceNotFound)
}

func TestResolver_SymlinkEscapingRoot(t *testing.T) {
	outside := t.TempDir()
	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("token"), 0644))

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "real.md"), []byte("# ok"), 0644))
	if err := os.Symlink(secret, filepath.Join(dir, "leak.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	require.NoError(t, os.Symlink(filepath.Join(dir, "real.md"), filepath.Join(dir, "alias.md")))

	r := NewResolver(dir)

	_, err := r.Resolve("leak.txt")
	assert.ErrorIs(t, err, ErrOutsideRoot)

	got, err := r.Resolve("alias.md")
	require.NoError(t, err)
	assert.Equal(t, "alias.md", filepath.Base(got))
}
