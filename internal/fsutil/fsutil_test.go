package fsutil

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplacesContentAndMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "crontab")
	require.NoError(t, os.WriteFile(path, []byte("old\n"), 0o644))

	require.NoError(t, WriteFileAtomic(path, []byte("new\n"), 0o600))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new\n", string(data))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file must not be left behind")
}

func TestWriteFileAtomicFailsWithoutDirectory(t *testing.T) {
	err := WriteFileAtomic(filepath.Join(t.TempDir(), "missing", "file"), []byte("x"), 0o600)
	require.Error(t, err)
}

func TestCopyFileAtomic(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	payload := bytes.Repeat([]byte("abc"), 50_000)
	require.NoError(t, os.WriteFile(src, payload, 0o644))

	require.NoError(t, CopyFileAtomic(src, dst, 0o700))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, payload, data)
	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o700), info.Mode().Perm())
}

func TestSameContent(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	c := filepath.Join(dir, "c")
	d := filepath.Join(dir, "d")
	big := bytes.Repeat([]byte{1, 2, 3, 4}, 40_000)
	changed := append([]byte(nil), big...)
	changed[len(changed)-1] = 9
	require.NoError(t, os.WriteFile(a, big, 0o644))
	require.NoError(t, os.WriteFile(b, big, 0o600))
	require.NoError(t, os.WriteFile(c, changed, 0o644))
	require.NoError(t, os.WriteFile(d, big[:10], 0o644))

	same, err := SameContent(a, b)
	require.NoError(t, err)
	assert.True(t, same)

	same, err = SameContent(a, c)
	require.NoError(t, err)
	assert.False(t, same)

	same, err = SameContent(a, d)
	require.NoError(t, err)
	assert.False(t, same)

	same, err = SameContent(a, filepath.Join(dir, "missing"))
	require.NoError(t, err)
	assert.False(t, same)
}
