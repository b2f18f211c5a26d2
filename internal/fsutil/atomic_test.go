package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "rates.yaml")

	require.NoError(t, WriteFileAtomic(path, []byte("a: 1\n"), 0o644))
	require.NoError(t, WriteFileAtomic(path, []byte("b: 2\n"), 0o644))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "b: 2\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x")
	assert.NoError(t, RemoveIfExists(path))

	require.NoError(t, os.WriteFile(path, nil, 0o644))
	assert.True(t, Exists(path))
	assert.NoError(t, RemoveIfExists(path))
	assert.False(t, Exists(path))
}
