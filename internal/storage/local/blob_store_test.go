package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPutObjectWritesFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	store, err := New(Config{BaseDir: dir})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(),
		"raw_snapshots/platform=facebook/snapshot_s1.json", "application/json", []byte(`[{"a":1}]`))
	require.NoError(t, err)
	require.Contains(t, uri, "file://")

	content, err := os.ReadFile(filepath.Join(dir, "raw_snapshots/platform=facebook/snapshot_s1.json"))
	require.NoError(t, err)
	require.Equal(t, `[{"a":1}]`, string(content))
}

func TestPutObjectRejectsTraversal(t *testing.T) {
	t.Parallel()
	store, err := New(Config{BaseDir: t.TempDir()})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "../escape.json", "application/json", []byte("{}"))
	require.Error(t, err)
}

func TestNewCreatesMissingBaseDir(t *testing.T) {
	t.Parallel()
	dir := filepath.Join(t.TempDir(), "nested", "blobs")
	_, err := New(Config{BaseDir: dir})
	require.NoError(t, err)
	info, err := os.Stat(dir)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestNewRequiresBaseDir(t *testing.T) {
	t.Parallel()
	_, err := New(Config{})
	require.Error(t, err)
}
