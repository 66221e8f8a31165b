package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLocalFileStorage_SaveAndDelete(t *testing.T) {
	baseDir := t.TempDir()
	fs := NewLocalFileStorage(baseDir, zap.NewNop())
	ctx := context.Background()

	t.Run("relative path", func(t *testing.T) {
		require.NoError(t, fs.Save(ctx, filepath.Join("7", "photo.jpg"), []byte("jpeg")))
		assert.True(t, fs.Exists(ctx, filepath.Join("7", "photo.jpg")))

		require.NoError(t, fs.Delete(ctx, filepath.Join("7", "photo.jpg")))
		assert.False(t, fs.Exists(ctx, filepath.Join("7", "photo.jpg")))
		assert.NoDirExists(t, filepath.Join(baseDir, "7"), "empty group directory removed")
	})

	t.Run("absolute path inside cache", func(t *testing.T) {
		full := filepath.Join(baseDir, "8", "map.png")
		require.NoError(t, fs.Save(ctx, full, []byte("png")))
		require.NoError(t, fs.Save(ctx, filepath.Join(baseDir, "8", "other.png"), []byte("png")))

		require.NoError(t, fs.Delete(ctx, full))
		assert.NoFileExists(t, full)
		assert.DirExists(t, filepath.Join(baseDir, "8"), "directory still holds a file")
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		assert.NoError(t, fs.Delete(ctx, "gone.bin"))
	})
}

func TestLocalFileStorage_RefusesPathsOutsideCache(t *testing.T) {
	root := t.TempDir()
	baseDir := filepath.Join(root, "cache")
	outside := filepath.Join(root, "operator", "saved.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(outside), 0o755))
	require.NoError(t, os.WriteFile(outside, []byte("keep"), 0o644))
	fs := NewLocalFileStorage(baseDir, zap.NewNop())
	ctx := context.Background()

	assert.ErrorIs(t, fs.Delete(ctx, outside), ErrOutsideCache)
	assert.ErrorIs(t, fs.Delete(ctx, filepath.Join("..", "operator", "saved.jpg")), ErrOutsideCache)
	assert.ErrorIs(t, fs.Save(ctx, "../escape.txt", []byte("x")), ErrOutsideCache)
	assert.ErrorIs(t, fs.Delete(ctx, baseDir), ErrOutsideCache)
	assert.FileExists(t, outside)
}
