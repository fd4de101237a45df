package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/asyncjob/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "objects")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		require.NotNil(t, store)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		require.True(t, info.IsDir())
	})

	t.Run("missing base dir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		require.Error(t, err)
	})

	t.Run("base dir is a file", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		require.Error(t, err)
	})
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	var last int64
	uri, err := store.PutObject(context.Background(), "a/b/disk.img", "", strings.NewReader("hello world"),
		func(n int64) { last = n })
	require.NoError(t, err)
	require.Equal(t, "file://"+filepath.Join(dir, "a/b/disk.img"), uri)
	require.Equal(t, int64(11), last)

	// #nosec G304 -- test reads from its temp directory.
	data, err := os.ReadFile(filepath.Join(dir, "a/b/disk.img"))
	require.NoError(t, err)
	require.Equal(t, "hello world", string(data))

	_, err = store.PutObject(context.Background(), "", "", strings.NewReader("x"), nil)
	require.Error(t, err)

	_, err = store.PutObject(context.Background(), "../escape", "", strings.NewReader("x"), nil)
	require.ErrorContains(t, err, "path traversal")
}

func TestPutObjectCanceled(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.PutObject(ctx, "late.img", "", strings.NewReader("data"), nil)
	require.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(filepath.Join(dir, "late.img"))
	require.True(t, os.IsNotExist(statErr))
}
