package securestore

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), []byte("device-secret"), []byte("salt"))
	require.NoError(t, err)

	_, ok, err := store.GetItem(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.SetItem(ctx, "k", "v1"))
	require.NoError(t, store.SetItem(ctx, "k", "v2"))

	v, ok, err := store.GetItem(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "v2", v)

	require.NoError(t, store.DeleteItem(ctx, "k"))
	require.NoError(t, store.DeleteItem(ctx, "k"))
	_, ok, _ = store.GetItem(ctx, "k")
	assert.False(t, ok)
}

func TestFileStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFileStore(dir, []byte("secret"), []byte("salt"))
	require.NoError(t, err)
	require.NoError(t, first.SetItem(ctx, "token", "value"))

	second, err := NewFileStore(dir, []byte("secret"), []byte("salt"))
	require.NoError(t, err)
	v, ok, err := second.GetItem(ctx, "token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "value", v)

	wrongKey, err := NewFileStore(dir, []byte("other"), []byte("salt"))
	require.NoError(t, err)
	_, _, err = wrongKey.GetItem(ctx, "token")
	assert.ErrorIs(t, err, ErrTampered)
}

func TestFileStore_DetectsSwappedFiles(t *testing.T) {
	ctx := context.Background()
	store, err := NewFileStore(t.TempDir(), []byte("secret"), []byte("salt"))
	require.NoError(t, err)

	require.NoError(t, store.SetItem(ctx, "a", "alpha"))
	require.NoError(t, store.SetItem(ctx, "b", "beta"))

	raw, err := os.ReadFile(store.path("a"))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(store.path("b"), raw, 0o600))

	_, _, err = store.GetItem(ctx, "b")
	assert.ErrorIs(t, err, ErrTampered)
}

func TestNewFileStore_EmptySecret(t *testing.T) {
	_, err := NewFileStore(t.TempDir(), nil, []byte("salt"))
	assert.Error(t, err)
}
