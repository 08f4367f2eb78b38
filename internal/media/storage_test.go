package media

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreSaveAndRemove(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	filename, err := store.Save("photo.JPG", []byte("fake image bytes"))
	require.NoError(t, err)
	assert.NotEqual(t, "photo.JPG", filename)
	assert.Equal(t, ".jpg", filepath.Ext(filename))
	assert.True(t, store.Exists(filename))

	require.NoError(t, store.Remove(filename))
	assert.False(t, store.Exists(filename))

	// Removing an already-gone file is not an error.
	require.NoError(t, store.Remove(filename))
}

func TestStoreRejectsUnsupportedExtension(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save("script.exe", []byte("nope"))
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestStoreRejectsTraversalFilenames(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.False(t, store.Exists("../outside.jpg"))
	assert.Error(t, store.Remove("../outside.jpg"))
}

func TestStoreRandomizesFilenames(t *testing.T) {
	store, err := NewStore(t.TempDir())
	require.NoError(t, err)

	first, err := store.Save("same.png", []byte("a"))
	require.NoError(t, err)
	second, err := store.Save("same.png", []byte("b"))
	require.NoError(t, err)

	assert.NotEqual(t, first, second)

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
