package blob

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStore {
	t.Helper()
	store, err := NewLocalStore(t.TempDir(), "https://cdn.example.com")
	require.NoError(t, err)
	return store
}

// TestSaveRetrieveRoundTrip verifies that retrieve returns the exact bytes
// that were saved.
func TestSaveRetrieveRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	payload := []byte(`{"t":22}`)
	handle, err := store.Save(ctx, payload, "weather", "json")
	require.NoError(t, err)
	assert.Contains(t, handle, "weather/")

	got, err := store.Retrieve(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, payload, got)
}

func TestSaveAtPath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	handle, err := store.SaveAtPath(ctx, []byte("manifest"), "tilesets/abc/tileset.json")
	require.NoError(t, err)
	assert.Equal(t, "tilesets/abc/tileset.json", handle)

	got, err := store.Retrieve(ctx, handle)
	require.NoError(t, err)
	assert.Equal(t, []byte("manifest"), got)
}

func TestRetrieveMissing(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Retrieve(context.Background(), "weather/missing.json")
	assert.Error(t, err)
}

func TestDeleteIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	handle, err := store.Save(ctx, []byte("x"), "weather", "")
	require.NoError(t, err)

	assert.NoError(t, store.Delete(ctx, handle))
	assert.NoError(t, store.Delete(ctx, handle))
}

func TestDeleteByPrefix(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, p := range []string{"tilesets/t1/a.png", "tilesets/t1/b.png", "tilesets/t1/sub/c.png"} {
		_, err := store.SaveAtPath(ctx, []byte("tile"), p)
		require.NoError(t, err)
	}
	_, err := store.SaveAtPath(ctx, []byte("keep"), "tilesets/t2/a.png")
	require.NoError(t, err)

	count, err := store.DeleteByPrefix(ctx, "tilesets/t1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	_, err = store.Retrieve(ctx, "tilesets/t2/a.png")
	assert.NoError(t, err)
}

func TestDeleteByPrefixMissing(t *testing.T) {
	store := newTestStore(t)

	count, err := store.DeleteByPrefix(context.Background(), "nothing/here")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestRejectsEscapingHandles(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	tests := []string{"../outside", "/etc/passwd", "a/../../b"}
	for _, handle := range tests {
		_, err := store.Retrieve(ctx, handle)
		assert.Error(t, err, handle)
	}
}

func TestPublicURL(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, "https://cdn.example.com/weather/a.json", store.PublicURL("weather/a.json"))
}
