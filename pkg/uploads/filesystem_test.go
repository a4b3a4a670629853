package uploads

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesystemPutGetDelete(t *testing.T) {
	store, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "orgs/1/products/2/image.png"
	require.NoError(t, store.Put(ctx, key, strings.NewReader("pixels"), "image/png"))

	rc, contentType, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "pixels", string(data))
	assert.Equal(t, "image/png", contentType)

	require.NoError(t, store.Delete(ctx, key))
	_, _, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFilesystemOverwrite(t *testing.T) {
	store, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	key := "orgs/1/products/2/image.png"
	require.NoError(t, store.Put(ctx, key, strings.NewReader("first"), "image/png"))
	require.NoError(t, store.Put(ctx, key, strings.NewReader("second"), "image/png"))

	rc, _, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	store, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	for _, key := range []string{"", "../etc/passwd", "/abs/path", "a/../../b"} {
		assert.Error(t, store.Put(ctx, key, strings.NewReader("x"), "text/plain"), key)
		_, _, err := store.Get(ctx, key)
		assert.Error(t, err, key)
	}
}

func TestFilesystemDeleteMissingKey(t *testing.T) {
	store, err := NewFilesystemStorage(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, store.Delete(context.Background(), "orgs/1/products/2/missing.png"))
}

func TestNewImageKey(t *testing.T) {
	key, err := NewImageKey(7, 42, "photo.JPG")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "orgs/7/products/42/"))
	assert.True(t, strings.HasSuffix(key, ".jpg"))

	// Two keys for the same filename never collide.
	other, err := NewImageKey(7, 42, "photo.JPG")
	require.NoError(t, err)
	assert.NotEqual(t, key, other)

	_, err = NewImageKey(7, 42, "script.sh")
	assert.Error(t, err)

	_, err = NewImageKey(7, 42, "noextension")
	assert.Error(t, err)
}
