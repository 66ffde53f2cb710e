package filesystem

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"okitegami/backend/internal/domain"
)

func TestStore_UploadOpenRemove(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir(), "https://cdn.example.com/media/")
	require.NoError(t, err)

	path := "letters/2024-04-01/abc.jpg"
	require.NoError(t, store.Upload(ctx, path, []byte("jpeg-bytes"), "image/jpeg"))

	data, err := store.Open(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("jpeg-bytes"), data)

	assert.Equal(t, "https://cdn.example.com/media/letters/2024-04-01/abc.jpg", store.PublicURL(path))
	assert.Empty(t, store.PublicURL(""))

	stats, err := store.GetStorageStats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["object_count"])

	require.NoError(t, store.Remove(ctx, path, "letters/missing.jpg", ""))
	_, err = store.Open(path)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestStore_RejectsTraversal(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(t.TempDir(), "/v1/media")
	require.NoError(t, err)

	for _, p := range []string{"../etc/passwd", "/abs/path.jpg", "a/../../b.jpg", "a//b.jpg", ""} {
		err := store.Upload(ctx, p, []byte("x"), "image/png")
		assert.True(t, errors.Is(err, domain.ErrValidation), p)
	}
}

func TestPlatformUtils_SanitizeSegment(t *testing.T) {
	p := NewPlatformUtils()

	assert.Equal(t, "unnamed", p.SanitizeSegment(" .. "))
	assert.Equal(t, "a_b.jpg", p.SanitizeSegment("a\\b.jpg"))
	assert.Equal(t, "clean.png", p.SanitizeSegment("clean\x01.png"))
}
