package objectstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kycgate/pkg/platform/sentinel"
)

func TestInMemory(t *testing.T) {
	ctx := context.Background()
	store := NewInMemory()

	t.Run("missing key is not found", func(t *testing.T) {
		_, err := store.Download(ctx, "cases/INT-1/evidence/EVD-1/a.pdf")
		require.ErrorIs(t, err, ErrObjectNotFound)
		assert.ErrorIs(t, err, sentinel.ErrNotFound)

		ok, err := store.Exists(ctx, "cases/INT-1/evidence/EVD-1/a.pdf")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("upload then download returns a copy", func(t *testing.T) {
		data := []byte("hello")
		require.NoError(t, store.Upload(ctx, "k", "text/plain", data))
		data[0] = 'j'

		got, err := store.Download(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, "hello", string(got))

		got[0] = 'x'
		again, _ := store.Download(ctx, "k")
		assert.Equal(t, "hello", string(again))
	})
}

func TestIsNotFound(t *testing.T) {
	assert.False(t, isNotFound(assert.AnError))
}
