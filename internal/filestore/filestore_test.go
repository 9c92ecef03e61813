package filestore

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sameergiri/relayhub/internal/models"
)

func TestBeginAppendComplete(t *testing.T) {
	session := models.NewSession("ABCDEF")
	store := For(session)

	id := store.Begin("uploader", "hi.txt", 5, "text/plain")

	received, total, ok := store.Append(id, []byte("hel"))
	require.True(t, ok)
	require.EqualValues(t, 3, received)
	require.EqualValues(t, 5, total)

	received, _, ok = store.Append(id, []byte("lo"))
	require.True(t, ok)
	require.EqualValues(t, 5, received)

	f, ok := store.Complete(id)
	require.True(t, ok)
	require.Equal(t, models.FileComplete, f.State)
	require.Equal(t, []byte("hello"), f.Bytes)
}

func TestAppendRejectsOverflow(t *testing.T) {
	session := models.NewSession("ABCDEF")
	store := For(session)
	id := store.Begin("uploader", "hi.txt", 3, "text/plain")

	_, _, ok := store.Append(id, []byte("abcd"))
	require.False(t, ok, "chunk exceeding declared size must be rejected")

	_, completed := store.Complete(id)
	require.False(t, completed)
}

func TestCompleteMismatchStaysOpen(t *testing.T) {
	session := models.NewSession("ABCDEF")
	store := For(session)
	id := store.Begin("uploader", "hi.txt", 5, "text/plain")

	store.Append(id, []byte("ab"))
	_, ok := store.Complete(id)
	require.False(t, ok, "receivedSize != size must leave the file Open")

	f, err := store.Get(id)
	require.NoError(t, err)
	require.Equal(t, models.FileOpen, f.State)
}

func TestGetRemoveUnknownFile(t *testing.T) {
	session := models.NewSession("ABCDEF")
	store := For(session)

	_, err := store.Get("missing")
	require.ErrorIs(t, err, ErrFileNotFound)

	store.Remove("missing") // must not panic
}

func TestListReturnsMetadataOnly(t *testing.T) {
	session := models.NewSession("ABCDEF")
	store := For(session)
	id := store.Begin("uploader", "hi.txt", 5, "text/plain")
	store.Append(id, []byte("hello"))
	store.Complete(id)

	metas := store.List()
	require.Len(t, metas, 1)
	require.Equal(t, "hi.txt", metas[0].OriginalName)
	require.EqualValues(t, 5, metas[0].Size)
}
