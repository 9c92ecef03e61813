package persist

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileStoreRecordsAndReadsStats(t *testing.T) {
	store, err := Open("", t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, store.RecordSessionCreated())
	require.NoError(t, store.RecordDeviceJoined())
	require.NoError(t, store.RecordDeviceJoined())

	stats, err := store.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalSessions)
	require.Equal(t, 3, stats.TotalUsers)
}

func TestFileStoreRejectsOutOfRangeRating(t *testing.T) {
	store, err := Open("", t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	require.ErrorIs(t, store.RecordFeedback(0, "too low"), ErrInvalidRating)
	require.ErrorIs(t, store.RecordFeedback(6, "too high"), ErrInvalidRating)
	require.NoError(t, store.RecordFeedback(5, "great"))
}

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	store, err := Open("", dir)
	require.NoError(t, err)
	require.NoError(t, store.RecordSessionCreated())
	require.NoError(t, store.Close())

	reopened, err := Open("", dir)
	require.NoError(t, err)
	defer reopened.Close()

	stats, err := reopened.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalSessions)
}
