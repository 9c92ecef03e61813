package janitor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sameergiri/relayhub/internal/filestore"
	"github.com/sameergiri/relayhub/internal/models"
	"github.com/sameergiri/relayhub/internal/registry"
)

type fakeBroadcaster struct {
	removed []string
}

func (f *fakeBroadcaster) BroadcastFileRemoved(session *models.Session, fileID string) {
	f.removed = append(f.removed, fileID)
}

func TestSweepExpiresStaleFiles(t *testing.T) {
	reg := registry.New()
	device := &models.Device{ID: "d1"}
	session := reg.Create(device)

	store := filestore.For(session)
	id := store.Begin("d1", "stale.txt", 3, "text/plain")
	store.Append(id, []byte("abc"))
	store.Complete(id)

	// Backdate uploadedAt past the TTL.
	session.Lock()
	f, _ := session.GetFileLocked(id)
	f.UploadedAt = time.Now().Add(-31 * time.Minute)
	session.Unlock()

	bcast := &fakeBroadcaster{}
	j := New(reg, bcast, 30*time.Minute, time.Minute)
	j.sweep()

	_, err := store.Get(id)
	require.Error(t, err, "expired file must be gone after a sweep")
	require.Equal(t, []string{id}, bcast.removed)
}

func TestSweepDropsEmptySessionsPastTTL(t *testing.T) {
	reg := registry.New()
	device := &models.Device{ID: "d1"}
	session := reg.Create(device)
	reg.Leave(device.ID)

	session.Lock()
	session.RemoveDeviceLocked("already-gone") // no-op, just exercising idempotency
	session.Unlock()

	// emptyAt is set by Leave; a 1ms TTL plus a 2ms sleep puts it past the TTL.
	session.Lock()
	_, since := session.EmptySinceLocked()
	session.Unlock()
	require.False(t, since.IsZero())

	j := New(reg, &fakeBroadcaster{}, time.Millisecond, time.Minute)
	time.Sleep(2 * time.Millisecond)
	j.sweep()

	_, ok := reg.SessionByCode(session.Code)
	require.False(t, ok, "empty session past TTL must be collected")
}

func TestSweepKeepsFreshFilesAndNonEmptySessions(t *testing.T) {
	reg := registry.New()
	device := &models.Device{ID: "d1"}
	session := reg.Create(device)

	store := filestore.For(session)
	id := store.Begin("d1", "fresh.txt", 3, "text/plain")
	store.Append(id, []byte("abc"))
	store.Complete(id)

	j := New(reg, &fakeBroadcaster{}, 30*time.Minute, time.Minute)
	j.sweep()

	_, err := store.Get(id)
	require.NoError(t, err)
	_, ok := reg.SessionByCode(session.Code)
	require.True(t, ok)
}

func TestScheduleEmptyCheckDeletesStillEmptySession(t *testing.T) {
	reg := registry.New()
	device := &models.Device{ID: "d1"}
	session := reg.Create(device)
	reg.Leave(device.ID)

	ScheduleEmptyCheck(reg, session.Code, 10*time.Millisecond)
	time.Sleep(50 * time.Millisecond)

	_, ok := reg.SessionByCode(session.Code)
	require.False(t, ok)
}

func TestScheduleEmptyCheckSkipsRejoinedSession(t *testing.T) {
	reg := registry.New()
	device := &models.Device{ID: "d1"}
	session := reg.Create(device)
	reg.Leave(device.ID)

	ScheduleEmptyCheck(reg, session.Code, 20*time.Millisecond)

	// Rejoin before the check fires.
	_, err := reg.Join(session.Code, &models.Device{ID: "d2"})
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	_, ok := reg.SessionByCode(session.Code)
	require.True(t, ok, "a session that became non-empty before the check must survive")
}
