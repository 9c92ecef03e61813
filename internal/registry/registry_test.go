package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sameergiri/relayhub/internal/ids"
	"github.com/sameergiri/relayhub/internal/models"
)

func newDevice(id string) *models.Device {
	return &models.Device{ID: id, Name: "dev-" + id, Type: models.DeviceUnknown}
}

func TestCreateAssignsUniqueCode(t *testing.T) {
	r := New()
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		s := r.Create(newDevice(ids.NewDeviceID()))
		require.False(t, seen[s.Code], "duplicate session code issued")
		seen[s.Code] = true
	}
}

func TestJoinIsCaseInsensitive(t *testing.T) {
	r := New()
	creator := newDevice("creator")
	session := r.Create(creator)

	joiner := newDevice("joiner")
	got, err := r.Join(strings.ToLower(session.Code), joiner)
	require.NoError(t, err)
	require.Same(t, session, got)

	session.Lock()
	require.Equal(t, 2, session.DeviceCountLocked())
	session.Unlock()
}

func TestJoinUnknownCodeReturnsNotFound(t *testing.T) {
	r := New()
	_, err := r.Join("ZZZZZZ", newDevice("x"))
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestIndexAndSessionMembershipAgree(t *testing.T) {
	r := New()
	d1 := newDevice("d1")
	session := r.Create(d1)

	got, ok := r.Lookup(d1.ID)
	require.True(t, ok)
	require.Equal(t, session.Code, got.Code)

	r.Leave(d1.ID)
	_, ok = r.Lookup(d1.ID)
	require.False(t, ok)

	session.Lock()
	require.Equal(t, 0, session.DeviceCountLocked())
	empty, _ := session.EmptySinceLocked()
	require.True(t, empty)
	session.Unlock()
}

func TestDeleteSessionIsIdempotent(t *testing.T) {
	r := New()
	d1 := newDevice("d1")
	session := r.Create(d1)

	r.DeleteSession(session.Code)
	r.DeleteSession(session.Code) // must not panic or error

	_, ok := r.SessionByCode(session.Code)
	require.False(t, ok)
	_, ok = r.Lookup(d1.ID)
	require.False(t, ok)
}

func TestNoTwoSessionsShareACode(t *testing.T) {
	r := New()
	codes := make(map[string]bool)
	for i := 0; i < 200; i++ {
		s := r.Create(newDevice(ids.NewDeviceID()))
		require.False(t, codes[s.Code])
		codes[s.Code] = true
	}
}
