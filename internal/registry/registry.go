// Package registry is the authoritative, in-memory map of active sessions
// (C2): creation, lookup, membership, and the device→session index kept in
// lockstep with it.
package registry

import (
	"sync"

	"github.com/pkg/errors"

	"github.com/sameergiri/relayhub/internal/ids"
	"github.com/sameergiri/relayhub/internal/models"
)

// ErrSessionNotFound is returned by Join when no live session matches the
// given code.
var ErrSessionNotFound = errors.New("session not found")

const maxCodeRetries = 20

// Registry is the process-wide session table plus the device→session code
// index. The registry lock is the outermost lock in the hierarchy (registry
// lock > session lock > connection write lock, §5/§9): it is held to mutate
// the top-level maps and never across any network I/O. The only place it is
// held while a session's own lock is taken is DeleteSession, which reads the
// session's members to clear their index entries, in hierarchy order.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
	index    map[string]string // deviceID -> session code
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		sessions: make(map[string]*models.Session),
		index:    make(map[string]string),
	}
}

// Create mints a fresh session code, retrying on collision, constructs an
// empty Session, inserts device as its first member, and updates the index.
// No broadcast is emitted — the creator is alone (§4.2).
func (r *Registry) Create(device *models.Device) *models.Session {
	r.mu.Lock()
	var code string
	for i := 0; i < maxCodeRetries; i++ {
		candidate := ids.NewSessionCode()
		if _, exists := r.sessions[candidate]; !exists {
			code = candidate
			break
		}
	}
	if code == "" {
		// Exhausted retries against an astronomically unlikely run of
		// collisions; mint one more without a uniqueness check rather than
		// fail the request outright.
		code = ids.NewSessionCode()
	}

	session := models.NewSession(code)
	r.sessions[code] = session
	r.index[device.ID] = code
	r.mu.Unlock()

	session.Lock()
	session.AddDeviceLocked(device)
	session.Unlock()

	return session
}

// Join performs a case-insensitive lookup of code, inserts device on
// success, and updates the index. On failure it returns ErrSessionNotFound;
// the caller's connection is not closed — the client may retry (§4.2).
func (r *Registry) Join(code string, device *models.Device) (*models.Session, error) {
	normalized := ids.NormalizeCode(code)

	r.mu.Lock()
	session, ok := r.sessions[normalized]
	if !ok {
		r.mu.Unlock()
		return nil, ErrSessionNotFound
	}
	r.index[device.ID] = normalized
	r.mu.Unlock()

	session.Lock()
	session.AddDeviceLocked(device)
	session.Unlock()

	return session, nil
}

// Leave removes device from whatever session it currently belongs to (if
// any) and drops it from the index. The session itself is never deleted here
// — that is the janitor's job (§4.7); an empty session is just marked
// emptyAt and left in place.
func (r *Registry) Leave(deviceID string) {
	r.mu.Lock()
	code, ok := r.index[deviceID]
	if !ok {
		r.mu.Unlock()
		return
	}
	delete(r.index, deviceID)
	session, ok := r.sessions[code]
	r.mu.Unlock()
	if !ok {
		return
	}

	session.Lock()
	session.RemoveDeviceLocked(deviceID)
	session.Unlock()
}

// Lookup returns the session a device currently belongs to, if any.
func (r *Registry) Lookup(deviceID string) (*models.Session, bool) {
	r.mu.Lock()
	code, ok := r.index[deviceID]
	if !ok {
		r.mu.Unlock()
		return nil, false
	}
	session, ok := r.sessions[code]
	r.mu.Unlock()
	return session, ok
}

// SessionByCode returns the session for a (case-insensitive) code, without
// touching membership.
func (r *Registry) SessionByCode(code string) (*models.Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[ids.NormalizeCode(code)]
	return s, ok
}

// Sessions returns a snapshot slice of all live sessions, for the janitor
// sweep.
func (r *Registry) Sessions() []*models.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// DeleteSession removes a session from the registry and its index entries,
// if still present. Deletion is idempotent: calling it twice, or calling it
// on a code that was never valid, is a no-op (§4.7 relies on this).
func (r *Registry) DeleteSession(code string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.sessions[code]
	if !ok {
		return
	}
	delete(r.sessions, code)

	session.Lock()
	for _, d := range session.DevicesLocked() {
		delete(r.index, d.ID)
	}
	session.Unlock()
}

// Count reports the number of live sessions and the total number of devices
// across all of them, for GET /api/info.
func (r *Registry) Count() (sessions int, devices int) {
	r.mu.Lock()
	sessionList := make([]*models.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessionList = append(sessionList, s)
	}
	r.mu.Unlock()

	sessions = len(sessionList)
	for _, s := range sessionList {
		s.Lock()
		devices += s.DeviceCountLocked()
		s.Unlock()
	}
	return sessions, devices
}
