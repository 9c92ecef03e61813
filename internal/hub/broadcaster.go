package hub

import (
	"github.com/apex/log"

	"github.com/sameergiri/relayhub/internal/models"
)

// broadcast serialises frame once (each WriteJSON call re-marshals, but the
// value itself is built once by the caller) and fans it out to every member
// of session whose id isn't excludeDeviceID. The session's device list is
// snapshotted under its own lock and then released before any network I/O,
// so the session lock is never held across a write (§9 "Broadcast
// snapshotting"). A failed write to one peer never aborts delivery to the
// others — writeJSON's own write-deadline bounds how long a stuck peer can
// delay this call, and on error the offending connection closes itself.
func (h *Hub) broadcast(session *models.Session, frame any, excludeDeviceID string) {
	session.Lock()
	members := session.DevicesLocked()
	session.Unlock()

	for _, d := range members {
		if d.ID == excludeDeviceID {
			continue
		}
		conn := h.connectionFor(d.ID)
		if conn == nil {
			continue
		}
		if err := conn.writeJSON(frame); err != nil {
			log.WithField("device_id", d.ID).WithError(err).Warn("broadcast: write failed, closing connection")
			conn.closeWithCause(err)
		}
	}
}
