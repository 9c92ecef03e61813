package hub

import (
	"net/http"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"

	"github.com/sameergiri/relayhub/internal/config"
	"github.com/sameergiri/relayhub/internal/ids"
	"github.com/sameergiri/relayhub/internal/janitor"
	"github.com/sameergiri/relayhub/internal/models"
	"github.com/sameergiri/relayhub/internal/persist"
	"github.com/sameergiri/relayhub/internal/registry"
)

// emptySessionCheckDelay is the one-shot empty-session re-check delay of
// §4.7 — fixed at 5 minutes regardless of the configured FileTTL.
const emptySessionCheckDelay = 5 * time.Minute

// upgrader accepts WebSocket upgrades from any origin — the hub is meant for
// ad-hoc LAN use, not a browser-security-sensitive deployment (§1 Non-goals:
// no authentication, no authorization).
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Hub is the top-level wiring for C4/C5/C6: it owns the session registry and
// a device-id -> live-connection index used by the broadcaster to find
// writable peers. It presents one entry point, Upgrade, for the HTTP facade
// (C8) to hand off an incoming WebSocket request.
type Hub struct {
	cfg      config.Config
	registry *registry.Registry
	stats    persist.Store

	connMu sync.Mutex
	conns  map[string]*connection
}

// New constructs a Hub bound to the given registry and config. stats may be
// nil, in which case session-create/device-join counters are simply not
// recorded — the stats collaborator is optional (§6/§7).
func New(cfg config.Config, reg *registry.Registry, stats persist.Store) *Hub {
	return &Hub{
		cfg:      cfg,
		registry: reg,
		stats:    stats,
		conns:    make(map[string]*connection),
	}
}

// Registry exposes the underlying session registry, e.g. for the janitor and
// the HTTP facade's read-only endpoints.
func (h *Hub) Registry() *registry.Registry { return h.registry }

// Upgrade promotes an HTTP request to a WebSocket connection, assigns it a
// fresh device id, and runs its lifetime to completion. Intended to be
// called from an http.HandlerFunc; blocks until the connection closes.
func (h *Hub) Upgrade(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("hub: websocket upgrade failed")
		return
	}

	device := &models.Device{
		ID:   ids.NewDeviceID(),
		Type: models.DeviceUnknown,
		Conn: ws,
	}

	c := newConnection(h, ws, device)
	h.registerConnection(c)
	c.run()
}

func (h *Hub) registerConnection(c *connection) {
	h.connMu.Lock()
	h.conns[c.device.ID] = c
	h.connMu.Unlock()
}

func (h *Hub) connectionFor(deviceID string) *connection {
	h.connMu.Lock()
	defer h.connMu.Unlock()
	return h.conns[deviceID]
}

// handleDisconnect runs the Closed transition (§4.4): remove the connection
// from the live-connection index, leave whatever session the device was in,
// and broadcast device_left to the remaining members.
func (h *Hub) handleDisconnect(c *connection) {
	h.connMu.Lock()
	delete(h.conns, c.device.ID)
	h.connMu.Unlock()

	session, wasInSession := c.currentSession()
	h.registry.Leave(c.device.ID)
	if !wasInSession || session == nil {
		return
	}

	session.Lock()
	remaining := session.DeviceCountLocked()
	session.Unlock()

	h.broadcast(session, deviceLeftOut{
		Type:         "device_left",
		DeviceID:     c.device.ID,
		TotalDevices: remaining,
	}, c.device.ID)

	if remaining == 0 {
		janitor.ScheduleEmptyCheck(h.registry, session.Code, emptySessionCheckDelay)
	}
}

// BroadcastFileRemoved fans out a file_removed frame to every member of
// session. It implements janitor.Broadcaster so the janitor's TTL sweep can
// notify live peers without this package importing the janitor's internals.
func (h *Hub) BroadcastFileRemoved(session *models.Session, fileID string) {
	h.broadcast(session, fileRemovedOut{Type: "file_removed", FileID: fileID}, "")
}
