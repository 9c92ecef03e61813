package hub

import (
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"

	"github.com/sameergiri/relayhub/internal/models"
)

// connState is the per-connection lifecycle (§4.4): Unregistered accepts
// only create_session/join_session/ping; InSession accepts the full
// transfer protocol; Closed is terminal.
type connState int

const (
	stateUnregistered connState = iota
	stateInSession
	stateClosed
)

const (
	pingInterval = 45 * time.Second
	idleTimeout  = 90 * time.Second
	writeWait    = 10 * time.Second
)

// connection wraps one live *websocket.Conn with the device it was assigned
// and the protocol state machine. Writes are serialised through writeMu
// rather than a single-writer goroutine + channel, because §5 requires that
// a download's entire frame sequence (file_download_start, N binary frames,
// file_download_complete) be emitted with nothing else interleaved — an
// outbound queue alone can't guarantee that against concurrent broadcast
// writers, but holding the write lock for the whole sequence can.
type connection struct {
	hub    *Hub
	ws     *websocket.Conn
	device *models.Device

	writeMu sync.Mutex

	mu      sync.Mutex
	state   connState
	session *models.Session

	closeOnce sync.Once
}

func newConnection(h *Hub, ws *websocket.Conn, device *models.Device) *connection {
	return &connection{hub: h, ws: ws, device: device, state: stateUnregistered}
}

func (c *connection) getState() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *connection) currentSession() (*models.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session, c.state == stateInSession
}

// bindSession transitions Unregistered -> InSession. If already InSession it
// is a no-op (§4.4: a second create/join while InSession is rejected,
// staying in the current session).
func (c *connection) bindSession(session *models.Session) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == stateInSession {
		return false
	}
	c.state = stateInSession
	c.session = session
	return true
}

func (c *connection) markClosed() {
	c.mu.Lock()
	c.state = stateClosed
	c.mu.Unlock()
}

// run drives the connection's entire lifetime: a ping goroutine, the read
// loop dispatching frames to the protocol layer, and cleanup on exit
// (leave + device_left broadcast, per the Closed transition in §4.4).
func (c *connection) run() {
	defer c.cleanup()

	c.ws.SetReadLimit(c.hub.cfg.MaxFrameSize)
	c.resetReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		c.resetReadDeadline()
		return nil
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go c.pingLoop(stopPing)

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		c.resetReadDeadline()

		switch mt {
		case websocket.TextMessage:
			c.hub.handleControlFrame(c, data)
		case websocket.BinaryMessage:
			c.hub.handleDataFrame(c, data)
		default:
			// Ignore control-opcode frames (ping/pong/close are handled by
			// gorilla's ReadMessage loop already).
		}
	}
}

func (c *connection) resetReadDeadline() {
	_ = c.ws.SetReadDeadline(time.Now().Add(idleTimeout))
}

func (c *connection) pingLoop(stop <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// writeJSON serialises and sends a single control frame, taking the write
// lock for just this one frame.
func (c *connection) writeJSON(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.writeJSONLocked(v)
}

func (c *connection) writeJSONLocked(v any) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteJSON(v)
}

func (c *connection) writeBinaryLocked(b []byte) error {
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.BinaryMessage, b)
}

// withWriteLock runs fn with the connection's write lock held for its whole
// duration — used by the download path (§4.5/§9) to emit
// file_download_start, every data frame, and file_download_complete as one
// uninterrupted sequence from this connection's point of view.
func (c *connection) withWriteLock(fn func() error) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return fn()
}

// closeWithCause closes the underlying socket; the read loop's own defer
// performs the leave + broadcast cleanup. Safe to call multiple times.
func (c *connection) closeWithCause(cause error) {
	c.closeOnce.Do(func() {
		if cause != nil {
			log.WithField("device_id", c.device.ID).WithError(cause).Debug("closing connection")
		}
		_ = c.ws.Close()
	})
}

func (c *connection) cleanup() {
	_ = c.ws.Close()
	c.hub.handleDisconnect(c)
	c.markClosed()
}
