package hub

import (
	"math"
	"time"

	"github.com/apex/log"
	"github.com/gosimple/slug"

	"github.com/sameergiri/relayhub/internal/filestore"
	"github.com/sameergiri/relayhub/internal/models"
)

const maxDeviceNameLen = 80

// handleControlFrame decodes and dispatches one textual JSON frame. Malformed
// JSON or an unrecognized type is logged and ignored — the connection stays
// open (§7 "Malformed frame"). A frame sent from a state that disallows it
// is likewise ignored rather than treated as fatal (§7 "Protocol
// violation").
func (h *Hub) handleControlFrame(c *connection, data []byte) {
	typ, msg, err := decodeControlFrame(data)
	if err != nil {
		log.WithField("type", typ).WithError(err).Debug("hub: malformed or unknown control frame")
		return
	}

	state := c.getState()

	switch typ {
	case "ping":
		h.handlePing(c)

	case "create_session":
		if state == stateInSession {
			return // §4.4: second create/join while InSession stays in the current session
		}
		h.handleCreateSession(c, msg.(*createSessionIn))

	case "join_session":
		if state == stateInSession {
			return
		}
		h.handleJoinSession(c, msg.(*joinSessionIn))

	case "file_start":
		if state != stateInSession {
			return
		}
		h.handleFileStart(c, msg.(*fileStartIn))

	case "file_complete":
		if state != stateInSession {
			return
		}
		h.handleFileComplete(c, msg.(*fileCompleteIn))

	case "request_file":
		if state != stateInSession {
			return
		}
		h.handleRequestFile(c, msg.(*requestFileIn))

	case "delete_file":
		if state != stateInSession {
			return
		}
		h.handleDeleteFile(c, msg.(*deleteFileIn))
	}
}

func (h *Hub) handlePing(c *connection) {
	if err := c.writeJSON(pongOut{Type: "pong", Time: time.Now()}); err != nil {
		c.closeWithCause(err)
	}
}

func (h *Hub) handleCreateSession(c *connection, in *createSessionIn) {
	c.device.Name = sanitizeDeviceName(in.DeviceName)
	c.device.Type = sanitizeDeviceType(in.DeviceType)
	c.device.ConnectedAt = time.Now()

	session := h.registry.Create(c.device)
	c.bindSession(session)

	session.Lock()
	count := session.DeviceCountLocked()
	session.Unlock()

	log.WithField("device", logTag(c.device.Name)).WithField("session", session.Code).Debug("hub: session created")

	if h.stats != nil {
		if err := h.stats.RecordSessionCreated(); err != nil {
			log.WithError(err).Warn("hub: could not record session-created stat")
		}
	}

	if err := c.writeJSON(sessionCreatedOut{
		Type:             "session_created",
		SessionCode:      session.Code,
		DeviceID:         c.device.ID,
		ConnectedDevices: count,
	}); err != nil {
		c.closeWithCause(err)
	}
}

func (h *Hub) handleJoinSession(c *connection, in *joinSessionIn) {
	c.device.Name = sanitizeDeviceName(in.DeviceName)
	c.device.Type = sanitizeDeviceType(in.DeviceType)
	c.device.ConnectedAt = time.Now()

	session, err := h.registry.Join(in.SessionCode, c.device)
	if err != nil {
		if writeErr := c.writeJSON(sessionErrorOut{
			Type:  "session_error",
			Error: "Session not found. Check the code and try again.",
		}); writeErr != nil {
			c.closeWithCause(writeErr)
		}
		return
	}

	c.bindSession(session)

	session.Lock()
	count := session.DeviceCountLocked()
	session.Unlock()

	if err := c.writeJSON(sessionJoinedOut{
		Type:             "session_joined",
		SessionCode:      session.Code,
		DeviceID:         c.device.ID,
		ConnectedDevices: count,
	}); err != nil {
		c.closeWithCause(err)
		return
	}

	if files := filestore.For(session).List(); len(files) > 0 {
		if err := c.writeJSON(existingFilesOut{Type: "existing_files", Files: files}); err != nil {
			c.closeWithCause(err)
			return
		}
	}

	log.WithField("device", logTag(c.device.Name)).WithField("session", session.Code).Debug("hub: device joined")

	if h.stats != nil {
		if err := h.stats.RecordDeviceJoined(); err != nil {
			log.WithError(err).Warn("hub: could not record device-joined stat")
		}
	}

	h.broadcast(session, deviceJoinedOut{
		Type:         "device_joined",
		Device:       c.device.Meta(),
		TotalDevices: count,
	}, c.device.ID)
}

func (h *Hub) handleFileStart(c *connection, in *fileStartIn) {
	session, ok := c.currentSession()
	if !ok {
		return
	}
	fileID := filestore.For(session).Begin(c.device.ID, in.FileName, in.FileSize, in.MimeType)

	if err := c.writeJSON(fileStartAckOut{
		Type:     "file_start_ack",
		FileID:   fileID,
		FileName: in.FileName,
	}); err != nil {
		c.closeWithCause(err)
	}
}

// handleDataFrame ingests an upload chunk (§4.5 "(binary frame)"). Unknown
// file ids and over-size chunks are dropped with a debug log line and no
// reply per §4.3/§7 — the client is expected to reconcile via
// existing_files/file_removed rather than receive an explicit abort.
func (h *Hub) handleDataFrame(c *connection, raw []byte) {
	session, ok := c.currentSession()
	if !ok {
		return
	}
	fileID, payload, ok := decodeDataFrame(raw)
	if !ok {
		return
	}

	received, total, ok := filestore.For(session).Append(fileID, payload)
	if !ok {
		log.WithField("device_id", c.device.ID).WithField("file", fileID).Debug("hub: upload chunk dropped (unknown file or over declared size)")
		return
	}

	progress := 100
	if total > 0 {
		progress = int(math.Round(float64(received) / float64(total) * 100))
	}

	if err := c.writeJSON(uploadProgressOut{
		Type:     "upload_progress",
		FileID:   fileID,
		Progress: progress,
		Received: received,
		Total:    total,
	}); err != nil {
		c.closeWithCause(err)
	}
}

func (h *Hub) handleFileComplete(c *connection, in *fileCompleteIn) {
	session, ok := c.currentSession()
	if !ok {
		return
	}

	file, completed := filestore.For(session).Complete(in.FileID)
	if !completed {
		// Size mismatch or unknown id: no ack, ever (§4.3/§7). The janitor
		// reclaims an Open file that never completes.
		return
	}

	if err := c.writeJSON(fileCompleteAckOut{Type: "file_complete_ack", FileID: file.ID}); err != nil {
		c.closeWithCause(err)
		return
	}

	log.WithField("file", logTag(file.OriginalName)).WithField("session", session.Code).Debug("hub: file complete")

	h.broadcast(session, newFileOut{Type: "new_file", File: file.Meta()}, c.device.ID)
}

func (h *Hub) handleDeleteFile(c *connection, in *deleteFileIn) {
	session, ok := c.currentSession()
	if !ok {
		return
	}
	store := filestore.For(session)
	if _, err := store.Get(in.FileID); err != nil {
		return // unknown id: silently dropped (§7)
	}
	store.Remove(in.FileID)

	h.broadcast(session, fileRemovedOut{Type: "file_removed", FileID: in.FileID}, "")
}

// handleRequestFile streams a completed file back to the requester: one
// file_download_start frame, N binary data frames of at most
// DownloadChunkSize bytes each, then file_download_complete — with nothing
// else from this hub->client direction interleaved (§4.5/§9). An unknown or
// still-Open file id produces no response frames at all (§7, §8 property 4).
func (h *Hub) handleRequestFile(c *connection, in *requestFileIn) {
	session, ok := c.currentSession()
	if !ok {
		return
	}
	file, err := filestore.For(session).Get(in.FileID)
	if err != nil || file.State != models.FileComplete {
		return
	}

	chunkSize := h.cfg.DownloadChunkSize
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}

	err = c.withWriteLock(func() error {
		if err := c.writeJSONLocked(fileDownloadStartOut{
			Type:     "file_download_start",
			FileID:   file.ID,
			FileName: file.OriginalName,
			Size:     file.Size,
			Mimetype: file.Mimetype,
		}); err != nil {
			return err
		}

		body := file.Bytes
		for offset := 0; offset < len(body); offset += chunkSize {
			end := offset + chunkSize
			if end > len(body) {
				end = len(body)
			}
			frame := encodeDataFrame(file.ID, body[offset:end])
			if err := c.writeBinaryLocked(frame); err != nil {
				return err
			}
		}

		return c.writeJSONLocked(fileDownloadCompleteOut{
			Type:   "file_download_complete",
			FileID: file.ID,
		})
	})
	if err != nil {
		c.closeWithCause(err)
	}
}

func sanitizeDeviceName(name string) string {
	if len(name) > maxDeviceNameLen {
		name = name[:maxDeviceNameLen]
	}
	if name == "" {
		name = "device"
	}
	return name
}

// logTag turns a free-form, user-supplied name into a short ascii token safe
// to embed as a structured log field — the stored/served name (File's
// OriginalName, Device's Name) is never altered by this, only what appears
// in log lines.
func logTag(name string) string {
	return slug.Make(name)
}

func sanitizeDeviceType(t string) models.DeviceType {
	switch models.DeviceType(t) {
	case models.DeviceIPhone, models.DeviceAndroid, models.DeviceMac, models.DeviceWindows:
		return models.DeviceType(t)
	default:
		return models.DeviceUnknown
	}
}
