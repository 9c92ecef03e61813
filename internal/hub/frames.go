// Package hub implements the connection state machine (C4), the transfer
// protocol (C5), and the broadcaster (C6). This file defines the wire
// shapes: textual JSON control frames and the 36-byte-prefixed binary data
// frame format (§4.5/§6).
package hub

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/sameergiri/relayhub/internal/models"
)

// FileIDFieldLen is the fixed width of the ASCII file-id prefix on every
// binary data frame. This is a wire-format commitment (§9): never change it,
// and never pad with anything but ASCII spaces (0x20).
const FileIDFieldLen = 36

var errEnvelopeUnknownType = errors.New("unknown control frame type")

// envelope is used only to peek at the discriminator before decoding the
// full, type-specific payload — the same two-pass technique as a registry of
// decode targets keyed by tag.
type envelope struct {
	Type string `json:"type"`
}

// ---- control frames: client -> hub ----

type createSessionIn struct {
	DeviceName string `json:"deviceName"`
	DeviceType string `json:"deviceType"`
}

type joinSessionIn struct {
	SessionCode string `json:"sessionCode"`
	DeviceName  string `json:"deviceName"`
	DeviceType  string `json:"deviceType"`
}

type fileStartIn struct {
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

type fileCompleteIn struct {
	FileID string `json:"fileId"`
}

type requestFileIn struct {
	FileID string `json:"fileId"`
}

type deleteFileIn struct {
	FileID string `json:"fileId"`
}

type pingIn struct{}

// inboundCtors is the registry of decode targets keyed by the frame's `type`
// tag, mirroring the msgRegistry-and-Envelope technique of decoding a tagged
// variant from a shape-validated envelope.
var inboundCtors = map[string]func() any{
	"create_session": func() any { return &createSessionIn{} },
	"join_session":   func() any { return &joinSessionIn{} },
	"file_start":     func() any { return &fileStartIn{} },
	"file_complete":  func() any { return &fileCompleteIn{} },
	"request_file":   func() any { return &requestFileIn{} },
	"delete_file":    func() any { return &deleteFileIn{} },
	"ping":           func() any { return &pingIn{} },
}

// decodeControlFrame inspects the type tag and unmarshals into the matching
// struct. A malformed JSON body or an unrecognized type is reported as an
// error — the caller logs and ignores it (§7 "Malformed frame").
func decodeControlFrame(data []byte) (string, any, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, errors.Wrap(err, "decode envelope")
	}
	if env.Type == "" {
		return "", nil, errors.New("missing type field")
	}
	ctor, ok := inboundCtors[env.Type]
	if !ok {
		return env.Type, nil, errEnvelopeUnknownType
	}
	v := ctor()
	if err := json.Unmarshal(data, v); err != nil {
		return env.Type, nil, errors.Wrapf(err, "decode %s payload", env.Type)
	}
	return env.Type, v, nil
}

// ---- control frames: hub -> client ----

type sessionCreatedOut struct {
	Type             string `json:"type"`
	SessionCode      string `json:"sessionCode"`
	DeviceID         string `json:"deviceId"`
	ConnectedDevices int    `json:"connectedDevices"`
}

type sessionJoinedOut struct {
	Type             string `json:"type"`
	SessionCode      string `json:"sessionCode"`
	DeviceID         string `json:"deviceId"`
	ConnectedDevices int    `json:"connectedDevices"`
}

type sessionErrorOut struct {
	Type  string `json:"type"`
	Error string `json:"error"`
}

type deviceJoinedOut struct {
	Type        string            `json:"type"`
	Device      models.DeviceMeta `json:"device"`
	TotalDevices int              `json:"totalDevices"`
}

type deviceLeftOut struct {
	Type         string `json:"type"`
	DeviceID     string `json:"deviceId"`
	TotalDevices int    `json:"totalDevices"`
}

type existingFilesOut struct {
	Type  string            `json:"type"`
	Files []models.FileMeta `json:"files"`
}

type newFileOut struct {
	Type string          `json:"type"`
	File models.FileMeta `json:"file"`
}

type fileRemovedOut struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
}

type fileStartAckOut struct {
	Type     string `json:"type"`
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
}

type uploadProgressOut struct {
	Type     string `json:"type"`
	FileID   string `json:"fileId"`
	Progress int    `json:"progress"`
	Received int64  `json:"received"`
	Total    int64  `json:"total"`
}

type fileCompleteAckOut struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
}

type fileDownloadStartOut struct {
	Type     string `json:"type"`
	FileID   string `json:"fileId"`
	FileName string `json:"fileName"`
	Size     int64  `json:"size"`
	Mimetype string `json:"mimetype"`
}

type fileDownloadCompleteOut struct {
	Type   string `json:"type"`
	FileID string `json:"fileId"`
}

type pongOut struct {
	Type string    `json:"type"`
	Time time.Time `json:"time"`
}

// ---- binary data frame framing ----

// encodeDataFrame builds a binary frame: 36 ASCII bytes of fileID (right
// padded with spaces), followed by payload verbatim.
func encodeDataFrame(fileID string, payload []byte) []byte {
	out := make([]byte, FileIDFieldLen+len(payload))
	copy(out, padFileID(fileID))
	copy(out[FileIDFieldLen:], payload)
	return out
}

// decodeDataFrame splits a binary frame into its file id (trailing spaces
// stripped) and the remaining raw bytes. Frames shorter than the fixed
// prefix width are rejected — the sender MUST emit exactly 36 bytes of id.
func decodeDataFrame(raw []byte) (fileID string, payload []byte, ok bool) {
	if len(raw) < FileIDFieldLen {
		return "", nil, false
	}
	fileID = strings.TrimRight(string(raw[:FileIDFieldLen]), " ")
	return fileID, raw[FileIDFieldLen:], true
}

func padFileID(id string) []byte {
	b := make([]byte, FileIDFieldLen)
	for i := range b {
		b[i] = ' '
	}
	copy(b, id)
	return b
}
