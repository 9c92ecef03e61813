// Package models holds the data types shared across the registry, filestore
// and hub packages: Device, Session and File, per the session + transfer hub
// data model.
package models

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DeviceType is a hint about the platform a device connected from. It has no
// effect on protocol behaviour; it is carried purely for display.
type DeviceType string

const (
	DeviceIPhone  DeviceType = "iphone"
	DeviceAndroid DeviceType = "android"
	DeviceMac     DeviceType = "mac"
	DeviceWindows DeviceType = "windows"
	DeviceUnknown DeviceType = "unknown"
)

// Device is one live connection: a display name, a platform hint, and the
// moment it connected. A Device belongs to at most one Session at a time.
type Device struct {
	ID          string
	Name        string
	Type        DeviceType
	ConnectedAt time.Time
	Conn        *websocket.Conn
}

// Meta returns the metadata view of a device sent over the wire in
// device_joined frames.
func (d *Device) Meta() DeviceMeta {
	return DeviceMeta{
		ID:          d.ID,
		Name:        d.Name,
		Type:        string(d.Type),
		ConnectedAt: d.ConnectedAt,
	}
}

// DeviceMeta is the JSON-facing projection of a Device.
type DeviceMeta struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	ConnectedAt time.Time `json:"connectedAt"`
}

// FileState distinguishes an in-flight upload from a completed one.
type FileState int

const (
	FileOpen FileState = iota
	FileComplete
)

// File is a named byte blob with declared size and MIME type, owned by a
// Session, buffered entirely in memory. While Open it accumulates chunks;
// once Complete the chunk list is discarded and Bytes holds the full body.
type File struct {
	ID           string
	OriginalName string
	Size         int64
	Mimetype     string
	UploadedAt   time.Time
	UploaderID   string

	State        FileState
	chunks       [][]byte
	receivedSize int64
	Bytes        []byte
}

// NewFile constructs an Open File ready to receive chunks.
func NewFile(id, uploaderID, name string, size int64, mime string) *File {
	return &File{
		ID:           id,
		OriginalName: name,
		Size:         size,
		Mimetype:     mime,
		UploadedAt:   time.Now(),
		UploaderID:   uploaderID,
		State:        FileOpen,
	}
}

// Append extends an Open file with a chunk, rejecting it (ok=false) if the
// cumulative size would exceed the declared Size. The caller decides what
// "rejection" means on the wire (spec: drop and log, no abort frame).
func (f *File) Append(chunk []byte) (receivedSize int64, ok bool) {
	if f.State != FileOpen {
		return f.receivedSize, false
	}
	if f.receivedSize+int64(len(chunk)) > f.Size {
		return f.receivedSize, false
	}
	buf := make([]byte, len(chunk))
	copy(buf, chunk)
	f.chunks = append(f.chunks, buf)
	f.receivedSize += int64(len(chunk))
	return f.receivedSize, true
}

// ReceivedSize reports how many bytes have been ingested so far.
func (f *File) ReceivedSize() int64 {
	if f.State == FileComplete {
		return f.Size
	}
	return f.receivedSize
}

// Complete concatenates the accumulated chunks into a single contiguous
// buffer, validating that the total matches the declared size. On mismatch
// the file stays Open — the spec mandates no ack and eventual TTL
// collection, never an error reply.
func (f *File) Complete() bool {
	if f.State == FileComplete {
		return true
	}
	if f.receivedSize != f.Size {
		return false
	}
	buf := make([]byte, 0, f.Size)
	for _, c := range f.chunks {
		buf = append(buf, c...)
	}
	f.Bytes = buf
	f.chunks = nil
	f.State = FileComplete
	return true
}

// Meta returns the metadata-only projection exposed in existing_files and
// new_file frames. File bytes are never part of this view;
// they are only delivered in response to request_file.
func (f *File) Meta() FileMeta {
	return FileMeta{
		ID:           f.ID,
		OriginalName: f.OriginalName,
		Size:         f.Size,
		Mimetype:     f.Mimetype,
		UploadedAt:   f.UploadedAt,
	}
}

// FileMeta is the JSON-facing projection of a File.
type FileMeta struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"originalName"`
	Size         int64     `json:"size"`
	Mimetype     string    `json:"mimetype"`
	UploadedAt   time.Time `json:"uploadedAt"`
}

// Session is an ephemeral group of devices sharing a 6-character code; the
// unit of file visibility. Devices and Files are both keyed by id and kept in
// insertion order so HTTP/JSON listings are stable across calls.
type Session struct {
	Code      string
	CreatedAt time.Time

	mu          sync.Mutex
	deviceOrder []string
	devices     map[string]*Device
	fileOrder   []string
	files       map[string]*File

	emptyAt time.Time // zero value means "not empty"
}

// NewSession constructs an empty session for the given code.
func NewSession(code string) *Session {
	return &Session{
		Code:      code,
		CreatedAt: time.Now(),
		devices:   make(map[string]*Device),
		files:     make(map[string]*File),
	}
}

// Lock/Unlock expose the session's own mutex so callers (registry, hub) can
// serialize joins/leaves/uploads against this one session without taking a
// global lock, per the lock hierarchy: registry lock > session lock >
// connection write lock.
func (s *Session) Lock()   { s.mu.Lock() }
func (s *Session) Unlock() { s.mu.Unlock() }

// AddDeviceLocked inserts a device. Caller must hold the session lock.
func (s *Session) AddDeviceLocked(d *Device) {
	if _, exists := s.devices[d.ID]; exists {
		return
	}
	s.devices[d.ID] = d
	s.deviceOrder = append(s.deviceOrder, d.ID)
	s.emptyAt = time.Time{}
}

// RemoveDeviceLocked removes a device, marking the session empty (emptyAt set
// to now) if it was the last member. Caller must hold the session lock.
func (s *Session) RemoveDeviceLocked(deviceID string) {
	if _, exists := s.devices[deviceID]; !exists {
		return
	}
	delete(s.devices, deviceID)
	for i, id := range s.deviceOrder {
		if id == deviceID {
			s.deviceOrder = append(s.deviceOrder[:i], s.deviceOrder[i+1:]...)
			break
		}
	}
	if len(s.devices) == 0 {
		s.emptyAt = time.Now()
	}
}

// DevicesLocked returns a snapshot slice of member devices in insertion
// order. Caller must hold the session lock; the returned slice is a fresh
// copy of pointers, safe to read after the lock is released.
func (s *Session) DevicesLocked() []*Device {
	out := make([]*Device, 0, len(s.deviceOrder))
	for _, id := range s.deviceOrder {
		out = append(out, s.devices[id])
	}
	return out
}

// DeviceCountLocked reports the current member count. Caller must hold the
// session lock.
func (s *Session) DeviceCountLocked() int {
	return len(s.devices)
}

// EmptySinceLocked reports whether the session is empty and, if so, since
// when. Caller must hold the session lock.
func (s *Session) EmptySinceLocked() (empty bool, since time.Time) {
	return len(s.devices) == 0, s.emptyAt
}

// PutFileLocked inserts or replaces a file record. Caller must hold the
// session lock.
func (s *Session) PutFileLocked(f *File) {
	if _, exists := s.files[f.ID]; !exists {
		s.fileOrder = append(s.fileOrder, f.ID)
	}
	s.files[f.ID] = f
}

// GetFileLocked looks up a file by id. Caller must hold the session lock.
func (s *Session) GetFileLocked(id string) (*File, bool) {
	f, ok := s.files[id]
	return f, ok
}

// RemoveFileLocked deletes a file record. Caller must hold the session lock.
func (s *Session) RemoveFileLocked(id string) {
	if _, exists := s.files[id]; !exists {
		return
	}
	delete(s.files, id)
	for i, fid := range s.fileOrder {
		if fid == id {
			s.fileOrder = append(s.fileOrder[:i], s.fileOrder[i+1:]...)
			break
		}
	}
}

// FilesLocked returns a snapshot slice of files in insertion order. Caller
// must hold the session lock.
func (s *Session) FilesLocked() []*File {
	out := make([]*File, 0, len(s.fileOrder))
	for _, id := range s.fileOrder {
		out = append(out, s.files[id])
	}
	return out
}
