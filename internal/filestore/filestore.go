// Package filestore is the per-session mapping from file id to an
// in-progress-or-complete in-memory file (C3). It wraps a session's File
// collection with the begin/append/complete/get/remove operations §4.3
// names, serialized through the owning session's lock.
package filestore

import (
	"github.com/pkg/errors"

	"github.com/sameergiri/relayhub/internal/ids"
	"github.com/sameergiri/relayhub/internal/models"
)

// ErrFileNotFound is returned by Get/Remove when no such file exists in the
// session.
var ErrFileNotFound = errors.New("file not found")

// Store operates on a single Session's file collection. It holds no state of
// its own beyond a reference to the session — the session's mutex is the
// only lock involved, per the lock hierarchy (§5/§9).
type Store struct {
	session *models.Session
}

// For returns a Store bound to the given session.
func For(session *models.Session) Store {
	return Store{session: session}
}

// Begin allocates an Open file and returns its new id.
func (s Store) Begin(uploaderID, name string, size int64, mime string) string {
	id := ids.NewFileID()
	f := models.NewFile(id, uploaderID, name, size, mime)

	s.session.Lock()
	s.session.PutFileLocked(f)
	s.session.Unlock()

	return id
}

// Append extends an Open file with chunk, returning the new received size,
// the file's declared total size, and whether the chunk was accepted.
// Rejection policy (§4.3): if accepting the chunk would push receivedSize
// past the declared size, the chunk is dropped — the file simply never
// completes and is reclaimed by the janitor. Unknown file ids are also a
// silent no-op (ok=false), per §7 "file-scoped frames referencing unknown
// ids are silently dropped".
func (s Store) Append(fileID string, chunk []byte) (receivedSize int64, total int64, ok bool) {
	s.session.Lock()
	defer s.session.Unlock()

	f, exists := s.session.GetFileLocked(fileID)
	if !exists {
		return 0, 0, false
	}
	received, accepted := f.Append(chunk)
	return received, f.Size, accepted
}

// Complete concatenates an Open file's chunks into its final buffer. It
// returns the file and true on success; on a size mismatch, or an unknown
// id, it returns (nil, false) and the file (if it exists) is left Open for
// the janitor to eventually collect.
func (s Store) Complete(fileID string) (*models.File, bool) {
	s.session.Lock()
	defer s.session.Unlock()

	f, exists := s.session.GetFileLocked(fileID)
	if !exists {
		return nil, false
	}
	if !f.Complete() {
		return nil, false
	}
	return f, true
}

// Get looks up a file by id.
func (s Store) Get(fileID string) (*models.File, error) {
	s.session.Lock()
	defer s.session.Unlock()

	f, exists := s.session.GetFileLocked(fileID)
	if !exists {
		return nil, ErrFileNotFound
	}
	return f, nil
}

// Remove deletes a file record from the session.
func (s Store) Remove(fileID string) {
	s.session.Lock()
	defer s.session.Unlock()
	s.session.RemoveFileLocked(fileID)
}

// List returns metadata for every file currently in the session, in
// insertion order, for existing_files replies.
func (s Store) List() []models.FileMeta {
	s.session.Lock()
	files := s.session.FilesLocked()
	s.session.Unlock()

	out := make([]models.FileMeta, 0, len(files))
	for _, f := range files {
		out = append(out, f.Meta())
	}
	return out
}
