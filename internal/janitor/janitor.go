// Package janitor runs the periodic sweep (C7) that expires stale files and
// stale empty sessions, and the one-shot empty-session check scheduled the
// moment a session becomes empty.
package janitor

import (
	"context"
	"time"

	"github.com/apex/log"

	"github.com/sameergiri/relayhub/internal/models"
	"github.com/sameergiri/relayhub/internal/registry"
)

// Broadcaster is the subset of hub.Hub the janitor needs: fanning out
// file_removed to a session's members. Declared as an interface here so this
// package doesn't import hub (which imports janitor), avoiding a cycle.
type Broadcaster interface {
	BroadcastFileRemoved(session *models.Session, fileID string)
}

// Janitor periodically expires files older than FileTTL and sessions that
// have been empty for at least FileTTL (§4.7). It also reacts to an
// immediate empty-session notification so a session doesn't necessarily wait
// for the next tick to be collected.
type Janitor struct {
	reg      *registry.Registry
	bcast    Broadcaster
	fileTTL  time.Duration
	interval time.Duration
}

// New constructs a Janitor bound to reg and bcast, with the given TTL and
// sweep interval (§4.7: FILE_TTL = 30 min, period = 5 min).
func New(reg *registry.Registry, bcast Broadcaster, fileTTL, interval time.Duration) *Janitor {
	return &Janitor{reg: reg, bcast: bcast, fileTTL: fileTTL, interval: interval}
}

// Run blocks, sweeping every interval until ctx is cancelled.
func (j *Janitor) Run(ctx context.Context) {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			j.sweep()
		}
	}
}

// sweep performs one pass over every live session: drop expired files
// (broadcasting file_removed for each) and drop sessions that have been
// empty for at least FileTTL. Deleting a session twice, or one that no
// longer exists, is harmless (registry.DeleteSession is idempotent).
func (j *Janitor) sweep() {
	now := time.Now()
	for _, session := range j.reg.Sessions() {
		j.expireFiles(session, now)

		session.Lock()
		empty, since := session.EmptySinceLocked()
		session.Unlock()

		if empty && !since.IsZero() && now.Sub(since) >= j.fileTTL {
			j.reg.DeleteSession(session.Code)
		}
	}
}

func (j *Janitor) expireFiles(session *models.Session, now time.Time) {
	session.Lock()
	files := session.FilesLocked()
	var expired []string
	for _, f := range files {
		if now.Sub(f.UploadedAt) > j.fileTTL {
			expired = append(expired, f.ID)
		}
	}
	for _, id := range expired {
		session.RemoveFileLocked(id)
	}
	session.Unlock()

	for _, id := range expired {
		log.WithField("session", session.Code).WithField("file", id).Debug("janitor: file expired")
		j.bcast.BroadcastFileRemoved(session, id)
	}
}

// ScheduleEmptyCheck is the redundant one-shot mechanism of §4.7: fired the
// moment a session transitions to empty, it re-checks after delay (the hub
// passes 5 minutes) and deletes the session if it is still empty. Harmless overlap with the
// periodic sweep since deletion is idempotent.
func ScheduleEmptyCheck(reg *registry.Registry, code string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		session, ok := reg.SessionByCode(code)
		if !ok {
			return
		}
		session.Lock()
		empty, _ := session.EmptySinceLocked()
		session.Unlock()
		if empty {
			reg.DeleteSession(code)
		}
	})
}
