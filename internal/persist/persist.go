// Package persist is the optional stats/feedback collaborator of §6/§7: a
// totalUsers/totalSessions counter updated on session create/join, and an
// append-only feedback log. Neither is required for the hub's correctness —
// a Store always works, falling back to a local JSON file when no
// DATABASE_URL is configured.
package persist

import (
	"database/sql"
	"encoding/json"
	"os"
	"sync"

	_ "github.com/lib/pq"
	"github.com/pkg/errors"
)

// ErrInvalidRating is returned by RecordFeedback when rating falls outside
// [1, 5] (§6 "400 on out-of-range rating").
var ErrInvalidRating = errors.New("rating must be between 1 and 5")

// Stats is the JSON-facing shape of GET /api/stats.
type Stats struct {
	TotalUsers    int `json:"totalUsers"`
	TotalSessions int `json:"totalSessions"`
}

// Store is the interface both backends satisfy, so the HTTP facade (C8)
// never needs to know which one is live.
type Store interface {
	RecordSessionCreated() error
	RecordDeviceJoined() error
	Stats() (Stats, error)
	RecordFeedback(rating int, feedback string) error
	Close() error
}

// Open returns a Postgres-backed Store when databaseURL is non-empty,
// otherwise a JSON-file-backed Store rooted at dataDir (§7 "two optional
// JSON files"). Both satisfy Store identically from the caller's
// perspective.
func Open(databaseURL, dataDir string) (Store, error) {
	if databaseURL == "" {
		return newFileStore(dataDir)
	}
	return newPostgresStore(databaseURL)
}

// postgresStore persists stats and feedback in Postgres via lib/pq, the same
// migrate-then-query pattern the teacher's internal/storage uses, repurposed
// from auth/session/history tables to a stats row and a feedback log.
type postgresStore struct {
	db *sql.DB
}

func newPostgresStore(connStr string) (*postgresStore, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, errors.Wrap(err, "persist: open db")
	}
	if err := db.Ping(); err != nil {
		return nil, errors.Wrap(err, "persist: ping db")
	}

	s := &postgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, errors.Wrap(err, "persist: migrate")
	}
	return s, nil
}

func (s *postgresStore) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS stats (
			id             SMALLINT PRIMARY KEY DEFAULT 1,
			total_users    BIGINT NOT NULL DEFAULT 0,
			total_sessions BIGINT NOT NULL DEFAULT 0,
			CHECK (id = 1)
		);
		INSERT INTO stats (id) VALUES (1) ON CONFLICT (id) DO NOTHING;

		CREATE TABLE IF NOT EXISTS feedback (
			id         SERIAL PRIMARY KEY,
			rating     SMALLINT NOT NULL,
			comment    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

func (s *postgresStore) RecordSessionCreated() error {
	_, err := s.db.Exec(`UPDATE stats SET total_sessions = total_sessions + 1, total_users = total_users + 1 WHERE id = 1`)
	return errors.Wrap(err, "persist: record session created")
}

func (s *postgresStore) RecordDeviceJoined() error {
	_, err := s.db.Exec(`UPDATE stats SET total_users = total_users + 1 WHERE id = 1`)
	return errors.Wrap(err, "persist: record device joined")
}

func (s *postgresStore) Stats() (Stats, error) {
	var out Stats
	err := s.db.QueryRow(`SELECT total_users, total_sessions FROM stats WHERE id = 1`).
		Scan(&out.TotalUsers, &out.TotalSessions)
	return out, errors.Wrap(err, "persist: read stats")
}

func (s *postgresStore) RecordFeedback(rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}
	_, err := s.db.Exec(`INSERT INTO feedback (rating, comment) VALUES ($1, $2)`, rating, feedback)
	return errors.Wrap(err, "persist: record feedback")
}

func (s *postgresStore) Close() error { return s.db.Close() }

// fileStore is the default, dependency-free collaborator: two JSON files
// under dataDir, guarded by a single mutex. Adequate for the LAN single-process
// deployment this hub targets (§6: no clustering, no Non-goals violated).
type fileStore struct {
	mu           sync.Mutex
	statsPath    string
	feedbackPath string
}

type feedbackEntry struct {
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

func newFileStore(dataDir string) (*fileStore, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, errors.Wrap(err, "persist: create data dir")
	}
	fs := &fileStore{
		statsPath:    dataDir + "/stats.json",
		feedbackPath: dataDir + "/feedback.json",
	}
	if _, err := os.Stat(fs.statsPath); os.IsNotExist(err) {
		if err := fs.writeStats(Stats{}); err != nil {
			return nil, err
		}
	}
	return fs, nil
}

func (fs *fileStore) readStats() (Stats, error) {
	var out Stats
	data, err := os.ReadFile(fs.statsPath)
	if os.IsNotExist(err) {
		return Stats{}, nil
	}
	if err != nil {
		return Stats{}, errors.Wrap(err, "persist: read stats file")
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return Stats{}, errors.Wrap(err, "persist: decode stats file")
	}
	return out, nil
}

func (fs *fileStore) writeStats(s Stats) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return errors.Wrap(err, "persist: encode stats file")
	}
	return errors.Wrap(os.WriteFile(fs.statsPath, data, 0o644), "persist: write stats file")
}

func (fs *fileStore) RecordSessionCreated() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s, err := fs.readStats()
	if err != nil {
		return err
	}
	s.TotalSessions++
	s.TotalUsers++
	return fs.writeStats(s)
}

func (fs *fileStore) RecordDeviceJoined() error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	s, err := fs.readStats()
	if err != nil {
		return err
	}
	s.TotalUsers++
	return fs.writeStats(s)
}

func (fs *fileStore) Stats() (Stats, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.readStats()
}

func (fs *fileStore) RecordFeedback(rating int, feedback string) error {
	if rating < 1 || rating > 5 {
		return ErrInvalidRating
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	var entries []feedbackEntry
	if data, err := os.ReadFile(fs.feedbackPath); err == nil {
		_ = json.Unmarshal(data, &entries)
	} else if !os.IsNotExist(err) {
		return errors.Wrap(err, "persist: read feedback file")
	}

	entries = append(entries, feedbackEntry{Rating: rating, Feedback: feedback})

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return errors.Wrap(err, "persist: encode feedback file")
	}
	return errors.Wrap(os.WriteFile(fs.feedbackPath, data, 0o644), "persist: write feedback file")
}

func (fs *fileStore) Close() error { return nil }
