// Package config loads the hub's environment-driven configuration. Only
// PORT is required by the spec; everything else is an optional override of a
// spec-mandated default, never a new required setting (§6).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/subosito/gotenv"
)

// Config is the fully-resolved set of tunables for one hub process.
type Config struct {
	Port int

	// DownloadChunkSize is the fixed size the hub uses for outbound download
	// frames (§4.5 "Chunk sizing"). Not configurable by spec — named here so
	// it has one home instead of being a magic number scattered across hub
	// code.
	DownloadChunkSize int

	// MaxFrameSize is the WebSocket-layer per-frame cap (§4.3 "100 MiB").
	MaxFrameSize int64

	// FileTTL is FILE_TTL from §3/§4.7: the maximum age of a buffered file or
	// idle empty session.
	FileTTL time.Duration

	// JanitorInterval is the period of the background sweep (§4.7, 5 min).
	JanitorInterval time.Duration

	// DatabaseURL, if set, backs the stats/feedback persistence with
	// Postgres via lib/pq (§6 "Persisted state"). Empty means the JSON-file
	// fallback is used instead.
	DatabaseURL string
}

const (
	defaultPort              = 3000
	defaultDownloadChunkSize = 64 * 1024
	defaultMaxFrameSize      = 100 << 20
	defaultFileTTL           = 30 * time.Minute
	defaultJanitorInterval   = 5 * time.Minute
)

// Load resolves Config from the environment, loading a local .env file first
// (if present — silently ignored otherwise, matching gotenv's own semantics)
// the way materials-commons-hydra's DotenvConfig does.
func Load() Config {
	if err := gotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("config: .env present but could not be loaded")
	}

	return Config{
		Port:              getIntWithDefault("PORT", defaultPort),
		DownloadChunkSize: defaultDownloadChunkSize,
		MaxFrameSize:      defaultMaxFrameSize,
		FileTTL:           getDurationWithDefault("FILE_TTL", defaultFileTTL),
		JanitorInterval:   getDurationWithDefault("JANITOR_INTERVAL", defaultJanitorInterval),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
	}
}

func getIntWithDefault(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.WithField("key", key).WithField("value", v).Warn("config: not an int, using default")
		return fallback
	}
	return n
}

func getDurationWithDefault(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.WithField("key", key).WithField("value", v).Warn("config: not a duration, using default")
		return fallback
	}
	return d
}
