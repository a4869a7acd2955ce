// Package config defines the engine configuration and its loader.
//
// Conventions:
// - New() returns a Config with defaults; Load layers file and env on top.
// - Validation failures wrap ErrInvalidConfig, loading failures ErrLoadConfig.
package config

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Catalog backends.
const (
	BackendFiles  = "files"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address of serve mode, e.g. ":9080".
	Addr string `koanf:"addr"`

	// CatalogBackend selects the store: files, sqlite or memory.
	CatalogBackend string `koanf:"catalog_backend"`

	// EventsDir is the Markdown catalog directory new records are written to.
	EventsDir string `koanf:"events_dir"`

	// ReadDirs are additional catalog directories (published, archived) that
	// are read but never written.
	ReadDirs []string `koanf:"read_dirs"`

	// SQLitePath is the database file of the sqlite backend.
	SQLitePath string `koanf:"sqlite_path"`

	// LookaheadDays is the length of the expansion window, today included.
	LookaheadDays int `koanf:"lookahead_days"`

	// MaxOccurrences caps the dates generated for one template per run.
	MaxOccurrences int `koanf:"max_occurrences"`

	// MatchThreshold is the minimum similarity for joining a cluster.
	MatchThreshold float64 `koanf:"match_threshold"`

	// CompareAllMembers scores candidates against every cluster member
	// instead of the canonical record only.
	CompareAllMembers bool `koanf:"compare_all_members"`

	// Candidates is a staging file deduplicated on every scheduled run in
	// serve mode. Empty disables the scheduled dedupe job.
	Candidates string `koanf:"candidates"`

	// PublishMerged writes merged records to the catalog after a scheduled
	// dedupe run.
	PublishMerged bool `koanf:"publish_merged"`

	// ReviewOutput is where the dedupe command writes the review queue.
	ReviewOutput string `koanf:"review_output"`

	// ICSOutput is where export-ics writes the calendar.
	ICSOutput string `koanf:"ics_output"`

	// Schedule is the cron spec for batch runs in serve mode.
	Schedule string `koanf:"schedule"`

	// Timezone is the IANA zone used for "today" and calendar times.
	Timezone string `koanf:"timezone"`

	// VenueAliases maps location spellings to a canonical venue name.
	VenueAliases map[string]string `koanf:"venue_aliases"`
}

// New creates a Config with defaults.
func New() *Config {
	return &Config{
		LogLevel:       "info",
		LogFormat:      "text",
		Addr:           ":9080",
		CatalogBackend: BackendFiles,
		EventsDir:      "_events",
		SQLitePath:     "eventengine.db",
		LookaheadDays:  90,
		MaxOccurrences: 1000,
		MatchThreshold: 0.8,
		ReviewOutput:   "review.json",
		ICSOutput:      "events.ics",
		Schedule:       "0 3 * * *",
		Timezone:       "Europe/Berlin",
		VenueAliases:   map[string]string{},
	}
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log_format %q (want text or json)", ErrInvalidConfig, c.LogFormat)
	}
	switch c.CatalogBackend {
	case BackendFiles:
		if strings.TrimSpace(c.EventsDir) == "" {
			return fmt.Errorf("%w: events_dir must not be empty", ErrInvalidConfig)
		}
	case BackendSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("%w: catalog_backend %q (want files, sqlite or memory)", ErrInvalidConfig, c.CatalogBackend)
	}
	if c.LookaheadDays < 1 {
		return fmt.Errorf("%w: lookahead_days must be >= 1, got %d", ErrInvalidConfig, c.LookaheadDays)
	}
	if c.MaxOccurrences < 1 {
		return fmt.Errorf("%w: max_occurrences must be >= 1, got %d", ErrInvalidConfig, c.MaxOccurrences)
	}
	if c.MatchThreshold <= 0 || c.MatchThreshold > 1 {
		return fmt.Errorf("%w: match_threshold must be in (0, 1], got %g", ErrInvalidConfig, c.MatchThreshold)
	}
	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", ErrInvalidConfig, c.Schedule, err)
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return nil
}

// Location returns the configured zone, or UTC when it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
