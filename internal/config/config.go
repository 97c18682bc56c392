// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Durations are expressed in seconds (float) or milliseconds (int) to keep
//   env overrides readable, and converted with the helper methods below.
// - External errors are wrapped with this package's sentinel errors.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Session modes.
const (
	ModeSingle = "single"
	ModeMulti  = "multi"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address for the trigger source, e.g. ":9080".
	Addr string `koanf:"addr"`

	// SectorCount is the number of sequential sectors on the course.
	SectorCount int `koanf:"sector_count"`

	// DebounceSeconds is the minimum gap between two accepted sector events of one rider.
	DebounceSeconds float64 `koanf:"debounce_seconds"`

	// PaceThresholdSeconds is the dead band used to call a split "similar".
	PaceThresholdSeconds float64 `koanf:"pace_threshold_seconds"`

	// Mode is "single" (one rider on course) or "multi" (identity-addressed sessions).
	Mode string `koanf:"mode"`

	// Hybrid makes identity triggers stage a rider until the next advance trigger.
	Hybrid bool `koanf:"hybrid"`

	// StagingMaxAgeSeconds bounds how long a staged identity stays usable.
	StagingMaxAgeSeconds float64 `koanf:"staging_max_age_seconds"`

	// AbandonAfterSeconds closes idle sessions as partial runs; 0 disables.
	AbandonAfterSeconds float64 `koanf:"abandon_after_seconds"`

	// CourseLengthMeters enables the AvgSpeed leaderboard column when positive.
	CourseLengthMeters float64 `koanf:"course_length_meters"`

	// EventQueueSize bounds the in-memory trigger queue.
	EventQueueSize int `koanf:"queue_size"`

	// StatusIntervalMS is the status snapshot publish period.
	StatusIntervalMS int `koanf:"status_interval_ms"`

	// StatusPath is where the JSON status snapshot is written.
	StatusPath string `koanf:"status_path"`

	// LeaderboardPath is the CSV leaderboard file.
	LeaderboardPath string `koanf:"leaderboard_path"`

	// Riders maps tag UIDs to display names.
	Riders map[string]string `koanf:"riders"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:             "info",
		LogFormat:            "text",
		Addr:                 ":9080",
		SectorCount:          3,
		DebounceSeconds:      0.5,
		PaceThresholdSeconds: 1.0,
		Mode:                 ModeSingle,
		Hybrid:               false,
		StagingMaxAgeSeconds: 10,
		AbandonAfterSeconds:  0,
		CourseLengthMeters:   0,
		EventQueueSize:       1024,
		StatusIntervalMS:     1000,
		StatusPath:           "timing_status.json",
		LeaderboardPath:      "leaderboard.csv",
		Riders:               map[string]string{},
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.SectorCount < 1:
		return fmt.Errorf("%w: sector_count must be at least 1", ErrInvalidConfig)
	case c.DebounceSeconds < 0:
		return fmt.Errorf("%w: debounce_seconds must not be negative", ErrInvalidConfig)
	case c.PaceThresholdSeconds < 0:
		return fmt.Errorf("%w: pace_threshold_seconds must not be negative", ErrInvalidConfig)
	case c.Mode != ModeSingle && c.Mode != ModeMulti:
		return fmt.Errorf("%w: mode must be %q or %q", ErrInvalidConfig, ModeSingle, ModeMulti)
	case c.StagingMaxAgeSeconds <= 0:
		return fmt.Errorf("%w: staging_max_age_seconds must be positive", ErrInvalidConfig)
	case c.AbandonAfterSeconds < 0:
		return fmt.Errorf("%w: abandon_after_seconds must not be negative", ErrInvalidConfig)
	case c.StatusIntervalMS <= 0:
		return fmt.Errorf("%w: status_interval_ms must be positive", ErrInvalidConfig)
	case strings.TrimSpace(c.StatusPath) == "":
		return fmt.Errorf("%w: status_path must not be empty", ErrInvalidConfig)
	case strings.TrimSpace(c.LeaderboardPath) == "":
		return fmt.Errorf("%w: leaderboard_path must not be empty", ErrInvalidConfig)
	}
	return nil
}

// Debounce returns DebounceSeconds as a duration.
func (c *Config) Debounce() time.Duration { return seconds(c.DebounceSeconds) }

// PaceThreshold returns PaceThresholdSeconds as a duration.
func (c *Config) PaceThreshold() time.Duration { return seconds(c.PaceThresholdSeconds) }

// StagingMaxAge returns StagingMaxAgeSeconds as a duration.
func (c *Config) StagingMaxAge() time.Duration { return seconds(c.StagingMaxAgeSeconds) }

// AbandonAfter returns AbandonAfterSeconds as a duration.
func (c *Config) AbandonAfter() time.Duration { return seconds(c.AbandonAfterSeconds) }

// StatusInterval returns StatusIntervalMS as a duration.
func (c *Config) StatusInterval() time.Duration {
	return time.Duration(c.StatusIntervalMS) * time.Millisecond
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
