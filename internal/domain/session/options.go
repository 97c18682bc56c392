package session

import (
	"time"

	"github.com/okian/sectorclock/pkg/logger"
)

// Mode selects how triggers without an identity are routed.
type Mode int

const (
	// ModeSingle allows one rider on course; an anonymous trigger advances it.
	ModeSingle Mode = iota
	// ModeMulti keys every trigger by identity.
	ModeMulti
)

func (m Mode) String() string {
	if m == ModeMulti {
		return "multi"
	}
	return "single"
}

// ParseMode maps a config value onto a Mode. Anything but "multi" is single.
func ParseMode(s string) Mode {
	if s == "multi" {
		return ModeMulti
	}
	return ModeSingle
}

// Option applies a configuration option to the Registry.
type Option func(*Registry)

// WithSectorCount sets the number of sectors per run.
func WithSectorCount(n int) Option {
	return func(r *Registry) {
		if n > 0 {
			r.sectors = n
		}
	}
}

// WithDebounce sets the minimum gap between accepted events of one rider.
func WithDebounce(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.debounce = d
		}
	}
}

// WithMode sets single or multi session mode.
func WithMode(m Mode) Option {
	return func(r *Registry) {
		r.mode = m
	}
}

// WithStore sets where finished runs are persisted.
func WithStore(s Store) Option {
	return func(r *Registry) {
		if s != nil {
			r.store = s
		}
	}
}

// WithComparator sets the pace comparator.
func WithComparator(c Comparator) Option {
	return func(r *Registry) {
		if c != nil {
			r.comparator = c
		}
	}
}

// WithIndicator sets the device verdicts are shown on.
func WithIndicator(i Indicator) Option {
	return func(r *Registry) {
		if i != nil {
			r.indicator = i
		}
	}
}

// WithAbandonAfter closes sessions idle for longer than d as partial runs.
// Zero disables abandonment.
func WithAbandonAfter(d time.Duration) Option {
	return func(r *Registry) {
		if d >= 0 {
			r.abandonAfter = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.logger = l
		}
	}
}
