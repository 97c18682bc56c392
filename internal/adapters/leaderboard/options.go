package leaderboard

import "github.com/okian/sectorclock/pkg/logger"

// Option applies a configuration option to the CSVStore.
type Option func(*CSVStore)

// WithSectorCount sets how many sector columns rows carry.
func WithSectorCount(n int) Option {
	return func(s *CSVStore) {
		if n > 0 {
			s.sectors = n
		}
	}
}

// WithCourseLength enables the AvgSpeed column, computed from the course
// length in meters and the run total.
func WithCourseLength(meters float64) Option {
	return func(s *CSVStore) {
		if meters > 0 {
			s.courseLength = meters
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *CSVStore) {
		if l != nil {
			s.logger = l
		}
	}
}
