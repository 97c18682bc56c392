package status

import (
	"context"
	"time"

	"github.com/okian/sectorclock/pkg/logger"
)

// Option applies a configuration option to the Publisher.
type Option func(*Publisher)

// WithInterval sets the publish period.
func WithInterval(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.interval = d
		}
	}
}

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Publisher) {
		if now != nil {
			p.now = now
		}
	}
}

// WithBeforePublish runs fn on the publisher goroutine before each tick's
// snapshot. Registry housekeeping hangs off this.
func WithBeforePublish(fn func(ctx context.Context, now time.Time)) Option {
	return func(p *Publisher) {
		p.before = fn
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Publisher) {
		if l != nil {
			p.logger = l
		}
	}
}
