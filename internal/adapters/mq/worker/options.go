package worker

import (
	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/internal/domain/session"
	"github.com/okian/sectorclock/pkg/logger"
)

// Option applies a configuration option to the Loop.
type Option func(*Loop)

// WithName sets the loop name used in logs.
func WithName(name string) Option {
	return func(l *Loop) {
		if name != "" {
			l.name = name
		}
	}
}

// WithLogger sets a custom logger for the loop.
func WithLogger(lg logger.Logger) Option {
	return func(l *Loop) {
		if lg != nil {
			l.logger = lg
		}
	}
}

// WithResultHook registers a callback run after every dispatched trigger.
func WithResultHook(fn func(model.Trigger, session.Result)) Option {
	return func(l *Loop) {
		l.onResult = fn
	}
}
