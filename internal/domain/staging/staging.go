// Package staging holds the identity scanned in hybrid mode until the next
// advance trigger claims it.
package staging

import (
	"sync"
	"time"

	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/internal/domain/session"
)

const defaultMaxAge = 10 * time.Second

// Stager keeps at most one staged identity. A newer scan replaces an older one.
type Stager struct {
	mu       sync.Mutex
	staged   session.Identity
	stagedAt time.Time
	has      bool
	maxAge   time.Duration
}

// Option applies a configuration option to the Stager.
type Option func(*Stager)

// WithMaxAge sets how long a staged identity stays claimable.
func WithMaxAge(d time.Duration) Option {
	return func(s *Stager) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// New creates an empty Stager.
func New(opts ...Option) *Stager {
	s := &Stager{maxAge: defaultMaxAge}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// MaxAge returns the configured expiry window.
func (s *Stager) MaxAge() time.Duration { return s.maxAge }

// Stage records id as scanned at the given time.
func (s *Stager) Stage(id session.Identity, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged = id
	s.stagedAt = at
	s.has = true
}

// Take consumes the staged identity. It reports no_identity when nothing is
// staged and staged_expired when the scan is older than the max age. An
// expired identity is discarded.
func (s *Stager) Take(now time.Time) (session.Identity, model.Outcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.has {
		return session.Identity{}, model.OutcomeNoIdentity, false
	}
	id, age := s.staged, now.Sub(s.stagedAt)
	s.staged, s.has = session.Identity{}, false
	if age > s.maxAge {
		return session.Identity{}, model.OutcomeStagedExpired, false
	}
	return id, model.OutcomeCreated, true
}

// Staged reports whether an identity is waiting.
func (s *Stager) Staged() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.has
}
