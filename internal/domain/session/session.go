// Package session holds the in-memory timing state for riders on course.
//
// All Session values are owned by a Registry. Callers only ever see copies
// (model.SessionView, Result), never a live *Session.
package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/okian/sectorclock/internal/domain/model"
)

type state int

const (
	stateActive    state = iota // on course, accepting splits
	stateFinishing              // completed or abandoned, persist in flight
	statePending                // persist failed, waiting for a retry
)

func (s state) String() string {
	switch s {
	case stateActive:
		return "active"
	case stateFinishing:
		return "finishing"
	case statePending:
		return "pending"
	default:
		return "unknown"
	}
}

// Session is one rider's current run.
type Session struct {
	RunID       string
	RiderID     string
	DisplayName string
	StartedAt   time.Time
	LastEventAt time.Time
	Splits      []time.Duration

	// firstSeen and lastSeen are arrival times on the service clock. Source
	// timestamps may be skewed against it, so idle and elapsed use these.
	firstSeen time.Time
	lastSeen  time.Time

	state     state
	abandoned bool
}

func newSession(riderID, name string, at, seen time.Time) *Session {
	if name == "" {
		name = riderID
	}
	return &Session{
		RunID:       uuid.NewString(),
		RiderID:     riderID,
		DisplayName: name,
		StartedAt:   at,
		LastEventAt: at,
		firstSeen:   seen,
		lastSeen:    seen,
	}
}

// Completed reports whether every one of the n sectors has a split.
func (s *Session) Completed(n int) bool {
	return len(s.Splits) >= n
}

// Total is the sum of the recorded splits.
func (s *Session) Total() time.Duration {
	var total time.Duration
	for _, d := range s.Splits {
		total += d
	}
	return total
}

// advance appends the split ending at `at`. The first split runs from the
// start; later ones from the previous accepted event.
func (s *Session) advance(at, seen time.Time) time.Duration {
	from := s.LastEventAt
	if len(s.Splits) == 0 {
		from = s.StartedAt
	}
	split := at.Sub(from)
	s.Splits = append(s.Splits, split)
	s.LastEventAt = at
	s.lastSeen = seen
	return split
}

func (s *Session) record() model.Record {
	sectors := make([]time.Duration, len(s.Splits))
	copy(sectors, s.Splits)
	return model.Record{
		Name:    s.DisplayName,
		Total:   s.Total(),
		Sectors: sectors,
	}
}

func (s *Session) view(now time.Time, sectors int) model.SessionView {
	splits := make([]time.Duration, len(s.Splits))
	copy(splits, s.Splits)
	current := len(s.Splits) + 1
	if current > sectors {
		current = sectors
	}
	elapsed := now.Sub(s.firstSeen)
	if elapsed < 0 {
		elapsed = 0
	}
	return model.SessionView{
		RunID:         s.RunID,
		RiderID:       s.RiderID,
		Name:          s.DisplayName,
		CurrentSector: current,
		TotalSectors:  sectors,
		StartedAt:     s.StartedAt,
		Elapsed:       elapsed,
		Splits:        splits,
	}
}
