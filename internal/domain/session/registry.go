package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/pkg/logger"
	"github.com/okian/sectorclock/pkg/metrics"
)

const (
	defaultSectors  = 3
	defaultDebounce = 500 * time.Millisecond
)

// Store persists finished runs.
type Store interface {
	Append(ctx context.Context, rec model.Record) error
}

// Comparator produces pace verdicts against history.
type Comparator interface {
	CompareSector(ctx context.Context, name string, sector int, split time.Duration) model.Verdict
	CompareTotal(ctx context.Context, name string, total time.Duration) model.Verdict
}

// Indicator shows verdicts to the rider.
type Indicator interface {
	Show(ctx context.Context, scope model.Scope, verdict model.Verdict)
}

// Identity is a rider resolved from somewhere other than the trigger itself.
type Identity struct {
	RiderID     string
	DisplayName string
}

// Resolver supplies an identity for a trigger that carries none. When ok is
// false, outcome says why (no_identity or staged_expired).
type Resolver func(now time.Time) (id Identity, outcome model.Outcome, ok bool)

// Request is one normalized trigger.
type Request struct {
	RiderID     string
	DisplayName string
	At          time.Time
	// ReceivedAt is the arrival time on the service clock. Zero means At.
	ReceivedAt time.Time
	// Resolve is called under the registry lock, at most once, and only when
	// the registry needs an identity the request does not carry.
	Resolve Resolver
}

func (req Request) arrival() time.Time {
	if req.ReceivedAt.IsZero() {
		return req.At
	}
	return req.ReceivedAt
}

// Result describes what a trigger did.
type Result struct {
	Outcome model.Outcome
	RunID   string
	RiderID string
	Name    string
	// Sector is the 1-based sector just finished; zero when no split was taken.
	Sector     int
	Split      time.Duration
	Total      time.Duration
	Verdict    model.Verdict // sector verdict
	RunVerdict model.Verdict // set on completion
	Err        error         // persist error for persist_failed
}

// Registry owns every active session.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	sectors      int
	debounce     time.Duration
	mode         Mode
	abandonAfter time.Duration

	store      Store
	comparator Comparator
	indicator  Indicator
	logger     logger.Logger
}

// New creates a registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		sessions:   make(map[string]*Session),
		sectors:    defaultSectors,
		debounce:   defaultDebounce,
		mode:       ModeSingle,
		store:      noStore{},
		comparator: noComparator{},
		indicator:  noIndicator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logger.Get().Named("registry")
	}
	return r
}

// SectorCount returns the configured number of sectors.
func (r *Registry) SectorCount() int { return r.sectors }

// Mode returns the configured session mode.
func (r *Registry) Mode() Mode { return r.mode }

type followUp int

const (
	followNone followUp = iota
	followSplit
	followComplete
)

// BeginOrAdvance applies one trigger. It never returns an error: rejections
// and failed persists are reported through Result.Outcome.
func (r *Registry) BeginOrAdvance(ctx context.Context, req Request) Result {
	r.mu.Lock()
	res, next, rec := r.decideLocked(ctx, req)
	active, pending := r.countsLocked()
	r.mu.Unlock()

	metrics.UpdateActiveSessions(active)
	metrics.UpdatePendingPersists(pending)

	if next >= followSplit {
		metrics.RecordSplit(res.Split)
		res.Verdict = r.comparator.CompareSector(ctx, res.Name, res.Sector-1, res.Split)
		r.indicator.Show(ctx, model.ScopeSector, res.Verdict)
	}
	if next == followComplete {
		// Compare before appending so the run is judged against the previous one.
		res.RunVerdict = r.comparator.CompareTotal(ctx, res.Name, res.Total)
		if err := r.persist(ctx, res.RiderID, res.RunID, rec); err != nil {
			res.Outcome = model.OutcomePersistFailed
			res.Err = err
		} else {
			metrics.RecordRunCompleted(res.Total)
		}
		r.indicator.Show(ctx, model.ScopeRun, res.RunVerdict)
	}

	metrics.RecordTrigger(res.Outcome.String())
	r.logger.Debug(ctx, "trigger applied",
		logger.String("outcome", res.Outcome.String()),
		logger.String("rider", res.RiderID),
		logger.Int("sector", res.Sector),
		logger.Duration("split", res.Split),
	)
	return res
}

func (r *Registry) decideLocked(ctx context.Context, req Request) (Result, followUp, model.Record) {
	id, name := req.RiderID, req.DisplayName

	if id == "" && r.mode == ModeSingle {
		if s := r.onlyActiveLocked(); s != nil {
			id = s.RiderID
		}
	}
	if id == "" {
		if req.Resolve == nil {
			return r.unaddressedLocked(), followNone, model.Record{}
		}
		ident, outcome, ok := req.Resolve(req.At)
		if !ok || ident.RiderID == "" {
			if ok || outcome == model.OutcomeNoIdentity {
				return r.unaddressedLocked(), followNone, model.Record{}
			}
			return Result{Outcome: outcome}, followNone, model.Record{}
		}
		id, name = ident.RiderID, ident.DisplayName
	}

	s, exists := r.sessions[id]
	if !exists {
		if r.mode == ModeSingle {
			if a := r.onlyActiveLocked(); a != nil {
				return Result{Outcome: model.OutcomeBusy, RunID: a.RunID, RiderID: a.RiderID, Name: a.DisplayName},
					followNone, model.Record{}
			}
		}
		s = newSession(id, name, req.At, req.arrival())
		r.sessions[id] = s
		r.logger.Info(ctx, "session started",
			logger.String("rider", s.RiderID),
			logger.String("name", s.DisplayName),
			logger.String("run_id", s.RunID),
		)
		return r.resultLocked(s, model.OutcomeCreated), followNone, model.Record{}
	}

	if s.state != stateActive {
		return r.resultLocked(s, model.OutcomeAlreadyFinished), followNone, model.Record{}
	}
	if req.At.Sub(s.LastEventAt) < r.debounce {
		return r.resultLocked(s, model.OutcomeDebounced), followNone, model.Record{}
	}

	split := s.advance(req.At, req.arrival())
	res := r.resultLocked(s, model.OutcomeAdvanced)
	res.Sector = len(s.Splits)
	res.Split = split
	if !s.Completed(r.sectors) {
		return res, followSplit, model.Record{}
	}

	s.state = stateFinishing
	res.Outcome = model.OutcomeCompleted
	res.Total = s.Total()
	return res, followComplete, s.record()
}

func (r *Registry) resultLocked(s *Session, outcome model.Outcome) Result {
	return Result{
		Outcome: outcome,
		RunID:   s.RunID,
		RiderID: s.RiderID,
		Name:    s.DisplayName,
	}
}

// unaddressedLocked answers a trigger that names no rider and has no active
// session to fall to. In single mode a lone completed run still waiting on
// its persist is what the trigger addresses, so it is already finished.
func (r *Registry) unaddressedLocked() Result {
	if r.mode == ModeSingle && len(r.sessions) == 1 {
		for _, s := range r.sessions {
			if s.state != stateActive {
				return r.resultLocked(s, model.OutcomeAlreadyFinished)
			}
		}
	}
	return Result{Outcome: model.OutcomeNoIdentity}
}

// onlyActiveLocked returns the session on course in single mode, if any.
func (r *Registry) onlyActiveLocked() *Session {
	for _, s := range r.sessions {
		if s.state == stateActive {
			return s
		}
	}
	return nil
}

func (r *Registry) countsLocked() (active, pending int) {
	for _, s := range r.sessions {
		if s.state == stateActive {
			active++
		} else {
			pending++
		}
	}
	return active, pending
}

// persist makes one append attempt for a session pinned as finishing, then
// removes it on success or parks it as pending on failure.
func (r *Registry) persist(ctx context.Context, riderID, runID string, rec model.Record) error {
	err := r.store.Append(ctx, rec)

	r.mu.Lock()
	if s, ok := r.sessions[riderID]; ok && s.RunID == runID {
		if err == nil {
			delete(r.sessions, riderID)
		} else {
			s.state = statePending
		}
	}
	_, pending := r.countsLocked()
	r.mu.Unlock()
	metrics.UpdatePendingPersists(pending)

	if err != nil {
		metrics.RecordErrorByComponent("registry", "persist")
		r.logger.Error(ctx, "failed to persist run; will retry",
			logger.String("rider", riderID),
			logger.String("run_id", runID),
			logger.Error(err),
		)
		return err
	}
	r.logger.Info(ctx, "run persisted",
		logger.String("rider", riderID),
		logger.String("run_id", runID),
		logger.Duration("total", rec.Total),
		logger.Int("sectors", len(rec.Sectors)),
	)
	return nil
}

type housekeepJob struct {
	riderID   string
	runID     string
	rec       model.Record
	abandoned bool
}

// Housekeep retries pending persists and abandons sessions idle for longer
// than the abandon window. It returns the number of runs persisted.
func (r *Registry) Housekeep(ctx context.Context, now time.Time) int {
	var jobs []housekeepJob

	r.mu.Lock()
	for id, s := range r.sessions {
		switch s.state {
		case statePending:
			s.state = stateFinishing
			jobs = append(jobs, housekeepJob{riderID: id, runID: s.RunID, rec: s.record(), abandoned: s.abandoned})
		case stateActive:
			if r.abandonAfter <= 0 || now.Sub(s.lastSeen) <= r.abandonAfter {
				continue
			}
			if len(s.Splits) == 0 {
				// Nothing was timed; there is no row to write.
				delete(r.sessions, id)
				r.logger.Info(ctx, "idle session dropped", logger.String("rider", id))
				continue
			}
			s.state = stateFinishing
			s.abandoned = true
			jobs = append(jobs, housekeepJob{riderID: id, runID: s.RunID, rec: s.record(), abandoned: true})
		}
	}
	active, _ := r.countsLocked()
	r.mu.Unlock()
	metrics.UpdateActiveSessions(active)

	persisted := 0
	for _, j := range jobs {
		if ctx.Err() != nil {
			r.requeue(j)
			continue
		}
		if err := r.persist(ctx, j.riderID, j.runID, j.rec); err != nil {
			continue
		}
		persisted++
		if j.abandoned {
			metrics.RecordRunAbandoned()
		} else {
			metrics.RecordRunCompleted(j.rec.Total)
		}
	}
	return persisted
}

// requeue returns a job that was not attempted to the pending state.
func (r *Registry) requeue(j housekeepJob) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[j.riderID]; ok && s.RunID == j.runID {
		s.state = statePending
	}
}

// Snapshot returns a copy of every session still on course, oldest first.
// Finishing and pending sessions are complete and are not shown.
func (r *Registry) Snapshot(now time.Time) []model.SessionView {
	r.mu.RLock()
	views := make([]model.SessionView, 0, len(r.sessions))
	for _, s := range r.sessions {
		if s.state != stateActive {
			continue
		}
		views = append(views, s.view(now, r.sectors))
	}
	r.mu.RUnlock()

	sort.Slice(views, func(i, j int) bool {
		if views[i].StartedAt.Equal(views[j].StartedAt) {
			return views[i].RiderID < views[j].RiderID
		}
		return views[i].StartedAt.Before(views[j].StartedAt)
	})
	return views
}

// Active returns the number of sessions on course.
func (r *Registry) Active() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	active, _ := r.countsLocked()
	return active
}

// Pending returns the number of finished runs waiting to be persisted.
func (r *Registry) Pending() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, pending := r.countsLocked()
	return pending
}

type noStore struct{}

func (noStore) Append(context.Context, model.Record) error { return ErrNoStore }

type noComparator struct{}

func (noComparator) CompareSector(context.Context, string, int, time.Duration) model.Verdict {
	return model.VerdictNoHistory
}

func (noComparator) CompareTotal(context.Context, string, time.Duration) model.Verdict {
	return model.VerdictNoHistory
}

type noIndicator struct{}

func (noIndicator) Show(context.Context, model.Scope, model.Verdict) {}
