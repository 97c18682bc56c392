// Package service wires the timing engine together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/sectorclock/internal/adapters/feedback"
	"github.com/okian/sectorclock/internal/adapters/leaderboard"
	eventqueue "github.com/okian/sectorclock/internal/adapters/mq/queue"
	"github.com/okian/sectorclock/internal/adapters/mq/worker"
	"github.com/okian/sectorclock/internal/adapters/status"
	"github.com/okian/sectorclock/internal/config"
	"github.com/okian/sectorclock/internal/domain/dispatch"
	"github.com/okian/sectorclock/internal/domain/laptime"
	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/internal/domain/pace"
	"github.com/okian/sectorclock/internal/domain/session"
	"github.com/okian/sectorclock/internal/domain/staging"
	"github.com/okian/sectorclock/pkg/logger"
)

// Service owns every long-lived component: the registry, the leaderboard
// store, the trigger queue, the dispatcher loop and the status publisher.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      *leaderboard.CSVStore
	registry   *session.Registry
	stager     *staging.Stager
	dispatcher *dispatch.Dispatcher
	queue      *eventqueue.InMemoryQueue
	loop       *worker.Loop
	publisher  *status.Publisher
	indicator  feedback.Indicator

	// Configuration
	sectorCount     int
	debounce        time.Duration
	paceThreshold   time.Duration
	mode            session.Mode
	hybrid          bool
	stagingMaxAge   time.Duration
	abandonAfter    time.Duration
	courseLength    float64
	queueSize       int
	statusInterval  time.Duration
	statusPath      string
	leaderboardPath string
	roster          map[string]string

	// State
	started       bool
	cancel        context.CancelFunc
	publisherDone chan struct{}
	outcomes      map[string]int
	last          *session.Result

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithSectorCount sets the number of sectors per run.
func WithSectorCount(n int) Option {
	return func(s *Service) {
		if n > 0 {
			s.sectorCount = n
		}
	}
}

// WithDebounce sets the per-rider semantic debounce window.
func WithDebounce(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.debounce = d
		}
	}
}

// WithPaceThreshold sets the comparator dead band.
func WithPaceThreshold(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.paceThreshold = d
		}
	}
}

// WithMode selects single or multi session mode.
func WithMode(m session.Mode) Option {
	return func(s *Service) {
		s.mode = m
	}
}

// WithHybrid enables identity staging.
func WithHybrid(on bool) Option {
	return func(s *Service) {
		s.hybrid = on
	}
}

// WithStagingMaxAge bounds how long a staged identity is usable.
func WithStagingMaxAge(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.stagingMaxAge = d
		}
	}
}

// WithAbandonAfter closes idle sessions as partial runs. Zero disables it.
func WithAbandonAfter(d time.Duration) Option {
	return func(s *Service) {
		if d >= 0 {
			s.abandonAfter = d
		}
	}
}

// WithCourseLength enables the AvgSpeed leaderboard column.
func WithCourseLength(meters float64) Option {
	return func(s *Service) {
		if meters >= 0 {
			s.courseLength = meters
		}
	}
}

// WithQueueSize sets the maximum size of the trigger queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithStatusInterval sets the snapshot publish period.
func WithStatusInterval(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.statusInterval = d
		}
	}
}

// WithStatusPath sets where the JSON snapshot is written.
func WithStatusPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.statusPath = path
		}
	}
}

// WithLeaderboardPath sets the CSV leaderboard file.
func WithLeaderboardPath(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.leaderboardPath = path
		}
	}
}

// WithRoster maps tag UIDs to display names.
func WithRoster(roster map[string]string) Option {
	return func(s *Service) {
		s.roster = roster
	}
}

// WithIndicator sets the pace indicator device.
func WithIndicator(i feedback.Indicator) Option {
	return func(s *Service) {
		if i != nil {
			s.indicator = i
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// FromConfig applies every timing setting in cfg.
func FromConfig(cfg *config.Config) Option {
	return func(s *Service) {
		for _, opt := range []Option{
			WithSectorCount(cfg.SectorCount),
			WithDebounce(cfg.Debounce()),
			WithPaceThreshold(cfg.PaceThreshold()),
			WithMode(session.ParseMode(cfg.Mode)),
			WithHybrid(cfg.Hybrid),
			WithStagingMaxAge(cfg.StagingMaxAge()),
			WithAbandonAfter(cfg.AbandonAfter()),
			WithCourseLength(cfg.CourseLengthMeters),
			WithQueueSize(cfg.EventQueueSize),
			WithStatusInterval(cfg.StatusInterval()),
			WithStatusPath(cfg.StatusPath),
			WithLeaderboardPath(cfg.LeaderboardPath),
			WithRoster(cfg.Riders),
		} {
			opt(s)
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		sectorCount:     3,
		debounce:        500 * time.Millisecond,
		paceThreshold:   time.Second,
		mode:            session.ModeSingle,
		stagingMaxAge:   10 * time.Second,
		queueSize:       1024,
		statusInterval:  time.Second,
		statusPath:      "timing_status.json",
		leaderboardPath: "leaderboard.csv",
		outcomes:        make(map[string]int),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start builds the components and launches the dispatcher loop and the
// status publisher. The loops outlive ctx; Stop ends them in order.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}
	if s.indicator == nil {
		s.indicator = feedback.NewLogIndicator(nil)
	}

	s.store = leaderboard.NewCSVStore(s.leaderboardPath,
		leaderboard.WithSectorCount(s.sectorCount),
		leaderboard.WithCourseLength(s.courseLength),
	)
	comparator := pace.New(s.store,
		pace.WithThreshold(s.paceThreshold),
		pace.WithSectorCount(s.sectorCount),
	)
	s.registry = session.New(
		session.WithSectorCount(s.sectorCount),
		session.WithDebounce(s.debounce),
		session.WithMode(s.mode),
		session.WithAbandonAfter(s.abandonAfter),
		session.WithStore(s.store),
		session.WithComparator(comparator),
		session.WithIndicator(s.indicator),
	)
	s.stager = staging.New(staging.WithMaxAge(s.stagingMaxAge))
	s.dispatcher = dispatch.New(s.registry,
		dispatch.WithHybrid(s.hybrid),
		dispatch.WithStager(s.stager),
		dispatch.WithRoster(s.roster),
	)
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.queueSize))
	s.loop = worker.New(s.queue, s.dispatcher, worker.WithResultHook(s.recordResult))
	s.publisher = status.New(s.registry, s.statusPath,
		status.WithInterval(s.statusInterval),
		status.WithBeforePublish(func(ctx context.Context, now time.Time) {
			s.registry.Housekeep(ctx, now)
		}),
	)

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.publisherDone = make(chan struct{})
	go s.loop.Run(runCtx)
	go func(done chan struct{}) {
		defer close(done)
		s.publisher.Run(runCtx)
	}(s.publisherDone)

	s.started = true
	s.logger.Info(ctx, "timing service started",
		logger.Int("sectors", s.sectorCount),
		logger.Duration("debounce", s.debounce),
		logger.String("mode", s.mode.String()),
		logger.Bool("hybrid", s.hybrid),
		logger.String("leaderboard", s.store.Path()),
		logger.String("status", s.publisher.Path()),
	)
	return nil
}

// Stop closes the queue, lets the dispatcher finish what is queued, stops
// the publisher and makes a last attempt at any pending persists.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	s.logger.Info(ctx, "stopping timing service...")
	_ = s.queue.Close()

	var firstErr error
	if err := s.loop.Wait(ctx); err != nil {
		firstErr = err
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
		_ = s.loop.Shutdown(shutdownCtx)
		cancel()
	}

	s.cancel()
	select {
	case <-s.publisherDone:
	case <-ctx.Done():
		if firstErr == nil {
			firstErr = fmt.Errorf("publisher stop: %w", ctx.Err())
		}
	}

	now := time.Now()
	s.registry.Housekeep(context.WithoutCancel(ctx), now)
	if err := s.publisher.Publish(ctx, now); err != nil {
		s.logger.Warn(ctx, "final status publish failed", logger.Error(err))
	}
	if pending := s.registry.Pending(); pending > 0 {
		s.logger.Error(ctx, "finished runs could not be persisted before exit",
			logger.Int("pending", pending),
		)
	}

	s.logger.Info(ctx, "timing service stopped")
	return firstErr
}

func (s *Service) recordResult(_ model.Trigger, res session.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[res.Outcome.String()]++
	r := res
	s.last = &r
}

// Enqueue submits a trigger for the dispatcher loop. A trigger without an
// arrival time is stamped with the current time.
func (s *Service) Enqueue(ctx context.Context, t model.Trigger) error {
	s.mu.RLock()
	q := s.queue
	s.mu.RUnlock()
	if q == nil {
		return eventqueue.ErrClosed
	}
	if t.ReceivedAt.IsZero() {
		t.ReceivedAt = time.Now()
	}
	return q.Enqueue(ctx, t)
}

// All returns every leaderboard row.
func (s *Service) All(ctx context.Context) ([]model.Record, error) {
	return s.leaderboardStore().All(ctx)
}

// MostRecentFor returns the rider's last leaderboard row.
func (s *Service) MostRecentFor(ctx context.Context, name string) (model.Record, bool, error) {
	return s.leaderboardStore().MostRecentFor(ctx, name)
}

// SectorCount returns the configured number of sectors.
func (s *Service) SectorCount() int { return s.sectorCount }

func (s *Service) leaderboardStore() *leaderboard.CSVStore {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.store != nil {
		return s.store
	}
	return leaderboard.NewCSVStore(s.leaderboardPath,
		leaderboard.WithSectorCount(s.sectorCount),
		leaderboard.WithCourseLength(s.courseLength),
	)
}

// LastResult returns the outcome of the most recently dispatched trigger.
func (s *Service) LastResult() (session.Result, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return session.Result{}, false
	}
	return *s.last, true
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	outcomes := make(map[string]int, len(s.outcomes))
	for k, v := range s.outcomes {
		outcomes[k] = v
	}
	stats := map[string]interface{}{
		"started":     s.started,
		"sectorCount": s.sectorCount,
		"mode":        s.mode.String(),
		"hybrid":      s.hybrid,
		"queueSize":   s.queueSize,
		"outcomes":    outcomes,
	}

	if s.registry != nil {
		stats["activeSessions"] = s.registry.Active()
		stats["pendingPersists"] = s.registry.Pending()
		stats["staged"] = s.stager.Staged()
		stats["queueLength"] = s.queue.Len()
		stats["queueCapacity"] = s.queue.Capacity()
	}
	if s.last != nil {
		last := map[string]interface{}{
			"outcome": s.last.Outcome.String(),
			"rider":   s.last.RiderID,
		}
		if s.last.Sector > 0 {
			last["sector"] = s.last.Sector
			last["split"] = laptime.Format(s.last.Split)
			last["verdict"] = s.last.Verdict.String()
		}
		if s.last.Outcome == model.OutcomeCompleted {
			last["total"] = laptime.Format(s.last.Total)
			last["runVerdict"] = s.last.RunVerdict.String()
		}
		stats["last"] = last
	}

	return stats
}
