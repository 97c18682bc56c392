// Package dispatch turns normalized triggers into registry operations.
package dispatch

import (
	"context"

	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/internal/domain/session"
	"github.com/okian/sectorclock/internal/domain/staging"
	"github.com/okian/sectorclock/pkg/logger"
	"github.com/okian/sectorclock/pkg/metrics"
)

// Registry is the part of session.Registry the dispatcher drives.
type Registry interface {
	BeginOrAdvance(ctx context.Context, req session.Request) session.Result
}

// Dispatcher is the single entry point for triggers. It is called from one
// goroutine at a time.
type Dispatcher struct {
	registry Registry
	hybrid   bool
	stager   *staging.Stager
	roster   map[string]string
	logger   logger.Logger
}

// Option applies a configuration option to the Dispatcher.
type Option func(*Dispatcher)

// WithHybrid makes identity triggers stage a rider for the next advance.
func WithHybrid(on bool) Option {
	return func(d *Dispatcher) {
		d.hybrid = on
	}
}

// WithStager sets the staging slot used in hybrid mode.
func WithStager(s *staging.Stager) Option {
	return func(d *Dispatcher) {
		if s != nil {
			d.stager = s
		}
	}
}

// WithRoster maps rider ids (tag UIDs) to display names.
func WithRoster(roster map[string]string) Option {
	return func(d *Dispatcher) {
		d.roster = make(map[string]string, len(roster))
		for k, v := range roster {
			d.roster[k] = v
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a dispatcher in front of reg.
func New(reg Registry, opts ...Option) *Dispatcher {
	d := &Dispatcher{registry: reg}
	for _, opt := range opts {
		opt(d)
	}
	if d.stager == nil {
		d.stager = staging.New()
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("dispatch")
	}
	return d
}

// Dispatch applies one trigger and reports what it did.
func (d *Dispatcher) Dispatch(ctx context.Context, trig model.Trigger) session.Result {
	name := d.resolveName(trig.RiderID, trig.DisplayName)

	var res session.Result
	switch {
	case trig.Kind == model.KindIdentity && trig.RiderID == "":
		res = session.Result{Outcome: model.OutcomeNoIdentity}
	case trig.Kind == model.KindIdentity && d.hybrid:
		d.stager.Stage(session.Identity{RiderID: trig.RiderID, DisplayName: name}, trig.At)
		res = session.Result{Outcome: model.OutcomeStaged, RiderID: trig.RiderID, Name: name}
	case trig.Kind == model.KindIdentity:
		res = d.registry.BeginOrAdvance(ctx, session.Request{
			RiderID:     trig.RiderID,
			DisplayName: name,
			At:          trig.At,
			ReceivedAt:  trig.ReceivedAt,
		})
	default:
		req := session.Request{RiderID: trig.RiderID, DisplayName: name, At: trig.At, ReceivedAt: trig.ReceivedAt}
		if d.hybrid {
			req.Resolve = d.stager.Take
		}
		res = d.registry.BeginOrAdvance(ctx, req)
	}

	// The registry counts what it handles; staging and rejections here are ours.
	if res.Outcome == model.OutcomeStaged || (trig.Kind == model.KindIdentity && trig.RiderID == "") {
		metrics.RecordTrigger(res.Outcome.String())
	}
	d.log(ctx, trig, res)
	return res
}

// resolveName picks the trigger's name, then the roster, then the id.
func (d *Dispatcher) resolveName(id, name string) string {
	if name != "" {
		return name
	}
	if n, ok := d.roster[id]; ok && n != "" {
		return n
	}
	return id
}

func (d *Dispatcher) log(ctx context.Context, trig model.Trigger, res session.Result) {
	fields := []logger.Field{
		logger.String("kind", trig.Kind.String()),
		logger.String("outcome", res.Outcome.String()),
		logger.String("rider", res.RiderID),
	}
	switch res.Outcome {
	case model.OutcomeAdvanced, model.OutcomeCompleted:
		fields = append(fields,
			logger.Int("sector", res.Sector),
			logger.Duration("split", res.Split),
			logger.String("verdict", res.Verdict.String()),
		)
		if res.Outcome == model.OutcomeCompleted {
			fields = append(fields,
				logger.Duration("total", res.Total),
				logger.String("run_verdict", res.RunVerdict.String()),
			)
		}
		d.logger.Info(ctx, "sector recorded", fields...)
	case model.OutcomePersistFailed:
		d.logger.Warn(ctx, "run finished but not persisted", append(fields, logger.Error(res.Err))...)
	case model.OutcomeCreated, model.OutcomeStaged:
		d.logger.Info(ctx, "trigger accepted", fields...)
	default:
		d.logger.Debug(ctx, "trigger rejected", fields...)
	}
}
