// Package feedback drives the rider-facing pace indicator.
package feedback

import (
	"context"
	"sync"

	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/pkg/logger"
	"github.com/okian/sectorclock/pkg/metrics"
)

// Indicator shows a pace verdict. Implementations must not block for long;
// they are called on the dispatcher goroutine.
type Indicator interface {
	Show(ctx context.Context, scope model.Scope, verdict model.Verdict)
}

// Nop is used when no indicator device is attached.
type Nop struct{}

// Show does nothing.
func (Nop) Show(context.Context, model.Scope, model.Verdict) {}

// LogIndicator logs and counts verdicts. It stands in for the light when the
// device runs headless.
type LogIndicator struct {
	logger logger.Logger
}

// NewLogIndicator creates a LogIndicator.
func NewLogIndicator(l logger.Logger) *LogIndicator {
	if l == nil {
		l = logger.Get().Named("indicator")
	}
	return &LogIndicator{logger: l}
}

// Show logs the verdict.
func (i *LogIndicator) Show(ctx context.Context, scope model.Scope, verdict model.Verdict) {
	metrics.RecordVerdict(string(scope), verdict.String())
	i.logger.Info(ctx, "pace",
		logger.String("scope", string(scope)),
		logger.String("verdict", verdict.String()),
	)
}

// Shown is one verdict captured by a Recorder.
type Shown struct {
	Scope   model.Scope
	Verdict model.Verdict
}

// Recorder keeps every verdict it is shown. Safe for concurrent use.
type Recorder struct {
	mu    sync.Mutex
	shown []Shown
}

// Show records the verdict.
func (r *Recorder) Show(_ context.Context, scope model.Scope, verdict model.Verdict) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.shown = append(r.shown, Shown{Scope: scope, Verdict: verdict})
}

// Shown returns a copy of everything recorded so far.
func (r *Recorder) Shown() []Shown {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Shown, len(r.shown))
	copy(out, r.shown)
	return out
}
