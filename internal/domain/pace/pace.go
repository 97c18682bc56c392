// Package pace compares a rider's fresh split or total against their most
// recent leaderboard run.
package pace

import (
	"context"
	"time"

	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/pkg/logger"
)

const defaultThreshold = time.Second

// HistoryReader looks up a rider's most recent finished run.
type HistoryReader interface {
	MostRecentFor(ctx context.Context, name string) (model.Record, bool, error)
}

// Comparator classifies times with a symmetric dead band around history.
// It holds no state besides its configuration.
type Comparator struct {
	history   HistoryReader
	threshold time.Duration
	sectors   int
	logger    logger.Logger
}

// Option applies a configuration option to the Comparator.
type Option func(*Comparator)

// WithThreshold sets the dead band; |delta| <= threshold is "similar".
func WithThreshold(d time.Duration) Option {
	return func(c *Comparator) {
		if d >= 0 {
			c.threshold = d
		}
	}
}

// WithSectorCount makes CompareTotal ignore history rows that cover fewer
// than n sectors. Zero compares against any row.
func WithSectorCount(n int) Option {
	return func(c *Comparator) {
		if n >= 0 {
			c.sectors = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(c *Comparator) {
		if l != nil {
			c.logger = l
		}
	}
}

// New creates a comparator reading history from h.
func New(h HistoryReader, opts ...Option) *Comparator {
	c := &Comparator{
		history:   h,
		threshold: defaultThreshold,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("pace")
	}
	return c
}

// Threshold returns the configured dead band.
func (c *Comparator) Threshold() time.Duration { return c.threshold }

// CompareSector compares split against the same zero-based sector of the
// rider's most recent run.
func (c *Comparator) CompareSector(ctx context.Context, name string, sector int, split time.Duration) model.Verdict {
	rec, ok := c.lookup(ctx, name)
	if !ok {
		return model.VerdictNoHistory
	}
	prev, ok := rec.Sector(sector)
	if !ok {
		return model.VerdictNoHistory
	}
	return Classify(split-prev, c.threshold)
}

// CompareTotal compares total against the rider's most recent run total.
// An abandoned run is not a usable total when a sector count is configured.
func (c *Comparator) CompareTotal(ctx context.Context, name string, total time.Duration) model.Verdict {
	rec, ok := c.lookup(ctx, name)
	if !ok || (c.sectors > 0 && !rec.Complete(c.sectors)) {
		return model.VerdictNoHistory
	}
	return Classify(total-rec.Total, c.threshold)
}

func (c *Comparator) lookup(ctx context.Context, name string) (model.Record, bool) {
	if c.history == nil {
		return model.Record{}, false
	}
	rec, ok, err := c.history.MostRecentFor(ctx, name)
	if err != nil {
		c.logger.Warn(ctx, "history lookup failed; treating as no history",
			logger.String("rider", name),
			logger.Error(err),
		)
		return model.Record{}, false
	}
	return rec, ok
}

// Classify maps a delta (new minus historical) onto a verdict.
func Classify(delta, threshold time.Duration) model.Verdict {
	switch {
	case delta < -threshold:
		return model.VerdictFaster
	case delta > threshold:
		return model.VerdictSlower
	default:
		return model.VerdictSimilar
	}
}
