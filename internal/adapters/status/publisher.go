// Package status periodically writes the live timing snapshot to disk.
//
// The file is replaced wholesale on every tick with a write-then-rename so a
// reader sees either the previous snapshot or the new one, never a mix.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/pkg/logger"
	"github.com/okian/sectorclock/pkg/metrics"
)

const defaultInterval = time.Second

// SnapshotSource provides the sessions to publish.
type SnapshotSource interface {
	Snapshot(now time.Time) []model.SessionView
}

// Document is the on-disk snapshot format.
type Document struct {
	Timestamp time.Time     `json:"timestamp"`
	Sessions  []SessionJSON `json:"sessions"`
}

// SessionJSON is one active session. Durations are seconds.
type SessionJSON struct {
	RunID         string    `json:"run_id"`
	Identity      string    `json:"identity"`
	Name          string    `json:"name"`
	CurrentSector int       `json:"current_sector"`
	TotalSectors  int       `json:"total_sectors"`
	Elapsed       float64   `json:"elapsed"`
	Splits        []float64 `json:"splits"`
}

// Publisher writes snapshots on a fixed interval.
type Publisher struct {
	source   SnapshotSource
	path     string
	interval time.Duration
	now      func() time.Time
	before   func(ctx context.Context, now time.Time)
	logger   logger.Logger
}

// New creates a publisher writing source's snapshot to path.
func New(source SnapshotSource, path string, opts ...Option) *Publisher {
	p := &Publisher{
		source:   source,
		path:     path,
		interval: defaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = logger.Get().Named("status")
	}
	return p
}

// Path returns the snapshot file path.
func (p *Publisher) Path() string { return p.path }

// Run publishes once immediately and then on every tick until ctx is done.
// Failures are logged and counted; they never stop the loop.
func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			p.logger.Info(ctx, "status publisher stopped")
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Publisher) tick(ctx context.Context) {
	now := p.now()
	if p.before != nil {
		p.before(ctx, now)
	}
	if err := p.Publish(ctx, now); err != nil {
		p.logger.Error(ctx, "failed to publish status snapshot",
			logger.String("path", p.path),
			logger.Error(err),
		)
	}
}

// Publish writes one snapshot taken at now.
func (p *Publisher) Publish(_ context.Context, now time.Time) error {
	start := time.Now()

	data, err := json.MarshalIndent(Build(now, p.source.Snapshot(now)), "", "  ")
	if err != nil {
		metrics.RecordSnapshotError()
		return fmt.Errorf("%w: encode: %w", ErrWrite, err)
	}
	if err := writeFileAtomic(p.path, data); err != nil {
		metrics.RecordSnapshotError()
		metrics.RecordErrorByComponent("status", "write")
		return fmt.Errorf("%w: %w", ErrWrite, err)
	}

	metrics.RecordSnapshotPublished(now, time.Since(start))
	return nil
}

// Build converts session views into the snapshot document.
func Build(now time.Time, views []model.SessionView) Document {
	doc := Document{
		Timestamp: now.UTC(),
		Sessions:  make([]SessionJSON, 0, len(views)),
	}
	for _, v := range views {
		splits := make([]float64, len(v.Splits))
		for i, s := range v.Splits {
			splits[i] = seconds(s)
		}
		doc.Sessions = append(doc.Sessions, SessionJSON{
			RunID:         v.RunID,
			Identity:      v.RiderID,
			Name:          v.Name,
			CurrentSector: v.CurrentSector,
			TotalSectors:  v.TotalSectors,
			Elapsed:       seconds(v.Elapsed),
			Splits:        splits,
		})
	}
	return doc
}

// seconds rounds to milliseconds.
func seconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}

// writeFileAtomic writes data to a temp file next to path, syncs it and
// renames it over path.
func writeFileAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp: %w", err)
	}
	if err = os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
