// Package leaderboard persists finished runs to an append-only CSV file and
// answers history lookups for the pace comparator.
package leaderboard

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/okian/sectorclock/internal/domain/laptime"
	"github.com/okian/sectorclock/internal/domain/model"
	"github.com/okian/sectorclock/pkg/logger"
	"github.com/okian/sectorclock/pkg/metrics"
)

const (
	defaultSectorCount = 3
	fileMode           = 0o644
	metersPerSecToKmh  = 3.6
)

// Store provides append and lookup access to finished runs.
type Store interface {
	// Append durably adds one record. Existing rows are never rewritten.
	Append(ctx context.Context, rec model.Record) error

	// MostRecentFor returns the last row written for name, by file position.
	// The bool is false when the rider has no rows.
	MostRecentFor(ctx context.Context, name string) (model.Record, bool, error)

	// All returns every well-formed row in file order.
	All(ctx context.Context) ([]model.Record, error)
}

// CSVStore implements Store on a comma-separated UTF-8 file with a header row:
//
//	Name,TotalTime,Sector1..SectorN[,AvgSpeed]
type CSVStore struct {
	mu           sync.RWMutex
	path         string
	sectors      int
	courseLength float64 // meters; zero disables AvgSpeed
	logger       logger.Logger
}

// NewCSVStore creates a store backed by path. The file is created lazily on
// the first Append.
func NewCSVStore(path string, opts ...Option) *CSVStore {
	s := &CSVStore{
		path:    path,
		sectors: defaultSectorCount,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("leaderboard")
	}
	return s
}

// Path returns the backing file path.
func (s *CSVStore) Path() string { return s.path }

// SectorCount returns the number of sector columns.
func (s *CSVStore) SectorCount() int { return s.sectors }

// Append writes rec, preceded by the header when the file is new or empty.
func (s *CSVStore) Append(ctx context.Context, rec model.Record) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrAppend, err)
	}
	if strings.TrimSpace(rec.Name) == "" {
		return fmt.Errorf("%w: empty rider name", ErrAppend)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendLocked(rec); err != nil {
		metrics.RecordLeaderboardError()
		metrics.RecordErrorByComponent("leaderboard", "append")
		return err
	}
	metrics.RecordLeaderboardAppend()
	return nil
}

func (s *CSVStore) appendLocked(rec model.Record) (err error) {
	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("%w: open %s: %w", ErrAppend, s.path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("%w: close %s: %w", ErrAppend, s.path, cerr)
		}
	}()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("%w: stat %s: %w", ErrAppend, s.path, err)
	}

	w := csv.NewWriter(f)
	if info.Size() == 0 {
		if err := w.Write(s.header()); err != nil {
			return fmt.Errorf("%w: header: %w", ErrAppend, err)
		}
	}
	if err := w.Write(s.row(rec)); err != nil {
		return fmt.Errorf("%w: row: %w", ErrAppend, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("%w: flush: %w", ErrAppend, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %w", ErrAppend, err)
	}
	return nil
}

// MostRecentFor scans the whole file; the last matching row wins.
func (s *CSVStore) MostRecentFor(ctx context.Context, name string) (model.Record, bool, error) {
	name = strings.TrimSpace(name)
	var (
		last  model.Record
		found bool
	)
	err := s.scan(ctx, func(rec model.Record) {
		if rec.Name == name {
			last = rec
			found = true
		}
	})
	if err != nil {
		return model.Record{}, false, err
	}
	return last, found, nil
}

// All returns every well-formed row in file order.
func (s *CSVStore) All(ctx context.Context) ([]model.Record, error) {
	var out []model.Record
	if err := s.scan(ctx, func(rec model.Record) { out = append(out, rec) }); err != nil {
		return nil, err
	}
	return out, nil
}

// scan feeds each well-formed row to fn. Malformed rows are skipped.
func (s *CSVStore) scan(ctx context.Context, fn func(model.Record)) error {
	start := time.Now()
	defer func() {
		metrics.RecordLeaderboardScanLatency(float64(time.Since(start).Microseconds()) / 1000)
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()

	f, err := os.Open(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		metrics.RecordLeaderboardError()
		return fmt.Errorf("%w: open %s: %w", ErrRead, s.path, err)
	}
	defer func() { _ = f.Close() }()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	for row := 0; ; row++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		cells, err := r.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			var perr *csv.ParseError
			if errors.As(err, &perr) {
				s.skip(ctx, row, err)
				continue
			}
			metrics.RecordLeaderboardError()
			return fmt.Errorf("%w: %s: %w", ErrRead, s.path, err)
		}

		rec, err := s.parseRow(cells)
		if err != nil {
			if row == 0 && isHeader(cells) {
				continue
			}
			s.skip(ctx, row, err)
			continue
		}
		fn(rec)
	}
}

func (s *CSVStore) skip(ctx context.Context, row int, err error) {
	metrics.RecordLeaderboardRowSkipped()
	s.logger.Debug(ctx, "skipping malformed leaderboard row",
		logger.String("path", s.path),
		logger.Int("row", row+1),
		logger.Error(err),
	)
}

func (s *CSVStore) header() []string {
	h := make([]string, 0, s.sectors+3)
	h = append(h, "Name", "TotalTime")
	for i := 1; i <= s.sectors; i++ {
		h = append(h, "Sector"+strconv.Itoa(i))
	}
	if s.courseLength > 0 {
		h = append(h, "AvgSpeed")
	}
	return h
}

func (s *CSVStore) row(rec model.Record) []string {
	row := make([]string, 0, s.sectors+3)
	row = append(row, rec.Name, laptime.Format(rec.Total))
	for i := 0; i < s.sectors; i++ {
		if d, ok := rec.Sector(i); ok {
			row = append(row, laptime.Format(d))
		} else {
			row = append(row, "")
		}
	}
	if s.courseLength > 0 {
		speed := rec.AvgSpeed
		if speed == 0 && rec.Complete(s.sectors) && rec.Total > 0 {
			speed = s.courseLength / rec.Total.Seconds() * metersPerSecToKmh
		}
		if speed > 0 {
			row = append(row, strconv.FormatFloat(speed, 'f', 1, 64))
		} else {
			row = append(row, "")
		}
	}
	return row
}

// parseRow accepts rows with or without the AvgSpeed column. Sector cells
// must form a contiguous prefix: an empty cell followed by a time is rejected.
func (s *CSVStore) parseRow(cells []string) (model.Record, error) {
	if len(cells) != s.sectors+2 && len(cells) != s.sectors+3 {
		return model.Record{}, fmt.Errorf("%w: %d columns, want %d or %d", ErrMalformedRow, len(cells), s.sectors+2, s.sectors+3)
	}

	rec := model.Record{Name: strings.TrimSpace(cells[0])}
	if rec.Name == "" {
		return model.Record{}, fmt.Errorf("%w: empty name", ErrMalformedRow)
	}

	total, err := laptime.Parse(cells[1])
	if err != nil {
		return model.Record{}, fmt.Errorf("%w: total: %w", ErrMalformedRow, err)
	}
	rec.Total = total

	gap := false
	for i, cell := range cells[2 : 2+s.sectors] {
		if strings.TrimSpace(cell) == "" {
			gap = true
			continue
		}
		if gap {
			return model.Record{}, fmt.Errorf("%w: sector %d after an empty sector", ErrMalformedRow, i+1)
		}
		d, err := laptime.Parse(cell)
		if err != nil {
			return model.Record{}, fmt.Errorf("%w: sector %d: %w", ErrMalformedRow, i+1, err)
		}
		rec.Sectors = append(rec.Sectors, d)
	}

	if len(cells) == s.sectors+3 {
		if cell := strings.TrimSpace(cells[s.sectors+2]); cell != "" {
			speed, err := strconv.ParseFloat(cell, 64)
			if err != nil || speed < 0 {
				return model.Record{}, fmt.Errorf("%w: avg speed %q", ErrMalformedRow, cell)
			}
			rec.AvgSpeed = speed
		}
	}
	return rec, nil
}

func isHeader(cells []string) bool {
	return len(cells) > 1 && !strings.ContainsAny(cells[1], "0123456789")
}
