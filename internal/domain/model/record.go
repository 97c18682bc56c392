package model

import "time"

// Record is one finalized leaderboard row.
type Record struct {
	Name     string
	Total    time.Duration
	Sectors  []time.Duration // may be shorter than the course for abandoned runs
	AvgSpeed float64         // km/h; zero when the column is absent
}

// Sector returns the time for the zero-based sector i. A sector the run never
// reached reports false rather than a zero duration.
func (r Record) Sector(i int) (time.Duration, bool) {
	if i < 0 || i >= len(r.Sectors) {
		return 0, false
	}
	return r.Sectors[i], true
}

// Complete reports whether the record covers all n sectors.
func (r Record) Complete(n int) bool {
	return len(r.Sectors) >= n
}
