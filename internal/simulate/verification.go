package simulate

import (
	"fmt"
	"time"

	"github.com/okian/sectorclock/internal/domain/laptime"
)

// Mismatch describes a ride whose leaderboard row differs from the plan.
type Mismatch struct {
	Name   string
	Reason string
}

func (m Mismatch) String() string { return m.Name + ": " + m.Reason }

// Verify checks that every ride has a matching most recent row.
func Verify(rides []Ride, rows []Row) []Mismatch {
	latest := make(map[string]Row, len(rows))
	for _, r := range rows {
		latest[r.Name] = r
	}

	var out []Mismatch
	for _, ride := range rides {
		row, ok := latest[ride.Name]
		if !ok {
			out = append(out, Mismatch{Name: ride.Name, Reason: "no leaderboard row"})
			continue
		}
		if want := laptime.Format(ride.Total()); row.Total != want {
			out = append(out, Mismatch{Name: ride.Name, Reason: fmt.Sprintf("total %s, want %s", row.Total, want)})
			continue
		}
		if reason := compareSectors(ride.Splits, row.Sectors); reason != "" {
			out = append(out, Mismatch{Name: ride.Name, Reason: reason})
		}
	}
	return out
}

func compareSectors(splits []time.Duration, got []*string) string {
	if len(got) < len(splits) {
		return fmt.Sprintf("%d sectors, want %d", len(got), len(splits))
	}
	for i, s := range splits {
		want := laptime.Format(s)
		if got[i] == nil {
			return fmt.Sprintf("sector %d missing, want %s", i+1, want)
		}
		if *got[i] != want {
			return fmt.Sprintf("sector %d is %s, want %s", i+1, *got[i], want)
		}
	}
	return ""
}

// missing returns how many rides have no row yet.
func missing(rides []Ride, rows []Row) int {
	seen := make(map[string]bool, len(rows))
	for _, r := range rows {
		seen[r.Name] = true
	}
	n := 0
	for _, ride := range rides {
		if !seen[ride.Name] {
			n++
		}
	}
	return n
}
