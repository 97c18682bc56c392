package simulate

import (
	"crypto/rand"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Constants for random number generation.
const (
	randomFloatDivisor = 1000000
	tagLength          = 8
)

// Split spread around the mean sector time.
const (
	splitLowFactor   = 0.8
	splitRangeFactor = 0.4
	minSplit         = time.Second
	startDelay       = 500 * time.Millisecond
)

// getRandomFloat returns a random float64 between 0.0 and 1.0 using crypto/rand.
func getRandomFloat() float64 {
	n, _ := rand.Int(rand.Reader, big.NewInt(randomFloatDivisor))
	return float64(n.Int64()) / float64(randomFloatDivisor)
}

// newTag returns a tag UID in the format readers print, e.g. "04A1B2C3".
func newTag() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:tagLength])
}

// randomSplit draws a split around mean, rounded to tenths so leaderboard
// text round-trips exactly.
func randomSplit(mean float64) time.Duration {
	secs := mean * (splitLowFactor + getRandomFloat()*splitRangeFactor)
	d := time.Duration(math.Round(secs*10)) * (time.Second / 10)
	if d < minSplit {
		return minSplit
	}
	return d
}

// Plan lays out cfg.Riders consecutive rides starting at start.
func Plan(cfg *Config, start time.Time) []Ride {
	rides := make([]Ride, 0, cfg.Riders)
	at := start
	for i := 0; i < cfg.Riders; i++ {
		tag := newTag()
		ride := Ride{RiderID: tag, Name: "Rider " + tag}
		for s := 0; s < cfg.Sectors; s++ {
			ride.Splits = append(ride.Splits, randomSplit(cfg.SectorSeconds))
		}
		ride.Triggers, ride.Start = triggersFor(cfg.Style, ride, at)
		rides = append(rides, ride)
		at = ride.Start.Add(ride.Total()).Add(cfg.Gap)
	}
	return rides
}

// triggersFor returns the trigger sequence for a ride whose tag is read at
// scan, and the time its run starts.
func triggersFor(style string, ride Ride, scan time.Time) ([]PlannedTrigger, time.Time) {
	body := func(kind, id, name string) TriggerBody {
		return TriggerBody{Kind: kind, RiderID: id, DisplayName: name}
	}

	var (
		out   []PlannedTrigger
		start = scan
	)
	switch style {
	case StyleHybrid:
		start = scan.Add(startDelay)
		out = append(out,
			PlannedTrigger{At: scan, Body: body("scan", ride.RiderID, ride.Name)},
			PlannedTrigger{At: start, Body: body("button", "", "")},
		)
	case StyleAnonymous:
		out = append(out, PlannedTrigger{At: scan, Body: body("scan", ride.RiderID, ride.Name)})
	default:
		out = append(out, PlannedTrigger{At: scan, Body: body("advance", ride.RiderID, ride.Name)})
	}

	at := start
	for _, split := range ride.Splits {
		at = at.Add(split)
		if style == StyleDirect || style == "" {
			out = append(out, PlannedTrigger{At: at, Body: body("advance", ride.RiderID, "")})
		} else {
			out = append(out, PlannedTrigger{At: at, Body: body("button", "", "")})
		}
	}

	for i := range out {
		out[i].Body.TS = out[i].At.UTC().Format(time.RFC3339Nano)
	}
	return out, start
}
