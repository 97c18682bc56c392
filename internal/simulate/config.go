package simulate

import "time"

// Trigger styles. They decide how a ride is announced to the service.
const (
	// StyleDirect sends every trigger with the rider's tag UID.
	StyleDirect = "direct"
	// StyleAnonymous scans the tag once and then presses a bare button; it
	// needs a single-mode service.
	StyleAnonymous = "anonymous"
	// StyleHybrid scans the tag to stage the rider and starts the run on the
	// first button press; it needs a hybrid single-mode service.
	StyleHybrid = "hybrid"
)

// Config holds configuration for a simulated session.
type Config struct {
	BaseURL       string        // Base URL of the service
	Riders        int           // Number of rides, one after another
	Sectors       int           // Sectors per ride; must match the service
	SectorSeconds float64       // Mean sector time
	Gap           time.Duration // Pause between the end of a ride and the next scan
	Style         string        // direct, anonymous or hybrid
	Realtime      bool          // Submit at the pace the ride happens
	Speedup       float64       // Time compression when Realtime is set
	Timeout       time.Duration // HTTP request timeout
	Settle        time.Duration // How long to wait for rows to appear
	LogFile       string        // Log file for the run
	Verbose       bool          // Log every trigger
}

// TriggerBody is the JSON body posted to /triggers.
type TriggerBody struct {
	Kind        string `json:"kind"`
	RiderID     string `json:"rider_id,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	TS          string `json:"ts"`
}

// Ride is one planned run.
type Ride struct {
	RiderID  string
	Name     string
	Start    time.Time
	Splits   []time.Duration
	Triggers []PlannedTrigger
}

// Total returns the planned run time.
func (r Ride) Total() time.Duration {
	var total time.Duration
	for _, s := range r.Splits {
		total += s
	}
	return total
}

// PlannedTrigger is a trigger with the time it should be observed.
type PlannedTrigger struct {
	At   time.Time
	Body TriggerBody
}

// Row is a leaderboard row as served by GET /leaderboard.
type Row struct {
	Name    string    `json:"name"`
	Total   string    `json:"total"`
	Sectors []*string `json:"sectors"`
}

// Stats holds run statistics.
type Stats struct {
	RidesPlanned      int
	TriggersSubmitted int
	TriggersAccepted  int
	TriggersRejected  int
	TriggersFailed    int
	RidesVerified     int
	RidesMismatched   int
	StartTime         time.Time
	EndTime           time.Time
	Duration          time.Duration
}
