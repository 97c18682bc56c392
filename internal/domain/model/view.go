package model

import "time"

// SessionView is a read-only copy of an active session taken for a snapshot.
type SessionView struct {
	RunID         string
	RiderID       string
	Name          string
	CurrentSector int // 1-based sector the rider is riding now
	TotalSectors  int
	StartedAt     time.Time
	Elapsed       time.Duration
	Splits        []time.Duration
}
