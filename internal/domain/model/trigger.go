// Package model contains domain models passed between layers.
package model

import (
	"fmt"
	"strings"
	"time"
)

// TriggerKind tells the dispatcher what a raw trigger means.
type TriggerKind int

const (
	// KindAdvance is a sector advance, e.g. a button press or a gate sensor.
	KindAdvance TriggerKind = iota
	// KindIdentity is an identity read, e.g. an RFID tag scan or an entered name.
	KindIdentity
)

func (k TriggerKind) String() string {
	switch k {
	case KindAdvance:
		return "advance"
	case KindIdentity:
		return "identity"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseTriggerKind accepts "advance"/"button" and "identity"/"scan".
func ParseTriggerKind(s string) (TriggerKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "advance", "button", "":
		return KindAdvance, nil
	case "identity", "scan", "tag":
		return KindIdentity, nil
	default:
		return 0, fmt.Errorf("unknown trigger kind %q", s)
	}
}

// Trigger is a normalized event from an external source.
type Trigger struct {
	Kind        TriggerKind
	RiderID     string    // empty: advance the active or staged rider
	DisplayName string    // optional, resolved by the source
	At          time.Time // when the source observed the event
	// ReceivedAt is when the service took the trigger in. Splits are timed
	// on At; idle and elapsed time run on this clock.
	ReceivedAt time.Time
}
