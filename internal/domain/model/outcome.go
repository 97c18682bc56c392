package model

// Outcome is the result of feeding one trigger to the timing engine. Rejections
// are outcomes too; the engine never fails a trigger with an error.
type Outcome int

const (
	OutcomeCreated Outcome = iota
	OutcomeAdvanced
	OutcomeCompleted
	OutcomeStaged
	OutcomeDebounced
	OutcomeAlreadyFinished
	OutcomeNoIdentity
	OutcomeStagedExpired
	OutcomeBusy
	OutcomePersistFailed
)

var outcomeNames = map[Outcome]string{ //nolint:gochecknoglobals // read-only lookup
	OutcomeCreated:         "created",
	OutcomeAdvanced:        "advanced",
	OutcomeCompleted:       "completed",
	OutcomeStaged:          "staged",
	OutcomeDebounced:       "debounced",
	OutcomeAlreadyFinished: "already_finished",
	OutcomeNoIdentity:      "no_identity",
	OutcomeStagedExpired:   "staged_expired",
	OutcomeBusy:            "busy",
	OutcomePersistFailed:   "persist_failed",
}

func (o Outcome) String() string {
	if s, ok := outcomeNames[o]; ok {
		return s
	}
	return "unknown"
}

// Accepted reports whether the trigger changed timing state.
func (o Outcome) Accepted() bool {
	switch o {
	case OutcomeCreated, OutcomeAdvanced, OutcomeCompleted, OutcomeStaged, OutcomePersistFailed:
		return true
	default:
		return false
	}
}
