package model

import "fmt"

// Verdict is the three-way pace comparison sent to the indicator, plus the
// case where the rider has no usable history.
type Verdict int

const (
	VerdictNoHistory Verdict = iota
	VerdictFaster
	VerdictSimilar
	VerdictSlower
)

func (v Verdict) String() string {
	switch v {
	case VerdictNoHistory:
		return "no_history"
	case VerdictFaster:
		return "faster"
	case VerdictSimilar:
		return "similar"
	case VerdictSlower:
		return "slower"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (v Verdict) MarshalText() ([]byte, error) {
	return []byte(v.String()), nil
}

// Scope says whether a verdict is about a sector or a whole run.
type Scope string

const (
	ScopeSector Scope = "sector"
	ScopeRun    Scope = "run"
)
