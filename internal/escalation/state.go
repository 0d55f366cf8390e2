package escalation

import (
	"subservient/internal/ledger"
	"subservient/internal/review"
)

// State is the position of a pair in the resolution lifecycle.
type State int

const (
	StateNeedsSubtitle State = iota + 1
	StateHasUntested
	StateTesting
	StateResolved
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateNeedsSubtitle:
		return "NEEDS_SUBTITLE"
	case StateHasUntested:
		return "HAS_UNTESTED"
	case StateTesting:
		return "TESTING"
	case StateResolved:
		return "RESOLVED"
	case StateExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether no automated work remains for the pair.
func (s State) Terminal() bool {
	return s == StateResolved || s == StateExhausted
}

// Derive classifies a pair from its ledger and its review queue entry.
// TESTING is never derived: it only exists while the slot loop runs.
//
// A queued pair is EXHAUSTED while limit is not above the limit it was
// queued under; raising max_search_results puts it back to work.
func Derive(snap ledger.Snapshot, queued *review.Entry, limit int) State {
	switch {
	case snap.Canonical:
		return StateResolved
	case len(snap.Untested()) > 0:
		return StateHasUntested
	case queued != nil && limit <= queued.Limit:
		return StateExhausted
	default:
		return StateNeedsSubtitle
	}
}
