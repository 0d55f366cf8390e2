package syncer

// Outcome is the classification of one alignment attempt.
type Outcome int

const (
	OutcomeAccept Outcome = iota
	OutcomeSoftAccept
	OutcomeReject
	OutcomeToolFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAccept:
		return "accept"
	case OutcomeSoftAccept:
		return "soft_accept"
	case OutcomeReject:
		return "reject"
	case OutcomeToolFailure:
		return "tool_failure"
	default:
		return "unknown"
	}
}

// Accepted reports whether the outcome produces a canonical subtitle.
func (o Outcome) Accepted() bool {
	return o == OutcomeAccept || o == OutcomeSoftAccept
}

// Thresholds are the offset bounds in seconds.
type Thresholds struct {
	Accept float64
	Reject float64
}

// Classify maps an offset to an outcome. Both bounds are inclusive: an
// offset equal to Accept is a clean accept, one equal to Reject is a soft
// accept, and only offsets strictly above Reject are rejected.
func (t Thresholds) Classify(offset float64) Outcome {
	switch {
	case offset <= t.Accept:
		return OutcomeAccept
	case offset <= t.Reject:
		return OutcomeSoftAccept
	default:
		return OutcomeReject
	}
}
