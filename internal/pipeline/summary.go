package pipeline

import (
	"fmt"
	"time"

	"subservient/internal/escalation"
	"subservient/internal/library"
	"subservient/internal/logging"
	"subservient/internal/syncer"
)

// PairError is a pair that stopped on an error. The run carries on with the
// next pair unless the error is fatal.
type PairError struct {
	Video    string
	Language string
	Err      error
}

func (e PairError) Error() string {
	return fmt.Sprintf("%s [%s]: %v", e.Video, e.Language, e.Err)
}

func (e PairError) Unwrap() error {
	return e.Err
}

// Summary counts what a run did.
type Summary struct {
	RunID    string
	Mode     escalation.Mode
	Videos   int
	Pairs    int
	Skipped  int
	Duration time.Duration

	// AlreadyResolved pairs had their canonical subtitle before the run.
	AlreadyResolved int
	Resolved        int
	SoftAccepted    int
	Queued          int
	Deferred        int
	Pending         int
	NoAudio         int

	Downloaded int
	Tested     int
	Rejected   int
	ToolFailed int

	Errors []PairError
}

func (s *Summary) record(out escalation.Outcome) {
	s.Downloaded += out.Downloaded
	s.Tested += out.Tested
	s.Rejected += out.Rejected
	s.ToolFailed += out.Failed
	switch {
	case out.Final == escalation.StateResolved && out.Initial == escalation.StateResolved:
		s.AlreadyResolved++
	case out.Final == escalation.StateResolved:
		s.Resolved++
		if out.Accepted == syncer.OutcomeSoftAccept {
			s.SoftAccepted++
		}
	case out.Queued:
		s.Queued++
	case out.NoAudio:
		s.NoAudio++
	case out.Deferred:
		s.Deferred++
	case out.Final == escalation.StateHasUntested || out.Final == escalation.StateNeedsSubtitle:
		s.Pending++
	}
}

func (s Summary) attrs() []logging.Attr {
	return []logging.Attr{
		logging.Int("videos", s.Videos),
		logging.Int("pairs", s.Pairs),
		logging.Int("already_resolved", s.AlreadyResolved),
		logging.Int("resolved", s.Resolved),
		logging.Int("soft_accepted", s.SoftAccepted),
		logging.Int("queued", s.Queued),
		logging.Int("deferred", s.Deferred),
		logging.Int("pending", s.Pending),
		logging.Int("no_audio", s.NoAudio),
		logging.Int("skipped", s.Skipped),
		logging.Int("downloaded", s.Downloaded),
		logging.Int("tested", s.Tested),
		logging.Int("errors", len(s.Errors)),
		logging.Duration("duration", s.Duration),
	}
}

// PairStatus is the read-only view of one pair used by status.
type PairStatus struct {
	Video    library.Video
	Language string
	State    escalation.State
	Skipped  bool
	Untested int
	Drift    int
	Failed   int
}
