package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"time"

	"subservient/internal/fileutil"
	"subservient/internal/ledger"
	"subservient/internal/logging"
	"subservient/internal/review"
	"subservient/internal/services"
)

// OffsetRecorder keeps soft-accepted subtitles for later review by eye.
type OffsetRecorder interface {
	Record(entry review.OffsetEntry) (bool, error)
}

// Attempt is the result of aligning one candidate.
type Attempt struct {
	Entry   ledger.Entry
	Outcome Outcome
	Offset  float64
	Err     error
}

// Result summarizes the slot loop for one pair.
type Result struct {
	Attempts []Attempt
	// Canonical is the accepted subtitle path, empty when nothing was accepted.
	Canonical string
	Outcome   Outcome
	Cleaned   []ledger.Entry
}

// Accepted reports whether the pair ended with a canonical subtitle.
func (r Result) Accepted() bool {
	return r.Canonical != ""
}

// Engine walks the untested slots of a pair.
type Engine struct {
	aligner    Aligner
	thresholds Thresholds
	offsets    OffsetRecorder
	logger     *slog.Logger
}

// NewEngine constructs an Engine. offsets may be nil.
func NewEngine(aligner Aligner, thresholds Thresholds, offsets OffsetRecorder, logger *slog.Logger) *Engine {
	return &Engine{
		aligner:    aligner,
		thresholds: thresholds,
		offsets:    offsets,
		logger:     logging.NewComponentLogger(logger, "syncer"),
	}
}

// Resolve aligns the untested candidates of snap in ascending slot order
// and stops at the first accept. Slots already judged DRIFT or FAILED are
// never tested. A failed rename is returned: the ledger must reflect what
// is on disk, so the loop does not continue past it.
func (e *Engine) Resolve(ctx context.Context, snap ledger.Snapshot) (Result, error) {
	var result Result
	pair := snap.Pair
	if snap.Canonical {
		return result, services.Wrap(services.ErrConflict, "syncer", "resolve", pair.CanonicalPath(), ledger.ErrCanonicalExists)
	}
	for _, entry := range snap.Untested() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		attempt, canonical, err := e.attempt(ctx, pair, entry)
		if err != nil {
			return result, err
		}
		result.Attempts = append(result.Attempts, attempt)
		if canonical == "" {
			continue
		}
		result.Canonical = canonical
		result.Outcome = attempt.Outcome
		cleaned, err := e.cleanup(pair)
		result.Cleaned = cleaned
		return result, err
	}
	return result, nil
}

func (e *Engine) attempt(ctx context.Context, pair ledger.Pair, entry ledger.Entry) (Attempt, string, error) {
	attempt := Attempt{Entry: entry}
	attrs := []logging.Attr{
		logging.String(logging.FieldVideo, pair.Video),
		logging.String(logging.FieldLanguage, pair.Language),
		logging.Int(logging.FieldSlot, entry.Slot),
		logging.Int64(logging.FieldPopularity, entry.Popularity),
	}
	source := pair.Path(entry)
	output, err := fileutil.TempPathFor(pair.CanonicalPath(), ".srt")
	if err != nil {
		return attempt, "", services.Wrap(services.ErrPermission, "syncer", "reserve output", pair.Dir(), err)
	}
	defer fileutil.RemoveIfExists(output)

	logging.Transition(e.logger, "candidate_testing", ledger.StateUntested.String(), "testing", attrs...)
	alignErr := e.aligner.Align(ctx, pair.Video, source, output)
	if alignErr != nil && ctx.Err() != nil {
		return attempt, "", ctx.Err()
	}
	if alignErr != nil {
		attempt.Outcome = OutcomeToolFailure
		attempt.Err = alignErr
		logging.WarnWithContext(e.logger, "alignment tool failed", "alignment_failed",
			append(attrs,
				logging.String(logging.FieldErrorHint, "run ffsubsync by hand on this file to see the failure"),
				logging.String(logging.FieldImpact, "candidate marked FAILED"),
				logging.ErrorCategory(alignErr),
				logging.Error(alignErr),
			)...,
		)
		if _, err := ledger.Move(pair, entry, ledger.StateFailed); err != nil {
			return attempt, "", err
		}
		logging.Transition(e.logger, "candidate_failed", "testing", ledger.StateFailed.String(), attrs...)
		return attempt, "", nil
	}

	before, err := os.ReadFile(source)
	if err != nil {
		return attempt, "", services.Wrap(services.ErrPermission, "syncer", "read candidate", source, err)
	}
	after, err := os.ReadFile(output)
	if err != nil {
		return attempt, "", services.Wrap(services.ErrExternalTool, "syncer", "read aligned output", output, err)
	}
	shift, measured := MeasureShift(before, after)
	if measured {
		attempt.Offset = math.Abs(shift.Seconds())
		attempt.Outcome = e.thresholds.Classify(attempt.Offset)
		attrs = append(attrs, logging.Float64("offset_seconds", attempt.Offset))
		e.logger.Info("offset classified", logging.Args(append(attrs,
			logging.DecisionAttrs("offset_classification", attempt.Outcome.String(),
				fmt.Sprintf("accept<=%.3f reject>%.3f", e.thresholds.Accept, e.thresholds.Reject))...)...)...)
	} else {
		// Nothing to measure against: an empty result is never promoted.
		attempt.Outcome = OutcomeReject
		logging.WarnWithContext(e.logger, "no subtitle cue to measure", "offset_unmeasurable",
			append(attrs,
				logging.String(logging.FieldErrorHint, "open the candidate and the aligned output; one of them has no timed cue"),
				logging.String(logging.FieldImpact, "candidate marked DRIFT"),
			)...,
		)
	}

	if attempt.Outcome == OutcomeReject {
		if _, err := ledger.Move(pair, entry, ledger.StateDrift); err != nil {
			return attempt, "", err
		}
		logging.Transition(e.logger, "candidate_rejected", "testing", ledger.StateDrift.String(), attrs...)
		return attempt, "", nil
	}

	canonical, err := ledger.Promote(pair, output)
	if err != nil {
		return attempt, "", err
	}
	logging.Transition(e.logger, "candidate_accepted", "testing", "canonical",
		append(attrs, logging.String("subtitle", filepath.Base(canonical)))...)

	if attempt.Outcome == OutcomeSoftAccept && e.offsets != nil {
		cue, _ := FirstCue(Decode(after))
		record := review.OffsetEntry{
			Title:     review.DisplayTitle(filepath.Base(pair.Video)),
			Language:  pair.Language,
			Dir:       pair.Dir(),
			Video:     filepath.Base(pair.Video),
			Subtitle:  filepath.Base(canonical),
			Offset:    shift.Seconds(),
			CueTime:   FormatTimestamp(cue.Start),
			FirstLine: cue.Text,
			Candidate: entry.FileName(),
		}
		replaced, err := e.offsets.Record(record)
		if err != nil {
			logging.WarnWithContext(e.logger, "offset tracking entry not written", "offset_record_failed",
				append(attrs,
					logging.String(logging.FieldErrorHint, "check the state directory is writable"),
					logging.String(logging.FieldImpact, "subtitle accepted but not listed for review"),
					logging.Error(err),
				)...,
			)
		} else {
			e.logger.Info("offset tracking entry recorded", logging.Args(append(attrs,
				logging.String(logging.FieldEventType, "offset_recorded"),
				logging.Bool("replaced", replaced))...)...)
		}
	}
	return attempt, canonical, nil
}

// cleanup removes every remaining candidate of an accepted pair.
func (e *Engine) cleanup(pair ledger.Pair) ([]ledger.Entry, error) {
	snap, err := ledger.Scan(pair)
	if err != nil {
		return nil, err
	}
	removed, err := ledger.Cleanup(snap)
	for _, entry := range removed {
		logging.Transition(e.logger, "candidate_superseded", entry.State.String(), "removed",
			logging.String(logging.FieldVideo, pair.Video),
			logging.String(logging.FieldLanguage, pair.Language),
			logging.Int(logging.FieldSlot, entry.Slot),
			logging.Int64(logging.FieldPopularity, entry.Popularity),
		)
	}
	if err != nil && !errors.Is(err, services.ErrNotFound) {
		return removed, err
	}
	return removed, nil
}

// ShiftFile moves every cue of the subtitle at path by delta and rewrites
// the file atomically.
func ShiftFile(path string, delta time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return services.Wrap(services.ErrNotFound, "syncer", "shift", path, err)
	}
	shifted := Shift(Decode(data), delta)
	if err := fileutil.WriteFileAtomic(path, []byte(shifted), 0o644); err != nil {
		return services.Wrap(services.ErrPermission, "syncer", "shift", path, err)
	}
	return nil
}
