package acquire

import (
	"bytes"
	"context"
	"log/slog"

	"subservient/internal/ledger"
	"subservient/internal/logging"
	"subservient/internal/search"
	"subservient/internal/services"
)

// Fetcher downloads the bytes of one catalog file.
type Fetcher interface {
	Download(ctx context.Context, fileID int64) ([]byte, error)
}

// Result summarizes one batch.
type Result struct {
	Downloaded []ledger.Entry
	// Skipped holds candidates whose download failed. They stay absent from
	// the ledger.
	Skipped []search.Candidate
	// Restored holds FAILED entries renamed back to DRIFT after a success.
	Restored []ledger.Entry
}

// Executor writes downloaded candidates into the ledger.
type Executor struct {
	fetcher Fetcher
	logger  *slog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(fetcher Fetcher, logger *slog.Logger) *Executor {
	return &Executor{
		fetcher: fetcher,
		logger:  logging.NewComponentLogger(logger, "acquire"),
	}
}

// Run downloads up to batch candidates from plan, in plan order. Slots are
// assigned from plan.StartSlot and only advance on a successful write, so N
// successful downloads into an empty ledger occupy exactly slots 1..N.
func (e *Executor) Run(ctx context.Context, snap ledger.Snapshot, plan search.Plan, batch int) (Result, error) {
	var result Result
	pair := snap.Pair
	if batch <= 0 || batch > len(plan.Candidates) {
		batch = len(plan.Candidates)
	}
	slot := plan.StartSlot
	if next := snap.NextSlot(); slot < next {
		slot = next
	}

	for _, candidate := range plan.Candidates[:batch] {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		attrs := []logging.Attr{
			logging.String(logging.FieldVideo, pair.Video),
			logging.String(logging.FieldLanguage, pair.Language),
			logging.Int(logging.FieldSlot, slot),
			logging.Int64(logging.FieldPopularity, candidate.Popularity),
		}
		e.checkEpisode(pair, candidate, attrs)

		data, err := e.fetcher.Download(ctx, candidate.FileID)
		if err == nil && len(bytes.TrimSpace(data)) == 0 {
			err = services.Wrap(services.ErrExternalTool, "acquire", "download", "empty subtitle body", nil)
		}
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			logging.WarnWithContext(e.logger, "candidate download failed", "download_failed",
				append(attrs,
					logging.String(logging.FieldErrorHint, "the candidate stays absent and is offered again next pass"),
					logging.String(logging.FieldImpact, "candidate skipped for this batch"),
					logging.ErrorCategory(err),
					logging.Error(err),
				)...,
			)
			result.Skipped = append(result.Skipped, candidate)
			continue
		}

		entry := ledger.Entry{
			Popularity: candidate.Popularity,
			Language:   pair.Language,
			Slot:       slot,
			Episode:    pair.Episode,
			State:      ledger.StateUntested,
		}
		if _, err := ledger.Store(pair, entry, bytes.NewReader(data)); err != nil {
			return result, err
		}
		logging.Transition(e.logger, "candidate_downloaded", "absent", ledger.StateUntested.String(),
			append(attrs, logging.String("file", entry.FileName()), logging.String("catalog_file", candidate.FileName))...,
		)
		result.Downloaded = append(result.Downloaded, entry)
		slot++
	}

	if len(result.Downloaded) > 0 {
		restored, err := e.restoreFailed(pair)
		result.Restored = restored
		if err != nil {
			return result, err
		}
	}
	return result, nil
}

func (e *Executor) restoreFailed(pair ledger.Pair) ([]ledger.Entry, error) {
	snap, err := ledger.Scan(pair)
	if err != nil {
		return nil, err
	}
	restored, err := ledger.RestoreFailedToDrift(snap)
	for _, entry := range restored {
		logging.Transition(e.logger, "failed_restored", ledger.StateFailed.String(), ledger.StateDrift.String(),
			logging.String(logging.FieldVideo, pair.Video),
			logging.String(logging.FieldLanguage, pair.Language),
			logging.Int(logging.FieldSlot, entry.Slot),
			logging.Int64(logging.FieldPopularity, entry.Popularity),
		)
	}
	return restored, err
}

// checkEpisode warns when a series candidate names a different episode than
// the video. The ledger is always scoped by the video's own code.
func (e *Executor) checkEpisode(pair ledger.Pair, candidate search.Candidate, attrs []logging.Attr) {
	if pair.Episode == "" {
		return
	}
	if ledger.IsUnknownEpisode(pair.Episode) {
		logging.WarnWithContext(e.logger, "video has no episode code", "episode_unknown",
			append(attrs,
				logging.String(logging.FieldErrorHint, "rename the video to include SxxExx"),
				logging.String(logging.FieldImpact, "candidates are grouped under "+pair.Episode),
			)...,
		)
		return
	}
	code := ledger.EpisodeCode(candidate.FileName)
	if code != "" && code != pair.Episode {
		logging.WarnWithContext(e.logger, "candidate names a different episode", "episode_mismatch",
			append(attrs,
				logging.String("candidate_episode", code),
				logging.String("catalog_file", candidate.FileName),
				logging.String(logging.FieldErrorHint, "alignment will likely reject this candidate"),
				logging.String(logging.FieldImpact, "candidate kept under the video's episode"),
			)...,
		)
	}
}
