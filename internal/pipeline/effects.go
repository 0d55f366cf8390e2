package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"strconv"

	"subservient/internal/config"
	"subservient/internal/escalation"
	"subservient/internal/ledger"
	"subservient/internal/logging"
	"subservient/internal/review"
	"subservient/internal/services"
)

// ReviewEffects applies operator decisions from a review session against
// the library, the config file and the skip registry.
func (r *Runner) ReviewEffects() review.Effects {
	return reviewEffects{runner: r}
}

type reviewEffects struct {
	runner *Runner
}

func (e reviewEffects) ManualSearch(ctx context.Context, entry review.Entry, query string) (bool, error) {
	r := e.runner
	ctx = services.WithLanguage(services.WithVideo(services.WithRunID(ctx, r.runID), entry.Video), entry.Language)
	if _, err := os.Stat(entry.Video); err != nil {
		return false, services.Wrap(services.ErrNotFound, "pipeline", "manual search", entry.Video, err)
	}
	out, err := r.newResolver(escalation.ModeFull).Resolve(ctx, r.pairFor(entry), escalation.Options{Query: query})
	if err != nil {
		return false, err
	}
	return out.Final == escalation.StateResolved, nil
}

func (e reviewEffects) DeleteVideo(_ context.Context, video string) error {
	if err := os.Remove(video); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return services.Wrap(services.ErrPermission, "pipeline", "delete video", video, err)
	}
	logging.Transition(e.runner.logger, "video_deleted", "present", "deleted",
		logging.String(logging.FieldVideo, video))
	return nil
}

// RaiseLimit rewrites max_search_results in the config file, applies it to
// this runner and gives the pair's FAILED slots another chance.
func (e reviewEffects) RaiseLimit(_ context.Context, entry review.Entry, limit int) error {
	r := e.runner
	if r.configPath != "" {
		if err := config.SetMaxSearchResults(r.configPath, limit); err != nil {
			return err
		}
	}
	previous := r.cfg.Acquisition.MaxSearchResults
	r.cfg.Acquisition.MaxSearchResults = limit
	snap, err := ledger.Scan(r.pairFor(entry))
	if err != nil {
		return err
	}
	restored, err := ledger.RestoreFailedToDrift(snap)
	logging.Transition(r.logger, "search_limit_raised", strconv.Itoa(previous), strconv.Itoa(limit),
		logging.String(logging.FieldVideo, entry.Video),
		logging.String(logging.FieldLanguage, entry.Language),
		logging.Int("restored", len(restored)),
	)
	return err
}

func (e reviewEffects) Skip(_ context.Context, entry review.Entry) error {
	return e.runner.state.AddSkip(entry.Video, entry.Language)
}

// pairFor rebuilds the ledger pair of a queued entry without touching the
// video, which may be gone.
func (r *Runner) pairFor(entry review.Entry) ledger.Pair {
	pair := ledger.Pair{Video: entry.Video, Language: entry.Language}
	if r.cfg.Library.SeriesMode {
		pair.Episode = ledger.EpisodeKey(entry.Video)
	}
	return pair
}
