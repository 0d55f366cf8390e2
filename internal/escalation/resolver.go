package escalation

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"subservient/internal/acquire"
	"subservient/internal/ledger"
	"subservient/internal/logging"
	"subservient/internal/review"
	"subservient/internal/search"
	"subservient/internal/syncer"
)

// Searcher walks the search ladder for a pair.
type Searcher interface {
	Plan(ctx context.Context, req search.Request, from search.Rung) (search.Plan, error)
}

// Downloader materializes a plan into the ledger.
type Downloader interface {
	Run(ctx context.Context, snap ledger.Snapshot, plan search.Plan, batch int) (acquire.Result, error)
}

// Synchronizer tests the untested slots of a pair.
type Synchronizer interface {
	Resolve(ctx context.Context, snap ledger.Snapshot) (syncer.Result, error)
}

// Queue is the manual review queue as the resolver uses it.
type Queue interface {
	Enqueue(entry review.Entry) (bool, error)
	Remove(video, lang string) (bool, error)
	Lookup(video, lang string) (review.Entry, bool, error)
}

// AudioProber reports whether a video has an audio track to align against.
type AudioProber interface {
	HasAudio(ctx context.Context, path string) (bool, error)
}

// Mode limits which half of the pipeline runs.
type Mode int

const (
	// ModeFull searches, downloads and synchronizes until the pair is terminal.
	ModeFull Mode = iota
	// ModeAcquire downloads at most one batch and never aligns.
	ModeAcquire
	// ModeSync only tests candidates already in the ledger.
	ModeSync
)

// Settings are the per-run limits.
type Settings struct {
	TopDownloads int
	MaxResults   int
	Mode         Mode
}

// Dependencies wires the resolver to its collaborators. Prober may be nil,
// which skips the audio check.
type Dependencies struct {
	Searcher     Searcher
	Downloader   Downloader
	Synchronizer Synchronizer
	Queue        Queue
	Prober       AudioProber
	Builder      *search.Builder
}

// Options adjusts a single resolution.
type Options struct {
	// Query replaces the query built from the file name. It comes from the
	// operator, restarts the ladder at the first rung and lifts the pool cap.
	Query string
}

// Outcome is what happened to one pair.
type Outcome struct {
	Pair       ledger.Pair
	Initial    State
	Final      State
	Query      string
	Rung       search.Rung
	Downloaded int
	Tested     int
	Rejected   int
	Failed     int
	Canonical  string
	Accepted   syncer.Outcome
	Queued     bool
	Reason     review.Reason
	// NoAudio is set when synchronization was skipped for a silent video.
	NoAudio bool
	// Deferred is set when the ladder ran dry only because downloads
	// failed; the pair is tried again next run instead of being queued.
	Deferred bool
}

// Resolver drives pairs through the state machine.
type Resolver struct {
	deps     Dependencies
	settings Settings
	logger   *slog.Logger
	audio    map[string]bool
}

// NewResolver constructs a Resolver.
func NewResolver(deps Dependencies, settings Settings, logger *slog.Logger) *Resolver {
	if deps.Builder == nil {
		deps.Builder = search.NewBuilder(nil)
	}
	return &Resolver{
		deps:     deps,
		settings: settings,
		logger:   logging.NewComponentLogger(logger, "escalation"),
		audio:    make(map[string]bool),
	}
}

// Inspect derives the state of a pair without changing anything.
func (r *Resolver) Inspect(pair ledger.Pair) (State, ledger.Snapshot, error) {
	snap, err := ledger.Scan(pair)
	if err != nil {
		return 0, ledger.Snapshot{}, err
	}
	queued, err := r.lookup(pair)
	if err != nil {
		return 0, snap, err
	}
	return Derive(snap, queued, r.settings.MaxResults), snap, nil
}

// Resolve advances pair as far as the mode allows. Errors leave the pair in
// whatever state the files on disk describe; the next run picks it up from
// there.
func (r *Resolver) Resolve(ctx context.Context, pair ledger.Pair, opts Options) (Outcome, error) {
	out := Outcome{Pair: pair}
	attrs := pairAttrs(pair)

	if removed, err := ledger.Sweep(pair.Dir()); err != nil {
		logging.WarnWithContext(r.logger, "stale temp sweep failed", "temp_sweep_failed",
			append(attrs,
				logging.String(logging.FieldErrorHint, "remove leftover .subservient-*.tmp files by hand"),
				logging.Error(err),
			)...,
		)
	} else if len(removed) > 0 {
		r.logger.Info("stale temp files removed", logging.Args(append(attrs,
			logging.String(logging.FieldEventType, "temp_sweep"),
			logging.Int("count", len(removed)))...)...)
	}

	state, snap, err := r.Inspect(pair)
	if err != nil {
		return out, err
	}
	out.Initial = state
	manual := strings.Join(strings.Fields(opts.Query), " ")

	switch {
	case state == StateResolved:
		return r.settle(snap, out)
	case state == StateExhausted && manual == "":
		out.Final = StateExhausted
		out.Queued = true
		return out, nil
	case state == StateExhausted:
		logging.Transition(r.logger, "pair_state", state.String(), StateNeedsSubtitle.String(),
			append(attrs, logging.String("manual_query", manual))...)
		state = StateNeedsSubtitle
	}

	name := filepath.Base(pair.Video)
	name = strings.TrimSuffix(name, filepath.Ext(name))
	query, simplified, release := r.deps.Builder.Strict(name), r.deps.Builder.Simplified(name), r.deps.Builder.Release(name)
	if manual != "" {
		query, simplified, release = manual, "", ""
	}
	out.Query = query

	// An operator query resets the pool cap: each plan may add another
	// batch beyond max_search_results.
	override := 0
	if manual != "" {
		override = max(r.settings.TopDownloads, 1)
	}

	attempted := make(map[int64]struct{})
	from := search.RungStrict
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if len(snap.Untested()) > 0 {
			if r.settings.Mode == ModeAcquire {
				out.Final = StateHasUntested
				return out, nil
			}
			hasAudio, err := r.hasAudio(ctx, pair.Video)
			if err != nil {
				return out, err
			}
			if !hasAudio {
				out.NoAudio = true
				out.Final = StateHasUntested
				return out, nil
			}
			logging.Transition(r.logger, "pair_state", StateHasUntested.String(), StateTesting.String(),
				append(attrs, logging.Int("untested", len(snap.Untested())))...)
			result, err := r.deps.Synchronizer.Resolve(ctx, snap)
			out.tally(result)
			if err != nil {
				return out, err
			}
			if result.Accepted() {
				out.Canonical = result.Canonical
				out.Accepted = result.Outcome
				logging.Transition(r.logger, "pair_state", StateTesting.String(), StateResolved.String(),
					append(attrs, logging.String("canonical", filepath.Base(result.Canonical)))...)
				out.Final = StateResolved
				return out, r.dequeue(pair)
			}
			if snap, err = ledger.Scan(pair); err != nil {
				return out, err
			}
			state = StateNeedsSubtitle
			logging.Transition(r.logger, "pair_state", StateTesting.String(), state.String(), attrs...)
		}

		if r.settings.Mode == ModeSync {
			out.Final = state
			return out, nil
		}
		if r.settings.Mode == ModeAcquire && out.Downloaded > 0 {
			out.Final = StateHasUntested
			return out, nil
		}

		plan, err := r.deps.Searcher.Plan(ctx, search.Request{
			Snapshot:   snap,
			Query:      query,
			Simplified: simplified,
			Release:    release,
			MaxResults: r.settings.MaxResults,
			Override:   override,
			Attempted:  attempted,
		}, from)
		if err != nil {
			return out, err
		}
		out.Rung = plan.Rung
		if plan.LimitReached {
			return r.exhaust(snap, query, review.ReasonLimitReached, state, out)
		}
		if plan.Empty() {
			if len(attempted) > 0 {
				return r.postpone(state, out), nil
			}
			return r.exhaust(snap, query, review.ReasonExhausted, state, out)
		}

		batch := r.settings.TopDownloads
		if plan.Rung == search.RungLastResort {
			batch = 0
		}
		result, err := r.deps.Downloader.Run(ctx, snap, plan, batch)
		out.Downloaded += len(result.Downloaded)
		if err != nil {
			return out, err
		}
		if len(result.Downloaded) == 0 {
			for _, c := range result.Skipped {
				attempted[c.Popularity] = struct{}{}
			}
			from = plan.Rung + 1
			if from > search.RungLastResort {
				return r.postpone(state, out), nil
			}
			continue
		}
		from = search.RungStrict
		logging.Transition(r.logger, "pair_state", state.String(), StateHasUntested.String(),
			append(attrs,
				logging.String("rung", plan.Rung.String()),
				logging.Int("downloaded", len(result.Downloaded)))...)
		state = StateHasUntested
		if snap, err = ledger.Scan(pair); err != nil {
			return out, err
		}
	}
}

// settle finishes a pair that already has its canonical subtitle: leftover
// candidates are superseded and a stale review entry is moot.
func (r *Resolver) settle(snap ledger.Snapshot, out Outcome) (Outcome, error) {
	out.Final = StateResolved
	out.Canonical = snap.Pair.CanonicalPath()
	if len(snap.Entries) > 0 {
		removed, err := ledger.Cleanup(snap)
		for _, e := range removed {
			logging.Transition(r.logger, "candidate_superseded", e.State.String(), "removed",
				append(pairAttrs(snap.Pair),
					logging.Int(logging.FieldSlot, e.Slot),
					logging.Int64(logging.FieldPopularity, e.Popularity))...)
		}
		if err != nil {
			return out, err
		}
	}
	return out, r.dequeue(snap.Pair)
}

func (r *Resolver) exhaust(snap ledger.Snapshot, query string, reason review.Reason, from State, out Outcome) (Outcome, error) {
	attrs := pairAttrs(snap.Pair)
	if reason == review.ReasonExhausted {
		marked, err := ledger.MarkDriftAsFailed(snap)
		for _, e := range marked {
			logging.Transition(r.logger, "drift_marked_failed", ledger.StateDrift.String(), ledger.StateFailed.String(),
				append(attrs,
					logging.Int(logging.FieldSlot, e.Slot),
					logging.Int64(logging.FieldPopularity, e.Popularity))...)
		}
		if err != nil {
			return out, err
		}
	}
	added, err := r.deps.Queue.Enqueue(review.Entry{
		Video:    snap.Pair.Video,
		Language: snap.Pair.Language,
		Query:    query,
		Reason:   reason,
		Attempts: snap.TotalExisting(),
		Limit:    r.settings.MaxResults,
	})
	if err != nil {
		return out, err
	}
	logging.Transition(r.logger, "pair_state", from.String(), StateExhausted.String(),
		append(attrs,
			logging.String("reason", string(reason)),
			logging.Bool("newly_queued", added),
			logging.Int("existing", snap.TotalExisting()))...)
	out.Final = StateExhausted
	out.Queued = true
	out.Reason = reason
	return out, nil
}

// postpone ends a pass whose ladder only ran dry because downloads failed.
// Those candidates are retried like new next run, so the pair is not
// handed to the operator.
func (r *Resolver) postpone(state State, out Outcome) Outcome {
	logging.WarnWithContext(r.logger, "no candidate could be downloaded", "download_deferred",
		append(pairAttrs(out.Pair),
			logging.String(logging.FieldErrorHint, "the catalog may be overloaded; the pair is retried next run"),
			logging.String(logging.FieldImpact, "pair left without a subtitle for this run"),
		)...,
	)
	out.Deferred = true
	out.Final = state
	return out
}

func (r *Resolver) hasAudio(ctx context.Context, video string) (bool, error) {
	if r.deps.Prober == nil {
		return true, nil
	}
	if ok, seen := r.audio[video]; seen {
		return ok, nil
	}
	ok, err := r.deps.Prober.HasAudio(ctx, video)
	if err != nil {
		return false, err
	}
	r.audio[video] = ok
	if !ok {
		logging.WarnWithContext(r.logger, "video has no audio track", "audio_missing",
			logging.String(logging.FieldVideo, video),
			logging.String(logging.FieldErrorHint, "remux the video with its audio track"),
			logging.String(logging.FieldImpact, "synchronization skipped; candidates left untouched"),
		)
	}
	return ok, nil
}

func (r *Resolver) lookup(pair ledger.Pair) (*review.Entry, error) {
	if r.deps.Queue == nil {
		return nil, nil
	}
	entry, ok, err := r.deps.Queue.Lookup(pair.Video, pair.Language)
	if err != nil || !ok {
		return nil, err
	}
	return &entry, nil
}

func (r *Resolver) dequeue(pair ledger.Pair) error {
	if r.deps.Queue == nil {
		return nil
	}
	removed, err := r.deps.Queue.Remove(pair.Video, pair.Language)
	if removed {
		r.logger.Info("review entry resolved automatically", logging.Args(append(pairAttrs(pair),
			logging.String(logging.FieldEventType, "review_moot"))...)...)
	}
	return err
}

func (o *Outcome) tally(result syncer.Result) {
	for _, a := range result.Attempts {
		o.Tested++
		switch a.Outcome {
		case syncer.OutcomeReject:
			o.Rejected++
		case syncer.OutcomeToolFailure:
			o.Failed++
		}
	}
}

func pairAttrs(pair ledger.Pair) []logging.Attr {
	attrs := []logging.Attr{
		logging.String(logging.FieldVideo, pair.Video),
		logging.String(logging.FieldLanguage, pair.Language),
	}
	if pair.Episode != "" {
		attrs = append(attrs, logging.String("episode", pair.Episode))
	}
	return attrs
}
