package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"subservient/internal/acquire"
	"subservient/internal/config"
	"subservient/internal/escalation"
	"subservient/internal/ledger"
	"subservient/internal/library"
	"subservient/internal/logging"
	"subservient/internal/media/ffprobe"
	"subservient/internal/opensubtitles"
	"subservient/internal/review"
	"subservient/internal/runstate"
	"subservient/internal/search"
	"subservient/internal/services"
	"subservient/internal/syncer"
)

// Option customizes a Runner. The With* collaborators replace the ones built
// from configuration.
type Option func(*Runner)

// WithCatalog replaces the catalog search.
func WithCatalog(catalog search.Catalog) Option {
	return func(r *Runner) { r.catalog = catalog }
}

// WithFetcher replaces the subtitle downloader.
func WithFetcher(fetcher acquire.Fetcher) Option {
	return func(r *Runner) { r.fetcher = fetcher }
}

// WithAligner replaces the alignment tool.
func WithAligner(aligner syncer.Aligner) Option {
	return func(r *Runner) { r.aligner = aligner }
}

// WithProber replaces the audio check. A nil prober disables it.
func WithProber(prober escalation.AudioProber) Option {
	return func(r *Runner) {
		r.prober = prober
		r.proberSet = true
	}
}

// WithProgress sends the alignment spinner to w.
func WithProgress(w io.Writer) Option {
	return func(r *Runner) { r.progress = w }
}

// Runner resolves every wanted language of a set of videos.
type Runner struct {
	cfg        *config.Config
	configPath string
	mode       escalation.Mode
	runID      string
	logger     *slog.Logger

	catalog   search.Catalog
	fetcher   acquire.Fetcher
	aligner   syncer.Aligner
	prober    escalation.AudioProber
	proberSet bool
	progress  io.Writer

	state   *runstate.Store
	queue   *review.Queue
	offsets *review.OffsetQueue
}

// New wires a Runner from cfg. configPath is the file the raise-limit action
// rewrites.
func New(cfg *config.Config, configPath string, logger *slog.Logger, mode escalation.Mode, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "new runner", "config is required", nil)
	}
	runID := uuid.NewString()
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:        cfg,
		configPath: configPath,
		mode:       mode,
		runID:      runID,
		logger:     logger.With(logging.FieldRunID, runID),
		state:      runstate.NewStore(cfg.RuntimeStatePath()),
		queue:      review.NewQueue(cfg.ReviewQueuePath()),
		offsets:    review.NewOffsetQueue(cfg.OffsetQueuePath()),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.catalog == nil || r.fetcher == nil {
		client := opensubtitles.New(opensubtitles.Config{
			BaseURL:          cfg.OpenSubtitles.APIURL,
			APIKey:           cfg.OpenSubtitles.APIKey,
			Username:         cfg.OpenSubtitles.Username,
			Password:         cfg.OpenSubtitles.Password,
			UserAgent:        cfg.OpenSubtitles.UserAgent,
			TimeoutSeconds:   cfg.OpenSubtitles.RequestTimeoutSeconds,
			PauseSeconds:     cfg.OpenSubtitles.PauseSeconds,
			MaxRateRetries:   cfg.OpenSubtitles.MaxRateRetries,
			DownloadRetry503: cfg.OpenSubtitles.DownloadRetry503,
		}, r.state, r.logger, opensubtitles.WithRequestPace(time.Duration(cfg.OpenSubtitles.PauseSeconds)*time.Second))
		if r.catalog == nil {
			r.catalog = catalogAdapter{client: client}
		}
		if r.fetcher == nil {
			r.fetcher = client
		}
	}
	if r.aligner == nil {
		r.aligner = syncer.FFSubsync{
			Binary:   cfg.Sync.FFSubsyncBinary,
			Timeout:  time.Duration(cfg.Sync.TimeoutSeconds) * time.Second,
			Progress: r.progress,
			Logger:   r.logger,
		}
	}
	if !r.proberSet && cfg.Sync.RequireAudio {
		r.prober = ffprobe.Prober{Binary: cfg.Sync.FFprobeBinary}
	}
	return r, nil
}

// RunID identifies this run in the logs.
func (r *Runner) RunID() string {
	return r.runID
}

// Queue is the manual review queue the runner writes to.
func (r *Runner) Queue() *review.Queue {
	return r.queue
}

// Discover lists the videos under the configured library roots.
func (r *Runner) Discover(ctx context.Context) ([]library.Video, error) {
	return library.Discover(ctx, r.cfg.Library.Roots, library.Options{
		SeriesMode:       r.cfg.Library.SeriesMode,
		ExtrasFolderName: r.cfg.Library.ExtrasFolderName,
		SkipDirs:         r.cfg.Library.SkipDirs,
		Extensions:       r.cfg.Library.VideoExtensions,
		Logger:           r.logger,
	})
}

// Run resolves every configured language of videos in order. Per-pair
// errors are logged and counted; a fatal error (configuration, permission)
// or a cancelled context stops the run and is returned with the partial
// summary.
func (r *Runner) Run(ctx context.Context, videos []library.Video) (Summary, error) {
	ctx = services.WithRunID(ctx, r.runID)
	summary := Summary{RunID: r.runID, Mode: r.mode, Videos: len(videos)}
	started := time.Now()
	resolver := r.newResolver(r.mode)

	r.logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("mode", modeName(r.mode)),
		logging.Int("videos", len(videos)),
		logging.Any("languages", r.cfg.Acquisition.Languages),
		logging.Int("max_search_results", r.cfg.Acquisition.MaxSearchResults),
	)

	for _, video := range videos {
		for _, lang := range r.cfg.Acquisition.Languages {
			if err := ctx.Err(); err != nil {
				summary.Duration = time.Since(started)
				return summary, err
			}
			summary.Pairs++
			skipped, err := r.state.IsSkipped(video.Path, lang)
			if err != nil {
				summary.Duration = time.Since(started)
				return summary, err
			}
			if skipped {
				summary.Skipped++
				r.logger.Debug("pair skipped by registry",
					logging.String(logging.FieldEventType, "pair_skipped"),
					logging.String(logging.FieldVideo, video.Path),
					logging.String(logging.FieldLanguage, lang),
				)
				continue
			}

			pairCtx := services.WithLanguage(services.WithVideo(ctx, video.Path), lang)
			out, err := resolver.Resolve(pairCtx, video.Pair(lang), escalation.Options{})
			summary.record(out)
			if err == nil {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				summary.Duration = time.Since(started)
				return summary, err
			}
			summary.Errors = append(summary.Errors, PairError{Video: video.Path, Language: lang, Err: err})
			logging.ErrorWithContext(logging.WithContext(pairCtx, r.logger), "pair failed", "pair_failed",
				logging.Error(err),
				logging.ErrorCategory(err),
				logging.String(logging.FieldErrorHint, "the pair is picked up from its files next run"),
			)
			if services.Fatal(err) {
				summary.Duration = time.Since(started)
				return summary, err
			}
		}
	}

	summary.Duration = time.Since(started)
	r.logger.Info("run finished", logging.Args(append(summary.attrs(),
		logging.String(logging.FieldEventType, "run_complete"))...)...)
	return summary, nil
}

// Inspect derives the state of every pair without touching the library.
func (r *Runner) Inspect(videos []library.Video) ([]PairStatus, error) {
	resolver := r.newResolver(escalation.ModeSync)
	var out []PairStatus
	for _, video := range videos {
		for _, lang := range r.cfg.Acquisition.Languages {
			status := PairStatus{Video: video, Language: lang}
			skipped, err := r.state.IsSkipped(video.Path, lang)
			if err != nil {
				return nil, err
			}
			status.Skipped = skipped
			state, snap, err := resolver.Inspect(video.Pair(lang))
			if err != nil {
				return nil, err
			}
			status.State = state
			status.Untested = len(snap.Untested())
			status.Drift = len(snap.InState(ledger.StateDrift))
			status.Failed = len(snap.InState(ledger.StateFailed))
			out = append(out, status)
		}
	}
	return out, nil
}

func (r *Runner) newResolver(mode escalation.Mode) *escalation.Resolver {
	deps := escalation.Dependencies{
		Searcher:   search.NewEngine(r.catalog, r.logger),
		Downloader: acquire.NewExecutor(r.fetcher, r.logger),
		Synchronizer: syncer.NewEngine(r.aligner, syncer.Thresholds{
			Accept: r.cfg.Sync.AcceptOffsetThreshold,
			Reject: r.cfg.Sync.RejectOffsetThreshold,
		}, r.offsets, r.logger),
		Queue:   r.queue,
		Builder: search.NewBuilder(r.cfg.Acquisition.UnwantedTerms),
	}
	if r.prober != nil {
		deps.Prober = r.prober
	}
	return escalation.NewResolver(deps, escalation.Settings{
		TopDownloads: r.cfg.Acquisition.TopDownloads,
		MaxResults:   r.cfg.Acquisition.MaxSearchResults,
		Mode:         mode,
	}, r.logger)
}

func modeName(mode escalation.Mode) string {
	switch mode {
	case escalation.ModeAcquire:
		return "acquire"
	case escalation.ModeSync:
		return "sync"
	default:
		return "full"
	}
}
