package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pelletier/go-toml/v2"

	"subservient/internal/config"
	"subservient/internal/escalation"
	"subservient/internal/ledger"
	"subservient/internal/review"
	"subservient/internal/runstate"
	"subservient/internal/testsupport"
)

func TestReviewEffectsManualSearchResolvesQueuedPair(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	video := addVideo(t, cfg, filepath.Join("Heat (1995)", "Heat.1995.1080p.mkv"))
	catalog := newLangCatalog()
	catalog.offers["en|Heat Pacino"] = []int64{321}

	runner, _ := newTestRunner(t, cfg, catalog, escalation.ModeFull)
	entry := review.Entry{Video: video, Language: "en", Query: "Heat 1995", Reason: review.ReasonExhausted, Limit: 10}
	if _, err := runner.Queue().Enqueue(entry); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	resolved, err := runner.ReviewEffects().ManualSearch(context.Background(), entry, "Heat Pacino")
	if err != nil {
		t.Fatalf("ManualSearch: %v", err)
	}
	if !resolved {
		t.Fatal("expected the manual query to resolve the pair")
	}
	if queued, _ := runner.Queue().Contains(video, "en"); queued {
		t.Fatal("resolved pair should leave the review queue")
	}
}

func TestReviewEffectsRaiseLimitRewritesConfigAndRestoresFailed(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	video := addVideo(t, cfg, filepath.Join("Heat (1995)", "Heat.1995.1080p.mkv"))
	dir := filepath.Dir(video)
	testsupport.WriteSubtitle(t, dir, "500.en.number1.FAILED.srt", 10*time.Second, "a")
	testsupport.WriteSubtitle(t, dir, "400.en.number2.FAILED.srt", 10*time.Second, "b")

	configPath := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(configPath); err != nil {
		t.Fatalf("CreateSample: %v", err)
	}
	runner, err := New(cfg, configPath, nil, escalation.ModeFull,
		WithCatalog(newLangCatalog()), WithFetcher(srtFetcher{}), WithAligner(&copyAligner{}), WithProber(nil))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	entry := review.Entry{Video: video, Language: "en", Reason: review.ReasonLimitReached, Limit: 10}
	if err := runner.ReviewEffects().RaiseLimit(context.Background(), entry, 20); err != nil {
		t.Fatalf("RaiseLimit: %v", err)
	}
	if cfg.Acquisition.MaxSearchResults != 20 {
		t.Fatalf("runner config not updated: %d", cfg.Acquisition.MaxSearchResults)
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	var doc struct {
		Acquisition struct {
			MaxSearchResults int `toml:"max_search_results"`
		} `toml:"acquisition"`
	}
	if err := toml.Unmarshal(data, &doc); err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if doc.Acquisition.MaxSearchResults != 20 {
		t.Fatalf("config file max_search_results = %d", doc.Acquisition.MaxSearchResults)
	}

	snap, err := ledger.Scan(ledger.Pair{Video: video, Language: "en"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := len(snap.InState(ledger.StateDrift)); got != 2 {
		t.Fatalf("expected both FAILED entries back as DRIFT, got %d", got)
	}
}

func TestReviewEffectsSkipAndDelete(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	video := addVideo(t, cfg, filepath.Join("Heat (1995)", "Heat.1995.1080p.mkv"))
	runner, _ := newTestRunner(t, cfg, newLangCatalog(), escalation.ModeFull)
	effects := runner.ReviewEffects()

	if err := effects.Skip(context.Background(), review.Entry{Video: video, Language: "en"}); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	skipped, err := runstate.NewStore(cfg.RuntimeStatePath()).IsSkipped(video, "en")
	if err != nil || !skipped {
		t.Fatalf("expected registry entry, got %v (err %v)", skipped, err)
	}

	if err := effects.DeleteVideo(context.Background(), video); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}
	if _, err := os.Stat(video); !os.IsNotExist(err) {
		t.Fatalf("video should be gone, stat err %v", err)
	}
	if err := effects.DeleteVideo(context.Background(), video); err != nil {
		t.Fatalf("deleting a missing video should be a no-op: %v", err)
	}
}

func TestPairForUsesEpisodeInSeriesMode(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithSeriesMode())
	runner, _ := newTestRunner(t, cfg, newLangCatalog(), escalation.ModeFull)

	pair := runner.pairFor(review.Entry{Video: "/tv/Show/Show.s01e02.mkv", Language: "en"})
	if pair.Episode != "S01E02" {
		t.Fatalf("episode = %q", pair.Episode)
	}
	pair = runner.pairFor(review.Entry{Video: "/tv/Show/Show.Special.mkv", Language: "en"})
	if !ledger.IsUnknownEpisode(pair.Episode) || pair.Episode != ledger.EpisodeKey("Show.Special.mkv") {
		t.Fatalf("episode = %q", pair.Episode)
	}
}
