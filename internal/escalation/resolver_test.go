package escalation

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"subservient/internal/acquire"
	"subservient/internal/ledger"
	"subservient/internal/review"
	"subservient/internal/search"
	"subservient/internal/syncer"
	"subservient/internal/testsupport"
)

type fakeCatalog struct {
	results map[string][]search.Candidate
	calls   []string
}

func (f *fakeCatalog) Search(_ context.Context, query, _ string) ([]search.Candidate, error) {
	f.calls = append(f.calls, query)
	return f.results[query], nil
}

type fakeFetcher struct {
	fail  bool
	calls []int64
}

func (f *fakeFetcher) Download(_ context.Context, fileID int64) ([]byte, error) {
	f.calls = append(f.calls, fileID)
	if f.fail {
		return nil, errors.New("catalog returned 410")
	}
	return testsupport.SRT(10*time.Second, fmt.Sprintf("pop %d", fileID)), nil
}

// popularityAligner shifts each candidate by the offset configured for its
// popularity; unknown candidates drift by five seconds.
type popularityAligner struct {
	accept map[int64]bool
	calls  int
}

func (a *popularityAligner) Align(_ context.Context, _ string, subtitle, output string) error {
	a.calls++
	prefix, _, _ := strings.Cut(filepath.Base(subtitle), ".")
	pop, _ := strconv.ParseInt(prefix, 10, 64)
	shift := 5 * time.Second
	if a.accept[pop] {
		shift = 0
	}
	data, err := os.ReadFile(subtitle)
	if err != nil {
		return err
	}
	return os.WriteFile(output, []byte(syncer.Shift(syncer.Decode(data), -shift)), 0o644)
}

type fixedProber bool

func (p fixedProber) HasAudio(context.Context, string) (bool, error) {
	return bool(p), nil
}

type harness struct {
	pair    ledger.Pair
	catalog *fakeCatalog
	fetcher *fakeFetcher
	aligner *popularityAligner
	queue   *review.Queue
	prober  AudioProber
}

func newHarness(t *testing.T, files ...string) *harness {
	t.Helper()
	dir := t.TempDir()
	video := filepath.Join(dir, "Heat.1995.1080p.mkv")
	testsupport.WriteFile(t, video, 64)
	for _, name := range files {
		testsupport.WriteSubtitle(t, dir, name, 10*time.Second, name)
	}
	return &harness{
		pair:    ledger.Pair{Video: video, Language: "en"},
		catalog: &fakeCatalog{results: map[string][]search.Candidate{}},
		fetcher: &fakeFetcher{},
		aligner: &popularityAligner{accept: map[int64]bool{}},
		queue:   review.NewQueue(filepath.Join(t.TempDir(), "review_queue.toml")),
	}
}

func (h *harness) offer(query string, pops ...int64) {
	for _, p := range pops {
		h.catalog.results[query] = append(h.catalog.results[query], search.Candidate{
			FileID:     p,
			FileName:   fmt.Sprintf("Heat.1995.BluRay.%d.srt", p),
			Language:   "en",
			Popularity: p,
		})
	}
}

func (h *harness) resolver(settings Settings) *Resolver {
	return NewResolver(Dependencies{
		Searcher:     search.NewEngine(h.catalog, nil),
		Downloader:   acquire.NewExecutor(h.fetcher, nil),
		Synchronizer: syncer.NewEngine(h.aligner, syncer.Thresholds{Accept: 0.05, Reject: 2.5}, nil, nil),
		Queue:        h.queue,
		Prober:       h.prober,
		Builder:      search.NewBuilder([]string{"1080p", "bluray"}),
	}, settings, nil)
}

func (h *harness) files(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(h.pair.Dir())
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func full(top, max int) Settings {
	return Settings{TopDownloads: top, MaxResults: max, Mode: ModeFull}
}

func TestResolveAcceptsSecondSlotAndCleansUp(t *testing.T) {
	h := newHarness(t)
	h.offer("Heat 1995", 500, 400, 300, 200, 100)
	h.aligner.accept[400] = true

	out, err := h.resolver(full(3, 10)).Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Final != StateResolved || out.Downloaded != 3 || out.Tested != 2 || out.Rejected != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !reflect.DeepEqual(h.fetcher.calls, []int64{500, 400, 300}) {
		t.Fatalf("fetched %v", h.fetcher.calls)
	}
	want := []string{"Heat.1995.1080p.en.srt", "Heat.1995.1080p.mkv"}
	if got := h.files(t); !reflect.DeepEqual(got, want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
}

func TestResolveBackfillsAfterRejectedBatch(t *testing.T) {
	h := newHarness(t)
	h.offer("Heat 1995", 500, 400, 300, 200, 100)
	h.aligner.accept[200] = true

	out, err := h.resolver(full(3, 10)).Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Final != StateResolved {
		t.Fatalf("final = %s", out.Final)
	}
	if !reflect.DeepEqual(h.fetcher.calls, []int64{500, 400, 300, 200, 100}) {
		t.Fatalf("candidates must never be fetched twice: %v", h.fetcher.calls)
	}
	data, err := os.ReadFile(h.pair.CanonicalPath())
	if err != nil {
		t.Fatalf("read canonical: %v", err)
	}
	if !strings.Contains(string(data), "pop 200") {
		t.Fatalf("canonical came from the wrong candidate:\n%s", data)
	}
}

func TestAcquireSkipsJudgedPopularityAndBackfillsSlots(t *testing.T) {
	h := newHarness(t, "500.en.number1.DRIFT.srt", "400.en.number2.DRIFT.srt", "300.en.number3.FAILED.srt")
	h.offer("Heat 1995", 500, 400, 300, 200, 100)

	out, err := h.resolver(Settings{TopDownloads: 3, MaxResults: 10, Mode: ModeAcquire}).
		Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Final != StateHasUntested || out.Downloaded != 2 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if h.aligner.calls != 0 {
		t.Fatal("acquire mode must not align")
	}
	want := []string{
		"100.en.number5.srt",
		"200.en.number4.srt",
		"300.en.number3.DRIFT.srt",
		"400.en.number2.DRIFT.srt",
		"500.en.number1.DRIFT.srt",
		"Heat.1995.1080p.mkv",
	}
	if got := h.files(t); !reflect.DeepEqual(got, want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
}

func TestExhaustedPairIsQueuedOnce(t *testing.T) {
	h := newHarness(t, "7.en.number1.DRIFT.srt")
	h.offer("Heat 1995", 7)
	h.offer("Heat", 7)
	r := h.resolver(full(3, 10))

	out, err := r.Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Final != StateExhausted || out.Reason != review.ReasonExhausted || !out.Queued {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := h.files(t); !reflect.DeepEqual(got, []string{"7.en.number1.FAILED.srt", "Heat.1995.1080p.mkv"}) {
		t.Fatalf("drift entries must be marked failed: %v", got)
	}
	searches := len(h.catalog.calls)

	for i := 0; i < 2; i++ {
		again, err := h.resolver(full(3, 10)).Resolve(context.Background(), h.pair, Options{})
		if err != nil {
			t.Fatalf("re-run: %v", err)
		}
		if again.Initial != StateExhausted || again.Final != StateExhausted {
			t.Fatalf("re-run outcome %+v", again)
		}
	}
	if len(h.catalog.calls) != searches {
		t.Fatalf("exhausted pair searched again: %v", h.catalog.calls)
	}
	entries, err := h.queue.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 || entries[0].Query != "Heat 1995" || entries[0].Limit != 10 {
		t.Fatalf("queue = %+v", entries)
	}
}

func TestPoolCapRoutesToRaiseLimitReview(t *testing.T) {
	h := newHarness(t, "3.en.number1.DRIFT.srt", "2.en.number2.DRIFT.srt", "1.en.number3.DRIFT.srt")
	h.offer("Heat 1995", 50)

	out, err := h.resolver(full(3, 3)).Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Final != StateExhausted || out.Reason != review.ReasonLimitReached {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(h.catalog.calls) != 0 {
		t.Fatalf("pool cap must not walk the ladder: %v", h.catalog.calls)
	}
	if len(h.files(t)) != 4 || h.files(t)[0] != "1.en.number3.DRIFT.srt" {
		t.Fatalf("limit reached must leave DRIFT entries alone: %v", h.files(t))
	}

	h.aligner.accept[50] = true
	out, err = h.resolver(full(3, 5)).Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve after raise: %v", err)
	}
	if out.Initial != StateNeedsSubtitle || out.Final != StateResolved {
		t.Fatalf("raised limit should put the pair back to work: %+v", out)
	}
	if ok, _ := h.queue.Contains(h.pair.Video, "en"); ok {
		t.Fatal("resolved pair must leave the review queue")
	}
}

func TestDownloadFailuresDeferInsteadOfQueueing(t *testing.T) {
	h := newHarness(t)
	h.offer("Heat 1995", 500, 400)
	h.fetcher.fail = true

	out, err := h.resolver(full(3, 10)).Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !out.Deferred || out.Queued || out.Final != StateNeedsSubtitle {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !reflect.DeepEqual(h.fetcher.calls, []int64{500, 400}) {
		t.Fatalf("failed candidates must not be retried within the pass: %v", h.fetcher.calls)
	}
	if got := h.files(t); !reflect.DeepEqual(got, []string{"Heat.1995.1080p.mkv"}) {
		t.Fatalf("failed downloads must leave nothing behind: %v", got)
	}
}

func TestSilentVideoSkipsSynchronization(t *testing.T) {
	h := newHarness(t, "500.en.number1.srt")
	h.prober = fixedProber(false)

	out, err := h.resolver(full(3, 10)).Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !out.NoAudio || out.Final != StateHasUntested || h.aligner.calls != 0 {
		t.Fatalf("unexpected outcome %+v (aligner calls %d)", out, h.aligner.calls)
	}
	if len(h.catalog.calls) != 0 {
		t.Fatal("silent video must not trigger a search")
	}
}

func TestSyncModeNeverSearches(t *testing.T) {
	h := newHarness(t, "500.en.number1.srt")
	out, err := h.resolver(Settings{TopDownloads: 3, MaxResults: 10, Mode: ModeSync}).
		Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Final != StateNeedsSubtitle || out.Rejected != 1 || len(h.catalog.calls) != 0 {
		t.Fatalf("unexpected outcome %+v, searches %v", out, h.catalog.calls)
	}
}

func TestResolvedPairCleansLeftoversAndDequeues(t *testing.T) {
	h := newHarness(t, "Heat.1995.1080p.en.srt", "9.en.number1.DRIFT.srt", "8.en.number2.srt")
	if _, err := h.queue.Enqueue(review.Entry{Video: h.pair.Video, Language: "en", Limit: 10}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	out, err := h.resolver(full(3, 10)).Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Initial != StateResolved || out.Final != StateResolved {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if got := h.files(t); !reflect.DeepEqual(got, []string{"Heat.1995.1080p.en.srt", "Heat.1995.1080p.mkv"}) {
		t.Fatalf("leftovers not cleaned: %v", got)
	}
	if ok, _ := h.queue.Contains(h.pair.Video, "en"); ok {
		t.Fatal("moot review entry must be removed")
	}
}

func TestManualQueryReopensExhaustedPair(t *testing.T) {
	h := newHarness(t, "7.en.number1.FAILED.srt")
	if _, err := h.queue.Enqueue(review.Entry{Video: h.pair.Video, Language: "en", Query: "Heat 1995", Reason: review.ReasonExhausted, Limit: 10}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.catalog.results["Heat Pacino"] = []search.Candidate{{FileID: 50, FileName: "heat.pacino.de.niro.srt", Popularity: 50}}
	h.aligner.accept[50] = true

	out, err := h.resolver(full(3, 10)).Resolve(context.Background(), h.pair, Options{Query: "  Heat   Pacino "})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Initial != StateExhausted || out.Final != StateResolved || out.Query != "Heat Pacino" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if h.catalog.calls[0] != "Heat Pacino" {
		t.Fatalf("manual query not used: %v", h.catalog.calls)
	}
	if ok, _ := h.queue.Contains(h.pair.Video, "en"); ok {
		t.Fatal("resolved pair must leave the review queue")
	}
}

func TestManualQueryLiftsPoolCap(t *testing.T) {
	h := newHarness(t, "3.en.number1.DRIFT.srt", "2.en.number2.DRIFT.srt", "1.en.number3.DRIFT.srt")
	if _, err := h.queue.Enqueue(review.Entry{Video: h.pair.Video, Language: "en", Query: "Heat 1995", Reason: review.ReasonLimitReached, Attempts: 3, Limit: 3}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	h.offer("Heat Pacino", 50)
	h.aligner.accept[50] = true

	out, err := h.resolver(full(3, 3)).Resolve(context.Background(), h.pair, Options{Query: "Heat Pacino"})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Initial != StateExhausted || out.Final != StateResolved || out.Downloaded != 1 {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if len(h.catalog.calls) == 0 || h.catalog.calls[0] != "Heat Pacino" {
		t.Fatalf("manual query never reached the catalog: %v", h.catalog.calls)
	}
	if !reflect.DeepEqual(h.fetcher.calls, []int64{50}) {
		t.Fatalf("fetched %v", h.fetcher.calls)
	}
	want := []string{"Heat.1995.1080p.en.srt", "Heat.1995.1080p.mkv"}
	if got := h.files(t); !reflect.DeepEqual(got, want) {
		t.Fatalf("files = %v, want %v", got, want)
	}
	if ok, _ := h.queue.Contains(h.pair.Video, "en"); ok {
		t.Fatal("resolved pair must leave the review queue")
	}
}

func TestLastResortFindsReleaseNameMatch(t *testing.T) {
	h := newHarness(t)
	h.offer("Heat 1995 1080p", 70)
	h.aligner.accept[70] = true

	out, err := h.resolver(full(3, 10)).Resolve(context.Background(), h.pair, Options{})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if out.Final != StateResolved || out.Rung != search.RungLastResort {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if !reflect.DeepEqual(h.fetcher.calls, []int64{70}) {
		t.Fatalf("fetched %v", h.fetcher.calls)
	}
}
