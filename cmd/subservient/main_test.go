package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"subservient/internal/ledger"
	"subservient/internal/review"
	"subservient/internal/runstate"
	"subservient/internal/syncer"
	"subservient/internal/testsupport"
)

func TestConfigInitAndValidate(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
	requireContains(t, out, env.configPath)

	target := filepath.Join(t.TempDir(), "config.toml")
	out, _, err = runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, "Wrote sample configuration")
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected config file at %s: %v", target, err)
	}

	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected init to refuse overwriting without --overwrite")
	}
}

func TestConfigShowRedactsCredentials(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	requireContains(t, out, "max_search_results = 10")
	requireContains(t, out, "********")
	requireNotContains(t, out, "test-key")
	requireNotContains(t, out, "secret")
}

func TestConfigValidateRejectsBadThresholds(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Sync.AcceptOffsetThreshold = 3
	env.cfg.Sync.RejectOffsetThreshold = 1
	writeTestConfig(t, env.configPath, env.cfg)

	if _, _, err := runCLI(t, []string{"config", "validate"}, env.configPath); err == nil {
		t.Fatal("expected validation error for accept > reject")
	}
}

func TestSkipAddListRemove(t *testing.T) {
	env := setupCLITestEnv(t)
	video := filepath.Join(testsupport.LibraryRoot(env.cfg), "Heat (1995)", "Heat.1995.mkv")

	if _, _, err := runCLI(t, []string{"skip", "add", video, "en", "nl"}, env.configPath); err != nil {
		t.Fatalf("skip add: %v", err)
	}
	out, _, err := runCLI(t, []string{"skip", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("skip list: %v", err)
	}
	requireContains(t, out, video)
	requireContains(t, out, "EN,NL")

	if _, _, err := runCLI(t, []string{"skip", "remove", video, "en"}, env.configPath); err != nil {
		t.Fatalf("skip remove: %v", err)
	}
	store := runstate.NewStore(env.cfg.RuntimeStatePath())
	if skipped, _ := store.IsSkipped(video, "en"); skipped {
		t.Fatal("en should no longer be skipped")
	}
	if skipped, _ := store.IsSkipped(video, "nl"); !skipped {
		t.Fatal("nl should still be skipped")
	}

	out, _, err = runCLI(t, []string{"skip", "remove", filepath.Join(env.baseDir, "other.mkv")}, env.configPath)
	if err != nil {
		t.Fatalf("skip remove unknown: %v", err)
	}
	requireContains(t, out, "was not in the skip registry")
}

func TestOffsetsListDoneAndShift(t *testing.T) {
	env := setupCLITestEnv(t)
	dir := filepath.Join(testsupport.LibraryRoot(env.cfg), "Heat (1995)")
	subtitle := testsupport.WriteSubtitle(t, dir, "Heat.1995.1080p.en.srt", 10*time.Second, "Hello there.")

	queue := review.NewOffsetQueue(env.cfg.OffsetQueuePath())
	if _, err := queue.Record(review.OffsetEntry{
		Title:     "Heat 1995",
		Language:  "en",
		Dir:       dir,
		Video:     "Heat.1995.1080p.mkv",
		Subtitle:  "Heat.1995.1080p.en.srt",
		Offset:    1.25,
		CueTime:   "00:00:10,000",
		FirstLine: "Hello there.",
		Candidate: "30.en.number1.srt",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	out, _, err := runCLI(t, []string{"offsets", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("offsets list: %v", err)
	}
	requireContains(t, out, "Heat 1995")
	requireContains(t, out, "1.250")

	if _, _, err := runCLI(t, []string{"offsets", "shift", "--", subtitle, "-500"}, env.configPath); err != nil {
		t.Fatalf("offsets shift: %v", err)
	}
	data, err := os.ReadFile(subtitle)
	if err != nil {
		t.Fatalf("read shifted: %v", err)
	}
	cue, ok := syncer.FirstCue(syncer.Decode(data))
	if !ok || cue.Start != 9500*time.Millisecond {
		t.Fatalf("first cue after shift = %+v (ok %v)", cue, ok)
	}

	out, _, err = runCLI(t, []string{"offsets", "done", filepath.Join(dir, "Heat.1995.1080p.mkv"), "en"}, env.configPath)
	if err != nil {
		t.Fatalf("offsets done: %v", err)
	}
	requireContains(t, out, "Marked Heat.1995.1080p.mkv [EN]")
	entries, _ := queue.List()
	if len(entries) != 0 {
		t.Fatalf("expected empty offset queue, got %+v", entries)
	}
}

func recordHeatOffset(t *testing.T, env *cliTestEnv, offset float64) (string, string) {
	t.Helper()
	dir := filepath.Join(testsupport.LibraryRoot(env.cfg), "Heat (1995)")
	testsupport.WriteFile(t, filepath.Join(dir, "Heat.1995.1080p.mkv"), 64)
	subtitle := testsupport.WriteSubtitle(t, dir, "Heat.1995.1080p.en.srt", 10*time.Second, "Hello there.")
	if _, err := review.NewOffsetQueue(env.cfg.OffsetQueuePath()).Record(review.OffsetEntry{
		Title:     "Heat 1995",
		Language:  "en",
		Dir:       dir,
		Video:     "Heat.1995.1080p.mkv",
		Subtitle:  "Heat.1995.1080p.en.srt",
		Offset:    offset,
		CueTime:   "00:00:10,000",
		FirstLine: "Hello there.",
		Candidate: "30.en.number1.srt",
	}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	return filepath.Join(dir, "Heat.1995.1080p.mkv"), subtitle
}

func TestOffsetsRestoreUndoesAlignerShift(t *testing.T) {
	env := setupCLITestEnv(t)
	video, subtitle := recordHeatOffset(t, env, -1.25)

	out, _, err := runCLI(t, []string{"offsets", "restore", video, "en"}, env.configPath)
	if err != nil {
		t.Fatalf("offsets restore: %v", err)
	}
	requireContains(t, out, "+1250 ms")
	data, err := os.ReadFile(subtitle)
	if err != nil {
		t.Fatalf("read restored: %v", err)
	}
	cue, ok := syncer.FirstCue(syncer.Decode(data))
	if !ok || cue.Start != 11250*time.Millisecond {
		t.Fatalf("first cue after restore = %+v (ok %v)", cue, ok)
	}
	entries, _ := review.NewOffsetQueue(env.cfg.OffsetQueuePath()).List()
	if len(entries) != 0 {
		t.Fatalf("restore must clear the entry, got %+v", entries)
	}
	if _, _, err := runCLI(t, []string{"offsets", "restore", video, "en"}, env.configPath); err == nil {
		t.Fatal("restoring twice must fail")
	}
}

func TestOffsetsDriftReturnsSubtitleToLedger(t *testing.T) {
	env := setupCLITestEnv(t)
	video, subtitle := recordHeatOffset(t, env, 1.25)

	out, _, err := runCLI(t, []string{"offsets", "drift", video, "en"}, env.configPath)
	if err != nil {
		t.Fatalf("offsets drift: %v", err)
	}
	requireContains(t, out, "30.en.number1.DRIFT.srt")
	if _, err := os.Stat(subtitle); !os.IsNotExist(err) {
		t.Fatalf("canonical subtitle should be gone, stat err %v", err)
	}
	snap, err := ledger.Scan(ledger.Pair{Video: video, Language: "en"})
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if got := snap.InState(ledger.StateDrift); len(got) != 1 || got[0].Popularity != 30 || got[0].Slot != 1 {
		t.Fatalf("drift entries = %+v", snap.Entries)
	}
	entries, _ := review.NewOffsetQueue(env.cfg.OffsetQueuePath()).List()
	if len(entries) != 0 {
		t.Fatalf("drift must clear the entry, got %+v", entries)
	}
}

func TestStatusDerivesPairStates(t *testing.T) {
	env := setupCLITestEnv(t)
	root := testsupport.LibraryRoot(env.cfg)
	resolved := filepath.Join(root, "Heat (1995)", "Heat.1995.mkv")
	pending := filepath.Join(root, "Ronin (1998)", "Ronin.1998.mkv")
	testsupport.WriteFile(t, resolved, 64)
	testsupport.WriteFile(t, pending, 64)
	testsupport.WriteSubtitle(t, filepath.Dir(resolved), ledger.CanonicalName(resolved, "en"), time.Second, "x")
	testsupport.WriteSubtitle(t, filepath.Dir(pending), "40.en.number1.srt", time.Second, "y")
	testsupport.WriteSubtitle(t, filepath.Dir(pending), "30.en.number2.DRIFT.srt", time.Second, "z")

	out, _, err := runCLI(t, []string{"status"}, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "RESOLVED")
	requireContains(t, out, "HAS_UNTESTED")
	requireContains(t, out, "2 pair(s): 1 resolved, 1 with untested candidates")

	out, _, err = runCLI(t, []string{"status", "--pending"}, env.configPath)
	if err != nil {
		t.Fatalf("status --pending: %v", err)
	}
	requireNotContains(t, out, "Heat.1995.mkv")
	requireContains(t, out, "Ronin.1998.mkv")

	// status is read-only: the untested candidate is still there.
	if _, err := os.Stat(filepath.Join(filepath.Dir(pending), "40.en.number1.srt")); err != nil {
		t.Fatalf("status touched the ledger: %v", err)
	}
}

func TestReviewListAndNonInteractiveRefusal(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"review", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("review list: %v", err)
	}
	requireContains(t, out, "Review queue is empty")

	video := filepath.Join(testsupport.LibraryRoot(env.cfg), "Obscure", "Obscure.Film.2003.mkv")
	if _, err := review.NewQueue(env.cfg.ReviewQueuePath()).Enqueue(review.Entry{
		Video: video, Language: "en", Query: "Obscure Film 2003", Reason: review.ReasonExhausted, Attempts: 4,
	}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	out, _, err = runCLI(t, []string{"review", "list"}, env.configPath)
	if err != nil {
		t.Fatalf("review list: %v", err)
	}
	requireContains(t, out, "Obscure.Film.2003.mkv")
	requireContains(t, out, "exhausted")

	_, _, err = runCLI(t, []string{"review"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "interactive terminal") {
		t.Fatalf("expected refusal without a terminal, got %v", err)
	}
}

func TestDoctorOffline(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"doctor", "--offline"}, env.configPath)
	if err != nil {
		t.Fatalf("doctor: %v\n%s", err, out)
	}
	requireContains(t, out, "ffsubsync")
	requireContains(t, out, "Library root")
	requireNotContains(t, out, "FAIL")
}

func TestSyncRefusesToStartWithoutAligner(t *testing.T) {
	env := setupCLITestEnv(t)
	env.cfg.Sync.FFSubsyncBinary = "ffsubsync-missing"
	writeTestConfig(t, env.configPath, env.cfg)

	_, _, err := runCLI(t, []string{"sync"}, env.configPath)
	if err == nil {
		t.Fatal("expected preflight failure")
	}
	requireContains(t, err.Error(), "preflight ffsubsync failed")
	if _, statErr := os.Stat(env.cfg.LockPath()); statErr == nil {
		t.Fatal("expected no lock file before preflight passes")
	}
}

func TestLoadDotEnvDoesNotOverrideEnvironment(t *testing.T) {
	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENSUBTITLES_USERNAME=from-file\nOPENSUBTITLES_PASSWORD=pw-file\n"), 0o600); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	t.Setenv("OPENSUBTITLES_USERNAME", "from-env")
	t.Setenv("OPENSUBTITLES_PASSWORD", "")
	os.Unsetenv("OPENSUBTITLES_PASSWORD")

	if err := loadDotEnv(configPath); err != nil {
		t.Fatalf("loadDotEnv: %v", err)
	}
	if got := os.Getenv("OPENSUBTITLES_USERNAME"); got != "from-env" {
		t.Fatalf("username = %q, environment should win", got)
	}
	if got := os.Getenv("OPENSUBTITLES_PASSWORD"); got != "pw-file" {
		t.Fatalf("password = %q, expected value from .env", got)
	}
}

func TestPromptReviewAppliesDecisions(t *testing.T) {
	dir := t.TempDir()
	queue := review.NewQueue(filepath.Join(dir, "review_queue.toml"))
	for _, e := range []review.Entry{
		{Video: "/lib/A/A.2001.mkv", Language: "en", Query: "A 2001", Reason: review.ReasonExhausted},
		{Video: "/lib/B/B.2002.mkv", Language: "en", Query: "B 2002", Reason: review.ReasonLimitReached},
	} {
		if _, err := queue.Enqueue(e); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	effects := &scriptedEffects{resolve: map[string]bool{"A Space Odyssey": true}}
	session, err := review.NewSession(queue, effects, 10, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// A: manual search that resolves. B: skip permanently, first without
	// confirming, then confirmed.
	input := strings.Join([]string{
		"1", "A Space Odyssey",
		"5", "n",
		"5", "y",
	}, "\n") + "\n"
	var out strings.Builder
	restart, err := promptReview(context.Background(), session, strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("promptReview: %v", err)
	}
	if restart {
		t.Fatal("no limit was raised")
	}
	text := out.String()
	requireContains(t, text, "[1/2] A.2001.mkv [EN]")
	requireContains(t, text, "Resolved")
	requireContains(t, text, "[2/2] B.2002.mkv [EN]")
	requireContains(t, text, "not confirmed; entry kept")

	if len(effects.searches) != 1 || effects.searches[0] != "A Space Odyssey" {
		t.Fatalf("unexpected searches: %v", effects.searches)
	}
	if len(effects.skipped) != 1 || effects.skipped[0] != "/lib/B/B.2002.mkv" {
		t.Fatalf("unexpected skips: %v", effects.skipped)
	}
	entries, _ := queue.List()
	if len(entries) != 0 {
		t.Fatalf("expected an empty queue, got %+v", entries)
	}
}

func TestPromptReviewRaiseLimitRequestsRestart(t *testing.T) {
	queue := review.NewQueue(filepath.Join(t.TempDir(), "review_queue.toml"))
	if _, err := queue.Enqueue(review.Entry{Video: "/lib/A/A.2001.mkv", Language: "en", Reason: review.ReasonLimitReached}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	effects := &scriptedEffects{}
	session, err := review.NewSession(queue, effects, 10, nil)
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}

	// 5 is not above the current limit, 99 is above the ceiling, 20 works.
	input := "3\n5\n3\n99\n3\n20\n"
	var out strings.Builder
	restart, err := promptReview(context.Background(), session, strings.NewReader(input), &out)
	if err != nil {
		t.Fatalf("promptReview: %v", err)
	}
	if !restart {
		t.Fatal("raising the limit should request a restart")
	}
	if len(effects.limits) != 1 || effects.limits[0] != 20 {
		t.Fatalf("unexpected limits: %v", effects.limits)
	}
	if strings.Count(out.String(), "invalid:") != 2 {
		t.Fatalf("expected two rejected limits:\n%s", out.String())
	}
}

type scriptedEffects struct {
	resolve  map[string]bool
	searches []string
	deleted  []string
	limits   []int
	skipped  []string
}

func (s *scriptedEffects) ManualSearch(_ context.Context, _ review.Entry, query string) (bool, error) {
	s.searches = append(s.searches, query)
	return s.resolve[query], nil
}

func (s *scriptedEffects) DeleteVideo(_ context.Context, video string) error {
	s.deleted = append(s.deleted, video)
	return nil
}

func (s *scriptedEffects) RaiseLimit(_ context.Context, _ review.Entry, limit int) error {
	s.limits = append(s.limits, limit)
	return nil
}

func (s *scriptedEffects) Skip(_ context.Context, entry review.Entry) error {
	s.skipped = append(s.skipped, entry.Video)
	return nil
}
