package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"subservient/internal/logging"
	"subservient/internal/services"
)

func TestConsoleLoggerWritesHeaderAndHighlightedFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger = logging.NewComponentLogger(logger, "syncer")
	logger.Info("candidate accepted",
		logging.String(logging.FieldVideo, "/lib/Movie (2001)/Movie.mkv"),
		logging.String(logging.FieldLanguage, "en"),
		logging.Int(logging.FieldSlot, 2),
		logging.String(logging.FieldEventType, "sync_accept"),
	)

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	text := string(content)
	for _, fragment := range []string{"INFO [syncer] Movie.mkv · EN – candidate accepted", "    - event_type: sync_accept", "    - slot: 2"} {
		if !strings.Contains(text, fragment) {
			t.Fatalf("expected %q in output %q", fragment, text)
		}
	}
	if strings.Index(text, "event_type") > strings.Index(text, "slot") {
		t.Fatalf("expected event_type before slot, got %q", text)
	}
	if strings.Contains(text, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", text)
	}
}

func TestJSONLoggerUsesShortKeys(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "json.log")
	logger, err := logging.New(logging.Options{Format: "json", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Debug("scan", logging.Int("entries", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var record map[string]any
	if err := json.Unmarshal(content, &record); err != nil {
		t.Fatalf("unmarshal: %v (%q)", err, content)
	}
	if record["msg"] != "scan" || record["level"] != "debug" {
		t.Fatalf("unexpected record: %v", record)
	}
	if _, ok := record["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", record)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestLevelFiltersDebug(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "level.log")
	logger, err := logging.New(logging.Options{Format: "console", Level: "warn", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	logger.Info("hidden")
	logging.WarnWithContext(logger, "shown", "test_warning")

	content, _ := os.ReadFile(logPath)
	if strings.Contains(string(content), "hidden") {
		t.Fatalf("info line should be filtered: %q", content)
	}
	for _, fragment := range []string{"shown", "event_type: test_warning", "error_hint", "impact"} {
		if !strings.Contains(string(content), fragment) {
			t.Fatalf("expected %q in %q", fragment, content)
		}
	}
}

func TestRunLoggerAppendsToDailyFile(t *testing.T) {
	dir := t.TempDir()
	_, runLog, err := logging.NewRunLogger("info", "json", dir)
	if err != nil {
		t.Fatalf("NewRunLogger: %v", err)
	}
	if runLog != logging.RunLogPath(dir, time.Now()) {
		t.Fatalf("unexpected run log path %q", runLog)
	}
	if err := os.WriteFile(runLog, []byte("previous\n"), 0o644); err != nil {
		t.Fatalf("seed: %v", err)
	}
	logger, _, err := logging.NewRunLogger("info", "json", dir)
	if err != nil {
		t.Fatalf("NewRunLogger: %v", err)
	}
	logger.Info("second run")
	content, _ := os.ReadFile(runLog)
	if !strings.HasPrefix(string(content), "previous\n") || !strings.Contains(string(content), "second run") {
		t.Fatalf("expected appended content, got %q", content)
	}
}

func TestWithContextAddsRunFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	base, err := logging.New(logging.Options{Format: "json", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx := services.WithRunID(context.Background(), "run-1")
	ctx = services.WithLanguage(ctx, "nl")
	logging.WithContext(ctx, base).Info("hello", logging.ErrorCategory(services.Wrap(services.ErrTimeout, "a", "b", "c", errors.New("x"))))

	content, _ := os.ReadFile(logPath)
	for _, fragment := range []string{`"run_id":"run-1"`, `"language":"nl"`, `"error_category":"timeout"`} {
		if !strings.Contains(string(content), fragment) {
			t.Fatalf("expected %s in %s", fragment, content)
		}
	}
}
