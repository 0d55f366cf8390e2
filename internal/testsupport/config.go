package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"subservient/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a valid config whose state, log and library
// directories live under a per-test temp directory.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.OpenSubtitles.APIKey = "test-key"
	cfgVal.OpenSubtitles.Username = "tester"
	cfgVal.OpenSubtitles.Password = "secret"
	cfgVal.Acquisition.Languages = []string{"en"}
	cfgVal.Acquisition.TopDownloads = 3
	cfgVal.Acquisition.MaxSearchResults = 10
	cfgVal.Library.Roots = []string{filepath.Join(base, "library")}
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}
	for _, opt := range opts {
		opt(builder)
	}
	for _, dir := range append([]string{cfgVal.Paths.StateDir, cfgVal.Paths.LogDir}, cfgVal.Library.Roots...) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir %s: %v", dir, err)
		}
	}
	return builder.cfg
}

// WithLanguages overrides the wanted languages.
func WithLanguages(langs ...string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Acquisition.Languages = langs
	}
}

// WithSeriesMode turns on episode-scoped naming.
func WithSeriesMode() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Library.SeriesMode = true
	}
}

// WithLimits sets the batch size and the pool cap.
func WithLimits(topDownloads, maxSearchResults int) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Acquisition.TopDownloads = topDownloads
		b.cfg.Acquisition.MaxSearchResults = maxSearchResults
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, ffsubsync and ffprobe are stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			names = []string{"ffsubsync", "ffprobe"}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// LibraryRoot returns the first library root of a generated config.
func LibraryRoot(cfg *config.Config) string {
	return cfg.Library.Roots[0]
}
