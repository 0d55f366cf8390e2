package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// OpenSubtitles contains credentials and transport settings for the remote
// subtitle catalog.
type OpenSubtitles struct {
	APIURL                string `toml:"api_url"`
	APIKey                string `toml:"api_key"`
	Username              string `toml:"username"`
	Password              string `toml:"password"`
	UserAgent             string `toml:"user_agent"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
	PauseSeconds          int    `toml:"pause_seconds"`
	DownloadRetry503      int    `toml:"download_retry_503"`
	MaxRateRetries        int    `toml:"max_rate_retries"`
}

// Acquisition controls how candidates are searched for and downloaded.
type Acquisition struct {
	Languages        []string `toml:"languages"`
	TopDownloads     int      `toml:"top_downloads"`
	MaxSearchResults int      `toml:"max_search_results"`
	UnwantedTerms    []string `toml:"unwanted_terms"`
}

// Sync controls the alignment tool and the offset classification thresholds.
type Sync struct {
	FFSubsyncBinary       string  `toml:"ffsubsync_binary"`
	FFprobeBinary         string  `toml:"ffprobe_binary"`
	TimeoutSeconds        int     `toml:"timeout_seconds"`
	AcceptOffsetThreshold float64 `toml:"accept_offset_threshold"`
	RejectOffsetThreshold float64 `toml:"reject_offset_threshold"`
	RequireAudio          bool    `toml:"require_audio"`
}

// Library describes where videos live and how folders are interpreted.
type Library struct {
	Roots            []string `toml:"roots"`
	SeriesMode       bool     `toml:"series_mode"`
	ExtrasFolderName string   `toml:"extras_folder_name"`
	SkipDirs         []string `toml:"skip_dirs"`
	VideoExtensions  []string `toml:"video_extensions"`
}

// Paths contains the directories Subservient writes its own state to.
type Paths struct {
	StateDir string `toml:"state_dir"`
	LogDir   string `toml:"log_dir"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
}

// Config encapsulates all configuration values for Subservient.
//
// Configuration sections by subsystem:
//   - OpenSubtitles: catalog credentials, retry ceilings, and pacing
//   - Acquisition: languages, batch size, pool cap, and query deny-list
//   - Sync: alignment tool binaries, timeout, and offset thresholds
//   - Library: video roots, series mode, and folders to ignore
//   - Paths: state and log directories
//   - Logging: log format, level, and retention
type Config struct {
	OpenSubtitles OpenSubtitles `toml:"opensubtitles"`
	Acquisition   Acquisition   `toml:"acquisition"`
	Sync          Sync          `toml:"sync"`
	Library       Library       `toml:"library"`
	Paths         Paths         `toml:"paths"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("subservient.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the state and log directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// RuntimeStatePath is the file holding the cached token and the skip registry.
func (c *Config) RuntimeStatePath() string {
	return filepath.Join(c.Paths.StateDir, "runtime_state.txt")
}

// ReviewQueuePath is the persisted manual review queue.
func (c *Config) ReviewQueuePath() string {
	return filepath.Join(c.Paths.StateDir, "review_queue.toml")
}

// OffsetQueuePath is the tracking file for subtitles accepted with a corrected offset.
func (c *Config) OffsetQueuePath() string {
	return filepath.Join(c.Paths.StateDir, "movies_with_linear_offset.txt")
}

// LockPath is the single-instance lock guarding the library.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "subservient.lock")
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0o600); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
