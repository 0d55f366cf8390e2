package config

import (
	"fmt"
	"os"
	"strings"

	"subservient/internal/language"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeOpenSubtitles()
	if err := c.normalizeAcquisition(); err != nil {
		return err
	}
	if err := c.normalizeLibrary(); err != nil {
		return err
	}
	c.normalizeSync()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(strings.TrimSpace(c.Paths.StateDir)); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeOpenSubtitles() {
	osub := &c.OpenSubtitles
	osub.APIURL = strings.TrimRight(strings.TrimSpace(osub.APIURL), "/")
	if osub.APIURL == "" {
		osub.APIURL = defaultAPIURL
	}
	osub.APIKey = firstNonEmpty(osub.APIKey, envValue("OPENSUBTITLES_API_KEY"))
	osub.Username = firstNonEmpty(osub.Username, envValue("OPENSUBTITLES_USERNAME"))
	osub.Password = firstNonEmpty(osub.Password, envValue("OPENSUBTITLES_PASSWORD"))
	osub.UserAgent = strings.TrimSpace(osub.UserAgent)
	if osub.UserAgent == "" {
		osub.UserAgent = defaultUserAgent
	}
	if osub.RequestTimeoutSeconds <= 0 {
		osub.RequestTimeoutSeconds = defaultRequestTimeoutSeconds
	}
	if osub.PauseSeconds < 0 {
		osub.PauseSeconds = defaultPauseSeconds
	}
	if osub.MaxRateRetries <= 0 {
		osub.MaxRateRetries = defaultMaxRateRetries
	}
}

func (c *Config) normalizeAcquisition() error {
	langs, err := language.NormalizeList(c.Acquisition.Languages)
	if err != nil {
		return fmt.Errorf("acquisition.languages: %w", err)
	}
	c.Acquisition.Languages = langs

	terms := make([]string, 0, len(c.Acquisition.UnwantedTerms))
	for _, term := range c.Acquisition.UnwantedTerms {
		if trimmed := strings.ToLower(strings.TrimSpace(term)); trimmed != "" {
			terms = append(terms, trimmed)
		}
	}
	c.Acquisition.UnwantedTerms = terms
	return nil
}

func (c *Config) normalizeLibrary() error {
	roots := make([]string, 0, len(c.Library.Roots))
	for _, root := range c.Library.Roots {
		root = strings.TrimSpace(root)
		if root == "" {
			continue
		}
		expanded, err := expandPath(root)
		if err != nil {
			return fmt.Errorf("library.roots: %w", err)
		}
		roots = append(roots, expanded)
	}
	c.Library.Roots = roots

	c.Library.ExtrasFolderName = strings.TrimSpace(c.Library.ExtrasFolderName)
	skip := c.Library.SkipDirs[:0]
	for _, dir := range c.Library.SkipDirs {
		if trimmed := strings.TrimSpace(dir); trimmed != "" {
			skip = append(skip, trimmed)
		}
	}
	c.Library.SkipDirs = skip

	exts := make([]string, 0, len(c.Library.VideoExtensions))
	for _, ext := range c.Library.VideoExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultVideoExtensions...)
	}
	c.Library.VideoExtensions = exts
	return nil
}

func (c *Config) normalizeSync() {
	c.Sync.FFSubsyncBinary = firstNonEmpty(c.Sync.FFSubsyncBinary, defaultFFSubsyncBinary)
	c.Sync.FFprobeBinary = firstNonEmpty(c.Sync.FFprobeBinary, defaultFFprobeBinary)
	if c.Sync.TimeoutSeconds <= 0 {
		c.Sync.TimeoutSeconds = defaultSyncTimeoutSeconds
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
}

func envValue(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			return trimmed
		}
	}
	return ""
}
