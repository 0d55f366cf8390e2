package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable. It runs before any ledger
// mutation; a failure here must abort the process.
func (c *Config) Validate() error {
	if err := c.validateOpenSubtitles(); err != nil {
		return err
	}
	if err := c.validateAcquisition(); err != nil {
		return err
	}
	if err := c.validateSync(); err != nil {
		return err
	}
	if err := c.validateLibrary(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateOpenSubtitles() error {
	missing := make([]string, 0, 3)
	if c.OpenSubtitles.APIKey == "" {
		missing = append(missing, "opensubtitles.api_key (or OPENSUBTITLES_API_KEY)")
	}
	if c.OpenSubtitles.Username == "" {
		missing = append(missing, "opensubtitles.username (or OPENSUBTITLES_USERNAME)")
	}
	if c.OpenSubtitles.Password == "" {
		missing = append(missing, "opensubtitles.password (or OPENSUBTITLES_PASSWORD)")
	}
	if len(missing) > 0 {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("missing required settings: %s. Edit %s (create with 'subservient config init')",
			strings.Join(missing, ", "), defaultPath)
	}
	if !strings.HasPrefix(c.OpenSubtitles.APIURL, "http://") && !strings.HasPrefix(c.OpenSubtitles.APIURL, "https://") {
		return fmt.Errorf("opensubtitles.api_url must be an http(s) URL, got %q", c.OpenSubtitles.APIURL)
	}
	if c.OpenSubtitles.DownloadRetry503 < 1 {
		return errors.New("opensubtitles.download_retry_503 must be at least 1")
	}
	return nil
}

func (c *Config) validateAcquisition() error {
	if len(c.Acquisition.Languages) == 0 {
		return errors.New("acquisition.languages must list at least one language")
	}
	if c.Acquisition.TopDownloads < 1 {
		return errors.New("acquisition.top_downloads must be at least 1")
	}
	if c.Acquisition.MaxSearchResults < 1 || c.Acquisition.MaxSearchResults > MaxSearchResultsCeiling {
		return fmt.Errorf("acquisition.max_search_results must be between 1 and %d", MaxSearchResultsCeiling)
	}
	return nil
}

func (c *Config) validateSync() error {
	accept := c.Sync.AcceptOffsetThreshold
	reject := c.Sync.RejectOffsetThreshold
	if accept < 0 {
		return errors.New("sync.accept_offset_threshold must be >= 0")
	}
	if reject < accept {
		return fmt.Errorf("sync.reject_offset_threshold (%.3f) must be >= sync.accept_offset_threshold (%.3f)", reject, accept)
	}
	return nil
}

func (c *Config) validateLibrary() error {
	if len(c.Library.Roots) == 0 {
		return errors.New("library.roots must list at least one directory")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
