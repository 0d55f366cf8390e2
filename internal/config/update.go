package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"

	"subservient/internal/fileutil"
)

// SetMaxSearchResults persists a new acquisition.max_search_results value in
// the config file at path. Other keys are preserved; comments are not.
func SetMaxSearchResults(path string, limit int) error {
	if limit < 1 || limit > MaxSearchResultsCeiling {
		return fmt.Errorf("max_search_results must be between 1 and %d", MaxSearchResultsCeiling)
	}
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, &doc); err != nil {
			return fmt.Errorf("parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return fmt.Errorf("read config: %w", err)
	}

	section, _ := doc["acquisition"].(map[string]any)
	if section == nil {
		section = map[string]any{}
	}
	section["max_search_results"] = int64(limit)
	doc["acquisition"] = section

	out, err := toml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, out, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
