// Package config loads, normalizes, and validates Subservient configuration.
//
// Configuration lives in a TOML file (default ~/.config/subservient/config.toml)
// decoded with go-toml. Load fills in defaults, expands ~ in paths, applies
// environment fallbacks for catalog credentials, and validates thresholds and
// required keys. Any validation failure is fatal before the pipeline touches
// a single subtitle file.
//
// CreateSample writes the embedded sample_config.toml for `subservient config
// init`; SetMaxSearchResults rewrites the one key the review queue is allowed
// to change at runtime.
package config
