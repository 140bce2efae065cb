// Package config provides configuration loading and management.
package config

import (
	"time"
)

// Keys of the settings, as written in the config file.
const (
	KeyBuildPolicy   = "buildPolicy"
	KeyCacheDir      = "cacheDir"
	KeyPattern       = "pattern"
	KeyWatchDebounce = "watchDebounce"
)

// Defaults.
const (
	DefaultBuildPolicy   = "sync"
	DefaultPattern       = "**/*.modpkg"
	DefaultWatchDebounce = 500 * time.Millisecond
)

// LogConfig contains logging-related settings.
type LogConfig struct {
	// Timestamps controls whether timestamps are shown in log output.
	// Default: true. Override with --timestamps flag.
	Timestamps *bool `mapstructure:"timestamps" json:"timestamps,omitempty"`
}

// Config represents the modindex configuration file (~/.modindex/config.yaml).
// Every field is optional.
type Config struct {
	// BuildPolicy is "sync" or "async".
	// Env: MODINDEX_BUILD_POLICY, Default: sync
	BuildPolicy string `mapstructure:"buildPolicy" json:"buildPolicy,omitempty"`

	// CacheDir is where index documents are persisted. Empty disables
	// persistence: every build is a full in-memory scan.
	// Env: MODINDEX_CACHE_DIR
	CacheDir string `mapstructure:"cacheDir" json:"cacheDir,omitempty"`

	// Pattern selects module files relative to a repository directory.
	// Env: MODINDEX_PATTERN, Default: **/*.modpkg
	Pattern string `mapstructure:"pattern" json:"pattern,omitempty"`

	// WatchDebounce is the quiet period before watch mode rebuilds.
	// Env: MODINDEX_WATCH_DEBOUNCE, Default: 500ms
	WatchDebounce time.Duration `mapstructure:"watchDebounce" json:"watchDebounce,omitempty"`

	// Log contains logging-related settings.
	Log LogConfig `mapstructure:"log" json:"log,omitempty"`
}

// DefaultConfig returns a Config with all default values populated.
func DefaultConfig() *Config {
	return &Config{
		BuildPolicy:   DefaultBuildPolicy,
		Pattern:       DefaultPattern,
		WatchDebounce: DefaultWatchDebounce,
	}
}

// WithDefaults returns a copy of c with unset fields defaulted.
func (c *Config) WithDefaults() *Config {
	out := *c
	if out.BuildPolicy == "" {
		out.BuildPolicy = DefaultBuildPolicy
	}
	if out.Pattern == "" {
		out.Pattern = DefaultPattern
	}
	if out.WatchDebounce <= 0 {
		out.WatchDebounce = DefaultWatchDebounce
	}
	return &out
}
