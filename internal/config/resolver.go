package config

import (
	"fmt"
	"os"
	"time"

	"github.com/modindex/modindex/internal/output"
)

// ConfigSource indicates where a configuration value came from.
type ConfigSource string

const (
	// SourceFlag indicates value came from command-line flag.
	SourceFlag ConfigSource = "flag"
	// SourceEnv indicates value came from environment variable.
	SourceEnv ConfigSource = "env"
	// SourceConfig indicates value came from config file.
	SourceConfig ConfigSource = "config"
	// SourceDefault indicates value is the built-in default.
	SourceDefault ConfigSource = "default"
)

// ResolvedValue records how one setting was resolved.
type ResolvedValue struct {
	Key    string
	Value  string
	Source ConfigSource
	// Shadowed contains values that were overridden by higher precedence.
	Shadowed map[ConfigSource]string
}

// Flags holds setting values given on the command line. Empty means unset.
type Flags struct {
	BuildPolicy   string
	CacheDir      string
	Pattern       string
	WatchDebounce string
}

// Settings are the effective settings after resolution.
type Settings struct {
	BuildPolicy   string
	CacheDir      string
	Pattern       string
	WatchDebounce time.Duration
	Timestamps    *bool
}

// Resolve layers flags, environment, config file and defaults, in that
// order of precedence, and validates the result.
func Resolve(l *Loader, file *Config, flags Flags) (*Settings, []ResolvedValue, error) {
	if file == nil {
		file = &Config{}
	}
	debounce := ""
	if file.WatchDebounce > 0 {
		debounce = file.WatchDebounce.String()
	}

	values := []ResolvedValue{
		resolveValue(l, KeyBuildPolicy, flags.BuildPolicy, file.BuildPolicy, DefaultBuildPolicy),
		resolveValue(l, KeyCacheDir, flags.CacheDir, file.CacheDir, ""),
		resolveValue(l, KeyPattern, flags.Pattern, file.Pattern, DefaultPattern),
		resolveValue(l, KeyWatchDebounce, flags.WatchDebounce, debounce, DefaultWatchDebounce.String()),
	}

	d, err := time.ParseDuration(values[3].Value)
	if err != nil || d <= 0 {
		return nil, values, ValidationErrors{{
			Field:   KeyWatchDebounce,
			Message: fmt.Sprintf("%q from %s is not a positive duration", values[3].Value, values[3].Source),
		}}
	}

	cacheDir, err := ExpandPath(values[1].Value)
	if err != nil {
		return nil, values, fmt.Errorf("expanding cache dir: %w", err)
	}

	s := &Settings{
		BuildPolicy:   values[0].Value,
		CacheDir:      cacheDir,
		Pattern:       values[2].Value,
		WatchDebounce: d,
		Timestamps:    file.Log.Timestamps,
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, values, err
	}
	if err := validator.Validate(&Config{
		BuildPolicy:   s.BuildPolicy,
		CacheDir:      s.CacheDir,
		Pattern:       s.Pattern,
		WatchDebounce: s.WatchDebounce,
	}); err != nil {
		return nil, values, err
	}
	return s, values, nil
}

// resolveValue resolves one key using precedence: flag > env > config > default.
func resolveValue(l *Loader, key, flagValue, configValue, defaultValue string) ResolvedValue {
	result := ResolvedValue{Key: key, Shadowed: make(map[ConfigSource]string)}
	envValue, _ := l.Env(key)

	candidates := []struct {
		source ConfigSource
		value  string
	}{
		{SourceFlag, flagValue},
		{SourceEnv, envValue},
		{SourceConfig, configValue},
		{SourceDefault, defaultValue},
	}
	for _, c := range candidates {
		if c.value == "" {
			continue
		}
		if result.Source == "" {
			result.Value = c.value
			result.Source = c.source
			continue
		}
		if c.source != SourceDefault {
			result.Shadowed[c.source] = c.value
		}
	}
	if result.Source == "" {
		result.Source = SourceDefault
	}
	return result
}

// ResolveConfigPathResult contains the resolved config path and its source.
type ResolveConfigPathResult struct {
	// ConfigPath is the resolved config file path.
	ConfigPath string
	// Source indicates where the config path came from.
	Source ConfigSource
	// Shadowed contains values that were overridden by higher precedence.
	Shadowed map[ConfigSource]string
}

// ResolveConfigPath resolves the config file path using precedence:
// (1) --config flag, (2) MODINDEX_CONFIG env, (3) ~/.modindex/config.yaml
func ResolveConfigPath(flagValue string) (ResolveConfigPathResult, error) {
	result := ResolveConfigPathResult{
		Shadowed: make(map[ConfigSource]string),
	}

	envValue := os.Getenv(envPrefix + "_CONFIG")

	paths, err := DefaultPaths()
	if err != nil {
		return result, err
	}
	defaultPath := paths.ConfigFile

	switch {
	case flagValue != "":
		result.ConfigPath = flagValue
		result.Source = SourceFlag
		if envValue != "" {
			result.Shadowed[SourceEnv] = envValue
		}
		result.Shadowed[SourceDefault] = defaultPath
	case envValue != "":
		result.ConfigPath = envValue
		result.Source = SourceEnv
		result.Shadowed[SourceDefault] = defaultPath
	default:
		result.ConfigPath = defaultPath
		result.Source = SourceDefault
	}

	return result, nil
}

// LogResolvedValues logs configuration resolution at DEBUG level.
func LogResolvedValues(values []ResolvedValue) {
	for _, v := range values {
		output.Debug("config value resolved",
			"key", v.Key,
			"value", v.Value,
			"source", v.Source,
		)
		for source, shadowed := range v.Shadowed {
			output.Debug("  shadowed by higher precedence",
				"key", v.Key,
				"shadowed_source", source,
				"shadowed_value", shadowed,
			)
		}
	}
}
