package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// Environment variable prefix for modindex configuration.
const envPrefix = "MODINDEX"

// envKeys maps setting keys to their environment variables.
var envKeys = map[string]string{
	KeyBuildPolicy:   envPrefix + "_BUILD_POLICY",
	KeyCacheDir:      envPrefix + "_CACHE_DIR",
	KeyPattern:       envPrefix + "_PATTERN",
	KeyWatchDebounce: envPrefix + "_WATCH_DEBOUNCE",
}

// Loader reads the config file and the MODINDEX_* environment. The two are
// kept apart so the resolver can report where each value came from.
type Loader struct {
	file *viper.Viper
	env  *viper.Viper
}

// NewLoader creates a new configuration loader.
func NewLoader() *Loader {
	env := viper.New()
	env.SetEnvPrefix(envPrefix)
	env.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	for key, name := range envKeys {
		_ = env.BindEnv(key, name)
	}

	return &Loader{file: viper.New(), env: env}
}

// Load reads the config file at configFile, or the default config file when
// empty. A missing file yields an empty Config. The file is validated
// against the config schema.
func (l *Loader) Load(configFile string) (*Config, error) {
	if configFile == "" {
		var err error
		configFile, err = GetConfigFile()
		if err != nil {
			return nil, fmt.Errorf("getting config file path: %w", err)
		}
	}

	expandedPath, err := ExpandPath(configFile)
	if err != nil {
		return nil, fmt.Errorf("expanding config path: %w", err)
	}

	l.file.SetConfigFile(expandedPath)
	l.file.SetConfigType("yaml")

	if err := l.file.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !os.IsNotExist(err) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Missing file: env vars and defaults only
	}

	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	if err := validator.ValidateSettings(l.file.AllSettings()); err != nil {
		return nil, err
	}

	var cfg Config
	if err := l.file.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// Env returns the environment value of a setting key.
func (l *Loader) Env(key string) (string, bool) {
	if !l.env.IsSet(key) {
		return "", false
	}
	v := l.env.GetString(key)
	return v, v != ""
}

// ConfigFileExists checks if the config file exists.
func ConfigFileExists(configFile string) (bool, error) {
	if configFile == "" {
		var err error
		configFile, err = GetConfigFile()
		if err != nil {
			return false, err
		}
	}

	expandedPath, err := ExpandPath(configFile)
	if err != nil {
		return false, err
	}

	_, err = os.Stat(expandedPath)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}
