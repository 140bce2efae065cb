package config

import (
	"os"
	"path/filepath"
)

// Paths contains standard filesystem paths for modindex.
type Paths struct {
	// ConfigFile is the path to the config file (~/.modindex/config.yaml).
	ConfigFile string

	// CacheDir is the suggested cache directory (~/.modindex/cache).
	// Persistence stays off unless a cache directory is configured.
	CacheDir string

	// HomeDir is the modindex home directory (~/.modindex).
	HomeDir string
}

// DefaultPaths returns the default paths for modindex.
func DefaultPaths() (*Paths, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	home := filepath.Join(homeDir, ".modindex")

	return &Paths{
		ConfigFile: filepath.Join(home, "config.yaml"),
		CacheDir:   filepath.Join(home, "cache"),
		HomeDir:    home,
	}, nil
}

// GetConfigFile returns the config file path.
// If MODINDEX_CONFIG is set, it takes precedence.
func GetConfigFile() (string, error) {
	if envPath := os.Getenv(envPrefix + "_CONFIG"); envPath != "" {
		return envPath, nil
	}

	paths, err := DefaultPaths()
	if err != nil {
		return "", err
	}

	return paths.ConfigFile, nil
}

// ExpandPath expands ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if len(path) == 0 || path[0] != '~' {
		return path, nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}

	if len(path) == 1 {
		return homeDir, nil
	}

	if path[1] == '/' || path[1] == filepath.Separator {
		return filepath.Join(homeDir, path[2:]), nil
	}

	// ~username is not supported
	return path, nil
}
