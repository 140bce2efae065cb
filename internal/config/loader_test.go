package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	oerrors "github.com/modindex/modindex/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoaderLoad(t *testing.T) {
	t.Run("loads config from file", func(t *testing.T) {
		path := writeConfig(t, `
buildPolicy: async
cacheDir: /custom/cache
pattern: "**/*.zip"
watchDebounce: 2s
log:
  timestamps: false
`)
		cfg, err := NewLoader().Load(path)
		require.NoError(t, err)
		assert.Equal(t, "async", cfg.BuildPolicy)
		assert.Equal(t, "/custom/cache", cfg.CacheDir)
		assert.Equal(t, "**/*.zip", cfg.Pattern)
		assert.Equal(t, 2*time.Second, cfg.WatchDebounce)
		require.NotNil(t, cfg.Log.Timestamps)
		assert.False(t, *cfg.Log.Timestamps)
	})

	t.Run("returns empty config for missing file", func(t *testing.T) {
		cfg, err := NewLoader().Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
		require.NoError(t, err)
		assert.Empty(t, cfg.BuildPolicy)
		assert.Empty(t, cfg.CacheDir)
	})

	t.Run("env vars do not leak into file config", func(t *testing.T) {
		t.Setenv("MODINDEX_BUILD_POLICY", "async")
		cfg, err := NewLoader().Load(writeConfig(t, ""))
		require.NoError(t, err)
		assert.Empty(t, cfg.BuildPolicy)
	})

	t.Run("rejects invalid values", func(t *testing.T) {
		tests := map[string]string{
			"policy":   "buildPolicy: sometimes\n",
			"unknown":  "kubeconfig: /tmp/kube\n",
			"pattern":  "pattern: \"[oops\"\n",
			"debounce": "watchDebounce: soon\n",
		}
		for name, content := range tests {
			t.Run(name, func(t *testing.T) {
				_, err := NewLoader().Load(writeConfig(t, content))
				require.Error(t, err)
				assert.ErrorIs(t, err, oerrors.ErrInvalidConfig)
			})
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := NewLoader().Load(writeConfig(t, "buildPolicy: [\n"))
		assert.Error(t, err)
	})
}

func TestLoaderEnv(t *testing.T) {
	t.Setenv("MODINDEX_CACHE_DIR", "/env/cache")
	l := NewLoader()

	v, ok := l.Env(KeyCacheDir)
	assert.True(t, ok)
	assert.Equal(t, "/env/cache", v)

	_, ok = l.Env(KeyPattern)
	assert.False(t, ok)
}

func TestConfigFileExists(t *testing.T) {
	exists, err := ConfigFileExists(writeConfig(t, "pattern: x\n"))
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = ConfigFileExists(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.False(t, exists)
}
