package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaultConfig(t *testing.T) {
	cfg, err := parse(DefaultConfigYAML)
	require.NoError(t, err, "failed to parse default config")

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1:8000", cfg.Addr())
	assert.Equal(t, int64(20<<20), cfg.MaxUploadBytes())
	assert.Equal(t, 10, cfg.Dashboard.DefaultTopN)
	assert.Equal(t, MemoryCache, cfg.Cache.Path)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestParseMinimalConfig(t *testing.T) {
	data := []byte(`
server:
  port: 9000
normalize:
  seed: 42
  timezone: UTC
`)
	cfg, err := parse(data)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, uint64(42), cfg.Normalize.Seed)
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "UTC", loc.String())
	// Defaults should still be set for unspecified fields
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 10, cfg.Dashboard.DefaultTopN)
}

func TestParseRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
		want error
	}{
		{"port", "server:\n  port: 0\n", ErrInvalidPort},
		{"upload", "server:\n  max_upload_mb: 0\n", ErrInvalidUploadLimit},
		{"top_n low", "dashboard:\n  default_top_n: 4\n", ErrInvalidTopN},
		{"top_n high", "dashboard:\n  default_top_n: 51\n", ErrInvalidTopN},
		{"timezone", "normalize:\n  timezone: Mars/Olympus\n", ErrInvalidTimezone},
		{"log level", "logging:\n  level: loud\n", ErrInvalidLogLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parse([]byte(tt.yaml))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, DefaultConfigYAML, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8000, cfg.Server.Port)
}

func TestLoadWithoutFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, MemoryCache, cfg.Cache.Path)
}

func TestResolveConfigPathExplicitMissing(t *testing.T) {
	_, err := ResolveConfigPath(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
