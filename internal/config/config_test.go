package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, Validate(cfg))

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "https://openfiles.izmir.bel.tr/211488/docs/eshot-otobus-duraklari.csv", cfg.Feed.StopsURL)
	assert.Equal(t, 15*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, 0.005, cfg.Cluster.BaseSize)
	assert.Equal(t, 20.0, cfg.Cluster.ReferenceZoom)
	assert.Equal(t, 5*time.Second, cfg.Cache.BusTTL)
	assert.False(t, cfg.Redis.Enabled)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Feed, cfg.Feed)
}

func TestLoadYAMLOverlaysDefaults(t *testing.T) {
	path := writeFile(t, `
server:
  port: 9090
feed:
  timeout: 30s
cluster:
  baseSize: 0.01
log:
  format: text
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, 0.01, cfg.Cluster.BaseSize)
	assert.Equal(t, 20.0, cfg.Cluster.ReferenceZoom, "unset keys keep defaults")
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, Default().Feed.StopsURL, cfg.Feed.StopsURL)
}

func TestLoadEnvOverridesYAML(t *testing.T) {
	path := writeFile(t, "server:\n  port: 9090\n")
	dir := t.TempDir()

	t.Setenv("API_PORT", "7070")
	t.Setenv("ESHOT_STOPS_URL", "http://localhost:8000/stops.csv")
	t.Setenv("ESHOT_TIMEOUT", "2s")
	t.Setenv("CACHE_DIR", dir)
	t.Setenv("CLUSTER_REFERENCE_ZOOM", "18")
	t.Setenv("BUS_CACHE_TTL", "1s")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6380")
	t.Setenv("RATE_LIMIT_PER_SECOND", "3")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "http://localhost:8000/stops.csv", cfg.Feed.StopsURL)
	assert.Equal(t, 2*time.Second, cfg.Feed.Timeout)
	assert.Equal(t, dir, cfg.Cache.Dir)
	assert.Equal(t, 18.0, cfg.Cluster.ReferenceZoom)
	assert.Equal(t, time.Second, cfg.Cache.BusTTL)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "redis", cfg.Redis.Host)
	assert.Equal(t, 6380, cfg.Redis.Port)
	assert.Equal(t, 3, cfg.RateLimit.PerSecond)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsBadEnv(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"API_PORT", "eighty"},
		{"ESHOT_TIMEOUT", "15"},
		{"CLUSTER_BASE_SIZE", "small"},
		{"REDIS_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load("")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "Bad URL", yaml: "feed:\n  linesURL: not a url\n"},
		{name: "Zero base size", yaml: "cluster:\n  baseSize: 0\n"},
		{name: "Negative zoom", yaml: "cluster:\n  referenceZoom: -1\n"},
		{name: "Port out of range", yaml: "server:\n  port: 70000\n"},
		{name: "Unknown log format", yaml: "log:\n  format: xml\n"},
		{name: "Redis enabled without host", yaml: "redis:\n  enabled: true\n  host: \"\"\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid configuration")
		})
	}
}

func TestLoadRejectsMalformedYAML(t *testing.T) {
	_, err := Load(writeFile(t, "server: [unterminated"))
	assert.ErrorContains(t, err, "failed to parse")
}
