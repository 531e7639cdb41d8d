package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GENIEACS_URL", "MAPPING_FILE", "REQUEST_TIMEOUT", "LOG_LEVEL", "LISTEN_ADDR"} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefaultConfig_Valid(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 10*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 5*time.Second, cfg.GetReadHeaderTimeout())
	assert.Equal(t, 10*time.Second, cfg.GetShutdownTimeout())
}

func TestLoad_NoFile(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoad_File(t *testing.T) {
	clearEnv(t)
	p := writeFile(t, `
listen: 0.0.0.0:9000
mapping_file: /etc/gateway/mapping.yaml
genieacs:
  url: http://acs.internal:7557
  request_timeout: 3s
server:
  batch_concurrency: 8
logging:
  level: debug
  development: true
`)
	cfg, err := Load(p)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "0.0.0.0:9000", cfg.Listen)
	assert.Equal(t, "/etc/gateway/mapping.yaml", cfg.MappingFile)
	assert.Equal(t, "http://acs.internal:7557", cfg.GenieACS.URL)
	assert.Equal(t, 3*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, 8, cfg.Server.BatchConcurrency)
	// Unset keys keep defaults.
	assert.Equal(t, 100, cfg.Server.MaxBatchSize)
	assert.Equal(t, int64(32<<20), cfg.GenieACS.MaxResponseBytes)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)
}

func TestLoad_StrictYAML(t *testing.T) {
	clearEnv(t)
	_, err := Load(writeFile(t, "listen: :8000\nunknown_key: 1\n"))
	assert.Error(t, err)

	_, err = Load(writeFile(t, "listen: :8000\n---\nlisten: :9000\n"))
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoad_EmptyFileKeepsDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(writeFile(t, "# nothing here\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("GENIEACS_URL", "https://acs.example.com:7557")
	t.Setenv("MAPPING_FILE", "/data/map.json")
	t.Setenv("REQUEST_TIMEOUT", "30")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("LISTEN_ADDR", ":8080")

	cfg, err := Load(writeFile(t, "genieacs:\n  url: http://ignored:7557\n"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "https://acs.example.com:7557", cfg.GenieACS.URL)
	assert.Equal(t, "/data/map.json", cfg.MappingFile)
	assert.Equal(t, 30*time.Second, cfg.GetRequestTimeout())
	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, ":8080", cfg.Listen)
}

func TestEnvOverrides_LevelAliases(t *testing.T) {
	tests := map[string]string{
		"WARNING":  "warn",
		"warning":  "warn",
		"CRITICAL": "error",
		"DEBUG":    "debug",
		" Info ":   "info",
	}
	for in, want := range tests {
		t.Run(in, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("LOG_LEVEL", in)

			cfg, err := Load("")
			require.NoError(t, err)
			require.NoError(t, cfg.Validate())
			assert.Equal(t, want, cfg.Logging.Level)
		})
	}

	cfg := DefaultConfig()
	cfg.Logging.Level = "Critical"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "error", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty listen", func(c *Config) { c.Listen = " " }},
		{"empty mapping", func(c *Config) { c.MappingFile = "" }},
		{"relative url", func(c *Config) { c.GenieACS.URL = "acs:7557" }},
		{"bad scheme", func(c *Config) { c.GenieACS.URL = "ftp://acs:7557" }},
		{"bad timeout", func(c *Config) { c.GenieACS.RequestTimeout = "soon" }},
		{"negative timeout", func(c *Config) { c.Server.ShutdownTimeout = "-1s" }},
		{"negative max bytes", func(c *Config) { c.GenieACS.MaxResponseBytes = -1 }},
		{"negative concurrency", func(c *Config) { c.Server.BatchConcurrency = -2 }},
		{"bad level", func(c *Config) { c.Logging.Level = "verbose" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in   string
		want time.Duration
	}{
		{"", 0},
		{"10", 10 * time.Second},
		{"2.5", 2500 * time.Millisecond},
		{"1m30s", 90 * time.Second},
		{" 750ms ", 750 * time.Millisecond},
	}
	for _, tt := range tests {
		got, err := parseDuration(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := parseDuration("later")
	assert.Error(t, err)
}
