// Package config loads gateway settings from an optional YAML file and the
// environment.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds all gateway settings. Durations are Go duration strings
// ("10s", "1m30s"); use the getters for parsed values.
type Config struct {
	// Listen is the HTTP listen address.
	Listen string `yaml:"listen"`

	// MappingFile is the parameter dictionary (JSON or YAML).
	MappingFile string `yaml:"mapping_file"`

	GenieACS GenieACSConfig `yaml:"genieacs"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// GenieACSConfig configures the upstream NBI.
type GenieACSConfig struct {
	URL              string `yaml:"url"`
	RequestTimeout   string `yaml:"request_timeout"`
	MaxResponseBytes int64  `yaml:"max_response_bytes"`
}

type ServerConfig struct {
	ReadHeaderTimeout string `yaml:"read_header_timeout"`
	ShutdownTimeout   string `yaml:"shutdown_timeout"`
	BatchConcurrency  int    `yaml:"batch_concurrency"`
	MaxBatchSize      int    `yaml:"max_batch_size"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"` // debug, info, warn, error
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Listen:      "127.0.0.1:8000",
		MappingFile: "mapping.json",
		GenieACS: GenieACSConfig{
			URL:              "http://127.0.0.1:7557",
			RequestTimeout:   "10s",
			MaxResponseBytes: 32 << 20,
		},
		Server: ServerConfig{
			ReadHeaderTimeout: "5s",
			ShutdownTimeout:   "10s",
			BatchConcurrency:  4,
			MaxBatchSize:      100,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := decodeStrict(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func decodeStrict(data []byte, out *Config) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}

	var extra any
	if err := dec.Decode(&extra); err == nil {
		return errors.New("multiple YAML documents are not allowed")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnvOverrides applies GENIEACS_URL, MAPPING_FILE, REQUEST_TIMEOUT,
// LOG_LEVEL and LISTEN_ADDR. Empty variables are ignored.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GENIEACS_URL"); v != "" {
		c.GenieACS.URL = v
	}
	if v := os.Getenv("MAPPING_FILE"); v != "" {
		c.MappingFile = v
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		c.GenieACS.RequestTimeout = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = NormalizeLevel(v)
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.Listen = v
	}
}

// GetRequestTimeout returns the per-request upstream timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := parseDuration(c.GenieACS.RequestTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

func (c *Config) GetReadHeaderTimeout() time.Duration {
	d, err := parseDuration(c.Server.ReadHeaderTimeout)
	if err != nil || d <= 0 {
		return 5 * time.Second
	}
	return d
}

func (c *Config) GetShutdownTimeout() time.Duration {
	d, err := parseDuration(c.Server.ShutdownTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// Validate reports the first invalid setting. It rewrites logging.level to
// its canonical zap name.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Listen) == "" {
		return errors.New("listen address is required")
	}
	if strings.TrimSpace(c.MappingFile) == "" {
		return errors.New("mapping_file is required")
	}

	u, err := url.Parse(strings.TrimSpace(c.GenieACS.URL))
	if err != nil || u == nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("genieacs.url must be an absolute http(s) URL, got %q", c.GenieACS.URL)
	}
	if c.GenieACS.MaxResponseBytes < 0 {
		return errors.New("genieacs.max_response_bytes must not be negative")
	}

	for name, v := range map[string]string{
		"genieacs.request_timeout":   c.GenieACS.RequestTimeout,
		"server.read_header_timeout": c.Server.ReadHeaderTimeout,
		"server.shutdown_timeout":    c.Server.ShutdownTimeout,
	} {
		if v == "" {
			continue
		}
		d, err := parseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}

	if c.Server.BatchConcurrency < 0 {
		return errors.New("server.batch_concurrency must not be negative")
	}
	if c.Server.MaxBatchSize < 0 {
		return errors.New("server.max_batch_size must not be negative")
	}

	c.Logging.Level = NormalizeLevel(c.Logging.Level)
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	return nil
}

// NormalizeLevel lowercases a level name and maps the WARNING and CRITICAL
// spellings common in existing deployments onto zap's warn and error.
func NormalizeLevel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "warning":
		return "warn"
	case "critical", "fatal":
		return "error"
	}
	return s
}

// parseDuration accepts Go durations and a bare number of seconds ("10", "2.5").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}
	return time.ParseDuration(s)
}
