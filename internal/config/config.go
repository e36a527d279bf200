// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/optimizer"
)

// LogConfig configures the process logger.
type LogConfig struct {
	Level string `toml:"level"`
	JSON  bool   `toml:"json"`
}

// OptimizerConfig configures the pass pipeline.
type OptimizerConfig struct {
	// Passes overrides the default pass order when not empty.
	Passes        []string `toml:"passes"`
	CompressJumps bool     `toml:"compress_jumps"`
	BestEffort    bool     `toml:"best_effort"`
}

// BatchConfig configures the batch runner.
type BatchConfig struct {
	Workers   int `toml:"workers"`
	CacheSize int `toml:"cache_size"`
}

// StoreConfig configures the report store. An empty path uses
// ~/.stackopt/reports.db.
type StoreConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled     bool   `toml:"enabled"`
	ExporterURL string `toml:"exporter_url"`
	ServiceName string `toml:"service_name"`
}

// DaemonConfig configures the JSON-RPC daemon.
type DaemonConfig struct {
	Port      string `toml:"port"`
	AuthToken string `toml:"auth_token"`
}

// Config represents the configuration for stackopt
type Config struct {
	Log       LogConfig       `toml:"log"`
	Optimizer OptimizerConfig `toml:"optimizer"`
	Batch     BatchConfig     `toml:"batch"`
	Store     StoreConfig     `toml:"store"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Daemon    DaemonConfig    `toml:"daemon"`

	// Source is the file the configuration was read from, if any.
	Source string `toml:"-"`
}

// EnvConfigPath names the variable that points at an explicit config file.
const EnvConfigPath = "STACKOPT_CONFIG"

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Log: LogConfig{Level: "info"},
		Optimizer: OptimizerConfig{
			CompressJumps: true,
			BestEffort:    true,
		},
		Batch: BatchConfig{CacheSize: 256},
		Telemetry: TelemetryConfig{
			ExporterURL: "http://localhost:4318",
			ServiceName: "stackopt",
		},
		Daemon: DaemonConfig{Port: "8080"},
	}
}

// SearchPaths returns the config files Load looks at, in order.
func SearchPaths() []string {
	if p := os.Getenv(EnvConfigPath); p != "" {
		return []string{p}
	}
	paths := []string{".stackopt.toml"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".stackopt.toml"))
	}
	return append(paths, "/etc/stackopt/config.toml")
}

// Load merges the defaults, the first config file found and STACKOPT_*
// environment overrides, then validates the result. A file named by
// STACKOPT_CONFIG must exist.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	explicit := os.Getenv(EnvConfigPath) != ""
	for _, path := range SearchPaths() {
		if _, err := os.Stat(path); err != nil {
			if explicit {
				return nil, errors.WrapConfigError("config file "+path+" not found", err)
			}
			continue
		}
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
		break
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile decodes the TOML file at path over c. Keys absent from the file
// keep their current values; unknown keys are an error.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WrapConfigError("failed to read config file", err)
	}
	if err := c.parseTOML(string(data)); err != nil {
		return errors.WrapConfigError("failed to parse "+path, err)
	}
	c.Source = path
	return nil
}

func (c *Config) parseTOML(content string) error {
	md, err := toml.Decode(content, c)
	if err != nil {
		return err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return fmt.Errorf("unknown keys: %s", strings.Join(keys, ", "))
	}
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	boolean := func(key string, dst *bool) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		switch strings.ToLower(v) {
		case "1", "true", "yes":
			*dst = true
		case "0", "false", "no":
			*dst = false
		default:
			return errors.WrapConfigError(fmt.Sprintf("%s must be a boolean, got %q", key, v), nil)
		}
		return nil
	}
	integer := func(key string, dst *int) error {
		v := os.Getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return errors.WrapConfigError(fmt.Sprintf("%s must be an integer", key), err)
		}
		*dst = n
		return nil
	}

	str("STACKOPT_LOG_LEVEL", &c.Log.Level)
	if v := os.Getenv("STACKOPT_PASSES"); v != "" {
		c.Optimizer.Passes = nil
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Optimizer.Passes = append(c.Optimizer.Passes, p)
			}
		}
	}
	str("STACKOPT_STORE_PATH", &c.Store.Path)
	str("STACKOPT_OTLP_URL", &c.Telemetry.ExporterURL)
	str("STACKOPT_SERVICE_NAME", &c.Telemetry.ServiceName)
	str("STACKOPT_DAEMON_PORT", &c.Daemon.Port)
	str("STACKOPT_AUTH_TOKEN", &c.Daemon.AuthToken)

	for key, dst := range map[string]*bool{
		"STACKOPT_LOG_JSON":          &c.Log.JSON,
		"STACKOPT_COMPRESS_JUMPS":    &c.Optimizer.CompressJumps,
		"STACKOPT_BEST_EFFORT":       &c.Optimizer.BestEffort,
		"STACKOPT_STORE_ENABLED":     &c.Store.Enabled,
		"STACKOPT_TELEMETRY_ENABLED": &c.Telemetry.Enabled,
	} {
		if err := boolean(key, dst); err != nil {
			return err
		}
	}
	for key, dst := range map[string]*int{
		"STACKOPT_WORKERS":    &c.Batch.Workers,
		"STACKOPT_CACHE_SIZE": &c.Batch.CacheSize,
	} {
		if err := integer(key, dst); err != nil {
			return err
		}
	}
	return nil
}

// Validate runs the default validators.
func (c *Config) Validate() error {
	return RunValidators(c, DefaultValidators())
}

// PipelineOptions returns the optimizer options the configuration implies.
func (c *Config) PipelineOptions() []optimizer.Option {
	opts := []optimizer.Option{optimizer.WithCompressJumps(c.Optimizer.CompressJumps)}
	if len(c.Optimizer.Passes) > 0 {
		opts = append(opts, optimizer.WithPasses(c.Optimizer.Passes...))
	}
	return opts
}

// WriteTOML encodes c as TOML.
func (c *Config) WriteTOML(w io.Writer) error {
	if err := toml.NewEncoder(w).Encode(c); err != nil {
		return errors.WrapConfigError("failed to encode config", err)
	}
	return nil
}

func (c *Config) String() string {
	passes := "default"
	if len(c.Optimizer.Passes) > 0 {
		passes = strings.Join(c.Optimizer.Passes, ",")
	}
	return fmt.Sprintf(
		"Config{LogLevel: %s, Passes: %s, BestEffort: %t, Workers: %d, Store: %t}",
		c.Log.Level, passes, c.Optimizer.BestEffort, c.Batch.Workers, c.Store.Enabled,
	)
}
