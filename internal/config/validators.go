// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/dotandev/stackopt/internal/errors"
	"github.com/dotandev/stackopt/internal/optimizer"
)

// Validator validates a specific aspect of the configuration.
type Validator interface {
	Validate(cfg *Config) error
}

// LogLevelValidator checks that the log level is a known value.
type LogLevelValidator struct{}

var validLogLevels = map[string]bool{
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

func (v LogLevelValidator) Validate(cfg *Config) error {
	if cfg.Log.Level == "" {
		return nil
	}
	if !validLogLevels[strings.ToLower(cfg.Log.Level)] {
		return errors.WrapValidationError("log.level must be one of: debug, info, warn, error")
	}
	return nil
}

// PassesValidator checks that every configured pass is registered.
type PassesValidator struct {
	Registry *optimizer.Registry
}

func (v PassesValidator) Validate(cfg *Config) error {
	reg := v.Registry
	if reg == nil {
		reg = optimizer.NewRegistry()
	}
	for _, name := range cfg.Optimizer.Passes {
		if _, err := reg.Lookup(name); err != nil {
			return errors.WrapValidationError(fmt.Sprintf("optimizer.passes: %v", err))
		}
	}
	return nil
}

// BatchValidator checks the worker and cache bounds.
type BatchValidator struct{}

func (v BatchValidator) Validate(cfg *Config) error {
	if cfg.Batch.Workers < 0 {
		return errors.WrapValidationError("batch.workers cannot be negative")
	}
	if cfg.Batch.CacheSize < -1 {
		return errors.WrapValidationError("batch.cache_size must be -1 (disabled), 0 (default) or positive")
	}
	return nil
}

// TelemetryValidator checks that enabled tracing has an exporter.
type TelemetryValidator struct{}

func (v TelemetryValidator) Validate(cfg *Config) error {
	if cfg.Telemetry.Enabled && cfg.Telemetry.ExporterURL == "" {
		return errors.WrapValidationError("telemetry.exporter_url cannot be empty when telemetry is enabled")
	}
	return nil
}

// DaemonValidator checks the listen port.
type DaemonValidator struct{}

func (v DaemonValidator) Validate(cfg *Config) error {
	if cfg.Daemon.Port == "" {
		return nil
	}
	port, err := strconv.Atoi(cfg.Daemon.Port)
	if err != nil || port < 0 || port > 65535 {
		return errors.WrapValidationError("daemon.port must be a number between 0 and 65535")
	}
	return nil
}

// DefaultValidators returns the standard set of validators.
func DefaultValidators() []Validator {
	return []Validator{
		LogLevelValidator{},
		PassesValidator{},
		BatchValidator{},
		TelemetryValidator{},
		DaemonValidator{},
	}
}

// RunValidators executes each validator against the config, returning the
// first error encountered.
func RunValidators(cfg *Config, validators []Validator) error {
	for _, v := range validators {
		if err := v.Validate(cfg); err != nil {
			return err
		}
	}
	return nil
}
