// Copyright 2025 Erst Users
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"strings"
	"testing"
)

// --- LogLevelValidator ---

func TestLogLevelValidator_ValidLevels(t *testing.T) {
	v := LogLevelValidator{}
	for _, lvl := range []string{"debug", "info", "warn", "error", "INFO", "Warning"} {
		cfg := &Config{Log: LogConfig{Level: lvl}}
		if err := v.Validate(cfg); err != nil {
			t.Errorf("level %q should be valid: %v", lvl, err)
		}
	}
}

func TestLogLevelValidator_Empty(t *testing.T) {
	if err := (LogLevelValidator{}).Validate(&Config{}); err != nil {
		t.Errorf("empty log level should be allowed: %v", err)
	}
}

func TestLogLevelValidator_InvalidLevel(t *testing.T) {
	err := LogLevelValidator{}.Validate(&Config{Log: LogConfig{Level: "verbose"}})
	if err == nil {
		t.Fatal("expected error for unknown level")
	}
	if !strings.Contains(err.Error(), "log.level") {
		t.Errorf("error should name the field, got %q", err)
	}
}

// --- PassesValidator ---

func TestPassesValidator(t *testing.T) {
	v := PassesValidator{}
	ok := &Config{Optimizer: OptimizerConfig{Passes: []string{"remove-uncovered-instructions", "remove-dup-drop"}}}
	if err := v.Validate(ok); err != nil {
		t.Errorf("known passes should be valid: %v", err)
	}

	bad := &Config{Optimizer: OptimizerConfig{Passes: []string{"inline-everything"}}}
	err := v.Validate(bad)
	if err == nil {
		t.Fatal("expected error for unknown pass")
	}
	if !strings.Contains(err.Error(), "inline-everything") {
		t.Errorf("error should name the pass, got %q", err)
	}
}

// --- BatchValidator ---

func TestBatchValidator(t *testing.T) {
	cases := []struct {
		batch BatchConfig
		valid bool
	}{
		{BatchConfig{}, true},
		{BatchConfig{Workers: 8, CacheSize: 1024}, true},
		{BatchConfig{CacheSize: -1}, true},
		{BatchConfig{Workers: -1}, false},
		{BatchConfig{CacheSize: -2}, false},
	}
	for _, tc := range cases {
		err := BatchValidator{}.Validate(&Config{Batch: tc.batch})
		if (err == nil) != tc.valid {
			t.Errorf("%+v: valid=%t, got err=%v", tc.batch, tc.valid, err)
		}
	}
}

// --- TelemetryValidator ---

func TestTelemetryValidator(t *testing.T) {
	v := TelemetryValidator{}
	if err := v.Validate(&Config{Telemetry: TelemetryConfig{Enabled: true}}); err == nil {
		t.Error("expected error for enabled telemetry without exporter")
	}
	if err := v.Validate(&Config{Telemetry: TelemetryConfig{}}); err != nil {
		t.Errorf("disabled telemetry needs no exporter: %v", err)
	}
}

// --- DaemonValidator ---

func TestDaemonValidator(t *testing.T) {
	v := DaemonValidator{}
	for _, port := range []string{"", "0", "8080", "65535"} {
		if err := v.Validate(&Config{Daemon: DaemonConfig{Port: port}}); err != nil {
			t.Errorf("port %q should be valid: %v", port, err)
		}
	}
	for _, port := range []string{"http", "-1", "65536"} {
		if err := v.Validate(&Config{Daemon: DaemonConfig{Port: port}}); err == nil {
			t.Errorf("port %q should be invalid", port)
		}
	}
}

// --- RunValidators ---

func TestRunValidators_StopsOnFirstError(t *testing.T) {
	cfg := &Config{Log: LogConfig{Level: "nope"}, Batch: BatchConfig{Workers: -1}}
	err := RunValidators(cfg, []Validator{BatchValidator{}, LogLevelValidator{}})
	if err == nil || !strings.Contains(err.Error(), "batch.workers") {
		t.Errorf("expected the batch error first, got %v", err)
	}
}

func TestRunValidators_DefaultsPass(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}
