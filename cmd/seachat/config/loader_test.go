// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// TestCreateDefault verifies default config creation.
func TestCreateDefault(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, ".seachat", "seachat.yaml")

	if err := createDefault(configPath); err != nil {
		t.Fatalf("createDefault() failed: %v", err)
	}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		t.Fatal("config file was not created")
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		t.Fatalf("failed to read config file: %v", err)
	}

	var cfg SeaChatConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("failed to parse config: %v", err)
	}

	if cfg.Backend.BaseURL != "http://localhost:8000" {
		t.Errorf("Backend.BaseURL = %q, want %q", cfg.Backend.BaseURL, "http://localhost:8000")
	}
	if cfg.Backend.TimeoutSeconds != 300 {
		t.Errorf("Backend.TimeoutSeconds = %d, want 300", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "info")
	}
}

func TestDefaultConfig_RoundTrip(t *testing.T) {
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var cfg SeaChatConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Errorf("round trip changed config: %+v", cfg)
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv(EnvBackendURL, "http://10.0.0.2:9000")
	t.Setenv(EnvTimeoutSeconds, "60")
	t.Setenv(EnvLogLevel, "debug")
	t.Setenv(EnvLogJSON, "true")
	t.Setenv(EnvScopeRequired, "true")

	cfg := DefaultConfig()
	applyEnvOverrides(&cfg)

	if cfg.Backend.BaseURL != "http://10.0.0.2:9000" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.TimeoutSeconds != 60 {
		t.Errorf("TimeoutSeconds = %d", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logging.Level)
	}
	if !cfg.Logging.JSON {
		t.Error("JSON override not applied")
	}
	if !cfg.Chat.ScopeRequired {
		t.Error("ScopeRequired override not applied")
	}
}

func TestApplyEnvOverrides_InvalidValuesIgnored(t *testing.T) {
	t.Setenv(EnvTimeoutSeconds, "not-a-number")
	t.Setenv(EnvLogJSON, "not-a-bool")

	cfg := DefaultConfig()
	applyEnvOverrides(&cfg)

	if cfg.Backend.TimeoutSeconds != 300 {
		t.Errorf("TimeoutSeconds = %d, want default 300", cfg.Backend.TimeoutSeconds)
	}
	if cfg.Logging.JSON {
		t.Error("JSON should keep default on invalid value")
	}
}
