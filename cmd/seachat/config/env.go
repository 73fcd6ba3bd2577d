// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"os"
	"strconv"
)

// Environment variables override file values; flags override both
// (flag handling lives in the command layer).
const (
	EnvBackendURL     = "SEACHAT_BACKEND_URL"
	EnvTimeoutSeconds = "SEACHAT_TIMEOUT_SECONDS"
	EnvLogLevel       = "SEACHAT_LOG_LEVEL"
	EnvLogDir         = "SEACHAT_LOG_DIR"
	EnvLogJSON        = "SEACHAT_LOG_JSON"
	EnvScopeRequired  = "SEACHAT_SCOPE_REQUIRED"
)

func applyEnvOverrides(cfg *SeaChatConfig) {
	if v := os.Getenv(EnvBackendURL); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv(EnvTimeoutSeconds); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Backend.TimeoutSeconds = n
		}
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv(EnvLogDir); v != "" {
		cfg.Logging.Dir = v
	}
	if v := os.Getenv(EnvLogJSON); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Logging.JSON = b
		}
	}
	if v := os.Getenv(EnvScopeRequired); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Chat.ScopeRequired = b
		}
	}
}
