// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

// SeaChatConfig is the persisted CLI configuration, stored at
// ~/.seachat/seachat.yaml.
type SeaChatConfig struct {
	// Backend: where the document-QA backend lives.
	Backend BackendConfig `yaml:"backend"`

	// Chat: conversation behavior.
	Chat ChatConfig `yaml:"chat"`

	// Logging: diagnostics output.
	Logging LoggingConfig `yaml:"logging"`
}

type BackendConfig struct {
	BaseURL        string `yaml:"base_url"`        // e.g. http://localhost:8000
	TimeoutSeconds int    `yaml:"timeout_seconds"` // whole-request budget incl. streaming
}

type ChatConfig struct {
	// Welcome overrides the greeting shown when a session starts.
	Welcome string `yaml:"welcome,omitempty"`

	// ScopeRequired refuses sends until a document scope is set.
	ScopeRequired bool `yaml:"scope_required"`
}

type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Dir enables file logging when set, e.g. ~/.seachat/logs.
	Dir string `yaml:"dir,omitempty"`

	// JSON switches stderr output to JSON.
	JSON bool `yaml:"json"`
}

func DefaultConfig() SeaChatConfig {
	return SeaChatConfig{
		Backend: BackendConfig{
			BaseURL:        "http://localhost:8000",
			TimeoutSeconds: 300,
		},
		Chat: ChatConfig{
			ScopeRequired: false,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}
