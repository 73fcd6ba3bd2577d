// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SeaChat/cmd/seachat/config"
	"github.com/AleutianAI/SeaChat/pkg/logging"
)

// --- Global Command Variables ---
var (
	backendURL  string // CLI override for backend.base_url
	scopeFileID string // document scope for the session
	plainOutput bool   // suppress styling for piped/machine output
	logLevel    string // CLI override for logging.level

	appLogger *logging.Logger // closed after the command returns

	rootCmd = &cobra.Command{
		Use:   "seachat",
		Short: "Chat with your documents through a SeaChat backend",
		Long: `SeaChat is a streaming chat client for the SeaChat document-QA
backend: ask questions, watch answers stream in, and follow the
citations back to the source pages.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Load(); err != nil {
				return err
			}
			applyFlagOverrides()
			initLogging()
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if appLogger == nil {
				return nil
			}
			return appLogger.Close()
		},
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&backendURL, "backend-url", "", "backend base URL (overrides config)")
	rootCmd.PersistentFlags().BoolVar(&plainOutput, "plain", false, "plain output without styling")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	chatCmd.Flags().StringVar(&scopeFileID, "file", "", "fileId of the document to scope questions to")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(healthCmd)
}

// applyFlagOverrides lets flags win over config file and environment.
func applyFlagOverrides() {
	if backendURL != "" {
		config.Global.Backend.BaseURL = backendURL
	}
	if logLevel != "" {
		config.Global.Logging.Level = logLevel
	}
}

// initLogging installs the process-wide logger from the effective
// config. The logger is closed after the command returns so file
// output is flushed.
func initLogging() {
	appLogger = logging.New(logging.Config{
		Level:   parseLogLevel(config.Global.Logging.Level),
		LogDir:  config.Global.Logging.Dir,
		Service: "cli",
		JSON:    config.Global.Logging.JSON,
	})
	slog.SetDefault(appLogger.Slog())
}

func parseLogLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
