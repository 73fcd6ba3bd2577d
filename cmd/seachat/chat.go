// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SeaChat/cmd/seachat/config"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Starts an interactive streaming chat session against the configured
backend. Answers stream token by token; citations are shown as
numbered references after each answer.

In-chat commands: :clear, :refs, :export <path>, :help; exit or quit
ends the session. Ctrl-C cancels an in-flight answer and shuts down
gracefully.`,
	RunE: runChatCommand,
}

func runChatCommand(cmd *cobra.Command, args []string) error {
	cfg := config.Global

	runner := NewChatRunner(ChatRunnerConfig{
		BackendURL:    cfg.Backend.BaseURL,
		ScopeFileID:   scopeFileID,
		ScopeRequired: cfg.Chat.ScopeRequired,
		Welcome:       cfg.Chat.Welcome,
		Plain:         plainOutput,
		Timeout:       time.Duration(cfg.Backend.TimeoutSeconds) * time.Second,
		Logger:        slog.Default(),
	})
	defer func() {
		if err := runner.Close(); err != nil {
			slog.Error("failed to close chat runner", "error", err)
		}
	}()

	// Ctrl-C cancels the in-flight turn and triggers graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := runner.Run(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	return nil
}
