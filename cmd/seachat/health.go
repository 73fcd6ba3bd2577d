// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/SeaChat/cmd/seachat/config"
	"github.com/AleutianAI/SeaChat/pkg/backend"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check that the backend is reachable",
	RunE:  runHealthCommand,
}

func runHealthCommand(cmd *cobra.Command, args []string) error {
	client := backend.New(backend.Config{
		BaseURL: config.Global.Backend.BaseURL,
		Timeout: 10 * time.Second,
		Logger:  slog.Default(),
	})

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
	defer cancel()

	status, err := client.Health(ctx)
	if err != nil {
		if plainOutput {
			fmt.Println("unreachable")
		} else {
			fmt.Println(Styles.Error.Render("✗ backend unreachable: " + err.Error()))
		}
		return err
	}

	if !status.OK {
		if plainOutput {
			fmt.Println("degraded")
		} else {
			fmt.Println(Styles.Warning.Render("⚠ backend reports degraded health"))
		}
		return fmt.Errorf("backend reports degraded health")
	}

	if plainOutput {
		fmt.Printf("ok version=%s\n", status.Version)
		return nil
	}
	line := "✓ backend healthy"
	if status.Version != "" {
		line += " (version " + status.Version + ")"
	}
	fmt.Println(Styles.Title.Render(line))
	fmt.Println(Styles.Muted.Render("  " + client.BaseURL()))
	return nil
}
