// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package main contains the ChatRunner implementation.
//
// The runner coordinates the session controller (state machine), the
// render pipeline (references, export), and the UI; it only handles
// control flow. Input reading is delegated to InputReader so tests can
// script a session.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/AleutianAI/SeaChat/pkg/backend"
	"github.com/AleutianAI/SeaChat/pkg/render"
	"github.com/AleutianAI/SeaChat/pkg/resolve"
	"github.com/AleutianAI/SeaChat/pkg/session"
)

// =============================================================================
// Input
// =============================================================================

// InputReader reads one line of user input. Injectable for testing.
type InputReader interface {
	ReadLine() (string, error)
}

// stdinReader reads newline-terminated input from a reader.
type stdinReader struct {
	scanner *bufio.Scanner
}

func newStdinReader() *stdinReader {
	return &stdinReader{scanner: bufio.NewScanner(os.Stdin)}
}

func (r *stdinReader) ReadLine() (string, error) {
	if r.scanner.Scan() {
		return strings.TrimSpace(r.scanner.Text()), nil
	}
	if err := r.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

var _ InputReader = (*stdinReader)(nil)

// =============================================================================
// Chat Runner
// =============================================================================

// ChatRunnerConfig configures a production chat runner.
type ChatRunnerConfig struct {
	BackendURL    string
	SessionID     string // empty starts a fresh session
	ScopeFileID   string // optional document scope
	ScopeRequired bool
	Welcome       string // optional greeting shown on start and after :clear
	Plain         bool
	Timeout       time.Duration
	Logger        *slog.Logger
}

// ChatRunner runs the interactive chat loop.
//
// # Thread Safety
//
// Run is single-use and not reentrant. Close is idempotent and safe
// from any goroutine, as is the context cancellation that triggers
// graceful shutdown.
type ChatRunner struct {
	controller *session.Controller
	pipeline   *render.Pipeline
	ui         *ChatUI
	input      InputReader
	log        *slog.Logger
	backendURL string

	startTime time.Time
	turnCount int
	printed   int // bytes of the in-flight partial already echoed

	closed bool
	mu     sync.Mutex
}

// NewChatRunner creates a runner with production dependencies: a real
// backend client, stdin input, and stdout UI.
func NewChatRunner(cfg ChatRunnerConfig) *ChatRunner {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	client := backend.New(backend.Config{
		BaseURL: cfg.BackendURL,
		Timeout: cfg.Timeout,
		Logger:  log,
	})

	runner := &ChatRunner{
		pipeline: render.New(render.Config{
			Resolver: resolve.New(client.BaseURL()),
			Images:   client,
			Logger:   log,
		}),
		ui:         NewChatUI(cfg.Plain),
		input:      newStdinReader(),
		log:        log,
		backendURL: client.BaseURL(),
	}

	// The observer echoes tokens as they arrive; everything else is
	// reported from the Send outcome.
	runner.controller = session.NewController(session.Config{
		Opener:        client,
		Clearer:       client,
		Observer:      session.ObserverFuncs{Partial: runner.onPartial},
		SessionID:     cfg.SessionID,
		ScopeRequired: cfg.ScopeRequired,
		Welcome:       cfg.Welcome,
		Logger:        log,
	})
	if cfg.ScopeFileID != "" {
		runner.controller.SetScope(cfg.ScopeFileID)
	}
	return runner
}

// NewChatRunnerWithDeps creates a runner with injected dependencies for
// testing. The caller wires the controller's observer if incremental
// echo is wanted.
func NewChatRunnerWithDeps(
	controller *session.Controller,
	pipeline *render.Pipeline,
	ui *ChatUI,
	input InputReader,
	log *slog.Logger,
) *ChatRunner {
	return &ChatRunner{
		controller: controller,
		pipeline:   pipeline,
		ui:         ui,
		input:      input,
		log:        log,
	}
}

// onPartial echoes the newly arrived suffix of the in-flight answer.
func (r *ChatRunner) onPartial(partial string) {
	if len(partial) > r.printed {
		r.ui.Token(partial[r.printed:])
		r.printed = len(partial)
	}
}

// Run executes the interactive chat loop.
//
// Returns nil on normal exit ("exit"/"quit"/EOF) and the context error
// on cancellation. Per-turn failures are displayed and the loop
// continues; they never end the session.
func (r *ChatRunner) Run(ctx context.Context) error {
	r.startTime = time.Now()

	r.ui.Header(r.backendURL, r.controller.SessionID(), r.controller.Scope())
	if msgs := r.controller.Messages(); len(msgs) > 0 {
		r.ui.Welcome(msgs[0].Content)
	}

	for {
		select {
		case <-ctx.Done():
			return r.handleShutdown(ctx)
		default:
		}

		r.ui.ShowPrompt()
		input, err := r.input.ReadLine()
		if err != nil {
			if err == io.EOF {
				r.displaySessionEnd()
				return nil
			}
			r.log.Error("failed to read input", "error", err)
			return fmt.Errorf("read input: %w", err)
		}

		if input == "" {
			continue
		}
		if isExitCommand(input) {
			r.displaySessionEnd()
			return nil
		}
		if strings.HasPrefix(input, ":") {
			r.handleCommand(ctx, input)
			continue
		}

		if err := r.handleMessage(ctx, input); err != nil {
			if ctx.Err() != nil {
				return r.handleShutdown(ctx)
			}
			r.ui.Error(err)
		}
	}
}

// handleMessage sends one question and reports the outcome.
func (r *ChatRunner) handleMessage(ctx context.Context, question string) error {
	if !r.controller.CanSend(question) {
		if r.controller.Scope() == "" {
			return fmt.Errorf("a document scope is required; restart with --file <fileId>")
		}
		return fmt.Errorf("cannot send right now")
	}

	r.printed = 0
	outcome, err := r.controller.Send(ctx, question)
	if err != nil {
		return err
	}
	if outcome.Cancelled {
		r.ui.TurnDone()
		r.ui.Info("  turn cancelled")
		return nil
	}

	r.turnCount++
	r.ui.TurnDone()
	r.ui.RetrievalNotice(outcome.UsedRetrieval)
	if len(outcome.Message.References) > 0 {
		r.showReferences(outcome.Message)
	}
	r.ui.Stats(outcome.Stats)
	return nil
}

// handleCommand dispatches a ":" command.
func (r *ChatRunner) handleCommand(ctx context.Context, input string) {
	cmd, arg, _ := strings.Cut(input, " ")
	arg = strings.TrimSpace(arg)

	switch cmd {
	case ":clear":
		r.controller.Clear(ctx)
		r.ui.Info("Conversation cleared.")
		if msgs := r.controller.Messages(); len(msgs) > 0 {
			r.ui.Welcome(msgs[0].Content)
		}
	case ":refs":
		msg, ok := r.lastAnswerWithReferences()
		if !ok {
			r.ui.Info("No references yet.")
			return
		}
		r.showReferences(msg)
	case ":export":
		if arg == "" {
			r.ui.Error(fmt.Errorf("usage: :export <path>"))
			return
		}
		if err := exportTranscript(arg, r.controller.Messages(), r.pipeline); err != nil {
			r.ui.Error(fmt.Errorf("export transcript: %w", err))
			return
		}
		r.ui.Info("Transcript written to " + arg)
	case ":help":
		r.ui.Help()
	default:
		r.ui.Error(fmt.Errorf("unknown command %q; try :help", cmd))
	}
}

// showReferences renders a message's citations as cards.
func (r *ChatRunner) showReferences(msg session.Message) {
	out, err := r.pipeline.Render(render.RenderInput{
		Text:           msg.Content,
		References:     msg.References,
		FallbackFileID: r.controller.Scope(),
	})
	if err != nil {
		r.ui.Error(fmt.Errorf("render references: %w", err))
		return
	}
	r.ui.ReferenceCards(out.Cards)
}

// lastAnswerWithReferences finds the newest assistant message that
// carries citations.
func (r *ChatRunner) lastAnswerWithReferences() (session.Message, bool) {
	msgs := r.controller.Messages()
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == session.RoleAssistant && len(msgs[i].References) > 0 {
			return msgs[i], true
		}
	}
	return session.Message{}, false
}

// handleShutdown cancels any in-flight turn and ends the session.
func (r *ChatRunner) handleShutdown(ctx context.Context) error {
	r.log.Info("shutting down chat session",
		"session_id", r.controller.SessionID(),
		"turns", r.turnCount,
	)
	r.controller.Cancel()
	r.displaySessionEnd()
	return ctx.Err()
}

func (r *ChatRunner) displaySessionEnd() {
	r.ui.SessionEnd(r.controller.SessionID(), r.turnCount, time.Since(r.startTime))
}

// Close releases runner resources. Idempotent and safe from any
// goroutine.
func (r *ChatRunner) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil
	}
	r.closed = true
	r.controller.Cancel()
	return nil
}

// isExitCommand reports whether input ends the session.
func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "quit":
		return true
	}
	return false
}
