// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/AleutianAI/SeaChat/pkg/render"
	"github.com/AleutianAI/SeaChat/pkg/stream"
)

// SeaChat color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders
	ColorWarning     = lipgloss.Color("#F4D03F") // Gold/amber for warnings
	ColorError       = lipgloss.Color("#E74C3C") // Red for errors
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Muted     lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorTealPrimary),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// =============================================================================
// Chat UI
// =============================================================================

// ChatUI formats all chat output. In plain mode styling is suppressed
// for piped or machine-read output.
type ChatUI struct {
	out   io.Writer
	plain bool
}

// NewChatUI creates a UI writing to stdout.
func NewChatUI(plain bool) *ChatUI {
	return NewChatUIWithWriter(os.Stdout, plain)
}

// NewChatUIWithWriter creates a UI with an injected writer for tests.
func NewChatUIWithWriter(w io.Writer, plain bool) *ChatUI {
	return &ChatUI{out: w, plain: plain}
}

// Header prints the session banner.
func (u *ChatUI) Header(backendURL, sessionID, scopeFileID string) {
	if u.plain {
		fmt.Fprintf(u.out, "seachat session=%s backend=%s\n", sessionID, backendURL)
		return
	}
	fmt.Fprintln(u.out, Styles.Title.Render("SeaChat"))
	fmt.Fprintln(u.out, Styles.Muted.Render("  backend:  "+backendURL))
	fmt.Fprintln(u.out, Styles.Muted.Render("  session:  "+sessionID))
	if scopeFileID != "" {
		fmt.Fprintln(u.out, Styles.Muted.Render("  document: "+scopeFileID))
	}
	fmt.Fprintln(u.out, Styles.Muted.Render("  type a question, :help for commands, exit to quit"))
	fmt.Fprintln(u.out)
}

// Prompt returns the input prompt string.
func (u *ChatUI) Prompt() string {
	if u.plain {
		return "> "
	}
	return Styles.Highlight.Render("❯ ")
}

// ShowPrompt writes the prompt without a newline.
func (u *ChatUI) ShowPrompt() {
	fmt.Fprint(u.out, u.Prompt())
}

// Welcome prints the assistant greeting.
func (u *ChatUI) Welcome(content string) {
	if u.plain {
		fmt.Fprintln(u.out, content)
		return
	}
	fmt.Fprintln(u.out, Styles.Subtitle.Render(content))
	fmt.Fprintln(u.out)
}

// Token prints one streamed text delta without a newline.
func (u *ChatUI) Token(delta string) {
	fmt.Fprint(u.out, delta)
}

// TurnDone terminates the streamed answer line.
func (u *ChatUI) TurnDone() {
	fmt.Fprintln(u.out)
}

// ReferenceCards prints the turn's citations in display order.
func (u *ChatUI) ReferenceCards(cards []render.ReferenceCard) {
	if len(cards) == 0 {
		return
	}
	fmt.Fprintln(u.out)
	if !u.plain {
		fmt.Fprintln(u.out, Styles.Subtitle.Render("References:"))
	}
	for _, card := range cards {
		line := fmt.Sprintf("  [%d] %s", card.Index, card.SourceName)
		if card.PageLabel != "" {
			line += " (" + card.PageLabel + ")"
		}
		if u.plain {
			fmt.Fprintln(u.out, line)
		} else {
			fmt.Fprintln(u.out, Styles.Muted.Render(line))
		}
		if card.Snippet != "" {
			if u.plain {
				fmt.Fprintf(u.out, "      %s\n", card.Snippet)
			} else {
				fmt.Fprintln(u.out, Styles.Muted.Render("      "+card.Snippet))
			}
		}
	}
}

// Stats prints the per-turn timing line.
func (u *ChatUI) Stats(result *stream.StreamResult) {
	if result == nil {
		return
	}
	line := fmt.Sprintf("%.1fs · first token %.0fms · %d tokens · %.1f tok/s",
		result.Duration().Seconds(),
		float64(result.TimeToFirstToken().Milliseconds()),
		result.TotalTokens,
		result.TokensPerSecond(),
	)
	if u.plain {
		fmt.Fprintln(u.out, line)
		return
	}
	fmt.Fprintln(u.out, Styles.Muted.Render("  "+line))
}

// RetrievalNotice flags an answer that used no document retrieval.
func (u *ChatUI) RetrievalNotice(usedRetrieval bool) {
	if usedRetrieval {
		return
	}
	msg := "  answered without document retrieval"
	if u.plain {
		fmt.Fprintln(u.out, msg)
		return
	}
	fmt.Fprintln(u.out, Styles.Warning.Render(msg))
}

// Error prints a non-fatal error.
func (u *ChatUI) Error(err error) {
	if u.plain {
		fmt.Fprintf(u.out, "error: %v\n", err)
		return
	}
	fmt.Fprintln(u.out, Styles.Error.Render("✗ "+err.Error()))
}

// Info prints a one-line notice.
func (u *ChatUI) Info(msg string) {
	if u.plain {
		fmt.Fprintln(u.out, msg)
		return
	}
	fmt.Fprintln(u.out, Styles.Muted.Render(msg))
}

// SessionEnd prints the end-of-session summary.
func (u *ChatUI) SessionEnd(sessionID string, turns int, duration time.Duration) {
	if u.plain {
		fmt.Fprintf(u.out, "session=%s turns=%d duration=%s\n", sessionID, turns, duration.Round(time.Second))
		return
	}
	fmt.Fprintln(u.out)
	fmt.Fprintln(u.out, Styles.Subtitle.Render("Session ended."))
	fmt.Fprintln(u.out, Styles.Muted.Render(fmt.Sprintf("  turns:    %d", turns)))
	fmt.Fprintln(u.out, Styles.Muted.Render(fmt.Sprintf("  duration: %s", duration.Round(time.Second))))
	fmt.Fprintln(u.out, Styles.Muted.Render("  session:  "+sessionID))
}

// Help lists the in-chat commands.
func (u *ChatUI) Help() {
	lines := []string{
		"  :clear          reset the conversation",
		"  :refs           show the last answer's references",
		"  :export <path>  write the transcript as HTML",
		"  :help           show this help",
		"  exit, quit      end the session",
	}
	for _, line := range lines {
		if u.plain {
			fmt.Fprintln(u.out, line)
		} else {
			fmt.Fprintln(u.out, Styles.Muted.Render(line))
		}
	}
}
