// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns the conversation state machine for SeaChat.
//
// This file contains the Controller: the single owner of committed
// messages and the one PendingTurn, driving the
// Idle -> Sending -> Streaming -> Idle lifecycle.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/SeaChat/pkg/stream"
)

// =============================================================================
// Ports
// =============================================================================

// Stream is one open, cancellable answer stream.
//
// The event sequence it yields is lazy, ordered, finite, and
// non-restartable. Cancel is safe to call at any time, including after
// natural completion, and guarantees no further events are delivered
// and underlying resources are released.
type Stream interface {
	// Read delivers events to the callback in arrival order. It
	// returns nil after a terminal event or EOF, the callback's error
	// if one was returned, or the read failure otherwise.
	Read(ctx context.Context, callback stream.Callback) error

	// Cancel aborts the stream. Idempotent.
	Cancel()
}

// Opener opens one answer stream for a question.
//
// An error from Open is a transport-level failure: the connection was
// never established and no event was received.
type Opener interface {
	Open(ctx context.Context, question, scopeFileID, sessionID string) (Stream, error)
}

// Clearer resets the remote conversation memory for a session.
// Best-effort: the controller never lets a Clearer failure block its
// local reset.
type Clearer interface {
	ClearSession(ctx context.Context, sessionID string) error
}

// =============================================================================
// Errors and Placeholder Content
// =============================================================================

var (
	// ErrEmptyQuestion is returned by Send for blank input.
	ErrEmptyQuestion = errors.New("question is empty")

	// ErrScopeRequired is returned by Send when the controller operates
	// in scope-required mode and no target file is selected.
	ErrScopeRequired = errors.New("no document selected for a scoped question")

	// errTurnCancelled stops the read loop after Cancel; never
	// propagated to callers.
	errTurnCancelled = errors.New("turn cancelled")
)

const (
	// DefaultWelcome is the single message a fresh (or cleared)
	// session starts with.
	DefaultWelcome = "Hi! Upload a document and ask me anything about it."

	// emptyAnswerPlaceholder is committed when a stream finishes
	// without producing any token.
	emptyAnswerPlaceholder = "_(the assistant returned an empty answer)_"

	// transportFailureContent is committed when the connection failed
	// before a terminal event arrived.
	transportFailureContent = "Sorry, I could not reach the backend. Please check that the server is running and try again."
)

// serverErrorContent builds the user-visible description for an
// explicit error event.
func serverErrorContent(message string) string {
	if message == "" {
		return "Sorry, something went wrong while answering this question."
	}
	return fmt.Sprintf("Sorry, something went wrong while answering this question: %s", message)
}

// =============================================================================
// Controller
// =============================================================================

// TurnOutcome summarizes one completed Send call.
type TurnOutcome struct {
	// Message is the committed assistant message. Zero-valued when the
	// turn was cancelled (nothing is committed then).
	Message Message

	// Committed reports whether Message was appended to the session.
	Committed bool

	// UsedRetrieval mirrors the done event's flag.
	UsedRetrieval bool

	// Cancelled reports that the turn was cancelled before commit.
	Cancelled bool

	// Stats carries per-turn timing and token counts.
	Stats *stream.StreamResult
}

// Config configures a Controller. Opener is required; everything else
// has defaults.
type Config struct {
	Opener        Opener
	Clearer       Clearer   // optional; remote clear is skipped when nil
	Observer      Observer  // optional; defaults to NopObserver
	SessionID     string    // optional; a fresh uuid when empty
	ScopeRequired bool      // require a scope file before sending
	Welcome       string    // optional; DefaultWelcome when empty
	Logger        *slog.Logger
}

// turnState is the per-turn accumulation plus its cancellation flag.
// Events carry a pointer to their turn so a late event from a
// superseded stream can never touch the current one.
type turnState struct {
	pending   *PendingTurn
	cancelled bool
}

// Controller owns the session state machine.
//
// All exported methods are safe for concurrent use; Cancel may be
// called from a signal handler goroutine while Send is blocked reading
// the stream. Cancellation is cooperative: it takes effect at the next
// event boundary, and any event received after cancellation is
// discarded without mutating state.
type Controller struct {
	opener   Opener
	clearer  Clearer
	observer Observer
	log      *slog.Logger
	welcome  string

	scopeRequired bool

	mu          sync.Mutex
	sessionID   string
	scopeFileID string
	state       State
	messages    []Message
	active      Stream
	current     *turnState
	sendGen     uint64
}

// NewController creates a controller seeded with the welcome message.
func NewController(cfg Config) *Controller {
	observer := cfg.Observer
	if observer == nil {
		observer = NopObserver{}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	sessionID := cfg.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}
	welcome := cfg.Welcome
	if welcome == "" {
		welcome = DefaultWelcome
	}

	return &Controller{
		opener:        cfg.Opener,
		clearer:       cfg.Clearer,
		observer:      observer,
		log:           log,
		welcome:       welcome,
		scopeRequired: cfg.ScopeRequired,
		sessionID:     sessionID,
		state:         StateIdle,
		messages:      []Message{NewAssistantMessage(welcome, nil)},
	}
}

// SessionID returns the session identifier sent with every request.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Busy reports whether a turn is in flight.
func (c *Controller) Busy() bool {
	return c.State() != StateIdle
}

// SetScope selects the file a question is restricted to. An empty id
// means "search across all known files".
func (c *Controller) SetScope(fileID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scopeFileID = fileID
}

// Scope returns the currently selected scope file id.
func (c *Controller) Scope() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scopeFileID
}

// Messages returns a snapshot of the committed conversation.
func (c *Controller) Messages() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// CanSend reports whether Send would be accepted right now: the
// trimmed question is non-empty, no turn is in flight, and a scope is
// selected when scope-required mode is on.
func (c *Controller) CanSend(question string) bool {
	if strings.TrimSpace(question) == "" {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return false
	}
	if c.scopeRequired && c.scopeFileID == "" {
		return false
	}
	return true
}

// Send runs one full turn: append the user message, open the stream,
// apply events, and commit the assistant message.
//
// Send blocks until the turn commits, errors out, or is cancelled. A
// send that arrives while a prior stream is active cancels that stream
// first; the prior turn's partial content is never committed. Server
// errors and transport failures do not return an error here: they
// commit a user-visible error message and report it in the outcome.
func (c *Controller) Send(ctx context.Context, question string) (*TurnOutcome, error) {
	trimmed := strings.TrimSpace(question)

	c.mu.Lock()
	if trimmed == "" {
		c.mu.Unlock()
		return nil, ErrEmptyQuestion
	}
	if c.scopeRequired && c.scopeFileID == "" {
		c.mu.Unlock()
		return nil, ErrScopeRequired
	}
	if c.state != StateIdle {
		// At most one active stream per session.
		c.cancelLocked()
	}
	c.sendGen++
	gen := c.sendGen
	c.state = StateSending
	c.messages = append(c.messages, NewUserMessage(trimmed))
	scope := c.scopeFileID
	sessionID := c.sessionID
	c.mu.Unlock()

	stats := stream.NewStreamResult()
	outcome := &TurnOutcome{Stats: stats}

	handle, openErr := c.opener.Open(ctx, trimmed, scope, sessionID)

	c.mu.Lock()
	if c.sendGen != gen || c.state != StateSending {
		// Cancelled (or superseded) while the request was being opened.
		c.mu.Unlock()
		if handle != nil {
			handle.Cancel()
		}
		outcome.Cancelled = true
		return outcome, nil
	}
	if openErr != nil {
		// Transport-level failure: no byte was ever received. Handled
		// like an error event with a generic description.
		c.log.Warn("chat stream could not be opened",
			"session_id", sessionID,
			"error", openErr,
		)
		msg := c.commitLocked(transportFailureContent, nil)
		stats.Err = openErr.Error()
		stats.CompletedAt = time.Now().UnixMilli()
		outcome.Message = msg
		outcome.Committed = true
		c.mu.Unlock()
		c.observer.OnCommitted(msg)
		return outcome, nil
	}

	t := &turnState{pending: NewPendingTurn()}
	c.current = t
	c.active = handle
	c.state = StateStreaming
	c.mu.Unlock()

	readErr := handle.Read(ctx, func(ev stream.StreamEvent) error {
		return c.apply(t, ev, stats, outcome)
	})

	return c.finishTurn(t, stats, outcome, readErr), nil
}

// apply processes one stream event against its turn.
//
// Events belonging to a cancelled or superseded turn are discarded
// without mutating state; returning errTurnCancelled stops the reader.
func (c *Controller) apply(t *turnState, ev stream.StreamEvent, stats *stream.StreamResult, outcome *TurnOutcome) error {
	c.mu.Lock()

	if t.cancelled || c.current != t {
		c.mu.Unlock()
		return errTurnCancelled
	}

	stats.TotalEvents++

	switch ev.Type {
	case stream.EventToken:
		if stats.FirstTokenAt == 0 {
			stats.FirstTokenAt = ev.CreatedAt
		}
		stats.TotalTokens++
		partial := t.pending.AppendText(ev.Text)
		c.mu.Unlock()
		c.observer.OnPartial(partial)
		return nil

	case stream.EventCitation:
		if ev.Citation == nil {
			c.mu.Unlock()
			return nil
		}
		ref, added := t.pending.AddCitation(*ev.Citation)
		c.mu.Unlock()
		if added {
			c.observer.OnReference(ref)
		}
		return nil

	case stream.EventDone:
		content := t.pending.Content()
		if content == "" {
			content = emptyAnswerPlaceholder
		}
		msg := c.commitLocked(content, t.pending.References())
		c.detachTurnLocked(t)
		stats.UsedRetrieval = ev.UsedRetrieval
		stats.CompletedAt = ev.CreatedAt
		stats.Answer = msg.Content
		outcome.Message = msg
		outcome.Committed = true
		outcome.UsedRetrieval = ev.UsedRetrieval
		c.mu.Unlock()
		c.observer.OnCommitted(msg)
		c.observer.OnRetrievalUsed(ev.UsedRetrieval)
		return nil

	case stream.EventError:
		msg := c.commitLocked(serverErrorContent(ev.Message), nil)
		c.detachTurnLocked(t)
		stats.Err = ev.Message
		stats.CompletedAt = ev.CreatedAt
		outcome.Message = msg
		outcome.Committed = true
		c.mu.Unlock()
		c.observer.OnCommitted(msg)
		return nil

	default:
		c.mu.Unlock()
		return nil
	}
}

// finishTurn settles the turn after the read loop returns.
func (c *Controller) finishTurn(t *turnState, stats *stream.StreamResult, outcome *TurnOutcome, readErr error) *TurnOutcome {
	c.mu.Lock()

	if t.cancelled || errors.Is(readErr, errTurnCancelled) {
		// Nothing was committed and the handle is already released.
		c.mu.Unlock()
		outcome.Cancelled = true
		return outcome
	}

	if outcome.Committed {
		// Terminal event handled in apply: the commit already moved the
		// controller to Idle, and a newer Send may have claimed the
		// state since. Only release the handle if it is still ours.
		c.detachTurnLocked(t)
		c.mu.Unlock()
		return outcome
	}

	// The stream ended without a terminal event: a drop mid-stream or
	// a read failure. Surface it as a committed error message, same as
	// a pre-byte transport failure.
	if readErr != nil && (errors.Is(readErr, context.Canceled) || errors.Is(readErr, context.DeadlineExceeded)) {
		// Caller-level timeout or ctx cancel behaves like Cancel().
		c.detachTurnLocked(t)
		c.state = StateIdle
		c.mu.Unlock()
		outcome.Cancelled = true
		return outcome
	}

	c.log.Warn("chat stream ended before a terminal event",
		"session_id", c.sessionID,
		"error", readErr,
	)
	msg := c.commitLocked(transportFailureContent, nil)
	c.detachTurnLocked(t)
	if readErr != nil {
		stats.Err = readErr.Error()
	} else {
		stats.Err = "stream ended unexpectedly"
	}
	stats.CompletedAt = time.Now().UnixMilli()
	outcome.Message = msg
	outcome.Committed = true
	c.mu.Unlock()
	c.observer.OnCommitted(msg)
	return outcome
}

// commitLocked appends an assistant message and transitions to Idle.
// Caller holds c.mu.
func (c *Controller) commitLocked(content string, refs []Reference) Message {
	msg := NewAssistantMessage(content, refs)
	c.messages = append(c.messages, msg)
	c.state = StateIdle
	return msg
}

// detachTurnLocked releases the active handle and the pending turn if
// they still belong to t. Caller holds c.mu.
func (c *Controller) detachTurnLocked(t *turnState) {
	if c.current == t {
		c.current = nil
		if c.active != nil {
			c.active.Cancel()
			c.active = nil
		}
	}
}

// Cancel aborts the in-flight turn, if any.
//
// The transport handle is cancelled, the PendingTurn is discarded
// without committing anything, and the controller returns to Idle.
// Safe to call when already Idle (no-op) and from any goroutine.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// cancelLocked implements Cancel. Caller holds c.mu.
func (c *Controller) cancelLocked() {
	if c.state == StateIdle {
		return
	}
	if c.current != nil {
		c.current.cancelled = true
		c.current = nil
	}
	if c.active != nil {
		c.active.Cancel()
		c.active = nil
	}
	c.state = StateIdle
}

// Clear resets the conversation.
//
// Any active stream is cancelled first, then the remote session memory
// is cleared best-effort. Local state always resets to the single
// welcome message; a remote failure is logged, never propagated.
func (c *Controller) Clear(ctx context.Context) {
	c.Cancel()

	c.mu.Lock()
	sessionID := c.sessionID
	c.mu.Unlock()

	if c.clearer != nil {
		if err := c.clearer.ClearSession(ctx, sessionID); err != nil {
			c.log.Warn("remote session clear failed; resetting locally anyway",
				"session_id", sessionID,
				"error", err,
			)
		}
	}

	c.mu.Lock()
	c.messages = []Message{NewAssistantMessage(c.welcome, nil)}
	c.mu.Unlock()
}
