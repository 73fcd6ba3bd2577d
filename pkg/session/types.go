// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package session owns the conversation state machine for SeaChat.
//
// The session controller accumulates the in-flight answer of one turn
// (tokens plus deduplicated citations), commits finished turns as
// immutable messages, and handles cancellation and re-send. It consumes
// typed events from pkg/stream and never touches the wire itself.
package session

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/SeaChat/pkg/stream"
)

// =============================================================================
// Roles and Messages
// =============================================================================

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one committed conversation entry.
//
// User messages are immutable on creation. Assistant messages grow
// monotonically inside a PendingTurn while streaming and are frozen
// when committed; a committed Message never mutates.
type Message struct {
	Id         string
	Role       Role
	Content    string
	CreatedAt  int64 // Unix milliseconds
	References []Reference
}

// CreatedAtTime returns CreatedAt as a time.Time.
func (m Message) CreatedAtTime() time.Time {
	return time.UnixMilli(m.CreatedAt)
}

// NewUserMessage creates an immutable user message.
func NewUserMessage(content string) Message {
	return Message{
		Id:        uuid.New().String(),
		Role:      RoleUser,
		Content:   content,
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewAssistantMessage creates a committed assistant message.
func NewAssistantMessage(content string, refs []Reference) Message {
	return Message{
		Id:         uuid.New().String(),
		Role:       RoleAssistant,
		Content:    content,
		CreatedAt:  time.Now().UnixMilli(),
		References: refs,
	}
}

// =============================================================================
// References
// =============================================================================

// Reference is the client-side record derived from one or more citation
// events sharing a citation id.
//
// Index is the 1-based display position assigned at first sight; the
// order of distinct citation ids is preserved exactly as they arrived.
// Rank and Score are server-supplied hints stored as-is; this client
// never reorders references by them.
type Reference struct {
	Index      int
	CitationID string
	FileID     string
	SourceName string
	Rank       int
	Page       int
	Snippet    string
	Score      float64
	PreviewURL string
}

// newReference builds a Reference from a citation payload at the given
// display index.
func newReference(index int, c stream.Citation) Reference {
	return Reference{
		Index:      index,
		CitationID: c.CitationID,
		FileID:     c.FileID,
		SourceName: c.SourceName,
		Rank:       c.Rank,
		Page:       c.Page,
		Snippet:    c.Snippet,
		Score:      c.Score,
		PreviewURL: c.PreviewURL,
	}
}

// =============================================================================
// Controller States
// =============================================================================

// State is the controller's position in the turn lifecycle.
type State string

const (
	// StateIdle means no turn is in flight; sending is allowed.
	StateIdle State = "idle"

	// StateSending means a request is being opened but no stream has
	// been established yet.
	StateSending State = "sending"

	// StateStreaming means events are being applied to the PendingTurn.
	StateStreaming State = "streaming"
)

// String returns the state name.
func (s State) String() string {
	return string(s)
}

// =============================================================================
// PendingTurn
// =============================================================================

// PendingTurn is the mutable accumulation of one in-progress assistant
// turn before commit.
//
// It is exclusively owned by the Controller for the duration of one
// streaming turn; no other component mutates it. A PendingTurn exists
// iff the controller is busy, and it is discarded without committing
// on cancellation.
type PendingTurn struct {
	buffer strings.Builder
	refs   []Reference
	seen   map[string]struct{}
}

// NewPendingTurn creates an empty accumulation.
func NewPendingTurn() *PendingTurn {
	return &PendingTurn{
		seen: make(map[string]struct{}),
	}
}

// AppendText appends a token fragment verbatim and returns the updated
// partial content.
func (p *PendingTurn) AppendText(text string) string {
	p.buffer.WriteString(text)
	return p.buffer.String()
}

// AddCitation records a citation if its id is new.
//
// An empty or already-seen citation id is ignored, which makes repeated
// citation events idempotent. On first sight the citation is assigned
// the next display index (len(refs)+1) and appended.
//
// Returns the created Reference and true, or a zero Reference and
// false when the citation was ignored.
func (p *PendingTurn) AddCitation(c stream.Citation) (Reference, bool) {
	if c.CitationID == "" {
		return Reference{}, false
	}
	if _, dup := p.seen[c.CitationID]; dup {
		return Reference{}, false
	}

	ref := newReference(len(p.refs)+1, c)
	p.refs = append(p.refs, ref)
	p.seen[c.CitationID] = struct{}{}
	return ref, true
}

// Content returns the accumulated partial text.
func (p *PendingTurn) Content() string {
	return p.buffer.String()
}

// References returns the accumulated references in display order.
func (p *PendingTurn) References() []Reference {
	return p.refs
}
