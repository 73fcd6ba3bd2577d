// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream provides the typed event model and wire parsing for
// SeaChat's streamed answer protocol.
//
// The server answers a question as a framed byte stream: blank-line
// delimited blocks, each carrying an "event:" type marker line and a
// "data:" JSON payload line. This package converts that stream into
// typed StreamEvent values without losing or duplicating data across
// chunk boundaries.
//
// Single Responsibility:
//
//	This package ONLY models and decodes events. It performs no HTTP,
//	no session state management, and no rendering. Those concerns live
//	in pkg/backend, pkg/session, and pkg/render respectively.
package stream

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// nowMilli returns the current wall clock in Unix milliseconds.
func nowMilli() int64 {
	return time.Now().UnixMilli()
}

// =============================================================================
// Event Types
// =============================================================================

// EventType identifies the kind of a stream event.
//
// The wire protocol defines four types. Token and Citation events are
// interleaved in arrival order; Done and Error are terminal: nothing
// follows them on a well-formed stream.
type EventType string

const (
	// EventToken carries an incremental fragment of the answer text.
	EventToken EventType = "token"

	// EventCitation carries one retrieval citation record. Citations may
	// arrive before, between, or after token events.
	EventCitation EventType = "citation"

	// EventDone marks successful completion of the answer. Terminal.
	EventDone EventType = "done"

	// EventError marks a server-reported failure of the turn. Terminal.
	EventError EventType = "error"
)

// String returns the wire name of the event type.
func (t EventType) String() string {
	return string(t)
}

// IsTerminal reports whether the event type ends the stream.
//
// After a terminal event the transport stops reading and releases the
// underlying connection; no further events are ever emitted.
func (t EventType) IsTerminal() bool {
	return t == EventDone || t == EventError
}

// =============================================================================
// Citation
// =============================================================================

// Citation is the wire payload of a citation event.
//
// # Description
//
// A citation is a server-asserted evidence pointer: the file and page a
// fragment of the answer was grounded on, plus a snippet of the source
// text. The server may emit the same citation_id more than once within
// a turn; deduplication is the session controller's job, not ours.
//
// # Fields
//
//   - CitationID: stable identifier, unique per distinct citation within
//     a turn. The dedup key.
//   - FileID: owning file identifier. May be empty when unknown.
//   - SourceName: human-readable document name.
//   - Rank: server-supplied ordering hint. Stored as-is; this client
//     assigns display order by arrival, not by rank.
//   - Page: 1-based page number; 0 when the server did not know the page.
//   - Snippet: source text excerpt (server caps at 4000 chars).
//   - Score: retrieval relevance score. Stored as-is.
//   - PreviewURL: server-relative address of a page render, when present.
type Citation struct {
	CitationID string  `json:"citation_id"`
	FileID     string  `json:"fileId"`
	SourceName string  `json:"sourceName,omitempty"`
	Rank       int     `json:"rank,omitempty"`
	Page       int     `json:"page,omitempty"`
	Snippet    string  `json:"snippet,omitempty"`
	Score      float64 `json:"score,omitempty"`
	PreviewURL string  `json:"previewUrl,omitempty"`
}

// UnmarshalJSON decodes a citation payload.
//
// The server emits "page" as a number when known but as the literal
// string "?" when page metadata is missing. Both forms decode; an
// unparseable page degrades to 0 rather than failing the event.
func (c *Citation) UnmarshalJSON(data []byte) error {
	type alias Citation
	aux := struct {
		Page any `json:"page"`
		*alias
	}{alias: (*alias)(c)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	switch v := aux.Page.(type) {
	case float64:
		c.Page = int(v)
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			c.Page = n
		}
	}
	return nil
}

// =============================================================================
// StreamEvent
// =============================================================================

// StreamEvent is one decoded event from the answer stream.
//
// Exactly one payload field is meaningful per Type:
//
//	EventToken    -> Text
//	EventCitation -> Citation (non-nil)
//	EventDone     -> UsedRetrieval
//	EventError    -> Message
//
// Id and CreatedAt are assigned client-side at decode time for audit
// trails; Index is the zero-based position within the stream, assigned
// by the reader.
type StreamEvent struct {
	Id            string
	CreatedAt     int64 // Unix milliseconds
	Index         int
	Type          EventType
	Text          string
	Citation      *Citation
	UsedRetrieval bool
	Message       string
}

// IsTerminal reports whether this event ends the stream.
func (e StreamEvent) IsTerminal() bool {
	return e.Type.IsTerminal()
}

// CreatedAtTime returns CreatedAt as a time.Time.
func (e StreamEvent) CreatedAtTime() time.Time {
	return time.UnixMilli(e.CreatedAt)
}

// NewTokenEvent creates a token event carrying a text fragment.
func NewTokenEvent(text string) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      EventToken,
		Text:      text,
	}
}

// NewCitationEvent creates a citation event.
func NewCitationEvent(c Citation) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      EventCitation,
		Citation:  &c,
	}
}

// NewDoneEvent creates a terminal done event.
func NewDoneEvent(usedRetrieval bool) StreamEvent {
	return StreamEvent{
		Id:            uuid.New().String(),
		CreatedAt:     time.Now().UnixMilli(),
		Type:          EventDone,
		UsedRetrieval: usedRetrieval,
	}
}

// NewErrorEvent creates a terminal error event.
func NewErrorEvent(message string) StreamEvent {
	return StreamEvent{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
		Type:      EventError,
		Message:   message,
	}
}

// Callback receives each event as it is read from the stream.
//
// Returning a non-nil error stops the read loop immediately; the error
// is propagated to the Read caller.
type Callback func(event StreamEvent) error

// =============================================================================
// StreamResult
// =============================================================================

// StreamResult aggregates one complete stream read.
//
// # Description
//
// StreamResult captures the concatenated answer, the citations in
// arrival order, the done/error outcome, and per-turn timing metrics.
// Timestamps are Unix milliseconds; zero means "never happened" (for
// example FirstTokenAt stays 0 on a turn with no token events).
type StreamResult struct {
	Id            string
	RequestID     string
	CreatedAt     int64
	FirstTokenAt  int64
	CompletedAt   int64
	TotalEvents   int
	TotalTokens   int
	Answer        string
	Citations     []Citation
	UsedRetrieval bool
	Err           string
}

// NewStreamResult creates a result with a fresh Id and CreatedAt.
func NewStreamResult() *StreamResult {
	return &StreamResult{
		Id:        uuid.New().String(),
		CreatedAt: time.Now().UnixMilli(),
	}
}

// NewStreamResultWithRequestID creates a result tied to a request id.
func NewStreamResultWithRequestID(requestID string) *StreamResult {
	r := NewStreamResult()
	r.RequestID = requestID
	return r
}

// HasError reports whether the stream ended with an error event.
func (r *StreamResult) HasError() bool {
	return r.Err != ""
}

// Duration returns CompletedAt - CreatedAt, or 0 if either is unset.
func (r *StreamResult) Duration() time.Duration {
	if r.CreatedAt == 0 || r.CompletedAt == 0 {
		return 0
	}
	return time.Duration(r.CompletedAt-r.CreatedAt) * time.Millisecond
}

// TimeToFirstToken returns FirstTokenAt - CreatedAt, or 0 if either is unset.
func (r *StreamResult) TimeToFirstToken() time.Duration {
	if r.CreatedAt == 0 || r.FirstTokenAt == 0 {
		return 0
	}
	return time.Duration(r.FirstTokenAt-r.CreatedAt) * time.Millisecond
}

// TokensPerSecond returns the token throughput, or 0 when unmeasurable.
func (r *StreamResult) TokensPerSecond() float64 {
	d := r.Duration()
	if d <= 0 || r.TotalTokens == 0 {
		return 0
	}
	return float64(r.TotalTokens) / d.Seconds()
}

// CreatedAtTime returns CreatedAt as a time.Time.
func (r *StreamResult) CreatedAtTime() time.Time {
	return time.UnixMilli(r.CreatedAt)
}

// CompletedAtTime returns CompletedAt as a time.Time.
func (r *StreamResult) CompletedAtTime() time.Time {
	return time.UnixMilli(r.CompletedAt)
}

// FirstTokenAtTime returns FirstTokenAt as a time.Time, or the zero
// time if no token ever arrived.
func (r *StreamResult) FirstTokenAtTime() time.Time {
	if r.FirstTokenAt == 0 {
		return time.Time{}
	}
	return time.UnixMilli(r.FirstTokenAt)
}
