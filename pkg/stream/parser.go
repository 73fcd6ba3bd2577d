// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream provides the typed event model and wire parsing for
// SeaChat's streamed answer protocol.
//
// This file contains the framed-block parser. Parsers are responsible
// for converting one complete delimited block into a StreamEvent.
//
// Single Responsibility:
//
//	Parsers ONLY parse. They do not perform I/O, buffering, or state
//	management. Chunk-boundary buffering is the reader's job (via
//	ScanBlocks); this separation keeps both sides independently testable.
package stream

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// =============================================================================
// Block Framing
// =============================================================================

var (
	blockSepLF   = []byte("\n\n")
	blockSepCRLF = []byte("\r\n\r\n")
)

// ScanBlocks is a bufio.SplitFunc that splits a byte stream into
// blank-line delimited event blocks.
//
// Wire format (one block):
//
//	event: token\n
//	data: {"text":"Hello"}\n
//	\n
//
// A block that spans a chunk boundary is held — ScanBlocks requests
// more data instead of emitting a partial block, so no event is ever
// decoded from half a payload. Both LF and CRLF delimiters are
// accepted. At EOF a trailing unterminated block is returned as-is so
// a server that omits the final blank line still delivers its last
// event.
func ScanBlocks(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	sep, width := -1, 0
	if i := bytes.Index(data, blockSepLF); i >= 0 {
		sep, width = i, len(blockSepLF)
	}
	if i := bytes.Index(data, blockSepCRLF); i >= 0 && (sep < 0 || i < sep) {
		sep, width = i, len(blockSepCRLF)
	}
	if sep >= 0 {
		return sep + width, data[:sep], nil
	}

	if atEOF {
		return len(data), data, nil
	}

	// Partial block: hold until the next chunk completes it.
	return 0, nil, nil
}

// =============================================================================
// Block Parser
// =============================================================================

// BlockParser decodes one complete event block into a StreamEvent.
//
// # Description
//
// A block is the text between two blank-line delimiters. It carries an
// "event:" type marker line and a "data:" JSON payload line. Comment
// lines starting with ":" (the server's keep-alive pings) are ignored.
//
// # Outputs
//
// ParseBlock returns (nil, nil) for blocks with no event content
// (pure comments, stray blank lines) and a non-nil error for blocks
// that fail to decode. Callers treat decode failures as skippable:
// the stream continues.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use. The default
// implementation is stateless and inherently thread-safe.
//
// # Examples
//
//	parser := NewBlockParser()
//	ev, err := parser.ParseBlock([]byte("event: token\ndata: {\"text\":\"Hi\"}"))
//	if err == nil && ev != nil {
//	    fmt.Println(ev.Text) // "Hi"
//	}
type BlockParser interface {
	// ParseBlock parses a single delimited block (without its trailing
	// blank-line delimiter).
	//
	// Returns:
	//   - *StreamEvent: the decoded event, or nil for comment-only blocks
	//   - error: non-nil if the block is malformed or its payload fails
	//     to decode
	ParseBlock(block []byte) (*StreamEvent, error)
}

// blockParser implements BlockParser for the SeaChat wire format.
//
// Stateless and safe for concurrent use. Decoded events are assigned
// fresh Id and CreatedAt values.
type blockParser struct{}

// NewBlockParser creates a stateless block parser.
//
// The returned parser can be safely shared across goroutines.
func NewBlockParser() BlockParser {
	return &blockParser{}
}

// ParseBlock decodes one event block.
//
// Line handling within the block:
//   - "event: <type>" sets the event type (last one wins)
//   - "data: <json>" contributes a payload line; multiple data lines
//     are joined with "\n" per the SSE convention
//   - lines starting with ":" are comments (ignored)
//   - blank lines are ignored
//
// Both "data: " and "data:" prefixes are accepted (some servers omit
// the space).
func (p *blockParser) ParseBlock(block []byte) (*StreamEvent, error) {
	var (
		typ      string
		payloads []string
	)

	for _, raw := range strings.Split(string(block), "\n") {
		line := strings.TrimRight(raw, "\r")
		trimmed := strings.TrimSpace(line)

		switch {
		case trimmed == "":
			continue
		case strings.HasPrefix(trimmed, ":"):
			// Keep-alive comment, e.g. ": ping".
			continue
		case strings.HasPrefix(trimmed, "event:"):
			typ = strings.TrimSpace(strings.TrimPrefix(trimmed, "event:"))
		case strings.HasPrefix(trimmed, "data:"):
			payloads = append(payloads, strings.TrimSpace(strings.TrimPrefix(trimmed, "data:")))
		}
	}

	if typ == "" && len(payloads) == 0 {
		// Nothing but comments or whitespace.
		return nil, nil
	}
	if typ == "" {
		return nil, fmt.Errorf("block missing event type marker")
	}
	if len(payloads) == 0 {
		return nil, fmt.Errorf("block missing data payload for event %q", typ)
	}

	payload := []byte(strings.Join(payloads, "\n"))
	return p.decodePayload(EventType(typ), payload)
}

// decodePayload unmarshals the per-type JSON payload into an event.
func (p *blockParser) decodePayload(typ EventType, payload []byte) (*StreamEvent, error) {
	switch typ {
	case EventToken:
		var body struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("decode token payload: %w", err)
		}
		ev := NewTokenEvent(body.Text)
		return &ev, nil

	case EventCitation:
		var c Citation
		if err := json.Unmarshal(payload, &c); err != nil {
			return nil, fmt.Errorf("decode citation payload: %w", err)
		}
		ev := NewCitationEvent(c)
		return &ev, nil

	case EventDone:
		var body struct {
			UsedRetrieval bool `json:"used_retrieval"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("decode done payload: %w", err)
		}
		ev := NewDoneEvent(body.UsedRetrieval)
		return &ev, nil

	case EventError:
		var body struct {
			Message string `json:"message"`
		}
		if err := json.Unmarshal(payload, &body); err != nil {
			return nil, fmt.Errorf("decode error payload: %w", err)
		}
		ev := NewErrorEvent(body.Message)
		return &ev, nil

	default:
		return nil, fmt.Errorf("unknown event type %q", typ)
	}
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ BlockParser = (*blockParser)(nil)
