// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package stream provides the typed event model and wire parsing for
// SeaChat's streamed answer protocol.
//
// This file contains the stream reader that consumes an io.Reader and
// emits parsed events via callbacks.
//
// Single Responsibility:
//
//	Readers handle I/O and event sequencing. They use a BlockParser to
//	convert bytes to events but do not render output or mutate session
//	state.
//
// Context Support:
//
//	Read honors context cancellation at each block boundary: once the
//	context is done, no further events are delivered.
package stream

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"strings"
)

// maxBlockBytes bounds a single event block. The server caps citation
// snippets at 4000 characters, so 1 MiB leaves generous headroom.
const maxBlockBytes = 1 << 20

// =============================================================================
// Reader Interface
// =============================================================================

// Reader reads a framed event stream and invokes callbacks.
//
// # Description
//
// Reader abstracts consumption of one streamed answer. The sequence it
// yields is lazy, ordered, finite, and non-restartable: reading stops
// at the first terminal event, and a consumed reader cannot be rewound.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use, but a single Read
// or ReadAll operation must not be invoked concurrently on the same
// underlying io.Reader.
//
// # Examples
//
//	reader := NewReader(NewBlockParser())
//	err := reader.Read(ctx, resp.Body, func(ev StreamEvent) error {
//	    if ev.Type == EventToken {
//	        fmt.Print(ev.Text)
//	    }
//	    return nil
//	})
//
// # Limitations
//
//   - A block larger than 1 MiB aborts the read with bufio.ErrTooLong.
//
// # Assumptions
//
//   - The caller owns the io.Reader and closes it after Read returns.
type Reader interface {
	// Read processes the stream, invoking callback for each event.
	//
	// Inputs:
	//   - ctx: cancellation boundary; checked before every block.
	//   - r: the byte source. Caller is responsible for closing.
	//   - callback: invoked per event in arrival order. Returning an
	//     error stops reading and propagates that error.
	//
	// Outputs:
	//   - error: nil on clean completion (terminal event or EOF),
	//     otherwise the context, scanner, or callback error that
	//     stopped reading.
	//
	// A block that fails to decode is logged and skipped; the stream
	// continues. Reading stops at the first terminal event.
	Read(ctx context.Context, r io.Reader, callback Callback) error

	// ReadAll consumes the entire stream into an aggregated result.
	//
	// Convenience over Read: collects tokens into Answer, citations in
	// arrival order, the done/error outcome, and timing metrics. A
	// stream that ends with an error event is NOT a read failure; the
	// message is captured in StreamResult.Err and ReadAll returns nil.
	ReadAll(ctx context.Context, r io.Reader) (*StreamResult, error)
}

// =============================================================================
// Block Stream Reader
// =============================================================================

// blockStreamReader implements Reader over blank-line delimited blocks.
type blockStreamReader struct {
	parser BlockParser
	log    *slog.Logger
}

// NewReader creates a stream reader using the default logger.
func NewReader(parser BlockParser) Reader {
	return NewReaderWithLogger(parser, slog.Default())
}

// NewReaderWithLogger creates a stream reader with an injected logger.
//
// Use this constructor in tests to capture or silence the skipped-block
// warnings.
func NewReaderWithLogger(parser BlockParser, log *slog.Logger) Reader {
	if log == nil {
		log = slog.Default()
	}
	return &blockStreamReader{parser: parser, log: log}
}

// Read scans blocks, parses each one, and dispatches events in order.
//
// Undecodable blocks degrade to a logged skip: a single corrupt payload
// must not kill an otherwise healthy stream.
func (r *blockStreamReader) Read(ctx context.Context, reader io.Reader, callback Callback) error {
	scanner := bufio.NewScanner(reader)
	scanner.Split(ScanBlocks)
	scanner.Buffer(make([]byte, 0, 64*1024), maxBlockBytes)

	eventIndex := 0

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		block := scanner.Bytes()

		event, err := r.parser.ParseBlock(block)
		if err != nil {
			r.log.Warn("skipping undecodable stream block",
				"error", err,
				"block_bytes", len(block),
			)
			continue
		}

		// Comment-only blocks (keep-alive pings).
		if event == nil {
			continue
		}

		event.Index = eventIndex
		eventIndex++

		if err := callback(*event); err != nil {
			return err
		}

		if event.IsTerminal() {
			return nil
		}
	}

	if err := scanner.Err(); err != nil {
		return err
	}

	return nil
}

// ReadAll aggregates the whole stream into a StreamResult.
func (r *blockStreamReader) ReadAll(ctx context.Context, reader io.Reader) (*StreamResult, error) {
	result := NewStreamResult()

	var answer strings.Builder

	err := r.Read(ctx, reader, func(event StreamEvent) error {
		result.TotalEvents++

		switch event.Type {
		case EventToken:
			if result.FirstTokenAt == 0 {
				result.FirstTokenAt = event.CreatedAt
			}
			answer.WriteString(event.Text)
			result.TotalTokens++

		case EventCitation:
			if event.Citation != nil {
				result.Citations = append(result.Citations, *event.Citation)
			}

		case EventDone:
			result.UsedRetrieval = event.UsedRetrieval
			result.CompletedAt = event.CreatedAt

		case EventError:
			result.Err = event.Message
			result.CompletedAt = event.CreatedAt
		}

		return nil
	})

	result.Answer = answer.String()

	// A stream may end at EOF without a terminal event; close the books
	// anyway so Duration() stays meaningful.
	if result.CompletedAt == 0 {
		result.CompletedAt = nowMilli()
	}

	return result, err
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ Reader = (*blockStreamReader)(nil)
