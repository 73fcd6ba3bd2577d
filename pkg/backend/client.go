// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package backend is the HTTP client for the SeaChat document-QA
// backend.
//
// It follows the layered streaming architecture:
//
//	Session Controller → backend.Client → HTTPClient → http.Client
//	Response Body → stream.BlockParser → stream.Reader → StreamEvent
//
// The chat endpoint needs an outbound POST body while the response is
// consumed as a continuous chunked stream, which a push-only event
// source cannot do; the client therefore reads the chunked response
// through pkg/stream instead of subscribing to server push.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/SeaChat/pkg/session"
	"github.com/AleutianAI/SeaChat/pkg/stream"
)

// =============================================================================
// HTTP Client Interface
// =============================================================================

// HTTPClient abstracts the HTTP operations the backend client needs.
//
// Production code uses defaultHTTPClient; tests inject mocks returning
// canned responses.
type HTTPClient interface {
	// Post sends a POST request with the given body.
	Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error)

	// PostWithHeaders sends a POST request with additional headers.
	PostWithHeaders(ctx context.Context, url, contentType string, body io.Reader, headers map[string]string) (*http.Response, error)

	// Get sends a GET request.
	Get(ctx context.Context, url string) (*http.Response, error)
}

// defaultHTTPClient wraps the standard http.Client.
type defaultHTTPClient struct {
	client *http.Client
}

func (d *defaultHTTPClient) Post(ctx context.Context, url, contentType string, body io.Reader) (*http.Response, error) {
	return d.PostWithHeaders(ctx, url, contentType, body, nil)
}

func (d *defaultHTTPClient) PostWithHeaders(ctx context.Context, url, contentType string, body io.Reader, headers map[string]string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return d.client.Do(req)
}

func (d *defaultHTTPClient) Get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return d.client.Do(req)
}

var _ HTTPClient = (*defaultHTTPClient)(nil)

// =============================================================================
// Client
// =============================================================================

// Config configures a backend Client. Only BaseURL is required.
type Config struct {
	// BaseURL is the backend origin without trailing slash, e.g.
	// "http://localhost:8000".
	BaseURL string

	// Timeout bounds a whole request including the streamed response.
	// Default: 5 minutes.
	Timeout time.Duration

	// Logger for request diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// Client talks to the backend's chat, session, and asset endpoints.
//
// It implements session.Opener (the chat stream) and session.Clearer
// (remote session reset), plus the read-only collaborators the render
// pipeline consumes: page-image listing and asset address building.
// Safe for concurrent use.
type Client struct {
	http    HTTPClient
	baseURL string
	log     *slog.Logger
	reader  stream.Reader

	// imageGroup collapses duplicate concurrent page-image lookups
	// for the same (fileId, page).
	imageGroup singleflight.Group
}

// New creates a backend client with a production HTTP client.
func New(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return NewWithHTTPClient(&defaultHTTPClient{
		client: &http.Client{Timeout: timeout},
	}, cfg)
}

// NewWithHTTPClient creates a backend client with an injected HTTP
// client. Use this constructor in tests.
func NewWithHTTPClient(httpClient HTTPClient, cfg Config) *Client {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Client{
		http:    httpClient,
		baseURL: trimBaseURL(cfg.BaseURL),
		log:     log,
		reader:  stream.NewReaderWithLogger(stream.NewBlockParser(), log),
	}
}

func trimBaseURL(u string) string {
	for len(u) > 0 && u[len(u)-1] == '/' {
		u = u[:len(u)-1]
	}
	return u
}

// BaseURL returns the configured backend origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// =============================================================================
// Chat Stream
// =============================================================================

// Open starts one streamed answer for a question.
//
// The request carries the question, the session id, and an optional
// scope file id. An error here is a transport-level failure: either
// the connection could not be established or the server rejected the
// request before streaming began. The returned stream must be consumed
// with Read or released with Cancel.
func (c *Client) Open(ctx context.Context, question, scopeFileID, sessionID string) (session.Stream, error) {
	req := ChatRequest{
		Message:   question,
		SessionID: sessionID,
		PDFFileID: scopeFileID,
	}
	req.EnsureDefaults()
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("validate chat request: %w", err)
	}

	requestID := uuid.New().String()

	c.log.Debug("opening chat stream",
		"request_id", requestID,
		"session_id", req.SessionID,
		"scope_file_id", scopeFileID,
		"message_length", len(question),
	)

	postBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	streamCtx, cancel := context.WithCancel(ctx)

	resp, err := c.http.PostWithHeaders(streamCtx, c.baseURL+"/api/v1/chat", "application/json",
		bytes.NewBuffer(postBody), map[string]string{"X-Request-ID": requestID})
	if err != nil {
		cancel()
		c.log.Error("chat stream HTTP request failed",
			"request_id", requestID,
			"error", err,
		)
		return nil, fmt.Errorf("http post: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		bodyBytes, readErr := io.ReadAll(resp.Body)
		closeBody(c.log, resp.Body)
		cancel()
		if readErr != nil {
			return nil, fmt.Errorf("server error (%d): failed to read response body", resp.StatusCode)
		}
		c.log.Error("chat stream rejected by server",
			"request_id", requestID,
			"status_code", resp.StatusCode,
			"response_body", string(bodyBytes),
		)
		return nil, fmt.Errorf("server error (%d): %s", resp.StatusCode, string(bodyBytes))
	}

	return &ChatStream{
		body:      resp.Body,
		reader:    c.reader,
		ctx:       streamCtx,
		cancel:    cancel,
		log:       c.log,
		requestID: requestID,
	}, nil
}

// ChatStream is one open answer stream.
//
// The event sequence is lazy, ordered, finite, and non-restartable:
// Read consumes the response body exactly once and releases the
// connection as soon as a terminal event arrives.
type ChatStream struct {
	body      io.ReadCloser
	reader    stream.Reader
	ctx       context.Context
	cancel    context.CancelFunc
	log       *slog.Logger
	requestID string
	once      sync.Once
}

// Read delivers events in arrival order until a terminal event, EOF,
// cancellation, or a callback error. The underlying connection is
// released before Read returns, whatever the outcome.
func (s *ChatStream) Read(ctx context.Context, callback stream.Callback) error {
	defer s.release()

	return s.reader.Read(ctx, s.body, func(ev stream.StreamEvent) error {
		// An event scanned after Cancel must be discarded.
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		default:
		}
		return callback(ev)
	})
}

// Cancel aborts the stream and releases the connection.
//
// Safe to call at any time, from any goroutine, including after the
// stream completed naturally; no further events are delivered.
func (s *ChatStream) Cancel() {
	s.release()
}

// release cancels the request context and closes the body exactly once.
func (s *ChatStream) release() {
	s.once.Do(func() {
		s.cancel()
		if err := s.body.Close(); err != nil {
			s.log.Debug("closing chat stream body",
				"request_id", s.requestID,
				"error", err,
			)
		}
	})
}

// =============================================================================
// Session Clear
// =============================================================================

// ClearSession asks the backend to drop the conversation memory for a
// session. Callers treat failures as best-effort: local reset proceeds
// regardless.
func (c *Client) ClearSession(ctx context.Context, sessionID string) error {
	req := ClearRequest{SessionID: sessionID}
	if err := req.Validate(); err != nil {
		return fmt.Errorf("validate clear request: %w", err)
	}

	postBody, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal clear request: %w", err)
	}

	resp, err := c.http.Post(ctx, c.baseURL+"/api/v1/chat/clear", "application/json", bytes.NewBuffer(postBody))
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer closeBody(c.log, resp.Body)

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server error (%d): %s", resp.StatusCode, string(bodyBytes))
	}
	return nil
}

// =============================================================================
// Health
// =============================================================================

// HealthStatus is the backend's health response.
type HealthStatus struct {
	OK      bool   `json:"ok"`
	Version string `json:"version"`
}

// Health performs a one-shot health check.
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	resp, err := c.http.Get(ctx, c.baseURL+"/api/v1/health")
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer closeBody(c.log, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("server error (%d)", resp.StatusCode)
	}

	var status HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("decode health response: %w", err)
	}
	return &status, nil
}

// closeBody closes a response body, logging instead of failing.
func closeBody(log *slog.Logger, body io.ReadCloser) {
	if err := body.Close(); err != nil {
		log.Error("failed to close response body", "error", err)
	}
}

// =============================================================================
// Compile-time Interface Checks
// =============================================================================

var _ session.Opener = (*Client)(nil)
var _ session.Clearer = (*Client)(nil)
var _ session.Stream = (*ChatStream)(nil)
