// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/SeaChat/pkg/stream"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := New(Config{BaseURL: srv.URL, Logger: testLogger()})
	return client, srv
}

// writeBlock writes one framed event block and flushes it.
func writeBlock(w http.ResponseWriter, eventType, payload string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", eventType, payload)
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
}

// =============================================================================
// Chat Stream
// =============================================================================

func TestClient_Open_StreamsEvents(t *testing.T) {
	var gotBody ChatRequest
	var gotRequestID string

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/chat", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		gotRequestID = r.Header.Get("X-Request-ID")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "text/event-stream")
		writeBlock(w, "citation", `{"citation_id":"c1","fileId":"f1","page":3,"rank":1}`)
		writeBlock(w, "token", `{"text":"Connect "}`)
		writeBlock(w, "token", `{"text":"the cable."}`)
		writeBlock(w, "done", `{"used_retrieval":true}`)
	})
	client, _ := newTestClient(t, handler)

	handle, err := client.Open(context.Background(), "How do I install it?", "f1", "session-1")
	require.NoError(t, err)

	var events []stream.StreamEvent
	err = handle.Read(context.Background(), func(ev stream.StreamEvent) error {
		events = append(events, ev)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, "How do I install it?", gotBody.Message)
	assert.Equal(t, "session-1", gotBody.SessionID)
	assert.Equal(t, "f1", gotBody.PDFFileID)
	assert.NotEmpty(t, gotRequestID)

	require.Len(t, events, 4)
	assert.Equal(t, stream.EventCitation, events[0].Type)
	require.NotNil(t, events[0].Citation)
	assert.Equal(t, "c1", events[0].Citation.CitationID)
	assert.Equal(t, stream.EventToken, events[1].Type)
	assert.Equal(t, "Connect ", events[1].Text)
	assert.Equal(t, stream.EventDone, events[3].Type)
	assert.True(t, events[3].UsedRetrieval)
}

func TestClient_Open_DefaultsSessionID(t *testing.T) {
	var gotBody ChatRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		writeBlock(w, "done", `{"used_retrieval":false}`)
	})
	client, _ := newTestClient(t, handler)

	handle, err := client.Open(context.Background(), "hello", "", "")
	require.NoError(t, err)
	defer handle.Cancel()

	assert.NotEmpty(t, gotBody.SessionID, "a missing session id must be defaulted")
	assert.Empty(t, gotBody.PDFFileID)
}

func TestClient_Open_RejectsEmptyMessage(t *testing.T) {
	client := New(Config{BaseURL: "http://localhost:1", Logger: testLogger()})

	_, err := client.Open(context.Background(), "", "", "session-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate chat request")
}

func TestClient_Open_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "model loading")
	})
	client, _ := newTestClient(t, handler)

	_, err := client.Open(context.Background(), "hello", "", "session-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error (503)")
	assert.Contains(t, err.Error(), "model loading")
}

func TestClient_Open_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()
	client := New(Config{BaseURL: srv.URL, Logger: testLogger()})

	_, err := client.Open(context.Background(), "hello", "", "session-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http post")
}

func TestChatStream_CancelStopsDelivery(t *testing.T) {
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeBlock(w, "token", `{"text":"first"}`)
		<-release
		writeBlock(w, "token", `{"text":"late"}`)
		writeBlock(w, "done", `{"used_retrieval":false}`)
	})
	client, _ := newTestClient(t, handler)
	defer close(release)

	handle, err := client.Open(context.Background(), "hello", "", "session-1")
	require.NoError(t, err)

	var delivered []string
	err = handle.Read(context.Background(), func(ev stream.StreamEvent) error {
		delivered = append(delivered, ev.Text)
		handle.Cancel()
		return nil
	})
	require.Error(t, err, "a cancelled stream must not end cleanly")
	assert.Equal(t, []string{"first"}, delivered, "no events may arrive after Cancel")
}

func TestChatStream_CancelIsIdempotent(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeBlock(w, "done", `{"used_retrieval":false}`)
	})
	client, _ := newTestClient(t, handler)

	handle, err := client.Open(context.Background(), "hello", "", "session-1")
	require.NoError(t, err)

	require.NoError(t, handle.Read(context.Background(), func(stream.StreamEvent) error { return nil }))

	// Cancel after natural completion, twice, from two goroutines.
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			handle.Cancel()
		}()
	}
	wg.Wait()
}

func TestChatStream_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeBlock(w, "token", `{"text":"first"}`)
		close(started)
		<-r.Context().Done()
	})
	client, _ := newTestClient(t, handler)

	ctx, cancel := context.WithCancel(context.Background())
	handle, err := client.Open(ctx, "hello", "", "session-1")
	require.NoError(t, err)

	go func() {
		<-started
		cancel()
	}()

	err = handle.Read(ctx, func(stream.StreamEvent) error { return nil })
	require.Error(t, err)
}

// =============================================================================
// Session Clear
// =============================================================================

func TestClient_ClearSession(t *testing.T) {
	var gotBody ClearRequest
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat/clear", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"ok":true}`)
	})
	client, _ := newTestClient(t, handler)

	require.NoError(t, client.ClearSession(context.Background(), "session-1"))
	assert.Equal(t, "session-1", gotBody.SessionID)
}

func TestClient_ClearSession_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "session store unavailable")
	})
	client, _ := newTestClient(t, handler)

	err := client.ClearSession(context.Background(), "session-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error (500)")
}

func TestClient_ClearSession_RequiresSessionID(t *testing.T) {
	client := New(Config{BaseURL: "http://localhost:1", Logger: testLogger()})

	err := client.ClearSession(context.Background(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validate clear request")
}

// =============================================================================
// Health
// =============================================================================

func TestClient_Health(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/health", r.URL.Path)
		fmt.Fprint(w, `{"ok":true,"version":"0.4.1"}`)
	})
	client, _ := newTestClient(t, handler)

	status, err := client.Health(context.Background())
	require.NoError(t, err)
	assert.True(t, status.OK)
	assert.Equal(t, "0.4.1", status.Version)
}

func TestClient_Health_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	client, _ := newTestClient(t, handler)

	_, err := client.Health(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error (502)")
}

// =============================================================================
// Page Images
// =============================================================================

func TestClient_PageImages(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/pdf/page-images", r.URL.Path)
		require.Equal(t, "f1", r.URL.Query().Get("fileId"))
		require.Equal(t, "3", r.URL.Query().Get("page"))
		fmt.Fprint(w, `{"images":["page3_img1.png","page3_img2.png"]}`)
	})
	client, _ := newTestClient(t, handler)

	images, err := client.PageImages(context.Background(), "f1", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"page3_img1.png", "page3_img2.png"}, images)
}

func TestClient_PageImages_EmptyList(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"images":[]}`)
	})
	client, _ := newTestClient(t, handler)

	images, err := client.PageImages(context.Background(), "f1", 9)
	require.NoError(t, err)
	assert.Empty(t, images)
}

func TestClient_PageImages_RequiresFileID(t *testing.T) {
	client := New(Config{BaseURL: "http://localhost:1", Logger: testLogger()})

	_, err := client.PageImages(context.Background(), "", 1)
	require.Error(t, err)
}

func TestClient_PageImages_ServerError(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, "unknown file")
	})
	client, _ := newTestClient(t, handler)

	_, err := client.PageImages(context.Background(), "missing", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server error (404)")
}

func TestClient_PageImages_CollapsesConcurrentLookups(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		fmt.Fprint(w, `{"images":["page3_img1.png"]}`)
	})
	client, _ := newTestClient(t, handler)

	const callers = 5
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			images, err := client.PageImages(context.Background(), "f1", 3)
			assert.NoError(t, err)
			assert.Equal(t, []string{"page3_img1.png"}, images)
		}()
	}

	// Let the callers pile up on the in-flight request before the
	// server answers.
	time.Sleep(100 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), hits.Load(), "concurrent lookups for one page must share a request")
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_TrimsBaseURL(t *testing.T) {
	client := New(Config{BaseURL: "http://localhost:8000//", Logger: testLogger()})
	assert.Equal(t, "http://localhost:8000", client.BaseURL())
}
