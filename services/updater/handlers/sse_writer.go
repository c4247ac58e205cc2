// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter writes progress events to an HTTP response in SSE wire format.
//
// # Description
//
// Abstracts SSE event serialization so handlers and tests can share the
// framing logic. Each event is written as "event: type\ndata: json\n\n" and
// flushed immediately. Id and CreatedAt are assigned at write time.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use: the pipeline pumps stdout
// and stderr from separate goroutines, and the keepalive ticker writes from
// a third.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders() before the first write
type SSEWriter interface {
	// WriteEvent writes one event. Id and CreatedAt are auto-assigned.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteLog writes a plain pipeline output line.
	WriteLog(line string) error

	// WriteWarning writes a stderr line that is not known to be benign.
	WriteWarning(line string) error

	// WriteStatus writes the terminal status with a human-readable message.
	WriteStatus(status datatypes.TerminalStatus, message string) error

	// WriteFinished writes the stream-framing event that precedes close.
	WriteFinished() error

	// WriteKeepAlive sends an SSE comment to keep the connection alive
	// through load balancers during long pipeline steps.
	WriteKeepAlive() error
}

// =============================================================================
// Implementation
// =============================================================================

// sseWriter implements SSEWriter over an http.ResponseWriter.
type sseWriter struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	mu      sync.Mutex
}

// NewSSEWriter creates an SSEWriter for the given ResponseWriter.
//
// # Outputs
//
//   - SSEWriter: Ready to write events.
//   - error: Non-nil if the ResponseWriter does not support http.Flusher.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}
	return &sseWriter{writer: w, flusher: flusher}, nil
}

// WriteEvent writes a single SSE event and flushes it.
func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// WriteLog writes a plain pipeline output line.
func (w *sseWriter) WriteLog(line string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "log", Log: line})
}

// WriteWarning writes a stderr line that is not known to be benign.
func (w *sseWriter) WriteWarning(line string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "warning", Log: line, Warning: true})
}

// WriteStatus writes the terminal status event.
func (w *sseWriter) WriteStatus(status datatypes.TerminalStatus, message string) error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "status", Status: status, Message: message})
}

// WriteFinished writes the framing event the UI uses to know the stream is
// complete rather than cut off mid-operation.
func (w *sseWriter) WriteFinished() error {
	return w.WriteEvent(datatypes.StreamEvent{Type: "status", Status: datatypes.StatusFinished})
}

// WriteKeepAlive sends an SSE comment line. Comments are ignored by clients
// but reset proxy idle-timeout counters.
func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
// Must be called before any response body is written.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Compile-time interface check
var _ SSEWriter = (*sseWriter)(nil)
