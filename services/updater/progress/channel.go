// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package progress defines the one-way, ordered event channel that carries
// pipeline output from an orchestrator to an observer.
//
// The abstraction is transport-agnostic: the HTTP layer adapts it onto SSE
// and WebSocket connections, the CLI and tests use the in-memory Buffer.
// Ordering is the contract that matters — events are delivered in the exact
// order emitted, with exactly one terminal status before Close.
package progress

import (
	"sync"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// Channel is a one-way, ordered, server-to-observer event stream.
//
// # Description
//
// An orchestrator emits a sequence of log/warning lines followed by exactly
// one terminal status, then closes the channel. Implementations must preserve
// emission order.
//
// Emit methods have no error return on purpose: an observer disconnecting
// must never abort the pipeline that is feeding the channel. Transport
// implementations swallow write failures and keep accepting events.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use; the pipeline runner pumps
// stdout and stderr from separate goroutines.
type Channel interface {
	// Emit forwards one pipeline output line to the observer.
	Emit(line string)

	// EmitWarning forwards one stderr line that is not known to be benign.
	EmitWarning(line string)

	// EmitStatus emits the terminal status with a human-readable message.
	// Must be called exactly once per operation, before Close. Extra calls
	// are dropped.
	EmitStatus(status datatypes.TerminalStatus, message string)

	// Close ends the stream. Transports append their framing "finished"
	// event here. Close is idempotent; events after Close are dropped.
	Close()
}

// =============================================================================
// Buffer
// =============================================================================

// Buffer is an in-memory Channel that records events in order.
//
// # Description
//
// Used by tests to assert on the exact event sequence, and by callers that
// drive an operation without a live observer.
//
// # Thread Safety
//
// Safe for concurrent use.
type Buffer struct {
	mu       sync.Mutex
	events   []datatypes.StreamEvent
	terminal bool
	closed   bool
}

// NewBuffer creates an empty Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// Emit records a log event.
func (b *Buffer) Emit(line string) {
	b.append(datatypes.StreamEvent{Type: "log", Log: line})
}

// EmitWarning records a warning event.
func (b *Buffer) EmitWarning(line string) {
	b.append(datatypes.StreamEvent{Type: "warning", Log: line, Warning: true})
}

// EmitStatus records the terminal status. Second and later calls are dropped.
func (b *Buffer) EmitStatus(status datatypes.TerminalStatus, message string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed || b.terminal {
		return
	}
	b.terminal = true
	b.events = append(b.events, datatypes.StreamEvent{Type: "status", Status: status, Message: message})
}

// Close marks the buffer closed. Events after Close are dropped.
func (b *Buffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}

// Events returns a copy of all recorded events in emission order.
func (b *Buffer) Events() []datatypes.StreamEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]datatypes.StreamEvent, len(b.events))
	copy(out, b.events)
	return out
}

// Terminal returns the terminal status event, if one was emitted.
func (b *Buffer) Terminal() (datatypes.StreamEvent, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ev := range b.events {
		if ev.Type == "status" {
			return ev, true
		}
	}
	return datatypes.StreamEvent{}, false
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

func (b *Buffer) append(ev datatypes.StreamEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.events = append(b.events, ev)
}

// Compile-time interface check
var _ Channel = (*Buffer)(nil)
