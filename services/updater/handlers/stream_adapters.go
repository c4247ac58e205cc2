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
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
	"github.com/AleutianAI/NetPanel/services/updater/progress"
)

// =============================================================================
// SSE Adapter
// =============================================================================

// sseChannel adapts an SSEWriter onto progress.Channel.
//
// # Description
//
// Write failures are swallowed on purpose: the observer disconnecting must
// never abort the operation feeding the channel. Once a write fails the
// channel keeps accepting events and keeps dropping them; the operation's
// outcome is preserved in the journal regardless.
//
// # Thread Safety
//
// Safe for concurrent use.
type sseChannel struct {
	writer SSEWriter
	logger *slog.Logger

	mu       sync.Mutex
	terminal bool
	closed   bool
	dead     bool
}

// newSSEChannel wraps an SSEWriter as a progress channel.
func newSSEChannel(writer SSEWriter, logger *slog.Logger) *sseChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &sseChannel{writer: writer, logger: logger}
}

func (c *sseChannel) Emit(line string) {
	c.write(func() error { return c.writer.WriteLog(line) }, false)
}

func (c *sseChannel) EmitWarning(line string) {
	c.write(func() error { return c.writer.WriteWarning(line) }, false)
}

func (c *sseChannel) EmitStatus(status datatypes.TerminalStatus, message string) {
	c.mu.Lock()
	if c.closed || c.terminal {
		c.mu.Unlock()
		return
	}
	c.terminal = true
	c.mu.Unlock()
	c.write(func() error { return c.writer.WriteStatus(status, message) }, true)
}

// Close appends the framing "finished" event. Idempotent.
func (c *sseChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.write(func() error { return c.writer.WriteFinished() }, true)
}

// write runs fn unless the channel is dead or (for non-status events)
// closed. The first failed write marks the channel dead.
func (c *sseChannel) write(fn func() error, isStatus bool) {
	c.mu.Lock()
	if c.dead || (c.closed && !isStatus) {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	if err := fn(); err != nil {
		c.mu.Lock()
		c.dead = true
		c.mu.Unlock()
		c.logger.Info("observer disconnected, continuing without a stream", "error", err)
	}
}

// =============================================================================
// WebSocket Adapter
// =============================================================================

// wsChannel adapts a gorilla WebSocket connection onto progress.Channel.
//
// Same disconnect semantics as sseChannel: write failures mark the channel
// dead and the operation carries on. The connection itself is closed by the
// handler, not here.
type wsChannel struct {
	conn   *websocket.Conn
	logger *slog.Logger

	mu       sync.Mutex
	terminal bool
	closed   bool
	dead     bool
}

// newWSChannel wraps a WebSocket connection as a progress channel.
func newWSChannel(conn *websocket.Conn, logger *slog.Logger) *wsChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &wsChannel{conn: conn, logger: logger}
}

func (c *wsChannel) Emit(line string) {
	c.send(datatypes.StreamEvent{Type: "log", Log: line}, false)
}

func (c *wsChannel) EmitWarning(line string) {
	c.send(datatypes.StreamEvent{Type: "warning", Log: line, Warning: true}, false)
}

func (c *wsChannel) EmitStatus(status datatypes.TerminalStatus, message string) {
	c.mu.Lock()
	if c.closed || c.terminal {
		c.mu.Unlock()
		return
	}
	c.terminal = true
	c.mu.Unlock()
	c.send(datatypes.StreamEvent{Type: "status", Status: status, Message: message}, true)
}

// Close appends the framing "finished" event. Idempotent.
func (c *wsChannel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()
	c.send(datatypes.StreamEvent{Type: "status", Status: datatypes.StatusFinished}, true)
}

func (c *wsChannel) send(event datatypes.StreamEvent, isStatus bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.dead || (c.closed && !isStatus && event.Status == "") {
		return
	}

	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()

	if err := c.conn.WriteJSON(event); err != nil {
		c.dead = true
		c.logger.Info("websocket observer disconnected, continuing without a stream", "error", err)
	}
}

// Compile-time interface check
var (
	_ progress.Channel = (*sseChannel)(nil)
	_ progress.Channel = (*wsChannel)(nil)
)
