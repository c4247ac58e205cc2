// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers contains the gin HTTP handlers for the updater service.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/NetPanel/services/updater/engine"
	"github.com/AleutianAI/NetPanel/services/updater/observability"
)

// keepAliveInterval paces SSE comment pings during long pipeline steps.
const keepAliveInterval = 15 * time.Second

// HandleUpdate starts an update and streams its progress over SSE.
//
// # Description
//
// Acquires the single-operation lock before writing any stream output, so a
// second concurrent update answers with a plain 409 instead of a broken
// stream. Once streaming starts, the operation runs on a detached context:
// the observer closing the tab does not abort a half-done update. The stream
// always ends with exactly one terminal status followed by "finished".
func HandleUpdate(eng *engine.Engine, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		op, err := eng.BeginUpdate()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": "another operation is already in progress"})
			return
		}

		streamOperation(c, op, logger)
	}
}

// streamOperation drives an already-locked operation over an SSE stream.
//
// Shared by the update and rollback handlers; by the time this runs, all
// request validation has passed and the only remaining output channel is
// the event stream.
func streamOperation(c *gin.Context, op *engine.Operation, logger *slog.Logger) {
	SetSSEHeaders(c.Writer)
	writer, err := NewSSEWriter(c.Writer)
	if err != nil {
		logger.Error("streaming unsupported by response writer", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	observability.DefaultMetrics.StreamOpened("sse")
	defer observability.DefaultMetrics.StreamClosed("sse")

	// Keepalive pings stop when the operation reaches its terminal state.
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if err := writer.WriteKeepAlive(); err != nil {
					return
				}
			}
		}
	}()

	// Detached context: the pipeline must outlive the observer.
	op.Run(context.Background(), newSSEChannel(writer, logger))
	close(done)
}
