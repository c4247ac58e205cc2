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
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
	"github.com/AleutianAI/NetPanel/services/updater/engine"
	"github.com/AleutianAI/NetPanel/services/updater/observability"
	"github.com/AleutianAI/NetPanel/pkg/validation"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4 * 1024,
	WriteBufferSize: 64 * 1024,
}

// HandleOpsWebSocket runs one operation over a WebSocket connection.
//
// # Description
//
// The client sends a single JSON request ({"op": "update"} or
// {"op": "rollback", "backup": "<name>"}) and receives the same event
// stream the SSE endpoints produce, terminated by a "finished" status. A
// request that fails validation or loses the lock race answers with a
// single status event of "error" and the connection closes.
//
// Like the SSE handlers, the operation runs on a detached context: closing
// the socket mid-run does not abort it.
func HandleOpsWebSocket(eng *engine.Engine, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			logger.Error("failed to upgrade the websocket", "error", err)
			return
		}
		defer ws.Close()

		observability.DefaultMetrics.StreamOpened("websocket")
		defer observability.DefaultMetrics.StreamClosed("websocket")

		var req datatypes.StreamOpRequest
		if err := ws.ReadJSON(&req); err != nil {
			logger.Info("websocket client disconnected before sending a request", "error", err)
			return
		}

		op, errMsg := beginFromRequest(eng, req)
		if op == nil {
			_ = ws.WriteJSON(datatypes.StreamEvent{Type: "status", Status: datatypes.StatusError, Message: errMsg})
			_ = ws.WriteJSON(datatypes.StreamEvent{Type: "status", Status: datatypes.StatusFinished})
			return
		}

		logger.Info("websocket operation starting", "op", req.Op, "backup", req.Backup)
		op.Run(context.Background(), newWSChannel(ws, logger))
	}
}

// beginFromRequest validates the request and acquires the operation lock.
// Returns a nil operation and a client-safe message on failure.
func beginFromRequest(eng *engine.Engine, req datatypes.StreamOpRequest) (*engine.Operation, string) {
	switch req.Op {
	case "update":
		op, err := eng.BeginUpdate()
		if err != nil {
			return nil, "another operation is already in progress"
		}
		return op, ""
	case "rollback":
		if !validation.IsValidSnapshotName(req.Backup) {
			return nil, "backup must be a valid snapshot name"
		}
		op, err := eng.BeginRollback(req.Backup)
		if err != nil {
			_, msg := rollbackErrorStatus(err)
			return nil, msg
		}
		return op, ""
	default:
		return nil, "op must be \"update\" or \"rollback\""
	}
}
