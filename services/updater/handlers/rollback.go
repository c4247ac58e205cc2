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
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/NetPanel/services/updater/archive"
	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
	"github.com/AleutianAI/NetPanel/services/updater/engine"
)

// HandleRollback starts a rollback and streams its progress over SSE.
//
// # Description
//
// The snapshot name is validated before the lock is taken and before any
// stream output: a malformed name answers 400, a missing snapshot 404, and
// a concurrent operation 409 — all as plain JSON, never as a broken stream.
func HandleRollback(eng *engine.Engine, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		var req datatypes.RollbackRequest
		if err := c.ShouldBindQuery(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "backup must be a valid snapshot name"})
			return
		}

		op, err := eng.BeginRollback(req.Backup)
		if err != nil {
			status, msg := rollbackErrorStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}

		logger.Info("rollback requested", "snapshot", req.Backup)
		streamOperation(c, op, logger)
	}
}

// rollbackErrorStatus maps BeginRollback failures onto HTTP responses.
func rollbackErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, archive.ErrInvalidName):
		return http.StatusBadRequest, "backup must be a valid snapshot name"
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "no such snapshot"
	case errors.Is(err, engine.ErrOperationInProgress):
		return http.StatusConflict, "another operation is already in progress"
	default:
		return http.StatusInternalServerError, "failed to start rollback"
	}
}
