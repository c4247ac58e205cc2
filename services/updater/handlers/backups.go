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
	"github.com/AleutianAI/NetPanel/services/updater/observability"
)

// HandleListBackups returns all snapshots, most recent first.
func HandleListBackups(store archive.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshots, err := store.List()
		if err != nil {
			slog.Error("failed to list snapshots", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list backups"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"backups": snapshots})
	}
}

// HandleCreateBackup writes a snapshot of the current installation on demand,
// outside of any update. Useful before manual maintenance.
func HandleCreateBackup(store archive.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		snapshot, err := store.Create(c.Request.Context())
		if err != nil {
			slog.Error("manual snapshot failed", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create backup"})
			return
		}
		observability.DefaultMetrics.RecordSnapshot()
		slog.Info("manual snapshot created", "name", snapshot.Name, "size", snapshot.SizeBytes)
		c.JSON(http.StatusCreated, snapshot)
	}
}

// HandleDeleteBackup removes one snapshot by name.
//
// The name is validated before any filesystem access; traversal attempts
// answer 400 without touching the archive directory.
func HandleDeleteBackup(store archive.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		if err := store.Delete(name); err != nil {
			status, msg := archiveErrorStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		slog.Info("snapshot deleted", "name", name)
		c.JSON(http.StatusOK, gin.H{"deleted": name})
	}
}

// HandleDownloadBackup serves one snapshot as a file attachment.
func HandleDownloadBackup(store archive.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")
		path, err := store.Path(name)
		if err != nil {
			status, msg := archiveErrorStatus(err)
			c.JSON(status, gin.H{"error": msg})
			return
		}
		c.FileAttachment(path, name)
	}
}

// archiveErrorStatus maps archive store failures onto HTTP responses.
func archiveErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, archive.ErrInvalidName):
		return http.StatusBadRequest, "invalid snapshot name"
	case errors.Is(err, archive.ErrNotFound):
		return http.StatusNotFound, "no such snapshot"
	default:
		return http.StatusInternalServerError, "snapshot operation failed"
	}
}
