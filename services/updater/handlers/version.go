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
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/NetPanel/services/updater/engine"
	"github.com/AleutianAI/NetPanel/services/updater/journal"
)

// HandleCheckVersion reports the local tree's standing against the remote.
//
// The state is transient and recomputed on every request; a sub-step failure
// still answers 200 with status "error" so the panel can render it.
func HandleCheckVersion(oracle engine.VersionChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, oracle.Check(c.Request.Context()))
	}
}

// HandleHistory returns recent finished operations, most recent first.
func HandleHistory(j journal.Journal) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, err := strconv.Atoi(c.DefaultQuery("limit", "20"))
		if err != nil || limit < 1 || limit > 500 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 500"})
			return
		}

		records, err := j.Recent(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read operation history"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"operations": records})
	}
}

// HandleHealth is the liveness probe. Busy is exposed so the panel can grey
// out the update button while an operation runs.
func HandleHealth(eng *engine.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "busy": eng.Busy()})
	}
}
