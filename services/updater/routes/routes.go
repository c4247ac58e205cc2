// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/NetPanel/services/updater/archive"
	"github.com/AleutianAI/NetPanel/services/updater/engine"
	"github.com/AleutianAI/NetPanel/services/updater/handlers"
	"github.com/AleutianAI/NetPanel/services/updater/journal"
)

// SetupRoutes wires the updater's HTTP surface onto the router.
func SetupRoutes(router *gin.Engine, eng *engine.Engine, store archive.Store,
	oracle engine.VersionChecker, j journal.Journal, logger *slog.Logger) {

	handlers.RegisterValidators()

	router.GET("/health", handlers.HandleHealth(eng))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API version 1 group
	v1 := router.Group("/v1")
	{
		v1.GET("/version", handlers.HandleCheckVersion(oracle))
		v1.GET("/update", handlers.HandleUpdate(eng, logger))
		v1.GET("/rollback", handlers.HandleRollback(eng, logger))
		v1.GET("/operations", handlers.HandleHistory(j))
		v1.GET("/ops/ws", handlers.HandleOpsWebSocket(eng, logger))

		backups := v1.Group("/backups")
		{
			backups.GET("", handlers.HandleListBackups(store))
			backups.POST("", handlers.HandleCreateBackup(store))
			backups.DELETE("/:name", handlers.HandleDeleteBackup(store))
			backups.GET("/:name/download", handlers.HandleDownloadBackup(store))
		}
	}
}
