// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// The updater service keeps a NetPanel installation current: it snapshots
// the application tree, checks the local checkout against the published
// remote, runs the update pipeline, and rolls back to any stored snapshot.
// Progress streams to the panel UI over SSE and WebSocket.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/AleutianAI/NetPanel/pkg/logging"
	"github.com/AleutianAI/NetPanel/services/updater/archive"
	"github.com/AleutianAI/NetPanel/services/updater/engine"
	"github.com/AleutianAI/NetPanel/services/updater/journal"
	"github.com/AleutianAI/NetPanel/services/updater/observability"
	"github.com/AleutianAI/NetPanel/services/updater/pipeline"
	"github.com/AleutianAI/NetPanel/services/updater/routes"
	"github.com/AleutianAI/NetPanel/services/updater/version"
)

// gitProgressStderr matches git's informational stderr output so fetch
// progress is not surfaced to the panel as warnings.
var gitProgressStderr = regexp.MustCompile(`^(remote:|From |Receiving objects|Resolving deltas|Unpacking objects|Updating files|Fast-forward| \* branch|Already up to date)`)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		otelEndpoint = "netpanel-otel-collector:4317"
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("updater-service")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// envOr reads an environment variable with a fallback.
func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// updateSteps builds the pipeline an update runs after its snapshot.
func updateSteps(root string) []pipeline.Command {
	return []pipeline.Command{
		{Name: "fetch latest code", Path: "git", Args: []string{"pull", "--ff-only"}, Dir: root, BenignStderr: gitProgressStderr},
		{Name: "install server dependencies", Path: "npm", Args: []string{"install"}, Dir: root + "/server"},
		{Name: "install ui dependencies", Path: "npm", Args: []string{"install"}, Dir: root + "/ui"},
		{Name: "rebuild panel ui", Path: "npm", Args: []string{"run", "build"}, Dir: root + "/ui"},
	}
}

// rollbackSteps builds the pipeline a rollback runs after its restore. The
// snapshot carries sources, not node_modules, so dependencies are
// reinstalled against the restored manifests.
func rollbackSteps(root string) []pipeline.Command {
	return []pipeline.Command{
		{Name: "install server dependencies", Path: "npm", Args: []string{"install"}, Dir: root + "/server"},
		{Name: "install ui dependencies", Path: "npm", Args: []string{"install"}, Dir: root + "/ui"},
		{Name: "rebuild panel ui", Path: "npm", Args: []string{"run", "build"}, Dir: root + "/ui"},
	}
}

func main() {
	port := envOr("UPDATER_PORT", "12215")
	root := envOr("NETPANEL_ROOT", "/opt/netpanel")

	appLogger := logging.New(logging.Config{
		Level:   logging.LevelInfo,
		LogDir:  os.Getenv("UPDATER_LOG_DIR"),
		Service: "updater",
		JSON:    true,
	})
	defer appLogger.Close()
	logger := appLogger.Slog()
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	store, err := archive.NewDirStore(archive.Config{
		Root:   root,
		Dir:    os.Getenv("UPDATER_ARCHIVE_DIR"),
		Logger: logger,
	})
	if err != nil {
		log.Fatalf("failed to open the archive store: %v", err)
	}

	stepTimeout := 15 * time.Minute
	if raw := os.Getenv("UPDATER_STEP_TIMEOUT"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			log.Fatalf("invalid UPDATER_STEP_TIMEOUT %q: %v", raw, err)
		}
		stepTimeout = parsed
	}

	journalDir := envOr("UPDATER_JOURNAL_DIR", root+"/.updater/journal")
	opJournal, err := journal.Open(journal.DefaultConfig(journalDir))
	if err != nil {
		log.Fatalf("failed to open the operation journal: %v", err)
	}
	defer opJournal.Close()

	var services []string
	for _, svc := range strings.Split(envOr("UPDATER_SERVICES", "netpanel-server,netpanel-updater"), ",") {
		if svc = strings.TrimSpace(svc); svc != "" {
			services = append(services, svc)
		}
	}

	git := version.NewExecGitClient(root,
		os.Getenv("NETPANEL_GIT_REMOTE"), os.Getenv("NETPANEL_GIT_BRANCH"))
	oracle := version.NewOracle(git, logger)

	eng, err := engine.New(engine.Config{
		Root:          root,
		Store:         store,
		Oracle:        oracle,
		Runner:        pipeline.NewExecRunner(stepTimeout, logger),
		Journal:       opJournal,
		Supervisor:    engine.NewSystemdManager(),
		Services:      services,
		UpdateSteps:   updateSteps(root),
		RollbackSteps: rollbackSteps(root),
		Logger:        logger,
	})
	if err != nil {
		log.Fatalf("failed to build the update engine: %v", err)
	}

	router := gin.Default()
	router.Use(otelgin.Middleware("updater-service"))

	routes.SetupRoutes(router, eng, store, oracle, opJournal, logger)

	slog.Info("starting the updater service", "port", port, "root", root,
		"archive_dir", store.Dir(), "services", services)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
