// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package engine orchestrates the update and rollback operations.
//
// # Description
//
// The engine owns the single-operation lock: at most one update or rollback
// runs at any time, because both mutate the same application tree. Begin*
// methods acquire the lock and fail fast with ErrOperationInProgress so the
// HTTP layer can answer 409 before any stream output is written. The
// returned Operation is then driven to completion by Run, which always emits
// exactly one terminal status on the progress channel, closes it, journals
// the outcome, and releases the lock.
//
// There is no automatic rollback: a failed update leaves the tree as the
// failed step left it, reports the error, and relies on the pre-flight
// snapshot plus an explicit operator rollback.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/NetPanel/services/updater/archive"
	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
	"github.com/AleutianAI/NetPanel/services/updater/journal"
	"github.com/AleutianAI/NetPanel/services/updater/observability"
	"github.com/AleutianAI/NetPanel/services/updater/pipeline"
	"github.com/AleutianAI/NetPanel/services/updater/progress"
)

// ErrOperationInProgress means another update or rollback holds the
// single-operation lock.
var ErrOperationInProgress = errors.New("another operation is already in progress")

// =============================================================================
// Configuration
// =============================================================================

// VersionChecker reports the local tree's standing against the remote.
type VersionChecker interface {
	Check(ctx context.Context) datatypes.VersionState
}

// Config assembles an Engine's collaborators.
type Config struct {
	// Root is the application tree the operations act on.
	Root string

	// Store creates, lists and restores snapshots.
	Store archive.Store

	// Oracle classifies local vs remote before an update. Optional; when nil
	// the update proceeds without a version check.
	Oracle VersionChecker

	// Runner executes the pipeline steps.
	Runner pipeline.Runner

	// Journal receives the terminal record of every operation. Optional.
	Journal journal.Journal

	// Supervisor issues the post-operation service restarts.
	Supervisor ProcessManager

	// Services are the supervisor units restarted after a successful
	// operation. Empty means no restart: the operation ends with "success"
	// instead of "restarting".
	Services []string

	// UpdateSteps is the pipeline run by an update, after the snapshot.
	UpdateSteps []pipeline.Command

	// RollbackSteps is the pipeline run by a rollback, after the restore.
	RollbackSteps []pipeline.Command

	// Logger receives server-side diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// =============================================================================
// Implementation
// =============================================================================

// Engine coordinates operations over the shared application tree.
//
// # Thread Safety
//
// Safe for concurrent use. The busy flag is the only mutable state; each
// live Operation is owned exclusively by the goroutine driving it.
type Engine struct {
	cfg    Config
	logger *slog.Logger
	busy   atomic.Bool
}

// New creates an Engine from the given configuration.
func New(cfg Config) (*Engine, error) {
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Runner == nil {
		return nil, errors.New("runner is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: cfg.Logger}, nil
}

// Busy reports whether an operation currently holds the lock.
func (e *Engine) Busy() bool {
	return e.busy.Load()
}

// BeginUpdate acquires the operation lock for an update.
//
// # Outputs
//
//   - *Operation: Ready to Run. The caller must call Run exactly once.
//   - error: ErrOperationInProgress if the lock is held.
func (e *Engine) BeginUpdate() (*Operation, error) {
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrOperationInProgress
	}
	return &Operation{
		Id:   uuid.New().String(),
		Kind: datatypes.OperationUpdate,
		eng:  e,
	}, nil
}

// BeginRollback validates the snapshot and acquires the operation lock.
//
// # Description
//
// Validation happens before the lock and before any stream is opened, so a
// bad snapshot name or a missing snapshot answers as a plain request error.
// Wraps archive.ErrInvalidName and archive.ErrNotFound unchanged for the
// HTTP layer to map onto 400 and 404.
func (e *Engine) BeginRollback(backup string) (*Operation, error) {
	if _, err := e.cfg.Store.Path(backup); err != nil {
		return nil, err
	}
	if !e.busy.CompareAndSwap(false, true) {
		return nil, ErrOperationInProgress
	}
	return &Operation{
		Id:       uuid.New().String(),
		Kind:     datatypes.OperationRollback,
		Snapshot: backup,
		eng:      e,
	}, nil
}

// =============================================================================
// Operation
// =============================================================================

// Operation is one in-flight update or rollback.
//
// An Operation is created holding the engine lock and must be driven by a
// single Run call, which releases the lock on completion.
type Operation struct {
	// Id is the operation UUID.
	Id string

	// Kind is "update" or "rollback".
	Kind datatypes.OperationKind

	// Snapshot is the snapshot consumed (rollback) or created (update, set
	// during Run).
	Snapshot string

	eng *Engine
}

// Run drives the operation to its terminal state.
//
// # Description
//
// Emits progress onto sink and always finishes the stream: exactly one
// terminal status, then Close. The ctx should not be tied to the observer's
// connection — an observer disconnecting must not abort a half-done update.
// The caller passes a detached context and lets the transport swallow write
// failures instead.
//
// Run never returns an error; failures are reported on the stream and in
// the journal.
func (op *Operation) Run(ctx context.Context, sink progress.Channel) {
	e := op.eng
	started := time.Now()
	var steps []string

	defer e.busy.Store(false)

	finish := func(status datatypes.TerminalStatus, message string) {
		sink.EmitStatus(status, message)
		sink.Close()
		op.journal(ctx, status, message, steps, started)
		observability.DefaultMetrics.RecordOperation(string(op.Kind), string(status), time.Since(started))
	}

	e.logger.Info("operation starting", "id", op.Id, "kind", op.Kind, "snapshot", op.Snapshot)

	// Update only: report where the tree stands before touching it. A
	// diverged tree is worth a warning, but the operator asked for an
	// update, so it proceeds either way.
	if op.Kind == datatypes.OperationUpdate && e.cfg.Oracle != nil {
		state := e.cfg.Oracle.Check(ctx)
		e.logger.Info("pre-update version check", "id", op.Id, "status", state.Status,
			"local", state.LocalRef, "remote", state.RemoteRef)
		switch state.Status {
		case datatypes.VersionUpToDate:
			sink.Emit("Already up to date; reinstalling current version")
		case datatypes.VersionDiverged:
			sink.EmitWarning("Local tree has diverged from the remote; update will fetch anyway")
		}
	}

	// Pre-flight snapshot, update only. A rollback consumes exactly one
	// existing snapshot and creates none: it may be running on a disk that
	// a failed update already filled, and a snapshot failure there would
	// block the one recovery path that still works.
	if op.Kind == datatypes.OperationUpdate {
		sink.Emit("Creating snapshot of current installation")
		snap, err := e.cfg.Store.Create(ctx)
		if err != nil {
			e.logger.Error("snapshot creation failed", "id", op.Id, "error", err)
			finish(datatypes.StatusError, "snapshot creation failed; nothing was changed")
			return
		}
		observability.DefaultMetrics.RecordSnapshot()
		sink.Emit(fmt.Sprintf("Snapshot written: %s", snap.Name))
		op.Snapshot = snap.Name
	}

	if op.Kind == datatypes.OperationRollback {
		sink.Emit(fmt.Sprintf("Restoring snapshot %s", op.Snapshot))
		if err := e.cfg.Store.Restore(ctx, op.Snapshot, e.cfg.Root); err != nil {
			e.logger.Error("snapshot restore failed", "id", op.Id, "snapshot", op.Snapshot, "error", err)
			finish(datatypes.StatusError, fmt.Sprintf("failed to restore %s", op.Snapshot))
			return
		}
		sink.Emit("Snapshot restored")
	}

	pipelineSteps := e.cfg.UpdateSteps
	if op.Kind == datatypes.OperationRollback {
		pipelineSteps = e.cfg.RollbackSteps
	}

	results := e.cfg.Runner.Run(ctx, pipelineSteps, sink)
	for _, result := range results {
		steps = append(steps, result.Command.String())
		observability.DefaultMetrics.RecordStep(string(result.Status))
	}
	if n := len(results); n > 0 && results[n-1].Failed() {
		last := results[n-1]
		e.logger.Error("operation failed", "id", op.Id, "kind", op.Kind,
			"step", last.Command.String(), "status", last.Status, "error", last.Err)
		finish(datatypes.StatusError, last.Err.Error())
		return
	}

	if len(e.cfg.Services) == 0 || e.cfg.Supervisor == nil {
		e.logger.Info("operation finished", "id", op.Id, "kind", op.Kind, "duration", time.Since(started))
		finish(datatypes.StatusSuccess, "Completed; no service restart configured")
		return
	}

	// The restart takes this process down with it, so it is issued
	// fire-and-forget after the stream has its terminal status.
	e.logger.Info("operation finished, restarting services", "id", op.Id,
		"kind", op.Kind, "services", e.cfg.Services, "duration", time.Since(started))
	finish(datatypes.StatusRestarting, "Restarting panel services")
	go op.restartServices()
}

// journal writes the terminal record; failures are logged, never surfaced.
func (op *Operation) journal(ctx context.Context, status datatypes.TerminalStatus, message string, steps []string, started time.Time) {
	if op.eng.cfg.Journal == nil {
		return
	}
	record := datatypes.OperationRecord{
		Id:             op.Id,
		Kind:           op.Kind,
		Snapshot:       op.Snapshot,
		Steps:          steps,
		TerminalStatus: status,
		Message:        message,
		StartedAt:      started,
		FinishedAt:     time.Now(),
	}
	if err := op.eng.cfg.Journal.Append(ctx, record); err != nil {
		op.eng.logger.Error("journal append failed", "id", op.Id, "error", err)
	}
}

// restartServices issues the supervisor restarts with a fresh context; the
// request outlives whatever triggered the operation.
func (op *Operation) restartServices() {
	e := op.eng
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, service := range e.cfg.Services {
		if err := e.cfg.Supervisor.Restart(ctx, service); err != nil {
			e.logger.Error("service restart request failed", "id", op.Id, "service", service, "error", err)
		}
	}
}
