// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes defines the shared data model for the NetPanel updater
// service: snapshots, version comparison results, operation records, and the
// wire format of the progress event stream.
package datatypes

import "time"

// =============================================================================
// Terminal Statuses
// =============================================================================

// TerminalStatus is the final outcome of an update or rollback operation.
//
// Exactly one terminal status is emitted per operation stream, followed by a
// single "finished" framing event written by the transport before it closes
// the connection.
type TerminalStatus string

const (
	// StatusSuccess means the operation completed and no restart was issued.
	StatusSuccess TerminalStatus = "success"

	// StatusError means the operation failed. The message carries a
	// human-readable reason; raw errors stay in the server log.
	StatusError TerminalStatus = "error"

	// StatusRestarting means the operation completed and the process
	// supervisor restart has been issued fire-and-forget. The stream closes
	// immediately after this status.
	StatusRestarting TerminalStatus = "restarting"

	// StatusFinished is the stream-framing event appended by the transport
	// after the terminal status, right before the connection closes.
	StatusFinished TerminalStatus = "finished"
)

// =============================================================================
// Stream Events
// =============================================================================

// StreamEvent is a single event on an operation's progress stream.
//
// # Description
//
// The wire shape matches what the panel UI consumes:
//
//	{"log": "..."}                          plain pipeline output line
//	{"log": "...", "warning": true}         stderr line not known to be benign
//	{"status": "error", "message": "..."}   terminal status
//	{"status": "finished"}                  stream framing, connection closes
//
// Id and CreatedAt are assigned by the transport when the event is written,
// so ordering and deduplication work across reconnect-less transports.
type StreamEvent struct {
	// Id is a UUID assigned at write time.
	Id string `json:"id,omitempty"`

	// Type is the SSE event name: "log", "warning", or "status".
	Type string `json:"type,omitempty"`

	// Log is a single output line from the pipeline.
	Log string `json:"log,omitempty"`

	// Warning marks a log line that came from stderr and did not match a
	// known-benign pattern.
	Warning bool `json:"warning,omitempty"`

	// Status is set on terminal and framing events only.
	Status TerminalStatus `json:"status,omitempty"`

	// Message is the human-readable detail accompanying a status event.
	Message string `json:"message,omitempty"`

	// CreatedAt is the write timestamp in Unix milliseconds.
	CreatedAt int64 `json:"createdAt,omitempty"`
}

// =============================================================================
// Snapshots
// =============================================================================

// Snapshot describes one point-in-time archive of the application tree.
//
// Snapshots are immutable once created: the only destructive operation on a
// snapshot is deleting it. Names are timestamp-derived so lexical and
// chronological ordering coincide.
type Snapshot struct {
	// Name is the archive filename, e.g. "netpanel-2025-11-03T14-02-51Z.tar.gz".
	Name string `json:"name"`

	// SizeBytes is the size of the archive file on disk.
	SizeBytes int64 `json:"sizeBytes"`

	// CreatedAt is when the archive was written.
	CreatedAt time.Time `json:"createdAt"`
}

// =============================================================================
// Version State
// =============================================================================

// VersionStatus classifies the local tree against the published remote.
type VersionStatus string

const (
	// VersionUpToDate: local and remote refs are identical.
	VersionUpToDate VersionStatus = "upToDate"

	// VersionUpdateAvailable: local is an ancestor of remote.
	VersionUpdateAvailable VersionStatus = "updateAvailable"

	// VersionAhead: remote is an ancestor of local (unpushed local commits).
	VersionAhead VersionStatus = "ahead"

	// VersionDiverged: local and remote share history but both moved on.
	VersionDiverged VersionStatus = "diverged"

	// VersionUnknown: the relationship could not be determined.
	VersionUnknown VersionStatus = "unknown"

	// VersionError: a version-control sub-step failed; Message explains.
	VersionError VersionStatus = "error"
)

// VersionState is the transient result of one version check.
//
// It is recomputed on every check and never persisted.
type VersionState struct {
	LocalRef  string        `json:"localRef,omitempty"`
	RemoteRef string        `json:"remoteRef,omitempty"`
	MergeBase string        `json:"mergeBase,omitempty"`
	Status    VersionStatus `json:"status"`
	Message   string        `json:"message,omitempty"`
}

// =============================================================================
// Operations
// =============================================================================

// OperationKind distinguishes the two pipeline flavors.
type OperationKind string

const (
	OperationUpdate   OperationKind = "update"
	OperationRollback OperationKind = "rollback"
)

// OperationRecord is the durable journal row written when an operation
// reaches its terminal state.
//
// The live Operation is owned exclusively by the orchestrator that started
// it; the journal only ever sees finished records.
type OperationRecord struct {
	// Id is the operation UUID.
	Id string `json:"id"`

	// Kind is "update" or "rollback".
	Kind OperationKind `json:"kind"`

	// Snapshot is the snapshot created (update) or consumed (rollback).
	Snapshot string `json:"snapshot,omitempty"`

	// Steps holds the display names of pipeline steps that ran, in order.
	Steps []string `json:"steps,omitempty"`

	// TerminalStatus is the single terminal outcome of the run.
	TerminalStatus TerminalStatus `json:"terminalStatus"`

	// Message is the terminal status detail (error reason on failure).
	Message string `json:"message,omitempty"`

	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
}

// =============================================================================
// Request Payloads
// =============================================================================

// RollbackRequest selects the snapshot a rollback consumes.
//
// The snapshotname binding rule rejects path separators and parent-directory
// segments before any filesystem call happens.
type RollbackRequest struct {
	Backup string `form:"backup" json:"backup" binding:"required,snapshotname"`
}

// StreamOpRequest selects the operation run over the WebSocket transport.
type StreamOpRequest struct {
	Op     string `form:"op" json:"op" binding:"omitempty,oneof=update rollback"`
	Backup string `form:"backup" json:"backup" binding:"omitempty,snapshotname"`
}
