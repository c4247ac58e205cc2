// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package version

import (
	"context"
	"log/slog"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

// Oracle classifies the local tree against the published remote.
//
// # Description
//
// Check performs, in order: remote refresh, local ref read, remote ref read,
// merge-base read. The derivation rule:
//
//	local == remote              -> upToDate
//	local == mergeBase           -> updateAvailable
//	remote == mergeBase          -> ahead
//	otherwise                    -> diverged
//
// A failing refresh or ref read short-circuits into status "error" with the
// triggering message. An unreadable merge-base with both refs resolved
// yields "unknown" instead: the refs are fine, the relationship is not
// derivable. Check never panics past its own boundary and always
// returns a VersionState; the result is transient and recomputed on every
// call.
type Oracle struct {
	git    GitClient
	logger *slog.Logger
}

// NewOracle creates an Oracle over the given version-control client.
func NewOracle(git GitClient, logger *slog.Logger) *Oracle {
	if logger == nil {
		logger = slog.Default()
	}
	return &Oracle{git: git, logger: logger}
}

// Check computes the current VersionState.
//
// # Outputs
//
//   - datatypes.VersionState: Always a complete state; never an error return.
func (o *Oracle) Check(ctx context.Context) datatypes.VersionState {
	if err := o.git.RefreshRemote(ctx); err != nil {
		return o.fail("refresh remote references", err)
	}

	local, err := o.git.LocalRef(ctx)
	if err != nil {
		return o.fail("read local reference", err)
	}

	remote, err := o.git.RemoteRef(ctx)
	if err != nil {
		return o.fail("read remote reference", err)
	}

	state := datatypes.VersionState{LocalRef: local, RemoteRef: remote}

	if local == remote {
		state.Status = datatypes.VersionUpToDate
		return state
	}

	// A failed merge-base read is not a broken sub-step the way a failed
	// ref read is: both refs resolved, the histories just share no common
	// ancestor the local clone can see (shallow clone, force-pushed
	// remote). The relationship is unknown, not erroneous.
	mergeBase, err := o.git.MergeBase(ctx, local, remote)
	if err != nil {
		o.logger.Warn("merge-base unavailable", "local", local, "remote", remote, "error", err)
		state.Status = datatypes.VersionUnknown
		state.Message = "could not determine how local and remote histories relate"
		return state
	}
	state.MergeBase = mergeBase

	switch {
	case local == mergeBase:
		state.Status = datatypes.VersionUpdateAvailable
	case remote == mergeBase:
		state.Status = datatypes.VersionAhead
	default:
		state.Status = datatypes.VersionDiverged
	}
	return state
}

// fail logs the raw error server-side and returns an error state carrying
// only the human-readable step description.
func (o *Oracle) fail(step string, err error) datatypes.VersionState {
	o.logger.Error("version check failed", "step", step, "error", err)
	return datatypes.VersionState{
		Status:  datatypes.VersionError,
		Message: "failed to " + step,
	}
}
