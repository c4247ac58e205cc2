// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package version determines the relationship between the locally deployed
// code and the latest published code, by asking the version-control client
// for the local ref, the remote ref, and their merge-base.
package version

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// =============================================================================
// Interface Definition
// =============================================================================

// GitClient is the narrow version-control contract the oracle depends on.
//
// # Description
//
// Each method is a blocking call returning text or failing with a
// process-exit error. RefreshRemote is the only method with a side effect
// (it contacts the remote over the network).
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type GitClient interface {
	// RefreshRemote fetches the latest remote references.
	RefreshRemote(ctx context.Context) error

	// LocalRef returns the commit hash the working tree is at.
	LocalRef(ctx context.Context) (string, error)

	// RemoteRef returns the commit hash of the tracked remote branch.
	RemoteRef(ctx context.Context) (string, error)

	// MergeBase returns the most recent common ancestor of the two refs.
	MergeBase(ctx context.Context, a, b string) (string, error)
}

// =============================================================================
// Implementation
// =============================================================================

// ExecGitClient implements GitClient by shelling out to git with the
// repository as the working directory.
type ExecGitClient struct {
	dir    string
	remote string
	branch string
}

// NewExecGitClient creates a GitClient for the repository at dir.
//
// # Inputs
//
//   - dir: Repository root. Must not be empty.
//   - remote: Remote name. Default: "origin".
//   - branch: Tracked branch name. Default: "main".
func NewExecGitClient(dir, remote, branch string) *ExecGitClient {
	if remote == "" {
		remote = "origin"
	}
	if branch == "" {
		branch = "main"
	}
	return &ExecGitClient{dir: dir, remote: remote, branch: branch}
}

// TrackedRef returns the remote-tracking ref, e.g. "origin/main".
func (g *ExecGitClient) TrackedRef() string {
	return g.remote + "/" + g.branch
}

// Remote returns the configured remote name.
func (g *ExecGitClient) Remote() string { return g.remote }

// Branch returns the configured branch name.
func (g *ExecGitClient) Branch() string { return g.branch }

// Dir returns the repository root.
func (g *ExecGitClient) Dir() string { return g.dir }

// RefreshRemote fetches the latest remote references.
func (g *ExecGitClient) RefreshRemote(ctx context.Context) error {
	_, err := g.run(ctx, "fetch", g.remote)
	return err
}

// LocalRef returns the commit hash of HEAD.
func (g *ExecGitClient) LocalRef(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", "HEAD")
}

// RemoteRef returns the commit hash of the tracked remote branch.
func (g *ExecGitClient) RemoteRef(ctx context.Context) (string, error) {
	return g.run(ctx, "rev-parse", g.TrackedRef())
}

// MergeBase returns the most recent common ancestor of a and b.
func (g *ExecGitClient) MergeBase(ctx context.Context, a, b string) (string, error) {
	return g.run(ctx, "merge-base", a, b)
}

// run executes one git subcommand and returns its trimmed stdout.
func (g *ExecGitClient) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = g.dir

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		detail := strings.TrimSpace(stderr.String())
		if detail != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, detail)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Compile-time interface check
var _ GitClient = (*ExecGitClient)(nil)

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockGitClient is a test double for GitClient.
//
// Configure the mock by setting function fields before use. Unset fields
// panic when called, which makes unexpected calls visible in tests.
type MockGitClient struct {
	RefreshRemoteFunc func(ctx context.Context) error
	LocalRefFunc      func(ctx context.Context) (string, error)
	RemoteRefFunc     func(ctx context.Context) (string, error)
	MergeBaseFunc     func(ctx context.Context, a, b string) (string, error)
}

func (m *MockGitClient) RefreshRemote(ctx context.Context) error {
	if m.RefreshRemoteFunc == nil {
		panic("MockGitClient.RefreshRemoteFunc not set")
	}
	return m.RefreshRemoteFunc(ctx)
}

func (m *MockGitClient) LocalRef(ctx context.Context) (string, error) {
	if m.LocalRefFunc == nil {
		panic("MockGitClient.LocalRefFunc not set")
	}
	return m.LocalRefFunc(ctx)
}

func (m *MockGitClient) RemoteRef(ctx context.Context) (string, error) {
	if m.RemoteRefFunc == nil {
		panic("MockGitClient.RemoteRefFunc not set")
	}
	return m.RemoteRefFunc(ctx)
}

func (m *MockGitClient) MergeBase(ctx context.Context, a, b string) (string, error) {
	if m.MergeBaseFunc == nil {
		panic("MockGitClient.MergeBaseFunc not set")
	}
	return m.MergeBaseFunc(ctx, a, b)
}

var _ GitClient = (*MockGitClient)(nil)
