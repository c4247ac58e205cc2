// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package engine

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
)

// =============================================================================
// Interface Definition
// =============================================================================

// ProcessManager abstracts the process-supervisor interaction used to restart
// the panel services after a successful update or rollback.
//
// # Design Rationale
//
// Direct exec.Command calls are not testable because they execute real
// processes. The restart is issued against the updater's own supervisor, so
// the engine can never await the result; abstracting it lets tests verify
// the restart was requested without anything actually restarting.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use from multiple goroutines.
type ProcessManager interface {
	// Restart asks the supervisor to restart the named service unit.
	//
	// # Inputs
	//
	//   - ctx: Context for cancellation/timeout
	//   - service: The unit name, e.g. "netpanel-server"
	//
	// # Outputs
	//
	//   - error: Non-nil if the restart request could not be issued. The
	//     caller logs and moves on; the restart kills the updater itself, so
	//     success can never be observed from here.
	Restart(ctx context.Context, service string) error
}

// =============================================================================
// Implementation
// =============================================================================

// SystemdManager issues restarts through systemctl.
type SystemdManager struct{}

// NewSystemdManager creates the production ProcessManager.
func NewSystemdManager() *SystemdManager {
	return &SystemdManager{}
}

// Restart invokes "systemctl restart <service>".
func (pm *SystemdManager) Restart(ctx context.Context, service string) error {
	cmd := exec.CommandContext(ctx, "systemctl", "restart", service)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if stderr.Len() > 0 {
			return fmt.Errorf("restart %s: %w: %s", service, err, strings.TrimSpace(stderr.String()))
		}
		return fmt.Errorf("restart %s: %w", service, err)
	}
	return nil
}

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockProcessManager is a test double for ProcessManager.
type MockProcessManager struct {
	// RestartFunc, when set, overrides the default nil-returning behavior.
	RestartFunc func(ctx context.Context, service string) error

	// mu protects Restarts for concurrent access; the engine issues the
	// restart from a detached goroutine.
	mu sync.Mutex

	// Restarts records the service names of all Restart invocations.
	Restarts []string
}

// Restart records the call and delegates to RestartFunc when set.
func (m *MockProcessManager) Restart(ctx context.Context, service string) error {
	m.mu.Lock()
	m.Restarts = append(m.Restarts, service)
	m.mu.Unlock()
	if m.RestartFunc != nil {
		return m.RestartFunc(ctx, service)
	}
	return nil
}

// GetRestarts returns a copy of all recorded restart requests.
func (m *MockProcessManager) GetRestarts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Restarts))
	copy(out, m.Restarts)
	return out
}

// Compile-time interface compliance check.
var (
	_ ProcessManager = (*SystemdManager)(nil)
	_ ProcessManager = (*MockProcessManager)(nil)
)
