// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validation provides input validation utilities for security-critical
// operations.
//
// This package contains validators for user-provided inputs that are used in
// file paths or subprocess calls. Using these validators prevents injection
// attacks (command injection, path traversal).
package validation

import (
	"fmt"
	"regexp"
	"strings"
)

// snapshotPattern matches valid snapshot archive names.
// Allows: letters, digits, dots, hyphens, underscores; must start with an
// alphanumeric and end in ".tar.gz". Max 128 characters total.
var snapshotPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._\-]{0,119}\.tar\.gz$`)

// ValidateSnapshotName validates a snapshot archive name to prevent path
// traversal.
//
// A valid name:
//   - contains no path separators ("/" or "\")
//   - contains no parent-directory segments ("..")
//   - starts with an alphanumeric character
//   - ends with ".tar.gz"
//
// The check runs before any filesystem call, so an invalid name performs
// zero filesystem access.
//
// Example:
//
//	if err := validation.ValidateSnapshotName(name); err != nil {
//	    return fmt.Errorf("invalid snapshot name: %w", err)
//	}
//	// Safe to join with the archive directory
func ValidateSnapshotName(name string) error {
	if name == "" {
		return fmt.Errorf("snapshot name cannot be empty")
	}

	if strings.Contains(name, "/") || strings.Contains(name, "\\") {
		return fmt.Errorf("snapshot name must not contain path separators: %q", name)
	}

	if strings.Contains(name, "..") {
		return fmt.Errorf("snapshot name must not contain parent-directory segments: %q", name)
	}

	if !snapshotPattern.MatchString(name) {
		return fmt.Errorf("invalid snapshot name format: %q (must be alphanumeric with ._- and end in .tar.gz)", name)
	}

	return nil
}

// IsValidSnapshotName reports whether name passes ValidateSnapshotName.
//
// Use this form for binding rules where only a boolean is wanted.
func IsValidSnapshotName(name string) bool {
	return ValidateSnapshotName(name) == nil
}
