// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import "testing"

func TestValidateSnapshotName_Valid(t *testing.T) {
	valid := []string{
		"netpanel-2025-11-03T14-02-51Z.tar.gz",
		"backup.tar.gz",
		"a.tar.gz",
		"netpanel_2025.11.03.tar.gz",
	}

	for _, name := range valid {
		if err := ValidateSnapshotName(name); err != nil {
			t.Errorf("ValidateSnapshotName(%q) unexpected error: %v", name, err)
		}
	}
}

func TestValidateSnapshotName_Invalid(t *testing.T) {
	invalid := []string{
		"",
		"../../etc/passwd",
		"../backup.tar.gz",
		"backups/evil.tar.gz",
		"..\\evil.tar.gz",
		"evil..tar.gz",
		"backup.tar",
		"backup.zip",
		".hidden.tar.gz",
		"-flag.tar.gz",
	}

	for _, name := range invalid {
		if err := ValidateSnapshotName(name); err == nil {
			t.Errorf("ValidateSnapshotName(%q) expected error, got nil", name)
		}
	}
}

func TestIsValidSnapshotName(t *testing.T) {
	if !IsValidSnapshotName("netpanel-2025-11-03T14-02-51Z.tar.gz") {
		t.Error("IsValidSnapshotName() = false for a valid name")
	}
	if IsValidSnapshotName("../../etc/passwd") {
		t.Error("IsValidSnapshotName() = true for a traversal attempt")
	}
}
