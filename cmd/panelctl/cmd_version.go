// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

func runCheckVersion(cmd *cobra.Command, args []string) {
	client := NewUpdaterClient(serverURL())
	state, err := client.CheckVersion(context.Background())
	if err != nil {
		log.Fatalf("Failed to check version: %v", err)
	}

	switch state.Status {
	case datatypes.VersionUpToDate:
		printSuccess("NetPanel is up to date.")
	case datatypes.VersionUpdateAvailable:
		printWarning("An update is available. Run \"panelctl update\" to install it.")
	case datatypes.VersionAhead:
		printWarning("The local installation is ahead of the published release.")
	case datatypes.VersionDiverged:
		printWarning("The local installation has diverged from the published release.")
	case datatypes.VersionError:
		printError("Version check failed: " + state.Message)
	default:
		printMuted("The version relationship could not be determined.")
	}

	if state.LocalRef != "" {
		printMuted("  local:  " + shortRef(state.LocalRef))
	}
	if state.RemoteRef != "" {
		printMuted("  remote: " + shortRef(state.RemoteRef))
	}
}

func runHistory(cmd *cobra.Command, args []string) {
	client := NewUpdaterClient(serverURL())
	records, err := client.History(context.Background(), historyLimit)
	if err != nil {
		log.Fatalf("Failed to fetch history: %v", err)
	}

	if len(records) == 0 {
		printMuted("No recorded operations yet.")
		return
	}

	printTitle("Recent operations (newest first)")
	for _, rec := range records {
		line := fmt.Sprintf("  %s  %-8s  %s",
			rec.FinishedAt.Format("2006-01-02 15:04:05"), rec.Kind, statusBadge(rec.TerminalStatus))
		if rec.Snapshot != "" {
			line += "  " + render(Styles.Muted, rec.Snapshot)
		}
		fmt.Println(line)
		if rec.TerminalStatus == datatypes.StatusError && rec.Message != "" {
			printMuted("      " + rec.Message)
		}
	}
}

func statusBadge(status datatypes.TerminalStatus) string {
	switch status {
	case datatypes.StatusError:
		return render(Styles.Error, string(status))
	default:
		return render(Styles.Success, string(status))
	}
}

// shortRef abbreviates a commit hash for display.
func shortRef(ref string) string {
	if len(ref) > 12 {
		return ref[:12]
	}
	return ref
}
