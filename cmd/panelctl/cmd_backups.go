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
)

func runListBackups(cmd *cobra.Command, args []string) {
	client := NewUpdaterClient(serverURL())
	snapshots, err := client.ListBackups(context.Background())
	if err != nil {
		log.Fatalf("Failed to list backups: %v", err)
	}

	if len(snapshots) == 0 {
		printMuted("No snapshots in the archive.")
		return
	}

	printTitle("Snapshots (newest first)")
	for _, snap := range snapshots {
		fmt.Printf("  %s  %10s  %s\n",
			render(Styles.Highlight, snap.Name),
			formatBytes(snap.SizeBytes),
			render(Styles.Muted, snap.CreatedAt.Format("2006-01-02 15:04:05")))
	}
}

func runCreateBackup(cmd *cobra.Command, args []string) {
	client := NewUpdaterClient(serverURL())
	printMuted("Creating snapshot; this can take a minute on large installs...")

	snap, err := client.CreateBackup(context.Background())
	if err != nil {
		log.Fatalf("Failed to create backup: %v", err)
	}
	printSuccess(fmt.Sprintf("Snapshot written: %s (%s)", snap.Name, formatBytes(snap.SizeBytes)))
}

func runDeleteBackup(cmd *cobra.Command, args []string) {
	client := NewUpdaterClient(serverURL())
	if err := client.DeleteBackup(context.Background(), deleteTarget); err != nil {
		log.Fatalf("Failed to delete backup: %v", err)
	}
	printSuccess("Deleted " + deleteTarget)
}

func runDownloadBackup(cmd *cobra.Command, args []string) {
	name := args[0]
	dest := downloadOutput
	if dest == "" {
		dest = name
	}

	client := NewUpdaterClient(serverURL())
	if err := client.DownloadBackup(context.Background(), name, dest); err != nil {
		log.Fatalf("Failed to download backup: %v", err)
	}
	printSuccess("Saved " + dest)
}

// formatBytes renders a size the way ls -lh would.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for v := n / unit; v >= unit; v /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
