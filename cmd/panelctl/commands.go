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
	"github.com/spf13/cobra"
)

// --- Global Command Variables ---
var (
	serverFlag     string
	rollbackTarget string
	deleteTarget   string
	downloadOutput string
	historyLimit   int
	yesFlag        bool

	rootCmd = &cobra.Command{
		Use:   "panelctl",
		Short: "A cli to manage a NetPanel installation",
		Long: `panelctl talks to the NetPanel updater service to check versions,
				run updates, and manage the snapshot archive.`,
	}

	// --- Version ---
	versionCmd = &cobra.Command{
		Use:     "version",
		Aliases: []string{"check-version"},
		Short:   "Compare the installed panel against the published release",
		Run:     runCheckVersion, // Defined in cmd_version.go
	}

	// --- Operations ---
	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Update the panel to the latest published release",
		Long: `update snapshots the current installation, pulls the latest code,
				rebuilds the UI, and restarts the panel services. Progress is
				streamed live; the command exits non-zero if any step fails.`,
		Run: runUpdate, // Defined in cmd_ops.go
	}

	rollbackCmd = &cobra.Command{
		Use:   "rollback",
		Short: "Restore the panel from a snapshot",
		Long: `rollback restores the named snapshot over the current tree and
				rebuilds. The snapshot itself is left untouched. Use "panelctl
				backups list" to find snapshot names.`,
		Run: runRollback, // Defined in cmd_ops.go
	}

	// --- Backups ---
	backupsCmd = &cobra.Command{
		Use:   "backups",
		Short: "Manage the snapshot archive",
	}
	listBackupsCmd = &cobra.Command{
		Use:   "list",
		Short: "List available snapshots, newest first",
		Run:   runListBackups, // Defined in cmd_backups.go
	}
	createBackupCmd = &cobra.Command{
		Use:   "create",
		Short: "Create a snapshot of the current installation",
		Run:   runCreateBackup, // Defined in cmd_backups.go
	}
	deleteBackupCmd = &cobra.Command{
		Use:   "delete",
		Short: "Delete a snapshot from the archive",
		Run:   runDeleteBackup, // Defined in cmd_backups.go
	}
	downloadBackupCmd = &cobra.Command{
		Use:   "download [snapshot]",
		Short: "Download a snapshot archive to the local machine",
		Args:  cobra.ExactArgs(1),
		Run:   runDownloadBackup, // Defined in cmd_backups.go
	}

	// listBackupsAliasCmd is a top-level alias for backups list
	listBackupsAliasCmd = &cobra.Command{
		Use:   "list-backups",
		Short: "List available snapshots (alias for backups list)",
		Run:   runListBackups, // Defined in cmd_backups.go
	}
	// deleteBackupAliasCmd is a top-level alias for backups delete
	deleteBackupAliasCmd = &cobra.Command{
		Use:   "delete-backup",
		Short: "Delete a snapshot (alias for backups delete)",
		Run:   runDeleteBackup, // Defined in cmd_backups.go
	}

	// --- History ---
	historyCmd = &cobra.Command{
		Use:   "history",
		Short: "Show recent update and rollback operations",
		Run:   runHistory, // Defined in cmd_version.go
	}
)

// init runs when the Go program starts
func init() {
	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "",
		"Base URL of the updater service (default http://localhost:12215)")

	rootCmd.AddCommand(versionCmd)

	rootCmd.AddCommand(updateCmd)

	rootCmd.AddCommand(rollbackCmd)
	rollbackCmd.Flags().StringVar(&rollbackTarget, "backup", "", "Snapshot name to restore (required)")
	rollbackCmd.Flags().BoolVar(&yesFlag, "yes", false, "Skip the confirmation prompt")
	_ = rollbackCmd.MarkFlagRequired("backup")

	rootCmd.AddCommand(backupsCmd)
	backupsCmd.AddCommand(listBackupsCmd)
	backupsCmd.AddCommand(createBackupCmd)
	backupsCmd.AddCommand(deleteBackupCmd)
	deleteBackupCmd.Flags().StringVar(&deleteTarget, "backup", "", "Snapshot name to delete (required)")
	_ = deleteBackupCmd.MarkFlagRequired("backup")
	backupsCmd.AddCommand(downloadBackupCmd)
	downloadBackupCmd.Flags().StringVarP(&downloadOutput, "output", "o", "", "Output filename (default: the snapshot name)")

	// Top-level aliases for the documented flat command surface
	rootCmd.AddCommand(listBackupsAliasCmd)
	rootCmd.AddCommand(deleteBackupAliasCmd)
	deleteBackupAliasCmd.Flags().StringVar(&deleteTarget, "backup", "", "Snapshot name to delete (required)")
	_ = deleteBackupAliasCmd.MarkFlagRequired("backup")

	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntVar(&historyLimit, "limit", 20, "Number of operations to show")
}
