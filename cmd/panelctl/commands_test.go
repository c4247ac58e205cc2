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
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_RegistersSubcommands(t *testing.T) {
	expected := []string{"version", "update", "rollback", "backups", "history"}
	for _, name := range expected {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "expected subcommand %q on the root command", name)
	}
}

func TestBackupsCommand_RegistersSubcommands(t *testing.T) {
	expected := []string{"list", "create", "delete", "download"}
	for _, name := range expected {
		found := false
		for _, sub := range backupsCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "expected subcommand %q under backups", name)
	}
}

func TestRootCommand_FlatAliasesResolve(t *testing.T) {
	tests := []struct {
		args []string
		want *cobra.Command
	}{
		{[]string{"check-version"}, versionCmd},
		{[]string{"list-backups"}, listBackupsAliasCmd},
		{[]string{"delete-backup"}, deleteBackupAliasCmd},
	}
	for _, tc := range tests {
		cmd, _, err := rootCmd.Find(tc.args)
		require.NoError(t, err, "command %v should resolve", tc.args)
		assert.Same(t, tc.want, cmd)
	}
}

func TestDeleteBackupAlias_RequiresBackupFlag(t *testing.T) {
	flag := deleteBackupAliasCmd.Flags().Lookup("backup")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Annotations, "cobra_annotation_bash_completion_one_required_flag")
}

func TestRollbackCommand_RequiresBackupFlag(t *testing.T) {
	flag := rollbackCmd.Flags().Lookup("backup")
	require.NotNil(t, flag)
	assert.Contains(t, flag.Annotations, "cobra_annotation_bash_completion_one_required_flag")
}

func TestServerURL_Resolution(t *testing.T) {
	origFlag, origConfig := serverFlag, config.ServerURL
	defer func() { serverFlag, config.ServerURL = origFlag, origConfig }()

	serverFlag, config.ServerURL = "", ""
	assert.Equal(t, "http://localhost:12215", serverURL())

	t.Setenv("NETPANEL_UPDATER_URL", "http://panel:9999")
	assert.Equal(t, "http://panel:9999", serverURL())

	config.ServerURL = "http://from-config:1111"
	assert.Equal(t, "http://from-config:1111", serverURL())

	serverFlag = "http://from-flag:2222"
	assert.Equal(t, "http://from-flag:2222", serverURL())
}
