// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package logging

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevel_String(t *testing.T) {
	assert.Equal(t, "DEBUG", LevelDebug.String())
	assert.Equal(t, "INFO", LevelInfo.String())
	assert.Equal(t, "WARN", LevelWarn.String())
	assert.Equal(t, "ERROR", LevelError.String())
	assert.Equal(t, "UNKNOWN", Level(42).String())
}

func TestNew_FileLogging(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelInfo,
		LogDir:  dir,
		Service: "updater",
		Quiet:   true,
	})

	logger.Info("snapshot created", "name", "netpanel-2025-11-03T14-02-51Z.tar.gz")
	require.NoError(t, logger.Close())

	filename := "updater_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)

	var entry map[string]any
	firstLine := strings.SplitN(strings.TrimSpace(string(data)), "\n", 2)[0]
	require.NoError(t, json.Unmarshal([]byte(firstLine), &entry))
	assert.Equal(t, "snapshot created", entry["msg"])
	assert.Equal(t, "updater", entry["service"])
	assert.Equal(t, "netpanel-2025-11-03T14-02-51Z.tar.gz", entry["name"])
}

func TestNew_LevelFiltering(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{
		Level:   LevelWarn,
		LogDir:  dir,
		Service: "updater",
		Quiet:   true,
	})

	logger.Info("filtered out")
	logger.Warn("kept")
	require.NoError(t, logger.Close())

	filename := "updater_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)

	assert.NotContains(t, string(data), "filtered out")
	assert.Contains(t, string(data), "kept")
}

func TestLogger_WithCarriesAttributes(t *testing.T) {
	dir := t.TempDir()
	logger := New(Config{LogDir: dir, Service: "updater", Quiet: true})

	opLogger := logger.With("operation_id", "op-123")
	opLogger.Info("pipeline step finished")
	require.NoError(t, logger.Close())

	filename := "updater_" + time.Now().Format("2006-01-02") + ".log"
	data, err := os.ReadFile(filepath.Join(dir, filename))
	require.NoError(t, err)
	assert.Contains(t, string(data), "op-123")
}

func TestLogger_CloseWithoutFileIsNil(t *testing.T) {
	logger := New(Config{Quiet: true})
	assert.NoError(t, logger.Close())
	// Close is idempotent.
	assert.NoError(t, logger.Close())
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".netpanel/logs"), expandPath("~/.netpanel/logs"))
	assert.Equal(t, "/var/log/netpanel", expandPath("/var/log/netpanel"))
	assert.Equal(t, "relative/path", expandPath("relative/path"))
}

func TestDefault(t *testing.T) {
	logger := Default()
	require.NotNil(t, logger.Slog())
	assert.Equal(t, "netpanel", logger.config.Service)
}
