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
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

func TestUpdaterClient_CheckVersion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/version", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"updateAvailable","localRef":"abc123","remoteRef":"def456"}`)
	}))
	defer srv.Close()

	client := NewUpdaterClient(srv.URL)
	state, err := client.CheckVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, datatypes.VersionUpdateAvailable, state.Status)
	assert.Equal(t, "abc123", state.LocalRef)
}

func TestUpdaterClient_ListBackups(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"backups":[{"name":"netpanel-2025-11-03T14-02-51Z.tar.gz","sizeBytes":1024}]}`)
	}))
	defer srv.Close()

	client := NewUpdaterClient(srv.URL)
	snapshots, err := client.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshots, 1)
	assert.Equal(t, "netpanel-2025-11-03T14-02-51Z.tar.gz", snapshots[0].Name)
}

func TestUpdaterClient_CreateBackup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		fmt.Fprint(w, `{"name":"netpanel-2025-11-03T14-02-51Z.tar.gz","sizeBytes":2048}`)
	}))
	defer srv.Close()

	client := NewUpdaterClient(srv.URL)
	snap, err := client.CreateBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2048), snap.SizeBytes)
}

func TestUpdaterClient_DeleteBackup_SurfacesServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":"no such snapshot"}`)
	}))
	defer srv.Close()

	client := NewUpdaterClient(srv.URL)
	err := client.DeleteBackup(context.Background(), "netpanel-2025-01-01T00-00-00Z.tar.gz")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such snapshot")
	assert.Contains(t, err.Error(), "404")
}

func TestUpdaterClient_DownloadBackup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.Path, "/download")
		fmt.Fprint(w, "archive bytes")
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "snap.tar.gz")
	client := NewUpdaterClient(srv.URL)
	require.NoError(t, client.DownloadBackup(context.Background(), "netpanel-2025-11-03T14-02-51Z.tar.gz", dest))

	body, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(body))
}

func TestUpdaterClient_History(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		fmt.Fprint(w, `{"operations":[{"id":"op-1","kind":"update","terminalStatus":"restarting"}]}`)
	}))
	defer srv.Close()

	client := NewUpdaterClient(srv.URL)
	records, err := client.History(context.Background(), 5)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, datatypes.OperationUpdate, records[0].Kind)
}

func TestUpdaterClient_StreamUpdate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/update", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": ping\n\n")
		fmt.Fprint(w, "event: log\ndata: {\"type\":\"log\",\"log\":\"--- fetch latest code\"}\n\n")
		fmt.Fprint(w, "event: warning\ndata: {\"type\":\"warning\",\"log\":\"npm WARN deprecated\",\"warning\":true}\n\n")
		fmt.Fprint(w, "event: status\ndata: {\"type\":\"status\",\"status\":\"restarting\",\"message\":\"Restarting panel services\"}\n\n")
		fmt.Fprint(w, "event: status\ndata: {\"type\":\"status\",\"status\":\"finished\"}\n\n")
	}))
	defer srv.Close()

	var events []datatypes.StreamEvent
	client := NewUpdaterClient(srv.URL)
	err := client.StreamUpdate(context.Background(), func(ev datatypes.StreamEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)

	require.Len(t, events, 4)
	assert.Equal(t, "--- fetch latest code", events[0].Log)
	assert.True(t, events[1].Warning)
	assert.Equal(t, datatypes.StatusRestarting, events[2].Status)
	assert.Equal(t, datatypes.StatusFinished, events[3].Status)
}

func TestUpdaterClient_StreamUpdate_ConflictIsPlainError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error":"another operation is already in progress"}`)
	}))
	defer srv.Close()

	client := NewUpdaterClient(srv.URL)
	err := client.StreamUpdate(context.Background(), func(datatypes.StreamEvent) {
		t.Fatal("no events should be delivered on a 409")
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already in progress")
}

func TestUpdaterClient_StreamRollback_PassesBackupQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/rollback", r.URL.Path)
		assert.Equal(t, "netpanel-2025-11-03T14-02-51Z.tar.gz", r.URL.Query().Get("backup"))
		fmt.Fprint(w, "event: status\ndata: {\"type\":\"status\",\"status\":\"success\",\"message\":\"done\"}\n\n")
		fmt.Fprint(w, "event: status\ndata: {\"type\":\"status\",\"status\":\"finished\"}\n\n")
	}))
	defer srv.Close()

	var terminal datatypes.TerminalStatus
	client := NewUpdaterClient(srv.URL)
	err := client.StreamRollback(context.Background(), "netpanel-2025-11-03T14-02-51Z.tar.gz", func(ev datatypes.StreamEvent) {
		if ev.Status == datatypes.StatusSuccess {
			terminal = ev.Status
		}
	})
	require.NoError(t, err)
	assert.Equal(t, datatypes.StatusSuccess, terminal)
}

func TestReadEventStream_SkipsMalformedFrames(t *testing.T) {
	body := strings.Join([]string{
		"event: log",
		"data: {not json",
		"",
		"event: log",
		`data: {"type":"log","log":"still here"}`,
		"",
	}, "\n")

	var events []datatypes.StreamEvent
	err := readEventStream(strings.NewReader(body), func(ev datatypes.StreamEvent) {
		events = append(events, ev)
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, "still here", events[0].Log)
}

func TestStreamAndReport_CapturesTerminalStatus(t *testing.T) {
	terminal := streamAndReport(func(fn func(datatypes.StreamEvent)) error {
		fn(datatypes.StreamEvent{Type: "log", Log: "--- rebuild panel ui"})
		fn(datatypes.StreamEvent{Type: "status", Status: datatypes.StatusError, Message: "step failed"})
		fn(datatypes.StreamEvent{Type: "status", Status: datatypes.StatusFinished})
		return nil
	})
	assert.Equal(t, datatypes.StatusError, terminal)
}

func TestStreamAndReport_BrokenStreamHasNoTerminal(t *testing.T) {
	terminal := streamAndReport(func(fn func(datatypes.StreamEvent)) error {
		fn(datatypes.StreamEvent{Type: "log", Log: "partial output"})
		return fmt.Errorf("stream interrupted: connection reset")
	})
	assert.Equal(t, datatypes.TerminalStatus(""), terminal)
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", formatBytes(512))
	assert.Equal(t, "1.0 KiB", formatBytes(1024))
	assert.Equal(t, "1.5 MiB", formatBytes(1536*1024))
}

func TestShortRef(t *testing.T) {
	assert.Equal(t, "0123456789ab", shortRef("0123456789abcdef0123"))
	assert.Equal(t, "abc123", shortRef("abc123"))
}
