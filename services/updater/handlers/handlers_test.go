// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/NetPanel/services/updater/archive"
	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
	"github.com/AleutianAI/NetPanel/services/updater/engine"
	"github.com/AleutianAI/NetPanel/services/updater/journal"
	"github.com/AleutianAI/NetPanel/services/updater/pipeline"
	"github.com/AleutianAI/NetPanel/services/updater/progress"
)

const testSnapshot = "netpanel-2025-11-03T14-02-51Z.tar.gz"

func init() {
	gin.SetMode(gin.TestMode)
	RegisterValidators()
}

// =============================================================================
// Test Setup
// =============================================================================

func testStore() *archive.MockStore {
	return &archive.MockStore{
		CreateFunc: func(ctx context.Context) (datatypes.Snapshot, error) {
			return datatypes.Snapshot{Name: testSnapshot, SizeBytes: 2048, CreatedAt: time.Now()}, nil
		},
		ListFunc: func() ([]datatypes.Snapshot, error) {
			return []datatypes.Snapshot{{Name: testSnapshot, SizeBytes: 2048}}, nil
		},
		DeleteFunc:  func(name string) error { return nil },
		RestoreFunc: func(ctx context.Context, name string, intoRoot string) error { return nil },
		PathFunc: func(name string) (string, error) {
			if name == testSnapshot {
				return "/tmp/backups/" + name, nil
			}
			return "", fmt.Errorf("%w: %s", archive.ErrNotFound, name)
		},
	}
}

func testEngine(t *testing.T, store *archive.MockStore) *engine.Engine {
	t.Helper()
	runner := &pipeline.MockRunner{
		RunFunc: func(ctx context.Context, steps []pipeline.Command, sink progress.Channel) []pipeline.StepResult {
			results := make([]pipeline.StepResult, 0, len(steps))
			for _, step := range steps {
				sink.Emit("--- " + step.String())
				results = append(results, pipeline.StepResult{Command: step, Status: pipeline.StepOK})
			}
			return results
		},
	}
	eng, err := engine.New(engine.Config{
		Root:          t.TempDir(),
		Store:         store,
		Runner:        runner,
		Journal:       &journal.MockJournal{},
		UpdateSteps:   []pipeline.Command{{Name: "fetch latest code", Path: "git", Args: []string{"pull"}}},
		RollbackSteps: []pipeline.Command{{Name: "rebuild panel ui", Path: "npm", Args: []string{"run", "build"}}},
	})
	require.NoError(t, err)
	return eng
}

func testRouter(eng *engine.Engine, store *archive.MockStore) *gin.Engine {
	router := gin.New()
	router.GET("/v1/update", HandleUpdate(eng, nil))
	router.GET("/v1/rollback", HandleRollback(eng, nil))
	router.GET("/v1/backups", HandleListBackups(store))
	router.POST("/v1/backups", HandleCreateBackup(store))
	router.DELETE("/v1/backups/:name", HandleDeleteBackup(store))
	router.GET("/v1/backups/:name/download", HandleDownloadBackup(store))
	return router
}

// =============================================================================
// Streaming Handlers
// =============================================================================

func TestHandleUpdate_StreamsToCompletion(t *testing.T) {
	store := testStore()
	router := testRouter(testEngine(t, store), store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/update", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "event: log")
	assert.Contains(t, body, testSnapshot)
	assert.Contains(t, body, `"status":"success"`)
	assert.Contains(t, body, `"status":"finished"`)
}

func TestHandleUpdate_ConflictWhileBusy(t *testing.T) {
	store := testStore()
	eng := testEngine(t, store)
	router := testRouter(eng, store)

	// Hold the lock without running the operation.
	_, err := eng.BeginUpdate()
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/update", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already in progress")
}

func TestHandleRollback_Streams(t *testing.T) {
	store := testStore()
	router := testRouter(testEngine(t, store), store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/rollback?backup="+testSnapshot, nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "Restoring snapshot")
	assert.Contains(t, body, `"status":"success"`)
	require.Len(t, store.Restores, 1)
	assert.Equal(t, testSnapshot, store.Restores[0])
}

func TestHandleRollback_RequestValidation(t *testing.T) {
	store := testStore()
	router := testRouter(testEngine(t, store), store)

	tests := []struct {
		name  string
		query string
		want  int
	}{
		{"missing backup", "", http.StatusBadRequest},
		{"traversal attempt", "?backup=../../etc/passwd", http.StatusBadRequest},
		{"wrong extension", "?backup=notes.txt", http.StatusBadRequest},
		{"unknown snapshot", "?backup=netpanel-2020-01-01T00-00-00Z.tar.gz", http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req, _ := http.NewRequest("GET", "/v1/rollback"+tt.query, nil)
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			// Validation failures answer as JSON, never as a stream.
			assert.NotContains(t, w.Header().Get("Content-Type"), "text/event-stream")
			assert.Empty(t, store.Restores)
		})
	}
}

// =============================================================================
// Backup Handlers
// =============================================================================

func TestHandleListBackups(t *testing.T) {
	store := testStore()
	router := testRouter(testEngine(t, store), store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/backups", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), testSnapshot)
}

func TestHandleCreateBackup(t *testing.T) {
	store := testStore()
	router := testRouter(testEngine(t, store), store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/v1/backups", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), testSnapshot)
}

func TestHandleDeleteBackup_ErrorMapping(t *testing.T) {
	store := testStore()
	store.DeleteFunc = func(name string) error {
		switch name {
		case testSnapshot:
			return nil
		case "missing.tar.gz":
			return fmt.Errorf("%w: %s", archive.ErrNotFound, name)
		default:
			return fmt.Errorf("%w: %s", archive.ErrInvalidName, name)
		}
	}
	router := testRouter(testEngine(t, store), store)

	tests := []struct {
		name string
		want int
	}{
		{testSnapshot, http.StatusOK},
		{"missing.tar.gz", http.StatusNotFound},
		{"bad name", http.StatusBadRequest},
	}
	for _, tt := range tests {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("DELETE", "/v1/backups/"+tt.name, nil)
		router.ServeHTTP(w, req)
		assert.Equal(t, tt.want, w.Code, "name %q", tt.name)
	}
}

func TestHandleDownloadBackup(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, testSnapshot)
	require.NoError(t, os.WriteFile(path, []byte("archive bytes"), 0o644))

	store := testStore()
	store.PathFunc = func(name string) (string, error) {
		if name == testSnapshot {
			return path, nil
		}
		return "", fmt.Errorf("%w: %s", archive.ErrNotFound, name)
	}
	router := testRouter(testEngine(t, store), store)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/backups/"+testSnapshot+"/download", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), testSnapshot)
	assert.Equal(t, "archive bytes", w.Body.String())
}

// =============================================================================
// Version and History Handlers
// =============================================================================

type stubChecker struct {
	state datatypes.VersionState
}

func (s stubChecker) Check(ctx context.Context) datatypes.VersionState { return s.state }

func TestHandleCheckVersion(t *testing.T) {
	router := gin.New()
	router.GET("/v1/version", HandleCheckVersion(stubChecker{
		state: datatypes.VersionState{LocalRef: "abc", RemoteRef: "def", Status: datatypes.VersionUpdateAvailable},
	}))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/version", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"updateAvailable"`)
}

func TestHandleHistory(t *testing.T) {
	j := &journal.MockJournal{}
	require.NoError(t, j.Append(context.Background(), datatypes.OperationRecord{
		Id: "op-1", Kind: datatypes.OperationUpdate, TerminalStatus: datatypes.StatusRestarting,
	}))

	router := gin.New()
	router.GET("/v1/operations", HandleHistory(j))

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/v1/operations", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "op-1")

	w = httptest.NewRecorder()
	req, _ = http.NewRequest("GET", "/v1/operations?limit=0", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// SSE Writer and Channel Adapter
// =============================================================================

func TestSSEWriter_WireFormat(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, writer.WriteLog("npm install"))
	require.NoError(t, writer.WriteWarning("deprecated package"))
	require.NoError(t, writer.WriteStatus(datatypes.StatusError, "boom"))
	require.NoError(t, writer.WriteFinished())
	require.NoError(t, writer.WriteKeepAlive())

	body := w.Body.String()
	assert.Contains(t, body, "event: log\ndata: ")
	assert.Contains(t, body, `"log":"npm install"`)
	assert.Contains(t, body, `"warning":true`)
	assert.Contains(t, body, `"status":"error"`)
	assert.Contains(t, body, `"status":"finished"`)
	assert.Contains(t, body, ": ping\n\n")
	// Every event carries an id and timestamp.
	assert.Contains(t, body, `"id":`)
	assert.Contains(t, body, `"createdAt":`)
}

func TestSSEChannel_SingleTerminalStatus(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := NewSSEWriter(w)
	require.NoError(t, err)

	ch := newSSEChannel(writer, nil)
	ch.Emit("line one")
	ch.EmitStatus(datatypes.StatusSuccess, "done")
	ch.EmitStatus(datatypes.StatusError, "late and dropped")
	ch.Close()
	ch.Emit("after close, dropped")
	ch.Close()

	body := w.Body.String()
	assert.Contains(t, body, "line one")
	assert.Contains(t, body, `"status":"success"`)
	assert.NotContains(t, body, "late and dropped")
	assert.NotContains(t, body, "after close")
	// Close appended exactly one finished frame.
	assert.Equal(t, 1, countOccurrences(body, `"status":"finished"`))
}

func countOccurrences(s, sub string) int {
	count := 0
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			count++
		}
	}
	return count
}
