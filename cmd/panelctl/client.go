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
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

// UpdaterClient is a thin HTTP client for the updater service.
//
// # Description
//
// Plain endpoints (version, backups, history) use short request timeouts.
// The streaming endpoints (update, rollback) intentionally have no client
// timeout: an update legitimately runs for many minutes, and the server
// paces the connection with keepalive pings.
//
// # Thread Safety
//
// Safe for concurrent use; all state is immutable after construction.
type UpdaterClient struct {
	baseURL string
	http    *http.Client
	stream  *http.Client
}

// NewUpdaterClient builds a client for the updater at baseURL.
func NewUpdaterClient(baseURL string) *UpdaterClient {
	return &UpdaterClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		stream:  &http.Client{},
	}
}

// apiError is the {"error": "..."} body the service returns on failure.
type apiError struct {
	Error string `json:"error"`
}

// CheckVersion fetches the current version comparison.
func (c *UpdaterClient) CheckVersion(ctx context.Context) (datatypes.VersionState, error) {
	var state datatypes.VersionState
	if err := c.getJSON(ctx, "/v1/version", &state); err != nil {
		return datatypes.VersionState{}, err
	}
	return state, nil
}

// ListBackups fetches the snapshot archive listing, newest first.
func (c *UpdaterClient) ListBackups(ctx context.Context) ([]datatypes.Snapshot, error) {
	var body struct {
		Backups []datatypes.Snapshot `json:"backups"`
	}
	if err := c.getJSON(ctx, "/v1/backups", &body); err != nil {
		return nil, err
	}
	return body.Backups, nil
}

// CreateBackup asks the service to snapshot the current installation.
func (c *UpdaterClient) CreateBackup(ctx context.Context) (datatypes.Snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/backups", nil)
	if err != nil {
		return datatypes.Snapshot{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return datatypes.Snapshot{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return datatypes.Snapshot{}, c.errorFromResponse(resp)
	}
	var snap datatypes.Snapshot
	if err := json.NewDecoder(resp.Body).Decode(&snap); err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snap, nil
}

// DeleteBackup removes a snapshot from the archive.
func (c *UpdaterClient) DeleteBackup(ctx context.Context, name string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		c.baseURL+"/v1/backups/"+url.PathEscape(name), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return c.errorFromResponse(resp)
	}
	return nil
}

// DownloadBackup streams a snapshot archive into dest.
func (c *UpdaterClient) DownloadBackup(ctx context.Context, name, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/v1/backups/"+url.PathEscape(name)+"/download", nil)
	if err != nil {
		return err
	}
	resp, err := c.stream.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dest, err)
	}
	defer out.Close()
	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("download interrupted: %w", err)
	}
	return nil
}

// History fetches the most recent finished operations.
func (c *UpdaterClient) History(ctx context.Context, limit int) ([]datatypes.OperationRecord, error) {
	var body struct {
		Operations []datatypes.OperationRecord `json:"operations"`
	}
	path := "/v1/operations?limit=" + strconv.Itoa(limit)
	if err := c.getJSON(ctx, path, &body); err != nil {
		return nil, err
	}
	return body.Operations, nil
}

// StreamUpdate starts an update and delivers each progress event to fn.
//
// Returns once the stream ends; a transport error mid-stream is returned,
// but the operation keeps running server-side regardless.
func (c *UpdaterClient) StreamUpdate(ctx context.Context, fn func(datatypes.StreamEvent)) error {
	return c.streamOperation(ctx, "/v1/update", fn)
}

// StreamRollback starts a rollback of the named snapshot and delivers each
// progress event to fn.
func (c *UpdaterClient) StreamRollback(ctx context.Context, backup string, fn func(datatypes.StreamEvent)) error {
	path := "/v1/rollback?backup=" + url.QueryEscape(backup)
	return c.streamOperation(ctx, path, fn)
}

func (c *UpdaterClient) streamOperation(ctx context.Context, path string, fn func(datatypes.StreamEvent)) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.stream.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach the updater service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}
	return readEventStream(resp.Body, fn)
}

// readEventStream parses an SSE body line by line and hands each decoded
// event to fn. Comment lines (keepalive pings) are skipped. The stream ends
// at EOF; the server closes the connection after the "finished" event.
func readEventStream(r io.Reader, fn func(datatypes.StreamEvent)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, ":") || strings.HasPrefix(line, "event:") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}

		var ev datatypes.StreamEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(data)), &ev); err != nil {
			// A malformed frame is not worth killing the stream over.
			continue
		}
		fn(ev)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream interrupted: %w", err)
	}
	return nil
}

func (c *UpdaterClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach the updater service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.errorFromResponse(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// errorFromResponse turns a non-2xx response into an error, preferring the
// service's own error message when the body carries one.
func (c *UpdaterClient) errorFromResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*1024))
	var apiErr apiError
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", apiErr.Error, resp.StatusCode)
	}
	return fmt.Errorf("updater service returned HTTP %d", resp.StatusCode)
}
