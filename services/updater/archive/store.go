// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package archive implements the snapshot store for the updater: compressed,
// timestamp-named archives of the application tree that serve as restore
// points before destructive operations.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/AleutianAI/NetPanel/pkg/validation"
	"github.com/AleutianAI/NetPanel/services/updater/datatypes"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrInvalidName means the snapshot name failed validation. No
	// filesystem call was made.
	ErrInvalidName = errors.New("invalid snapshot name")

	// ErrNotFound means no snapshot with the given name exists.
	ErrNotFound = errors.New("snapshot not found")

	// ErrCorruptArchive means the archive exists but could not be read back.
	ErrCorruptArchive = errors.New("corrupt snapshot archive")
)

// =============================================================================
// Interface Definition
// =============================================================================

// Store manages point-in-time snapshots of the application tree.
//
// # Description
//
// Snapshots are immutable once created; Delete is the only destructive
// operation on them. There is no retention policy — disk usage grows until
// an operator deletes old snapshots explicitly.
//
// # Thread Safety
//
// Implementations must be safe for concurrent reads (List). Writers (Create,
// Delete, Restore) are serialized by the engine's single-operation lock.
type Store interface {
	// Create walks the application tree and writes one compressed archive,
	// excluding dependency caches, VCS metadata, and the archive directory
	// itself. Returns the resulting snapshot metadata.
	Create(ctx context.Context) (datatypes.Snapshot, error)

	// List returns all snapshots sorted newest-first. Malformed or
	// unreadable entries are skipped, not fatal.
	List() ([]datatypes.Snapshot, error)

	// Delete removes the named snapshot. Returns ErrInvalidName before any
	// filesystem call for malformed names, ErrNotFound if absent.
	Delete(name string) error

	// Restore extracts the named snapshot over intoRoot, overwriting
	// existing files. Restore is additive: it does not delete files that are
	// absent from the archive.
	Restore(ctx context.Context, name string, intoRoot string) error

	// Path resolves the named snapshot to its on-disk archive path, for
	// serving downloads. Same validation as Delete.
	Path(name string) (string, error)
}

// =============================================================================
// Implementation
// =============================================================================

// DirStore is a Store backed by a flat directory of tar.gz files inside the
// deployment root.
type DirStore struct {
	// root is the application tree that gets archived.
	root string

	// dir is the archive directory, a fixed subdirectory of root.
	dir string

	// prefix is the snapshot filename prefix.
	prefix string

	// excludes are directory basenames skipped during Create.
	excludes map[string]struct{}

	logger *slog.Logger

	// now stamps snapshot names; replaceable in tests.
	now func() time.Time
}

// Config configures a DirStore.
type Config struct {
	// Root is the application tree to snapshot. Required.
	Root string

	// Dir is the archive directory. Default: <Root>/backups.
	Dir string

	// Prefix is the snapshot filename prefix. Default: "netpanel".
	Prefix string

	// ExtraExcludes are directory basenames skipped in addition to the
	// built-in set (.git, node_modules, vendor, __pycache__, .venv, logs).
	ExtraExcludes []string

	// Logger for skip/cleanup diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// NewDirStore creates a DirStore and ensures the archive directory exists.
//
// # Inputs
//
//   - cfg: Store configuration. Root must not be empty.
//
// # Outputs
//
//   - *DirStore: Ready-to-use store.
//   - error: Non-nil if Root is empty or the archive dir cannot be created.
func NewDirStore(cfg Config) (*DirStore, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("archive: root directory is required")
	}
	if cfg.Dir == "" {
		cfg.Dir = filepath.Join(cfg.Root, "backups")
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "netpanel"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
		return nil, fmt.Errorf("archive: create archive dir: %w", err)
	}

	excludes := map[string]struct{}{
		".git":         {},
		"node_modules": {},
		"vendor":       {},
		"__pycache__":  {},
		".venv":        {},
		"logs":         {},
	}
	for _, e := range cfg.ExtraExcludes {
		excludes[e] = struct{}{}
	}

	return &DirStore{
		root:     cfg.Root,
		dir:      cfg.Dir,
		prefix:   cfg.Prefix,
		excludes: excludes,
		logger:   cfg.Logger,
		now:      time.Now,
	}, nil
}

// Dir returns the archive directory path.
func (s *DirStore) Dir() string { return s.dir }

// Create walks the application tree and writes one tar.gz archive.
//
// # Description
//
// The archive is written to a temporary file and renamed into place, so a
// failed create never leaves a half-written snapshot behind and a completed
// snapshot is never observed partially written. The archive directory is
// excluded from its own input, as are prior snapshots it contains.
//
// The name embeds an ISO 8601 UTC timestamp with ':' replaced by '-', so
// lexical ordering matches chronological ordering.
func (s *DirStore) Create(ctx context.Context) (datatypes.Snapshot, error) {
	createdAt := s.now().UTC()
	name := fmt.Sprintf("%s-%s.tar.gz", s.prefix,
		strings.ReplaceAll(createdAt.Format("2006-01-02T15:04:05Z"), ":", "-"))
	finalPath := filepath.Join(s.dir, name)

	// Names have one-second resolution; a second Create in the same second
	// must fail rather than clobber an immutable snapshot.
	if _, err := os.Lstat(finalPath); err == nil {
		return datatypes.Snapshot{}, fmt.Errorf("archive: snapshot %s already exists", name)
	} else if !os.IsNotExist(err) {
		return datatypes.Snapshot{}, fmt.Errorf("archive: check for existing snapshot: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, ".partial-*")
	if err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("archive: create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		tmp.Close()
		os.Remove(tmpPath) // no-op after successful rename
	}()

	gz := gzip.NewWriter(tmp)
	tw := tar.NewWriter(gz)

	absDir, err := filepath.Abs(s.dir)
	if err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("archive: resolve archive dir: %w", err)
	}

	walkErr := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable entries are skipped, not fatal.
			s.logger.Warn("skipping unreadable entry", "path", path, "error", err)
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		if d.IsDir() {
			if abs, aerr := filepath.Abs(path); aerr == nil && abs == absDir {
				return filepath.SkipDir
			}
			if _, excluded := s.excludes[d.Name()]; excluded && path != s.root {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return fmt.Errorf("relativize %s: %w", path, err)
		}
		return s.addFile(tw, path, filepath.ToSlash(rel))
	})
	if walkErr != nil {
		return datatypes.Snapshot{}, fmt.Errorf("archive: walk tree: %w", walkErr)
	}

	if err := tw.Close(); err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("archive: finalize tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("archive: finalize gzip: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("archive: close archive: %w", err)
	}

	if err := os.Rename(tmpPath, finalPath); err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("archive: publish archive: %w", err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		return datatypes.Snapshot{}, fmt.Errorf("archive: stat archive: %w", err)
	}

	s.logger.Info("snapshot created", "name", name, "size_bytes", info.Size())
	return datatypes.Snapshot{
		Name:      name,
		SizeBytes: info.Size(),
		CreatedAt: createdAt,
	}, nil
}

// List returns all snapshots sorted newest-first.
func (s *DirStore) List() ([]datatypes.Snapshot, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("archive: read archive dir: %w", err)
	}

	var snapshots []datatypes.Snapshot
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, s.prefix+"-") || !strings.HasSuffix(name, ".tar.gz") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot", "name", name, "error", err)
			continue
		}
		createdAt, err := s.parseTimestamp(name)
		if err != nil {
			s.logger.Warn("skipping malformed snapshot name", "name", name, "error", err)
			continue
		}
		snapshots = append(snapshots, datatypes.Snapshot{
			Name:      name,
			SizeBytes: info.Size(),
			CreatedAt: createdAt,
		})
	}

	// Names are timestamp-derived, so this matches chronological order.
	sort.Slice(snapshots, func(i, j int) bool {
		return snapshots[i].Name > snapshots[j].Name
	})
	return snapshots, nil
}

// Delete removes the named snapshot.
func (s *DirStore) Delete(name string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("archive: delete %s: %w", name, err)
	}
	s.logger.Info("snapshot deleted", "name", name)
	return nil
}

// Path resolves a snapshot name to its archive file path.
func (s *DirStore) Path(name string) (string, error) {
	if err := validation.ValidateSnapshotName(name); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidName, err)
	}
	path := filepath.Join(s.dir, name)
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return "", fmt.Errorf("archive: stat %s: %w", name, err)
	}
	return path, nil
}

// Restore extracts the named snapshot over intoRoot.
//
// # Description
//
// Restore is additive and overwriting: files present in the archive replace
// files on disk, files created after the snapshot are left in place. Entry
// names are validated against absolute paths and parent-directory segments
// before anything is written.
//
// # Limitations
//
//   - Does not produce a byte-identical tree when files were deleted
//     between snapshot and restore (documented behavior, not a clean wipe).
func (s *DirStore) Restore(ctx context.Context, name string, intoRoot string) error {
	path, err := s.Path(name)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("archive: open %s: %w", name, err)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, name, err)
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrCorruptArchive, name, err)
		}

		clean := filepath.Clean(filepath.FromSlash(hdr.Name))
		if filepath.IsAbs(clean) || strings.HasPrefix(clean, "..") {
			return fmt.Errorf("%w: %s: unsafe entry %q", ErrCorruptArchive, name, hdr.Name)
		}
		target := filepath.Join(intoRoot, clean)

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, fs.FileMode(hdr.Mode)&0777); err != nil {
				return fmt.Errorf("archive: create dir %s: %w", target, err)
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
				return fmt.Errorf("archive: create parent %s: %w", target, err)
			}
			if err := writeFile(target, tr, fs.FileMode(hdr.Mode)&0777); err != nil {
				return err
			}
		default:
			// Symlinks and specials are not archived by Create; skip.
		}
	}

	s.logger.Info("snapshot restored", "name", name, "into", intoRoot)
	return nil
}

// addFile writes one regular file into the tar stream.
func (s *DirStore) addFile(tw *tar.Writer, path, rel string) error {
	info, err := os.Lstat(path)
	if err != nil {
		s.logger.Warn("skipping unreadable file", "path", path, "error", err)
		return nil
	}

	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return fmt.Errorf("tar header %s: %w", rel, err)
	}
	hdr.Name = rel

	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %s: %w", rel, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(tw, f); err != nil {
		return fmt.Errorf("copy %s: %w", rel, err)
	}
	return nil
}

// parseTimestamp recovers CreatedAt from a snapshot filename.
func (s *DirStore) parseTimestamp(name string) (time.Time, error) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, s.prefix+"-"), ".tar.gz")
	return time.Parse("2006-01-02T15-04-05Z", trimmed)
}

// writeFile creates target with the given mode and copies r into it.
func writeFile(target string, r io.Reader, mode fs.FileMode) error {
	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("archive: create file %s: %w", target, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, r); err != nil {
		return fmt.Errorf("archive: write file %s: %w", target, err)
	}
	return nil
}

// Compile-time interface check
var _ Store = (*DirStore)(nil)

// =============================================================================
// Mock Implementation for Testing
// =============================================================================

// MockStore is a test double for Store. Configure the function fields before
// use; calling a method whose field is nil panics.
type MockStore struct {
	CreateFunc  func(ctx context.Context) (datatypes.Snapshot, error)
	ListFunc    func() ([]datatypes.Snapshot, error)
	DeleteFunc  func(name string) error
	RestoreFunc func(ctx context.Context, name string, intoRoot string) error
	PathFunc    func(name string) (string, error)

	// Restores records the snapshot names passed to Restore.
	Restores []string
}

func (m *MockStore) Create(ctx context.Context) (datatypes.Snapshot, error) {
	if m.CreateFunc == nil {
		panic("MockStore.CreateFunc not set")
	}
	return m.CreateFunc(ctx)
}

func (m *MockStore) List() ([]datatypes.Snapshot, error) {
	if m.ListFunc == nil {
		panic("MockStore.ListFunc not set")
	}
	return m.ListFunc()
}

func (m *MockStore) Delete(name string) error {
	if m.DeleteFunc == nil {
		panic("MockStore.DeleteFunc not set")
	}
	return m.DeleteFunc(name)
}

func (m *MockStore) Restore(ctx context.Context, name string, intoRoot string) error {
	m.Restores = append(m.Restores, name)
	if m.RestoreFunc == nil {
		panic("MockStore.RestoreFunc not set")
	}
	return m.RestoreFunc(ctx, name, intoRoot)
}

func (m *MockStore) Path(name string) (string, error) {
	if m.PathFunc == nil {
		panic("MockStore.PathFunc not set")
	}
	return m.PathFunc(name)
}

var _ Store = (*MockStore)(nil)
