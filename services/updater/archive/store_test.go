// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package archive

import (
	"context"
	"crypto/sha256"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestStore builds a store over a small synthetic application tree.
func newTestStore(t *testing.T) (*DirStore, string) {
	t.Helper()
	root := t.TempDir()

	require.NoError(t, os.MkdirAll(filepath.Join(root, "server"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ui", "src"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules", "left-pad"), 0755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git"), 0755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "server", "app.py"), []byte("print('hi')\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "ui", "src", "index.js"), []byte("export {}\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "node_modules", "left-pad", "index.js"), []byte("nope"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0644))

	store, err := NewDirStore(Config{Root: root})
	require.NoError(t, err)

	// Names have one-second resolution; tick the clock so back-to-back
	// Creates in a test never share a name.
	base := time.Date(2025, 11, 3, 14, 0, 0, 0, time.UTC)
	ticks := 0
	store.now = func() time.Time {
		ticks++
		return base.Add(time.Duration(ticks) * time.Second)
	}
	return store, root
}

func TestDirStore_CreateListRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)

	snap, err := store.Create(context.Background())
	require.NoError(t, err)
	assert.Regexp(t, `^netpanel-\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}Z\.tar\.gz$`, snap.Name)
	assert.Greater(t, snap.SizeBytes, int64(0))

	snaps, err := store.List()
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, snap.Name, snaps[0].Name)
	assert.Equal(t, snap.SizeBytes, snaps[0].SizeBytes)
}

func TestDirStore_ListNewestFirst(t *testing.T) {
	store, _ := newTestStore(t)

	// Two archives with hand-written timestamped names.
	old := filepath.Join(store.Dir(), "netpanel-2024-01-01T00-00-00Z.tar.gz")
	newer := filepath.Join(store.Dir(), "netpanel-2025-01-01T00-00-00Z.tar.gz")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0644))
	require.NoError(t, os.WriteFile(newer, []byte("x"), 0644))

	snaps, err := store.List()
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "netpanel-2025-01-01T00-00-00Z.tar.gz", snaps[0].Name)
}

func TestDirStore_ListSkipsMalformedEntries(t *testing.T) {
	store, _ := newTestStore(t)

	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "netpanel-garbage.tar.gz"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "unrelated.txt"), []byte("x"), 0644))

	snaps, err := store.List()
	require.NoError(t, err)
	assert.Empty(t, snaps)
}

func TestDirStore_CreateExcludesCachesAndSelf(t *testing.T) {
	store, root := newTestStore(t)

	snap, err := store.Create(context.Background())
	require.NoError(t, err)

	restored := t.TempDir()
	require.NoError(t, store.Restore(context.Background(), snap.Name, restored))

	assert.FileExists(t, filepath.Join(restored, "server", "app.py"))
	assert.FileExists(t, filepath.Join(restored, "ui", "src", "index.js"))
	assert.NoFileExists(t, filepath.Join(restored, "node_modules", "left-pad", "index.js"))
	assert.NoFileExists(t, filepath.Join(restored, ".git", "HEAD"))
	assert.NoDirExists(t, filepath.Join(restored, filepath.Base(store.Dir())))

	// A second snapshot must not swallow the first one recursively.
	_, err = store.Create(context.Background())
	require.NoError(t, err)
	snaps, err := store.List()
	require.NoError(t, err)
	assert.Len(t, snaps, 2)
	_ = root
}

func TestDirStore_CreateRefusesSameSecondOverwrite(t *testing.T) {
	store, _ := newTestStore(t)
	store.now = func() time.Time {
		return time.Date(2025, 11, 3, 14, 2, 51, 0, time.UTC)
	}

	snap, err := store.Create(context.Background())
	require.NoError(t, err)

	path := filepath.Join(store.Dir(), snap.Name)
	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// Same clock reading, same name: the first snapshot must survive.
	_, err = store.Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	snaps, err := store.List()
	require.NoError(t, err)
	assert.Len(t, snaps, 1)
}

func TestDirStore_SnapshotImmutableUntilDelete(t *testing.T) {
	store, root := newTestStore(t)

	snap, err := store.Create(context.Background())
	require.NoError(t, err)

	path := filepath.Join(store.Dir(), snap.Name)
	before, err := os.ReadFile(path)
	require.NoError(t, err)
	sumBefore := sha256.Sum256(before)

	// Mutate the tree and run every non-delete operation.
	require.NoError(t, os.WriteFile(filepath.Join(root, "server", "app.py"), []byte("changed"), 0644))
	_, err = store.Create(context.Background())
	require.NoError(t, err)
	_, err = store.List()
	require.NoError(t, err)
	require.NoError(t, store.Restore(context.Background(), snap.Name, t.TempDir()))

	after, err := os.ReadFile(path)
	require.NoError(t, err)
	sumAfter := sha256.Sum256(after)
	assert.Equal(t, sumBefore, sumAfter, "snapshot bytes changed after later operations")

	require.NoError(t, store.Delete(snap.Name))
	assert.NoFileExists(t, path)
}

func TestDirStore_RestoreIsAdditive(t *testing.T) {
	store, root := newTestStore(t)

	snap, err := store.Create(context.Background())
	require.NoError(t, err)

	// Change one file and add another after the snapshot.
	require.NoError(t, os.WriteFile(filepath.Join(root, "server", "app.py"), []byte("broken"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "server", "new.py"), []byte("kept"), 0644))

	require.NoError(t, store.Restore(context.Background(), snap.Name, root))

	content, err := os.ReadFile(filepath.Join(root, "server", "app.py"))
	require.NoError(t, err)
	assert.Equal(t, "print('hi')\n", string(content), "restore should overwrite changed files")
	assert.FileExists(t, filepath.Join(root, "server", "new.py"), "restore should not delete newer files")
}

func TestDirStore_NameValidationBeforeFilesystem(t *testing.T) {
	// Store whose archive dir does not exist anymore: any filesystem access
	// on these names would surface as a different error.
	store, _ := newTestStore(t)
	require.NoError(t, os.RemoveAll(store.Dir()))

	for _, name := range []string{"../../etc/passwd", "a/b.tar.gz", "..\\evil.tar.gz", "x..y.tar.gz"} {
		err := store.Delete(name)
		assert.ErrorIs(t, err, ErrInvalidName, "Delete(%q)", name)

		err = store.Restore(context.Background(), name, t.TempDir())
		assert.ErrorIs(t, err, ErrInvalidName, "Restore(%q)", name)

		_, err = store.Path(name)
		assert.ErrorIs(t, err, ErrInvalidName, "Path(%q)", name)
	}
}

func TestDirStore_NotFound(t *testing.T) {
	store, _ := newTestStore(t)

	err := store.Delete("netpanel-2020-01-01T00-00-00Z.tar.gz")
	assert.ErrorIs(t, err, ErrNotFound)

	err = store.Restore(context.Background(), "netpanel-2020-01-01T00-00-00Z.tar.gz", t.TempDir())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDirStore_RestoreCorruptArchive(t *testing.T) {
	store, _ := newTestStore(t)

	name := "netpanel-2025-01-01T00-00-00Z.tar.gz"
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), name), []byte("not a gzip"), 0644))

	err := store.Restore(context.Background(), name, t.TempDir())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCorruptArchive), "want ErrCorruptArchive, got %v", err)
}

func TestNewDirStore_RequiresRoot(t *testing.T) {
	_, err := NewDirStore(Config{})
	assert.Error(t, err)
}
