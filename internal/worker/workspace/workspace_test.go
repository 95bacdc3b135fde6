package workspace_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/workspace"
)

func newManager(t *testing.T) *workspace.Manager {
	t.Helper()
	root := t.TempDir()
	m, err := workspace.NewManager(root, "", nil, "")
	require.NoError(t, err)
	return m
}

func TestAcquireCreatesFixedSubdirs(t *testing.T) {
	m := newManager(t)
	ws, err := m.Acquire(context.Background(), "sub-1")
	require.NoError(t, err)

	for _, sub := range workspace.Subdirs {
		info, statErr := os.Stat(filepath.Join(ws.Root, sub))
		require.NoError(t, statErr)
		require.True(t, info.IsDir())
	}
}

func TestContainPathRejectsParentEscape(t *testing.T) {
	m := newManager(t)
	ws, err := m.Acquire(context.Background(), "sub-1")
	require.NoError(t, err)

	_, err = ws.ContainPath("../../etc/passwd")
	require.Error(t, err)
}

func TestContainPathRejectsAbsolutePath(t *testing.T) {
	m := newManager(t)
	ws, err := m.Acquire(context.Background(), "sub-1")
	require.NoError(t, err)

	_, err = ws.ContainPath("/etc/passwd")
	require.Error(t, err)
}

func TestContainPathRejectsSymlinkEscape(t *testing.T) {
	m := newManager(t)
	ws, err := m.Acquire(context.Background(), "sub-1")
	require.NoError(t, err)

	outside := t.TempDir()
	link := filepath.Join(ws.LibDir(), "escape")
	require.NoError(t, os.Symlink(outside, link))

	_, err = ws.ContainPath(filepath.Join("lib", "escape", "payload"))
	require.Error(t, err)
}

func TestContainPathAllowsWithinRoot(t *testing.T) {
	m := newManager(t)
	ws, err := m.Acquire(context.Background(), "sub-1")
	require.NoError(t, err)

	p, err := ws.ContainPath(filepath.Join("lib", "script.txt"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(ws.LibDir(), "script.txt"), p)
}

func TestReleaseWithoutDebugRemovesWorkspace(t *testing.T) {
	m := newManager(t)
	ws, err := m.Acquire(context.Background(), "sub-1")
	require.NoError(t, err)

	require.NoError(t, m.Release(context.Background(), ws, false))
	_, statErr := os.Stat(ws.Root)
	require.True(t, os.IsNotExist(statErr))
}

func TestReleaseWithDebugArchivesBeforeRemoving(t *testing.T) {
	root := t.TempDir()
	archiveDir := t.TempDir()
	m, err := workspace.NewManager(root, archiveDir, nil, "")
	require.NoError(t, err)

	ws, err := m.Acquire(context.Background(), "sub-1")
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(ws.SubmissionDir(), "main.cpp"), []byte("int main(){}"), 0o644))

	require.NoError(t, m.Release(context.Background(), ws, true))

	_, statErr := os.Stat(ws.Root)
	require.True(t, os.IsNotExist(statErr))

	entries, err := os.ReadDir(archiveDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
