// Package workspace manages per-submission host directory trees: creation,
// path containment, and teardown (with optional debug-mode archival).
package workspace

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fuzoj/internal/common/storage"
	appErr "fuzoj/pkg/errors"
	"fuzoj/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
)

// Subdirs is the fixed subdirectory schema every Workspace carries.
var Subdirs = []string{"submission", "problem", "lib", "build", "run", "logs"}

// Workspace is a lifetime-scoped on-host directory tree for one submission
// pull. ID is either the submission id, once known, or a transient id
// assigned at acquisition time before the submission is fetched.
type Workspace struct {
	Root string
	ID   string
}

func (w Workspace) path(parts ...string) string {
	return filepath.Join(append([]string{w.Root}, parts...)...)
}

// SubmissionDir, ProblemDir, LibDir, BuildDir, RunDir, LogsDir return the
// workspace's fixed subdirectories.
func (w Workspace) SubmissionDir() string { return w.path("submission") }
func (w Workspace) ProblemDir() string    { return w.path("problem") }
func (w Workspace) LibDir() string        { return w.path("lib") }
func (w Workspace) BuildDir() string      { return w.path("build") }
func (w Workspace) RunDir() string        { return w.path("run") }
func (w Workspace) LogsDir() string       { return w.path("logs") }

// ContainPath joins root with the given relative path, rejecting any
// result that would escape root via "..", an absolute subpath, or a
// symlink. It returns the cleaned absolute path on success.
func (w Workspace) ContainPath(rel string) (string, error) {
	return containPath(w.Root, rel)
}

func containPath(root, rel string) (string, error) {
	if filepath.IsAbs(rel) {
		return "", appErr.Newf(appErr.WorkerFilesystemError, "path escapes workspace root: %q is absolute", rel)
	}
	joined := filepath.Join(root, rel)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", appErr.Newf(appErr.WorkerFilesystemError, "path escapes workspace root: %q", rel)
	}
	resolved, err := resolveSymlinks(joined)
	if err != nil {
		return "", err
	}
	if resolved != cleanRoot && !strings.HasPrefix(resolved, cleanRoot+string(filepath.Separator)) {
		return "", appErr.Newf(appErr.WorkerFilesystemError, "path escapes workspace root via symlink: %q", rel)
	}
	return joined, nil
}

// resolveSymlinks resolves symlinks along path, tolerating components that
// do not exist yet (they cannot be symlinks escaping anything).
func resolveSymlinks(path string) (string, error) {
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		if os.IsNotExist(err) {
			parent := filepath.Dir(path)
			if parent == path {
				return path, nil
			}
			resolvedParent, perr := resolveSymlinks(parent)
			if perr != nil {
				return "", perr
			}
			return filepath.Join(resolvedParent, filepath.Base(path)), nil
		}
		return "", appErr.Wrapf(err, appErr.WorkerFilesystemError, "resolve path failed: %q", path)
	}
	return resolved, nil
}

// ArchiveSink optionally receives a zstd-compressed tar of a released
// workspace when debug mode keeps it.
type ArchiveSink interface {
	PutObject(ctx context.Context, bucket, objectKey string, reader storage.ObjectReader, sizeBytes int64, contentType string) error
}

// Manager acquires and releases Workspaces under one host root directory.
type Manager struct {
	root        string
	archiveDir  string
	archiveSink ArchiveSink
	bucket      string
}

// NewManager validates that root is a writable directory and returns a
// Manager rooted there. On a debug-mode release a zstd tar of the
// workspace is made before it is removed: with a non-nil sink it is
// uploaded to bucket and archiveDir is not used; otherwise, if archiveDir
// is non-empty, it is stored there.
func NewManager(root, archiveDir string, sink ArchiveSink, bucket string) (*Manager, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkerFilesystemError, "workspace root %q is not accessible", root)
	}
	if !info.IsDir() {
		return nil, appErr.Newf(appErr.WorkerFilesystemError, "workspace root %q is not a directory", root)
	}
	probe := filepath.Join(root, ".write-probe")
	if f, err := os.Create(probe); err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkerFilesystemError, "workspace root %q is not writable", root)
	} else {
		_ = f.Close()
		_ = os.Remove(probe)
	}
	return &Manager{root: root, archiveDir: archiveDir, archiveSink: sink, bucket: bucket}, nil
}

// Acquire creates the fixed subdirectory skeleton for one workspace.
func (m *Manager) Acquire(ctx context.Context, id string) (Workspace, error) {
	ws := Workspace{Root: filepath.Join(m.root, id), ID: id}
	for _, sub := range Subdirs {
		dir := filepath.Join(ws.Root, sub)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return Workspace{}, appErr.Wrapf(err, appErr.WorkerFilesystemError, "create workspace subdirectory %q failed", dir)
		}
	}
	return ws, nil
}

// Release tears down a workspace. When keepForDebug is true, the workspace
// is archived (zstd tar, uploaded if an ArchiveSink is configured, else
// moved under archiveDir) before being removed from its working location.
func (m *Manager) Release(ctx context.Context, ws Workspace, keepForDebug bool) error {
	if !keepForDebug {
		if err := os.RemoveAll(ws.Root); err != nil {
			return appErr.Wrapf(err, appErr.WorkerFilesystemError, "remove workspace %q failed", ws.Root)
		}
		return nil
	}

	if err := m.archive(ctx, ws); err != nil {
		logger.Errorf(ctx, "archive anomalous workspace %q failed: %v", ws.ID, err)
	}
	if err := os.RemoveAll(ws.Root); err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "remove archived workspace %q failed", ws.Root)
	}
	return nil
}

func (m *Manager) archive(ctx context.Context, ws Workspace) error {
	if m.archiveSink == nil && m.archiveDir == "" {
		return nil
	}

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("workspace-%s-*.tar.zst", ws.ID))
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "create archive temp file failed")
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if err := tarZstd(ws.Root, tmpFile); err != nil {
		tmpFile.Close()
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "close archive temp file failed")
	}

	if m.archiveSink != nil {
		info, statErr := os.Stat(tmpPath)
		if statErr != nil {
			return appErr.Wrapf(statErr, appErr.WorkerFilesystemError, "stat archive temp file failed")
		}
		f, openErr := os.Open(tmpPath)
		if openErr != nil {
			return appErr.Wrapf(openErr, appErr.WorkerFilesystemError, "open archive temp file failed")
		}
		defer f.Close()
		key := fmt.Sprintf("workspaces/%s-%d.tar.zst", ws.ID, time.Now().Unix())
		if err := m.archiveSink.PutObject(ctx, m.bucket, key, f, info.Size(), "application/zstd"); err != nil {
			return appErr.Wrapf(err, appErr.WorkerFilesystemError, "upload archived workspace failed")
		}
		return nil
	}

	if m.archiveDir != "" {
		if err := os.MkdirAll(m.archiveDir, 0o755); err != nil {
			return appErr.Wrapf(err, appErr.WorkerFilesystemError, "create archive dir failed")
		}
		dst := filepath.Join(m.archiveDir, fmt.Sprintf("%s-%d.tar.zst", ws.ID, time.Now().Unix()))
		if err := copyFile(tmpPath, dst); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "open archive source failed")
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "create archive destination failed")
	}
	defer out.Close()
	if _, err := io.Copy(out, in); err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "copy archive failed")
	}
	return nil
}

func tarZstd(root string, dst *os.File) error {
	zw, err := zstd.NewWriter(dst)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "create zstd writer failed")
	}
	defer zw.Close()
	return writeTar(zw, root)
}
