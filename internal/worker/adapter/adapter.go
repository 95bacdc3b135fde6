// Package adapter orchestrates fetch_submission / fetch_problem /
// report_result against the UI client, unpacking archives into
// workspaces (C5).
package adapter

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"fuzoj/internal/worker/formatter"
	"fuzoj/internal/worker/model"
	"fuzoj/internal/worker/script"
	"fuzoj/internal/worker/uiclient"
	"fuzoj/internal/worker/workspace"
	appErr "fuzoj/pkg/errors"
	"fuzoj/pkg/utils/logger"

	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/flate"
)

const (
	reportRetries  = 3
	reportBaseWait = time.Second
)

// Adapter is the interface exposed to the Main Loop, kept narrow so the
// optional dedup decorator can wrap it transparently.
type Adapter interface {
	FetchSubmission(ctx context.Context, ws workspace.Workspace) (*Fetched, error)
	FetchProblem(ctx context.Context, problemID string, ws workspace.Workspace) (model.ProblemSpec, error)
	ReportResult(ctx context.Context, submissionID string, payloads formatter.Payloads) error
}

// Fetched is the shell Submission plus the queue it was pulled from
// (queue selects the default compile image and language convention).
type Fetched struct {
	Submission model.Submission
	QueueName  string
}

// DefaultAdapter is the non-decorated Adapter implementation.
type DefaultAdapter struct {
	client      *uiclient.Client
	queueNames  []string
	maxZipFiles int
}

// New builds a DefaultAdapter polling queueNames in order.
func New(client *uiclient.Client, queueNames []string) *DefaultAdapter {
	return &DefaultAdapter{client: client, queueNames: queueNames, maxZipFiles: 100000}
}

// FetchSubmission polls each configured queue in order; on the first hit
// it extracts the archive into ws.SubmissionDir() and returns a
// Submission shell. Returns (nil, nil) when every queue is empty.
func (a *DefaultAdapter) FetchSubmission(ctx context.Context, ws workspace.Workspace) (*Fetched, error) {
	for _, queue := range a.queueNames {
		archivePath := filepath.Join(ws.Root, "submission.zip")
		res, err := a.client.PollQueue(ctx, queue, archivePath)
		if err != nil {
			return nil, err
		}
		if res.Empty {
			continue
		}

		if err := extractZip(archivePath, ws.SubmissionDir()); err != nil {
			return nil, err
		}
		_ = os.Remove(archivePath)

		mainFile := detectMainFile(ws.SubmissionDir())

		return &Fetched{
			QueueName: queue,
			Submission: model.Submission{
				ID:            res.SubmissionID,
				MainFile:      mainFile,
				SubmittedBy:   res.StudentID,
				ProblemID:     res.ProblemID,
				SubmissionDir: ws.SubmissionDir(),
				ReceivedAt:    time.Now().Unix(),
			},
		}, nil
	}
	return nil, nil
}

// FetchProblem lists, then downloads, every file the UI declares for
// problemID: .in/.out into ws.ProblemDir(), everything else (including
// script.txt) into ws.LibDir(), then parses script.txt and copies its
// declared auxiliary files into ws.LibDir() staging (they are already
// there, having been downloaded as "everything else").
func (a *DefaultAdapter) FetchProblem(ctx context.Context, problemID string, ws workspace.Workspace) (model.ProblemSpec, error) {
	names, err := a.client.ListProblemFiles(ctx, problemID)
	if err != nil {
		return model.ProblemSpec{}, err
	}

	var scriptPath string
	for _, name := range names {
		dest := ws.LibDir()
		if strings.HasSuffix(name, ".in") || strings.HasSuffix(name, ".out") {
			dest = ws.ProblemDir()
		}
		destPath, containErr := ws.ContainPath(filepath.Join(filepath.Base(dest), name))
		if containErr != nil {
			return model.ProblemSpec{}, containErr
		}
		if err := a.client.GetProblemFile(ctx, problemID, name, destPath); err != nil {
			return model.ProblemSpec{}, err
		}
		if name == "script.txt" {
			scriptPath = destPath
		}
	}
	if scriptPath == "" {
		return model.ProblemSpec{}, appErr.New(appErr.WorkerScriptError).WithMessage("problem has no script.txt")
	}

	raw, err := os.ReadFile(scriptPath)
	if err != nil {
		return model.ProblemSpec{}, appErr.Wrapf(err, appErr.WorkerScriptError, "read script.txt failed")
	}
	return script.Parse(ctx, string(raw), problemID)
}

// ReportResult posts the already formatted payloads, retrying the
// transport up to reportRetries times with exponential backoff. On
// exhaustion it logs and returns the last error without retrying
// further: the UI is the source of truth and will re-queue stale
// submissions on its own policy.
func (a *DefaultAdapter) ReportResult(ctx context.Context, submissionID string, payloads formatter.Payloads) error {
	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(reportBaseWait),
		backoff.WithMultiplier(2),
	), reportRetries)

	err := backoff.Retry(func() error {
		_, postErr := a.client.PostResult(ctx, submissionID, payloads.Result, payloads.Info, payloads.Debug)
		return postErr
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		logger.Errorf(ctx, "report_result for submission %q exhausted retries: %v", submissionID, err)
		return err
	}
	return nil
}

func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerProtocolError, "open submission archive failed")
	}
	defer r.Close()
	// klauspost/compress's flate implementation is faster than the
	// standard library's; register it as the deflate decompressor.
	r.RegisterDecompressor(zip.Deflate, func(rd io.Reader) io.ReadCloser {
		return flate.NewReader(rd)
	})

	cleanDest := filepath.Clean(destDir)
	for _, f := range r.File {
		target := filepath.Join(cleanDest, f.Name)
		if !strings.HasPrefix(target, cleanDest+string(filepath.Separator)) && target != cleanDest {
			return appErr.Newf(appErr.WorkerFilesystemError, "archive entry escapes submission dir: %q", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return appErr.Wrapf(err, appErr.WorkerFilesystemError, "create archive directory failed")
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return appErr.Wrapf(err, appErr.WorkerFilesystemError, "create archive entry parent failed")
		}
		if err := extractZipFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, target string) error {
	src, err := f.Open()
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerProtocolError, "open archive entry failed")
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, f.Mode())
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "create extracted file failed")
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return appErr.Wrapf(err, appErr.WorkerFilesystemError, "write extracted file failed")
	}
	return nil
}

// detectMainFile picks the submission's entry-point file when the
// language requires one: the first top-level file in dir, by name.
// mainfile is optional, so callers that have it resolved from a header
// the UI sends should prefer that over this heuristic.
func detectMainFile(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() {
			return e.Name()
		}
	}
	return ""
}
