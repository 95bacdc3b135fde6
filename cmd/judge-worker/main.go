package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/core/proc"

	"fuzoj/internal/worker/config"
	"fuzoj/internal/worker/formatter"
	"fuzoj/internal/worker/operator"
	"fuzoj/internal/worker/svc"
	"fuzoj/pkg/utils/logger"
)

var configFile = flag.String("f", "etc/worker.yaml", "the config file")

func main() {
	flag.Parse()

	var c config.Config
	conf.MustLoad(*configFile, &c)
	c.ApplyDefaults()

	if err := logger.Init(c.Logger); err != nil {
		os.Stderr.WriteString("init logger failed: " + err.Error() + "\n")
		return
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := c.Validate(); err != nil {
		logger.Errorf(context.Background(), "invalid config: %v", err)
		return
	}

	ctx, err := svc.NewServiceContext(c)
	if err != nil {
		logger.Errorf(context.Background(), "init service context failed: %v", err)
		return
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	proc.AddShutdownListener(func() {
		logger.Infof(rootCtx, "shutdown signal received, finishing current submission")
		cancel()
	})

	status := operator.NewStatus(time.Now())
	opServer := operator.NewServer(c.OperatorAddr, status)
	go func() {
		if err := operator.Run(rootCtx, opServer); err != nil {
			logger.Errorf(rootCtx, "operator server stopped with error: %v", err)
		}
	}()

	logger.Infof(rootCtx, "judge worker started, polling %v at %s", c.QueueNames, c.GUIURL)
	runLoop(rootCtx, ctx, status)
	logger.Infof(rootCtx, "judge worker stopped")
}

// runLoop implements the polling driver: acquire a transient workspace,
// ask the Adapter for work, on a hit run the Evaluator then the
// Formatter then report, on a miss sleep and retry. It never terminates
// on a submission-level error; only the shutdown signal observed via
// ctx.Done() stops it, after the in-flight iteration's current stage
// completes.
func runLoop(ctx context.Context, sc *svc.ServiceContext, status *operator.Status) {
	for {
		if ctx.Err() != nil {
			return
		}
		runIteration(ctx, sc, status)
	}
}

func runIteration(ctx context.Context, sc *svc.ServiceContext, status *operator.Status) {
	transientID := uuid.NewString()
	ws, err := sc.Workspace.Acquire(ctx, transientID)
	if err != nil {
		logger.Errorf(ctx, "acquire workspace failed: %v", err)
		sleepOrDone(ctx, sc.Config.PollInterval)
		return
	}

	anomalous := false
	defer func() {
		status.SetCurrent("")
		keep := sc.Config.DebugMode && anomalous
		if releaseErr := sc.Workspace.Release(ctx, ws, keep); releaseErr != nil {
			logger.Errorf(ctx, "release workspace failed: %v", releaseErr)
		}
	}()

	fetched, err := sc.Adapter.FetchSubmission(ctx, ws)
	if err != nil {
		logger.Errorf(ctx, "fetch_submission failed: %v", err)
		anomalous = true
		sleepOrDone(ctx, sc.Config.PollInterval)
		return
	}
	if fetched == nil {
		sleepOrDone(ctx, sc.Config.PollInterval)
		return
	}
	sub := fetched.Submission
	status.SetCurrent(sub.ID)

	problem, err := sc.Adapter.FetchProblem(ctx, sub.ProblemID, ws)
	if err != nil {
		logger.Errorf(ctx, "fetch_problem for submission %q failed: %v", sub.ID, err)
		anomalous = true
		return
	}
	sub.ProblemSpec = problem

	result, err := sc.Evaluator.Run(ctx, fetched.QueueName, sub, ws.ProblemDir(), ws.RunDir())
	if err != nil {
		logger.Errorf(ctx, "evaluate submission %q failed: %v", sub.ID, err)
		anomalous = true
	}

	payloads := formatter.Format(result, readDebugLog(ws.LogsDir()))
	if err := sc.Adapter.ReportResult(ctx, sub.ID, payloads); err != nil {
		logger.Errorf(ctx, "report_result for submission %q failed: %v", sub.ID, err)
		anomalous = true
	}
}

func sleepOrDone(ctx context.Context, d time.Duration) {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// readDebugLog concatenates the files directly under logsDir,
// best-effort: a missing or unreadable log directory yields an empty
// debug payload rather than failing the submission. The sandbox runner
// writes its compile/runtime/checker logs inside its own scratch tree
// under run/, which the sandbox worker removes when the submission
// finishes; nothing in the pipeline writes into logsDir.
func readDebugLog(logsDir string) string {
	entries, err := os.ReadDir(logsDir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var out []byte
	for _, name := range names {
		data, readErr := os.ReadFile(filepath.Join(logsDir, name))
		if readErr != nil {
			continue
		}
		out = append(out, data...)
	}
	return string(out)
}
