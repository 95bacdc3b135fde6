// Package svc wires the judge worker's dependencies once at startup,
// constructing each long-lived collaborator and failing fast if any
// cannot be built.
package svc

import (
	"context"

	"fuzoj/internal/common/storage"
	"fuzoj/internal/worker/adapter"
	"fuzoj/internal/worker/config"
	"fuzoj/internal/worker/evaluator"
	"fuzoj/internal/worker/sandbox/engine"
	"fuzoj/internal/worker/sandbox/observer"
	"fuzoj/internal/worker/sandbox/runner"
	"fuzoj/internal/worker/sandbox/spec"
	"fuzoj/internal/worker/uiclient"
	"fuzoj/internal/worker/workspace"
	appErr "fuzoj/pkg/errors"
	"fuzoj/pkg/utils/logger"
)

// ServiceContext holds every long-lived dependency the main loop drives.
type ServiceContext struct {
	Config    config.Config
	UIClient  *uiclient.Client
	Engine    *engine.DockerEngine
	Runner    runner.Runner
	Workspace *workspace.Manager
	Adapter   adapter.Adapter
	Evaluator *evaluator.Evaluator
}

// NewServiceContext builds every dependency from c, failing fast with a
// WorkerSandboxError/WorkerFilesystemError wrap on the first thing that
// cannot be constructed (no container daemon, unwritable workspace
// root, ...).
func NewServiceContext(c config.Config) (*ServiceContext, error) {
	uiClient := uiclient.New(uiclient.Config{
		BaseURL:        c.GUIURL,
		ConnectTimeout: c.HTTPConnectTimeout,
		ReadTimeout:    c.HTTPReadTimeout,
		MaxFileBytes:   c.MaxFileBytes,
	})

	eng, err := engine.NewEngine(engine.Config{
		SocketPath:             c.DockerSocket,
		APIVersion:             c.DockerAPIVersion,
		StdoutStderrMaxBytes:   c.StdoutStderrMaxBytes,
		WallClockSafetyFactor:  c.WallClockSafetyFactor,
		WallClockFixedOverhead: c.WallClockFixedOverhead,
	}.Normalized())
	if err != nil {
		return nil, appErr.Wrap(err, appErr.WorkerSandboxError)
	}
	r := runner.NewRunnerWithObserver(eng, observer.LoggingMetricsRecorder{Sink: loggerSink{}})

	var sink workspace.ArchiveSink
	if c.MinIO.Endpoint != "" {
		minioStore, minioErr := storage.NewMinIOStorage(c.MinIO)
		if minioErr != nil {
			logger.Warnf(context.Background(), "minio archive sink disabled, init failed: %v", minioErr)
		} else {
			sink = minioStore
		}
	}
	wsManager, err := workspace.NewManager(c.WorkspaceRoot, c.DebugArchiveDir, sink, c.MinIO.Bucket)
	if err != nil {
		return nil, appErr.Wrap(err, appErr.WorkerFilesystemError)
	}

	queueLanguages := make(map[string]evaluator.QueueLanguage, len(c.QueueLanguages))
	for queue, ql := range c.QueueLanguages {
		queueLanguages[queue] = ql
	}
	eval := evaluator.New(r, c.ExecImage, c.JudgeImage, c.QueueCompilerMap, queueLanguages, spec.ResourceLimit{
		CPUTimeMs: c.CheckerCPUTimeMs,
		MemoryMB:  c.CheckerMemoryMB,
	})

	var a adapter.Adapter = adapter.New(uiClient, c.QueueNames)
	if c.DedupCacheSize > 0 {
		a = adapter.NewCached(a, c.DedupCacheSize)
	}

	return &ServiceContext{
		Config:    c,
		UIClient:  uiClient,
		Engine:    eng,
		Runner:    r,
		Workspace: wsManager,
		Adapter:   a,
		Evaluator: eval,
	}, nil
}

// loggerSink adapts the package-level structured logger to
// observer.LogSink, so sandbox metrics observations flow through the same
// zap-backed logger as the rest of the worker without a direct import
// cycle between sandbox and pkg/utils/logger.
type loggerSink struct{}

func (loggerSink) Infof(ctx context.Context, format string, args ...interface{}) {
	logger.Infof(ctx, format, args...)
}
