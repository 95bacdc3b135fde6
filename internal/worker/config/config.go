// Package config defines the judge worker's configuration record, loaded
// from YAML via go-zero's conf.MustLoad.
package config

import (
	"time"

	"fuzoj/internal/common/storage"
	"fuzoj/internal/worker/evaluator"
	appErr "fuzoj/pkg/errors"
	"fuzoj/pkg/utils/logger"

	"github.com/zeromicro/go-zero/core/service"
)

// Config is the worker's full configuration record, using the same
// lowerCamel json-tag convention as this codebase's other services.
type Config struct {
	service.ServiceConf

	Logger logger.Config `json:"logger"`

	GUIURL       string   `json:"guiUrl"`
	QueueNames   []string `json:"queueNames"`
	ExecImage    string   `json:"execImage"`
	JudgeImage   string   `json:"judgeImage"`

	// QueueCompilerMap maps a queue name to the compile image used when a
	// submission carries no explicit comp_image.
	QueueCompilerMap map[string]string `json:"queueCompilerMap"`

	// QueueLanguages optionally overrides the per-queue language
	// convention (source/binary file names, compile/run command
	// templates, env, resource multipliers). Queues absent from this map
	// use evaluator.DefaultQueueLanguage.
	QueueLanguages map[string]evaluator.QueueLanguage `json:"queueLanguages"`

	DockerSocket  string        `json:"dockerSocket"`
	WorkspaceRoot string        `json:"workspaceRoot"`
	PollInterval  time.Duration `json:"pollInterval"`

	HTTPConnectTimeout time.Duration `json:"httpConnectTimeout"`
	HTTPReadTimeout    time.Duration `json:"httpReadTimeout"`

	DebugMode    bool  `json:"debugMode"`
	MaxFileBytes int64 `json:"maxFileBytes"`

	// DebugArchiveDir, if set, is where anomalous workspaces are moved
	// when DebugMode keeps them and no MinIO sink is configured.
	DebugArchiveDir string `json:"debugArchiveDir"`

	// MinIO is optional: when its Endpoint is non-empty, anomalous
	// workspace archives are uploaded there instead of being stored in
	// DebugArchiveDir.
	MinIO storage.MinIOConfig `json:"minio"`

	// DedupCacheSize enables the optional cachedAdapter decorator when > 0.
	DedupCacheSize int `json:"dedupCacheSize"`

	// OperatorAddr is the loopback address the /healthz introspection
	// server listens on.
	OperatorAddr string `json:"operatorAddr"`

	// CheckerCPUTimeMs/CheckerMemoryMB bound the judge-container stage
	// when a test's script config names a custom checker image.
	CheckerCPUTimeMs int64 `json:"checkerCpuTimeMs"`
	CheckerMemoryMB  int64 `json:"checkerMemoryMb"`

	WallClockSafetyFactor  float64       `json:"wallClockSafetyFactor"`
	WallClockFixedOverhead time.Duration `json:"wallClockFixedOverhead"`
	DockerAPIVersion       string        `json:"dockerApiVersion"`
	StdoutStderrMaxBytes   int64         `json:"stdoutStderrMaxBytes"`
}

// ApplyDefaults fills in required defaults for fields left unset.
func (c *Config) ApplyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.HTTPConnectTimeout <= 0 {
		c.HTTPConnectTimeout = 5 * time.Second
	}
	if c.HTTPReadTimeout <= 0 {
		c.HTTPReadTimeout = 15 * time.Second
	}
	if c.MaxFileBytes <= 0 {
		c.MaxFileBytes = 1 << 30
	}
	if c.OperatorAddr == "" {
		c.OperatorAddr = "127.0.0.1:8778"
	}
	if c.WallClockSafetyFactor < 2.0 {
		c.WallClockSafetyFactor = 2.0
	}
	if c.WallClockFixedOverhead < time.Second {
		c.WallClockFixedOverhead = time.Second
	}
	if c.CheckerCPUTimeMs <= 0 {
		c.CheckerCPUTimeMs = 10_000
	}
	if c.CheckerMemoryMB <= 0 {
		c.CheckerMemoryMB = 256
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.Logger.Format == "" {
		c.Logger.Format = "json"
	}
	if c.Logger.OutputPath == "" {
		c.Logger.OutputPath = "stdout"
	}
	if c.Logger.ErrorPath == "" {
		c.Logger.ErrorPath = "stderr"
	}
}

// Validate reports a ConfigError for any field required at startup.
func (c *Config) Validate() error {
	if c.GUIURL == "" {
		return appErr.New(appErr.WorkerConfigError).WithMessage("guiUrl is required")
	}
	if len(c.QueueNames) == 0 {
		return appErr.New(appErr.WorkerConfigError).WithMessage("queueNames is required")
	}
	if c.ExecImage == "" {
		return appErr.New(appErr.WorkerConfigError).WithMessage("execImage is required")
	}
	if c.JudgeImage == "" {
		return appErr.New(appErr.WorkerConfigError).WithMessage("judgeImage is required")
	}
	if c.DockerSocket == "" {
		return appErr.New(appErr.WorkerConfigError).WithMessage("dockerSocket is required")
	}
	if c.WorkspaceRoot == "" {
		return appErr.New(appErr.WorkerConfigError).WithMessage("workspaceRoot is required")
	}
	return nil
}
