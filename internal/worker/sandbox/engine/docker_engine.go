package engine

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/mount"
	dockerclient "github.com/docker/docker/client"

	"fuzoj/internal/worker/sandbox/result"
	"fuzoj/internal/worker/sandbox/spec"
	appErr "fuzoj/pkg/errors"
)

// DockerEngine implements Engine against a local container engine daemon
// reached over its unix socket, using these primitive capabilities:
// create, start, wait, logs, remove, kill (on timeout and in
// KillSubmission), inspect (OOM status), list (KillSubmission's name
// lookup), and put_archive (via CopyToContainer, used when a bind mount is
// unsuitable).
type DockerEngine struct {
	cli *dockerclient.Client
	cfg Config

	mu         sync.Mutex
	containers map[string]string // submissionID -> containerID, for KillSubmission
}

// NewEngine dials the container engine daemon and returns a ready Engine.
func NewEngine(cfg Config) (*DockerEngine, error) {
	cfg = cfg.Normalized()
	opts := []dockerclient.Opt{dockerclient.WithVersion(cfg.APIVersion)}
	if cfg.SocketPath != "" {
		opts = append(opts, dockerclient.WithHost("unix://"+cfg.SocketPath))
	}
	cli, err := dockerclient.NewClientWithOpts(opts...)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.WorkerSandboxError, "connect to container engine failed")
	}
	return &DockerEngine{cli: cli, cfg: cfg, containers: make(map[string]string)}, nil
}

// Run creates a container from runSpec.Image, applies resource limits and
// ulimits, attaches bind mounts, starts it, and awaits termination under a
// wall-clock timeout derived from the cpu time limit. The container is
// removed on every exit path.
func (e *DockerEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if runSpec.Image == "" {
		return result.RunResult{}, appErr.New(appErr.WorkerSandboxError).WithMessage("run spec is missing an image")
	}
	if len(runSpec.Cmd) == 0 {
		return result.RunResult{}, appErr.New(appErr.WorkerSandboxError).WithMessage("run spec is missing a command")
	}

	wrapped := wrapWithRedirectsAndUlimits(runSpec)

	mounts := make([]mount.Mount, 0, len(runSpec.BindMounts))
	for _, m := range runSpec.BindMounts {
		if m.Source == "" || m.Target == "" {
			return result.RunResult{}, appErr.New(appErr.WorkerSandboxError).WithMessage("mount spec is missing source or target")
		}
		mounts = append(mounts, mount.Mount{
			Type:     mount.TypeBind,
			Source:   m.Source,
			Target:   m.Target,
			ReadOnly: m.ReadOnly,
		})
	}

	pidsLimit := runSpec.Limits.PIDs
	hostConfig := &container.HostConfig{
		Mounts:         mounts,
		NetworkMode:    "none",
		ReadonlyRootfs: false,
		Resources: container.Resources{
			Memory: runSpec.Limits.MemoryMB * 1024 * 1024,
		},
	}
	if pidsLimit > 0 {
		hostConfig.Resources.PidsLimit = &pidsLimit
	}

	containerConfig := &container.Config{
		Image:      runSpec.Image,
		Cmd:        wrapped,
		Env:        runSpec.Env,
		WorkingDir: runSpec.WorkDir,
		Tty:        false,
	}

	created, err := e.cli.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, containerName(runSpec))
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.WorkerSandboxError, "create container failed")
	}
	containerID := created.ID

	e.track(runSpec.SubmissionID, containerID)
	defer e.untrack(runSpec.SubmissionID)
	defer e.remove(containerID)

	if err := e.cli.ContainerStart(ctx, containerID, dockertypes.ContainerStartOptions{}); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.WorkerSandboxError, "start container failed")
	}

	timeout := wallClockTimeout(e.cfg, runSpec.Limits)
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	statusCh, errCh := e.cli.ContainerWait(waitCtx, containerID, container.WaitConditionNotRunning)

	var (
		exitCode int
		timedOut bool
	)
	select {
	case status := <-statusCh:
		exitCode = int(status.StatusCode)
	case err := <-errCh:
		if err != nil && waitCtx.Err() != nil {
			timedOut = true
			exitCode = -1
			_ = e.cli.ContainerKill(context.Background(), containerID, "SIGKILL")
		} else if err != nil {
			return result.RunResult{}, appErr.Wrapf(err, appErr.WorkerSandboxError, "wait container failed")
		}
	case <-waitCtx.Done():
		timedOut = true
		exitCode = -1
		_ = e.cli.ContainerKill(context.Background(), containerID, "SIGKILL")
	}

	stdout, stderr := e.readLogs(context.Background(), containerID)

	peakMemoryKB, oomKilled := e.inspectStats(context.Background(), containerID)

	return result.RunResult{
		ExitCode:  exitCode,
		TimeMs:    0,
		MemoryKB:  peakMemoryKB,
		OutputKB:  int64(len(stdout)+len(stderr)) / 1024,
		Stdout:    stdout,
		Stderr:    stderr,
		OomKilled: oomKilled,
		TimedOut:  timedOut,
	}, nil
}

// KillSubmission forcibly stops any container currently running on behalf
// of submissionID, on a shutdown signal or an operator request. It checks
// this process's in-memory tracking first, then falls back to a name-
// prefix lookup against the daemon so it also works from a separate
// process (e.g. the operator CLI) that never created the container.
func (e *DockerEngine) KillSubmission(ctx context.Context, submissionID string) error {
	e.mu.Lock()
	containerID, ok := e.containers[submissionID]
	e.mu.Unlock()
	if ok {
		if err := e.cli.ContainerKill(ctx, containerID, "SIGKILL"); err != nil {
			return appErr.Wrapf(err, appErr.WorkerSandboxError, "kill submission container failed")
		}
		return nil
	}

	matches, err := e.cli.ContainerList(ctx, dockertypes.ContainerListOptions{
		Filters: filters.NewArgs(filters.Arg("name", "judge-"+submissionID+"-")),
	})
	if err != nil {
		return appErr.Wrapf(err, appErr.WorkerSandboxError, "list containers for kill failed")
	}
	for _, c := range matches {
		if err := e.cli.ContainerKill(ctx, c.ID, "SIGKILL"); err != nil {
			return appErr.Wrapf(err, appErr.WorkerSandboxError, "kill submission container failed")
		}
	}
	return nil
}

func (e *DockerEngine) track(submissionID, containerID string) {
	if submissionID == "" {
		return
	}
	e.mu.Lock()
	e.containers[submissionID] = containerID
	e.mu.Unlock()
}

func (e *DockerEngine) untrack(submissionID string) {
	if submissionID == "" {
		return
	}
	e.mu.Lock()
	delete(e.containers, submissionID)
	e.mu.Unlock()
}

// remove guarantees container cleanup on every exit path: error, timeout,
// or normal completion.
func (e *DockerEngine) remove(containerID string) {
	_ = e.cli.ContainerRemove(context.Background(), containerID, dockertypes.ContainerRemoveOptions{
		Force:         true,
		RemoveVolumes: true,
	})
}

func (e *DockerEngine) readLogs(ctx context.Context, containerID string) (string, string) {
	limit := e.cfg.StdoutStderrMaxBytes
	if limit <= 0 {
		limit = 4 * 1024 * 1024
	}
	reader, err := e.cli.ContainerLogs(ctx, containerID, dockertypes.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", ""
	}
	defer reader.Close()

	var stdout, stderr bytes.Buffer
	demuxDockerLogStream(io.LimitReader(reader, limit), &stdout, &stderr)
	return stdout.String(), stderr.String()
}

// demuxDockerLogStream splits the multiplexed stdout/stderr frame format the
// container engine uses when the container was created without a TTY.
func demuxDockerLogStream(r io.Reader, stdout, stderr io.Writer) {
	header := make([]byte, 8)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			return
		}
		size := int(header[4])<<24 | int(header[5])<<16 | int(header[6])<<8 | int(header[7])
		dst := stdout
		if header[0] == 2 {
			dst = stderr
		}
		if _, err := io.CopyN(dst, r, int64(size)); err != nil {
			return
		}
	}
}

func (e *DockerEngine) inspectStats(ctx context.Context, containerID string) (int64, bool) {
	inspect, err := e.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return 0, false
	}
	oomKilled := inspect.State != nil && inspect.State.OOMKilled
	return 0, oomKilled
}

func containerName(runSpec spec.RunSpec) string {
	id := runSpec.SubmissionID
	if id == "" {
		id = "anon"
	}
	test := runSpec.TestID
	if test == "" {
		test = "run"
	}
	return fmt.Sprintf("judge-%s-%s-%d", id, test, time.Now().UnixNano())
}

// wallClockTimeout derives the wall-clock budget from the cpu time limit:
// cpu_time_limit * safety_factor + fixed_overhead.
func wallClockTimeout(cfg Config, limits spec.ResourceLimit) time.Duration {
	if limits.WallTimeMs > 0 {
		return time.Duration(limits.WallTimeMs) * time.Millisecond
	}
	if limits.CPUTimeMs <= 0 {
		return cfg.DefaultWallTimeout
	}
	scaled := float64(limits.CPUTimeMs) * cfg.WallClockSafetyFactor
	return time.Duration(scaled)*time.Millisecond + cfg.WallClockFixedOverhead
}

// wrapWithRedirectsAndUlimits builds the final container command: a shell
// invocation that applies ulimits the container engine has no direct knob
// for (cpu time, stack size, file size, open files) and redirects
// stdin/stdout/stderr from/to the paths RunSpec names, before exec'ing the
// real command.
func wrapWithRedirectsAndUlimits(runSpec spec.RunSpec) []string {
	var b strings.Builder
	if runSpec.Limits.CPUTimeMs > 0 {
		seconds := (runSpec.Limits.CPUTimeMs + 999) / 1000
		fmt.Fprintf(&b, "ulimit -t %d; ", seconds)
	}
	if runSpec.Limits.StackMB > 0 {
		fmt.Fprintf(&b, "ulimit -s %d; ", runSpec.Limits.StackMB*1024)
	}
	if runSpec.Limits.OutputMB > 0 {
		fmt.Fprintf(&b, "ulimit -f %d; ", runSpec.Limits.OutputMB*1024)
	}
	if runSpec.Limits.OpenFiles > 0 {
		fmt.Fprintf(&b, "ulimit -n %d; ", runSpec.Limits.OpenFiles)
	}

	b.WriteString("exec ")
	b.WriteString(shellJoin(runSpec.Cmd))
	if runSpec.StdinPath != "" {
		fmt.Fprintf(&b, " < %s", shellQuote(runSpec.StdinPath))
	}
	if runSpec.StdoutPath != "" {
		fmt.Fprintf(&b, " > %s", shellQuote(runSpec.StdoutPath))
	}
	if runSpec.StderrPath != "" {
		fmt.Fprintf(&b, " 2> %s", shellQuote(runSpec.StderrPath))
	}

	return []string{"/bin/sh", "-c", b.String()}
}

func shellJoin(cmd []string) string {
	parts := make([]string, len(cmd))
	for i, c := range cmd {
		parts[i] = shellQuote(c)
	}
	return strings.Join(parts, " ")
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

// SeedFile injects a single file into containerID using the engine's
// put_archive primitive, for cases where a bind mount is unsuitable (e.g.
// read-only base images that forbid extra mount points).
func (e *DockerEngine) SeedFile(ctx context.Context, containerID, destDir, name string, content []byte, mode int64) error {
	return putArchive(ctx, e.cli, containerID, destDir, name, content, mode)
}

func putArchive(ctx context.Context, cli *dockerclient.Client, containerID, destDir, name string, content []byte, mode int64) error {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	if err := tw.WriteHeader(&tar.Header{Name: name, Mode: mode, Size: int64(len(content))}); err != nil {
		return appErr.Wrapf(err, appErr.WorkerSandboxError, "write tar header failed")
	}
	if _, err := tw.Write(content); err != nil {
		return appErr.Wrapf(err, appErr.WorkerSandboxError, "write tar content failed")
	}
	if err := tw.Close(); err != nil {
		return appErr.Wrapf(err, appErr.WorkerSandboxError, "close tar writer failed")
	}
	if err := cli.CopyToContainer(ctx, containerID, destDir, &buf, dockertypes.CopyToContainerOptions{}); err != nil {
		return appErr.Wrapf(err, appErr.WorkerSandboxError, "copy to container failed")
	}
	return nil
}
