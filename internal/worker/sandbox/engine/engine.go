// Package engine wraps the host-side container engine daemon used to run
// compile, execute, and judge stages in isolation.
package engine

import (
	"context"

	"fuzoj/internal/worker/sandbox/result"
	"fuzoj/internal/worker/sandbox/spec"
)

// Engine executes a RunSpec inside an isolated container and guarantees the
// container is removed on every exit path, including error and panic paths.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
	KillSubmission(ctx context.Context, submissionID string) error
}
