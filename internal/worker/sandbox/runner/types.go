package runner

import (
	"context"

	"fuzoj/internal/worker/sandbox/profile"
	"fuzoj/internal/worker/sandbox/result"
	"fuzoj/internal/worker/sandbox/spec"
)

// Runner executes the compile and run stages of the judge pipeline against
// a prepared local work directory.
type Runner interface {
	Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error)
	Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error)
}

// IOConfig mirrors the sandbox-level IO mode for a single run request.
type IOConfig struct {
	Mode           string
	InputFileName  string
	OutputFileName string
}

// CheckerSpec describes a special judge binary to run after a test executes.
type CheckerSpec struct {
	BinaryPath string
	Args       []string
	Env        []string
	Limits     spec.ResourceLimit
}

// CompileRequest asks the runner to compile one submission's source.
type CompileRequest struct {
	SubmissionID      string
	Language          profile.LanguageSpec
	Profile           profile.TaskProfile
	WorkDir           string
	SourcePath        string
	ExtraCompileFlags []string
	Limits            spec.ResourceLimit
}

// RunRequest asks the runner to execute a compiled (or interpreted)
// submission against one test case, optionally followed by a checker run.
type RunRequest struct {
	SubmissionID string
	TestID       string
	Language     profile.LanguageSpec
	Profile      profile.TaskProfile
	WorkDir      string
	IOConfig     IOConfig
	InputPath    string
	AnswerPath   string
	Limits       spec.ResourceLimit

	// JudgeKind selects the default comparator applied when Checker is nil.
	JudgeKind string

	Checker        *CheckerSpec
	CheckerProfile *profile.TaskProfile

	Score     int
	SubtaskID string
}
