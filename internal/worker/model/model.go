// Package model defines the data shapes the worker passes between its
// script parser, adapter, evaluator and formatter stages.
package model

// TestSpec is one test's resource envelope, as declared by the problem
// script.
type TestSpec struct {
	TestName         string
	TimeLimit        float64 // seconds
	TotalMemoryLimit int64   // bytes
	StackSizeLimit   int64   // bytes, 0 means unset
	JudgeKind        string  // "J", "JN", "JUB", "JUN"; defaults to "J"
	Checker          *CheckerSpec
	SubtaskID        string
}

// CheckerSpec is set on a test when its judge command (J/JN/JUB/JUN)
// carries arguments: the first is recorded as CheckerImage, the rest as
// Args. The evaluator passes Args to /judge/check in the configured judge
// image; CheckerImage is not used.
type CheckerSpec struct {
	CheckerImage string
	Args         []string
}

// SubtaskSpec groups tests under a "min" scoring strategy: every test in
// the subtask must pass for its score to count.
type SubtaskSpec struct {
	ID         string
	Score      int
	StopOnFail bool
}

// AuxFile is a header or source file the script declares for compile
// staging (AH/ADDHDR, AS/ADDSRC).
type AuxFile struct {
	Name   string
	Header bool // true for AH/ADDHDR, false for AS/ADDSRC
}

// ProblemSpec is a problem as consumed by the evaluator: an ordered,
// index-sorted sequence of tests plus the auxiliary files the script
// declared.
type ProblemSpec struct {
	ID       string
	Tests    []TestSpec
	Subtasks []SubtaskSpec
	AuxFiles []AuxFile

	// CompileDirectives carries the C/CU/CO lines verbatim; the evaluator
	// does not interpret them, the compile-stage image does.
	CompileDirectives []string
}

// Submission is one student's attempt at one problem.
type Submission struct {
	ID              string
	CompImage       string
	MainFile        string
	SubmittedBy     string
	ProblemID       string
	ProblemSpec     ProblemSpec
	SubmissionDir   string // workspace/submission, already populated
	ReceivedAt      int64
}

// TestResult is the outcome of one test.
type TestResult struct {
	TestName string
	Grade    bool
	RetCode  int
	Time     float64 // seconds
	Memory   float64 // bytes
	Info     string  // classifier when Grade is false
}

// SubmissionResult is the aggregate outcome of one submission.
type SubmissionResult struct {
	Points      int
	Info        string
	Debug       string
	TestResults []TestResult
}
