// Package evaluator implements the submission pipeline (C6): compile,
// per-test execute, per-test judge, aggregate. It adapts the worker's
// spec-level model.Submission/model.ProblemSpec into the lower-level
// sandbox package's language/profile-driven execution contract, then maps
// the result back into model.SubmissionResult.
package evaluator

import (
	"context"
	"fmt"
	"path/filepath"

	"fuzoj/internal/worker/model"
	"fuzoj/internal/worker/sandbox"
	sandboxrunner "fuzoj/internal/worker/sandbox/runner"
	sbresult "fuzoj/internal/worker/sandbox/result"
	"fuzoj/internal/worker/sandbox/spec"
	appErr "fuzoj/pkg/errors"
)

const languageID = "submission"

// QueueLanguage describes how a queue's images invoke compile/run: the
// source/binary filenames the image expects, and the command templates
// passed to the sandbox runner's {src}/{bin}/{extraFlags} expansion.
// Defaults assume every queue image exposes a conventional
// /judge/compile and /judge/run entrypoint (see DefaultQueueLanguage).
type QueueLanguage struct {
	SourceFile       string
	BinaryFile       string
	CompileCmdTpl    string
	RunCmdTpl        string
	Env              []string
	TimeMultiplier   float64
	MemoryMultiplier float64
}

// DefaultQueueLanguage is used for any queue not present in
// Evaluator.QueueLanguages.
var DefaultQueueLanguage = QueueLanguage{
	SourceFile:    "main.src",
	BinaryFile:    "main.bin",
	CompileCmdTpl: "/judge/compile {src}",
	RunCmdTpl:     "/judge/run {bin}",
}

// Evaluator runs the compile/execute/judge pipeline for one submission. It
// holds the shared, engine-backed Runner; per submission it builds a fresh
// language/profile repository carrying that submission's resolved compile
// image, since the lower-level sandbox.Worker resolves images by (language
// id, task type) rather than accepting a per-call override.
type Evaluator struct {
	runner         sandboxrunner.Runner
	execImage      string
	judgeImage     string
	queueCompilers map[string]string
	queueLanguages map[string]QueueLanguage
	checkerLimits  spec.ResourceLimit
}

// New builds an Evaluator backed by r, the shared sandbox runner.
func New(r sandboxrunner.Runner, execImage, judgeImage string, queueCompilers map[string]string, queueLanguages map[string]QueueLanguage, checkerLimits spec.ResourceLimit) *Evaluator {
	return &Evaluator{
		runner:         r,
		execImage:      execImage,
		judgeImage:     judgeImage,
		queueCompilers: queueCompilers,
		queueLanguages: queueLanguages,
		checkerLimits:  checkerLimits,
	}
}

// Run executes the full pipeline for sub against the tests in
// sub.ProblemSpec, returning a SubmissionResult with one TestResult per
// TestSpec in the problem's order. problemDir is the workspace's
// problem/ directory (§3 Workspace), where the .in/.out files live;
// workRoot is the run/ directory passed down as the sandbox worker's
// per-submission scratch root.
func (e *Evaluator) Run(ctx context.Context, queueName string, sub model.Submission, problemDir, workRoot string) (model.SubmissionResult, error) {
	ql, ok := e.queueLanguages[queueName]
	if !ok || ql.SourceFile == "" {
		ql = DefaultQueueLanguage
	}
	if sub.MainFile != "" {
		// Exposed to both the compile and the run stage environments.
		ql.Env = append(append([]string(nil), ql.Env...), "mainfile="+sub.MainFile, "MAINFILE="+sub.MainFile)
	}

	compileImage := sub.CompImage
	if compileImage == "" {
		compileImage = e.queueCompilers[queueName]
	}
	if compileImage == "" {
		return model.SubmissionResult{}, appErr.New(appErr.WorkerConfigError).WithMessage("no compile image resolved for submission")
	}

	repo := newSubmissionRepo(ql, compileImage, e.execImage, e.judgeImage)
	worker := sandbox.NewWorker(e.runner, repo, repo)

	req := sandbox.JudgeRequest{
		SubmissionID:      sub.ID,
		LanguageID:        languageID,
		WorkRoot:          workRoot,
		SourcePath:        filepath.Join(sub.SubmissionDir, sub.MainFile),
		ExtraCompileFlags: nil,
		ProblemID:         sub.ProblemID,
		UserID:            sub.SubmittedBy,
		ReceivedAt:        sub.ReceivedAt,
	}

	if len(sub.ProblemSpec.Tests) == 0 {
		return model.SubmissionResult{}, appErr.New(appErr.WorkerScriptError).WithMessage("problem has no tests")
	}

	for _, t := range sub.ProblemSpec.Tests {
		tc := sandbox.TestcaseSpec{
			TestID:     t.TestName,
			InputPath:  filepath.Join(problemDir, t.TestName+".in"),
			AnswerPath: filepath.Join(problemDir, t.TestName+".out"),
			IOConfig:   sandbox.IOConfig{Mode: "stdio"},
			Score:      1,
			SubtaskID:  t.SubtaskID,
			Limits: spec.ResourceLimit{
				CPUTimeMs: int64(t.TimeLimit * 1000),
				MemoryMB:  t.TotalMemoryLimit / (1024 * 1024),
				StackMB:   t.StackSizeLimit / (1024 * 1024),
			},
			JudgeKind: t.JudgeKind,
		}
		if t.Checker != nil {
			tc.Checker = &sandbox.CheckerSpec{
				BinaryPath: "/judge/check",
				Args:       t.Checker.Args,
				Limits:     e.checkerLimits,
			}
		}
		req.Tests = append(req.Tests, tc)
	}
	for _, st := range sub.ProblemSpec.Subtasks {
		req.Subtasks = append(req.Subtasks, sandbox.SubtaskSpec{
			ID:         st.ID,
			Score:      st.Score,
			Strategy:   "min",
			StopOnFail: st.StopOnFail,
		})
	}

	jr, err := worker.Execute(ctx, req)
	return mapResult(sub.ProblemSpec.Tests, jr), err
}

// mapResult folds a sandbox JudgeResult into a SubmissionResult. A compile
// failure produces one failing TestResult per TestSpec, grade=false,
// info="CE".
func mapResult(tests []model.TestSpec, jr sbresult.JudgeResult) model.SubmissionResult {
	out := model.SubmissionResult{}

	if jr.Compile != nil && !jr.Compile.OK {
		out.Info = jr.Compile.Error
		for _, t := range tests {
			out.TestResults = append(out.TestResults, model.TestResult{TestName: t.TestName, Grade: false, Info: "CE"})
		}
		return out
	}

	passed := 0
	for _, t := range jr.Tests {
		tr := model.TestResult{
			TestName: t.TestID,
			Grade:    t.Verdict == sbresult.VerdictAC,
			RetCode:  t.ExitCode,
			Time:     float64(t.TimeMs) / 1000.0,
			Memory:   float64(t.MemoryKB) * 1024.0,
		}
		if tr.Grade {
			passed++
		} else {
			tr.Info = string(t.Verdict)
		}
		out.TestResults = append(out.TestResults, tr)
	}
	out.Points = passed
	if jr.Compile != nil {
		out.Info = fmt.Sprintf("compile ok in %dms", jr.Compile.TimeMs)
	}
	return out
}
