package evaluator_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/evaluator"
	"fuzoj/internal/worker/model"
	sandboxrunner "fuzoj/internal/worker/sandbox/runner"
	sbresult "fuzoj/internal/worker/sandbox/result"
	"fuzoj/internal/worker/sandbox/spec"
)

type fakeRunner struct {
	compileOK     bool
	verdictByTest map[string]sbresult.Verdict
	compileReqs   []sandboxrunner.CompileRequest
	runReqs       []sandboxrunner.RunRequest
}

func (f *fakeRunner) Compile(ctx context.Context, req sandboxrunner.CompileRequest) (sbresult.CompileResult, error) {
	f.compileReqs = append(f.compileReqs, req)
	if f.compileOK {
		// A successful compile leaves the binary in the compile workdir,
		// where the sandbox worker copies it from for every test.
		if err := os.WriteFile(filepath.Join(req.WorkDir, req.Language.BinaryFile), []byte("bin"), 0o755); err != nil {
			return sbresult.CompileResult{}, err
		}
	}
	return sbresult.CompileResult{OK: f.compileOK}, nil
}

func (f *fakeRunner) Run(ctx context.Context, req sandboxrunner.RunRequest) (sbresult.TestcaseResult, error) {
	f.runReqs = append(f.runReqs, req)
	verdict := sbresult.VerdictAC
	if v, ok := f.verdictByTest[req.TestID]; ok {
		verdict = v
	}
	return sbresult.TestcaseResult{TestID: req.TestID, Verdict: verdict, Score: req.Score, SubtaskID: req.SubtaskID}, nil
}

func submission(t *testing.T) model.Submission {
	t.Helper()
	return model.Submission{
		ID:            "sub-1",
		CompImage:     "cpp-compile:latest",
		MainFile:      "main.cpp",
		SubmissionDir: t.TempDir(),
		ProblemSpec: model.ProblemSpec{
			Tests: []model.TestSpec{
				{TestName: "1", TimeLimit: 1, TotalMemoryLimit: 256 << 20, JudgeKind: "J"},
				{TestName: "2", TimeLimit: 1, TotalMemoryLimit: 256 << 20, JudgeKind: "J"},
			},
		},
	}
}

func TestRunHappyPathAllTestsPass(t *testing.T) {
	r := &fakeRunner{compileOK: true}
	e := evaluator.New(r, "exec:latest", "judge:latest", nil, nil, spec.ResourceLimit{})

	sub := submission(t)
	res, err := e.Run(context.Background(), "cpp", sub, t.TempDir(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 2, res.Points)
	require.Len(t, res.TestResults, 2)
	require.True(t, res.TestResults[0].Grade)
	require.True(t, res.TestResults[1].Grade)
}

func TestRunCompileFailureMarksEveryTestCE(t *testing.T) {
	r := &fakeRunner{compileOK: false}
	e := evaluator.New(r, "exec:latest", "judge:latest", nil, nil, spec.ResourceLimit{})

	sub := submission(t)
	res, err := e.Run(context.Background(), "cpp", sub, t.TempDir(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 0, res.Points)
	require.Len(t, res.TestResults, 2)
	for _, tr := range res.TestResults {
		require.False(t, tr.Grade)
		require.Equal(t, "CE", tr.Info)
	}
}

func TestRunMapsFailingVerdictIntoTestResultInfo(t *testing.T) {
	r := &fakeRunner{compileOK: true, verdictByTest: map[string]sbresult.Verdict{"2": sbresult.VerdictWA}}
	e := evaluator.New(r, "exec:latest", "judge:latest", nil, nil, spec.ResourceLimit{})

	sub := submission(t)
	res, err := e.Run(context.Background(), "cpp", sub, t.TempDir(), t.TempDir())
	require.NoError(t, err)
	require.Equal(t, 1, res.Points)
	require.Equal(t, "WA", res.TestResults[1].Info)
}

func TestRunWithNoCompileImageResolvedFails(t *testing.T) {
	r := &fakeRunner{compileOK: true}
	e := evaluator.New(r, "exec:latest", "judge:latest", nil, nil, spec.ResourceLimit{})

	sub := submission(t)
	sub.CompImage = ""
	_, err := e.Run(context.Background(), "unknown-queue", sub, t.TempDir(), t.TempDir())
	require.Error(t, err)
}

func TestRunUsesQueueCompilerMapWhenSubmissionHasNoCompImage(t *testing.T) {
	r := &fakeRunner{compileOK: true}
	e := evaluator.New(r, "exec:latest", "judge:latest", map[string]string{"cpp": "cpp-compile:latest"}, nil, spec.ResourceLimit{})

	sub := submission(t)
	sub.CompImage = ""
	_, err := e.Run(context.Background(), "cpp", sub, t.TempDir(), t.TempDir())
	require.NoError(t, err)
	require.Len(t, r.compileReqs, 1)
	require.Equal(t, "cpp-compile:latest", r.compileReqs[0].Profile.Image)
}

func TestRunWithNoTestsFails(t *testing.T) {
	r := &fakeRunner{compileOK: true}
	e := evaluator.New(r, "exec:latest", "judge:latest", nil, nil, spec.ResourceLimit{})

	sub := submission(t)
	sub.ProblemSpec.Tests = nil
	_, err := e.Run(context.Background(), "cpp", sub, t.TempDir(), t.TempDir())
	require.Error(t, err)
}
