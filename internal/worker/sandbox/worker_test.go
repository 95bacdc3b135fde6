package sandbox_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/sandbox"
	"fuzoj/internal/worker/sandbox/config"
	"fuzoj/internal/worker/sandbox/profile"
	"fuzoj/internal/worker/sandbox/result"
	"fuzoj/internal/worker/sandbox/runner"
)

type fakeRunner struct {
	compileRes result.CompileResult
	compileErr error
	// verdictByTest overrides the verdict returned for a given test id;
	// every other test is reported AC.
	verdictByTest map[string]result.Verdict
	runReqs       []runner.RunRequest
}

func (f *fakeRunner) Compile(ctx context.Context, req runner.CompileRequest) (result.CompileResult, error) {
	return f.compileRes, f.compileErr
}

func (f *fakeRunner) Run(ctx context.Context, req runner.RunRequest) (result.TestcaseResult, error) {
	f.runReqs = append(f.runReqs, req)
	verdict := result.VerdictAC
	if v, ok := f.verdictByTest[req.TestID]; ok {
		verdict = v
	}
	return result.TestcaseResult{
		TestID:    req.TestID,
		Verdict:   verdict,
		Score:     req.Score,
		SubtaskID: req.SubtaskID,
	}, nil
}

func newWorker(t *testing.T, r *fakeRunner) (*sandbox.Worker, string) {
	t.Helper()
	lang := profile.LanguageSpec{ID: "cpp", SourceFile: "main.cpp", BinaryFile: "main", CompileEnabled: false}
	repo := config.NewLocalRepository(
		[]profile.LanguageSpec{lang},
		[]profile.TaskProfile{
			{LanguageID: "cpp", TaskType: profile.TaskTypeRun},
		},
	)
	w := sandbox.NewWorker(r, repo, repo)
	workRoot := t.TempDir()
	return w, workRoot
}

func baseRequest(workRoot string, tests []sandbox.TestcaseSpec, subtasks []sandbox.SubtaskSpec) sandbox.JudgeRequest {
	return sandbox.JudgeRequest{
		SubmissionID: "sub-1",
		LanguageID:   "cpp",
		WorkRoot:     workRoot,
		SourcePath:   "main.cpp",
		Tests:        tests,
		Subtasks:     subtasks,
	}
}

func testcase(id, subtaskID string, score int) sandbox.TestcaseSpec {
	return sandbox.TestcaseSpec{
		TestID:    id,
		InputPath: "input.txt",
		Score:     score,
		SubtaskID: subtaskID,
	}
}

// Every TestSpec must produce exactly one TestcaseResult in order, even
// once an earlier test in the run has failed.
func TestWorkerExecutesEveryTestDespiteEarlierFailure(t *testing.T) {
	r := &fakeRunner{verdictByTest: map[string]result.Verdict{"t1": result.VerdictWA}}
	w, workRoot := newWorker(t, r)

	req := baseRequest(workRoot, []sandbox.TestcaseSpec{
		testcase("t1", "", 10),
		testcase("t2", "", 10),
		testcase("t3", "", 10),
	}, nil)

	res, err := w.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Tests, 3)
	require.Equal(t, "t1", res.Tests[0].TestID)
	require.Equal(t, "t2", res.Tests[1].TestID)
	require.Equal(t, "t3", res.Tests[2].TestID)
	require.Equal(t, result.VerdictWA, res.Verdict)
	require.Equal(t, "t1", res.Summary.FailedTestID)
}

// A subtask with StopOnFail skips its own remaining tests once one of its
// tests fails, but still records a result for each, and does not affect
// tests in a different subtask.
func TestWorkerSkipsOnlyFailedSubtasksRemainingTests(t *testing.T) {
	r := &fakeRunner{verdictByTest: map[string]result.Verdict{"a1": result.VerdictWA}}
	w, workRoot := newWorker(t, r)

	req := baseRequest(workRoot, []sandbox.TestcaseSpec{
		testcase("a1", "subA", 10),
		testcase("a2", "subA", 10),
		testcase("b1", "subB", 20),
	}, []sandbox.SubtaskSpec{
		{ID: "subA", Score: 20, StopOnFail: true},
		{ID: "subB", Score: 20},
	})

	res, err := w.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Tests, 3)

	require.Equal(t, result.VerdictWA, res.Tests[0].Verdict)
	require.Equal(t, result.VerdictWA, res.Tests[1].Verdict, "a2 should be recorded as skipped with subA's failing verdict")
	require.Equal(t, result.VerdictAC, res.Tests[2].Verdict, "b1 in a different subtask must still run")

	// a2's run request should never have reached the runner.
	require.Len(t, r.runReqs, 2)
	require.Equal(t, "a1", r.runReqs[0].TestID)
	require.Equal(t, "b1", r.runReqs[1].TestID)

	require.Equal(t, 20, res.Summary.TotalScore, "only subB's score counts")
}

func TestWorkerCompileFailureStopsBeforeAnyTestRuns(t *testing.T) {
	r := &fakeRunner{compileRes: result.CompileResult{OK: false, ExitCode: 1}}
	lang := profile.LanguageSpec{ID: "cpp", SourceFile: "main.cpp", BinaryFile: "main", CompileEnabled: true}
	repo := config.NewLocalRepository(
		[]profile.LanguageSpec{lang},
		[]profile.TaskProfile{
			{LanguageID: "cpp", TaskType: profile.TaskTypeRun},
			{LanguageID: "cpp", TaskType: profile.TaskTypeCompile},
		},
	)
	w := sandbox.NewWorker(r, repo, repo)
	workRoot := t.TempDir()

	req := baseRequest(workRoot, []sandbox.TestcaseSpec{testcase("t1", "", 10)}, nil)
	res, err := w.Execute(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, result.VerdictCE, res.Verdict)
	require.Equal(t, result.StatusFinished, res.Status)
	require.Empty(t, res.Tests)
	require.Empty(t, r.runReqs)
}
