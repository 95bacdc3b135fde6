package adapter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/formatter"
	"fuzoj/internal/worker/model"
	"fuzoj/internal/worker/workspace"
)

type countingInner struct {
	reportCalls int
}

func (c *countingInner) FetchSubmission(ctx context.Context, ws workspace.Workspace) (*Fetched, error) {
	return nil, nil
}

func (c *countingInner) FetchProblem(ctx context.Context, problemID string, ws workspace.Workspace) (model.ProblemSpec, error) {
	return model.ProblemSpec{}, nil
}

func (c *countingInner) ReportResult(ctx context.Context, submissionID string, payloads formatter.Payloads) error {
	c.reportCalls++
	return nil
}

func TestDedupCacheEvictsOldestBeyondMaxSize(t *testing.T) {
	c := newDedupCache(2)
	c.mark("a")
	c.mark("b")
	c.mark("c") // evicts "a"

	require.False(t, c.seen("a"))
	require.True(t, c.seen("b"))
	require.True(t, c.seen("c"))
}

func TestDedupCacheMarkingTwiceRefreshesRecency(t *testing.T) {
	c := newDedupCache(2)
	c.mark("a")
	c.mark("b")
	c.mark("a") // "a" is now most recent, "b" is oldest
	c.mark("c") // evicts "b", not "a"

	require.True(t, c.seen("a"))
	require.False(t, c.seen("b"))
	require.True(t, c.seen("c"))
}

func TestCachedAdapterReportsEachSubmissionOnlyOnce(t *testing.T) {
	inner := &countingInner{}
	a := NewCached(inner, 10)

	require.NoError(t, a.ReportResult(context.Background(), "sub-1", formatter.Payloads{}))
	require.NoError(t, a.ReportResult(context.Background(), "sub-1", formatter.Payloads{}))
	require.NoError(t, a.ReportResult(context.Background(), "sub-2", formatter.Payloads{}))

	require.Equal(t, 2, inner.reportCalls)
}
