package script_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/script"
)

func TestParseBasicTests(t *testing.T) {
	src := `
C g++ -O2 -o main main.cpp
TST 1
T 1.5
TN 262144000
J
TST 2
T 2
JN
`
	spec, err := script.Parse(context.Background(), src, "p1")
	require.NoError(t, err)
	require.Equal(t, "p1", spec.ID)
	require.Len(t, spec.Tests, 2)
	require.Equal(t, "1", spec.Tests[0].TestName)
	require.Equal(t, 1.5, spec.Tests[0].TimeLimit)
	require.Equal(t, int64(262144000), spec.Tests[0].TotalMemoryLimit)
	require.Equal(t, "J", spec.Tests[0].JudgeKind)
	require.Equal(t, "JN", spec.Tests[1].JudgeKind)
	require.Len(t, spec.CompileDirectives, 1)
}

func TestParseTestsSortedByIndexNotAppearanceOrder(t *testing.T) {
	src := `
TST 5
TST 1
`
	spec, err := script.Parse(context.Background(), src, "p1")
	require.NoError(t, err)
	require.Len(t, spec.Tests, 2)
	require.Equal(t, "1", spec.Tests[0].TestName)
	require.Equal(t, "5", spec.Tests[1].TestName)
}

func TestParseDuplicateTestIndexLastOccurrenceWins(t *testing.T) {
	src := `
TST 1
T 1
TST 1
T 3
`
	spec, err := script.Parse(context.Background(), src, "p1")
	require.NoError(t, err)
	require.Len(t, spec.Tests, 1)
	require.Equal(t, 3.0, spec.Tests[0].TimeLimit)
}

func TestParseUnknownCommandIgnored(t *testing.T) {
	src := `
TST 1
FROB something
T 1
`
	spec, err := script.Parse(context.Background(), src, "p1")
	require.NoError(t, err)
	require.Len(t, spec.Tests, 1)
}

func TestParseMalformedTimeLimitFails(t *testing.T) {
	src := `
TST 1
T notanumber
`
	_, err := script.Parse(context.Background(), src, "p1")
	require.Error(t, err)
}

func TestParseTOutsideTSTFails(t *testing.T) {
	src := `
T 1
`
	_, err := script.Parse(context.Background(), src, "p1")
	require.Error(t, err)
}

func TestParseSubGroupsTestsIntoSubtask(t *testing.T) {
	src := `
TST 1
SUB groupA 30 STOP
TST 2
SUB groupA 30 STOP
TST 3
SUB groupB 40
`
	spec, err := script.Parse(context.Background(), src, "p1")
	require.NoError(t, err)
	require.Len(t, spec.Subtasks, 2)
	require.Equal(t, "groupA", spec.Subtasks[0].ID)
	require.Equal(t, 30, spec.Subtasks[0].Score)
	require.True(t, spec.Subtasks[0].StopOnFail)
	require.Equal(t, "groupB", spec.Subtasks[1].ID)
	require.False(t, spec.Subtasks[1].StopOnFail)

	require.Equal(t, "groupA", spec.Tests[0].SubtaskID)
	require.Equal(t, "groupA", spec.Tests[1].SubtaskID)
	require.Equal(t, "groupB", spec.Tests[2].SubtaskID)
}

func TestParseSubWithBadThirdArgumentFails(t *testing.T) {
	src := `
TST 1
SUB groupA 30 NOTSTOP
`
	_, err := script.Parse(context.Background(), src, "p1")
	require.Error(t, err)
}

func TestParseSubWithMalformedScoreFails(t *testing.T) {
	src := `
TST 1
SUB groupA notanumber
`
	_, err := script.Parse(context.Background(), src, "p1")
	require.Error(t, err)
}

func TestParseAuxFiles(t *testing.T) {
	src := `
AH helper.h
AS helper.cpp
`
	spec, err := script.Parse(context.Background(), src, "p1")
	require.NoError(t, err)
	require.Len(t, spec.AuxFiles, 2)
	require.True(t, spec.AuxFiles[0].Header)
	require.False(t, spec.AuxFiles[1].Header)
}
