package judge_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/sandbox/judge"
)

func TestCompareExactIgnoresTrailingNewlines(t *testing.T) {
	require.True(t, judge.Compare(judge.KindExact, []byte("42\n"), []byte("42")))
	require.False(t, judge.Compare(judge.KindExact, []byte("42\n"), []byte("43")))
}

func TestCompareNormalizedIgnoresWhitespaceRuns(t *testing.T) {
	require.True(t, judge.Compare(judge.KindNormalized, []byte("1  2\t3\n"), []byte("1 2 3")))
	require.False(t, judge.Compare(judge.KindNormalized, []byte("1 2 3"), []byte("1 3 2")))
}

func TestCompareUnorderedTokensIgnoresOrder(t *testing.T) {
	require.True(t, judge.Compare(judge.KindUnorderedTokens, []byte("3 1 2"), []byte("1 2 3")))
	require.False(t, judge.Compare(judge.KindUnorderedTokens, []byte("1 2 2"), []byte("1 2 3")))
}

func TestCompareUnorderedNumericToleratesSmallError(t *testing.T) {
	require.True(t, judge.Compare(judge.KindUnorderedNumeric, []byte("1.00000005 2"), []byte("1 2")))
	require.False(t, judge.Compare(judge.KindUnorderedNumeric, []byte("1.5 2"), []byte("1 2")))
}

func TestCompareUnorderedNumericFallsBackToStringForNonNumericTokens(t *testing.T) {
	require.True(t, judge.Compare(judge.KindUnorderedNumeric, []byte("abc 1"), []byte("1 abc")))
	require.False(t, judge.Compare(judge.KindUnorderedNumeric, []byte("abc 1"), []byte("def 1")))
}

func TestCompareEmptyKindDefaultsToExact(t *testing.T) {
	require.True(t, judge.Compare("", []byte("hello"), []byte("hello")))
}
