package formatter_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"fuzoj/internal/worker/formatter"
	"fuzoj/internal/worker/model"
)

func TestFormatAllPassedReportsFullScoreAndNoFailureSummary(t *testing.T) {
	res := model.SubmissionResult{
		Points: 2,
		TestResults: []model.TestResult{
			{TestName: "1", Grade: true, Time: 0.1, Memory: 1024},
			{TestName: "2", Grade: true, Time: 0.2, Memory: 2048},
		},
	}

	p := formatter.Format(res, "")
	require.Contains(t, p.Result, "result=100.0")
	require.Contains(t, p.Result, "info=All tests passed")
	require.Contains(t, p.Info, "1")
	require.Contains(t, p.Info, "2")
}

func TestFormatFailureUsesFirstFailingTestAsSummary(t *testing.T) {
	res := model.SubmissionResult{
		Points: 1,
		TestResults: []model.TestResult{
			{TestName: "1", Grade: true},
			{TestName: "2", Grade: false, Info: "WA"},
			{TestName: "3", Grade: false, Info: "TLE"},
		},
	}

	p := formatter.Format(res, "")
	require.Contains(t, p.Result, "result=33.3")
	require.Contains(t, p.Result, "info=WA")
}

func TestFormatInfoEscapesUserSuppliedText(t *testing.T) {
	res := model.SubmissionResult{
		TestResults: []model.TestResult{
			{TestName: "<script>", Grade: false, Info: "<b>bad</b>"},
		},
	}
	p := formatter.Format(res, "")
	require.NotContains(t, p.Info, "<script>")
	require.Contains(t, p.Info, "&lt;script&gt;")
}

func TestFormatDebugTranslatesAnsiColorsToSpans(t *testing.T) {
	p := formatter.Format(model.SubmissionResult{}, "\x1b[31mred\x1b[0m plain")
	require.Contains(t, p.Debug, `<span style="color:#c62828">red</span>`)
	require.Contains(t, p.Debug, "plain")
}

func TestFormatDebugClosesUnterminatedSpans(t *testing.T) {
	p := formatter.Format(model.SubmissionResult{}, "\x1b[31munterminated")
	require.Equal(t, strings.Count(p.Debug, "<span"), strings.Count(p.Debug, "</span>"))
}
