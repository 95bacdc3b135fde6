// Package formatter turns a model.SubmissionResult into the three text
// payloads the UI consumes: a machine-readable result summary, a
// human-readable info table, and a debug log with ANSI escapes translated
// to HTML.
package formatter

import (
	"fmt"
	"html"
	"regexp"
	"strings"

	"fuzoj/internal/worker/model"

	"github.com/docker/go-units"
)

// Payloads holds the three strings reported via post_result.
type Payloads struct {
	Result string
	Info   string
	Debug  string
}

// Format builds all three payloads from a SubmissionResult. debugLog is
// the log text the caller collected (the main loop passes the files found
// under the workspace's logs/ directory), possibly containing ANSI color
// escapes.
func Format(res model.SubmissionResult, debugLog string) Payloads {
	return Payloads{
		Result: formatResult(res),
		Info:   formatInfo(res),
		Debug:  formatDebug(debugLog),
	}
}

func formatResult(res model.SubmissionResult) string {
	total := len(res.TestResults)
	var scorePercent float64
	if total > 0 {
		scorePercent = 100.0 * float64(res.Points) / float64(total)
	}

	summary := "All tests passed"
	for _, tr := range res.TestResults {
		if !tr.Grade {
			summary = tr.Info
			break
		}
	}

	return fmt.Sprintf(
		"result=%s\ninfoformat=html\ndebugformat=html\ninfo=%s\n",
		formatScore(scorePercent), summary,
	)
}

func formatScore(scorePercent float64) string {
	return fmt.Sprintf("%.1f", scorePercent)
}

const (
	verdictColorOK      = "#2e7d32"
	verdictColorDefault = "#c62828"
)

func formatInfo(res model.SubmissionResult) string {
	var b strings.Builder
	b.WriteString("<table class=\"judge-result\">\n")
	b.WriteString("<tr><th>test_name</th><th>verdict</th><th>time</th><th>memory</th><th>exit_code</th></tr>\n")
	for _, tr := range res.TestResults {
		verdict := "OK"
		color := verdictColorOK
		if !tr.Grade {
			verdict = tr.Info
			color = verdictColorDefault
		}
		b.WriteString(fmt.Sprintf(
			"<tr style=\"color:%s\"><td>%s</td><td>%s</td><td>%.3fs</td><td>%s</td><td>%d</td></tr>\n",
			color, html.EscapeString(tr.TestName), html.EscapeString(verdict), tr.Time,
			units.BytesSize(tr.Memory), tr.RetCode,
		))
	}
	b.WriteString("</table>\n")

	if res.Info != "" {
		b.WriteString("<pre class=\"compile-info\">")
		b.WriteString(html.EscapeString(res.Info))
		b.WriteString("</pre>\n")
	}
	return b.String()
}

func formatDebug(debugLog string) string {
	return "<pre class=\"debug-log\">" + ansiToHTML(debugLog) + "</pre>"
}

// ansiEscape matches a CSI SGR sequence, e.g. "\x1b[31m".
var ansiEscape = regexp.MustCompile("\x1b\\[([0-9;]*)m")

var ansiColors = map[string]string{
	"30": "#000000", "31": "#c62828", "32": "#2e7d32", "33": "#f9a825",
	"34": "#1565c0", "35": "#6a1b9a", "36": "#00838f", "37": "#e0e0e0",
	"90": "#757575", "91": "#ef5350", "92": "#66bb6a", "93": "#ffee58",
	"94": "#42a5f5", "95": "#ab47bc", "96": "#26c6da", "97": "#ffffff",
}

// ansiToHTML translates ANSI SGR color escapes into inline HTML spans. It
// is a pure function on strings; there is no global color state, so
// repeated calls on the same input are idempotent.
func ansiToHTML(s string) string {
	var b strings.Builder
	openSpans := 0
	last := 0
	for _, m := range ansiEscape.FindAllSubmatchIndex([]byte(s), -1) {
		start, end := m[0], m[1]
		codeStart, codeEnd := m[2], m[3]
		b.WriteString(html.EscapeString(s[last:start]))

		code := s[codeStart:codeEnd]
		switch {
		case code == "" || code == "0":
			for openSpans > 0 {
				b.WriteString("</span>")
				openSpans--
			}
		default:
			if color, ok := ansiColors[firstCode(code)]; ok {
				b.WriteString(fmt.Sprintf("<span style=\"color:%s\">", color))
				openSpans++
			}
		}
		last = end
	}
	b.WriteString(html.EscapeString(s[last:]))
	for openSpans > 0 {
		b.WriteString("</span>")
		openSpans--
	}
	return b.String()
}

func firstCode(codes string) string {
	if i := strings.IndexByte(codes, ';'); i >= 0 {
		return codes[:i]
	}
	return codes
}
