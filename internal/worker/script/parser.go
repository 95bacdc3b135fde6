// Package script parses the STOS-family problem script DSL into a
// normalized model.ProblemSpec.
package script

import (
	"bufio"
	"sort"
	"strconv"
	"strings"

	"fuzoj/internal/worker/model"
	appErr "fuzoj/pkg/errors"
	"fuzoj/pkg/utils/logger"

	"context"
)

const (
	defaultTimeLimit        = 2.0
	defaultTotalMemoryLimit = 256 * 1024 * 1024
	defaultJudgeKind        = "J"
)

type testBuilder struct {
	index int
	spec  model.TestSpec
	seen  bool
}

// Parse consumes the text of script.txt and produces a fully populated
// model.ProblemSpec, or an error carrying appErr.WorkerScriptError when the
// script cannot be parsed at the structural level.
//
// Unknown commands are ignored with a logged warning. A malformed numeric
// argument fails the entire parse. Test indices need not be contiguous; the
// returned ProblemSpec.Tests is sorted ascending by index. A duplicate test
// index makes the later occurrence win, with a warning logged.
//
// SUB <subtask_id> <score> [STOP] groups the current TST block's test under
// a scoring subtask: every test sharing subtask_id must pass for score to
// count, and STOP skips the rest of that subtask's tests once one fails.
// A test with no SUB line is scored individually.
func Parse(ctx context.Context, scriptText, problemID string) (model.ProblemSpec, error) {
	tests := make(map[int]*testBuilder)
	order := make([]int, 0)
	var current *testBuilder
	var compileDirectives []string
	var auxFiles []model.AuxFile
	subtasks := make(map[string]*model.SubtaskSpec)
	subtaskOrder := make([]string, 0)

	scanner := bufio.NewScanner(strings.NewReader(scriptText))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		fields := strings.Fields(line)
		cmd := strings.ToUpper(fields[0])
		args := fields[1:]

		switch cmd {
		case "C", "CU", "CO":
			compileDirectives = append(compileDirectives, line)

		case "TST":
			if len(args) != 1 {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "TST requires exactly one index argument: %q", line)
			}
			idx, err := strconv.Atoi(args[0])
			if err != nil {
				return model.ProblemSpec{}, appErr.Wrapf(err, appErr.WorkerScriptError, "malformed TST index: %q", line)
			}
			if existing, ok := tests[idx]; ok {
				logger.Warnf(ctx, "duplicate test index %d in script, last occurrence wins", idx)
				current = existing
				continue
			}
			tb := &testBuilder{
				index: idx,
				spec: model.TestSpec{
					TestName:         strconv.Itoa(idx),
					TimeLimit:        defaultTimeLimit,
					TotalMemoryLimit: defaultTotalMemoryLimit,
					JudgeKind:        defaultJudgeKind,
				},
			}
			tests[idx] = tb
			order = append(order, idx)
			current = tb

		case "T":
			if current == nil {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "T outside of a TST block: %q", line)
			}
			if len(args) != 1 {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "T requires exactly one time argument: %q", line)
			}
			t, err := strconv.ParseFloat(args[0], 64)
			if err != nil {
				return model.ProblemSpec{}, appErr.Wrapf(err, appErr.WorkerScriptError, "malformed T time limit: %q", line)
			}
			if t <= 0 {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "time_limit must be > 0: %q", line)
			}
			current.spec.TimeLimit = t

		case "TN":
			if current == nil {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "TN outside of a TST block: %q", line)
			}
			if len(args) != 1 {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "TN requires exactly one byte-count argument: %q", line)
			}
			n, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return model.ProblemSpec{}, appErr.Wrapf(err, appErr.WorkerScriptError, "malformed TN memory limit: %q", line)
			}
			if n <= 0 {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "total_memory_limit must be > 0: %q", line)
			}
			current.spec.TotalMemoryLimit = n

		case "J", "JN", "JUB", "JUN":
			if current == nil {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "%s outside of a TST block: %q", cmd, line)
			}
			current.spec.JudgeKind = cmd
			if len(args) > 0 {
				current.spec.Checker = &model.CheckerSpec{CheckerImage: args[0], Args: args[1:]}
			}

		case "SUB":
			if current == nil {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "SUB outside of a TST block: %q", line)
			}
			if len(args) < 2 || len(args) > 3 {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "SUB requires a subtask id and score, and an optional STOP flag: %q", line)
			}
			subtaskID := args[0]
			score, err := strconv.Atoi(args[1])
			if err != nil {
				return model.ProblemSpec{}, appErr.Wrapf(err, appErr.WorkerScriptError, "malformed SUB score: %q", line)
			}
			stopOnFail := false
			if len(args) == 3 {
				if strings.ToUpper(args[2]) != "STOP" {
					return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "SUB third argument must be STOP: %q", line)
				}
				stopOnFail = true
			}
			if st, ok := subtasks[subtaskID]; ok {
				st.Score = score
				st.StopOnFail = stopOnFail
			} else {
				subtasks[subtaskID] = &model.SubtaskSpec{ID: subtaskID, Score: score, StopOnFail: stopOnFail}
				subtaskOrder = append(subtaskOrder, subtaskID)
			}
			current.spec.SubtaskID = subtaskID

		case "AH", "ADDHDR":
			if len(args) != 1 {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "%s requires exactly one filename argument: %q", cmd, line)
			}
			auxFiles = append(auxFiles, model.AuxFile{Name: args[0], Header: true})

		case "AS", "ADDSRC":
			if len(args) != 1 {
				return model.ProblemSpec{}, appErr.Newf(appErr.WorkerScriptError, "%s requires exactly one filename argument: %q", cmd, line)
			}
			auxFiles = append(auxFiles, model.AuxFile{Name: args[0], Header: false})

		default:
			logger.Warnf(ctx, "unknown script command ignored: %q", line)
		}
	}
	if err := scanner.Err(); err != nil {
		return model.ProblemSpec{}, appErr.Wrapf(err, appErr.WorkerScriptError, "read script failed")
	}

	sort.Ints(order)
	outTests := make([]model.TestSpec, 0, len(order))
	for _, idx := range order {
		outTests = append(outTests, tests[idx].spec)
	}

	if err := validateUniqueNames(outTests); err != nil {
		return model.ProblemSpec{}, err
	}

	outSubtasks := make([]model.SubtaskSpec, 0, len(subtaskOrder))
	for _, id := range subtaskOrder {
		outSubtasks = append(outSubtasks, *subtasks[id])
	}

	return model.ProblemSpec{
		ID:                problemID,
		Tests:             outTests,
		Subtasks:          outSubtasks,
		AuxFiles:          auxFiles,
		CompileDirectives: compileDirectives,
	}, nil
}

func validateUniqueNames(tests []model.TestSpec) error {
	seen := make(map[string]bool, len(tests))
	for _, t := range tests {
		if seen[t.TestName] {
			return appErr.Newf(appErr.WorkerScriptError, "duplicate test_name after parse: %q", t.TestName)
		}
		seen[t.TestName] = true
	}
	return nil
}
