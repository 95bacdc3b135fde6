package evaluator

import (
	"fuzoj/internal/worker/sandbox/config"
	"fuzoj/internal/worker/sandbox/profile"
)

// newSubmissionRepo builds a one-submission language/profile repository:
// a single LanguageSpec (id "submission") plus its compile/run/checker
// TaskProfiles, pointing at the images resolved for this submission's
// queue.
func newSubmissionRepo(ql QueueLanguage, compileImage, execImage, judgeImage string) *config.LocalRepository {
	lang := profile.LanguageSpec{
		ID:               languageID,
		SourceFile:       ql.SourceFile,
		BinaryFile:       ql.BinaryFile,
		CompileEnabled:   true,
		CompileCmdTpl:    ql.CompileCmdTpl,
		RunCmdTpl:        ql.RunCmdTpl,
		Env:              ql.Env,
		TimeMultiplier:   ql.TimeMultiplier,
		MemoryMultiplier: ql.MemoryMultiplier,
	}
	profiles := []profile.TaskProfile{
		{LanguageID: languageID, TaskType: profile.TaskTypeCompile, Image: compileImage},
		{LanguageID: languageID, TaskType: profile.TaskTypeRun, Image: execImage},
		{LanguageID: languageID, TaskType: profile.TaskTypeChecker, Image: judgeImage},
	}
	return config.NewLocalRepository([]profile.LanguageSpec{lang}, profiles)
}
