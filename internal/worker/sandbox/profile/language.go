// Package profile defines language and task profiles used by the sandbox.
package profile

import "fuzoj/internal/worker/sandbox/spec"

// LanguageSpec defines how to compile and run a language inside a container.
type LanguageSpec struct {
	ID               string
	Name             string
	Version          string
	SourceFile       string
	BinaryFile       string
	CompileEnabled   bool
	CompileCmdTpl    string
	RunCmdTpl        string
	Env              []string
	TimeMultiplier   float64
	MemoryMultiplier float64
}

// TaskType identifies the sandbox task category.
type TaskType string

const (
	TaskTypeCompile TaskType = "compile"
	TaskTypeRun     TaskType = "run"
	TaskTypeChecker TaskType = "checker"
)

// TaskProfile defines the container image and default resource envelope for
// a (language, task type) pair.
type TaskProfile struct {
	LanguageID    string
	TaskType      TaskType
	Image         string
	DefaultLimits spec.ResourceLimit
}
