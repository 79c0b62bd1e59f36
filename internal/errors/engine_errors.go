package errors

import (
	"fmt"
	"strings"
)

// NewDuplicateTaskError creates an error for registering a task name twice
func NewDuplicateTaskError(name string) *ToolError {
	return NewConfigError(CodeDuplicateTask,
		fmt.Sprintf("Task '%s' is already registered", name),
		"Task registration").
		WithContext("task", name).
		WithTroubleshooting(
			"Task names must be unique within one definition file",
			"Rename one of the conflicting tasks or merge their definitions",
		)
}

// NewUnknownTaskError creates an error for a reference to an unregistered task
func NewUnknownTaskError(name, referencedBy string) *ToolError {
	err := NewConfigError(CodeUnknownTask,
		fmt.Sprintf("Task '%s' is not defined", name),
		"Task lookup").
		WithContext("task", name).
		WithTroubleshooting(
			"Check the task name for typos",
			"Run with --list to see all defined tasks",
		)
	if referencedBy != "" {
		err.WithContext("referenced_by", referencedBy)
	}
	return err
}

// NewCyclicDependencyError creates an error for a dependency cycle. The cycle
// argument is the ordered sequence of task names forming the cycle; the first
// name is repeated at the end for readability.
func NewCyclicDependencyError(cycle []string) *ToolError {
	display := cycle
	if len(cycle) > 0 && cycle[0] != cycle[len(cycle)-1] {
		display = append(append([]string{}, cycle...), cycle[0])
	}
	return NewConfigError(CodeCyclicDependency,
		fmt.Sprintf("Dependency cycle detected: %s", strings.Join(display, " -> ")),
		"Dependency graph construction").
		WithContext("cycle", strings.Join(cycle, ",")).
		WithTroubleshooting(
			"Remove one of the dependencies in the cycle",
			"Split a task in the cycle into independent pieces",
		)
}

// NewDuplicateStageError creates an error for a stage declared more than once
func NewDuplicateStageError(stage string) *ToolError {
	return NewConfigError(CodeDuplicateStage,
		fmt.Sprintf("Stage '%s' is declared more than once", stage),
		"Pipeline stage definition").
		WithContext("stage", stage)
}

// NewUnknownStageError creates an error for a job assigned to an undeclared stage
func NewUnknownStageError(job, stage string, declared []string) *ToolError {
	return NewConfigError(CodeUnknownStage,
		fmt.Sprintf("Job '%s' references undeclared stage '%s'", job, stage),
		"Pipeline job definition").
		WithContext("job", job).
		WithContext("stage", stage).
		WithContext("declared_stages", strings.Join(declared, ",")).
		WithTroubleshooting(
			"Add the stage to the 'stages' list",
			"Assign the job to one of the declared stages",
		)
}

// NewDuplicateTargetError creates an error for a build target defined twice
func NewDuplicateTargetError(name string) *ToolError {
	return NewConfigError(CodeDuplicateTarget,
		fmt.Sprintf("Target '%s' is already defined", name),
		"Build target definition").
		WithContext("target", name)
}

// NewInvalidTaskFileError creates an error for a definition file that failed
// to parse or validate against its schema
func NewInvalidTaskFileError(path string, original error) *ToolError {
	return NewConfigError(CodeInvalidTaskFile,
		fmt.Sprintf("Definition file '%s' is invalid", path),
		"Definition file loading").
		WithContext("file", path).
		WithOriginalError(original).
		WithTroubleshooting(
			"Check the YAML syntax of the file",
			"Compare the file against the documented format",
		)
}

// NewActionError creates an error for a task action that failed
func NewActionError(task, command string, exitCode int, original error) *ToolError {
	err := NewExecutionError(CodeActionFailed,
		fmt.Sprintf("Task '%s' failed", task),
		"Action execution").
		WithContext("task", task).
		WithOriginalError(original)
	if command != "" {
		err.WithContext("command", command)
	}
	if exitCode != 0 {
		err.WithContext("exit_code", exitCode)
	}
	return err
}

// NewMissingProgramsError creates an error for required programs that are not
// installed on PATH
func NewMissingProgramsError(task string, missing, required []string) *ToolError {
	return NewExecutionError(CodeMissingPrograms,
		fmt.Sprintf("Task '%s' requires programs that are not installed: %s",
			task, strings.Join(missing, ", ")),
		"Program preflight check").
		WithContext("task", task).
		WithContext("missing", strings.Join(missing, ",")).
		WithContext("required", strings.Join(required, ",")).
		WithTroubleshooting(
			"Install the missing programs and ensure they are on PATH",
		)
}

// NewRunAbortedError creates an error for a run aborted by infrastructure failure
func NewRunAbortedError(reason string, original error) *ToolError {
	return NewInfraError(CodeRunAborted,
		fmt.Sprintf("Run aborted: %s", reason),
		"Run execution").
		WithOriginalError(original)
}
