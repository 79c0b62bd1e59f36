package errors

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorCategory represents the category of error
type ErrorCategory string

const (
	// ErrorCategoryConfig represents configuration errors detected before any
	// action runs (duplicate tasks, unknown references, cycles, bad files)
	ErrorCategoryConfig ErrorCategory = "CONFIG"
	// ErrorCategoryExecution represents failures of a task's action
	ErrorCategoryExecution ErrorCategory = "EXECUTION"
	// ErrorCategoryInfra represents fatal infrastructure errors that abort
	// the whole run
	ErrorCategoryInfra ErrorCategory = "INFRA"
)

// Configuration error codes
const (
	CodeDuplicateTask    = "001"
	CodeUnknownTask      = "002"
	CodeCyclicDependency = "003"
	CodeDuplicateStage   = "004"
	CodeUnknownStage     = "005"
	CodeDuplicateTarget  = "006"
	CodeInvalidTaskFile  = "007"
)

// Execution error codes
const (
	CodeActionFailed    = "001"
	CodeMissingPrograms = "002"
)

// Infrastructure error codes
const (
	CodeRunAborted = "001"
)

// ToolError represents a structured error with context and troubleshooting information
type ToolError struct {
	Category        ErrorCategory
	Code            string
	Message         string
	Operation       string
	Context         map[string]interface{}
	Troubleshooting []string
	OriginalError   error
}

// Error implements the error interface
func (e *ToolError) Error() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%s-%s: %s", e.Category, e.Code, e.Message))

	if e.Operation != "" {
		sb.WriteString(fmt.Sprintf("\nOperation: %s", e.Operation))
	}

	if len(e.Context) > 0 {
		sb.WriteString("\nContext:")
		for key, value := range e.Context {
			sb.WriteString(fmt.Sprintf("\n  %s: %v", key, value))
		}
	}

	if len(e.Troubleshooting) > 0 {
		sb.WriteString("\nTroubleshooting:")
		for i, step := range e.Troubleshooting {
			sb.WriteString(fmt.Sprintf("\n  %d. %s", i+1, step))
		}
	}

	if e.OriginalError != nil {
		sb.WriteString(fmt.Sprintf("\nUnderlying error: %v", e.OriginalError))
	}

	return sb.String()
}

// Unwrap returns the original error for error chain compatibility
func (e *ToolError) Unwrap() error {
	return e.OriginalError
}

// New creates a new tool error with the specified parameters
func New(category ErrorCategory, code, message, operation string) *ToolError {
	return &ToolError{
		Category:        category,
		Code:            code,
		Message:         message,
		Operation:       operation,
		Context:         make(map[string]interface{}),
		Troubleshooting: []string{},
	}
}

// WithContext adds context information to the error
func (e *ToolError) WithContext(key string, value interface{}) *ToolError {
	e.Context[key] = value
	return e
}

// WithTroubleshooting adds troubleshooting steps to the error
func (e *ToolError) WithTroubleshooting(steps ...string) *ToolError {
	e.Troubleshooting = append(e.Troubleshooting, steps...)
	return e
}

// WithOriginalError adds the original error to the tool error
func (e *ToolError) WithOriginalError(err error) *ToolError {
	e.OriginalError = err
	return e
}

// NewConfigError creates a new configuration error
func NewConfigError(code, message, operation string) *ToolError {
	return New(ErrorCategoryConfig, code, message, operation)
}

// NewExecutionError creates a new execution error
func NewExecutionError(code, message, operation string) *ToolError {
	return New(ErrorCategoryExecution, code, message, operation)
}

// NewInfraError creates a new infrastructure error
func NewInfraError(code, message, operation string) *ToolError {
	return New(ErrorCategoryInfra, code, message, operation)
}

// IsConfigError reports whether err is a configuration error. Configuration
// errors abort the invocation before any action runs and map to exit code 2.
func IsConfigError(err error) bool {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Category == ErrorCategoryConfig
	}
	return false
}

// GetErrorCode extracts the error code for reporting
func GetErrorCode(err error) string {
	var te *ToolError
	if errors.As(err, &te) {
		return fmt.Sprintf("%s-%s", te.Category, te.Code)
	}
	return "UNKNOWN"
}
