package errors

import (
	"fmt"
	"strings"
)

// DisplayErrorSummary provides a brief summary of the error for logs
func DisplayErrorSummary(err error) string {
	if te, ok := err.(*ToolError); ok {
		return fmt.Sprintf("%s-%s: %s", te.Category, te.Code, te.Message)
	}

	errStr := err.Error()
	if len(errStr) > 100 {
		return errStr[:97] + "..."
	}
	return errStr
}

// FormatForCLI formats an error for command-line display with proper spacing
func FormatForCLI(err error) string {
	te, ok := err.(*ToolError)
	if !ok {
		return fmt.Sprintf("\nError: %v\n", err)
	}

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("\n%s Error [%s-%s]\n", te.Category, te.Category, te.Code))
	sb.WriteString(fmt.Sprintf("  %s\n", te.Message))

	if te.Operation != "" {
		sb.WriteString(fmt.Sprintf("\nFailed Operation: %s\n", te.Operation))
	}

	if len(te.Context) > 0 {
		sb.WriteString("\nDetails:\n")
		for key, value := range te.Context {
			sb.WriteString(fmt.Sprintf("  %s: %v\n", key, value))
		}
	}

	if len(te.Troubleshooting) > 0 {
		sb.WriteString("\nHow to resolve:\n")
		for i, step := range te.Troubleshooting {
			sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, step))
		}
	}

	if te.OriginalError != nil {
		sb.WriteString(fmt.Sprintf("\nTechnical details: %v\n", te.OriginalError))
	}

	return sb.String()
}
