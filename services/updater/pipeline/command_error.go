package pipeline

import (
	"fmt"
	"strings"
)

// CommandError wraps a pipeline step failure with process context.
//
// # Description
//
// Provides rich error context for step failures: the step's display name,
// exit code, and the last stderr line seen. Implements error and supports
// unwrapping.
//
// # Example
//
//	err := NewCommandError("install server dependencies", 1, "ENOSPC", wrapped)
//	fmt.Println(err.Error()) // "install server dependencies (exit 1): ENOSPC"
type CommandError struct {
	// Step is the display name of the failed step.
	Step string

	// ExitCode is the process exit code (-1 if the process never started).
	ExitCode int

	// Stderr is the last standard-error line observed before failure.
	Stderr string

	// Wrapped is the underlying error.
	Wrapped error
}

// Error returns a formatted error message.
func (e *CommandError) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s (exit %d): %s", e.Step, e.ExitCode, e.Stderr)
	}
	if e.Wrapped != nil {
		return fmt.Sprintf("%s (exit %d): %v", e.Step, e.ExitCode, e.Wrapped)
	}
	return fmt.Sprintf("%s (exit %d)", e.Step, e.ExitCode)
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As.
func (e *CommandError) Unwrap() error {
	return e.Wrapped
}

// NewCommandError creates a CommandError. Stderr is trimmed.
func NewCommandError(step string, exitCode int, stderr string, wrapped error) *CommandError {
	return &CommandError{
		Step:     step,
		ExitCode: exitCode,
		Stderr:   strings.TrimSpace(stderr),
		Wrapped:  wrapped,
	}
}
