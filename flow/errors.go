// Package flow provides the core workflow model and execution engine for
// PulseFlow: telemetry-driven workflow graphs, their validator, the execution
// runtime, and the threshold bridge that turns incoming telemetry into
// workflow executions.
package flow

import "errors"

// ErrInvalidArgument indicates a malformed input value: an empty identifier,
// an empty name, an out-of-range coordinate, or an inverted time range.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrInvalidState indicates an illegal status transition on a workflow or an
// execution. Terminal states are absorbing; any transition out of them fails
// with this error.
var ErrInvalidState = errors.New("invalid state transition")

// ErrNotFound indicates that a workflow, node, or execution id is not present.
var ErrNotFound = errors.New("not found")

// ErrStepLimitExceeded indicates that an execution performed more node
// transitions than the configured cap without reaching a terminal status.
// This bounds work on cyclic graphs.
var ErrStepLimitExceeded = errors.New("step limit exceeded")

// ErrStepTimeout indicates that a single node step exceeded its deadline.
// Timeouts are fatal to the execution.
var ErrStepTimeout = errors.New("step timeout")

// InvalidWorkflowError is returned when workflow construction or structural
// mutation violates the aggregate invariants. It carries every violation
// found, not just the first.
type InvalidWorkflowError struct {
	Errors []string
}

func (e *InvalidWorkflowError) Error() string {
	if len(e.Errors) == 0 {
		return "invalid workflow"
	}
	msg := "invalid workflow: " + e.Errors[0]
	if len(e.Errors) > 1 {
		msg += " (and more)"
	}
	return msg
}

// EngineError represents a structured error from engine operations.
type EngineError struct {
	Message string
	Code    string
}

func (e *EngineError) Error() string {
	if e.Code != "" {
		return e.Code + ": " + e.Message
	}
	return e.Message
}

// RepositoryError wraps an error bubbled up from a repository port with the
// operation that failed. During ingestion these are isolated per record;
// during execution they fail the step.
type RepositoryError struct {
	Op    string
	Cause error
}

func (e *RepositoryError) Error() string {
	return "repository: " + e.Op + ": " + e.Cause.Error()
}

// Unwrap returns the underlying repository error.
func (e *RepositoryError) Unwrap() error {
	return e.Cause
}
