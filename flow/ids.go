package flow

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Identifiers are opaque non-empty strings. They are value-equal and
// constructors reject empty (or whitespace-only) input. Generation is
// random and unique per identifier kind.

// WorkflowID identifies a workflow aggregate.
type WorkflowID string

// NodeID identifies a node within a workflow.
type NodeID string

// EdgeID identifies an edge within a workflow.
type EdgeID string

// ExecutionID identifies a single live run of a workflow.
type ExecutionID string

// NewWorkflowID parses a workflow id, rejecting empty input.
func NewWorkflowID(s string) (WorkflowID, error) {
	if err := checkID("workflow id", s); err != nil {
		return "", err
	}
	return WorkflowID(s), nil
}

// NewNodeID parses a node id, rejecting empty input.
func NewNodeID(s string) (NodeID, error) {
	if err := checkID("node id", s); err != nil {
		return "", err
	}
	return NodeID(s), nil
}

// NewEdgeID parses an edge id, rejecting empty input.
func NewEdgeID(s string) (EdgeID, error) {
	if err := checkID("edge id", s); err != nil {
		return "", err
	}
	return EdgeID(s), nil
}

// NewExecutionID parses an execution id, rejecting empty input.
func NewExecutionID(s string) (ExecutionID, error) {
	if err := checkID("execution id", s); err != nil {
		return "", err
	}
	return ExecutionID(s), nil
}

// GenerateWorkflowID returns a new random workflow id.
func GenerateWorkflowID() WorkflowID {
	return WorkflowID("wf-" + uuid.NewString())
}

// GenerateNodeID returns a new random node id.
func GenerateNodeID() NodeID {
	return NodeID("node-" + uuid.NewString())
}

// GenerateEdgeID returns a new random edge id.
func GenerateEdgeID() EdgeID {
	return EdgeID("edge-" + uuid.NewString())
}

// GenerateExecutionID returns a new random execution id.
func GenerateExecutionID() ExecutionID {
	return ExecutionID("exec-" + uuid.NewString())
}

func checkID(kind, s string) error {
	if strings.TrimSpace(s) == "" {
		return fmt.Errorf("%w: %s cannot be empty", ErrInvalidArgument, kind)
	}
	return nil
}
