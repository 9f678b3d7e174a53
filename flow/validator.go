package flow

import (
	"fmt"

	"github.com/pulseflow/pulseflow/flow/condition"
)

// ValidationResult aggregates validator findings. Errors make the subject
// invalid; warnings flag constructions that execute but rarely mean what the
// author intended.
type ValidationResult struct {
	Valid    bool
	Errors   []string
	Warnings []string
}

func (r *ValidationResult) addError(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
	r.Valid = false
}

func (r *ValidationResult) addWarning(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

func (r *ValidationResult) merge(prefix string, other condition.ValidationResult) {
	for _, e := range other.Errors {
		r.addError("%s: %s", prefix, e)
	}
	for _, w := range other.Warnings {
		r.addWarning("%s: %s", prefix, w)
	}
}

// Validate checks a workflow's structure and the condition trees of its
// DECISION and CONDITION nodes. It is total: any syntactically constructed
// workflow produces a result, never a panic or error.
func Validate(w *Workflow) ValidationResult {
	result := ValidationResult{Valid: true}
	if w == nil {
		result.addError("workflow is nil")
		return result
	}

	for _, msg := range checkStructure(w.Name(), w.Nodes(), w.Edges()) {
		result.addError("%s", msg)
	}

	for _, n := range w.Nodes() {
		if !n.RequiresConditions() {
			continue
		}
		conds, ok := n.Conditions()
		if !ok {
			result.addWarning("node %q (%s) has no conditions configured", n.ID, n.Type)
			continue
		}
		result.merge(fmt.Sprintf("node %q", n.ID), condition.Validate(conds))
	}

	return result
}

// ValidateConnection checks whether an edge of the given type may connect
// source to target:
//
//   - error if source and target are the same node
//   - error if the target is a START node (start nodes have no incoming edges)
//   - error if the source is an END node (end nodes have no outgoing edges)
//   - warning if the source is a DECISION or CONDITION node and the edge is
//     DEFAULT-typed, since routing there keys off conditional edge types
func ValidateConnection(source, target Node, edgeType EdgeType) ValidationResult {
	result := ValidationResult{Valid: true}

	if source.ID == target.ID {
		result.addError("connection from node %q to itself is not allowed", source.ID)
	}
	if target.Type == NodeStart {
		result.addError("node %q is a START node and cannot have incoming connections", target.ID)
	}
	if source.Type == NodeEnd {
		result.addError("node %q is an END node and cannot have outgoing connections", source.ID)
	}
	if (source.Type == NodeDecision || source.Type == NodeCondition) && edgeType == EdgeDefault {
		result.addWarning("connection from %s node %q is DEFAULT-typed; CONDITIONAL_TRUE or CONDITIONAL_FALSE is usually intended", source.Type, source.ID)
	}

	return result
}

// ValidateExecutionReadiness checks whether a workflow can be handed to the
// engine:
//
//   - error if the workflow status is not ACTIVE
//   - error if any DECISION or CONDITION node lacks a conditions entry
//   - warning if a DECISION node has neither a CONDITIONAL_TRUE nor a
//     CONDITIONAL_FALSE outgoing edge (routing will fall back to the first
//     declared edge)
func ValidateExecutionReadiness(w *Workflow) ValidationResult {
	result := ValidationResult{Valid: true}
	if w == nil {
		result.addError("workflow is nil")
		return result
	}

	if status := w.Status(); status != StatusActive {
		result.addError("workflow status is %s, must be ACTIVE", status)
	}

	for _, n := range w.Nodes() {
		if !n.RequiresConditions() {
			continue
		}
		if _, ok := n.Conditions(); !ok {
			result.addError("node %q (%s) has no conditions configured", n.ID, n.Type)
		}

		if n.Type == NodeDecision {
			hasConditional := false
			for _, e := range w.OutgoingEdges(n.ID) {
				if e.Type == EdgeConditionalTrue || e.Type == EdgeConditionalFalse {
					hasConditional = true
					break
				}
			}
			if !hasConditional {
				result.addWarning("decision node %q has no CONDITIONAL_TRUE or CONDITIONAL_FALSE outgoing edge", n.ID)
			}
		}
	}

	return result
}
