// Package condition implements the declarative boolean/comparison language
// evaluated against telemetry records at DECISION and CONDITION nodes.
//
// A condition reaches the engine in one of three surface forms:
//
//   - composite map: {"operator": "AND"|"OR"|"NOT", "conditions": [...]}
//     (operator defaults to AND)
//   - leaf map: {"field": "temperature", "operator": ">", "value": 25}
//   - list: implicit AND over its elements
//   - string: "<field> <op> <literal>" with op in { >, <, >=, <=, ==, != }
//
// All forms are parsed into a single algebraic type (And | Or | Not | Leaf)
// at the boundary; evaluation and validation walk that tree.
package condition

import "fmt"

// Condition is the algebraic condition tree.
type Condition interface {
	isCondition()
}

// And evaluates to true iff every child does. And over no children is true.
type And []Condition

// Or evaluates to true iff any child does. Or over no children is false.
type Or []Condition

// Not negates its inner condition. The surface form NOT over a list of
// children is parsed as Not(And(children)).
type Not struct {
	Inner Condition
}

// Leaf compares one field of the telemetry record against a literal.
type Leaf struct {
	Field    string
	Operator string
	Value    any
}

func (And) isCondition()  {}
func (Or) isCondition()   {}
func (Not) isCondition()  {}
func (Leaf) isCondition() {}

// EvaluationError indicates a structural defect in a condition tree or an
// operator misuse: a leaf missing its field, operator, or value; an unknown
// logical operator; a malformed string form; or a literal whose type the
// operator cannot work with. It fails the whole evaluation.
type EvaluationError struct {
	Message string
}

func (e *EvaluationError) Error() string {
	return "condition evaluation: " + e.Message
}

func evalErrorf(format string, args ...any) *EvaluationError {
	return &EvaluationError{Message: fmt.Sprintf(format, args...)}
}
