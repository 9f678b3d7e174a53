package flow

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// WorkflowStatus is the lifecycle state of a workflow definition.
type WorkflowStatus string

const (
	StatusDraft     WorkflowStatus = "DRAFT"
	StatusActive    WorkflowStatus = "ACTIVE"
	StatusPaused    WorkflowStatus = "PAUSED"
	StatusCompleted WorkflowStatus = "COMPLETED"
	StatusFailed    WorkflowStatus = "FAILED"
	StatusArchived  WorkflowStatus = "ARCHIVED"
)

// Terminal reports whether no further transition is permitted from this
// status.
func (s WorkflowStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusArchived
}

// workflowTransitions is the allowed status transition table. Terminal states
// have no outgoing entries.
var workflowTransitions = map[WorkflowStatus][]WorkflowStatus{
	StatusDraft:  {StatusActive, StatusArchived},
	StatusActive: {StatusPaused, StatusCompleted, StatusFailed, StatusArchived},
	StatusPaused: {StatusActive, StatusCompleted, StatusFailed, StatusArchived},
}

// Workflow is the aggregate root of a directed graph of typed nodes and
// edges. It exclusively owns its nodes and edges; externally visible
// collections are defensive copies and declaration order is preserved
// throughout, because routing depends on it.
//
// A workflow is immutable in steady state. Structural updates take the
// aggregate's writer lock; concurrent readers block for the duration of the
// update and never observe a half-applied structure.
//
// Structural invariants, checked on construction and on every structural
// mutation:
//  1. At least one node.
//  2. Every edge endpoint refers to a node of this workflow.
//  3. No self-loops.
//  4. At least one start node (a node with no incoming edge).
//  5. A non-empty name after trimming.
type Workflow struct {
	mu sync.RWMutex

	id             WorkflowID
	name           string
	organizationID string
	nodes          []Node
	edges          []Edge
	status         WorkflowStatus
	createdAt      time.Time
	updatedAt      time.Time

	// Lookup indices, rebuilt on structural mutation. outgoing preserves
	// edge declaration order per source node.
	nodeByID map[NodeID]int
	outgoing map[NodeID][]int
}

// NewWorkflow validates and constructs a workflow in DRAFT status.
// Violations of the structural invariants are returned together as an
// InvalidWorkflowError.
func NewWorkflow(id WorkflowID, name, orgID string, nodes []Node, edges []Edge) (*Workflow, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, fmt.Errorf("%w: workflow id cannot be empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(orgID) == "" {
		return nil, fmt.Errorf("%w: organization id cannot be empty", ErrInvalidArgument)
	}

	now := time.Now()
	w := &Workflow{
		id:             id,
		organizationID: orgID,
		status:         StatusDraft,
		createdAt:      now,
		updatedAt:      now,
	}
	if err := w.replaceStructure(name, nodes, edges); err != nil {
		return nil, err
	}
	return w, nil
}

// checkStructure collects every structural invariant violation.
func checkStructure(name string, nodes []Node, edges []Edge) []string {
	var errs []string

	if strings.TrimSpace(name) == "" {
		errs = append(errs, "name cannot be empty")
	}
	if len(nodes) == 0 {
		errs = append(errs, "workflow must have at least one node")
	}

	ids := make(map[NodeID]bool, len(nodes))
	for _, n := range nodes {
		if n.ID == "" {
			errs = append(errs, "node id cannot be empty")
			continue
		}
		if ids[n.ID] {
			errs = append(errs, fmt.Sprintf("duplicate node id %q", n.ID))
		}
		ids[n.ID] = true
	}

	hasIncoming := make(map[NodeID]bool, len(nodes))
	for _, e := range edges {
		if !ids[e.Source] {
			errs = append(errs, fmt.Sprintf("edge %q references unknown source node %q", e.ID, e.Source))
		}
		if !ids[e.Target] {
			errs = append(errs, fmt.Sprintf("edge %q references unknown target node %q", e.ID, e.Target))
		}
		if e.Source == e.Target {
			errs = append(errs, fmt.Sprintf("edge %q is a self-loop on node %q", e.ID, e.Source))
		}
		hasIncoming[e.Target] = true
	}

	if len(nodes) > 0 {
		hasStart := false
		for _, n := range nodes {
			if !hasIncoming[n.ID] {
				hasStart = true
				break
			}
		}
		if !hasStart {
			errs = append(errs, "workflow must have at least one start node (node with no incoming edge)")
		}
	}

	return errs
}

// replaceStructure swaps in new contents after re-checking invariants and
// rebuilds the lookup indices. The updatedAt clock never moves backwards.
func (w *Workflow) replaceStructure(name string, nodes []Node, edges []Edge) error {
	if errs := checkStructure(name, nodes, edges); len(errs) > 0 {
		return &InvalidWorkflowError{Errors: errs}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	w.name = strings.TrimSpace(name)
	w.nodes = make([]Node, len(nodes))
	for i, n := range nodes {
		w.nodes[i] = n.clone()
	}
	w.edges = make([]Edge, len(edges))
	copy(w.edges, edges)

	w.nodeByID = make(map[NodeID]int, len(w.nodes))
	for i, n := range w.nodes {
		w.nodeByID[n.ID] = i
	}
	w.outgoing = make(map[NodeID][]int)
	for i, e := range w.edges {
		w.outgoing[e.Source] = append(w.outgoing[e.Source], i)
	}

	w.touchLocked()
	return nil
}

// touchLocked advances updatedAt monotonically. Callers hold the write lock.
func (w *Workflow) touchLocked() {
	if now := time.Now(); now.After(w.updatedAt) {
		w.updatedAt = now
	}
}

// UpdateStructure atomically replaces the workflow's name, nodes, and edges.
// Invariants are re-run against the new contents; on failure the workflow is
// left unchanged.
func (w *Workflow) UpdateStructure(name string, nodes []Node, edges []Edge) error {
	w.mu.RLock()
	terminal := w.status.Terminal()
	status := w.status
	w.mu.RUnlock()
	if terminal {
		return fmt.Errorf("%w: cannot modify %s workflow", ErrInvalidState, status)
	}
	return w.replaceStructure(name, nodes, edges)
}

// ID returns the workflow id.
func (w *Workflow) ID() WorkflowID { return w.id }

// OrganizationID returns the owning organization.
func (w *Workflow) OrganizationID() string { return w.organizationID }

// CreatedAt returns when the workflow was constructed.
func (w *Workflow) CreatedAt() time.Time { return w.createdAt }

// Name returns the workflow name.
func (w *Workflow) Name() string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.name
}

// Status returns the current lifecycle status.
func (w *Workflow) Status() WorkflowStatus {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.status
}

// UpdatedAt returns when the workflow last changed. It is monotonic within
// the aggregate.
func (w *Workflow) UpdatedAt() time.Time {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.updatedAt
}

// Nodes returns the nodes in declaration order, defensively copied.
func (w *Workflow) Nodes() []Node {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Node, len(w.nodes))
	for i, n := range w.nodes {
		out[i] = n.clone()
	}
	return out
}

// Edges returns the edges in declaration order, defensively copied.
func (w *Workflow) Edges() []Edge {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Edge, len(w.edges))
	copy(out, w.edges)
	return out
}

// NodeCount returns the number of nodes.
func (w *Workflow) NodeCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.nodes)
}

// EdgeCount returns the number of edges.
func (w *Workflow) EdgeCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.edges)
}

// FindNode returns the node with the given id, if present.
func (w *Workflow) FindNode(id NodeID) (Node, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	i, ok := w.nodeByID[id]
	if !ok {
		return Node{}, false
	}
	return w.nodes[i].clone(), true
}

// StartNodes returns every node with no incoming edge, in declaration order.
func (w *Workflow) StartNodes() []Node {
	w.mu.RLock()
	defer w.mu.RUnlock()
	hasIncoming := make(map[NodeID]bool, len(w.nodes))
	for _, e := range w.edges {
		hasIncoming[e.Target] = true
	}
	var starts []Node
	for _, n := range w.nodes {
		if !hasIncoming[n.ID] {
			starts = append(starts, n.clone())
		}
	}
	return starts
}

// EndNodes returns every node with no outgoing edge, in declaration order.
func (w *Workflow) EndNodes() []Node {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var ends []Node
	for _, n := range w.nodes {
		if len(w.outgoing[n.ID]) == 0 {
			ends = append(ends, n.clone())
		}
	}
	return ends
}

// NextNodes returns the targets of the node's outgoing edges in edge
// declaration order.
func (w *Workflow) NextNodes(id NodeID) []Node {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var next []Node
	for _, ei := range w.outgoing[id] {
		if ni, ok := w.nodeByID[w.edges[ei].Target]; ok {
			next = append(next, w.nodes[ni].clone())
		}
	}
	return next
}

// OutgoingEdges returns the node's outgoing edges in declaration order.
func (w *Workflow) OutgoingEdges(id NodeID) []Edge {
	w.mu.RLock()
	defer w.mu.RUnlock()
	var out []Edge
	for _, ei := range w.outgoing[id] {
		out = append(out, w.edges[ei])
	}
	return out
}

// transition moves the workflow to a new status if the transition table
// allows it.
func (w *Workflow) transition(to WorkflowStatus) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, allowed := range workflowTransitions[w.status] {
		if allowed == to {
			w.status = to
			w.touchLocked()
			return nil
		}
	}
	return fmt.Errorf("%w: workflow %s -> %s", ErrInvalidState, w.status, to)
}

// Activate moves a DRAFT or PAUSED workflow to ACTIVE. Activation re-runs
// the structural invariants.
func (w *Workflow) Activate() error {
	w.mu.RLock()
	errs := checkStructure(w.name, w.nodes, w.edges)
	w.mu.RUnlock()
	if len(errs) > 0 {
		return &InvalidWorkflowError{Errors: errs}
	}
	return w.transition(StatusActive)
}

// Pause moves an ACTIVE workflow to PAUSED.
func (w *Workflow) Pause() error { return w.transition(StatusPaused) }

// Complete moves an ACTIVE or PAUSED workflow to COMPLETED.
func (w *Workflow) Complete() error { return w.transition(StatusCompleted) }

// Fail moves an ACTIVE or PAUSED workflow to FAILED.
func (w *Workflow) Fail() error { return w.transition(StatusFailed) }

// Archive moves a non-terminal workflow to ARCHIVED.
func (w *Workflow) Archive() error { return w.transition(StatusArchived) }
