package flow

import (
	"fmt"
	"sync"
	"time"

	"github.com/pulseflow/pulseflow/flow/telemetry"
)

// ExecutionStatus is the state of one live workflow run.
type ExecutionStatus string

const (
	ExecutionRunning   ExecutionStatus = "RUNNING"
	ExecutionPaused    ExecutionStatus = "PAUSED"
	ExecutionWaiting   ExecutionStatus = "WAITING"
	ExecutionCompleted ExecutionStatus = "COMPLETED"
	ExecutionFailed    ExecutionStatus = "FAILED"
	ExecutionCancelled ExecutionStatus = "CANCELLED"
)

// Terminal reports whether this status is absorbing.
func (s ExecutionStatus) Terminal() bool {
	return s == ExecutionCompleted || s == ExecutionFailed || s == ExecutionCancelled
}

var executionTransitions = map[ExecutionStatus][]ExecutionStatus{
	ExecutionRunning: {ExecutionPaused, ExecutionWaiting, ExecutionCompleted, ExecutionFailed, ExecutionCancelled},
	ExecutionPaused:  {ExecutionRunning, ExecutionCompleted, ExecutionFailed, ExecutionCancelled},
	ExecutionWaiting: {ExecutionRunning, ExecutionCompleted, ExecutionFailed, ExecutionCancelled},
}

// Execution is one live run of a workflow against optional trigger data.
// It holds weak references (by id) to its workflow and trigger record, never
// ownership. The context map accumulates node results as the run progresses
// and is exposed only as a defensive copy.
//
// An execution is advanced by one engine worker at a time; its own lock only
// guards status flips and context reads racing that worker (pause, cancel,
// snapshots).
type Execution struct {
	mu sync.Mutex

	id             ExecutionID
	workflowID     WorkflowID
	organizationID string
	status         ExecutionStatus
	currentNodeID  *NodeID
	startedAt      time.Time
	completedAt    *time.Time
	triggerData    *telemetry.Data
	errorMessage   string
	context        map[string]any
	steps          int
}

// NewExecution starts a RUNNING execution for the given workflow.
func NewExecution(workflowID WorkflowID, orgID string, trigger *telemetry.Data) *Execution {
	return &Execution{
		id:             GenerateExecutionID(),
		workflowID:     workflowID,
		organizationID: orgID,
		status:         ExecutionRunning,
		startedAt:      time.Now(),
		triggerData:    trigger,
		context:        make(map[string]any),
	}
}

// ID returns the execution id.
func (e *Execution) ID() ExecutionID { return e.id }

// WorkflowID returns the id of the workflow being run.
func (e *Execution) WorkflowID() WorkflowID { return e.workflowID }

// OrganizationID returns the owning organization.
func (e *Execution) OrganizationID() string { return e.organizationID }

// StartedAt returns when the run began.
func (e *Execution) StartedAt() time.Time { return e.startedAt }

// TriggerData returns the telemetry record that spawned this run, if any.
func (e *Execution) TriggerData() *telemetry.Data { return e.triggerData }

// Status returns the current run status.
func (e *Execution) Status() ExecutionStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// CurrentNodeID returns the node the run is positioned at, or nil before the
// first step.
func (e *Execution) CurrentNodeID() *NodeID {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.currentNodeID == nil {
		return nil
	}
	id := *e.currentNodeID
	return &id
}

// CompletedAt returns when the run reached a terminal status, or nil while
// it is still live.
func (e *Execution) CompletedAt() *time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.completedAt == nil {
		return nil
	}
	t := *e.completedAt
	return &t
}

// ErrorMessage returns the failure description of a FAILED run.
func (e *Execution) ErrorMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errorMessage
}

// Steps returns how many node transitions the run has performed.
func (e *Execution) Steps() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.steps
}

// Duration returns how long the run has been (or was) live.
func (e *Execution) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.completedAt != nil {
		return e.completedAt.Sub(e.startedAt)
	}
	return time.Since(e.startedAt)
}

// Context returns a defensive copy of the execution context.
func (e *Execution) Context() map[string]any {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]any, len(e.context))
	for k, v := range e.context {
		out[k] = v
	}
	return out
}

// ContextValue returns one context entry and whether it exists.
func (e *Execution) ContextValue(key string) (any, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	v, ok := e.context[key]
	return v, ok
}

// setContext records a node result. Called by the engine while holding the
// per-execution step lock.
func (e *Execution) setContext(key string, value any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.context[key] = value
}

// setCurrentNode positions the run at a node.
func (e *Execution) setCurrentNode(id NodeID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.currentNodeID = &id
}

func (e *Execution) countStep() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.steps++
	return e.steps
}

// transition moves the run to a new status if the transition table allows
// it. Terminal statuses record completedAt.
func (e *Execution) transition(to ExecutionStatus) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.transitionLocked(to)
}

func (e *Execution) transitionLocked(to ExecutionStatus) error {
	for _, allowed := range executionTransitions[e.status] {
		if allowed == to {
			e.status = to
			if to.Terminal() {
				now := time.Now()
				e.completedAt = &now
			}
			return nil
		}
	}
	return fmt.Errorf("%w: execution %s -> %s", ErrInvalidState, e.status, to)
}

// Pause suspends a RUNNING execution.
func (e *Execution) Pause() error { return e.transition(ExecutionPaused) }

// Resume returns a PAUSED or WAITING execution to RUNNING.
func (e *Execution) Resume() error { return e.transition(ExecutionRunning) }

// Wait parks a RUNNING execution until external input arrives; the run
// loop yields at the next step boundary and Resume picks it back up.
func (e *Execution) Wait() error { return e.transition(ExecutionWaiting) }

// Cancel moves a non-terminal execution to CANCELLED. The engine observes
// the flip at the next step boundary; in-flight node work is not pre-empted
// but its result is discarded.
func (e *Execution) Cancel() error { return e.transition(ExecutionCancelled) }

// complete marks the run COMPLETED.
func (e *Execution) complete() error { return e.transition(ExecutionCompleted) }

// fail marks the run FAILED with a human-readable message.
func (e *Execution) fail(message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.transitionLocked(ExecutionFailed); err != nil {
		return err
	}
	e.errorMessage = message
	return nil
}
