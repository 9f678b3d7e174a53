package flow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pulseflow/pulseflow/flow/condition"
	"github.com/pulseflow/pulseflow/flow/emit"
	"github.com/pulseflow/pulseflow/flow/telemetry"
)

// Engine advances workflow executions node by node.
//
// An engine is safe for concurrent use. Distinct executions advance in
// parallel; a single execution is advanced by one goroutine at a time,
// enforced by a per-execution step lock. Status flips (Pause, Resume,
// Cancel) are observed at step boundaries.
type Engine struct {
	opts    Options
	emitter emit.Emitter
	metrics *PrometheusMetrics
	history ExecutionHistory

	mu         sync.RWMutex
	executions map[ExecutionID]*Execution
	stepLocks  map[ExecutionID]*sync.Mutex
}

// NewEngine creates an engine with the given options. Unset options take
// the package defaults; without WithEmitter events are dropped.
func NewEngine(options ...Option) *Engine {
	cfg := engineConfig{emitter: emit.NullEmitter{}}
	for _, opt := range options {
		opt(&cfg)
	}
	if cfg.emitter == nil {
		cfg.emitter = emit.NullEmitter{}
	}
	return &Engine{
		opts:       cfg.opts.withDefaults(),
		emitter:    cfg.emitter,
		metrics:    cfg.metrics,
		history:    cfg.history,
		executions: make(map[ExecutionID]*Execution),
		stepLocks:  make(map[ExecutionID]*sync.Mutex),
	}
}

// Execute runs a workflow to a terminal status, starting from its first
// declared start node.
//
// The workflow must be ACTIVE; any other status fails the execution
// immediately with "workflow not active". The returned execution is always
// non-nil and registered with the engine, so callers can inspect its
// status, context, and error message even when Execute returns an error.
//
// The run stops early when ctx is cancelled (execution CANCELLED), the
// step cap is exceeded ("step limit exceeded"), or a single step overruns
// its deadline ("step timeout").
func (eng *Engine) Execute(ctx context.Context, w *Workflow, trigger *telemetry.Data) (*Execution, error) {
	exec := NewExecution(w.ID(), w.OrganizationID(), trigger)
	eng.register(exec)

	eng.metrics.ExecutionStarted()
	eng.emitter.Emit(emit.Event{
		ExecutionID: string(exec.ID()),
		WorkflowID:  string(w.ID()),
		Msg:         emit.MsgExecutionStarted,
		Meta:        map[string]any{"workflow_name": w.Name()},
	})

	if w.Status() != StatusActive {
		return exec, eng.failExecution(exec, w, &EngineError{
			Message: "workflow not active",
			Code:    "WORKFLOW_NOT_ACTIVE",
		})
	}

	for eng.CanContinue(exec) {
		select {
		case <-ctx.Done():
			_ = exec.Cancel()
		default:
		}

		switch exec.Status() {
		case ExecutionCancelled:
			eng.metrics.ExecutionFinished(ExecutionCancelled)
			eng.emitter.Emit(emit.Event{
				ExecutionID: string(exec.ID()),
				WorkflowID:  string(w.ID()),
				Step:        exec.Steps(),
				Msg:         emit.MsgExecutionCancelled,
			})
			return exec, nil
		case ExecutionPaused, ExecutionWaiting:
			// Run loop yields; the caller resumes via Resume + Execute
			// semantics or advances manually with ExecuteStep.
			return exec, nil
		}

		if err := eng.ExecuteStep(ctx, w, exec); err != nil {
			return exec, err
		}
	}

	if exec.Status() == ExecutionRunning {
		return exec, eng.failExecution(exec, w, &EngineError{
			Message: ErrStepLimitExceeded.Error(),
			Code:    "STEP_LIMIT_EXCEEDED",
		})
	}

	if exec.Status() == ExecutionCompleted {
		eng.metrics.ExecutionFinished(ExecutionCompleted)
		eng.emitter.Emit(emit.Event{
			ExecutionID: string(exec.ID()),
			WorkflowID:  string(w.ID()),
			Step:        exec.Steps(),
			Msg:         emit.MsgExecutionCompleted,
			Meta:        map[string]any{"duration_ms": exec.Duration().Milliseconds()},
		})
	}
	return exec, nil
}

// ExecuteStep advances the execution by exactly one node transition: it
// runs the current node's behavior, records its results in the execution
// context, and repositions the execution at the routed successor (or
// completes the run at a node with no outgoing edges).
func (eng *Engine) ExecuteStep(ctx context.Context, w *Workflow, exec *Execution) error {
	lock := eng.stepLock(exec.ID())
	lock.Lock()
	defer lock.Unlock()

	if exec.Status() != ExecutionRunning {
		return fmt.Errorf("%w: cannot step %s execution", ErrInvalidState, exec.Status())
	}

	step := exec.countStep()
	if step > eng.opts.MaxSteps {
		return eng.failExecution(exec, w, &EngineError{
			Message: ErrStepLimitExceeded.Error(),
			Code:    "STEP_LIMIT_EXCEEDED",
		})
	}

	node, err := eng.currentNode(w, exec)
	if err != nil {
		return eng.failExecution(exec, w, &EngineError{Message: err.Error(), Code: "NODE_NOT_FOUND"})
	}
	exec.setCurrentNode(node.ID)

	started := time.Now()
	condResult, nodeErr := eng.runNodeWithTimeout(ctx, node, exec)
	elapsed := time.Since(started)
	eng.metrics.StepObserved(node.Type, elapsed, nodeErr != nil)

	if nodeErr != nil {
		return eng.failExecution(exec, w, nodeErr)
	}

	eng.emitter.Emit(emit.Event{
		ExecutionID: string(exec.ID()),
		WorkflowID:  string(w.ID()),
		Step:        step,
		NodeID:      string(node.ID),
		Msg:         emit.MsgNodeCompleted,
		Meta: map[string]any{
			"node_type":   string(node.Type),
			"duration_ms": elapsed.Milliseconds(),
		},
	})

	if node.Type == NodeEnd {
		eng.saveStep(ctx, exec, node.ID)
		return exec.complete()
	}

	next, routed := eng.route(w, node, exec, condResult)
	eng.saveStep(ctx, exec, node.ID)
	if !routed {
		return exec.complete()
	}
	exec.setCurrentNode(next)
	return nil
}

// CanContinue reports whether the execution is RUNNING and under the step
// cap.
func (eng *Engine) CanContinue(exec *Execution) bool {
	return exec.Status() == ExecutionRunning && exec.Steps() < eng.opts.MaxSteps
}

// PossibleNextNodes predicts the successors of a node. For a DECISION or
// CONDITION node with available trigger data it evaluates the conditions
// and returns the single routed successor; in every other case it returns
// all direct successors in edge declaration order.
func (eng *Engine) PossibleNextNodes(w *Workflow, nodeID NodeID, record *telemetry.Data) ([]Node, error) {
	node, ok := w.FindNode(nodeID)
	if !ok {
		return nil, fmt.Errorf("%w: node %s", ErrNotFound, nodeID)
	}

	if node.RequiresConditions() && record != nil {
		raw, has := node.Conditions()
		if !has {
			return nil, &EngineError{
				Message: fmt.Sprintf("Decision node %s has no conditions", node.ID),
				Code:    "MISSING_CONDITIONS",
			}
		}
		result, err := condition.EvaluateRaw(raw, record)
		if err != nil {
			return nil, &EngineError{
				Message: fmt.Sprintf("node %s: %s", node.ID, err.Error()),
				Code:    "CONDITION_EVALUATION_FAILED",
			}
		}
		if target, ok := routeConditional(w, node.ID, result); ok {
			if n, found := w.FindNode(target); found {
				return []Node{n}, nil
			}
		}
		// No matching conditional edge: execution would fall back to the
		// first declared outgoing edge, so predict the same.
		if edges := w.OutgoingEdges(node.ID); len(edges) > 0 {
			if n, found := w.FindNode(edges[0].Target); found {
				return []Node{n}, nil
			}
		}
		return nil, nil
	}

	return w.NextNodes(node.ID), nil
}

// Pause suspends a RUNNING execution at the next step boundary.
func (eng *Engine) Pause(id ExecutionID) error {
	exec, err := eng.Execution(id)
	if err != nil {
		return err
	}
	return exec.Pause()
}

// Resume returns a PAUSED or WAITING execution to RUNNING. The run does
// not advance by itself afterwards; drive it with ExecuteStep or Execute.
func (eng *Engine) Resume(id ExecutionID) error {
	exec, err := eng.Execution(id)
	if err != nil {
		return err
	}
	return exec.Resume()
}

// Wait parks a RUNNING execution in WAITING until external input (an
// approval, a follow-up reading) arrives; Resume returns it to RUNNING.
func (eng *Engine) Wait(id ExecutionID) error {
	exec, err := eng.Execution(id)
	if err != nil {
		return err
	}
	return exec.Wait()
}

// Cancel moves a live execution to CANCELLED. A run loop observes the flip
// at its next step boundary.
func (eng *Engine) Cancel(id ExecutionID) error {
	exec, err := eng.Execution(id)
	if err != nil {
		return err
	}
	return exec.Cancel()
}

// Execution returns a registered execution by id.
func (eng *Engine) Execution(id ExecutionID) (*Execution, error) {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	exec, ok := eng.executions[id]
	if !ok {
		return nil, fmt.Errorf("%w: execution %s", ErrNotFound, id)
	}
	return exec, nil
}

// Executions returns a snapshot of every registered execution.
func (eng *Engine) Executions() []*Execution {
	eng.mu.RLock()
	defer eng.mu.RUnlock()
	out := make([]*Execution, 0, len(eng.executions))
	for _, exec := range eng.executions {
		out = append(out, exec)
	}
	return out
}

// ServeTriggers consumes trigger events and executes the referenced
// workflows on a bounded worker pool of MaxConcurrent goroutines. It
// returns when ctx is cancelled or the channel closes, after in-flight
// executions finish.
//
// Failures on one event (unknown workflow, failing execution) never stop
// the pool; they are emitted and counted.
func (eng *Engine) ServeTriggers(ctx context.Context, events <-chan TriggerEvent, workflows WorkflowRepository) {
	var wg sync.WaitGroup
	sem := make(chan struct{}, eng.opts.MaxConcurrent)

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case event, ok := <-events:
			if !ok {
				wg.Wait()
				return
			}
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				wg.Wait()
				return
			}
			wg.Add(1)
			go func(ev TriggerEvent) {
				defer wg.Done()
				defer func() { <-sem }()
				eng.serveTrigger(ctx, ev, workflows)
			}(event)
		}
	}
}

func (eng *Engine) serveTrigger(ctx context.Context, event TriggerEvent, workflows WorkflowRepository) {
	w, err := workflows.FindByID(ctx, event.WorkflowID)
	if err != nil {
		eng.emitter.Emit(emit.Event{
			WorkflowID: string(event.WorkflowID),
			Msg:        emit.MsgExecutionFailed,
			Meta:       map[string]any{"error": (&RepositoryError{Op: "FindByID", Cause: err}).Error()},
		})
		return
	}
	_, _ = eng.Execute(ctx, w, event.Telemetry)
}

// currentNode resolves the node the execution is positioned at, defaulting
// to the first declared start node before the first step.
func (eng *Engine) currentNode(w *Workflow, exec *Execution) (Node, error) {
	if id := exec.CurrentNodeID(); id != nil {
		node, ok := w.FindNode(*id)
		if !ok {
			return Node{}, fmt.Errorf("%w: node %s", ErrNotFound, *id)
		}
		return node, nil
	}
	starts := w.StartNodes()
	if len(starts) == 0 {
		return Node{}, fmt.Errorf("%w: workflow has no start node", ErrNotFound)
	}
	return starts[0], nil
}

// runNodeWithTimeout executes the node's behavior under the step deadline.
// The boolean result is meaningful only for DECISION and CONDITION nodes.
func (eng *Engine) runNodeWithTimeout(ctx context.Context, node Node, exec *Execution) (bool, *EngineError) {
	stepCtx, cancel := context.WithTimeout(ctx, eng.opts.StepTimeout)
	defer cancel()

	type outcome struct {
		result bool
		err    *EngineError
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := eng.runNode(node, exec)
		done <- outcome{result: result, err: err}
	}()

	select {
	case out := <-done:
		return out.result, out.err
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			return false, &EngineError{Message: ctx.Err().Error(), Code: "CONTEXT_CANCELLED"}
		}
		return false, &EngineError{Message: ErrStepTimeout.Error(), Code: "STEP_TIMEOUT"}
	}
}

func (eng *Engine) runNode(node Node, exec *Execution) (bool, *EngineError) {
	switch node.Type {
	case NodeStart, NodeEnd, NodeInput, NodeOutput:
		return false, nil

	case NodeTask:
		exec.setContext("task_result", fmt.Sprintf("Task %s executed", nodePayload(node, "task")))
		return false, nil

	case NodeAction:
		exec.setContext("action_result", fmt.Sprintf("Action %s executed", nodePayload(node, "action")))
		return false, nil

	case NodeDecision, NodeCondition:
		raw, has := node.Conditions()
		if !has {
			return false, &EngineError{
				Message: fmt.Sprintf("Decision node %s has no conditions", node.ID),
				Code:    "MISSING_CONDITIONS",
			}
		}
		result, err := condition.EvaluateRaw(raw, exec.TriggerData())
		if err != nil {
			return false, &EngineError{
				Message: fmt.Sprintf("node %s: %s", node.ID, err.Error()),
				Code:    "CONDITION_EVALUATION_FAILED",
			}
		}
		exec.setContext("condition_result_"+string(node.ID), result)
		exec.setContext("condition_evaluation_time", time.Now().UTC().Format(time.RFC3339))
		eng.metrics.ConditionEvaluated(result)
		eng.emitter.Emit(emit.Event{
			ExecutionID: string(exec.ID()),
			WorkflowID:  string(exec.WorkflowID()),
			Step:        exec.Steps(),
			NodeID:      string(node.ID),
			Msg:         emit.MsgConditionEvaluated,
			Meta:        map[string]any{"condition_result": result},
		})
		return result, nil

	default:
		return false, &EngineError{
			Message: fmt.Sprintf("node %s has unsupported type %s", node.ID, node.Type),
			Code:    "UNSUPPORTED_NODE_TYPE",
		}
	}
}

// route selects the successor of a node. DECISION and CONDITION nodes
// follow the first outgoing edge whose type matches the evaluation result,
// recording the routing decision in the execution context; everything
// else (and a decision with no matching conditional edge) follows the
// first declared outgoing edge. A node with no outgoing edges completes
// the run.
func (eng *Engine) route(w *Workflow, node Node, exec *Execution, condResult bool) (NodeID, bool) {
	if node.RequiresConditions() {
		label := "FALSE"
		if condResult {
			label = "TRUE"
		}
		if target, ok := routeConditional(w, node.ID, condResult); ok {
			exec.setContext("routing_decision", fmt.Sprintf("Condition %s -> Node %s", label, target))
			return target, true
		}
		if edges := w.OutgoingEdges(node.ID); len(edges) > 0 {
			exec.setContext("routing_decision",
				fmt.Sprintf("Condition %s -> Node %s (default edge)", label, edges[0].Target))
			return edges[0].Target, true
		}
		return "", false
	}
	edges := w.OutgoingEdges(node.ID)
	if len(edges) == 0 {
		return "", false
	}
	return edges[0].Target, true
}

// routeConditional finds the first outgoing edge matching the condition
// result, in edge declaration order.
func routeConditional(w *Workflow, id NodeID, result bool) (NodeID, bool) {
	want := EdgeConditionalFalse
	if result {
		want = EdgeConditionalTrue
	}
	for _, e := range w.OutgoingEdges(id) {
		if e.Type == want {
			return e.Target, true
		}
	}
	return "", false
}

// failExecution fails the run and reports it through metrics, events, and
// the returned error. The EngineError is returned as-is so callers can
// inspect its code.
func (eng *Engine) failExecution(exec *Execution, w *Workflow, engErr *EngineError) error {
	_ = exec.fail(engErr.Message)
	eng.metrics.ExecutionFinished(ExecutionFailed)
	eng.emitter.Emit(emit.Event{
		ExecutionID: string(exec.ID()),
		WorkflowID:  string(w.ID()),
		Step:        exec.Steps(),
		Msg:         emit.MsgExecutionFailed,
		Meta:        map[string]any{"error": engErr.Message},
	})
	return engErr
}

// saveStep persists the node transition when a history store is
// configured. History failures are reported, never fatal.
func (eng *Engine) saveStep(ctx context.Context, exec *Execution, nodeID NodeID) {
	if eng.history == nil {
		return
	}
	record := StepRecord{
		ExecutionID: exec.ID(),
		Step:        exec.Steps(),
		NodeID:      nodeID,
		Status:      exec.Status(),
		Context:     exec.Context(),
		CreatedAt:   time.Now(),
	}
	if err := eng.history.SaveStep(ctx, record); err != nil {
		eng.emitter.Emit(emit.Event{
			ExecutionID: string(exec.ID()),
			Step:        record.Step,
			NodeID:      string(nodeID),
			Msg:         emit.MsgNodeCompleted,
			Meta:        map[string]any{"error": (&RepositoryError{Op: "SaveStep", Cause: err}).Error()},
		})
	}
}

func (eng *Engine) register(exec *Execution) {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	eng.executions[exec.ID()] = exec
	eng.stepLocks[exec.ID()] = &sync.Mutex{}
}

func (eng *Engine) stepLock(id ExecutionID) *sync.Mutex {
	eng.mu.Lock()
	defer eng.mu.Unlock()
	lock, ok := eng.stepLocks[id]
	if !ok {
		lock = &sync.Mutex{}
		eng.stepLocks[id] = lock
	}
	return lock
}

func nodeName(node Node) string {
	if node.Label != "" {
		return node.Label
	}
	return string(node.ID)
}

// nodePayload returns the node's configured payload under key, falling
// back to the node's display name when the key is absent or not a string.
func nodePayload(node Node, key string) string {
	if raw, ok := node.Configuration[key]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return s
		}
	}
	return nodeName(node)
}
