// Package emit defines the observability event model and pluggable emitters
// for the execution engine and ingestion pipeline.
package emit

// Common event messages emitted by the engine and the ingestion pipeline.
const (
	MsgExecutionStarted   = "execution_started"
	MsgExecutionCompleted = "execution_completed"
	MsgExecutionFailed    = "execution_failed"
	MsgExecutionCancelled = "execution_cancelled"
	MsgNodeCompleted      = "node_completed"
	MsgConditionEvaluated = "condition_evaluated"
	MsgThresholdFired     = "threshold_fired"
	MsgRecordIngested     = "record_ingested"
	MsgRecordRejected     = "record_rejected"
)

// Event is one observability event from workflow execution or telemetry
// ingestion.
//
// Events flow to an Emitter, which can log them, convert them to tracing
// spans, buffer them for inspection, or drop them.
type Event struct {
	// ExecutionID identifies the workflow run that emitted this event.
	// Empty for ingestion-level events.
	ExecutionID string

	// WorkflowID identifies the workflow definition involved, if any.
	WorkflowID string

	// Step is the sequential node transition number within the run
	// (1-indexed). Zero for run-level and ingestion events.
	Step int

	// NodeID identifies the node the event concerns. Empty for run-level
	// events.
	NodeID string

	// Msg names the event, typically one of the Msg constants.
	Msg string

	// Meta carries additional structured data. Common keys:
	//   - "duration_ms": step duration in milliseconds
	//   - "error": failure details
	//   - "condition_result": boolean outcome at a decision node
	//   - "routing_decision": chosen successor description
	//   - "device_id", "metric": telemetry identifiers
	Meta map[string]any
}
