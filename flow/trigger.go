package flow

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/pulseflow/pulseflow/flow/emit"
	"github.com/pulseflow/pulseflow/flow/telemetry"
)

// Threshold binds a metric comparison to a workflow. When an incoming
// telemetry record violates the comparison, the bridge fires a
// TriggerEvent for the bound workflow.
type Threshold struct {
	ID             string
	OrganizationID string
	WorkflowID     WorkflowID
	MetricName     string
	Condition      telemetry.ThresholdComparison
	Value          float64
	Description    string
}

// Validate checks the threshold's required fields.
func (t Threshold) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("%w: threshold id cannot be empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(t.OrganizationID) == "" {
		return fmt.Errorf("%w: threshold organization id cannot be empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(string(t.WorkflowID)) == "" {
		return fmt.Errorf("%w: threshold workflow id cannot be empty", ErrInvalidArgument)
	}
	if strings.TrimSpace(t.MetricName) == "" {
		return fmt.Errorf("%w: threshold metric name cannot be empty", ErrInvalidArgument)
	}
	if !t.Condition.Valid() {
		return fmt.Errorf("%w: unknown threshold comparison %q", ErrInvalidArgument, t.Condition)
	}
	return nil
}

// TriggerEvent is one threshold violation: the workflow to run and the
// record that tripped it.
type TriggerEvent struct {
	WorkflowID WorkflowID
	Telemetry  *telemetry.Data
	Threshold  Threshold
	Timestamp  time.Time
}

// Bridge matches telemetry records against registered thresholds and turns
// violations into trigger events.
//
// Thresholds are registered per organization; a record is only matched
// against its own organization's thresholds. Reads vastly outnumber
// writes, so the registry is guarded by a reader-writer lock.
type Bridge struct {
	mu         sync.RWMutex
	thresholds map[string][]Threshold

	emitter emit.Emitter
	metrics *PrometheusMetrics
}

// NewBridge creates an empty bridge. A nil emitter drops events.
func NewBridge(emitter emit.Emitter, metrics *PrometheusMetrics) *Bridge {
	if emitter == nil {
		emitter = emit.NullEmitter{}
	}
	return &Bridge{
		thresholds: make(map[string][]Threshold),
		emitter:    emitter,
		metrics:    metrics,
	}
}

// RegisterThreshold adds or replaces a threshold in its organization's
// registry. A threshold with an already-registered id is replaced in
// place.
func (b *Bridge) RegisterThreshold(t Threshold) error {
	if err := t.Validate(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.thresholds[t.OrganizationID]
	for i, existing := range list {
		if existing.ID == t.ID {
			list[i] = t
			return nil
		}
	}
	b.thresholds[t.OrganizationID] = append(list, t)
	return nil
}

// UnregisterThreshold removes a threshold by id.
func (b *Bridge) UnregisterThreshold(orgID, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	list := b.thresholds[orgID]
	for i, existing := range list {
		if existing.ID == id {
			b.thresholds[orgID] = append(list[:i:i], list[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: threshold %s", ErrNotFound, id)
}

// Thresholds returns a copy of one organization's registered thresholds in
// registration order.
func (b *Bridge) Thresholds(orgID string) []Threshold {
	b.mu.RLock()
	defer b.mu.RUnlock()
	list := b.thresholds[orgID]
	out := make([]Threshold, len(list))
	copy(out, list)
	return out
}

// Match evaluates one record against its organization's thresholds and
// returns a trigger event per violated threshold, in registration order.
//
// A threshold whose metric is absent from the record, or present with a
// non-numeric value, is skipped silently. Equality comparisons use the
// package tolerance.
func (b *Bridge) Match(d *telemetry.Data) []TriggerEvent {
	if d == nil {
		return nil
	}

	b.mu.RLock()
	list := b.thresholds[d.OrganizationID()]
	thresholds := make([]Threshold, len(list))
	copy(thresholds, list)
	b.mu.RUnlock()

	var events []TriggerEvent
	for _, t := range thresholds {
		metric, ok := d.Metric(t.MetricName)
		if !ok {
			continue
		}
		value, err := metric.AsNumeric()
		if err != nil {
			continue
		}
		if !t.Condition.Evaluate(value, t.Value) {
			continue
		}

		events = append(events, TriggerEvent{
			WorkflowID: t.WorkflowID,
			Telemetry:  d,
			Threshold:  t,
			Timestamp:  time.Now(),
		})
		b.metrics.TriggerFired()
		b.emitter.Emit(emit.Event{
			WorkflowID: string(t.WorkflowID),
			Msg:        emit.MsgThresholdFired,
			Meta: map[string]any{
				"threshold_id": t.ID,
				"metric":       t.MetricName,
				"value":        value,
				"reference":    t.Value,
				"comparison":   string(t.Condition),
				"device_id":    string(d.DeviceID()),
			},
		})
	}
	return events
}

// Publish matches the record and sends the resulting events to out. It
// blocks when out is full, providing backpressure toward the ingestion
// pipeline.
func (b *Bridge) Publish(d *telemetry.Data, out chan<- TriggerEvent) int {
	events := b.Match(d)
	for _, event := range events {
		out <- event
	}
	return len(events)
}
