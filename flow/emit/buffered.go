package emit

import "sync"

// BufferedEmitter captures events in memory, organized per execution, and
// offers query access for inspection.
//
// Intended for development, testing, and post-execution analysis. Everything
// stays in memory; clear finished executions when event volume matters.
type BufferedEmitter struct {
	mu     sync.RWMutex
	events map[string][]Event // executionID -> events, emission order
}

// HistoryFilter selects a subset of an execution's events. Set fields are
// combined with AND; zero values mean "no filter".
type HistoryFilter struct {
	NodeID  string
	Msg     string
	MinStep *int
	MaxStep *int
}

// NewBufferedEmitter creates an empty BufferedEmitter.
func NewBufferedEmitter() *BufferedEmitter {
	return &BufferedEmitter{events: make(map[string][]Event)}
}

// Emit stores the event under its execution id.
func (b *BufferedEmitter) Emit(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events[event.ExecutionID] = append(b.events[event.ExecutionID], event)
}

// History returns all events of one execution in emission order.
func (b *BufferedEmitter) History(executionID string) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()
	events := b.events[executionID]
	result := make([]Event, len(events))
	copy(result, events)
	return result
}

// HistoryWithFilter returns the execution's events matching the filter, in
// emission order.
func (b *BufferedEmitter) HistoryWithFilter(executionID string, filter HistoryFilter) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := []Event{}
	for _, event := range b.events[executionID] {
		if filter.NodeID != "" && event.NodeID != filter.NodeID {
			continue
		}
		if filter.Msg != "" && event.Msg != filter.Msg {
			continue
		}
		if filter.MinStep != nil && event.Step < *filter.MinStep {
			continue
		}
		if filter.MaxStep != nil && event.Step > *filter.MaxStep {
			continue
		}
		result = append(result, event)
	}
	return result
}

// Clear drops one execution's events, or every event when executionID is
// empty.
func (b *BufferedEmitter) Clear(executionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if executionID == "" {
		b.events = make(map[string][]Event)
		return
	}
	delete(b.events, executionID)
}
