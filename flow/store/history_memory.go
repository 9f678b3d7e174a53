package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/pulseflow/pulseflow/flow"
)

// MemoryHistory is an in-memory flow.ExecutionHistory.
//
// Suited to tests and single-process runs; records vanish when the process
// exits. Step records are defensively copied in and out, including their
// context maps.
type MemoryHistory struct {
	mu     sync.RWMutex
	steps  map[flow.ExecutionID][]flow.StepRecord
	closed bool
}

// NewMemoryHistory creates an empty in-memory history.
func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{steps: make(map[flow.ExecutionID][]flow.StepRecord)}
}

// SaveStep records one node transition. A record with an already-saved
// (execution, step) pair replaces the previous one.
func (h *MemoryHistory) SaveStep(_ context.Context, record flow.StepRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}

	record.Context = copyContext(record.Context)
	list := h.steps[record.ExecutionID]
	for i, existing := range list {
		if existing.Step == record.Step {
			list[i] = record
			return nil
		}
	}
	h.steps[record.ExecutionID] = append(list, record)
	return nil
}

// LoadLatest returns the record with the highest step number for the run,
// or flow.ErrNotFound when the run has no recorded steps.
func (h *MemoryHistory) LoadLatest(_ context.Context, id flow.ExecutionID) (*flow.StepRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrClosed
	}

	list := h.steps[id]
	if len(list) == 0 {
		return nil, fmt.Errorf("%w: execution %s", flow.ErrNotFound, id)
	}
	latest := list[0]
	for _, record := range list[1:] {
		if record.Step > latest.Step {
			latest = record
		}
	}
	latest.Context = copyContext(latest.Context)
	return &latest, nil
}

// Steps returns every recorded transition of the run in step order.
func (h *MemoryHistory) Steps(_ context.Context, id flow.ExecutionID) ([]flow.StepRecord, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return nil, ErrClosed
	}

	list := h.steps[id]
	out := make([]flow.StepRecord, len(list))
	copy(out, list)
	sort.Slice(out, func(i, j int) bool { return out[i].Step < out[j].Step })
	for i := range out {
		out[i].Context = copyContext(out[i].Context)
	}
	return out, nil
}

// DeleteRun removes every record of the run. Deleting an unknown run is a
// no-op.
func (h *MemoryHistory) DeleteRun(_ context.Context, id flow.ExecutionID) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	delete(h.steps, id)
	return nil
}

// Close releases the history. Double-close is a no-op.
func (h *MemoryHistory) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	h.steps = nil
	return nil
}

func copyContext(ctx map[string]any) map[string]any {
	if ctx == nil {
		return nil
	}
	out := make(map[string]any, len(ctx))
	for k, v := range ctx {
		out[k] = v
	}
	return out
}
