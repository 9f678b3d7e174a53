package telemetry

import (
	"sync"
	"time"
)

// DefaultWindow is the span of the sliding aggregate windows maintained
// during ingestion.
const DefaultWindow = 60 * time.Second

// WindowAggregate is a snapshot of one (organization, device, metric)
// sliding window.
type WindowAggregate struct {
	Count int
	Min   float64
	Max   float64
	Avg   float64
	Last  float64
}

type windowKey struct {
	org    string
	device DeviceID
	metric string
}

type windowSample struct {
	ts    time.Time
	value float64
}

// WindowSet maintains short sliding-window aggregates per (organization,
// device, metric). The ingestion pipeline feeds it with every accepted
// record; readers take cheap snapshots for recent-aggregate queries.
//
// Samples older than the window span, relative to the newest sample of the
// same key, are evicted on write. The set does not re-order samples: windows
// are only as ordered as the caller's record stream.
type WindowSet struct {
	mu      sync.RWMutex
	span    time.Duration
	samples map[windowKey][]windowSample
}

// NewWindowSet creates a window set with the given span. A non-positive span
// falls back to DefaultWindow.
func NewWindowSet(span time.Duration) *WindowSet {
	if span <= 0 {
		span = DefaultWindow
	}
	return &WindowSet{
		span:    span,
		samples: make(map[windowKey][]windowSample),
	}
}

// Observe folds every numeric metric of the record into its window.
func (w *WindowSet) Observe(d *Data) {
	w.mu.Lock()
	defer w.mu.Unlock()

	for name, v := range d.Metrics() {
		num, err := v.AsNumeric()
		if err != nil {
			continue
		}
		key := windowKey{org: d.OrganizationID(), device: d.DeviceID(), metric: name}
		samples := append(w.samples[key], windowSample{ts: d.Timestamp(), value: num})

		cutoff := samples[len(samples)-1].ts.Add(-w.span)
		start := 0
		for start < len(samples) && samples[start].ts.Before(cutoff) {
			start++
		}
		w.samples[key] = samples[start:]
	}
}

// Snapshot returns the current aggregate for one window, and whether any
// samples are present.
func (w *WindowSet) Snapshot(orgID string, deviceID DeviceID, metric string) (WindowAggregate, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	samples := w.samples[windowKey{org: orgID, device: deviceID, metric: metric}]
	if len(samples) == 0 {
		return WindowAggregate{}, false
	}

	agg := WindowAggregate{
		Count: len(samples),
		Min:   samples[0].value,
		Max:   samples[0].value,
		Last:  samples[len(samples)-1].value,
	}
	sum := 0.0
	for _, s := range samples {
		if s.value < agg.Min {
			agg.Min = s.value
		}
		if s.value > agg.Max {
			agg.Max = s.value
		}
		sum += s.value
	}
	agg.Avg = sum / float64(len(samples))
	return agg, true
}

// Reset drops every window. Used when an organization's data is purged.
func (w *WindowSet) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.samples = make(map[windowKey][]windowSample)
}
