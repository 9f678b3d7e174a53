package flow

import (
	"context"

	"github.com/pulseflow/pulseflow/flow/emit"
	"github.com/pulseflow/pulseflow/flow/telemetry"
)

// Ingestor is the telemetry ingestion pipeline: it persists records,
// matches them against the threshold bridge, and folds them into the
// rolling windows.
//
// Records are processed independently. A failure on one record (a
// repository error, a full trigger channel after ctx cancellation) is
// reported through the emitter and metrics and never stops the stream.
type Ingestor struct {
	repo    TelemetryRepository
	bridge  *Bridge
	windows *telemetry.WindowSet
	emitter emit.Emitter
	metrics *PrometheusMetrics
}

// NewIngestor wires the pipeline. bridge and windows are optional; a nil
// emitter drops events.
func NewIngestor(repo TelemetryRepository, bridge *Bridge, windows *telemetry.WindowSet, emitter emit.Emitter, metrics *PrometheusMetrics) *Ingestor {
	if emitter == nil {
		emitter = emit.NullEmitter{}
	}
	return &Ingestor{
		repo:    repo,
		bridge:  bridge,
		windows: windows,
		emitter: emitter,
		metrics: metrics,
	}
}

// Ingest processes one record: persist, match thresholds, update windows.
// Located records are stored spatially, the rest as plain time series.
// The returned trigger events are the threshold violations the record
// caused, in threshold registration order.
func (in *Ingestor) Ingest(ctx context.Context, d *telemetry.Data) ([]TriggerEvent, error) {
	if d == nil {
		in.metrics.RecordRejected("nil_record")
		return nil, telemetry.ErrInvalidData
	}

	var err error
	if d.Location() != nil {
		err = in.repo.SaveSpatialData(ctx, d)
	} else {
		err = in.repo.SaveTimeSeries(ctx, d)
	}
	if err != nil {
		in.metrics.RecordRejected("repository")
		in.emitter.Emit(emit.Event{
			Msg: emit.MsgRecordRejected,
			Meta: map[string]any{
				"device_id": string(d.DeviceID()),
				"error":     (&RepositoryError{Op: "Save", Cause: err}).Error(),
			},
		})
		return nil, &RepositoryError{Op: "Save", Cause: err}
	}

	if in.windows != nil {
		in.windows.Observe(d)
	}

	var events []TriggerEvent
	if in.bridge != nil {
		events = in.bridge.Match(d)
	}

	in.metrics.RecordIngested()
	in.emitter.Emit(emit.Event{
		Msg: emit.MsgRecordIngested,
		Meta: map[string]any{
			"device_id": string(d.DeviceID()),
			"metrics":   len(d.Metrics()),
			"triggers":  len(events),
		},
	})
	return events, nil
}

// Run consumes records from the channel until ctx is cancelled or the
// channel closes, forwarding trigger events to out (when non-nil).
// Per-record failures are isolated; the loop never stops on one.
func (in *Ingestor) Run(ctx context.Context, records <-chan *telemetry.Data, out chan<- TriggerEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-records:
			if !ok {
				return
			}
			events, err := in.Ingest(ctx, d)
			if err != nil {
				continue
			}
			if out == nil {
				continue
			}
			for _, event := range events {
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}
