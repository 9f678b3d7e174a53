package flow_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pulseflow/pulseflow/flow"
	"github.com/pulseflow/pulseflow/flow/emit"
	"github.com/pulseflow/pulseflow/flow/store"
	"github.com/pulseflow/pulseflow/flow/telemetry"
)

// failingTelemetryRepo rejects every save. The embedded interface covers
// the methods the ingestor never touches.
type failingTelemetryRepo struct {
	flow.TelemetryRepository
}

func (failingTelemetryRepo) SaveTimeSeries(context.Context, *telemetry.Data) error {
	return errors.New("disk full")
}

func (failingTelemetryRepo) SaveSpatialData(context.Context, *telemetry.Data) error {
	return errors.New("disk full")
}

func locatedRecord(t *testing.T, value float64) *telemetry.Data {
	t.Helper()
	loc, err := telemetry.NewGeoLocation(52.52, 13.405)
	if err != nil {
		t.Fatalf("NewGeoLocation failed: %v", err)
	}
	d, err := telemetry.NewData(telemetry.GenerateTelemetryID(), "sensor-1", "org-1", time.Now(),
		map[string]telemetry.MetricValue{"temperature": telemetry.Numeric(value)}, &loc)
	if err != nil {
		t.Fatalf("NewData failed: %v", err)
	}
	return d
}

func TestIngest(t *testing.T) {
	ctx := context.Background()

	t.Run("plain record stored as time series", func(t *testing.T) {
		repo := store.NewMemoryTelemetryStore()
		in := flow.NewIngestor(repo, nil, nil, nil, nil)

		events, err := in.Ingest(ctx, temperatureRecord(t, 30))
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if len(events) != 0 {
			t.Errorf("no bridge wired, expected no events, got %d", len(events))
		}
		if n, _ := repo.Count(ctx, "org-1"); n != 1 {
			t.Errorf("Count = %d, want 1", n)
		}
	})

	t.Run("located record stored spatially", func(t *testing.T) {
		repo := store.NewMemoryTelemetryStore()
		in := flow.NewIngestor(repo, nil, nil, nil, nil)

		if _, err := in.Ingest(ctx, locatedRecord(t, 30)); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		box, err := telemetry.NewBoundingBox(52, 13, 53, 14)
		if err != nil {
			t.Fatalf("NewBoundingBox failed: %v", err)
		}
		found, err := repo.QuerySpatial(ctx, "org-1", box)
		if err != nil {
			t.Fatalf("QuerySpatial failed: %v", err)
		}
		if len(found) != 1 {
			t.Errorf("expected the record in the spatial index, got %d", len(found))
		}
	})

	t.Run("threshold violations returned", func(t *testing.T) {
		bridge := flow.NewBridge(nil, nil)
		if err := bridge.RegisterThreshold(flow.Threshold{
			ID: "th-1", OrganizationID: "org-1", WorkflowID: "wf-1",
			MetricName: "temperature", Condition: telemetry.CompareGT, Value: 25,
		}); err != nil {
			t.Fatalf("RegisterThreshold failed: %v", err)
		}
		in := flow.NewIngestor(store.NewMemoryTelemetryStore(), bridge, nil, nil, nil)

		events, err := in.Ingest(ctx, temperatureRecord(t, 30))
		if err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if len(events) != 1 || events[0].WorkflowID != "wf-1" {
			t.Errorf("events = %+v, want one for wf-1", events)
		}
	})

	t.Run("windows observed", func(t *testing.T) {
		windows := telemetry.NewWindowSet(time.Minute)
		in := flow.NewIngestor(store.NewMemoryTelemetryStore(), nil, windows, nil, nil)

		if _, err := in.Ingest(ctx, temperatureRecord(t, 30)); err != nil {
			t.Fatalf("Ingest failed: %v", err)
		}
		if _, ok := windows.Snapshot("org-1", "sensor-1", "temperature"); !ok {
			t.Error("expected the record folded into the rolling window")
		}
	})

	t.Run("repository failure surfaces and emits", func(t *testing.T) {
		buffer := emit.NewBufferedEmitter()
		in := flow.NewIngestor(failingTelemetryRepo{}, nil, nil, buffer, nil)

		_, err := in.Ingest(ctx, temperatureRecord(t, 30))
		var repoErr *flow.RepositoryError
		if !errors.As(err, &repoErr) || repoErr.Op != "Save" {
			t.Fatalf("expected RepositoryError for Save, got %v", err)
		}
		rejected := buffer.HistoryWithFilter("", emit.HistoryFilter{Msg: emit.MsgRecordRejected})
		if len(rejected) != 1 {
			t.Errorf("expected one record_rejected event, got %d", len(rejected))
		}
	})

	t.Run("nil record", func(t *testing.T) {
		in := flow.NewIngestor(store.NewMemoryTelemetryStore(), nil, nil, nil, nil)
		if _, err := in.Ingest(ctx, nil); !errors.Is(err, telemetry.ErrInvalidData) {
			t.Errorf("expected ErrInvalidData, got %v", err)
		}
	})
}

func TestIngestorRun(t *testing.T) {
	t.Run("forwards events and survives bad records", func(t *testing.T) {
		bridge := flow.NewBridge(nil, nil)
		if err := bridge.RegisterThreshold(flow.Threshold{
			ID: "th-1", OrganizationID: "org-1", WorkflowID: "wf-1",
			MetricName: "temperature", Condition: telemetry.CompareGT, Value: 25,
		}); err != nil {
			t.Fatalf("RegisterThreshold failed: %v", err)
		}
		repo := store.NewMemoryTelemetryStore()
		in := flow.NewIngestor(repo, bridge, nil, nil, nil)

		records := make(chan *telemetry.Data, 3)
		records <- temperatureRecord(t, 30) // fires
		records <- nil                      // rejected, loop continues
		records <- temperatureRecord(t, 10) // stored, no trigger
		close(records)

		out := make(chan flow.TriggerEvent, 4)
		in.Run(context.Background(), records, out)
		close(out)

		var forwarded []flow.TriggerEvent
		for event := range out {
			forwarded = append(forwarded, event)
		}
		if len(forwarded) != 1 || forwarded[0].WorkflowID != "wf-1" {
			t.Errorf("forwarded = %+v, want one event for wf-1", forwarded)
		}
		if n, _ := repo.Count(context.Background(), "org-1"); n != 2 {
			t.Errorf("Count = %d, want the two valid records stored", n)
		}
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		in := flow.NewIngestor(store.NewMemoryTelemetryStore(), nil, nil, nil, nil)
		records := make(chan *telemetry.Data) // never fed; Run must not block
		done := make(chan struct{})
		go func() {
			in.Run(ctx, records, nil)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Run did not return on cancelled context")
		}
	})
}
