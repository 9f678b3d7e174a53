package telemetry

import (
	"context"
	"math"
	"testing"
	"time"
)

func seriesRecords(t *testing.T, values []float64) []*Data {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	records := make([]*Data, len(values))
	for i, v := range values {
		d, err := NewData(GenerateTelemetryID(), "sensor-1", "org-1",
			base.Add(time.Duration(i)*time.Second),
			map[string]MetricValue{"temperature": Numeric(v)}, nil)
		if err != nil {
			t.Fatalf("NewData failed: %v", err)
		}
		records[i] = d
	}
	return records
}

func TestSummarizeStats(t *testing.T) {
	records := seriesRecords(t, []float64{10, 20, 30, 40, 50})
	q := &Query{OrganizationID: "org-1"}

	analysis := Summarize(q, records)
	stats, ok := analysis.Metrics["temperature"]
	if !ok {
		t.Fatal("expected temperature stats")
	}
	if stats.Min != 10 || stats.Max != 50 || stats.Avg != 30 || stats.Count != 5 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	// Population standard deviation of {10..50 step 10} is sqrt(200).
	if math.Abs(stats.StdDev-math.Sqrt(200)) > 1e-9 {
		t.Errorf("StdDev = %v, want %v", stats.StdDev, math.Sqrt(200))
	}

	t.Run("percentiles interpolate linearly", func(t *testing.T) {
		if got := stats.Percentiles[50]; got != 30 {
			t.Errorf("p50 = %v, want 30", got)
		}
		if got := stats.Percentiles[25]; got != 20 {
			t.Errorf("p25 = %v, want 20", got)
		}
		// p95 over 5 samples: rank 3.8 between 40 and 50.
		if got := stats.Percentiles[95]; math.Abs(got-48) > 1e-9 {
			t.Errorf("p95 = %v, want 48", got)
		}
	})
}

func TestSummarizeDeterministic(t *testing.T) {
	records := seriesRecords(t, []float64{5, 1, 4, 2, 3})
	q := &Query{OrganizationID: "org-1"}

	a := Summarize(q, records)
	// Reversed input order must produce the same analysis.
	reversed := make([]*Data, len(records))
	for i, d := range records {
		reversed[len(records)-1-i] = d
	}
	b := Summarize(q, reversed)

	if a.Metrics["temperature"].Avg != b.Metrics["temperature"].Avg {
		t.Error("analysis must not depend on input order")
	}
	if len(a.Trends) != len(b.Trends) || a.Trends[0].Slope != b.Trends[0].Slope {
		t.Error("trend must not depend on input order")
	}
}

func TestSummarizeAnomalies(t *testing.T) {
	// A tight cluster plus one wild outlier.
	values := make([]float64, 30)
	for i := range values {
		values[i] = 20 + float64(i%3)*0.1
	}
	values[15] = 500

	analysis := Summarize(&Query{OrganizationID: "org-1"}, seriesRecords(t, values))
	if len(analysis.Anomalies) != 1 {
		t.Fatalf("expected exactly 1 anomaly, got %d", len(analysis.Anomalies))
	}
	anomaly := analysis.Anomalies[0]
	if anomaly.Value != 500 || anomaly.Metric != "temperature" {
		t.Errorf("unexpected anomaly: %+v", anomaly)
	}
	if math.Abs(anomaly.ZScore) <= 3 {
		t.Errorf("anomaly z-score %v must exceed 3", anomaly.ZScore)
	}
}

func TestSummarizeTrends(t *testing.T) {
	t.Run("rising", func(t *testing.T) {
		analysis := Summarize(&Query{OrganizationID: "org-1"}, seriesRecords(t, []float64{10, 20, 30, 40}))
		if analysis.Trends[0].Direction != TrendRising {
			t.Errorf("direction = %v, want RISING", analysis.Trends[0].Direction)
		}
	})

	t.Run("falling", func(t *testing.T) {
		analysis := Summarize(&Query{OrganizationID: "org-1"}, seriesRecords(t, []float64{40, 30, 20, 10}))
		if analysis.Trends[0].Direction != TrendFalling {
			t.Errorf("direction = %v, want FALLING", analysis.Trends[0].Direction)
		}
	})

	t.Run("stable", func(t *testing.T) {
		analysis := Summarize(&Query{OrganizationID: "org-1"}, seriesRecords(t, []float64{100, 100.1, 99.9, 100}))
		if analysis.Trends[0].Direction != TrendStable {
			t.Errorf("direction = %v, want STABLE", analysis.Trends[0].Direction)
		}
	})

	t.Run("single sample is stable", func(t *testing.T) {
		analysis := Summarize(&Query{OrganizationID: "org-1"}, seriesRecords(t, []float64{42}))
		if analysis.Trends[0].Direction != TrendStable {
			t.Errorf("direction = %v, want STABLE", analysis.Trends[0].Direction)
		}
	})
}

func TestAnalyzerCache(t *testing.T) {
	records := seriesRecords(t, []float64{10, 20, 30})
	fetches := 0
	analyzer := NewAnalyzer(func(_ context.Context, _ *Query) ([]*Data, error) {
		fetches++
		return records, nil
	})
	defer analyzer.Close()

	clock := time.Now()
	analyzer.now = func() time.Time { return clock }

	q := &Query{OrganizationID: "org-1"}
	if _, err := analyzer.Analyze(context.Background(), q); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if _, err := analyzer.Analyze(context.Background(), q); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if fetches != 1 {
		t.Errorf("expected cache hit on second call, fetched %d times", fetches)
	}

	// A different query shape misses the cache.
	other := &Query{OrganizationID: "org-1", MetricNames: []string{"temperature"}}
	if _, err := analyzer.Analyze(context.Background(), other); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if fetches != 2 {
		t.Errorf("expected cache miss for different query, fetched %d times", fetches)
	}

	// After the TTL the entry expires.
	clock = clock.Add(31 * time.Second)
	if _, err := analyzer.Analyze(context.Background(), q); err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if fetches != 3 {
		t.Errorf("expected refetch after TTL, fetched %d times", fetches)
	}
}

func TestAnalyzerClosed(t *testing.T) {
	analyzer := NewAnalyzer(func(_ context.Context, _ *Query) ([]*Data, error) { return nil, nil })
	analyzer.Close()
	if _, err := analyzer.Analyze(context.Background(), &Query{OrganizationID: "org-1"}); err == nil {
		t.Error("expected error from closed analyzer")
	}
}
