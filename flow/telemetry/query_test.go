package telemetry

import (
	"errors"
	"testing"
	"time"
)

func TestNewQueryInvariants(t *testing.T) {
	now := time.Now()
	center := GeoLocation{Latitude: 10, Longitude: 10}
	box := BoundingBox{MinLat: 0, MinLon: 0, MaxLat: 20, MaxLon: 20}

	t.Run("organization required", func(t *testing.T) {
		if _, err := NewQuery(""); !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery, got %v", err)
		}
	})

	t.Run("inverted time range rejected", func(t *testing.T) {
		_, err := NewQuery("org-1", WithTimeRange(now, now.Add(-time.Hour)))
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery, got %v", err)
		}
	})

	t.Run("radius and box are exclusive", func(t *testing.T) {
		_, err := NewQuery("org-1", WithRadius(center, 5), WithBoundingBox(box))
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery, got %v", err)
		}
	})

	t.Run("negative radius rejected", func(t *testing.T) {
		_, err := NewQuery("org-1", WithRadius(center, -1))
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery, got %v", err)
		}
	})

	t.Run("negative limit rejected", func(t *testing.T) {
		_, err := NewQuery("org-1", WithLimit(-1))
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery, got %v", err)
		}
	})

	t.Run("explicit zero limit rejected", func(t *testing.T) {
		_, err := NewQuery("org-1", WithLimit(0))
		if !errors.Is(err, ErrInvalidQuery) {
			t.Errorf("expected ErrInvalidQuery, got %v", err)
		}
	})

	t.Run("unset limit stays unlimited", func(t *testing.T) {
		q, err := NewQuery("org-1")
		if err != nil {
			t.Fatalf("NewQuery failed: %v", err)
		}
		if q.Limit != 0 {
			t.Errorf("Limit = %d, want 0 when never set", q.Limit)
		}
	})

	t.Run("full query accepted", func(t *testing.T) {
		q, err := NewQuery("org-1",
			WithDevices("sensor-1"),
			WithTimeRange(now.Add(-time.Hour), now),
			WithMetrics("temperature"),
			WithBoundingBox(box),
			WithAggregation(AggregateAvg),
			WithLimit(100),
		)
		if err != nil {
			t.Fatalf("NewQuery failed: %v", err)
		}
		if q.Limit != 100 || q.Aggregation == nil || *q.Aggregation != AggregateAvg {
			t.Errorf("unexpected query: %+v", q)
		}
	})
}

func TestQueryMatches(t *testing.T) {
	now := time.Now()
	loc := GeoLocation{Latitude: 10, Longitude: 10}
	d, err := NewData("tel-1", "sensor-1", "org-1", now, map[string]MetricValue{"temperature": Numeric(20)}, &loc)
	if err != nil {
		t.Fatalf("NewData failed: %v", err)
	}

	t.Run("wrong organization", func(t *testing.T) {
		q, _ := NewQuery("org-2")
		if q.Matches(d) {
			t.Error("record from another organization must not match")
		}
	})

	t.Run("device filter", func(t *testing.T) {
		q, _ := NewQuery("org-1", WithDevices("sensor-2"))
		if q.Matches(d) {
			t.Error("record from unlisted device must not match")
		}
		q, _ = NewQuery("org-1", WithDevices("sensor-2", "sensor-1"))
		if !q.Matches(d) {
			t.Error("record from listed device must match")
		}
	})

	t.Run("time range boundaries inclusive", func(t *testing.T) {
		q, _ := NewQuery("org-1", WithTimeRange(now, now))
		if !q.Matches(d) {
			t.Error("record on the range boundary must match")
		}
	})

	t.Run("metric filter", func(t *testing.T) {
		q, _ := NewQuery("org-1", WithMetrics("pressure"))
		if q.Matches(d) {
			t.Error("record without the metric must not match")
		}
	})

	t.Run("radius filter", func(t *testing.T) {
		q, _ := NewQuery("org-1", WithRadius(GeoLocation{Latitude: 10, Longitude: 10.01}, 5))
		if !q.Matches(d) {
			t.Error("record inside the radius must match")
		}
		q, _ = NewQuery("org-1", WithRadius(GeoLocation{Latitude: 50, Longitude: 50}, 5))
		if q.Matches(d) {
			t.Error("record outside the radius must not match")
		}
	})

	t.Run("unlocated record fails spatial filters", func(t *testing.T) {
		plain, _ := NewData("tel-2", "sensor-1", "org-1", now, map[string]MetricValue{"temperature": Numeric(20)}, nil)
		q, _ := NewQuery("org-1", WithBoundingBox(BoundingBox{MinLat: -90, MinLon: -180, MaxLat: 90, MaxLon: 180}))
		if q.Matches(plain) {
			t.Error("record without location must not match a spatial query")
		}
	})
}

func TestThresholdComparison(t *testing.T) {
	cases := []struct {
		name      string
		cmp       ThresholdComparison
		value     float64
		reference float64
		want      bool
	}{
		{"gt", CompareGT, 2, 1, true},
		{"gt equal", CompareGT, 1, 1, false},
		{"lt", CompareLT, 0.5, 1, true},
		{"gte equal", CompareGTE, 1, 1, true},
		{"lte", CompareLTE, 1.5, 1, false},
		{"eq within tolerance", CompareEQ, 1.0004, 1.0, true},
		{"eq outside tolerance", CompareEQ, 1.002, 1.0, false},
		{"ne within tolerance", CompareNE, 1.0004, 1.0, false},
		{"ne outside tolerance", CompareNE, 1.002, 1.0, true},
		{"unknown comparison", ThresholdComparison("ABOVE"), 2, 1, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.cmp.Evaluate(tc.value, tc.reference); got != tc.want {
				t.Errorf("%s.Evaluate(%v, %v) = %v, want %v", tc.cmp, tc.value, tc.reference, got, tc.want)
			}
		})
	}
}

func TestThresholdComparisonValid(t *testing.T) {
	for _, cmp := range []ThresholdComparison{CompareGT, CompareLT, CompareEQ, CompareNE, CompareGTE, CompareLTE} {
		if !cmp.Valid() {
			t.Errorf("%s must be valid", cmp)
		}
	}
	if ThresholdComparison("ABOVE").Valid() {
		t.Error("unknown comparison must be invalid")
	}
}
