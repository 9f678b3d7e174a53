package telemetry

import (
	"math"
	"testing"
)

func TestNewGeoLocationBounds(t *testing.T) {
	if _, err := NewGeoLocation(90, 180); err != nil {
		t.Errorf("boundary coordinates must be valid: %v", err)
	}
	if _, err := NewGeoLocation(-90, -180); err != nil {
		t.Errorf("boundary coordinates must be valid: %v", err)
	}
	if _, err := NewGeoLocation(90.0001, 0); err == nil {
		t.Error("expected error for latitude out of range")
	}
	if _, err := NewGeoLocation(0, -180.0001); err == nil {
		t.Error("expected error for longitude out of range")
	}
}

func TestDistanceKm(t *testing.T) {
	t.Run("zero to self", func(t *testing.T) {
		p := GeoLocation{Latitude: 52.52, Longitude: 13.405}
		if d := p.DistanceKm(p); d != 0 {
			t.Errorf("distance to self = %v, want 0", d)
		}
	})

	t.Run("berlin to paris", func(t *testing.T) {
		berlin := GeoLocation{Latitude: 52.52, Longitude: 13.405}
		paris := GeoLocation{Latitude: 48.8566, Longitude: 2.3522}
		d := berlin.DistanceKm(paris)
		// Great-circle distance is roughly 878 km.
		if d < 850 || d > 900 {
			t.Errorf("Berlin-Paris distance = %v km, want ~878", d)
		}
	})

	t.Run("symmetric", func(t *testing.T) {
		a := GeoLocation{Latitude: 10, Longitude: 20}
		b := GeoLocation{Latitude: -30, Longitude: 40}
		if math.Abs(a.DistanceKm(b)-b.DistanceKm(a)) > 1e-9 {
			t.Error("distance must be symmetric")
		}
	})
}

func TestBoundingBox(t *testing.T) {
	box, err := NewBoundingBox(10, 20, 30, 40)
	if err != nil {
		t.Fatalf("NewBoundingBox failed: %v", err)
	}

	t.Run("borders included", func(t *testing.T) {
		for _, p := range []GeoLocation{
			{Latitude: 10, Longitude: 20},
			{Latitude: 30, Longitude: 40},
			{Latitude: 10, Longitude: 40},
		} {
			if !box.Contains(p) {
				t.Errorf("expected box to contain border point %+v", p)
			}
		}
	})

	t.Run("outside", func(t *testing.T) {
		if box.Contains(GeoLocation{Latitude: 9.999, Longitude: 30}) {
			t.Error("point below MinLat must be outside")
		}
		if box.Contains(GeoLocation{Latitude: 20, Longitude: 40.001}) {
			t.Error("point past MaxLon must be outside")
		}
	})

	t.Run("center is contained", func(t *testing.T) {
		center := box.Center()
		if center.Latitude != 20 || center.Longitude != 30 {
			t.Errorf("Center() = %+v, want (20, 30)", center)
		}
		if !box.Contains(center) {
			t.Error("box must contain its own center")
		}
	})

	t.Run("inverted corners rejected", func(t *testing.T) {
		if _, err := NewBoundingBox(30, 20, 10, 40); err == nil {
			t.Error("expected error for minLat > maxLat")
		}
		if _, err := NewBoundingBox(10, 40, 30, 20); err == nil {
			t.Error("expected error for minLon > maxLon")
		}
	})
}
