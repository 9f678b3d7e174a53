package telemetry

import (
	"fmt"
	"math"
)

const earthRadiusKm = 6371.0

// GeoLocation is a WGS84 coordinate pair.
type GeoLocation struct {
	Latitude  float64
	Longitude float64
}

// NewGeoLocation validates and constructs a coordinate pair. Latitude must be
// in [-90, 90] and longitude in [-180, 180].
func NewGeoLocation(lat, lon float64) (GeoLocation, error) {
	if lat < -90 || lat > 90 {
		return GeoLocation{}, fmt.Errorf("%w: latitude %v out of range [-90, 90]", ErrInvalidQuery, lat)
	}
	if lon < -180 || lon > 180 {
		return GeoLocation{}, fmt.Errorf("%w: longitude %v out of range [-180, 180]", ErrInvalidQuery, lon)
	}
	return GeoLocation{Latitude: lat, Longitude: lon}, nil
}

// DistanceKm returns the great-circle distance to other using the haversine
// formula.
func (g GeoLocation) DistanceKm(other GeoLocation) float64 {
	lat1 := g.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - g.Latitude) * math.Pi / 180
	dLon := (other.Longitude - g.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return earthRadiusKm * 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
}

// BoundingBox is an axis-aligned latitude/longitude rectangle.
type BoundingBox struct {
	MinLat float64
	MinLon float64
	MaxLat float64
	MaxLon float64
}

// NewBoundingBox validates and constructs a bounding box. Both corners must
// be valid coordinates and min must not exceed max on either axis.
func NewBoundingBox(minLat, minLon, maxLat, maxLon float64) (BoundingBox, error) {
	if _, err := NewGeoLocation(minLat, minLon); err != nil {
		return BoundingBox{}, err
	}
	if _, err := NewGeoLocation(maxLat, maxLon); err != nil {
		return BoundingBox{}, err
	}
	if minLat > maxLat {
		return BoundingBox{}, fmt.Errorf("%w: minLat %v > maxLat %v", ErrInvalidQuery, minLat, maxLat)
	}
	if minLon > maxLon {
		return BoundingBox{}, fmt.Errorf("%w: minLon %v > maxLon %v", ErrInvalidQuery, minLon, maxLon)
	}
	return BoundingBox{MinLat: minLat, MinLon: minLon, MaxLat: maxLat, MaxLon: maxLon}, nil
}

// Contains reports whether p lies inside the box, borders included.
func (b BoundingBox) Contains(p GeoLocation) bool {
	return p.Latitude >= b.MinLat && p.Latitude <= b.MaxLat &&
		p.Longitude >= b.MinLon && p.Longitude <= b.MaxLon
}

// Center returns the midpoint of the box. For any box b, b.Contains(b.Center())
// holds.
func (b BoundingBox) Center() GeoLocation {
	return GeoLocation{
		Latitude:  (b.MinLat + b.MaxLat) / 2,
		Longitude: (b.MinLon + b.MaxLon) / 2,
	}
}
