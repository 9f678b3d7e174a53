package telemetry

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrInvalidQuery indicates a query that violates its construction
// invariants: an inverted time range, a non-positive radius or limit, or a
// half-specified spatial filter.
var ErrInvalidQuery = errors.New("invalid telemetry query")

// AggregationType selects how queried readings are folded into a single
// value per time bucket.
type AggregationType string

const (
	AggregateAvg   AggregationType = "AVG"
	AggregateMin   AggregationType = "MIN"
	AggregateMax   AggregationType = "MAX"
	AggregateSum   AggregationType = "SUM"
	AggregateCount AggregationType = "COUNT"
)

// ThresholdComparison is the comparator applied between a metric reading and
// a threshold value.
type ThresholdComparison string

const (
	CompareGT  ThresholdComparison = "GT"
	CompareLT  ThresholdComparison = "LT"
	CompareEQ  ThresholdComparison = "EQ"
	CompareNE  ThresholdComparison = "NE"
	CompareGTE ThresholdComparison = "GTE"
	CompareLTE ThresholdComparison = "LTE"
)

// EqualityTolerance is the absolute tolerance used by EQ and NE comparisons.
// Readings are floats sampled at 10 Hz; exact equality is meaningless.
const EqualityTolerance = 1e-3

// Valid reports whether c names a known comparison.
func (c ThresholdComparison) Valid() bool {
	switch c {
	case CompareGT, CompareLT, CompareEQ, CompareNE, CompareGTE, CompareLTE:
		return true
	default:
		return false
	}
}

// Evaluate applies the comparison between a reading and a reference value.
func (c ThresholdComparison) Evaluate(value, reference float64) bool {
	switch c {
	case CompareGT:
		return value > reference
	case CompareLT:
		return value < reference
	case CompareGTE:
		return value >= reference
	case CompareLTE:
		return value <= reference
	case CompareEQ:
		return math.Abs(value-reference) < EqualityTolerance
	case CompareNE:
		return math.Abs(value-reference) >= EqualityTolerance
	default:
		return false
	}
}

// Query describes a read against the telemetry store. Construct with
// NewQuery; invariants are enforced there and cross-field constraints hold
// for every accepted query.
type Query struct {
	OrganizationID string
	DeviceIDs      []DeviceID
	FromTime       *time.Time
	ToTime         *time.Time
	MetricNames    []string

	// Spatial filter: either Center+RadiusKm or BoundingBox, not both.
	Center      *GeoLocation
	RadiusKm    float64
	BoundingBox *BoundingBox

	Aggregation *AggregationType
	Limit       int

	// limitSet distinguishes an explicit WithLimit(0) from an unset limit.
	limitSet bool
}

// QueryOption configures an optional query field.
type QueryOption func(*Query)

// WithDevices restricts the query to the given devices.
func WithDevices(ids ...DeviceID) QueryOption {
	return func(q *Query) { q.DeviceIDs = append(q.DeviceIDs, ids...) }
}

// WithTimeRange bounds the query to [from, to].
func WithTimeRange(from, to time.Time) QueryOption {
	return func(q *Query) {
		q.FromTime = &from
		q.ToTime = &to
	}
}

// WithMetrics restricts the query to the named metrics.
func WithMetrics(names ...string) QueryOption {
	return func(q *Query) { q.MetricNames = append(q.MetricNames, names...) }
}

// WithRadius filters to records within radiusKm of center.
func WithRadius(center GeoLocation, radiusKm float64) QueryOption {
	return func(q *Query) {
		q.Center = &center
		q.RadiusKm = radiusKm
	}
}

// WithBoundingBox filters to records inside the box.
func WithBoundingBox(box BoundingBox) QueryOption {
	return func(q *Query) { q.BoundingBox = &box }
}

// WithAggregation requests aggregated results.
func WithAggregation(agg AggregationType) QueryOption {
	return func(q *Query) { q.Aggregation = &agg }
}

// WithLimit caps the number of returned records. The limit must be
// positive; an explicit zero is rejected by NewQuery rather than read as
// "no limit".
func WithLimit(n int) QueryOption {
	return func(q *Query) {
		q.Limit = n
		q.limitSet = true
	}
}

// NewQuery validates and constructs a query for one organization.
//
// Cross-field constraints:
//   - FromTime must not exceed ToTime.
//   - A radius filter needs both a center and a positive radius.
//   - Radius and bounding-box filters are mutually exclusive.
//   - Limit, when set, must be positive.
func NewQuery(orgID string, opts ...QueryOption) (*Query, error) {
	if orgID == "" {
		return nil, fmt.Errorf("%w: organization id is required", ErrInvalidQuery)
	}

	q := &Query{OrganizationID: orgID}
	for _, opt := range opts {
		opt(q)
	}

	if q.FromTime != nil && q.ToTime != nil && q.FromTime.After(*q.ToTime) {
		return nil, fmt.Errorf("%w: from %s after to %s", ErrInvalidQuery,
			q.FromTime.Format(time.RFC3339), q.ToTime.Format(time.RFC3339))
	}
	if (q.Center == nil) != (q.RadiusKm == 0) {
		return nil, fmt.Errorf("%w: center and radius must be set together", ErrInvalidQuery)
	}
	if q.Center != nil && q.RadiusKm <= 0 {
		return nil, fmt.Errorf("%w: radius must be positive, got %v", ErrInvalidQuery, q.RadiusKm)
	}
	if q.Center != nil && q.BoundingBox != nil {
		return nil, fmt.Errorf("%w: radius and bounding box filters are mutually exclusive", ErrInvalidQuery)
	}
	if q.Limit < 0 || (q.limitSet && q.Limit == 0) {
		return nil, fmt.Errorf("%w: limit must be positive, got %d", ErrInvalidQuery, q.Limit)
	}

	return q, nil
}

// Matches reports whether a record satisfies every filter of the query.
// Aggregation and limit are applied by the store, not here.
func (q *Query) Matches(d *Data) bool {
	if d.OrganizationID() != q.OrganizationID {
		return false
	}
	if len(q.DeviceIDs) > 0 {
		found := false
		for _, id := range q.DeviceIDs {
			if d.DeviceID() == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.FromTime != nil && d.Timestamp().Before(*q.FromTime) {
		return false
	}
	if q.ToTime != nil && d.Timestamp().After(*q.ToTime) {
		return false
	}
	if len(q.MetricNames) > 0 {
		found := false
		for _, name := range q.MetricNames {
			if _, ok := d.Metric(name); ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if q.Center != nil {
		loc := d.Location()
		if loc == nil || q.Center.DistanceKm(*loc) > q.RadiusKm {
			return false
		}
	}
	if q.BoundingBox != nil {
		loc := d.Location()
		if loc == nil || !q.BoundingBox.Contains(*loc) {
			return false
		}
	}
	return true
}
