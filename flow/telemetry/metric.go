// Package telemetry defines the telemetry record and its value types: tagged
// metric values, geospatial coordinates, the query surface, statistical
// analysis, and short sliding-window aggregates.
package telemetry

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrWrongKind is returned by MetricValue accessors when the stored tag does
// not match the requested one.
var ErrWrongKind = errors.New("metric value: wrong kind")

// MetricKind discriminates the variants of MetricValue.
type MetricKind int

const (
	// KindNumeric tags a float64 metric value.
	KindNumeric MetricKind = iota
	// KindString tags a string metric value.
	KindString
	// KindBool tags a boolean metric value.
	KindBool
)

func (k MetricKind) String() string {
	switch k {
	case KindNumeric:
		return "numeric"
	case KindString:
		return "string"
	case KindBool:
		return "boolean"
	default:
		return "unknown"
	}
}

// MetricValue is a tagged union of numeric, string, and boolean readings.
// Accessors fail for a mismatched tag; the stored value is returned exactly
// as constructed.
type MetricValue struct {
	kind MetricKind
	num  float64
	str  string
	b    bool
}

// Numeric constructs a numeric metric value.
func Numeric(v float64) MetricValue {
	return MetricValue{kind: KindNumeric, num: v}
}

// Text constructs a string metric value.
func Text(v string) MetricValue {
	return MetricValue{kind: KindString, str: v}
}

// Bool constructs a boolean metric value.
func Bool(v bool) MetricValue {
	return MetricValue{kind: KindBool, b: v}
}

// Kind reports which variant this value holds.
func (v MetricValue) Kind() MetricKind {
	return v.kind
}

// AsNumeric returns the numeric value, or ErrWrongKind for other tags.
func (v MetricValue) AsNumeric() (float64, error) {
	if v.kind != KindNumeric {
		return 0, fmt.Errorf("%w: have %s, want numeric", ErrWrongKind, v.kind)
	}
	return v.num, nil
}

// AsText returns the string value, or ErrWrongKind for other tags.
func (v MetricValue) AsText() (string, error) {
	if v.kind != KindString {
		return "", fmt.Errorf("%w: have %s, want string", ErrWrongKind, v.kind)
	}
	return v.str, nil
}

// AsBool returns the boolean value, or ErrWrongKind for other tags.
func (v MetricValue) AsBool() (bool, error) {
	if v.kind != KindBool {
		return false, fmt.Errorf("%w: have %s, want boolean", ErrWrongKind, v.kind)
	}
	return v.b, nil
}

// String renders the value for logs and error messages.
func (v MetricValue) String() string {
	switch v.kind {
	case KindNumeric:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		return v.str
	case KindBool:
		return strconv.FormatBool(v.b)
	default:
		return "<invalid>"
	}
}
