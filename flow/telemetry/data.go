package telemetry

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxClockSkew is how far into the future a record's timestamp may lie before
// the quality gate rejects it. Device clocks drift; a full minute of skew is
// tolerated.
const MaxClockSkew = 60 * time.Second

// ErrInvalidData indicates a record that fails the ingestion quality gate.
var ErrInvalidData = errors.New("invalid telemetry data")

// DeviceID identifies a reporting device.
type DeviceID string

// TelemetryID identifies a single telemetry record.
type TelemetryID string

// NewDeviceID parses a device id, rejecting empty input.
func NewDeviceID(s string) (DeviceID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: device id cannot be empty", ErrInvalidData)
	}
	return DeviceID(s), nil
}

// NewTelemetryID parses a telemetry id, rejecting empty input.
func NewTelemetryID(s string) (TelemetryID, error) {
	if strings.TrimSpace(s) == "" {
		return "", fmt.Errorf("%w: telemetry id cannot be empty", ErrInvalidData)
	}
	return TelemetryID(s), nil
}

// GenerateTelemetryID returns a new random telemetry id.
func GenerateTelemetryID() TelemetryID {
	return TelemetryID("tel-" + uuid.NewString())
}

// Data is one telemetry record from a device: a timestamped set of named
// metric readings with an optional geospatial position. Records are immutable
// after construction; the metrics map is copied in and copied out.
type Data struct {
	id             TelemetryID
	deviceID       DeviceID
	organizationID string
	timestamp      time.Time
	metrics        map[string]MetricValue
	location       *GeoLocation
}

// NewData validates and constructs a telemetry record.
//
// The quality gate rejects:
//   - empty device or organization id
//   - an empty metrics map
//   - a timestamp more than MaxClockSkew in the future
func NewData(id TelemetryID, deviceID DeviceID, orgID string, ts time.Time, metrics map[string]MetricValue, location *GeoLocation) (*Data, error) {
	if strings.TrimSpace(string(id)) == "" {
		return nil, fmt.Errorf("%w: telemetry id cannot be empty", ErrInvalidData)
	}
	if strings.TrimSpace(string(deviceID)) == "" {
		return nil, fmt.Errorf("%w: device id cannot be empty", ErrInvalidData)
	}
	if strings.TrimSpace(orgID) == "" {
		return nil, fmt.Errorf("%w: organization id cannot be empty", ErrInvalidData)
	}
	if len(metrics) == 0 {
		return nil, fmt.Errorf("%w: metrics cannot be empty", ErrInvalidData)
	}
	if ts.After(time.Now().Add(MaxClockSkew)) {
		return nil, fmt.Errorf("%w: timestamp %s is too far in the future", ErrInvalidData, ts.Format(time.RFC3339))
	}

	copied := make(map[string]MetricValue, len(metrics))
	for k, v := range metrics {
		copied[k] = v
	}

	var loc *GeoLocation
	if location != nil {
		l := *location
		loc = &l
	}

	return &Data{
		id:             id,
		deviceID:       deviceID,
		organizationID: orgID,
		timestamp:      ts,
		metrics:        copied,
		location:       loc,
	}, nil
}

// ID returns the record id.
func (d *Data) ID() TelemetryID { return d.id }

// DeviceID returns the reporting device id.
func (d *Data) DeviceID() DeviceID { return d.deviceID }

// OrganizationID returns the owning organization.
func (d *Data) OrganizationID() string { return d.organizationID }

// Timestamp returns when the record was measured.
func (d *Data) Timestamp() time.Time { return d.timestamp }

// Metric returns the named reading and whether it exists.
func (d *Data) Metric(name string) (MetricValue, bool) {
	v, ok := d.metrics[name]
	return v, ok
}

// Metrics returns a defensive copy of all readings.
func (d *Data) Metrics() map[string]MetricValue {
	out := make(map[string]MetricValue, len(d.metrics))
	for k, v := range d.metrics {
		out[k] = v
	}
	return out
}

// Location returns the position, or nil if the record carries none.
func (d *Data) Location() *GeoLocation {
	if d.location == nil {
		return nil
	}
	l := *d.location
	return &l
}
