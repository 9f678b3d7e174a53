package store

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/pulseflow/pulseflow/flow"
	"github.com/pulseflow/pulseflow/flow/telemetry"
)

// MemoryTelemetryStore is an in-memory flow.TelemetryRepository.
//
// Records are append-only and immutable, matching the port contract, so
// the store shares them by pointer. Query results are ordered by record
// timestamp, oldest first, with insertion order breaking ties.
type MemoryTelemetryStore struct {
	mu      sync.RWMutex
	records []*telemetry.Data
}

// NewMemoryTelemetryStore creates an empty in-memory telemetry repository.
func NewMemoryTelemetryStore() *MemoryTelemetryStore {
	return &MemoryTelemetryStore{}
}

// SaveTimeSeries stores one record.
func (s *MemoryTelemetryStore) SaveTimeSeries(_ context.Context, d *telemetry.Data) error {
	if d == nil {
		return fmt.Errorf("%w: record cannot be nil", telemetry.ErrInvalidData)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, d)
	return nil
}

// SaveSpatialData stores one located record. A record without a location
// is rejected.
func (s *MemoryTelemetryStore) SaveSpatialData(ctx context.Context, d *telemetry.Data) error {
	if d == nil {
		return fmt.Errorf("%w: record cannot be nil", telemetry.ErrInvalidData)
	}
	if d.Location() == nil {
		return fmt.Errorf("%w: spatial record needs a location", telemetry.ErrInvalidData)
	}
	return s.SaveTimeSeries(ctx, d)
}

// SaveBatch stores several records atomically: either all are stored or
// none is.
func (s *MemoryTelemetryStore) SaveBatch(_ context.Context, records []*telemetry.Data) error {
	for i, d := range records {
		if d == nil {
			return fmt.Errorf("%w: record %d is nil", telemetry.ErrInvalidData, i)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, records...)
	return nil
}

// QueryTimeSeries returns records in [from, to], optionally restricted to
// one device and a set of metric names. An empty deviceID matches any
// device; a nil metrics filter matches any metric.
func (s *MemoryTelemetryStore) QueryTimeSeries(_ context.Context, deviceID telemetry.DeviceID, from, to time.Time, metrics []string) ([]*telemetry.Data, error) {
	return s.query(func(d *telemetry.Data) bool {
		if deviceID != "" && d.DeviceID() != deviceID {
			return false
		}
		if !inRange(d.Timestamp(), from, to) {
			return false
		}
		return hasAnyMetric(d, metrics)
	}), nil
}

// QueryRecentData returns the organization's records measured within the
// given duration of now.
func (s *MemoryTelemetryStore) QueryRecentData(_ context.Context, orgID string, within time.Duration) ([]*telemetry.Data, error) {
	cutoff := time.Now().Add(-within)
	return s.query(func(d *telemetry.Data) bool {
		return d.OrganizationID() == orgID && !d.Timestamp().Before(cutoff)
	}), nil
}

// QueryRealTimeData returns the most recent record of each of the
// organization's devices.
func (s *MemoryTelemetryStore) QueryRealTimeData(_ context.Context, orgID string) ([]*telemetry.Data, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	latest := make(map[telemetry.DeviceID]*telemetry.Data)
	for _, d := range s.records {
		if d.OrganizationID() != orgID {
			continue
		}
		if prev, ok := latest[d.DeviceID()]; !ok || d.Timestamp().After(prev.Timestamp()) {
			latest[d.DeviceID()] = d
		}
	}

	out := make([]*telemetry.Data, 0, len(latest))
	for _, d := range latest {
		out = append(out, d)
	}
	sortByTimestamp(out)
	return out, nil
}

// QuerySpatial returns the organization's located records inside the box.
func (s *MemoryTelemetryStore) QuerySpatial(_ context.Context, orgID string, box telemetry.BoundingBox) ([]*telemetry.Data, error) {
	return s.query(func(d *telemetry.Data) bool {
		loc := d.Location()
		return d.OrganizationID() == orgID && loc != nil && box.Contains(*loc)
	}), nil
}

// QuerySpatialBetween restricts QuerySpatial to [from, to].
func (s *MemoryTelemetryStore) QuerySpatialBetween(_ context.Context, orgID string, box telemetry.BoundingBox, from, to time.Time) ([]*telemetry.Data, error) {
	return s.query(func(d *telemetry.Data) bool {
		loc := d.Location()
		return d.OrganizationID() == orgID && loc != nil && box.Contains(*loc) && inRange(d.Timestamp(), from, to)
	}), nil
}

// QueryByRadius returns the organization's located records within radiusKm
// of center.
func (s *MemoryTelemetryStore) QueryByRadius(_ context.Context, orgID string, center telemetry.GeoLocation, radiusKm float64) ([]*telemetry.Data, error) {
	return s.query(func(d *telemetry.Data) bool {
		loc := d.Location()
		return d.OrganizationID() == orgID && loc != nil && center.DistanceKm(*loc) <= radiusKm
	}), nil
}

// QueryByRadiusBetween restricts QueryByRadius to [from, to].
func (s *MemoryTelemetryStore) QueryByRadiusBetween(_ context.Context, orgID string, center telemetry.GeoLocation, radiusKm float64, from, to time.Time) ([]*telemetry.Data, error) {
	return s.query(func(d *telemetry.Data) bool {
		loc := d.Location()
		return d.OrganizationID() == orgID && loc != nil && center.DistanceKm(*loc) <= radiusKm && inRange(d.Timestamp(), from, to)
	}), nil
}

// QueryByMetric returns the organization's records carrying the named
// metric.
func (s *MemoryTelemetryStore) QueryByMetric(_ context.Context, orgID, metric string) ([]*telemetry.Data, error) {
	return s.query(func(d *telemetry.Data) bool {
		if d.OrganizationID() != orgID {
			return false
		}
		_, ok := d.Metric(metric)
		return ok
	}), nil
}

// QueryByMetricBetween restricts QueryByMetric to [from, to].
func (s *MemoryTelemetryStore) QueryByMetricBetween(_ context.Context, orgID, metric string, from, to time.Time) ([]*telemetry.Data, error) {
	return s.query(func(d *telemetry.Data) bool {
		if d.OrganizationID() != orgID || !inRange(d.Timestamp(), from, to) {
			return false
		}
		_, ok := d.Metric(metric)
		return ok
	}), nil
}

// Query applies every filter of the polymorphic query and pages the result
// by the query limit. TotalCount reflects the full filtered set; when more
// records remain, NextPageToken carries the offset of the next page.
func (s *MemoryTelemetryStore) Query(_ context.Context, q *telemetry.Query) (*flow.TelemetryQueryResult, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: query cannot be nil", telemetry.ErrInvalidQuery)
	}

	matched := s.query(q.Matches)
	total := len(matched)

	page := matched
	hasMore := false
	token := ""
	if q.Limit > 0 && q.Limit < total {
		page = matched[:q.Limit]
		hasMore = true
		token = strconv.Itoa(q.Limit)
	}

	return &flow.TelemetryQueryResult{
		Data:          page,
		TotalCount:    total,
		HasMore:       hasMore,
		NextPageToken: token,
	}, nil
}

// Aggregate folds the matched records' numeric readings into time buckets
// of the given interval. Buckets are keyed by truncated timestamp and
// metric name and returned in (time, metric) order; metrics absent from a
// bucket produce no entry.
func (s *MemoryTelemetryStore) Aggregate(_ context.Context, q *telemetry.Query, aggType telemetry.AggregationType, interval time.Duration) ([]flow.AggregateBucket, error) {
	if q == nil {
		return nil, fmt.Errorf("%w: query cannot be nil", telemetry.ErrInvalidQuery)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %v", telemetry.ErrInvalidQuery, interval)
	}

	type key struct {
		bucket time.Time
		metric string
	}
	type acc struct {
		sum   float64
		min   float64
		max   float64
		count int
	}

	cells := make(map[key]*acc)
	for _, d := range s.query(q.Matches) {
		bucket := d.Timestamp().Truncate(interval)
		for name, v := range d.Metrics() {
			if len(q.MetricNames) > 0 && !containsString(q.MetricNames, name) {
				continue
			}
			num, err := v.AsNumeric()
			if err != nil {
				continue
			}
			k := key{bucket: bucket, metric: name}
			cell, ok := cells[k]
			if !ok {
				cell = &acc{min: num, max: num}
				cells[k] = cell
			}
			cell.sum += num
			cell.count++
			if num < cell.min {
				cell.min = num
			}
			if num > cell.max {
				cell.max = num
			}
		}
	}

	out := make([]flow.AggregateBucket, 0, len(cells))
	for k, cell := range cells {
		var value float64
		switch aggType {
		case telemetry.AggregateAvg:
			value = cell.sum / float64(cell.count)
		case telemetry.AggregateMin:
			value = cell.min
		case telemetry.AggregateMax:
			value = cell.max
		case telemetry.AggregateSum:
			value = cell.sum
		case telemetry.AggregateCount:
			value = float64(cell.count)
		default:
			return nil, fmt.Errorf("%w: unknown aggregation %q", telemetry.ErrInvalidQuery, aggType)
		}
		out = append(out, flow.AggregateBucket{
			Timestamp: k.bucket,
			Metric:    k.metric,
			Value:     value,
			Count:     cell.count,
			Type:      aggType,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].Metric < out[j].Metric
	})
	return out, nil
}

// MetricStatistics summarizes one device's named metric over [from, to].
func (s *MemoryTelemetryStore) MetricStatistics(_ context.Context, deviceID telemetry.DeviceID, metric string, from, to time.Time) (*telemetry.MetricStats, error) {
	matched := s.query(func(d *telemetry.Data) bool {
		if d.DeviceID() != deviceID || !inRange(d.Timestamp(), from, to) {
			return false
		}
		_, ok := d.Metric(metric)
		return ok
	})

	analysis := telemetry.Summarize(&telemetry.Query{}, matched)
	stats, ok := analysis.Metrics[metric]
	if !ok {
		stats = telemetry.MetricStats{Percentiles: make(map[int]float64)}
	}
	return &stats, nil
}

// DeviceSummaries describes each of the organization's devices active in
// [from, to], sorted by device id.
func (s *MemoryTelemetryStore) DeviceSummaries(_ context.Context, orgID string, from, to time.Time) ([]flow.DeviceSummary, error) {
	matched := s.query(func(d *telemetry.Data) bool {
		return d.OrganizationID() == orgID && inRange(d.Timestamp(), from, to)
	})

	summaries := make(map[telemetry.DeviceID]*flow.DeviceSummary)
	metricSets := make(map[telemetry.DeviceID]map[string]bool)
	for _, d := range matched {
		id := d.DeviceID()
		summary, ok := summaries[id]
		if !ok {
			summary = &flow.DeviceSummary{
				DeviceID:  id,
				FirstSeen: d.Timestamp(),
				LastSeen:  d.Timestamp(),
			}
			summaries[id] = summary
			metricSets[id] = make(map[string]bool)
		}
		summary.RecordCount++
		if d.Timestamp().Before(summary.FirstSeen) {
			summary.FirstSeen = d.Timestamp()
		}
		if d.Timestamp().After(summary.LastSeen) {
			summary.LastSeen = d.Timestamp()
		}
		for name := range d.Metrics() {
			metricSets[id][name] = true
		}
	}

	out := make([]flow.DeviceSummary, 0, len(summaries))
	for id, summary := range summaries {
		for name := range metricSets[id] {
			summary.Metrics = append(summary.Metrics, name)
		}
		sort.Strings(summary.Metrics)
		out = append(out, *summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DeviceID < out[j].DeviceID })
	return out, nil
}

// DeleteOldData removes the organization's records measured strictly
// before the cutoff and returns how many were removed.
func (s *MemoryTelemetryStore) DeleteOldData(_ context.Context, orgID string, before time.Time) (int, error) {
	return s.deleteWhere(func(d *telemetry.Data) bool {
		return d.OrganizationID() == orgID && d.Timestamp().Before(before)
	}), nil
}

// DeleteByDevice removes every record of the device and returns how many
// were removed.
func (s *MemoryTelemetryStore) DeleteByDevice(_ context.Context, deviceID telemetry.DeviceID) (int, error) {
	return s.deleteWhere(func(d *telemetry.Data) bool {
		return d.DeviceID() == deviceID
	}), nil
}

// Count returns how many records the organization has stored.
func (s *MemoryTelemetryStore) Count(_ context.Context, orgID string) (int, error) {
	return len(s.query(func(d *telemetry.Data) bool {
		return d.OrganizationID() == orgID
	})), nil
}

// Stats summarizes the organization's stored telemetry.
func (s *MemoryTelemetryStore) Stats(_ context.Context, orgID string) (*flow.TelemetryStorageStats, error) {
	matched := s.query(func(d *telemetry.Data) bool {
		return d.OrganizationID() == orgID
	})

	stats := &flow.TelemetryStorageStats{TotalRecords: len(matched)}
	devices := make(map[telemetry.DeviceID]bool)
	for _, d := range matched {
		devices[d.DeviceID()] = true
		ts := d.Timestamp()
		if stats.Earliest == nil || ts.Before(*stats.Earliest) {
			t := ts
			stats.Earliest = &t
		}
		if stats.Latest == nil || ts.After(*stats.Latest) {
			t := ts
			stats.Latest = &t
		}
	}
	stats.DeviceCount = len(devices)
	return stats, nil
}

// LatestTimestamp returns the organization's newest record timestamp, or
// nil when it has none.
func (s *MemoryTelemetryStore) LatestTimestamp(ctx context.Context, orgID string) (*time.Time, error) {
	stats, err := s.Stats(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return stats.Latest, nil
}

// EarliestTimestamp returns the organization's oldest record timestamp, or
// nil when it has none.
func (s *MemoryTelemetryStore) EarliestTimestamp(ctx context.Context, orgID string) (*time.Time, error) {
	stats, err := s.Stats(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return stats.Earliest, nil
}

// ActiveDevices returns the organization's devices with at least one
// record within the given duration of now, sorted by id.
func (s *MemoryTelemetryStore) ActiveDevices(_ context.Context, orgID string, since time.Duration) ([]telemetry.DeviceID, error) {
	cutoff := time.Now().Add(-since)
	devices := make(map[telemetry.DeviceID]bool)
	for _, d := range s.query(func(d *telemetry.Data) bool {
		return d.OrganizationID() == orgID && !d.Timestamp().Before(cutoff)
	}) {
		devices[d.DeviceID()] = true
	}

	out := make([]telemetry.DeviceID, 0, len(devices))
	for id := range devices {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// query returns matching records sorted by timestamp, oldest first.
func (s *MemoryTelemetryStore) query(match func(*telemetry.Data) bool) []*telemetry.Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*telemetry.Data
	for _, d := range s.records {
		if match(d) {
			out = append(out, d)
		}
	}
	sortByTimestamp(out)
	return out
}

func (s *MemoryTelemetryStore) deleteWhere(match func(*telemetry.Data) bool) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.records[:0]
	removed := 0
	for _, d := range s.records {
		if match(d) {
			removed++
			continue
		}
		kept = append(kept, d)
	}
	s.records = kept
	return removed
}

func sortByTimestamp(records []*telemetry.Data) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Timestamp().Before(records[j].Timestamp())
	})
}

func inRange(ts, from, to time.Time) bool {
	return !ts.Before(from) && !ts.After(to)
}

func hasAnyMetric(d *telemetry.Data, metrics []string) bool {
	if len(metrics) == 0 {
		return true
	}
	for _, name := range metrics {
		if _, ok := d.Metric(name); ok {
			return true
		}
	}
	return false
}

func containsString(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
