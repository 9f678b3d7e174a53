package telemetry

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
)

// analysisCacheTTL bounds how stale a served analysis may be.
const analysisCacheTTL = 30 * time.Second

// anomalyZScore is the z-score above which a reading is flagged as anomalous.
const anomalyZScore = 3.0

// trendSlopeRatio is the minimum per-sample slope, relative to the metric's
// mean magnitude, for a series to count as trending rather than stable.
const trendSlopeRatio = 0.01

// MetricStats summarizes the distribution of one metric over the queried
// records.
type MetricStats struct {
	Min         float64
	Max         float64
	Avg         float64
	StdDev      float64
	Count       int
	Percentiles map[int]float64 // keys 25, 50, 75, 95, 99
}

// Anomaly flags a single reading that deviates strongly from the rest of its
// metric's distribution.
type Anomaly struct {
	DeviceID   DeviceID
	Metric     string
	Timestamp  time.Time
	Value      float64
	ZScore     float64
}

// TrendDirection classifies the movement of a metric over the queried range.
type TrendDirection string

const (
	TrendRising  TrendDirection = "RISING"
	TrendFalling TrendDirection = "FALLING"
	TrendStable  TrendDirection = "STABLE"
)

// Trend describes the least-squares slope of one metric across the queried
// records, ordered by timestamp.
type Trend struct {
	Metric    string
	Direction TrendDirection
	Slope     float64
}

// Analysis is the result of analyzing the records matched by one query.
// It is a deterministic function of the queried data.
type Analysis struct {
	OrganizationID string
	From           *time.Time
	To             *time.Time
	RecordCount    int
	Metrics        map[string]MetricStats
	Anomalies      []Anomaly
	Trends         []Trend
	GeneratedAt    time.Time
}

// Fetcher supplies the records an Analyzer works over. It is typically backed
// by a TelemetryRepository; the indirection keeps the analyzer free of any
// persistence concern.
type Fetcher func(ctx context.Context, q *Query) ([]*Data, error)

// Analyzer computes statistical summaries, anomalies, and trends for queried
// telemetry, with a short TTL cache keyed by the query shape. Create with
// NewAnalyzer and release with Close; the cache is process-wide state with an
// explicit lifecycle, not a singleton.
type Analyzer struct {
	fetch Fetcher

	mu    sync.Mutex
	cache map[string]cachedAnalysis
	now   func() time.Time
}

type cachedAnalysis struct {
	result  *Analysis
	expires time.Time
}

// NewAnalyzer creates an analyzer over the given record source.
func NewAnalyzer(fetch Fetcher) *Analyzer {
	return &Analyzer{
		fetch: fetch,
		cache: make(map[string]cachedAnalysis),
		now:   time.Now,
	}
}

// Close releases the analyzer's cache.
func (a *Analyzer) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.cache = nil
}

// Analyze fetches the records matched by q and summarizes them. Results are
// cached for up to 30 seconds keyed by (org, from, to, query hash); a cache
// hit serves the previous result without touching the record source.
func (a *Analyzer) Analyze(ctx context.Context, q *Query) (*Analysis, error) {
	key := a.cacheKey(q)

	a.mu.Lock()
	if a.cache == nil {
		a.mu.Unlock()
		return nil, fmt.Errorf("analyzer is closed")
	}
	if entry, ok := a.cache[key]; ok && a.now().Before(entry.expires) {
		a.mu.Unlock()
		return entry.result, nil
	}
	a.mu.Unlock()

	records, err := a.fetch(ctx, q)
	if err != nil {
		return nil, err
	}

	result := Summarize(q, records)
	result.GeneratedAt = a.now()

	a.mu.Lock()
	if a.cache != nil {
		a.cache[key] = cachedAnalysis{result: result, expires: a.now().Add(analysisCacheTTL)}
	}
	a.mu.Unlock()

	return result, nil
}

func (a *Analyzer) cacheKey(q *Query) string {
	var b strings.Builder
	b.WriteString(q.OrganizationID)
	b.WriteByte('|')
	if q.FromTime != nil {
		b.WriteString(q.FromTime.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte('|')
	if q.ToTime != nil {
		b.WriteString(q.ToTime.UTC().Format(time.RFC3339Nano))
	}
	b.WriteByte('|')
	for _, id := range q.DeviceIDs {
		b.WriteString(string(id))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	for _, m := range q.MetricNames {
		b.WriteString(m)
		b.WriteByte(',')
	}
	return b.String()
}

// Summarize computes the analysis of a record set without caching. Records
// are processed in timestamp order; the result depends only on the input.
func Summarize(q *Query, records []*Data) *Analysis {
	ordered := make([]*Data, len(records))
	copy(ordered, records)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Timestamp().Before(ordered[j].Timestamp())
	})

	type sample struct {
		device DeviceID
		ts     time.Time
		value  float64
	}
	series := make(map[string][]sample)
	for _, d := range ordered {
		for name, v := range d.Metrics() {
			num, err := v.AsNumeric()
			if err != nil {
				continue
			}
			series[name] = append(series[name], sample{device: d.DeviceID(), ts: d.Timestamp(), value: num})
		}
	}

	metricNames := make([]string, 0, len(series))
	for name := range series {
		metricNames = append(metricNames, name)
	}
	sort.Strings(metricNames)

	analysis := &Analysis{
		OrganizationID: q.OrganizationID,
		From:           q.FromTime,
		To:             q.ToTime,
		RecordCount:    len(records),
		Metrics:        make(map[string]MetricStats, len(series)),
	}

	for _, name := range metricNames {
		samples := series[name]
		values := make([]float64, len(samples))
		for i, s := range samples {
			values[i] = s.value
		}

		stats := computeStats(values)
		analysis.Metrics[name] = stats

		// Anomalies: readings more than anomalyZScore standard deviations
		// from the metric's mean.
		if stats.StdDev > 0 {
			for _, s := range samples {
				z := (s.value - stats.Avg) / stats.StdDev
				if math.Abs(z) > anomalyZScore {
					analysis.Anomalies = append(analysis.Anomalies, Anomaly{
						DeviceID:  s.device,
						Metric:    name,
						Timestamp: s.ts,
						Value:     s.value,
						ZScore:    z,
					})
				}
			}
		}

		analysis.Trends = append(analysis.Trends, computeTrend(name, values, stats.Avg))
	}

	return analysis
}

func computeStats(values []float64) MetricStats {
	stats := MetricStats{Count: len(values), Percentiles: make(map[int]float64)}
	if len(values) == 0 {
		return stats
	}

	stats.Min = values[0]
	stats.Max = values[0]
	sum := 0.0
	for _, v := range values {
		if v < stats.Min {
			stats.Min = v
		}
		if v > stats.Max {
			stats.Max = v
		}
		sum += v
	}
	stats.Avg = sum / float64(len(values))

	variance := 0.0
	for _, v := range values {
		d := v - stats.Avg
		variance += d * d
	}
	stats.StdDev = math.Sqrt(variance / float64(len(values)))

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	for _, p := range []int{25, 50, 75, 95, 99} {
		stats.Percentiles[p] = percentile(sorted, p)
	}
	return stats
}

// percentile computes the p-th percentile of a sorted slice using linear
// interpolation between closest ranks.
func percentile(sorted []float64, p int) float64 {
	if len(sorted) == 1 {
		return sorted[0]
	}
	rank := float64(p) / 100 * float64(len(sorted)-1)
	lo := int(math.Floor(rank))
	hi := int(math.Ceil(rank))
	if lo == hi {
		return sorted[lo]
	}
	frac := rank - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// computeTrend fits a least-squares line over the series by sample index and
// classifies its slope relative to the metric's mean magnitude.
func computeTrend(name string, values []float64, avg float64) Trend {
	if len(values) < 2 {
		return Trend{Metric: name, Direction: TrendStable}
	}

	n := float64(len(values))
	var sumX, sumY, sumXY, sumXX float64
	for i, v := range values {
		x := float64(i)
		sumX += x
		sumY += v
		sumXY += x * v
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return Trend{Metric: name, Direction: TrendStable}
	}
	slope := (n*sumXY - sumX*sumY) / denom

	scale := math.Abs(avg)
	if scale == 0 {
		scale = 1
	}
	trend := Trend{Metric: name, Slope: slope}
	switch {
	case slope > trendSlopeRatio*scale:
		trend.Direction = TrendRising
	case slope < -trendSlopeRatio*scale:
		trend.Direction = TrendFalling
	default:
		trend.Direction = TrendStable
	}
	return trend
}
