package flow

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics collects engine and ingestion metrics, namespaced
// "pulseflow".
//
// Collectors:
//   - inflight_executions (gauge): executions currently being advanced.
//   - executions_total (counter, status): executions by terminal status.
//   - step_latency_ms (histogram, node_type/status): node step duration.
//   - condition_evaluations_total (counter, result): decision outcomes.
//   - triggers_fired_total (counter): threshold trigger events emitted.
//   - records_ingested_total (counter): records accepted by the pipeline.
//   - records_rejected_total (counter, reason): records dropped by the
//     quality gate or a failing repository.
//
// All methods are safe on a nil receiver, so components treat metrics as
// strictly optional.
type PrometheusMetrics struct {
	inflightExecutions prometheus.Gauge
	executionsTotal    *prometheus.CounterVec
	stepLatency        *prometheus.HistogramVec
	conditionEvals     *prometheus.CounterVec
	triggersFired      prometheus.Counter
	recordsIngested    prometheus.Counter
	recordsRejected    *prometheus.CounterVec
}

// NewPrometheusMetrics creates and registers the collectors with the given
// registry. A nil registry falls back to the default registerer.
func NewPrometheusMetrics(registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		inflightExecutions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: "pulseflow",
			Name:      "inflight_executions",
			Help:      "Number of workflow executions currently being advanced.",
		}),
		executionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseflow",
			Name:      "executions_total",
			Help:      "Workflow executions reaching a terminal status.",
		}, []string{"status"}),
		stepLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pulseflow",
			Name:      "step_latency_ms",
			Help:      "Node step duration in milliseconds.",
			Buckets:   []float64{1, 5, 10, 50, 100, 500, 1000, 5000, 10000},
		}, []string{"node_type", "status"}),
		conditionEvals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseflow",
			Name:      "condition_evaluations_total",
			Help:      "Condition evaluations at decision nodes by outcome.",
		}, []string{"result"}),
		triggersFired: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pulseflow",
			Name:      "triggers_fired_total",
			Help:      "Workflow trigger events emitted by the threshold bridge.",
		}),
		recordsIngested: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "pulseflow",
			Name:      "records_ingested_total",
			Help:      "Telemetry records accepted by the ingestion pipeline.",
		}),
		recordsRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pulseflow",
			Name:      "records_rejected_total",
			Help:      "Telemetry records rejected during ingestion.",
		}, []string{"reason"}),
	}
}

// ExecutionStarted records an execution entering the engine.
func (m *PrometheusMetrics) ExecutionStarted() {
	if m == nil {
		return
	}
	m.inflightExecutions.Inc()
}

// ExecutionFinished records an execution reaching a terminal status.
func (m *PrometheusMetrics) ExecutionFinished(status ExecutionStatus) {
	if m == nil {
		return
	}
	m.inflightExecutions.Dec()
	m.executionsTotal.WithLabelValues(string(status)).Inc()
}

// StepObserved records one node step's duration and outcome.
func (m *PrometheusMetrics) StepObserved(nodeType NodeType, d time.Duration, failed bool) {
	if m == nil {
		return
	}
	status := "success"
	if failed {
		status = "error"
	}
	m.stepLatency.WithLabelValues(string(nodeType), status).Observe(float64(d.Milliseconds()))
}

// ConditionEvaluated records a decision outcome.
func (m *PrometheusMetrics) ConditionEvaluated(result bool) {
	if m == nil {
		return
	}
	label := "false"
	if result {
		label = "true"
	}
	m.conditionEvals.WithLabelValues(label).Inc()
}

// TriggerFired records one emitted trigger event.
func (m *PrometheusMetrics) TriggerFired() {
	if m == nil {
		return
	}
	m.triggersFired.Inc()
}

// RecordIngested records one accepted telemetry record.
func (m *PrometheusMetrics) RecordIngested() {
	if m == nil {
		return
	}
	m.recordsIngested.Inc()
}

// RecordRejected records one dropped telemetry record.
func (m *PrometheusMetrics) RecordRejected(reason string) {
	if m == nil {
		return
	}
	m.recordsRejected.WithLabelValues(reason).Inc()
}
