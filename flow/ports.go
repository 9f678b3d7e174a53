package flow

import (
	"context"
	"time"

	"github.com/pulseflow/pulseflow/flow/telemetry"
)

// Repository ports consumed by the core. Implementations live in
// flow/store; the core only depends on these interfaces and wraps their
// failures in RepositoryError.

// SortField selects the workflow search sort key.
type SortField string

const (
	SortByName      SortField = "NAME"
	SortByCreatedAt SortField = "CREATED_AT"
	SortByUpdatedAt SortField = "UPDATED_AT"
	SortByStatus    SortField = "STATUS"
	SortByNodeCount SortField = "NODE_COUNT"
)

// SortDirection orders search results ascending or descending.
type SortDirection string

const (
	SortAsc  SortDirection = "ASC"
	SortDesc SortDirection = "DESC"
)

// WorkflowSearchQuery filters and pages a workflow search. Zero-valued
// filters are ignored.
type WorkflowSearchQuery struct {
	OrganizationID string
	NameContains   string
	Status         *WorkflowStatus
	SortBy         SortField
	SortDirection  SortDirection
	Offset         int
	Limit          int
}

// WorkflowSearchResult is one page of a workflow search.
type WorkflowSearchResult struct {
	Workflows  []*Workflow
	TotalCount int
	Offset     int
	Limit      int
}

// WorkflowStatistics summarizes one organization's workflows.
type WorkflowStatistics struct {
	Total       int
	Active      int
	Completed   int
	Draft       int
	AvgNodes    float64
	AvgEdges    float64
	LastCreated *time.Time
	LastUpdated *time.Time
}

// WorkflowRepository persists workflow definitions.
//
// FindByID returns ErrNotFound (possibly wrapped) for an unknown id; the
// list-returning finders return empty slices, not errors, when nothing
// matches.
type WorkflowRepository interface {
	Save(ctx context.Context, w *Workflow) error
	FindByID(ctx context.Context, id WorkflowID) (*Workflow, error)
	Delete(ctx context.Context, id WorkflowID) error
	Exists(ctx context.Context, id WorkflowID) (bool, error)

	FindByOrganization(ctx context.Context, orgID string) ([]*Workflow, error)
	FindByStatus(ctx context.Context, status WorkflowStatus) ([]*Workflow, error)
	FindByOrganizationAndStatus(ctx context.Context, orgID string, status WorkflowStatus) ([]*Workflow, error)
	FindByNameContaining(ctx context.Context, fragment string) ([]*Workflow, error)
	FindCreatedBetween(ctx context.Context, from, to time.Time) ([]*Workflow, error)
	FindUpdatedAfter(ctx context.Context, t time.Time) ([]*Workflow, error)
	FindByNodeType(ctx context.Context, nodeType NodeType) ([]*Workflow, error)
	FindByNodeID(ctx context.Context, nodeID NodeID) ([]*Workflow, error)

	Search(ctx context.Context, q WorkflowSearchQuery) (*WorkflowSearchResult, error)
	Statistics(ctx context.Context, orgID string) (*WorkflowStatistics, error)
}

// TelemetryQueryResult is one page of a polymorphic telemetry query.
type TelemetryQueryResult struct {
	Data          []*telemetry.Data
	TotalCount    int
	HasMore       bool
	NextPageToken string
}

// AggregateBucket is one time bucket of an aggregation.
type AggregateBucket struct {
	Timestamp time.Time
	Metric    string
	Value     float64
	Count     int
	Type      telemetry.AggregationType
}

// DeviceSummary describes one device's activity over a time range.
type DeviceSummary struct {
	DeviceID    telemetry.DeviceID
	RecordCount int
	FirstSeen   time.Time
	LastSeen    time.Time
	Metrics     []string
}

// TelemetryStorageStats summarizes one organization's stored telemetry.
type TelemetryStorageStats struct {
	TotalRecords int
	DeviceCount  int
	Earliest     *time.Time
	Latest       *time.Time
}

// TelemetryRepository persists and queries telemetry records.
//
// Records are immutable; writes never mutate previously saved data. Query
// methods scope results to one organization unless a device id already
// pins them.
type TelemetryRepository interface {
	// Writes.
	SaveTimeSeries(ctx context.Context, d *telemetry.Data) error
	SaveSpatialData(ctx context.Context, d *telemetry.Data) error
	SaveBatch(ctx context.Context, records []*telemetry.Data) error

	// Reads. An empty deviceID in QueryTimeSeries means "any device"; a nil
	// metrics filter means "any metric".
	QueryTimeSeries(ctx context.Context, deviceID telemetry.DeviceID, from, to time.Time, metrics []string) ([]*telemetry.Data, error)
	QueryRecentData(ctx context.Context, orgID string, within time.Duration) ([]*telemetry.Data, error)
	QueryRealTimeData(ctx context.Context, orgID string) ([]*telemetry.Data, error)
	QuerySpatial(ctx context.Context, orgID string, box telemetry.BoundingBox) ([]*telemetry.Data, error)
	QuerySpatialBetween(ctx context.Context, orgID string, box telemetry.BoundingBox, from, to time.Time) ([]*telemetry.Data, error)
	QueryByRadius(ctx context.Context, orgID string, center telemetry.GeoLocation, radiusKm float64) ([]*telemetry.Data, error)
	QueryByRadiusBetween(ctx context.Context, orgID string, center telemetry.GeoLocation, radiusKm float64, from, to time.Time) ([]*telemetry.Data, error)
	QueryByMetric(ctx context.Context, orgID, metric string) ([]*telemetry.Data, error)
	QueryByMetricBetween(ctx context.Context, orgID, metric string, from, to time.Time) ([]*telemetry.Data, error)
	Query(ctx context.Context, q *telemetry.Query) (*TelemetryQueryResult, error)

	// Aggregations.
	Aggregate(ctx context.Context, q *telemetry.Query, aggType telemetry.AggregationType, interval time.Duration) ([]AggregateBucket, error)
	MetricStatistics(ctx context.Context, deviceID telemetry.DeviceID, metric string, from, to time.Time) (*telemetry.MetricStats, error)
	DeviceSummaries(ctx context.Context, orgID string, from, to time.Time) ([]DeviceSummary, error)

	// Management.
	DeleteOldData(ctx context.Context, orgID string, before time.Time) (int, error)
	DeleteByDevice(ctx context.Context, deviceID telemetry.DeviceID) (int, error)
	Count(ctx context.Context, orgID string) (int, error)
	Stats(ctx context.Context, orgID string) (*TelemetryStorageStats, error)
	LatestTimestamp(ctx context.Context, orgID string) (*time.Time, error)
	EarliestTimestamp(ctx context.Context, orgID string) (*time.Time, error)
	ActiveDevices(ctx context.Context, orgID string, since time.Duration) ([]telemetry.DeviceID, error)
}

// StepRecord is one persisted node transition of an execution.
type StepRecord struct {
	ExecutionID ExecutionID
	Step        int
	NodeID      NodeID
	Status      ExecutionStatus
	Context     map[string]any
	CreatedAt   time.Time
}

// ExecutionHistory persists the step-by-step trace of executions. The
// engine writes one record per node transition when configured with
// WithHistory; durability beyond the process is the backend's concern.
type ExecutionHistory interface {
	SaveStep(ctx context.Context, record StepRecord) error
	LoadLatest(ctx context.Context, id ExecutionID) (*StepRecord, error)
	Steps(ctx context.Context, id ExecutionID) ([]StepRecord, error)
	DeleteRun(ctx context.Context, id ExecutionID) error
	Close() error
}
