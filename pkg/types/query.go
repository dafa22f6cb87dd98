package types

// AggregationKind names the aggregation a caller intends to apply to a query.
// It is carried with reports but does not change Find results.
type AggregationKind string

const (
	AggregationCount AggregationKind = "count"
	AggregationSum   AggregationKind = "sum"
	AggregationAvg   AggregationKind = "avg"
	AggregationMin   AggregationKind = "min"
	AggregationMax   AggregationKind = "max"
)

// Query describes a read-only view over the event log.
// Nil fields are unconstrained.
type Query struct {
	Type      *EventType `json:"type,omitempty"`
	Category  *Category  `json:"category,omitempty"`
	StartDate *int64     `json:"startDate,omitempty"`
	EndDate   *int64     `json:"endDate,omitempty"`
	Limit     *int       `json:"limit,omitempty"`
	Offset    *int       `json:"offset,omitempty"`

	// Filters maps a dotted path (e.g. "data.address") to an expected value.
	// A slice value matches by membership, anything else by equality.
	Filters map[string]interface{} `json:"filters,omitempty"`

	GroupBy     string          `json:"groupBy,omitempty"`
	Aggregation AggregationKind `json:"aggregation,omitempty"`
}

// WithLimit returns a copy of q with limit and offset replaced.
func (q Query) WithLimit(limit, offset int) Query {
	q.Limit = &limit
	q.Offset = &offset
	return q
}

// TypePtr is a convenience for building queries.
func TypePtr(t EventType) *EventType { return &t }

// CategoryPtr is a convenience for building queries.
func CategoryPtr(c Category) *Category { return &c }

// Int64Ptr is a convenience for building queries.
func Int64Ptr(v int64) *int64 { return &v }

// IntPtr is a convenience for building queries.
func IntPtr(v int) *int { return &v }
