package types

// DateRange is an inclusive span of Unix millisecond timestamps.
type DateRange struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

// TrendBucket aggregates one UTC calendar day.
type TrendBucket struct {
	Date  string  `json:"date"` // YYYY-MM-DD
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

// EntityCount is an address and how often it appeared.
type EntityCount struct {
	Address    string  `json:"address"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// GroupCount is the number of events sharing one GroupBy value.
type GroupCount struct {
	Key   interface{} `json:"key"`
	Count int         `json:"count"`
}

// Stats summarizes a set of events. Every enum key is always present.
type Stats struct {
	TotalEvents      int               `json:"totalEvents"`
	EventsByCategory map[Category]int  `json:"eventsByCategory"`
	EventsByType     map[EventType]int `json:"eventsByType"`
	DateRange        DateRange         `json:"dateRange"`
	Trends           []TrendBucket     `json:"trends"`
	TopEntities      []EntityCount     `json:"topEntities"`
	Groups           []GroupCount      `json:"groups,omitempty"`
}

// NewStats returns a zeroed Stats anchored at now (Unix ms).
func NewStats(now int64) Stats {
	s := Stats{
		EventsByCategory: make(map[Category]int, len(AllCategories())),
		EventsByType:     make(map[EventType]int, len(AllEventTypes())),
		DateRange:        DateRange{Start: now, End: now},
		Trends:           []TrendBucket{},
		TopEntities:      []EntityCount{},
	}
	for _, c := range AllCategories() {
		s.EventsByCategory[c] = 0
	}
	for _, t := range AllEventTypes() {
		s.EventsByType[t] = 0
	}
	return s
}
