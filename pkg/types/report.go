package types

// ReportKind is the fixed set of report flavours.
type ReportKind string

const (
	ReportTransactionSummary ReportKind = "transaction_summary"
	ReportGasAnalysis        ReportKind = "gas_analysis"
	ReportWalletActivity     ReportKind = "wallet_activity"
	ReportDexPerformance     ReportKind = "dex_performance"
	ReportNetworkHealth      ReportKind = "network_health"
	ReportCustom             ReportKind = "custom"
)

// Valid reports whether k is a known report kind.
func (k ReportKind) Valid() bool {
	switch k {
	case ReportTransactionSummary, ReportGasAnalysis, ReportWalletActivity,
		ReportDexPerformance, ReportNetworkHealth, ReportCustom:
		return true
	}
	return false
}

// ChartKind is the rendering hint for a chart.
type ChartKind string

const (
	ChartLine    ChartKind = "line"
	ChartBar     ChartKind = "bar"
	ChartPie     ChartKind = "pie"
	ChartArea    ChartKind = "area"
	ChartScatter ChartKind = "scatter"
)

// SeriesSpec is the caller-supplied description of one chart series.
type SeriesSpec struct {
	Name  string    `json:"name"`
	Color string    `json:"color,omitempty"`
	Type  ChartKind `json:"type,omitempty"`
}

// ChartSpec describes a chart to materialize. XAxis and YAxis are dotted paths.
type ChartSpec struct {
	Type   ChartKind    `json:"type"`
	Title  string       `json:"title"`
	XAxis  string       `json:"xAxis"`
	YAxis  string       `json:"yAxis"`
	Series []SeriesSpec `json:"series"`
}

// DataPoint is one projected event. Unresolved axes are nil.
type DataPoint struct {
	X interface{} `json:"x"`
	Y interface{} `json:"y"`
}

// Series is a materialized series.
type Series struct {
	Name  string      `json:"name"`
	Color string      `json:"color,omitempty"`
	Type  ChartKind   `json:"type,omitempty"`
	Data  []DataPoint `json:"data"`
}

// Chart is a materialized chart.
type Chart struct {
	Type   ChartKind `json:"type"`
	Title  string    `json:"title"`
	XAxis  string    `json:"xAxis"`
	YAxis  string    `json:"yAxis"`
	Series []Series  `json:"series"`
}

// ReportSpec is the input to report creation.
type ReportSpec struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Type        ReportKind  `json:"type"`
	Query       Query       `json:"query"`
	Charts      []ChartSpec `json:"charts"`
}

// Report is a point-in-time snapshot of a query and its chart projections.
// Reports are never refreshed; recreate one to pick up new data.
type Report struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Type        ReportKind `json:"type"`
	Query       Query      `json:"query"`
	Data        []Event    `json:"data"`
	Charts      []Chart    `json:"charts"`
	CreatedAt   int64      `json:"createdAt"`
	UpdatedAt   int64      `json:"updatedAt"`
}
