// Package report materializes point-in-time reports from query results and
// serves them back from the store through an expiring LRU cache.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	apperrors "github.com/arkilian/analytica/internal/errors"
	"github.com/arkilian/analytica/internal/observability"
	"github.com/arkilian/analytica/internal/query"
	"github.com/arkilian/analytica/pkg/types"
	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/sirupsen/logrus"
)

// Store is the persistence surface reports need.
type Store interface {
	query.EventSource
	PutReport(ctx context.Context, r *types.Report) error
	GetReport(ctx context.Context, id string) (*types.Report, error)
	ListReports(ctx context.Context) ([]*types.Report, error)
	DeleteReport(ctx context.Context, id string) error
}

// Config configures a Materializer.
type Config struct {
	CacheSize int
	CacheTTL  time.Duration
	IDs       types.IDSource
	Clock     func() time.Time
	Metrics   *observability.Metrics
	Logger    logrus.FieldLogger
}

// Materializer creates and retrieves reports.
type Materializer struct {
	engine  *query.Engine
	ids     types.IDSource
	clock   func() time.Time
	cache   *lru.LRU[string, *types.Report]
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// NewMaterializer creates a Materializer that runs report queries on engine.
func NewMaterializer(engine *query.Engine, cfg Config) *Materializer {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 256
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.IDs == nil {
		cfg.IDs = types.NewULIDGenerator()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Materializer{
		engine:  engine,
		ids:     cfg.IDs,
		clock:   cfg.Clock,
		cache:   lru.NewLRU[string, *types.Report](cfg.CacheSize, nil, cfg.CacheTTL),
		metrics: cfg.Metrics,
		logger:  cfg.Logger.WithField("component", "report"),
	}
}

// Create runs spec's query, projects the charts and stores the result as a
// new report. It returns the report id.
func (m *Materializer) Create(ctx context.Context, st Store, spec types.ReportSpec) (string, error) {
	kind := spec.Type
	if kind == "" {
		kind = types.ReportCustom
	}
	if !kind.Valid() {
		m.metrics.IncReport("create", "rejected")
		return "", apperrors.NewMalformedQuery(fmt.Sprintf("unknown report type %q", spec.Type))
	}

	charts, err := compileCharts(spec.Charts)
	if err != nil {
		m.metrics.IncReport("create", "rejected")
		return "", err
	}

	events, err := m.engine.Find(ctx, st, spec.Query)
	if err != nil {
		m.metrics.IncReport("create", "error")
		return "", err
	}

	now := m.clock()
	id, err := m.ids.NewID(now)
	if err != nil {
		m.metrics.IncReport("create", "error")
		return "", apperrors.NewInternalError("failed to generate report id", err)
	}

	r := &types.Report{
		ID:          id,
		Title:       spec.Title,
		Description: spec.Description,
		Type:        kind,
		Query:       spec.Query,
		Data:        snapshot(events),
		Charts:      make([]types.Chart, len(charts)),
		CreatedAt:   now.UnixMilli(),
		UpdatedAt:   now.UnixMilli(),
	}
	for i, c := range charts {
		r.Charts[i] = c.project(r.Data)
	}

	if err := st.PutReport(ctx, r); err != nil {
		m.metrics.IncReport("create", "error")
		return "", err
	}

	m.cache.Add(id, r)
	m.metrics.IncReport("create", "ok")
	m.logger.WithFields(logrus.Fields{
		"report_id": id,
		"type":      kind,
		"events":    len(r.Data),
		"charts":    len(r.Charts),
	}).Info("report: created")
	return id, nil
}

// Get returns the report with id or a NOT_FOUND error. The caller owns the
// returned value.
func (m *Materializer) Get(ctx context.Context, st Store, id string) (*types.Report, error) {
	if r, ok := m.cache.Get(id); ok {
		m.metrics.IncReportCache(true)
		return clone(r), nil
	}
	m.metrics.IncReportCache(false)

	r, err := st.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	m.cache.Add(id, r)
	return clone(r), nil
}

// List returns every stored report, newest first.
func (m *Materializer) List(ctx context.Context, st Store) ([]*types.Report, error) {
	return st.ListReports(ctx)
}

// Delete removes a report. Deleting an unknown id succeeds.
func (m *Materializer) Delete(ctx context.Context, st Store, id string) error {
	m.cache.Remove(id)
	if err := st.DeleteReport(ctx, id); err != nil {
		m.metrics.IncReport("delete", "error")
		return err
	}
	m.metrics.IncReport("delete", "ok")
	return nil
}

// Purge drops every cached report.
func (m *Materializer) Purge() {
	m.cache.Purge()
}

// snapshot detaches events from anything the store or engine may still hold.
func snapshot(events []types.Event) []types.Event {
	out := make([]types.Event, len(events))
	for i, e := range events {
		out[i] = e.Clone()
	}
	return out
}

func clone(r *types.Report) *types.Report {
	raw, err := json.Marshal(r)
	if err != nil {
		cp := *r
		return &cp
	}
	var out types.Report
	if err := json.Unmarshal(raw, &out); err != nil {
		cp := *r
		return &cp
	}
	return &out
}
