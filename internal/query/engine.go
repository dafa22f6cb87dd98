package query

import (
	"context"
	"sort"
	"time"

	"github.com/arkilian/analytica/internal/observability"
	"github.com/arkilian/analytica/internal/store"
	"github.com/arkilian/analytica/pkg/types"
	"github.com/sirupsen/logrus"
)

// DefaultLimit is the page size used when a query does not set one.
const DefaultLimit = 100

// EventSource is the store surface the engine reads from.
type EventSource interface {
	ScanEvents(ctx context.Context, scan store.IndexScan) ([]types.Event, error)
}

// Engine executes queries against an EventSource.
type Engine struct {
	planner      *Planner
	defaultLimit int
	metrics      *observability.Metrics
	logger       logrus.FieldLogger
}

// EngineConfig holds engine settings.
type EngineConfig struct {
	DefaultLimit int
	Metrics      *observability.Metrics
	Logger       logrus.FieldLogger
}

// NewEngine creates an engine that plans with planner.
func NewEngine(planner *Planner, cfg EngineConfig) *Engine {
	if cfg.DefaultLimit <= 0 {
		cfg.DefaultLimit = DefaultLimit
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if planner == nil {
		planner = NewPlanner(nil)
	}
	return &Engine{
		planner:      planner,
		defaultLimit: cfg.DefaultLimit,
		metrics:      cfg.Metrics,
		logger:       cfg.Logger,
	}
}

// Find returns the events matching q, newest first, paginated. Filter paths
// are compiled before the store is touched, so a malformed path fails with
// MALFORMED_QUERY without a scan.
func (e *Engine) Find(ctx context.Context, src EventSource, q types.Query) ([]types.Event, error) {
	start := time.Now()

	preds, err := Compile(q.Filters)
	if err != nil {
		return nil, err
	}

	scan := e.planner.Plan(q)
	e.planner.observeFilters(preds)

	candidates, err := src.ScanEvents(ctx, scan)
	if err != nil {
		e.metrics.ObserveQuery(scan.Index.String(), "error", time.Since(start))
		return nil, err
	}

	matched := make([]types.Event, 0, len(candidates))
	for _, ev := range candidates {
		if !inRange(ev.Timestamp, q.StartDate, q.EndDate) {
			continue
		}
		if !preds.Match(ev) {
			continue
		}
		matched = append(matched, ev)
	}

	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp > matched[j].Timestamp
	})

	page := paginate(matched, e.pageWindow(q))

	e.metrics.ObserveQuery(scan.Index.String(), "ok", time.Since(start))
	e.logger.WithFields(logrus.Fields{
		"index":      scan.Index.String(),
		"candidates": len(candidates),
		"matched":    len(matched),
		"returned":   len(page),
	}).Debug("query: executed")

	return page, nil
}

// inRange applies the inclusive date bounds that are set.
func inRange(ts int64, startDate, endDate *int64) bool {
	if startDate != nil && ts < *startDate {
		return false
	}
	if endDate != nil && ts > *endDate {
		return false
	}
	return true
}

type window struct {
	offset, limit int
}

// pageWindow resolves pagination. A missing or non-positive limit falls back to
// the default, a missing or negative offset to zero.
func (e *Engine) pageWindow(q types.Query) window {
	w := window{offset: 0, limit: e.defaultLimit}
	if q.Offset != nil && *q.Offset > 0 {
		w.offset = *q.Offset
	}
	if q.Limit != nil && *q.Limit > 0 {
		w.limit = *q.Limit
	}
	return w
}

func paginate(events []types.Event, w window) []types.Event {
	if w.offset >= len(events) {
		return []types.Event{}
	}
	end := len(events)
	if w.limit < end-w.offset {
		end = w.offset + w.limit
	}
	return events[w.offset:end]
}
