// Package analytics is the public face of the event store. Every telemetry
// operation degrades to a safe default when the store misbehaves: failures
// are logged and counted, never returned. Only import validation and the
// snapshot operations report errors to the caller.
package analytics

import (
	"context"
	"errors"
	"time"

	"github.com/arkilian/analytica/internal/aggregate"
	apperrors "github.com/arkilian/analytica/internal/errors"
	"github.com/arkilian/analytica/internal/observability"
	"github.com/arkilian/analytica/internal/query"
	"github.com/arkilian/analytica/internal/report"
	"github.com/arkilian/analytica/internal/retention"
	"github.com/arkilian/analytica/internal/store"
	"github.com/arkilian/analytica/internal/transfer"
	"github.com/arkilian/analytica/pkg/types"
	"github.com/sirupsen/logrus"
)

// DefaultStatsCeiling bounds how many events Summarize reads.
const DefaultStatsCeiling = 10000

// Deps holds the collaborators of a Service. Zero fields get defaults.
type Deps struct {
	Opener       *store.Opener
	Engine       *query.Engine
	Materializer *report.Materializer
	Evictor      *retention.Evictor
	Transfer     *transfer.Service
	IDs          types.IDSource
	Clock        func() time.Time
	StatsCeiling int
	Metrics      *observability.Metrics
	Logger       logrus.FieldLogger
}

// Service implements the analytics operations.
type Service struct {
	opener       *store.Opener
	engine       *query.Engine
	materializer *report.Materializer
	evictor      *retention.Evictor
	transfer     *transfer.Service
	ids          types.IDSource
	clock        func() time.Time
	statsCeiling int
	metrics      *observability.Metrics
	logger       logrus.FieldLogger
}

// New creates a Service. Opener is required.
func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = logrus.StandardLogger()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.IDs == nil {
		d.IDs = types.NewULIDGenerator()
	}
	if d.StatsCeiling <= 0 {
		d.StatsCeiling = DefaultStatsCeiling
	}
	if d.Engine == nil {
		d.Engine = query.NewEngine(nil, query.EngineConfig{Metrics: d.Metrics, Logger: d.Logger})
	}
	if d.Evictor == nil {
		d.Evictor = retention.NewEvictor(0, d.Metrics, d.Logger)
	}
	if d.Materializer == nil {
		d.Materializer = report.NewMaterializer(d.Engine, report.Config{
			IDs: d.IDs, Clock: d.Clock, Metrics: d.Metrics, Logger: d.Logger,
		})
	}
	if d.Transfer == nil {
		d.Transfer = transfer.New(d.Engine, d.Evictor, transfer.Config{
			Clock: d.Clock, Metrics: d.Metrics, Logger: d.Logger,
		})
	}
	return &Service{
		opener:       d.Opener,
		engine:       d.Engine,
		materializer: d.Materializer,
		evictor:      d.Evictor,
		transfer:     d.Transfer,
		ids:          d.IDs,
		clock:        d.Clock,
		statsCeiling: d.StatsCeiling,
		metrics:      d.Metrics,
		logger:       d.Logger.WithField("component", "analytics"),
	}
}

// Ready opens the store if needed and reports whether it is usable.
func (s *Service) Ready(ctx context.Context) error {
	_, err := s.opener.Open(ctx)
	return err
}

// Close releases the store.
func (s *Service) Close() error {
	return s.opener.Close()
}

func (s *Service) handle(ctx context.Context) (*store.Handle, error) {
	return s.opener.Open(ctx)
}

func (s *Service) logFailure(op string, err error) {
	s.logger.WithError(err).WithFields(logrus.Fields{
		"op":         op,
		"error_code": apperrors.GetCode(err),
	}).Warn("analytics: operation degraded")
}

// Record appends an event stamped with a fresh id and the current time, then
// runs a retention pass. Failures are logged and dropped.
func (s *Service) Record(ctx context.Context, typ types.EventType, cat types.Category, data, metadata map[string]interface{}) {
	now := s.clock()
	log := s.logger.WithFields(logrus.Fields{"op": "record", "event_type": typ})

	h, err := s.handle(ctx)
	if err != nil {
		s.metrics.IncIngest("unavailable")
		log.WithError(err).WithField("error_code", apperrors.GetCode(err)).Warn("analytics: event dropped")
		return
	}

	id, err := s.ids.NewID(now)
	if err != nil {
		s.metrics.IncIngest("error")
		log.WithError(err).Warn("analytics: event dropped")
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}

	e := types.Event{ID: id, Timestamp: now.UnixMilli(), Type: typ, Category: cat, Data: data, Metadata: metadata}
	if err := h.InsertEvent(ctx, e); err != nil {
		s.metrics.IncIngest("error")
		log.WithError(err).WithField("error_code", apperrors.GetCode(err)).Warn("analytics: event dropped")
	} else {
		s.metrics.IncIngest("ok")
	}

	if _, err := s.evictor.Enforce(ctx, h); err != nil {
		s.logFailure("evict", err)
	}
}

// Find returns the events matching q, newest first. It returns an empty
// slice on any failure.
func (s *Service) Find(ctx context.Context, q types.Query) []types.Event {
	h, err := s.handle(ctx)
	if err != nil {
		s.logFailure("find", err)
		return []types.Event{}
	}
	events, err := s.engine.Find(ctx, h, q)
	if err != nil {
		s.logFailure("find", err)
		return []types.Event{}
	}
	return events
}

// Summarize computes statistics over up to the stats ceiling of events
// matching q. Pagination in q is ignored. On failure the zeroed statistics
// are returned.
func (s *Service) Summarize(ctx context.Context, q types.Query) types.Stats {
	now := s.clock().UnixMilli()

	h, err := s.handle(ctx)
	if err != nil {
		s.logFailure("summarize", err)
		return types.NewStats(now)
	}
	events, err := s.engine.Find(ctx, h, q.WithLimit(s.statsCeiling, 0))
	if err != nil {
		s.logFailure("summarize", err)
		return types.NewStats(now)
	}

	stats := aggregate.Summarize(events, now)
	if q.GroupBy != "" {
		path, err := query.ParsePath(q.GroupBy)
		if err != nil {
			s.logFailure("summarize", err)
		} else {
			stats.Groups = aggregate.GroupCounts(events, path)
		}
	}
	return stats
}

// CreateReport materializes spec and returns the new report id, or "" on
// failure.
func (s *Service) CreateReport(ctx context.Context, spec types.ReportSpec) string {
	h, err := s.handle(ctx)
	if err != nil {
		s.logFailure("create_report", err)
		return ""
	}
	id, err := s.materializer.Create(ctx, h, spec)
	if err != nil {
		s.logFailure("create_report", err)
		return ""
	}
	return id
}

// ListReports returns all reports newest first, or an empty slice.
func (s *Service) ListReports(ctx context.Context) []*types.Report {
	h, err := s.handle(ctx)
	if err != nil {
		s.logFailure("list_reports", err)
		return []*types.Report{}
	}
	reports, err := s.materializer.List(ctx, h)
	if err != nil {
		s.logFailure("list_reports", err)
		return []*types.Report{}
	}
	return reports
}

// GetReport returns the report with id. ok is false when it does not exist
// or cannot be read.
func (s *Service) GetReport(ctx context.Context, id string) (*types.Report, bool) {
	h, err := s.handle(ctx)
	if err != nil {
		s.logFailure("get_report", err)
		return nil, false
	}
	r, err := s.materializer.Get(ctx, h, id)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			s.logFailure("get_report", err)
		}
		return nil, false
	}
	return r, true
}

// DeleteReport removes a report. Unknown ids and failures are not reported.
func (s *Service) DeleteReport(ctx context.Context, id string) {
	h, err := s.handle(ctx)
	if err != nil {
		s.logFailure("delete_report", err)
		return
	}
	if err := s.materializer.Delete(ctx, h, id); err != nil {
		s.logFailure("delete_report", err)
	}
}

// Export serializes the events matching q. Failures yield "[]".
func (s *Service) Export(ctx context.Context, q types.Query) []byte {
	h, err := s.handle(ctx)
	if err != nil {
		s.logFailure("export", err)
		return []byte("[]")
	}
	out, err := s.transfer.Export(ctx, h, q)
	if err != nil {
		s.logFailure("export", err)
		return []byte("[]")
	}
	return out
}

// Import ingests a JSON array of events. A payload that is not an array is
// a MALFORMED_IMPORT error; store failures are logged and the partial
// result is returned without an error.
func (s *Service) Import(ctx context.Context, text []byte) (*transfer.ImportResult, error) {
	h, err := s.handle(ctx)
	if err != nil {
		if _, perr := transfer.ParsePayload(text); perr != nil {
			return nil, perr
		}
		s.logFailure("import", err)
		return &transfer.ImportResult{}, nil
	}
	res, err := s.transfer.Import(ctx, h, text)
	if errors.Is(err, apperrors.ErrMalformedImport) {
		return nil, err
	}
	if err != nil {
		s.logFailure("import", err)
		return &transfer.ImportResult{}, nil
	}
	return res, nil
}

// Clear deletes every event. Reports are kept.
func (s *Service) Clear(ctx context.Context) {
	h, err := s.handle(ctx)
	if err != nil {
		s.logFailure("clear", err)
		return
	}
	if err := h.ClearEvents(ctx); err != nil {
		s.logFailure("clear", err)
		return
	}
	s.logger.WithField("op", "clear").Info("analytics: event log cleared")
}

// ExportTo writes a snapshot of q to object storage and returns its path.
func (s *Service) ExportTo(ctx context.Context, q types.Query, objectPath string) (string, error) {
	h, err := s.handle(ctx)
	if err != nil {
		return "", err
	}
	return s.transfer.ExportTo(ctx, h, q, objectPath)
}

// ImportFrom imports a snapshot from object storage.
func (s *Service) ImportFrom(ctx context.Context, objectPath string) (*transfer.ImportResult, error) {
	h, err := s.handle(ctx)
	if err != nil {
		return nil, err
	}
	return s.transfer.ImportFrom(ctx, h, objectPath)
}

// Snapshots lists stored snapshots, oldest first.
func (s *Service) Snapshots(ctx context.Context) ([]string, error) {
	return s.transfer.Snapshots(ctx)
}

// PruneSnapshots keeps the keep newest snapshots.
func (s *Service) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	return s.transfer.PruneSnapshots(ctx, keep)
}
