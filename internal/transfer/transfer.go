// Package transfer serializes query results to JSON and ingests JSON event
// arrays back into the store, optionally through an object storage sink.
package transfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"time"

	"github.com/arkilian/analytica/internal/bloom"
	apperrors "github.com/arkilian/analytica/internal/errors"
	"github.com/arkilian/analytica/internal/observability"
	"github.com/arkilian/analytica/internal/query"
	"github.com/arkilian/analytica/internal/retention"
	"github.com/arkilian/analytica/internal/storage"
	"github.com/arkilian/analytica/pkg/types"
	"github.com/sirupsen/logrus"
)

// Store is the store surface import and export need.
type Store interface {
	query.EventSource
	retention.Store
	InsertEvent(ctx context.Context, e types.Event) error
	HasEvent(ctx context.Context, id string) (bool, error)
	EventIDs(ctx context.Context) ([]string, error)
}

// ErrNoSink is returned by the object storage operations when no sink is
// configured.
var ErrNoSink = errors.New("transfer: no object storage configured")

// Config configures a Service.
type Config struct {
	// Sink receives snapshots written by ExportTo. It may be nil.
	Sink storage.ObjectStorage
	// Prefix is the object path prefix for generated snapshot names.
	Prefix  string
	Clock   func() time.Time
	Metrics *observability.Metrics
	Logger  logrus.FieldLogger
}

// Service implements import and export.
type Service struct {
	engine  *query.Engine
	evictor *retention.Evictor
	sink    storage.ObjectStorage
	prefix  string
	clock   func() time.Time
	metrics *observability.Metrics
	logger  logrus.FieldLogger
}

// New creates a Service.
func New(engine *query.Engine, evictor *retention.Evictor, cfg Config) *Service {
	if cfg.Prefix == "" {
		cfg.Prefix = "exports"
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &Service{
		engine:  engine,
		evictor: evictor,
		sink:    cfg.Sink,
		prefix:  cfg.Prefix,
		clock:   cfg.Clock,
		metrics: cfg.Metrics,
		logger:  cfg.Logger.WithField("component", "transfer"),
	}
}

// Export runs q and returns the matches as an indented JSON array. No
// matches yields "[]".
func (s *Service) Export(ctx context.Context, st Store, q types.Query) ([]byte, error) {
	events, err := s.engine.Find(ctx, st, q)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []types.Event{}
	}
	out, err := json.MarshalIndent(events, "", "  ")
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode export", err)
	}
	return out, nil
}

// ImportResult summarizes one import.
type ImportResult struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Evicted int `json:"evicted"`
}

// Import ingests a JSON array of events, keeping their ids and timestamps.
// A payload whose top level is not an array fails with MALFORMED_IMPORT.
// Elements missing a mandatory field, and ids already stored, are skipped.
// Retention runs once after the batch.
func (s *Service) Import(ctx context.Context, st Store, text []byte) (*ImportResult, error) {
	elements, err := ParsePayload(text)
	if err != nil {
		return nil, err
	}

	result := &ImportResult{}
	if len(elements) == 0 {
		return result, nil
	}

	existing, err := st.EventIDs(ctx)
	if err != nil {
		return nil, err
	}
	seen := bloom.New(len(existing)+len(elements), 0.01)
	for _, id := range existing {
		seen.Add(id)
	}

	for i, raw := range elements {
		e, ok := decodeElement(raw)
		if !ok {
			result.Skipped++
			s.logger.WithField("index", i).Debug("transfer: skipped element missing mandatory fields")
			continue
		}

		if seen.MayContain(e.ID) {
			dup, err := st.HasEvent(ctx, e.ID)
			if err != nil {
				return nil, err
			}
			if dup {
				result.Skipped++
				s.logger.WithFields(logrus.Fields{
					"event_id":   e.ID,
					"error_code": apperrors.CodeRecordRejected,
				}).Debug("transfer: skipped duplicate event")
				continue
			}
		}

		if err := st.InsertEvent(ctx, e); err != nil {
			if errors.Is(err, apperrors.ErrRecordRejected) {
				result.Skipped++
				s.logger.WithError(err).WithField("event_id", e.ID).Warn("transfer: record rejected")
				continue
			}
			return nil, err
		}
		seen.Add(e.ID)
		result.Added++
	}

	if s.evictor != nil {
		ev, err := s.evictor.Enforce(ctx, st)
		if err != nil {
			s.logger.WithError(err).Warn("transfer: retention after import failed")
		} else {
			result.Evicted = ev.Deleted
		}
	}

	s.metrics.AddImported(result.Added, result.Skipped)
	s.logger.WithFields(logrus.Fields{
		"added":   result.Added,
		"skipped": result.Skipped,
		"evicted": result.Evicted,
	}).Info("transfer: import finished")
	return result, nil
}

// ParsePayload splits an import payload into its raw elements. It fails with
// MALFORMED_IMPORT unless the top level is a JSON array.
func ParsePayload(text []byte) ([]json.RawMessage, error) {
	var elements []json.RawMessage
	if err := json.Unmarshal(text, &elements); err != nil {
		return nil, apperrors.NewMalformedImport("import payload must be a JSON array", err)
	}
	if elements == nil {
		// literal null
		return nil, apperrors.NewMalformedImport("import payload must be a JSON array", nil)
	}
	return elements, nil
}

// decodeElement accepts an object with a non-empty string id, a numeric
// timestamp and string type and category. data and metadata are kept when
// they are objects.
func decodeElement(raw json.RawMessage) (types.Event, bool) {
	var obj map[string]interface{}
	if err := json.Unmarshal(raw, &obj); err != nil || obj == nil {
		return types.Event{}, false
	}

	id, ok := obj["id"].(string)
	if !ok || id == "" {
		return types.Event{}, false
	}
	ts, ok := obj["timestamp"].(float64)
	if !ok {
		return types.Event{}, false
	}
	typ, ok := obj["type"].(string)
	if !ok {
		return types.Event{}, false
	}
	cat, ok := obj["category"].(string)
	if !ok {
		return types.Event{}, false
	}

	e := types.Event{
		ID:        id,
		Timestamp: int64(ts),
		Type:      types.EventType(typ),
		Category:  types.Category(cat),
		Data:      map[string]interface{}{},
	}
	if data, ok := obj["data"].(map[string]interface{}); ok {
		e.Data = data
	}
	if meta, ok := obj["metadata"].(map[string]interface{}); ok {
		e.Metadata = meta
	}
	return e, true
}

// ExportTo writes an export of q to the sink. An empty objectPath gets a
// timestamped name under the configured prefix. It returns the object path.
func (s *Service) ExportTo(ctx context.Context, st Store, q types.Query, objectPath string) (string, error) {
	if s.sink == nil {
		return "", ErrNoSink
	}
	if objectPath == "" {
		objectPath = s.SnapshotName()
	}

	body, err := s.Export(ctx, st, q)
	if err != nil {
		s.metrics.IncExport(s.sink.Backend(), "error")
		return "", err
	}
	if err := s.sink.Put(ctx, objectPath, body); err != nil {
		s.metrics.IncExport(s.sink.Backend(), "error")
		return "", fmt.Errorf("transfer: failed to write snapshot %s: %w", objectPath, err)
	}

	s.metrics.IncExport(s.sink.Backend(), "ok")
	s.logger.WithFields(logrus.Fields{
		"object":  objectPath,
		"bytes":   len(body),
		"backend": s.sink.Backend(),
	}).Info("transfer: snapshot written")
	return objectPath, nil
}

// ImportFrom imports a snapshot previously written to the sink.
func (s *Service) ImportFrom(ctx context.Context, st Store, objectPath string) (*ImportResult, error) {
	if s.sink == nil {
		return nil, ErrNoSink
	}
	body, err := s.sink.Get(ctx, objectPath)
	if errors.Is(err, storage.ErrObjectNotFound) {
		return nil, apperrors.NewNotFound(fmt.Sprintf("snapshot %s not found", objectPath))
	}
	if err != nil {
		return nil, fmt.Errorf("transfer: failed to read snapshot %s: %w", objectPath, err)
	}
	return s.Import(ctx, st, body)
}

// Snapshots lists snapshot objects under the prefix, oldest first.
func (s *Service) Snapshots(ctx context.Context) ([]string, error) {
	if s.sink == nil {
		return nil, ErrNoSink
	}
	return s.sink.ListObjects(ctx, s.prefix+"/")
}

// PruneSnapshots deletes all but the keep newest snapshots. keep <= 0 keeps
// everything.
func (s *Service) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	objects, err := s.Snapshots(ctx)
	if err != nil {
		return 0, err
	}
	if len(objects) <= keep {
		return 0, nil
	}

	stale := objects[:len(objects)-keep]
	for i, obj := range stale {
		if err := s.sink.Delete(ctx, obj); err != nil {
			return i, fmt.Errorf("transfer: failed to delete snapshot %s: %w", obj, err)
		}
	}
	s.logger.WithField("deleted", len(stale)).Info("transfer: pruned old snapshots")
	return len(stale), nil
}

// SnapshotName returns a sortable object path for a snapshot taken now.
func (s *Service) SnapshotName() string {
	stamp := s.clock().UTC().Format("20060102T150405.000Z")
	return path.Join(s.prefix, "events-"+stamp+".json")
}
