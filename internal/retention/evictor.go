// Package retention caps the event log at a fixed number of records.
package retention

import (
	"context"
	"time"

	"github.com/arkilian/analytica/internal/observability"
	"github.com/sirupsen/logrus"
)

// DefaultMaxRecords is the retention ceiling used when none is configured.
const DefaultMaxRecords = 50000

// Store is the store surface the evictor needs.
type Store interface {
	// DeleteOldest keeps the keep most recent events and deletes the rest,
	// returning how many were deleted.
	DeleteOldest(ctx context.Context, keep int) (int, error)
}

// Evictor removes the oldest events once the log grows past MaxRecords.
// The cap is soft: writes that land between two passes may briefly exceed it.
type Evictor struct {
	maxRecords int
	metrics    *observability.Metrics
	logger     logrus.FieldLogger
}

// NewEvictor creates an evictor. maxRecords <= 0 selects DefaultMaxRecords.
func NewEvictor(maxRecords int, metrics *observability.Metrics, logger logrus.FieldLogger) *Evictor {
	if maxRecords <= 0 {
		maxRecords = DefaultMaxRecords
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Evictor{
		maxRecords: maxRecords,
		metrics:    metrics,
		logger:     logger.WithField("component", "retention"),
	}
}

// EvictionResult holds the outcome of one pass.
type EvictionResult struct {
	Deleted  int
	Duration time.Duration
}

// Enforce runs one retention pass.
func (e *Evictor) Enforce(ctx context.Context, st Store) (*EvictionResult, error) {
	start := time.Now()

	deleted, err := st.DeleteOldest(ctx, e.maxRecords)
	if err != nil {
		return nil, err
	}

	result := &EvictionResult{Deleted: deleted, Duration: time.Since(start)}
	e.metrics.ObserveEviction(deleted, result.Duration)

	if deleted > 0 {
		e.logger.WithFields(logrus.Fields{
			"deleted":     deleted,
			"max_records": e.maxRecords,
			"duration":    result.Duration,
		}).Info("retention: evicted oldest events")
	}
	return result, nil
}

// MaxRecords returns the configured ceiling.
func (e *Evictor) MaxRecords() int {
	return e.maxRecords
}
