package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/arkilian/analytica/pkg/types"
)

// Index identifies which access path an event scan uses.
type Index int

const (
	// IndexFullScan walks the whole log in timestamp order.
	IndexFullScan Index = iota
	IndexType
	IndexCategory
	IndexTypeCategory
)

// String returns the index name used in logs and metrics.
func (i Index) String() string {
	switch i {
	case IndexType:
		return "type"
	case IndexCategory:
		return "category"
	case IndexTypeCategory:
		return "type_category"
	default:
		return "full_scan"
	}
}

// IndexScan is a concrete retrieval request against one index.
type IndexScan struct {
	Index    Index
	Type     types.EventType
	Category types.Category
}

const eventColumns = `id, timestamp, type, category, data, metadata`

// InsertEvent writes a single event. A duplicate id yields RECORD_REJECTED.
func (h *Handle) InsertEvent(ctx context.Context, e types.Event) error {
	data, err := encodeJSON(e.Data)
	if err != nil {
		return classify("failed to encode event data", err)
	}
	meta, err := encodeJSON(e.Metadata)
	if err != nil {
		return classify("failed to encode event metadata", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err = h.db.ExecContext(ctx,
		`INSERT INTO events (`+eventColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Timestamp, string(e.Type), string(e.Category), data, meta,
	)
	if err != nil {
		return classify(fmt.Sprintf("failed to insert event %s", e.ID), err)
	}
	return nil
}

// ScanEvents returns every event matched by the scan's index key, in no
// particular order.
func (h *Handle) ScanEvents(ctx context.Context, scan IndexScan) ([]types.Event, error) {
	query, args := buildScanQuery(scan)

	rows, err := h.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify("failed to scan events", err)
	}
	defer rows.Close()

	var events []types.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating events", err)
	}
	return events, nil
}

// buildScanQuery pins the scan to its index with INDEXED BY so the chosen
// plan is the one SQLite executes.
func buildScanQuery(scan IndexScan) (string, []interface{}) {
	base := `SELECT ` + eventColumns + ` FROM events INDEXED BY `
	switch scan.Index {
	case IndexTypeCategory:
		return base + idxEventsTypeCategory + ` WHERE type = ? AND category = ?`,
			[]interface{}{string(scan.Type), string(scan.Category)}
	case IndexType:
		return base + idxEventsType + ` WHERE type = ?`, []interface{}{string(scan.Type)}
	case IndexCategory:
		return base + idxEventsCategory + ` WHERE category = ?`, []interface{}{string(scan.Category)}
	default:
		return base + idxEventsTimestamp + ` ORDER BY timestamp`, nil
	}
}

func scanEvent(rows *sql.Rows) (types.Event, error) {
	var (
		e          types.Event
		typ, cat   string
		data, meta []byte
	)
	if err := rows.Scan(&e.ID, &e.Timestamp, &typ, &cat, &data, &meta); err != nil {
		return types.Event{}, classify("failed to scan event", err)
	}
	e.Type = types.EventType(typ)
	e.Category = types.Category(cat)
	if err := decodeJSON(data, &e.Data); err != nil {
		return types.Event{}, classify(fmt.Sprintf("corrupt data for event %s", e.ID), err)
	}
	if err := decodeJSON(meta, &e.Metadata); err != nil {
		return types.Event{}, classify(fmt.Sprintf("corrupt metadata for event %s", e.ID), err)
	}
	if e.Data == nil {
		e.Data = map[string]interface{}{}
	}
	return e, nil
}

// CountEvents returns the number of stored events.
func (h *Handle) CountEvents(ctx context.Context) (int, error) {
	var n int
	if err := h.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, classify("failed to count events", err)
	}
	return n, nil
}

// HasEvent reports whether an event with id exists.
func (h *Handle) HasEvent(ctx context.Context, id string) (bool, error) {
	var one int
	err := h.readDB.QueryRowContext(ctx, `SELECT 1 FROM events WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, classify("failed to look up event", err)
	}
	return true, nil
}

// EventIDs returns the ids of all stored events.
func (h *Handle) EventIDs(ctx context.Context) ([]string, error) {
	rows, err := h.readDB.QueryContext(ctx, `SELECT id FROM events`)
	if err != nil {
		return nil, classify("failed to list event ids", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, classify("failed to scan event id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating event ids", err)
	}
	return ids, nil
}

// DeleteOldest keeps the keep most recent events (timestamp desc, id desc as
// tiebreak) and deletes the rest. Counting and deleting share one write
// transaction. It returns the number of deleted events.
func (h *Handle) DeleteOldest(ctx context.Context, keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, classify("failed to begin eviction transaction", err)
	}
	defer tx.Rollback()

	var total int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&total); err != nil {
		return 0, classify("failed to count events", err)
	}
	if total <= keep {
		return 0, nil
	}

	res, err := tx.ExecContext(ctx, `
		DELETE FROM events WHERE id IN (
			SELECT id FROM events INDEXED BY `+idxEventsTimestamp+`
			ORDER BY timestamp DESC, id DESC
			LIMIT -1 OFFSET ?
		)`, keep)
	if err != nil {
		return 0, classify("failed to delete excess events", err)
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, classify("failed to read eviction result", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, classify("failed to commit eviction", err)
	}
	return int(deleted), nil
}

// ClearEvents deletes every event. Reports are untouched.
func (h *Handle) ClearEvents(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.db.ExecContext(ctx, `DELETE FROM events`); err != nil {
		return classify("failed to clear events", err)
	}
	return nil
}
