package store

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/arkilian/analytica/internal/errors"
	"github.com/arkilian/analytica/pkg/types"
)

// PutReport stores a report. Reports are immutable; an existing id is
// rejected.
func (h *Handle) PutReport(ctx context.Context, r *types.Report) error {
	body, err := encodeJSON(r)
	if err != nil {
		return classify("failed to encode report", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err = h.db.ExecContext(ctx,
		`INSERT INTO reports (id, type, created_at, body) VALUES (?, ?, ?, ?)`,
		r.ID, string(r.Type), r.CreatedAt, body,
	)
	if err != nil {
		return classify(fmt.Sprintf("failed to insert report %s", r.ID), err)
	}
	return nil
}

// GetReport returns the report with id, or a NOT_FOUND error.
func (h *Handle) GetReport(ctx context.Context, id string) (*types.Report, error) {
	var body []byte
	err := h.readDB.QueryRowContext(ctx, `SELECT body FROM reports WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFound(fmt.Sprintf("report %s not found", id))
	}
	if err != nil {
		return nil, classify("failed to read report", err)
	}

	var r types.Report
	if err := decodeJSON(body, &r); err != nil {
		return nil, classify(fmt.Sprintf("corrupt report %s", id), err)
	}
	return &r, nil
}

// ListReports returns all reports, newest first.
func (h *Handle) ListReports(ctx context.Context) ([]*types.Report, error) {
	rows, err := h.readDB.QueryContext(ctx,
		`SELECT body FROM reports INDEXED BY idx_reports_created_at ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, classify("failed to list reports", err)
	}
	defer rows.Close()

	reports := []*types.Report{}
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, classify("failed to scan report", err)
		}
		var r types.Report
		if err := decodeJSON(body, &r); err != nil {
			return nil, classify("corrupt report", err)
		}
		reports = append(reports, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating reports", err)
	}
	return reports, nil
}

// DeleteReport removes a report. Unknown ids are not an error.
func (h *Handle) DeleteReport(ctx context.Context, id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := h.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id); err != nil {
		return classify("failed to delete report", err)
	}
	return nil
}
