package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/arkilian/analytica/internal/errors"
	"github.com/arkilian/analytica/internal/transfer"
	"github.com/arkilian/analytica/pkg/types"
	"github.com/gorilla/mux"
)

// maxBodyBytes caps request bodies, import payloads included.
const maxBodyBytes = 64 << 20

// Analytics is the service surface the handlers drive.
type Analytics interface {
	Record(ctx context.Context, typ types.EventType, cat types.Category, data, metadata map[string]interface{})
	Find(ctx context.Context, q types.Query) []types.Event
	Summarize(ctx context.Context, q types.Query) types.Stats
	CreateReport(ctx context.Context, spec types.ReportSpec) string
	ListReports(ctx context.Context) []*types.Report
	GetReport(ctx context.Context, id string) (*types.Report, bool)
	DeleteReport(ctx context.Context, id string)
	Export(ctx context.Context, q types.Query) []byte
	Import(ctx context.Context, text []byte) (*transfer.ImportResult, error)
	Clear(ctx context.Context)
	ExportTo(ctx context.Context, q types.Query, objectPath string) (string, error)
	Snapshots(ctx context.Context) ([]string, error)
	Ready(ctx context.Context) error
}

// RecordRequest is the body of POST /v1/events.
type RecordRequest struct {
	Type     types.EventType        `json:"type"`
	Category types.Category         `json:"category"`
	Data     map[string]interface{} `json:"data"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// FindResponse is the body returned by POST /v1/events/query.
type FindResponse struct {
	Events    []types.Event `json:"events"`
	Count     int           `json:"count"`
	RequestID string        `json:"request_id"`
}

// SnapshotRequest is the optional body of POST /v1/exports.
type SnapshotRequest struct {
	Query  types.Query `json:"query"`
	Object string      `json:"object,omitempty"`
}

// Handlers serves the analytics API.
type Handlers struct {
	svc Analytics
}

// NewHandlers creates handlers backed by svc.
func NewHandlers(svc Analytics) *Handlers {
	return &Handlers{svc: svc}
}

// RegisterRoutes registers the API routes on router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.health).Methods("GET")

	v1 := router.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/events", h.record).Methods("POST")
	v1.HandleFunc("/events", h.clear).Methods("DELETE")
	v1.HandleFunc("/events/query", h.find).Methods("POST")
	v1.HandleFunc("/stats", h.stats).Methods("POST")
	v1.HandleFunc("/reports", h.listReports).Methods("GET")
	v1.HandleFunc("/reports", h.createReport).Methods("POST")
	v1.HandleFunc("/reports/{id}", h.getReport).Methods("GET")
	v1.HandleFunc("/reports/{id}", h.deleteReport).Methods("DELETE")
	v1.HandleFunc("/export", h.export).Methods("POST")
	v1.HandleFunc("/import", h.importEvents).Methods("POST")
	v1.HandleFunc("/exports", h.listSnapshots).Methods("GET")
	v1.HandleFunc("/exports", h.createSnapshot).Methods("POST")
}

// RouteName returns the route template matched for r, for metric labels.
func RouteName(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v
// untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// health handles GET /health
func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Ready(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable", apperrors.GetCode(err), GetRequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// record handles POST /v1/events
func (h *Handlers) record(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var req RecordRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", requestID)
		return
	}
	if !req.Type.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown event type %q", req.Type), "", requestID)
		return
	}
	if !req.Category.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown category %q", req.Category), "", requestID)
		return
	}

	h.svc.Record(r.Context(), req.Type, req.Category, req.Data, req.Metadata)
	w.WriteHeader(http.StatusAccepted)
}

// clear handles DELETE /v1/events
func (h *Handlers) clear(w http.ResponseWriter, r *http.Request) {
	h.svc.Clear(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// find handles POST /v1/events/query
func (h *Handlers) find(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var q types.Query
	if err := decodeBody(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid query: %v", err), "", requestID)
		return
	}

	events := h.svc.Find(r.Context(), q)
	writeJSON(w, http.StatusOK, FindResponse{Events: events, Count: len(events), RequestID: requestID})
}

// stats handles POST /v1/stats
func (h *Handlers) stats(w http.ResponseWriter, r *http.Request) {
	var q types.Query
	if err := decodeBody(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid query: %v", err), "", GetRequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, h.svc.Summarize(r.Context(), q))
}

// listReports handles GET /v1/reports
func (h *Handlers) listReports(w http.ResponseWriter, r *http.Request) {
	reports := h.svc.ListReports(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reports": reports,
		"count":   len(reports),
	})
}

// createReport handles POST /v1/reports
func (h *Handlers) createReport(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	var spec types.ReportSpec
	if err := decodeBody(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid report spec: %v", err), "", requestID)
		return
	}
	if spec.Type != "" && !spec.Type.Valid() {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown report type %q", spec.Type), apperrors.CodeMalformedQuery, requestID)
		return
	}

	id := h.svc.CreateReport(r.Context(), spec)
	if id == "" {
		writeError(w, http.StatusUnprocessableEntity, "report could not be created", "", requestID)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

// getReport handles GET /v1/reports/{id}
func (h *Handlers) getReport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	report, ok := h.svc.GetReport(r.Context(), id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("report %s not found", id), apperrors.CodeNotFound, GetRequestID(r.Context()))
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// deleteReport handles DELETE /v1/reports/{id}
func (h *Handlers) deleteReport(w http.ResponseWriter, r *http.Request) {
	h.svc.DeleteReport(r.Context(), mux.Vars(r)["id"])
	w.WriteHeader(http.StatusNoContent)
}

// export handles POST /v1/export
func (h *Handlers) export(w http.ResponseWriter, r *http.Request) {
	var q types.Query
	if err := decodeBody(r, &q); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid query: %v", err), "", GetRequestID(r.Context()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(h.svc.Export(r.Context(), q))
}

// importEvents handles POST /v1/import
func (h *Handlers) importEvents(w http.ResponseWriter, r *http.Request) {
	requestID := GetRequestID(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("failed to read body: %v", err), "", requestID)
		return
	}

	res, err := h.svc.Import(r.Context(), body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), apperrors.GetCode(err), requestID)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// listSnapshots handles GET /v1/exports
func (h *Handlers) listSnapshots(w http.ResponseWriter, r *http.Request) {
	objects, err := h.svc.Snapshots(r.Context())
	if err != nil {
		h.snapshotError(w, r, err)
		return
	}
	if objects == nil {
		objects = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"snapshots": objects,
		"count":     len(objects),
	})
}

// createSnapshot handles POST /v1/exports
func (h *Handlers) createSnapshot(w http.ResponseWriter, r *http.Request) {
	var req SnapshotRequest
	if err := decodeBody(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err), "", GetRequestID(r.Context()))
		return
	}

	object, err := h.svc.ExportTo(r.Context(), req.Query, req.Object)
	if err != nil {
		h.snapshotError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"object": object})
}

func (h *Handlers) snapshotError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := GetRequestID(r.Context())
	switch {
	case errors.Is(err, transfer.ErrNoSink):
		writeError(w, http.StatusNotImplemented, err.Error(), "", requestID)
	case errors.Is(err, apperrors.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, err.Error(), apperrors.CodeStoreUnavailable, requestID)
	default:
		writeError(w, http.StatusBadGateway, err.Error(), apperrors.GetCode(err), requestID)
	}
}
