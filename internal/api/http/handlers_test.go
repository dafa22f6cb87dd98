package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arkilian/analytica/internal/analytics"
	"github.com/arkilian/analytica/internal/query"
	"github.com/arkilian/analytica/internal/retention"
	"github.com/arkilian/analytica/internal/storage"
	"github.com/arkilian/analytica/internal/store"
	"github.com/arkilian/analytica/internal/transfer"
	"github.com/arkilian/analytica/pkg/types"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(t *testing.T, dbPath string, withSink bool) *mux.Router {
	t.Helper()
	logger, _ := test.NewNullLogger()

	opener := store.NewOpener(dbPath, store.Options{Logger: logger})
	t.Cleanup(func() { opener.Close() })

	engine := query.NewEngine(nil, query.EngineConfig{Logger: logger})
	evictor := retention.NewEvictor(0, nil, logger)
	cfg := transfer.Config{Logger: logger}
	if withSink {
		sink, err := storage.NewLocalStorage(t.TempDir())
		require.NoError(t, err)
		cfg.Sink = sink
	}

	svc := analytics.New(analytics.Deps{
		Opener:   opener,
		Engine:   engine,
		Evictor:  evictor,
		Transfer: transfer.New(engine, evictor, cfg),
		Logger:   logger,
	})

	router := mux.NewRouter()
	router.Use(DefaultMiddleware(logger))
	NewHandlers(svc).RegisterRoutes(router)
	return router
}

func healthyRouter(t *testing.T) *mux.Router {
	return newRouter(t, filepath.Join(t.TempDir(), "analytics.db"), true)
}

func do(t *testing.T, router http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRecordAndQuery(t *testing.T) {
	router := healthyRouter(t)

	w := do(t, router, "POST", "/v1/events", `{"type":"transaction","category":"financial","data":{"address":"0xa","value":5}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = do(t, router, "POST", "/v1/events", `{"type":"error","category":"system"}`)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = do(t, router, "POST", "/v1/events/query", `{"type":"transaction","filters":{"data.address":"0xa"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp FindResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, 5.0, resp.Events[0].Data["value"])
	assert.NotEmpty(t, resp.RequestID)

	// empty body means no constraints
	w = do(t, router, "POST", "/v1/events/query", "")
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, 2, resp.Count)
}

func TestRecord_RejectsUnknownEnums(t *testing.T) {
	router := healthyRouter(t)

	for _, body := range []string{
		`{"type":"mint","category":"financial"}`,
		`{"type":"transaction","category":"galaxy"}`,
		`{"type":`,
	} {
		w := do(t, router, "POST", "/v1/events", body)
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
}

func TestRequestIDIsPropagated(t *testing.T) {
	router := healthyRouter(t)
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestStats(t *testing.T) {
	router := healthyRouter(t)
	do(t, router, "POST", "/v1/events", `{"type":"gas_fee","category":"financial","data":{"value":2}}`)
	do(t, router, "POST", "/v1/events", `{"type":"gas_fee","category":"financial","data":{"value":3}}`)

	w := do(t, router, "POST", "/v1/stats", `{}`)
	require.Equal(t, http.StatusOK, w.Code)

	var stats types.Stats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 2, stats.TotalEvents)
	assert.Equal(t, 2, stats.EventsByType[types.EventGasFee])
	assert.Equal(t, 0, stats.EventsByCategory[types.CategoryUser])
	require.Len(t, stats.Trends, 1)
	assert.Equal(t, 5.0, stats.Trends[0].Value)
}

func TestReportLifecycle(t *testing.T) {
	router := healthyRouter(t)
	do(t, router, "POST", "/v1/events", `{"type":"dex_trade","category":"financial","data":{"amount":7}}`)

	w := do(t, router, "POST", "/v1/reports", `{"title":"dex","type":"dex_performance","charts":[{"type":"bar","xAxis":"timestamp","yAxis":"data.amount","series":[{"name":"amount"}]}]}`)
	require.Equal(t, http.StatusCreated, w.Code)
	var created map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	id := created["id"]
	require.NotEmpty(t, id)

	w = do(t, router, "GET", "/v1/reports/"+id, "")
	require.Equal(t, http.StatusOK, w.Code)
	var report types.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, "dex", report.Title)
	assert.Equal(t, 7.0, report.Charts[0].Series[0].Data[0].Y)

	w = do(t, router, "GET", "/v1/reports", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Count int `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, 1, list.Count)

	w = do(t, router, "DELETE", "/v1/reports/"+id, "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, router, "GET", "/v1/reports/"+id, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateReport_UnknownType(t *testing.T) {
	router := healthyRouter(t)
	w := do(t, router, "POST", "/v1/reports", `{"title":"x","type":"weekly"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExportImportClear(t *testing.T) {
	router := healthyRouter(t)
	do(t, router, "POST", "/v1/events", `{"type":"rpc_call","category":"network"}`)
	do(t, router, "POST", "/v1/events", `{"type":"rpc_call","category":"network"}`)

	w := do(t, router, "POST", "/v1/export", "")
	require.Equal(t, http.StatusOK, w.Code)
	exported := w.Body.String()

	var events []types.Event
	require.NoError(t, json.Unmarshal([]byte(exported), &events))
	require.Len(t, events, 2)

	w = do(t, router, "DELETE", "/v1/events", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, router, "POST", "/v1/export", "")
	assert.Equal(t, "[]", w.Body.String())

	w = do(t, router, "POST", "/v1/import", exported)
	require.Equal(t, http.StatusOK, w.Code)
	var res transfer.ImportResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&res))
	assert.Equal(t, 2, res.Added)

	w = do(t, router, "POST", "/v1/import", `{"events":[]}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&errResp))
	assert.Equal(t, "MALFORMED_IMPORT", errResp.Code)
}

func TestSnapshots(t *testing.T) {
	router := healthyRouter(t)
	do(t, router, "POST", "/v1/events", `{"type":"performance","category":"technical","data":{"value":1}}`)

	w := do(t, router, "POST", "/v1/exports", `{"object":"exports/manual.json"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "exports/manual.json")

	w = do(t, router, "GET", "/v1/exports", "")
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Snapshots []string `json:"snapshots"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&list))
	assert.Equal(t, []string{"exports/manual.json"}, list.Snapshots)
}

func TestSnapshots_NoSink(t *testing.T) {
	router := newRouter(t, filepath.Join(t.TempDir(), "analytics.db"), false)
	w := do(t, router, "GET", "/v1/exports", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestDegradedStore(t *testing.T) {
	router := newRouter(t, filepath.Join(t.TempDir(), "nope", "analytics.db"), false)

	w := do(t, router, "GET", "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = do(t, router, "POST", "/v1/events", `{"type":"error","category":"system"}`)
	assert.Equal(t, http.StatusAccepted, w.Code)

	w = do(t, router, "POST", "/v1/events/query", `{}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"events":[]`)

	w = do(t, router, "POST", "/v1/export", "")
	assert.Equal(t, "[]", w.Body.String())

	w = do(t, router, "GET", "/v1/reports/anything", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type panicking struct{ Analytics }

func (panicking) Ready(context.Context) error { panic("boom") }

func TestRecoveryMiddleware(t *testing.T) {
	logger, hook := test.NewNullLogger()
	router := mux.NewRouter()
	router.Use(DefaultMiddleware(logger))
	NewHandlers(panicking{}).RegisterRoutes(router)

	w := do(t, router, "GET", "/health", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "http: handler panicked", hook.LastEntry().Message)

	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&errResp))
	assert.NotEmpty(t, errResp.RequestID)
}

func TestRouteName(t *testing.T) {
	router := mux.NewRouter()
	var got string
	router.HandleFunc("/v1/reports/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = RouteName(r)
	})
	do(t, router, "GET", "/v1/reports/abc", "")
	assert.Equal(t, "/v1/reports/{id}", got)
}
