package observability

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, c.Write(&pb))
	return pb.GetCounter().GetValue()
}

func TestMetrics_Counters(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.IncIngest("ok")
	m.IncIngest("ok")
	m.IncIngest("error")
	m.ObserveEviction(7, time.Millisecond)
	m.AddImported(3, 2)

	assert.Equal(t, 2.0, counterValue(t, m.IngestTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, counterValue(t, m.IngestTotal.WithLabelValues("error")))
	assert.Equal(t, 7.0, counterValue(t, m.EvictedEventsTotal))
	assert.Equal(t, 3.0, counterValue(t, m.ImportedEventsTotal.WithLabelValues("added")))
	assert.Equal(t, 2.0, counterValue(t, m.ImportedEventsTotal.WithLabelValues("skipped")))
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.IncIngest("ok")
		m.ObserveEviction(1, time.Second)
		m.ObserveQuery("type", "ok", time.Second)
		m.IncReport("create", "ok")
		m.IncReportCache(true)
		m.AddImported(1, 1)
		m.IncExport("local", "ok")
	})
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	h := HTTPMetricsMiddleware(m, func(*http.Request) string { return "events" })(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
		}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/events", nil))
	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Equal(t, 1.0, counterValue(t, m.HTTPRequestsTotal.WithLabelValues("POST", "events", "201")))

	rr = httptest.NewRecorder()
	Handler(reg).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rr.Body.String(), "analytica_http_requests_total"))
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("debug", "json", &buf)
	require.NoError(t, err)

	logger.WithField("op", "record").Debug("analytics: event recorded")

	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "record", line["op"])
	assert.Equal(t, "analytics: event recorded", line["msg"])

	_, err = NewLogger("loud", "text", &buf)
	assert.Error(t, err)
	_, err = NewLogger("info", "xml", &buf)
	assert.Error(t, err)
}
