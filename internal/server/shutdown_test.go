package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdown_ClosesInReverseOrder(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	var order []string
	sm.RegisterCloser("store", CloserFunc(func() error { order = append(order, "store"); return nil }))
	sm.RegisterCloser("http", CloserFunc(func() error { order = append(order, "http"); return nil }))

	require.NoError(t, sm.Shutdown(context.Background(), "test"))
	assert.Equal(t, []string{"http", "store"}, order)

	select {
	case <-sm.Done():
	default:
		t.Fatal("done channel not closed")
	}

	// second call is a no-op
	require.NoError(t, sm.Shutdown(context.Background(), "again"))
	assert.Len(t, order, 2)
}

func TestShutdown_ReportsFirstCloseError(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{})
	closed := false
	sm.RegisterCloser("store", CloserFunc(func() error { closed = true; return nil }))
	sm.RegisterCloser("broken", CloserFunc(func() error { return errors.New("boom") }))

	err := sm.Shutdown(context.Background(), "test")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "close broken")
	assert.True(t, closed, "later closers still run")
}

func TestMiddleware_TracksAndRejects(t *testing.T) {
	sm := NewShutdownManager(ShutdownConfig{DrainTimeout: 50 * time.Millisecond})

	release := make(chan struct{})
	entered := make(chan struct{})
	h := sm.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(entered)
		<-release
	}))

	go h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", nil))
	<-entered
	assert.Equal(t, int64(1), sm.InFlight())

	err := sm.Shutdown(context.Background(), "test")
	assert.Error(t, err, "drain times out while a request is stuck")

	w := httptest.NewRecorder()
	sm.Middleware(http.NotFoundHandler()).ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	close(release)
	assert.Eventually(t, func() bool { return sm.InFlight() == 0 }, time.Second, 5*time.Millisecond)
}
