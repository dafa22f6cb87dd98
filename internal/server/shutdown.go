// Package server coordinates graceful shutdown of the analytics daemon.
package server

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// ShutdownConfig configures a ShutdownManager.
type ShutdownConfig struct {
	// DrainTimeout bounds the wait for in-flight HTTP requests
	DrainTimeout time.Duration
	Logger       logrus.FieldLogger
}

// ShutdownManager drains in-flight requests, then closes registered
// resources in reverse registration order.
type ShutdownManager struct {
	drainTimeout time.Duration
	logger       logrus.FieldLogger

	shutdownCh   chan struct{}
	shutdownOnce sync.Once
	inFlight     int64
	closing      int32

	mu      sync.Mutex
	closers []namedCloser
}

type namedCloser struct {
	name string
	c    io.Closer
}

// NewShutdownManager creates a ShutdownManager. DrainTimeout defaults to 15s.
func NewShutdownManager(cfg ShutdownConfig) *ShutdownManager {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 15 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	return &ShutdownManager{
		drainTimeout: cfg.DrainTimeout,
		logger:       cfg.Logger.WithField("component", "server"),
		shutdownCh:   make(chan struct{}),
	}
}

// RegisterCloser adds c to the resources closed on shutdown.
func (sm *ShutdownManager) RegisterCloser(name string, c io.Closer) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.closers = append(sm.closers, namedCloser{name: name, c: c})
}

// Shutdown runs once; later calls return nil immediately. It returns the
// first drain or close error.
func (sm *ShutdownManager) Shutdown(ctx context.Context, reason string) error {
	var firstErr error
	sm.shutdownOnce.Do(func() {
		atomic.StoreInt32(&sm.closing, 1)
		close(sm.shutdownCh)
		sm.logger.WithField("reason", reason).Info("server: shutting down")

		if err := sm.drain(ctx); err != nil {
			firstErr = err
			sm.logger.WithError(err).Warn("server: drain incomplete")
		}

		sm.mu.Lock()
		closers := sm.closers
		sm.mu.Unlock()

		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].c.Close(); err != nil {
				sm.logger.WithError(err).WithField("resource", closers[i].name).Warn("server: close failed")
				if firstErr == nil {
					firstErr = fmt.Errorf("close %s: %w", closers[i].name, err)
				}
			}
		}
		sm.logger.Info("server: shutdown complete")
	})
	return firstErr
}

func (sm *ShutdownManager) drain(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, sm.drainTimeout)
	defer cancel()

	ticker := time.NewTicker(20 * time.Millisecond)
	defer ticker.Stop()
	for {
		if atomic.LoadInt64(&sm.inFlight) == 0 {
			return nil
		}
		select {
		case <-drainCtx.Done():
			return fmt.Errorf("timeout waiting for %d in-flight requests", atomic.LoadInt64(&sm.inFlight))
		case <-ticker.C:
		}
	}
}

// Done is closed when shutdown begins.
func (sm *ShutdownManager) Done() <-chan struct{} {
	return sm.shutdownCh
}

// InFlight returns the number of tracked requests.
func (sm *ShutdownManager) InFlight() int64 {
	return atomic.LoadInt64(&sm.inFlight)
}

// Middleware tracks in-flight requests and answers 503 once shutdown began.
func (sm *ShutdownManager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.LoadInt32(&sm.closing) == 1 {
			w.Header().Set("Connection", "close")
			http.Error(w, "service unavailable: shutting down", http.StatusServiceUnavailable)
			return
		}
		atomic.AddInt64(&sm.inFlight, 1)
		defer atomic.AddInt64(&sm.inFlight, -1)
		next.ServeHTTP(w, r)
	})
}

// CloserFunc adapts a function to io.Closer.
type CloserFunc func() error

// Close calls f.
func (f CloserFunc) Close() error {
	return f()
}

// HTTPCloser returns a closer that gracefully shuts srv down within timeout.
func HTTPCloser(srv *http.Server, timeout time.Duration) io.Closer {
	return CloserFunc(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(ctx)
	})
}
