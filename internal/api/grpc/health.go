// Package grpc serves the standard gRPC health protocol for the analytics
// store.
package grpc

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the health service name reported alongside the overall "".
const ServiceName = "analytica.v1.Analytics"

// Readier reports whether the store can be opened.
type Readier interface {
	Ready(ctx context.Context) error
}

// HealthServer maps store readiness onto grpc health statuses.
type HealthServer struct {
	health *health.Server
	svc    Readier
	logger logrus.FieldLogger

	mu   sync.Mutex
	last healthpb.HealthCheckResponse_ServingStatus
}

// NewHealthServer creates a HealthServer. Both services start NOT_SERVING.
func NewHealthServer(svc Readier, logger logrus.FieldLogger) *HealthServer {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	hs := &HealthServer{
		health: health.NewServer(),
		svc:    svc,
		logger: logger.WithField("component", "grpc"),
		last:   healthpb.HealthCheckResponse_UNKNOWN,
	}
	hs.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return hs
}

// Register attaches the health service to s.
func (hs *HealthServer) Register(s grpc.ServiceRegistrar) {
	healthpb.RegisterHealthServer(s, hs.health)
}

// Health returns the underlying health implementation.
func (hs *HealthServer) Health() healthpb.HealthServer {
	return hs.health
}

// Refresh probes the store once and publishes the resulting status.
func (hs *HealthServer) Refresh(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	hs.mu.Lock()
	defer hs.mu.Unlock()

	status := healthpb.HealthCheckResponse_SERVING
	if err := hs.svc.Ready(ctx); err != nil {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		if hs.last != status {
			hs.logger.WithError(err).Warn("grpc: store not ready")
		}
	}
	if hs.last != status {
		hs.logger.WithField("status", status.String()).Info("grpc: health status changed")
	}
	hs.last = status
	hs.set(status)
	return status
}

// Watch refreshes the status every interval until ctx is done.
func (hs *HealthServer) Watch(ctx context.Context, interval time.Duration) {
	hs.Refresh(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			hs.Refresh(ctx)
		}
	}
}

// Shutdown marks every service NOT_SERVING permanently.
func (hs *HealthServer) Shutdown() {
	hs.health.Shutdown()
}

func (hs *HealthServer) set(status healthpb.HealthCheckResponse_ServingStatus) {
	hs.health.SetServingStatus("", status)
	hs.health.SetServingStatus(ServiceName, status)
}
