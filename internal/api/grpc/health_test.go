package grpc

import (
	"context"
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

type fakeReadier struct {
	down atomic.Bool
}

func (f *fakeReadier) Ready(context.Context) error {
	if f.down.Load() {
		return errors.New("store unavailable")
	}
	return nil
}

func check(t *testing.T, hs *HealthServer, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := hs.Health().Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.Status
}

func TestHealthServer_FollowsStore(t *testing.T) {
	logger, hook := test.NewNullLogger()
	ready := &fakeReadier{}
	hs := NewHealthServer(ready, logger)

	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, hs, ServiceName))

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, hs.Refresh(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, hs, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, check(t, hs, ServiceName))

	ready.down.Store(true)
	hs.Refresh(context.Background())
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, check(t, hs, ServiceName))

	var changes int
	for _, e := range hook.AllEntries() {
		if e.Message == "grpc: health status changed" {
			changes++
		}
	}
	assert.Equal(t, 2, changes)

	// unchanged status logs nothing new
	n := len(hook.AllEntries())
	hs.Refresh(context.Background())
	assert.Len(t, hook.AllEntries(), n)
}

func TestHealthServer_OverGRPC(t *testing.T) {
	lis := bufconn.Listen(1 << 20)
	srv := grpc.NewServer()
	hs := NewHealthServer(&fakeReadier{}, nil)
	hs.Register(srv)
	go srv.Serve(lis)
	t.Cleanup(srv.Stop)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hs.Watch(ctx, 10*time.Millisecond)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(context.Context, string) (net.Conn, error) { return lis.Dial() }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	defer conn.Close()

	client := healthpb.NewHealthClient(conn)
	require.Eventually(t, func() bool {
		resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{Service: ServiceName})
		return err == nil && resp.Status == healthpb.HealthCheckResponse_SERVING
	}, 2*time.Second, 10*time.Millisecond)

	hs.Shutdown()
	resp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, resp.Status)
}
