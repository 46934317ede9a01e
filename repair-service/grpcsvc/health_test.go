package grpcsvc

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

type stubChecker struct {
	down atomic.Bool
}

func (c *stubChecker) Ready(context.Context) error {
	if c.down.Load() {
		return errors.New("mongo unreachable")
	}
	return nil
}

func newReporter(checker Checker, interval time.Duration) *HealthReporter {
	return NewHealthReporter(checker, "repair-service", interval, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func status(t *testing.T, r *HealthReporter, service string) healthpb.HealthCheckResponse_ServingStatus {
	t.Helper()
	resp, err := r.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: service})
	require.NoError(t, err)
	return resp.GetStatus()
}

func TestHealthReporter_Check(t *testing.T) {
	checker := &stubChecker{}
	r := newReporter(checker, time.Second)

	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, r.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, r, ""))
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, status(t, r, "repair-service"))

	checker.down.Store(true)
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, r.Check(context.Background()))
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, r, "repair-service"))
}

func TestHealthReporter_RunShutsDown(t *testing.T) {
	r := newReporter(&stubChecker{}, 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		resp, err := r.health.Check(context.Background(), &healthpb.HealthCheckRequest{Service: "repair-service"})
		return err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	assert.Equal(t, healthpb.HealthCheckResponse_NOT_SERVING, status(t, r, "repair-service"))
}

func TestNewServer_RegistersHealth(t *testing.T) {
	srv := NewServer(newReporter(&stubChecker{}, time.Second))
	defer srv.Stop()

	info := srv.GetServiceInfo()
	assert.Contains(t, info, healthpb.Health_ServiceDesc.ServiceName)
	assert.Contains(t, info, "grpc.reflection.v1.ServerReflection")
}
