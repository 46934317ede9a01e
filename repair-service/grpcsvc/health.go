package grpcsvc

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// Checker reports whether the service can do useful work
type Checker interface {
	Ready(ctx context.Context) error
}

// HealthReporter keeps the grpc.health.v1 status in step with storage
type HealthReporter struct {
	health   *health.Server
	checker  Checker
	service  string
	interval time.Duration
	logger   *slog.Logger
}

func NewHealthReporter(checker Checker, service string, interval time.Duration, logger *slog.Logger) *HealthReporter {
	return &HealthReporter{
		health:   health.NewServer(),
		checker:  checker,
		service:  service,
		interval: interval,
		logger:   logger,
	}
}

// NewServer builds the gRPC server exposing health and reflection
func NewServer(reporter *HealthReporter) *grpc.Server {
	srv := grpc.NewServer()
	healthpb.RegisterHealthServer(srv, reporter.health)
	reflection.Register(srv)
	return srv
}

// Check probes once and publishes the result for the overall server and
// the named service
func (r *HealthReporter) Check(ctx context.Context) healthpb.HealthCheckResponse_ServingStatus {
	ctx, span := otel.Tracer("repair-service").Start(ctx, "HealthProbe")
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if err := r.checker.Ready(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Health probe failed")
		r.logger.Warn("Health probe failed", "error", err, "service", r.service)
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	r.health.SetServingStatus("", status)
	r.health.SetServingStatus(r.service, status)
	return status
}

// Run probes every interval until ctx is done, then reports NOT_SERVING
// to every watcher
func (r *HealthReporter) Run(ctx context.Context) {
	r.Check(ctx)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.health.Shutdown()
			return
		case <-ticker.C:
			r.Check(ctx)
		}
	}
}
