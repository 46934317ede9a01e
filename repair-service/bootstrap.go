package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/consul/api"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"fadedreams/repairshop/repair-service/config"
	"fadedreams/repairshop/repair-service/domain"
)

// initTracer installs the global tracer provider exporting over OTLP HTTP
func initTracer(ctx context.Context, cfg *config.Config, logger *slog.Logger) (func(), error) {
	logger.Info("Initializing tracer", "endpoint", cfg.OpenTelemetry.Endpoint)

	exporter, err := otlptracehttp.New(ctx,
		otlptracehttp.WithEndpoint(cfg.OpenTelemetry.Endpoint),
		otlptracehttp.WithInsecure(),
		otlptracehttp.WithURLPath(cfg.OpenTelemetry.URLPath),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	resources := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(cfg.ServiceName),
	)
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter, sdktrace.WithExportTimeout(5*time.Second))),
		sdktrace.WithResource(resources),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return func() {
		logger.Info("Shutting down tracer provider")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer provider", "error", err)
		}
	}, nil
}

// connectToMongoDB retries until the replica set answers, since outbox
// writes need transactions
func connectToMongoDB(ctx context.Context, cfg config.MongoOptions, logger *slog.Logger) (*mongo.Client, error) {
	var err error
	opts := options.Client().ApplyURI(cfg.URI).SetRegistry(domain.NewRegistry())

	for i := range cfg.ConnectRetries {
		var client *mongo.Client
		attemptCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		client, err = mongo.Connect(attemptCtx, opts)
		if err == nil {
			err = client.Ping(attemptCtx, nil)
			if err == nil {
				var result struct {
					Ok int `bson:"ok"`
				}
				err = client.Database("admin").RunCommand(attemptCtx, bson.D{
					{Key: "replSetGetStatus", Value: 1},
				}).Decode(&result)
				if err == nil && result.Ok == 1 {
					cancel()
					logger.Info("Connected to MongoDB", "database", cfg.Database)
					return client, nil
				}
				if err == nil {
					err = fmt.Errorf("replica set status ok=%d", result.Ok)
				}
				logger.Error("Replica set not ready", "error", err)
			}
			_ = client.Disconnect(attemptCtx)
		}
		cancel()
		logger.Error("Failed to connect to MongoDB", "attempt", i+1, "max_attempts", cfg.ConnectRetries, "error", err)
		if i < cfg.ConnectRetries-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(cfg.RetryDelay):
			}
		}
	}
	return nil, fmt.Errorf("failed to connect to MongoDB after %d retries: %w", cfg.ConnectRetries, err)
}

// registerConsul registers the HTTP API with its health check and returns
// the deregistration func
func registerConsul(cfg *config.Config, logger *slog.Logger) (func(), error) {
	consulConfig := api.DefaultConfig()
	consulConfig.Address = cfg.Consul.Address
	consulClient, err := api.NewClient(consulConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Consul client: %w", err)
	}

	serviceID := fmt.Sprintf("%s-%d", cfg.ServiceName, cfg.ServicePort)
	registration := &api.AgentServiceRegistration{
		ID:      serviceID,
		Name:    cfg.ServiceName,
		Port:    cfg.ServicePort,
		Address: cfg.Consul.ServiceAddress,
		Tags:    []string{"http", "grpc-health"},
		Check: &api.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/health", cfg.Consul.ServiceAddress, cfg.ServicePort),
			Interval:                       "10s",
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: "1m",
		},
	}
	if err := consulClient.Agent().ServiceRegister(registration); err != nil {
		return nil, fmt.Errorf("failed to register with Consul: %w", err)
	}
	logger.Info("Registered with Consul", "serviceID", serviceID, "address", cfg.Consul.Address)

	return func() {
		if err := consulClient.Agent().ServiceDeregister(serviceID); err != nil {
			logger.Error("Failed to deregister from Consul", "serviceID", serviceID, "error", err)
			return
		}
		logger.Info("Deregistered from Consul", "serviceID", serviceID)
	}, nil
}
