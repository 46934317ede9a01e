package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"fadedreams/repairshop/repair-service/config"
	"fadedreams/repairshop/repair-service/domain"
	"fadedreams/repairshop/repair-service/grpcsvc"
	"fadedreams/repairshop/repair-service/handlers"
	"fadedreams/repairshop/repair-service/kafka"
	"fadedreams/repairshop/repair-service/logging"
	"fadedreams/repairshop/repair-service/notify"
	"fadedreams/repairshop/repair-service/service"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, the gRPC health server and the outbox relay",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger, logFile, err := logging.NewLogger(cfg.Log.Path, cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logFile.Close()
	logger = logger.With("app", cfg.ServiceName)
	slog.SetDefault(logger)
	logger.Info("Starting repair-service", "port", cfg.ServicePort, "grpcPort", cfg.GRPCPort)

	if cfg.OpenTelemetry.Enabled {
		shutdown, err := initTracer(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	client, err := connectToMongoDB(ctx, cfg.Mongo, logger)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			logger.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}()

	repo := domain.NewMongoRepository(client, cfg.Mongo.Database)
	emitter := notify.NewEmitter(repo, cfg.NotifyTimeout, logger)
	defer emitter.Close()
	svc := service.NewService(repo, emitter, logger, service.WithEventOutbox(cfg.Kafka.Enabled))

	router, err := handlers.NewRouter(handlers.NewRepairHandler(svc, logger), handlers.RouterConfig{
		ServiceName: cfg.ServiceName,
		Secret:      []byte(cfg.SessionSecret),
		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimitRate(),
		MetricsPath: cfg.MetricsPath,
	})
	if err != nil {
		return err
	}
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	grpcListener, err := net.Listen("tcp", cfg.GRPCAddr())
	if err != nil {
		return fmt.Errorf("failed to listen for gRPC: %w", err)
	}
	reporter := grpcsvc.NewHealthReporter(svc, cfg.ServiceName, 10*time.Second, logger)
	grpcServer := grpcsvc.NewServer(reporter)

	// background workers stop with runCtx; servers are shut down explicitly
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	errCh := make(chan error, 2)

	go reporter.Run(runCtx)

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(cfg.Kafka.BootstrapServers, cfg.Kafka.SchemaRegistryURL, cfg.Kafka.Topic, logger)
		if err != nil {
			return err
		}
		defer producer.Close()
		processor := kafka.NewOutboxProcessor(repo, producer, cfg.Kafka.PollInterval, logger)
		go func() {
			if err := processor.Start(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Outbox processor stopped", "error", err)
			}
		}()
	}

	go func() {
		logger.Info("Starting gRPC server", "addr", cfg.GRPCAddr())
		if err := grpcServer.Serve(grpcListener); err != nil {
			errCh <- fmt.Errorf("gRPC server: %w", err)
		}
	}()
	go func() {
		logger.Info("Starting HTTP server", "addr", cfg.HTTPAddr())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if cfg.Consul.Enabled {
		deregister, err := registerConsul(cfg, logger)
		if err != nil {
			logger.Error("Consul registration failed", "error", err)
		} else {
			defer deregister()
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err = <-errCh:
		logger.Error("Server failed", "error", err)
	}

	cancelRun()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Error("HTTP server shutdown failed", "error", shutdownErr)
	}
	grpcServer.GracefulStop()
	logger.Info("repair-service stopped")
	return err
}
