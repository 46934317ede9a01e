package service

import (
	"context"
	"log/slog"
	"time"

	"fadedreams/repairshop/repair-service/domain"
	"fadedreams/repairshop/repair-service/notify"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Notifier delivers notices without blocking or failing the caller
type Notifier interface {
	Notify(ctx context.Context, n notify.Notice)
}

// Service implements the repair workflow on top of a domain.Repository
type Service struct {
	repo     domain.Repository
	notifier Notifier
	tracer   trace.Tracer
	logger   *slog.Logger
	now      func() time.Time
	// outbox is false when no relay drains the outbox collection
	outbox bool
}

// Option configures a Service
type Option func(*Service)

// WithEventOutbox controls whether repair writes record outbox events.
// Enable it only when an outbox relay runs, otherwise events pile up.
func WithEventOutbox(enabled bool) Option {
	return func(s *Service) { s.outbox = enabled }
}

// NewService creates a new instance of the repair service. Outbox events
// are recorded unless WithEventOutbox(false) is given.
func NewService(repo domain.Repository, notifier Notifier, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		notifier: notifier,
		tracer:   otel.Tracer("repair-service"),
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		outbox:   true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ready reports whether storage answers, for health checks
func (s *Service) Ready(ctx context.Context) error {
	type pinger interface {
		Ping(ctx context.Context) error
	}
	if p, ok := s.repo.(pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}

// fail records err on the span and in the log, then returns it unchanged
func (s *Service) fail(span trace.Span, err error, msg string, args ...any) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	if domain.KindOf(err) == 0 {
		s.logger.Error(msg, append([]any{"error", err}, args...)...)
	} else {
		s.logger.Warn(msg, append([]any{"error", err}, args...)...)
	}
	return err
}

// checkVersion rejects a write based on a stale read. Zero means the
// client did not send a version.
func checkVersion(repair *domain.RepairRequest, expected int64) error {
	if expected != 0 && expected != repair.Version {
		return domain.ConflictError("repair %s is at version %d, not %d", repair.ID, repair.Version, expected)
	}
	return nil
}

// writeWithEvent runs write and stores an outbox event describing repair
// in the same transaction. Without an outbox only write runs.
func (s *Service) writeWithEvent(ctx context.Context, eventType string, repair *domain.RepairRequest, write func(ctx context.Context) error) error {
	if !s.outbox {
		return write(ctx)
	}
	version := repair.Version
	return s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		// the transaction body may be retried
		repair.Version = version
		if err := write(ctx); err != nil {
			return err
		}
		now := s.now()
		return s.repo.SaveOutboxEvent(ctx, &domain.OutboxEvent{
			ID:        primitive.NewObjectID().Hex(),
			EventType: eventType,
			Event:     domain.NewRepairEvent(repair, now),
			CreatedAt: now,
		})
	})
}

// adjustJobs updates mechanic counters. The counters are informational,
// so failures are only logged.
func (s *Service) adjustJobs(ctx context.Context, mechanicID string, active, completed int) {
	if mechanicID == "" {
		return
	}
	if err := s.repo.IncrementMechanicJobs(ctx, mechanicID, active, completed); err != nil {
		s.logger.Warn("Failed to update mechanic job counters", "error", err, "mechanicID", mechanicID)
	}
}

func repairRef(id string) *domain.RelatedTo {
	return &domain.RelatedTo{Model: "RepairRequest", ID: id}
}
