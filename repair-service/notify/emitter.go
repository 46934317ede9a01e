// Package notify delivers in-app notifications off the request path.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fadedreams/repairshop/repair-service/domain"
	"fadedreams/repairshop/repair-service/metrics"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Notice is a message for one user, or for every user of Role when UserID is empty
type Notice struct {
	UserID    string
	Role      domain.Role
	Title     string
	Message   string
	Type      string
	RelatedTo *domain.RelatedTo
}

// Store is the part of the repository the emitter writes to
type Store interface {
	ListUsersByRole(ctx context.Context, role domain.Role, specialization string) ([]*domain.User, error)
	CreateNotification(ctx context.Context, n *domain.Notification) error
}

// Emitter persists notices in background goroutines. Failures are logged
// and counted but never reach the caller.
type Emitter struct {
	store   Store
	timeout time.Duration
	tracer  trace.Tracer
	logger  *slog.Logger
	now     func() time.Time

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewEmitter creates an Emitter whose deliveries give up after timeout
func NewEmitter(store Store, timeout time.Duration, logger *slog.Logger) *Emitter {
	return &Emitter{
		store:   store,
		timeout: timeout,
		tracer:  otel.Tracer("repair-service"),
		logger:  logger,
		now:     time.Now,
	}
}

// Notify schedules delivery of n. The caller's cancellation does not abort
// delivery; only the emitter timeout does. Notices after Close are dropped.
func (e *Emitter) Notify(ctx context.Context, n Notice) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		e.logger.Warn("Dropped notification after emitter closed", "type", n.Type, "userID", n.UserID)
		metrics.Notifications.WithLabelValues("dropped").Inc()
		return
	}
	e.wg.Add(1)
	e.mu.Unlock()

	go func() {
		defer e.wg.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
		defer cancel()
		e.deliver(ctx, n)
	}()
}

// Close stops accepting notices and waits for in-flight deliveries. It is
// safe to call concurrently with Notify and more than once.
func (e *Emitter) Close() {
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	e.wg.Wait()
}

func (e *Emitter) deliver(ctx context.Context, n Notice) {
	ctx, span := e.tracer.Start(ctx, "NotifyDeliver")
	defer span.End()
	span.SetAttributes(
		attribute.String("type", n.Type),
		attribute.String("userID", n.UserID),
		attribute.String("role", string(n.Role)),
	)

	recipients := []string{n.UserID}
	if n.UserID == "" {
		users, err := e.store.ListUsersByRole(ctx, n.Role, "")
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to resolve notification recipients")
			e.logger.Error("Failed to resolve notification recipients", "error", err, "role", n.Role, "type", n.Type)
			metrics.Notifications.WithLabelValues("failed").Inc()
			return
		}
		recipients = recipients[:0]
		for _, u := range users {
			recipients = append(recipients, u.ID)
		}
	}

	for _, userID := range recipients {
		if userID == "" {
			continue
		}
		notification := &domain.Notification{
			ID:        primitive.NewObjectID().Hex(),
			UserID:    userID,
			Title:     n.Title,
			Message:   n.Message,
			Type:      n.Type,
			RelatedTo: n.RelatedTo,
			CreatedAt: e.now().UTC(),
		}
		if err := e.store.CreateNotification(ctx, notification); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to create notification")
			e.logger.Error("Failed to create notification", "error", err, "userID", userID, "type", n.Type)
			metrics.Notifications.WithLabelValues("failed").Inc()
			continue
		}
		metrics.Notifications.WithLabelValues("sent").Inc()
		e.logger.Info("Created notification", "notificationID", notification.ID, "userID", userID, "type", n.Type)
	}
}
