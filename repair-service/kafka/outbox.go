package kafka

import (
	"context"
	"log/slog"
	"time"

	"fadedreams/repairshop/repair-service/domain"
	"fadedreams/repairshop/repair-service/metrics"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// Publisher delivers one outbox event
type Publisher interface {
	Publish(ctx context.Context, event *domain.OutboxEvent) error
}

// OutboxProcessor relays events from the outbox collection to Kafka
type OutboxProcessor struct {
	repo      domain.OutboxRepository
	publisher Publisher
	interval  time.Duration
	batchSize int
	logger    *slog.Logger
}

// NewOutboxProcessor creates a new OutboxProcessor
func NewOutboxProcessor(repo domain.OutboxRepository, publisher Publisher, interval time.Duration, logger *slog.Logger) *OutboxProcessor {
	return &OutboxProcessor{
		repo:      repo,
		publisher: publisher,
		interval:  interval,
		batchSize: 100,
		logger:    logger,
	}
}

// Start processes outbox events every interval until ctx is cancelled
func (p *OutboxProcessor) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("Stopping outbox processor")
			return ctx.Err()
		case <-ticker.C:
			if _, err := p.processOutboxEvents(ctx); err != nil {
				p.logger.Error("Failed to process outbox events", "error", err)
			}
		}
	}
}

// processOutboxEvents publishes pending events oldest first. It stops at
// the first failure so events of one repair are never reordered.
func (p *OutboxProcessor) processOutboxEvents(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("repair-service").Start(ctx, "ProcessOutboxEvents")
	defer span.End()

	events, err := p.repo.GetUnprocessedOutboxEvents(ctx, p.batchSize)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Failed to get unprocessed outbox events")
		return 0, err
	}

	processed := 0
	for _, event := range events {
		if err := p.publisher.Publish(ctx, event); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to publish outbox event")
			metrics.OutboxDispatch.WithLabelValues(event.EventType, "failed").Inc()
			p.logger.Error("Failed to publish outbox event", "eventID", event.ID, "eventType", event.EventType, "error", err)
			break
		}
		metrics.OutboxDispatch.WithLabelValues(event.EventType, "published").Inc()

		// a failed mark means the event is sent again; consumers dedupe on event_id
		if err := p.repo.MarkOutboxEventProcessed(ctx, event.ID); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "Failed to mark outbox event as processed")
			p.logger.Error("Failed to mark outbox event as processed", "eventID", event.ID, "error", err)
			break
		}
		processed++
		p.logger.Info("Processed outbox event", "eventID", event.ID, "eventType", event.EventType)
	}

	span.SetAttributes(
		attribute.Int("pendingEventCount", len(events)),
		attribute.Int("processedEventCount", processed),
	)
	return processed, nil
}
