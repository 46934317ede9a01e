package domain

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// CreateNotification inserts a notification
func (r *MongoRepository) CreateNotification(ctx context.Context, n *Notification) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateNotification")
	defer span.End()

	if _, err := r.NotificationCollection.InsertOne(ctx, n); err != nil {
		return spanError(span, err, "Failed to insert notification")
	}
	span.SetAttributes(
		attribute.String("notificationID", n.ID),
		attribute.String("userID", n.UserID),
		attribute.String("type", n.Type),
	)
	return nil
}

// ListNotifications retrieves a user's notifications, newest first
func (r *MongoRepository) ListNotifications(ctx context.Context, userID string) ([]*Notification, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoListNotifications")
	defer span.End()

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.NotificationCollection.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, spanError(span, err, "Failed to find notifications")
	}
	notifications, err := decodeAll[Notification](ctx, cursor)
	if err != nil {
		return nil, spanError(span, err, "Failed to decode notifications")
	}
	span.SetAttributes(
		attribute.String("userID", userID),
		attribute.Int("notificationCount", len(notifications)),
	)
	return notifications, nil
}

// MarkNotificationRead flags a notification of userID as read
func (r *MongoRepository) MarkNotificationRead(ctx context.Context, id, userID string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoMarkNotificationRead")
	defer span.End()

	res, err := r.NotificationCollection.UpdateOne(ctx,
		bson.M{"_id": id, "userId": userID},
		bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return spanError(span, err, "Failed to mark notification as read")
	}
	if res.MatchedCount == 0 {
		return NotFoundError("notification %s not found", id)
	}
	span.SetAttributes(attribute.String("notificationID", id))
	return nil
}

// SaveOutboxEvent saves an event to the outbox collection
func (r *MongoRepository) SaveOutboxEvent(ctx context.Context, event *OutboxEvent) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoSaveOutboxEvent")
	defer span.End()

	if _, err := r.OutboxCollection.InsertOne(ctx, event); err != nil {
		return spanError(span, err, "Failed to save outbox event")
	}
	span.SetAttributes(
		attribute.String("eventID", event.ID),
		attribute.String("eventType", event.EventType),
	)
	return nil
}

// GetUnprocessedOutboxEvents retrieves unprocessed outbox events, oldest first
func (r *MongoRepository) GetUnprocessedOutboxEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetUnprocessedOutboxEvents")
	defer span.End()

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: 1}}).
		SetLimit(int64(limit))
	cursor, err := r.OutboxCollection.Find(ctx, bson.M{"processed": false}, opts)
	if err != nil {
		return nil, spanError(span, err, "Failed to find unprocessed outbox events")
	}
	events, err := decodeAll[OutboxEvent](ctx, cursor)
	if err != nil {
		return nil, spanError(span, err, "Failed to decode outbox events")
	}
	span.SetAttributes(attribute.Int("eventCount", len(events)))
	return events, nil
}

// MarkOutboxEventProcessed marks an outbox event as processed
func (r *MongoRepository) MarkOutboxEventProcessed(ctx context.Context, eventID string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoMarkOutboxEventProcessed")
	defer span.End()

	now := time.Now()
	_, err := r.OutboxCollection.UpdateOne(ctx, bson.M{"_id": eventID}, bson.M{
		"$set": bson.M{
			"processed":    true,
			"processed_at": now,
		},
	})
	if err != nil {
		return spanError(span, err, "Failed to mark outbox event as processed")
	}
	span.SetAttributes(attribute.String("eventID", eventID))
	return nil
}
