package domain

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "repair-service"

// OutboxRetentionSeconds is how long relayed outbox events are kept
const OutboxRetentionSeconds = 7 * 24 * 60 * 60

// RepairRepository persists repair requests with their embedded iterations
type RepairRepository interface {
	CreateRepair(ctx context.Context, repair *RepairRequest) error
	GetRepairByID(ctx context.Context, id string) (*RepairRequest, error)
	ListRepairs(ctx context.Context, filter RepairFilter) ([]*RepairRequest, error)
	// UpdateRepair replaces the stored document if its version still equals
	// repair.Version and bumps repair.Version on success.
	UpdateRepair(ctx context.Context, repair *RepairRequest) error
	DeleteRepair(ctx context.Context, id string) error
}

// UserRepository reads users and maintains mechanic bookkeeping
type UserRepository interface {
	GetUserByID(ctx context.Context, id string) (*User, error)
	// ListUsersByRole filters by specialization when it is not empty
	ListUsersByRole(ctx context.Context, role Role, specialization string) ([]*User, error)
	SetUserWorkshop(ctx context.Context, userID, workshopID string) error
	IncrementMechanicJobs(ctx context.Context, mechanicID string, active, completed int) error
}

type WorkshopRepository interface {
	CreateWorkshop(ctx context.Context, workshop *Workshop) error
	GetWorkshopByID(ctx context.Context, id string) (*Workshop, error)
	ListWorkshops(ctx context.Context) ([]*Workshop, error)
	AddWorkshopMechanic(ctx context.Context, workshopID, mechanicID string) (*Workshop, error)
	RemoveWorkshopMechanic(ctx context.Context, workshopID, mechanicID string) (*Workshop, error)
}

type CarRepository interface {
	CreateCar(ctx context.Context, car *Car) error
	GetCarByID(ctx context.Context, id string) (*Car, error)
	// ListCars returns every car when ownerID is empty
	ListCars(ctx context.Context, ownerID string) ([]*Car, error)
}

type NotificationRepository interface {
	CreateNotification(ctx context.Context, n *Notification) error
	ListNotifications(ctx context.Context, userID string) ([]*Notification, error)
	MarkNotificationRead(ctx context.Context, id, userID string) error
}

type OutboxRepository interface {
	SaveOutboxEvent(ctx context.Context, event *OutboxEvent) error
	GetUnprocessedOutboxEvents(ctx context.Context, limit int) ([]*OutboxEvent, error)
	MarkOutboxEventProcessed(ctx context.Context, eventID string) error
}

// Transactor runs fn atomically. Repository calls made with the context
// passed to fn take part in the transaction.
type Transactor interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Repository is everything the repair service needs from storage
type Repository interface {
	RepairRepository
	UserRepository
	WorkshopRepository
	CarRepository
	NotificationRepository
	OutboxRepository
	Transactor
}

// MongoRepository implements Repository on top of a MongoDB replica set
type MongoRepository struct {
	client                 *mongo.Client
	RepairCollection       *mongo.Collection
	UserCollection         *mongo.Collection
	WorkshopCollection     *mongo.Collection
	CarCollection          *mongo.Collection
	NotificationCollection *mongo.Collection
	OutboxCollection       *mongo.Collection
}

// NewMongoRepository creates a new MongoRepository
func NewMongoRepository(client *mongo.Client, database string) *MongoRepository {
	db := client.Database(database)
	return &MongoRepository{
		client:                 client,
		RepairCollection:       db.Collection("repairs"),
		UserCollection:         db.Collection("users"),
		WorkshopCollection:     db.Collection("workshops"),
		CarCollection:          db.Collection("cars"),
		NotificationCollection: db.Collection("notifications"),
		OutboxCollection:       db.Collection("outbox"),
	}
}

// Ping checks that the primary is reachable
func (r *MongoRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx, nil)
}

// WithTransaction runs fn inside a session transaction
func (r *MongoRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoWithTransaction")
	defer span.End()

	session, err := r.client.StartSession()
	if err != nil {
		return spanError(span, err, "Failed to start MongoDB session")
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "Transaction failed")
		return err
	}
	return nil
}

// EnsureIndexes creates the secondary indexes used by the listing queries
func (r *MongoRepository) EnsureIndexes(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoEnsureIndexes")
	defer span.End()

	indexes := map[*mongo.Collection][]mongo.IndexModel{
		r.RepairCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
			{Keys: bson.D{{Key: "assignedTo", Value: 1}}},
			{Keys: bson.D{{Key: "workshopId", Value: 1}}},
			{Keys: bson.D{{Key: "status", Value: 1}}},
		},
		r.UserCollection: {
			{Keys: bson.D{{Key: "role", Value: 1}}},
			{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true).SetSparse(true)},
		},
		r.CarCollection: {
			{Keys: bson.D{{Key: "ownerId", Value: 1}}},
		},
		r.NotificationCollection: {
			{Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}}},
		},
		r.OutboxCollection: {
			{Keys: bson.D{{Key: "processed", Value: 1}, {Key: "created_at", Value: 1}}},
			// unprocessed events have no processed_at and never expire
			{Keys: bson.D{{Key: "processed_at", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(OutboxRetentionSeconds)},
		},
	}
	for coll, models := range indexes {
		if _, err := coll.Indexes().CreateMany(ctx, models); err != nil {
			return spanError(span, err, fmt.Sprintf("Failed to create indexes on %s", coll.Name()))
		}
	}
	return nil
}

// spanError records err on the span and returns it wrapped. Missing
// documents become NotFoundError so callers never see driver sentinels.
func spanError(span trace.Span, err error, msg string) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return &Error{Kind: KindNotFound, Message: msg, Err: err}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func decodeAll[T any](ctx context.Context, cursor *mongo.Cursor) ([]*T, error) {
	defer cursor.Close(ctx)
	items := []*T{}
	for cursor.Next(ctx) {
		var item T
		if err := cursor.Decode(&item); err != nil {
			return nil, err
		}
		items = append(items, &item)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
