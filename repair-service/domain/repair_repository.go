package domain

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

// CreateRepair inserts a new repair
func (r *MongoRepository) CreateRepair(ctx context.Context, repair *RepairRequest) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateRepair")
	defer span.End()

	if _, err := r.RepairCollection.InsertOne(ctx, repair); err != nil {
		return spanError(span, err, "Failed to insert repair")
	}
	span.SetAttributes(
		attribute.String("repairID", repair.ID),
		attribute.String("userID", repair.UserID),
		attribute.String("status", string(repair.Status)),
	)
	return nil
}

// GetRepairByID retrieves a repair by ID
func (r *MongoRepository) GetRepairByID(ctx context.Context, id string) (*RepairRequest, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetRepairByID")
	defer span.End()

	var repair RepairRequest
	err := r.RepairCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&repair)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NotFoundError("repair %s not found", id)
	}
	if err != nil {
		return nil, spanError(span, err, "Failed to find repair")
	}
	span.SetAttributes(
		attribute.String("repairID", id),
		attribute.String("userID", repair.UserID),
	)
	return &repair, nil
}

// ListRepairs retrieves the repairs visible under filter, newest first
func (r *MongoRepository) ListRepairs(ctx context.Context, filter RepairFilter) ([]*RepairRequest, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoListRepairs")
	defer span.End()

	if filter.Scope.Empty() {
		span.SetAttributes(attribute.Int("repairCount", 0))
		return []*RepairRequest{}, nil
	}

	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	cursor, err := r.RepairCollection.Find(ctx, repairQuery(filter), opts)
	if err != nil {
		return nil, spanError(span, err, "Failed to find repairs")
	}
	repairs, err := decodeAll[RepairRequest](ctx, cursor)
	if err != nil {
		return nil, spanError(span, err, "Failed to decode repairs")
	}
	span.SetAttributes(attribute.Int("repairCount", len(repairs)))
	return repairs, nil
}

// repairQuery translates a filter into a Mongo query document
func repairQuery(filter RepairFilter) bson.M {
	query := bson.M{}
	if !filter.Scope.All {
		clauses := bson.A{}
		if filter.Scope.UserID != "" {
			clauses = append(clauses, bson.M{"userId": filter.Scope.UserID})
		}
		if filter.Scope.AssignedTo != "" {
			clauses = append(clauses, bson.M{"assignedTo": filter.Scope.AssignedTo})
		}
		if filter.Scope.WorkshopID != "" {
			clauses = append(clauses, bson.M{"workshopId": filter.Scope.WorkshopID})
		}
		query["$or"] = clauses
	}
	if filter.Status != "" {
		query["status"] = filter.Status
	}
	return query
}

// UpdateRepair replaces the repair document guarded by its version
func (r *MongoRepository) UpdateRepair(ctx context.Context, repair *RepairRequest) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoUpdateRepair")
	defer span.End()

	expected := repair.Version
	next := *repair
	next.Version = expected + 1

	res, err := r.RepairCollection.ReplaceOne(ctx, bson.M{"_id": repair.ID, "version": expected}, &next)
	if err != nil {
		return spanError(span, err, "Failed to update repair")
	}
	if res.MatchedCount == 0 {
		n, err := r.RepairCollection.CountDocuments(ctx, bson.M{"_id": repair.ID})
		if err != nil {
			return spanError(span, err, "Failed to check repair existence")
		}
		if n == 0 {
			return NotFoundError("repair %s not found", repair.ID)
		}
		return ConflictError("repair %s was modified concurrently (version %d is stale)", repair.ID, expected)
	}
	repair.Version = next.Version
	span.SetAttributes(
		attribute.String("repairID", repair.ID),
		attribute.String("status", string(repair.Status)),
		attribute.Int64("version", repair.Version),
	)
	return nil
}

// DeleteRepair removes a repair and its iterations
func (r *MongoRepository) DeleteRepair(ctx context.Context, id string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoDeleteRepair")
	defer span.End()

	res, err := r.RepairCollection.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return spanError(span, err, "Failed to delete repair")
	}
	if res.DeletedCount == 0 {
		return NotFoundError("repair %s not found", id)
	}
	span.SetAttributes(attribute.String("repairID", id))
	return nil
}
