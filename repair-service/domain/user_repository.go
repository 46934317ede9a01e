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

// GetUserByID retrieves a user by ID
func (r *MongoRepository) GetUserByID(ctx context.Context, id string) (*User, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetUserByID")
	defer span.End()

	var user User
	err := r.UserCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NotFoundError("user %s not found", id)
	}
	if err != nil {
		return nil, spanError(span, err, "Failed to find user")
	}
	span.SetAttributes(
		attribute.String("userID", id),
		attribute.String("role", string(user.Role)),
	)
	return &user, nil
}

// ListUsersByRole retrieves users of one role
func (r *MongoRepository) ListUsersByRole(ctx context.Context, role Role, specialization string) ([]*User, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoListUsersByRole")
	defer span.End()

	query := bson.M{"role": role}
	if specialization != "" {
		query["specializations"] = specialization
	}
	cursor, err := r.UserCollection.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, spanError(span, err, "Failed to find users")
	}
	users, err := decodeAll[User](ctx, cursor)
	if err != nil {
		return nil, spanError(span, err, "Failed to decode users")
	}
	span.SetAttributes(
		attribute.String("role", string(role)),
		attribute.Int("userCount", len(users)),
	)
	return users, nil
}

// SetUserWorkshop sets or clears a mechanic's workshop affiliation
func (r *MongoRepository) SetUserWorkshop(ctx context.Context, userID, workshopID string) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoSetUserWorkshop")
	defer span.End()

	update := bson.M{"$set": bson.M{"workshopId": workshopID}}
	if workshopID == "" {
		update = bson.M{"$unset": bson.M{"workshopId": ""}}
	}
	res, err := r.UserCollection.UpdateOne(ctx, bson.M{"_id": userID}, update)
	if err != nil {
		return spanError(span, err, "Failed to update user workshop")
	}
	if res.MatchedCount == 0 {
		return NotFoundError("user %s not found", userID)
	}
	span.SetAttributes(
		attribute.String("userID", userID),
		attribute.String("workshopID", workshopID),
	)
	return nil
}

// IncrementMechanicJobs adjusts the job counters of a mechanic
func (r *MongoRepository) IncrementMechanicJobs(ctx context.Context, mechanicID string, active, completed int) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoIncrementMechanicJobs")
	defer span.End()

	update := bson.M{"$inc": bson.M{"activeJobs": active, "completedJobs": completed}}
	res, err := r.UserCollection.UpdateOne(ctx, bson.M{"_id": mechanicID, "role": RoleMechanic}, update)
	if err != nil {
		return spanError(span, err, "Failed to update mechanic counters")
	}
	if res.MatchedCount == 0 {
		return NotFoundError("mechanic %s not found", mechanicID)
	}
	span.SetAttributes(
		attribute.String("mechanicID", mechanicID),
		attribute.Int("activeDelta", active),
		attribute.Int("completedDelta", completed),
	)
	return nil
}

// CreateWorkshop inserts a new workshop
func (r *MongoRepository) CreateWorkshop(ctx context.Context, workshop *Workshop) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateWorkshop")
	defer span.End()

	if _, err := r.WorkshopCollection.InsertOne(ctx, workshop); err != nil {
		return spanError(span, err, "Failed to insert workshop")
	}
	span.SetAttributes(attribute.String("workshopID", workshop.ID))
	return nil
}

// GetWorkshopByID retrieves a workshop by ID
func (r *MongoRepository) GetWorkshopByID(ctx context.Context, id string) (*Workshop, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetWorkshopByID")
	defer span.End()

	var workshop Workshop
	err := r.WorkshopCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&workshop)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NotFoundError("workshop %s not found", id)
	}
	if err != nil {
		return nil, spanError(span, err, "Failed to find workshop")
	}
	span.SetAttributes(attribute.String("workshopID", id))
	return &workshop, nil
}

// ListWorkshops retrieves all workshops
func (r *MongoRepository) ListWorkshops(ctx context.Context) ([]*Workshop, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoListWorkshops")
	defer span.End()

	cursor, err := r.WorkshopCollection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, spanError(span, err, "Failed to find workshops")
	}
	workshops, err := decodeAll[Workshop](ctx, cursor)
	if err != nil {
		return nil, spanError(span, err, "Failed to decode workshops")
	}
	span.SetAttributes(attribute.Int("workshopCount", len(workshops)))
	return workshops, nil
}

// AddWorkshopMechanic adds a mechanic to the workshop roster
func (r *MongoRepository) AddWorkshopMechanic(ctx context.Context, workshopID, mechanicID string) (*Workshop, error) {
	return r.updateWorkshopMechanics(ctx, "MongoAddWorkshopMechanic", workshopID,
		bson.M{"$addToSet": bson.M{"mechanics": mechanicID}})
}

// RemoveWorkshopMechanic removes a mechanic from the workshop roster
func (r *MongoRepository) RemoveWorkshopMechanic(ctx context.Context, workshopID, mechanicID string) (*Workshop, error) {
	return r.updateWorkshopMechanics(ctx, "MongoRemoveWorkshopMechanic", workshopID,
		bson.M{"$pull": bson.M{"mechanics": mechanicID}})
}

func (r *MongoRepository) updateWorkshopMechanics(ctx context.Context, spanName, workshopID string, update bson.M) (*Workshop, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, spanName)
	defer span.End()

	var workshop Workshop
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	err := r.WorkshopCollection.FindOneAndUpdate(ctx, bson.M{"_id": workshopID}, update, opts).Decode(&workshop)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NotFoundError("workshop %s not found", workshopID)
	}
	if err != nil {
		return nil, spanError(span, err, "Failed to update workshop mechanics")
	}
	span.SetAttributes(
		attribute.String("workshopID", workshopID),
		attribute.Int("mechanicCount", len(workshop.Mechanics)),
	)
	return &workshop, nil
}

// CreateCar inserts a new car
func (r *MongoRepository) CreateCar(ctx context.Context, car *Car) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoCreateCar")
	defer span.End()

	if _, err := r.CarCollection.InsertOne(ctx, car); err != nil {
		return spanError(span, err, "Failed to insert car")
	}
	span.SetAttributes(
		attribute.String("carID", car.ID),
		attribute.String("ownerID", car.OwnerID),
	)
	return nil
}

// GetCarByID retrieves a car by ID
func (r *MongoRepository) GetCarByID(ctx context.Context, id string) (*Car, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoGetCarByID")
	defer span.End()

	var car Car
	err := r.CarCollection.FindOne(ctx, bson.M{"_id": id}).Decode(&car)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, NotFoundError("car %s not found", id)
	}
	if err != nil {
		return nil, spanError(span, err, "Failed to find car")
	}
	span.SetAttributes(attribute.String("carID", id))
	return &car, nil
}

// ListCars retrieves the cars of one owner, or all cars
func (r *MongoRepository) ListCars(ctx context.Context, ownerID string) ([]*Car, error) {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "MongoListCars")
	defer span.End()

	query := bson.M{}
	if ownerID != "" {
		query["ownerId"] = ownerID
	}
	cursor, err := r.CarCollection.Find(ctx, query)
	if err != nil {
		return nil, spanError(span, err, "Failed to find cars")
	}
	cars, err := decodeAll[Car](ctx, cursor)
	if err != nil {
		return nil, spanError(span, err, "Failed to decode cars")
	}
	span.SetAttributes(attribute.Int("carCount", len(cars)))
	return cars, nil
}
