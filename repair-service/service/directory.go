package service

import (
	"context"

	"fadedreams/repairshop/repair-service/domain"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
)

// CreateCar registers a vehicle owned by the calling customer
func (s *Service) CreateCar(ctx context.Context, actor domain.Actor, in CreateCarInput) (*domain.Car, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceCreateCar")
	defer span.End()

	if !actor.CanCreateRequest() {
		return nil, s.fail(span, domain.AuthorizationError("only customers can register cars"), "Car registration denied")
	}
	if err := validateInput(in); err != nil {
		return nil, s.fail(span, err, "Invalid car")
	}

	car := &domain.Car{
		ID:           primitive.NewObjectID().Hex(),
		OwnerID:      actor.ID(),
		Make:         in.Make,
		Model:        in.Model,
		Year:         in.Year,
		LicensePlate: in.LicensePlate,
		VIN:          in.VIN,
		CreatedAt:    s.now(),
	}
	if err := s.repo.CreateCar(ctx, car); err != nil {
		return nil, s.fail(span, err, "Failed to create car")
	}
	span.SetAttributes(
		attribute.String("carID", car.ID),
		attribute.String("ownerID", car.OwnerID),
	)
	s.logger.Info("Created car", "carID", car.ID, "ownerID", car.OwnerID)
	return car, nil
}

// ListCars returns the actor's cars, or every car for admins
func (s *Service) ListCars(ctx context.Context, actor domain.Actor) ([]*domain.Car, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListCars")
	defer span.End()

	ownerID := actor.ID()
	if actor.ListScope().All {
		ownerID = ""
	}
	cars, err := s.repo.ListCars(ctx, ownerID)
	if err != nil {
		return nil, s.fail(span, err, "Failed to list cars")
	}
	span.SetAttributes(attribute.Int("carCount", len(cars)))
	return cars, nil
}

func (s *Service) ListWorkshops(ctx context.Context) ([]*domain.Workshop, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListWorkshops")
	defer span.End()

	workshops, err := s.repo.ListWorkshops(ctx)
	if err != nil {
		return nil, s.fail(span, err, "Failed to list workshops")
	}
	span.SetAttributes(attribute.Int("workshopCount", len(workshops)))
	return workshops, nil
}

func (s *Service) GetWorkshop(ctx context.Context, id string) (*domain.Workshop, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceGetWorkshop")
	defer span.End()
	span.SetAttributes(attribute.String("workshopID", id))

	workshop, err := s.repo.GetWorkshopByID(ctx, id)
	if err != nil {
		return nil, s.fail(span, err, "Failed to get workshop", "workshopID", id)
	}
	return workshop, nil
}

// CreateWorkshop adds a workshop with an empty roster
func (s *Service) CreateWorkshop(ctx context.Context, actor domain.Actor, in CreateWorkshopInput) (*domain.Workshop, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceCreateWorkshop")
	defer span.End()

	if !actor.CanManageWorkshops() {
		return nil, s.fail(span, domain.AuthorizationError("only admins can manage workshops"), "Workshop creation denied")
	}
	if err := validateInput(in); err != nil {
		return nil, s.fail(span, err, "Invalid workshop")
	}

	workshop := &domain.Workshop{
		ID:        primitive.NewObjectID().Hex(),
		Name:      in.Name,
		Address:   in.Address,
		Phone:     in.Phone,
		Mechanics: []string{},
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateWorkshop(ctx, workshop); err != nil {
		return nil, s.fail(span, err, "Failed to create workshop")
	}
	span.SetAttributes(attribute.String("workshopID", workshop.ID))
	s.logger.Info("Created workshop", "workshopID", workshop.ID, "name", workshop.Name)
	return workshop, nil
}

// AddWorkshopMechanic puts a mechanic on a roster. A mechanic belongs to
// at most one workshop, so any previous affiliation is dropped.
func (s *Service) AddWorkshopMechanic(ctx context.Context, actor domain.Actor, workshopID string, in WorkshopMechanicInput) (*domain.Workshop, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceAddWorkshopMechanic")
	defer span.End()
	span.SetAttributes(
		attribute.String("workshopID", workshopID),
		attribute.String("mechanicID", in.MechanicID),
	)

	if !actor.CanManageWorkshops() {
		return nil, s.fail(span, domain.AuthorizationError("only admins can manage workshops"), "Workshop update denied")
	}
	if err := validateInput(in); err != nil {
		return nil, s.fail(span, err, "Invalid workshop mechanic")
	}
	mechanic, err := s.repo.GetUserByID(ctx, in.MechanicID)
	if err != nil {
		return nil, s.fail(span, err, "Failed to get mechanic", "mechanicID", in.MechanicID)
	}
	if mechanic.Role != domain.RoleMechanic {
		return nil, s.fail(span, domain.ValidationError("user %s is not a mechanic", in.MechanicID),
			"Invalid mechanic", "mechanicID", in.MechanicID)
	}

	var workshop *domain.Workshop
	err = s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if workshop, err = s.repo.AddWorkshopMechanic(ctx, workshopID, mechanic.ID); err != nil {
			return err
		}
		if mechanic.WorkshopID != "" && mechanic.WorkshopID != workshopID {
			if _, err := s.repo.RemoveWorkshopMechanic(ctx, mechanic.WorkshopID, mechanic.ID); err != nil && domain.KindOf(err) != domain.KindNotFound {
				return err
			}
		}
		return s.repo.SetUserWorkshop(ctx, mechanic.ID, workshopID)
	})
	if err != nil {
		return nil, s.fail(span, err, "Failed to add workshop mechanic", "workshopID", workshopID, "mechanicID", mechanic.ID)
	}
	s.logger.Info("Added workshop mechanic", "workshopID", workshopID, "mechanicID", mechanic.ID, "previousWorkshop", mechanic.WorkshopID)
	return workshop, nil
}

// RemoveWorkshopMechanic takes a mechanic off a roster
func (s *Service) RemoveWorkshopMechanic(ctx context.Context, actor domain.Actor, workshopID, mechanicID string) (*domain.Workshop, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceRemoveWorkshopMechanic")
	defer span.End()
	span.SetAttributes(
		attribute.String("workshopID", workshopID),
		attribute.String("mechanicID", mechanicID),
	)

	if !actor.CanManageWorkshops() {
		return nil, s.fail(span, domain.AuthorizationError("only admins can manage workshops"), "Workshop update denied")
	}

	var workshop *domain.Workshop
	err := s.repo.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		if workshop, err = s.repo.RemoveWorkshopMechanic(ctx, workshopID, mechanicID); err != nil {
			return err
		}
		user, err := s.repo.GetUserByID(ctx, mechanicID)
		if err != nil {
			if domain.KindOf(err) == domain.KindNotFound {
				return nil
			}
			return err
		}
		if user.WorkshopID != workshopID {
			return nil
		}
		return s.repo.SetUserWorkshop(ctx, mechanicID, "")
	})
	if err != nil {
		return nil, s.fail(span, err, "Failed to remove workshop mechanic", "workshopID", workshopID, "mechanicID", mechanicID)
	}
	s.logger.Info("Removed workshop mechanic", "workshopID", workshopID, "mechanicID", mechanicID)
	return workshop, nil
}

// ListMechanics returns assignable mechanics, optionally by specialization
func (s *Service) ListMechanics(ctx context.Context, actor domain.Actor, specialization string) ([]*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListMechanics")
	defer span.End()

	if !actor.CanAssignMechanic() {
		return nil, s.fail(span, domain.AuthorizationError("only admins can list mechanics"), "Mechanic listing denied")
	}
	mechanics, err := s.repo.ListUsersByRole(ctx, domain.RoleMechanic, specialization)
	if err != nil {
		return nil, s.fail(span, err, "Failed to list mechanics")
	}
	span.SetAttributes(
		attribute.String("specialization", specialization),
		attribute.Int("mechanicCount", len(mechanics)),
	)
	s.logger.Info("Retrieved mechanics", "count", len(mechanics), "specialization", specialization)
	return mechanics, nil
}

// Profile returns the stored user record of the actor
func (s *Service) Profile(ctx context.Context, actor domain.Actor) (*domain.User, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceProfile")
	defer span.End()
	span.SetAttributes(attribute.String("userID", actor.ID()))

	user, err := s.repo.GetUserByID(ctx, actor.ID())
	if err != nil {
		return nil, s.fail(span, err, "Failed to get user", "userID", actor.ID())
	}
	return user, nil
}

// ListNotifications returns the actor's inbox, newest first
func (s *Service) ListNotifications(ctx context.Context, actor domain.Actor) ([]*domain.Notification, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListNotifications")
	defer span.End()

	notifications, err := s.repo.ListNotifications(ctx, actor.ID())
	if err != nil {
		return nil, s.fail(span, err, "Failed to list notifications", "userID", actor.ID())
	}
	span.SetAttributes(attribute.Int("notificationCount", len(notifications)))
	return notifications, nil
}

// MarkNotificationRead flags one of the actor's notifications as read
func (s *Service) MarkNotificationRead(ctx context.Context, actor domain.Actor, id string) error {
	ctx, span := s.tracer.Start(ctx, "ServiceMarkNotificationRead")
	defer span.End()
	span.SetAttributes(attribute.String("notificationID", id))

	if err := s.repo.MarkNotificationRead(ctx, id, actor.ID()); err != nil {
		return s.fail(span, err, "Failed to mark notification as read", "notificationID", id)
	}
	return nil
}
