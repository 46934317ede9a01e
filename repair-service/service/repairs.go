package service

import (
	"context"
	"errors"
	"fmt"

	"fadedreams/repairshop/repair-service/domain"
	"fadedreams/repairshop/repair-service/metrics"
	"fadedreams/repairshop/repair-service/notify"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.opentelemetry.io/otel/attribute"
)

// CreateRepair files a new request for one of the customer's cars
func (s *Service) CreateRepair(ctx context.Context, actor domain.Actor, in CreateRepairInput) (*domain.RepairRequest, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceCreateRepair")
	defer span.End()

	if !actor.CanCreateRequest() {
		return nil, s.fail(span, domain.AuthorizationError("only customers can create repair requests"),
			"Repair creation denied", "userID", actor.ID())
	}
	if err := validateInput(in); err != nil {
		return nil, s.fail(span, err, "Invalid repair request")
	}
	span.SetAttributes(
		attribute.String("userID", actor.ID()),
		attribute.String("carID", in.CarID),
	)

	car, err := s.repo.GetCarByID(ctx, in.CarID)
	if err != nil {
		return nil, s.fail(span, err, "Failed to get car", "carID", in.CarID)
	}
	if car.OwnerID != actor.ID() {
		return nil, s.fail(span, domain.AuthorizationError("car %s does not belong to you", in.CarID),
			"Car ownership validation failed", "carID", in.CarID, "userID", actor.ID())
	}
	if in.WorkshopID != "" {
		if _, err := s.repo.GetWorkshopByID(ctx, in.WorkshopID); err != nil {
			return nil, s.fail(span, err, "Failed to get workshop", "workshopID", in.WorkshopID)
		}
	}

	priority := in.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	now := s.now()
	repair := &domain.RepairRequest{
		ID:            primitive.NewObjectID().Hex(),
		CarID:         in.CarID,
		UserID:        actor.ID(),
		WorkshopID:    in.WorkshopID,
		Title:         in.Title,
		Description:   in.Description,
		ServiceType:   in.ServiceType,
		Priority:      priority,
		Status:        domain.StatusPending,
		Iterations:    []domain.Iteration{},
		TotalCost:     decimal.Zero,
		RequestedDate: in.RequestedDate,
		Version:       1,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	span.SetAttributes(attribute.String("repairID", repair.ID))

	err = s.writeWithEvent(ctx, domain.EventRepairCreated, repair, func(ctx context.Context) error {
		return s.repo.CreateRepair(ctx, repair)
	})
	if err != nil {
		return nil, s.fail(span, err, "Failed to create repair")
	}
	metrics.RepairsCreated.Inc()
	s.logger.Info("Created repair", "repairID", repair.ID, "userID", repair.UserID)

	s.notifier.Notify(ctx, notify.Notice{
		Role:      domain.RoleAdmin,
		Title:     "New repair request",
		Message:   fmt.Sprintf("A new repair request %q was submitted", repair.Title),
		Type:      domain.NotificationRepairCreated,
		RelatedTo: repairRef(repair.ID),
	})
	return repair, nil
}

// GetRepair returns a request the actor may see
func (s *Service) GetRepair(ctx context.Context, actor domain.Actor, id string) (*domain.RepairRequest, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceGetRepair")
	defer span.End()
	span.SetAttributes(attribute.String("repairID", id))

	repair, err := s.repo.GetRepairByID(ctx, id)
	if err != nil {
		return nil, s.fail(span, err, "Failed to get repair", "repairID", id)
	}
	if err := domain.RequireAccess(actor, repair); err != nil {
		return nil, s.fail(span, err, "Repair access denied", "repairID", id, "userID", actor.ID())
	}
	return repair, nil
}

// ListRepairs returns the requests visible to the actor, optionally by status
func (s *Service) ListRepairs(ctx context.Context, actor domain.Actor, status domain.RepairStatus) ([]*domain.RepairRequest, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceListRepairs")
	defer span.End()

	if status != "" && !status.Valid() {
		return nil, s.fail(span, domain.ValidationError("invalid status %q", status), "Invalid status filter")
	}
	scope := actor.ListScope()
	if scope.Empty() {
		return []*domain.RepairRequest{}, nil
	}

	repairs, err := s.repo.ListRepairs(ctx, domain.RepairFilter{Scope: scope, Status: status})
	if err != nil {
		return nil, s.fail(span, err, "Failed to list repairs")
	}
	span.SetAttributes(
		attribute.String("role", string(actor.Role())),
		attribute.Int("repairCount", len(repairs)),
	)
	s.logger.Info("Listed repairs", "userID", actor.ID(), "count", len(repairs))
	return repairs, nil
}

// AddIteration records work on a request and advances its status. A
// non-zero expectedVersion must match the stored version.
func (s *Service) AddIteration(ctx context.Context, actor domain.Actor, id string, expectedVersion int64, in AddIterationInput) (*domain.RepairRequest, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceAddIteration")
	defer span.End()
	span.SetAttributes(attribute.String("repairID", id))

	if err := validateInput(in); err != nil {
		return nil, s.fail(span, err, "Invalid iteration")
	}
	repair, err := s.repo.GetRepairByID(ctx, id)
	if err != nil {
		return nil, s.fail(span, err, "Failed to get repair", "repairID", id)
	}
	if err := domain.RequireAccess(actor, repair); err != nil {
		return nil, s.fail(span, err, "Repair access denied", "repairID", id, "userID", actor.ID())
	}
	if !actor.CanAppendIteration(repair) {
		return nil, s.fail(span, domain.AuthorizationError("only a mechanic working on this repair can record work"),
			"Iteration denied", "repairID", id, "userID", actor.ID())
	}
	if in.RequestStatus != "" && !actor.CanSetStatus(repair, in.RequestStatus) {
		return nil, s.fail(span, domain.AuthorizationError("not allowed to set status %s", in.RequestStatus),
			"Status change denied", "repairID", id, "status", in.RequestStatus)
	}
	if err := checkVersion(repair, expectedVersion); err != nil {
		metrics.VersionConflicts.Inc()
		return nil, s.fail(span, err, "Stale repair version", "repairID", id)
	}

	from := repair.Status
	now := s.now()
	if err := repair.AppendIteration(in.iteration(actor.ID()), in.RequestStatus, now); err != nil {
		return nil, s.fail(span, err, "Failed to append iteration", "repairID", id)
	}
	repair.UpdatedAt = now

	err = s.writeWithEvent(ctx, domain.EventIterationAdded, repair, func(ctx context.Context) error {
		return s.repo.UpdateRepair(ctx, repair)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.VersionConflicts.Inc()
		}
		return nil, s.fail(span, err, "Failed to save iteration", "repairID", id)
	}
	metrics.IterationsAppended.Inc()
	s.recordTransition(ctx, repair, from)

	span.SetAttributes(
		attribute.Int("iterationCount", len(repair.Iterations)),
		attribute.String("status", string(repair.Status)),
		attribute.String("totalCost", repair.TotalCost.String()),
	)
	s.logger.Info("Added iteration", "repairID", id, "seq", len(repair.Iterations), "status", repair.Status, "totalCost", repair.TotalCost.String())

	s.notifier.Notify(ctx, notify.Notice{
		UserID:    repair.UserID,
		Title:     "Repair updated",
		Message:   fmt.Sprintf("New work was recorded on %q", repair.Title),
		Type:      domain.NotificationIterationAdded,
		RelatedTo: repairRef(repair.ID),
	})
	return repair, nil
}

// UpdateRepair applies a partial update. Each field is checked against the
// actor's capabilities before anything is changed.
func (s *Service) UpdateRepair(ctx context.Context, actor domain.Actor, id string, expectedVersion int64, in UpdateRepairInput) (*domain.RepairRequest, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceUpdateRepair")
	defer span.End()
	span.SetAttributes(attribute.String("repairID", id))

	if err := validateInput(in); err != nil {
		return nil, s.fail(span, err, "Invalid repair update")
	}
	if in.empty() {
		return nil, s.fail(span, domain.ValidationError("no updatable fields provided"), "Invalid repair update")
	}
	repair, err := s.repo.GetRepairByID(ctx, id)
	if err != nil {
		return nil, s.fail(span, err, "Failed to get repair", "repairID", id)
	}
	if err := domain.RequireAccess(actor, repair); err != nil {
		return nil, s.fail(span, err, "Repair access denied", "repairID", id, "userID", actor.ID())
	}
	if in.editsDetails() && !actor.CanEditDetails(repair) {
		return nil, s.fail(span, domain.AuthorizationError("not allowed to edit repair details"),
			"Repair update denied", "repairID", id)
	}
	if in.EstimatedCompletionDate != nil && !actor.CanSetEstimate(repair) {
		return nil, s.fail(span, domain.AuthorizationError("not allowed to set the estimated completion date"),
			"Repair update denied", "repairID", id)
	}
	if in.Status != nil && !actor.CanSetStatus(repair, *in.Status) {
		return nil, s.fail(span, domain.AuthorizationError("not allowed to set status %s", *in.Status),
			"Status change denied", "repairID", id, "status", *in.Status)
	}
	if err := checkVersion(repair, expectedVersion); err != nil {
		metrics.VersionConflicts.Inc()
		return nil, s.fail(span, err, "Stale repair version", "repairID", id)
	}

	from := repair.Status
	now := s.now()
	if in.Status != nil {
		if err := repair.ApplyStatus(*in.Status, now); err != nil {
			return nil, s.fail(span, err, "Illegal status change", "repairID", id, "from", from, "to", *in.Status)
		}
	}
	if in.Title != nil {
		repair.Title = *in.Title
	}
	if in.Description != nil {
		repair.Description = *in.Description
	}
	if in.Priority != nil {
		repair.Priority = *in.Priority
	}
	if in.EstimatedCompletionDate != nil {
		repair.EstimatedCompletionDate = in.EstimatedCompletionDate
	}
	repair.UpdatedAt = now

	err = s.writeWithEvent(ctx, domain.EventRepairUpdated, repair, func(ctx context.Context) error {
		return s.repo.UpdateRepair(ctx, repair)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.VersionConflicts.Inc()
		}
		return nil, s.fail(span, err, "Failed to update repair", "repairID", id)
	}
	s.logger.Info("Updated repair", "repairID", id, "status", repair.Status, "version", repair.Version)

	if from != repair.Status {
		s.recordTransition(ctx, repair, from)
		s.notifier.Notify(ctx, notify.Notice{
			UserID:    repair.UserID,
			Title:     "Repair status changed",
			Message:   fmt.Sprintf("%q is now %s", repair.Title, repair.Status),
			Type:      domain.NotificationStatusChanged,
			RelatedTo: repairRef(repair.ID),
		})
	}
	return repair, nil
}

// recordTransition counts a status change and keeps the assigned
// mechanic's job counters in step with it
func (s *Service) recordTransition(ctx context.Context, repair *domain.RepairRequest, from domain.RepairStatus) {
	if from == repair.Status {
		return
	}
	metrics.StatusTransitions.WithLabelValues(string(from), string(repair.Status)).Inc()
	switch repair.Status {
	case domain.StatusCompleted:
		s.adjustJobs(ctx, repair.AssignedTo, -1, 1)
	case domain.StatusCancelled:
		s.adjustJobs(ctx, repair.AssignedTo, -1, 0)
	}
}

// DeleteRepair removes a request with its iterations
func (s *Service) DeleteRepair(ctx context.Context, actor domain.Actor, id string) error {
	ctx, span := s.tracer.Start(ctx, "ServiceDeleteRepair")
	defer span.End()
	span.SetAttributes(attribute.String("repairID", id))

	repair, err := s.repo.GetRepairByID(ctx, id)
	if err != nil {
		return s.fail(span, err, "Failed to get repair", "repairID", id)
	}
	if err := domain.RequireAccess(actor, repair); err != nil {
		return s.fail(span, err, "Repair access denied", "repairID", id, "userID", actor.ID())
	}
	if !actor.CanDeleteRequest(repair) {
		return s.fail(span, domain.AuthorizationError("only the owner of a pending request or an admin can delete it"),
			"Repair deletion denied", "repairID", id, "status", repair.Status)
	}

	err = s.writeWithEvent(ctx, domain.EventRepairDeleted, repair, func(ctx context.Context) error {
		return s.repo.DeleteRepair(ctx, id)
	})
	if err != nil {
		return s.fail(span, err, "Failed to delete repair", "repairID", id)
	}
	if !repair.Status.Terminal() {
		s.adjustJobs(ctx, repair.AssignedTo, -1, 0)
	}
	s.logger.Info("Deleted repair", "repairID", id, "userID", actor.ID())
	return nil
}

// AssignMechanic binds a mechanic to a pending or assigned request
func (s *Service) AssignMechanic(ctx context.Context, actor domain.Actor, id string, expectedVersion int64, in AssignInput) (*domain.RepairRequest, error) {
	ctx, span := s.tracer.Start(ctx, "ServiceAssignMechanic")
	defer span.End()
	span.SetAttributes(
		attribute.String("repairID", id),
		attribute.String("mechanicID", in.MechanicID),
	)

	if !actor.CanAssignMechanic() {
		return nil, s.fail(span, domain.AuthorizationError("only admins can assign mechanics"),
			"Assignment denied", "repairID", id, "userID", actor.ID())
	}
	if err := validateInput(in); err != nil {
		return nil, s.fail(span, err, "Invalid assignment")
	}
	repair, err := s.repo.GetRepairByID(ctx, id)
	if err != nil {
		return nil, s.fail(span, err, "Failed to get repair", "repairID", id)
	}
	mechanic, err := s.repo.GetUserByID(ctx, in.MechanicID)
	if err != nil {
		return nil, s.fail(span, err, "Failed to get mechanic", "mechanicID", in.MechanicID)
	}
	if mechanic.Role != domain.RoleMechanic {
		return nil, s.fail(span, domain.ValidationError("user %s is not a mechanic", in.MechanicID),
			"Invalid mechanic", "mechanicID", in.MechanicID)
	}
	if err := checkVersion(repair, expectedVersion); err != nil {
		metrics.VersionConflicts.Inc()
		return nil, s.fail(span, err, "Stale repair version", "repairID", id)
	}

	previous := repair.AssignedTo
	from := repair.Status
	now := s.now()
	if err := repair.Assign(mechanic.ID, now); err != nil {
		return nil, s.fail(span, err, "Failed to assign mechanic", "repairID", id)
	}
	repair.UpdatedAt = now

	err = s.writeWithEvent(ctx, domain.EventRepairAssigned, repair, func(ctx context.Context) error {
		return s.repo.UpdateRepair(ctx, repair)
	})
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			metrics.VersionConflicts.Inc()
		}
		return nil, s.fail(span, err, "Failed to save assignment", "repairID", id)
	}
	if from != repair.Status {
		metrics.StatusTransitions.WithLabelValues(string(from), string(repair.Status)).Inc()
	}
	if previous != mechanic.ID {
		s.adjustJobs(ctx, previous, -1, 0)
		s.adjustJobs(ctx, mechanic.ID, 1, 0)
	}
	s.logger.Info("Assigned mechanic", "repairID", id, "mechanicID", mechanic.ID, "previous", previous)

	s.notifier.Notify(ctx, notify.Notice{
		UserID:    mechanic.ID,
		Title:     "New assignment",
		Message:   fmt.Sprintf("You were assigned to %q", repair.Title),
		Type:      domain.NotificationAssigned,
		RelatedTo: repairRef(repair.ID),
	})
	return repair, nil
}
