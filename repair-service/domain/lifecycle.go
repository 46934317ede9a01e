package domain

import (
	"slices"
	"time"
)

// repairTransitions lists the legal forward moves of a repair request.
// Staying in the same state is always allowed and is a no-op.
var repairTransitions = map[RepairStatus][]RepairStatus{
	StatusPending:    {StatusAssigned, StatusCancelled},
	StatusAssigned:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
	StatusCompleted:  nil,
	StatusCancelled:  nil,
}

// Valid reports whether s is a known repair status
func (s RepairStatus) Valid() bool {
	_, ok := repairTransitions[s]
	return ok
}

// Terminal reports whether no further work can happen on the request
func (s RepairStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// Valid reports whether s is a known iteration status
func (s IterationStatus) Valid() bool {
	switch s {
	case IterationPending, IterationInProgress, IterationCompleted, IterationCancelled:
		return true
	}
	return false
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// CanTransition reports whether a request may move from one status to another
func CanTransition(from, to RepairStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	return slices.Contains(repairTransitions[from], to)
}

// ValidateTransition returns a TransitionError for an illegal move
func ValidateTransition(from, to RepairStatus) error {
	if !to.Valid() {
		return ValidationError("invalid status %q", to)
	}
	if !CanTransition(from, to) {
		return TransitionError("cannot move repair from %s to %s", from, to)
	}
	return nil
}

// ApplyStatus moves the request to status to. The first transition to
// completed stamps ActualCompletionDate; later ones leave it untouched.
func (r *RepairRequest) ApplyStatus(to RepairStatus, now time.Time) error {
	if err := ValidateTransition(r.Status, to); err != nil {
		return err
	}
	r.Status = to
	if to == StatusCompleted && r.ActualCompletionDate == nil {
		completedAt := now
		r.ActualCompletionDate = &completedAt
	}
	return nil
}

// Assign binds a mechanic. Reassignment is allowed until work has started.
func (r *RepairRequest) Assign(mechanicID string, now time.Time) error {
	if mechanicID == "" {
		return ValidationError("mechanicId is required")
	}
	if r.Status != StatusPending && r.Status != StatusAssigned {
		return TransitionError("cannot assign a mechanic to a repair that is %s", r.Status)
	}
	if err := r.ApplyStatus(StatusAssigned, now); err != nil {
		return err
	}
	r.AssignedTo = mechanicID
	return nil
}

// AppendIteration records a new unit of work and moves the parent request
// through the transition table. An explicit requestStatus must be a legal
// move; without one an active iteration starts an assigned request and
// otherwise the parent is left alone. Nothing is modified on error.
func (r *RepairRequest) AppendIteration(it Iteration, requestStatus RepairStatus, now time.Time) error {
	if r.Status.Terminal() {
		return TransitionError("cannot add work to a repair that is %s", r.Status)
	}
	if it.Description == "" {
		return ValidationError("description is required")
	}
	if !it.Status.Valid() {
		return ValidationError("invalid iteration status %q", it.Status)
	}
	if err := validateCost(it, TotalCost(r.Iterations)); err != nil {
		return err
	}

	target := requestStatus
	if target == "" && r.Status == StatusAssigned &&
		(it.Status == IterationPending || it.Status == IterationInProgress) {
		target = StatusInProgress
	}
	if target != "" {
		if err := ValidateTransition(r.Status, target); err != nil {
			return err
		}
	}

	it.Seq = len(r.Iterations) + 1
	it.CreatedAt = now
	if it.Status == IterationCompleted && it.CompletedAt == nil {
		completedAt := now
		it.CompletedAt = &completedAt
	}
	r.Iterations = append(r.Iterations, it)
	r.RecomputeTotal()

	if target != "" {
		// validated above
		_ = r.ApplyStatus(target, now)
	}
	return nil
}
