package domain

// Actor is the authenticated caller. Each role has its own implementation so
// permission rules live in one place instead of role checks in every handler.
// All checks fail closed: a nil request or an empty id never grants access.
type Actor interface {
	ID() string
	Role() Role
	WorkshopID() string

	// CanAccess decides whether the actor may view or act on r at all
	CanAccess(r *RepairRequest) bool
	CanCreateRequest() bool
	CanAssignMechanic() bool
	CanAppendIteration(r *RepairRequest) bool
	CanDeleteRequest(r *RepairRequest) bool
	// CanEditDetails covers title, description and priority
	CanEditDetails(r *RepairRequest) bool
	CanSetEstimate(r *RepairRequest) bool
	// CanSetStatus is checked on top of the transition table
	CanSetStatus(r *RepairRequest, to RepairStatus) bool
	CanManageWorkshops() bool
	// ListScope restricts bulk queries to what CanAccess would allow
	ListScope() ListScope
}

// NewActor builds the capability set for a resolved session
func NewActor(id string, role Role, workshopID string) (Actor, error) {
	if id == "" {
		return nil, AuthenticationError("session has no subject")
	}
	switch role {
	case RoleCustomer:
		return Customer{id: id}, nil
	case RoleMechanic:
		return Mechanic{id: id, workshopID: workshopID}, nil
	case RoleAdmin:
		return Admin{id: id}, nil
	}
	return nil, AuthenticationError("unknown role %q", role)
}

// RequireAccess returns an AuthorizationError unless a may act on r
func RequireAccess(a Actor, r *RepairRequest) error {
	if a == nil || !a.CanAccess(r) {
		return AuthorizationError("not authorized to access this repair")
	}
	return nil
}

// ListScope is the OR of its non-empty clauses; All disables filtering
type ListScope struct {
	All        bool
	UserID     string
	AssignedTo string
	WorkshopID string
}

// Empty reports whether the scope can match nothing
func (s ListScope) Empty() bool {
	return !s.All && s.UserID == "" && s.AssignedTo == "" && s.WorkshopID == ""
}

// Matches evaluates the scope against a single request
func (s ListScope) Matches(r *RepairRequest) bool {
	if r == nil {
		return false
	}
	if s.All {
		return true
	}
	return matchID(s.UserID, r.UserID) ||
		matchID(s.AssignedTo, r.AssignedTo) ||
		matchID(s.WorkshopID, r.WorkshopID)
}

func matchID(a, b string) bool {
	return a != "" && a == b
}

func isOwner(id string, r *RepairRequest) bool {
	return r != nil && matchID(id, r.UserID)
}

// Customer may see and manage only their own requests
type Customer struct {
	id string
}

func (c Customer) ID() string         { return c.id }
func (c Customer) Role() Role         { return RoleCustomer }
func (c Customer) WorkshopID() string { return "" }

func (c Customer) CanAccess(r *RepairRequest) bool          { return isOwner(c.id, r) }
func (c Customer) CanCreateRequest() bool                   { return true }
func (c Customer) CanAssignMechanic() bool                  { return false }
func (c Customer) CanAppendIteration(r *RepairRequest) bool { return false }
func (c Customer) CanEditDetails(r *RepairRequest) bool     { return isOwner(c.id, r) }
func (c Customer) CanSetEstimate(r *RepairRequest) bool     { return false }
func (c Customer) CanManageWorkshops() bool                 { return false }

func (c Customer) CanDeleteRequest(r *RepairRequest) bool {
	return isOwner(c.id, r) && r.Status == StatusPending
}

// CanSetStatus lets an owner withdraw a request but nothing else
func (c Customer) CanSetStatus(r *RepairRequest, to RepairStatus) bool {
	return isOwner(c.id, r) && to == StatusCancelled
}

func (c Customer) ListScope() ListScope {
	return ListScope{UserID: c.id}
}

// Mechanic works on requests assigned to them or filed with their workshop
type Mechanic struct {
	id         string
	workshopID string
}

func (m Mechanic) ID() string         { return m.id }
func (m Mechanic) Role() Role         { return RoleMechanic }
func (m Mechanic) WorkshopID() string { return m.workshopID }

func (m Mechanic) worksOn(r *RepairRequest) bool {
	if r == nil {
		return false
	}
	return matchID(m.id, r.AssignedTo) || matchID(m.workshopID, r.WorkshopID)
}

func (m Mechanic) CanAccess(r *RepairRequest) bool {
	return isOwner(m.id, r) || m.worksOn(r)
}

func (m Mechanic) CanCreateRequest() bool                   { return false }
func (m Mechanic) CanAssignMechanic() bool                  { return false }
func (m Mechanic) CanAppendIteration(r *RepairRequest) bool { return m.worksOn(r) }
func (m Mechanic) CanDeleteRequest(r *RepairRequest) bool   { return false }
func (m Mechanic) CanEditDetails(r *RepairRequest) bool     { return false }
func (m Mechanic) CanSetEstimate(r *RepairRequest) bool     { return m.worksOn(r) }
func (m Mechanic) CanManageWorkshops() bool                 { return false }

func (m Mechanic) CanSetStatus(r *RepairRequest, to RepairStatus) bool {
	if !m.worksOn(r) {
		return false
	}
	switch to {
	case StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

func (m Mechanic) ListScope() ListScope {
	return ListScope{AssignedTo: m.id, WorkshopID: m.workshopID}
}

// Admin may do anything except author work iterations
type Admin struct {
	id string
}

func (a Admin) ID() string         { return a.id }
func (a Admin) Role() Role         { return RoleAdmin }
func (a Admin) WorkshopID() string { return "" }

func (a Admin) CanAccess(r *RepairRequest) bool          { return r != nil }
func (a Admin) CanCreateRequest() bool                   { return false }
func (a Admin) CanAssignMechanic() bool                  { return true }
func (a Admin) CanAppendIteration(r *RepairRequest) bool { return false }
func (a Admin) CanDeleteRequest(r *RepairRequest) bool   { return r != nil }
func (a Admin) CanEditDetails(r *RepairRequest) bool     { return r != nil }
func (a Admin) CanSetEstimate(r *RepairRequest) bool     { return r != nil }
func (a Admin) CanManageWorkshops() bool                 { return true }

// CanSetStatus excludes assigned, which needs a mechanic and goes through
// the assign operation instead.
func (a Admin) CanSetStatus(r *RepairRequest, to RepairStatus) bool {
	return r != nil && to != StatusAssigned
}

func (a Admin) ListScope() ListScope {
	return ListScope{All: true}
}
