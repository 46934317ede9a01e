// Package domaintest provides an in-memory domain.Repository for tests.
package domaintest

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"fadedreams/repairshop/repair-service/domain"
)

// Memory is a map-backed domain.Repository. Stored values are copied on the
// way in and out so callers cannot mutate them behind the store's back.
// Setting one of the Err fields makes the matching operations fail.
type Memory struct {
	mu            sync.Mutex
	repairs       map[string]*domain.RepairRequest
	users         map[string]*domain.User
	workshops     map[string]*domain.Workshop
	cars          map[string]*domain.Car
	notifications map[string]*domain.Notification
	outbox        map[string]*domain.OutboxEvent

	CreateErr       error
	UpdateErr       error
	ListErr         error
	NotificationErr error
	OutboxErr       error
}

var _ domain.Repository = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		repairs:       make(map[string]*domain.RepairRequest),
		users:         make(map[string]*domain.User),
		workshops:     make(map[string]*domain.Workshop),
		cars:          make(map[string]*domain.Car),
		notifications: make(map[string]*domain.Notification),
		outbox:        make(map[string]*domain.OutboxEvent),
	}
}

func copyRepair(r *domain.RepairRequest) *domain.RepairRequest {
	c := *r
	c.Iterations = slices.Clone(r.Iterations)
	return &c
}

// PutUser seeds a user
func (m *Memory) PutUser(u *domain.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *u
	m.users[u.ID] = &c
}

// PutRepair seeds a repair as-is, bypassing the version check
func (m *Memory) PutRepair(r *domain.RepairRequest) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.repairs[r.ID] = copyRepair(r)
}

// Notifications returns every stored notification
func (m *Memory) Notifications() []*domain.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.Notification, 0, len(m.notifications))
	for _, n := range m.notifications {
		c := *n
		out = append(out, &c)
	}
	return out
}

// OutboxEvents returns every outbox event, oldest first
func (m *Memory) OutboxEvents() []*domain.OutboxEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*domain.OutboxEvent, 0, len(m.outbox))
	for _, e := range m.outbox {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// RepairCount returns the number of stored repairs
func (m *Memory) RepairCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.repairs)
}

func (m *Memory) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

func (m *Memory) CreateRepair(ctx context.Context, repair *domain.RepairRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.repairs[repair.ID] = copyRepair(repair)
	return nil
}

func (m *Memory) GetRepairByID(ctx context.Context, id string) (*domain.RepairRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.repairs[id]
	if !ok {
		return nil, domain.NotFoundError("repair %s not found", id)
	}
	return copyRepair(r), nil
}

func (m *Memory) ListRepairs(ctx context.Context, filter domain.RepairFilter) ([]*domain.RepairRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	out := []*domain.RepairRequest{}
	for _, r := range m.repairs {
		if !filter.Scope.Matches(r) {
			continue
		}
		if filter.Status != "" && r.Status != filter.Status {
			continue
		}
		out = append(out, copyRepair(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateRepair(ctx context.Context, repair *domain.RepairRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UpdateErr != nil {
		return m.UpdateErr
	}
	stored, ok := m.repairs[repair.ID]
	if !ok {
		return domain.NotFoundError("repair %s not found", repair.ID)
	}
	if stored.Version != repair.Version {
		return domain.ConflictError("repair %s was modified concurrently (version %d is stale)", repair.ID, repair.Version)
	}
	repair.Version++
	m.repairs[repair.ID] = copyRepair(repair)
	return nil
}

func (m *Memory) DeleteRepair(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.repairs[id]; !ok {
		return domain.NotFoundError("repair %s not found", id)
	}
	delete(m.repairs, id)
	return nil
}

func (m *Memory) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.NotFoundError("user %s not found", id)
	}
	c := *u
	return &c, nil
}

func (m *Memory) ListUsersByRole(ctx context.Context, role domain.Role, specialization string) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.User{}
	for _, u := range m.users {
		if u.Role != role {
			continue
		}
		if specialization != "" && !slices.Contains(u.Specializations, specialization) {
			continue
		}
		c := *u
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) SetUserWorkshop(ctx context.Context, userID, workshopID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[userID]
	if !ok {
		return domain.NotFoundError("user %s not found", userID)
	}
	u.WorkshopID = workshopID
	return nil
}

func (m *Memory) IncrementMechanicJobs(ctx context.Context, mechanicID string, active, completed int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[mechanicID]
	if !ok || u.Role != domain.RoleMechanic {
		return domain.NotFoundError("mechanic %s not found", mechanicID)
	}
	u.ActiveJobs += active
	u.CompletedJobs += completed
	return nil
}

func (m *Memory) CreateWorkshop(ctx context.Context, workshop *domain.Workshop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *workshop
	c.Mechanics = slices.Clone(workshop.Mechanics)
	m.workshops[workshop.ID] = &c
	return nil
}

func (m *Memory) GetWorkshopByID(ctx context.Context, id string) (*domain.Workshop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workshops[id]
	if !ok {
		return nil, domain.NotFoundError("workshop %s not found", id)
	}
	c := *w
	c.Mechanics = slices.Clone(w.Mechanics)
	return &c, nil
}

func (m *Memory) ListWorkshops(ctx context.Context) ([]*domain.Workshop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Workshop{}
	for _, w := range m.workshops {
		c := *w
		c.Mechanics = slices.Clone(w.Mechanics)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *Memory) AddWorkshopMechanic(ctx context.Context, workshopID, mechanicID string) (*domain.Workshop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workshops[workshopID]
	if !ok {
		return nil, domain.NotFoundError("workshop %s not found", workshopID)
	}
	if !slices.Contains(w.Mechanics, mechanicID) {
		w.Mechanics = append(w.Mechanics, mechanicID)
	}
	c := *w
	c.Mechanics = slices.Clone(w.Mechanics)
	return &c, nil
}

func (m *Memory) RemoveWorkshopMechanic(ctx context.Context, workshopID, mechanicID string) (*domain.Workshop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workshops[workshopID]
	if !ok {
		return nil, domain.NotFoundError("workshop %s not found", workshopID)
	}
	w.Mechanics = slices.DeleteFunc(w.Mechanics, func(id string) bool { return id == mechanicID })
	c := *w
	c.Mechanics = slices.Clone(w.Mechanics)
	return &c, nil
}

func (m *Memory) CreateCar(ctx context.Context, car *domain.Car) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *car
	m.cars[car.ID] = &c
	return nil
}

func (m *Memory) GetCarByID(ctx context.Context, id string) (*domain.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	car, ok := m.cars[id]
	if !ok {
		return nil, domain.NotFoundError("car %s not found", id)
	}
	c := *car
	return &c, nil
}

func (m *Memory) ListCars(ctx context.Context, ownerID string) ([]*domain.Car, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Car{}
	for _, car := range m.cars {
		if ownerID != "" && car.OwnerID != ownerID {
			continue
		}
		c := *car
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateNotification(ctx context.Context, n *domain.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.NotificationErr != nil {
		return m.NotificationErr
	}
	c := *n
	m.notifications[n.ID] = &c
	return nil
}

func (m *Memory) ListNotifications(ctx context.Context, userID string) ([]*domain.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.Notification{}
	for _, n := range m.notifications {
		if n.UserID != userID {
			continue
		}
		c := *n
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) MarkNotificationRead(ctx context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.notifications[id]
	if !ok || n.UserID != userID {
		return domain.NotFoundError("notification %s not found", id)
	}
	n.Read = true
	return nil
}

func (m *Memory) SaveOutboxEvent(ctx context.Context, event *domain.OutboxEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.OutboxErr != nil {
		return m.OutboxErr
	}
	c := *event
	m.outbox[event.ID] = &c
	return nil
}

func (m *Memory) GetUnprocessedOutboxEvents(ctx context.Context, limit int) ([]*domain.OutboxEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*domain.OutboxEvent{}
	for _, e := range m.outbox {
		if e.Processed {
			continue
		}
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *Memory) MarkOutboxEventProcessed(ctx context.Context, eventID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.outbox[eventID]
	if !ok {
		return domain.NotFoundError("outbox event %s not found", eventID)
	}
	now := time.Now()
	e.Processed = true
	e.ProcessedAt = &now
	return nil
}
