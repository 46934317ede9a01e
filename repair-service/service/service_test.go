package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"fadedreams/repairshop/repair-service/domain"
	"fadedreams/repairshop/repair-service/domain/domaintest"
	"fadedreams/repairshop/repair-service/notify"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var baseTime = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu      sync.Mutex
	notices []notify.Notice
}

func (n *recordingNotifier) Notify(_ context.Context, notice notify.Notice) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notices = append(n.notices, notice)
}

func (n *recordingNotifier) all() []notify.Notice {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Notice(nil), n.notices...)
}

type fixture struct {
	svc      *Service
	mem      *domaintest.Memory
	notifier *recordingNotifier
	clock    time.Time

	alice, carol, bob, dave, root domain.Actor
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func actor(t *testing.T, id string, role domain.Role, workshopID string) domain.Actor {
	t.Helper()
	a, err := domain.NewActor(id, role, workshopID)
	require.NoError(t, err)
	return a
}

// newFixture seeds two customers, a workshop mechanic, a mechanic without a
// workshop, an admin, workshop w1 and alice's car c1
func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	mem := domaintest.NewMemory()
	mem.PutUser(&domain.User{ID: "alice", Name: "Alice", Role: domain.RoleCustomer})
	mem.PutUser(&domain.User{ID: "carol", Name: "Carol", Role: domain.RoleCustomer})
	mem.PutUser(&domain.User{ID: "bob", Name: "Bob", Role: domain.RoleMechanic, WorkshopID: "w1", Specializations: []string{"brakes"}})
	mem.PutUser(&domain.User{ID: "dave", Name: "Dave", Role: domain.RoleMechanic, Specializations: []string{"engine"}})
	mem.PutUser(&domain.User{ID: "root", Name: "Root", Role: domain.RoleAdmin})
	require.NoError(t, mem.CreateWorkshop(ctx, &domain.Workshop{ID: "w1", Name: "North", Mechanics: []string{"bob"}}))
	require.NoError(t, mem.CreateWorkshop(ctx, &domain.Workshop{ID: "w2", Name: "South"}))
	require.NoError(t, mem.CreateCar(ctx, &domain.Car{ID: "c1", OwnerID: "alice", Make: "Volvo", Model: "V70", Year: 2012, LicensePlate: "ABC123"}))

	f := &fixture{
		mem:      mem,
		notifier: &recordingNotifier{},
		clock:    baseTime,
		alice:    actor(t, "alice", domain.RoleCustomer, ""),
		carol:    actor(t, "carol", domain.RoleCustomer, ""),
		bob:      actor(t, "bob", domain.RoleMechanic, "w1"),
		dave:     actor(t, "dave", domain.RoleMechanic, ""),
		root:     actor(t, "root", domain.RoleAdmin, ""),
	}
	f.svc = NewService(mem, f.notifier, discardLogger())
	f.svc.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) seedRepair(id string, status domain.RepairStatus, assignedTo, workshopID string) {
	f.mem.PutRepair(&domain.RepairRequest{
		ID:         id,
		CarID:      "c1",
		UserID:     "alice",
		AssignedTo: assignedTo,
		WorkshopID: workshopID,
		Title:      "Squeaky brakes",
		Status:     status,
		Priority:   domain.PriorityMedium,
		Iterations: []domain.Iteration{},
		Version:    1,
		CreatedAt:  baseTime,
		UpdatedAt:  baseTime,
	})
}

func user(t *testing.T, mem *domaintest.Memory, id string) *domain.User {
	t.Helper()
	u, err := mem.GetUserByID(context.Background(), id)
	require.NoError(t, err)
	return u
}

func ptr[T any](v T) *T { return &v }

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestCreateRepair(t *testing.T) {
	f := newFixture(t)

	repair, err := f.svc.CreateRepair(context.Background(), f.alice, CreateRepairInput{
		CarID:       "c1",
		WorkshopID:  "w1",
		Title:       "Squeaky brakes",
		Description: "Front brakes squeak when stopping",
	})
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, repair.Status)
	assert.Equal(t, domain.PriorityMedium, repair.Priority)
	assert.Equal(t, "alice", repair.UserID)
	assert.Equal(t, int64(1), repair.Version)
	assert.True(t, repair.TotalCost.IsZero())
	assert.Equal(t, 1, f.mem.RepairCount())

	events := f.mem.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventRepairCreated, events[0].EventType)
	assert.Equal(t, repair.ID, events[0].Event.RepairID)

	notices := f.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, domain.RoleAdmin, notices[0].Role)
	assert.Empty(t, notices[0].UserID)
	assert.Equal(t, repair.ID, notices[0].RelatedTo.ID)
}

func TestCreateRepair_MissingCarIDPersistsNothing(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateRepair(context.Background(), f.alice, CreateRepairInput{
		Title:       "No car",
		Description: "missing the car reference",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))
	assert.Contains(t, err.Error(), "carId")
	assert.Equal(t, 0, f.mem.RepairCount())
	assert.Empty(t, f.mem.OutboxEvents())
	assert.Empty(t, f.notifier.all())
}

func TestCreateRepair_Rejections(t *testing.T) {
	f := newFixture(t)
	valid := CreateRepairInput{CarID: "c1", Title: "t", Description: "d"}

	tests := []struct {
		name  string
		actor domain.Actor
		in    CreateRepairInput
		want  error
	}{
		{"admin cannot file", f.root, valid, domain.ErrForbidden},
		{"mechanic cannot file", f.bob, valid, domain.ErrForbidden},
		{"someone else's car", f.carol, valid, domain.ErrForbidden},
		{"unknown car", f.alice, CreateRepairInput{CarID: "nope", Title: "t", Description: "d"}, domain.ErrNotFound},
		{"unknown workshop", f.alice, CreateRepairInput{CarID: "c1", WorkshopID: "w9", Title: "t", Description: "d"}, domain.ErrNotFound},
		{"bad priority", f.alice, CreateRepairInput{CarID: "c1", Title: "t", Description: "d", Priority: "urgent"}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateRepair(context.Background(), tt.actor, tt.in)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
	assert.Equal(t, 0, f.mem.RepairCount())
}

func TestAddIteration_CostAndCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRepair("r1", domain.StatusPending, "", "")

	_, err := f.svc.AssignMechanic(ctx, f.root, "r1", 0, AssignInput{MechanicID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, 1, user(t, f.mem, "bob").ActiveJobs)

	repair, err := f.svc.AddIteration(ctx, f.bob, "r1", 0, AddIterationInput{
		Description: "Replace pads",
		Status:      domain.IterationInProgress,
		Cost: &CostInput{
			Parts: []PartInput{{Name: "pad", Price: dec("10"), Quantity: dec("2")}},
			Labor: dec("5"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusInProgress, repair.Status)
	assert.Equal(t, "bob", repair.Iterations[0].MechanicID)

	f.clock = baseTime.Add(3 * time.Hour)
	repair, err = f.svc.AddIteration(ctx, f.bob, "r1", repair.Version, AddIterationInput{
		Description:   "Road test",
		Status:        domain.IterationCompleted,
		Cost:          &CostInput{Labor: dec("20")},
		RequestStatus: domain.StatusCompleted,
	})
	require.NoError(t, err)

	assert.Equal(t, "45", repair.TotalCost.String())
	assert.Equal(t, domain.StatusCompleted, repair.Status)
	require.NotNil(t, repair.ActualCompletionDate)
	assert.Equal(t, f.clock, *repair.ActualCompletionDate)
	require.Len(t, repair.Iterations, 2)
	assert.Equal(t, 2, repair.Iterations[1].Seq)

	stored, err := f.mem.GetRepairByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "45", stored.TotalCost.String())
	assert.Equal(t, repair.Version, stored.Version)

	bob := user(t, f.mem, "bob")
	assert.Equal(t, 0, bob.ActiveJobs)
	assert.Equal(t, 1, bob.CompletedJobs)

	var ownerNotices int
	for _, n := range f.notifier.all() {
		if n.UserID == "alice" && n.Type == domain.NotificationIterationAdded {
			ownerNotices++
		}
	}
	assert.Equal(t, 2, ownerNotices)
}

func TestUpdateRepair_CompletionTimestampIsSetOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRepair("r1", domain.StatusInProgress, "bob", "")

	completed, err := f.svc.UpdateRepair(ctx, f.root, "r1", 0, UpdateRepairInput{Status: ptr(domain.StatusCompleted)})
	require.NoError(t, err)
	require.NotNil(t, completed.ActualCompletionDate)
	first := *completed.ActualCompletionDate

	f.clock = baseTime.Add(24 * time.Hour)
	again, err := f.svc.UpdateRepair(ctx, f.root, "r1", 0, UpdateRepairInput{Status: ptr(domain.StatusCompleted)})
	require.NoError(t, err)
	assert.Equal(t, first, *again.ActualCompletionDate)
	assert.Equal(t, domain.StatusCompleted, again.Status)
}

func TestGetRepair_Access(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRepair("r1", domain.StatusPending, "", "w1")

	_, err := f.svc.GetRepair(ctx, f.carol, "r1")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = f.svc.GetRepair(ctx, f.dave, "r1")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	repair, err := f.svc.GetRepair(ctx, f.bob, "r1")
	require.NoError(t, err)
	assert.Equal(t, "r1", repair.ID)

	_, err = f.svc.GetRepair(ctx, f.alice, "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestDeleteRepair_Guard(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRepair("r1", domain.StatusInProgress, "bob", "")
	f.seedRepair("r2", domain.StatusPending, "", "")

	err := f.svc.DeleteRepair(ctx, f.alice, "r1")
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	err = f.svc.DeleteRepair(ctx, f.bob, "r1")
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	err = f.svc.DeleteRepair(ctx, f.carol, "r2")
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	assert.Equal(t, 2, f.mem.RepairCount())

	require.NoError(t, f.svc.DeleteRepair(ctx, f.root, "r1"))
	require.NoError(t, f.svc.DeleteRepair(ctx, f.alice, "r2"))
	assert.Equal(t, 0, f.mem.RepairCount())

	events := f.mem.OutboxEvents()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, domain.EventRepairDeleted, e.EventType)
	}
}

func TestListRepairs_Scopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRepair("r1", domain.StatusPending, "", "w1")
	f.seedRepair("r2", domain.StatusAssigned, "bob", "")
	f.mem.PutRepair(&domain.RepairRequest{ID: "r3", UserID: "carol", Status: domain.StatusPending, Version: 1})

	ids := func(repairs []*domain.RepairRequest) []string {
		var out []string
		for _, r := range repairs {
			out = append(out, r.ID)
		}
		return out
	}

	got, err := f.svc.ListRepairs(ctx, f.alice, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r2"}, ids(got))

	got, err = f.svc.ListRepairs(ctx, f.bob, "")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r2"}, ids(got))

	got, err = f.svc.ListRepairs(ctx, f.root, domain.StatusPending)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"r1", "r3"}, ids(got))

	_, err = f.svc.ListRepairs(ctx, f.root, "done")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestListRepairs_MechanicWithoutWorkshopOrJobs(t *testing.T) {
	f := newFixture(t)
	f.seedRepair("r1", domain.StatusPending, "", "w1")
	f.seedRepair("r2", domain.StatusAssigned, "bob", "")

	got, err := f.svc.ListRepairs(context.Background(), f.dave, "")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestListRepairs_StorageFailure(t *testing.T) {
	f := newFixture(t)
	f.mem.ListErr = errors.New("connection reset")

	_, err := f.svc.ListRepairs(context.Background(), f.alice, "")
	require.Error(t, err)
	assert.Zero(t, domain.KindOf(err))
}

func TestAddIteration_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRepair("pending", domain.StatusPending, "", "w1")
	f.seedRepair("done", domain.StatusCompleted, "bob", "")
	f.seedRepair("active", domain.StatusInProgress, "bob", "")
	work := AddIterationInput{Description: "inspect", Status: domain.IterationPending}

	tests := []struct {
		name    string
		actor   domain.Actor
		id      string
		version int64
		in      AddIterationInput
		want    error
	}{
		{"customer", f.alice, "active", 0, work, domain.ErrForbidden},
		{"admin", f.root, "active", 0, work, domain.ErrForbidden},
		{"unrelated mechanic", f.dave, "active", 0, work, domain.ErrForbidden},
		{"illegal explicit status", f.bob, "pending", 0,
			AddIterationInput{Description: "x", Status: domain.IterationCompleted, RequestStatus: domain.StatusCompleted}, domain.ErrTransition},
		{"terminal request", f.bob, "done", 0, work, domain.ErrTransition},
		{"stale version", f.bob, "active", 7, work, domain.ErrConflict},
		{"missing description", f.bob, "active", 0, AddIterationInput{Status: domain.IterationPending}, domain.ErrValidation},
		{"negative labor", f.bob, "active", 0,
			AddIterationInput{Description: "x", Status: domain.IterationPending, Cost: &CostInput{Labor: dec("-1")}}, domain.ErrValidation},
		{"negative part price", f.bob, "active", 0,
			AddIterationInput{Description: "x", Status: domain.IterationPending, Cost: &CostInput{
				Parts: []PartInput{{Name: "p", Price: dec("-3"), Quantity: dec("1")}},
			}}, domain.ErrValidation},
		{"labor out of range", f.bob, "active", 0,
			AddIterationInput{Description: "x", Status: domain.IterationPending, Cost: &CostInput{Labor: dec("1e7000")}}, domain.ErrValidation},
		{"part subtotal too precise", f.bob, "active", 0,
			AddIterationInput{Description: "x", Status: domain.IterationPending, Cost: &CostInput{
				Parts: []PartInput{{Name: "p", Price: dec("1234567890123456789.123456789"), Quantity: dec("1234567.891")}},
			}}, domain.ErrValidation},
		{"missing repair", f.bob, "missing", 0, work, domain.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.AddIteration(ctx, tt.actor, tt.id, tt.version, tt.in)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}

	for _, id := range []string{"pending", "done", "active"} {
		stored, err := f.mem.GetRepairByID(ctx, id)
		require.NoError(t, err)
		assert.Empty(t, stored.Iterations, id)
		assert.Equal(t, int64(1), stored.Version, id)
	}
}

func TestUpdateRepair_ConcurrentWriteConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRepair("r1", domain.StatusPending, "", "")

	_, err := f.svc.UpdateRepair(ctx, f.alice, "r1", 1, UpdateRepairInput{Title: ptr("Grinding brakes")})
	require.NoError(t, err)

	_, err = f.svc.UpdateRepair(ctx, f.alice, "r1", 1, UpdateRepairInput{Priority: ptr(domain.PriorityHigh)})
	assert.True(t, errors.Is(err, domain.ErrConflict))

	stored, err := f.mem.GetRepairByID(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, "Grinding brakes", stored.Title)
	assert.Equal(t, domain.PriorityMedium, stored.Priority)
	assert.Equal(t, int64(2), stored.Version)
}

func TestUpdateRepair_StorageConflict(t *testing.T) {
	f := newFixture(t)
	f.seedRepair("r1", domain.StatusPending, "", "")
	f.mem.UpdateErr = domain.ConflictError("repair r1 was modified concurrently")

	_, err := f.svc.UpdateRepair(context.Background(), f.alice, "r1", 0, UpdateRepairInput{Title: ptr("x")})
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Empty(t, f.mem.OutboxEvents())
}

func TestUpdateRepair_Capabilities(t *testing.T) {
	ctx := context.Background()
	estimate := baseTime.Add(48 * time.Hour)

	tests := []struct {
		name   string
		status domain.RepairStatus
		actor  func(f *fixture) domain.Actor
		in     UpdateRepairInput
		want   error
	}{
		{"owner edits details", domain.StatusPending, func(f *fixture) domain.Actor { return f.alice },
			UpdateRepairInput{Title: ptr("new"), Priority: ptr(domain.PriorityHigh)}, nil},
		{"owner cancels", domain.StatusAssigned, func(f *fixture) domain.Actor { return f.alice },
			UpdateRepairInput{Status: ptr(domain.StatusCancelled)}, nil},
		{"owner cannot complete", domain.StatusInProgress, func(f *fixture) domain.Actor { return f.alice },
			UpdateRepairInput{Status: ptr(domain.StatusCompleted)}, domain.ErrForbidden},
		{"owner cannot set estimate", domain.StatusPending, func(f *fixture) domain.Actor { return f.alice },
			UpdateRepairInput{EstimatedCompletionDate: &estimate}, domain.ErrForbidden},
		{"mechanic sets estimate", domain.StatusAssigned, func(f *fixture) domain.Actor { return f.bob },
			UpdateRepairInput{EstimatedCompletionDate: &estimate}, nil},
		{"mechanic cannot edit title", domain.StatusAssigned, func(f *fixture) domain.Actor { return f.bob },
			UpdateRepairInput{Title: ptr("mine")}, domain.ErrForbidden},
		{"mechanic starts work", domain.StatusAssigned, func(f *fixture) domain.Actor { return f.bob },
			UpdateRepairInput{Status: ptr(domain.StatusInProgress)}, nil},
		{"foreign customer", domain.StatusPending, func(f *fixture) domain.Actor { return f.carol },
			UpdateRepairInput{Title: ptr("x")}, domain.ErrForbidden},
		{"admin cannot assign by status", domain.StatusPending, func(f *fixture) domain.Actor { return f.root },
			UpdateRepairInput{Status: ptr(domain.StatusAssigned)}, domain.ErrForbidden},
		{"admin illegal transition", domain.StatusPending, func(f *fixture) domain.Actor { return f.root },
			UpdateRepairInput{Status: ptr(domain.StatusCompleted)}, domain.ErrTransition},
		{"cancelled is terminal", domain.StatusCancelled, func(f *fixture) domain.Actor { return f.root },
			UpdateRepairInput{Status: ptr(domain.StatusInProgress)}, domain.ErrTransition},
		{"unknown status", domain.StatusPending, func(f *fixture) domain.Actor { return f.root },
			UpdateRepairInput{Status: ptr(domain.RepairStatus("done"))}, domain.ErrValidation},
		{"empty update", domain.StatusPending, func(f *fixture) domain.Actor { return f.root },
			UpdateRepairInput{}, domain.ErrValidation},
		{"blank title", domain.StatusPending, func(f *fixture) domain.Actor { return f.alice },
			UpdateRepairInput{Title: ptr("")}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.seedRepair("r1", tt.status, "bob", "")

			_, err := f.svc.UpdateRepair(ctx, tt.actor(f), "r1", 0, tt.in)
			if tt.want == nil {
				require.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			stored, err := f.mem.GetRepairByID(ctx, "r1")
			require.NoError(t, err)
			assert.Equal(t, tt.status, stored.Status)
			assert.Equal(t, int64(1), stored.Version)
		})
	}
}

func TestUpdateRepair_StatusChangeNotifiesOwner(t *testing.T) {
	f := newFixture(t)
	f.seedRepair("r1", domain.StatusAssigned, "bob", "")

	_, err := f.svc.UpdateRepair(context.Background(), f.alice, "r1", 0, UpdateRepairInput{Status: ptr(domain.StatusCancelled)})
	require.NoError(t, err)

	notices := f.notifier.all()
	require.Len(t, notices, 1)
	assert.Equal(t, "alice", notices[0].UserID)
	assert.Equal(t, domain.NotificationStatusChanged, notices[0].Type)
	assert.Equal(t, -1, user(t, f.mem, "bob").ActiveJobs)
}

func TestAssignMechanic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seedRepair("r1", domain.StatusPending, "", "")
	f.seedRepair("r2", domain.StatusInProgress, "bob", "")

	_, err := f.svc.AssignMechanic(ctx, f.alice, "r1", 0, AssignInput{MechanicID: "bob"})
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = f.svc.AssignMechanic(ctx, f.root, "r1", 0, AssignInput{MechanicID: "carol"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.svc.AssignMechanic(ctx, f.root, "r1", 0, AssignInput{})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.svc.AssignMechanic(ctx, f.root, "r2", 0, AssignInput{MechanicID: "dave"})
	assert.True(t, errors.Is(err, domain.ErrTransition))

	repair, err := f.svc.AssignMechanic(ctx, f.root, "r1", 0, AssignInput{MechanicID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAssigned, repair.Status)
	assert.Equal(t, "bob", repair.AssignedTo)

	f.clock = baseTime.Add(time.Minute)
	repair, err = f.svc.AssignMechanic(ctx, f.root, "r1", repair.Version, AssignInput{MechanicID: "dave"})
	require.NoError(t, err)
	assert.Equal(t, "dave", repair.AssignedTo)
	assert.Equal(t, 0, user(t, f.mem, "bob").ActiveJobs)
	assert.Equal(t, 1, user(t, f.mem, "dave").ActiveJobs)

	var assigned []string
	for _, n := range f.notifier.all() {
		if n.Type == domain.NotificationAssigned {
			assigned = append(assigned, n.UserID)
		}
	}
	assert.Equal(t, []string{"bob", "dave"}, assigned)

	events := f.mem.OutboxEvents()
	require.Len(t, events, 2)
	assert.Equal(t, domain.EventRepairAssigned, events[1].EventType)
	assert.Equal(t, "dave", events[1].Event.AssignedTo)
}

func TestNotificationFailureDoesNotFailTheOperation(t *testing.T) {
	f := newFixture(t)
	f.mem.NotificationErr = errors.New("notifications collection unavailable")
	emitter := notify.NewEmitter(f.mem, time.Second, discardLogger())
	f.svc.notifier = emitter

	repair, err := f.svc.CreateRepair(context.Background(), f.alice, CreateRepairInput{
		CarID: "c1", Title: "Oil change", Description: "Due for service",
	})
	emitter.Close()

	require.NoError(t, err)
	assert.NotEmpty(t, repair.ID)
	assert.Equal(t, 1, f.mem.RepairCount())
	assert.Empty(t, f.mem.Notifications())
}

func TestCars(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	car, err := f.svc.CreateCar(ctx, f.carol, CreateCarInput{Make: "Saab", Model: "900", Year: 1994, LicensePlate: "XYZ789"})
	require.NoError(t, err)
	assert.Equal(t, "carol", car.OwnerID)

	_, err = f.svc.CreateCar(ctx, f.carol, CreateCarInput{Make: "Saab", Model: "900", Year: 1700, LicensePlate: "OLD"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = f.svc.CreateCar(ctx, f.bob, CreateCarInput{Make: "Saab", Model: "900", Year: 1994, LicensePlate: "B"})
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	own, err := f.svc.ListCars(ctx, f.carol)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, car.ID, own[0].ID)

	all, err := f.svc.ListCars(ctx, f.root)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestWorkshopRoster(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateWorkshop(ctx, f.alice, CreateWorkshopInput{Name: "East"})
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	east, err := f.svc.CreateWorkshop(ctx, f.root, CreateWorkshopInput{Name: "East"})
	require.NoError(t, err)
	assert.Empty(t, east.Mechanics)

	_, err = f.svc.AddWorkshopMechanic(ctx, f.root, east.ID, WorkshopMechanicInput{MechanicID: "alice"})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	moved, err := f.svc.AddWorkshopMechanic(ctx, f.root, east.ID, WorkshopMechanicInput{MechanicID: "bob"})
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, moved.Mechanics)
	assert.Equal(t, east.ID, user(t, f.mem, "bob").WorkshopID)

	north, err := f.svc.GetWorkshop(ctx, "w1")
	require.NoError(t, err)
	assert.Empty(t, north.Mechanics)

	_, err = f.svc.AddWorkshopMechanic(ctx, f.root, "w9", WorkshopMechanicInput{MechanicID: "dave"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	emptied, err := f.svc.RemoveWorkshopMechanic(ctx, f.root, east.ID, "bob")
	require.NoError(t, err)
	assert.Empty(t, emptied.Mechanics)
	assert.Empty(t, user(t, f.mem, "bob").WorkshopID)

	_, err = f.svc.RemoveWorkshopMechanic(ctx, f.bob, east.ID, "bob")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	workshops, err := f.svc.ListWorkshops(ctx)
	require.NoError(t, err)
	assert.Len(t, workshops, 3)
}

func TestListMechanics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ListMechanics(ctx, f.bob, "")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	all, err := f.svc.ListMechanics(ctx, f.root, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	brakes, err := f.svc.ListMechanics(ctx, f.root, "brakes")
	require.NoError(t, err)
	require.Len(t, brakes, 1)
	assert.Equal(t, "bob", brakes[0].ID)
}

func TestProfileAndNotifications(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	me, err := f.svc.Profile(ctx, f.alice)
	require.NoError(t, err)
	assert.Equal(t, "Alice", me.Name)

	_, err = f.svc.Profile(ctx, actor(t, "ghost", domain.RoleCustomer, ""))
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, f.mem.CreateNotification(ctx, &domain.Notification{ID: "n1", UserID: "alice", CreatedAt: baseTime}))
	require.NoError(t, f.mem.CreateNotification(ctx, &domain.Notification{ID: "n2", UserID: "alice", CreatedAt: baseTime.Add(time.Minute)}))

	inbox, err := f.svc.ListNotifications(ctx, f.alice)
	require.NoError(t, err)
	require.Len(t, inbox, 2)
	assert.Equal(t, "n2", inbox[0].ID)

	err = f.svc.MarkNotificationRead(ctx, f.carol, "n1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	require.NoError(t, f.svc.MarkNotificationRead(ctx, f.alice, "n1"))
	inbox, err = f.svc.ListNotifications(ctx, f.alice)
	require.NoError(t, err)
	assert.True(t, inbox[1].Read)
}

func TestWithEventOutbox_DisabledSkipsOutbox(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.svc = NewService(f.mem, f.notifier, discardLogger(), WithEventOutbox(false))
	f.svc.now = func() time.Time { return f.clock }
	f.mem.OutboxErr = errors.New("outbox collection unavailable")

	repair, err := f.svc.CreateRepair(ctx, f.alice, CreateRepairInput{CarID: "c1", Title: "Oil change", Description: "Due"})
	require.NoError(t, err)
	repair, err = f.svc.AssignMechanic(ctx, f.root, repair.ID, repair.Version, AssignInput{MechanicID: "bob"})
	require.NoError(t, err)
	repair, err = f.svc.AddIteration(ctx, f.bob, repair.ID, repair.Version, AddIterationInput{
		Description: "Drain oil",
		Status:      domain.IterationInProgress,
		Cost:        &CostInput{Labor: dec("15")},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), repair.Version)
	require.NoError(t, f.svc.DeleteRepair(ctx, f.root, repair.ID))

	assert.Empty(t, f.mem.OutboxEvents())
}

func TestWithEventOutbox_EnabledByDefault(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CreateRepair(context.Background(), f.alice, CreateRepairInput{CarID: "c1", Title: "Oil change", Description: "Due"})
	require.NoError(t, err)

	events := f.mem.OutboxEvents()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventRepairCreated, events[0].EventType)
}
