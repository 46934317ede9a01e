package notify

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
	"fadedreams/repairshop/repair-service/metrics"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEmitter_NotifiesSingleUser(t *testing.T) {
	store := domaintest.NewMemory()
	e := NewEmitter(store, time.Second, discardLogger())

	e.Notify(context.Background(), Notice{
		UserID:    "alice",
		Title:     "Work recorded",
		Message:   "A mechanic updated your repair",
		Type:      domain.NotificationIterationAdded,
		RelatedTo: &domain.RelatedTo{Model: "RepairRequest", ID: "r1"},
	})
	e.Close()

	got := store.Notifications()
	require.Len(t, got, 1)
	assert.Equal(t, "alice", got[0].UserID)
	assert.False(t, got[0].Read)
	assert.Equal(t, "r1", got[0].RelatedTo.ID)
	assert.NotEmpty(t, got[0].ID)
}

func TestEmitter_FansOutToRole(t *testing.T) {
	store := domaintest.NewMemory()
	store.PutUser(&domain.User{ID: "root", Role: domain.RoleAdmin})
	store.PutUser(&domain.User{ID: "ops", Role: domain.RoleAdmin})
	store.PutUser(&domain.User{ID: "alice", Role: domain.RoleCustomer})
	e := NewEmitter(store, time.Second, discardLogger())

	e.Notify(context.Background(), Notice{Role: domain.RoleAdmin, Title: "New repair", Type: domain.NotificationRepairCreated})
	e.Close()

	var recipients []string
	for _, n := range store.Notifications() {
		recipients = append(recipients, n.UserID)
	}
	assert.ElementsMatch(t, []string{"root", "ops"}, recipients)
}

func TestEmitter_SurvivesCallerCancellation(t *testing.T) {
	store := domaintest.NewMemory()
	e := NewEmitter(store, time.Second, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	e.Notify(ctx, Notice{UserID: "alice", Type: domain.NotificationStatusChanged})
	cancel()
	e.Close()

	assert.Len(t, store.Notifications(), 1)
}

func TestEmitter_FailureIsCounted(t *testing.T) {
	store := domaintest.NewMemory()
	store.NotificationErr = errors.New("mongo unavailable")
	e := NewEmitter(store, time.Second, discardLogger())

	failed := metrics.Notifications.WithLabelValues("failed")
	before := testutil.ToFloat64(failed)

	e.Notify(context.Background(), Notice{UserID: "alice", Type: domain.NotificationStatusChanged})
	e.Close()

	assert.Empty(t, store.Notifications())
	assert.Equal(t, before+1, testutil.ToFloat64(failed))
}

func TestEmitter_DropsNoticesAfterClose(t *testing.T) {
	store := domaintest.NewMemory()
	e := NewEmitter(store, time.Second, discardLogger())
	dropped := metrics.Notifications.WithLabelValues("dropped")
	before := testutil.ToFloat64(dropped)

	e.Close()
	e.Notify(context.Background(), Notice{UserID: "alice", Type: domain.NotificationStatusChanged})
	e.Close()

	assert.Empty(t, store.Notifications())
	assert.Equal(t, before+1, testutil.ToFloat64(dropped))
}

func TestEmitter_NotifyConcurrentWithClose(t *testing.T) {
	store := domaintest.NewMemory()
	e := NewEmitter(store, time.Second, discardLogger())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.Notify(context.Background(), Notice{UserID: "alice", Type: domain.NotificationStatusChanged})
		}()
	}
	e.Close()
	wg.Wait()
	e.Close()

	assert.LessOrEqual(t, len(store.Notifications()), 20)
}
