// README: DB-backed store and concurrency tests (run with -race).
package ride

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wecare/internal/infra"
	"wecare/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := os.Getenv("WECARE_TEST_DSN")
	if dsn == "" {
		t.Skip("WECARE_TEST_DSN not set; skipping DB-backed tests")
	}

	ctx := context.Background()
	db, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err, "connect db")
	t.Cleanup(db.Close)

	root, err := infra.RepoRoot()
	require.NoError(t, err)
	require.NoError(t, infra.ApplyMigrations(ctx, db, filepath.Join(root, "migrations")))

	_, err = db.Exec(ctx, "TRUNCATE TABLE ride_state_events, rides")
	require.NoError(t, err, "truncate tables")

	return NewStore(db)
}

func TestStoreRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	svc := newTestService(t, store, WithRouteEstimator(fixedEstimator{d: 40 * time.Minute}))
	ctx := context.Background()

	id := mustCreateRide(t, svc, "Malee")
	r, err := store.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Malee", r.PatientName)
	assert.Equal(t, StatusPending, r.Status)
	assert.Equal(t, []string{"wheelchair"}, r.SpecialNeeds)
	require.NotNil(t, r.EstimatedDuration)
	assert.Equal(t, 40*time.Minute, *r.EstimatedDuration)
	assert.Nil(t, r.DriverID)

	mustAssign(t, svc, id, "d1")
	rides, err := store.ListByDriver(ctx, "d1")
	require.NoError(t, err)
	require.Len(t, rides, 1)
	require.NotNil(t, rides[0].DriverName)
	assert.Equal(t, "Somchai", *rides[0].DriverName)
	assert.Equal(t, 1, rides[0].StatusVersion)

	events, err := store.ListEvents(ctx, id)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, StatusNone, events[0].FromStatus)
	assert.Equal(t, StatusAssigned, events[1].ToStatus)

	_, err = store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreUpdateStatusOptimisticLock(t *testing.T) {
	store := setupTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	id := mustCreateRide(t, svc, "Malee")
	ok, err := store.UpdateStatus(ctx, id, StatusPending, StatusCancelled, 0, StatusPatch{})
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = store.UpdateStatus(ctx, id, StatusPending, StatusAssigned, 0, StatusPatch{})
	require.NoError(t, err)
	assert.False(t, ok, "stale version must not update")
}

func TestConcurrentAssignVsCancel(t *testing.T) {
	store := setupTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	id := mustCreateRide(t, svc, "p_assign_cancel")

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	start := make(chan struct{})

	wg.Add(2)
	go func() {
		defer wg.Done()
		<-start
		errs <- svc.Assign(ctx, AssignCommand{RideID: id, DriverID: "d1"})
	}()
	go func() {
		defer wg.Done()
		<-start
		errs <- svc.Cancel(ctx, CancelCommand{RideID: id, Reason: "duplicate"})
	}()
	close(start)
	wg.Wait()
	close(errs)

	success := countSuccesses(t, errs)
	require.GreaterOrEqual(t, success, 1)

	r, err := svc.Get(ctx, id)
	require.NoError(t, err)
	if success == 2 {
		assert.Equal(t, StatusCancelled, r.Status)
	}
}

func TestConcurrentDriverReplaysSameTarget(t *testing.T) {
	store := setupTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	id := mustCreateRide(t, svc, "p_replay")
	mustAssign(t, svc, id, "d1")

	const attempts = 8
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- svc.UpdateStatus(ctx, UpdateStatusCommand{RideID: id, Status: StatusEnRouteToPickup, ActorID: "d1"})
		}()
	}
	wg.Wait()
	close(errs)

	// Every replay of the same target reports success.
	assert.Equal(t, attempts, countSuccesses(t, errs))
	assertStatus(t, svc, id, StatusEnRouteToPickup)

	events, err := store.ListEvents(ctx, id)
	require.NoError(t, err)
	assert.Len(t, events, 3, "create, assign and exactly one start")
}

func TestConcurrentAssignManyDrivers(t *testing.T) {
	store := setupTestStore(t)
	svc := newTestService(t, store)
	ctx := context.Background()

	id := mustCreateRide(t, svc, "p_multi_assign")

	const attempts = 6
	var wg sync.WaitGroup
	errs := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(did types.ID) {
			defer wg.Done()
			errs <- svc.Assign(ctx, AssignCommand{RideID: id, DriverID: did})
		}(types.ID(fmt.Sprintf("d%d", i)))
	}
	wg.Wait()
	close(errs)

	assert.Equal(t, 1, countSuccesses(t, errs))
	r, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusAssigned, r.Status)
	require.NotNil(t, r.DriverID)
}

func countSuccesses(t *testing.T, errs <-chan error) int {
	t.Helper()
	success := 0
	for err := range errs {
		if err == nil {
			success++
			continue
		}
		assert.True(t, isRaceLoss(err), "unexpected error: %v", err)
	}
	return success
}

func isRaceLoss(err error) bool {
	return errors.Is(err, ErrConflict) || errors.Is(err, ErrInvalidState)
}
