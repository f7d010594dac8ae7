package syncq

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wecare/internal/modules/ride"
	"wecare/internal/types"
)

var errOffline = &ride.NetworkError{Op: "update status", Err: errors.New("connection refused")}

type failingStore struct {
	MemoryStore
	fail bool
}

func (s *failingStore) Save(ctx context.Context, items []QueuedMutation) error {
	if s.fail {
		return errors.New("disk full")
	}
	return s.MemoryStore.Save(ctx, items)
}

func openQueue(t *testing.T, store Store) *Queue {
	t.Helper()
	q, err := Open(context.Background(), store, nil)
	require.NoError(t, err)
	return q
}

func TestEnqueuePersistsBeforeReturning(t *testing.T) {
	store := NewMemoryStore()
	q := openQueue(t, store)
	ctx := context.Background()

	m, err := q.Enqueue(ctx, "R1", ride.StatusEnRouteToPickup, "d1")
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, m, stored[0])
	assert.True(t, q.HasRide("R1"))
	assert.False(t, q.HasRide("R2"))
}

func TestEnqueuePersistenceFailureLeavesQueueUnchanged(t *testing.T) {
	store := &failingStore{}
	q := openQueue(t, store)
	ctx := context.Background()

	_, err := q.Enqueue(ctx, "R1", ride.StatusEnRouteToPickup, "d1")
	require.NoError(t, err)

	store.fail = true
	_, err = q.Enqueue(ctx, "R2", ride.StatusEnRouteToPickup, "d1")
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "enqueue", pe.Op)
	assert.Equal(t, 1, q.Len())
	assert.False(t, q.HasRide("R2"))
}

func TestOpenRestoresQueue(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	first := openQueue(t, store)
	_, err := first.Enqueue(ctx, "R1", ride.StatusEnRouteToPickup, "d1")
	require.NoError(t, err)
	_, err = first.Enqueue(ctx, "R1", ride.StatusArrivedAtPickup, "d1")
	require.NoError(t, err)

	second := openQueue(t, store)
	pending := second.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, ride.StatusEnRouteToPickup, pending[0].TargetStatus)
	assert.Equal(t, ride.StatusArrivedAtPickup, pending[1].TargetStatus)
	assert.Equal(t, map[types.ID]ride.Status{"R1": ride.StatusArrivedAtPickup}, second.Targets())
}

func TestDrainFIFOWithinRide(t *testing.T) {
	q := openQueue(t, NewMemoryStore())
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, "R1", ride.StatusEnRouteToPickup, "d1")
	_, _ = q.Enqueue(ctx, "R1", ride.StatusArrivedAtPickup, "d1")

	// m1 fails: m2 must not be attempted in the same cycle.
	var attempts []ride.Status
	res, err := q.Drain(ctx, func(_ context.Context, m QueuedMutation) error {
		attempts = append(attempts, m.TargetStatus)
		return errOffline
	})
	require.NoError(t, err)
	assert.Equal(t, []ride.Status{ride.StatusEnRouteToPickup}, attempts)
	assert.Equal(t, 2, res.Remaining)
	assert.ErrorIs(t, res.Halted, errOffline.Err)

	attempts = nil
	res, err = q.Drain(ctx, func(_ context.Context, m QueuedMutation) error {
		attempts = append(attempts, m.TargetStatus)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []ride.Status{ride.StatusEnRouteToPickup, ride.StatusArrivedAtPickup}, attempts)
	assert.Len(t, res.Sent, 2)
	assert.Zero(t, res.Remaining)
	assert.Zero(t, q.Len())
}

func TestDrainScenarioE(t *testing.T) {
	store := NewMemoryStore()
	q := openQueue(t, store)
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, "R1", ride.StatusEnRouteToPickup, "d1")
	_, _ = q.Enqueue(ctx, "R2", ride.StatusEnRouteToPickup, "d1")

	res, err := q.Drain(ctx, func(_ context.Context, m QueuedMutation) error {
		if m.RideID == "R2" {
			return &ride.ServerError{Op: "update status", StatusCode: 502}
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, res.Sent, 1)
	assert.Equal(t, types.ID("R1"), res.Sent[0].RideID)

	pending := q.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, types.ID("R2"), pending[0].RideID)

	stored, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, pending, stored)
}

func TestDrainDropsRejectedMutations(t *testing.T) {
	q := openQueue(t, NewMemoryStore())
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, "R1", ride.StatusEnRouteToPickup, "d1")
	_, _ = q.Enqueue(ctx, "R2", ride.StatusEnRouteToPickup, "d1")

	res, err := q.Drain(ctx, func(_ context.Context, m QueuedMutation) error {
		if m.RideID == "R1" {
			return &ride.InvalidTransitionError{From: ride.StatusCancelled, To: m.TargetStatus}
		}
		return nil
	})
	require.NoError(t, err)
	require.Len(t, res.Rejected, 1)
	assert.Equal(t, types.ID("R1"), res.Rejected[0].Mutation.RideID)
	assert.ErrorIs(t, res.Rejected[0].Err, ride.ErrInvalidState)
	require.Len(t, res.Sent, 1)
	assert.Zero(t, q.Len())
}

func TestDrainSkipsWhileAnotherDrainRuns(t *testing.T) {
	q := openQueue(t, NewMemoryStore())
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, "R1", ride.StatusEnRouteToPickup, "d1")

	entered := make(chan struct{})
	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = q.Drain(ctx, func(context.Context, QueuedMutation) error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	res, err := q.Drain(ctx, func(context.Context, QueuedMutation) error {
		t.Error("concurrent drain must not send")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	close(release)
	wg.Wait()
	assert.Zero(t, q.Len())
}

func TestDrainPersistenceFailureKeepsItem(t *testing.T) {
	store := &failingStore{}
	q := openQueue(t, store)
	ctx := context.Background()
	_, _ = q.Enqueue(ctx, "R1", ride.StatusEnRouteToPickup, "d1")

	store.fail = true
	_, err := q.Drain(ctx, func(context.Context, QueuedMutation) error { return nil })
	var pe *PersistenceError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, 1, q.Len(), "replay is idempotent, so the item is resent next cycle")
}

func TestDrainStopsOnCancelledContext(t *testing.T) {
	q := openQueue(t, NewMemoryStore())
	_, _ = q.Enqueue(context.Background(), "R1", ride.StatusEnRouteToPickup, "d1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := q.Drain(ctx, func(context.Context, QueuedMutation) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, res.Remaining)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	addr := os.Getenv("WECARE_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("WECARE_TEST_REDIS_ADDR not set; skipping Redis-backed tests")
	}
	ctx := context.Background()
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = rdb.Close() })

	key := QueueKey(types.NewID())
	t.Cleanup(func() { rdb.Del(context.Background(), key) })
	store := NewRedisStore(rdb, key)

	now := time.Date(2026, 10, 16, 8, 30, 0, 0, time.UTC)
	q, err := Open(ctx, store, nil, WithClock(func() time.Time { return now }))
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "R1", ride.StatusEnRouteToPickup, "d1")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "R2", ride.StatusRejected, "d1")
	require.NoError(t, err)

	reopened, err := Open(ctx, NewRedisStore(rdb, key), nil)
	require.NoError(t, err)
	pending := reopened.Pending()
	require.Len(t, pending, 2)
	assert.Equal(t, types.ID("R1"), pending[0].RideID)
	assert.True(t, pending[0].EnqueuedAt.Equal(now))

	_, err = reopened.Drain(ctx, func(context.Context, QueuedMutation) error { return nil })
	require.NoError(t, err)
	n, err := rdb.Exists(ctx, key).Result()
	require.NoError(t, err)
	assert.Zero(t, n, "empty queue leaves no key")
}
