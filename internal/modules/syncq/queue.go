// README: Durable FIFO of driver status changes, replayed against the backend.
package syncq

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"wecare/internal/modules/ride"
	"wecare/internal/types"
)

// Queue is safe for concurrent use. Only one Drain runs at a time.
type Queue struct {
	store Store
	log   *slog.Logger
	now   func() time.Time

	mu       sync.Mutex
	items    []QueuedMutation
	draining atomic.Bool
}

type Option func(q *Queue) error

func WithClock(now func() time.Time) Option {
	return func(q *Queue) error {
		if now == nil {
			return fmt.Errorf("nil clock")
		}
		q.now = now
		return nil
	}
}

// Open restores the queue from store.
func Open(ctx context.Context, store Store, log *slog.Logger, opts ...Option) (*Queue, error) {
	q := &Queue{store: store, log: log, now: time.Now}
	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if q.log == nil {
		q.log = slog.Default()
	}
	items, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("restore mutation queue: %w", err)
	}
	q.items = items
	if len(items) > 0 {
		q.log.InfoContext(ctx, "mutation queue restored", "pending", len(items))
	}
	return q, nil
}

// Enqueue appends a mutation and persists the queue before returning. A store
// failure leaves the queue unchanged and is returned as *PersistenceError.
func (q *Queue) Enqueue(ctx context.Context, rideID types.ID, target ride.Status, actorID types.ID) (QueuedMutation, error) {
	m := QueuedMutation{
		ID:           types.NewID(),
		RideID:       rideID,
		TargetStatus: target,
		ActorID:      actorID,
		EnqueuedAt:   q.now(),
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	next := make([]QueuedMutation, len(q.items), len(q.items)+1)
	copy(next, q.items)
	next = append(next, m)
	if err := q.store.Save(ctx, next); err != nil {
		return QueuedMutation{}, &PersistenceError{Op: "enqueue", Err: err}
	}
	q.items = next
	return m, nil
}

// Drain replays the queue head-first. A delivered head is removed and the
// cycle continues; a retryable failure ends the cycle with the rest intact;
// a rejection drops the item and the cycle continues. Drain returns an error
// only when the queue could not be persisted or ctx ended.
func (q *Queue) Drain(ctx context.Context, send SendFunc) (DrainResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true, Remaining: q.Len()}, nil
	}
	defer q.draining.Store(false)

	var res DrainResult
	for {
		if err := ctx.Err(); err != nil {
			res.Remaining = q.Len()
			return res, err
		}
		head, ok := q.head()
		if !ok {
			break
		}

		err := send(ctx, head)
		if err != nil && ride.IsRetryable(err) {
			res.Halted = err
			q.log.DebugContext(ctx, "drain halted", "ride_id", head.RideID, "target", head.TargetStatus, "error", err)
			break
		}
		if perr := q.remove(ctx, head.ID); perr != nil {
			res.Remaining = q.Len()
			return res, perr
		}
		if err != nil {
			res.Rejected = append(res.Rejected, Rejected{Mutation: head, Err: err})
			q.log.WarnContext(ctx, "queued mutation rejected, dropped",
				"ride_id", head.RideID, "target", head.TargetStatus, "error", err)
			continue
		}
		res.Sent = append(res.Sent, head)
	}
	res.Remaining = q.Len()
	return res, nil
}

func (q *Queue) head() (QueuedMutation, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return QueuedMutation{}, false
	}
	return q.items[0], true
}

func (q *Queue) remove(ctx context.Context, id types.ID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	next := make([]QueuedMutation, 0, len(q.items))
	for _, m := range q.items {
		if m.ID != id {
			next = append(next, m)
		}
	}
	if err := q.store.Save(ctx, next); err != nil {
		return &PersistenceError{Op: "remove", Err: err}
	}
	q.items = next
	return nil
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Pending returns a copy of the queue in FIFO order.
func (q *Queue) Pending() []QueuedMutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QueuedMutation(nil), q.items...)
}

func (q *Queue) HasRide(rideID types.ID) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.items {
		if m.RideID == rideID {
			return true
		}
	}
	return false
}

// Targets maps each queued ride to the target of its newest mutation.
func (q *Queue) Targets() map[types.ID]ride.Status {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make(map[types.ID]ride.Status, len(q.items))
	for _, m := range q.items {
		out[m.RideID] = m.TargetStatus
	}
	return out
}
