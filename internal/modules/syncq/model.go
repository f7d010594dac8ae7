// README: Queued status mutations and the errors the queue reports.
package syncq

import (
	"context"
	"fmt"
	"time"

	"wecare/internal/modules/ride"
	"wecare/internal/types"
)

// QueuedMutation is one status change the backend has not acknowledged yet.
type QueuedMutation struct {
	ID           types.ID    `json:"id"`
	RideID       types.ID    `json:"ride_id"`
	TargetStatus ride.Status `json:"target_status"`
	ActorID      types.ID    `json:"actor_id"`
	EnqueuedAt   time.Time   `json:"enqueued_at"`
}

// SendFunc delivers one mutation to the backend.
type SendFunc func(ctx context.Context, m QueuedMutation) error

// Rejected is a mutation the backend refused for good.
type Rejected struct {
	Mutation QueuedMutation
	Err      error
}

// DrainResult summarises one drain cycle.
type DrainResult struct {
	Skipped   bool
	Sent      []QueuedMutation
	Rejected  []Rejected
	Remaining int
	// Halted holds the retryable error that stopped the cycle, if any.
	Halted error
}

// PersistenceError means the durable store could not be written; the queue's
// in-memory state was left as it was before the call.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist mutation queue (%s): %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
