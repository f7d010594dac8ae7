// README: Job list types: collaborators, snapshot and the derived view.
package jobs

import (
	"context"
	"fmt"
	"time"

	"wecare/internal/modules/ride"
	"wecare/internal/types"
)

var ErrRideNotFound = fmt.Errorf("%w: not in the driver's job list", ride.ErrNotFound)

// Backend is the dispatch API as seen by one driver. UpdateStatus must be
// idempotent for a target the ride already has.
type Backend interface {
	ListRides(ctx context.Context, driverID types.ID) ([]ride.Ride, error)
	UpdateStatus(ctx context.Context, rideID types.ID, target ride.Status, actorID types.ID) error
}

// Snapshot is the last ride list the backend confirmed.
type Snapshot struct {
	Rides    []ride.Ride `json:"rides"`
	SyncedAt time.Time   `json:"synced_at"`
}

// Cache keeps the last Snapshot for offline display.
type Cache interface {
	Load(ctx context.Context) (Snapshot, bool, error)
	Save(ctx context.Context, s Snapshot) error
}

// View is what the driver screen renders.
type View struct {
	Jobs         []ride.Ride
	Stale        bool
	PendingSync  bool
	QueueLen     int
	InFlight     int
	Conflicts    int
	Polling      bool
	LastSyncedAt time.Time
}

// IsActive reports whether r belongs in today's job list: appointment on the
// same local day as now and not in a terminal status.
func IsActive(r ride.Ride, now time.Time, loc *time.Location) bool {
	return !r.Status.IsTerminal() && types.SameDay(r.AppointmentTime, now, loc)
}
