// README: Job list controller: the driver's rides for today and the path every
// status change takes (validate, apply locally, send or queue).
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"wecare/internal/modules/ride"
	"wecare/internal/modules/syncq"
	"wecare/internal/types"
)

const (
	DefaultPollInterval   = 30 * time.Second
	DefaultDrainInterval  = 15 * time.Second
	DefaultRequestTimeout = 10 * time.Second
)

type inflightChange struct {
	id     uint64
	target ride.Status
}

// confirmation is a status the backend acknowledged while load seq was
// current; fetches started at or before seq may not include it yet.
type confirmation struct {
	status ride.Status
	seq    uint64
}

// Controller owns the driver's local ride state. All local state lives behind
// mu; a change to it and the matching durable write happen in one critical
// section.
type Controller struct {
	driverID types.ID
	backend  Backend
	queue    *syncq.Queue
	cache    Cache
	clock    types.Clock
	log      *slog.Logger

	pollInterval   time.Duration
	drainInterval  time.Duration
	requestTimeout time.Duration

	lanes *lanes

	mu         sync.Mutex
	base       map[types.ID]ride.Ride
	loaded     bool
	inflight   map[types.ID][]inflightChange
	changeSeq  uint64
	confirmed  map[types.ID]confirmation
	loadSeq    uint64
	appliedSeq uint64
	stale      bool
	conflicts  int
	lastSynced time.Time
	polling    bool

	runMu sync.Mutex
	tasks []*task
}

func NewController(driverID types.ID, backend Backend, queue *syncq.Queue, log *slog.Logger, opts ...Option) (*Controller, error) {
	if driverID == "" {
		return nil, errors.New("jobs: empty driver id")
	}
	if backend == nil || queue == nil {
		return nil, errors.New("jobs: backend and queue are required")
	}
	c := &Controller{
		driverID:       driverID,
		backend:        backend,
		queue:          queue,
		log:            log,
		pollInterval:   DefaultPollInterval,
		drainInterval:  DefaultDrainInterval,
		requestTimeout: DefaultRequestTimeout,
		lanes:          newLanes(),
		base:           map[types.ID]ride.Ride{},
		inflight:       map[types.ID][]inflightChange{},
		confirmed:      map[types.ID]confirmation{},
		polling:        true,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	if c.cache == nil {
		c.cache = NewMemoryCache()
	}
	if c.clock == nil {
		c.clock = types.NewSystemClock(time.Local)
	}
	c.log = c.log.With("driver_id", driverID)
	return c, nil
}

// Load fetches the driver's rides. On success the result replaces local state
// and the snapshot cache; on failure the view falls back to the cached
// snapshot and turns stale. A result older than one already applied is
// dropped. Pending changes stay visible on top of whatever is shown.
func (c *Controller) Load(ctx context.Context) {
	c.mu.Lock()
	c.loadSeq++
	seq := c.loadSeq
	c.mu.Unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	rides, err := c.backend.ListRides(fetchCtx, c.driverID)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if seq < c.appliedSeq {
		c.log.DebugContext(ctx, "superseded ride list dropped", "seq", seq, "applied", c.appliedSeq)
		return
	}
	c.appliedSeq = seq

	if err != nil {
		if !c.stale {
			c.log.WarnContext(ctx, "ride list fetch failed, showing cached jobs", "error", err)
		}
		c.stale = true
		if !c.loaded {
			c.restoreSnapshotLocked(ctx)
		}
		return
	}

	c.replaceLocked(rides)
	for id, cf := range c.confirmed {
		if cf.seq < seq {
			delete(c.confirmed, id)
		}
	}
	c.stale = false
	c.lastSynced = c.clock.Now()
	c.saveSnapshotLocked(ctx)
}

func (c *Controller) restoreSnapshotLocked(ctx context.Context) {
	snap, ok, err := c.cache.Load(ctx)
	if err != nil {
		c.log.WarnContext(ctx, "read cached jobs", "error", err)
		return
	}
	if !ok {
		return
	}
	c.replaceLocked(snap.Rides)
	c.lastSynced = snap.SyncedAt
}

func (c *Controller) replaceLocked(rides []ride.Ride) {
	c.base = make(map[types.ID]ride.Ride, len(rides))
	for _, r := range rides {
		c.base[r.ID] = r
	}
	c.loaded = true
}

// saveSnapshotLocked writes the backend-confirmed state, never optimistic
// overlays. The cache is best effort.
func (c *Controller) saveSnapshotLocked(ctx context.Context) {
	rides := make([]ride.Ride, 0, len(c.base))
	for _, r := range c.base {
		rides = append(rides, r)
	}
	ride.SortByAppointment(rides)
	snap := Snapshot{Rides: rides, SyncedAt: c.lastSynced}
	if err := c.cache.Save(context.WithoutCancel(ctx), snap); err != nil {
		c.log.WarnContext(ctx, "write cached jobs", "error", err)
	}
}

// RequestStatusChange moves rideID to target. The change is visible locally
// before the backend answers. If the backend cannot be reached the change is
// queued for replay. Only an illegal transition, an unknown ride, or a failed
// queue write is returned; in the last case the local change is undone.
func (c *Controller) RequestStatusChange(ctx context.Context, rideID types.ID, target ride.Status) error {
	c.mu.Lock()
	current, ok := c.statusLocked(rideID, c.queue.Targets())
	if !ok {
		c.mu.Unlock()
		return ErrRideNotFound
	}
	if err := ride.CheckDriverTransition(current, target); err != nil {
		c.mu.Unlock()
		return err
	}

	// Earlier changes for this ride are still queued: go behind them.
	if len(c.inflight[rideID]) == 0 && c.queue.HasRide(rideID) {
		_, err := c.queue.Enqueue(ctx, rideID, target, c.driverID)
		c.mu.Unlock()
		if err != nil {
			return err
		}
		c.log.InfoContext(ctx, "status change queued behind pending changes", "ride_id", rideID, "target", target)
		return nil
	}

	change := c.beginChangeLocked(rideID, target)
	wait, done := c.lanes.join(rideID)
	c.mu.Unlock()
	defer done()
	waitTurn(wait)

	c.mu.Lock()
	if c.queue.HasRide(rideID) {
		// The change ahead of us failed and was queued; keep FIFO.
		err := c.enqueueChangeLocked(ctx, change, rideID)
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	err := c.send(ctx, rideID, target, c.driverID)

	c.mu.Lock()
	switch {
	case err == nil:
		c.endChangeLocked(rideID, change)
		c.confirmLocked(ctx, rideID, target)
		c.mu.Unlock()
		c.log.InfoContext(ctx, "ride status updated", "ride_id", rideID, "status", target)
		return nil
	case ride.IsRetryable(err):
		qerr := c.enqueueChangeLocked(ctx, change, rideID)
		c.mu.Unlock()
		if qerr == nil {
			c.log.InfoContext(ctx, "backend unreachable, status change queued",
				"ride_id", rideID, "target", target, "error", err)
		}
		return qerr
	default:
		c.endChangeLocked(rideID, change)
		c.conflicts++
		c.mu.Unlock()
		c.log.WarnContext(ctx, "backend rejected status change, reloading",
			"ride_id", rideID, "target", target, "error", err)
		c.Load(ctx)
		return nil
	}
}

func (c *Controller) send(ctx context.Context, rideID types.ID, target ride.Status, actorID types.ID) error {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()
	return c.backend.UpdateStatus(ctx, rideID, target, actorID)
}

func (c *Controller) beginChangeLocked(rideID types.ID, target ride.Status) inflightChange {
	c.changeSeq++
	ch := inflightChange{id: c.changeSeq, target: target}
	c.inflight[rideID] = append(c.inflight[rideID], ch)
	return ch
}

func (c *Controller) endChangeLocked(rideID types.ID, change inflightChange) {
	list := c.inflight[rideID]
	for i, ch := range list {
		if ch.id == change.id {
			list = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(c.inflight, rideID)
		return
	}
	c.inflight[rideID] = list
}

// enqueueChangeLocked hands an in-flight change to the durable queue. The
// in-flight entry goes away either way: on success the queue's target
// replaces it, on failure the change is rolled back.
func (c *Controller) enqueueChangeLocked(ctx context.Context, change inflightChange, rideID types.ID) error {
	_, err := c.queue.Enqueue(context.WithoutCancel(ctx), rideID, change.target, c.driverID)
	c.endChangeLocked(rideID, change)
	return err
}

// confirmLocked records a status the backend acknowledged. An acknowledged
// replay the fetched list has already overtaken leaves the list alone.
func (c *Controller) confirmLocked(ctx context.Context, rideID types.ID, status ride.Status) {
	r, ok := c.base[rideID]
	if ok && ride.Supersedes(r.Status, status) {
		return
	}
	c.confirmed[rideID] = confirmation{status: status, seq: c.loadSeq}
	if ok {
		r.Status = status
		c.base[rideID] = r
		c.saveSnapshotLocked(ctx)
	}
}

// statusLocked is the newest status known locally: an in-flight change, else
// the last queued target, else a confirmed change, else the fetched status.
func (c *Controller) statusLocked(rideID types.ID, queued map[types.ID]ride.Status) (ride.Status, bool) {
	r, ok := c.base[rideID]
	if !ok {
		return ride.StatusNone, false
	}
	s := r.Status
	if cf, ok := c.confirmed[rideID]; ok {
		s = cf.status
	}
	if t, ok := queued[rideID]; ok {
		s = t
	}
	if list := c.inflight[rideID]; len(list) > 0 {
		s = list[len(list)-1].target
	}
	return s, true
}

// Drain replays queued changes once. Rejected ones count as conflicts and
// trigger a reload so the screen shows the backend's status.
func (c *Controller) Drain(ctx context.Context) (syncq.DrainResult, error) {
	res, err := c.queue.Drain(ctx, c.sendQueued)
	if err != nil {
		c.log.ErrorContext(ctx, "drain mutation queue", "error", err)
	}
	if len(res.Sent) > 0 {
		c.log.InfoContext(ctx, "queued status changes delivered", "sent", len(res.Sent), "remaining", res.Remaining)
	}
	if len(res.Rejected) > 0 {
		c.mu.Lock()
		c.conflicts += len(res.Rejected)
		c.mu.Unlock()
		c.Load(ctx)
	}
	return res, err
}

func (c *Controller) sendQueued(ctx context.Context, m syncq.QueuedMutation) error {
	wait, done := c.lanes.join(m.RideID)
	defer done()
	waitTurn(wait)

	err := c.send(ctx, m.RideID, m.TargetStatus, m.ActorID)
	if err == nil {
		c.mu.Lock()
		c.confirmLocked(ctx, m.RideID, m.TargetStatus)
		c.mu.Unlock()
	}
	return err
}

// SetPolling turns the periodic reload on or off.
func (c *Controller) SetPolling(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.polling = enabled
}

func (c *Controller) PollingEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.polling
}

// Status returns the locally displayed status of any ride in the list,
// active or not.
func (c *Controller) Status(rideID types.ID) (ride.Status, bool) {
	targets := c.queue.Targets()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked(rideID, targets)
}

// Rides returns every ride in the list with local changes applied.
func (c *Controller) Rides() []ride.Ride {
	targets := c.queue.Targets()
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ridesLocked(targets)
}

func (c *Controller) ridesLocked(targets map[types.ID]ride.Status) []ride.Ride {
	out := make([]ride.Ride, 0, len(c.base))
	for id, r := range c.base {
		r.Status, _ = c.statusLocked(id, targets)
		out = append(out, r)
	}
	ride.SortByAppointment(out)
	return out
}

// ActiveJobs is today's non-terminal rides, ordered by appointment time.
func (c *Controller) ActiveJobs() []ride.Ride {
	return c.View().Jobs
}

func (c *Controller) View() View {
	targets := c.queue.Targets()
	queueLen := c.queue.Len()
	now := c.clock.Now()
	loc := c.clock.Location()

	c.mu.Lock()
	defer c.mu.Unlock()
	jobs := []ride.Ride{}
	for _, r := range c.ridesLocked(targets) {
		if IsActive(r, now, loc) {
			jobs = append(jobs, r)
		}
	}
	inflight := 0
	for _, list := range c.inflight {
		inflight += len(list)
	}
	return View{
		Jobs:         jobs,
		Stale:        c.stale,
		PendingSync:  queueLen > 0,
		QueueLen:     queueLen,
		InFlight:     inflight,
		Conflicts:    c.conflicts,
		Polling:      c.polling,
		LastSyncedAt: c.lastSynced,
	}
}
