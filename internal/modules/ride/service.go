// README: Ride service implements dispatcher and driver transitions on the backend.
package ride

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"wecare/internal/types"
)

// Repository is the persistence the service needs; *Store implements it.
type Repository interface {
	Create(ctx context.Context, r *Ride) error
	Get(ctx context.Context, id types.ID) (*Ride, error)
	ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, patch StatusPatch) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
}

// RouteEstimator returns the driving duration between two addresses.
type RouteEstimator interface {
	GetTravelEstimate(ctx context.Context, origin, destination string) (time.Duration, string, error)
}

// Publisher fans applied transitions out to other consumers.
type Publisher interface {
	PublishStatusChanged(ctx context.Context, r *Ride, e *Event) error
}

// DriverNotifier nudges a connected driver to refresh its job list.
type DriverNotifier interface {
	NotifyDriver(driverID, rideID types.ID)
}

// StatusPatch carries the columns that change alongside a status.
type StatusPatch struct {
	DriverID     *types.ID
	DriverName   *string
	CancelReason *string
}

const (
	ActorDriver     = "driver"
	ActorDispatcher = "dispatcher"
	ActorCommunity  = "community"
	ActorSystem     = "system"
)

type Service struct {
	store     Repository
	log       *slog.Logger
	estimator RouteEstimator
	publisher Publisher
	notifier  DriverNotifier
	now       func() time.Time
}

func NewService(store Repository, log *slog.Logger, opts ...Option) (*Service, error) {
	s := &Service{store: store, log: log}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("invalid option: %w", err)
		}
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

type CreateCommand struct {
	PatientName     string
	PatientPhone    string
	PickupLocation  string
	Destination     string
	AppointmentTime time.Time
	Village         string
	Landmark        string
	CaregiverPhone  string
	SpecialNeeds    []string
	ActorType       string
	ActorID         types.ID
}

type AssignCommand struct {
	RideID     types.ID
	DriverID   types.ID
	DriverName string
	ActorID    types.ID
}

type CancelCommand struct {
	RideID    types.ID
	Reason    string
	ActorType string
	ActorID   types.ID
}

type UpdateStatusCommand struct {
	RideID  types.ID
	Status  Status
	ActorID types.ID
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (types.ID, error) {
	if strings.TrimSpace(cmd.PatientName) == "" || strings.TrimSpace(cmd.PickupLocation) == "" ||
		strings.TrimSpace(cmd.Destination) == "" || cmd.AppointmentTime.IsZero() {
		return "", ErrBadRequest
	}

	now := s.now()
	r := &Ride{
		ID:              types.NewID(),
		PatientName:     cmd.PatientName,
		PatientPhone:    cmd.PatientPhone,
		PickupLocation:  cmd.PickupLocation,
		Destination:     cmd.Destination,
		AppointmentTime: cmd.AppointmentTime,
		Status:          StatusPending,
		Village:         cmd.Village,
		Landmark:        cmd.Landmark,
		CaregiverPhone:  cmd.CaregiverPhone,
		SpecialNeeds:    NormalizeNeeds(cmd.SpecialNeeds),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if s.estimator != nil {
		d, _, err := s.estimator.GetTravelEstimate(ctx, cmd.PickupLocation, cmd.Destination)
		if err != nil {
			s.log.WarnContext(ctx, "travel estimate failed", "error", err)
		} else {
			r.EstimatedDuration = &d
		}
	}
	if err := s.store.Create(ctx, r); err != nil {
		return "", err
	}
	actorType := cmd.ActorType
	if actorType == "" {
		actorType = ActorDispatcher
	}
	s.appendEvent(ctx, &Event{
		RideID:     r.ID,
		FromStatus: StatusNone,
		ToStatus:   StatusPending,
		ActorType:  actorType,
		ActorID:    optionalID(cmd.ActorID),
		CreatedAt:  now,
	})
	return r.ID, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Ride, error) {
	return s.store.Get(ctx, id)
}

// ListForDriver returns every ride assigned to driverID, ordered by
// appointment time. Filtering to today's active jobs is the client's job.
func (s *Service) ListForDriver(ctx context.Context, driverID types.ID) ([]Ride, error) {
	if driverID == "" {
		return nil, ErrBadRequest
	}
	rides, err := s.store.ListByDriver(ctx, driverID)
	if err != nil {
		return nil, err
	}
	SortByAppointment(rides)
	return rides, nil
}

func (s *Service) Assign(ctx context.Context, cmd AssignCommand) error {
	if cmd.DriverID == "" {
		return ErrBadRequest
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	to, err := NextDispatcherState(r.Status, ActionAssign)
	if err != nil {
		return err
	}
	name := cmd.DriverName
	if err := s.apply(ctx, r, to, StatusPatch{DriverID: &cmd.DriverID, DriverName: &name}, ActorDispatcher, cmd.ActorID); err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.NotifyDriver(cmd.DriverID, r.ID)
	}
	return nil
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	to, err := NextDispatcherState(r.Status, ActionCancel)
	if err != nil {
		return err
	}
	reason := cmd.Reason
	actorType := cmd.ActorType
	if actorType == "" {
		actorType = ActorDispatcher
	}
	if err := s.apply(ctx, r, to, StatusPatch{CancelReason: &reason}, actorType, cmd.ActorID); err != nil {
		return err
	}
	if s.notifier != nil && r.DriverID != nil {
		s.notifier.NotifyDriver(*r.DriverID, r.ID)
	}
	return nil
}

// UpdateStatus applies a driver-triggered transition. It is idempotent with
// respect to the target: a ride already at cmd.Status, or further along the
// driver path, succeeds without a write, which is what makes replaying the
// driver's offline queue safe.
func (s *Service) UpdateStatus(ctx context.Context, cmd UpdateStatusCommand) error {
	if !cmd.Status.Valid() {
		return ErrBadRequest
	}
	r, err := s.store.Get(ctx, cmd.RideID)
	if err != nil {
		return err
	}
	if r.DriverID == nil || *r.DriverID != cmd.ActorID {
		return ErrForbidden
	}
	if reached(r.Status, cmd.Status) {
		if r.Status != cmd.Status {
			s.log.DebugContext(ctx, "stale driver replay ignored",
				"ride_id", r.ID, "status", r.Status, "target", cmd.Status)
		}
		return nil
	}
	if err := CheckDriverTransition(r.Status, cmd.Status); err != nil {
		return err
	}
	err = s.apply(ctx, r, cmd.Status, StatusPatch{}, ActorDriver, cmd.ActorID)
	if errors.Is(err, ErrConflict) {
		cur, gerr := s.store.Get(ctx, cmd.RideID)
		if gerr == nil && reached(cur.Status, cmd.Status) {
			return nil
		}
	}
	return err
}

// reached is true when the ride already is at target or past it on the
// driver path.
func reached(current, target Status) bool {
	return current == target || Supersedes(current, target)
}

func (s *Service) apply(ctx context.Context, r *Ride, to Status, patch StatusPatch, actorType string, actorID types.ID) error {
	ok, err := s.store.UpdateStatus(ctx, r.ID, r.Status, to, r.StatusVersion, patch)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	e := &Event{
		RideID:     r.ID,
		FromStatus: r.Status,
		ToStatus:   to,
		ActorType:  actorType,
		ActorID:    optionalID(actorID),
		CreatedAt:  s.now(),
	}
	s.appendEvent(ctx, e)

	r.Status = to
	r.StatusVersion++
	if patch.DriverID != nil {
		r.DriverID = patch.DriverID
	}
	if patch.DriverName != nil {
		r.DriverName = patch.DriverName
	}
	if patch.CancelReason != nil {
		r.CancelReason = patch.CancelReason
	}
	if s.publisher != nil {
		if err := s.publisher.PublishStatusChanged(ctx, r, e); err != nil {
			s.log.WarnContext(ctx, "publish status change failed",
				"ride_id", r.ID, "status", to, "error", err)
		}
	}
	s.log.InfoContext(ctx, "ride status changed",
		"ride_id", r.ID, "from", e.FromStatus, "to", to, "actor_type", actorType)
	return nil
}

func (s *Service) appendEvent(ctx context.Context, e *Event) {
	if err := s.store.AppendEvent(ctx, e); err != nil {
		s.log.WarnContext(ctx, "append ride event failed", "ride_id", e.RideID, "error", err)
	}
}

func optionalID(id types.ID) *types.ID {
	if id == "" {
		return nil
	}
	return &id
}
