// README: Ride aggregate, status definitions, and the transition tables.
package ride

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"wecare/internal/types"
)

type Status string

const (
	StatusNone            Status = ""
	StatusPending         Status = "PENDING"
	StatusAssigned        Status = "ASSIGNED"
	StatusEnRouteToPickup Status = "EN_ROUTE_TO_PICKUP"
	StatusArrivedAtPickup Status = "ARRIVED_AT_PICKUP"
	StatusInProgress      Status = "IN_PROGRESS"
	StatusCompleted       Status = "COMPLETED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
)

var allStatuses = []Status{
	StatusPending,
	StatusAssigned,
	StatusEnRouteToPickup,
	StatusArrivedAtPickup,
	StatusInProgress,
	StatusCompleted,
	StatusCancelled,
	StatusRejected,
}

// Valid reports whether s is one of the defined ride statuses.
func (s Status) Valid() bool {
	for _, v := range allStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// IsTerminal reports whether s accepts no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusRejected
}

// ParseStatus accepts the canonical upper-case name, case-insensitively.
func ParseStatus(v string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(v)))
	if !s.Valid() {
		return StatusNone, fmt.Errorf("%w: unknown status %q", ErrBadRequest, v)
	}
	return s, nil
}

// Action names the trigger of a transition as the UI labels it.
type Action string

const (
	ActionStartTrip     Action = "start_trip"
	ActionArrived       Action = "arrived"
	ActionPatientAboard Action = "patient_aboard"
	ActionTripEnded     Action = "trip_ended"
	ActionDeclineJob    Action = "decline_job"

	ActionAssign Action = "assign"
	ActionCancel Action = "cancel"
)

type transition struct {
	from   Status
	action Action
	to     Status
}

// driverTransitions is the only table enforced for driver-triggered changes.
var driverTransitions = []transition{
	{StatusAssigned, ActionStartTrip, StatusEnRouteToPickup},
	{StatusEnRouteToPickup, ActionArrived, StatusArrivedAtPickup},
	{StatusArrivedAtPickup, ActionPatientAboard, StatusInProgress},
	{StatusInProgress, ActionTripEnded, StatusCompleted},
	{StatusAssigned, ActionDeclineJob, StatusRejected},
}

// driverPath is the forward route of an accepted ride.
var driverPath = []Status{
	StatusAssigned,
	StatusEnRouteToPickup,
	StatusArrivedAtPickup,
	StatusInProgress,
	StatusCompleted,
}

// Supersedes reports whether current lies strictly past target on the
// driver path, i.e. a change to target has already been overtaken.
func Supersedes(current, target Status) bool {
	ci, ti := pathIndex(current), pathIndex(target)
	return ci >= 0 && ti >= 0 && ci > ti
}

func pathIndex(s Status) int {
	for i, v := range driverPath {
		if v == s {
			return i
		}
	}
	return -1
}

var dispatcherTransitions = []transition{
	{StatusPending, ActionAssign, StatusAssigned},
	{StatusPending, ActionCancel, StatusCancelled},
	{StatusAssigned, ActionCancel, StatusCancelled},
}

// NextState returns the status reached by applying a driver action to current.
func NextState(current Status, action Action) (Status, error) {
	return lookup(driverTransitions, current, action)
}

// NextDispatcherState is NextState over the dispatcher-only table.
func NextDispatcherState(current Status, action Action) (Status, error) {
	return lookup(dispatcherTransitions, current, action)
}

func lookup(table []transition, current Status, action Action) (Status, error) {
	if current.IsTerminal() {
		return current, &InvalidTransitionError{From: current, Action: action}
	}
	for _, t := range table {
		if t.from == current && t.action == action {
			return t.to, nil
		}
	}
	return current, &InvalidTransitionError{From: current, Action: action}
}

// CheckDriverTransition validates a driver request expressed as a target status.
func CheckDriverTransition(from, to Status) error {
	if _, ok := DriverAction(from, to); !ok {
		return &InvalidTransitionError{From: from, To: to}
	}
	return nil
}

// DriverAction returns the action that moves a ride from -> to, if any.
func DriverAction(from, to Status) (Action, bool) {
	if from.IsTerminal() {
		return "", false
	}
	for _, t := range driverTransitions {
		if t.from == from && t.to == to {
			return t.action, true
		}
	}
	return "", false
}

// CanTransition reports whether from -> to appears in either table.
func CanTransition(from, to Status) bool {
	if from.IsTerminal() {
		return false
	}
	for _, table := range [][]transition{driverTransitions, dispatcherTransitions} {
		for _, t := range table {
			if t.from == from && t.to == to {
				return true
			}
		}
	}
	return false
}

type Ride struct {
	ID                types.ID       `json:"id"`
	PatientName       string         `json:"patient_name"`
	PatientPhone      string         `json:"patient_phone"`
	PickupLocation    string         `json:"pickup_location"`
	Destination       string         `json:"destination"`
	AppointmentTime   time.Time      `json:"appointment_time"`
	Status            Status         `json:"status"`
	StatusVersion     int            `json:"status_version"`
	Village           string         `json:"village"`
	Landmark          string         `json:"landmark"`
	CaregiverPhone    string         `json:"caregiver_phone"`
	SpecialNeeds      []string       `json:"special_needs"`
	DriverID          *types.ID      `json:"driver_id,omitempty"`
	DriverName        *string        `json:"driver_name,omitempty"`
	EstimatedDuration *time.Duration `json:"estimated_duration,omitempty"`
	CancelReason      *string        `json:"cancel_reason,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Event is one applied status change, kept for the audit log.
type Event struct {
	ID         int64
	RideID     types.ID
	FromStatus Status
	ToStatus   Status
	ActorType  string
	ActorID    *types.ID
	CreatedAt  time.Time
}

// NormalizeNeeds sorts and de-duplicates special needs, dropping blanks.
func NormalizeNeeds(needs []string) []string {
	seen := make(map[string]struct{}, len(needs))
	out := make([]string, 0, len(needs))
	for _, n := range needs {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// SortByAppointment orders rides by appointment time, then id.
func SortByAppointment(rides []Ride) {
	sort.SliceStable(rides, func(i, j int) bool {
		if rides[i].AppointmentTime.Equal(rides[j].AppointmentTime) {
			return rides[i].ID < rides[j].ID
		}
		return rides[i].AppointmentTime.Before(rides[j].AppointmentTime)
	})
}
