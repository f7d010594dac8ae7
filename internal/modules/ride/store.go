// README: Ride store backed by PostgreSQL.
package ride

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"wecare/internal/types"
)

type Store struct {
	db *pgxpool.Pool
}

func NewStore(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

const rideColumns = `
    id, patient_name, patient_phone, pickup_location, destination,
    appointment_time, status, status_version, village, landmark,
    caregiver_phone, special_needs, driver_id, driver_name,
    estimated_duration_sec, cancel_reason, created_at, updated_at`

func (s *Store) Create(ctx context.Context, r *Ride) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO rides (`+rideColumns+`
        ) VALUES (
            $1, $2, $3, $4, $5,
            $6, $7, $8, $9, $10,
            $11, $12, $13, $14,
            $15, $16, $17, $18
        )`,
		string(r.ID),
		r.PatientName,
		r.PatientPhone,
		r.PickupLocation,
		r.Destination,
		r.AppointmentTime,
		string(r.Status),
		r.StatusVersion,
		r.Village,
		r.Landmark,
		r.CaregiverPhone,
		r.SpecialNeeds,
		toStringPtr(r.DriverID),
		r.DriverName,
		durationToSeconds(r.EstimatedDuration),
		r.CancelReason,
		r.CreatedAt,
		r.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("store.Create: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id types.ID) (*Ride, error) {
	row := s.db.QueryRow(ctx, `SELECT `+rideColumns+` FROM rides WHERE id = $1`, string(id))
	r, err := scanRide(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store.Get: %w", err)
	}
	return r, nil
}

func (s *Store) ListByDriver(ctx context.Context, driverID types.ID) ([]Ride, error) {
	rows, err := s.db.Query(ctx, `
        SELECT `+rideColumns+`
        FROM rides
        WHERE driver_id = $1
        ORDER BY appointment_time ASC, id ASC`, string(driverID),
	)
	if err != nil {
		return nil, fmt.Errorf("store.ListByDriver: %w", err)
	}
	defer rows.Close()

	rides := []Ride{}
	for rows.Next() {
		r, err := scanRide(rows)
		if err != nil {
			return nil, fmt.Errorf("store.ListByDriver scan: %w", err)
		}
		rides = append(rides, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store.ListByDriver rows: %w", err)
	}
	return rides, nil
}

// UpdateStatus moves a ride from -> to only if nobody changed it since it was
// read at version; it reports false when the optimistic lock lost.
func (s *Store) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, patch StatusPatch) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE rides
        SET status = $1,
            status_version = status_version + 1,
            driver_id = COALESCE($2, driver_id),
            driver_name = COALESCE($3, driver_name),
            cancel_reason = COALESCE($4, cancel_reason),
            updated_at = NOW()
        WHERE id = $5 AND status = $6 AND status_version = $7`,
		string(to),
		toStringPtr(patch.DriverID),
		patch.DriverName,
		patch.CancelReason,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, fmt.Errorf("store.UpdateStatus: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO ride_state_events (
            ride_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.RideID),
		string(e.FromStatus),
		string(e.ToStatus),
		e.ActorType,
		toStringPtr(e.ActorID),
		e.CreatedAt,
	)
	return err
}

// ListEvents returns the audit trail of one ride, oldest first.
func (s *Store) ListEvents(ctx context.Context, rideID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, ride_id, from_status, to_status, actor_type, actor_id, created_at
        FROM ride_state_events
        WHERE ride_id = $1
        ORDER BY id ASC`, string(rideID),
	)
	if err != nil {
		return nil, fmt.Errorf("store.ListEvents: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var actorID *string
		if err := rows.Scan(&e.ID, &e.RideID, &e.FromStatus, &e.ToStatus, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store.ListEvents scan: %w", err)
		}
		if actorID != nil {
			id := types.ID(*actorID)
			e.ActorID = &id
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func scanRide(row pgx.Row) (*Ride, error) {
	var r Ride
	var driverID *string
	var estimatedSec *int64
	err := row.Scan(
		&r.ID, &r.PatientName, &r.PatientPhone, &r.PickupLocation, &r.Destination,
		&r.AppointmentTime, &r.Status, &r.StatusVersion, &r.Village, &r.Landmark,
		&r.CaregiverPhone, &r.SpecialNeeds, &driverID, &r.DriverName,
		&estimatedSec, &r.CancelReason, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if driverID != nil {
		d := types.ID(*driverID)
		r.DriverID = &d
	}
	if estimatedSec != nil {
		d := time.Duration(*estimatedSec) * time.Second
		r.EstimatedDuration = &d
	}
	if r.SpecialNeeds == nil {
		r.SpecialNeeds = []string{}
	}
	return &r, nil
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func durationToSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	n := int64(d.Seconds())
	return &n
}
