package postgres

import (
	"context"
	"database/sql"

	"ridewatch/internal/domain"
)

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q Querier
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db}
}

const rideColumns = `id, origin, destination, note, declared_fare, state, status_text, stage_label, last_error,
	driver_name, vehicle, plate, final_fare, alerted, notified_acceptance, relaunched_from, relaunched_to,
	created_at, updated_at`

// Save inserts or replaces a ride.
func (r *RideRepository) Save(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO tracked_rides (` + rideColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
		ON CONFLICT (id) DO UPDATE SET
			state = EXCLUDED.state,
			status_text = EXCLUDED.status_text,
			stage_label = EXCLUDED.stage_label,
			last_error = EXCLUDED.last_error,
			driver_name = EXCLUDED.driver_name,
			vehicle = EXCLUDED.vehicle,
			plate = EXCLUDED.plate,
			final_fare = EXCLUDED.final_fare,
			alerted = EXCLUDED.alerted,
			notified_acceptance = EXCLUDED.notified_acceptance,
			relaunched_from = EXCLUDED.relaunched_from,
			relaunched_to = EXCLUDED.relaunched_to,
			updated_at = EXCLUDED.updated_at
	`

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.Origin,
		ride.Destination,
		ride.Note,
		nullFloat(ride.DeclaredFare),
		ride.State,
		ride.StatusText,
		ride.StageLabel,
		ride.LastError,
		ride.DriverName,
		ride.Vehicle,
		ride.Plate,
		nullFloat(ride.FinalFare),
		ride.Alerted,
		ride.NotifiedAcceptance,
		nullID(ride.RelaunchedFrom),
		nullID(ride.RelaunchedTo),
		ride.CreatedAt,
		ride.UpdatedAt,
	)

	return err
}

// Delete removes a ride.
func (r *RideRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.q.ExecContext(ctx, `DELETE FROM tracked_rides WHERE id = $1`, id)
	return err
}

// ListRecent returns at most limit rides, most recently created first.
func (r *RideRepository) ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM tracked_rides ORDER BY created_at DESC, id DESC LIMIT $1`

	rows, err := r.q.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rides []*domain.Ride
	for rows.Next() {
		ride, err := scanRide(rows)
		if err != nil {
			return nil, err
		}
		rides = append(rides, ride)
	}
	return rides, rows.Err()
}

// Trim keeps only the keep most recently created rides.
func (r *RideRepository) Trim(ctx context.Context, keep int) error {
	query := `
		DELETE FROM tracked_rides
		WHERE id NOT IN (
			SELECT id FROM tracked_rides ORDER BY created_at DESC, id DESC LIMIT $1
		)
	`
	_, err := r.q.ExecContext(ctx, query, keep)
	return err
}
