package postgres

import (
	"context"
	"database/sql"

	"ridewatch/internal/domain"
)

// Querier is an interface satisfied by both *sql.DB and *sql.Tx.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

var (
	_ Querier    = (*sql.DB)(nil)
	_ Querier    = (*sql.Tx)(nil)
	_ rowScanner = (*sql.Row)(nil)
	_ rowScanner = (*sql.Rows)(nil)
)

// scanRide reads one row selected with rideColumns.
func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var declaredFare, finalFare sql.NullFloat64
	var relaunchedFrom, relaunchedTo sql.NullInt64

	if err := row.Scan(
		&ride.ID,
		&ride.Origin,
		&ride.Destination,
		&ride.Note,
		&declaredFare,
		&ride.State,
		&ride.StatusText,
		&ride.StageLabel,
		&ride.LastError,
		&ride.DriverName,
		&ride.Vehicle,
		&ride.Plate,
		&finalFare,
		&ride.Alerted,
		&ride.NotifiedAcceptance,
		&relaunchedFrom,
		&relaunchedTo,
		&ride.CreatedAt,
		&ride.UpdatedAt,
	); err != nil {
		return nil, err
	}

	ride.DeclaredFare = floatPtr(declaredFare)
	ride.FinalFare = floatPtr(finalFare)
	ride.RelaunchedFrom = relaunchedFrom.Int64
	ride.RelaunchedTo = relaunchedTo.Int64
	return &ride, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}

func nullID(id int64) sql.NullInt64 {
	if id <= 0 {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: id, Valid: true}
}
