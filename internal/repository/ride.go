package repository

import (
	"context"

	"ridewatch/internal/domain"
)

// RideRepository defines the persistence operations for tracked rides.
type RideRepository interface {
	// Save inserts or replaces a ride.
	Save(ctx context.Context, ride *domain.Ride) error

	// Delete removes a ride. Deleting a missing ride is not an error.
	Delete(ctx context.Context, id int64) error

	// ListRecent returns at most limit rides, most recently created first.
	ListRecent(ctx context.Context, limit int) ([]*domain.Ride, error)

	// Trim keeps only the keep most recently created rides.
	Trim(ctx context.Context, keep int) error
}
