package repository

import (
	"context"

	"ridecore/internal/domain"
)

// RideRepository defines the persistence operations for rides.
type RideRepository interface {
	// Create persists a new ride.
	Create(ctx context.Context, ride *domain.Ride) error

	// GetByID retrieves a ride by ID.
	GetByID(ctx context.Context, id string) (*domain.Ride, error)

	// ApplyTransition writes the ride only if its stored status still equals
	// from, and updates the assigned driver's availability in the same
	// transaction. Returns ErrStaleState when another writer got there first.
	ApplyTransition(ctx context.Context, ride *domain.Ride, from domain.RideStatus) error

	// UpdateSettlement sets the settlement status and, when non-empty, the
	// external payment reference.
	UpdateSettlement(ctx context.Context, rideID string, status domain.SettlementStatus, externalRef string) error

	// GetActiveByDriverID retrieves the non-terminal ride held by a driver.
	// Returns nil if the driver holds none.
	GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Ride, error)

	// ListBySettlementStatus returns terminal rides in the given settlement
	// status, oldest first.
	ListBySettlementStatus(ctx context.Context, status domain.SettlementStatus, limit int) ([]*domain.Ride, error)
}
