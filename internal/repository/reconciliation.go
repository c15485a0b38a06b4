package repository

import (
	"context"

	"ridecore/internal/domain"
)

// ReconciliationRepository defines the persistence operations for reconciliation flags.
type ReconciliationRepository interface {
	// Flag records a half-applied settlement. Flagging the same ride and step
	// twice keeps the first flag.
	Flag(ctx context.Context, flag *domain.ReconciliationFlag) error

	// ListOpen returns unresolved flags, oldest first.
	ListOpen(ctx context.Context) ([]*domain.ReconciliationFlag, error)

	// Resolve closes a flag.
	Resolve(ctx context.Context, id, resolvedBy string) error
}
