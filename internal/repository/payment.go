package repository

import (
	"context"

	"ridecore/internal/domain"
)

// PaymentPreferenceRepository defines the persistence operations for external
// payment preferences.
type PaymentPreferenceRepository interface {
	// Create persists a new preference.
	Create(ctx context.Context, pref *domain.PaymentPreference) error

	// GetByID retrieves a preference by ID.
	GetByID(ctx context.Context, id string) (*domain.PaymentPreference, error)

	// GetByReference retrieves a preference by its reference.
	// Returns nil if no preference exists with the given reference.
	GetByReference(ctx context.Context, reference string) (*domain.PaymentPreference, error)

	// MarkConfirmed records the processor transaction for a preference.
	MarkConfirmed(ctx context.Context, id, transactionID string) error
}
