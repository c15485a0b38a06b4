package repository

import (
	"context"
	"time"

	"ridecore/internal/domain"
)

// VerificationRepository defines the persistence operations for verification requests.
type VerificationRepository interface {
	// FindLivePending returns the pending request of subjectID that has not
	// expired at now. Returns nil if none exists.
	FindLivePending(ctx context.Context, subjectID string, now time.Time) (*domain.VerificationRequest, error)

	// Insert persists a new pending request. A concurrent live request for
	// the same subject yields *domain.ConflictError carrying its ID.
	Insert(ctx context.Context, req *domain.VerificationRequest) error

	// GetByID retrieves a request by ID.
	GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error)

	// Resolve moves a live pending request to status. Returns ErrStaleState
	// if the request is no longer live.
	Resolve(ctx context.Context, id string, status domain.VerificationStatus, resolvedBy string, at time.Time) error
}
