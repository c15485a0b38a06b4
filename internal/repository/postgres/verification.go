package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
)

const verificationColumns = `id, subject_id, status, mode, requested_by, expires_at, resolved_by, resolved_at, created_at`

// VerificationRepository is a PostgreSQL implementation of repository.VerificationRepository.
// The partial unique index on (subject_id) WHERE status = 'pending' guarantees at
// most one pending row per subject.
type VerificationRepository struct {
	q  Querier
	db *sql.DB
}

// NewVerificationRepository creates a new PostgreSQL verification repository.
func NewVerificationRepository(db *sql.DB) *VerificationRepository {
	return &VerificationRepository{q: db, db: db}
}

// NewVerificationRepositoryWithTx creates a verification repository using a transaction.
func NewVerificationRepositoryWithTx(tx *sql.Tx) *VerificationRepository {
	return &VerificationRepository{q: tx}
}

// FindLivePending returns the pending, unexpired request of a subject.
// Returns nil if none exists.
func (r *VerificationRepository) FindLivePending(ctx context.Context, subjectID string, now time.Time) (*domain.VerificationRequest, error) {
	query := `SELECT ` + verificationColumns + `
		FROM verification_requests
		WHERE subject_id = $1 AND status = 'pending' AND expires_at > $2`

	req, err := scanVerification(r.q.QueryRowContext(ctx, query, subjectID, now))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return req, nil
}

// Insert persists a new pending request. Pending rows of the subject that
// have passed their expiry are flipped to expired first so the unique index
// only guards live requests.
func (r *VerificationRepository) Insert(ctx context.Context, req *domain.VerificationRequest) error {
	err := inTx(ctx, r.db, r.q, func(q Querier) error {
		_, err := q.ExecContext(ctx, `
			UPDATE verification_requests SET status = 'expired'
			WHERE subject_id = $1 AND status = 'pending' AND expires_at <= $2
		`, req.SubjectID, req.CreatedAt)
		if err != nil {
			return err
		}

		_, err = q.ExecContext(ctx, `
			INSERT INTO verification_requests (id, subject_id, status, mode, requested_by, expires_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, req.ID, req.SubjectID, req.Status, req.Mode, nullString(req.RequestedBy), req.ExpiresAt, req.CreatedAt)
		return err
	})
	if err == nil {
		return nil
	}
	if !isUniqueViolation(err) {
		return err
	}

	conflict := &domain.ConflictError{
		Resource: "verification_request",
		Message:  "a pending verification request already exists for this user",
	}
	existing, lookupErr := r.FindLivePending(ctx, req.SubjectID, req.CreatedAt)
	if lookupErr == nil && existing != nil {
		conflict.ExistingID = existing.ID
	}
	return conflict
}

// GetByID retrieves a request by ID.
func (r *VerificationRepository) GetByID(ctx context.Context, id string) (*domain.VerificationRequest, error) {
	query := `SELECT ` + verificationColumns + ` FROM verification_requests WHERE id = $1`

	req, err := scanVerification(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return req, nil
}

// Resolve moves a live pending request to its final status.
func (r *VerificationRepository) Resolve(ctx context.Context, id string, status domain.VerificationStatus, resolvedBy string, at time.Time) error {
	query := `
		UPDATE verification_requests
		SET status = $1, resolved_by = $2, resolved_at = $3
		WHERE id = $4 AND status = 'pending' AND expires_at > $3
	`

	result, err := r.q.ExecContext(ctx, query, status, nullString(resolvedBy), at, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		if _, err := r.GetByID(ctx, id); err != nil {
			return err
		}
		return repository.ErrStaleState
	}
	return nil
}

func scanVerification(row rowScanner) (*domain.VerificationRequest, error) {
	var req domain.VerificationRequest
	var requestedBy, resolvedBy sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&req.ID,
		&req.SubjectID,
		&req.Status,
		&req.Mode,
		&requestedBy,
		&req.ExpiresAt,
		&resolvedBy,
		&resolvedAt,
		&req.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	req.RequestedBy = requestedBy.String
	req.ResolvedBy = resolvedBy.String
	if resolvedAt.Valid {
		req.ResolvedAt = resolvedAt.Time
	}
	return &req, nil
}
