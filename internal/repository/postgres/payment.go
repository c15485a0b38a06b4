package postgres

import (
	"context"
	"database/sql"
	"errors"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
)

const preferenceColumns = `id, ride_id, amount, reference, processor_id, redirect_url, status, COALESCE(transaction_id, ''), created_at`

// PaymentPreferenceRepository is a PostgreSQL implementation of
// repository.PaymentPreferenceRepository.
type PaymentPreferenceRepository struct {
	q Querier
}

// NewPaymentPreferenceRepository creates a new PostgreSQL payment preference repository.
func NewPaymentPreferenceRepository(db *sql.DB) *PaymentPreferenceRepository {
	return &PaymentPreferenceRepository{q: db}
}

// NewPaymentPreferenceRepositoryWithTx creates a payment preference repository using a transaction.
func NewPaymentPreferenceRepositoryWithTx(tx *sql.Tx) *PaymentPreferenceRepository {
	return &PaymentPreferenceRepository{q: tx}
}

// Create persists a new preference.
func (r *PaymentPreferenceRepository) Create(ctx context.Context, pref *domain.PaymentPreference) error {
	query := `
		INSERT INTO payment_preferences (id, ride_id, amount, reference, processor_id, redirect_url, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.q.ExecContext(ctx, query,
		pref.ID,
		pref.RideID,
		pref.Amount,
		pref.Reference,
		pref.ProcessorID,
		pref.RedirectURL,
		pref.Status,
		pref.CreatedAt,
	)
	return err
}

// GetByID retrieves a preference by ID.
func (r *PaymentPreferenceRepository) GetByID(ctx context.Context, id string) (*domain.PaymentPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM payment_preferences WHERE id = $1`

	pref, err := scanPreference(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return pref, nil
}

// GetByReference retrieves a preference by its reference.
// Returns nil if no preference exists with the given reference.
func (r *PaymentPreferenceRepository) GetByReference(ctx context.Context, reference string) (*domain.PaymentPreference, error) {
	query := `SELECT ` + preferenceColumns + ` FROM payment_preferences WHERE reference = $1`

	pref, err := scanPreference(r.q.QueryRowContext(ctx, query, reference))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return pref, nil
}

// MarkConfirmed records the processor transaction for a preference.
func (r *PaymentPreferenceRepository) MarkConfirmed(ctx context.Context, id, transactionID string) error {
	query := `UPDATE payment_preferences SET status = $1, transaction_id = $2 WHERE id = $3`

	result, err := r.q.ExecContext(ctx, query, domain.PreferenceStatusConfirmed, transactionID, id)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return repository.ErrNotFound
	}

	return nil
}

func scanPreference(row rowScanner) (*domain.PaymentPreference, error) {
	var pref domain.PaymentPreference
	err := row.Scan(
		&pref.ID,
		&pref.RideID,
		&pref.Amount,
		&pref.Reference,
		&pref.ProcessorID,
		&pref.RedirectURL,
		&pref.Status,
		&pref.TransactionID,
		&pref.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &pref, nil
}
