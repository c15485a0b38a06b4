package postgres

import (
	"context"
	"database/sql"
	"time"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
)

// ReconciliationRepository is a PostgreSQL implementation of repository.ReconciliationRepository.
type ReconciliationRepository struct {
	q Querier
}

// NewReconciliationRepository creates a new PostgreSQL reconciliation repository.
func NewReconciliationRepository(db *sql.DB) *ReconciliationRepository {
	return &ReconciliationRepository{q: db}
}

// NewReconciliationRepositoryWithTx creates a reconciliation repository using a transaction.
func NewReconciliationRepositoryWithTx(tx *sql.Tx) *ReconciliationRepository {
	return &ReconciliationRepository{q: tx}
}

// Flag records a half-applied settlement. The first flag per ride and step wins.
func (r *ReconciliationRepository) Flag(ctx context.Context, flag *domain.ReconciliationFlag) error {
	query := `
		INSERT INTO reconciliation_flags (id, ride_id, step, detail, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (ride_id, step) DO NOTHING
	`
	_, err := r.q.ExecContext(ctx, query, flag.ID, flag.RideID, flag.Step, nullString(flag.Detail), flag.CreatedAt)
	return err
}

// ListOpen returns unresolved flags, oldest first.
func (r *ReconciliationRepository) ListOpen(ctx context.Context) ([]*domain.ReconciliationFlag, error) {
	query := `
		SELECT id, ride_id, step, COALESCE(detail, ''), created_at
		FROM reconciliation_flags
		WHERE resolved_at IS NULL
		ORDER BY created_at ASC
	`
	rows, err := r.q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var flags []*domain.ReconciliationFlag
	for rows.Next() {
		var f domain.ReconciliationFlag
		if err := rows.Scan(&f.ID, &f.RideID, &f.Step, &f.Detail, &f.CreatedAt); err != nil {
			return nil, err
		}
		flags = append(flags, &f)
	}
	return flags, rows.Err()
}

// Resolve closes an open flag.
func (r *ReconciliationRepository) Resolve(ctx context.Context, id, resolvedBy string) error {
	query := `UPDATE reconciliation_flags SET resolved_by = $1, resolved_at = $2 WHERE id = $3 AND resolved_at IS NULL`

	result, err := r.q.ExecContext(ctx, query, resolvedBy, time.Now().UTC(), id)
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
