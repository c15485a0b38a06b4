package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
)

const rideColumns = `id, ride_type, status, passenger_id, driver_id, payment_method, fare_estimated,
	fare_actual, driver_cash_received, cancellation_fee, cancelled_by, cancel_reason, cancelled_at,
	completed_at, settlement_status, external_payment_ref, created_at, updated_at`

// RideRepository is a PostgreSQL implementation of repository.RideRepository.
type RideRepository struct {
	q  Querier
	db *sql.DB
}

// NewRideRepository creates a new PostgreSQL ride repository.
func NewRideRepository(db *sql.DB) *RideRepository {
	return &RideRepository{q: db, db: db}
}

// NewRideRepositoryWithTx creates a ride repository using a transaction.
func NewRideRepositoryWithTx(tx *sql.Tx) *RideRepository {
	return &RideRepository{q: tx}
}

// Create persists a new ride.
func (r *RideRepository) Create(ctx context.Context, ride *domain.Ride) error {
	query := `
		INSERT INTO rides (id, ride_type, status, passenger_id, driver_id, payment_method, fare_estimated,
			settlement_status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	settlement := ride.SettlementStatus
	if settlement == "" {
		settlement = domain.SettlementNone
	}

	_, err := r.q.ExecContext(ctx, query,
		ride.ID,
		ride.Type,
		ride.Status,
		ride.PassengerID,
		nullString(ride.DriverID),
		ride.PaymentMethod,
		ride.FareEstimated,
		settlement,
		ride.CreatedAt,
		ride.UpdatedAt,
	)
	return err
}

// GetByID retrieves a ride by ID.
func (r *RideRepository) GetByID(ctx context.Context, id string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + ` FROM rides WHERE id = $1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return ride, nil
}

// ApplyTransition writes the ride guarded by its previous status and updates
// the driver's availability in the same transaction.
func (r *RideRepository) ApplyTransition(ctx context.Context, ride *domain.Ride, from domain.RideStatus) error {
	return inTx(ctx, r.db, r.q, func(q Querier) error {
		query := `
			UPDATE rides
			SET status = $1, driver_id = $2, fare_actual = $3, driver_cash_received = $4, cancellation_fee = $5,
				cancelled_by = $6, cancel_reason = $7, cancelled_at = $8, completed_at = $9,
				settlement_status = $10, updated_at = $11
			WHERE id = $12 AND status = $13
		`

		result, err := q.ExecContext(ctx, query,
			ride.Status,
			nullString(ride.DriverID),
			nullDecimal(ride.FareActual),
			nullDecimal(ride.DriverCashReceived),
			ride.CancellationFee,
			nullString(ride.CancelledBy),
			nullString(ride.CancelReason),
			nullTime(ride.CancelledAt),
			nullTime(ride.CompletedAt),
			ride.SettlementStatus,
			ride.UpdatedAt,
			ride.ID,
			from,
		)
		if err != nil {
			return err
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if rowsAffected == 0 {
			var exists bool
			if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM rides WHERE id = $1)`, ride.ID).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return repository.ErrNotFound
			}
			return repository.ErrStaleState
		}

		if !ride.HasDriver() {
			return nil
		}
		if ride.Status.IsTerminal() {
			_, err = q.ExecContext(ctx,
				`UPDATE drivers SET status = $1, active_ride_id = NULL WHERE id = $2 AND active_ride_id = $3`,
				domain.DriverStatusOnline, ride.DriverID, ride.ID)
			return err
		}

		result, err = q.ExecContext(ctx,
			`UPDATE drivers SET status = $1, active_ride_id = $2
			 WHERE id = $3 AND (active_ride_id IS NULL OR active_ride_id = $2)`,
			domain.DriverStatusOnTrip, ride.ID, ride.DriverID)
		if err != nil {
			return err
		}
		if rowsAffected, err = result.RowsAffected(); err != nil {
			return err
		}
		if rowsAffected == 0 {
			return repository.ErrDriverUnavailable
		}
		return nil
	})
}

// UpdateSettlement sets the settlement status of a ride.
func (r *RideRepository) UpdateSettlement(ctx context.Context, rideID string, status domain.SettlementStatus, externalRef string) error {
	query := `
		UPDATE rides
		SET settlement_status = $1, external_payment_ref = COALESCE($2, external_payment_ref), updated_at = $3
		WHERE id = $4
	`

	result, err := r.q.ExecContext(ctx, query, status, nullString(externalRef), time.Now().UTC(), rideID)
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

// GetActiveByDriverID retrieves the active ride for a driver.
// Returns nil if no active ride exists.
func (r *RideRepository) GetActiveByDriverID(ctx context.Context, driverID string) (*domain.Ride, error) {
	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE driver_id = $1 AND status NOT IN ('completed', 'cancelled')
		ORDER BY created_at DESC LIMIT 1`

	ride, err := scanRide(r.q.QueryRowContext(ctx, query, driverID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return ride, nil
}

// ListBySettlementStatus returns terminal rides in the given settlement status.
func (r *RideRepository) ListBySettlementStatus(ctx context.Context, status domain.SettlementStatus, limit int) ([]*domain.Ride, error) {
	query := `SELECT ` + rideColumns + `
		FROM rides
		WHERE settlement_status = $1 AND status IN ('completed', 'cancelled')
		ORDER BY updated_at ASC LIMIT $2`

	rows, err := r.q.QueryContext(ctx, query, status, limit)
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRide(row rowScanner) (*domain.Ride, error) {
	var ride domain.Ride
	var driverID, cancelledBy, cancelReason, externalRef sql.NullString
	var fareActual, cashReceived decimal.NullDecimal
	var cancelledAt, completedAt sql.NullTime

	err := row.Scan(
		&ride.ID,
		&ride.Type,
		&ride.Status,
		&ride.PassengerID,
		&driverID,
		&ride.PaymentMethod,
		&ride.FareEstimated,
		&fareActual,
		&cashReceived,
		&ride.CancellationFee,
		&cancelledBy,
		&cancelReason,
		&cancelledAt,
		&completedAt,
		&ride.SettlementStatus,
		&externalRef,
		&ride.CreatedAt,
		&ride.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	ride.DriverID = driverID.String
	ride.CancelledBy = cancelledBy.String
	ride.CancelReason = cancelReason.String
	ride.ExternalPaymentRef = externalRef.String
	if fareActual.Valid {
		ride.FareActual = &fareActual.Decimal
	}
	if cashReceived.Valid {
		ride.DriverCashReceived = &cashReceived.Decimal
	}
	if cancelledAt.Valid {
		ride.CancelledAt = cancelledAt.Time
	}
	if completedAt.Valid {
		ride.CompletedAt = completedAt.Time
	}

	return &ride, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
