package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
)

const entryColumns = `id, wallet_id, amount, type, balance_after, reference_id, reason, created_at`

// WalletRepository is a PostgreSQL implementation of repository.WalletRepository.
// Every balance change runs under a row lock on the wallet.
type WalletRepository struct {
	q  Querier
	db *sql.DB
}

// NewWalletRepository creates a new PostgreSQL wallet repository.
func NewWalletRepository(db *sql.DB) *WalletRepository {
	return &WalletRepository{q: db, db: db}
}

// NewWalletRepositoryWithTx creates a wallet repository using a transaction.
func NewWalletRepositoryWithTx(tx *sql.Tx) *WalletRepository {
	return &WalletRepository{q: tx}
}

// GetOrCreate returns the user's wallet, creating it on first access.
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error) {
	var wallet *domain.Wallet
	err := inTx(ctx, r.db, r.q, func(q Querier) error {
		if err := ensureWallet(ctx, q, userID); err != nil {
			return err
		}
		var err error
		wallet, err = getWallet(ctx, q, userID, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

// GetByUserID retrieves a wallet without creating it.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	return getWallet(ctx, r.q, userID, false)
}

// Adjust appends one ledger entry and updates the balance atomically.
func (r *WalletRepository) Adjust(ctx context.Context, params repository.AdjustParams) (*domain.LedgerEntry, bool, error) {
	var entry *domain.LedgerEntry
	var applied bool
	err := inTx(ctx, r.db, r.q, func(q Querier) error {
		var err error
		entry, applied, err = adjust(ctx, q, params)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return entry, applied, nil
}

// History returns the newest entries first.
func (r *WalletRepository) History(ctx context.Context, walletID string, limit int) ([]*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM wallet_entries WHERE wallet_id = $1 ORDER BY seq DESC LIMIT $2`
	return queryEntries(ctx, r.q, query, walletID, limit)
}

// Entries returns every entry of the wallet in insertion order.
func (r *WalletRepository) Entries(ctx context.Context, walletID string) ([]*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM wallet_entries WHERE wallet_id = $1 ORDER BY seq ASC`
	return queryEntries(ctx, r.q, query, walletID)
}

// ListWallets returns every wallet.
func (r *WalletRepository) ListWallets(ctx context.Context) ([]*domain.Wallet, error) {
	rows, err := r.q.QueryContext(ctx, `SELECT id, user_id, balance, created_at, updated_at FROM wallets ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var wallets []*domain.Wallet
	for rows.Next() {
		var w domain.Wallet
		if err := rows.Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, &w)
	}
	return wallets, rows.Err()
}

// RequestWithdrawal records a pending withdrawal without touching the ledger.
func (r *WalletRepository) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Withdrawal, error) {
	var withdrawal *domain.Withdrawal
	err := inTx(ctx, r.db, r.q, func(q Querier) error {
		if err := ensureWallet(ctx, q, userID); err != nil {
			return err
		}
		wallet, err := getWallet(ctx, q, userID, true)
		if err != nil {
			return err
		}

		var pending decimal.Decimal
		err = q.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(amount), 0) FROM withdrawals WHERE wallet_id = $1 AND status = $2`,
			wallet.ID, domain.WithdrawalPending,
		).Scan(&pending)
		if err != nil {
			return err
		}

		available := wallet.Balance.Sub(pending)
		if amount.GreaterThan(available) {
			return &domain.InsufficientFundsError{UserID: userID, Available: available, Requested: amount}
		}

		withdrawal = &domain.Withdrawal{
			ID:        uuid.New().String(),
			WalletID:  wallet.ID,
			UserID:    userID,
			Amount:    amount,
			Status:    domain.WithdrawalPending,
			CreatedAt: time.Now().UTC(),
		}
		_, err = q.ExecContext(ctx,
			`INSERT INTO withdrawals (id, wallet_id, user_id, amount, status, created_at) VALUES ($1, $2, $3, $4, $5, $6)`,
			withdrawal.ID, withdrawal.WalletID, withdrawal.UserID, withdrawal.Amount, withdrawal.Status, withdrawal.CreatedAt,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// GetWithdrawal retrieves a withdrawal by ID.
func (r *WalletRepository) GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	return getWithdrawal(ctx, r.q, id, false)
}

// CompleteWithdrawal debits the wallet and marks the withdrawal completed.
func (r *WalletRepository) CompleteWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, *domain.LedgerEntry, error) {
	var withdrawal *domain.Withdrawal
	var entry *domain.LedgerEntry
	err := inTx(ctx, r.db, r.q, func(q Querier) error {
		var err error
		withdrawal, err = getWithdrawal(ctx, q, id, true)
		if err != nil {
			return err
		}

		switch withdrawal.Status {
		case domain.WithdrawalRejected:
			return repository.ErrStaleState
		case domain.WithdrawalCompleted:
			entry, err = findEntryByReference(ctx, q, withdrawal.WalletID, withdrawal.ID, domain.EntryWithdrawal)
			return err
		}

		entry, _, err = adjust(ctx, q, repository.AdjustParams{
			UserID:      withdrawal.UserID,
			Amount:      withdrawal.Amount.Neg(),
			Type:        domain.EntryWithdrawal,
			Reason:      "withdrawal settled",
			ReferenceID: withdrawal.ID,
		})
		if err != nil {
			return err
		}

		withdrawal.Status = domain.WithdrawalCompleted
		withdrawal.SettledAt = time.Now().UTC()
		_, err = q.ExecContext(ctx,
			`UPDATE withdrawals SET status = $1, settled_at = $2 WHERE id = $3`,
			withdrawal.Status, withdrawal.SettledAt, withdrawal.ID,
		)
		return err
	})
	if err != nil {
		return nil, nil, err
	}
	return withdrawal, entry, nil
}

// RejectWithdrawal marks a pending withdrawal rejected.
func (r *WalletRepository) RejectWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error) {
	var withdrawal *domain.Withdrawal
	err := inTx(ctx, r.db, r.q, func(q Querier) error {
		var err error
		withdrawal, err = getWithdrawal(ctx, q, id, true)
		if err != nil {
			return err
		}
		if withdrawal.Status != domain.WithdrawalPending {
			return repository.ErrStaleState
		}
		withdrawal.Status = domain.WithdrawalRejected
		withdrawal.SettledAt = time.Now().UTC()
		_, err = q.ExecContext(ctx,
			`UPDATE withdrawals SET status = $1, settled_at = $2 WHERE id = $3`,
			withdrawal.Status, withdrawal.SettledAt, withdrawal.ID,
		)
		return err
	})
	if err != nil {
		return nil, err
	}
	return withdrawal, nil
}

// ensureWallet creates the wallet and its initialization entry if missing.
func ensureWallet(ctx context.Context, q Querier, userID string) error {
	now := time.Now().UTC()
	walletID := uuid.New().String()

	var inserted string
	err := q.QueryRowContext(ctx, `
		INSERT INTO wallets (id, user_id, balance, created_at, updated_at)
		VALUES ($1, $2, 0, $3, $3)
		ON CONFLICT (user_id) DO NOTHING
		RETURNING id
	`, walletID, userID, now).Scan(&inserted)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, wallet_id, amount, type, balance_after, reason, created_at)
		VALUES ($1, $2, 0, $3, 0, $4, $5)
	`, uuid.New().String(), inserted, domain.EntryInitialization, "wallet created", now)
	return err
}

func getWallet(ctx context.Context, q Querier, userID string, forUpdate bool) (*domain.Wallet, error) {
	query := `SELECT id, user_id, balance, created_at, updated_at FROM wallets WHERE user_id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var w domain.Wallet
	err := q.QueryRowContext(ctx, query, userID).Scan(&w.ID, &w.UserID, &w.Balance, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return &w, nil
}

// adjust must run inside a transaction.
func adjust(ctx context.Context, q Querier, p repository.AdjustParams) (*domain.LedgerEntry, bool, error) {
	if err := ensureWallet(ctx, q, p.UserID); err != nil {
		return nil, false, err
	}
	wallet, err := getWallet(ctx, q, p.UserID, true)
	if err != nil {
		return nil, false, err
	}

	if p.ReferenceID != "" {
		existing, err := findEntryByReference(ctx, q, wallet.ID, p.ReferenceID, p.Type)
		if err != nil && !errors.Is(err, repository.ErrNotFound) {
			return nil, false, err
		}
		if existing != nil {
			return existing, false, nil
		}
	}

	newBalance := wallet.Balance.Add(p.Amount)
	if p.Type.RequiresFunds() && p.Amount.IsNegative() && newBalance.IsNegative() {
		return nil, false, &domain.InsufficientFundsError{
			UserID:    p.UserID,
			Available: wallet.Balance,
			Requested: p.Amount.Neg(),
		}
	}

	entry := &domain.LedgerEntry{
		ID:           uuid.New().String(),
		WalletID:     wallet.ID,
		Amount:       p.Amount,
		Type:         p.Type,
		BalanceAfter: newBalance,
		ReferenceID:  p.ReferenceID,
		Reason:       p.Reason,
		CreatedAt:    time.Now().UTC(),
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO wallet_entries (id, wallet_id, amount, type, balance_after, reference_id, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.ID, entry.WalletID, entry.Amount, entry.Type, entry.BalanceAfter,
		nullString(entry.ReferenceID), nullString(entry.Reason), entry.CreatedAt)
	if err != nil {
		return nil, false, err
	}

	_, err = q.ExecContext(ctx,
		`UPDATE wallets SET balance = $1, updated_at = $2 WHERE id = $3`,
		newBalance, entry.CreatedAt, wallet.ID,
	)
	if err != nil {
		return nil, false, err
	}

	return entry, true, nil
}

func findEntryByReference(ctx context.Context, q Querier, walletID, referenceID string, entryType domain.EntryType) (*domain.LedgerEntry, error) {
	query := `SELECT ` + entryColumns + ` FROM wallet_entries WHERE wallet_id = $1 AND reference_id = $2 AND type = $3`

	entry, err := scanEntry(q.QueryRowContext(ctx, query, walletID, referenceID, entryType))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func queryEntries(ctx context.Context, q Querier, query string, args ...any) ([]*domain.LedgerEntry, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*domain.LedgerEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

func scanEntry(row rowScanner) (*domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var referenceID, reason sql.NullString
	if err := row.Scan(&e.ID, &e.WalletID, &e.Amount, &e.Type, &e.BalanceAfter, &referenceID, &reason, &e.CreatedAt); err != nil {
		return nil, err
	}
	e.ReferenceID = referenceID.String
	e.Reason = reason.String
	return &e, nil
}

func getWithdrawal(ctx context.Context, q Querier, id string, forUpdate bool) (*domain.Withdrawal, error) {
	query := `SELECT id, wallet_id, user_id, amount, status, created_at, settled_at FROM withdrawals WHERE id = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	var w domain.Withdrawal
	var settledAt sql.NullTime
	err := q.QueryRowContext(ctx, query, id).Scan(&w.ID, &w.WalletID, &w.UserID, &w.Amount, &w.Status, &w.CreatedAt, &settledAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	if settledAt.Valid {
		w.SettledAt = settledAt.Time
	}
	return &w, nil
}
