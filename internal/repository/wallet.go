package repository

import (
	"context"

	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
)

// AdjustParams describes one ledger adjustment.
type AdjustParams struct {
	UserID      string
	Amount      decimal.Decimal
	Type        domain.EntryType
	Reason      string
	ReferenceID string // optional; makes the adjustment idempotent per (wallet, reference, type)
}

// WalletRepository defines the persistence operations for wallets and their ledger.
type WalletRepository interface {
	// GetOrCreate returns the user's wallet, creating it with a zero
	// initialization entry on first access.
	GetOrCreate(ctx context.Context, userID string) (*domain.Wallet, error)

	// GetByUserID retrieves a wallet without creating it.
	GetByUserID(ctx context.Context, userID string) (*domain.Wallet, error)

	// Adjust appends one entry and updates the balance atomically under a row
	// lock. When the reference already exists the stored entry is returned
	// with applied=false and nothing is written.
	Adjust(ctx context.Context, params AdjustParams) (entry *domain.LedgerEntry, applied bool, err error)

	// History returns the newest entries first.
	History(ctx context.Context, walletID string, limit int) ([]*domain.LedgerEntry, error)

	// Entries returns every entry of the wallet in insertion order.
	Entries(ctx context.Context, walletID string) ([]*domain.LedgerEntry, error)

	// ListWallets returns every wallet.
	ListWallets(ctx context.Context) ([]*domain.Wallet, error)

	// RequestWithdrawal records a pending withdrawal if the amount fits the
	// balance minus other pending withdrawals. No entry is written.
	RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Withdrawal, error)

	// GetWithdrawal retrieves a withdrawal by ID.
	GetWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error)

	// CompleteWithdrawal debits the wallet and marks the withdrawal completed
	// in one transaction. Completing twice returns the existing entry.
	CompleteWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, *domain.LedgerEntry, error)

	// RejectWithdrawal marks a pending withdrawal rejected.
	RejectWithdrawal(ctx context.Context, id string) (*domain.Withdrawal, error)
}
