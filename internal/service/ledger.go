package service

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/metrics"
	"ridecore/internal/repository"
	"ridecore/internal/resilience"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200
)

// WalletService handles wallet ledger operations.
type WalletService struct {
	walletRepo repository.WalletRepository
	executor   *resilience.Executor
	log        logrus.FieldLogger
}

// NewWalletService creates a new WalletService.
func NewWalletService(walletRepo repository.WalletRepository, executor *resilience.Executor, log logrus.FieldLogger) *WalletService {
	return &WalletService{
		walletRepo: walletRepo,
		executor:   executor,
		log:        log.WithField("component", "wallet"),
	}
}

// AdjustRequest contains the parameters for a ledger adjustment.
type AdjustRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Type        domain.EntryType
	Reason      string
	ReferenceID string
}

// Adjust appends one signed entry to the user's wallet. When ReferenceID is
// set, repeating the call returns the stored entry without writing.
func (s *WalletService) Adjust(ctx context.Context, req AdjustRequest) (*domain.LedgerEntry, error) {
	if req.UserID == "" {
		return nil, ErrInvalidUserID
	}
	if !req.Type.Valid() || req.Type == domain.EntryInitialization {
		return nil, ErrInvalidEntryType
	}
	if req.Amount.IsZero() {
		return nil, &domain.TerminalValidationError{Field: "amount", Message: "amount must not be zero"}
	}

	retries := noRetry
	if req.ReferenceID != "" {
		retries = idempotentWriteRetries
	}

	params := repository.AdjustParams{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        req.Type,
		Reason:      req.Reason,
		ReferenceID: req.ReferenceID,
	}

	var applied bool
	entry, err := resilience.Execute(ctx, s.executor, "wallet.adjust", retries, func(ctx context.Context) (*domain.LedgerEntry, error) {
		entry, ok, err := s.walletRepo.Adjust(ctx, params)
		applied = ok
		return entry, err
	})
	if err != nil {
		return nil, err
	}

	if applied {
		metrics.LedgerEntries.WithLabelValues(string(req.Type)).Inc()
		s.log.WithFields(logrus.Fields{
			"user_id":      req.UserID,
			"entry_type":   req.Type,
			"amount":       req.Amount.StringFixed(2),
			"reference_id": req.ReferenceID,
		}).Debug("ledger entry appended")
	}
	return entry, nil
}

// WalletView is a wallet together with its most recent entries.
type WalletView struct {
	Wallet  *domain.Wallet
	History []*domain.LedgerEntry
}

// GetOrCreateWallet returns the user's wallet, creating it on first access.
func (s *WalletService) GetOrCreateWallet(ctx context.Context, userID string) (*WalletView, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}

	wallet, err := resilience.Execute(ctx, s.executor, "wallet.get_or_create", idempotentWriteRetries, func(ctx context.Context) (*domain.Wallet, error) {
		return s.walletRepo.GetOrCreate(ctx, userID)
	})
	if err != nil {
		return nil, err
	}

	history, err := resilience.Execute(ctx, s.executor, "wallet.history", readRetries, func(ctx context.Context) ([]*domain.LedgerEntry, error) {
		return s.walletRepo.History(ctx, wallet.ID, defaultHistoryLimit)
	})
	if err != nil {
		return nil, err
	}

	return &WalletView{Wallet: wallet, History: history}, nil
}

// History returns the newest entries of the user's wallet first. A user
// without a wallet has no history.
func (s *WalletService) History(ctx context.Context, userID string, limit int) ([]*domain.LedgerEntry, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}

	wallet, err := resilience.Execute(ctx, s.executor, "wallet.get", readRetries, func(ctx context.Context) (*domain.Wallet, error) {
		return s.walletRepo.GetByUserID(ctx, userID)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return []*domain.LedgerEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	return resilience.Execute(ctx, s.executor, "wallet.history", readRetries, func(ctx context.Context) ([]*domain.LedgerEntry, error) {
		return s.walletRepo.History(ctx, wallet.ID, limit)
	})
}

// RequestWithdrawal records a pending withdrawal if the amount fits the
// balance minus other pending withdrawals. The ledger is debited only when the
// withdrawal completes.
func (s *WalletService) RequestWithdrawal(ctx context.Context, userID string, amount decimal.Decimal) (*domain.Withdrawal, error) {
	if userID == "" {
		return nil, ErrInvalidUserID
	}
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	return resilience.Execute(ctx, s.executor, "wallet.request_withdrawal", noRetry, func(ctx context.Context) (*domain.Withdrawal, error) {
		return s.walletRepo.RequestWithdrawal(ctx, userID, amount)
	})
}

// CompleteWithdrawal debits the wallet for a pending withdrawal. Completing
// the same withdrawal twice returns the original entry.
func (s *WalletService) CompleteWithdrawal(ctx context.Context, withdrawalID string) (*domain.Withdrawal, *domain.LedgerEntry, error) {
	if withdrawalID == "" {
		return nil, nil, &domain.TerminalValidationError{Field: "withdrawal_id", Message: "withdrawal id is required"}
	}

	type result struct {
		withdrawal *domain.Withdrawal
		entry      *domain.LedgerEntry
	}
	res, err := resilience.Execute(ctx, s.executor, "wallet.complete_withdrawal", idempotentWriteRetries, func(ctx context.Context) (result, error) {
		w, e, err := s.walletRepo.CompleteWithdrawal(ctx, withdrawalID)
		return result{withdrawal: w, entry: e}, err
	})
	if err != nil {
		return nil, nil, err
	}

	metrics.LedgerEntries.WithLabelValues(string(domain.EntryWithdrawal)).Inc()
	return res.withdrawal, res.entry, nil
}

// RejectWithdrawal marks a pending withdrawal rejected. No entry is written.
func (s *WalletService) RejectWithdrawal(ctx context.Context, withdrawalID string) (*domain.Withdrawal, error) {
	if withdrawalID == "" {
		return nil, &domain.TerminalValidationError{Field: "withdrawal_id", Message: "withdrawal id is required"}
	}

	return resilience.Execute(ctx, s.executor, "wallet.reject_withdrawal", noRetry, func(ctx context.Context) (*domain.Withdrawal, error) {
		return s.walletRepo.RejectWithdrawal(ctx, withdrawalID)
	})
}

// ManualAdjustmentRequest contains the parameters for an operator correction.
type ManualAdjustmentRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Reason      string
	AdminID     string
	ReferenceID string
}

// ManualAdjustment records an operator correction as a manual_adjustment entry.
func (s *WalletService) ManualAdjustment(ctx context.Context, req ManualAdjustmentRequest) (*domain.LedgerEntry, error) {
	if req.Reason == "" {
		return nil, ErrInvalidReason
	}

	reason := req.Reason
	if req.AdminID != "" {
		reason = req.Reason + " (by " + req.AdminID + ")"
	}

	return s.Adjust(ctx, AdjustRequest{
		UserID:      req.UserID,
		Amount:      req.Amount,
		Type:        domain.EntryManualAdjustment,
		Reason:      reason,
		ReferenceID: req.ReferenceID,
	})
}
