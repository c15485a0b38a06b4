package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/metrics"
	"ridecore/internal/repository"
	"ridecore/internal/resilience"
)

// AuditMismatch describes a wallet whose entries disagree with its balance.
type AuditMismatch struct {
	WalletID    string          `json:"wallet_id"`
	UserID      string          `json:"user_id"`
	Balance     decimal.Decimal `json:"balance"`
	EntrySum    decimal.Decimal `json:"entry_sum"`
	BrokenEntry string          `json:"broken_entry_id,omitempty"`
}

// AuditReport is the outcome of one ledger audit.
type AuditReport struct {
	WalletsChecked int             `json:"wallets_checked"`
	Mismatches     []AuditMismatch `json:"mismatches"`
	StartedAt      time.Time       `json:"started_at"`
	FinishedAt     time.Time       `json:"finished_at"`
}

// AuditService verifies that every balance equals the sum of its entries and
// that the balance_after chain is unbroken.
type AuditService struct {
	walletRepo repository.WalletRepository
	executor   *resilience.Executor
	log        logrus.FieldLogger
}

// NewAuditService creates a new AuditService.
func NewAuditService(walletRepo repository.WalletRepository, executor *resilience.Executor, log logrus.FieldLogger) *AuditService {
	return &AuditService{
		walletRepo: walletRepo,
		executor:   executor,
		log:        log.WithField("component", "ledger_audit"),
	}
}

// Run audits every wallet.
func (s *AuditService) Run(ctx context.Context) (*AuditReport, error) {
	report := &AuditReport{StartedAt: time.Now().UTC(), Mismatches: []AuditMismatch{}}

	wallets, err := resilience.Execute(ctx, s.executor, "audit.list_wallets", readRetries, func(ctx context.Context) ([]*domain.Wallet, error) {
		return s.walletRepo.ListWallets(ctx)
	})
	if err != nil {
		return nil, err
	}

	for _, wallet := range wallets {
		entries, err := resilience.Execute(ctx, s.executor, "audit.entries", readRetries, func(ctx context.Context) ([]*domain.LedgerEntry, error) {
			return s.walletRepo.Entries(ctx, wallet.ID)
		})
		if err != nil {
			return nil, err
		}
		report.WalletsChecked++

		flat := make([]domain.LedgerEntry, len(entries))
		for i, e := range entries {
			flat[i] = *e
		}
		sum, broken := domain.VerifyLedger(flat)
		if broken < 0 && sum.Equal(wallet.Balance) {
			continue
		}

		mismatch := AuditMismatch{
			WalletID: wallet.ID,
			UserID:   wallet.UserID,
			Balance:  wallet.Balance,
			EntrySum: sum,
		}
		if broken >= 0 {
			mismatch.BrokenEntry = flat[broken].ID
		}
		report.Mismatches = append(report.Mismatches, mismatch)

		s.log.WithFields(logrus.Fields{
			"wallet_id":    wallet.ID,
			"balance":      wallet.Balance.StringFixed(2),
			"entry_sum":    sum.StringFixed(2),
			"broken_entry": mismatch.BrokenEntry,
		}).Error("ledger mismatch")
	}

	report.FinishedAt = time.Now().UTC()
	metrics.LedgerAuditMismatches.Set(float64(len(report.Mismatches)))
	s.log.WithFields(logrus.Fields{
		"wallets":    report.WalletsChecked,
		"mismatches": len(report.Mismatches),
	}).Info("ledger audit finished")

	return report, nil
}
