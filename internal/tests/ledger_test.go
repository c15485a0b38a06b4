package tests

import (
	"context"
	"errors"
	"testing"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
	"ridecore/internal/service"
)

func newWalletService() (*service.WalletService, *service.AuditService, *MockWalletRepository) {
	repo := NewMockWalletRepository()
	log := NewTestLogger()
	executor := NewTestExecutor()
	return service.NewWalletService(repo, executor, log), service.NewAuditService(repo, executor, log), repo
}

func TestWallet_FirstAccessCreatesInitializationEntry(t *testing.T) {
	wallets, _, _ := newWalletService()

	view, err := wallets.GetOrCreateWallet(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !view.Wallet.Balance.IsZero() {
		t.Errorf("expected zero balance, got %s", view.Wallet.Balance)
	}
	if len(view.History) != 1 || view.History[0].Type != domain.EntryInitialization {
		t.Fatalf("expected a single initialization entry, got %+v", view.History)
	}
	if !view.History[0].Amount.IsZero() {
		t.Errorf("expected zero initialization amount, got %s", view.History[0].Amount)
	}
}

func TestWallet_AdjustKeepsRunningBalance(t *testing.T) {
	wallets, _, repo := newWalletService()
	ctx := context.Background()

	steps := []service.AdjustRequest{
		{UserID: "user-1", Amount: dec("1000"), Type: domain.EntryRecharge},
		{UserID: "user-1", Amount: dec("-250.50"), Type: domain.EntryPayment, ReferenceID: "ride-1"},
		{UserID: "user-1", Amount: dec("-900"), Type: domain.EntryPenalty, ReferenceID: "ride-2"},
		{UserID: "user-1", Amount: dec("75"), Type: domain.EntryBonus},
	}
	for _, step := range steps {
		if _, err := wallets.Adjust(ctx, step); err != nil {
			t.Fatalf("adjust %s: %v", step.Type, err)
		}
	}

	assertBalance(t, repo, "user-1", "-75.50")

	history, err := wallets.History(ctx, "user-1", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(history) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(history))
	}
	if history[0].Type != domain.EntryBonus || !history[0].BalanceAfter.Equal(dec("-75.50")) {
		t.Errorf("expected newest entry first with running balance, got %s %s", history[0].Type, history[0].BalanceAfter)
	}
}

func TestWallet_ReferenceMakesAdjustIdempotent(t *testing.T) {
	wallets, _, repo := newWalletService()
	ctx := context.Background()
	req := service.AdjustRequest{UserID: "user-1", Amount: dec("500"), Type: domain.EntryEarning, ReferenceID: "ride-9"}

	first, err := wallets.Adjust(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := wallets.Adjust(ctx, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.ID != second.ID {
		t.Errorf("expected the stored entry to be returned, got %s and %s", first.ID, second.ID)
	}
	assertBalance(t, repo, "user-1", "500")
}

func TestWallet_PaymentCannotOverdraw(t *testing.T) {
	wallets, _, repo := newWalletService()
	ctx := context.Background()
	repo.Fund("user-1", dec("1000"))

	_, err := wallets.Adjust(ctx, service.AdjustRequest{UserID: "user-1", Amount: dec("-1500"), Type: domain.EntryPayment, ReferenceID: "ride-1"})

	var funds *domain.InsufficientFundsError
	if !errors.As(err, &funds) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	assertBalance(t, repo, "user-1", "1000")
}

func TestWallet_RejectsInvalidAdjustments(t *testing.T) {
	wallets, _, _ := newWalletService()

	testCases := []struct {
		name string
		req  service.AdjustRequest
		want error
	}{
		{"missing user", service.AdjustRequest{Amount: dec("1"), Type: domain.EntryBonus}, service.ErrInvalidUserID},
		{"unknown type", service.AdjustRequest{UserID: "u", Amount: dec("1"), Type: "gift"}, service.ErrInvalidEntryType},
		{"initialization", service.AdjustRequest{UserID: "u", Amount: dec("1"), Type: domain.EntryInitialization}, service.ErrInvalidEntryType},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := wallets.Adjust(context.Background(), tc.req); err != tc.want {
				t.Errorf("expected %v, got %v", tc.want, err)
			}
		})
	}

	var validation *domain.TerminalValidationError
	_, err := wallets.Adjust(context.Background(), service.AdjustRequest{UserID: "u", Type: domain.EntryBonus})
	if !errors.As(err, &validation) {
		t.Errorf("expected validation error for zero amount, got %v", err)
	}
}

func TestWallet_ManualAdjustmentRequiresReason(t *testing.T) {
	wallets, _, _ := newWalletService()
	ctx := context.Background()

	if _, err := wallets.ManualAdjustment(ctx, service.ManualAdjustmentRequest{UserID: "user-1", Amount: dec("10")}); err != service.ErrInvalidReason {
		t.Errorf("expected ErrInvalidReason, got %v", err)
	}

	entry, err := wallets.ManualAdjustment(ctx, service.ManualAdjustmentRequest{
		UserID:  "user-1",
		Amount:  dec("10"),
		Reason:  "refund",
		AdminID: "admin-7",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Type != domain.EntryManualAdjustment || entry.Reason != "refund (by admin-7)" {
		t.Errorf("unexpected entry: %s %q", entry.Type, entry.Reason)
	}
}

func TestWallet_HistoryOfUnknownUserIsEmpty(t *testing.T) {
	wallets, _, _ := newWalletService()

	history, err := wallets.History(context.Background(), "nobody", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if history == nil || len(history) != 0 {
		t.Errorf("expected an empty list, got %v", history)
	}
}

func TestWithdrawal_ReservesPendingAmounts(t *testing.T) {
	wallets, _, repo := newWalletService()
	ctx := context.Background()
	repo.Fund("user-1", dec("1000"))

	if _, err := wallets.RequestWithdrawal(ctx, "user-1", dec("700")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := wallets.RequestWithdrawal(ctx, "user-1", dec("400"))
	var funds *domain.InsufficientFundsError
	if !errors.As(err, &funds) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if !funds.Available.Equal(dec("300")) {
		t.Errorf("expected 300 available, got %s", funds.Available)
	}
	assertBalance(t, repo, "user-1", "1000")
}

func TestWithdrawal_CompleteDebitsOnce(t *testing.T) {
	wallets, _, repo := newWalletService()
	ctx := context.Background()
	repo.Fund("user-1", dec("1000"))

	withdrawal, err := wallets.RequestWithdrawal(ctx, "user-1", dec("600"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	done, entry, err := wallets.CompleteWithdrawal(ctx, withdrawal.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if done.Status != domain.WithdrawalCompleted {
		t.Errorf("expected completed, got %s", done.Status)
	}
	if entry.Type != domain.EntryWithdrawal || entry.ReferenceID != withdrawal.ID {
		t.Errorf("unexpected entry: %s ref %s", entry.Type, entry.ReferenceID)
	}

	_, again, err := wallets.CompleteWithdrawal(ctx, withdrawal.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if again.ID != entry.ID {
		t.Errorf("expected the original entry, got %s", again.ID)
	}
	assertBalance(t, repo, "user-1", "400")
}

func TestWithdrawal_RejectedCannotComplete(t *testing.T) {
	wallets, _, repo := newWalletService()
	ctx := context.Background()
	repo.Fund("user-1", dec("1000"))

	withdrawal, _ := wallets.RequestWithdrawal(ctx, "user-1", dec("100"))
	if _, err := wallets.RejectWithdrawal(ctx, withdrawal.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, _, err := wallets.CompleteWithdrawal(ctx, withdrawal.ID); !errors.Is(err, repository.ErrStaleState) {
		t.Errorf("expected ErrStaleState, got %v", err)
	}
	if _, err := wallets.RejectWithdrawal(ctx, withdrawal.ID); !errors.Is(err, repository.ErrStaleState) {
		t.Errorf("expected ErrStaleState on second reject, got %v", err)
	}
	assertBalance(t, repo, "user-1", "1000")
}

func TestAudit_CleanLedgerHasNoMismatches(t *testing.T) {
	wallets, audit, repo := newWalletService()
	ctx := context.Background()
	repo.Fund("user-1", dec("100"))
	wallets.Adjust(ctx, service.AdjustRequest{UserID: "user-1", Amount: dec("-40"), Type: domain.EntryPayment, ReferenceID: "r1"})
	repo.Fund("user-2", dec("5"))

	report, err := audit.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.WalletsChecked != 2 {
		t.Errorf("expected 2 wallets checked, got %d", report.WalletsChecked)
	}
	if len(report.Mismatches) != 0 {
		t.Errorf("expected no mismatches, got %+v", report.Mismatches)
	}
}

func TestAudit_ReportsBalanceDrift(t *testing.T) {
	_, audit, repo := newWalletService()
	repo.Fund("user-1", dec("100"))
	repo.Corrupt("user-1", dec("90"))

	report, err := audit.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(report.Mismatches) != 1 {
		t.Fatalf("expected one mismatch, got %d", len(report.Mismatches))
	}
	m := report.Mismatches[0]
	if m.UserID != "user-1" || !m.Balance.Equal(dec("90")) || !m.EntrySum.Equal(dec("100")) {
		t.Errorf("unexpected mismatch: %+v", m)
	}
}
