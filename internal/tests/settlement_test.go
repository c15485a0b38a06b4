package tests

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ridecore/internal/domain"
	"ridecore/internal/events"
	"ridecore/internal/repository"
	"ridecore/internal/service"
)

// completeStored moves a stored ride to completed with a pending settlement,
// the way CompleteRide leaves it before settling.
func (h *harness) completeStored(t *testing.T, ride *domain.Ride, fare string) {
	t.Helper()
	next := *ride
	if err := next.Transition(domain.RideStatusCompleted, ride.UpdatedAt); err != nil {
		t.Fatalf("transition: %v", err)
	}
	f := dec(fare)
	next.FareActual = &f
	next.SettlementStatus = domain.SettlementPending
	h.rides.AddRide(&next)
	*ride = next
}

func TestSplit_RoundsCommissionToCents(t *testing.T) {
	h := newHarness(t, "0")

	commission, share := h.settlementService.Split(dec("1234.57"))
	if !commission.Equal(dec("246.91")) {
		t.Errorf("expected commission 246.91, got %s", commission)
	}
	if !share.Equal(dec("987.66")) {
		t.Errorf("expected driver share 987.66, got %s", share)
	}
}

func TestSettle_WalletRideMovesMoneyOnce(t *testing.T) {
	h := newHarness(t, "0")
	ctx := context.Background()
	h.wallets.Fund(passengerID, dec("2000"))

	ride := h.storedRide("ride-w", domain.PaymentMethodWallet, "1500")
	h.completeStored(t, ride, "1500")

	for i := 0; i < 2; i++ {
		if err := h.settlementService.Settle(ctx, ride.ID); err != nil {
			t.Fatalf("settle #%d: %v", i+1, err)
		}
	}

	assertBalance(t, h.wallets, passengerID, "500")
	assertBalance(t, h.wallets, driverID, "1200")
	if n := len(h.wallets.EntriesFor(driverID)); n != 1 {
		t.Errorf("expected one driver entry, got %d", n)
	}
	// One funding recharge plus one payment.
	if n := len(h.wallets.EntriesFor(passengerID)); n != 2 {
		t.Errorf("expected two passenger entries, got %d", n)
	}

	stored, _ := h.rides.GetByID(ctx, ride.ID)
	if stored.SettlementStatus != domain.SettlementSettled {
		t.Errorf("expected settled, got %s", stored.SettlementStatus)
	}
}

func TestSettle_ConcurrentCallsDoNotDuplicateEntries(t *testing.T) {
	h := newHarness(t, "0")
	h.wallets.Fund(passengerID, dec("5000"))
	ride := h.storedRide("ride-c", domain.PaymentMethodWallet, "1000")
	h.completeStored(t, ride, "1000")

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := h.settlementService.Settle(context.Background(), ride.ID)
			if err != nil && err != service.ErrSettlementInProgress {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	// Whatever interleaving happened, the ride is now settled exactly once.
	if err := h.settlementService.Settle(context.Background(), ride.ID); err != nil {
		t.Fatalf("final settle: %v", err)
	}
	assertBalance(t, h.wallets, passengerID, "4000")
	assertBalance(t, h.wallets, driverID, "800")
}

func TestSettle_InsufficientFundsWritesNothing(t *testing.T) {
	h := newHarness(t, "0")
	ctx := context.Background()
	h.wallets.Fund(passengerID, dec("1000"))

	ride := h.storedRide("ride-poor", domain.PaymentMethodWallet, "1500")
	h.completeStored(t, ride, "1500")

	err := h.settlementService.Settle(ctx, ride.ID)

	var funds *domain.InsufficientFundsError
	if !errors.As(err, &funds) {
		t.Fatalf("expected InsufficientFundsError, got %v", err)
	}
	if !funds.Available.Equal(dec("1000")) || !funds.Requested.Equal(dec("1500")) {
		t.Errorf("unexpected amounts in error: %+v", funds)
	}
	assertBalance(t, h.wallets, passengerID, "1000")
	if n := len(h.wallets.EntriesFor(driverID)); n != 0 {
		t.Errorf("expected no driver entries, got %d", n)
	}

	stored, _ := h.rides.GetByID(ctx, ride.ID)
	if stored.SettlementStatus != domain.SettlementReconciliationRequired {
		t.Errorf("expected reconciliation_required, got %s", stored.SettlementStatus)
	}
}

func TestSettle_DriverCreditFailureFlagsReconciliation(t *testing.T) {
	h := newHarness(t, "0")
	ctx := context.Background()
	h.wallets.Fund(passengerID, dec("2000"))
	h.wallets.FailAdjust = func(p repository.AdjustParams) error {
		if p.UserID == driverID {
			return errors.New("ledger write rejected")
		}
		return nil
	}

	ride := h.storedRide("ride-half", domain.PaymentMethodWallet, "1000")
	h.completeStored(t, ride, "1000")

	err := h.settlementService.Settle(ctx, ride.ID)

	var partial *domain.SettlementPartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected SettlementPartialFailureError, got %v", err)
	}
	if partial.Step != service.StepDriverEarning {
		t.Errorf("expected step %s, got %s", service.StepDriverEarning, partial.Step)
	}

	flags, _ := h.reconciliation.ListOpen(ctx)
	if len(flags) != 1 || flags[0].RideID != ride.ID {
		t.Fatalf("expected one open flag for %s, got %+v", ride.ID, flags)
	}
	if h.publisher.Count(events.ReconciliationRequired) != 1 {
		t.Errorf("expected one reconciliation event, got %d", h.publisher.Count(events.ReconciliationRequired))
	}

	// Flagged rides are left to an operator.
	h.wallets.FailAdjust = nil
	if err := h.settlementService.Settle(ctx, ride.ID); err != service.ErrSettlementNeedsReconciliation {
		t.Errorf("expected ErrSettlementNeedsReconciliation, got %v", err)
	}
	assertBalance(t, h.wallets, driverID, "0")
}

func TestSettle_CashRideCreditsDriverShareAndDebitsCashInHand(t *testing.T) {
	testCases := []struct {
		name        string
		fare        string
		cash        *string
		wantEntries []domain.EntryType
		wantBalance string
	}{
		{"full cash owes commission", "1000", nil, []domain.EntryType{domain.EntryEarning, domain.EntryFee}, "-200"},
		{"partial cash earns remainder", "1000", strPtr("300"), []domain.EntryType{domain.EntryEarning, domain.EntryFee}, "500"},
		{"no cash collected earns full share", "1000", strPtr("0"), []domain.EntryType{domain.EntryEarning}, "800"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, "0")
			ride := h.storedRide("ride-cash", domain.PaymentMethodCash, tc.fare)
			h.completeStored(t, ride, tc.fare)
			if tc.cash != nil {
				stored, _ := h.rides.GetByID(context.Background(), ride.ID)
				stored.DriverCashReceived = ptr(dec(*tc.cash))
				h.rides.AddRide(stored)
			}

			if err := h.settlementService.Settle(context.Background(), ride.ID); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			entries := h.wallets.EntriesFor(driverID)
			if len(entries) != len(tc.wantEntries) {
				t.Fatalf("expected %d driver entries, got %d", len(tc.wantEntries), len(entries))
			}
			for i, want := range tc.wantEntries {
				if entries[i].Type != want || entries[i].ReferenceID != ride.ID {
					t.Errorf("entry %d: expected %s referencing %s, got %s referencing %s", i, want, ride.ID, entries[i].Type, entries[i].ReferenceID)
				}
			}
			if !entries[0].Amount.Equal(dec("800")) {
				t.Errorf("expected earning of the commission-adjusted share 800, got %s", entries[0].Amount)
			}
			assertBalance(t, h.wallets, driverID, tc.wantBalance)

			if n := len(h.wallets.EntriesFor(passengerID)); n != 0 {
				t.Errorf("expected no passenger entries for cash, got %d", n)
			}
			if h.publisher.Count(events.CashSettled) != 1 {
				t.Errorf("expected one cash settlement note, got %d", h.publisher.Count(events.CashSettled))
			}
		})
	}
}

func TestSettle_CashRideSettledTwiceWritesOnce(t *testing.T) {
	h := newHarness(t, "0")
	ctx := context.Background()
	ride := h.storedRide("ride-cash", domain.PaymentMethodCash, "1000")
	h.completeStored(t, ride, "1000")

	for i := 0; i < 2; i++ {
		if err := h.settlementService.Settle(ctx, ride.ID); err != nil {
			t.Fatalf("settle #%d: %v", i+1, err)
		}
	}

	if n := len(h.wallets.EntriesFor(driverID)); n != 2 {
		t.Errorf("expected 2 driver entries, got %d", n)
	}
	if h.publisher.Count(events.CashSettled) != 1 {
		t.Errorf("expected one cash settlement note, got %d", h.publisher.Count(events.CashSettled))
	}
}

func TestSettle_CashCollectedFailureFlagsReconciliation(t *testing.T) {
	h := newHarness(t, "0")
	ctx := context.Background()
	h.wallets.FailAdjust = func(p repository.AdjustParams) error {
		if p.Type == domain.EntryFee {
			return errors.New("ledger write rejected")
		}
		return nil
	}

	ride := h.storedRide("ride-cash", domain.PaymentMethodCash, "1000")
	h.completeStored(t, ride, "1000")

	err := h.settlementService.Settle(ctx, ride.ID)

	var partial *domain.SettlementPartialFailureError
	if !errors.As(err, &partial) {
		t.Fatalf("expected SettlementPartialFailureError, got %v", err)
	}
	if partial.Step != service.StepDriverCashCollected {
		t.Errorf("expected step %s, got %s", service.StepDriverCashCollected, partial.Step)
	}
	assertBalance(t, h.wallets, driverID, "800")

	stored, _ := h.rides.GetByID(ctx, ride.ID)
	if stored.SettlementStatus != domain.SettlementReconciliationRequired {
		t.Errorf("expected reconciliation_required, got %s", stored.SettlementStatus)
	}
}

func TestSettle_ExternalRideWaitsForProcessor(t *testing.T) {
	h := newHarness(t, "0")
	ctx := context.Background()
	ride := h.storedRide("ride-ext", domain.PaymentMethodExternal, "1000")
	h.completeStored(t, ride, "1000")

	if err := h.settlementService.Settle(ctx, ride.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	stored, _ := h.rides.GetByID(ctx, ride.ID)
	if stored.SettlementStatus != domain.SettlementAwaitingProcessor {
		t.Fatalf("expected awaiting_processor, got %s", stored.SettlementStatus)
	}

	for i := 0; i < 2; i++ {
		if err := h.settlementService.ConfirmExternalPayment(ctx, ride.ID, "pi_123", dec("1000")); err != nil {
			t.Fatalf("confirm #%d: %v", i+1, err)
		}
	}

	assertBalance(t, h.wallets, passengerID, "0")
	assertBalance(t, h.wallets, driverID, "800")
	if n := len(h.wallets.EntriesFor(passengerID)); n != 2 {
		t.Errorf("expected recharge and payment entries, got %d", n)
	}
	stored, _ = h.rides.GetByID(ctx, ride.ID)
	if stored.SettlementStatus != domain.SettlementSettled || stored.ExternalPaymentRef != "pi_123" {
		t.Errorf("expected settled with ref pi_123, got %s/%s", stored.SettlementStatus, stored.ExternalPaymentRef)
	}
}

func TestSettle_NonTerminalRideIsRejected(t *testing.T) {
	h := newHarness(t, "0")
	ride := h.storedRide("ride-live", domain.PaymentMethodWallet, "1000")
	h.rides.UpdateSettlement(context.Background(), ride.ID, domain.SettlementPending, "")

	if err := h.settlementService.Settle(context.Background(), ride.ID); err != service.ErrRideNotSettleable {
		t.Errorf("expected ErrRideNotSettleable, got %v", err)
	}
}

func TestSettle_HeldLockReportsInProgress(t *testing.T) {
	h := newHarness(t, "0")
	ride := h.storedRide("ride-locked", domain.PaymentMethodCash, "1000")
	h.completeStored(t, ride, "1000")
	h.locks.Hold(ride.ID)

	if err := h.settlementService.Settle(context.Background(), ride.ID); err != service.ErrSettlementInProgress {
		t.Errorf("expected ErrSettlementInProgress, got %v", err)
	}
}

func TestRedrivePending_SettlesLeftoverRides(t *testing.T) {
	h := newHarness(t, "0")
	ctx := context.Background()
	h.wallets.Fund(passengerID, dec("100"))

	ok := h.storedRide("ride-a", domain.PaymentMethodCash, "1000")
	h.completeStored(t, ok, "1000")
	poor := h.storedRide("ride-b", domain.PaymentMethodWallet, "1000")
	h.completeStored(t, poor, "1000")

	report, err := h.settlementService.RedrivePending(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Attempted != 2 || report.Settled != 1 || report.Failed != 1 {
		t.Errorf("unexpected report: %+v", report)
	}

	// The failed ride is now flagged and is not picked up again.
	report, _ = h.settlementService.RedrivePending(ctx)
	if report.Attempted != 0 {
		t.Errorf("expected nothing left to re-drive, got %+v", report)
	}
}

func strPtr(s string) *string {
	return &s
}
