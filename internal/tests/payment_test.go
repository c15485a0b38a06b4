package tests

import (
	"context"
	"errors"
	"testing"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
	"ridecore/internal/service"
)

type paymentHarness struct {
	*harness
	prefs          *MockPaymentPreferenceRepository
	processor      *MockProcessor
	paymentService *service.PaymentService
}

func newPaymentHarness(t *testing.T) *paymentHarness {
	h := newHarness(t, "0")
	ph := &paymentHarness{
		harness:   h,
		prefs:     NewMockPaymentPreferenceRepository(),
		processor: NewMockProcessor(),
	}
	ph.paymentService = service.NewPaymentService(ph.prefs, h.rides, ph.processor, h.settlementService, NewTestExecutor(), NewTestLogger())
	return ph
}

func TestCreatePreference_ValidatesReference(t *testing.T) {
	ph := newPaymentHarness(t)
	ph.storedRide("ride-ext", domain.PaymentMethodExternal, "1000")

	for _, ref := range []string{"", "abc", "has space", "semi;colon", "ñandú-1234"} {
		t.Run(ref, func(t *testing.T) {
			_, err := ph.paymentService.CreatePreference(context.Background(), service.CreatePreferenceRequest{
				RideID:    "ride-ext",
				Amount:    dec("1000"),
				Reference: ref,
			})
			if err != service.ErrInvalidReference {
				t.Errorf("expected ErrInvalidReference for %q, got %v", ref, err)
			}
		})
	}
}

func TestCreatePreference_SameReferenceReturnsStoredPreference(t *testing.T) {
	ph := newPaymentHarness(t)
	ph.storedRide("ride-ext", domain.PaymentMethodExternal, "1000")
	req := service.CreatePreferenceRequest{RideID: "ride-ext", Amount: dec("1000"), Reference: "ride-ext_attempt-1"}

	first, err := ph.paymentService.CreatePreference(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first.RedirectURL == "" || first.Status != domain.PreferenceStatusPending {
		t.Errorf("unexpected preference: %+v", first)
	}

	second, err := ph.paymentService.CreatePreference(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected stored preference %s, got %s", first.ID, second.ID)
	}
	if ph.processor.CreateCheckoutCallCount != 1 {
		t.Errorf("expected one processor call, got %d", ph.processor.CreateCheckoutCallCount)
	}
}

func TestCreatePreference_ReferenceOfAnotherRideConflicts(t *testing.T) {
	ph := newPaymentHarness(t)
	ph.storedRide("ride-a", domain.PaymentMethodExternal, "1000")
	ph.storedRide("ride-b", domain.PaymentMethodExternal, "1000")

	if _, err := ph.paymentService.CreatePreference(context.Background(), service.CreatePreferenceRequest{RideID: "ride-a", Amount: dec("1000"), Reference: "shared-ref"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	_, err := ph.paymentService.CreatePreference(context.Background(), service.CreatePreferenceRequest{RideID: "ride-b", Amount: dec("1000"), Reference: "shared-ref"})
	var conflict *domain.ConflictError
	if !errors.As(err, &conflict) {
		t.Errorf("expected ConflictError, got %v", err)
	}
}

func TestCreatePreference_RequiresExternalRide(t *testing.T) {
	ph := newPaymentHarness(t)
	ph.storedRide("ride-cash", domain.PaymentMethodCash, "1000")

	_, err := ph.paymentService.CreatePreference(context.Background(), service.CreatePreferenceRequest{RideID: "ride-cash", Amount: dec("1000"), Reference: "ref-cash"})
	var validation *domain.TerminalValidationError
	if !errors.As(err, &validation) {
		t.Errorf("expected validation error, got %v", err)
	}
}

func TestCreatePreference_ProcessorRetriedOnceOnTransientFailure(t *testing.T) {
	ph := newPaymentHarness(t)
	ph.storedRide("ride-ext", domain.PaymentMethodExternal, "1000")
	transient := &domain.TransientNetworkError{Op: "stripe", Err: errors.New("503")}
	ph.processor.CreateCheckoutErrors = []error{transient, transient}

	_, err := ph.paymentService.CreatePreference(context.Background(), service.CreatePreferenceRequest{RideID: "ride-ext", Amount: dec("1000"), Reference: "ref-retry"})

	var got *domain.TransientNetworkError
	if !errors.As(err, &got) {
		t.Fatalf("expected TransientNetworkError, got %v", err)
	}
	if ph.processor.CreateCheckoutCallCount != 2 {
		t.Errorf("expected two attempts, got %d", ph.processor.CreateCheckoutCallCount)
	}
}

func TestHandleWebhook_SettlesRideOnce(t *testing.T) {
	ph := newPaymentHarness(t)
	ctx := context.Background()
	ride := ph.storedRide("ride-ext", domain.PaymentMethodExternal, "1000")
	ph.completeStored(t, ride, "1000")
	if err := ph.settlementService.Settle(ctx, ride.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}

	pref, err := ph.paymentService.CreatePreference(ctx, service.CreatePreferenceRequest{RideID: ride.ID, Amount: dec("1000"), Reference: "ref-paid"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ph.processor.Confirmation = &service.PaymentConfirmation{Reference: "ref-paid", TransactionID: "pi_1", Amount: dec("1000")}

	for i := 0; i < 2; i++ {
		if err := ph.paymentService.HandleWebhook(ctx, []byte(`{}`), "valid"); err != nil {
			t.Fatalf("webhook #%d: %v", i+1, err)
		}
	}

	stored, _ := ph.prefs.GetByID(ctx, pref.ID)
	if stored.Status != domain.PreferenceStatusConfirmed || stored.TransactionID != "pi_1" {
		t.Errorf("expected confirmed preference, got %+v", stored)
	}
	assertBalance(t, ph.wallets, driverID, "800")
	assertBalance(t, ph.wallets, passengerID, "0")
}

func TestHandleWebhook_RejectsBadSignatureAndUnknownReference(t *testing.T) {
	ph := newPaymentHarness(t)
	ctx := context.Background()

	if err := ph.paymentService.HandleWebhook(ctx, []byte(`{}`), "forged"); err != service.ErrWebhookSignature {
		t.Errorf("expected ErrWebhookSignature, got %v", err)
	}

	ph.processor.Confirmation = &service.PaymentConfirmation{Reference: "ref-unknown", TransactionID: "pi_2", Amount: dec("10")}
	if err := ph.paymentService.HandleWebhook(ctx, []byte(`{}`), "valid"); !errors.Is(err, repository.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	ph.processor.Confirmation = nil
	if err := ph.paymentService.HandleWebhook(ctx, []byte(`{}`), "valid"); err != nil {
		t.Errorf("expected unrelated events to be ignored, got %v", err)
	}
}
