package tests

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

const (
	passengerID = "passenger-1"
	driverID    = "driver-1"
)

// harness wires the ride, wallet and settlement services over in-memory mocks.
type harness struct {
	rides          *MockRideRepository
	drivers        *MockDriverRepository
	wallets        *MockWalletRepository
	reconciliation *MockReconciliationRepository
	locks          *MockLockStore
	publisher      *MockPublisher

	walletService     *service.WalletService
	settlementService *service.SettlementService
	rideService       *service.RideService
}

func newHarness(t *testing.T, cancellationFee string) *harness {
	t.Helper()
	log := NewTestLogger()
	executor := NewTestExecutor()

	h := &harness{
		rides:          NewMockRideRepository(),
		drivers:        NewMockDriverRepository(),
		wallets:        NewMockWalletRepository(),
		reconciliation: NewMockReconciliationRepository(),
		locks:          NewMockLockStore(),
		publisher:      NewMockPublisher(),
	}
	h.rides.Drivers = h.drivers
	h.drivers.AddDriver(&domain.Driver{ID: driverID, Name: "Ana", Status: domain.DriverStatusOnline})

	notifications := service.NewNotificationService(h.publisher, log)
	h.walletService = service.NewWalletService(h.wallets, executor, log)
	h.settlementService = service.NewSettlementService(
		h.rides, h.reconciliation, h.walletService, h.locks, executor, notifications,
		service.SettlementConfig{
			CommissionRate:    dec("0.20"),
			CancellationShare: dec("0.50"),
		},
		log,
	)
	h.rideService = service.NewRideService(
		h.rides, h.drivers, h.settlementService,
		service.FixedCancellationFee{Amount: dec(cancellationFee)},
		executor, notifications, log,
	)
	return h
}

// rideIn creates a ride and drives it to status with driverID assigned.
func (h *harness) rideIn(t *testing.T, method domain.PaymentMethod, fare string, status domain.RideStatus) *domain.Ride {
	t.Helper()
	ctx := context.Background()

	ride, err := h.rideService.CreateRide(ctx, service.CreateRideRequest{
		PassengerID:   passengerID,
		PaymentMethod: method,
		FareEstimated: dec(fare),
	})
	if err != nil {
		t.Fatalf("create ride: %v", err)
	}

	steps := []struct {
		to domain.RideStatus
		fn func(context.Context, string, string) (*domain.Ride, error)
	}{
		{domain.RideStatusDriverAssigned, h.rideService.AssignDriver},
		{domain.RideStatusDriverArriving, h.rideService.MarkArriving},
		{domain.RideStatusDriverArrived, h.rideService.MarkArrived},
		{domain.RideStatusInProgress, h.rideService.StartRide},
	}
	for _, step := range steps {
		if ride.Status == status {
			break
		}
		ride, err = step.fn(ctx, ride.ID, driverID)
		if err != nil {
			t.Fatalf("advance to %s: %v", step.to, err)
		}
	}
	if ride.Status != status {
		t.Fatalf("expected ride in %s, got %s", status, ride.Status)
	}
	return ride
}

// storedRide returns an in-progress ride inserted directly into the repository.
func (h *harness) storedRide(id string, method domain.PaymentMethod, fare string) *domain.Ride {
	now := time.Now().UTC()
	ride := &domain.Ride{
		ID:               id,
		Type:             domain.RideTypeImmediate,
		Status:           domain.RideStatusInProgress,
		PassengerID:      passengerID,
		DriverID:         driverID,
		PaymentMethod:    method,
		FareEstimated:    dec(fare),
		SettlementStatus: domain.SettlementNone,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	h.rides.AddRide(ride)
	return ride
}

func ptr(d decimal.Decimal) *decimal.Decimal {
	return &d
}

func assertBalance(t *testing.T, wallets *MockWalletRepository, userID, want string) {
	t.Helper()
	if got := wallets.Balance(userID); !got.Equal(dec(want)) {
		t.Errorf("expected %s balance %s, got %s", userID, want, got.StringFixed(2))
	}
}
