package service

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
	"ridecore/internal/resilience"
)

// processorRetries bounds calls to the payment processor: at most two attempts.
const processorRetries = 1

var referencePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{4,64}$`)

// CheckoutRequest is sent to the processor to open a checkout.
type CheckoutRequest struct {
	RideID      string
	Amount      decimal.Decimal
	Reference   string
	Description string
}

// Checkout is the processor's answer to a CheckoutRequest.
type Checkout struct {
	ID          string
	RedirectURL string
}

// PaymentConfirmation is a verified payment reported by the processor.
type PaymentConfirmation struct {
	Reference     string
	TransactionID string
	Amount        decimal.Decimal
}

// Processor is the external payment processor.
type Processor interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
	// ParseWebhook verifies a webhook and returns the confirmed payment, or
	// nil for events that confirm nothing.
	ParseWebhook(payload []byte, signature string) (*PaymentConfirmation, error)
}

// PaymentConfirmer records a confirmed external payment in the ledger.
type PaymentConfirmer interface {
	ConfirmExternalPayment(ctx context.Context, rideID, transactionID string, amount decimal.Decimal) error
}

// Ensure SettlementService implements PaymentConfirmer.
var _ PaymentConfirmer = (*SettlementService)(nil)

// PaymentService handles external payment preferences.
type PaymentService struct {
	prefRepo  repository.PaymentPreferenceRepository
	rideRepo  repository.RideRepository
	processor Processor
	confirmer PaymentConfirmer
	executor  *resilience.Executor
	log       logrus.FieldLogger
}

// NewPaymentService creates a new PaymentService.
func NewPaymentService(
	prefRepo repository.PaymentPreferenceRepository,
	rideRepo repository.RideRepository,
	processor Processor,
	confirmer PaymentConfirmer,
	executor *resilience.Executor,
	log logrus.FieldLogger,
) *PaymentService {
	return &PaymentService{
		prefRepo:  prefRepo,
		rideRepo:  rideRepo,
		processor: processor,
		confirmer: confirmer,
		executor:  executor,
		log:       log.WithField("component", "payments"),
	}
}

// CreatePreferenceRequest contains the parameters for a payment preference.
type CreatePreferenceRequest struct {
	RideID    string
	Amount    decimal.Decimal
	Reference string
}

// CreatePreference opens a checkout at the processor and records it. The
// reference doubles as the idempotency key: repeating a request returns the
// stored preference without calling the processor again.
func (s *PaymentService) CreatePreference(ctx context.Context, req CreatePreferenceRequest) (*domain.PaymentPreference, error) {
	if req.RideID == "" {
		return nil, ErrInvalidRideID
	}
	if !req.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if !referencePattern.MatchString(req.Reference) {
		return nil, ErrInvalidReference
	}

	existing, err := s.findByReference(ctx, req.Reference)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return s.sameRequest(existing, req)
	}

	ride, err := resilience.Execute(ctx, s.executor, "ride.get", readRetries, func(ctx context.Context) (*domain.Ride, error) {
		return s.rideRepo.GetByID(ctx, req.RideID)
	})
	if err != nil {
		return nil, err
	}
	if ride.PaymentMethod != domain.PaymentMethodExternal {
		return nil, &domain.TerminalValidationError{Field: "payment_method", Message: "ride is not paid by external checkout"}
	}

	checkout, err := resilience.Execute(ctx, s.executor, "processor.create_checkout", processorRetries, func(ctx context.Context) (*Checkout, error) {
		return s.processor.CreateCheckout(ctx, CheckoutRequest{
			RideID:      ride.ID,
			Amount:      req.Amount,
			Reference:   req.Reference,
			Description: fmt.Sprintf("Ride %s", ride.ID),
		})
	})
	if err != nil {
		return nil, err
	}

	pref := &domain.PaymentPreference{
		ID:          uuid.New().String(),
		RideID:      ride.ID,
		Amount:      req.Amount,
		Reference:   req.Reference,
		ProcessorID: checkout.ID,
		RedirectURL: checkout.RedirectURL,
		Status:      domain.PreferenceStatusPending,
		CreatedAt:   time.Now().UTC(),
	}

	err = s.executor.Run(ctx, "payment_preference.create", noRetry, func(ctx context.Context) error {
		return s.prefRepo.Create(ctx, pref)
	})
	if err != nil {
		// A concurrent request with the same reference may have stored first.
		if winner, findErr := s.findByReference(ctx, req.Reference); findErr == nil && winner != nil {
			return s.sameRequest(winner, req)
		}
		return nil, err
	}

	s.log.WithFields(logrus.Fields{"ride_id": ride.ID, "reference": req.Reference}).Info("payment preference created")
	return pref, nil
}

// HandleWebhook verifies a processor webhook and settles the paid ride.
func (s *PaymentService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	confirmation, err := s.processor.ParseWebhook(payload, signature)
	if err != nil {
		return err
	}
	if confirmation == nil {
		return nil
	}

	pref, err := s.findByReference(ctx, confirmation.Reference)
	if err != nil {
		return err
	}
	if pref == nil {
		return repository.ErrNotFound
	}
	if pref.Status == domain.PreferenceStatusConfirmed {
		return nil
	}

	if err := s.confirmer.ConfirmExternalPayment(ctx, pref.RideID, confirmation.TransactionID, confirmation.Amount); err != nil {
		return err
	}

	err = s.executor.Run(ctx, "payment_preference.confirm", idempotentWriteRetries, func(ctx context.Context) error {
		return s.prefRepo.MarkConfirmed(ctx, pref.ID, confirmation.TransactionID)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{
		"ride_id":        pref.RideID,
		"transaction_id": confirmation.TransactionID,
	}).Info("external payment confirmed")
	return nil
}

func (s *PaymentService) findByReference(ctx context.Context, reference string) (*domain.PaymentPreference, error) {
	return resilience.Execute(ctx, s.executor, "payment_preference.get_by_reference", readRetries, func(ctx context.Context) (*domain.PaymentPreference, error) {
		return s.prefRepo.GetByReference(ctx, reference)
	})
}

// sameRequest returns existing when it was created for the same ride.
func (s *PaymentService) sameRequest(existing *domain.PaymentPreference, req CreatePreferenceRequest) (*domain.PaymentPreference, error) {
	if existing.RideID != req.RideID {
		return nil, &domain.ConflictError{
			Resource:   "payment_preference",
			ExistingID: existing.ID,
			Message:    "reference is already used by another ride",
		}
	}
	return existing, nil
}
