// Package processor adapts external payment processors to the payment service.
package processor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

const (
	processorName          = "stripe"
	eventCheckoutCompleted = "checkout.session.completed"
	checkoutPaymentPaid    = "paid"
)

// StripeConfig holds Stripe Checkout settings.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	Currency      string
	SuccessURL    string
	CancelURL     string
}

// StripeProcessor creates Stripe Checkout sessions and verifies their webhooks.
type StripeProcessor struct {
	client *client.API
	cfg    StripeConfig
}

// NewStripeProcessor creates a new StripeProcessor.
func NewStripeProcessor(cfg StripeConfig) *StripeProcessor {
	sc := &client.API{}
	sc.Init(cfg.SecretKey, nil)

	return &StripeProcessor{client: sc, cfg: cfg}
}

// CreateCheckout creates a one-item Checkout session. The reference is sent
// as the idempotency key so a retried call returns the same session.
func (p *StripeProcessor) CreateCheckout(ctx context.Context, req service.CheckoutRequest) (*service.Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Params:            stripe.Params{Context: ctx},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(p.cfg.SuccessURL),
		CancelURL:         stripe.String(p.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.Reference),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(p.cfg.Currency),
					UnitAmount: stripe.Int64(toMinorUnits(req.Amount)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(req.Description),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	params.SetIdempotencyKey(req.Reference)
	params.AddMetadata("ride_id", req.RideID)

	sess, err := p.client.CheckoutSessions.New(params)
	if err != nil {
		return nil, classify(err)
	}

	return &service.Checkout{ID: sess.ID, RedirectURL: sess.URL}, nil
}

// ParseWebhook verifies the signature and extracts a completed payment.
// Events other than a paid checkout return nil.
func (p *StripeProcessor) ParseWebhook(payload []byte, signature string) (*service.PaymentConfirmation, error) {
	event, err := webhook.ConstructEvent(payload, signature, p.cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", service.ErrWebhookSignature, err)
	}

	if string(event.Type) != eventCheckoutCompleted {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, &domain.TerminalValidationError{Field: "payload", Message: "malformed checkout session"}
	}
	if string(sess.PaymentStatus) != checkoutPaymentPaid {
		return nil, nil
	}

	transactionID := sess.ID
	if sess.PaymentIntent != nil && sess.PaymentIntent.ID != "" {
		transactionID = sess.PaymentIntent.ID
	}

	return &service.PaymentConfirmation{
		Reference:     sess.ClientReferenceID,
		TransactionID: transactionID,
		Amount:        decimal.New(sess.AmountTotal, -2),
	}, nil
}

// classify maps Stripe failures onto the error taxonomy. Server-side and rate
// limit failures are transient; everything else carries Stripe's detail.
func classify(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return &domain.TransientNetworkError{Op: "stripe.checkout", Err: err}
	}

	if stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
		return &domain.TransientNetworkError{Op: "stripe.checkout", Err: err}
	}

	return &domain.ExternalProcessorError{
		Processor: processorName,
		Code:      string(stripeErr.Code),
		Detail:    stripeErr.Msg,
		Err:       err,
	}
}

func toMinorUnits(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}
