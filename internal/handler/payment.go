package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ridecore/internal/service"
)

const (
	stripeSignatureHeader = "Stripe-Signature"
	maxWebhookBody        = 64 << 10
)

// PaymentHandler handles HTTP requests for external payments.
type PaymentHandler struct {
	paymentService *service.PaymentService
}

// NewPaymentHandler creates a new PaymentHandler.
func NewPaymentHandler(paymentService *service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

// CreatePreferenceRequest is the HTTP request body for a payment preference.
type CreatePreferenceRequest struct {
	RideID    string          `json:"ride_id"`
	Amount    decimal.Decimal `json:"amount"`
	Reference string          `json:"reference"`
}

// PreferenceResponse is the HTTP response for payment preferences.
type PreferenceResponse struct {
	ID          string          `json:"id"`
	RideID      string          `json:"ride_id"`
	Amount      decimal.Decimal `json:"amount"`
	Reference   string          `json:"reference"`
	RedirectURL string          `json:"redirect_url"`
	Status      string          `json:"status"`
	CreatedAt   string          `json:"created_at"`
}

// CreatePreference handles POST /v1/payments/preferences
func (h *PaymentHandler) CreatePreference(c *gin.Context) {
	var req CreatePreferenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	pref, err := h.paymentService.CreatePreference(c.Request.Context(), service.CreatePreferenceRequest{
		RideID:    req.RideID,
		Amount:    req.Amount,
		Reference: req.Reference,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, PreferenceResponse{
		ID:          pref.ID,
		RideID:      pref.RideID,
		Amount:      pref.Amount,
		Reference:   pref.Reference,
		RedirectURL: pref.RedirectURL,
		Status:      string(pref.Status),
		CreatedAt:   pref.CreatedAt.Format(time.RFC3339),
	})
}

// StripeWebhook handles POST /v1/payments/webhooks/stripe
func (h *PaymentHandler) StripeWebhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
		return
	}

	if err := h.paymentService.HandleWebhook(c.Request.Context(), payload, c.GetHeader(stripeSignatureHeader)); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusOK)
}
