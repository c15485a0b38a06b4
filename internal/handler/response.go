package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecore/internal/domain"
	"ridecore/internal/repository"
	"ridecore/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error      string `json:"error"`
	ExistingID string `json:"existing_id,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)

	resp := ErrorResponse{Error: errorMessage(err, code)}
	var conflict *domain.ConflictError
	if errors.As(err, &conflict) {
		resp.ExistingID = conflict.ExistingID
	}

	_ = c.Error(err)
	c.JSON(code, resp)
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// errorMessage returns the user-facing message for err. Client errors outside
// the taxonomy keep their own text; server errors never leak internals.
func errorMessage(err error, code int) string {
	msg := domain.UserMessage(err)
	if msg == domain.DefaultUserMessage && code < http.StatusInternalServerError {
		return err.Error()
	}
	return msg
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	var (
		partial    *domain.SettlementPartialFailureError
		validation *domain.TerminalValidationError
		conflict   *domain.ConflictError
		terminal   *domain.AlreadyTerminalError
		transition *domain.InvalidTransitionError
		funds      *domain.InsufficientFundsError
		processor  *domain.ExternalProcessorError
		transient  *domain.TransientNetworkError
	)

	switch {
	// Half-applied settlement, flagged for an operator
	case errors.As(err, &partial):
		return http.StatusInternalServerError

	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.As(err, &validation),
		errors.Is(err, service.ErrWebhookSignature):
		return http.StatusBadRequest

	// Forbidden/Business rule errors
	case errors.Is(err, service.ErrDriverNotAssignedToRide),
		errors.Is(err, service.ErrNotRideParticipant):
		return http.StatusForbidden

	// Payment required
	case errors.As(err, &funds):
		return http.StatusPaymentRequired

	// Conflict errors
	case errors.As(err, &conflict),
		errors.As(err, &terminal),
		errors.As(err, &transition),
		errors.Is(err, repository.ErrStaleState),
		errors.Is(err, service.ErrDriverHasActiveRide),
		errors.Is(err, service.ErrDriverOffline),
		errors.Is(err, service.ErrSettlementInProgress),
		errors.Is(err, service.ErrRideNotSettleable),
		errors.Is(err, service.ErrRideNotAwaitingPayment),
		errors.Is(err, service.ErrSettlementNeedsReconciliation),
		errors.Is(err, service.ErrVerificationExpired),
		errors.Is(err, service.ErrVerificationResolved):
		return http.StatusConflict

	// Processor rejected the call
	case errors.As(err, &processor):
		return http.StatusBadGateway

	// Service unavailable
	case errors.As(err, &transient):
		return http.StatusServiceUnavailable

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
