package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// CreateRideRequest is the HTTP request body for creating a ride.
type CreateRideRequest struct {
	PassengerID   string          `json:"passenger_id"`
	Type          string          `json:"type,omitempty"`           // immediate, scheduled, package, shared
	PaymentMethod string          `json:"payment_method,omitempty"` // cash, wallet, external
	FareEstimated decimal.Decimal `json:"fare_estimated"`
}

// DriverActionRequest is the HTTP request body for driver-driven transitions.
type DriverActionRequest struct {
	DriverID string `json:"driver_id"`
}

// CompleteRideRequest is the HTTP request body for completing a ride.
type CompleteRideRequest struct {
	DriverID           string           `json:"driver_id"`
	ActualFare         decimal.Decimal  `json:"actual_fare"`
	DriverCashReceived *decimal.Decimal `json:"driver_cash_received,omitempty"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	CancelledBy string `json:"cancelled_by"`
	Reason      string `json:"reason,omitempty"`
}

// RideResponse is the HTTP response for ride data.
type RideResponse struct {
	ID                 string           `json:"id"`
	Type               string           `json:"type"`
	Status             string           `json:"status"`
	PassengerID        string           `json:"passenger_id"`
	DriverID           string           `json:"driver_id,omitempty"`
	PaymentMethod      string           `json:"payment_method"`
	FareEstimated      decimal.Decimal  `json:"fare_estimated"`
	FareActual         *decimal.Decimal `json:"fare_actual,omitempty"`
	DriverCashReceived *decimal.Decimal `json:"driver_cash_received,omitempty"`
	CancellationFee    *decimal.Decimal `json:"cancellation_fee,omitempty"`
	CancelledBy        string           `json:"cancelled_by,omitempty"`
	CancelReason       string           `json:"cancel_reason,omitempty"`
	CancelledAt        string           `json:"cancelled_at,omitempty"`
	CompletedAt        string           `json:"completed_at,omitempty"`
	SettlementStatus   string           `json:"settlement_status"`
	SettlementError    string           `json:"settlement_error,omitempty"`
	CreatedAt          string           `json:"created_at"`
}

func toRideResponse(ride *domain.Ride) RideResponse {
	resp := RideResponse{
		ID:                 ride.ID,
		Type:               string(ride.Type),
		Status:             string(ride.Status),
		PassengerID:        ride.PassengerID,
		DriverID:           ride.DriverID,
		PaymentMethod:      string(ride.PaymentMethod),
		FareEstimated:      ride.FareEstimated,
		FareActual:         ride.FareActual,
		DriverCashReceived: ride.DriverCashReceived,
		CancelledBy:        ride.CancelledBy,
		CancelReason:       ride.CancelReason,
		SettlementStatus:   string(ride.SettlementStatus),
		CreatedAt:          ride.CreatedAt.Format(time.RFC3339),
	}
	if ride.CancellationFee.IsPositive() {
		fee := ride.CancellationFee
		resp.CancellationFee = &fee
	}
	if !ride.CancelledAt.IsZero() {
		resp.CancelledAt = ride.CancelledAt.Format(time.RFC3339)
	}
	if !ride.CompletedAt.IsZero() {
		resp.CompletedAt = ride.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.CreateRide(c.Request.Context(), service.CreateRideRequest{
		PassengerID:   req.PassengerID,
		Type:          domain.RideType(req.Type),
		PaymentMethod: domain.PaymentMethod(req.PaymentMethod),
		FareEstimated: req.FareEstimated,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// AssignDriver handles POST /v1/rides/:id/assign
func (h *RideHandler) AssignDriver(c *gin.Context) {
	h.driverAction(c, h.rideService.AssignDriver)
}

// MarkArriving handles POST /v1/rides/:id/arriving
func (h *RideHandler) MarkArriving(c *gin.Context) {
	h.driverAction(c, h.rideService.MarkArriving)
}

// MarkArrived handles POST /v1/rides/:id/arrived
func (h *RideHandler) MarkArrived(c *gin.Context) {
	h.driverAction(c, h.rideService.MarkArrived)
}

// StartRide handles POST /v1/rides/:id/start
func (h *RideHandler) StartRide(c *gin.Context) {
	h.driverAction(c, h.rideService.StartRide)
}

// CompleteRide handles POST /v1/rides/:id/complete
//
// A ride that completed but whose settlement did not finish is still a 200:
// the response carries the settlement status and the reason.
func (h *RideHandler) CompleteRide(c *gin.Context) {
	var req CompleteRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.CompleteRide(c.Request.Context(), service.CompleteRideRequest{
		RideID:             c.Param("id"),
		DriverID:           req.DriverID,
		ActualFare:         req.ActualFare,
		DriverCashReceived: req.DriverCashReceived,
	})
	h.respondTerminal(c, ride, err)
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	var req CancelRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.CancelRide(c.Request.Context(), service.CancelRideRequest{
		RideID:      c.Param("id"),
		CancelledBy: req.CancelledBy,
		Reason:      req.Reason,
	})
	h.respondTerminal(c, ride, err)
}

// AdminCancelRide handles POST /v1/admin/rides/:id/cancel
func (h *RideHandler) AdminCancelRide(c *gin.Context) {
	var req CancelRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.CancelRide(c.Request.Context(), service.CancelRideRequest{
		RideID:      c.Param("id"),
		CancelledBy: req.CancelledBy,
		Reason:      req.Reason,
		Admin:       true,
	})
	h.respondTerminal(c, ride, err)
}

func (h *RideHandler) driverAction(c *gin.Context, action func(ctx context.Context, rideID, driverID string) (*domain.Ride, error)) {
	var req DriverActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := action(c.Request.Context(), c.Param("id"), req.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// respondTerminal answers a completion or cancellation. The ride is nil only
// when the transition itself failed.
func (h *RideHandler) respondTerminal(c *gin.Context, ride *domain.Ride, err error) {
	if ride == nil {
		respondError(c, err)
		return
	}

	resp := toRideResponse(ride)
	if err != nil {
		_ = c.Error(err)
		resp.SettlementError = domain.UserMessage(err)
	}
	respondJSON(c, http.StatusOK, resp)
}
