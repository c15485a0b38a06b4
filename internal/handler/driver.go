package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

// DriverHandler handles HTTP requests for drivers.
type DriverHandler struct {
	driverService *service.DriverService
	rideService   *service.RideService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverService *service.DriverService, rideService *service.RideService) *DriverHandler {
	return &DriverHandler{
		driverService: driverService,
		rideService:   rideService,
	}
}

// RegisterDriverRequest is the HTTP request body for driver registration.
type RegisterDriverRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// AvailabilityRequest is the HTTP request body for switching availability.
type AvailabilityRequest struct {
	Status string `json:"status"` // ONLINE or OFFLINE
}

// DriverResponse is the HTTP response for driver data.
type DriverResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Status       string `json:"status"`
	ActiveRideID string `json:"active_ride_id,omitempty"`
}

func toDriverResponse(d *domain.Driver) DriverResponse {
	return DriverResponse{
		ID:           d.ID,
		Name:         d.Name,
		Phone:        d.Phone,
		Status:       string(d.Status),
		ActiveRideID: d.ActiveRideID,
	}
}

// Register handles POST /v1/drivers
func (h *DriverHandler) Register(c *gin.Context) {
	var req RegisterDriverRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	driver, err := h.driverService.RegisterDriver(c.Request.Context(), service.RegisterDriverRequest{
		Name:  req.Name,
		Phone: req.Phone,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toDriverResponse(driver))
}

// GetAll handles GET /v1/drivers
func (h *DriverHandler) GetAll(c *gin.Context) {
	drivers, err := h.driverService.ListDrivers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]DriverResponse, 0, len(drivers))
	for _, d := range drivers {
		response = append(response, toDriverResponse(d))
	}

	c.JSON(http.StatusOK, response)
}

// GetDriver handles GET /v1/drivers/:id
func (h *DriverHandler) GetDriver(c *gin.Context) {
	driver, err := h.driverService.GetDriver(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDriverResponse(driver))
}

// SetAvailability handles PUT /v1/drivers/:id/availability
func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	if err := h.driverService.SetAvailability(c.Request.Context(), c.Param("id"), domain.DriverStatus(req.Status)); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GetActiveRide handles GET /v1/drivers/:id/active-ride
func (h *DriverHandler) GetActiveRide(c *gin.Context) {
	ride, err := h.rideService.GetActiveRideForDriver(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	if ride == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "driver has no active ride"})
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}
