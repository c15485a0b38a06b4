package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

// SettingsHandler handles HTTP requests for settings.
type SettingsHandler struct {
	settingsService *service.SettingsService
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(settingsService *service.SettingsService) *SettingsHandler {
	return &SettingsHandler{settingsService: settingsService}
}

// ScheduleBody is the schedule as exchanged over HTTP.
type ScheduleBody struct {
	Mode            string `json:"mode"`
	IntervalMinutes int    `json:"interval_minutes"`
}

// GetSchedule handles GET /v1/settings/schedule
func (h *SettingsHandler) GetSchedule(c *gin.Context) {
	settings, err := h.settingsService.GetSchedule(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ScheduleBody{Mode: string(settings.Mode), IntervalMinutes: settings.IntervalMinutes})
}

// PutSchedule handles PUT /v1/admin/settings/schedule
func (h *SettingsHandler) PutSchedule(c *gin.Context) {
	var req ScheduleBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	settings, err := h.settingsService.SaveSchedule(c.Request.Context(), domain.ScheduleSettings{
		Mode:            domain.ScheduleMode(req.Mode),
		IntervalMinutes: req.IntervalMinutes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ScheduleBody{Mode: string(settings.Mode), IntervalMinutes: settings.IntervalMinutes})
}
