package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecore/internal/connectivity"
)

// ConnectivityHandler exposes the connectivity monitor.
type ConnectivityHandler struct {
	monitor *connectivity.Monitor
}

// NewConnectivityHandler creates a new ConnectivityHandler.
func NewConnectivityHandler(monitor *connectivity.Monitor) *ConnectivityHandler {
	return &ConnectivityHandler{monitor: monitor}
}

// State handles GET /v1/health/connectivity
func (h *ConnectivityHandler) State(c *gin.Context) {
	state := h.monitor.State()
	code := http.StatusOK
	if !state.Online {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, state)
}

// Recheck handles POST /v1/health/connectivity/recheck
func (h *ConnectivityHandler) Recheck(c *gin.Context) {
	h.monitor.Recheck(c.Request.Context())
	h.State(c)
}
