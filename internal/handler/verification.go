package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

// VerificationHandler handles HTTP requests for verification requests.
type VerificationHandler struct {
	verificationService *service.VerificationService
}

// NewVerificationHandler creates a new VerificationHandler.
func NewVerificationHandler(verificationService *service.VerificationService) *VerificationHandler {
	return &VerificationHandler{verificationService: verificationService}
}

// CreateVerificationRequest is the HTTP request body for a verification request.
type CreateVerificationRequest struct {
	UserID         string `json:"user_id"`
	Mode           string `json:"mode,omitempty"`
	ExpiresMinutes int    `json:"expires_minutes,omitempty"`
	RequestedBy    string `json:"requested_by,omitempty"`
}

// CreatedResponse carries the ID of a created resource.
type CreatedResponse struct {
	ID string `json:"id"`
}

// ResolveVerificationRequest is the HTTP request body for resolving a request.
type ResolveVerificationRequest struct {
	Status   string `json:"status"` // approved or rejected
	Verifier string `json:"verifier"`
}

// VerificationResponse is the HTTP response for a verification request.
type VerificationResponse struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Status      string `json:"status"`
	Mode        string `json:"mode"`
	RequestedBy string `json:"requested_by,omitempty"`
	ExpiresAt   string `json:"expires_at"`
	ResolvedBy  string `json:"resolved_by,omitempty"`
	ResolvedAt  string `json:"resolved_at,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toVerificationResponse(req *domain.VerificationRequest) VerificationResponse {
	resp := VerificationResponse{
		ID:          req.ID,
		UserID:      req.SubjectID,
		Status:      string(req.Status),
		Mode:        req.Mode,
		RequestedBy: req.RequestedBy,
		ExpiresAt:   req.ExpiresAt.Format(time.RFC3339),
		ResolvedBy:  req.ResolvedBy,
		CreatedAt:   req.CreatedAt.Format(time.RFC3339),
	}
	if !req.ResolvedAt.IsZero() {
		resp.ResolvedAt = req.ResolvedAt.Format(time.RFC3339)
	}
	return resp
}

// Create handles POST /v1/verification-requests
//
// The contract is narrower than the shared error mapping: 201 with the new
// ID, 409 with the ID of the live request, 400 for bad input, 500 otherwise.
func (h *VerificationHandler) Create(c *gin.Context) {
	var req CreateVerificationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}
	if req.UserID == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "user_id is required"})
		return
	}

	created, err := h.verificationService.CreateRequest(c.Request.Context(), service.CreateVerificationRequest{
		SubjectID:      req.UserID,
		Mode:           req.Mode,
		ExpiresMinutes: req.ExpiresMinutes,
		RequestedBy:    req.RequestedBy,
	})
	if err != nil {
		_ = c.Error(err)

		var conflict *domain.ConflictError
		var validation *domain.TerminalValidationError
		switch {
		case errors.As(err, &conflict):
			c.JSON(http.StatusConflict, ErrorResponse{Error: domain.UserMessage(err), ExistingID: conflict.ExistingID})
		case errors.As(err, &validation):
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: domain.UserMessage(err)})
		default:
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: domain.UserMessage(err)})
		}
		return
	}

	respondJSON(c, http.StatusCreated, CreatedResponse{ID: created.ID})
}

// Get handles GET /v1/verification-requests/:id
func (h *VerificationHandler) Get(c *gin.Context) {
	req, err := h.verificationService.GetRequest(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toVerificationResponse(req))
}

// Resolve handles POST /v1/admin/verification-requests/:id/resolve
func (h *VerificationHandler) Resolve(c *gin.Context) {
	var body ResolveVerificationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	req, err := h.verificationService.Resolve(c.Request.Context(), c.Param("id"), domain.VerificationStatus(body.Status), body.Verifier)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toVerificationResponse(req))
}
