package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ridecore/internal/repository"
	"ridecore/internal/service"
)

// AdminHandler handles operator HTTP requests.
type AdminHandler struct {
	walletService      *service.WalletService
	auditService       *service.AuditService
	settlementService  *service.SettlementService
	reconciliationRepo repository.ReconciliationRepository
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(
	walletService *service.WalletService,
	auditService *service.AuditService,
	settlementService *service.SettlementService,
	reconciliationRepo repository.ReconciliationRepository,
) *AdminHandler {
	return &AdminHandler{
		walletService:      walletService,
		auditService:       auditService,
		settlementService:  settlementService,
		reconciliationRepo: reconciliationRepo,
	}
}

// AdjustmentRequest is the HTTP request body for a manual adjustment.
type AdjustmentRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Reason      string          `json:"reason"`
	AdminID     string          `json:"admin_id"`
	ReferenceID string          `json:"reference_id,omitempty"`
}

// ResolveFlagRequest is the HTTP request body for closing a reconciliation flag.
type ResolveFlagRequest struct {
	ResolvedBy string `json:"resolved_by"`
}

// FlagResponse is one open reconciliation flag.
type FlagResponse struct {
	ID        string `json:"id"`
	RideID    string `json:"ride_id"`
	Step      string `json:"step"`
	Detail    string `json:"detail,omitempty"`
	CreatedAt string `json:"created_at"`
}

// WithdrawalSettledResponse is the HTTP response for a completed withdrawal.
type WithdrawalSettledResponse struct {
	Withdrawal WithdrawalResponse `json:"withdrawal"`
	Entry      EntryResponse      `json:"entry"`
}

// Adjust handles POST /v1/admin/wallets/:user_id/adjustments
func (h *AdminHandler) Adjust(c *gin.Context) {
	var req AdjustmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	entry, err := h.walletService.ManualAdjustment(c.Request.Context(), service.ManualAdjustmentRequest{
		UserID:      c.Param("user_id"),
		Amount:      req.Amount,
		Reason:      req.Reason,
		AdminID:     req.AdminID,
		ReferenceID: req.ReferenceID,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toEntryResponse(entry))
}

// CompleteWithdrawal handles POST /v1/admin/withdrawals/:id/complete
func (h *AdminHandler) CompleteWithdrawal(c *gin.Context) {
	withdrawal, entry, err := h.walletService.CompleteWithdrawal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, WithdrawalSettledResponse{
		Withdrawal: toWithdrawalResponse(withdrawal),
		Entry:      toEntryResponse(entry),
	})
}

// RejectWithdrawal handles POST /v1/admin/withdrawals/:id/reject
func (h *AdminHandler) RejectWithdrawal(c *gin.Context) {
	withdrawal, err := h.walletService.RejectWithdrawal(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toWithdrawalResponse(withdrawal))
}

// ListReconciliation handles GET /v1/admin/reconciliation
func (h *AdminHandler) ListReconciliation(c *gin.Context) {
	flags, err := h.reconciliationRepo.ListOpen(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	response := make([]FlagResponse, 0, len(flags))
	for _, f := range flags {
		response = append(response, FlagResponse{
			ID:        f.ID,
			RideID:    f.RideID,
			Step:      f.Step,
			Detail:    f.Detail,
			CreatedAt: f.CreatedAt.Format(time.RFC3339),
		})
	}

	c.JSON(http.StatusOK, response)
}

// ResolveReconciliation handles POST /v1/admin/reconciliation/:id/resolve
func (h *AdminHandler) ResolveReconciliation(c *gin.Context) {
	var req ResolveFlagRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ResolvedBy == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "resolved_by is required"})
		return
	}

	if err := h.reconciliationRepo.Resolve(c.Request.Context(), c.Param("id"), req.ResolvedBy); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// RunAudit handles POST /v1/admin/ledger/audit
func (h *AdminHandler) RunAudit(c *gin.Context) {
	report, err := h.auditService.Run(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, report)
}

// RedriveSettlements handles POST /v1/admin/settlements/redrive
func (h *AdminHandler) RedriveSettlements(c *gin.Context) {
	report, err := h.settlementService.RedrivePending(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, report)
}

// SettleRide handles POST /v1/admin/rides/:id/settle
func (h *AdminHandler) SettleRide(c *gin.Context) {
	if err := h.settlementService.Settle(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
