package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

// WalletHandler handles HTTP requests for wallets.
type WalletHandler struct {
	walletService *service.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletService *service.WalletService) *WalletHandler {
	return &WalletHandler{walletService: walletService}
}

// WithdrawalRequest is the HTTP request body for requesting a withdrawal.
type WithdrawalRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// EntryResponse is one ledger entry.
type EntryResponse struct {
	ID           string          `json:"id"`
	Amount       decimal.Decimal `json:"amount"`
	Type         string          `json:"type"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	ReferenceID  string          `json:"reference_id,omitempty"`
	Reason       string          `json:"reason,omitempty"`
	CreatedAt    string          `json:"created_at"`
}

// WalletResponse is the HTTP response for a wallet.
type WalletResponse struct {
	ID      string          `json:"id"`
	UserID  string          `json:"user_id"`
	Balance decimal.Decimal `json:"balance"`
	History []EntryResponse `json:"history"`
}

// WithdrawalResponse is the HTTP response for a withdrawal.
type WithdrawalResponse struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    string          `json:"status"`
	CreatedAt string          `json:"created_at"`
	SettledAt string          `json:"settled_at,omitempty"`
}

func toEntryResponses(entries []*domain.LedgerEntry) []EntryResponse {
	resp := make([]EntryResponse, 0, len(entries))
	for _, e := range entries {
		resp = append(resp, toEntryResponse(e))
	}
	return resp
}

func toEntryResponse(e *domain.LedgerEntry) EntryResponse {
	return EntryResponse{
		ID:           e.ID,
		Amount:       e.Amount,
		Type:         string(e.Type),
		BalanceAfter: e.BalanceAfter,
		ReferenceID:  e.ReferenceID,
		Reason:       e.Reason,
		CreatedAt:    e.CreatedAt.Format(time.RFC3339),
	}
}

func toWithdrawalResponse(w *domain.Withdrawal) WithdrawalResponse {
	resp := WithdrawalResponse{
		ID:        w.ID,
		UserID:    w.UserID,
		Amount:    w.Amount,
		Status:    string(w.Status),
		CreatedAt: w.CreatedAt.Format(time.RFC3339),
	}
	if !w.SettledAt.IsZero() {
		resp.SettledAt = w.SettledAt.Format(time.RFC3339)
	}
	return resp
}

// GetWallet handles GET /v1/wallets/:user_id
func (h *WalletHandler) GetWallet(c *gin.Context) {
	view, err := h.walletService.GetOrCreateWallet(c.Request.Context(), c.Param("user_id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, WalletResponse{
		ID:      view.Wallet.ID,
		UserID:  view.Wallet.UserID,
		Balance: view.Wallet.Balance,
		History: toEntryResponses(view.History),
	})
}

// History handles GET /v1/wallets/:user_id/history
func (h *WalletHandler) History(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	entries, err := h.walletService.History(c.Request.Context(), c.Param("user_id"), limit)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toEntryResponses(entries))
}

// RequestWithdrawal handles POST /v1/wallets/:user_id/withdrawals
func (h *WalletHandler) RequestWithdrawal(c *gin.Context) {
	var req WithdrawalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	withdrawal, err := h.walletService.RequestWithdrawal(c.Request.Context(), c.Param("user_id"), req.Amount)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toWithdrawalResponse(withdrawal))
}
