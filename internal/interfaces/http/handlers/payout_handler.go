package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"offramp.backend/internal/domain/entities"
	"offramp.backend/internal/interfaces/http/response"
	"offramp.backend/pkg/utils"
)

// PayoutService reads a user's payouts
type PayoutService interface {
	GetPayout(ctx context.Context, userID, id uuid.UUID) (*entities.Payout, error)
	ListPayouts(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.Payout, utils.PaginationMeta, error)
}

// PayoutHandler handles payout endpoints
type PayoutHandler struct {
	payouts PayoutService
}

// NewPayoutHandler creates a new payout handler
func NewPayoutHandler(payouts PayoutService) *PayoutHandler {
	return &PayoutHandler{payouts: payouts}
}

// ListPayouts lists the caller's payouts, newest first
// GET /api/v1/payouts
func (h *PayoutHandler) ListPayouts(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, limit := pageQuery(c)

	payouts, meta, err := h.payouts.ListPayouts(c.Request.Context(), userID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if payouts == nil {
		payouts = []*entities.Payout{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"payouts":    payouts,
		"pagination": meta,
	})
}

// GetPayout returns a payout by ID
// GET /api/v1/payouts/:id
func (h *PayoutHandler) GetPayout(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id", "payout")
	if !ok {
		return
	}

	payout, err := h.payouts.GetPayout(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"payout": payout})
}
