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

// DepositService lists a user's inbound transfers
type DepositService interface {
	ListDeposits(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.OnchainDeposit, utils.PaginationMeta, error)
}

// DepositHandler handles deposit endpoints
type DepositHandler struct {
	deposits DepositService
}

// NewDepositHandler creates a new deposit handler
func NewDepositHandler(deposits DepositService) *DepositHandler {
	return &DepositHandler{deposits: deposits}
}

// ListDeposits lists deposits to the current user's addresses
// GET /api/v1/deposits
func (h *DepositHandler) ListDeposits(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	page, limit := pageQuery(c)

	deposits, meta, err := h.deposits.ListDeposits(c.Request.Context(), userID, page, limit)
	if err != nil {
		response.Error(c, err)
		return
	}
	if deposits == nil {
		deposits = []*entities.OnchainDeposit{}
	}

	response.Success(c, http.StatusOK, gin.H{
		"deposits":   deposits,
		"pagination": meta,
	})
}
