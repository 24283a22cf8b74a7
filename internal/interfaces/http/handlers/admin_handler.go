package handlers

import (
	"context"
	"math/big"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/interfaces/http/response"
	"offramp.backend/internal/usecases"
)

// ReviewQueue lists deposits waiting on an operator
type ReviewQueue interface {
	ListReview(ctx context.Context, limit int) ([]*entities.OnchainDeposit, error)
}

// SweepRetrier re-runs a sweep after an operator cleared its review flag
type SweepRetrier interface {
	Retry(ctx context.Context, depositID uuid.UUID) (usecases.SweepResult, error)
}

// SponsorCapacityChecker reports a chain's gas sponsor headroom
type SponsorCapacityChecker interface {
	CheckCapacity(ctx context.Context, chain string, fee *big.Int) (usecases.Capacity, error)
}

// PayoutOperator is the operator surface over payouts
type PayoutOperator interface {
	ListAnomalies(ctx context.Context, limit int) ([]*entities.Payout, error)
	ResolvePayout(ctx context.Context, id uuid.UUID, status entities.PayoutStatus, note string) (*entities.Payout, error)
	Reconcile(ctx context.Context) (usecases.ReconcileSummary, error)
}

// AdminHandler handles operator endpoints
type AdminHandler struct {
	review  ReviewQueue
	sweeper SweepRetrier
	sponsor SponsorCapacityChecker
	payouts PayoutOperator
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(review ReviewQueue, sweeper SweepRetrier, sponsor SponsorCapacityChecker, payouts PayoutOperator) *AdminHandler {
	return &AdminHandler{
		review:  review,
		sweeper: sweeper,
		sponsor: sponsor,
		payouts: payouts,
	}
}

type resolvePayoutRequest struct {
	Status entities.PayoutStatus `json:"status" binding:"required"`
	Note   string                `json:"note" binding:"required"`
}

// ListReviewDeposits lists deposits flagged for manual review
// GET /api/v1/admin/deposits/review
func (h *AdminHandler) ListReviewDeposits(c *gin.Context) {
	deposits, err := h.review.ListReview(c.Request.Context(), limitQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if deposits == nil {
		deposits = []*entities.OnchainDeposit{}
	}

	response.Success(c, http.StatusOK, gin.H{"deposits": deposits})
}

// SweepDeposit clears the review flag and sweeps the deposit again
// POST /api/v1/admin/deposits/:id/sweep
func (h *AdminHandler) SweepDeposit(c *gin.Context) {
	id, ok := idParam(c, "id", "deposit")
	if !ok {
		return
	}

	result, err := h.sweeper.Retry(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": result})
}

// GetSponsorCapacity reports the sponsor wallet's balance against its threshold.
// An optional fee query (base units) checks a specific amount.
// GET /api/v1/admin/sponsors/:chain/capacity
func (h *AdminHandler) GetSponsorCapacity(c *gin.Context) {
	var fee *big.Int
	if raw := c.Query("fee"); raw != "" {
		v, ok := new(big.Int).SetString(raw, 10)
		if !ok || v.Sign() < 0 {
			response.Error(c, domainerrors.BadRequest("Invalid fee"))
			return
		}
		fee = v
	}

	capacity, err := h.sponsor.CheckCapacity(c.Request.Context(), c.Param("chain"), fee)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"capacity": capacity})
}

// ListPayoutAnomalies lists payouts the reconciler could not settle
// GET /api/v1/admin/payouts/anomalies
func (h *AdminHandler) ListPayoutAnomalies(c *gin.Context) {
	payouts, err := h.payouts.ListAnomalies(c.Request.Context(), limitQuery(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	if payouts == nil {
		payouts = []*entities.Payout{}
	}

	response.Success(c, http.StatusOK, gin.H{"payouts": payouts})
}

// ResolvePayout records an operator's terminal status for a payout
// POST /api/v1/admin/payouts/:id/resolve
func (h *AdminHandler) ResolvePayout(c *gin.Context) {
	id, ok := idParam(c, "id", "payout")
	if !ok {
		return
	}

	var input resolvePayoutRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	payout, err := h.payouts.ResolvePayout(c.Request.Context(), id, input.Status, input.Note)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"payout": payout})
}

// ReconcilePayouts runs one reconciliation pass immediately
// POST /api/v1/admin/payouts/reconcile
func (h *AdminHandler) ReconcilePayouts(c *gin.Context) {
	summary, err := h.payouts.Reconcile(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"summary": summary})
}
