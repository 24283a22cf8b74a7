package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/interfaces/http/response"
	"offramp.backend/pkg/logger"
)

// DepositIngester accepts deposit events pushed by the chain indexer
type DepositIngester interface {
	Ingest(ctx context.Context, ev entities.DepositEvent) (*entities.OnchainDeposit, error)
}

// SettlementCallbackHandler applies signed provider status callbacks
type SettlementCallbackHandler interface {
	HandleProviderCallback(ctx context.Context, signed string) (*entities.Payout, error)
}

// WebhookHandler handles inbound webhooks
type WebhookHandler struct {
	deposits   DepositIngester
	settlement SettlementCallbackHandler
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(deposits DepositIngester, settlement SettlementCallbackHandler) *WebhookHandler {
	return &WebhookHandler{deposits: deposits, settlement: settlement}
}

// HandleDepositWebhook ingests a detected transfer from the indexer
// POST /api/v1/webhooks/deposits
func (h *WebhookHandler) HandleDepositWebhook(c *gin.Context) {
	var input entities.DepositEvent
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	deposit, err := h.deposits.Ingest(c.Request.Context(), input)
	if err != nil {
		logger.Warn(c.Request.Context(), "Deposit webhook rejected",
			zap.String("chain", input.Chain),
			zap.String("tx_ref", input.TxRef),
			zap.Error(err),
		)
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true, "deposit": deposit})
}

// HandleSettlementWebhook applies a provider status callback. The body is a compact JWS.
// POST /api/v1/webhooks/settlement
func (h *WebhookHandler) HandleSettlementWebhook(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		response.Error(c, domainerrors.BadRequest("Failed to read body"))
		return
	}
	signed := strings.TrimSpace(string(raw))
	if signed == "" {
		response.Error(c, domainerrors.BadRequest("Signed payload is required"))
		return
	}

	payout, err := h.settlement.HandleProviderCallback(c.Request.Context(), signed)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"received": true, "status": payout.Status})
}
