package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/interfaces/http/response"
	"offramp.backend/internal/usecases"
)

// QuoteService issues and manages time-locked quotes
type QuoteService interface {
	Quote(ctx context.Context, req usecases.QuoteRequest) (*entities.Quote, error)
	GetQuote(ctx context.Context, userID, id uuid.UUID) (*entities.Quote, error)
	CancelQuote(ctx context.Context, userID, id uuid.UUID) (*entities.Quote, error)
	SupportedAssets() map[string][]string
}

// QuoteExecutor turns an active quote into a payout
type QuoteExecutor interface {
	Execute(ctx context.Context, userID, quoteID uuid.UUID, beneficiary entities.Beneficiary) (*entities.Payout, error)
}

// QuoteHandler handles quote endpoints
type QuoteHandler struct {
	quotes   QuoteService
	executor QuoteExecutor
}

// NewQuoteHandler creates a new quote handler
func NewQuoteHandler(quotes QuoteService, executor QuoteExecutor) *QuoteHandler {
	return &QuoteHandler{quotes: quotes, executor: executor}
}

type createQuoteRequest struct {
	Asset        string          `json:"asset" binding:"required"`
	Chain        string          `json:"chain" binding:"required"`
	CryptoAmount decimal.Decimal `json:"cryptoAmount"`
	FiatTarget   decimal.Decimal `json:"fiatTarget"`
	Currency     string          `json:"currency"`
}

type executeQuoteRequest struct {
	Beneficiary entities.Beneficiary `json:"beneficiary" binding:"required"`
}

// CreateQuote prices a conversion and locks it
// POST /api/v1/quotes
func (h *QuoteHandler) CreateQuote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input createQuoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	quote, err := h.quotes.Quote(c.Request.Context(), usecases.QuoteRequest{
		UserID:       userID,
		Asset:        input.Asset,
		Chain:        input.Chain,
		CryptoAmount: input.CryptoAmount,
		FiatTarget:   input.FiatTarget,
		Currency:     input.Currency,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"quote": quote})
}

// GetQuote returns one of the caller's quotes
// GET /api/v1/quotes/:id
func (h *QuoteHandler) GetQuote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id", "quote")
	if !ok {
		return
	}

	quote, err := h.quotes.GetQuote(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quote": quote})
}

// CancelQuote releases an active quote
// POST /api/v1/quotes/:id/cancel
func (h *QuoteHandler) CancelQuote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id", "quote")
	if !ok {
		return
	}

	quote, err := h.quotes.CancelQuote(c.Request.Context(), userID, id)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"quote": quote})
}

// ExecuteQuote consumes the quote and dispatches the fiat payout
// POST /api/v1/quotes/:id/execute
func (h *QuoteHandler) ExecuteQuote(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id", "quote")
	if !ok {
		return
	}

	var input executeQuoteRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	payout, err := h.executor.Execute(c.Request.Context(), userID, id, input.Beneficiary)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"payout": payout})
}

// ListAssets lists the assets each chain can quote
// GET /api/v1/assets
func (h *QuoteHandler) ListAssets(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"assets": h.quotes.SupportedAssets()})
}
