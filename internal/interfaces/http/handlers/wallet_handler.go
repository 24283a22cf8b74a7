package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/interfaces/http/response"
)

// WalletService is the deposit address surface used by WalletHandler
type WalletService interface {
	CreateWallet(ctx context.Context, userID uuid.UUID, chain, assetGroup string) (*entities.DepositAddress, error)
	ListWallets(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error)
	DisableWallet(ctx context.Context, userID, id uuid.UUID) error
}

// WalletHandler handles deposit address endpoints
type WalletHandler struct {
	wallets WalletService
}

// NewWalletHandler creates a new wallet handler
func NewWalletHandler(wallets WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

type createWalletRequest struct {
	Chain      string `json:"chain" binding:"required"`
	AssetGroup string `json:"assetGroup"`
}

// CreateWallet returns the caller's deposit address for a chain, minting one if needed
// POST /api/v1/wallets
func (h *WalletHandler) CreateWallet(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var input createWalletRequest
	if err := c.ShouldBindJSON(&input); err != nil {
		response.Error(c, domainerrors.BadRequest(err.Error()))
		return
	}

	wallet, err := h.wallets.CreateWallet(c.Request.Context(), userID, input.Chain, input.AssetGroup)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"wallet": wallet})
}

// ListWallets lists deposit addresses for the current user
// GET /api/v1/wallets
func (h *WalletHandler) ListWallets(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	wallets, err := h.wallets.ListWallets(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if wallets == nil {
		wallets = []*entities.DepositAddress{}
	}

	response.Success(c, http.StatusOK, gin.H{"wallets": wallets})
}

// DisableWallet retires a deposit address
// DELETE /api/v1/wallets/:id
func (h *WalletHandler) DisableWallet(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := idParam(c, "id", "wallet")
	if !ok {
		return
	}

	if err := h.wallets.DisableWallet(c.Request.Context(), userID, id); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"message": "Wallet disabled"})
}
