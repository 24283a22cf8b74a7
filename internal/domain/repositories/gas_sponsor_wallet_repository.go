package repositories

import (
	"context"

	"offramp.backend/internal/domain/entities"
)

// GasSponsorWalletRepository defines sponsor wallet persistence
type GasSponsorWalletRepository interface {
	GetActiveByChain(ctx context.Context, chain string) (*entities.GasSponsorWallet, error)
	// Upsert replaces the active wallet for the chain, deactivating any previous one.
	Upsert(ctx context.Context, wallet *entities.GasSponsorWallet) error
}
