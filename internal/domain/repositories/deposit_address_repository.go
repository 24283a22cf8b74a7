package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"offramp.backend/internal/domain/entities"
)

// DepositAddressRepository defines custodial address persistence
type DepositAddressRepository interface {
	Create(ctx context.Context, addr *entities.DepositAddress) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.DepositAddress, error)
	GetActive(ctx context.Context, userID uuid.UUID, chain, assetGroup string) (*entities.DepositAddress, error)
	// GetByChainAddress includes disabled addresses so late deposits still resolve.
	GetByChainAddress(ctx context.Context, chain, address string) (*entities.DepositAddress, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error)
	Disable(ctx context.Context, id uuid.UUID, at time.Time) error
}
