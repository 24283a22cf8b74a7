package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/pkg/crypto"
	"offramp.backend/pkg/logger"
	"offramp.backend/pkg/utils"
)

// WalletFactory mints custodial deposit addresses
type WalletFactory struct {
	addresses repositories.DepositAddressRepository
	registry  ChainRegistry
	vault     KeyVault
	locks     *utils.KeyedMutex
	now       func() time.Time
}

// NewWalletFactory creates a new wallet factory
func NewWalletFactory(
	addresses repositories.DepositAddressRepository,
	registry ChainRegistry,
	vault KeyVault,
) *WalletFactory {
	return &WalletFactory{
		addresses: addresses,
		registry:  registry,
		vault:     vault,
		locks:     utils.NewKeyedMutex(),
		now:       time.Now,
	}
}

// CreateWallet returns the user's active address for the chain and asset group, minting one if none exists.
func (f *WalletFactory) CreateWallet(ctx context.Context, userID uuid.UUID, chain, assetGroup string) (*entities.DepositAddress, error) {
	if userID == uuid.Nil {
		return nil, domainerrors.BadRequest("user id is required")
	}
	cfg, err := f.registry.Chain(chain)
	if err != nil {
		return nil, err
	}
	group := strings.ToLower(strings.TrimSpace(assetGroup))
	if group == "" {
		group = entities.DefaultAssetGroup
	}

	unlock, err := f.locks.Lock(ctx, userID.String()+":"+cfg.Name+":"+group)
	if err != nil {
		return nil, err
	}
	defer unlock()

	existing, err := f.addresses.GetActive(ctx, userID, cfg.Name, group)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	adapter, err := f.registry.Adapter(cfg.Name)
	if err != nil {
		return nil, err
	}
	key, err := adapter.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	defer crypto.Zero(key.PrivateKey)

	blob, err := f.vault.Encrypt(ctx, key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key: %w", err)
	}

	addr := &entities.DepositAddress{
		UserID:              userID,
		Chain:               cfg.Name,
		AssetGroup:          group,
		Address:             key.Address,
		DerivationPath:      key.DerivationPath,
		EncryptedPrivateKey: blob,
		CreatedAt:           f.now(),
	}
	if err := f.addresses.Create(ctx, addr); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			// another replica won the unique index
			return f.addresses.GetActive(ctx, userID, cfg.Name, group)
		}
		return nil, err
	}

	logger.Info(ctx, "Deposit address created",
		zap.String("user_id", userID.String()),
		zap.String("chain", cfg.Name),
		zap.String("asset_group", group),
		zap.String("address", addr.Address),
	)
	return addr, nil
}

// ListWallets returns every address the user owns, retired ones included
func (f *WalletFactory) ListWallets(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error) {
	return f.addresses.ListByUser(ctx, userID)
}

// DisableWallet retires an address. Deposits that still arrive on it are tracked and swept.
func (f *WalletFactory) DisableWallet(ctx context.Context, userID, id uuid.UUID) error {
	addr, err := f.addresses.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if addr.UserID != userID {
		return domainerrors.ErrForbidden
	}
	if !addr.IsActive() {
		return nil
	}
	return f.addresses.Disable(ctx, id, f.now())
}
