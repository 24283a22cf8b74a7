package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"offramp.backend/internal/domain/entities"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/internal/infrastructure/models"
	"offramp.backend/pkg/utils"
)

// gasSponsorWalletRepo implements repositories.GasSponsorWalletRepository
type gasSponsorWalletRepo struct {
	db *gorm.DB
}

// NewGasSponsorWalletRepository creates a new gas sponsor wallet repository
func NewGasSponsorWalletRepository(db *gorm.DB) repositories.GasSponsorWalletRepository {
	return &gasSponsorWalletRepo{db: db}
}

func (r *gasSponsorWalletRepo) GetActiveByChain(ctx context.Context, chain string) (*entities.GasSponsorWallet, error) {
	var m models.GasSponsorWallet
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("chain = ? AND is_active = ?", chain, true).
		First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

// Upsert deactivates the current wallet for the chain and inserts the new one in one transaction.
func (r *gasSponsorWalletRepo) Upsert(ctx context.Context, w *entities.GasSponsorWallet) error {
	now := time.Now()
	if w.ID == uuid.Nil {
		w.ID = utils.GenerateUUIDv7()
	}
	w.IsActive = true
	w.CreatedAt = now
	w.UpdatedAt = now

	return GetDB(ctx, r.db).WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.GasSponsorWallet{}).
			Where("chain = ? AND is_active = ?", w.Chain, true).
			Updates(map[string]interface{}{
				"is_active":  false,
				"updated_at": now,
			}).Error; err != nil {
			return err
		}
		return translateError(tx.Create(&models.GasSponsorWallet{
			ID:                  w.ID,
			Chain:               w.Chain,
			Address:             w.Address,
			EncryptedPrivateKey: w.EncryptedPrivateKey,
			MinBalanceThreshold: w.MinBalanceThreshold,
			IsActive:            true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}).Error)
	})
}

func (r *gasSponsorWalletRepo) toEntity(m *models.GasSponsorWallet) *entities.GasSponsorWallet {
	return &entities.GasSponsorWallet{
		ID:                  m.ID,
		Chain:               m.Chain,
		Address:             m.Address,
		EncryptedPrivateKey: m.EncryptedPrivateKey,
		MinBalanceThreshold: m.MinBalanceThreshold,
		IsActive:            m.IsActive,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}
