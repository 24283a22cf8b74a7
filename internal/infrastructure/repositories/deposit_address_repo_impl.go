package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"gorm.io/gorm"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/internal/infrastructure/models"
	"offramp.backend/pkg/utils"
)

// depositAddressRepo implements repositories.DepositAddressRepository
type depositAddressRepo struct {
	db *gorm.DB
}

// NewDepositAddressRepository creates a new deposit address repository
func NewDepositAddressRepository(db *gorm.DB) repositories.DepositAddressRepository {
	return &depositAddressRepo{db: db}
}

func (r *depositAddressRepo) Create(ctx context.Context, addr *entities.DepositAddress) error {
	if addr.ID == uuid.Nil {
		addr.ID = utils.GenerateUUIDv7()
	}
	if addr.CreatedAt.IsZero() {
		addr.CreatedAt = time.Now()
	}
	m := &models.DepositAddress{
		ID:                  addr.ID,
		UserID:              addr.UserID,
		Chain:               addr.Chain,
		AssetGroup:          addr.AssetGroup,
		Address:             addr.Address,
		DerivationPath:      addr.DerivationPath,
		EncryptedPrivateKey: addr.EncryptedPrivateKey,
		CreatedAt:           addr.CreatedAt,
		DisabledAt:          addr.DisabledAt.Ptr(),
	}
	return translateError(GetDB(ctx, r.db).WithContext(ctx).Create(m).Error)
}

func (r *depositAddressRepo) GetByID(ctx context.Context, id uuid.UUID) (*entities.DepositAddress, error) {
	var m models.DepositAddress
	if err := GetDB(ctx, r.db).WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *depositAddressRepo) GetActive(ctx context.Context, userID uuid.UUID, chain, assetGroup string) (*entities.DepositAddress, error) {
	var m models.DepositAddress
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("user_id = ? AND chain = ? AND asset_group = ? AND disabled_at IS NULL", userID, chain, assetGroup).
		First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *depositAddressRepo) GetByChainAddress(ctx context.Context, chain, address string) (*entities.DepositAddress, error) {
	var m models.DepositAddress
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("chain = ? AND address = ?", chain, address).
		First(&m).Error; err != nil {
		return nil, translateError(err)
	}
	return r.toEntity(&m), nil
}

func (r *depositAddressRepo) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error) {
	var ms []models.DepositAddress
	if err := GetDB(ctx, r.db).WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&ms).Error; err != nil {
		return nil, err
	}

	addrs := make([]*entities.DepositAddress, 0, len(ms))
	for i := range ms {
		addrs = append(addrs, r.toEntity(&ms[i]))
	}
	return addrs, nil
}

func (r *depositAddressRepo) Disable(ctx context.Context, id uuid.UUID, at time.Time) error {
	result := GetDB(ctx, r.db).WithContext(ctx).Model(&models.DepositAddress{}).
		Where("id = ? AND disabled_at IS NULL", id).
		Update("disabled_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domainerrors.ErrNotFound
	}
	return nil
}

func (r *depositAddressRepo) toEntity(m *models.DepositAddress) *entities.DepositAddress {
	return &entities.DepositAddress{
		ID:                  m.ID,
		UserID:              m.UserID,
		Chain:               m.Chain,
		AssetGroup:          m.AssetGroup,
		Address:             m.Address,
		DerivationPath:      m.DerivationPath,
		EncryptedPrivateKey: m.EncryptedPrivateKey,
		CreatedAt:           m.CreatedAt,
		DisabledAt:          null.TimeFromPtr(m.DisabledAt),
	}
}
