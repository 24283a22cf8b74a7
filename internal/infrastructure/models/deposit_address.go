package models

import (
	"time"

	"github.com/google/uuid"
)

type DepositAddress struct {
	ID                  uuid.UUID  `gorm:"type:uuid;primaryKey"`
	UserID              uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_deposit_addresses_owner,where:disabled_at IS NULL"`
	Chain               string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_deposit_addresses_owner,where:disabled_at IS NULL;uniqueIndex:idx_deposit_addresses_chain_address"`
	AssetGroup          string     `gorm:"type:varchar(50);not null;uniqueIndex:idx_deposit_addresses_owner,where:disabled_at IS NULL"`
	Address             string     `gorm:"type:varchar(255);not null;uniqueIndex:idx_deposit_addresses_chain_address"`
	DerivationPath      string     `gorm:"type:varchar(100)"`
	EncryptedPrivateKey string     `gorm:"type:text;not null"`
	CreatedAt           time.Time  `gorm:"not null"`
	DisabledAt          *time.Time `gorm:"index"`
}

func (DepositAddress) TableName() string {
	return "deposit_addresses"
}
