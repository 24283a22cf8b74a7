package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type GasSponsorWallet struct {
	ID                  uuid.UUID       `gorm:"type:uuid;primaryKey"`
	Chain               string          `gorm:"type:varchar(50);not null;uniqueIndex:idx_gas_sponsor_wallets_active,where:is_active"`
	Address             string          `gorm:"type:varchar(255);not null"`
	EncryptedPrivateKey string          `gorm:"type:text;not null"`
	MinBalanceThreshold decimal.Decimal `gorm:"type:numeric(78,0);not null"`
	IsActive            bool            `gorm:"not null;default:true"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

func (GasSponsorWallet) TableName() string {
	return "gas_sponsor_wallets"
}
