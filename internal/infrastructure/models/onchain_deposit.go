package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OnchainDeposit struct {
	ID                    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	DepositAddressID      uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_onchain_deposits_tx"`
	Chain                 string          `gorm:"type:varchar(50);not null;index"`
	Asset                 string          `gorm:"type:varchar(50);not null"`
	Token                 string          `gorm:"type:varchar(255)"`
	TxRef                 string          `gorm:"type:varchar(255);not null;uniqueIndex:idx_onchain_deposits_tx"`
	Initiator             string          `gorm:"type:varchar(255)"`
	Amount                decimal.Decimal `gorm:"type:numeric(78,0);not null"`
	Confirmations         int64           `gorm:"not null;default:0"`
	RequiredConfirmations int64           `gorm:"not null"`
	Status                string          `gorm:"type:varchar(20);not null;index"`
	SweepAttempts         int             `gorm:"not null;default:0"`
	SweepTxRef            *string         `gorm:"type:varchar(255)"`
	NeedsReview           bool            `gorm:"not null;default:false;index"`
	ReviewReason          *string         `gorm:"type:varchar(100)"`
	LastError             *string         `gorm:"type:text"`
	DetectedAt            time.Time       `gorm:"not null"`
	ConfirmedAt           *time.Time
	SweptAt               *time.Time
	UpdatedAt             time.Time
}

func (OnchainDeposit) TableName() string {
	return "onchain_deposits"
}
