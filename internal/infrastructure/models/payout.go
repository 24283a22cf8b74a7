package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Payout struct {
	ID                uuid.UUID       `gorm:"type:uuid;primaryKey"`
	QuoteID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index"`
	BeneficiaryID     string          `gorm:"type:varchar(100);not null"`
	BankCode          string          `gorm:"type:varchar(20);not null"`
	AccountNumber     string          `gorm:"type:varchar(34);not null"`
	AccountName       string          `gorm:"type:varchar(255)"`
	FiatAmount        decimal.Decimal `gorm:"type:numeric(36,2);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	Status            string          `gorm:"type:varchar(20);not null;index"`
	ProviderReference *string         `gorm:"type:varchar(255);index"`
	Anomaly           bool            `gorm:"not null;default:false;index"`
	AnomalyReason     *string         `gorm:"type:varchar(100)"`
	ResolutionNote    *string         `gorm:"type:text"`
	CreatedAt         time.Time       `gorm:"index"`
	UpdatedAt         time.Time
}

func (Payout) TableName() string {
	return "payouts"
}
