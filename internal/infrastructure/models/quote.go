package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Quote struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey"`
	UserID         uuid.UUID       `gorm:"type:uuid;not null;index"`
	Asset          string          `gorm:"type:varchar(50);not null"`
	Chain          string          `gorm:"type:varchar(50);not null"`
	Mode           string          `gorm:"type:varchar(10);not null"`
	CryptoAmount   decimal.Decimal `gorm:"type:numeric(78,18);not null"`
	SpotPrice      decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	FxRate         decimal.Decimal `gorm:"type:numeric(36,18);not null"`
	SpreadBps      int64           `gorm:"not null"`
	FlatFee        decimal.Decimal `gorm:"type:numeric(36,2);not null"`
	VariableFeeBps int64           `gorm:"not null"`
	GrossFiat      decimal.Decimal `gorm:"type:numeric(36,2);not null"`
	TotalFee       decimal.Decimal `gorm:"type:numeric(36,2);not null"`
	FiatAmount     decimal.Decimal `gorm:"type:numeric(36,2);not null"`
	Currency       string          `gorm:"type:varchar(3);not null"`
	LockExpiresAt  time.Time       `gorm:"not null;index"`
	Status         string          `gorm:"type:varchar(20);not null;index"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (Quote) TableName() string {
	return "quotes"
}
