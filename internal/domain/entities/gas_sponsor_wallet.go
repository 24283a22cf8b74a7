package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// GasSponsorWallet funds transaction fees for one chain
type GasSponsorWallet struct {
	ID                  uuid.UUID       `json:"id"`
	Chain               string          `json:"chain"`
	Address             string          `json:"address"`
	EncryptedPrivateKey string          `json:"-"`
	MinBalanceThreshold decimal.Decimal `json:"minBalanceThreshold"` // base units
	IsActive            bool            `json:"isActive"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// TreasuryWallet is the sweep destination for a chain and asset
type TreasuryWallet struct {
	Chain      string `json:"chain"`
	Asset      string `json:"asset"`
	HotAddress string `json:"hotAddress"`
}
