package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// QuoteStatus represents quote status
type QuoteStatus string

const (
	QuoteStatusActive    QuoteStatus = "active"
	QuoteStatusExpired   QuoteStatus = "expired"
	QuoteStatusExecuted  QuoteStatus = "executed"
	QuoteStatusCancelled QuoteStatus = "cancelled"
)

// QuoteMode records which side of the conversion the caller fixed
type QuoteMode string

const (
	QuoteModeForward QuoteMode = "forward"
	QuoteModeReverse QuoteMode = "reverse"
)

// Quote is a time-boxed crypto to fiat conversion offer
type Quote struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"userId"`
	Asset          string          `json:"asset"`
	Chain          string          `json:"chain"`
	Mode           QuoteMode       `json:"mode"`
	CryptoAmount   decimal.Decimal `json:"cryptoAmount"`
	SpotPrice      decimal.Decimal `json:"spotPrice"`
	FxRate         decimal.Decimal `json:"fxRate"`
	SpreadBps      int64           `json:"spreadBps"`
	FlatFee        decimal.Decimal `json:"flatFee"`
	VariableFeeBps int64           `json:"variableFeeBps"`
	GrossFiat      decimal.Decimal `json:"grossFiat"`
	TotalFee       decimal.Decimal `json:"totalFee"`
	FiatAmount     decimal.Decimal `json:"fiatAmount"`
	Currency       string          `json:"currency"`
	LockExpiresAt  time.Time       `json:"lockExpiresAt"`
	Status         QuoteStatus     `json:"status"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// IsExpiredAt reports whether the lock has lapsed at the given instant
func (q *Quote) IsExpiredAt(now time.Time) bool {
	return !now.Before(q.LockExpiresAt)
}
