package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// DepositStatus represents the confirmation state of an inbound transfer
type DepositStatus string

const (
	DepositStatusDetected   DepositStatus = "detected"
	DepositStatusConfirming DepositStatus = "confirming"
	DepositStatusConfirmed  DepositStatus = "confirmed"
	DepositStatusSwept      DepositStatus = "swept"
	DepositStatusFailed     DepositStatus = "failed"
)

// IsTerminal reports whether no further transitions are allowed
func (s DepositStatus) IsTerminal() bool {
	return s == DepositStatusSwept || s == DepositStatusFailed
}

// Review reasons recorded on deposits that need an operator
const (
	ReviewReasonUnderfunded    = "sweep_underfunded"
	ReviewReasonMaxAttempts    = "sweep_max_attempts"
	ReviewReasonReorgSuspected = "reorg_suspected"
	ReviewReasonMarkFailed     = "sweep_submitted_mark_failed"
	ReviewReasonUnknownAsset   = "unknown_asset"
	ReviewReasonKeyIntegrity   = "key_integrity"
)

// OnchainDeposit is an inbound transfer to a DepositAddress
type OnchainDeposit struct {
	ID                    uuid.UUID       `json:"id"`
	DepositAddressID      uuid.UUID       `json:"depositAddressId"`
	Chain                 string          `json:"chain"`
	Asset                 string          `json:"asset"`
	Token                 string          `json:"token,omitempty"`
	TxRef                 string          `json:"txRef"`
	Initiator             string          `json:"initiator,omitempty"`
	Amount                decimal.Decimal `json:"amount"` // base units
	Confirmations         int64           `json:"confirmations"`
	RequiredConfirmations int64           `json:"requiredConfirmations"`
	Status                DepositStatus   `json:"status"`
	SweepAttempts         int             `json:"sweepAttempts"`
	SweepTxRef            null.String     `json:"sweepTxRef,omitempty"`
	NeedsReview           bool            `json:"needsReview"`
	ReviewReason          null.String     `json:"reviewReason,omitempty"`
	LastError             null.String     `json:"lastError,omitempty"`
	DetectedAt            time.Time       `json:"detectedAt"`
	ConfirmedAt           null.Time       `json:"confirmedAt,omitempty"`
	SweptAt               null.Time       `json:"sweptAt,omitempty"`
	UpdatedAt             time.Time       `json:"updatedAt"`
}

// DepositEvent is an inbound transfer observed by an indexer or listener
type DepositEvent struct {
	Chain     string          `json:"chain"`
	Address   string          `json:"address"`
	TxRef     string          `json:"txRef"`
	Token     string          `json:"token,omitempty"`
	Amount    decimal.Decimal `json:"amount"`
	Initiator string          `json:"initiator,omitempty"`
}
