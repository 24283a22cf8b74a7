package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/volatiletech/null/v8"
)

// PayoutStatus represents payout status
type PayoutStatus string

const (
	PayoutStatusPending    PayoutStatus = "pending"
	PayoutStatusProcessing PayoutStatus = "processing"
	PayoutStatusSuccess    PayoutStatus = "success"
	PayoutStatusFailed     PayoutStatus = "failed"
	PayoutStatusReversed   PayoutStatus = "reversed"
)

// IsTerminal reports whether the provider has settled the payout
func (s PayoutStatus) IsTerminal() bool {
	return s == PayoutStatusSuccess || s == PayoutStatusFailed || s == PayoutStatusReversed
}

// Anomaly reasons
const (
	AnomalyProviderNotFound     = "provider_not_found"
	AnomalySubmissionUnresolved = "submission_unresolved"
	AnomalyUnknownStatus        = "unknown_provider_status"
)

// Beneficiary is the bank account receiving the fiat payout
type Beneficiary struct {
	ID            string `json:"id" binding:"required"`
	BankCode      string `json:"bankCode" binding:"required"`
	AccountNumber string `json:"accountNumber" binding:"required"`
	AccountName   string `json:"accountName"`
}

// Payout is the fiat leg of an executed quote
type Payout struct {
	ID                uuid.UUID       `json:"id"`
	QuoteID           uuid.UUID       `json:"quoteId"`
	UserID            uuid.UUID       `json:"userId"`
	BeneficiaryID     string          `json:"beneficiaryId"`
	BankCode          string          `json:"bankCode"`
	AccountNumber     string          `json:"accountNumber"`
	AccountName       string          `json:"accountName,omitempty"`
	FiatAmount        decimal.Decimal `json:"fiatAmount"`
	Currency          string          `json:"currency"`
	Status            PayoutStatus    `json:"status"`
	ProviderReference null.String     `json:"providerReference,omitempty"`
	Anomaly           bool            `json:"anomaly"`
	AnomalyReason     null.String     `json:"anomalyReason,omitempty"`
	ResolutionNote    null.String     `json:"resolutionNote,omitempty"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// ClientReference is the idempotency reference sent to the settlement provider
func (p *Payout) ClientReference() string {
	return p.ID.String()
}

// LookupReference is the reference used for provider status queries
func (p *Payout) LookupReference() string {
	if p.ProviderReference.Valid && p.ProviderReference.String != "" {
		return p.ProviderReference.String
	}
	return p.ClientReference()
}
