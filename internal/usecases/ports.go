package usecases

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"offramp.backend/internal/domain/entities"
	"offramp.backend/internal/infrastructure/blockchain"
	"offramp.backend/internal/infrastructure/oracle"
	"offramp.backend/internal/infrastructure/settlement"
	"offramp.backend/pkg/utils"
)

// ChainRegistry resolves chain configuration and adapters by chain name
type ChainRegistry interface {
	Chain(name string) (entities.Chain, error)
	Chains() []entities.Chain
	Adapter(name string) (blockchain.ChainAdapter, error)
}

// KeyVault encrypts custodial key material at rest
type KeyVault interface {
	Encrypt(ctx context.Context, plaintext []byte) (string, error)
	Decrypt(ctx context.Context, blob string) ([]byte, error)
}

// Locker serializes work on one key. The returned func releases it.
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// LeaseLocker hands out locks that may lapse before they are released
type LeaseLocker interface {
	Acquire(ctx context.Context, key string) (utils.Lease, error)
}

// PriceOracle returns the USD price of an asset
type PriceOracle interface {
	LatestPrice(ctx context.Context, asset string) (oracle.Price, error)
}

// FXProvider returns the conversion rate between two fiat currencies
type FXProvider interface {
	Rate(ctx context.Context, from, to string) (decimal.Decimal, error)
}

// SettlementProvider is the external fiat offramp
type SettlementProvider interface {
	SubmitOfframp(ctx context.Context, req settlement.OfframpRequest) (string, error)
	GetOfframpStatus(ctx context.Context, reference string) (settlement.StatusResult, error)
	VerifyCallback(signed string) (settlement.StatusResult, error)
}

// IdentityProvider reports a user's KYC verification tier
type IdentityProvider interface {
	GetVerificationTier(ctx context.Context, userID uuid.UUID) (int, error)
}
