package usecases

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"offramp.backend/internal/domain/entities"
	"offramp.backend/internal/infrastructure/oracle"
	"offramp.backend/internal/infrastructure/settlement"
)

// Mock UnitOfWork
type MockUnitOfWork struct {
	mock.Mock
}

func (m *MockUnitOfWork) Do(ctx context.Context, f func(context.Context) error) error {
	m.Called(ctx, f)
	return f(ctx)
}

func (m *MockUnitOfWork) WithLock(ctx context.Context) context.Context {
	args := m.Called(ctx)
	return args.Get(0).(context.Context)
}

// Mock DepositAddressRepository
type MockDepositAddressRepository struct {
	mock.Mock
}

func (m *MockDepositAddressRepository) Create(ctx context.Context, addr *entities.DepositAddress) error {
	args := m.Called(ctx, addr)
	return args.Error(0)
}

func (m *MockDepositAddressRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.DepositAddress, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DepositAddress), args.Error(1)
}

func (m *MockDepositAddressRepository) GetActive(ctx context.Context, userID uuid.UUID, chain, assetGroup string) (*entities.DepositAddress, error) {
	args := m.Called(ctx, userID, chain, assetGroup)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DepositAddress), args.Error(1)
}

func (m *MockDepositAddressRepository) GetByChainAddress(ctx context.Context, chain, address string) (*entities.DepositAddress, error) {
	args := m.Called(ctx, chain, address)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.DepositAddress), args.Error(1)
}

func (m *MockDepositAddressRepository) ListByUser(ctx context.Context, userID uuid.UUID) ([]*entities.DepositAddress, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.DepositAddress), args.Error(1)
}

func (m *MockDepositAddressRepository) Disable(ctx context.Context, id uuid.UUID, at time.Time) error {
	args := m.Called(ctx, id, at)
	return args.Error(0)
}

// Mock GasSponsorWalletRepository
type MockGasSponsorWalletRepository struct {
	mock.Mock
}

func (m *MockGasSponsorWalletRepository) GetActiveByChain(ctx context.Context, chain string) (*entities.GasSponsorWallet, error) {
	args := m.Called(ctx, chain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.GasSponsorWallet), args.Error(1)
}

func (m *MockGasSponsorWalletRepository) Upsert(ctx context.Context, wallet *entities.GasSponsorWallet) error {
	args := m.Called(ctx, wallet)
	return args.Error(0)
}

// Mock QuoteRepository
type MockQuoteRepository struct {
	mock.Mock
}

func (m *MockQuoteRepository) Create(ctx context.Context, quote *entities.Quote) error {
	args := m.Called(ctx, quote)
	if quote.ID == uuid.Nil {
		quote.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockQuoteRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Quote, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Quote), args.Error(1)
}

func (m *MockQuoteRepository) MarkExecuted(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	args := m.Called(ctx, id, now)
	return args.Bool(0), args.Error(1)
}

func (m *MockQuoteRepository) Cancel(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockQuoteRepository) ExpireBefore(ctx context.Context, now time.Time, limit int) (int64, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).(int64), args.Error(1)
}

// Mock PayoutRepository
type MockPayoutRepository struct {
	mock.Mock
}

func (m *MockPayoutRepository) Create(ctx context.Context, payout *entities.Payout) error {
	args := m.Called(ctx, payout)
	if payout.ID == uuid.Nil {
		payout.ID = uuid.New()
	}
	return args.Error(0)
}

func (m *MockPayoutRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Payout, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Payout), args.Error(1)
}

func (m *MockPayoutRepository) GetByQuoteID(ctx context.Context, quoteID uuid.UUID) (*entities.Payout, error) {
	args := m.Called(ctx, quoteID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Payout), args.Error(1)
}

func (m *MockPayoutRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entities.Payout, int64, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, 0, args.Error(2)
	}
	return args.Get(0).([]*entities.Payout), args.Get(1).(int64), args.Error(2)
}

func (m *MockPayoutRepository) ListReconcilable(ctx context.Context, createdAfter, createdBefore time.Time, limit int) ([]*entities.Payout, error) {
	args := m.Called(ctx, createdAfter, createdBefore, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Payout), args.Error(1)
}

func (m *MockPayoutRepository) ListAnomalies(ctx context.Context, limit int) ([]*entities.Payout, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Payout), args.Error(1)
}

func (m *MockPayoutRepository) UpdateStatus(ctx context.Context, id uuid.UUID, from []entities.PayoutStatus, to entities.PayoutStatus) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *MockPayoutRepository) SetProviderReference(ctx context.Context, id uuid.UUID, reference string) error {
	args := m.Called(ctx, id, reference)
	return args.Error(0)
}

func (m *MockPayoutRepository) FlagAnomaly(ctx context.Context, id uuid.UUID, reason string) error {
	args := m.Called(ctx, id, reason)
	return args.Error(0)
}

func (m *MockPayoutRepository) Resolve(ctx context.Context, id uuid.UUID, status entities.PayoutStatus, note string) (bool, error) {
	args := m.Called(ctx, id, status, note)
	return args.Bool(0), args.Error(1)
}

// Mock KeyVault
type MockKeyVault struct {
	mock.Mock
}

func (m *MockKeyVault) Encrypt(ctx context.Context, plaintext []byte) (string, error) {
	args := m.Called(ctx, plaintext)
	return args.String(0), args.Error(1)
}

func (m *MockKeyVault) Decrypt(ctx context.Context, blob string) ([]byte, error) {
	args := m.Called(ctx, blob)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	// callers zero the returned key
	return append([]byte(nil), args.Get(0).([]byte)...), args.Error(1)
}

// Mock PriceOracle
type MockPriceOracle struct {
	mock.Mock
}

func (m *MockPriceOracle) LatestPrice(ctx context.Context, asset string) (oracle.Price, error) {
	args := m.Called(ctx, asset)
	return args.Get(0).(oracle.Price), args.Error(1)
}

// Mock FXProvider
type MockFXProvider struct {
	mock.Mock
}

func (m *MockFXProvider) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	args := m.Called(ctx, from, to)
	return args.Get(0).(decimal.Decimal), args.Error(1)
}

// Mock SettlementProvider
type MockSettlementProvider struct {
	mock.Mock
}

func (m *MockSettlementProvider) SubmitOfframp(ctx context.Context, req settlement.OfframpRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func (m *MockSettlementProvider) GetOfframpStatus(ctx context.Context, reference string) (settlement.StatusResult, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(settlement.StatusResult), args.Error(1)
}

func (m *MockSettlementProvider) VerifyCallback(signed string) (settlement.StatusResult, error) {
	args := m.Called(signed)
	return args.Get(0).(settlement.StatusResult), args.Error(1)
}

// Mock IdentityProvider
type MockIdentityProvider struct {
	mock.Mock
}

func (m *MockIdentityProvider) GetVerificationTier(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

// Mock QuoteChecker
type MockQuoteChecker struct {
	mock.Mock
}

func (m *MockQuoteChecker) CheckQuote(ctx context.Context, q *entities.Quote) error {
	args := m.Called(ctx, q)
	return args.Error(0)
}
