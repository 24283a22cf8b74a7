package usecases

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/volatiletech/null/v8"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
)

func newWalletFactoryFixture() (*WalletFactory, *MockDepositAddressRepository, *MockKeyVault, *fakeAdapter) {
	adapter := newFakeAdapter("ethereum", true, 12)
	reg := newTestRegistry(map[*fakeAdapter]entities.Chain{adapter: evmChain()})
	repo := new(MockDepositAddressRepository)
	vault := new(MockKeyVault)
	return NewWalletFactory(repo, reg, vault), repo, vault, adapter
}

func TestWalletFactory_CreateWallet_MintsAndZeroesKey(t *testing.T) {
	f, repo, vault, _ := newWalletFactoryFixture()
	ctx := context.Background()
	userID := uuid.New()

	var plaintext []byte
	repo.On("GetActive", ctx, userID, "ethereum", entities.DefaultAssetGroup).Return(nil, domainerrors.ErrNotFound).Once()
	vault.On("Encrypt", ctx, mock.Anything).Run(func(args mock.Arguments) {
		plaintext = args.Get(1).([]byte)
	}).Return("sealed-blob", nil).Once()
	repo.On("Create", ctx, mock.MatchedBy(func(a *entities.DepositAddress) bool {
		return a.UserID == userID && a.Chain == "ethereum" && a.AssetGroup == entities.DefaultAssetGroup &&
			a.Address == "ethereum-addr-1" && a.EncryptedPrivateKey == "sealed-blob"
	})).Return(nil).Once()

	got, err := f.CreateWallet(ctx, userID, "Ethereum", "")
	require.NoError(t, err)
	assert.Equal(t, "ethereum-addr-1", got.Address)
	assert.Equal(t, "random/secp256k1", got.DerivationPath)

	require.NotEmpty(t, plaintext)
	for _, b := range plaintext {
		require.Zero(t, b)
	}
	repo.AssertExpectations(t)
	vault.AssertExpectations(t)
}

func TestWalletFactory_CreateWallet_ReturnsExistingActive(t *testing.T) {
	f, repo, vault, adapter := newWalletFactoryFixture()
	ctx := context.Background()
	userID := uuid.New()
	existing := &entities.DepositAddress{ID: uuid.New(), UserID: userID, Chain: "ethereum", AssetGroup: "stable", Address: "0xexisting"}

	repo.On("GetActive", ctx, userID, "ethereum", "stable").Return(existing, nil).Once()

	got, err := f.CreateWallet(ctx, userID, "ethereum", "Stable")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, got.ID)
	assert.Zero(t, adapter.keys)
	vault.AssertNotCalled(t, "Encrypt", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestWalletFactory_CreateWallet_ConcurrentCallsMintOnce(t *testing.T) {
	f, repo, vault, adapter := newWalletFactoryFixture()
	ctx := context.Background()
	userID := uuid.New()
	minted := &entities.DepositAddress{ID: uuid.New(), UserID: userID, Chain: "ethereum", Address: "ethereum-addr-1"}

	repo.On("GetActive", ctx, userID, "ethereum", entities.DefaultAssetGroup).Return(nil, domainerrors.ErrNotFound).Once()
	repo.On("GetActive", ctx, userID, "ethereum", entities.DefaultAssetGroup).Return(minted, nil)
	vault.On("Encrypt", ctx, mock.Anything).Return("blob", nil).Once()
	repo.On("Create", ctx, mock.Anything).Return(nil).Once()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.CreateWallet(ctx, userID, "ethereum", "")
			assert.NoError(t, err)
			assert.Equal(t, "ethereum-addr-1", got.Address)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, adapter.keys)
	repo.AssertNumberOfCalls(t, "Create", 1)
}

func TestWalletFactory_CreateWallet_LostUniqueRaceReturnsWinner(t *testing.T) {
	f, repo, vault, _ := newWalletFactoryFixture()
	ctx := context.Background()
	userID := uuid.New()
	winner := &entities.DepositAddress{ID: uuid.New(), UserID: userID, Chain: "ethereum", Address: "0xwinner"}

	repo.On("GetActive", ctx, userID, "ethereum", entities.DefaultAssetGroup).Return(nil, domainerrors.ErrNotFound).Once()
	vault.On("Encrypt", ctx, mock.Anything).Return("blob", nil).Once()
	repo.On("Create", ctx, mock.Anything).Return(domainerrors.ErrAlreadyExists).Once()
	repo.On("GetActive", ctx, userID, "ethereum", entities.DefaultAssetGroup).Return(winner, nil).Once()

	got, err := f.CreateWallet(ctx, userID, "ethereum", "")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, got.ID)
}

func TestWalletFactory_CreateWallet_Errors(t *testing.T) {
	f, _, _, _ := newWalletFactoryFixture()
	ctx := context.Background()

	_, err := f.CreateWallet(ctx, uuid.Nil, "ethereum", "")
	assert.ErrorIs(t, err, domainerrors.ErrInvalidInput)

	_, err = f.CreateWallet(ctx, uuid.New(), "dogecoin", "")
	assert.ErrorIs(t, err, domainerrors.ErrUnsupportedChain)
}

func TestWalletFactory_DisableWallet(t *testing.T) {
	f, repo, _, _ := newWalletFactoryFixture()
	ctx := context.Background()
	owner := uuid.New()
	addr := &entities.DepositAddress{ID: uuid.New(), UserID: owner, Chain: "ethereum"}
	retired := &entities.DepositAddress{ID: uuid.New(), UserID: owner, DisabledAt: null.TimeFrom(time.Now())}

	repo.On("GetByID", ctx, addr.ID).Return(addr, nil)
	repo.On("GetByID", ctx, retired.ID).Return(retired, nil)
	repo.On("Disable", ctx, addr.ID, mock.AnythingOfType("time.Time")).Return(nil).Once()

	assert.ErrorIs(t, f.DisableWallet(ctx, uuid.New(), addr.ID), domainerrors.ErrForbidden)
	require.NoError(t, f.DisableWallet(ctx, owner, addr.ID))
	require.NoError(t, f.DisableWallet(ctx, owner, retired.ID))
	repo.AssertNumberOfCalls(t, "Disable", 1)
}
