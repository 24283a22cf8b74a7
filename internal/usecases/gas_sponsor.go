package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/internal/infrastructure/blockchain"
	"offramp.backend/internal/infrastructure/metrics"
	"offramp.backend/pkg/crypto"
	"offramp.backend/pkg/logger"
	"offramp.backend/pkg/utils"
)

// defaultReservationTTL is how long a signed fee stays reserved against the sponsor balance
const defaultReservationTTL = 2 * time.Minute

// Capacity is a point-in-time view of a sponsor wallet. Amounts are native base units.
type Capacity struct {
	Chain        string          `json:"chain"`
	Address      string          `json:"address"`
	Balance      decimal.Decimal `json:"balance"`
	Reserved     decimal.Decimal `json:"reserved"`
	Threshold    decimal.Decimal `json:"threshold"`
	EstimatedFee decimal.Decimal `json:"estimatedFee"`
	Sufficient   bool            `json:"sufficient"`
}

type reservation struct {
	amount decimal.Decimal
	until  time.Time
}

// GasSponsor pays fees from one funding wallet per chain
type GasSponsor struct {
	wallets  repositories.GasSponsorWalletRepository
	registry ChainRegistry
	vault    KeyVault
	locks    *utils.KeyedMutex
	now      func() time.Time

	reserveFor time.Duration
	mu         sync.Mutex
	reserved   map[string][]reservation
}

// NewGasSponsor creates a new gas sponsor
func NewGasSponsor(
	wallets repositories.GasSponsorWalletRepository,
	registry ChainRegistry,
	vault KeyVault,
) *GasSponsor {
	return &GasSponsor{
		wallets:    wallets,
		registry:   registry,
		vault:      vault,
		locks:      utils.NewKeyedMutex(),
		now:        time.Now,
		reserveFor: defaultReservationTTL,
		reserved:   make(map[string][]reservation),
	}
}

// ProvisionWallet mints a new sponsor key for chain and makes it the active fee payer.
// The previous wallet is deactivated; its funds must be moved by an operator.
func (g *GasSponsor) ProvisionWallet(ctx context.Context, chain string, threshold decimal.Decimal) (*entities.GasSponsorWallet, error) {
	cfg, err := g.registry.Chain(chain)
	if err != nil {
		return nil, err
	}
	if threshold.IsNegative() {
		return nil, domainerrors.BadRequest("threshold must not be negative")
	}
	adapter, err := g.registry.Adapter(cfg.Name)
	if err != nil {
		return nil, err
	}

	unlock, err := g.locks.Lock(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	key, err := adapter.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	defer crypto.Zero(key.PrivateKey)

	blob, err := g.vault.Encrypt(ctx, key.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt key: %w", err)
	}

	w := &entities.GasSponsorWallet{
		Chain:               cfg.Name,
		Address:             key.Address,
		EncryptedPrivateKey: blob,
		MinBalanceThreshold: threshold,
		IsActive:            true,
	}
	if err := g.wallets.Upsert(ctx, w); err != nil {
		return nil, err
	}

	g.mu.Lock()
	delete(g.reserved, cfg.Name)
	g.mu.Unlock()

	logger.Info(ctx, "Gas sponsor wallet provisioned",
		zap.String("chain", cfg.Name),
		zap.String("address", w.Address),
	)
	return w, nil
}

// SponsorAddress returns the fee payer address for a chain
func (g *GasSponsor) SponsorAddress(ctx context.Context, chain string) (string, error) {
	w, _, _, err := g.resolve(ctx, chain)
	if err != nil {
		return "", err
	}
	return w.Address, nil
}

// CheckCapacity reports whether the sponsor can pay fee. A nil fee uses the chain's native transfer estimate.
func (g *GasSponsor) CheckCapacity(ctx context.Context, chain string, fee *big.Int) (Capacity, error) {
	w, cfg, adapter, err := g.resolve(ctx, chain)
	if err != nil {
		return Capacity{}, err
	}
	if fee == nil {
		fee, err = adapter.EstimateFee(ctx, blockchain.TransferRequest{
			From:   w.Address,
			To:     w.Address,
			Amount: big.NewInt(1),
		})
		if err != nil {
			return Capacity{}, fmt.Errorf("failed to estimate fee: %w", err)
		}
	}
	return g.capacity(ctx, cfg, w, adapter, fee)
}

// Sponsor signs tx as fee payer. It is rejected before any key is decrypted when capacity is short.
func (g *GasSponsor) Sponsor(ctx context.Context, chain string, tx *blockchain.Transaction) (*blockchain.Transaction, error) {
	w, cfg, adapter, err := g.resolve(ctx, chain)
	if err != nil {
		return nil, err
	}
	if !tx.NeedsSigner(w.Address) {
		return nil, fmt.Errorf("%w: sponsor is not a signer of the transaction", domainerrors.ErrInvalidInput)
	}

	unlock, err := g.locks.Lock(ctx, cfg.Name)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := g.ensureCapacity(ctx, cfg, w, adapter, tx.Fee); err != nil {
		return nil, err
	}

	key, err := g.vault.Decrypt(ctx, w.EncryptedPrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt sponsor key: %w", err)
	}
	defer crypto.Zero(key)

	signed, err := adapter.Sign(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	g.reserve(cfg.Name, fromBigInt(tx.Fee))
	return signed, nil
}

// FundGas sends native coin from the sponsor to address so a self-paying sender can cover its own fee.
func (g *GasSponsor) FundGas(ctx context.Context, chain, address string, amount *big.Int) (string, error) {
	w, cfg, adapter, err := g.resolve(ctx, chain)
	if err != nil {
		return "", err
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", domainerrors.BadRequest("funding amount must be positive")
	}

	unlock, err := g.locks.Lock(ctx, cfg.Name)
	if err != nil {
		return "", err
	}
	defer unlock()

	req := blockchain.TransferRequest{From: w.Address, To: address, Amount: amount}
	fee, err := adapter.EstimateFee(ctx, req)
	if err != nil {
		return "", fmt.Errorf("failed to estimate fee: %w", err)
	}
	total := new(big.Int).Add(amount, fee)
	if _, err := g.ensureCapacity(ctx, cfg, w, adapter, total); err != nil {
		return "", err
	}

	tx, err := adapter.BuildTransfer(ctx, req)
	if err != nil {
		return "", err
	}
	key, err := g.vault.Decrypt(ctx, w.EncryptedPrivateKey)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt sponsor key: %w", err)
	}
	defer crypto.Zero(key)

	if tx, err = adapter.Sign(ctx, tx, key); err != nil {
		return "", err
	}
	ref, err := adapter.Submit(ctx, tx)
	if err != nil {
		return "", err
	}
	g.reserve(cfg.Name, fromBigInt(total))

	logger.Info(ctx, "Gas funded",
		zap.String("chain", cfg.Name),
		zap.String("to", address),
		zap.String("amount", amount.String()),
		zap.String("tx_ref", ref),
	)
	return ref, nil
}

func (g *GasSponsor) resolve(ctx context.Context, chain string) (*entities.GasSponsorWallet, entities.Chain, blockchain.ChainAdapter, error) {
	cfg, err := g.registry.Chain(chain)
	if err != nil {
		return nil, entities.Chain{}, nil, err
	}
	w, err := g.wallets.GetActiveByChain(ctx, cfg.Name)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, cfg, nil, fmt.Errorf("%w: %s", domainerrors.ErrSponsorNotConfigured, cfg.Name)
		}
		return nil, cfg, nil, err
	}
	adapter, err := g.registry.Adapter(cfg.Name)
	if err != nil {
		return nil, cfg, nil, err
	}
	return w, cfg, adapter, nil
}

// ensureCapacity must run under the chain lock
func (g *GasSponsor) ensureCapacity(ctx context.Context, cfg entities.Chain, w *entities.GasSponsorWallet, adapter blockchain.ChainAdapter, fee *big.Int) (Capacity, error) {
	c, err := g.capacity(ctx, cfg, w, adapter, fee)
	if err != nil {
		return c, err
	}
	if !c.Sufficient {
		metrics.SponsorRejections.WithLabelValues(cfg.Name).Inc()
		logger.Warn(ctx, "Gas sponsorship rejected",
			zap.String("chain", cfg.Name),
			zap.String("balance", c.Balance.String()),
			zap.String("reserved", c.Reserved.String()),
			zap.String("threshold", c.Threshold.String()),
			zap.String("estimated_fee", c.EstimatedFee.String()),
		)
		return c, fmt.Errorf("%w: %s balance %s below %s", domainerrors.ErrInsufficientGasCapacity,
			cfg.Name, c.Balance.Sub(c.Reserved), c.Threshold.Add(c.EstimatedFee))
	}
	return c, nil
}

func (g *GasSponsor) capacity(ctx context.Context, cfg entities.Chain, w *entities.GasSponsorWallet, adapter blockchain.ChainAdapter, fee *big.Int) (Capacity, error) {
	balance, err := adapter.NativeBalance(ctx, w.Address)
	if err != nil {
		return Capacity{}, fmt.Errorf("failed to read sponsor balance: %w", err)
	}
	threshold := w.MinBalanceThreshold
	if !threshold.IsPositive() {
		threshold = cfg.SponsorMinBalance
	}
	c := Capacity{
		Chain:        cfg.Name,
		Address:      w.Address,
		Balance:      fromBigInt(balance),
		Reserved:     g.reservedFor(cfg.Name),
		Threshold:    threshold,
		EstimatedFee: fromBigInt(fee),
	}
	c.Sufficient = c.Balance.Sub(c.Reserved).GreaterThanOrEqual(c.Threshold.Add(c.EstimatedFee))
	return c, nil
}

func (g *GasSponsor) reserve(chain string, amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.reserved[chain] = append(g.reserved[chain], reservation{amount: amount, until: g.now().Add(g.reserveFor)})
}

func (g *GasSponsor) reservedFor(chain string) decimal.Decimal {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	total := decimal.Zero
	live := g.reserved[chain][:0]
	for _, r := range g.reserved[chain] {
		if now.Before(r.until) {
			live = append(live, r)
			total = total.Add(r.amount)
		}
	}
	g.reserved[chain] = live
	return total
}
