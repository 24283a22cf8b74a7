package usecases

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/internal/infrastructure/blockchain"
	"offramp.backend/internal/infrastructure/metrics"
	"offramp.backend/pkg/crypto"
	"offramp.backend/pkg/logger"
	"offramp.backend/pkg/utils"
)

// SweepOutcome describes what one sweep pass did
type SweepOutcome string

const (
	SweepOutcomeSubmitted    SweepOutcome = "submitted"
	SweepOutcomeAlreadySwept SweepOutcome = "already_swept"
	SweepOutcomeAwaitingGas  SweepOutcome = "awaiting_gas"
	SweepOutcomeUnderfunded  SweepOutcome = "underfunded"
	SweepOutcomeFailed       SweepOutcome = "failed"
	SweepOutcomeUnmarked     SweepOutcome = "submitted_unmarked"
	SweepOutcomeSkipped      SweepOutcome = "skipped"
)

// SweepResult is returned for every sweep attempt
type SweepResult struct {
	DepositID uuid.UUID    `json:"depositId"`
	Outcome   SweepOutcome `json:"outcome"`
	TxRef     string       `json:"txRef,omitempty"`
	Amount    string       `json:"amount,omitempty"`
	// Batch lists every deposit the transfer covered, DepositID included.
	Batch []uuid.UUID `json:"batch,omitempty"`
}

// FeeSponsor is the part of GasSponsor the sweeper depends on
type FeeSponsor interface {
	SponsorAddress(ctx context.Context, chain string) (string, error)
	Sponsor(ctx context.Context, chain string, tx *blockchain.Transaction) (*blockchain.Transaction, error)
	FundGas(ctx context.Context, chain, address string, amount *big.Int) (string, error)
}

// SweeperConfig tunes retry and fan-out
type SweeperConfig struct {
	MaxAttempts   int
	Workers       int
	GasTopUpRatio int64
}

// Sweeper moves confirmed deposits to the chain's treasury address
type Sweeper struct {
	deposits  repositories.OnchainDepositRepository
	addresses repositories.DepositAddressRepository
	registry  ChainRegistry
	vault     KeyVault
	sponsor   FeeSponsor
	locker    LeaseLocker
	cfg       SweeperConfig
	now       func() time.Time
}

// NewSweeper creates a new sweeper
func NewSweeper(
	deposits repositories.OnchainDepositRepository,
	addresses repositories.DepositAddressRepository,
	registry ChainRegistry,
	vault KeyVault,
	sponsor FeeSponsor,
	locker LeaseLocker,
	cfg SweeperConfig,
) *Sweeper {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultSweepMaxAttempts
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultSweepWorkers
	}
	if cfg.GasTopUpRatio <= 0 {
		cfg.GasTopUpRatio = DefaultGasTopUpRatio
	}
	return &Sweeper{
		deposits:  deposits,
		addresses: addresses,
		registry:  registry,
		vault:     vault,
		sponsor:   sponsor,
		locker:    locker,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Sweep moves a confirmed deposit to treasury together with every other confirmed deposit of the
// same asset on its address. Concurrent calls for the same address run one at a time.
func (s *Sweeper) Sweep(ctx context.Context, depositID uuid.UUID) (SweepResult, error) {
	res := SweepResult{DepositID: depositID}

	dep, err := s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return res, err
	}
	lease, err := s.locker.Acquire(ctx, "sweep:"+dep.DepositAddressID.String())
	if err != nil {
		return res, fmt.Errorf("failed to acquire sweep lock: %w", err)
	}
	defer lease.Release()

	// re-read under the lock; a concurrent sweep may have finished
	dep, err = s.deposits.GetByID(ctx, depositID)
	if err != nil {
		return res, err
	}
	switch {
	case dep.Status == entities.DepositStatusSwept:
		res.Outcome = SweepOutcomeAlreadySwept
		res.TxRef = dep.SweepTxRef.String
		return res, nil
	case dep.Status != entities.DepositStatusConfirmed:
		res.Outcome = SweepOutcomeSkipped
		return res, fmt.Errorf("%w: deposit is %s", domainerrors.ErrStatusConflict, dep.Status)
	case dep.NeedsReview:
		res.Outcome = SweepOutcomeSkipped
		return res, fmt.Errorf("%w: deposit is flagged for review", domainerrors.ErrStatusConflict)
	}

	return s.sweepLocked(ctx, lease, dep)
}

// Retry clears a review flag and sweeps again. Used by operators once the cause is fixed.
func (s *Sweeper) Retry(ctx context.Context, depositID uuid.UUID) (SweepResult, error) {
	if err := s.deposits.ClearReview(ctx, depositID); err != nil {
		return SweepResult{DepositID: depositID}, err
	}
	return s.Sweep(ctx, depositID)
}

// SweepConfirmed sweeps up to limit confirmed deposits with a bounded worker pool
func (s *Sweeper) SweepConfirmed(ctx context.Context, limit int) ([]SweepResult, error) {
	deps, err := s.deposits.ListSweepable(ctx, limit)
	if err != nil {
		return nil, err
	}

	results := make([]SweepResult, len(deps))
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for i, dep := range deps {
		g.Go(func() error {
			res, err := s.Sweep(ctx, dep.ID)
			if err != nil {
				logger.Warn(ctx, "Sweep did not complete",
					zap.String("deposit_id", dep.ID.String()),
					zap.String("chain", dep.Chain),
					zap.String("outcome", string(res.Outcome)),
					zap.Error(err),
				)
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results, ctx.Err()
}

func (s *Sweeper) sweepLocked(ctx context.Context, lease utils.Lease, dep *entities.OnchainDeposit) (SweepResult, error) {
	res := SweepResult{DepositID: dep.ID}

	// chain work stops before the address lock can lapse
	lctx, cancel := leaseContext(ctx, lease)
	defer cancel()

	chain, err := s.registry.Chain(dep.Chain)
	if err != nil {
		return res, err
	}
	if chain.TreasuryAddress == "" {
		return res, fmt.Errorf("treasury address not configured for %s", chain.Name)
	}
	asset, ok := chain.AssetByToken(dep.Token)
	if !ok {
		return s.flag(ctx, dep, res, SweepOutcomeSkipped, entities.ReviewReasonUnknownAsset,
			fmt.Errorf("%w: token %s", domainerrors.ErrUnsupportedAsset, dep.Token))
	}
	adapter, err := s.registry.Adapter(chain.Name)
	if err != nil {
		return res, err
	}
	addr, err := s.addresses.GetByID(lctx, dep.DepositAddressID)
	if err != nil {
		return res, err
	}

	batch, err := s.sweepBatch(lctx, dep)
	if err != nil {
		return res, err
	}
	owed := batchAmount(batch)
	for _, b := range batch {
		res.Batch = append(res.Batch, b.ID)
	}

	req := blockchain.TransferRequest{From: addr.Address, To: chain.TreasuryAddress, Token: asset.Token}
	sponsored := !adapter.SelfPaysFee()
	if sponsored {
		if req.FeePayer, err = s.sponsor.SponsorAddress(lctx, chain.Name); err != nil {
			return res, err
		}
	}

	topUp, err := s.checkFunds(lctx, adapter, req, asset, owed, sponsored)
	if errors.Is(err, domainerrors.ErrSweepUnderfunded) {
		return s.flag(ctx, dep, res, SweepOutcomeUnderfunded, entities.ReviewReasonUnderfunded, err)
	}
	if err != nil {
		return s.fail(ctx, dep, res, err)
	}
	if topUp != nil {
		return s.fundGas(lctx, chain, addr.Address, dep, res, topUp)
	}

	req.Amount = owed
	// a native sender paying its own gas spends exactly what the batch owes
	req.DeductFee = asset.IsNative() && !sponsored
	tx, err := adapter.BuildTransfer(lctx, req)
	if errors.Is(err, blockchain.ErrInvalidAmount) {
		return s.flag(ctx, dep, res, SweepOutcomeUnderfunded, entities.ReviewReasonUnderfunded,
			fmt.Errorf("%w: %v", domainerrors.ErrSweepUnderfunded, err))
	}
	if err != nil {
		return s.fail(ctx, dep, res, err)
	}
	res.Amount = tx.Amount.String()

	key, err := s.vault.Decrypt(lctx, addr.EncryptedPrivateKey)
	if err != nil {
		if errors.Is(err, domainerrors.ErrIntegrity) {
			return s.flag(ctx, dep, res, SweepOutcomeFailed, entities.ReviewReasonKeyIntegrity, err)
		}
		return s.fail(ctx, dep, res, err)
	}
	tx, err = adapter.Sign(lctx, tx, key)
	crypto.Zero(key)
	if err != nil {
		return s.fail(ctx, dep, res, err)
	}

	if sponsored {
		tx, err = s.sponsor.Sponsor(lctx, chain.Name, tx)
		if errors.Is(err, domainerrors.ErrInsufficientGasCapacity) {
			res.Outcome = SweepOutcomeAwaitingGas
			metrics.SweepOutcomes.WithLabelValues(dep.Chain, string(res.Outcome)).Inc()
			return res, err
		}
		if err != nil {
			return s.fail(ctx, dep, res, err)
		}
	}

	// nothing is on chain yet; if another worker may own the address now, back off
	if err := lease.Refresh(ctx); err != nil {
		res.Outcome = SweepOutcomeSkipped
		metrics.SweepOutcomes.WithLabelValues(dep.Chain, string(res.Outcome)).Inc()
		return res, fmt.Errorf("sweep lock lost before submit: %w", err)
	}
	sctx, cancelSubmit := leaseContext(ctx, lease)
	defer cancelSubmit()

	ref, err := adapter.Submit(sctx, tx)
	if err != nil {
		return s.fail(ctx, dep, res, err)
	}
	res.TxRef = ref

	marked, err := s.deposits.MarkSwept(ctx, res.Batch, ref, s.now())
	if err != nil || marked != len(res.Batch) {
		if err == nil {
			err = fmt.Errorf("%w: %d of %d deposits marked", domainerrors.ErrStatusConflict, marked, len(res.Batch))
		}
		// the transfer is on chain; record the ref and never resubmit
		return s.flagUnmarked(ctx, dep, batch, res, fmt.Errorf("submitted %s but failed to mark swept: %w", ref, err))
	}

	res.Outcome = SweepOutcomeSubmitted
	metrics.SweepOutcomes.WithLabelValues(dep.Chain, string(res.Outcome)).Inc()
	logger.Info(ctx, "Deposit swept",
		zap.String("deposit_id", dep.ID.String()),
		zap.String("chain", dep.Chain),
		zap.String("tx_ref", ref),
		zap.String("amount", res.Amount),
		zap.Int("deposits", len(res.Batch)),
	)
	return res, nil
}

// sweepBatch returns the confirmed, unflagged deposits of dep's asset on its address, dep included.
func (s *Sweeper) sweepBatch(ctx context.Context, dep *entities.OnchainDeposit) ([]*entities.OnchainDeposit, error) {
	batch, err := s.deposits.ListSweepableByAddress(ctx, dep.DepositAddressID, dep.Token)
	if err != nil {
		return nil, err
	}
	for _, b := range batch {
		if b.ID == dep.ID {
			return batch, nil
		}
	}
	return append(batch, dep), nil
}

func batchAmount(batch []*entities.OnchainDeposit) *big.Int {
	total := new(big.Int)
	for _, b := range batch {
		total.Add(total, b.Amount.BigInt())
	}
	return total
}

// checkFunds makes sure the address still holds what the batch owes. For a token sweep the address pays
// for itself, it returns the native top-up the address needs first, or nil.
func (s *Sweeper) checkFunds(ctx context.Context, adapter blockchain.ChainAdapter, req blockchain.TransferRequest, asset entities.Asset, owed *big.Int, sponsored bool) (*big.Int, error) {
	var (
		balance *big.Int
		err     error
	)
	if asset.IsNative() {
		balance, err = adapter.NativeBalance(ctx, req.From)
	} else {
		balance, err = adapter.TokenBalance(ctx, req.From, asset.Token)
	}
	if err != nil {
		return nil, err
	}
	if owed.Sign() <= 0 || balance.Cmp(owed) < 0 {
		return nil, fmt.Errorf("%w: address holds %s, deposits total %s", domainerrors.ErrSweepUnderfunded, balance, owed)
	}
	if sponsored || asset.IsNative() {
		return nil, nil
	}

	req.Amount = owed
	fee, err := adapter.EstimateFee(ctx, req)
	if err != nil {
		return nil, err
	}
	native, err := adapter.NativeBalance(ctx, req.From)
	if err != nil {
		return nil, err
	}
	if native.Cmp(fee) >= 0 {
		return nil, nil
	}
	topUp := new(big.Int).Mul(fee, big.NewInt(s.cfg.GasTopUpRatio))
	return topUp.Sub(topUp, native), nil
}

// leaseContext bounds ctx by the lease deadline.
func leaseContext(ctx context.Context, lease utils.Lease) (context.Context, context.CancelFunc) {
	if d := lease.Deadline(); !d.IsZero() {
		return context.WithDeadline(ctx, d)
	}
	return context.WithCancel(ctx)
}

func (s *Sweeper) fundGas(ctx context.Context, chain entities.Chain, address string, dep *entities.OnchainDeposit, res SweepResult, amount *big.Int) (SweepResult, error) {
	ref, err := s.sponsor.FundGas(ctx, chain.Name, address, amount)
	res.Outcome = SweepOutcomeAwaitingGas
	metrics.SweepOutcomes.WithLabelValues(dep.Chain, string(res.Outcome)).Inc()
	if err != nil {
		return res, fmt.Errorf("failed to fund gas: %w", err)
	}
	logger.Info(ctx, "Deposit address awaiting gas",
		zap.String("deposit_id", dep.ID.String()),
		zap.String("chain", dep.Chain),
		zap.String("funding_tx_ref", ref),
	)
	return res, nil
}

func (s *Sweeper) fail(ctx context.Context, dep *entities.OnchainDeposit, res SweepResult, cause error) (SweepResult, error) {
	res.Outcome = SweepOutcomeFailed
	metrics.SweepOutcomes.WithLabelValues(dep.Chain, string(res.Outcome)).Inc()

	attempts, err := s.deposits.RecordSweepFailure(ctx, dep.ID, truncateError(cause))
	if err != nil {
		return res, errors.Join(cause, err)
	}
	logger.Warn(ctx, "Sweep failed",
		zap.String("deposit_id", dep.ID.String()),
		zap.String("chain", dep.Chain),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	if attempts >= s.cfg.MaxAttempts {
		return s.flag(ctx, dep, res, SweepOutcomeFailed, entities.ReviewReasonMaxAttempts, cause)
	}
	return res, fmt.Errorf("sweep failed: %w", cause)
}

// flagUnmarked parks every batch member the mark missed, recording the on-chain ref on each.
func (s *Sweeper) flagUnmarked(ctx context.Context, dep *entities.OnchainDeposit, batch []*entities.OnchainDeposit, res SweepResult, cause error) (SweepResult, error) {
	res.Outcome = SweepOutcomeUnmarked
	metrics.SweepOutcomes.WithLabelValues(dep.Chain, string(res.Outcome)).Inc()

	var errs []error
	for _, b := range batch {
		if cur, err := s.deposits.GetByID(ctx, b.ID); err == nil && cur.Status == entities.DepositStatusSwept {
			continue
		}
		if _, err := s.deposits.RecordSweepFailure(ctx, b.ID, truncateError(cause)); err != nil {
			errs = append(errs, err)
		}
		if err := s.deposits.FlagReview(ctx, b.ID, entities.ReviewReasonMarkFailed); err != nil {
			errs = append(errs, err)
		}
	}
	logger.Error(ctx, "Deposit flagged for review",
		zap.String("deposit_id", dep.ID.String()),
		zap.String("chain", dep.Chain),
		zap.String("reason", entities.ReviewReasonMarkFailed),
		zap.String("tx_ref", res.TxRef),
		zap.Int("deposits", len(batch)),
		zap.Error(cause),
	)
	return res, errors.Join(append([]error{cause}, errs...)...)
}

func (s *Sweeper) flag(ctx context.Context, dep *entities.OnchainDeposit, res SweepResult, outcome SweepOutcome, reason string, cause error) (SweepResult, error) {
	res.Outcome = outcome
	if outcome != SweepOutcomeFailed {
		metrics.SweepOutcomes.WithLabelValues(dep.Chain, string(outcome)).Inc()
	}
	if err := s.deposits.FlagReview(ctx, dep.ID, reason); err != nil {
		return res, errors.Join(cause, err)
	}
	logger.Error(ctx, "Deposit flagged for review",
		zap.String("deposit_id", dep.ID.String()),
		zap.String("chain", dep.Chain),
		zap.String("reason", reason),
		zap.String("tx_ref", res.TxRef),
		zap.Error(cause),
	)
	return res, cause
}
