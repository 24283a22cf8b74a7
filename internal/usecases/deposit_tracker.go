package usecases

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
	"go.uber.org/zap"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/internal/infrastructure/metrics"
	"offramp.backend/pkg/logger"
	"offramp.backend/pkg/utils"
)

// unknownAssetSymbol is stored for transfers of tokens the chain config does not list
const unknownAssetSymbol = "UNKNOWN"

var (
	refreshable = []entities.DepositStatus{entities.DepositStatusDetected, entities.DepositStatusConfirming}
	// confirmed deposits stay on the poll list until swept so a reorg is noticed
	pollable = []entities.DepositStatus{
		entities.DepositStatusDetected,
		entities.DepositStatusConfirming,
		entities.DepositStatusConfirmed,
	}
)

// DepositTracker records inbound transfers and advances them to confirmed
type DepositTracker struct {
	addresses repositories.DepositAddressRepository
	deposits  repositories.OnchainDepositRepository
	registry  ChainRegistry
	now       func() time.Time
}

// NewDepositTracker creates a new deposit tracker
func NewDepositTracker(
	addresses repositories.DepositAddressRepository,
	deposits repositories.OnchainDepositRepository,
	registry ChainRegistry,
) *DepositTracker {
	return &DepositTracker{
		addresses: addresses,
		deposits:  deposits,
		registry:  registry,
		now:       time.Now,
	}
}

// Ingest records the first sighting of a transfer. A repeated event returns the existing record.
func (t *DepositTracker) Ingest(ctx context.Context, ev entities.DepositEvent) (*entities.OnchainDeposit, error) {
	ev.TxRef = strings.TrimSpace(ev.TxRef)
	ev.Address = strings.TrimSpace(ev.Address)
	if ev.TxRef == "" || ev.Address == "" {
		return nil, domainerrors.BadRequest("txRef and address are required")
	}
	if !ev.Amount.IsPositive() || !ev.Amount.Equal(ev.Amount.Truncate(0)) {
		return nil, domainerrors.BadRequest("amount must be a positive integer in base units")
	}

	chain, err := t.registry.Chain(ev.Chain)
	if err != nil {
		return nil, err
	}
	addr, err := t.addresses.GetByChainAddress(ctx, chain.Name, ev.Address)
	if err != nil {
		if errors.Is(err, domainerrors.ErrNotFound) {
			return nil, fmt.Errorf("unknown deposit address %s on %s: %w", ev.Address, chain.Name, err)
		}
		return nil, err
	}

	existing, err := t.deposits.GetByTxRef(ctx, addr.ID, ev.TxRef)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, domainerrors.ErrNotFound) {
		return nil, err
	}

	now := t.now()
	dep := &entities.OnchainDeposit{
		DepositAddressID:      addr.ID,
		Chain:                 chain.Name,
		Token:                 ev.Token,
		TxRef:                 ev.TxRef,
		Initiator:             ev.Initiator,
		Amount:                ev.Amount,
		RequiredConfirmations: chain.RequiredConfirmations,
		Status:                entities.DepositStatusConfirming,
		DetectedAt:            now,
		UpdatedAt:             now,
	}
	if asset, ok := chain.AssetByToken(ev.Token); ok {
		dep.Asset = asset.Symbol
	} else {
		dep.Asset = unknownAssetSymbol
		dep.NeedsReview = true
		dep.ReviewReason = null.StringFrom(entities.ReviewReasonUnknownAsset)
	}

	if err := t.deposits.Create(ctx, dep); err != nil {
		if errors.Is(err, domainerrors.ErrAlreadyExists) {
			return t.deposits.GetByTxRef(ctx, addr.ID, ev.TxRef)
		}
		return nil, err
	}

	metrics.DepositTransitions.WithLabelValues(chain.Name, string(dep.Status)).Inc()
	fields := []zap.Field{
		zap.String("deposit_id", dep.ID.String()),
		zap.String("chain", chain.Name),
		zap.String("tx_ref", dep.TxRef),
		zap.String("asset", dep.Asset),
		zap.String("amount", dep.Amount.String()),
	}
	if !addr.IsActive() {
		fields = append(fields, zap.Bool("retired_address", true))
	}
	logger.Info(ctx, "Deposit detected", fields...)
	return dep, nil
}

// Refresh polls the chain for one deposit and applies any transition it allows
func (t *DepositTracker) Refresh(ctx context.Context, id uuid.UUID) (*entities.OnchainDeposit, error) {
	dep, err := t.deposits.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return t.refresh(ctx, dep)
}

// RefreshPending refreshes up to limit open deposits and returns how many were polled
func (t *DepositTracker) RefreshPending(ctx context.Context, limit int) (int, error) {
	deps, err := t.deposits.ListByStatus(ctx, pollable, limit)
	if err != nil {
		return 0, err
	}
	polled := 0
	for _, dep := range deps {
		if ctx.Err() != nil {
			return polled, ctx.Err()
		}
		if dep.Status == entities.DepositStatusConfirmed && dep.NeedsReview {
			continue
		}
		if _, err := t.refresh(ctx, dep); err != nil {
			logger.Warn(ctx, "Deposit refresh failed",
				zap.String("deposit_id", dep.ID.String()),
				zap.String("chain", dep.Chain),
				zap.Error(err),
			)
			continue
		}
		polled++
	}
	return polled, nil
}

func (t *DepositTracker) refresh(ctx context.Context, dep *entities.OnchainDeposit) (*entities.OnchainDeposit, error) {
	switch dep.Status {
	case entities.DepositStatusDetected, entities.DepositStatusConfirming:
		return t.advance(ctx, dep)
	case entities.DepositStatusConfirmed:
		return t.checkReorg(ctx, dep)
	default:
		return dep, nil
	}
}

func (t *DepositTracker) advance(ctx context.Context, dep *entities.OnchainDeposit) (*entities.OnchainDeposit, error) {
	adapter, err := t.registry.Adapter(dep.Chain)
	if err != nil {
		return nil, err
	}
	st, err := adapter.Confirmations(ctx, dep.TxRef)
	if err != nil {
		return nil, fmt.Errorf("failed to poll confirmations: %w", err)
	}

	now := t.now()
	if st.Failed {
		ok, err := t.deposits.Transition(ctx, dep.ID, refreshable, entities.DepositStatusFailed, now)
		if err != nil {
			return nil, err
		}
		if ok {
			dep.Status = entities.DepositStatusFailed
			metrics.DepositTransitions.WithLabelValues(dep.Chain, string(dep.Status)).Inc()
			logger.Warn(ctx, "Deposit failed on chain",
				zap.String("deposit_id", dep.ID.String()),
				zap.String("chain", dep.Chain),
				zap.String("tx_ref", dep.TxRef),
			)
		}
		return dep, nil
	}
	if !st.Found {
		return dep, nil
	}

	if st.Count != dep.Confirmations {
		if err := t.deposits.UpdateConfirmations(ctx, dep.ID, st.Count); err != nil {
			return nil, err
		}
		dep.Confirmations = st.Count
	}

	required := dep.RequiredConfirmations
	if required <= 0 {
		required = adapter.RequiredConfirmations()
	}
	if st.Count < required {
		return dep, nil
	}

	ok, err := t.deposits.Transition(ctx, dep.ID, refreshable, entities.DepositStatusConfirmed, now)
	if err != nil {
		return nil, err
	}
	if ok {
		dep.Status = entities.DepositStatusConfirmed
		dep.ConfirmedAt = null.TimeFrom(now)
		metrics.DepositTransitions.WithLabelValues(dep.Chain, string(dep.Status)).Inc()
		logger.Info(ctx, "Deposit confirmed",
			zap.String("deposit_id", dep.ID.String()),
			zap.String("chain", dep.Chain),
			zap.Int64("confirmations", st.Count),
		)
	}
	return dep, nil
}

// checkReorg flags a confirmed deposit the chain no longer reports as successful. It never leaves confirmed.
func (t *DepositTracker) checkReorg(ctx context.Context, dep *entities.OnchainDeposit) (*entities.OnchainDeposit, error) {
	if dep.NeedsReview {
		return dep, nil
	}
	adapter, err := t.registry.Adapter(dep.Chain)
	if err != nil {
		return nil, err
	}
	st, err := adapter.Confirmations(ctx, dep.TxRef)
	if err != nil {
		return nil, fmt.Errorf("failed to poll confirmations: %w", err)
	}
	if st.Found && !st.Failed {
		return dep, nil
	}

	if err := t.deposits.FlagReview(ctx, dep.ID, entities.ReviewReasonReorgSuspected); err != nil {
		return nil, err
	}
	dep.NeedsReview = true
	dep.ReviewReason = null.StringFrom(entities.ReviewReasonReorgSuspected)
	metrics.Anomalies.WithLabelValues(entities.ReviewReasonReorgSuspected).Inc()
	logger.Error(ctx, "Confirmed deposit no longer on chain",
		zap.String("deposit_id", dep.ID.String()),
		zap.String("chain", dep.Chain),
		zap.String("tx_ref", dep.TxRef),
		zap.Bool("failed", st.Failed),
	)
	return dep, nil
}

// ListDeposits returns a page of deposits across all of the user's addresses
func (t *DepositTracker) ListDeposits(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.OnchainDeposit, utils.PaginationMeta, error) {
	params := utils.GetPaginationParams(page, limit)
	addrs, err := t.addresses.ListByUser(ctx, userID)
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	ids := make([]uuid.UUID, 0, len(addrs))
	for _, a := range addrs {
		ids = append(ids, a.ID)
	}
	deps, total, err := t.deposits.ListByDepositAddresses(ctx, ids, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	return deps, utils.CalculateMeta(total, params.Page, params.Limit), nil
}

// ListReview returns deposits waiting on an operator
func (t *DepositTracker) ListReview(ctx context.Context, limit int) ([]*entities.OnchainDeposit, error) {
	return t.deposits.ListNeedsReview(ctx, limit)
}
