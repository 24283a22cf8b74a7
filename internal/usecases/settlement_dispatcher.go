package usecases

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/internal/infrastructure/metrics"
	"offramp.backend/internal/infrastructure/settlement"
	"offramp.backend/pkg/logger"
	"offramp.backend/pkg/utils"
)

// QuoteChecker revalidates a quote immediately before execution
type QuoteChecker interface {
	CheckQuote(ctx context.Context, q *entities.Quote) error
}

// SettlementConfig tunes payout limits and reconciliation windows
type SettlementConfig struct {
	ReconcileMinAge    time.Duration
	ReconcileWindow    time.Duration
	NotFoundAnomalyAge time.Duration
	ReconcileBatch     int
	TierLimits         map[int]decimal.Decimal
	RequireTreasury    bool
}

// ReconcileSummary counts what one reconcile pass did
type ReconcileSummary struct {
	Checked   int `json:"checked"`
	Updated   int `json:"updated"`
	Anomalies int `json:"anomalies"`
	Skipped   int `json:"skipped"`
}

// SettlementDispatcher turns executed quotes into fiat payouts
type SettlementDispatcher struct {
	quotes   repositories.QuoteRepository
	payouts  repositories.PayoutRepository
	uow      repositories.UnitOfWork
	checker  QuoteChecker
	registry ChainRegistry
	provider SettlementProvider
	identity IdentityProvider
	cfg      SettlementConfig
	now      func() time.Time
}

// NewSettlementDispatcher creates a new settlement dispatcher. identity may be nil to disable tier limits.
func NewSettlementDispatcher(
	quotes repositories.QuoteRepository,
	payouts repositories.PayoutRepository,
	uow repositories.UnitOfWork,
	checker QuoteChecker,
	registry ChainRegistry,
	provider SettlementProvider,
	identity IdentityProvider,
	cfg SettlementConfig,
) *SettlementDispatcher {
	if cfg.ReconcileMinAge <= 0 {
		cfg.ReconcileMinAge = DefaultReconcileMinAge
	}
	if cfg.ReconcileWindow <= 0 {
		cfg.ReconcileWindow = DefaultReconcileWindow
	}
	if cfg.NotFoundAnomalyAge <= 0 {
		cfg.NotFoundAnomalyAge = DefaultNotFoundAnomalyAge
	}
	if cfg.ReconcileBatch <= 0 {
		cfg.ReconcileBatch = DefaultReconcileBatch
	}
	return &SettlementDispatcher{
		quotes:   quotes,
		payouts:  payouts,
		uow:      uow,
		checker:  checker,
		registry: registry,
		provider: provider,
		identity: identity,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Execute settles an active quote to the beneficiary. Executing an already executed quote returns its payout.
func (d *SettlementDispatcher) Execute(ctx context.Context, userID, quoteID uuid.UUID, beneficiary entities.Beneficiary) (*entities.Payout, error) {
	if strings.TrimSpace(beneficiary.BankCode) == "" || strings.TrimSpace(beneficiary.AccountNumber) == "" {
		return nil, domainerrors.BadRequest("beneficiary bank code and account number are required")
	}

	q, err := d.quotes.GetByID(ctx, quoteID)
	if err != nil {
		return nil, err
	}
	if q.UserID != userID {
		return nil, domainerrors.ErrForbidden
	}
	if q.Status == entities.QuoteStatusExecuted {
		if p, err := d.payouts.GetByQuoteID(ctx, q.ID); err == nil {
			return p, nil
		}
	}

	// nothing reaches the provider unless the quote is still good
	if err := d.checker.CheckQuote(ctx, q); err != nil {
		return nil, err
	}
	if err := d.checkTierLimit(ctx, userID, q); err != nil {
		return nil, err
	}
	chain, err := d.registry.Chain(q.Chain)
	if err != nil {
		return nil, err
	}
	if d.cfg.RequireTreasury {
		if err := d.checkTreasury(ctx, chain, q); err != nil {
			return nil, err
		}
	}

	now := d.now()
	payout := &entities.Payout{
		QuoteID:       q.ID,
		UserID:        userID,
		BeneficiaryID: beneficiary.ID,
		BankCode:      beneficiary.BankCode,
		AccountNumber: beneficiary.AccountNumber,
		AccountName:   beneficiary.AccountName,
		FiatAmount:    q.FiatAmount,
		Currency:      q.Currency,
		Status:        entities.PayoutStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	err = d.uow.Do(ctx, func(ctx context.Context) error {
		ok, err := d.quotes.MarkExecuted(ctx, q.ID, now)
		if err != nil {
			return err
		}
		if !ok {
			if q.IsExpiredAt(now) {
				return domainerrors.ErrQuoteExpired
			}
			return domainerrors.ErrQuoteNotActive
		}
		return d.payouts.Create(ctx, payout)
	})
	if err != nil {
		return nil, err
	}
	metrics.PayoutTransitions.WithLabelValues(string(payout.Status)).Inc()

	ref, err := d.provider.SubmitOfframp(ctx, settlement.OfframpRequest{
		ClientReference: payout.ClientReference(),
		Asset:           chain.AssetIdentifier(q.Asset),
		CryptoAmount:    q.CryptoAmount,
		FiatAmount:      q.FiatAmount,
		Currency:        q.Currency,
		BankCode:        payout.BankCode,
		AccountNumber:   payout.AccountNumber,
		AccountName:     payout.AccountName,
	})
	if err != nil {
		return d.submissionFailed(ctx, payout, err)
	}

	if err := d.payouts.SetProviderReference(ctx, payout.ID, ref); err != nil {
		// the provider has it under our client reference; reconcile can still find it
		logger.Error(ctx, "Failed to store provider reference",
			zap.String("payout_id", payout.ID.String()),
			zap.String("provider_reference", ref),
			zap.Error(err),
		)
		return payout, nil
	}
	payout.ProviderReference.SetValid(ref)
	if ok, err := d.payouts.UpdateStatus(ctx, payout.ID, []entities.PayoutStatus{entities.PayoutStatusPending}, entities.PayoutStatusProcessing); err == nil && ok {
		payout.Status = entities.PayoutStatusProcessing
		metrics.PayoutTransitions.WithLabelValues(string(payout.Status)).Inc()
	}

	logger.Info(ctx, "Payout submitted",
		zap.String("payout_id", payout.ID.String()),
		zap.String("quote_id", q.ID.String()),
		zap.String("provider_reference", ref),
	)
	return payout, nil
}

func (d *SettlementDispatcher) submissionFailed(ctx context.Context, payout *entities.Payout, cause error) (*entities.Payout, error) {
	if domainerrors.IsProviderKind(cause, domainerrors.ProviderRejected) {
		if _, err := d.payouts.UpdateStatus(ctx, payout.ID, []entities.PayoutStatus{entities.PayoutStatusPending}, entities.PayoutStatusFailed); err != nil {
			return nil, errors.Join(cause, err)
		}
		payout.Status = entities.PayoutStatusFailed
		metrics.PayoutTransitions.WithLabelValues(string(payout.Status)).Inc()
		logger.Warn(ctx, "Payout rejected by provider",
			zap.String("payout_id", payout.ID.String()),
			zap.Error(cause),
		)
		return payout, nil
	}

	// outcome unknown: the provider may or may not have accepted it
	if err := d.payouts.FlagAnomaly(ctx, payout.ID, entities.AnomalySubmissionUnresolved); err != nil {
		return nil, errors.Join(cause, err)
	}
	payout.Anomaly = true
	payout.AnomalyReason.SetValid(entities.AnomalySubmissionUnresolved)
	metrics.Anomalies.WithLabelValues(entities.AnomalySubmissionUnresolved).Inc()
	logger.Error(ctx, "Payout submission unresolved",
		zap.String("payout_id", payout.ID.String()),
		zap.Error(cause),
	)
	return payout, nil
}

func (d *SettlementDispatcher) checkTierLimit(ctx context.Context, userID uuid.UUID, q *entities.Quote) error {
	if d.identity == nil || len(d.cfg.TierLimits) == 0 {
		return nil
	}
	tier, err := d.identity.GetVerificationTier(ctx, userID)
	if err != nil {
		return err
	}
	limit, ok := tierLimit(d.cfg.TierLimits, tier)
	if !ok || q.FiatAmount.GreaterThan(limit) {
		return fmt.Errorf("%w: tier %d", domainerrors.ErrPayoutLimitExceeded, tier)
	}
	return nil
}

// tierLimit returns the limit of the highest configured tier not above tier
func tierLimit(limits map[int]decimal.Decimal, tier int) (decimal.Decimal, bool) {
	tiers := make([]int, 0, len(limits))
	for t := range limits {
		tiers = append(tiers, t)
	}
	sort.Sort(sort.Reverse(sort.IntSlice(tiers)))
	for _, t := range tiers {
		if t <= tier {
			return limits[t], true
		}
	}
	return decimal.Zero, false
}

func (d *SettlementDispatcher) checkTreasury(ctx context.Context, chain entities.Chain, q *entities.Quote) error {
	asset, ok := chain.Asset(q.Asset)
	if !ok {
		return fmt.Errorf("%w: %s", domainerrors.ErrUnsupportedAsset, q.Asset)
	}
	if chain.TreasuryAddress == "" {
		return fmt.Errorf("%w: no treasury on %s", domainerrors.ErrTreasuryInsufficient, chain.Name)
	}
	adapter, err := d.registry.Adapter(chain.Name)
	if err != nil {
		return err
	}
	balance, err := adapter.TokenBalance(ctx, chain.TreasuryAddress, asset.Token)
	if err != nil {
		return fmt.Errorf("failed to read treasury balance: %w", err)
	}
	if fromBigInt(balance).LessThan(asset.ToBaseUnits(q.CryptoAmount)) {
		return domainerrors.ErrTreasuryInsufficient
	}
	return nil
}

// Reconcile polls the provider for open payouts inside the reconcile window
func (d *SettlementDispatcher) Reconcile(ctx context.Context) (ReconcileSummary, error) {
	var sum ReconcileSummary
	now := d.now()
	payouts, err := d.payouts.ListReconcilable(ctx, now.Add(-d.cfg.ReconcileWindow), now.Add(-d.cfg.ReconcileMinAge), d.cfg.ReconcileBatch)
	if err != nil {
		return sum, err
	}

	for _, p := range payouts {
		if ctx.Err() != nil {
			return sum, ctx.Err()
		}
		sum.Checked++

		res, err := d.provider.GetOfframpStatus(ctx, p.LookupReference())
		if err != nil {
			switch {
			case domainerrors.IsProviderKind(err, domainerrors.ProviderNotFound):
				if now.Sub(p.CreatedAt) < d.cfg.NotFoundAnomalyAge {
					sum.Skipped++
					continue
				}
				if d.flagAnomaly(ctx, p, entities.AnomalyProviderNotFound, err) {
					sum.Anomalies++
				}
			case domainerrors.IsProviderKind(err, domainerrors.ProviderInvalidResponse):
				if d.flagAnomaly(ctx, p, entities.AnomalyUnknownStatus, err) {
					sum.Anomalies++
				}
			default:
				sum.Skipped++
				logger.Debug(ctx, "Payout status lookup skipped",
					zap.String("payout_id", p.ID.String()),
					zap.Error(err),
				)
			}
			continue
		}

		changed, err := d.apply(ctx, p, res)
		if err != nil {
			logger.Error(ctx, "Failed to apply payout status",
				zap.String("payout_id", p.ID.String()),
				zap.Error(err),
			)
			continue
		}
		if changed {
			sum.Updated++
		}
	}
	return sum, nil
}

// HandleProviderCallback applies a signed status push from the provider
func (d *SettlementDispatcher) HandleProviderCallback(ctx context.Context, signed string) (*entities.Payout, error) {
	res, err := d.provider.VerifyCallback(signed)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(res.ClientReference)
	if err != nil {
		return nil, domainerrors.BadRequest("callback carries no valid client reference")
	}
	p, err := d.payouts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := d.apply(ctx, p, res); err != nil {
		return nil, err
	}
	return d.payouts.GetByID(ctx, id)
}

// apply moves p to the provider-reported status when the transition is allowed
func (d *SettlementDispatcher) apply(ctx context.Context, p *entities.Payout, res settlement.StatusResult) (bool, error) {
	if res.Reference != "" && !p.ProviderReference.Valid {
		if err := d.payouts.SetProviderReference(ctx, p.ID, res.Reference); err != nil {
			return false, err
		}
	}
	if res.Status == p.Status {
		return false, nil
	}

	from := allowedFrom(res.Status)
	if len(from) == 0 {
		return false, nil
	}
	ok, err := d.payouts.UpdateStatus(ctx, p.ID, from, res.Status)
	if err != nil || !ok {
		return false, err
	}
	metrics.PayoutTransitions.WithLabelValues(string(res.Status)).Inc()
	logger.Info(ctx, "Payout status updated",
		zap.String("payout_id", p.ID.String()),
		zap.String("from", string(p.Status)),
		zap.String("to", string(res.Status)),
		zap.String("reason", res.Reason),
	)
	return true, nil
}

// allowedFrom lists the statuses a payout may leave to reach to
func allowedFrom(to entities.PayoutStatus) []entities.PayoutStatus {
	switch to {
	case entities.PayoutStatusProcessing:
		return []entities.PayoutStatus{entities.PayoutStatusPending}
	case entities.PayoutStatusSuccess, entities.PayoutStatusFailed:
		return []entities.PayoutStatus{entities.PayoutStatusPending, entities.PayoutStatusProcessing}
	case entities.PayoutStatusReversed:
		return []entities.PayoutStatus{entities.PayoutStatusPending, entities.PayoutStatusProcessing, entities.PayoutStatusSuccess}
	default:
		return nil
	}
}

func (d *SettlementDispatcher) flagAnomaly(ctx context.Context, p *entities.Payout, reason string, cause error) bool {
	if p.Anomaly && p.AnomalyReason.String == reason {
		return false
	}
	if err := d.payouts.FlagAnomaly(ctx, p.ID, reason); err != nil {
		logger.Error(ctx, "Failed to flag payout anomaly", zap.String("payout_id", p.ID.String()), zap.Error(err))
		return false
	}
	metrics.Anomalies.WithLabelValues(reason).Inc()
	logger.Error(ctx, "Payout flagged as anomaly",
		zap.String("payout_id", p.ID.String()),
		zap.String("reason", reason),
		zap.Duration("age", d.now().Sub(p.CreatedAt)),
		zap.Error(cause),
	)
	return true
}

// ResolvePayout records an operator's explicit terminal status for a payout the provider could not settle
func (d *SettlementDispatcher) ResolvePayout(ctx context.Context, id uuid.UUID, status entities.PayoutStatus, note string) (*entities.Payout, error) {
	if !status.IsTerminal() {
		return nil, domainerrors.BadRequest("status must be success, failed or reversed")
	}
	if strings.TrimSpace(note) == "" {
		return nil, domainerrors.BadRequest("a resolution note is required")
	}
	ok, err := d.payouts.Resolve(ctx, id, status, note)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: payout is already settled", domainerrors.ErrStatusConflict)
	}
	metrics.PayoutTransitions.WithLabelValues(string(status)).Inc()
	logger.Info(ctx, "Payout resolved manually",
		zap.String("payout_id", id.String()),
		zap.String("status", string(status)),
	)
	return d.payouts.GetByID(ctx, id)
}

// GetPayout returns one of the user's payouts
func (d *SettlementDispatcher) GetPayout(ctx context.Context, userID, id uuid.UUID) (*entities.Payout, error) {
	p, err := d.payouts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.UserID != userID {
		return nil, domainerrors.ErrForbidden
	}
	return p, nil
}

// ListPayouts returns a page of the user's payouts
func (d *SettlementDispatcher) ListPayouts(ctx context.Context, userID uuid.UUID, page, limit int) ([]*entities.Payout, utils.PaginationMeta, error) {
	params := utils.GetPaginationParams(page, limit)
	payouts, total, err := d.payouts.ListByUser(ctx, userID, params.Limit, params.CalculateOffset())
	if err != nil {
		return nil, utils.PaginationMeta{}, err
	}
	return payouts, utils.CalculateMeta(total, params.Page, params.Limit), nil
}

// ListAnomalies returns payouts waiting on an operator
func (d *SettlementDispatcher) ListAnomalies(ctx context.Context, limit int) ([]*entities.Payout, error) {
	return d.payouts.ListAnomalies(ctx, limit)
}
