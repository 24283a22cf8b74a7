package usecases

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"offramp.backend/internal/domain/entities"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/domain/repositories"
	"offramp.backend/internal/infrastructure/metrics"
	"offramp.backend/pkg/cache"
	"offramp.backend/pkg/logger"
)

// PricingConfig holds the fee schedule and quote lock settings
type PricingConfig struct {
	SpreadBps       int64
	FlatFee         decimal.Decimal
	VariableFeeBps  int64
	SlippageBps     int64
	QuoteLock       time.Duration
	CacheTTL        time.Duration
	DefaultCurrency string
}

// QuoteRequest asks for a conversion. Exactly one of CryptoAmount and FiatTarget is set.
type QuoteRequest struct {
	UserID       uuid.UUID
	Asset        string
	Chain        string
	CryptoAmount decimal.Decimal
	FiatTarget   decimal.Decimal
	Currency     string
}

// RateEngine prices assets and issues time-locked quotes
type RateEngine struct {
	quotes   repositories.QuoteRepository
	registry ChainRegistry
	prices   PriceOracle
	fx       FXProvider
	cfg      PricingConfig
	spot     *cache.Cache[decimal.Decimal]
	rates    *cache.Cache[decimal.Decimal]
	now      func() time.Time
}

// RateEngineOption configures a RateEngine
type RateEngineOption func(*rateEngineOptions)

type rateEngineOptions struct {
	remote cache.Remote
}

// WithSharedCache adds a shared tier (e.g. Redis) behind the in-process price caches
func WithSharedCache(remote cache.Remote) RateEngineOption {
	return func(o *rateEngineOptions) {
		o.remote = remote
	}
}

var decimalCodec = cache.Codec[decimal.Decimal]{
	Encode: func(d decimal.Decimal) (string, error) { return d.String(), nil },
	Decode: decimal.NewFromString,
}

// NewRateEngine creates a new rate engine
func NewRateEngine(
	quotes repositories.QuoteRepository,
	registry ChainRegistry,
	prices PriceOracle,
	fx FXProvider,
	cfg PricingConfig,
	opts ...RateEngineOption,
) *RateEngine {
	var o rateEngineOptions
	for _, opt := range opts {
		opt(&o)
	}
	if cfg.QuoteLock <= 0 {
		cfg.QuoteLock = DefaultQuoteLock
	}
	if cfg.DefaultCurrency == "" {
		cfg.DefaultCurrency = "NGN"
	}

	var cacheOpts []cache.Option[decimal.Decimal]
	if o.remote != nil {
		cacheOpts = append(cacheOpts, cache.WithRemote(o.remote, decimalCodec))
	}
	return &RateEngine{
		quotes:   quotes,
		registry: registry,
		prices:   prices,
		fx:       fx,
		cfg:      cfg,
		spot:     cache.New(cfg.CacheTTL, cacheOpts...),
		rates:    cache.New(cfg.CacheTTL, cacheOpts...),
		now:      time.Now,
	}
}

// SpotPrice returns the cached USD price of asset
func (e *RateEngine) SpotPrice(ctx context.Context, asset string) (decimal.Decimal, error) {
	sym := normalizeSymbol(asset)
	return e.spot.Get(ctx, "spot:"+sym, func(ctx context.Context) (decimal.Decimal, error) {
		p, err := e.prices.LatestPrice(ctx, sym)
		if err != nil {
			return decimal.Zero, err
		}
		return p.Value, nil
	})
}

// FxRate returns the cached rate converting one unit of from into to
func (e *RateEngine) FxRate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = normalizeSymbol(from), normalizeSymbol(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}
	return e.rates.Get(ctx, "fx:"+from+":"+to, func(ctx context.Context) (decimal.Decimal, error) {
		return e.fx.Rate(ctx, from, to)
	})
}

// Quote prices the request and persists an active quote
func (e *RateEngine) Quote(ctx context.Context, req QuoteRequest) (*entities.Quote, error) {
	forward := req.CryptoAmount.IsPositive()
	reverse := req.FiatTarget.IsPositive()
	if forward == reverse || req.CryptoAmount.IsNegative() || req.FiatTarget.IsNegative() {
		return nil, domainerrors.BadRequest("exactly one of cryptoAmount or fiatTarget must be a positive amount")
	}

	chain, err := e.registry.Chain(req.Chain)
	if err != nil {
		return nil, err
	}
	asset, ok := chain.Asset(req.Asset)
	if !ok {
		return nil, fmt.Errorf("%w: %s on %s", domainerrors.ErrUnsupportedAsset, req.Asset, chain.Name)
	}
	currency := normalizeSymbol(req.Currency)
	if currency == "" {
		currency = normalizeSymbol(e.cfg.DefaultCurrency)
	}

	spot, err := e.SpotPrice(ctx, asset.Symbol)
	if err != nil {
		return nil, err
	}
	fx, err := e.FxRate(ctx, "USD", currency)
	if err != nil {
		return nil, err
	}

	crypto := req.CryptoAmount
	mode := entities.QuoteModeForward
	if reverse {
		mode = entities.QuoteModeReverse
		crypto, err = e.invert(req.FiatTarget, spot, fx, asset.Decimals)
		if err != nil {
			return nil, err
		}
	} else {
		crypto = crypto.Truncate(asset.Decimals)
	}

	gross, fee, fiat := e.price(crypto, spot, fx)
	if !fiat.IsPositive() {
		return nil, domainerrors.ErrAmountTooSmall
	}

	now := e.now()
	q := &entities.Quote{
		UserID:         req.UserID,
		Asset:          asset.Symbol,
		Chain:          chain.Name,
		Mode:           mode,
		CryptoAmount:   crypto,
		SpotPrice:      spot,
		FxRate:         fx,
		SpreadBps:      e.cfg.SpreadBps,
		FlatFee:        e.cfg.FlatFee,
		VariableFeeBps: e.cfg.VariableFeeBps,
		GrossFiat:      gross,
		TotalFee:       fee,
		FiatAmount:     fiat,
		Currency:       currency,
		LockExpiresAt:  now.Add(e.cfg.QuoteLock),
		Status:         entities.QuoteStatusActive,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := e.quotes.Create(ctx, q); err != nil {
		return nil, err
	}

	metrics.QuotesIssued.WithLabelValues(q.Asset, string(q.Mode)).Inc()
	logger.Info(ctx, "Quote issued",
		zap.String("quote_id", q.ID.String()),
		zap.String("asset", q.Asset),
		zap.String("chain", q.Chain),
		zap.String("mode", string(q.Mode)),
		zap.String("fiat_amount", q.FiatAmount.String()),
		zap.String("currency", q.Currency),
	)
	return q, nil
}

// price applies spread then fees: gross = crypto*spot*fx*(1-spread), fee = flat + gross*variable.
func (e *RateEngine) price(crypto, spot, fx decimal.Decimal) (gross, fee, fiat decimal.Decimal) {
	gross = crypto.Mul(spot).Mul(fx).Mul(decimal.NewFromInt(1).Sub(bps(e.cfg.SpreadBps))).Round(FiatDecimals)
	fee = e.cfg.FlatFee.Add(gross.Mul(bps(e.cfg.VariableFeeBps))).Round(FiatDecimals)
	return gross, fee, gross.Sub(fee)
}

// invert solves the forward formula for the crypto amount whose net fiat is target.
// The result is rounded up to the asset's precision so the payout never falls short.
func (e *RateEngine) invert(target, spot, fx decimal.Decimal, decimals int32) (decimal.Decimal, error) {
	one := decimal.NewFromInt(1)
	keep := one.Sub(bps(e.cfg.VariableFeeBps))
	perUnit := spot.Mul(fx).Mul(one.Sub(bps(e.cfg.SpreadBps)))
	if !keep.IsPositive() || !perUnit.IsPositive() {
		return decimal.Zero, domainerrors.ErrAmountTooSmall
	}
	gross := target.Add(e.cfg.FlatFee).Div(keep)
	return gross.Div(perUnit).RoundUp(decimals), nil
}

// ValidateQuote reports whether q can still be executed
func (e *RateEngine) ValidateQuote(ctx context.Context, q *entities.Quote) bool {
	return e.CheckQuote(ctx, q) == nil
}

// CheckQuote checks the lock first, then the current price against the quoted one.
func (e *RateEngine) CheckQuote(ctx context.Context, q *entities.Quote) error {
	if q.Status != entities.QuoteStatusActive {
		return fmt.Errorf("%w: %s", domainerrors.ErrQuoteNotActive, q.Status)
	}
	if q.IsExpiredAt(e.now()) {
		return domainerrors.ErrQuoteExpired
	}

	// bypass the cache; execution must see a fresh price
	current, err := e.prices.LatestPrice(ctx, normalizeSymbol(q.Asset))
	if err != nil {
		return err
	}
	if !q.SpotPrice.IsPositive() {
		return domainerrors.ErrSlippageExceeded
	}
	deviation := current.Value.Sub(q.SpotPrice).Abs().Div(q.SpotPrice)
	if deviation.GreaterThan(bps(e.cfg.SlippageBps)) {
		logger.Warn(ctx, "Quote slippage exceeded",
			zap.String("quote_id", q.ID.String()),
			zap.String("quoted", q.SpotPrice.String()),
			zap.String("current", current.Value.String()),
		)
		return domainerrors.ErrSlippageExceeded
	}
	return nil
}

// GetQuote returns one of the user's quotes
func (e *RateEngine) GetQuote(ctx context.Context, userID, id uuid.UUID) (*entities.Quote, error) {
	q, err := e.quotes.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if q.UserID != userID {
		return nil, domainerrors.ErrForbidden
	}
	return q, nil
}

// CancelQuote moves an active quote to cancelled
func (e *RateEngine) CancelQuote(ctx context.Context, userID, id uuid.UUID) (*entities.Quote, error) {
	q, err := e.GetQuote(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	if q.Status != entities.QuoteStatusActive {
		return nil, fmt.Errorf("%w: %s", domainerrors.ErrQuoteNotActive, q.Status)
	}
	ok, err := e.quotes.Cancel(ctx, id)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domainerrors.ErrQuoteNotActive
	}
	q.Status = entities.QuoteStatusCancelled
	return q, nil
}

// ExpireStale marks lapsed active quotes expired and returns how many changed
func (e *RateEngine) ExpireStale(ctx context.Context, limit int) (int64, error) {
	return e.quotes.ExpireBefore(ctx, e.now(), limit)
}

// SupportedAssets lists the asset symbols quotable on each chain
func (e *RateEngine) SupportedAssets() map[string][]string {
	out := make(map[string][]string)
	for _, c := range e.registry.Chains() {
		symbols := []string{strings.ToUpper(c.NativeSymbol)}
		for _, a := range c.Assets {
			symbols = append(symbols, a.Symbol)
		}
		out[c.Name] = symbols
	}
	return out
}
