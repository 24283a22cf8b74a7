package oracle

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/shopspring/decimal"
	domainerrors "offramp.backend/internal/domain/errors"
)

const aggregatorABI = `[
	{"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"stateMutability":"view","type":"function"},
	{"inputs":[],"name":"latestRoundData","outputs":[
		{"name":"roundId","type":"uint80"},
		{"name":"answer","type":"int256"},
		{"name":"startedAt","type":"uint256"},
		{"name":"updatedAt","type":"uint256"},
		{"name":"answeredInRound","type":"uint80"}
	],"stateMutability":"view","type":"function"}
]`

const chainlinkProvider = "chainlink"

// ViewCaller executes read-only contract calls
type ViewCaller interface {
	CallView(ctx context.Context, to string, data []byte) ([]byte, error)
}

// Chainlink reads USD prices from on-chain aggregator feeds
type Chainlink struct {
	caller     ViewCaller
	feeds      map[string]string
	staleAfter time.Duration
	parsed     abi.ABI

	mu       sync.Mutex
	decimals map[string]int32
}

// NewChainlink creates the fallback price source. feeds maps asset symbols to aggregator
// addresses. Answers older than staleAfter are rejected; zero disables the check.
func NewChainlink(caller ViewCaller, feeds map[string]string, staleAfter time.Duration) (*Chainlink, error) {
	parsed, err := abi.JSON(strings.NewReader(aggregatorABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse aggregator abi: %w", err)
	}
	mapped := make(map[string]string, len(feeds))
	for k, v := range feeds {
		mapped[normaliseSymbol(k)] = strings.TrimSpace(v)
	}
	return &Chainlink{
		caller:     caller,
		feeds:      mapped,
		staleAfter: staleAfter,
		parsed:     parsed,
		decimals:   make(map[string]int32),
	}, nil
}

func (o *Chainlink) LatestPrice(ctx context.Context, asset string) (Price, error) {
	feed, ok := o.feeds[normaliseSymbol(asset)]
	if !ok || feed == "" {
		return Price{}, domainerrors.NewProviderError(chainlinkProvider, domainerrors.ProviderNotFound, "no feed for "+asset, nil)
	}

	decimals, err := o.feedDecimals(ctx, feed)
	if err != nil {
		return Price{}, err
	}
	out, err := o.call(ctx, feed, "latestRoundData")
	if err != nil {
		return Price{}, err
	}
	if len(out) != 5 {
		return Price{}, domainerrors.NewProviderError(chainlinkProvider, domainerrors.ProviderInvalidResponse, "unexpected latestRoundData shape", nil)
	}
	answer, ok1 := out[1].(*big.Int)
	updatedAt, ok2 := out[3].(*big.Int)
	if !ok1 || !ok2 || answer.Sign() <= 0 {
		return Price{}, domainerrors.NewProviderError(chainlinkProvider, domainerrors.ProviderInvalidResponse, "non-positive answer", nil)
	}

	ts := time.Unix(updatedAt.Int64(), 0)
	if o.staleAfter > 0 && time.Since(ts) > o.staleAfter {
		return Price{}, domainerrors.NewProviderError(chainlinkProvider, domainerrors.ProviderInvalidResponse, "stale answer for "+asset, nil)
	}
	return Price{
		Value:     decimal.NewFromBigInt(answer, -decimals),
		Timestamp: ts,
		Source:    chainlinkProvider,
	}, nil
}

func (o *Chainlink) feedDecimals(ctx context.Context, feed string) (int32, error) {
	o.mu.Lock()
	d, ok := o.decimals[feed]
	o.mu.Unlock()
	if ok {
		return d, nil
	}

	out, err := o.call(ctx, feed, "decimals")
	if err != nil {
		return 0, err
	}
	if len(out) != 1 {
		return 0, domainerrors.NewProviderError(chainlinkProvider, domainerrors.ProviderInvalidResponse, "unexpected decimals shape", nil)
	}
	v, ok := out[0].(uint8)
	if !ok {
		return 0, domainerrors.NewProviderError(chainlinkProvider, domainerrors.ProviderInvalidResponse, "decimals type mismatch", nil)
	}

	o.mu.Lock()
	o.decimals[feed] = int32(v)
	o.mu.Unlock()
	return int32(v), nil
}

func (o *Chainlink) call(ctx context.Context, feed, method string) ([]interface{}, error) {
	data, err := o.parsed.Pack(method)
	if err != nil {
		return nil, domainerrors.NewProviderError(chainlinkProvider, domainerrors.ProviderRejected, "pack "+method, err)
	}
	raw, err := o.caller.CallView(ctx, feed, data)
	if err != nil {
		return nil, domainerrors.NewProviderError(chainlinkProvider, domainerrors.ProviderUnavailable, method, err)
	}
	out, err := o.parsed.Unpack(method, raw)
	if err != nil {
		return nil, domainerrors.NewProviderError(chainlinkProvider, domainerrors.ProviderInvalidResponse, "unpack "+method, err)
	}
	return out, nil
}
