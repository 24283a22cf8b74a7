package oracle

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/infrastructure/provider"
)

// CoinGecko adapts the simple price API. ids maps asset symbols to CoinGecko identifiers.
type CoinGecko struct {
	client *provider.Client
	ids    map[string]string
}

// NewCoinGecko creates the primary price source
func NewCoinGecko(client *provider.Client, ids map[string]string) *CoinGecko {
	mapped := make(map[string]string, len(ids))
	for k, v := range ids {
		mapped[normaliseSymbol(k)] = strings.TrimSpace(v)
	}
	return &CoinGecko{client: client, ids: mapped}
}

func (o *CoinGecko) assetID(symbol string) string {
	if id, ok := o.ids[normaliseSymbol(symbol)]; ok && id != "" {
		return id
	}
	return strings.ToLower(strings.TrimSpace(symbol))
}

func (o *CoinGecko) LatestPrice(ctx context.Context, asset string) (Price, error) {
	id := o.assetID(asset)
	query := url.Values{}
	query.Set("ids", id)
	query.Set("vs_currencies", "usd")
	query.Set("include_last_updated_at", "true")

	var payload map[string]map[string]json.Number
	if err := o.client.Do(ctx, provider.Request{Path: "simple/price", Query: query}, &payload); err != nil {
		return Price{}, err
	}

	entry, ok := payload[id]
	if !ok {
		return Price{}, domainerrors.NewProviderError(o.client.Name(), domainerrors.ProviderNotFound, "quote missing for "+asset, nil)
	}
	raw, ok := entry["usd"]
	if !ok {
		return Price{}, domainerrors.NewProviderError(o.client.Name(), domainerrors.ProviderInvalidResponse, "usd price missing", nil)
	}
	value, err := decimal.NewFromString(raw.String())
	if err != nil || !value.IsPositive() {
		return Price{}, domainerrors.NewProviderError(o.client.Name(), domainerrors.ProviderInvalidResponse, "invalid price "+raw.String(), err)
	}

	ts := time.Now()
	if rawTs, ok := entry["last_updated_at"]; ok {
		if parsed, err := strconv.ParseInt(rawTs.String(), 10, 64); err == nil && parsed > 0 {
			ts = time.Unix(parsed, 0)
		}
	}
	return Price{Value: value, Timestamp: ts, Source: o.client.Name()}, nil
}
