package oracle

import (
	"context"
	"encoding/json"

	"github.com/shopspring/decimal"
	domainerrors "offramp.backend/internal/domain/errors"
	"offramp.backend/internal/infrastructure/provider"
)

// FX reads fiat exchange rates from an open.er-api style endpoint (GET latest/<BASE>)
type FX struct {
	client *provider.Client
}

// NewFX creates the FX rate source
func NewFX(client *provider.Client) *FX {
	return &FX{client: client}
}

// Rate returns how many units of to one unit of from buys
func (f *FX) Rate(ctx context.Context, from, to string) (decimal.Decimal, error) {
	from, to = normaliseSymbol(from), normaliseSymbol(to)
	if from == to {
		return decimal.NewFromInt(1), nil
	}

	var payload struct {
		Result    string                 `json:"result"`
		ErrorType string                 `json:"error-type"`
		BaseCode  string                 `json:"base_code"`
		Rates     map[string]json.Number `json:"rates"`
	}
	if err := f.client.Do(ctx, provider.Request{Path: "latest/" + from}, &payload); err != nil {
		return decimal.Zero, err
	}
	if payload.Result != "" && payload.Result != "success" {
		return decimal.Zero, domainerrors.NewProviderError(f.client.Name(), domainerrors.ProviderRejected, payload.ErrorType, nil)
	}

	raw, ok := payload.Rates[to]
	if !ok {
		return decimal.Zero, domainerrors.NewProviderError(f.client.Name(), domainerrors.ProviderNotFound, "no rate for "+from+"/"+to, nil)
	}
	rate, err := decimal.NewFromString(raw.String())
	if err != nil || !rate.IsPositive() {
		return decimal.Zero, domainerrors.NewProviderError(f.client.Name(), domainerrors.ProviderInvalidResponse, "invalid rate "+raw.String(), err)
	}
	return rate, nil
}
