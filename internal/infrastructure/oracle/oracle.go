package oracle

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"offramp.backend/pkg/logger"
)

// Price is one USD price observation
type Price struct {
	Value     decimal.Decimal
	Timestamp time.Time
	Source    string
}

// PriceSource resolves the latest USD price of an asset symbol
type PriceSource interface {
	LatestPrice(ctx context.Context, asset string) (Price, error)
}

// Fallback consults the primary source and, on any error, the secondary one.
type Fallback struct {
	primary   PriceSource
	secondary PriceSource
}

// NewFallback chains two price sources. A nil secondary disables the fallback.
func NewFallback(primary, secondary PriceSource) *Fallback {
	return &Fallback{primary: primary, secondary: secondary}
}

func (f *Fallback) LatestPrice(ctx context.Context, asset string) (Price, error) {
	p, err := f.primary.LatestPrice(ctx, asset)
	if err == nil {
		return p, nil
	}
	if f.secondary == nil {
		return Price{}, err
	}
	logger.Warn(ctx, "Primary price oracle failed, using fallback",
		zap.String("asset", asset),
		zap.Error(err),
	)

	p, fbErr := f.secondary.LatestPrice(ctx, asset)
	if fbErr != nil {
		return Price{}, errors.Join(err, fbErr)
	}
	return p, nil
}

func normaliseSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
