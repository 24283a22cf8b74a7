package usecases

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

func toBigInt(d decimal.Decimal) *big.Int {
	return d.Truncate(0).BigInt()
}

func fromBigInt(b *big.Int) decimal.Decimal {
	if b == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(b, 0)
}

func bps(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Div(decimal.NewFromInt(bpsDenominator))
}

func normalizeChain(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

func truncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) > lastErrorMaxLen {
		return msg[:lastErrorMaxLen]
	}
	return msg
}
