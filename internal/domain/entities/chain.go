package entities

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ChainType represents blockchain type
type ChainType string

const (
	ChainTypeEVM    ChainType = "EVM"
	ChainTypeSVM    ChainType = "SVM"
	ChainTypeTron   ChainType = "TRON"
	ChainTypeCustom ChainType = "CUSTOM"
)

// Asset is a transferable unit on a chain. Token is empty for the native coin.
type Asset struct {
	Symbol   string `json:"symbol"`
	Token    string `json:"token,omitempty"`
	Decimals int32  `json:"decimals"`
}

// IsNative reports whether the asset is the chain's fee token
func (a Asset) IsNative() bool {
	return a.Token == ""
}

// ToBaseUnits converts a human amount to integer base units, truncating dust.
func (a Asset) ToBaseUnits(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(a.Decimals).Truncate(0)
}

// FromBaseUnits converts integer base units to a human amount.
func (a Asset) FromBaseUnits(amount decimal.Decimal) decimal.Decimal {
	return amount.Shift(-a.Decimals)
}

// Chain represents a supported blockchain and its custody settings
type Chain struct {
	Name                  string          `json:"name"`
	Type                  ChainType       `json:"type"`
	ChainID               string          `json:"chainId"`
	RPCURL                string          `json:"-"`
	APIKey                string          `json:"-"`
	RequiredConfirmations int64           `json:"requiredConfirmations"`
	TreasuryAddress       string          `json:"treasuryAddress"`
	SponsorAddress        string          `json:"sponsorAddress,omitempty"`
	SponsorMinBalance     decimal.Decimal `json:"sponsorMinBalance"`
	NativeSymbol          string          `json:"nativeSymbol"`
	NativeDecimals        int32           `json:"nativeDecimals"`
	Assets                []Asset         `json:"assets"`
}

// GetCAIP2ID returns the CAIP-2 formatted chain ID
func (c *Chain) GetCAIP2ID() string {
	id := strings.TrimSpace(c.ChainID)
	if strings.Contains(id, ":") {
		return id
	}
	switch c.Type {
	case ChainTypeEVM:
		return "eip155:" + id
	case ChainTypeSVM:
		return "solana:" + id
	case ChainTypeTron:
		return "tron:" + id
	default:
		return id
	}
}

// NativeAsset returns the chain's fee token as an Asset
func (c *Chain) NativeAsset() Asset {
	return Asset{Symbol: c.NativeSymbol, Decimals: c.NativeDecimals}
}

// Asset looks up an asset by symbol, case-insensitively.
func (c *Chain) Asset(symbol string) (Asset, bool) {
	if strings.EqualFold(symbol, c.NativeSymbol) {
		return c.NativeAsset(), true
	}
	for _, a := range c.Assets {
		if strings.EqualFold(a.Symbol, symbol) {
			return a, true
		}
	}
	return Asset{}, false
}

// AssetByToken resolves an asset from its on-chain token identifier. Empty token means native.
func (c *Chain) AssetByToken(token string) (Asset, bool) {
	if token == "" {
		return c.NativeAsset(), true
	}
	for _, a := range c.Assets {
		if strings.EqualFold(a.Token, token) {
			return a, true
		}
	}
	return Asset{}, false
}

// AssetIdentifier returns the "<chain>:<asset>" string used with the settlement provider
func (c *Chain) AssetIdentifier(symbol string) string {
	return c.Name + ":" + strings.ToUpper(symbol)
}
