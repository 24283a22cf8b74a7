package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"
)

// DefaultAssetGroup is used when a caller does not name an asset group.
const DefaultAssetGroup = "default"

// DepositAddress is a custodial address generated for one user on one chain
type DepositAddress struct {
	ID                  uuid.UUID `json:"id"`
	UserID              uuid.UUID `json:"userId"`
	Chain               string    `json:"chain"`
	AssetGroup          string    `json:"assetGroup"`
	Address             string    `json:"address"`
	DerivationPath      string    `json:"derivationPath"`
	EncryptedPrivateKey string    `json:"-"`
	CreatedAt           time.Time `json:"createdAt"`
	DisabledAt          null.Time `json:"disabledAt,omitempty"`
}

// IsActive reports whether the address is still handed out to its owner
func (d *DepositAddress) IsActive() bool {
	return !d.DisabledAt.Valid
}
