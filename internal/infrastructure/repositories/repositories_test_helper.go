package repositories

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", t.Name(), time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err, "open sqlite")
	return db
}

func mustExec(t *testing.T, db *gorm.DB, q string, args ...interface{}) {
	t.Helper()
	require.NoError(t, db.Exec(q, args...).Error, "exec failed: query=%s", q)
}

func createDepositAddressTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE deposit_addresses (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		chain TEXT NOT NULL,
		asset_group TEXT NOT NULL,
		address TEXT NOT NULL,
		derivation_path TEXT,
		encrypted_private_key TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		disabled_at DATETIME
	);`)
	mustExec(t, db, `CREATE UNIQUE INDEX idx_deposit_addresses_owner ON deposit_addresses(user_id, chain, asset_group) WHERE disabled_at IS NULL;`)
	mustExec(t, db, `CREATE UNIQUE INDEX idx_deposit_addresses_chain_address ON deposit_addresses(chain, address);`)
}

func createOnchainDepositTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE onchain_deposits (
		id TEXT PRIMARY KEY,
		deposit_address_id TEXT NOT NULL,
		chain TEXT NOT NULL,
		asset TEXT NOT NULL,
		token TEXT,
		tx_ref TEXT NOT NULL,
		initiator TEXT,
		amount TEXT NOT NULL,
		confirmations INTEGER NOT NULL DEFAULT 0,
		required_confirmations INTEGER NOT NULL,
		status TEXT NOT NULL,
		sweep_attempts INTEGER NOT NULL DEFAULT 0,
		sweep_tx_ref TEXT,
		needs_review BOOLEAN NOT NULL DEFAULT false,
		review_reason TEXT,
		last_error TEXT,
		detected_at DATETIME NOT NULL,
		confirmed_at DATETIME,
		swept_at DATETIME,
		updated_at DATETIME
	);`)
	mustExec(t, db, `CREATE UNIQUE INDEX idx_onchain_deposits_tx ON onchain_deposits(deposit_address_id, tx_ref);`)
}

func createGasSponsorWalletTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE gas_sponsor_wallets (
		id TEXT PRIMARY KEY,
		chain TEXT NOT NULL,
		address TEXT NOT NULL,
		encrypted_private_key TEXT NOT NULL,
		min_balance_threshold TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT true,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}

func createQuoteTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE quotes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		asset TEXT NOT NULL,
		chain TEXT NOT NULL,
		mode TEXT NOT NULL,
		crypto_amount TEXT NOT NULL,
		spot_price TEXT NOT NULL,
		fx_rate TEXT NOT NULL,
		spread_bps INTEGER NOT NULL,
		flat_fee TEXT NOT NULL,
		variable_fee_bps INTEGER NOT NULL,
		gross_fiat TEXT NOT NULL,
		total_fee TEXT NOT NULL,
		fiat_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		lock_expires_at DATETIME NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}

func createPayoutTable(t *testing.T, db *gorm.DB) {
	mustExec(t, db, `CREATE TABLE payouts (
		id TEXT PRIMARY KEY,
		quote_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		beneficiary_id TEXT NOT NULL,
		bank_code TEXT NOT NULL,
		account_number TEXT NOT NULL,
		account_name TEXT,
		fiat_amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		status TEXT NOT NULL,
		provider_reference TEXT,
		anomaly BOOLEAN NOT NULL DEFAULT false,
		anomaly_reason TEXT,
		resolution_note TEXT,
		created_at DATETIME,
		updated_at DATETIME
	);`)
}
