package config

import (
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"offramp.backend/internal/domain/entities"
)

// Config holds all configuration values
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	Security   SecurityConfig
	Chains     []ChainConfig
	Pricing    PricingConfig
	Settlement SettlementConfig
	Identity   IdentityConfig
	Sweep      SweepConfig
	Jobs       JobsConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Env  string
	// WebhookSecret authenticates indexer deposit webhooks
	WebhookSecret string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// URL returns the database connection URL
func (c DatabaseConfig) URL() string {
	return "postgres://" + c.User + ":" + c.Password + "@" + c.Host + ":" + strconv.Itoa(c.Port) + "/" + c.DBName + "?sslmode=" + c.SSLMode + "&prepare_threshold=0"
}

// ListenerDSN returns a key/value DSN for the LISTEN connection and database/sql
func (c DatabaseConfig) ListenerDSN() string {
	return "host=" + c.Host + " port=" + strconv.Itoa(c.Port) + " user=" + c.User + " password=" + c.Password + " dbname=" + c.DBName + " sslmode=" + c.SSLMode
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	URL      string
	PASSWORD string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret        string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
}

// SecurityConfig holds custody secrets
type SecurityConfig struct {
	MasterSecret  string
	KDFIterations int
	KDFWorkers    int
}

// ChainConfig holds one chain's RPC and custody settings
type ChainConfig struct {
	Name                  string
	Kind                  entities.ChainType
	ChainID               string
	RPCURL                string
	APIKey                string
	RequiredConfirmations int64
	TreasuryAddress       string
	SponsorAddress        string
	SponsorMinBalance     decimal.Decimal
	NativeSymbol          string
	NativeDecimals        int32
	Assets                []entities.Asset
}

// Entity converts the chain configuration into the domain chain description
func (c ChainConfig) Entity() entities.Chain {
	return entities.Chain{
		Name:                  c.Name,
		Type:                  c.Kind,
		ChainID:               c.ChainID,
		RPCURL:                c.RPCURL,
		APIKey:                c.APIKey,
		RequiredConfirmations: c.RequiredConfirmations,
		TreasuryAddress:       c.TreasuryAddress,
		SponsorAddress:        c.SponsorAddress,
		SponsorMinBalance:     c.SponsorMinBalance,
		NativeSymbol:          c.NativeSymbol,
		NativeDecimals:        c.NativeDecimals,
		Assets:                c.Assets,
	}
}

// PricingConfig holds quote fees and oracle settings
type PricingConfig struct {
	SpreadBps         int64
	FlatFee           decimal.Decimal
	VariableFeeBps    int64
	QuoteLock         time.Duration
	SlippageBps       int64
	CacheTTL          time.Duration
	OracleURL         string
	OracleAPIKey      string
	OracleTimeout     time.Duration
	OracleAssetIDs    map[string]string
	FallbackRPCURL    string
	FallbackFeeds     map[string]string
	FXURL             string
	FXAPIKey          string
	FXTimeout         time.Duration
	SharedCachePrefix string
}

// SettlementConfig holds offramp provider settings
type SettlementConfig struct {
	ProviderURL       string
	APIKey            string
	SigningSecret     string
	Timeout           time.Duration
	ReconcileMinAge   time.Duration
	ReconcileWindow   time.Duration
	NotFoundAnomaly   time.Duration
	TierLimits        map[int]decimal.Decimal
	ReconcileBatch    int
	RequireTreasury   bool
	DefaultCurrency   string
	CallbackTolerance time.Duration
}

// IdentityConfig holds KYC provider settings
type IdentityConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// SweepConfig holds sweep retry settings
type SweepConfig struct {
	MaxAttempts   int
	Workers       int
	BatchSize     int
	UseRedisLock  bool
	LockTTL       time.Duration
	GasTopUpRatio int64
}

// JobsConfig holds background job intervals
type JobsConfig struct {
	DepositPollInterval time.Duration
	SweepInterval       time.Duration
	ReconcileInterval   time.Duration
	QuoteExpiryInterval time.Duration
	ListenerEnabled     bool
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:          getEnv("SERVER_PORT", "8080"),
			Env:           getEnv("SERVER_ENV", "development"),
			WebhookSecret: getEnv("WEBHOOK_SECRET", ""),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "offramp"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			URL:      getEnv("REDIS_URL", "redis://localhost:6379"),
			PASSWORD: getEnv("REDIS_PASSWORD", ""),
		},
		JWT: JWTConfig{
			Secret:        getEnv("JWT_SECRET", "change-this-in-production"),
			AccessExpiry:  getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
			RefreshExpiry: getEnvAsDuration("JWT_REFRESH_EXPIRY", 7*24*time.Hour),
		},
		Security: SecurityConfig{
			MasterSecret:  getEnv("MASTER_ENCRYPTION_SECRET", ""),
			KDFIterations: getEnvAsInt("KDF_ITERATIONS", 600000),
			KDFWorkers:    getEnvAsInt("KDF_WORKERS", runtime.NumCPU()),
		},
		Chains: loadChains(),
		Pricing: PricingConfig{
			SpreadBps:         getEnvAsInt64("PRICING_SPREAD_BPS", 50),
			FlatFee:           getEnvAsDecimal("PRICING_FLAT_FEE", decimal.NewFromInt(100)),
			VariableFeeBps:    getEnvAsInt64("PRICING_VARIABLE_FEE_BPS", 100),
			QuoteLock:         time.Duration(getEnvAsInt("QUOTE_LOCK_SECONDS", 120)) * time.Second,
			SlippageBps:       getEnvAsInt64("QUOTE_SLIPPAGE_BPS", 100),
			CacheTTL:          getEnvAsDuration("PRICE_CACHE_TTL", 15*time.Second),
			OracleURL:         getEnv("ORACLE_URL", "https://api.coingecko.com/api/v3"),
			OracleAPIKey:      getEnv("ORACLE_API_KEY", ""),
			OracleTimeout:     getEnvAsDuration("ORACLE_TIMEOUT", 3*time.Second),
			OracleAssetIDs:    getEnvAsMap("ORACLE_ASSET_IDS", "ETH:ethereum,USDT:tether,USDC:usd-coin,SOL:solana,TRX:tron"),
			FallbackRPCURL:    getEnv("ORACLE_FALLBACK_RPC_URL", ""),
			FallbackFeeds:     getEnvAsMap("ORACLE_FALLBACK_FEEDS", ""),
			FXURL:             getEnv("FX_URL", "https://open.er-api.com/v6"),
			FXAPIKey:          getEnv("FX_API_KEY", ""),
			FXTimeout:         getEnvAsDuration("FX_TIMEOUT", 3*time.Second),
			SharedCachePrefix: getEnv("PRICE_CACHE_PREFIX", "price"),
		},
		Settlement: SettlementConfig{
			ProviderURL:       getEnv("SETTLEMENT_URL", ""),
			APIKey:            getEnv("SETTLEMENT_API_KEY", ""),
			SigningSecret:     getEnv("SETTLEMENT_SIGNING_SECRET", ""),
			Timeout:           getEnvAsDuration("SETTLEMENT_TIMEOUT", 10*time.Second),
			ReconcileMinAge:   getEnvAsDuration("SETTLEMENT_RECONCILE_MIN_AGE", 2*time.Minute),
			ReconcileWindow:   getEnvAsDuration("SETTLEMENT_RECONCILE_WINDOW", 72*time.Hour),
			NotFoundAnomaly:   getEnvAsDuration("SETTLEMENT_NOT_FOUND_ANOMALY_AGE", 30*time.Minute),
			TierLimits:        getEnvAsTierLimits("SETTLEMENT_TIER_LIMITS", "0:0,1:500000,2:5000000,3:50000000"),
			ReconcileBatch:    getEnvAsInt("SETTLEMENT_RECONCILE_BATCH", 100),
			RequireTreasury:   getEnvAsBool("SETTLEMENT_REQUIRE_TREASURY_BALANCE", true),
			DefaultCurrency:   getEnv("SETTLEMENT_DEFAULT_CURRENCY", "NGN"),
			CallbackTolerance: getEnvAsDuration("SETTLEMENT_CALLBACK_TOLERANCE", 5*time.Minute),
		},
		Identity: IdentityConfig{
			URL:     getEnv("IDENTITY_URL", ""),
			APIKey:  getEnv("IDENTITY_API_KEY", ""),
			Timeout: getEnvAsDuration("IDENTITY_TIMEOUT", 3*time.Second),
		},
		Sweep: SweepConfig{
			MaxAttempts:   getEnvAsInt("SWEEP_MAX_ATTEMPTS", 5),
			Workers:       getEnvAsInt("SWEEP_WORKERS", 4),
			BatchSize:     getEnvAsInt("SWEEP_BATCH_SIZE", 50),
			UseRedisLock:  getEnvAsBool("SWEEP_REDIS_LOCK", true),
			LockTTL:       getEnvAsDuration("SWEEP_LOCK_TTL", 2*time.Minute),
			GasTopUpRatio: getEnvAsInt64("SWEEP_GAS_TOPUP_RATIO", 2),
		},
		Jobs: JobsConfig{
			DepositPollInterval: getEnvAsDuration("JOB_DEPOSIT_POLL_INTERVAL", 15*time.Second),
			SweepInterval:       getEnvAsDuration("JOB_SWEEP_INTERVAL", 30*time.Second),
			ReconcileInterval:   getEnvAsDuration("JOB_RECONCILE_INTERVAL", time.Minute),
			QuoteExpiryInterval: getEnvAsDuration("JOB_QUOTE_EXPIRY_INTERVAL", 30*time.Second),
			ListenerEnabled:     getEnvAsBool("DEPOSIT_LISTENER_ENABLED", true),
		},
	}
}

var chainDefaults = map[entities.ChainType]struct {
	confirmations int64
	decimals      int32
}{
	entities.ChainTypeEVM:  {confirmations: 12, decimals: 18},
	entities.ChainTypeSVM:  {confirmations: 32, decimals: 9},
	entities.ChainTypeTron: {confirmations: 19, decimals: 6},
}

// loadChains reads CHAINS=a,b and the CHAIN_<NAME>_* block for each entry.
func loadChains() []ChainConfig {
	names := splitList(getEnv("CHAINS", ""))
	chains := make([]ChainConfig, 0, len(names))
	for _, name := range names {
		prefix := "CHAIN_" + strings.ToUpper(name) + "_"
		kind := entities.ChainType(strings.ToUpper(getEnv(prefix+"KIND", string(entities.ChainTypeEVM))))
		if kind == "SOLANA" {
			kind = entities.ChainTypeSVM
		}
		defaults := chainDefaults[kind]

		chains = append(chains, ChainConfig{
			Name:                  strings.ToLower(name),
			Kind:                  kind,
			ChainID:               getEnv(prefix+"CHAIN_ID", ""),
			RPCURL:                getEnv(prefix+"RPC_URL", ""),
			APIKey:                getEnv(prefix+"API_KEY", ""),
			RequiredConfirmations: getEnvAsInt64(prefix+"REQUIRED_CONFIRMATIONS", defaults.confirmations),
			TreasuryAddress:       getEnv(prefix+"TREASURY_ADDRESS", ""),
			SponsorAddress:        getEnv(prefix+"SPONSOR_ADDRESS", ""),
			SponsorMinBalance:     getEnvAsDecimal(prefix+"SPONSOR_MIN_BALANCE", decimal.Zero),
			NativeSymbol:          strings.ToUpper(getEnv(prefix+"NATIVE_SYMBOL", "")),
			NativeDecimals:        int32(getEnvAsInt(prefix+"NATIVE_DECIMALS", int(defaults.decimals))),
			Assets:                parseAssets(getEnv(prefix+"ASSETS", "")),
		})
	}
	return chains
}

// parseAssets reads SYMBOL:token:decimals entries. Malformed entries are skipped.
func parseAssets(raw string) []entities.Asset {
	var assets []entities.Asset
	for _, item := range splitList(raw) {
		parts := strings.Split(item, ":")
		if len(parts) != 3 {
			continue
		}
		decimals, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			continue
		}
		assets = append(assets, entities.Asset{
			Symbol:   strings.ToUpper(strings.TrimSpace(parts[0])),
			Token:    strings.TrimSpace(parts[1]),
			Decimals: int32(decimals),
		})
	}
	return assets
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key string, defaultValue decimal.Decimal) decimal.Decimal {
	if value := os.Getenv(key); value != "" {
		if d, err := decimal.NewFromString(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvAsMap reads KEY:value pairs; keys are upper-cased.
func getEnvAsMap(key, defaultValue string) map[string]string {
	out := make(map[string]string)
	for _, item := range splitList(getEnv(key, defaultValue)) {
		k, v, ok := strings.Cut(item, ":")
		if !ok {
			continue
		}
		out[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}
	return out
}

func getEnvAsTierLimits(key, defaultValue string) map[int]decimal.Decimal {
	out := make(map[int]decimal.Decimal)
	for k, v := range getEnvAsMap(key, defaultValue) {
		tier, err := strconv.Atoi(k)
		if err != nil {
			continue
		}
		limit, err := decimal.NewFromString(v)
		if err != nil {
			continue
		}
		out[tier] = limit
	}
	return out
}
