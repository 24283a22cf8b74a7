package usecases

import "time"

// Basis point denominator
const bpsDenominator = 10000

// FiatDecimals is the precision fiat amounts are quoted and settled at
const FiatDecimals = 2

// Defaults used when a component is built with a zero config value
const (
	DefaultSweepMaxAttempts   = 5
	DefaultSweepWorkers       = 4
	DefaultQuoteLock          = 120 * time.Second
	DefaultReconcileMinAge    = 2 * time.Minute
	DefaultReconcileWindow    = 72 * time.Hour
	DefaultNotFoundAnomalyAge = 30 * time.Minute
	DefaultReconcileBatch     = 100
	DefaultGasTopUpRatio      = 2
)

// lastErrorMaxLen bounds the error text stored on a deposit
const lastErrorMaxLen = 500
