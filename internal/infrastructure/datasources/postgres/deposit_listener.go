package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"offramp.backend/internal/domain/entities"
	"offramp.backend/pkg/logger"
)

// DepositChannel is the NOTIFY channel indexers publish inbound transfers on
const DepositChannel = "deposit_events"

// DepositIngester consumes deposit events
type DepositIngester interface {
	Ingest(ctx context.Context, event entities.DepositEvent) (*entities.OnchainDeposit, error)
}

type notificationConn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

var connectListener = func(ctx context.Context, dsn string) (notificationConn, error) {
	return pgx.Connect(ctx, dsn)
}

// DepositListener feeds NOTIFY payloads on DepositChannel into a DepositIngester,
// reconnecting after connection loss.
type DepositListener struct {
	dsn     string
	ingest  DepositIngester
	backoff time.Duration
	stop    chan struct{}
}

// NewDepositListener creates a listener for the given key/value DSN
func NewDepositListener(dsn string, ingest DepositIngester) *DepositListener {
	return &DepositListener{
		dsn:     dsn,
		ingest:  ingest,
		backoff: 5 * time.Second,
		stop:    make(chan struct{}),
	}
}

// Start blocks until ctx is cancelled or Stop is called
func (l *DepositListener) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(logger.WithJob(ctx, "deposit_listener"))
	defer cancel()
	go func() {
		select {
		case <-l.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info(ctx, "Starting deposit listener", zap.String("channel", DepositChannel))
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			logger.Info(ctx, "Deposit listener stopped")
			return
		}
		logger.Warn(ctx, "Deposit listener connection lost", zap.Error(err))

		select {
		case <-ctx.Done():
			logger.Info(ctx, "Deposit listener stopped")
			return
		case <-time.After(l.backoff):
		}
	}
}

// Stop ends Start
func (l *DepositListener) Stop() {
	close(l.stop)
}

func (l *DepositListener) listen(ctx context.Context) error {
	conn, err := connectListener(ctx, l.dsn)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+DepositChannel); err != nil {
		return err
	}

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		if n == nil {
			return errors.New("empty notification")
		}
		l.handle(ctx, n.Payload)
	}
}

func (l *DepositListener) handle(ctx context.Context, payload string) {
	var event entities.DepositEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		logger.Warn(ctx, "Skipping malformed deposit notification", zap.Error(err))
		return
	}
	deposit, err := l.ingest.Ingest(ctx, event)
	if err != nil {
		logger.Error(ctx, "Failed to ingest deposit notification",
			zap.String("chain", event.Chain),
			zap.String("tx_ref", event.TxRef),
			zap.Error(err),
		)
		return
	}
	logger.Debug(ctx, "Deposit notification ingested",
		zap.String("deposit_id", deposit.ID.String()),
		zap.String("status", string(deposit.Status)),
	)
}
