package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"offramp.backend/pkg/logger"
)

const quoteExpiryBatch = 500

// QuoteExpirer marks lapsed quotes expired
type QuoteExpirer interface {
	ExpireStale(ctx context.Context, limit int) (int64, error)
}

// QuoteExpiryJob handles expiring active quotes past their lock
type QuoteExpiryJob struct {
	engine   QuoteExpirer
	interval time.Duration
	stop     chan struct{}
}

func NewQuoteExpiryJob(engine QuoteExpirer, interval time.Duration) *QuoteExpiryJob {
	return &QuoteExpiryJob{
		engine:   engine,
		interval: orDefault(interval, 30*time.Second),
		stop:     make(chan struct{}),
	}
}

func (j *QuoteExpiryJob) Start(ctx context.Context) {
	run(ctx, "quote_expiry", j.interval, j.stop, j.process)
}

func (j *QuoteExpiryJob) Stop() {
	close(j.stop)
}

func (j *QuoteExpiryJob) process(ctx context.Context) {
	n, err := j.engine.ExpireStale(ctx, quoteExpiryBatch)
	if err != nil {
		logger.Error(ctx, "Error expiring quotes", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Info(ctx, "Expired quotes", zap.Int64("count", n))
	}
}
