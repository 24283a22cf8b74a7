package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"offramp.backend/pkg/logger"
)

const depositBatch = 200

// DepositRefresher advances open deposits
type DepositRefresher interface {
	RefreshPending(ctx context.Context, limit int) (int, error)
}

// DepositConfirmationJob polls confirmations for detected and confirming deposits
type DepositConfirmationJob struct {
	tracker  DepositRefresher
	interval time.Duration
	stop     chan struct{}
}

func NewDepositConfirmationJob(tracker DepositRefresher, interval time.Duration) *DepositConfirmationJob {
	return &DepositConfirmationJob{
		tracker:  tracker,
		interval: orDefault(interval, 15*time.Second),
		stop:     make(chan struct{}),
	}
}

func (j *DepositConfirmationJob) Start(ctx context.Context) {
	run(ctx, "deposit_confirmation", j.interval, j.stop, j.process)
}

func (j *DepositConfirmationJob) Stop() {
	close(j.stop)
}

func (j *DepositConfirmationJob) process(ctx context.Context) {
	n, err := j.tracker.RefreshPending(ctx, depositBatch)
	if err != nil {
		logger.Error(ctx, "Error refreshing deposits", zap.Error(err))
		return
	}
	if n > 0 {
		logger.Debug(ctx, "Deposits refreshed", zap.Int("count", n))
	}
}
