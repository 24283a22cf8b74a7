package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"offramp.backend/internal/usecases"
	"offramp.backend/pkg/logger"
)

// PayoutReconciler polls the settlement provider for open payouts
type PayoutReconciler interface {
	Reconcile(ctx context.Context) (usecases.ReconcileSummary, error)
}

// PayoutReconcileJob keeps payout statuses in step with the provider
type PayoutReconcileJob struct {
	dispatcher PayoutReconciler
	interval   time.Duration
	stop       chan struct{}
}

func NewPayoutReconcileJob(dispatcher PayoutReconciler, interval time.Duration) *PayoutReconcileJob {
	return &PayoutReconcileJob{
		dispatcher: dispatcher,
		interval:   orDefault(interval, time.Minute),
		stop:       make(chan struct{}),
	}
}

func (j *PayoutReconcileJob) Start(ctx context.Context) {
	run(ctx, "payout_reconcile", j.interval, j.stop, j.process)
}

func (j *PayoutReconcileJob) Stop() {
	close(j.stop)
}

func (j *PayoutReconcileJob) process(ctx context.Context) {
	sum, err := j.dispatcher.Reconcile(ctx)
	if err != nil {
		logger.Error(ctx, "Error reconciling payouts", zap.Error(err))
		return
	}
	if sum.Checked == 0 {
		return
	}
	logger.Info(ctx, "Payouts reconciled",
		zap.Int("checked", sum.Checked),
		zap.Int("updated", sum.Updated),
		zap.Int("anomalies", sum.Anomalies),
		zap.Int("skipped", sum.Skipped),
	)
}
