package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"offramp.backend/internal/usecases"
	"offramp.backend/pkg/logger"
)

// ConfirmedSweeper sweeps confirmed deposits in bulk
type ConfirmedSweeper interface {
	SweepConfirmed(ctx context.Context, limit int) ([]usecases.SweepResult, error)
}

// SweepJob moves confirmed deposits to treasury
type SweepJob struct {
	sweeper  ConfirmedSweeper
	batch    int
	interval time.Duration
	stop     chan struct{}
}

func NewSweepJob(sweeper ConfirmedSweeper, interval time.Duration, batch int) *SweepJob {
	if batch <= 0 {
		batch = 50
	}
	return &SweepJob{
		sweeper:  sweeper,
		batch:    batch,
		interval: orDefault(interval, 30*time.Second),
		stop:     make(chan struct{}),
	}
}

func (j *SweepJob) Start(ctx context.Context) {
	run(ctx, "sweep", j.interval, j.stop, j.process)
}

func (j *SweepJob) Stop() {
	close(j.stop)
}

func (j *SweepJob) process(ctx context.Context) {
	results, err := j.sweeper.SweepConfirmed(ctx, j.batch)
	if err != nil {
		logger.Error(ctx, "Error sweeping deposits", zap.Error(err))
		return
	}
	if len(results) == 0 {
		return
	}

	counts := make(map[usecases.SweepOutcome]int)
	for _, r := range results {
		counts[r.Outcome]++
	}
	logger.Info(ctx, "Sweep pass finished",
		zap.Int("deposits", len(results)),
		zap.Int("submitted", counts[usecases.SweepOutcomeSubmitted]),
		zap.Int("awaiting_gas", counts[usecases.SweepOutcomeAwaitingGas]),
		zap.Int("failed", counts[usecases.SweepOutcomeFailed]),
	)
}
