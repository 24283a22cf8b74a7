package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
	"offramp.backend/pkg/logger"
)

// Job is a periodic background task started by cmd/server
type Job interface {
	Start(ctx context.Context)
	Stop()
}

// run calls tick every interval until ctx is cancelled or stop is closed
func run(ctx context.Context, name string, interval time.Duration, stop <-chan struct{}, tick func(context.Context)) {
	ctx = logger.WithJob(ctx, name)
	logger.Info(ctx, "Starting job", zap.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Job stopped (context cancelled)")
			return
		case <-stop:
			logger.Info(ctx, "Job stopped")
			return
		case <-ticker.C:
			tick(ctx)
		}
	}
}

func orDefault(d, def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return d
}
