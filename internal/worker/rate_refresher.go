package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

type Refresher interface {
	Refresh(ctx context.Context) error
}

// RateRefresher is the single background updater of the shared rate
// snapshot.
type RateRefresher struct {
	rates    Refresher
	interval time.Duration
	logger   *zap.Logger
}

func NewRateRefresher(rates Refresher, interval time.Duration, logger *zap.Logger) *RateRefresher {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RateRefresher{
		rates:    rates,
		interval: interval,
		logger:   logger,
	}
}

func (w *RateRefresher) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("rate refresher started", zap.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("rate refresher stopped")
			return
		case <-ticker.C:
			// Failures keep the last known snapshot; the next tick retries.
			if err := w.rates.Refresh(ctx); err != nil {
				w.logger.Warn("scheduled rate refresh failed", zap.Error(err))
			}
		}
	}
}
