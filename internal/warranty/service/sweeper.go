package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StaleReservationSweeper 定期回收长时间未领取的预留
type StaleReservationSweeper struct {
	claims    *ClaimController
	maxAge    time.Duration
	interval  time.Duration
	batchSize int
}

// NewStaleReservationSweeper maxAge 为 0 时不回收
func NewStaleReservationSweeper(claims *ClaimController, maxAge, interval time.Duration, batchSize int) *StaleReservationSweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &StaleReservationSweeper{
		claims:    claims,
		maxAge:    maxAge,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Enabled 是否配置了超时时间
func (w *StaleReservationSweeper) Enabled() bool {
	return w.maxAge > 0
}

// Start 阻塞运行直到 ctx 结束
func (w *StaleReservationSweeper) Start(ctx context.Context) {
	logger := w.claims.logger
	if !w.Enabled() {
		logger.Info("stale reservation sweeper disabled")
		return
	}
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	logger.Info("stale reservation sweeper started",
		zap.Duration("interval", w.interval),
		zap.Duration("max_age", w.maxAge))

	for {
		select {
		case <-ctx.Done():
			logger.Info("stale reservation sweeper stopped")
			return
		case <-ticker.C:
			if n, err := w.Sweep(ctx); err != nil {
				logger.Error("failed to sweep stale reservations", zap.Error(err))
			} else if n > 0 {
				logger.Info("stale reservations released", zap.Int("count", n))
			}
		}
	}
}

// Sweep 执行一轮回收，返回释放的预留数
func (w *StaleReservationSweeper) Sweep(ctx context.Context) (int, error) {
	if !w.Enabled() {
		return 0, nil
	}
	before := w.claims.now().Add(-w.maxAge)
	stale, err := w.claims.store.Reservations().ListStale(ctx, before, w.batchSize)
	if err != nil {
		return 0, err
	}

	released := 0
	for _, res := range stale {
		ok, err := w.claims.ReleaseStaleReservation(ctx, res.ID)
		if err != nil {
			w.claims.logger.Error("failed to release stale reservation",
				zap.String("reservation_id", res.ID),
				zap.Error(err))
			continue
		}
		if ok {
			released++
		}
	}
	return released, nil
}
