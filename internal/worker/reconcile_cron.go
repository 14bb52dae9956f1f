package worker

// reconcile_cron.go
// Background goroutine that periodically asks the gateway about mobile
// payments stuck in pending, for pushes whose callback never arrived.
// Skips ticks while the breaker is open.

import (
	"context"
	"time"

	"github.com/manodhiambo/carwash-pos-sub000/internal/infra"
	"github.com/manodhiambo/carwash-pos-sub000/internal/service"

	"github.com/rs/zerolog/log"
)

const reconcileBatchSize = 25

// Reconciler is implemented by the mpesa service.
type Reconciler interface {
	ReconcileStale(ctx context.Context, olderThan, expireAfter time.Duration, limit int) (*service.ReconcileReport, error)
}

// ReconcileCronConfig holds all dependencies for the sweep goroutine.
type ReconcileCronConfig struct {
	Reconciler Reconciler
	CB         *infra.CircuitBreaker
	Interval   time.Duration
	// OlderThan is the minimum age of a pending row before it is queried
	OlderThan time.Duration
	// ExpireAfter fails rows outright once they are this old
	ExpireAfter time.Duration
	BatchSize   int
}

// StartReconcileCron launches the sweep. It respects ctx for graceful shutdown.
func StartReconcileCron(ctx context.Context, cfg ReconcileCronConfig) {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = reconcileBatchSize
	}
	go func() {
		ticker := time.NewTicker(cfg.Interval)
		defer ticker.Stop()

		log.Info().Dur("interval", cfg.Interval).Msg("reconcile_cron: started")

		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("reconcile_cron: shutting down")
				return
			case <-ticker.C:
				runReconcile(ctx, cfg)
			}
		}
	}()
}

func runReconcile(ctx context.Context, cfg ReconcileCronConfig) *service.ReconcileReport {
	// If the breaker is open, skip entirely; the gateway is known to be down
	if cfg.CB != nil && cfg.CB.State() == infra.CBOpen {
		log.Debug().Msg("reconcile_cron: circuit breaker is open, skipping tick")
		return nil
	}
	report, err := cfg.Reconciler.ReconcileStale(ctx, cfg.OlderThan, cfg.ExpireAfter, cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("reconcile_cron: sweep failed")
		return nil
	}
	if report.Stopped {
		log.Warn().Int("checked", report.Checked).Msg("reconcile_cron: breaker opened mid-batch, stopping")
	}
	return report
}
