package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/metrics"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/usecase"
)

// ExpiryWorker periodically sweeps past-due subscriptions.
type ExpiryWorker struct {
	interval time.Duration
	sweepUC  *usecase.SweepUseCase
	subUC    *usecase.SubscriptionUseCase
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, sweepUC *usecase.SweepUseCase, subUC *usecase.SubscriptionUseCase, logger *zerolog.Logger) *ExpiryWorker {
	l := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{interval: interval, sweepUC: sweepUC, subUC: subUC, log: &l}
}

func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.sweepUC.SweepExpired(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("expiry sweep error")
			}
			if n > 0 {
				metrics.IncSubscriptionsExpired(n)
				w.log.Info().Int("count", n).Msg("expired subscriptions processed")
			}
			if counts, err := w.subUC.CountByStatus(ctx); err == nil {
				metrics.SetSubscriptionsTotal(counts)
			}
		}
	}
}
