package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/biluextraterrestre/telegram-payment-bot/internal/infra/metrics"
	"github.com/biluextraterrestre/telegram-payment-bot/internal/usecase"
)

// ReminderWorker periodically notifies users whose subscriptions end soon.
type ReminderWorker struct {
	interval time.Duration
	sweepUC  *usecase.SweepUseCase
	log      *zerolog.Logger
}

func NewReminderWorker(interval time.Duration, sweepUC *usecase.SweepUseCase, logger *zerolog.Logger) *ReminderWorker {
	l := logger.With().Str("component", "ReminderWorker").Logger()
	return &ReminderWorker{interval: interval, sweepUC: sweepUC, log: &l}
}

func (w *ReminderWorker) Run(ctx context.Context) error {
	w.log.Info().Msg("Starting reminder worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping reminder worker")
			return ctx.Err()
		case <-ticker.C:
			n, err := w.sweepUC.SweepExpiringSoon(ctx)
			if err != nil {
				w.log.Error().Err(err).Msg("reminder sweep error")
			}
			if n > 0 {
				metrics.IncRemindersSent(n)
				w.log.Info().Int("count", n).Msg("renewal reminders sent")
			}
		}
	}
}
