package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weeasd57/stockroom-wind-sub003/internal/usecase"
)

// ExpiryWorker periodically downgrades active records whose expiry passed.
type ExpiryWorker struct {
	interval time.Duration
	reconUC  *usecase.ReconciliationUseCase
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, reconUC *usecase.ReconciliationUseCase, logger *zerolog.Logger) *ExpiryWorker {
	compLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		reconUC:  reconUC,
		log:      &compLog,
	}
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
			n, err := w.reconUC.ExpireOverdue(ctx, 100)
			if err != nil {
				w.log.Error().Err(err).Msg("expiry worker error")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("expired subscriptions finished")
			}
		}
	}
}
