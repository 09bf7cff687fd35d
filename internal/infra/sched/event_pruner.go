package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weeasd57/stockroom-wind-sub003/internal/usecase"
)

// EventPruner trims processed webhook events past the retention window and
// gives failed ones another dispatch attempt. Unprocessed events are never
// pruned.
type EventPruner struct {
	interval  time.Duration
	retention time.Duration
	webhookUC *usecase.WebhookUseCase
	log       *zerolog.Logger
}

func NewEventPruner(interval, retention time.Duration, webhookUC *usecase.WebhookUseCase, logger *zerolog.Logger) *EventPruner {
	compLog := logger.With().Str("component", "EventPruner").Logger()
	return &EventPruner{
		interval:  interval,
		retention: retention,
		webhookUC: webhookUC,
		log:       &compLog,
	}
}

func (w *EventPruner) Run(ctx context.Context) error {
	w.log.Info().Dur("retention", w.retention).Msg("Starting event pruner")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping event pruner")
			return ctx.Err()
		case <-ticker.C:
			retried, err := w.webhookUC.RetryUnprocessed(ctx, 100)
			if err != nil {
				w.log.Error().Err(err).Msg("event retry sweep failed")
			}
			if retried > 0 {
				w.log.Info().Int("count", retried).Msg("failed webhook events recovered")
			}

			n, err := w.webhookUC.PruneProcessed(ctx, w.retention)
			if err != nil {
				w.log.Error().Err(err).Msg("event prune failed")
			}
			if n > 0 {
				w.log.Info().Int("count", n).Msg("webhook events pruned")
			}
		}
	}
}
