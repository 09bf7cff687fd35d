package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
	red "github.com/weeasd57/stockroom-wind-sub003/internal/infra/redis"
	"github.com/weeasd57/stockroom-wind-sub003/internal/usecase"
)

// syncLockTTL bounds how long one user's reconciliation can hold its lock;
// a crashed worker frees the user after expiry.
const syncLockTTL = 30 * time.Second

// recordSource is the slice of the subscription repository the sweep needs.
type recordSource interface {
	ListActiveWithExternalID(ctx context.Context, tx repository.Tx, limit int) ([]*model.SubscriptionRecord, error)
}

type reconciler interface {
	SyncWithPayPal(ctx context.Context, userID string) (*usecase.SyncResult, error)
	RefreshGauges(ctx context.Context) error
}

// SyncWorker periodically reconciles active paid records against the provider
// so records converge even when webhooks were missed or a best-effort remote
// cancel failed. Each user is reconciled under a redis lock; a user currently
// being synced elsewhere is skipped and picked up on the next sweep.
type SyncWorker struct {
	interval  time.Duration
	batchSize int
	subs      recordSource
	reconUC   reconciler
	lock      red.SyncLocker
	log       *zerolog.Logger
}

func NewSyncWorker(interval time.Duration, batchSize int, subs recordSource, reconUC reconciler, lock red.SyncLocker, logger *zerolog.Logger) *SyncWorker {
	compLog := logger.With().Str("component", "SyncWorker").Logger()
	if batchSize <= 0 {
		batchSize = 200
	}
	return &SyncWorker{
		interval:  interval,
		batchSize: batchSize,
		subs:      subs,
		reconUC:   reconUC,
		lock:      lock,
		log:       &compLog,
	}
}

func (w *SyncWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting sync worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping sync worker")
			return ctx.Err()
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SyncWorker) sweep(ctx context.Context) {
	recs, err := w.subs.ListActiveWithExternalID(ctx, repository.NoTX, w.batchSize)
	if err != nil {
		w.log.Error().Err(err).Msg("sync sweep listing failed")
		return
	}
	var changed int
	for _, rec := range recs {
		if ctx.Err() != nil {
			return
		}
		if w.syncOne(ctx, rec.UserID) {
			changed++
		}
	}
	if err := w.reconUC.RefreshGauges(ctx); err != nil {
		w.log.Warn().Err(err).Msg("gauge refresh failed")
	}
	if changed > 0 {
		w.log.Info().Int("count", changed).Msg("records converged during sync sweep")
	}
}

// syncOne reconciles a single user under the per-user lock and reports
// whether local state changed.
func (w *SyncWorker) syncOne(ctx context.Context, userID string) bool {
	if w.lock != nil {
		token, ok, err := w.lock.Acquire(ctx, userID, syncLockTTL)
		switch {
		case err != nil:
			// redis trouble: proceed unlocked, the database advisory lock
			// still serializes the writes
			w.log.Warn().Err(err).Str("user_id", userID).Msg("sync lock unavailable")
		case !ok:
			return false
		default:
			defer func() {
				if err := w.lock.Release(ctx, userID, token); err != nil {
					w.log.Warn().Err(err).Str("user_id", userID).Msg("sync lock release failed")
				}
			}()
		}
	}

	res, err := w.reconUC.SyncWithPayPal(ctx, userID)
	if err != nil {
		w.log.Warn().Err(err).Str("user_id", userID).Msg("sync failed for user")
		return false
	}
	return res.Changed
}
