package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/logging"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/metrics"
)

// CancelResult reports what a cancel or switch-to-free actually did. The
// operation is idempotent: AlreadyFree means there was nothing to downgrade
// and the call still succeeded.
type CancelResult struct {
	AlreadyFree        bool
	PreviousPlan       string
	NewPlan            string
	CancelledAt        time.Time
	RemoteCancelFailed bool
}

// SyncResult reports one reconciliation against the provider.
type SyncResult struct {
	Synced  bool
	Changed bool
	From    model.SubscriptionStatus
	To      model.SubscriptionStatus
	Reason  string
}

// ValidationResult is the provider's verdict on one subscription id.
type ValidationResult struct {
	SubscriptionID string
	Valid          bool
	Status         string
	PlanID         string
}

// ReconciliationUseCase keeps the local subscription store and the payment
// provider's view of it convergent. The local store is authoritative for
// access decisions; the provider is authoritative for billing state.
type ReconciliationUseCase struct {
	plans    repository.PlanRepository
	subs     repository.SubscriptionRepository
	txm      repository.TransactionManager
	gateway  adapter.PaymentGateway
	notifier adapter.Notifier
	log      *zerolog.Logger
}

func NewReconciliationUseCase(
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	txm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	notifier adapter.Notifier,
	log *zerolog.Logger,
) *ReconciliationUseCase {
	return &ReconciliationUseCase{
		plans:    plans,
		subs:     subs,
		txm:      txm,
		gateway:  gateway,
		notifier: notifier,
		log:      log,
	}
}

// GetSubscriptionInfo returns the user's current record joined with its plan.
// A user with no record (or no active one) is reported on the free default.
func (uc *ReconciliationUseCase) GetSubscriptionInfo(ctx context.Context, userID string) (*model.SubscriptionInfo, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	rec, err := uc.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if rec == nil {
		free, err := uc.plans.FindByName(ctx, repository.NoTX, model.PlanFree)
		if err != nil {
			return nil, err
		}
		return &model.SubscriptionInfo{Plan: free}, nil
	}
	plan, err := uc.plans.FindByID(ctx, repository.NoTX, rec.PlanID)
	if err != nil {
		return nil, err
	}
	return &model.SubscriptionInfo{Record: rec, Plan: plan}, nil
}

// Cancel downgrades the user to the free tier. The local downgrade always
// happens first and always succeeds if a record exists; the remote provider
// cancellation is attempted afterwards and a failure there never reverts the
// local state. Calling Cancel with no active paid subscription is a success.
// cancelRemote=false keeps the provider agreement untouched for callers that
// only want the local downgrade.
func (uc *ReconciliationUseCase) Cancel(ctx context.Context, userID, reason string, cancelRemote bool) (*CancelResult, error) {
	return uc.downgradeToFree(ctx, userID, reason, model.SourceUser, cancelRemote)
}

// SwitchToFree is the user-facing variant of Cancel behind an explicit
// confirmation gate. Confirmed=false performs nothing at all.
func (uc *ReconciliationUseCase) SwitchToFree(ctx context.Context, userID, reason string, confirmed bool) (*CancelResult, error) {
	if !confirmed {
		return nil, domain.ErrConfirmationRequired
	}
	return uc.downgradeToFree(ctx, userID, reason, model.SourceUser, true)
}

// downgradeToFree is the single write path for every transition onto the free
// tier, whoever drives it. remoteCancel controls whether the provider-side
// agreement is cancelled too (webhook-driven downgrades skip it because the
// provider already knows).
func (uc *ReconciliationUseCase) downgradeToFree(ctx context.Context, userID, reason string, source model.ChangeSource, remoteCancel bool) (*CancelResult, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	log := logging.With(ctx, uc.log)
	defer logging.TraceDuration(log, "ReconciliationUC.downgradeToFree")()

	var (
		res        CancelResult
		prevRecord *model.SubscriptionRecord
		prevPlan   *model.Plan
	)
	err := uc.txm.WithUserLock(ctx, userID, func(ctx context.Context, tx repository.Tx) error {
		free, err := uc.plans.FindByName(ctx, tx, model.PlanFree)
		if err != nil {
			return err
		}
		res.NewPlan = string(free.Name)

		rec, err := uc.subs.FindActiveByUser(ctx, tx, userID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if rec == nil || rec.PlanID == free.ID {
			res.AlreadyFree = true
			res.PreviousPlan = string(free.Name)
			return nil
		}
		prevRecord = rec
		if p, err := uc.plans.FindByID(ctx, tx, rec.PlanID); err == nil {
			prevPlan = p
			res.PreviousPlan = string(p.Name)
		} else {
			log.Warn().Err(err).Str("plan_id", rec.PlanID).Msg("previous plan lookup failed")
		}

		now := time.Now()
		changed, err := uc.subs.CancelActive(ctx, tx, userID, repository.CancelUpdate{
			FreePlanID:  free.ID,
			CancelledAt: now,
			Reason:      reason,
			Source:      source,
		})
		if err != nil {
			return err
		}
		if !changed {
			// lost the race to another downgrade; still a success
			res.AlreadyFree = true
			return nil
		}
		res.CancelledAt = now
		return nil
	})
	if err != nil {
		return nil, err
	}

	if res.AlreadyFree {
		return &res, nil
	}
	metrics.IncSubscriptionTransition(model.SubscriptionStatusCancelled, source)

	// Remote cancellation is best effort. The user is already on the free
	// tier locally; a provider failure is logged for the sync worker to
	// retry, never surfaced as an operation failure.
	if remoteCancel && prevRecord.ExternalSubscriptionID != nil && *prevRecord.ExternalSubscriptionID != "" {
		if err := uc.gateway.CancelSubscription(ctx, *prevRecord.ExternalSubscriptionID, reason); err != nil && !errors.Is(err, domain.ErrNotFound) {
			res.RemoteCancelFailed = true
			metrics.IncRemoteCancelFailure()
			log.Warn().Err(err).
				Str("external_subscription_id", *prevRecord.ExternalSubscriptionID).
				Msg("remote cancel failed, local downgrade kept")
		}
	}

	if uc.notifier != nil {
		change := adapter.SubscriptionChange{
			UserID: userID,
			ToPlan: res.NewPlan,
			Status: string(model.SubscriptionStatusCancelled),
			Reason: reason,
		}
		if prevPlan != nil {
			change.FromPlan = string(prevPlan.Name)
		}
		if err := uc.notifier.NotifySubscriptionChange(ctx, change); err != nil {
			log.Warn().Err(err).Msg("subscription change notification failed")
		}
	}
	return &res, nil
}

// ValidatePayPalSubscription asks the provider for the current state of a
// billing agreement without touching local state.
func (uc *ReconciliationUseCase) ValidatePayPalSubscription(ctx context.Context, subscriptionID string) (*ValidationResult, error) {
	if subscriptionID == "" {
		return nil, domain.ErrMissingSubscriptionID
	}
	det, err := uc.gateway.GetSubscriptionDetails(ctx, subscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &ValidationResult{SubscriptionID: subscriptionID, Valid: false}, nil
		}
		return nil, err
	}
	return &ValidationResult{
		SubscriptionID: subscriptionID,
		Valid:          det.Status == "ACTIVE",
		Status:         det.Status,
		PlanID:         det.PlanID,
	}, nil
}

// SyncWithPayPal reconciles one user's record against the provider. The
// provider's status wins: CANCELLED and EXPIRED downgrade to free, SUSPENDED
// restricts without downgrading, ACTIVE lifts a restriction. A record with no
// external id has nothing to reconcile.
func (uc *ReconciliationUseCase) SyncWithPayPal(ctx context.Context, userID string) (*SyncResult, error) {
	if userID == "" {
		return nil, domain.ErrInvalidArgument
	}
	rec, err := uc.subs.FindActiveByUser(ctx, repository.NoTX, userID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &SyncResult{Synced: false, Reason: "no active subscription"}, nil
		}
		return nil, err
	}
	if rec.ExternalSubscriptionID == nil || *rec.ExternalSubscriptionID == "" {
		return &SyncResult{Synced: false, Reason: "no external subscription id"}, nil
	}

	det, err := uc.gateway.GetSubscriptionDetails(ctx, *rec.ExternalSubscriptionID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			// the agreement is gone on the provider side
			return uc.applyRemoteStatus(ctx, rec, "CANCELLED", "subscription missing at provider")
		}
		return nil, err
	}
	return uc.applyRemoteStatus(ctx, rec, det.Status, "provider status "+det.Status)
}

func (uc *ReconciliationUseCase) applyRemoteStatus(ctx context.Context, rec *model.SubscriptionRecord, remote, reason string) (*SyncResult, error) {
	log := logging.With(ctx, uc.log)
	res := &SyncResult{Synced: true, From: rec.Status, To: rec.Status, Reason: reason}

	switch remote {
	case "CANCELLED", "EXPIRED":
		out, err := uc.downgradeToFree(ctx, rec.UserID, reason, model.SourceSync, false)
		if err != nil {
			return nil, err
		}
		if !out.AlreadyFree {
			res.Changed = true
			res.To = model.SubscriptionStatusCancelled
		}
	case "SUSPENDED":
		if !rec.Restricted {
			if err := uc.subs.UpdateStatus(ctx, repository.NoTX, rec.ID, rec.Status, true); err != nil {
				return nil, err
			}
			res.Changed = true
		}
	case "ACTIVE":
		if rec.Restricted {
			if err := uc.subs.UpdateStatus(ctx, repository.NoTX, rec.ID, rec.Status, false); err != nil {
				return nil, err
			}
			res.Changed = true
		}
	default:
		// APPROVAL_PENDING and friends carry no local consequence
		log.Debug().Str("remote_status", remote).Msg("sync: remote status not actionable")
	}
	return res, nil
}

// ExpireOverdue downgrades active records whose expiry passed. Used by the
// expiry worker; batchSize bounds one sweep.
func (uc *ReconciliationUseCase) ExpireOverdue(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 100
	}
	recs, err := uc.subs.ListActiveExpiredBefore(ctx, repository.NoTX, time.Now(), batchSize)
	if err != nil {
		return 0, err
	}
	var n int
	for _, rec := range recs {
		if err := uc.subs.UpdateStatus(ctx, repository.NoTX, rec.ID, model.SubscriptionStatusExpired, false); err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				continue
			}
			return n, err
		}
		metrics.IncSubscriptionTransition(model.SubscriptionStatusExpired, model.SourceSystem)
		n++
	}
	return n, nil
}

// RefreshGauges republishes the by-status record counts.
func (uc *ReconciliationUseCase) RefreshGauges(ctx context.Context) error {
	counts, err := uc.subs.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return err
	}
	metrics.SetSubscriptionsTotal(counts)
	return nil
}

// newRecordID returns a fresh record id. Split out so tests can assert on
// deterministic ids.
func newRecordID() string { return uuid.NewString() }
