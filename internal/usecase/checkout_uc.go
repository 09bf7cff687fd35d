package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/logging"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/metrics"
)

// ConfirmRequest describes a client-reported completed checkout. Amount is
// what the client claims was charged; it is validated against the plan price
// before any capture call goes out.
type ConfirmRequest struct {
	UserID          string
	OrderID         string
	AuthorizationID string
	SubscriptionID  string // provider billing agreement id, if a recurring flow
	Amount          string
	Currency        string
}

// oneShotAccessPeriod is how long a single captured order grants pro access.
// Recurring agreements carry no local expiry; the provider's billing events
// drive their lifecycle instead.
const oneShotAccessPeriod = 30 * 24 * time.Hour

// ConfirmResult is the materialized upgrade.
type ConfirmResult struct {
	Record    *model.SubscriptionRecord
	Plan      *model.Plan
	CaptureID string
}

// CheckoutUseCase turns provider-approved checkouts into active pro records.
// It trusts nothing the client reports: the amount must equal the plan price
// exactly and the capture must come back COMPLETED before any local write.
type CheckoutUseCase struct {
	plans   repository.PlanRepository
	subs    repository.SubscriptionRepository
	txm     repository.TransactionManager
	gateway adapter.PaymentGateway
	log     *zerolog.Logger
}

func NewCheckoutUseCase(
	plans repository.PlanRepository,
	subs repository.SubscriptionRepository,
	txm repository.TransactionManager,
	gateway adapter.PaymentGateway,
	log *zerolog.Logger,
) *CheckoutUseCase {
	return &CheckoutUseCase{plans: plans, subs: subs, txm: txm, gateway: gateway, log: log}
}

// Confirm captures an approved order and activates the pro plan.
func (uc *CheckoutUseCase) Confirm(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if req.OrderID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return uc.confirm(ctx, req, func(ctx context.Context) (*adapter.CaptureResult, error) {
		return uc.gateway.CaptureOrder(ctx, req.OrderID)
	})
}

// ConfirmAuthorization is the authorization-hold variant of Confirm.
func (uc *CheckoutUseCase) ConfirmAuthorization(ctx context.Context, req ConfirmRequest) (*ConfirmResult, error) {
	if req.AuthorizationID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return uc.confirm(ctx, req, func(ctx context.Context) (*adapter.CaptureResult, error) {
		return uc.gateway.CaptureAuthorization(ctx, req.AuthorizationID)
	})
}

func (uc *CheckoutUseCase) confirm(ctx context.Context, req ConfirmRequest, capture func(ctx context.Context) (*adapter.CaptureResult, error)) (*ConfirmResult, error) {
	if req.UserID == "" {
		return nil, domain.ErrInvalidArgument
	}
	log := logging.With(ctx, uc.log)
	defer logging.TraceDuration(log, "CheckoutUC.confirm")()

	pro, err := uc.plans.FindByName(ctx, repository.NoTX, model.PlanPro)
	if err != nil {
		return nil, err
	}

	// Numeric comparison, not string comparison: "4.00" and "4.0" are the
	// same amount, "3.99" is not. Fails before any provider call.
	if err := validateAmount(req.Amount, pro.PriceUSD); err != nil {
		return nil, err
	}
	if req.Currency != "" && req.Currency != "USD" {
		return nil, domain.ErrInvalidAmount
	}

	cres, err := capture(ctx)
	if err != nil {
		// An indeterminate outcome is surfaced as-is and never retried
		// here; retrying a capture that may have succeeded double-charges.
		return nil, err
	}

	// Cross-check the provider-reported amount too, when present.
	if cres.Amount != "" {
		if err := validateAmount(cres.Amount, pro.PriceUSD); err != nil {
			log.Error().
				Str("capture_id", cres.CaptureID).
				Str("amount", cres.Amount).
				Msg("capture completed with unexpected amount")
			return nil, err
		}
	}

	externalID := req.SubscriptionID
	if externalID == "" {
		externalID = cres.OrderID
	}

	var rec *model.SubscriptionRecord
	err = uc.txm.WithUserLock(ctx, req.UserID, func(ctx context.Context, tx repository.Tx) error {
		existing, err := uc.subs.FindActiveByUser(ctx, tx, req.UserID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return err
		}
		if existing != nil && existing.PlanID == pro.ID {
			// repeat confirmation of the same upgrade; keep the record
			rec = existing
			return nil
		}
		if existing != nil {
			// replace the current record (free-tier materialized row)
			if err := uc.subs.UpdateStatus(ctx, tx, existing.ID, model.SubscriptionStatusCancelled, false); err != nil {
				return err
			}
		}
		rec, err = model.NewSubscriptionRecord(newRecordID(), req.UserID, pro, &externalID, model.SourceUser)
		if err != nil {
			return err
		}
		if req.SubscriptionID == "" {
			// no recurring agreement exists to end this access later
			exp := rec.StartedAt.Add(oneShotAccessPeriod)
			rec.ExpiresAt = &exp
		}
		return uc.subs.Save(ctx, tx, rec)
	})
	if err != nil {
		return nil, err
	}

	metrics.IncSubscriptionTransition(model.SubscriptionStatusActive, model.SourceUser)
	log.Info().
		Str("capture_id", cres.CaptureID).
		Str("plan", string(pro.Name)).
		Msg("checkout confirmed")
	return &ConfirmResult{Record: rec, Plan: pro, CaptureID: cres.CaptureID}, nil
}

// validateAmount requires value to parse and equal expected exactly.
func validateAmount(value string, expected decimal.Decimal) error {
	if value == "" {
		return domain.ErrInvalidAmount
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return domain.ErrInvalidAmount
	}
	if !d.Equal(expected) {
		return domain.ErrInvalidAmount
	}
	return nil
}
