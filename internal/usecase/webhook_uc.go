package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/logging"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/metrics"
	infredis "github.com/weeasd57/stockroom-wind-sub003/internal/infra/redis"
)

// ReceiveOutcome describes how one delivery was handled.
type ReceiveOutcome string

const (
	OutcomeProcessed ReceiveOutcome = "processed"
	OutcomeDuplicate ReceiveOutcome = "duplicate"
	OutcomeIgnored   ReceiveOutcome = "ignored" // unknown event type
	OutcomeFailed    ReceiveOutcome = "failed"  // recorded but handler errored
)

// eventEnvelope is the subset of PayPal's webhook body the receiver needs.
type eventEnvelope struct {
	ID        string `json:"id"`
	EventType string `json:"event_type"`
	Resource  struct {
		ID                 string `json:"id"`
		BillingAgreementID string `json:"billing_agreement_id"`
	} `json:"resource"`
}

// WebhookUseCase verifies, records and dispatches inbound PayPal events.
// Ordering of the pipeline is fixed: signature first, then the durable
// idempotency check, then dispatch. A delivery is acknowledged once it is
// durably recorded, even when its handler fails; failures stay queryable in
// the event log instead of triggering provider-side redelivery storms.
type WebhookUseCase struct {
	gateway adapter.PaymentGateway
	events  repository.WebhookEventRepository
	dedup   *infredis.EventDedup
	recon   *ReconciliationUseCase
	subs    repository.SubscriptionRepository
	log     *zerolog.Logger
}

func NewWebhookUseCase(
	gateway adapter.PaymentGateway,
	events repository.WebhookEventRepository,
	dedup *infredis.EventDedup,
	recon *ReconciliationUseCase,
	subs repository.SubscriptionRepository,
	log *zerolog.Logger,
) *WebhookUseCase {
	return &WebhookUseCase{
		gateway: gateway,
		events:  events,
		dedup:   dedup,
		recon:   recon,
		subs:    subs,
		log:     log,
	}
}

// Receive handles one raw delivery. A returned error means the delivery must
// be rejected (bad signature, malformed body, storage failure); any nil-error
// outcome is an acknowledgement.
func (uc *WebhookUseCase) Receive(ctx context.Context, headers http.Header, body []byte) (ReceiveOutcome, error) {
	if err := uc.gateway.VerifyWebhookSignature(ctx, headers, body); err != nil {
		metrics.IncWebhookEvent("unknown", "rejected")
		return "", err
	}

	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil || env.ID == "" || env.EventType == "" {
		metrics.IncWebhookEvent("unknown", "rejected")
		return "", domain.ErrInvalidArgument
	}
	ctx = logging.WithEventID(ctx, env.ID)
	log := logging.With(ctx, uc.log)

	// Fast path: redis has seen this id recently. The unique index below
	// remains the durable check, this only saves the round trip.
	if uc.dedup != nil && !uc.dedup.FirstSighting(ctx, env.ID) {
		metrics.IncWebhookEvent(env.EventType, "duplicate")
		return OutcomeDuplicate, nil
	}

	resourceID := env.Resource.BillingAgreementID
	if resourceID == "" {
		resourceID = env.Resource.ID
	}
	ev := &model.WebhookEvent{
		ID:         ulid.Make().String(),
		EventID:    env.ID,
		EventType:  env.EventType,
		ResourceID: resourceID,
		Payload:    body,
		ReceivedAt: time.Now(),
	}
	if err := uc.events.Insert(ctx, repository.NoTX, ev); err != nil {
		if errors.Is(err, domain.ErrDuplicateEvent) {
			metrics.IncWebhookEvent(env.EventType, "duplicate")
			return OutcomeDuplicate, nil
		}
		return "", err
	}

	outcome := uc.dispatch(ctx, ev)
	switch outcome {
	case OutcomeProcessed, OutcomeIgnored:
		if err := uc.events.MarkProcessed(ctx, repository.NoTX, ev.ID); err != nil {
			log.Warn().Err(err).Msg("mark processed failed")
		}
	}
	metrics.IncWebhookEvent(env.EventType, string(outcome))
	return outcome, nil
}

// dispatch applies the event's state change. Handler errors are recorded on
// the event row; the delivery itself is still acknowledged.
func (uc *WebhookUseCase) dispatch(ctx context.Context, ev *model.WebhookEvent) ReceiveOutcome {
	log := logging.With(ctx, uc.log)

	var err error
	switch ev.EventType {
	case model.EventSubscriptionCancelled, model.EventSubscriptionExpired:
		err = uc.downgradeByExternalID(ctx, ev.ResourceID, "provider event "+ev.EventType)
	case model.EventSubscriptionSuspended:
		err = uc.setRestrictedByExternalID(ctx, ev.ResourceID, true)
	case model.EventSubscriptionActivated:
		err = uc.setRestrictedByExternalID(ctx, ev.ResourceID, false)
	case model.EventPaymentSaleCompleted:
		// period rollover: reset usage counters on the linked record
		err = uc.resetUsageByExternalID(ctx, ev.ResourceID)
	default:
		log.Info().Str("event_type", ev.EventType).Msg("webhook event type not handled")
		return OutcomeIgnored
	}
	if err != nil {
		log.Error().Err(err).Str("event_type", ev.EventType).Msg("webhook handler failed")
		if merr := uc.events.MarkFailed(ctx, repository.NoTX, ev.ID, err.Error()); merr != nil {
			log.Warn().Err(merr).Msg("mark failed failed")
		}
		return OutcomeFailed
	}
	return OutcomeProcessed
}

func (uc *WebhookUseCase) downgradeByExternalID(ctx context.Context, externalID, reason string) error {
	rec, err := uc.findByExternalID(ctx, externalID)
	if err != nil || rec == nil {
		return err
	}
	_, err = uc.recon.downgradeToFree(ctx, rec.UserID, reason, model.SourceWebhook, false)
	return err
}

func (uc *WebhookUseCase) setRestrictedByExternalID(ctx context.Context, externalID string, restricted bool) error {
	rec, err := uc.findByExternalID(ctx, externalID)
	if err != nil || rec == nil {
		return err
	}
	if rec.Restricted == restricted || !rec.IsActive() {
		return nil
	}
	return uc.subs.UpdateStatus(ctx, repository.NoTX, rec.ID, rec.Status, restricted)
}

func (uc *WebhookUseCase) resetUsageByExternalID(ctx context.Context, externalID string) error {
	rec, err := uc.findByExternalID(ctx, externalID)
	if err != nil || rec == nil {
		return err
	}
	if !rec.IsActive() {
		return nil
	}
	return uc.subs.ResetUsage(ctx, repository.NoTX, rec.ID)
}

// findByExternalID resolves the record an event refers to. An unknown id is
// not an error: the event may precede the local record or belong to another
// deployment sharing the webhook.
func (uc *WebhookUseCase) findByExternalID(ctx context.Context, externalID string) (*model.SubscriptionRecord, error) {
	if externalID == "" {
		return nil, nil
	}
	rec, err := uc.subs.FindByExternalID(ctx, repository.NoTX, externalID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			logging.With(ctx, uc.log).Info().
				Str("external_subscription_id", externalID).
				Msg("webhook for unknown subscription")
			return nil, nil
		}
		return nil, err
	}
	return rec, nil
}

// retryGrace keeps just-received deliveries out of the retry sweep while
// their original dispatch may still be in flight.
const retryGrace = 5 * time.Minute

// RetryUnprocessed re-dispatches recorded events whose handler failed and
// returns how many succeeded this pass. Events that fail again keep their
// error and stay in the log for the next sweep.
func (uc *WebhookUseCase) RetryUnprocessed(ctx context.Context, limit int) (int, error) {
	pending, err := uc.events.ListUnprocessed(ctx, repository.NoTX, limit)
	if err != nil {
		return 0, err
	}
	var recovered int
	for _, ev := range pending {
		if ctx.Err() != nil {
			return recovered, ctx.Err()
		}
		if time.Since(ev.ReceivedAt) < retryGrace {
			continue
		}
		ectx := logging.WithEventID(ctx, ev.EventID)
		switch uc.dispatch(ectx, ev) {
		case OutcomeProcessed, OutcomeIgnored:
			if err := uc.events.MarkProcessed(ectx, repository.NoTX, ev.ID); err != nil {
				logging.With(ectx, uc.log).Warn().Err(err).Msg("mark processed failed")
				continue
			}
			recovered++
		}
	}
	return recovered, nil
}

// PruneProcessed removes processed events older than the retention window.
func (uc *WebhookUseCase) PruneProcessed(ctx context.Context, retention time.Duration) (int, error) {
	n, err := uc.events.DeleteOlderThan(ctx, repository.NoTX, time.Now().Add(-retention))
	if err != nil {
		return 0, err
	}
	if n > 0 {
		metrics.AddWebhookEventsPruned(n)
	}
	return n, nil
}
