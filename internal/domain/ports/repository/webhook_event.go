package repository

import (
	"context"
	"time"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
)

// WebhookEventRepository is the append-only webhook event log. Insert is the
// durable idempotency check: a second insert with the same provider event id
// returns domain.ErrDuplicateEvent and the receiver acknowledges without
// re-dispatching.
type WebhookEventRepository interface {
	Insert(ctx context.Context, tx Tx, ev *model.WebhookEvent) error
	MarkProcessed(ctx context.Context, tx Tx, id string) error
	MarkFailed(ctx context.Context, tx Tx, id string, reason string) error
	ListUnprocessed(ctx context.Context, tx Tx, limit int) ([]*model.WebhookEvent, error)
	DeleteOlderThan(ctx context.Context, tx Tx, cutoff time.Time) (int, error)
}
