package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
)

// Ensure webhookEventRepo implements repository.WebhookEventRepository
var _ repository.WebhookEventRepository = (*webhookEventRepo)(nil)

type webhookEventRepo struct {
	pool *pgxpool.Pool
}

func NewWebhookEventRepo(pool *pgxpool.Pool) *webhookEventRepo {
	return &webhookEventRepo{pool: pool}
}

// Insert records a delivery. The unique index on event_id is the durable
// idempotency barrier: a second delivery of the same provider event returns
// domain.ErrDuplicateEvent and leaves the original row untouched.
func (r *webhookEventRepo) Insert(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	const q = `
INSERT INTO webhook_events (
  id, event_id, event_type, resource_id, payload, received_at
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (event_id) DO NOTHING;`

	tag, err := execSQL(ctx, r.pool, tx, q,
		ev.ID, ev.EventID, ev.EventType, ev.ResourceID, ev.Payload, ev.ReceivedAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDuplicateEvent
	}
	return nil
}

func (r *webhookEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string) error {
	const q = `
UPDATE webhook_events
   SET processed_at=now(), processing_error=''
 WHERE id=$1;`
	return r.execMarked(ctx, tx, q, id)
}

func (r *webhookEventRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, reason string) error {
	const q = `
UPDATE webhook_events
   SET processing_error=$2
 WHERE id=$1;`
	return r.execMarked(ctx, tx, q, id, reason)
}

func (r *webhookEventRepo) ListUnprocessed(ctx context.Context, tx repository.Tx, limit int) ([]*model.WebhookEvent, error) {
	const q = `
SELECT id, event_id, event_type, resource_id, payload, received_at, processed_at, processing_error
  FROM webhook_events
 WHERE processed_at IS NULL
 ORDER BY received_at ASC
 LIMIT $1;`
	rows, err := queryRows(ctx, r.pool, tx, q, limit)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.WebhookEvent
	for rows.Next() {
		ev, err := scanWebhookEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

// DeleteOlderThan prunes processed events received before the cutoff and
// returns how many rows went away. Unprocessed events are kept regardless of
// age so failures stay visible.
func (r *webhookEventRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	const q = `
DELETE FROM webhook_events
 WHERE processed_at IS NOT NULL AND received_at < $1;`
	tag, err := execSQL(ctx, r.pool, tx, q, cutoff)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return 0, err
		default:
			return 0, domain.ErrOperationFailed
		}
	}
	return int(tag.RowsAffected()), nil
}

func (r *webhookEventRepo) execMarked(ctx context.Context, tx repository.Tx, sql string, args ...any) error {
	tag, err := execSQL(ctx, r.pool, tx, sql, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanWebhookEvent(row pgx.Row) (*model.WebhookEvent, error) {
	ev := &model.WebhookEvent{}
	if err := row.Scan(
		&ev.ID, &ev.EventID, &ev.EventType, &ev.ResourceID, &ev.Payload,
		&ev.ReceivedAt, &ev.ProcessedAt, &ev.ProcessingError,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrReadDatabaseRow
	}
	return ev, nil
}
