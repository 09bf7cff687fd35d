package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
)

// Ensure subscriptionRepo implements repository.SubscriptionRepository
var _ repository.SubscriptionRepository = (*subscriptionRepo)(nil)

const subscriptionColumns = `id, user_id, plan_id, status, restricted, external_subscription_id,
price_checks_used, posts_created, started_at, expires_at, cancelled_at, cancellation_reason,
source, created_at, updated_at`

type subscriptionRepo struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepo(pool *pgxpool.Pool) *subscriptionRepo {
	return &subscriptionRepo{pool: pool}
}

func (r *subscriptionRepo) Save(ctx context.Context, tx repository.Tx, s *model.SubscriptionRecord) error {
	const q = `
INSERT INTO user_subscriptions (
  id, user_id, plan_id, status, restricted, external_subscription_id,
  price_checks_used, posts_created, started_at, expires_at, cancelled_at,
  cancellation_reason, source, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO UPDATE SET
  plan_id=$3, status=$4, restricted=$5, external_subscription_id=$6,
  price_checks_used=$7, posts_created=$8, expires_at=$10, cancelled_at=$11,
  cancellation_reason=$12, source=$13, updated_at=$15;`

	s.UpdatedAt = time.Now()
	_, err := execSQL(ctx, r.pool, tx, q,
		s.ID, s.UserID, s.PlanID, string(s.Status), s.Restricted, s.ExternalSubscriptionID,
		s.PriceChecksUsed, s.PostsCreated, s.StartedAt, s.ExpiresAt, s.CancelledAt,
		s.CancellationReason, string(s.Source), s.CreatedAt, s.UpdatedAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			// 23505 trips the partial unique index on (user_id) WHERE
			// status='active': a concurrent flow materialized a record first.
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return domain.ErrAlreadyExists
			}
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *subscriptionRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionRecord, error) {
	q := `SELECT ` + subscriptionColumns + ` FROM user_subscriptions WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *subscriptionRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.SubscriptionRecord, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM user_subscriptions
 WHERE user_id=$1 AND status='active'
 ORDER BY created_at DESC
 LIMIT 1`
	// Inside a transaction the row is locked so a racing writer waits for
	// the advisory-locked sequence to finish.
	if _, ok := tx.(pgx.Tx); ok {
		q += " FOR UPDATE"
	}
	q += ";"
	return r.queryOne(ctx, tx, q, userID)
}

func (r *subscriptionRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.SubscriptionRecord, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM user_subscriptions
 WHERE external_subscription_id=$1
 ORDER BY created_at DESC
 LIMIT 1;`
	return r.queryOne(ctx, tx, q, externalID)
}

func (r *subscriptionRepo) CancelActive(ctx context.Context, tx repository.Tx, userID string, upd repository.CancelUpdate) (bool, error) {
	const q = `
UPDATE user_subscriptions
   SET plan_id=$2, status='cancelled', restricted=false, cancelled_at=$3,
       cancellation_reason=$4, source=$5, price_checks_used=0, posts_created=0,
       updated_at=$3
 WHERE user_id=$1 AND status='active';`

	tag, err := execSQL(ctx, r.pool, tx, q, userID, upd.FreePlanID, upd.CancelledAt, upd.Reason, string(upd.Source))
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return false, err
		default:
			return false, domain.ErrOperationFailed
		}
	}
	return tag.RowsAffected() > 0, nil
}

func (r *subscriptionRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus, restricted bool) error {
	const q = `
UPDATE user_subscriptions
   SET status=$2, restricted=$3,
       cancelled_at = CASE WHEN $2='cancelled' AND cancelled_at IS NULL THEN now() ELSE cancelled_at END,
       updated_at=now()
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id, string(status), restricted)
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

func (r *subscriptionRepo) ResetUsage(ctx context.Context, tx repository.Tx, id string) error {
	const q = `
UPDATE user_subscriptions
   SET price_checks_used=0, posts_created=0, updated_at=now()
 WHERE id=$1;`
	tag, err := execSQL(ctx, r.pool, tx, q, id)
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

func (r *subscriptionRepo) ListActiveWithExternalID(ctx context.Context, tx repository.Tx, limit int) ([]*model.SubscriptionRecord, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM user_subscriptions
 WHERE status='active' AND external_subscription_id IS NOT NULL
 ORDER BY updated_at ASC
 LIMIT $1;`
	return r.queryMany(ctx, tx, q, limit)
}

func (r *subscriptionRepo) ListActiveExpiredBefore(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.SubscriptionRecord, error) {
	q := `SELECT ` + subscriptionColumns + `
  FROM user_subscriptions
 WHERE status='active' AND expires_at IS NOT NULL AND expires_at <= $1
 ORDER BY expires_at ASC
 LIMIT $2;`
	return r.queryMany(ctx, tx, q, cutoff, limit)
}

func (r *subscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	const q = `SELECT status, COUNT(*) FROM user_subscriptions GROUP BY status;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		return nil, domain.ErrOperationFailed
	}
	defer rows.Close()

	counts := make(map[model.SubscriptionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, domain.ErrReadDatabaseRow
		}
		counts[model.SubscriptionStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return counts, nil
}

func (r *subscriptionRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.SubscriptionRecord, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	s, err := scanSubscription(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return s, nil
}

func (r *subscriptionRepo) queryMany(ctx context.Context, tx repository.Tx, sql string, args ...any) ([]*model.SubscriptionRecord, error) {
	rows, err := queryRows(ctx, r.pool, tx, sql, args...)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.SubscriptionRecord
	for rows.Next() {
		s, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func scanSubscription(row pgx.Row) (*model.SubscriptionRecord, error) {
	s := &model.SubscriptionRecord{}
	var status, source string
	if err := row.Scan(
		&s.ID, &s.UserID, &s.PlanID, &status, &s.Restricted, &s.ExternalSubscriptionID,
		&s.PriceChecksUsed, &s.PostsCreated, &s.StartedAt, &s.ExpiresAt, &s.CancelledAt,
		&s.CancellationReason, &source, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	s.Status = model.SubscriptionStatus(status)
	s.Source = model.ChangeSource(source)
	return s, nil
}
