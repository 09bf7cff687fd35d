package repository

import (
	"context"
	"time"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
)

// CancelUpdate describes the downgrade applied by CancelActive.
type CancelUpdate struct {
	FreePlanID  string
	CancelledAt time.Time
	Reason      string
	Source      model.ChangeSource
}

// SubscriptionRepository is the port for subscription records. Records are
// never deleted; all lifecycle operations are status transitions.
type SubscriptionRepository interface {
	Save(ctx context.Context, tx Tx, rec *model.SubscriptionRecord) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.SubscriptionRecord, error)
	FindActiveByUser(ctx context.Context, tx Tx, userID string) (*model.SubscriptionRecord, error)
	FindByExternalID(ctx context.Context, tx Tx, externalID string) (*model.SubscriptionRecord, error)

	// CancelActive performs the conditional downgrade
	// UPDATE ... WHERE user_id=$1 AND status='active' and reports whether a
	// row actually transitioned. A false return with nil error means the
	// record was not active anymore (lost race or already free).
	CancelActive(ctx context.Context, tx Tx, userID string, upd CancelUpdate) (bool, error)

	// UpdateStatus forces the local status to match a provider-reported one
	// (sync path). Restricted is updated alongside.
	UpdateStatus(ctx context.Context, tx Tx, id string, status model.SubscriptionStatus, restricted bool) error

	// ResetUsage zeroes the usage counters on period rollover.
	ResetUsage(ctx context.Context, tx Tx, id string) error

	// ListActiveWithExternalID feeds the background sync worker.
	ListActiveWithExternalID(ctx context.Context, tx Tx, limit int) ([]*model.SubscriptionRecord, error)

	// ListActiveExpiredBefore feeds the expiry worker.
	ListActiveExpiredBefore(ctx context.Context, tx Tx, cutoff time.Time, limit int) ([]*model.SubscriptionRecord, error)

	// CountByStatus powers the subscriptions gauge.
	CountByStatus(ctx context.Context, tx Tx) (map[model.SubscriptionStatus]int, error)
}
