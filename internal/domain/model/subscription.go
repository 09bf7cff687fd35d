package model

import (
	"time"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
)

type SubscriptionStatus string

const (
	SubscriptionStatusActive    SubscriptionStatus = "active"
	SubscriptionStatusCancelled SubscriptionStatus = "cancelled"
	SubscriptionStatusExpired   SubscriptionStatus = "expired"
)

// ChangeSource records who drove a subscription state transition.
type ChangeSource string

const (
	SourceUser    ChangeSource = "user"
	SourceWebhook ChangeSource = "webhook"
	SourceSync    ChangeSource = "sync"
	SourceSystem  ChangeSource = "system"
)

// SubscriptionRecord tracks a user's current plan, status and external
// billing reference. At most one record per user is active at any time.
// Records are never deleted; cancellation is a status transition.
type SubscriptionRecord struct {
	ID     string // UUID
	UserID string
	PlanID string
	Status SubscriptionStatus

	// Restricted marks a provider-suspended subscription that is still
	// locally active (BILLING.SUBSCRIPTION.SUSPENDED).
	Restricted bool

	// ExternalSubscriptionID is the provider's id for the recurring billing
	// agreement (or the order id for one-shot checkouts). Nil for free-tier
	// records.
	ExternalSubscriptionID *string

	// Usage counters, reset on period rollover. Advisory: flows keep them
	// within the plan limits but the store does not hard-enforce it.
	PriceChecksUsed int
	PostsCreated    int

	StartedAt          time.Time
	ExpiresAt          *time.Time
	CancelledAt        *time.Time
	CancellationReason *string
	Source             ChangeSource

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewSubscriptionRecord creates an active record for a user on the given plan.
func NewSubscriptionRecord(id, userID string, plan *Plan, externalID *string, source ChangeSource) (*SubscriptionRecord, error) {
	if id == "" || userID == "" || plan.IsZero() {
		return nil, domain.ErrInvalidArgument
	}
	now := time.Now()
	return &SubscriptionRecord{
		ID:                     id,
		UserID:                 userID,
		PlanID:                 plan.ID,
		Status:                 SubscriptionStatusActive,
		ExternalSubscriptionID: externalID,
		StartedAt:              now,
		Source:                 source,
		CreatedAt:              now,
		UpdatedAt:              now,
	}, nil
}

// IsActive reports whether the record currently grants plan access.
func (s *SubscriptionRecord) IsActive() bool {
	return s != nil && s.Status == SubscriptionStatusActive
}

// SubscriptionInfo is the read view combining a record with its plan. A nil
// Record means the user is on the unmaterialized free default.
type SubscriptionInfo struct {
	Record *SubscriptionRecord
	Plan   *Plan
}

// OnFreeTier reports whether the user is effectively on the free plan,
// either because no record exists or because the record references it.
func (i *SubscriptionInfo) OnFreeTier() bool {
	if i == nil || i.Record == nil {
		return true
	}
	if !i.Record.IsActive() {
		return true
	}
	return i.Plan != nil && i.Plan.IsFree()
}
