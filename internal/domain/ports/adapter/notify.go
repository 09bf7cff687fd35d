package adapter

import "context"

// SubscriptionChange describes a completed state transition for user-facing
// notification.
type SubscriptionChange struct {
	UserID   string
	FromPlan string
	ToPlan   string
	Status   string
	Reason   string
}

// Notifier delivers best-effort user notifications about subscription state
// changes. Failures are logged by callers and never block a transition.
type Notifier interface {
	NotifySubscriptionChange(ctx context.Context, change SubscriptionChange) error
}
