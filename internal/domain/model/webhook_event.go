package model

import "time"

// PayPal billing event types the receiver dispatches on. Unknown types are
// acknowledged and logged without a state change.
const (
	EventSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	EventSubscriptionExpired   = "BILLING.SUBSCRIPTION.EXPIRED"
	EventSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
	EventPaymentSaleCompleted  = "PAYMENT.SALE.COMPLETED"
)

// WebhookEvent is one durably recorded provider notification. Rows are
// written before dispatch so delivery can be acknowledged even when a handler
// fails, and pruned after a retention window. EventID carries the provider's
// id and is the idempotency key.
type WebhookEvent struct {
	ID              string // ULID, time-sortable
	EventID         string // provider event id, unique
	EventType       string
	ResourceID      string // provider resource (subscription/sale) id
	Payload         []byte // raw event JSON for reprocessing
	ReceivedAt      time.Time
	ProcessedAt     *time.Time
	ProcessingError string
}

// Processed reports whether dispatch completed without error.
func (e *WebhookEvent) Processed() bool {
	return e != nil && e.ProcessedAt != nil && e.ProcessingError == ""
}
