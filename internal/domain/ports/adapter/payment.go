package adapter

import (
	"context"
	"net/http"
	"time"
)

// GatewayMode selects which provider environment the client talks to. It is
// resolved from its own configuration, never from a deployment-environment
// flag, so internal testing can never accidentally hit live endpoints.
type GatewayMode string

const (
	ModeSandbox GatewayMode = "sandbox"
	ModeLive    GatewayMode = "live"
)

// AccessToken is an OAuth client-credentials token with its expiry.
type AccessToken struct {
	Value     string
	ExpiresAt time.Time
}

// Valid reports whether the token is usable at t with some slack left.
func (t AccessToken) Valid(now time.Time) bool {
	return t.Value != "" && now.Add(30*time.Second).Before(t.ExpiresAt)
}

// CaptureResult is the outcome of an order or authorization capture.
// Status must be COMPLETED before funds are treated as captured.
type CaptureResult struct {
	CaptureID string
	OrderID   string
	Status    string
	PayerID   string
	Amount    string // provider-reported value, e.g. "4.00"
	Currency  string
}

// SubscriptionDetails is the provider's current view of a billing agreement.
// Raw keeps the full response body for diagnostics.
type SubscriptionDetails struct {
	ID     string
	Status string // APPROVAL_PENDING | APPROVED | ACTIVE | SUSPENDED | CANCELLED | EXPIRED
	PlanID string
	Raw    []byte
}

// PaymentGateway is the port for the payment provider. It encapsulates every
// outbound call and holds no business logic; all state decisions stay in the
// use cases.
type PaymentGateway interface {
	Name() string
	Mode() GatewayMode

	// GetAccessToken performs the client-credentials exchange for the
	// resolved mode. Implementations may cache the token until expiry.
	GetAccessToken(ctx context.Context) (AccessToken, error)

	// CaptureOrder moves provider-side funds from authorized to captured.
	// Any terminal status other than COMPLETED is surfaced as
	// domain.ErrCaptureIncomplete, never silently accepted.
	CaptureOrder(ctx context.Context, orderID string) (*CaptureResult, error)

	// CaptureAuthorization is the authorization-hold flow variant with the
	// same contract as CaptureOrder.
	CaptureAuthorization(ctx context.Context, authorizationID string) (*CaptureResult, error)

	// GetSubscriptionDetails is a read-through with no-store semantics:
	// billing state must always reflect the provider's latest view.
	GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*SubscriptionDetails, error)

	// CancelSubscription cancels the remote agreement. Whether a failure
	// here blocks anything is the caller's decision; the reconciliation
	// service treats it as best-effort.
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error

	// VerifyWebhookSignature validates an inbound event against the
	// configured webhook id. Missing transmission headers fail fast with
	// domain.ErrMissingVerificationHeaders (not retryable); a provider
	// verdict other than SUCCESS returns domain.ErrInvalidSignature.
	VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error
}
