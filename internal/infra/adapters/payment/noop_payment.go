package payment

import (
	"context"
	"net/http"
	"time"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
)

var _ adapter.PaymentGateway = (*NoopGateway)(nil)

// NoopGateway satisfies adapter.PaymentGateway without network calls. Used in
// dev mode when no PayPal credentials are configured; every capture succeeds
// and every signature verifies.
type NoopGateway struct{}

func NewNoopGateway() *NoopGateway { return &NoopGateway{} }

func (g *NoopGateway) Name() string              { return "noop" }
func (g *NoopGateway) Mode() adapter.GatewayMode { return adapter.ModeSandbox }

func (g *NoopGateway) GetAccessToken(ctx context.Context) (adapter.AccessToken, error) {
	return adapter.AccessToken{Value: "noop", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (g *NoopGateway) CaptureOrder(ctx context.Context, orderID string) (*adapter.CaptureResult, error) {
	return &adapter.CaptureResult{CaptureID: "noop-" + orderID, OrderID: orderID, Status: "COMPLETED"}, nil
}

func (g *NoopGateway) CaptureAuthorization(ctx context.Context, authorizationID string) (*adapter.CaptureResult, error) {
	return &adapter.CaptureResult{CaptureID: "noop-" + authorizationID, OrderID: authorizationID, Status: "COMPLETED"}, nil
}

func (g *NoopGateway) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*adapter.SubscriptionDetails, error) {
	return &adapter.SubscriptionDetails{ID: subscriptionID, Status: "ACTIVE"}, nil
}

func (g *NoopGateway) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	return nil
}

func (g *NoopGateway) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error {
	return nil
}
