package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/weeasd57/stockroom-wind-sub003/internal/config"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/metrics"
)

var _ adapter.PaymentGateway = (*PayPalGateway)(nil)

const (
	liveBaseURL    = "https://api-m.paypal.com"
	sandboxBaseURL = "https://api-m.sandbox.paypal.com"
)

// transmission headers PayPal attaches to every webhook delivery. All five
// must be present before the verification endpoint is consulted.
var verificationHeaders = []string{
	"Paypal-Transmission-Id",
	"Paypal-Transmission-Time",
	"Paypal-Cert-Url",
	"Paypal-Auth-Algo",
	"Paypal-Transmission-Sig",
}

// PayPalGateway implements adapter.PaymentGateway against the PayPal REST API.
// The base URL is fixed by the resolved mode; nothing here reads the process
// environment.
type PayPalGateway struct {
	mode    adapter.GatewayMode
	creds   config.Credentials
	baseURL string
	client  *http.Client

	mu    sync.Mutex
	token adapter.AccessToken
}

func NewPayPalGateway(mode adapter.GatewayMode, creds config.Credentials, timeout time.Duration) (*PayPalGateway, error) {
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil, domain.ErrCredentialsMissing
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	base := sandboxBaseURL
	if mode == adapter.ModeLive {
		base = liveBaseURL
	}
	return &PayPalGateway{
		mode:    mode,
		creds:   creds,
		baseURL: base,
		client:  &http.Client{Timeout: timeout},
	}, nil
}

// SetBaseURL points the gateway at an alternate endpoint. Tests use it to
// talk to an httptest server.
func (g *PayPalGateway) SetBaseURL(base string) { g.baseURL = strings.TrimRight(base, "/") }

func (g *PayPalGateway) Name() string              { return "paypal" }
func (g *PayPalGateway) Mode() adapter.GatewayMode { return g.mode }

// GetAccessToken returns a cached token while it is still valid, otherwise
// performs the client-credentials exchange for the resolved mode.
func (g *PayPalGateway) GetAccessToken(ctx context.Context) (adapter.AccessToken, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := time.Now()
	if g.token.Valid(now) {
		return g.token, nil
	}

	start := now
	form := url.Values{"grant_type": {"client_credentials"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return adapter.AccessToken{}, err
	}
	req.SetBasicAuth(g.creds.ClientID, g.creds.ClientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(req)
	if err != nil {
		metrics.ObserveGatewayRequest("token", "error", time.Since(start))
		return adapter.AccessToken{}, &domain.GatewayError{Op: "token", Message: err.Error(), Err: domain.ErrOperationFailed}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveGatewayRequest("token", "error", time.Since(start))
		ge := decodeGatewayError(resp, "token")
		ge.Err = domain.ErrGatewayAuthFailed
		return adapter.AccessToken{}, ge
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ObserveGatewayRequest("token", "error", time.Since(start))
		return adapter.AccessToken{}, &domain.GatewayError{Op: "token", Message: "malformed token response", Err: domain.ErrGatewayAuthFailed}
	}
	if out.AccessToken == "" {
		metrics.ObserveGatewayRequest("token", "error", time.Since(start))
		return adapter.AccessToken{}, &domain.GatewayError{Op: "token", Message: "empty access token", Err: domain.ErrGatewayAuthFailed}
	}

	g.token = adapter.AccessToken{
		Value:     out.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}
	metrics.ObserveGatewayRequest("token", "ok", time.Since(start))
	return g.token, nil
}

func (g *PayPalGateway) CaptureOrder(ctx context.Context, orderID string) (*adapter.CaptureResult, error) {
	if orderID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return g.capture(ctx, "capture_order", fmt.Sprintf("/v2/checkout/orders/%s/capture", orderID), orderID)
}

func (g *PayPalGateway) CaptureAuthorization(ctx context.Context, authorizationID string) (*adapter.CaptureResult, error) {
	if authorizationID == "" {
		return nil, domain.ErrInvalidArgument
	}
	return g.capture(ctx, "capture_authorization", fmt.Sprintf("/v2/payments/authorizations/%s/capture", authorizationID), authorizationID)
}

// capture runs the shared capture flow. A transport failure after the request
// was sent means the money may or may not have moved, so it is surfaced as
// ErrIndeterminate and never retried here.
func (g *PayPalGateway) capture(ctx context.Context, op, path, id string) (*adapter.CaptureResult, error) {
	start := time.Now()
	resp, err := g.doAuthorized(ctx, http.MethodPost, path, []byte(`{}`), nil)
	if err != nil {
		if errors.Is(err, domain.ErrGatewayAuthFailed) {
			metrics.ObserveGatewayRequest(op, "error", time.Since(start))
			return nil, err
		}
		metrics.ObserveGatewayRequest(op, "indeterminate", time.Since(start))
		return nil, &domain.GatewayError{Op: op, Message: err.Error(), Err: domain.ErrIndeterminate}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		ge := decodeGatewayError(resp, op)
		ge.Err = domain.ErrCaptureIncomplete
		return nil, ge
	}

	var out struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		Payer         struct {
			PayerID string `json:"payer_id"`
		} `json:"payer"`
		PurchaseUnits []struct {
			Payments struct {
				Captures []struct {
					ID     string `json:"id"`
					Status string `json:"status"`
					Amount struct {
						Value        string `json:"value"`
						CurrencyCode string `json:"currency_code"`
					} `json:"amount"`
				} `json:"captures"`
			} `json:"payments"`
		} `json:"purchase_units"`
		Amount *struct {
			Value        string `json:"value"`
			CurrencyCode string `json:"currency_code"`
		} `json:"amount"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ObserveGatewayRequest(op, "indeterminate", time.Since(start))
		return nil, &domain.GatewayError{Op: op, Message: "malformed capture response", Err: domain.ErrIndeterminate}
	}

	res := &adapter.CaptureResult{
		OrderID: id,
		Status:  out.Status,
		PayerID: out.Payer.PayerID,
	}
	if len(out.PurchaseUnits) > 0 && len(out.PurchaseUnits[0].Payments.Captures) > 0 {
		c := out.PurchaseUnits[0].Payments.Captures[0]
		res.CaptureID = c.ID
		res.Amount = c.Amount.Value
		res.Currency = c.Amount.CurrencyCode
		if res.Status == "" {
			res.Status = c.Status
		}
	} else if out.Amount != nil {
		// authorization captures return the capture object directly
		res.CaptureID = out.ID
		res.Amount = out.Amount.Value
		res.Currency = out.Amount.CurrencyCode
	}

	if res.Status != "COMPLETED" {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return res, &domain.GatewayError{
			Op:      op,
			Message: fmt.Sprintf("capture status %q", res.Status),
			Err:     domain.ErrCaptureIncomplete,
		}
	}
	metrics.ObserveGatewayRequest(op, "ok", time.Since(start))
	return res, nil
}

// GetSubscriptionDetails fetches the provider's current view of an agreement.
// The request opts out of any intermediate caching so reconciliation never
// converges on a stale status.
func (g *PayPalGateway) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*adapter.SubscriptionDetails, error) {
	if subscriptionID == "" {
		return nil, domain.ErrMissingSubscriptionID
	}
	const op = "get_subscription"
	start := time.Now()

	hdr := http.Header{}
	hdr.Set("Cache-Control", "no-store")
	resp, err := g.doAuthorized(ctx, http.MethodGet, "/v1/billing/subscriptions/"+subscriptionID, nil, hdr)
	if err != nil {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return nil, domain.ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		ge := decodeGatewayError(resp, op)
		ge.Err = domain.ErrOperationFailed
		return nil, ge
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return nil, &domain.GatewayError{Op: op, Message: err.Error(), Err: domain.ErrOperationFailed}
	}
	var out struct {
		ID     string `json:"id"`
		Status string `json:"status"`
		PlanID string `json:"plan_id"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return nil, &domain.GatewayError{Op: op, Message: "malformed subscription response", Err: domain.ErrOperationFailed}
	}
	metrics.ObserveGatewayRequest(op, "ok", time.Since(start))
	return &adapter.SubscriptionDetails{ID: out.ID, Status: out.Status, PlanID: out.PlanID, Raw: raw}, nil
}

func (g *PayPalGateway) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	if subscriptionID == "" {
		return domain.ErrMissingSubscriptionID
	}
	const op = "cancel_subscription"
	start := time.Now()

	if reason == "" {
		reason = "Cancelled by user"
	}
	body, _ := json.Marshal(map[string]string{"reason": reason})
	resp, err := g.doAuthorized(ctx, http.MethodPost, "/v1/billing/subscriptions/"+subscriptionID+"/cancel", body, nil)
	if err != nil {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		metrics.ObserveGatewayRequest(op, "ok", time.Since(start))
		return nil
	case http.StatusNotFound:
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return domain.ErrNotFound
	default:
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		ge := decodeGatewayError(resp, op)
		ge.Err = domain.ErrOperationFailed
		return ge
	}
}

// VerifyWebhookSignature delegates to the provider's verification endpoint.
// It never reimplements the signature algorithm locally.
func (g *PayPalGateway) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error {
	const op = "verify_webhook"
	for _, h := range verificationHeaders {
		if headers.Get(h) == "" {
			return domain.ErrMissingVerificationHeaders
		}
	}
	if g.creds.WebhookID == "" {
		return domain.ErrCredentialsMissing
	}

	start := time.Now()
	payload, err := json.Marshal(map[string]any{
		"transmission_id":   headers.Get("Paypal-Transmission-Id"),
		"transmission_time": headers.Get("Paypal-Transmission-Time"),
		"cert_url":          headers.Get("Paypal-Cert-Url"),
		"auth_algo":         headers.Get("Paypal-Auth-Algo"),
		"transmission_sig":  headers.Get("Paypal-Transmission-Sig"),
		"webhook_id":        g.creds.WebhookID,
		"webhook_event":     json.RawMessage(body),
	})
	if err != nil {
		return &domain.GatewayError{Op: op, Message: err.Error(), Err: domain.ErrInvalidSignature}
	}

	resp, err := g.doAuthorized(ctx, http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, nil)
	if err != nil {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		ge := decodeGatewayError(resp, op)
		ge.Err = domain.ErrInvalidSignature
		return ge
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return &domain.GatewayError{Op: op, Message: "malformed verification response", Err: domain.ErrInvalidSignature}
	}
	if out.VerificationStatus != "SUCCESS" {
		metrics.ObserveGatewayRequest(op, "error", time.Since(start))
		return domain.ErrInvalidSignature
	}
	metrics.ObserveGatewayRequest(op, "ok", time.Since(start))
	return nil
}

func (g *PayPalGateway) doAuthorized(ctx context.Context, method, path string, body []byte, extra http.Header) (*http.Response, error) {
	token, err := g.GetAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	var rdr io.Reader
	if body != nil {
		rdr = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rdr)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token.Value)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range extra {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	return g.client.Do(req)
}

// decodeGatewayError pulls PayPal's error envelope off a non-2xx response so
// the debug id reaches the logs. The caller assigns the sentinel.
func decodeGatewayError(resp *http.Response, op string) *domain.GatewayError {
	ge := &domain.GatewayError{Op: op, Message: fmt.Sprintf("http %d", resp.StatusCode)}
	var out struct {
		Name        string `json:"name"`
		Message     string `json:"message"`
		DebugID     string `json:"debug_id"`
		Description string `json:"error_description"`
		Details     []struct {
			Issue       string `json:"issue"`
			Description string `json:"description"`
		} `json:"details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return ge
	}
	if out.Name != "" {
		ge.Name = out.Name
	}
	if out.Message != "" {
		ge.Message = out.Message
	} else if out.Description != "" {
		ge.Message = out.Description
	}
	ge.DebugID = out.DebugID
	for _, d := range out.Details {
		if d.Issue != "" {
			ge.Details = append(ge.Details, d.Issue)
		} else {
			ge.Details = append(ge.Details, d.Description)
		}
	}
	return ge
}
