//go:build !integration

package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/weeasd57/stockroom-wind-sub003/internal/config"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
	"github.com/weeasd57/stockroom-wind-sub003/internal/usecase"
)

type testEnv struct {
	srv     *Server
	handler http.Handler
	auth    *AuthManager
	subs    *fakeSubRepo
	events  *fakeEventRepo
	gateway *fakeGateway
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	free := &model.Plan{ID: "plan-free", Name: model.PlanFree, DisplayName: "Free", PriceUSD: decimal.Zero, CreatedAt: time.Now()}
	pro := &model.Plan{ID: "plan-pro", Name: model.PlanPro, DisplayName: "Pro", PriceCheckLimit: 100, PostCreationLimit: 50,
		PriceUSD: decimal.RequireFromString("4.00"), CreatedAt: time.Now()}
	plans := newFakePlanRepo(free, pro)
	subs := newFakeSubRepo()
	events := newFakeEventRepo()
	gw := &fakeGateway{}
	txm := &fakeTxManager{}
	log := zerolog.Nop()

	recon := usecase.NewReconciliationUseCase(plans, subs, txm, gw, fakeNotifier{}, &log)
	checkout := usecase.NewCheckoutUseCase(plans, subs, txm, gw, &log)
	webhook := usecase.NewWebhookUseCase(gw, events, nil, recon, subs, &log)

	auth := NewAuthManager(&config.AuthConfig{
		JWTSecret:  "test-secret",
		CookieName: "session",
		TTL:        time.Hour,
	})
	srv := NewServer(recon, checkout, webhook, auth, 0, &log)
	return &testEnv{srv: srv, handler: srv.Routes(), auth: auth, subs: subs, events: events, gateway: gw}
}

func (e *testEnv) authedRequest(t *testing.T, method, path string, body []byte, userID string) *http.Request {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, path, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	tok, err := e.auth.Mint(rec, userID)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+tok)
	return req
}

func seedActivePro(t *testing.T, subs *fakeSubRepo, userID, externalID string) *model.SubscriptionRecord {
	t.Helper()
	ext := externalID
	now := time.Now()
	rec := &model.SubscriptionRecord{
		ID: "rec-" + userID, UserID: userID, PlanID: "plan-pro",
		Status: model.SubscriptionStatusActive, ExternalSubscriptionID: &ext,
		StartedAt: now, Source: model.SourceUser, CreatedAt: now, UpdatedAt: now,
	}
	if err := subs.Save(context.Background(), repository.NoTX, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return rec
}

func TestHealthEndpoint(t *testing.T) {
	e := newTestEnv(t)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d", w.Code)
	}
}

func TestSubscriptionRoutesRequireAuth(t *testing.T) {
	e := newTestEnv(t)
	paths := []struct{ method, path string }{
		{http.MethodGet, "/api/v1/subscription"},
		{http.MethodPost, "/api/v1/subscription/cancel"},
		{http.MethodPost, "/api/v1/subscription/switch-to-free"},
		{http.MethodPost, "/api/v1/subscription/sync"},
		{http.MethodPost, "/api/v1/subscription/validate"},
		{http.MethodPost, "/api/v1/checkout/confirm"},
	}
	for _, p := range paths {
		w := httptest.NewRecorder()
		e.handler.ServeHTTP(w, httptest.NewRequest(p.method, p.path, nil))
		if w.Code != http.StatusUnauthorized {
			t.Fatalf("%s %s: status %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestGetSubscriptionFreeDefault(t *testing.T) {
	e := newTestEnv(t)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodGet, "/api/v1/subscription", nil, "u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var out subscriptionView
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.FreeTier || out.Plan != "free" {
		t.Fatalf("unexpected view %+v", out)
	}
}

func TestCancelEndpoint(t *testing.T) {
	e := newTestEnv(t)
	seedActivePro(t, e.subs, "u1", "I-EXT1")

	body := []byte(`{"reason":"too expensive"}`)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/subscription/cancel", body, "u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var out cancelResponse
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.AlreadyFree || out.NewPlan != "free" {
		t.Fatalf("unexpected response %+v", out)
	}

	// idempotent: second cancel still 200
	w = httptest.NewRecorder()
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/subscription/cancel", body, "u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("second cancel status %d", w.Code)
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !out.AlreadyFree {
		t.Fatalf("second cancel should report already_free: %+v", out)
	}
}

func TestSwitchToFreeConfirmationGate(t *testing.T) {
	e := newTestEnv(t)
	rec := seedActivePro(t, e.subs, "u1", "I-EXT1")

	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/subscription/switch-to-free", []byte(`{"confirmed":false}`), "u1"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unconfirmed switch status %d, want 400", w.Code)
	}
	var eb errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &eb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if eb.Code != "confirmation_required" {
		t.Fatalf("error code %q", eb.Code)
	}
	got, _ := e.subs.FindByID(context.Background(), repository.NoTX, rec.ID)
	if got.Status != model.SubscriptionStatusActive {
		t.Fatalf("unconfirmed switch modified record: %+v", got)
	}

	w = httptest.NewRecorder()
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/subscription/switch-to-free", []byte(`{"confirmed":true}`), "u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("confirmed switch status %d: %s", w.Code, w.Body.String())
	}
}

func TestValidateEndpointRequiresSubscriptionID(t *testing.T) {
	e := newTestEnv(t)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/subscription/validate", []byte(`{}`), "u1"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}

	w = httptest.NewRecorder()
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/subscription/validate", []byte(`{"subscription_id":"I-SUB1"}`), "u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
}

func TestCheckoutConfirmRejectsWrongAmount(t *testing.T) {
	e := newTestEnv(t)
	w := httptest.NewRecorder()
	body := []byte(`{"order_id":"ORD-1","amount":"3.99","currency":"USD"}`)
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/checkout/confirm", body, "u1"))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
	var eb errorBody
	if err := json.Unmarshal(w.Body.Bytes(), &eb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if eb.Code != "invalid_amount" {
		t.Fatalf("error code %q", eb.Code)
	}
}

func TestCheckoutConfirmUpgrades(t *testing.T) {
	e := newTestEnv(t)
	w := httptest.NewRecorder()
	body := []byte(`{"order_id":"ORD-1","amount":"4.00","currency":"USD"}`)
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/checkout/confirm", body, "u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if _, err := e.subs.FindActiveByUser(context.Background(), repository.NoTX, "u1"); err != nil {
		t.Fatalf("upgrade not persisted: %v", err)
	}
}

func TestWebhookRejectsBadSignatureWithoutRecording(t *testing.T) {
	e := newTestEnv(t)
	e.gateway.VerifySignatureFunc = func(ctx context.Context, headers http.Header, body []byte) error {
		return domain.ErrInvalidSignature
	}
	w := httptest.NewRecorder()
	body := []byte(`{"id":"WH-1","event_type":"BILLING.SUBSCRIPTION.CANCELLED","resource":{"id":"I-EXT1"}}`)
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", bytes.NewReader(body)))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", w.Code)
	}
	if len(e.events.byID) != 0 {
		t.Fatalf("rejected delivery reached the event log")
	}
}

func TestWebhookProcessesAndAcknowledgesDuplicates(t *testing.T) {
	e := newTestEnv(t)
	seedActivePro(t, e.subs, "u1", "I-EXT1")

	body := []byte(`{"id":"WH-1","event_type":"BILLING.SUBSCRIPTION.CANCELLED","resource":{"id":"I-EXT1"}}`)
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	e.handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/paypal", bytes.NewReader(body)))
	if w.Code != http.StatusOK {
		t.Fatalf("duplicate status %d, want 200", w.Code)
	}
	var out map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out["outcome"] != "duplicate" {
		t.Fatalf("outcome %q", out["outcome"])
	}
}

func TestAuthCookieAccepted(t *testing.T) {
	e := newTestEnv(t)
	rec := httptest.NewRecorder()
	if _, err := e.auth.Mint(rec, "u1"); err != nil {
		t.Fatalf("mint: %v", err)
	}
	cookies := rec.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("no session cookie set")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/subscription", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("cookie auth status %d", w.Code)
	}
}

func TestCancelLocalOnlySkipsProviderCancel(t *testing.T) {
	e := newTestEnv(t)
	seedActivePro(t, e.subs, "u1", "I-SUB1")

	w := httptest.NewRecorder()
	body := []byte(`{"reason":"switching processors","should_cancel_paypal":false}`)
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/subscription/cancel", body, "u1"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		AlreadyFree bool `json:"already_free"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.AlreadyFree {
		t.Fatalf("expected a real downgrade: %s", w.Body.String())
	}
	if len(e.gateway.cancelCalls) != 0 {
		t.Fatalf("provider cancel fired despite should_cancel_paypal=false: %v", e.gateway.cancelCalls)
	}

	// omitting the flag keeps the remote cancel as the default
	seedActivePro(t, e.subs, "u2", "I-SUB2")
	w = httptest.NewRecorder()
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/subscription/cancel", []byte(`{}`), "u2"))
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if len(e.gateway.cancelCalls) != 1 || e.gateway.cancelCalls[0] != "I-SUB2" {
		t.Fatalf("default cancel must reach the provider: %v", e.gateway.cancelCalls)
	}
}

func TestGatewayDiagnosticsReachTheClient(t *testing.T) {
	e := newTestEnv(t)
	e.gateway.CaptureOrderFunc = func(ctx context.Context, orderID string) (*adapter.CaptureResult, error) {
		return nil, &domain.GatewayError{
			Op:      "capture_order",
			Name:    "UNPROCESSABLE_ENTITY",
			Message: "The requested action could not be performed.",
			DebugID: "debug-12345",
			Details: []string{"COMPLIANCE_VIOLATION"},
			Err:     domain.ErrCaptureIncomplete,
		}
	}

	w := httptest.NewRecorder()
	body := []byte(`{"order_id":"ORD-1","amount":"4.00"}`)
	e.handler.ServeHTTP(w, e.authedRequest(t, http.MethodPost, "/api/v1/checkout/confirm", body, "u1"))
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Code    string   `json:"code"`
		Name    string   `json:"name"`
		Message string   `json:"message"`
		DebugID string   `json:"debug_id"`
		Details []string `json:"details"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Code != "capture_incomplete" {
		t.Fatalf("code %q", res.Code)
	}
	if res.DebugID != "debug-12345" || res.Name != "UNPROCESSABLE_ENTITY" {
		t.Fatalf("provider diagnostics missing from body: %s", w.Body.String())
	}
	if res.Message == "" || len(res.Details) != 1 {
		t.Fatalf("provider message/details missing: %s", w.Body.String())
	}
}
