//go:build !integration

package web

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
)

// In-memory fakes backing the real use cases under test.

type fakePlanRepo struct {
	mu    sync.RWMutex
	plans map[string]*model.Plan
}

func newFakePlanRepo(plans ...*model.Plan) *fakePlanRepo {
	r := &fakePlanRepo{plans: make(map[string]*model.Plan)}
	for _, p := range plans {
		cp := *p
		r.plans[p.ID] = &cp
	}
	return r
}

func (m *fakePlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *fakePlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if p, ok := m.plans[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *fakePlanRepo) FindByName(ctx context.Context, tx repository.Tx, name model.PlanName) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plans {
		if p.Name == name {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *fakePlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Plan
	for _, p := range m.plans {
		cp := *p
		out = append(out, &cp)
	}
	return out, nil
}

type fakeSubRepo struct {
	mu   sync.RWMutex
	recs map[string]*model.SubscriptionRecord
}

func newFakeSubRepo() *fakeSubRepo {
	return &fakeSubRepo{recs: make(map[string]*model.SubscriptionRecord)}
}

func (m *fakeSubRepo) Save(ctx context.Context, tx repository.Tx, rec *model.SubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *fakeSubRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r, ok := m.recs[id]; ok {
		cp := *r
		return &cp, nil
	}
	return nil, domain.ErrNotFound
}

func (m *fakeSubRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.recs {
		if r.UserID == userID && r.Status == model.SubscriptionStatusActive {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *fakeSubRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.recs {
		if r.ExternalSubscriptionID != nil && *r.ExternalSubscriptionID == externalID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *fakeSubRepo) CancelActive(ctx context.Context, tx repository.Tx, userID string, upd repository.CancelUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.UserID == userID && r.Status == model.SubscriptionStatusActive {
			r.PlanID = upd.FreePlanID
			r.Status = model.SubscriptionStatusCancelled
			at := upd.CancelledAt
			r.CancelledAt = &at
			r.Source = upd.Source
			return true, nil
		}
	}
	return false, nil
}

func (m *fakeSubRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus, restricted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	r.Restricted = restricted
	return nil
}

func (m *fakeSubRepo) ResetUsage(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.recs[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.PriceChecksUsed = 0
	r.PostsCreated = 0
	return nil
}

func (m *fakeSubRepo) ListActiveWithExternalID(ctx context.Context, tx repository.Tx, limit int) ([]*model.SubscriptionRecord, error) {
	return nil, nil
}

func (m *fakeSubRepo) ListActiveExpiredBefore(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.SubscriptionRecord, error) {
	return nil, nil
}

func (m *fakeSubRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	return map[model.SubscriptionStatus]int{}, nil
}

type fakeEventRepo struct {
	mu   sync.Mutex
	byID map[string]*model.WebhookEvent
	seen map[string]bool
}

func newFakeEventRepo() *fakeEventRepo {
	return &fakeEventRepo{byID: make(map[string]*model.WebhookEvent), seen: make(map[string]bool)}
}

func (m *fakeEventRepo) Insert(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.seen[ev.EventID] {
		return domain.ErrDuplicateEvent
	}
	m.seen[ev.EventID] = true
	cp := *ev
	m.byID[ev.ID] = &cp
	return nil
}

func (m *fakeEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.byID[id]; ok {
		now := time.Now()
		ev.ProcessedAt = &now
		return nil
	}
	return domain.ErrNotFound
}

func (m *fakeEventRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ev, ok := m.byID[id]; ok {
		ev.ProcessingError = reason
		return nil
	}
	return domain.ErrNotFound
}

func (m *fakeEventRepo) ListUnprocessed(ctx context.Context, tx repository.Tx, limit int) ([]*model.WebhookEvent, error) {
	return nil, nil
}

func (m *fakeEventRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	return 0, nil
}

type fakeTxManager struct{}

func (f *fakeTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

func (f *fakeTxManager) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

type fakeGateway struct {
	VerifySignatureFunc func(ctx context.Context, headers http.Header, body []byte) error
	CaptureOrderFunc    func(ctx context.Context, orderID string) (*adapter.CaptureResult, error)
	DetailsFunc         func(ctx context.Context, subscriptionID string) (*adapter.SubscriptionDetails, error)

	cancelCalls []string
}

func (g *fakeGateway) Name() string              { return "fake" }
func (g *fakeGateway) Mode() adapter.GatewayMode { return adapter.ModeSandbox }

func (g *fakeGateway) GetAccessToken(ctx context.Context) (adapter.AccessToken, error) {
	return adapter.AccessToken{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (g *fakeGateway) CaptureOrder(ctx context.Context, orderID string) (*adapter.CaptureResult, error) {
	if g.CaptureOrderFunc != nil {
		return g.CaptureOrderFunc(ctx, orderID)
	}
	return &adapter.CaptureResult{CaptureID: "CAP-" + orderID, OrderID: orderID, Status: "COMPLETED"}, nil
}

func (g *fakeGateway) CaptureAuthorization(ctx context.Context, authorizationID string) (*adapter.CaptureResult, error) {
	return &adapter.CaptureResult{CaptureID: "CAP-" + authorizationID, OrderID: authorizationID, Status: "COMPLETED"}, nil
}

func (g *fakeGateway) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*adapter.SubscriptionDetails, error) {
	if g.DetailsFunc != nil {
		return g.DetailsFunc(ctx, subscriptionID)
	}
	return &adapter.SubscriptionDetails{ID: subscriptionID, Status: "ACTIVE"}, nil
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	g.cancelCalls = append(g.cancelCalls, subscriptionID)
	return nil
}

func (g *fakeGateway) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error {
	if g.VerifySignatureFunc != nil {
		return g.VerifySignatureFunc(ctx, headers, body)
	}
	return nil
}

type fakeNotifier struct{}

func (fakeNotifier) NotifySubscriptionChange(ctx context.Context, change adapter.SubscriptionChange) error {
	return nil
}
