//go:build !integration

package usecase

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
)

// memPlanRepo is a small in-memory implementation used by unit tests.
type memPlanRepo struct {
	mu    sync.RWMutex
	plans map[string]*model.Plan // by id
}

func newMemPlanRepo(plans ...*model.Plan) *memPlanRepo {
	r := &memPlanRepo{plans: make(map[string]*model.Plan)}
	for _, p := range plans {
		cp := *p
		r.plans[p.ID] = &cp
	}
	return r
}

func (m *memPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.plans[p.ID] = &cp
	return nil
}

func (m *memPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.plans[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memPlanRepo) FindByName(ctx context.Context, tx repository.Tx, name model.PlanName) (*model.Plan, error) {
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

func (m *memPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.Plan
	for _, p := range m.plans {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// memSubRepo provides in-memory subscription records for tests.
type memSubRepo struct {
	mu        sync.RWMutex
	recs      map[string]*model.SubscriptionRecord // by record id
	updateErr error                                // used by tests to simulate update failures
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{recs: make(map[string]*model.SubscriptionRecord)}
}

func (m *memSubRepo) Save(ctx context.Context, tx repository.Tx, rec *model.SubscriptionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.Status == model.SubscriptionStatusActive {
		for _, r := range m.recs {
			if r.UserID == rec.UserID && r.Status == model.SubscriptionStatusActive && r.ID != rec.ID {
				return domain.ErrAlreadyExists
			}
		}
	}
	cp := *rec
	m.recs[rec.ID] = &cp
	return nil
}

func (m *memSubRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.recs[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *memSubRepo) FindActiveByUser(ctx context.Context, tx repository.Tx, userID string) (*model.SubscriptionRecord, error) {
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

func (m *memSubRepo) FindByExternalID(ctx context.Context, tx repository.Tx, externalID string) (*model.SubscriptionRecord, error) {
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

func (m *memSubRepo) CancelActive(ctx context.Context, tx repository.Tx, userID string, upd repository.CancelUpdate) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.recs {
		if r.UserID == userID && r.Status == model.SubscriptionStatusActive {
			r.PlanID = upd.FreePlanID
			r.Status = model.SubscriptionStatusCancelled
			r.Restricted = false
			at := upd.CancelledAt
			r.CancelledAt = &at
			reason := upd.Reason
			r.CancellationReason = &reason
			r.Source = upd.Source
			r.PriceChecksUsed = 0
			r.PostsCreated = 0
			r.UpdatedAt = at
			return true, nil
		}
	}
	return false, nil
}

func (m *memSubRepo) UpdateStatus(ctx context.Context, tx repository.Tx, id string, status model.SubscriptionStatus, restricted bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateErr != nil {
		return m.updateErr
	}
	r, ok := m.recs[id]
	if !ok {
		return domain.ErrNotFound
	}
	r.Status = status
	r.Restricted = restricted
	r.UpdatedAt = time.Now()
	return nil
}

func (m *memSubRepo) ResetUsage(ctx context.Context, tx repository.Tx, id string) error {
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

func (m *memSubRepo) ListActiveWithExternalID(ctx context.Context, tx repository.Tx, limit int) ([]*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionRecord
	for _, r := range m.recs {
		if r.Status == model.SubscriptionStatusActive && r.ExternalSubscriptionID != nil {
			cp := *r
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memSubRepo) ListActiveExpiredBefore(ctx context.Context, tx repository.Tx, cutoff time.Time, limit int) ([]*model.SubscriptionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*model.SubscriptionRecord
	for _, r := range m.recs {
		if r.Status == model.SubscriptionStatusActive && r.ExpiresAt != nil && r.ExpiresAt.Before(cutoff) {
			cp := *r
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memSubRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	counts := make(map[model.SubscriptionStatus]int)
	for _, r := range m.recs {
		counts[r.Status]++
	}
	return counts, nil
}

// memEventRepo is the in-memory webhook event log.
type memEventRepo struct {
	mu     sync.Mutex
	byID   map[string]*model.WebhookEvent
	seen   map[string]bool // by provider event id
	failIn error           // simulate insert failure
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{byID: make(map[string]*model.WebhookEvent), seen: make(map[string]bool)}
}

func (m *memEventRepo) Insert(ctx context.Context, tx repository.Tx, ev *model.WebhookEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failIn != nil {
		return m.failIn
	}
	if m.seen[ev.EventID] {
		return domain.ErrDuplicateEvent
	}
	m.seen[ev.EventID] = true
	cp := *ev
	m.byID[ev.ID] = &cp
	return nil
}

func (m *memEventRepo) MarkProcessed(ctx context.Context, tx repository.Tx, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	now := time.Now()
	ev.ProcessedAt = &now
	ev.ProcessingError = ""
	return nil
}

func (m *memEventRepo) MarkFailed(ctx context.Context, tx repository.Tx, id string, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ev, ok := m.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	ev.ProcessingError = reason
	return nil
}

func (m *memEventRepo) ListUnprocessed(ctx context.Context, tx repository.Tx, limit int) ([]*model.WebhookEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.WebhookEvent
	for _, ev := range m.byID {
		if ev.ProcessedAt == nil {
			cp := *ev
			out = append(out, &cp)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memEventRepo) DeleteOlderThan(ctx context.Context, tx repository.Tx, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	for id, ev := range m.byID {
		if ev.ProcessedAt != nil && ev.ReceivedAt.Before(cutoff) {
			delete(m.byID, id)
			n++
		}
	}
	return n, nil
}

// fakeTxManager runs callbacks directly. Lock acquisition order is recorded
// so tests can assert serialization happened.
type fakeTxManager struct {
	mu    sync.Mutex
	locks []string
}

func (f *fakeTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	return fn(ctx, repository.NoTX)
}

func (f *fakeTxManager) WithUserLock(ctx context.Context, userID string, fn func(ctx context.Context, tx repository.Tx) error) error {
	f.mu.Lock()
	f.locks = append(f.locks, userID)
	f.mu.Unlock()
	return fn(ctx, repository.NoTX)
}

// mockGateway has overridable behavior per method.
type mockGateway struct {
	GetAccessTokenFunc         func(ctx context.Context) (adapter.AccessToken, error)
	CaptureOrderFunc           func(ctx context.Context, orderID string) (*adapter.CaptureResult, error)
	CaptureAuthorizationFunc   func(ctx context.Context, authorizationID string) (*adapter.CaptureResult, error)
	GetSubscriptionDetailsFunc func(ctx context.Context, subscriptionID string) (*adapter.SubscriptionDetails, error)
	CancelSubscriptionFunc     func(ctx context.Context, subscriptionID, reason string) error
	VerifySignatureFunc        func(ctx context.Context, headers http.Header, body []byte) error

	mu           sync.Mutex
	cancelCalls  []string
	captureCalls []string
}

func (g *mockGateway) Name() string              { return "mock" }
func (g *mockGateway) Mode() adapter.GatewayMode { return adapter.ModeSandbox }

func (g *mockGateway) GetAccessToken(ctx context.Context) (adapter.AccessToken, error) {
	if g.GetAccessTokenFunc != nil {
		return g.GetAccessTokenFunc(ctx)
	}
	return adapter.AccessToken{Value: "tok", ExpiresAt: time.Now().Add(time.Hour)}, nil
}

func (g *mockGateway) CaptureOrder(ctx context.Context, orderID string) (*adapter.CaptureResult, error) {
	g.mu.Lock()
	g.captureCalls = append(g.captureCalls, orderID)
	g.mu.Unlock()
	if g.CaptureOrderFunc != nil {
		return g.CaptureOrderFunc(ctx, orderID)
	}
	return &adapter.CaptureResult{CaptureID: "CAP-" + orderID, OrderID: orderID, Status: "COMPLETED"}, nil
}

func (g *mockGateway) CaptureAuthorization(ctx context.Context, authorizationID string) (*adapter.CaptureResult, error) {
	if g.CaptureAuthorizationFunc != nil {
		return g.CaptureAuthorizationFunc(ctx, authorizationID)
	}
	return &adapter.CaptureResult{CaptureID: "CAP-" + authorizationID, OrderID: authorizationID, Status: "COMPLETED"}, nil
}

func (g *mockGateway) GetSubscriptionDetails(ctx context.Context, subscriptionID string) (*adapter.SubscriptionDetails, error) {
	if g.GetSubscriptionDetailsFunc != nil {
		return g.GetSubscriptionDetailsFunc(ctx, subscriptionID)
	}
	return &adapter.SubscriptionDetails{ID: subscriptionID, Status: "ACTIVE"}, nil
}

func (g *mockGateway) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	g.mu.Lock()
	g.cancelCalls = append(g.cancelCalls, subscriptionID)
	g.mu.Unlock()
	if g.CancelSubscriptionFunc != nil {
		return g.CancelSubscriptionFunc(ctx, subscriptionID, reason)
	}
	return nil
}

func (g *mockGateway) VerifyWebhookSignature(ctx context.Context, headers http.Header, body []byte) error {
	if g.VerifySignatureFunc != nil {
		return g.VerifySignatureFunc(ctx, headers, body)
	}
	return nil
}

// recordingNotifier captures change notifications.
type recordingNotifier struct {
	mu      sync.Mutex
	changes []adapter.SubscriptionChange
}

func (n *recordingNotifier) NotifySubscriptionChange(ctx context.Context, change adapter.SubscriptionChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, change)
	return nil
}
