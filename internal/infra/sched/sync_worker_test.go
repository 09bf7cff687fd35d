//go:build !integration

package sched

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
	"github.com/weeasd57/stockroom-wind-sub003/internal/usecase"
)

type fakeRecordSource struct {
	recs []*model.SubscriptionRecord
}

func (f *fakeRecordSource) ListActiveWithExternalID(ctx context.Context, tx repository.Tx, limit int) ([]*model.SubscriptionRecord, error) {
	if limit < len(f.recs) {
		return f.recs[:limit], nil
	}
	return f.recs, nil
}

type fakeReconciler struct {
	synced    []string
	refreshed int
}

func (f *fakeReconciler) SyncWithPayPal(ctx context.Context, userID string) (*usecase.SyncResult, error) {
	f.synced = append(f.synced, userID)
	return &usecase.SyncResult{Synced: true, Changed: true}, nil
}

func (f *fakeReconciler) RefreshGauges(ctx context.Context) error {
	f.refreshed++
	return nil
}

type fakeSyncLock struct {
	held     map[string]bool
	acquired []string
	released []string
	errs     bool
}

func (f *fakeSyncLock) Acquire(ctx context.Context, userID string, ttl time.Duration) (string, bool, error) {
	if f.errs {
		return "", false, errors.New("redis down")
	}
	if f.held[userID] {
		return "", false, nil
	}
	f.acquired = append(f.acquired, userID)
	return "tok-" + userID, true, nil
}

func (f *fakeSyncLock) Release(ctx context.Context, userID, token string) error {
	f.released = append(f.released, userID)
	return nil
}

func activeRecord(userID, externalID string) *model.SubscriptionRecord {
	return &model.SubscriptionRecord{
		ID:                     "rec-" + userID,
		UserID:                 userID,
		PlanID:                 "plan-pro",
		Status:                 model.SubscriptionStatusActive,
		ExternalSubscriptionID: &externalID,
	}
}

func newSweepFixture(lock *fakeSyncLock, users ...string) (*SyncWorker, *fakeReconciler) {
	src := &fakeRecordSource{}
	for _, u := range users {
		src.recs = append(src.recs, activeRecord(u, "I-"+u))
	}
	recon := &fakeReconciler{}
	log := zerolog.Nop()
	return NewSyncWorker(time.Hour, 10, src, recon, lock, &log), recon
}

func TestSweepLocksEachUser(t *testing.T) {
	lock := &fakeSyncLock{held: map[string]bool{}}
	w, recon := newSweepFixture(lock, "u1", "u2")

	w.sweep(context.Background())

	if len(recon.synced) != 2 {
		t.Fatalf("synced %v, want both users", recon.synced)
	}
	if len(lock.acquired) != 2 || len(lock.released) != 2 {
		t.Fatalf("lock use acquired=%v released=%v", lock.acquired, lock.released)
	}
	if recon.refreshed != 1 {
		t.Fatalf("gauges refreshed %d times", recon.refreshed)
	}
}

func TestSweepSkipsUserLockedElsewhere(t *testing.T) {
	lock := &fakeSyncLock{held: map[string]bool{"u1": true}}
	w, recon := newSweepFixture(lock, "u1", "u2")

	w.sweep(context.Background())

	if len(recon.synced) != 1 || recon.synced[0] != "u2" {
		t.Fatalf("synced %v, want only u2", recon.synced)
	}
	if len(lock.released) != 1 {
		t.Fatalf("released %v, want only u2's lock", lock.released)
	}
}

func TestSweepProceedsWhenLockBackendDown(t *testing.T) {
	lock := &fakeSyncLock{held: map[string]bool{}, errs: true}
	w, recon := newSweepFixture(lock, "u1")

	w.sweep(context.Background())

	if len(recon.synced) != 1 {
		t.Fatalf("synced %v, want u1 despite lock outage", recon.synced)
	}
	if len(lock.released) != 0 {
		t.Fatalf("released a lock that was never held: %v", lock.released)
	}
}

func TestSweepWithoutLockerStillSyncs(t *testing.T) {
	src := &fakeRecordSource{recs: []*model.SubscriptionRecord{activeRecord("u1", "I-u1")}}
	recon := &fakeReconciler{}
	log := zerolog.Nop()
	w := NewSyncWorker(time.Hour, 10, src, recon, nil, &log)

	w.sweep(context.Background())

	if len(recon.synced) != 1 {
		t.Fatalf("synced %v, want u1", recon.synced)
	}
}
