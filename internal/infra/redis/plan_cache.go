package redis

import (
	"context"
	"encoding/json"
	"time"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
)

var _ repository.PlanRepository = (*CachedPlanRepo)(nil)

// CachedPlanRepo decorates a PlanRepository with a read-through cache. Plans
// change rarely and are read on every reconciliation, so lookups by name are
// cached and invalidated on Save. Calls carrying a transaction bypass the
// cache so reads inside a locked sequence see their own writes.
type CachedPlanRepo struct {
	inner repository.PlanRepository
	cli   RedisClient
	ttl   time.Duration
}

func NewCachedPlanRepo(inner repository.PlanRepository, cli RedisClient, ttl time.Duration) *CachedPlanRepo {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedPlanRepo{inner: inner, cli: cli, ttl: ttl}
}

func planKey(name model.PlanName) string { return "plan:name:" + string(name) }

func (r *CachedPlanRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	if err := r.inner.Save(ctx, tx, p); err != nil {
		return err
	}
	_ = r.cli.Del(ctx, planKey(p.Name))
	return nil
}

func (r *CachedPlanRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	return r.inner.FindByID(ctx, tx, id)
}

func (r *CachedPlanRepo) FindByName(ctx context.Context, tx repository.Tx, name model.PlanName) (*model.Plan, error) {
	if tx != nil {
		return r.inner.FindByName(ctx, tx, name)
	}
	if data, err := r.cli.Get(ctx, planKey(name)); err == nil {
		var p model.Plan
		if err := json.Unmarshal([]byte(data), &p); err == nil {
			return &p, nil
		}
	}
	p, err := r.inner.FindByName(ctx, tx, name)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		_ = r.cli.Set(ctx, planKey(name), data, r.ttl)
	}
	return p, nil
}

func (r *CachedPlanRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	return r.inner.ListAll(ctx, tx)
}
