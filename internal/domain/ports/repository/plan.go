package repository

import (
	"context"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
)

// PlanRepository is the port for plan persistence. Plans are read-only from
// the reconciliation workflow's perspective; Save exists for the seeder.
type PlanRepository interface {
	Save(ctx context.Context, tx Tx, plan *model.Plan) error
	FindByID(ctx context.Context, tx Tx, id string) (*model.Plan, error)
	FindByName(ctx context.Context, tx Tx, name model.PlanName) (*model.Plan, error)
	ListAll(ctx context.Context, tx Tx) ([]*model.Plan, error)
}
