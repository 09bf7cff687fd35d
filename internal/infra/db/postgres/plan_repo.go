package postgres

import (
	"context"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
)

// Ensure planRepo implements repository.PlanRepository
var _ repository.PlanRepository = (*planRepo)(nil)

type planRepo struct {
	pool *pgxpool.Pool
}

func NewPlanRepo(pool *pgxpool.Pool) *planRepo {
	return &planRepo{pool: pool}
}

func (r *planRepo) Save(ctx context.Context, tx repository.Tx, p *model.Plan) error {
	const q = `
INSERT INTO subscription_plans (
  id, name, display_name, price_check_limit, post_creation_limit, price_usd, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7)
ON CONFLICT (name) DO UPDATE SET
  display_name=$3, price_check_limit=$4, post_creation_limit=$5, price_usd=$6;`

	_, err := execSQL(ctx, r.pool, tx, q,
		p.ID, string(p.Name), p.DisplayName, p.PriceCheckLimit, p.PostCreationLimit, p.PriceUSD.String(), p.CreatedAt)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return err
		default:
			return domain.ErrOperationFailed
		}
	}
	return nil
}

func (r *planRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Plan, error) {
	const q = `
SELECT id, name, display_name, price_check_limit, post_creation_limit, price_usd::text, created_at
  FROM subscription_plans
 WHERE id=$1;`
	return r.queryOne(ctx, tx, q, id)
}

func (r *planRepo) FindByName(ctx context.Context, tx repository.Tx, name model.PlanName) (*model.Plan, error) {
	const q = `
SELECT id, name, display_name, price_check_limit, post_creation_limit, price_usd::text, created_at
  FROM subscription_plans
 WHERE name=$1;`
	return r.queryOne(ctx, tx, q, string(name))
}

func (r *planRepo) ListAll(ctx context.Context, tx repository.Tx) ([]*model.Plan, error) {
	const q = `
SELECT id, name, display_name, price_check_limit, post_creation_limit, price_usd::text, created_at
  FROM subscription_plans
 ORDER BY created_at ASC;`
	rows, err := queryRows(ctx, r.pool, tx, q)
	if err != nil {
		switch err {
		case domain.ErrInvalidArgument, domain.ErrInvalidExecContext:
			return nil, err
		default:
			return nil, domain.ErrOperationFailed
		}
	}
	defer rows.Close()

	var out []*model.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	return out, nil
}

func (r *planRepo) queryOne(ctx context.Context, tx repository.Tx, sql string, args ...any) (*model.Plan, error) {
	row, err := pickRow(ctx, r.pool, tx, sql, args...)
	if err != nil {
		return nil, err
	}
	p, err := scanPlan(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func scanPlan(row pgx.Row) (*model.Plan, error) {
	p := &model.Plan{}
	var name, price string
	if err := row.Scan(&p.ID, &name, &p.DisplayName, &p.PriceCheckLimit, &p.PostCreationLimit, &price, &p.CreatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, err
		}
		return nil, domain.ErrReadDatabaseRow
	}
	p.Name = model.PlanName(name)
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, domain.ErrReadDatabaseRow
	}
	p.PriceUSD = d
	return p, nil
}
