package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/weeasd57/stockroom-wind-sub003/internal/config"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/repository"
	pg "github.com/weeasd57/stockroom-wind-sub003/internal/infra/db/postgres"
)

// schema is idempotent; re-running the seeder is safe.
const schema = `
CREATE TABLE IF NOT EXISTS subscription_plans (
    id                  TEXT PRIMARY KEY,
    name                TEXT NOT NULL UNIQUE,
    display_name        TEXT NOT NULL,
    price_check_limit   INTEGER NOT NULL DEFAULT 0,
    post_creation_limit INTEGER NOT NULL DEFAULT 0,
    price_usd           NUMERIC(10,2) NOT NULL DEFAULT 0,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS user_subscriptions (
    id                       TEXT PRIMARY KEY,
    user_id                  TEXT NOT NULL,
    plan_id                  TEXT NOT NULL REFERENCES subscription_plans(id),
    status                   TEXT NOT NULL,
    restricted               BOOLEAN NOT NULL DEFAULT FALSE,
    external_subscription_id TEXT,
    price_checks_used        INTEGER NOT NULL DEFAULT 0,
    posts_created            INTEGER NOT NULL DEFAULT 0,
    started_at               TIMESTAMPTZ NOT NULL,
    expires_at               TIMESTAMPTZ,
    cancelled_at             TIMESTAMPTZ,
    cancellation_reason      TEXT,
    source                   TEXT NOT NULL DEFAULT 'system',
    created_at               TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at               TIMESTAMPTZ NOT NULL DEFAULT now()
);

-- at most one active record per user
CREATE UNIQUE INDEX IF NOT EXISTS user_subscriptions_one_active
    ON user_subscriptions (user_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS user_subscriptions_external_idx
    ON user_subscriptions (external_subscription_id)
    WHERE external_subscription_id IS NOT NULL;

CREATE TABLE IF NOT EXISTS webhook_events (
    id               TEXT PRIMARY KEY,
    event_id         TEXT NOT NULL UNIQUE,
    event_type       TEXT NOT NULL,
    resource_id      TEXT NOT NULL DEFAULT '',
    payload          BYTEA NOT NULL,
    received_at      TIMESTAMPTZ NOT NULL,
    processed_at     TIMESTAMPTZ,
    processing_error TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS webhook_events_unprocessed_idx
    ON webhook_events (received_at) WHERE processed_at IS NULL;
`

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	if _, err := pool.Exec(ctx, schema); err != nil {
		log.Fatalf("apply schema: %v", err)
	}
	fmt.Println("schema applied")

	planRepo := pg.NewPlanRepo(pool)
	existing, err := planRepo.ListAll(ctx, repository.NoTX)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d plans already present. No changes.\n", len(existing))
		for _, p := range existing {
			fmt.Printf("  - %s (checks=%d, posts=%d, price=%s USD)\n", p.Name, p.PriceCheckLimit, p.PostCreationLimit, p.PriceUSD)
		}
		return
	}

	seed := []struct {
		Name        model.PlanName
		DisplayName string
		Checks      int
		Posts       int
		Price       string
	}{
		{model.PlanFree, "Free", 10, 3, "0.00"},
		{model.PlanPro, "Pro", 100, 50, "4.00"},
	}
	for _, s := range seed {
		plan, err := model.NewPlan(uuid.NewString(), s.Name, s.DisplayName, s.Checks, s.Posts, decimal.RequireFromString(s.Price))
		if err != nil {
			log.Fatalf("build plan %q: %v", s.Name, err)
		}
		if err := planRepo.Save(ctx, repository.NoTX, plan); err != nil {
			log.Fatalf("save plan %q: %v", s.Name, err)
		}
		fmt.Printf("seeded: %s (id=%s, price=%s USD)\n", plan.Name, plan.ID, plan.PriceUSD)
	}
	fmt.Println("seeding complete")
}
