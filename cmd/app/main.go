package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/weeasd57/stockroom-wind-sub003/internal/config"
	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/ports/adapter"
	payAdapters "github.com/weeasd57/stockroom-wind-sub003/internal/infra/adapters/payment"
	tele "github.com/weeasd57/stockroom-wind-sub003/internal/infra/adapters/telegram"
	pg "github.com/weeasd57/stockroom-wind-sub003/internal/infra/db/postgres"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/logging"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/metrics"
	red "github.com/weeasd57/stockroom-wind-sub003/internal/infra/redis"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/sched"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/web"
	"github.com/weeasd57/stockroom-wind-sub003/internal/usecase"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ---- CLI flags ----
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	devMode := flag.Bool("dev", false, "enable developer mode")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, *devMode)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("dev mode enabled")
	}
	metrics.MustRegister()

	// ---- Postgres ----
	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 10)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis")
	}
	defer redisClient.Close()
	eventDedup := red.NewEventDedup(redisClient, cfg.Redis.TTL)

	// ---- Repositories ----
	planRepo := red.NewCachedPlanRepo(pg.NewPlanRepo(pool), redisClient, cfg.Redis.TTL)
	subRepo := pg.NewSubscriptionRepo(pool)
	eventRepo := pg.NewWebhookEventRepo(pool)
	txManager := pg.NewTxManager(pool)

	// ---- Payment gateway ----
	// Mode and credentials come from their own cascade, never from the
	// deployment environment.
	mode := config.ResolvePayPalMode(cfg.PayPal, nil)
	var gateway adapter.PaymentGateway
	creds, err := config.ResolvePayPalCredentials(cfg.PayPal, mode, nil)
	switch {
	case err == nil:
		pgw, gerr := payAdapters.NewPayPalGateway(mode, creds, cfg.PayPal.Timeout)
		if gerr != nil {
			logger.Fatal().Err(gerr).Msg("paypal gateway")
		}
		gateway = pgw
		logger.Info().Str("mode", string(mode)).Msg("paypal gateway configured")
	case cfg.Runtime.Dev:
		gateway = payAdapters.NewNoopGateway()
		logger.Warn().Msg("no paypal credentials; using noop gateway (dev only)")
	default:
		logger.Fatal().Err(err).Str("mode", string(mode)).Msg("paypal credentials")
	}

	// ---- Notifier ----
	var notifier adapter.Notifier = tele.NoopNotifier{}
	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		n, err := tele.NewNotifier(&cfg.Telegram, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("telegram notifier")
		}
		notifier = n
	}

	// ---- Use cases ----
	reconUC := usecase.NewReconciliationUseCase(planRepo, subRepo, txManager, gateway, notifier, logger)
	checkoutUC := usecase.NewCheckoutUseCase(planRepo, subRepo, txManager, gateway, logger)
	webhookUC := usecase.NewWebhookUseCase(gateway, eventRepo, eventDedup, reconUC, subRepo, logger)

	// ---- HTTP server ----
	auth := web.NewAuthManager(&cfg.Auth)
	server := web.NewServer(reconUC, checkoutUC, webhookUC, auth, cfg.Server.Port, logger)
	go func() {
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("http server error")
			cancel()
		}
	}()

	// ---- Background workers ----
	syncWorker := sched.NewSyncWorker(cfg.Workers.SyncInterval, 200, subRepo, reconUC, red.NewSyncLock(redisClient), logger)
	go func() { _ = syncWorker.Run(ctx) }()
	expiryWorker := sched.NewExpiryWorker(cfg.Workers.ExpiryInterval, reconUC, logger)
	go func() { _ = expiryWorker.Run(ctx) }()
	pruner := sched.NewEventPruner(cfg.Workers.PruneInterval, cfg.Workers.EventRetention, webhookUC, logger)
	go func() { _ = pruner.Run(ctx) }()

	// ---- Graceful shutdown ----
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigc:
		logger.Info().Msg("shutdown requested")
	case <-ctx.Done():
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown")
	}
}
