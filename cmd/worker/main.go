package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/comanda-hq/comanda-sync/internal/app"
	"github.com/comanda-hq/comanda-sync/internal/costing"
	"github.com/comanda-hq/comanda-sync/internal/mapping"
	"github.com/comanda-hq/comanda-sync/internal/notify"
	"github.com/comanda-hq/comanda-sync/internal/platform/cache"
	"github.com/comanda-hq/comanda-sync/internal/platform/db"
	"github.com/comanda-hq/comanda-sync/internal/provider"
	"github.com/comanda-hq/comanda-sync/internal/recalc"
	"github.com/comanda-hq/comanda-sync/internal/store"
	"github.com/comanda-hq/comanda-sync/internal/syncer"
	"github.com/comanda-hq/comanda-sync/internal/token"
	"github.com/comanda-hq/comanda-sync/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Warn("redis ping", slog.Any("error", err))
	}

	credentialKey, err := cfg.CredentialKeyBytes()
	if err != nil {
		logger.Error("credential key", slog.Any("error", err))
		os.Exit(1)
	}

	tokenCache := cache.NewTokenCache(redisClient, cfg.TokenCacheTTL)
	storeRepo := store.NewRepository(pool)
	storeService := store.NewService(storeRepo, credentialKey, tokenCache, logger)
	tokens := store.NewTokens(storeRepo, tokenCache)

	marketplace := provider.NewClient(cfg.MarketplaceBaseURL, tokens, cfg.MarketplaceTimeout)
	oauth := provider.NewOAuthClient(cfg.MarketplaceBaseURL, cfg.MarketplaceClientID, cfg.MarketplaceClientSecret, cfg.MarketplaceTimeout)
	posClient := provider.NewPOSClient(cfg.POSBaseURL, cfg.POSTimeout)

	client, err := jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	if err != nil {
		logger.Error("init queue client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("queue client close", slog.Any("error", err))
		}
	}()

	notifier := notify.NewQueueNotifier(client)

	syncRepo := syncer.NewRepository(pool)
	ordersSync := syncer.NewOrdersSyncer(marketplace, syncRepo, syncRepo, notifier, logger)
	salesSync := syncer.NewSalesSyncer(marketplace, syncRepo, syncRepo, storeService, logger, cfg.SalesOverlap, cfg.SyncPageSize)
	financialSync := syncer.NewFinancialSyncer(marketplace, syncRepo, syncRepo, logger, cfg.FinancialOverlap, cfg.SyncPageSize)
	merchantSync := syncer.NewMerchantSyncer(marketplace, syncRepo, storeRepo, logger)

	costingRepo := costing.NewRepository(pool)
	engine := costing.NewEngine(costingRepo, costingRepo, logger)

	mappingRepo := mapping.NewRepository(pool)
	recalcRepo := recalc.NewRepository(pool)
	dispatcher := recalc.NewDispatcher(recalcRepo, engine, mappingRepo, notifier, logger, cfg.RecalcChunkSize)
	flavors := mapping.NewFlavorMapper(mappingRepo, costingRepo, engine, logger)
	resolver := mapping.NewResolver(mappingRepo, costingRepo, engine, flavors, dispatcher, notifier, logger)

	sweeper := token.NewSweeper(token.Config{
		Repo:          storeRepo,
		OAuth:         oauth,
		POS:           posClient,
		Credentials:   storeService,
		Cache:         tokenCache,
		Logger:        logger,
		RefreshWithin: cfg.TokenRefreshWithin,
		ReloginWithin: cfg.TokenReloginWithin,
	})

	syncJobs := jobs.NewSyncJobs(storeRepo, ordersSync, salesSync, financialSync, merchantSync, client, logger)
	tokenJobs := jobs.NewTokenJobs(sweeper, logger)
	mappingJobs := jobs.NewMappingJobs(resolver)
	recalcJobs := jobs.NewRecalcJobs(dispatcher)

	var handlers []jobs.TaskHandler
	handlers = append(handlers, syncJobs.Handlers()...)
	handlers = append(handlers, tokenJobs.Handlers()...)
	handlers = append(handlers, mappingJobs.Handlers()...)
	handlers = append(handlers, recalcJobs.Handlers()...)

	ordersDispatch, err := jobs.NewSyncDispatchTask(jobs.TaskSyncOrders)
	if err != nil {
		logger.Error("build dispatch task", slog.Any("error", err))
		os.Exit(1)
	}
	settlementDispatch, err := jobs.NewSyncDispatchTask(jobs.TaskSyncSales, jobs.TaskSyncFinancial)
	if err != nil {
		logger.Error("build dispatch task", slog.Any("error", err))
		os.Exit(1)
	}
	merchantDispatch, err := jobs.NewSyncDispatchTask(jobs.TaskSyncMerchant)
	if err != nil {
		logger.Error("build dispatch task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers:  handlers,
		Cron: []jobs.CronRegistration{
			{Spec: "*/5 * * * *", Task: ordersDispatch, Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "0 * * * *", Task: settlementDispatch, Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "30 3 * * *", Task: merchantDispatch, Options: []asynq.Option{asynq.MaxRetry(2)}},
			{Spec: "0 */6 * * *", Task: jobs.NewTokenSweepTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
