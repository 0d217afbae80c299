package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/resellkart/resellkart-backend/internal/checkout"
	"github.com/resellkart/resellkart-backend/internal/cron"
	"github.com/resellkart/resellkart-backend/internal/fulfillment"
	"github.com/resellkart/resellkart-backend/internal/ledger"
	"github.com/resellkart/resellkart-backend/internal/notifications"
	"github.com/resellkart/resellkart-backend/internal/orders"
	"github.com/resellkart/resellkart-backend/internal/returns"
	"github.com/resellkart/resellkart-backend/pkg/config"
	"github.com/resellkart/resellkart-backend/pkg/db"
	"github.com/resellkart/resellkart-backend/pkg/logger"
	"github.com/resellkart/resellkart-backend/pkg/metrics"
	"github.com/resellkart/resellkart-backend/pkg/migrate"
	"github.com/resellkart/resellkart-backend/pkg/pubsub"
	"github.com/resellkart/resellkart-backend/pkg/redis"
	"github.com/resellkart/resellkart-backend/pkg/shiprocket"
)

const lockKeyFormat = "rk:cron-worker:lock:%s"

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(context.Background(), cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap pubsub", err)
		os.Exit(1)
	}
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	tokenStore, err := shiprocket.NewGormTokenStore(dbClient.DB())
	if err != nil {
		logg.Error(context.Background(), "failed to create courier token store", err)
		os.Exit(1)
	}
	courierClient, err := shiprocket.NewClient(cfg.Shiprocket, tokenStore, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create courier client", err)
		os.Exit(1)
	}

	ordersRepo := orders.NewRepository(dbClient.DB())
	returnsRepo := returns.NewRepository(dbClient.DB())
	ledgerRepo := ledger.NewRepository(dbClient.DB())
	checkoutRepo := checkout.NewRepository(dbClient.DB())
	notificationsRepo := notifications.NewRepository(dbClient.DB())

	numbers, err := orders.NewNumberGenerator(redisClient)
	if err != nil {
		logg.Error(context.Background(), "failed to create number generator", err)
		os.Exit(1)
	}

	ordersSvc, err := orders.NewService(ordersRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}
	ledgerSvc, err := ledger.NewService(ledgerRepo, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create ledger service", err)
		os.Exit(1)
	}
	notificationsSvc, err := notifications.NewService(notificationsRepo, pubsubClient.NotificationPublisher(), logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create notification service", err)
		os.Exit(1)
	}
	returnsSvc, err := returns.NewService(returnsRepo, ordersRepo, ordersSvc, ledgerSvc, courierClient, numbers, dbClient, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create returns service", err)
		os.Exit(1)
	}
	fulfillmentSvc, err := fulfillment.NewService(ordersRepo, ordersSvc, returnsSvc, courierClient, notificationsSvc, cfg.Shiprocket, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create fulfillment service", err)
		os.Exit(1)
	}

	earningJob, err := cron.NewEarningMaturationJob(cron.EarningMaturationJobParams{
		Logger:    logg,
		DB:        dbClient,
		Orders:    ordersRepo,
		Lifecycle: ordersSvc,
		Ledger:    ledgerSvc,
		Notifier:  notificationsSvc,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create earning maturation job", err)
		os.Exit(1)
	}
	trackingJob, err := cron.NewTrackingSyncJob(fulfillmentSvc)
	if err != nil {
		logg.Error(context.Background(), "failed to create tracking sync job", err)
		os.Exit(1)
	}
	unpaidJob, err := cron.NewUnpaidExpiryJob(cron.UnpaidExpiryJobParams{
		Logger:    logg,
		Orders:    ordersRepo,
		Lifecycle: ordersSvc,
		Notifier:  notificationsSvc,
		TTL:       cfg.Orders.UnpaidTTL,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create unpaid expiry job", err)
		os.Exit(1)
	}
	cartJob, err := cron.NewStaleCartCleanupJob(cron.StaleCartCleanupJobParams{
		Logger: logg,
		Carts:  checkoutRepo,
		MaxAge: cfg.Cron.StaleCartMaxAge,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create stale cart cleanup job", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	registry.Register(earningJob, cfg.Cron.EarningMaturationInterval)
	registry.Register(trackingJob, cfg.Cron.TrackingSyncInterval)
	registry.Register(unpaidJob, cfg.Cron.UnpaidExpiryInterval)
	registry.Register(cartJob, cfg.Cron.StaleCartInterval)

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.App.Env), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:       logg,
		Registry:     registry,
		Lock:         lock,
		Metrics:      metricsCollector,
		TickInterval: cfg.Cron.TickInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockKey(env string) string {
	if env == "" {
		env = "local"
	}
	return fmt.Sprintf(lockKeyFormat, env)
}
