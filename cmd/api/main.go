package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/agritrade/agritrade-backend/api/routes"
	"github.com/agritrade/agritrade-backend/internal/activity"
	"github.com/agritrade/agritrade-backend/internal/catalog"
	"github.com/agritrade/agritrade-backend/internal/contracts"
	"github.com/agritrade/agritrade-backend/internal/docking"
	"github.com/agritrade/agritrade-backend/internal/orders"
	"github.com/agritrade/agritrade-backend/internal/payments"
	"github.com/agritrade/agritrade-backend/internal/reservations"
	"github.com/agritrade/agritrade-backend/pkg/config"
	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/metrics"
	"github.com/agritrade/agritrade-backend/pkg/migrate"
	"github.com/agritrade/agritrade-backend/pkg/outbox"
	"github.com/agritrade/agritrade-backend/pkg/redis"
	"github.com/agritrade/agritrade-backend/pkg/storage/gcs"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Env:         cfg.App.Env,
		Global:      true,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	exitOnErr(logg, "failed to bootstrap database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	exitOnErr(logg, "failed to run dev migrations", migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient))

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	exitOnErr(logg, "failed to bootstrap redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	gcsClient, err := gcs.NewClient(context.Background(), cfg.GCS, cfg.GCP, logg)
	exitOnErr(logg, "failed to bootstrap gcs", err)

	outboxService := outbox.NewDisabledService(logg)
	if cfg.FeatureFlags.OutboxEnabled {
		outboxService = outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	}
	workflowMetrics := metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer)

	catalogRepo := catalog.NewRepository(dbClient.DB())
	catalogService, err := catalog.NewService(catalogRepo)
	exitOnErr(logg, "failed to create catalog service", err)

	dockingService, err := docking.NewService(docking.NewRepository(dbClient.DB()))
	exitOnErr(logg, "failed to create docking service", err)

	contractsRepo := contracts.NewRepository(dbClient.DB())
	contractLifecycle, err := contracts.NewLifecycle(contractsRepo, outboxService)
	exitOnErr(logg, "failed to create contract lifecycle", err)

	ledger, err := reservations.NewLedger(reservations.LedgerParams{
		Repo:    reservations.NewRepository(dbClient.DB()),
		Catalog: catalogRepo,
		Outbox:  outboxService,
		Logger:  logg,
		Metrics: workflowMetrics,
		TTL:     cfg.Workflow.ReservationTTL,
	})
	exitOnErr(logg, "failed to create stock ledger", err)

	tracker, err := activity.NewTracker(activity.TrackerParams{
		Logger:        logg,
		Retention:     cfg.Activity.Retention,
		PruneInterval: cfg.Activity.PruneInterval,
	})
	exitOnErr(logg, "failed to create activity tracker", err)

	ordersRepo := orders.NewRepository(dbClient.DB())
	orderLifecycle, err := orders.NewLifecycle(ordersRepo, outboxService)
	exitOnErr(logg, "failed to create order lifecycle", err)

	ordersService, err := orders.NewService(orders.ServiceParams{
		Repo:      ordersRepo,
		Lifecycle: orderLifecycle,
		Contracts: contractLifecycle,
		Ledger:    ledger,
		Activity:  tracker,
		Tx:        dbClient,
		Logger:    logg,
		Metrics:   workflowMetrics,
	})
	exitOnErr(logg, "failed to create orders service", err)

	contractsService, err := contracts.NewService(contracts.ServiceParams{
		Repo:          contractsRepo,
		Lifecycle:     contractLifecycle,
		Docking:       dockingService,
		Catalog:       catalogService,
		Storage:       gcsClient,
		Orders:        ordersService,
		Ledger:        ledger,
		Tx:            dbClient,
		Logger:        logg,
		Metrics:       workflowMetrics,
		NumberRetries: cfg.Workflow.ContractNumberRetries,
	})
	exitOnErr(logg, "failed to create contracts service", err)

	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:    payments.NewRepository(dbClient.DB()),
		Orders:  orderLifecycle,
		Ledger:  ledger,
		Storage: gcsClient,
		Tx:      dbClient,
		Outbox:  outboxService,
		Logger:  logg,
		Metrics: workflowMetrics,
	})
	exitOnErr(logg, "failed to create payments service", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithField(ctx, "addr", addr)

	go func() {
		if err := tracker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logg.Error(ctx, "activity tracker stopped", err)
		}
	}()

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Params{
			Config:    cfg,
			Logger:    logg,
			DB:        dbClient,
			Redis:     redisClient,
			Storage:   gcsClient,
			Contracts: contractsService,
			Orders:    ordersService,
			Payments:  paymentsService,
			Activity:  tracker,

			HTTPMetrics: metrics.NewHTTPMetrics(prometheus.DefaultRegisterer),
		}),
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func exitOnErr(logg *logger.Logger, msg string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
