package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/agritrade/agritrade-backend/internal/catalog"
	"github.com/agritrade/agritrade-backend/internal/cron"
	"github.com/agritrade/agritrade-backend/internal/reservations"
	"github.com/agritrade/agritrade-backend/pkg/config"
	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/metrics"
	"github.com/agritrade/agritrade-backend/pkg/migrate"
	"github.com/agritrade/agritrade-backend/pkg/outbox"
	"github.com/agritrade/agritrade-backend/pkg/redis"
)

const serviceKind = "cron-worker"

type options struct {
	once bool
	jobs []string
}

func main() {
	once := flag.Bool("once", false, "run a single cycle and exit")
	jobs := flag.String("jobs", "", "comma-separated job names to run (default: all)")
	flag.Parse()

	_ = godotenv.Load()
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg := logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
		Env:         cfg.App.Env,
		Global:      true,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{"service_kind": serviceKind})

	opts := options{once: *once}
	if *jobs != "" {
		opts.jobs = strings.Split(*jobs, ",")
	}
	if err := run(ctx, cfg, logg, opts); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		stop()
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger, opts options) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer dbClient.Close()

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()

	registry, err := buildJobs(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	if registry, err = registry.Only(opts.jobs...); err != nil {
		return err
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind+":"+envOrLocal(cfg.App.Env)), cfg.Workflow.ReaperLockTTL)
	if err != nil {
		return err
	}
	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Workflow.ReaperInterval,
		JobTimeout: cfg.Workflow.ReaperLockTTL * 9 / 10,
	})
	if err != nil {
		return err
	}

	if opts.once {
		logg.Info(ctx, "running single cron cycle")
		return service.RunOnce(ctx)
	}

	logg.Info(ctx, "starting cron worker")
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return metrics.Serve(gctx, cfg.Service.MetricsAddr, prometheus.DefaultGatherer) })
	g.Go(func() error { return service.Run(gctx) })
	return g.Wait()
}

func buildJobs(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (*cron.Registry, error) {
	conn := dbClient.DB()
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewDisabledService(logg)
	if cfg.FeatureFlags.OutboxEnabled {
		emitter = outbox.NewService(outboxRepo, logg)
	}

	ledger, err := reservations.NewLedger(reservations.LedgerParams{
		Repo:    reservations.NewRepository(conn),
		Catalog: catalog.NewRepository(conn),
		Outbox:  emitter,
		Logger:  logg,
		Metrics: metrics.NewWorkflowMetrics(prometheus.DefaultRegisterer),
		TTL:     cfg.Workflow.ReservationTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("stock ledger: %w", err)
	}

	expiry, err := cron.NewReservationExpiryJob(cron.ReservationExpiryJobParams{
		Logger:    logg,
		DB:        dbClient,
		Ledger:    ledger,
		BatchSize: cfg.Workflow.ReaperBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("reservation expiry job: %w", err)
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outboxRepo,
		DeadLetters:      outbox.NewDLQRepository(conn),
		Retention:        cfg.Outbox.RetentionDays,
		DLQRetention:     cfg.Outbox.DLQRetentionDays,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}
	return cron.NewRegistry(expiry, retention), nil
}

func envOrLocal(env string) string {
	if env == "" {
		return "local"
	}
	return env
}
