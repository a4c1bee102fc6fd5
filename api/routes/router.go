package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/agritrade/agritrade-backend/api/controllers"
	activitycontrollers "github.com/agritrade/agritrade-backend/api/controllers/activity"
	contractcontrollers "github.com/agritrade/agritrade-backend/api/controllers/contracts"
	ordercontrollers "github.com/agritrade/agritrade-backend/api/controllers/orders"
	paymentcontrollers "github.com/agritrade/agritrade-backend/api/controllers/payments"
	"github.com/agritrade/agritrade-backend/api/middleware"
	"github.com/agritrade/agritrade-backend/internal/contracts"
	"github.com/agritrade/agritrade-backend/internal/orders"
	"github.com/agritrade/agritrade-backend/internal/payments"
	"github.com/agritrade/agritrade-backend/pkg/config"
	"github.com/agritrade/agritrade-backend/pkg/db"
	"github.com/agritrade/agritrade-backend/pkg/enums"
	"github.com/agritrade/agritrade-backend/pkg/logger"
	"github.com/agritrade/agritrade-backend/pkg/metrics"
	pkgredis "github.com/agritrade/agritrade-backend/pkg/redis"
	"github.com/agritrade/agritrade-backend/pkg/storage/gcs"
)

const multipartOverhead = 1 << 20

// RedisStore backs idempotency replay and upload throttling.
type RedisStore interface {
	pkgredis.IdempotencyStore
	pkgredis.Pinger
	FixedWindowAllow(ctx context.Context, scope string, limit int64, window time.Duration) (bool, int64, error)
}

type regionCounter interface {
	Counts(window time.Duration) map[string]int
}

// Params carries everything the router mounts. Nil pingers are skipped by
// the readiness probe; a nil Gatherer serves the default registry.
type Params struct {
	Config *config.Config
	Logger *logger.Logger

	DB      db.Pinger
	Redis   RedisStore
	Storage gcs.Pinger

	Contracts contracts.Service
	Orders    orders.Service
	Payments  payments.Service
	Activity  regionCounter

	HTTPMetrics *metrics.HTTPMetrics
	Gatherer    prometheus.Gatherer
}

func NewRouter(p Params) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg, p.HTTPMetrics),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readinessDeps(p)...))
	})
	r.Method(http.MethodGet, "/metrics", metricsHandler(p.Gatherer))

	uploadLimit := middleware.UploadRateLimit(middleware.UploadRateLimitPolicy{
		Window: cfg.HTTP.UploadRateWindow,
		Limit:  cfg.HTTP.UploadRateLimit,
	}, p.Redis, logg)
	maxUpload := cfg.GCS.MaxUploadBytes()
	// form fields and multipart framing ride on top of the file itself
	maxBody := maxUpload + multipartOverhead
	purchaserOnly := middleware.RequireRole(logg, enums.ActorRolePurchaser)
	parties := middleware.RequireRole(logg, enums.ActorRoleFarmer, enums.ActorRolePurchaser)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(p.Redis, maxBody, logg))

		r.Route("/contracts", func(r chi.Router) {
			r.Get("/", contractcontrollers.List(p.Contracts, logg))
			r.With(purchaserOnly).Post("/", contractcontrollers.Create(p.Contracts, logg))
			r.Route("/{contractId}", func(r chi.Router) {
				r.Get("/", contractcontrollers.Detail(p.Contracts, logg))
				r.With(uploadLimit).Post("/sign", contractcontrollers.Sign(p.Contracts, maxUpload, logg))
				r.With(purchaserOnly).Post("/withdraw", contractcontrollers.Withdraw(p.Contracts, logg))
				r.Post("/reject", contractcontrollers.Reject(p.Contracts, logg))
				r.Post("/terminate", contractcontrollers.Terminate(p.Contracts, logg))
				r.With(purchaserOnly).Post("/order", ordercontrollers.CreateFromContract(p.Orders, logg))
			})
		})

		r.Get("/payments", paymentcontrollers.Mine(p.Payments, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", ordercontrollers.List(p.Orders, logg))
			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", ordercontrollers.Detail(p.Orders, logg))
				r.With(parties).Post("/inspect", ordercontrollers.Inspect(p.Orders, logg))
				r.Post("/cancel", ordercontrollers.Cancel(p.Orders, logg))
				r.With(purchaserOnly).Post("/receipt", ordercontrollers.Complete(p.Orders, logg))
				r.Get("/payments", paymentcontrollers.ListByOrder(p.Payments, logg))
				r.With(purchaserOnly, uploadLimit).Post("/payments", paymentcontrollers.Submit(p.Payments, maxUpload, logg))
				r.With(purchaserOnly).Post("/payments/pending", paymentcontrollers.Pending(p.Payments, logg))
			})
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RequireRole(logg, enums.ActorRoleAdmin))
		r.Use(middleware.Idempotency(p.Redis, maxBody, logg))

		r.Post("/payments/{paymentId}/confirm", paymentcontrollers.AdminConfirm(p.Payments, logg))
		r.Post("/payments/{paymentId}/fail", paymentcontrollers.AdminFail(p.Payments, logg))
		r.Post("/orders/{orderId}/complete", ordercontrollers.Complete(p.Orders, logg))
		if p.Activity != nil {
			r.Get("/activity/regions", activitycontrollers.Regions(p.Activity, cfg.Activity.DefaultWindow, logg))
		}
	})

	return r
}

func readinessDeps(p Params) []controllers.Dependency {
	deps := []controllers.Dependency{}
	if p.DB != nil {
		deps = append(deps, controllers.Dependency{Name: "database", Pinger: p.DB})
	}
	if p.Redis != nil {
		deps = append(deps, controllers.Dependency{Name: "redis", Pinger: p.Redis})
	}
	if p.Storage != nil {
		deps = append(deps, controllers.Dependency{Name: "storage", Pinger: p.Storage})
	}
	return deps
}

func metricsHandler(gatherer prometheus.Gatherer) http.Handler {
	if gatherer == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
