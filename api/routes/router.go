package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/parcel-intake-backend/api/controllers"
	"github.com/angelmondragon/parcel-intake-backend/api/middleware"
	"github.com/angelmondragon/parcel-intake-backend/internal/manifests"
	"github.com/angelmondragon/parcel-intake-backend/internal/propagation"
	"github.com/angelmondragon/parcel-intake-backend/internal/scans"
	"github.com/angelmondragon/parcel-intake-backend/internal/sessions"
	"github.com/angelmondragon/parcel-intake-backend/internal/stats"
	"github.com/angelmondragon/parcel-intake-backend/pkg/config"
	"github.com/angelmondragon/parcel-intake-backend/pkg/db"
	"github.com/angelmondragon/parcel-intake-backend/pkg/logger"
	"github.com/angelmondragon/parcel-intake-backend/pkg/redis"
)

// RouterParams carries the services mounted by NewRouter. Redis is optional in
// tests; without it idempotency, rate limiting and the recent-scan counter are
// skipped.
type RouterParams struct {
	Config    *config.Config
	Logger    *logger.Logger
	DB        db.Pinger
	Redis     *redis.Client
	Manifests manifests.Service
	Matcher   manifests.ParcelFinder
	Scans     scans.Submitter
	Sessions  sessions.Service
	Stats     stats.Service
	Scheduler propagation.Scheduler
	Metrics   http.Handler
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.AllowedOrigins),
		middleware.Operator(logg),
	)

	var (
		idempotencyStore redis.IdempotencyStore
		rateStore        middleware.RateLimitStore
		readyChecks      = map[string]controllers.Pinger{}
		healthDeps       = controllers.HealthDeps{}
	)
	if p.DB != nil {
		readyChecks["database"] = p.DB
	}
	if p.Redis != nil {
		idempotencyStore = p.Redis
		rateStore = p.Redis
		readyChecks["redis"] = p.Redis
		healthDeps.Activity = p.Redis
	}
	if p.Sessions != nil {
		healthDeps.Sessions = p.Sessions
	}
	if p.Scheduler != nil {
		healthDeps.Tasks = p.Scheduler
	}

	scanPolicy := middleware.NewRateLimitPolicy("scan", cfg.HTTP.RateLimitWindow, cfg.HTTP.ScanIPLimit, cfg.HTTP.ScanOperatorLimit)
	ingestPolicy := middleware.NewRateLimitPolicy("ingest", cfg.HTTP.RateLimitWindow, cfg.HTTP.IngestIPLimit, cfg.HTTP.IngestOperatorLimit)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", controllers.Health(cfg, healthDeps, logg))
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readyChecks))
	})

	metricsHandler := p.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Idempotency(idempotencyStore, logg))
		r.Get("/ping", controllers.Ping())

		r.With(middleware.RateLimit(ingestPolicy, rateStore, logg)).
			Post("/manifest/ingest", controllers.IngestManifest(p.Manifests, cfg.HTTP.MaxIngestBodyBytes, logg))

		r.Route("/scan", func(r chi.Router) {
			r.With(middleware.RateLimit(scanPolicy, rateStore, logg)).Post("/", controllers.SubmitScan(p.Scans, logg))
			r.Post("/session", controllers.ScanSession(p.Sessions, logg))
		})

		r.Route("/manifests", func(r chi.Router) {
			r.Get("/", controllers.ListManifests(p.Manifests, logg))
			r.Get("/scan-stats", controllers.ManifestScanStats(p.Manifests, logg))
			r.Get("/{manifestNumber}", controllers.ManifestDetail(p.Manifests, logg))
			r.Get("/{manifestNumber}/scans", controllers.ManifestScanActivity(p.Manifests, logg))
			r.Get("/{manifestNumber}/report.csv", controllers.ManifestReport(p.Manifests, logg))
			r.Delete("/{manifestNumber}", controllers.DeleteManifest(p.Manifests, logg))
		})

		r.Get("/parcels/{trackingNumber}", controllers.ParcelLookup(p.Matcher, logg))
		r.Get("/stats/customers", controllers.CustomerStats(p.Stats, logg))

		r.Route("/propagation/tasks", func(r chi.Router) {
			r.Get("/", controllers.ListPropagationTasks(p.Scheduler, logg))
			r.Get("/{taskId}", controllers.PropagationTaskDetail(p.Scheduler, logg))
			r.Post("/{taskId}/cancel", controllers.CancelPropagationTask(p.Scheduler, logg))
		})
	})

	return r
}
