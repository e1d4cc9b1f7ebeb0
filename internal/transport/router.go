package transport

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/pitabwire/quotecfg/internal/config"
	"github.com/pitabwire/quotecfg/internal/observability"
	"github.com/pitabwire/quotecfg/internal/openapi"
	"github.com/pitabwire/quotecfg/internal/service"
)

// Dependencies holds all injected dependencies for the HTTP transport layer.
type Dependencies struct {
	Config    *config.Config
	Service   *service.ConfigService
	API       *openapi.Index
	Logger    *zap.Logger
	Metrics   *observability.Metrics
	Gatherer  prometheus.Gatherer
	Readiness observability.ReadinessChecks
}

// NewRouter creates a chi.Router with the full middleware pipeline and all
// route registrations. Health, readiness, metrics and the API description
// bypass rate limiting and request logging.
func NewRouter(deps Dependencies) chi.Router {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg := deps.Config
	svc := deps.Service
	b := newBinder(deps.API)

	r := chi.NewRouter()

	// Global middleware: applied to all routes including health.
	r.Use(Recovery(logger))
	r.Use(CORS(cfg.Server.CORS))
	r.Use(RequestID)
	r.Use(SecurityHeaders)

	r.Get("/health", observability.HandleHealth())
	r.Get("/ready", observability.HandleReady(deps.Readiness))
	if cfg.Observability.Metrics.Enabled && deps.Gatherer != nil {
		r.Method(http.MethodGet, cfg.Observability.Metrics.Path, observability.Handler(deps.Gatherer))
	}
	if deps.API != nil {
		r.Get("/api/openapi.json", handleOpenAPI(deps.API))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(observability.TracingMiddleware)
		r.Use(BuildRequestContext(logger))
		if cfg.Server.RateLimit.Enabled {
			r.Use(NewRateLimiter(cfg.Server.RateLimit, deps.Metrics).Middleware)
		}
		r.Use(HandlerTimeout(cfg.Server.HandlerTimeout))
		r.Use(MaxBodySize(cfg.Server.MaxBodyBytes))
		r.Use(RequestLogging(logger))
		r.Use(deps.Metrics.MetricsMiddleware)

		r.Get("/templates", handleListTemplates(svc))

		r.Get("/configs", handleListConfigs(svc))
		r.Post("/configs", handleCreateConfig(svc, b))
		r.Post("/configs/import", handleImportConfig(svc))

		r.Route("/configs/{configId}", func(r chi.Router) {
			r.Get("/", handleGetConfig(svc))
			r.Delete("/", handleDeleteConfig(svc))
			r.Post("/clone", handleCloneConfig(svc, b))
			r.Get("/export", handleExportConfig(svc))
			r.Get("/validation", handleValidateConfig(svc))
			r.Post("/evaluate", handleEvaluate(svc, b))

			r.Patch("/components/{componentId}", handleUpdateComponent(svc, b))
			r.Put("/components/{componentId}/enabled", handleToggleComponent(svc, b))

			r.Post("/rules", handleAddRule(svc, b))
			r.Patch("/rules/{ruleId}", handleUpdateRule(svc, b))
			r.Delete("/rules/{ruleId}", handleDeleteRule(svc))
			r.Put("/rules/{ruleId}/enabled", handleToggleRule(svc, b))
		})
	})

	return r
}

func handleOpenAPI(api *openapi.Index) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		data, err := api.MarshalJSON()
		if err != nil {
			WriteErrorCtx(r.Context(), w, err)
			return
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		w.Write(data)
	}
}
