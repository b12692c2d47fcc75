// Package httpapi assembles the public router from the module handlers.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"regwatch/internal/platform/metrics"
	"regwatch/internal/platform/middleware"
	ratelimitmw "regwatch/internal/ratelimit/middleware"
	ratelimitmodels "regwatch/internal/ratelimit/models"
	"regwatch/pkg/platform/httputil"
	"regwatch/pkg/platform/middleware/admin"
	"regwatch/pkg/platform/middleware/metadata"
	"regwatch/pkg/platform/middleware/requesttime"
)

// Routes is implemented by every module handler.
type Routes interface {
	Register(r chi.Router)
}

// AdminRoutes is implemented by handlers that expose writes.
type AdminRoutes interface {
	RegisterAdmin(r chi.Router)
}

// HealthCheck reports whether a backing service is reachable.
type HealthCheck func(ctx context.Context) error

type Config struct {
	Logger         *slog.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	AdminToken     string
	// AdminTokenHash, when set, replaces the plaintext AdminToken check.
	AdminTokenHash string
	RequestTimeout time.Duration
	TrustedProxies metadata.TrustedProxies
	HealthChecks   map[string]HealthCheck
	// RateLimiter is optional. Reads and writes are limited as separate classes.
	RateLimiter *ratelimitmw.Middleware
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter mounts handlers under the shared middleware chain. Handlers that
// implement AdminRoutes get their writes mounted behind the admin token.
func NewRouter(cfg Config, handlers ...Routes) http.Handler {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(middleware.RequestID)
	r.Use(metadata.ClientMetadata(cfg.TrustedProxies))
	r.Use(middleware.Logger(cfg.Logger))

	r.Get("/health", healthHandler(cfg.HealthChecks))
	r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		r.Use(middleware.ContentTypeJSON)
		r.Use(middleware.LatencyMiddleware(cfg.Metrics))
		r.Use(requesttime.Middleware)

		r.Group(func(r chi.Router) {
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter.RateLimit(ratelimitmodels.ClassRead))
			}
			for _, h := range handlers {
				h.Register(r)
			}
		})
		r.Group(func(r chi.Router) {
			r.Use(admin.RequireAdmin(adminVerifier(cfg), cfg.Logger))
			if cfg.RateLimiter != nil {
				r.Use(cfg.RateLimiter.RateLimit(ratelimitmodels.ClassWrite))
			}
			for _, h := range handlers {
				if a, ok := h.(AdminRoutes); ok {
					a.RegisterAdmin(r)
				}
			}
		})
	})
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{Status: "ok"}
		status := http.StatusOK
		if len(names) > 0 {
			resp.Checks = make(map[string]string, len(names))
		}
		for _, name := range names {
			if err := checks[name](ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}

func adminVerifier(cfg Config) admin.Verifier {
	if cfg.AdminTokenHash != "" {
		return admin.HashedToken(cfg.AdminTokenHash)
	}
	return admin.StaticToken(cfg.AdminToken)
}
