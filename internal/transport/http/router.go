// Package httptransport is the thin HTTP pass-through over the login,
// membership and admin services. Handlers translate requests and errors and
// hold no business rules.
package httptransport

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"zkbadge/internal/platform/metrics"
	"zkbadge/internal/platform/middleware"
	dErrors "zkbadge/pkg/domain-errors"
	"zkbadge/pkg/platform/httputil"
	"zkbadge/pkg/platform/middleware/metadata"
	"zkbadge/pkg/platform/middleware/requesttime"
)

const maxBodyBytes = 64 << 10

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// ReadinessCheck reports whether a backing dependency can serve requests.
type ReadinessCheck func(ctx context.Context) error

// RouterConfig tunes the shared middleware chain.
type RouterConfig struct {
	SecureCookies  bool
	RequestTimeout time.Duration
	// MetricsHandler serves /metrics; defaults to the global Prometheus
	// registry.
	MetricsHandler http.Handler
	// Clock overrides request time, for tests.
	Clock func() time.Time
	// Readiness checks run by /readyz, keyed by dependency name.
	Readiness map[string]ReadinessCheck
}

// NewRouter builds the root router with the middleware every route shares
// and mounts the given route groups.
func NewRouter(cfg RouterConfig, sessions middleware.SessionResolver, logger *slog.Logger, m *metrics.Metrics, groups ...Registrar) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	metricsHandler := cfg.MetricsHandler
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}

	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.WithClock(clock))
	r.Use(middleware.Logger(logger, m))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/readyz", readyz(cfg.Readiness, logger))
	r.Method(http.MethodGet, "/metrics", metricsHandler)

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(timeout))
		r.Use(middleware.ClientKey(cfg.SecureCookies))
		r.Use(middleware.LoadSession(sessions, logger))
		for _, g := range groups {
			g.Register(r)
		}
	})
	return r
}

const readinessTimeout = 2 * time.Second

// readyz runs every check and answers 503 naming the failing dependencies.
func readyz(checks map[string]ReadinessCheck, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		status := make(map[string]string, len(checks))
		ready := true
		for name, check := range checks {
			if err := check(ctx); err != nil {
				ready = false
				status[name] = "unavailable"
				logger.WarnContext(ctx, "readiness check failed", "dependency", name, "error", err)
				continue
			}
			status[name] = "ok"
		}
		code := http.StatusOK
		if !ready {
			code = http.StatusServiceUnavailable
		}
		httputil.WriteJSON(w, code, map[string]any{"ready": ready, "checks": status})
	}
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		if err == io.EOF {
			return dErrors.New(dErrors.CodeBadRequest, "request body required")
		}
		return dErrors.New(dErrors.CodeBadRequest, "invalid request body")
	}
	return nil
}
