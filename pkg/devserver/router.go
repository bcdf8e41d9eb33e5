package devserver

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lhorie/fusion-cli/internal/logger"
	"github.com/lhorie/fusion-cli/pkg/metrics"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// The router is configured with:
//   - Request ID middleware for request tracking
//   - Real IP extraction for proper client identification
//   - Custom request logging using the internal logger
//   - Panic recovery to prevent server crashes
//   - Request timeout to prevent hung requests
//
// Routes:
//   - GET /chunks/{id} - Request a chunk and wait for it to settle
//   - POST /chunks/{id}/error - Report an external load failure
//   - GET /manifest - Current build manifest
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /metrics - Prometheus metrics (when enabled)
func NewRouter(h *Handlers, timeout time.Duration) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Route("/chunks", func(r chi.Router) {
		r.Get("/{id}", h.GetChunk)
		r.Post("/{id}/error", h.ReportChunkError)
	})

	r.Get("/manifest", h.GetManifest)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.Liveness)
		r.Get("/ready", h.Readiness)
	})

	if metrics.IsEnabled() {
		r.Get("/metrics", promhttp.HandlerFor(
			metrics.GetRegistry(),
			promhttp.HandlerOpts{},
		).ServeHTTP)
	}

	// Root redirect to health for convenience
	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	return r
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It stashes a LogContext carrying the request id into the request context,
// so downstream handlers log through the *Ctx functions and their lines
// carry the same request_id without threading it by hand.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lc := logger.NewLogContext()
		lc.RequestID = middleware.GetReqID(r.Context())

		ctx := logger.WithContext(r.Context(), lc)
		r = r.WithContext(ctx)

		logger.DebugCtx(ctx, "request started",
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyRemote, r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logger.InfoCtx(ctx, "request completed",
			logger.KeyMethod, r.Method,
			logger.KeyPath, r.URL.Path,
			logger.KeyStatus, ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, lc.DurationMs(),
		)
	})
}
