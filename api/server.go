/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. Metrics:    In-flight gauge, request counter and latency histogram
  5. CORS:       The extension runs on the time table's origin

ROUTE GROUPS:
  /api/reconcile        Reconciliation
  /api/oauth/*          Authorization flow
  /healthz              Liveness
  /metrics              Prometheus scrape endpoint

SECURITY NOTE:
  The server is meant to listen on localhost for a single user. There is no
  authentication middleware; CORS limits which pages may call it.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/worktime-checker/obs"
)

// RouterOptions configures the router.
type RouterOptions struct {
	AllowedOrigins []string
	Metrics        *obs.Metrics
	Log            *zap.Logger
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(obs.OrNop(opts.Log)))
	r.Use(middleware.Recoverer)
	r.Use(opts.Metrics.Instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Health)
	r.Handle("/metrics", opts.Metrics.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/reconcile", h.Reconcile)

		// Authorization routes
		r.Route("/oauth", func(r chi.Router) {
			r.Post("/authorization", h.RegisterAuthorization)
			r.Get("/status", h.AuthorizationStatus)
			r.Delete("/credentials", h.DeleteCredentials)
		})
	})

	return r
}

// requestLogger logs one line per request through zap.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				log.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
