// Package api is the HTTP surface of gaiacurves: name resolution, batch
// retrieval, stored light curves and the run ledger.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gaiacurves/gaiacurves/internal/api/handlers"
	"github.com/gaiacurves/gaiacurves/internal/api/middleware"
	"github.com/gaiacurves/gaiacurves/internal/config"
	"github.com/gaiacurves/gaiacurves/internal/lightcurve"
	"github.com/gaiacurves/gaiacurves/internal/metrics"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Dependencies are the services the router exposes. Runs, Pool and Queue
// are nil when the run ledger is disabled; batches then run inside the
// request.
type Dependencies struct {
	Config   config.Config
	Logger   zerolog.Logger
	Build    BuildInfo
	Resolver lightcurve.Resolver
	Fetcher  handlers.BatchFetcher
	Queue    handlers.BatchQueue
	Runs     handlers.RunStore
	Pool     *pgxpool.Pool
}

// Router is the fully wrapped API handler.
type Router struct {
	Handler http.Handler
	limiter *middleware.RateLimiter
}

func (rt *Router) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rt.Handler.ServeHTTP(w, r)
}

// Close stops background work started by the router.
func (rt *Router) Close() {
	rt.limiter.Stop()
}

func NewRouter(deps Dependencies) *Router {
	cfg := deps.Config
	env := cfg.Environment

	health := handlers.NewHealthChecker(deps.Pool, cfg.Fetch.OutputDir, deps.Build.Version, deps.Build.GitCommit)
	resolve := handlers.NewResolveHandler(deps.Resolver, env)
	curves := handlers.NewCurvesHandler(deps.Fetcher, deps.Queue, cfg.Fetch.OutputDir, cfg.Fetch.Concurrency, cfg.Server.BatchTimeout, env)
	limiter := middleware.NewRateLimiter(cfg.Server.BatchesPerMinute, env)

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", health.Healthz())
	mux.Handle("GET /readyz", health.Readyz())
	mux.Handle("GET /version", VersionHandler(deps.Build))
	mux.Handle("GET /metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	mux.HandleFunc("GET /api/v1/resolve", resolve.Resolve)
	mux.Handle("POST /api/v1/curves", limiter.Middleware(
		middleware.RequestSize(middleware.DefaultMaxBodySize)(http.HandlerFunc(curves.Fetch)),
	))
	mux.HandleFunc("GET /api/v1/curves/{id}/{release}", curves.Download)

	if deps.Runs != nil {
		runs := handlers.NewRunsHandler(deps.Runs, env)
		mux.HandleFunc("GET /api/v1/runs", runs.List)
		mux.HandleFunc("GET /api/v1/runs/{id}", runs.Get)
	}

	// Outermost first: correlation, tracing, request log, metrics, mux.
	var handler http.Handler = mux
	handler = metrics.HTTPMiddleware(handler)
	handler = middleware.RequestLogging(deps.Logger)(handler)
	handler = middleware.Tracing(handler)
	handler = middleware.CorrelationID(deps.Logger)(handler)

	return &Router{Handler: handler, limiter: limiter}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
