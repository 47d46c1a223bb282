// Package api serves the operator HTTP surface of a running tillsync daemon:
// queue status, entry inspection, retry and discard, and prometheus metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/bft-labs/tillsync/internal/app"
	"github.com/bft-labs/tillsync/internal/domain"
	"github.com/bft-labs/tillsync/internal/ports"
	"github.com/bft-labs/tillsync/pkg/log"
)

// QueueService is what the routes need from the application layer.
// *app.Service satisfies it.
type QueueService interface {
	Enqueue(ctx context.Context, task domain.SyncTask) (domain.QueuedOperation, error)
	Submit(ctx context.Context, task domain.SyncTask) (app.SubmitResult, error)
	Retry(ctx context.Context) (domain.DrainResult, error)
	RetryOperation(ctx context.Context, id string) (domain.QueuedOperation, error)
	Discard(ctx context.Context, id string) error
	Snapshot(ctx context.Context) (app.Snapshot, error)
	List(ctx context.Context) ([]domain.QueuedOperation, error)
	Get(ctx context.Context, id string) (domain.QueuedOperation, error)
}

var _ QueueService = (*app.Service)(nil)

// ServerOption configures the operator API router.
type ServerOption func(*serverConfig)

type serverConfig struct {
	logger      ports.Logger
	metrics     http.Handler
	middlewares []func(http.Handler) http.Handler
}

// WithLogger sets the request logger.
func WithLogger(logger ports.Logger) ServerOption {
	return func(cfg *serverConfig) { cfg.logger = logger }
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(cfg *serverConfig) { cfg.metrics = h }
}

// WithMiddlewares adds middleware to the router.
func WithMiddlewares(mw ...func(http.Handler) http.Handler) ServerOption {
	return func(cfg *serverConfig) {
		cfg.middlewares = append(cfg.middlewares, mw...)
	}
}

// NewServer builds the router.
func NewServer(svc QueueService, opts ...ServerOption) *chi.Mux {
	cfg := &serverConfig{logger: log.NewNoopLogger()}
	for _, opt := range opts {
		opt(cfg)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(loggingMiddleware(cfg.logger))
	for _, mw := range cfg.middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", healthz)
	if cfg.metrics != nil {
		r.Method(http.MethodGet, "/metrics", cfg.metrics)
	}
	r.Mount("/v1", Router(svc))
	return r
}

// NewHTTPServer wraps handler in an http.Server with conservative timeouts.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute, // POST /v1/queue/retry waits for a full drain
		IdleTimeout:       60 * time.Second,
	}
}

func healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

func loggingMiddleware(logger ports.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			logger.Debug("http request",
				log.String("method", r.Method),
				log.String("path", r.URL.Path),
				log.Int("status", ww.Status()),
				log.Duration("took", time.Since(start)),
				log.String("request_id", middleware.GetReqID(r.Context())),
			)
		})
	}
}
