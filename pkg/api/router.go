package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/modelcached/modelcached/internal/logger"
	"github.com/modelcached/modelcached/pkg/api/auth"
	"github.com/modelcached/modelcached/pkg/api/handlers"
	"github.com/modelcached/modelcached/pkg/api/middleware"
	cpruntime "github.com/modelcached/modelcached/pkg/controlplane/runtime"
	cpstore "github.com/modelcached/modelcached/pkg/controlplane/store"
	"github.com/modelcached/modelcached/pkg/store"
)

// RouterConfig holds everything the router needs to build its handlers.
type RouterConfig struct {
	Store      cpstore.Store
	Manager    *cpruntime.Manager
	Remote     store.Store
	JWTService *auth.JWTService

	// MaxPayloadBytes caps invocation request bodies. Zero means no cap.
	MaxPayloadBytes int64

	// MaxArtifactBytes caps model publish bodies. Zero means no cap.
	MaxArtifactBytes int64

	// RequestTimeout bounds total request processing time.
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP router.
//
// The invocation route is the data plane and carries no authentication; the
// admin surface (endpoints, models, stats) requires a valid admin access
// token.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		r.Use(chimiddleware.Timeout(cfg.RequestTimeout))
	}

	healthHandler := handlers.NewHealthHandler(cfg.Store, cfg.Manager, cfg.Remote)
	invokeHandler := handlers.NewInvokeHandler(cfg.Manager, cfg.MaxPayloadBytes)
	endpointHandler := handlers.NewEndpointHandler(cfg.Store, cfg.Manager)
	modelHandler := handlers.NewModelHandler(cfg.Remote, cfg.MaxArtifactBytes)
	authHandler := handlers.NewAuthHandler(cfg.JWTService)

	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
		r.Get("/stores", healthHandler.Stores)
	})

	r.Route("/v1", func(r chi.Router) {
		// Data plane: unauthenticated invocation route.
		r.Post("/endpoints/{endpoint}/invocations", invokeHandler.Invoke)

		r.Post("/auth/refresh", authHandler.Refresh)

		// Admin surface.
		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTAuth(cfg.JWTService))
			r.Use(middleware.RequireAdmin())

			r.Get("/endpoints", endpointHandler.List)
			r.Post("/endpoints", endpointHandler.Create)
			r.Get("/endpoints/{endpoint}", endpointHandler.Get)
			r.Put("/endpoints/{endpoint}", endpointHandler.Update)
			r.Delete("/endpoints/{endpoint}", endpointHandler.Delete)
			r.Get("/endpoints/{endpoint}/models", endpointHandler.Models)
			r.Get("/endpoints/{endpoint}/stats", endpointHandler.Stats)
			r.Get("/stats", endpointHandler.ListStats)

			r.Post("/models", modelHandler.Publish)
			r.Get("/models", modelHandler.List)
		})
	})

	return r
}

// isHealthPath reports whether the path is a health probe. Probes fire every
// few seconds and would drown the request log.
func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs one line per request with method, path, status, and
// duration. Health probes are logged at debug level only.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		fields := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", chimiddleware.GetReqID(r.Context()),
			"remote", r.RemoteAddr,
		}

		if isHealthPath(r.URL.Path) {
			logger.Debug("http request", fields...)
			return
		}
		logger.Info("http request", fields...)
	})
}
