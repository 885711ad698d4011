// Package handler provides the HTTP API for Hoaxify.
package handler

import (
	"context"
	"net/http"
	"runtime"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/hoaxify/internal/i18n"
	"github.com/prn-tf/hoaxify/internal/metrics"
	"github.com/prn-tf/hoaxify/internal/service"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// BuildInfo describes the running binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"buildTime"`
	GoVersion string `json:"goVersion"`
}

// Router wires the API handlers and middleware.
type Router struct {
	userHandler *UserHandler
	translator  *i18n.Translator
	database    Pinger
	metrics     *metrics.Metrics
	build       BuildInfo
	apiPrefix   string
	maxBodySize int64
	logger      zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	Users      *service.UserService
	Translator *i18n.Translator
	Database   Pinger

	// Metrics is optional.
	Metrics *metrics.Metrics

	Build       BuildInfo
	APIPrefix   string
	MaxBodySize int64
	Logger      zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	if config.APIPrefix == "" {
		config.APIPrefix = "/api/1.0"
	}
	if config.Build.GoVersion == "" {
		config.Build.GoVersion = runtime.Version()
	}

	return &Router{
		userHandler: NewUserHandler(config.Users, config.Logger),
		translator:  config.Translator,
		database:    config.Database,
		metrics:     config.Metrics,
		build:       config.Build,
		apiPrefix:   config.APIPrefix,
		maxBodySize: config.MaxBodySize,
		logger:      config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(accessLog(rt.logger, rt.metrics))
	r.Use(middleware.Recoverer)
	r.Use(locale(rt.translator))
	r.Use(maxBody(rt.maxBodySize))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not_found", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method_not_allowed", nil)
	})

	// Health check (no auth)
	r.Get("/health", rt.handleHealth)
	r.Get("/version", rt.handleVersion)

	r.Route(rt.apiPrefix, rt.userHandler.RegisterRoutes)

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	if rt.database != nil {
		if err := rt.database.Ping(r.Context()); err != nil {
			rt.logger.Warn().Err(err).Msg("health check failed")
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleVersion reports build information.
func (rt *Router) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, rt.build)
}
