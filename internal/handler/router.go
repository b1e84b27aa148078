// Package handler provides the HTTP API of the stories service.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/prn-tf/mvstories/internal/auth"
	"github.com/prn-tf/mvstories/internal/metrics"
)

// Router handles HTTP routing for the stories API.
type Router struct {
	sessionHandler *SessionHandler
	storyHandler   *StoryHandler
	userHandler    *UserHandler
	validator      auth.TokenValidator
	allowedOrigins []string
	maxBodyBytes   int64
	maxUploadBytes int64
	metricsPath    string
	logger         zerolog.Logger
}

// RouterConfig contains configuration for the router.
type RouterConfig struct {
	SessionHandler *SessionHandler
	StoryHandler   *StoryHandler
	UserHandler    *UserHandler

	// Validator resolves bearer tokens for the auth middleware.
	Validator auth.TokenValidator

	// AllowedOrigins are the CORS origins of the web client.
	AllowedOrigins []string

	// MaxUploadBytes is the configured upload size. Request bodies may
	// exceed it by the base64 expansion of the content plus framing.
	MaxUploadBytes int64

	// MetricsPath serves Prometheus metrics when not empty.
	MetricsPath string

	Logger zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(config RouterConfig) *Router {
	return &Router{
		sessionHandler: config.SessionHandler,
		storyHandler:   config.StoryHandler,
		userHandler:    config.UserHandler,
		validator:      config.Validator,
		allowedOrigins: config.AllowedOrigins,
		maxBodyBytes:   config.MaxUploadBytes*4/3 + bodySlack,
		maxUploadBytes: config.MaxUploadBytes,
		metricsPath:    config.MetricsPath,
		logger:         config.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the main HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(rt.logger))
	r.Use(recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   rt.allowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "Accept"},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: true, Message: "Not found", StatusCode: http.StatusNotFound})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, ErrorResponse{
			Error:      true,
			Message:    "The method is not allowed for the requested URL",
			StatusCode: http.StatusMethodNotAllowed,
		})
	})

	// Health check (no auth)
	r.Get("/ready", rt.handleReady)
	if rt.metricsPath != "" {
		r.Handle(rt.metricsPath, promhttp.Handler())
	}

	requireAuth := auth.RequireAuth(rt.validator, writeAuthError)
	optionalAuth := auth.OptionalAuth(rt.validator, writeAuthError)
	bodyLimit := limitBody(rt.maxBodyBytes, rt.maxUploadBytes)

	r.With(requireAuth).Get("/api/userinfo", rt.userHandler.UserInfo)
	r.With(requireAuth).Get("/verify", rt.userHandler.Verify)

	r.Route("/api/session", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/", rt.sessionHandler.List)
		r.With(bodyLimit).Post("/", rt.sessionHandler.Create)
		r.Get("/{id}", rt.sessionHandler.Get)
		r.With(bodyLimit).Put("/{id}", rt.sessionHandler.Update)
		r.Delete("/{id}", rt.sessionHandler.Delete)
		r.Get("/{id}/data", rt.sessionHandler.Data)
	})

	r.Route("/api/story", func(r chi.Router) {
		r.With(optionalAuth).Get("/", rt.storyHandler.List)
		r.With(requireAuth, bodyLimit).Post("/", rt.storyHandler.Create)
		r.With(requireAuth, bodyLimit).Post("/mvsj", rt.storyHandler.CreateMVSJ)
		r.Get("/{id}", rt.storyHandler.Get)
		r.With(requireAuth, bodyLimit).Put("/{id}", rt.storyHandler.Update)
		r.With(requireAuth).Delete("/{id}", rt.storyHandler.Delete)
		r.Get("/{id}/data", rt.storyHandler.Data)
		r.Get("/{id}/format", rt.storyHandler.Format)
		r.Get("/{id}/session-data", rt.storyHandler.SessionData)
		r.Head("/{id}/session-data", rt.storyHandler.SessionData)
	})

	r.Route("/api/user", func(r chi.Router) {
		r.Use(requireAuth)
		r.Get("/quota", rt.userHandler.Quota)
		r.Delete("/delete-all", rt.userHandler.DeleteAll)
	})

	return r
}

// handleReady handles readiness probes.
func (rt *Router) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"message": "Service is ready",
	})
}
