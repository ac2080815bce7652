// Package api provides the HTTP API of the route planning service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/haulplan/haulplan/internal/api/handler"
	"github.com/haulplan/haulplan/internal/api/middleware"
	"github.com/haulplan/haulplan/internal/api/response"
	"github.com/haulplan/haulplan/internal/routing"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics

	// Auth validates bearer tokens. Nil disables authentication.
	Auth middleware.TokenValidator

	Planner handler.RoutePlanner
	Truck   routing.TruckSpec
	Ops     handler.OpsConfig
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "haulplan-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware())
	}
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.RequireTLS)
	r.Use(middleware.ContentTypeJSON)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.NotFound(w, r, "no such endpoint")
	})
	r.MethodNotAllowed(response.MethodNotAllowed)

	opsHandler := handler.NewOpsHandler(cfg.Ops)
	metadataHandler := handler.NewMetadataHandler(cfg.Truck)
	routeHandler := handler.NewRouteHandler(cfg.Planner, cfg.Logger)

	authenticated := func(next http.Handler) http.Handler { return next }
	if cfg.Auth != nil {
		authenticated = middleware.Auth(cfg.Auth)
	}

	planningRateLimit := middleware.RateLimitByDriver(middleware.PlanningRateLimit)
	standardRateLimit := middleware.RateLimitByDriver(middleware.StandardRateLimit)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(authenticated).Get("/status", opsHandler.SystemStatus)
		})

		r.Route("/metadata", func(r chi.Router) {
			r.Use(middleware.RateLimitByIP(middleware.StandardRateLimit))
			r.Get("/truck-spec", metadataHandler.GetTruckSpec)
			r.Get("/enums", metadataHandler.GetEnums)
		})

		// Create and recalculate call the routing provider and get the tighter limit.
		r.Route("/routes", func(r chi.Router) {
			r.Use(authenticated)
			r.Use(middleware.RequireJSON)

			r.With(standardRateLimit).Get("/", routeHandler.ListRoutes)
			r.With(planningRateLimit).Post("/", routeHandler.CreateRoute)

			r.Group(func(r chi.Router) {
				r.Use(standardRateLimit)
				r.Get("/{id:[0-9]+}", routeHandler.GetRoute)
				r.Patch("/{id:[0-9]+}", routeHandler.UpdateRoute)
				r.Delete("/{id:[0-9]+}", routeHandler.DeleteRoute)
				r.Get("/{id:[0-9]+}/map", routeHandler.GetRouteMap)
			})
			r.With(planningRateLimit).Post("/{id:[0-9]+}:recalculate", routeHandler.RecalculateRoute)
		})
	})

	return r
}
