// Package main provides the entrypoint for the haulplan API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/haulplan/haulplan/internal/api"
	"github.com/haulplan/haulplan/internal/api/handler"
	"github.com/haulplan/haulplan/internal/api/middleware"
	"github.com/haulplan/haulplan/internal/auth"
	"github.com/haulplan/haulplan/internal/database"
	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/mapview"
	"github.com/haulplan/haulplan/internal/planner"
	"github.com/haulplan/haulplan/internal/provider/resilience"
	"github.com/haulplan/haulplan/internal/provider/tomtom"
	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/internal/telemetry"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "haulplan-api"

	// A missing .env is normal outside local development.
	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting haulplan API")

	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryCfg := telemetry.ConfigFromEnv(serviceName, Version)
	tp, err := telemetry.Init(ctx, telemetryCfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if telemetryCfg.Enabled {
		log.Info().
			Str("otlp_endpoint", telemetryCfg.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize metrics")
	}
	providerMetrics, err := telemetry.NewProviderMetrics(telemetry.Meter(serviceName))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	dbConfig := database.ConfigFromEnv()
	pool, err := database.Connect(ctx, dbConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("database connected")

	if err := database.Migrate(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	// Geocode cache is optional; without Redis every lookup goes to the provider.
	var cache *geocoding.RedisCache
	redisClient, err := geocoding.NewRedisClientFromEnv()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid redis configuration")
	}
	if redisClient != nil {
		defer redisClient.Close()
		cache = geocoding.NewRedisCache(redisClient, 0)
		log.Info().Msg("geocode cache enabled")
	}

	registry := resilience.NewRegistry()
	tomtomCfg := tomtom.ConfigFromEnv()
	client := tomtom.NewClient(tomtom.ClientConfig{
		APIKey:   tomtomCfg.APIKey,
		BaseURL:  tomtomCfg.BaseURL,
		Timeout:  tomtomCfg.Timeout,
		Registry: registry,
		Metrics:  providerMetrics,
		Logger:   log,
	})
	if !client.Configured() {
		log.Warn().Msg("TOMTOM_API_KEY not set - geocoding falls back and route calculation is disabled")
	}

	geocodingCfg := geocoding.ServiceConfig{Provider: client, Logger: log}
	if cache != nil {
		geocodingCfg.Cache = cache
	}
	geocoder := geocoding.NewService(geocodingCfg)

	truck := routing.TruckSpecFromEnv()
	calculator := routing.NewCalculator(routing.CalculatorConfig{
		Provider: client,
		Truck:    truck,
		Logger:   log,
	})

	routes := route.NewService(route.ServiceConfig{
		Repo:   route.NewPostgresRepository(pool),
		Logger: log,
	})

	readinessCfg := mapview.ReadinessConfigFromEnv()
	readinessCfg.Prober = client
	readinessCfg.Configured = client.Configured()
	readinessCfg.Logger = log
	readiness := mapview.NewReadiness(readinessCfg)
	go readiness.Watch(ctx)

	routePlanner := planner.New(planner.Config{
		Geocoder:   geocoder,
		Calculator: calculator,
		Routes:     routes,
		Renderer:   mapview.NewRenderer(log),
		Scenes:     readiness,
		Logger:     log,
	})

	opsCfg := handler.OpsConfig{
		Version:           Version,
		BuildTime:         BuildTime,
		Database:          pool,
		Registry:          registry,
		Map:               readiness,
		RoutingConfigured: client.Configured(),
	}
	if cache != nil {
		opsCfg.Cache = cache
	}

	routerCfg := api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     metrics,
		Planner:     routePlanner,
		Truck:       truck,
		Ops:         opsCfg,
	}

	authCfg := auth.ConfigFromEnv()
	if authCfg.Enabled() {
		routerCfg.Auth = auth.NewJWTService(authCfg)
		log.Info().Str("issuer", authCfg.Issuer).Msg("bearer authentication enabled")
	} else {
		log.Warn().Msg("JWT_SIGNING_KEY not set - route endpoints are unauthenticated")
	}

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      api.NewRouter(routerCfg),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
		return
	}

	log.Info().Msg("server stopped")
}
