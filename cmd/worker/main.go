// Package main provides the entrypoint for the haulplan metrics backfill worker.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/haulplan/haulplan/internal/database"
	"github.com/haulplan/haulplan/internal/geocoding"
	"github.com/haulplan/haulplan/internal/mapview"
	"github.com/haulplan/haulplan/internal/planner"
	"github.com/haulplan/haulplan/internal/provider/resilience"
	"github.com/haulplan/haulplan/internal/provider/tomtom"
	"github.com/haulplan/haulplan/internal/route"
	"github.com/haulplan/haulplan/internal/routing"
	"github.com/haulplan/haulplan/internal/telemetry"
	"github.com/haulplan/haulplan/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "haulplan-worker"

	_ = godotenv.Load()

	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	log.Info().
		Str("build_time", BuildTime).
		Msg("starting haulplan worker")

	// The worker exposes a health endpoint for the container platform.
	port := os.Getenv("APP_PORT")
	if port == "" {
		port = "8080"
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.ConfigFromEnv(serviceName, Version))
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

	providerMetrics, err := telemetry.NewProviderMetrics(telemetry.Meter(serviceName))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize provider metrics")
	}

	pool, err := database.Connect(ctx, database.ConfigFromEnv())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	tomtomCfg := tomtom.ConfigFromEnv()
	client := tomtom.NewClient(tomtom.ClientConfig{
		APIKey:   tomtomCfg.APIKey,
		BaseURL:  tomtomCfg.BaseURL,
		Timeout:  tomtomCfg.Timeout,
		Registry: resilience.NewRegistry(),
		Metrics:  providerMetrics,
		Logger:   log,
	})
	if !client.Configured() {
		log.Warn().Msg("TOMTOM_API_KEY not set - backfill runs will fail")
	}

	routes := route.NewService(route.ServiceConfig{
		Repo:   route.NewPostgresRepository(pool),
		Logger: log,
	})

	// The backfill only recalculates from stored coordinates; the geocoder and map are unused.
	routePlanner := planner.New(planner.Config{
		Geocoder: geocoding.NewService(geocoding.ServiceConfig{Provider: client, Logger: log}),
		Calculator: routing.NewCalculator(routing.CalculatorConfig{
			Provider: client,
			Truck:    routing.TruckSpecFromEnv(),
			Logger:   log,
		}),
		Routes:   routes,
		Renderer: mapview.NewRenderer(log),
		Scenes:   mapview.NewReadiness(mapview.ReadinessConfig{Logger: log}),
		Logger:   log,
	})

	backfillCfg := worker.BackfillConfigFromEnv()
	backfill := worker.NewBackfillJob(worker.BackfillJobConfig{
		Config:  backfillCfg,
		Source:  routes,
		Planner: routePlanner,
		Logger:  log,
	})
	jobs := worker.NewJobs(backfill, client, log)

	go backfill.Loop(ctx)
	log.Info().
		Dur("interval", backfillCfg.Interval).
		Int("batch_size", backfillCfg.BatchSize).
		Int("concurrency", backfillCfg.Concurrency).
		Msg("backfill scheduled")

	pubsubSettings := worker.PubSubSettingsFromEnv()
	if pubsubSettings.Enabled() {
		handler, err := worker.NewPubSubHandler(ctx, worker.PubSubConfig{
			Settings: pubsubSettings,
			Jobs:     jobs,
			Logger:   log,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create pubsub handler")
		}
		defer handler.Close()

		go func() {
			if err := handler.Start(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		stats := backfill.Stats()
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"status":       "healthy",
			"version":      Version,
			"runs":         stats.Runs,
			"recalculated": stats.Recalculated,
			"failed":       stats.Failed,
		})
	})

	server := &http.Server{
		Addr:         ":" + port,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("health server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server forced to shutdown")
	}

	log.Info().Msg("worker stopped")
}
