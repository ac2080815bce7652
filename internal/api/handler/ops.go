package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/haulplan/haulplan/internal/api/models"
	"github.com/haulplan/haulplan/internal/api/response"
	"github.com/haulplan/haulplan/internal/provider/resilience"
)

const pingTimeout = 2 * time.Second

// Pinger checks a backing service.
type Pinger interface {
	Ping(ctx context.Context) error
}

// MapReadiness reports whether the map finished initializing.
type MapReadiness interface {
	Ready() bool
}

// OpsConfig holds the dependencies inspected by the ops endpoints. Nil fields are reported as
// not configured.
type OpsConfig struct {
	Version   string
	BuildTime string
	Database  Pinger
	Cache     Pinger
	Registry  *resilience.Registry
	Map       MapReadiness
	// RoutingConfigured is false when the provider API key is missing; planning then fails
	// and geocoding falls back.
	RoutingConfigured bool
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
	now func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg, now: time.Now}
}

// HealthCheck handles GET /v1/ops/health - liveness.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response.JSON(w, r, http.StatusOK, models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	})
}

// ReadinessCheck handles GET /v1/ops/ready. Only the database gates readiness.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{Status: models.HealthStatusOK, Time: models.Timestamp(h.now())}

	if err := ping(r.Context(), h.cfg.Database); err != nil {
		health.Status = models.HealthStatusFail
		health.Details = map[string]interface{}{"database": err.Error()}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - subsystem and provider status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:  models.HealthStatusOK,
		Version: h.cfg.Version,
		Time:    models.Timestamp(h.now()),
	}
	degrade := func(flag string) {
		if status.Status == models.HealthStatusOK {
			status.Status = models.HealthStatusDegraded
		}
		status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, flag)
	}

	db := subsystem("postgres", ping(r.Context(), h.cfg.Database))
	status.Subsystems = append(status.Subsystems, db)

	if h.cfg.Cache != nil {
		cache := subsystem("redis", ping(r.Context(), h.cfg.Cache))
		if cache.Status != models.HealthStatusOK {
			cache.Status = models.HealthStatusDegraded
			degrade("geocode_cache_unavailable")
		}
		status.Subsystems = append(status.Subsystems, cache)
	}

	mapStatus := models.SubsystemStatus{Name: "map", Status: models.HealthStatusOK}
	if h.cfg.Map == nil || !h.cfg.Map.Ready() {
		detail := "map not ready"
		mapStatus.Status = models.HealthStatusDegraded
		mapStatus.Detail = &detail
		degrade("map_unavailable")
	}
	status.Subsystems = append(status.Subsystems, mapStatus)

	if !h.cfg.RoutingConfigured {
		degrade("routing_not_configured")
	}

	status.Providers = []models.ProviderStatus{}
	if h.cfg.Registry != nil {
		for _, p := range h.cfg.Registry.Snapshot() {
			ps := models.ProviderStatus{
				Provider:      p.Name,
				Status:        providerHealth(p.Status()),
				CircuitState:  p.CircuitState.String(),
				LastSuccessAt: models.TimestampPtr(p.LastSuccessAt),
				LastFailureAt: models.TimestampPtr(p.LastFailureAt),
			}
			if p.LastError != "" {
				msg := p.LastError
				ps.Message = &msg
			}
			if p.CircuitState != gobreaker.StateClosed {
				degrade("provider_" + p.Name + "_" + string(p.Status()))
			}
			status.Providers = append(status.Providers, ps)
		}
	}

	if db.Status != models.HealthStatusOK {
		status.Status = models.HealthStatusFail
	}
	response.JSON(w, r, http.StatusOK, status)
}

func ping(ctx context.Context, p Pinger) error {
	if p == nil {
		return errNotConfigured
	}
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return p.Ping(ctx)
}

var errNotConfigured = errors.New("not configured")

func subsystem(name string, err error) models.SubsystemStatus {
	s := models.SubsystemStatus{Name: name, Status: models.HealthStatusOK}
	if err != nil {
		detail := err.Error()
		s.Status = models.HealthStatusFail
		s.Detail = &detail
	}
	return s
}

func providerHealth(s resilience.Status) models.HealthStatus {
	switch s {
	case resilience.StatusUnavailable:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}
