// Package handler provides HTTP handlers for the airstat API.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/airstat/airstat/internal/api/models"
	"github.com/airstat/airstat/internal/api/response"
	"github.com/airstat/airstat/internal/provider/resilience"
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// OpsConfig holds the dependencies of the operational endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Store is the offline payload store checked by readiness.
	Store Pinger

	// Registry tracks upstream provider health. Default: resilience.GlobalRegistry.
	Registry *resilience.Registry

	// PingTimeout bounds each dependency check (default: 2 seconds).
	PingTimeout time.Duration

	// Clock stamps responses (default: time.Now).
	Clock func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	version     string
	buildTime   string
	store       Pinger
	registry    *resilience.Registry
	pingTimeout time.Duration
	clock       func() time.Time
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	registry := cfg.Registry
	if registry == nil {
		registry = resilience.GlobalRegistry
	}
	pingTimeout := cfg.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 2 * time.Second
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &OpsHandler{
		version:     cfg.Version,
		buildTime:   cfg.BuildTime,
		store:       cfg.Store,
		registry:    registry,
		pingTimeout: pingTimeout,
		clock:       clock,
	}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock()),
		Details: map[string]interface{}{
			"version":   h.version,
			"buildTime": h.buildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready. The service is ready when the
// offline store answers; an unreachable upstream only degrades it.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.clock()),
	}

	if err := h.pingStore(r.Context()); err != nil {
		health.Status = models.HealthStatusFail
		health.Details = map[string]interface{}{"offlineStore": err.Error()}
		response.JSON(w, r, http.StatusServiceUnavailable, health)
		return
	}

	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:    models.HealthStatusOK,
		Time:      models.Timestamp(h.clock()),
		Version:   h.version,
		Providers: []models.ProviderStatus{},
	}

	store := models.SubsystemStatus{Name: "offline-store", Status: models.HealthStatusOK}
	if err := h.pingStore(r.Context()); err != nil {
		detail := err.Error()
		store.Status = models.HealthStatusFail
		store.Detail = &detail
		status.Status = models.HealthStatusFail
	}
	status.Subsystems = []models.SubsystemStatus{store}

	for _, health := range h.registry.GetAllHealth() {
		provider := providerStatus(health)
		if provider.Status != models.HealthStatusOK && status.Status == models.HealthStatusOK {
			// Offline data still serves requests while a provider is down.
			status.Status = models.HealthStatusDegraded
		}
		status.Providers = append(status.Providers, provider)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func (h *OpsHandler) pingStore(ctx context.Context) error {
	if h.store == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, h.pingTimeout)
	defer cancel()
	return h.store.Ping(ctx)
}

func providerStatus(health *resilience.ProviderHealth) models.ProviderStatus {
	status := models.ProviderStatus{
		Provider:     health.Name,
		Status:       models.HealthStatusOK,
		CircuitState: health.CircuitState.String(),
	}

	switch {
	case health.IsUnhealthy():
		status.Status = models.HealthStatusFail
	case health.IsDegraded():
		status.Status = models.HealthStatusDegraded
	}

	if health.LastSuccessAt != nil {
		status.LastSuccessAt = models.NewTimestamp(*health.LastSuccessAt)
	}
	if health.LastFailureAt != nil {
		status.LastFailureAt = models.NewTimestamp(*health.LastFailureAt)
	}
	if health.LastError != "" {
		msg := health.LastError
		status.Message = &msg
	}
	return status
}
