package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"

	"github.com/nearair/nearair/internal/api/models"
	"github.com/nearair/nearair/internal/api/response"
	"github.com/nearair/nearair/internal/directory"
	"github.com/nearair/nearair/internal/orchestrator"
	"github.com/nearair/nearair/internal/provider/resilience"
)

// ProviderRegistry reports on the upstream clients.
type ProviderRegistry interface {
	Snapshot() []resilience.Health
}

// CacheInspector reports on the directory cache.
type CacheInspector interface {
	Status(ctx context.Context) directory.Status
}

// OpsConfig configures an OpsHandler. Nil collaborators are left out of
// the status report.
type OpsConfig struct {
	Version    string
	BuildTime  string
	Controller Controller
	Registry   ProviderRegistry
	Cache      CacheInspector
	Now        func() time.Time
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(h.cfg.Now()),
		Details: map[string]any{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
// The overall status is the worst of its parts.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(h.cfg.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.cfg.Controller != nil {
		status.Subsystems = append(status.Subsystems, cycleStatus(h.cfg.Controller.State()))
	}
	if h.cfg.Cache != nil {
		status.Subsystems = append(status.Subsystems, cacheStatus(h.cfg.Cache.Status(r.Context())))
	}
	if h.cfg.Registry != nil {
		for _, health := range h.cfg.Registry.Snapshot() {
			status.Providers = append(status.Providers, providerStatus(health))
		}
	}

	for _, s := range status.Subsystems {
		status.Status = status.Status.Worse(s.Status)
	}
	for _, p := range status.Providers {
		status.Status = status.Status.Worse(p.Status)
	}

	response.JSON(w, r, http.StatusOK, status)
}

func cycleStatus(s orchestrator.State) models.SubsystemStatus {
	detail := string(s.Phase)
	out := models.SubsystemStatus{Name: "cycle", Status: models.HealthStatusOK, Detail: &detail}
	if s.Phase.Halted() {
		out.Status = models.HealthStatusDegraded
	}
	return out
}

func cacheStatus(s directory.Status) models.SubsystemStatus {
	out := models.SubsystemStatus{Name: "directory-cache", Status: models.HealthStatusOK}
	var detail string
	switch {
	case s.Valid:
		detail = "valid until " + s.ExpiresAt.UTC().Format(time.RFC3339)
	case !s.Present:
		detail = "empty"
	default:
		detail = s.Reason
		out.Status = models.HealthStatusDegraded
	}
	out.Detail = &detail
	return out
}

func providerStatus(h resilience.Health) models.ProviderStatus {
	out := models.ProviderStatus{
		Provider:      h.Name,
		Status:        models.HealthStatusOK,
		CircuitState:  h.State,
		Requests:      h.Requests,
		Failures:      h.Failures,
		LastSuccessAt: timestampPtr(h.LastSuccessAt),
		LastFailureAt: timestampPtr(h.LastFailureAt),
	}
	switch h.State {
	case gobreaker.StateOpen.String():
		out.Status = models.HealthStatusFail
	case gobreaker.StateHalfOpen.String():
		out.Status = models.HealthStatusDegraded
	}
	if h.LastError != "" {
		msg := h.LastError
		out.Message = &msg
	}
	return out
}

func timestampPtr(t *time.Time) *models.Timestamp {
	if t == nil {
		return nil
	}
	return models.NewTimestamp(*t)
}
