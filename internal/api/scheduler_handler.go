package api

import (
	"log/slog"
	"net/http"

	"github.com/phrazzld/lexis-api/internal/api/shared"
	"github.com/phrazzld/lexis-api/internal/service"
)

// SchedulerHandler serves the authenticated user's scheduler configuration.
type SchedulerHandler struct {
	configs service.SchedulerConfigService
	logger  *slog.Logger
}

// NewSchedulerHandler creates a new SchedulerHandler
func NewSchedulerHandler(configs service.SchedulerConfigService, logger *slog.Logger) *SchedulerHandler {
	if configs == nil {
		panic("scheduler config service cannot be nil for SchedulerHandler")
	}
	if logger == nil {
		panic("logger cannot be nil for SchedulerHandler")
	}
	return &SchedulerHandler{
		configs: configs,
		logger:  logger.With(slog.String("component", "scheduler_handler")),
	}
}

// GetConfig handles GET /api/users/me/scheduler.
func (h *SchedulerHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, logFromRequest(r, h.logger))
	if !ok {
		return
	}

	cfg, err := h.configs.Get(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to load scheduler configuration")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, schedulerConfigToResponse(cfg))
}

// UpdateConfig handles PUT /api/users/me/scheduler.
// Existing review states are not rescheduled by a configuration change.
func (h *SchedulerHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, logFromRequest(r, h.logger))
	if !ok {
		return
	}

	var req SchedulerConfigRequest
	if err := shared.DecodeJSON(w, r, &req); err != nil {
		shared.RespondWithErrorAndLog(w, r, http.StatusBadRequest, "Invalid request format", err)
		return
	}
	if err := shared.ValidateRequest(&req); err != nil {
		HandleAPIError(w, r, err, "")
		return
	}

	cfg, err := h.configs.Update(r.Context(), userID, req.toServiceUpdate())
	if err != nil {
		HandleAPIError(w, r, err, "Failed to update scheduler configuration")
		return
	}
	shared.RespondWithJSON(w, r, http.StatusOK, schedulerConfigToResponse(cfg))
}

// Provision handles POST /api/users/me.
// It creates the scheduler profile of a newly authenticated user with the
// default configuration; 201 when created, 200 when it already existed.
func (h *SchedulerHandler) Provision(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r, logFromRequest(r, h.logger))
	if !ok {
		return
	}

	cfg, created, err := h.configs.Provision(r.Context(), userID)
	if err != nil {
		HandleAPIError(w, r, err, "Failed to provision user")
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	shared.RespondWithJSON(w, r, status, ProvisionResponse{
		UserID:    userID,
		Created:   created,
		Scheduler: schedulerConfigToResponse(cfg),
	})
}
