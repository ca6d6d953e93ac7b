// Package handler exposes the workflow HTTP API.
package handler

import (
	"net/http"

	"adops_backend/internal/tenant"
	"adops_backend/internal/workflow/domain"
	"adops_backend/internal/workflow/repository"
	"adops_backend/internal/workflow/service"
	"adops_backend/internal/workflow/transport"
	"adops_backend/platform/httpkit"
	"adops_backend/platform/logger"
	"adops_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	trigger  *service.TriggerService
	resolver *tenant.Resolver
	validate *validator.Validator
	log      *logger.Logger
}

func New(trigger *service.TriggerService, resolver *tenant.Resolver, validate *validator.Validator, log *logger.Logger) *Handler {
	return &Handler{trigger: trigger, resolver: resolver, validate: validate, log: log}
}

func (h *Handler) scope(c *gin.Context) (tenant.Scope, bool) {
	s, err := h.resolver.Resolve(c.Request.Context(), httpkit.GetIdentity(c))
	if httpkit.HandleError(c, err) {
		return tenant.Scope{}, false
	}
	return s, true
}

func pathUUID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid "+name, nil)
		return uuid.Nil, false
	}
	return id, true
}

// GetCampaign returns a campaign's workflow state.
// GET /api/v1/campaigns/:id
func (h *Handler) GetCampaign(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	campaign, err := h.trigger.GetCampaign(c.Request.Context(), scope, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromCampaign(campaign))
}

// SetStage applies a stage transition for real.
// POST /api/v1/campaigns/:id/stage
func (h *Handler) SetStage(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req transport.SetStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	result, err := h.trigger.Advance(c.Request.Context(), scope, id, domain.Stage(req.TargetStage), false)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// ApproveCampaign records the acting admin's sign-off on a campaign,
// unlocking the terminal stage when approvals are required.
// POST /api/v1/admin/campaigns/:id/approve
func (h *Handler) ApproveCampaign(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	campaign, err := h.trigger.ApproveCampaign(c.Request.Context(), scope, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromCampaign(campaign))
}

// ListOrderAdRequests returns the production requests for an order.
// GET /api/v1/orders/:id/ad-requests
func (h *Handler) ListOrderAdRequests(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	reqs, err := h.trigger.ListOrderAdRequests(c.Request.Context(), scope, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromAdRequests(reqs))
}

// Simulate computes the effect plan for a transition. With dryRun the call
// is pure; without it the transition is applied.
// POST /api/v1/workflow/simulate
func (h *Handler) Simulate(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	var req transport.SimulateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	result, err := h.trigger.Advance(c.Request.Context(), scope, req.CampaignID, domain.Stage(req.TargetStage), req.DryRun)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

// GetSettings returns the tenant's workflow settings.
// GET /api/v1/workflow/settings
func (h *Handler) GetSettings(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	settings, err := h.trigger.GetSettings(c.Request.Context(), scope)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromSettings(settings))
}

// UpdateSettings stores per-tenant workflow settings.
// PUT /api/v1/workflow/settings
func (h *Handler) UpdateSettings(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	var req transport.SettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	settings := repository.Settings{
		TenantID:         scope.TenantID(),
		HoldTTLHours:     req.HoldTTLHours,
		AutoReserve:      req.AutoReserve,
		ApprovalRequired: req.ApprovalRequired,
		StageSLAHours:    req.StageSLAHours,
	}
	if err := h.trigger.UpdateSettings(c.Request.Context(), scope, settings); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromSettings(settings))
}
