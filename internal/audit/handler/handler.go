// Package handler exposes the reconciliation report endpoint.
package handler

import (
	"net/http"

	"adops_backend/internal/audit/service"
	"adops_backend/internal/tenant"
	"adops_backend/platform/httpkit"
	"adops_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	svc      *service.Service
	resolver *tenant.Resolver
	log      *logger.Logger
}

func New(svc *service.Service, resolver *tenant.Resolver, log *logger.Logger) *Handler {
	return &Handler{svc: svc, resolver: resolver, log: log}
}

// RunInventoryAudit runs a sweep on demand and returns the structured
// report. Without a tenantId query parameter it audits the caller's own
// tenant; with one, cross-tenant access is granted and audit logged.
// GET /api/v1/admin/audit/inventory
func (h *Handler) RunInventoryAudit(c *gin.Context) {
	identity := httpkit.GetIdentity(c)

	var scope tenant.Scope
	var err error
	if raw := c.Query("tenantId"); raw != "" {
		target, parseErr := uuid.Parse(raw)
		if parseErr != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid tenantId", nil)
			return
		}
		scope, err = h.resolver.ResolveFor(c.Request.Context(), identity, target, "audit.inventory")
	} else {
		scope, err = h.resolver.Resolve(c.Request.Context(), identity)
	}
	if httpkit.HandleError(c, err) {
		return
	}

	report, err := h.svc.RunSweep(c.Request.Context(), scope)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, report)
}
