// Package handler exposes the in-app notification HTTP API.
package handler

import (
	"net/http"
	"strconv"

	"adops_backend/internal/notification/service"
	"adops_backend/internal/notification/transport"
	"adops_backend/internal/tenant"
	"adops_backend/platform/httpkit"
	"adops_backend/platform/logger"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	notifications *service.NotificationService
	resolver      *tenant.Resolver
	log           *logger.Logger
}

func New(notifications *service.NotificationService, resolver *tenant.Resolver, log *logger.Logger) *Handler {
	return &Handler{notifications: notifications, resolver: resolver, log: log}
}

func (h *Handler) scope(c *gin.Context) (tenant.Scope, bool) {
	s, err := h.resolver.Resolve(c.Request.Context(), httpkit.GetIdentity(c))
	if httpkit.HandleError(c, err) {
		return tenant.Scope{}, false
	}
	return s, true
}

// List handles GET /notifications?unread=true&limit=50.
func (h *Handler) List(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	unreadOnly := c.Query("unread") == "true"
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid limit", nil)
			return
		}
		limit = n
	}

	items, err := h.notifications.List(c.Request.Context(), scope, unreadOnly, limit)
	if httpkit.HandleError(c, err) {
		return
	}
	unread, err := h.notifications.UnreadCount(c.Request.Context(), scope)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromNotifications(items, unread))
}

// MarkRead handles POST /notifications/:id/read.
func (h *Handler) MarkRead(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	if err := h.notifications.MarkRead(c.Request.Context(), scope, id); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"read": true})
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handler) MarkAllRead(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	updated, err := h.notifications.MarkAllRead(c.Request.Context(), scope)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"updated": updated})
}
