// Package handler exposes the inventory HTTP API.
package handler

import (
	"net/http"
	"time"

	"adops_backend/internal/inventory/repository"
	"adops_backend/internal/inventory/service"
	"adops_backend/internal/inventory/transport"
	"adops_backend/internal/tenant"
	"adops_backend/platform/httpkit"
	"adops_backend/platform/logger"
	"adops_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type Handler struct {
	reservations *service.ReservationService
	alerts       *service.AlertService
	resolver     *tenant.Resolver
	validate     *validator.Validator
	log          *logger.Logger
}

func New(
	reservations *service.ReservationService,
	alerts *service.AlertService,
	resolver *tenant.Resolver,
	validate *validator.Validator,
	log *logger.Logger,
) *Handler {
	return &Handler{
		reservations: reservations,
		alerts:       alerts,
		resolver:     resolver,
		validate:     validate,
		log:          log,
	}
}

// scope resolves the caller's tenant scope or writes the error response.
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

// CreateReservation places a hold on ad-slot capacity.
// POST /api/v1/reservations
func (h *Handler) CreateReservation(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	var req transport.CreateReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	result, err := h.reservations.Hold(c.Request.Context(), scope, service.HoldParams{
		ShowID:     req.ShowID,
		EpisodeID:  req.EpisodeID,
		Placement:  repository.Placement(req.Placement),
		CampaignID: req.CampaignID,
		ScheduleID: req.ScheduleID,
		Quantity:   req.Quantity,
		TTL:        time.Duration(req.TTLHours) * time.Hour,
	})
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.HoldResponse{
		Reservation: transport.FromReservation(result.Reservation),
		Remaining:   result.Counts.Available(),
		Reused:      result.Reused,
	}
	if result.Reused {
		httpkit.OK(c, resp)
		return
	}
	httpkit.Created(c, resp)
}

// GetReservation returns one reservation.
// GET /api/v1/reservations/:id
func (h *Handler) GetReservation(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	res, err := h.reservations.GetReservation(c.Request.Context(), scope, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromReservation(res))
}

// ConfirmReservation turns a hold into a booked slot.
// POST /api/v1/reservations/:id/confirm
func (h *Handler) ConfirmReservation(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	res, err := h.reservations.Confirm(c.Request.Context(), scope, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromReservation(res))
}

// ReleaseReservation returns a hold's capacity to the pool.
// POST /api/v1/reservations/:id/release
func (h *Handler) ReleaseReservation(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req transport.ReleaseReservationRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
			return
		}
	}

	res, err := h.reservations.Release(c.Request.Context(), scope, id, req.Reason)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromReservation(res))
}

// ExtendReservation pushes a hold's expiry out.
// POST /api/v1/reservations/:id/extend
func (h *Handler) ExtendReservation(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req transport.ExtendReservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	res, err := h.reservations.Extend(c.Request.Context(), scope, id, time.Duration(req.TTLHours)*time.Hour)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromReservation(res))
}

// ListCampaignReservations returns a campaign's reservations.
// GET /api/v1/campaigns/:id/reservations
func (h *Handler) ListCampaignReservations(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	campaignID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	rows, err := h.reservations.ListByCampaign(c.Request.Context(), scope, campaignID)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]transport.ReservationResponse, 0, len(rows))
	for _, r := range rows {
		out = append(out, transport.FromReservation(r))
	}
	httpkit.OK(c, out)
}

// GetEpisodeInventory returns the counter snapshot for every placement of an
// episode.
// GET /api/v1/episodes/:id/inventory
func (h *Handler) GetEpisodeInventory(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	episodeID, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	snapshot, err := h.reservations.Snapshot(c.Request.Context(), scope, episodeID)
	if httpkit.HandleError(c, err) {
		return
	}

	resp := transport.EpisodeInventoryResponse{
		EpisodeID:  episodeID,
		Placements: make(map[string]transport.PlacementCounts, len(snapshot)),
	}
	for placement, counts := range snapshot {
		resp.Placements[string(placement)] = transport.FromCounts(counts)
	}
	httpkit.OK(c, resp)
}

// ListAlerts returns alerts filtered by status, severity and type.
// GET /api/v1/inventory/alerts
func (h *Handler) ListAlerts(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	var filter repository.AlertFilter
	if v := c.Query("status"); v != "" {
		s := repository.AlertStatus(v)
		filter.Status = &s
	}
	if v := c.Query("severity"); v != "" {
		s := repository.AlertSeverity(v)
		filter.Severity = &s
	}
	if v := c.Query("type"); v != "" {
		s := repository.AlertType(v)
		filter.Type = &s
	}

	rows, err := h.alerts.List(c.Request.Context(), scope, filter)
	if httpkit.HandleError(c, err) {
		return
	}
	out := make([]transport.AlertResponse, 0, len(rows))
	for _, a := range rows {
		out = append(out, transport.FromAlert(a))
	}
	httpkit.OK(c, out)
}

// GetAlertSummary aggregates open alerts for dashboards.
// GET /api/v1/inventory/alerts/summary
func (h *Handler) GetAlertSummary(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	summary, err := h.alerts.Summary(c.Request.Context(), scope)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, summary)
}

// AcknowledgeAlert moves an active alert to acknowledged.
// POST /api/v1/inventory/alerts/:id/acknowledge
func (h *Handler) AcknowledgeAlert(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	alert, err := h.alerts.Acknowledge(c.Request.Context(), scope, id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromAlert(alert))
}

// ResolveAlert closes an alert with a note.
// POST /api/v1/inventory/alerts/:id/resolve
func (h *Handler) ResolveAlert(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}
	id, ok := pathUUID(c, "id")
	if !ok {
		return
	}

	var req transport.ResolveAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	alert, err := h.alerts.Resolve(c.Request.Context(), scope, id, req.Note)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromAlert(alert))
}

// UpdateAlert transitions an alert through the action named in the body.
// PUT /api/v1/inventory/alerts
func (h *Handler) UpdateAlert(c *gin.Context) {
	scope, ok := h.scope(c)
	if !ok {
		return
	}

	var req transport.AlertActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	var (
		alert repository.Alert
		err   error
	)
	switch req.Action {
	case "acknowledge":
		alert, err = h.alerts.Acknowledge(c.Request.Context(), scope, req.AlertID)
	case "resolve":
		alert, err = h.alerts.Resolve(c.Request.Context(), scope, req.AlertID, req.Resolution)
	}
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.FromAlert(alert))
}

// Recount recomputes one counter from its reservation rows, optionally
// repairing the cache. Admin only; cross-tenant use is audit logged.
// POST /api/v1/admin/inventory/recount
func (h *Handler) Recount(c *gin.Context) {
	var req transport.RecountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid request body", nil)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	scope, err := h.resolver.ResolveFor(c.Request.Context(), httpkit.GetIdentity(c), req.TenantID, "inventory.recount")
	if httpkit.HandleError(c, err) {
		return
	}

	result, err := h.reservations.Recount(c.Request.Context(), scope, req.EpisodeID, repository.Placement(req.Placement), req.Repair)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, transport.RecountResponse{
		Cached:   transport.FromCounts(result.Cached),
		Actual:   transport.FromCounts(result.Actual),
		Drifted:  result.Drifted,
		Repaired: result.Repaired,
	})
}
