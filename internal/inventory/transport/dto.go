// Package transport defines request and response shapes for the inventory
// HTTP API.
package transport

import (
	"encoding/json"
	"time"

	"adops_backend/internal/inventory/repository"

	"github.com/google/uuid"
)

// CreateReservationRequest places a hold on ad-slot capacity.
type CreateReservationRequest struct {
	ShowID     uuid.UUID  `json:"showId" validate:"required"`
	EpisodeID  uuid.UUID  `json:"episodeId" validate:"required"`
	Placement  string     `json:"placement" validate:"required,oneof=pre_roll mid_roll post_roll"`
	CampaignID uuid.UUID  `json:"campaignId" validate:"required"`
	ScheduleID *uuid.UUID `json:"scheduleId,omitempty"`
	Quantity   int        `json:"quantity" validate:"required,min=1,max=50"`
	// TTLHours overrides the default hold lifetime when positive.
	TTLHours int `json:"ttlHours,omitempty" validate:"omitempty,min=1,max=720"`
}

// ReleaseReservationRequest optionally carries the release reason.
type ReleaseReservationRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

// ExtendReservationRequest pushes a hold's expiry out.
type ExtendReservationRequest struct {
	TTLHours int `json:"ttlHours" validate:"required,min=1,max=720"`
}

// ReservationResponse is the wire shape of a reservation.
type ReservationResponse struct {
	ID         uuid.UUID  `json:"id"`
	ShowID     uuid.UUID  `json:"showId"`
	EpisodeID  uuid.UUID  `json:"episodeId"`
	Placement  string     `json:"placement"`
	CampaignID uuid.UUID  `json:"campaignId"`
	ScheduleID *uuid.UUID `json:"scheduleId,omitempty"`
	Quantity   int        `json:"quantity"`
	Status     string     `json:"status"`
	ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}

// HoldResponse wraps a reservation with the counter snapshot it left behind.
type HoldResponse struct {
	Reservation ReservationResponse `json:"reservation"`
	Remaining   int                 `json:"remaining"`
	Reused      bool                `json:"reused"`
}

// PlacementCounts is the counter snapshot for one placement.
type PlacementCounts struct {
	TotalSlots    int `json:"totalSlots"`
	ReservedSlots int `json:"reservedSlots"`
	BookedSlots   int `json:"bookedSlots"`
	Available     int `json:"available"`
}

// EpisodeInventoryResponse is the per-placement snapshot of an episode.
type EpisodeInventoryResponse struct {
	EpisodeID  uuid.UUID                  `json:"episodeId"`
	Placements map[string]PlacementCounts `json:"placements"`
}

// AlertResponse is the wire shape of an inventory alert.
type AlertResponse struct {
	ID             uuid.UUID       `json:"id"`
	AlertType      string          `json:"alertType"`
	Severity       string          `json:"severity"`
	EpisodeID      *uuid.UUID      `json:"episodeId,omitempty"`
	Placement      *string         `json:"placement,omitempty"`
	AffectedOrders []uuid.UUID     `json:"affectedOrders,omitempty"`
	Details        json.RawMessage `json:"details,omitempty"`
	Status         string          `json:"status"`
	ResolutionNote *string         `json:"resolutionNote,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ResolveAlertRequest closes an alert with a note.
type ResolveAlertRequest struct {
	Note string `json:"note" validate:"required,max=1000"`
}

// AlertActionRequest is the single-endpoint alert transition form.
type AlertActionRequest struct {
	AlertID    uuid.UUID `json:"alertId" validate:"required"`
	Action     string    `json:"action" validate:"required,oneof=acknowledge resolve"`
	Resolution string    `json:"resolution" validate:"required_if=Action resolve,max=1000"`
}

// RecountRequest triggers an admin recount of one counter row.
type RecountRequest struct {
	TenantID  uuid.UUID `json:"tenantId" validate:"required"`
	EpisodeID uuid.UUID `json:"episodeId" validate:"required"`
	Placement string    `json:"placement" validate:"required,oneof=pre_roll mid_roll post_roll"`
	Repair    bool      `json:"repair"`
}

// RecountResponse reports cached versus recomputed counters.
type RecountResponse struct {
	Cached   PlacementCounts `json:"cached"`
	Actual   PlacementCounts `json:"actual"`
	Drifted  bool            `json:"drifted"`
	Repaired bool            `json:"repaired"`
}

// FromReservation converts a repository row to its wire shape.
func FromReservation(r repository.Reservation) ReservationResponse {
	return ReservationResponse{
		ID:         r.ID,
		ShowID:     r.ShowID,
		EpisodeID:  r.EpisodeID,
		Placement:  string(r.Placement),
		CampaignID: r.CampaignID,
		ScheduleID: r.ScheduleID,
		Quantity:   r.Quantity,
		Status:     string(r.Status),
		ExpiresAt:  r.ExpiresAt,
		CreatedAt:  r.CreatedAt,
	}
}

// FromCounts converts a counter snapshot to its wire shape.
func FromCounts(c repository.Counts) PlacementCounts {
	return PlacementCounts{
		TotalSlots:    c.TotalSlots,
		ReservedSlots: c.ReservedSlots,
		BookedSlots:   c.BookedSlots,
		Available:     c.Available(),
	}
}

// FromAlert converts an alert row to its wire shape.
func FromAlert(a repository.Alert) AlertResponse {
	var placement *string
	if a.Placement != nil {
		p := string(*a.Placement)
		placement = &p
	}
	return AlertResponse{
		ID:             a.ID,
		AlertType:      string(a.AlertType),
		Severity:       string(a.Severity),
		EpisodeID:      a.EpisodeID,
		Placement:      placement,
		AffectedOrders: a.AffectedOrders,
		Details:        a.Details,
		Status:         string(a.Status),
		ResolutionNote: a.ResolutionNote,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}
