// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	platformevents "adops_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = platformevents.Event
	Bus         = platformevents.Bus
	Handler     = platformevents.Handler
	HandlerFunc = platformevents.HandlerFunc
	BaseEvent   = platformevents.BaseEvent
)

// Re-export platform functions
var NewBaseEvent = platformevents.NewBaseEvent

// =============================================================================
// Reservation Domain Events
// =============================================================================

// ReservationCreated is published when a hold on ad-slot capacity is placed.
type ReservationCreated struct {
	BaseEvent
	TenantID      uuid.UUID `json:"tenantId"`
	ReservationID uuid.UUID `json:"reservationId"`
	CampaignID    uuid.UUID `json:"campaignId"`
	EpisodeID     uuid.UUID `json:"episodeId"`
	Placement     string    `json:"placement"`
	Quantity      int       `json:"quantity"`
}

func (e ReservationCreated) EventName() string { return "inventory.reservation.created" }

// ReservationConfirmed is published when a hold becomes a booked slot.
type ReservationConfirmed struct {
	BaseEvent
	TenantID      uuid.UUID `json:"tenantId"`
	ReservationID uuid.UUID `json:"reservationId"`
	CampaignID    uuid.UUID `json:"campaignId"`
	EpisodeID     uuid.UUID `json:"episodeId"`
	Placement     string    `json:"placement"`
	Quantity      int       `json:"quantity"`
}

func (e ReservationConfirmed) EventName() string { return "inventory.reservation.confirmed" }

// ReservationReleased is published when a hold is released and its capacity
// returned to the pool.
type ReservationReleased struct {
	BaseEvent
	TenantID      uuid.UUID `json:"tenantId"`
	ReservationID uuid.UUID `json:"reservationId"`
	CampaignID    uuid.UUID `json:"campaignId"`
	EpisodeID     uuid.UUID `json:"episodeId"`
	Placement     string    `json:"placement"`
	Quantity      int       `json:"quantity"`
	Reason        string    `json:"reason,omitempty"`
}

func (e ReservationReleased) EventName() string { return "inventory.reservation.released" }

// ReservationExpired is published by the reconciliation sweep when a hold's
// TTL lapses.
type ReservationExpired struct {
	BaseEvent
	TenantID      uuid.UUID `json:"tenantId"`
	ReservationID uuid.UUID `json:"reservationId"`
	CampaignID    uuid.UUID `json:"campaignId"`
	EpisodeID     uuid.UUID `json:"episodeId"`
	Placement     string    `json:"placement"`
	Quantity      int       `json:"quantity"`
}

func (e ReservationExpired) EventName() string { return "inventory.reservation.expired" }

// =============================================================================
// Alert Domain Events
// =============================================================================

// InventoryAlertCreated is published when the reconciliation job or a
// degraded capacity check files a new alert. Notification fan-out subscribes
// to this; delivery failures never block the alert write.
type InventoryAlertCreated struct {
	BaseEvent
	TenantID       uuid.UUID   `json:"tenantId"`
	AlertID        uuid.UUID   `json:"alertId"`
	AlertType      string      `json:"alertType"`
	Severity       string      `json:"severity"`
	EpisodeID      *uuid.UUID  `json:"episodeId,omitempty"`
	AffectedOrders []uuid.UUID `json:"affectedOrders,omitempty"`
}

func (e InventoryAlertCreated) EventName() string { return "inventory.alert.created" }

// =============================================================================
// Workflow Domain Events
// =============================================================================

// CampaignStageChanged is published after the stage trigger applies a
// transition (never on dry runs).
type CampaignStageChanged struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	CampaignID uuid.UUID `json:"campaignId"`
	FromStage  int       `json:"fromStage"`
	ToStage    int       `json:"toStage"`
}

func (e CampaignStageChanged) EventName() string { return "workflow.campaign.stage_changed" }

// ApprovalRequested is published when a checkpoint requires talent/producer
// or admin approval before the campaign can progress.
type ApprovalRequested struct {
	BaseEvent
	TenantID     uuid.UUID `json:"tenantId"`
	CampaignID   uuid.UUID `json:"campaignId"`
	Stage        int       `json:"stage"`
	ApprovalKind string    `json:"approvalKind"`
}

func (e ApprovalRequested) EventName() string { return "workflow.campaign.approval_requested" }

// OrderCreated is published when a campaign reaching its terminal stage
// produces an insertion order.
type OrderCreated struct {
	BaseEvent
	TenantID   uuid.UUID `json:"tenantId"`
	OrderID    uuid.UUID `json:"orderId"`
	CampaignID uuid.UUID `json:"campaignId"`
}

func (e OrderCreated) EventName() string { return "workflow.order.created" }
