package repository

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Placement is the fixed enumeration of ad placement types. Counter columns
// are addressed through this type only; no column name is ever composed at
// runtime.
type Placement string

const (
	PlacementPreRoll  Placement = "pre_roll"
	PlacementMidRoll  Placement = "mid_roll"
	PlacementPostRoll Placement = "post_roll"
)

// Valid reports whether the placement is one of the known types.
func (p Placement) Valid() bool {
	switch p {
	case PlacementPreRoll, PlacementMidRoll, PlacementPostRoll:
		return true
	}
	return false
}

// ReservationStatus is the lifecycle state of a hold.
type ReservationStatus string

const (
	StatusReserved  ReservationStatus = "reserved"
	StatusConfirmed ReservationStatus = "confirmed"
	StatusReleased  ReservationStatus = "released"
	StatusExpired   ReservationStatus = "expired"
)

// Counts is a snapshot of one (episode, placement) counter row.
type Counts struct {
	TotalSlots    int
	ReservedSlots int
	BookedSlots   int
}

// Available derives the free capacity from the snapshot.
func (c Counts) Available() int {
	return c.TotalSlots - c.ReservedSlots - c.BookedSlots
}

// RecountResult compares the cached counters against the authoritative
// reservation rows.
type RecountResult struct {
	Cached   Counts
	Actual   Counts
	Drifted  bool
	Repaired bool
}

// Reservation is a time-bounded claim on ad-slot capacity.
type Reservation struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	ShowID     uuid.UUID
	EpisodeID  uuid.UUID
	Placement  Placement
	CampaignID uuid.UUID
	ScheduleID *uuid.UUID
	Quantity   int
	Status     ReservationStatus
	Locked     bool
	ExpiresAt  *time.Time
	CreatedBy  uuid.UUID
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// AlertType classifies a reconciliation finding.
type AlertType string

const (
	AlertOverbooking         AlertType = "overbooking"
	AlertDeletionImpact      AlertType = "deletion_impact"
	AlertDrift               AlertType = "drift"
	AlertStatusInconsistency AlertType = "status_inconsistency"
	AlertOrphanedReservation AlertType = "orphaned_reservation"
)

// AlertSeverity ranks findings for dashboard triage.
type AlertSeverity string

const (
	SeverityCritical AlertSeverity = "critical"
	SeverityHigh     AlertSeverity = "high"
	SeverityMedium   AlertSeverity = "medium"
	SeverityLow      AlertSeverity = "low"
)

// AlertStatus is the one-directional alert lifecycle.
type AlertStatus string

const (
	AlertActive       AlertStatus = "active"
	AlertAcknowledged AlertStatus = "acknowledged"
	AlertResolved     AlertStatus = "resolved"
)

// Alert is a durable reconciliation or capacity finding.
type Alert struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	AlertType      AlertType
	Severity       AlertSeverity
	EpisodeID      *uuid.UUID
	Placement      *Placement
	AffectedOrders []uuid.UUID
	Details        json.RawMessage
	Status         AlertStatus
	AcknowledgedBy *uuid.UUID
	AcknowledgedAt *time.Time
	ResolvedBy     *uuid.UUID
	ResolvedAt     *time.Time
	ResolutionNote *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AlertSummary aggregates open alerts for dashboards.
type AlertSummary struct {
	BySeverity map[string]int `json:"bySeverity"`
	ByType     map[string]int `json:"byType"`
	Total      int            `json:"total"`
}

// CreateReservationParams contains parameters for inserting a hold row.
type CreateReservationParams struct {
	ShowID     uuid.UUID
	EpisodeID  uuid.UUID
	Placement  Placement
	CampaignID uuid.UUID
	ScheduleID *uuid.UUID
	Quantity   int
	ExpiresAt  time.Time
	CreatedBy  uuid.UUID
}

// UpsertAlertParams contains parameters for creating or refreshing an alert.
type UpsertAlertParams struct {
	AlertType      AlertType
	Severity       AlertSeverity
	EpisodeID      *uuid.UUID
	Placement      *Placement
	AffectedOrders []uuid.UUID
	Details        any
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Status   *AlertStatus
	Severity *AlertSeverity
	Type     *AlertType
	Limit    int
}
