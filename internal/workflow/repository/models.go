package repository

import (
	"time"

	"adops_backend/internal/workflow/domain"

	"github.com/google/uuid"
)

// CampaignStatus is the coarse business state alongside numeric progress.
type CampaignStatus string

const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignCompleted CampaignStatus = "completed"
	CampaignRejected  CampaignStatus = "rejected"
)

// Campaign is an advertiser engagement driving the workflow. ApprovedAt is
// the admin sign-off gating the terminal stage; nil means not yet granted.
type Campaign struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Name           string
	AdvertiserName string
	Progress       domain.Stage
	Status         CampaignStatus
	Buildable      bool
	ApprovedAt     *time.Time
	ApprovedBy     *uuid.UUID
	StageChangedAt time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Schedule is one planned slot selection inside a campaign.
type Schedule struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	CampaignID uuid.UUID
	ShowID     uuid.UUID
	EpisodeID  uuid.UUID
	Placement  string
	Quantity   int
	RateCents  int64
	CreatedAt  time.Time
}

// Settings are the per-tenant workflow knobs. Absent rows fall back to the
// file-seeded defaults.
type Settings struct {
	TenantID         uuid.UUID
	HoldTTLHours     int
	AutoReserve      bool
	ApprovalRequired bool
	StageSLAHours    int
}

// Order is the insertion order created at the terminal stage.
type Order struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	CampaignID  uuid.UUID
	OrderNumber string
	TotalCents  int64
	Status      string
	CreatedAt   time.Time
}

// AdRequest is the per-slot production request generated from a confirmed
// reservation.
type AdRequest struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	OrderID       uuid.UUID
	CampaignID    uuid.UUID
	ReservationID uuid.UUID
	EpisodeID     uuid.UUID
	Placement     string
	Status        string
	CreatedAt     time.Time
}

// Contract is the signed-terms document row. ObjectKey points at the stored
// rendering when document storage is enabled.
type Contract struct {
	ID         uuid.UUID
	TenantID   uuid.UUID
	CampaignID uuid.UUID
	OrderID    uuid.UUID
	ObjectKey  *string
	Status     string
	CreatedAt  time.Time
}

// BillingScheduleEntry is one invoice line of the billing plan.
type BillingScheduleEntry struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	OrderID     uuid.UUID
	DueAt       time.Time
	AmountCents int64
	Status      string
	CreatedAt   time.Time
}
