// Package transport defines request and response shapes for the workflow
// HTTP API.
package transport

import (
	"time"

	"adops_backend/internal/workflow/repository"

	"github.com/google/uuid"
)

// SetStageRequest moves a campaign to a target progress value.
type SetStageRequest struct {
	TargetStage int `json:"targetStage" validate:"min=0,max=100"`
}

// SimulateRequest computes the effect plan for a transition.
type SimulateRequest struct {
	CampaignID  uuid.UUID `json:"campaignId" validate:"required"`
	TargetStage int       `json:"targetStage" validate:"min=0,max=100"`
	DryRun      bool      `json:"dryRun"`
}

// CampaignResponse is the wire shape of a campaign.
type CampaignResponse struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	AdvertiserName string     `json:"advertiserName"`
	Progress       int        `json:"progress"`
	Status         string     `json:"status"`
	Buildable      bool       `json:"buildable"`
	ApprovedAt     *time.Time `json:"approvedAt,omitempty"`
	StageChangedAt time.Time  `json:"stageChangedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
}

// AdRequestResponse is the wire shape of a production request.
type AdRequestResponse struct {
	ID            uuid.UUID `json:"id"`
	OrderID       uuid.UUID `json:"orderId"`
	CampaignID    uuid.UUID `json:"campaignId"`
	ReservationID uuid.UUID `json:"reservationId"`
	EpisodeID     uuid.UUID `json:"episodeId"`
	Placement     string    `json:"placement"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
}

// SettingsRequest updates per-tenant workflow settings.
type SettingsRequest struct {
	HoldTTLHours     int  `json:"holdTtlHours" validate:"required,min=1,max=720"`
	AutoReserve      bool `json:"autoReserve"`
	ApprovalRequired bool `json:"approvalRequired"`
	StageSLAHours    int  `json:"stageSlaHours" validate:"required,min=1"`
}

// SettingsResponse is the wire shape of workflow settings.
type SettingsResponse struct {
	HoldTTLHours     int  `json:"holdTtlHours"`
	AutoReserve      bool `json:"autoReserve"`
	ApprovalRequired bool `json:"approvalRequired"`
	StageSLAHours    int  `json:"stageSlaHours"`
}

// FromCampaign converts a repository row to its wire shape.
func FromCampaign(c repository.Campaign) CampaignResponse {
	return CampaignResponse{
		ID:             c.ID,
		Name:           c.Name,
		AdvertiserName: c.AdvertiserName,
		Progress:       int(c.Progress),
		Status:         string(c.Status),
		Buildable:      c.Buildable,
		ApprovedAt:     c.ApprovedAt,
		StageChangedAt: c.StageChangedAt,
		CreatedAt:      c.CreatedAt,
	}
}

// FromAdRequests converts ad request rows to their wire shape.
func FromAdRequests(reqs []repository.AdRequest) []AdRequestResponse {
	out := make([]AdRequestResponse, 0, len(reqs))
	for _, a := range reqs {
		out = append(out, AdRequestResponse{
			ID:            a.ID,
			OrderID:       a.OrderID,
			CampaignID:    a.CampaignID,
			ReservationID: a.ReservationID,
			EpisodeID:     a.EpisodeID,
			Placement:     a.Placement,
			Status:        a.Status,
			CreatedAt:     a.CreatedAt,
		})
	}
	return out
}

// FromSettings converts settings to their wire shape.
func FromSettings(s repository.Settings) SettingsResponse {
	return SettingsResponse{
		HoldTTLHours:     s.HoldTTLHours,
		AutoReserve:      s.AutoReserve,
		ApprovalRequired: s.ApprovalRequired,
		StageSLAHours:    s.StageSLAHours,
	}
}
