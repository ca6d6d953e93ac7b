// Package repository holds the read-side queries the reconciliation sweep
// runs against ground truth.
package repository

import (
	"context"
	"fmt"
	"time"

	"adops_backend/internal/tenant"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OrphanedReservation is an active reservation whose referenced show,
// episode, campaign or schedule no longer exists.
type OrphanedReservation struct {
	ReservationID uuid.UUID `json:"reservationId"`
	EpisodeID     uuid.UUID `json:"episodeId"`
	Placement     string    `json:"placement"`
	CampaignID    uuid.UUID `json:"campaignId"`
	Quantity      int       `json:"quantity"`
	Status        string    `json:"status"`
	MissingRefs   []string  `json:"missingRefs"`
}

// BlockedDeletion is a show flagged for deletion that reservations still
// reference. Stale blockers are lapsed holds the sweep will clear; valid
// blockers are live holds or confirmed bookings.
type BlockedDeletion struct {
	ShowID        uuid.UUID `json:"showId"`
	ShowTitle     string    `json:"showTitle"`
	ValidBlockers int       `json:"validBlockers"`
	StaleBlockers int       `json:"staleBlockers"`
}

// StalledCampaign is a campaign sitting at a checkpoint past the SLA window
// while its un-confirmed holds keep consuming capacity.
type StalledCampaign struct {
	CampaignID  uuid.UUID `json:"campaignId"`
	Name        string    `json:"name"`
	Progress    int       `json:"progress"`
	StalledFor  string    `json:"stalledFor"`
	ActiveHolds int       `json:"activeHolds"`
}

type Repo struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repo { return &Repo{pool: pool} }

// ListTenantIDs returns every tenant with counter rows, for sweep iteration.
func (r *Repo) ListTenantIDs(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT tenant_id FROM episode_inventory ORDER BY tenant_id`)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var out []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan tenant id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// FindOrphanedReservations returns active reservations with dangling
// references.
func (r *Repo) FindOrphanedReservations(ctx context.Context, scope tenant.Scope) ([]OrphanedReservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT res.id, res.episode_id, res.placement_type, res.campaign_id,
		        res.quantity, res.status,
		        (s.id IS NULL)   AS missing_show,
		        (e.id IS NULL)   AS missing_episode,
		        (c.id IS NULL)   AS missing_campaign,
		        (res.schedule_id IS NOT NULL AND sch.id IS NULL) AS missing_schedule
		 FROM reservations res
		 LEFT JOIN shows s      ON s.id = res.show_id
		 LEFT JOIN episodes e   ON e.id = res.episode_id
		 LEFT JOIN campaigns c  ON c.id = res.campaign_id
		 LEFT JOIN schedules sch ON sch.id = res.schedule_id
		 WHERE res.tenant_id = $1
		   AND res.status IN ('reserved', 'confirmed')
		   AND (s.id IS NULL OR e.id IS NULL OR c.id IS NULL
		        OR (res.schedule_id IS NOT NULL AND sch.id IS NULL))
		 ORDER BY res.created_at`,
		scope.TenantID(),
	)
	if err != nil {
		return nil, fmt.Errorf("find orphaned reservations: %w", err)
	}
	defer rows.Close()

	var out []OrphanedReservation
	for rows.Next() {
		var o OrphanedReservation
		var missingShow, missingEpisode, missingCampaign, missingSchedule bool
		if err := rows.Scan(
			&o.ReservationID, &o.EpisodeID, &o.Placement, &o.CampaignID,
			&o.Quantity, &o.Status,
			&missingShow, &missingEpisode, &missingCampaign, &missingSchedule,
		); err != nil {
			return nil, fmt.Errorf("scan orphaned reservation: %w", err)
		}
		if missingShow {
			o.MissingRefs = append(o.MissingRefs, "show")
		}
		if missingEpisode {
			o.MissingRefs = append(o.MissingRefs, "episode")
		}
		if missingCampaign {
			o.MissingRefs = append(o.MissingRefs, "campaign")
		}
		if missingSchedule {
			o.MissingRefs = append(o.MissingRefs, "schedule")
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// FindBlockedDeletions returns shows flagged for deletion together with the
// reservations still blocking them, split into stale and valid blockers.
func (r *Repo) FindBlockedDeletions(ctx context.Context, scope tenant.Scope, now time.Time) ([]BlockedDeletion, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.title,
		        COUNT(*) FILTER (
		          WHERE res.status = 'confirmed'
		             OR (res.status = 'reserved' AND (res.expires_at IS NULL OR res.expires_at > $2))
		        ) AS valid_blockers,
		        COUNT(*) FILTER (
		          WHERE res.status = 'reserved' AND res.expires_at IS NOT NULL AND res.expires_at <= $2
		        ) AS stale_blockers
		 FROM shows s
		 JOIN reservations res ON res.show_id = s.id AND res.status IN ('reserved', 'confirmed')
		 WHERE s.tenant_id = $1 AND s.deletion_requested
		 GROUP BY s.id, s.title
		 ORDER BY s.title`,
		scope.TenantID(), now,
	)
	if err != nil {
		return nil, fmt.Errorf("find blocked deletions: %w", err)
	}
	defer rows.Close()

	var out []BlockedDeletion
	for rows.Next() {
		var b BlockedDeletion
		if err := rows.Scan(&b.ShowID, &b.ShowTitle, &b.ValidBlockers, &b.StaleBlockers); err != nil {
			return nil, fmt.Errorf("scan blocked deletion: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindStalledCampaigns returns active campaigns parked at a checkpoint for
// longer than the SLA window, with their live hold counts.
func (r *Repo) FindStalledCampaigns(ctx context.Context, scope tenant.Scope, olderThan time.Time) ([]StalledCampaign, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT c.id, c.name, c.progress,
		        EXTRACT(EPOCH FROM now() - c.stage_changed_at)::float8 AS stalled_seconds,
		        COUNT(res.id) FILTER (WHERE res.status = 'reserved') AS active_holds
		 FROM campaigns c
		 LEFT JOIN reservations res ON res.campaign_id = c.id
		 WHERE c.tenant_id = $1 AND c.status = 'active'
		   AND c.progress IN (10, 35, 65, 90)
		   AND c.stage_changed_at <= $2
		 GROUP BY c.id, c.name, c.progress, c.stage_changed_at
		 ORDER BY c.stage_changed_at`,
		scope.TenantID(), olderThan,
	)
	if err != nil {
		return nil, fmt.Errorf("find stalled campaigns: %w", err)
	}
	defer rows.Close()

	var out []StalledCampaign
	for rows.Next() {
		var s StalledCampaign
		var stalledSeconds float64
		if err := rows.Scan(&s.CampaignID, &s.Name, &s.Progress, &stalledSeconds, &s.ActiveHolds); err != nil {
			return nil, fmt.Errorf("scan stalled campaign: %w", err)
		}
		s.StalledFor = (time.Duration(stalledSeconds) * time.Second).Round(time.Minute).String()
		out = append(out, s)
	}
	return out, rows.Err()
}
