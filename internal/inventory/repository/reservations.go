package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adops_backend/internal/tenant"
	"adops_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const reservationColumns = `id, tenant_id, show_id, episode_id, placement_type, campaign_id,
	schedule_id, quantity, status, locked, expires_at, created_by, created_at, updated_at`

// ReservationRepo persists reservation rows. Status transitions are
// conditional updates so concurrent callers race safely; exactly one wins.
type ReservationRepo struct {
	pool *pgxpool.Pool
}

func NewReservations(pool *pgxpool.Pool) *ReservationRepo {
	return &ReservationRepo{pool: pool}
}

var _ Reservations = (*ReservationRepo)(nil)

func (r *ReservationRepo) Create(ctx context.Context, scope tenant.Scope, params CreateReservationParams) (Reservation, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO reservations
		   (tenant_id, show_id, episode_id, placement_type, campaign_id,
		    schedule_id, quantity, status, locked, expires_at, created_by)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'reserved', TRUE, $8, $9)
		 RETURNING `+reservationColumns,
		scope.TenantID(), params.ShowID, params.EpisodeID, string(params.Placement),
		params.CampaignID, params.ScheduleID, params.Quantity,
		params.ExpiresAt, params.CreatedBy,
	)
	return scanReservation(row)
}

func (r *ReservationRepo) GetByID(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Reservation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), id,
	)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Reservation{}, apperr.NotFound("reservation not found")
		}
		return Reservation{}, err
	}
	return res, nil
}

// FindActiveHold returns the locked hold a campaign already has on a slot,
// or nil when none exists. Repeated hold requests reuse this row instead of
// consuming more capacity.
func (r *ReservationRepo) FindActiveHold(ctx context.Context, scope tenant.Scope, campaignID, episodeID uuid.UUID, placement Placement) (*Reservation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE tenant_id = $1 AND campaign_id = $2 AND episode_id = $3
		   AND placement_type = $4 AND status = 'reserved' AND locked`,
		scope.TenantID(), campaignID, episodeID, string(placement),
	)
	res, err := scanReservation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// Transition moves a reservation from one status to another. It reports
// false without error when the row was not in the expected status, which
// makes retried and duplicate requests harmless. Leaving reserved status
// drops the lock and the expiry deadline; both only mean something on an
// actively held row.
func (r *ReservationRepo) Transition(ctx context.Context, scope tenant.Scope, id uuid.UUID, from, to ReservationStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reservations
		 SET status = $1, locked = FALSE, expires_at = NULL, updated_at = now()
		 WHERE tenant_id = $2 AND id = $3 AND status = $4`,
		string(to), scope.TenantID(), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition reservation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// TransitionExpired marks a reserved hold expired only if its deadline has
// actually passed. Concurrent confirmation beats expiry because both gates
// require status = 'reserved'.
func (r *ReservationRepo) TransitionExpired(ctx context.Context, scope tenant.Scope, id uuid.UUID, now time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reservations
		 SET status = 'expired', locked = FALSE, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2 AND status = 'reserved'
		   AND expires_at IS NOT NULL AND expires_at <= $3`,
		scope.TenantID(), id, now,
	)
	if err != nil {
		return false, fmt.Errorf("expire reservation: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *ReservationRepo) UpdateExpiry(ctx context.Context, scope tenant.Scope, id uuid.UUID, expiresAt time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reservations
		 SET expires_at = $1, updated_at = now()
		 WHERE tenant_id = $2 AND id = $3 AND status = 'reserved'`,
		expiresAt, scope.TenantID(), id,
	)
	if err != nil {
		return false, fmt.Errorf("update expiry: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListExpired returns reserved holds whose deadline passed before now.
func (r *ReservationRepo) ListExpired(ctx context.Context, scope tenant.Scope, now time.Time, limit int) ([]Reservation, error) {
	if limit <= 0 {
		limit = 500
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE tenant_id = $1 AND status = 'reserved'
		   AND expires_at IS NOT NULL AND expires_at <= $2
		 ORDER BY expires_at
		 LIMIT $3`,
		scope.TenantID(), now, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	return scanReservations(rows)
}

// ListActiveByCampaign returns the campaign's holds still in reserved status.
func (r *ReservationRepo) ListActiveByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE tenant_id = $1 AND campaign_id = $2 AND status = 'reserved'
		 ORDER BY created_at`,
		scope.TenantID(), campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list active reservations: %w", err)
	}
	return scanReservations(rows)
}

func (r *ReservationRepo) ListByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]Reservation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE tenant_id = $1 AND campaign_id = $2
		 ORDER BY created_at`,
		scope.TenantID(), campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	return scanReservations(rows)
}

func scanReservation(row pgx.Row) (Reservation, error) {
	var res Reservation
	var placement, status string
	err := row.Scan(
		&res.ID, &res.TenantID, &res.ShowID, &res.EpisodeID, &placement,
		&res.CampaignID, &res.ScheduleID, &res.Quantity, &status,
		&res.Locked, &res.ExpiresAt, &res.CreatedBy, &res.CreatedAt, &res.UpdatedAt,
	)
	if err != nil {
		return Reservation{}, err
	}
	res.Placement = Placement(placement)
	res.Status = ReservationStatus(status)
	return res, nil
}

func scanReservations(rows pgx.Rows) ([]Reservation, error) {
	defer rows.Close()
	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reservation: %w", err)
		}
		out = append(out, res)
	}
	return out, rows.Err()
}
