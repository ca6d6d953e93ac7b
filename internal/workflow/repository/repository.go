package repository

import (
	"context"
	"errors"
	"fmt"

	"adops_backend/internal/tenant"
	"adops_backend/internal/workflow/domain"
	"adops_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Campaigns reads and advances campaign progress.
type Campaigns interface {
	GetByID(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Campaign, error)
	// UpdateProgress moves progress only when the row still holds expected.
	// A false return means a concurrent transition won.
	UpdateProgress(ctx context.Context, scope tenant.Scope, id uuid.UUID, expected, target domain.Stage, status CampaignStatus) (bool, error)
	SetBuildable(ctx context.Context, scope tenant.Scope, id uuid.UUID) error
	// Approve records the acting admin's sign-off. Re-approving keeps the
	// original actor and timestamp.
	Approve(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Campaign, error)
}

// Schedules reads a campaign's planned slot selections.
type Schedules interface {
	ListByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]Schedule, error)
	// ListConflicting returns other campaigns' schedules competing for the
	// same (episode, placement) slots.
	ListConflicting(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]Schedule, error)
}

// Effects is the trigger's idempotency table. A row is recorded before its
// effect runs, so re-invocation observes the row and skips.
type Effects interface {
	// Record inserts the (campaign, stage, effect) key. Returns false when
	// the key already exists.
	Record(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID, stage domain.Stage, effect string) (bool, error)
	Applied(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID, stage domain.Stage, effect string) (bool, error)
}

// SettingsStore reads per-tenant workflow settings.
type SettingsStore interface {
	// Get returns the tenant's settings, or fallback when none are stored.
	Get(ctx context.Context, scope tenant.Scope, fallback Settings) (Settings, error)
	Upsert(ctx context.Context, scope tenant.Scope, s Settings) error
}

// Artifacts persists the terminal-stage outputs. Every create is keyed so a
// re-run finds the existing row instead of duplicating it.
type Artifacts interface {
	CreateOrder(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID, totalCents int64) (Order, error)
	GetOrderByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) (Order, error)
	CreateAdRequest(ctx context.Context, scope tenant.Scope, req AdRequest) (AdRequest, error)
	ListAdRequestsByOrder(ctx context.Context, scope tenant.Scope, orderID uuid.UUID) ([]AdRequest, error)
	CreateContract(ctx context.Context, scope tenant.Scope, campaignID, orderID uuid.UUID, objectKey *string) (Contract, error)
	CreateBillingEntries(ctx context.Context, scope tenant.Scope, orderID uuid.UUID, entries []BillingScheduleEntry) error
}

// CampaignRepo is the pgx implementation of Campaigns.
type CampaignRepo struct {
	pool *pgxpool.Pool
}

func NewCampaigns(pool *pgxpool.Pool) *CampaignRepo { return &CampaignRepo{pool: pool} }

var _ Campaigns = (*CampaignRepo)(nil)

const campaignColumns = `id, tenant_id, name, advertiser_name, progress, status, buildable,
	approved_at, approved_by, stage_changed_at, created_at, updated_at`

func (r *CampaignRepo) GetByID(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+campaignColumns+`
		 FROM campaigns
		 WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), id,
	)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, apperr.NotFound("campaign not found")
		}
		return Campaign{}, fmt.Errorf("get campaign: %w", err)
	}
	return c, nil
}

func (r *CampaignRepo) UpdateProgress(ctx context.Context, scope tenant.Scope, id uuid.UUID, expected, target domain.Stage, status CampaignStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE campaigns
		 SET progress = $1, status = $2, stage_changed_at = now(), updated_at = now()
		 WHERE tenant_id = $3 AND id = $4 AND progress = $5`,
		int(target), string(status), scope.TenantID(), id, int(expected),
	)
	if err != nil {
		return false, fmt.Errorf("update campaign progress: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CampaignRepo) SetBuildable(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE campaigns SET buildable = TRUE, updated_at = now()
		 WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), id,
	)
	if err != nil {
		return fmt.Errorf("mark campaign buildable: %w", err)
	}
	return nil
}

func (r *CampaignRepo) Approve(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Campaign, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE campaigns
		 SET approved_at = COALESCE(approved_at, now()),
		     approved_by = COALESCE(approved_by, $3),
		     updated_at = now()
		 WHERE tenant_id = $1 AND id = $2
		 RETURNING `+campaignColumns,
		scope.TenantID(), id, scope.ActorID(),
	)
	c, err := scanCampaign(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Campaign{}, apperr.NotFound("campaign not found")
		}
		return Campaign{}, fmt.Errorf("approve campaign: %w", err)
	}
	return c, nil
}

func scanCampaign(row pgx.Row) (Campaign, error) {
	var c Campaign
	var progress int
	var status string
	err := row.Scan(
		&c.ID, &c.TenantID, &c.Name, &c.AdvertiserName, &progress, &status,
		&c.Buildable, &c.ApprovedAt, &c.ApprovedBy, &c.StageChangedAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return Campaign{}, err
	}
	c.Progress = domain.Stage(progress)
	c.Status = CampaignStatus(status)
	return c, nil
}

// ScheduleRepo is the pgx implementation of Schedules.
type ScheduleRepo struct {
	pool *pgxpool.Pool
}

func NewSchedules(pool *pgxpool.Pool) *ScheduleRepo { return &ScheduleRepo{pool: pool} }

var _ Schedules = (*ScheduleRepo)(nil)

const scheduleColumns = `id, tenant_id, campaign_id, show_id, episode_id, placement_type,
	quantity, rate_cents, created_at`

func (r *ScheduleRepo) ListByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+scheduleColumns+`
		 FROM schedules
		 WHERE tenant_id = $1 AND campaign_id = $2
		 ORDER BY created_at`,
		scope.TenantID(), campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return scanSchedules(rows)
}

func (r *ScheduleRepo) ListConflicting(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]Schedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.tenant_id, s.campaign_id, s.show_id, s.episode_id,
		        s.placement_type, s.quantity, s.rate_cents, s.created_at
		 FROM schedules s
		 JOIN schedules own
		   ON own.tenant_id = s.tenant_id
		  AND own.episode_id = s.episode_id
		  AND own.placement_type = s.placement_type
		 WHERE s.tenant_id = $1
		   AND own.campaign_id = $2
		   AND s.campaign_id <> $2
		 ORDER BY s.created_at`,
		scope.TenantID(), campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("list conflicting schedules: %w", err)
	}
	return scanSchedules(rows)
}

func scanSchedules(rows pgx.Rows) ([]Schedule, error) {
	defer rows.Close()
	var out []Schedule
	for rows.Next() {
		var s Schedule
		if err := rows.Scan(
			&s.ID, &s.TenantID, &s.CampaignID, &s.ShowID, &s.EpisodeID,
			&s.Placement, &s.Quantity, &s.RateCents, &s.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan schedule: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// EffectRepo is the pgx implementation of Effects.
type EffectRepo struct {
	pool *pgxpool.Pool
}

func NewEffects(pool *pgxpool.Pool) *EffectRepo { return &EffectRepo{pool: pool} }

var _ Effects = (*EffectRepo)(nil)

func (r *EffectRepo) Record(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID, stage domain.Stage, effect string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO workflow_effects (tenant_id, campaign_id, stage, effect, recorded_by)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (campaign_id, stage, effect) DO NOTHING`,
		scope.TenantID(), campaignID, int(stage), effect, scope.ActorID(),
	)
	if err != nil {
		return false, fmt.Errorf("record effect: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *EffectRepo) Applied(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID, stage domain.Stage, effect string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM workflow_effects
		   WHERE tenant_id = $1 AND campaign_id = $2 AND stage = $3 AND effect = $4
		 )`,
		scope.TenantID(), campaignID, int(stage), effect,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check effect: %w", err)
	}
	return exists, nil
}

// SettingsRepo is the pgx implementation of SettingsStore.
type SettingsRepo struct {
	pool *pgxpool.Pool
}

func NewSettings(pool *pgxpool.Pool) *SettingsRepo { return &SettingsRepo{pool: pool} }

var _ SettingsStore = (*SettingsRepo)(nil)

func (r *SettingsRepo) Get(ctx context.Context, scope tenant.Scope, fallback Settings) (Settings, error) {
	s := fallback
	s.TenantID = scope.TenantID()
	err := r.pool.QueryRow(ctx,
		`SELECT hold_ttl_hours, auto_reserve, approval_required, stage_sla_hours
		 FROM workflow_settings
		 WHERE tenant_id = $1`,
		scope.TenantID(),
	).Scan(&s.HoldTTLHours, &s.AutoReserve, &s.ApprovalRequired, &s.StageSLAHours)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return s, nil
		}
		return Settings{}, fmt.Errorf("get workflow settings: %w", err)
	}
	return s, nil
}

func (r *SettingsRepo) Upsert(ctx context.Context, scope tenant.Scope, s Settings) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO workflow_settings (tenant_id, hold_ttl_hours, auto_reserve, approval_required, stage_sla_hours)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (tenant_id) DO UPDATE
		 SET hold_ttl_hours = EXCLUDED.hold_ttl_hours,
		     auto_reserve = EXCLUDED.auto_reserve,
		     approval_required = EXCLUDED.approval_required,
		     stage_sla_hours = EXCLUDED.stage_sla_hours,
		     updated_at = now()`,
		scope.TenantID(), s.HoldTTLHours, s.AutoReserve, s.ApprovalRequired, s.StageSLAHours,
	)
	if err != nil {
		return fmt.Errorf("upsert workflow settings: %w", err)
	}
	return nil
}

// ArtifactRepo is the pgx implementation of Artifacts.
type ArtifactRepo struct {
	pool *pgxpool.Pool
}

func NewArtifacts(pool *pgxpool.Pool) *ArtifactRepo { return &ArtifactRepo{pool: pool} }

var _ Artifacts = (*ArtifactRepo)(nil)

// CreateOrder inserts the campaign's insertion order. The unique key on
// campaign_id makes a re-run return the existing order.
func (r *ArtifactRepo) CreateOrder(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID, totalCents int64) (Order, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO orders (tenant_id, campaign_id, order_number, total_cents, status)
		 VALUES ($1, $2, 'IO-' || to_char(now(), 'YYYYMMDD') || '-' || substr($2::text, 1, 8), $3, 'open')
		 ON CONFLICT (campaign_id) DO UPDATE SET updated_at = now()
		 RETURNING id, tenant_id, campaign_id, order_number, total_cents, status, created_at`,
		scope.TenantID(), campaignID, totalCents,
	)
	return scanOrder(row)
}

func (r *ArtifactRepo) GetOrderByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) (Order, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT id, tenant_id, campaign_id, order_number, total_cents, status, created_at
		 FROM orders
		 WHERE tenant_id = $1 AND campaign_id = $2`,
		scope.TenantID(), campaignID,
	)
	o, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Order{}, apperr.NotFound("order not found")
		}
		return Order{}, fmt.Errorf("get order: %w", err)
	}
	return o, nil
}

func scanOrder(row pgx.Row) (Order, error) {
	var o Order
	err := row.Scan(&o.ID, &o.TenantID, &o.CampaignID, &o.OrderNumber, &o.TotalCents, &o.Status, &o.CreatedAt)
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// CreateAdRequest inserts one production request per confirmed reservation.
// The unique key on reservation_id absorbs re-runs.
func (r *ArtifactRepo) CreateAdRequest(ctx context.Context, scope tenant.Scope, req AdRequest) (AdRequest, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO ad_requests (tenant_id, order_id, campaign_id, reservation_id, episode_id, placement_type, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending')
		 ON CONFLICT (reservation_id) DO UPDATE SET updated_at = now()
		 RETURNING id, tenant_id, order_id, campaign_id, reservation_id, episode_id, placement_type, status, created_at`,
		scope.TenantID(), req.OrderID, req.CampaignID, req.ReservationID, req.EpisodeID, req.Placement,
	)
	var out AdRequest
	err := row.Scan(&out.ID, &out.TenantID, &out.OrderID, &out.CampaignID, &out.ReservationID,
		&out.EpisodeID, &out.Placement, &out.Status, &out.CreatedAt)
	if err != nil {
		return AdRequest{}, fmt.Errorf("create ad request: %w", err)
	}
	return out, nil
}

func (r *ArtifactRepo) ListAdRequestsByOrder(ctx context.Context, scope tenant.Scope, orderID uuid.UUID) ([]AdRequest, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, tenant_id, order_id, campaign_id, reservation_id, episode_id, placement_type, status, created_at
		 FROM ad_requests
		 WHERE tenant_id = $1 AND order_id = $2
		 ORDER BY created_at`,
		scope.TenantID(), orderID,
	)
	if err != nil {
		return nil, fmt.Errorf("list ad requests: %w", err)
	}
	defer rows.Close()

	var out []AdRequest
	for rows.Next() {
		var a AdRequest
		if err := rows.Scan(&a.ID, &a.TenantID, &a.OrderID, &a.CampaignID, &a.ReservationID,
			&a.EpisodeID, &a.Placement, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan ad request: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *ArtifactRepo) CreateContract(ctx context.Context, scope tenant.Scope, campaignID, orderID uuid.UUID, objectKey *string) (Contract, error) {
	row := r.pool.QueryRow(ctx,
		`INSERT INTO contracts (tenant_id, campaign_id, order_id, object_key, status)
		 VALUES ($1, $2, $3, $4, 'draft')
		 ON CONFLICT (campaign_id) DO UPDATE
		 SET object_key = COALESCE(contracts.object_key, EXCLUDED.object_key), updated_at = now()
		 RETURNING id, tenant_id, campaign_id, order_id, object_key, status, created_at`,
		scope.TenantID(), campaignID, orderID, objectKey,
	)
	var c Contract
	err := row.Scan(&c.ID, &c.TenantID, &c.CampaignID, &c.OrderID, &c.ObjectKey, &c.Status, &c.CreatedAt)
	if err != nil {
		return Contract{}, fmt.Errorf("create contract: %w", err)
	}
	return c, nil
}

func (r *ArtifactRepo) CreateBillingEntries(ctx context.Context, scope tenant.Scope, orderID uuid.UUID, entries []BillingScheduleEntry) error {
	for _, e := range entries {
		_, err := r.pool.Exec(ctx,
			`INSERT INTO billing_schedules (tenant_id, order_id, due_at, amount_cents, status)
			 SELECT $1, $2, $3, $4, 'scheduled'
			 WHERE NOT EXISTS (
			   SELECT 1 FROM billing_schedules WHERE order_id = $2 AND due_at = $3
			 )`,
			scope.TenantID(), orderID, e.DueAt, e.AmountCents,
		)
		if err != nil {
			return fmt.Errorf("create billing entry: %w", err)
		}
	}
	return nil
}
