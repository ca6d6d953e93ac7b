package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"adops_backend/internal/tenant"
	"adops_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const alertColumns = `id, tenant_id, alert_type, severity, episode_id, placement_type,
	affected_orders, details, status, acknowledged_by, acknowledged_at,
	resolved_by, resolved_at, resolution_note, created_at, updated_at`

// AlertRepo persists reconciliation and capacity findings. One open alert
// exists per (type, episode, placement); repeated sweep findings refresh it
// instead of piling up duplicates.
type AlertRepo struct {
	pool *pgxpool.Pool
}

func NewAlerts(pool *pgxpool.Pool) *AlertRepo {
	return &AlertRepo{pool: pool}
}

var _ Alerts = (*AlertRepo)(nil)

func (r *AlertRepo) Upsert(ctx context.Context, scope tenant.Scope, params UpsertAlertParams) (Alert, bool, error) {
	details, err := json.Marshal(params.Details)
	if err != nil {
		return Alert{}, false, fmt.Errorf("marshal alert details: %w", err)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Alert{}, false, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var placement *string
	if params.Placement != nil {
		p := string(*params.Placement)
		placement = &p
	}

	// Refresh the existing open alert first. IS NOT DISTINCT FROM matches
	// NULL key columns too, so tenant-wide alerts dedupe as well.
	row := tx.QueryRow(ctx,
		`UPDATE inventory_alerts
		 SET severity = $1, affected_orders = $2, details = $3, updated_at = now()
		 WHERE tenant_id = $4 AND alert_type = $5
		   AND episode_id IS NOT DISTINCT FROM $6
		   AND placement_type IS NOT DISTINCT FROM $7
		   AND status IN ('active', 'acknowledged')
		 RETURNING `+alertColumns,
		string(params.Severity), params.AffectedOrders, details,
		scope.TenantID(), string(params.AlertType), params.EpisodeID, placement,
	)
	alert, err := scanAlert(row)
	if err == nil {
		if err := tx.Commit(ctx); err != nil {
			return Alert{}, false, fmt.Errorf("commit: %w", err)
		}
		return alert, false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Alert{}, false, fmt.Errorf("refresh alert: %w", err)
	}

	row = tx.QueryRow(ctx,
		`INSERT INTO inventory_alerts
		   (tenant_id, alert_type, severity, episode_id, placement_type,
		    affected_orders, details, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
		 RETURNING `+alertColumns,
		scope.TenantID(), string(params.AlertType), string(params.Severity),
		params.EpisodeID, placement, params.AffectedOrders, details,
	)
	alert, err = scanAlert(row)
	if err != nil {
		return Alert{}, false, fmt.Errorf("insert alert: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Alert{}, false, fmt.Errorf("commit: %w", err)
	}
	return alert, true, nil
}

func (r *AlertRepo) GetByID(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Alert, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+alertColumns+`
		 FROM inventory_alerts
		 WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID(), id,
	)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Alert{}, apperr.NotFound("alert not found")
		}
		return Alert{}, fmt.Errorf("get alert: %w", err)
	}
	return alert, nil
}

// Acknowledge moves an active alert to acknowledged. The transition is
// one-directional; anything not active is rejected as Conflict.
func (r *AlertRepo) Acknowledge(ctx context.Context, scope tenant.Scope, id, actor uuid.UUID) (Alert, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE inventory_alerts
		 SET status = 'acknowledged', acknowledged_by = $1, acknowledged_at = now(),
		     updated_at = now()
		 WHERE tenant_id = $2 AND id = $3 AND status = 'active'
		 RETURNING `+alertColumns,
		actor, scope.TenantID(), id,
	)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.transitionConflict(ctx, scope, id, "acknowledge")
		}
		return Alert{}, fmt.Errorf("acknowledge alert: %w", err)
	}
	return alert, nil
}

// Resolve closes an active or acknowledged alert with a note.
func (r *AlertRepo) Resolve(ctx context.Context, scope tenant.Scope, id, actor uuid.UUID, note string) (Alert, error) {
	row := r.pool.QueryRow(ctx,
		`UPDATE inventory_alerts
		 SET status = 'resolved', resolved_by = $1, resolved_at = now(),
		     resolution_note = $2, updated_at = now()
		 WHERE tenant_id = $3 AND id = $4 AND status IN ('active', 'acknowledged')
		 RETURNING `+alertColumns,
		actor, note, scope.TenantID(), id,
	)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return r.transitionConflict(ctx, scope, id, "resolve")
		}
		return Alert{}, fmt.Errorf("resolve alert: %w", err)
	}
	return alert, nil
}

// transitionConflict distinguishes a missing alert from one already past the
// required status.
func (r *AlertRepo) transitionConflict(ctx context.Context, scope tenant.Scope, id uuid.UUID, action string) (Alert, error) {
	alert, err := r.GetByID(ctx, scope, id)
	if err != nil {
		return Alert{}, err
	}
	return Alert{}, apperr.Conflict(fmt.Sprintf("cannot %s alert in status %s", action, alert.Status))
}

func (r *AlertRepo) List(ctx context.Context, scope tenant.Scope, filter AlertFilter) ([]Alert, error) {
	query := `SELECT ` + alertColumns + `
		 FROM inventory_alerts
		 WHERE tenant_id = $1`
	args := []any{scope.TenantID()}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Severity != nil {
		args = append(args, string(*filter.Severity))
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	if filter.Type != nil {
		args = append(args, string(*filter.Type))
		query += fmt.Sprintf(" AND alert_type = $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(` ORDER BY
		 CASE severity WHEN 'critical' THEN 0 WHEN 'high' THEN 1 WHEN 'medium' THEN 2 ELSE 3 END,
		 created_at DESC
		 LIMIT $%d`, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var out []Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		out = append(out, alert)
	}
	return out, rows.Err()
}

// Summary aggregates counts of open alerts by severity and type.
func (r *AlertRepo) Summary(ctx context.Context, scope tenant.Scope) (AlertSummary, error) {
	summary := AlertSummary{
		BySeverity: make(map[string]int),
		ByType:     make(map[string]int),
	}

	rows, err := r.pool.Query(ctx,
		`SELECT severity, alert_type, COUNT(*)
		 FROM inventory_alerts
		 WHERE tenant_id = $1 AND status IN ('active', 'acknowledged')
		 GROUP BY severity, alert_type`,
		scope.TenantID(),
	)
	if err != nil {
		return AlertSummary{}, fmt.Errorf("alert summary: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var severity, alertType string
		var count int
		if err := rows.Scan(&severity, &alertType, &count); err != nil {
			return AlertSummary{}, fmt.Errorf("scan summary row: %w", err)
		}
		summary.BySeverity[severity] += count
		summary.ByType[alertType] += count
		summary.Total += count
	}
	return summary, rows.Err()
}

func scanAlert(row pgx.Row) (Alert, error) {
	var alert Alert
	var alertType, severity, status string
	var placement *string
	err := row.Scan(
		&alert.ID, &alert.TenantID, &alertType, &severity,
		&alert.EpisodeID, &placement, &alert.AffectedOrders, &alert.Details,
		&status, &alert.AcknowledgedBy, &alert.AcknowledgedAt,
		&alert.ResolvedBy, &alert.ResolvedAt, &alert.ResolutionNote,
		&alert.CreatedAt, &alert.UpdatedAt,
	)
	if err != nil {
		return Alert{}, err
	}
	alert.AlertType = AlertType(alertType)
	alert.Severity = AlertSeverity(severity)
	alert.Status = AlertStatus(status)
	if placement != nil {
		p := Placement(*placement)
		alert.Placement = &p
	}
	return alert, nil
}
