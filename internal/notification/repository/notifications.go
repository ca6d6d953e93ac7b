// Package repository persists in-app notifications and the email outbox.
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

// Notification is one in-app message for a user.
type Notification struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	UserID    uuid.UUID
	Kind      string
	Title     string
	Body      string
	ReadAt    *time.Time
	CreatedAt time.Time
}

// Recipient is a user eligible for notification fan-out.
type Recipient struct {
	UserID uuid.UUID
	Email  string
	Name   string
}

type NotificationRepo struct {
	pool *pgxpool.Pool
}

func NewNotifications(pool *pgxpool.Pool) *NotificationRepo {
	return &NotificationRepo{pool: pool}
}

func (r *NotificationRepo) Create(ctx context.Context, scope tenant.Scope, userID uuid.UUID, kind, title, body string) (Notification, error) {
	var n Notification
	err := r.pool.QueryRow(ctx,
		`INSERT INTO notifications (tenant_id, user_id, kind, title, body)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, tenant_id, user_id, kind, title, body, read_at, created_at`,
		scope.TenantID(), userID, kind, title, body,
	).Scan(&n.ID, &n.TenantID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("create notification: %w", err)
	}
	return n, nil
}

func (r *NotificationRepo) ListForUser(ctx context.Context, scope tenant.Scope, userID uuid.UUID, unreadOnly bool, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `SELECT id, tenant_id, user_id, kind, title, body, read_at, created_at
		 FROM notifications
		 WHERE tenant_id = $1 AND user_id = $2`
	if unreadOnly {
		query += ` AND read_at IS NULL`
	}
	query += ` ORDER BY created_at DESC LIMIT $3`

	rows, err := r.pool.Query(ctx, query, scope.TenantID(), userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.TenantID, &n.UserID, &n.Kind, &n.Title, &n.Body, &n.ReadAt, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepo) CountUnread(ctx context.Context, scope tenant.Scope, userID uuid.UUID) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM notifications
		 WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL`,
		scope.TenantID(), userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	return count, nil
}

func (r *NotificationRepo) MarkRead(ctx context.Context, scope tenant.Scope, userID, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read_at = now()
		 WHERE tenant_id = $1 AND user_id = $2 AND id = $3 AND read_at IS NULL`,
		scope.TenantID(), userID, id,
	)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM notifications WHERE tenant_id = $1 AND user_id = $2 AND id = $3)`,
			scope.TenantID(), userID, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check notification: %w", err)
		}
		if !exists {
			return apperr.NotFound("notification not found")
		}
	}
	return nil
}

func (r *NotificationRepo) MarkAllRead(ctx context.Context, scope tenant.Scope, userID uuid.UUID) (int, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE notifications SET read_at = now()
		 WHERE tenant_id = $1 AND user_id = $2 AND read_at IS NULL`,
		scope.TenantID(), userID,
	)
	if err != nil {
		return 0, fmt.Errorf("mark all read: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// ListAdmins returns the tenant's admin users for alert fan-out.
func (r *NotificationRepo) ListAdmins(ctx context.Context, scope tenant.Scope) ([]Recipient, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, email, name FROM users
		 WHERE tenant_id = $1 AND role = 'admin' AND active
		 ORDER BY email`,
		scope.TenantID(),
	)
	if err != nil {
		return nil, fmt.Errorf("list admins: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.UserID, &rec.Email, &rec.Name); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ListOrderContacts returns the users who booked reservations on the given
// orders' campaigns. Alert fan-out reaches them alongside the admins.
func (r *NotificationRepo) ListOrderContacts(ctx context.Context, scope tenant.Scope, orderIDs []uuid.UUID) ([]Recipient, error) {
	if len(orderIDs) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT DISTINCT u.id, u.email, u.name
		 FROM orders o
		 JOIN reservations res ON res.campaign_id = o.campaign_id AND res.tenant_id = o.tenant_id
		 JOIN users u ON u.id = res.created_by AND u.tenant_id = o.tenant_id
		 WHERE o.tenant_id = $1 AND o.id = ANY($2) AND u.active
		 ORDER BY u.email`,
		scope.TenantID(), orderIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("list order contacts: %w", err)
	}
	defer rows.Close()

	var out []Recipient
	for rows.Next() {
		var rec Recipient
		if err := rows.Scan(&rec.UserID, &rec.Email, &rec.Name); err != nil {
			return nil, fmt.Errorf("scan recipient: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// GetRecipient returns one user's fan-out details.
func (r *NotificationRepo) GetRecipient(ctx context.Context, scope tenant.Scope, userID uuid.UUID) (Recipient, error) {
	var rec Recipient
	err := r.pool.QueryRow(ctx,
		`SELECT id, email, name FROM users
		 WHERE tenant_id = $1 AND id = $2 AND active`,
		scope.TenantID(), userID,
	).Scan(&rec.UserID, &rec.Email, &rec.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Recipient{}, apperr.NotFound("user not found")
		}
		return Recipient{}, fmt.Errorf("get recipient: %w", err)
	}
	return rec, nil
}
