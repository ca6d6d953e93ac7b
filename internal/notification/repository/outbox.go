package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// OutboxStatus is the delivery lifecycle of an outbox email.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxSucceeded  OutboxStatus = "succeeded"
	OutboxFailed     OutboxStatus = "failed"
)

const maxDeliveryAttempts = 5

// OutboxMessage is one durable email awaiting delivery. Writes to the outbox
// commit with the business change; the dispatcher delivers asynchronously.
type OutboxMessage struct {
	ID            uuid.UUID
	TenantID      uuid.UUID
	Recipient     string
	RecipientName string
	Subject       string
	BodyHTML      string
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time
	LastError     *string
	CreatedAt     time.Time
}

type OutboxRepo struct {
	pool *pgxpool.Pool
}

func NewOutbox(pool *pgxpool.Pool) *OutboxRepo {
	return &OutboxRepo{pool: pool}
}

// Enqueue stores one message for asynchronous delivery.
func (r *OutboxRepo) Enqueue(ctx context.Context, tenantID uuid.UUID, recipient, recipientName, subject, bodyHTML string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO notification_outbox
		   (tenant_id, recipient, recipient_name, subject, body_html, status, next_attempt_at)
		 VALUES ($1, $2, $3, $4, $5, 'pending', now())`,
		tenantID, recipient, recipientName, subject, bodyHTML,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox message: %w", err)
	}
	return nil
}

// ClaimDue atomically claims up to limit due messages for this dispatcher.
// SKIP LOCKED keeps concurrent dispatchers from claiming the same rows.
func (r *OutboxRepo) ClaimDue(ctx context.Context, limit int) ([]OutboxMessage, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.pool.Query(ctx,
		`UPDATE notification_outbox
		 SET status = 'processing', attempts = attempts + 1, updated_at = now()
		 WHERE id IN (
		   SELECT id FROM notification_outbox
		   WHERE status IN ('pending', 'failed')
		     AND attempts < $1
		     AND next_attempt_at <= now()
		   ORDER BY next_attempt_at
		   LIMIT $2
		   FOR UPDATE SKIP LOCKED
		 )
		 RETURNING id, tenant_id, recipient, recipient_name, subject, body_html,
		           status, attempts, next_attempt_at, last_error, created_at`,
		maxDeliveryAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("claim outbox messages: %w", err)
	}
	defer rows.Close()

	var out []OutboxMessage
	for rows.Next() {
		var m OutboxMessage
		if err := rows.Scan(
			&m.ID, &m.TenantID, &m.Recipient, &m.RecipientName, &m.Subject,
			&m.BodyHTML, &m.Status, &m.Attempts, &m.NextAttemptAt, &m.LastError, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *OutboxRepo) MarkSucceeded(ctx context.Context, id uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = 'succeeded', last_error = NULL, updated_at = now()
		 WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("mark outbox succeeded: %w", err)
	}
	return nil
}

// MarkFailed records the error and backs the next attempt off exponentially.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id uuid.UUID, deliveryErr error) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE notification_outbox
		 SET status = 'failed',
		     last_error = $2,
		     next_attempt_at = now() + (interval '1 minute' * power(2, attempts)),
		     updated_at = now()
		 WHERE id = $1`,
		id, deliveryErr.Error(),
	)
	if err != nil {
		return fmt.Errorf("mark outbox failed: %w", err)
	}
	return nil
}
