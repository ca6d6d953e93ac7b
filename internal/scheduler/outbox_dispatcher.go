package scheduler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"adops_backend/internal/email"
	"adops_backend/internal/notification/repository"
	"adops_backend/platform/logger"
)

const (
	outboxPollInterval = 5 * time.Second
	outboxClaimBatch   = 50
)

// OutboxClaimer is the persistence surface the dispatcher drains.
type OutboxClaimer interface {
	ClaimDue(ctx context.Context, limit int) ([]repository.OutboxMessage, error)
	MarkSucceeded(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, deliveryErr error) error
}

// OutboxDispatcher drains due outbox emails and hands them to the SMTP
// sender. Claiming uses row locks, so multiple dispatcher replicas never
// deliver the same message twice.
type OutboxDispatcher struct {
	outbox OutboxClaimer
	sender email.Sender
	log    *logger.Logger
}

func NewOutboxDispatcher(outbox OutboxClaimer, sender email.Sender, log *logger.Logger) *OutboxDispatcher {
	return &OutboxDispatcher{outbox: outbox, sender: sender, log: log}
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(outboxPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		d.drain(ctx)
	}
}

func (d *OutboxDispatcher) drain(ctx context.Context) {
	for {
		messages, err := d.outbox.ClaimDue(ctx, outboxClaimBatch)
		if err != nil {
			d.log.Warn("outbox claim failed", "error", err)
			return
		}
		if len(messages) == 0 {
			return
		}

		for _, msg := range messages {
			if err := d.deliver(ctx, msg); err != nil {
				d.log.Warn("outbox delivery failed",
					"outboxId", msg.ID, "recipient", msg.Recipient, "attempt", msg.Attempts+1, "error", err)
				if markErr := d.outbox.MarkFailed(ctx, msg.ID, err); markErr != nil {
					d.log.Error("failed to mark outbox message failed", "outboxId", msg.ID, "error", markErr)
				}
				continue
			}
			if err := d.outbox.MarkSucceeded(ctx, msg.ID); err != nil {
				d.log.Error("failed to mark outbox message succeeded", "outboxId", msg.ID, "error", err)
			}
		}
	}
}

func (d *OutboxDispatcher) deliver(ctx context.Context, msg repository.OutboxMessage) error {
	return d.sender.Send(ctx, msg.Recipient, msg.RecipientName, msg.Subject, msg.BodyHTML)
}
