package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"adops_backend/internal/notification/repository"
	"adops_backend/platform/logger"
)

type fakeOutbox struct {
	due       []repository.OutboxMessage
	succeeded []uuid.UUID
	failed    []uuid.UUID
}

func (f *fakeOutbox) ClaimDue(_ context.Context, limit int) ([]repository.OutboxMessage, error) {
	if limit > len(f.due) {
		limit = len(f.due)
	}
	claimed := f.due[:limit]
	f.due = f.due[limit:]
	return claimed, nil
}

func (f *fakeOutbox) MarkSucceeded(_ context.Context, id uuid.UUID) error {
	f.succeeded = append(f.succeeded, id)
	return nil
}

func (f *fakeOutbox) MarkFailed(_ context.Context, id uuid.UUID, _ error) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeSender struct {
	sent    []string
	failFor map[string]error
}

func (f *fakeSender) Send(_ context.Context, to, _, _, _ string) error {
	if err, ok := f.failFor[to]; ok {
		return err
	}
	f.sent = append(f.sent, to)
	return nil
}

func (f *fakeSender) Enabled() bool { return true }

func outboxMessage(recipient string) repository.OutboxMessage {
	return repository.OutboxMessage{
		ID:            uuid.New(),
		TenantID:      uuid.New(),
		Recipient:     recipient,
		RecipientName: "Admin",
		Subject:       "subject",
		BodyHTML:      "<p>body</p>",
		Status:        repository.OutboxProcessing,
		NextAttemptAt: time.Now(),
	}
}

func TestDrainDeliversAndMarksEachMessage(t *testing.T) {
	a := outboxMessage("a@studio.test")
	b := outboxMessage("b@studio.test")
	c := outboxMessage("c@studio.test")

	outbox := &fakeOutbox{due: []repository.OutboxMessage{a, b, c}}
	sender := &fakeSender{failFor: map[string]error{
		"b@studio.test": errors.New("smtp timeout"),
	}}

	d := NewOutboxDispatcher(outbox, sender, logger.New("development"))
	d.drain(context.Background())

	if got := len(sender.sent); got != 2 {
		t.Fatalf("sent = %d, want 2", got)
	}
	if got := len(outbox.succeeded); got != 2 {
		t.Fatalf("succeeded = %d, want 2", got)
	}
	if len(outbox.failed) != 1 || outbox.failed[0] != b.ID {
		t.Fatalf("failed = %v, want [%s]", outbox.failed, b.ID)
	}
}

func TestDrainKeepsClaimingUntilEmpty(t *testing.T) {
	outbox := &fakeOutbox{}
	for i := 0; i < outboxClaimBatch+10; i++ {
		outbox.due = append(outbox.due, outboxMessage("bulk@studio.test"))
	}
	sender := &fakeSender{}

	d := NewOutboxDispatcher(outbox, sender, logger.New("development"))
	d.drain(context.Background())

	if got := len(sender.sent); got != outboxClaimBatch+10 {
		t.Fatalf("sent = %d, want %d", got, outboxClaimBatch+10)
	}
	if len(outbox.due) != 0 {
		t.Fatalf("due = %d, want 0", len(outbox.due))
	}
}
