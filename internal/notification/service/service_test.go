package service

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"

	"adops_backend/internal/events"
	"adops_backend/internal/notification/repository"
	"adops_backend/internal/tenant"
	"adops_backend/platform/apperr"
	"adops_backend/platform/logger"
)

type fakeStore struct {
	admins        []repository.Recipient
	orderContacts map[uuid.UUID][]repository.Recipient
	created       []repository.Notification
	read          map[uuid.UUID]bool
}

func (f *fakeStore) Create(_ context.Context, scope tenant.Scope, userID uuid.UUID, kind, title, body string) (repository.Notification, error) {
	n := repository.Notification{
		ID:       uuid.New(),
		TenantID: scope.TenantID(),
		UserID:   userID,
		Kind:     kind,
		Title:    title,
		Body:     body,
	}
	f.created = append(f.created, n)
	return n, nil
}

func (f *fakeStore) ListForUser(_ context.Context, _ tenant.Scope, userID uuid.UUID, unreadOnly bool, _ int) ([]repository.Notification, error) {
	var out []repository.Notification
	for _, n := range f.created {
		if n.UserID != userID {
			continue
		}
		if unreadOnly && f.read[n.ID] {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeStore) CountUnread(_ context.Context, _ tenant.Scope, userID uuid.UUID) (int, error) {
	count := 0
	for _, n := range f.created {
		if n.UserID == userID && !f.read[n.ID] {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) MarkRead(_ context.Context, _ tenant.Scope, userID, id uuid.UUID) error {
	for _, n := range f.created {
		if n.ID == id && n.UserID == userID {
			f.read[id] = true
			return nil
		}
	}
	return apperr.NotFound("notification not found")
}

func (f *fakeStore) MarkAllRead(_ context.Context, _ tenant.Scope, userID uuid.UUID) (int, error) {
	updated := 0
	for _, n := range f.created {
		if n.UserID == userID && !f.read[n.ID] {
			f.read[n.ID] = true
			updated++
		}
	}
	return updated, nil
}

func (f *fakeStore) ListAdmins(_ context.Context, _ tenant.Scope) ([]repository.Recipient, error) {
	return f.admins, nil
}

func (f *fakeStore) ListOrderContacts(_ context.Context, _ tenant.Scope, orderIDs []uuid.UUID) ([]repository.Recipient, error) {
	var out []repository.Recipient
	for _, id := range orderIDs {
		out = append(out, f.orderContacts[id]...)
	}
	return out, nil
}

type queuedEmail struct {
	recipient string
	subject   string
	body      string
}

type fakeOutbox struct {
	queued []queuedEmail
}

func (f *fakeOutbox) Enqueue(_ context.Context, _ uuid.UUID, recipient, _, subject, body string) error {
	f.queued = append(f.queued, queuedEmail{recipient: recipient, subject: subject, body: body})
	return nil
}

type fakeCampaignNames struct {
	names map[uuid.UUID]string
}

func (f fakeCampaignNames) CampaignName(_ context.Context, _ tenant.Scope, id uuid.UUID) (string, error) {
	name, ok := f.names[id]
	if !ok {
		return "", apperr.NotFound("campaign not found")
	}
	return name, nil
}

type fakeNotifyConfig struct{}

func (fakeNotifyConfig) GetAppBaseURL() string { return "https://app.example.test" }

type fanoutDeps struct {
	svc    *NotificationService
	store  *fakeStore
	outbox *fakeOutbox
	names  fakeCampaignNames
}

func newFanoutTest(admins int) fanoutDeps {
	store := &fakeStore{
		read:          map[uuid.UUID]bool{},
		orderContacts: map[uuid.UUID][]repository.Recipient{},
	}
	for i := 0; i < admins; i++ {
		store.admins = append(store.admins, repository.Recipient{
			UserID: uuid.New(),
			Email:  "admin" + strings.Repeat("x", i) + "@studio.test",
			Name:   "Admin",
		})
	}
	outbox := &fakeOutbox{}
	names := fakeCampaignNames{names: map[uuid.UUID]string{}}
	svc := NewNotificationService(store, outbox, names, fakeNotifyConfig{}, logger.New("development"))
	return fanoutDeps{svc: svc, store: store, outbox: outbox, names: names}
}

func TestAlertFanOutReachesEveryAdmin(t *testing.T) {
	d := newFanoutTest(3)
	episodeID := uuid.New()

	evt := events.InventoryAlertCreated{
		TenantID:  uuid.New(),
		AlertID:   uuid.New(),
		AlertType: "overbooking",
		Severity:  "critical",
		EpisodeID: &episodeID,
	}
	if err := d.svc.HandleAlertCreated(context.Background(), evt); err != nil {
		t.Fatalf("HandleAlertCreated: %v", err)
	}

	if got := len(d.store.created); got != 3 {
		t.Fatalf("in-app notifications = %d, want 3", got)
	}
	if got := len(d.outbox.queued); got != 3 {
		t.Fatalf("queued emails = %d, want 3", got)
	}
	for _, n := range d.store.created {
		if n.Kind != "inventory_alert" {
			t.Errorf("notification kind = %q, want inventory_alert", n.Kind)
		}
		if !strings.Contains(n.Body, episodeID.String()) {
			t.Errorf("notification body %q misses episode id", n.Body)
		}
	}
	if subj := d.outbox.queued[0].subject; !strings.Contains(subj, "overbooking") {
		t.Errorf("email subject %q misses alert type", subj)
	}
	if body := d.outbox.queued[0].body; !strings.Contains(body, "/inventory/alerts") {
		t.Errorf("email body misses dashboard link: %q", body)
	}
}

func TestAlertFanOutIncludesAffectedOrderContacts(t *testing.T) {
	d := newFanoutTest(1)
	orderID := uuid.New()
	booker := repository.Recipient{UserID: uuid.New(), Email: "booker@studio.test", Name: "Booker"}
	d.store.orderContacts[orderID] = []repository.Recipient{booker, d.store.admins[0]}

	evt := events.InventoryAlertCreated{
		TenantID:       uuid.New(),
		AlertID:        uuid.New(),
		AlertType:      "deletion_impact",
		Severity:       "medium",
		AffectedOrders: []uuid.UUID{orderID},
	}
	if err := d.svc.HandleAlertCreated(context.Background(), evt); err != nil {
		t.Fatalf("HandleAlertCreated: %v", err)
	}

	// The admin who also booked must be notified once, plus the booker.
	if got := len(d.store.created); got != 2 {
		t.Fatalf("in-app notifications = %d, want 2", got)
	}
	recipients := map[uuid.UUID]bool{}
	for _, n := range d.store.created {
		recipients[n.UserID] = true
	}
	if !recipients[booker.UserID] {
		t.Error("order contact missing from fan-out")
	}
	if !recipients[d.store.admins[0].UserID] {
		t.Error("admin missing from fan-out")
	}
}

func TestApprovalFanOutUsesCampaignName(t *testing.T) {
	d := newFanoutTest(2)
	campaignID := uuid.New()
	d.names.names[campaignID] = "Q4 Coffee Push"

	evt := events.ApprovalRequested{
		TenantID:     uuid.New(),
		CampaignID:   campaignID,
		Stage:        65,
		ApprovalKind: "admin",
	}
	if err := d.svc.HandleApprovalRequested(context.Background(), evt); err != nil {
		t.Fatalf("HandleApprovalRequested: %v", err)
	}

	if got := len(d.outbox.queued); got != 2 {
		t.Fatalf("queued emails = %d, want 2", got)
	}
	if subj := d.outbox.queued[0].subject; !strings.Contains(subj, "Q4 Coffee Push") {
		t.Errorf("email subject %q misses campaign name", subj)
	}
	if body := d.outbox.queued[0].body; !strings.Contains(body, campaignID.String()) {
		t.Errorf("email body misses review link: %q", body)
	}
}

func TestApprovalFanOutFallsBackWhenCampaignMissing(t *testing.T) {
	d := newFanoutTest(1)
	campaignID := uuid.New()

	evt := events.ApprovalRequested{
		TenantID:   uuid.New(),
		CampaignID: campaignID,
		Stage:      65,
	}
	if err := d.svc.HandleApprovalRequested(context.Background(), evt); err != nil {
		t.Fatalf("HandleApprovalRequested: %v", err)
	}
	if got := len(d.store.created); got != 1 {
		t.Fatalf("in-app notifications = %d, want 1", got)
	}
	if title := d.store.created[0].Title; !strings.Contains(title, campaignID.String()) {
		t.Errorf("title %q should fall back to the campaign id", title)
	}
}

func TestOrderFanOutSkipsEmail(t *testing.T) {
	d := newFanoutTest(2)

	evt := events.OrderCreated{
		TenantID:   uuid.New(),
		OrderID:    uuid.New(),
		CampaignID: uuid.New(),
	}
	if err := d.svc.HandleOrderCreated(context.Background(), evt); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}
	if got := len(d.store.created); got != 2 {
		t.Fatalf("in-app notifications = %d, want 2", got)
	}
	if got := len(d.outbox.queued); got != 0 {
		t.Fatalf("queued emails = %d, want 0", got)
	}
}

func TestMarkAllReadCoversOnlyCaller(t *testing.T) {
	d := newFanoutTest(2)
	tenantID := uuid.New()

	if err := d.svc.HandleOrderCreated(context.Background(), events.OrderCreated{
		TenantID:   tenantID,
		OrderID:    uuid.New(),
		CampaignID: uuid.New(),
	}); err != nil {
		t.Fatalf("HandleOrderCreated: %v", err)
	}

	caller := tenant.NewScope(tenantID, d.store.admins[0].UserID)
	updated, err := d.svc.MarkAllRead(context.Background(), caller)
	if err != nil {
		t.Fatalf("MarkAllRead: %v", err)
	}
	if updated != 1 {
		t.Fatalf("updated = %d, want 1", updated)
	}

	otherUnread, err := d.svc.UnreadCount(context.Background(), tenant.NewScope(tenantID, d.store.admins[1].UserID))
	if err != nil {
		t.Fatalf("UnreadCount: %v", err)
	}
	if otherUnread != 1 {
		t.Fatalf("other admin unread = %d, want 1", otherUnread)
	}
}
