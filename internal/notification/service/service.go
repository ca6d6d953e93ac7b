// Package service fans domain events out to in-app notifications and the
// email outbox. Fan-out is best-effort per recipient: a failure for one
// admin is logged and never blocks delivery to the others.
package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"adops_backend/internal/email"
	"adops_backend/internal/events"
	"adops_backend/internal/notification/repository"
	"adops_backend/internal/tenant"
	"adops_backend/platform/apperr"
	"adops_backend/platform/config"
	"adops_backend/platform/logger"
)

// Store is the persistence surface for in-app notifications.
type Store interface {
	Create(ctx context.Context, scope tenant.Scope, userID uuid.UUID, kind, title, body string) (repository.Notification, error)
	ListForUser(ctx context.Context, scope tenant.Scope, userID uuid.UUID, unreadOnly bool, limit int) ([]repository.Notification, error)
	CountUnread(ctx context.Context, scope tenant.Scope, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, scope tenant.Scope, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, scope tenant.Scope, userID uuid.UUID) (int, error)
	ListAdmins(ctx context.Context, scope tenant.Scope) ([]repository.Recipient, error)
	ListOrderContacts(ctx context.Context, scope tenant.Scope, orderIDs []uuid.UUID) ([]repository.Recipient, error)
}

// Outbox enqueues emails for asynchronous delivery.
type Outbox interface {
	Enqueue(ctx context.Context, tenantID uuid.UUID, recipient, recipientName, subject, bodyHTML string) error
}

// CampaignReader looks up campaign display data for approval emails.
type CampaignReader interface {
	CampaignName(ctx context.Context, scope tenant.Scope, id uuid.UUID) (string, error)
}

// NotificationService handles event fan-out and the in-app notification API.
type NotificationService struct {
	store     Store
	outbox    Outbox
	campaigns CampaignReader
	cfg       config.NotificationConfig
	log       *logger.Logger
}

func NewNotificationService(store Store, outbox Outbox, campaigns CampaignReader, cfg config.NotificationConfig, log *logger.Logger) *NotificationService {
	return &NotificationService{
		store:     store,
		outbox:    outbox,
		campaigns: campaigns,
		cfg:       cfg,
		log:       log,
	}
}

// systemScope builds the scope event handlers run under. Events carry the
// tenant but no acting user.
func systemScope(tenantID uuid.UUID) tenant.Scope {
	return tenant.NewScope(tenantID, uuid.Nil)
}

// HandleAlertCreated notifies the tenant admins and the affected orders'
// bookers about a freshly filed inventory alert, in-app and by email.
func (s *NotificationService) HandleAlertCreated(ctx context.Context, evt events.InventoryAlertCreated) error {
	scope := systemScope(evt.TenantID)

	recipients, err := s.alertRecipients(ctx, scope, evt.AffectedOrders)
	if err != nil {
		return err
	}

	title := fmt.Sprintf("Inventory alert: %s", evt.AlertType)
	detail := fmt.Sprintf("Severity %s.", evt.Severity)
	if evt.EpisodeID != nil {
		detail = fmt.Sprintf("Severity %s, episode %s.", evt.Severity, evt.EpisodeID)
	}
	if len(evt.AffectedOrders) > 0 {
		detail += fmt.Sprintf(" %d order(s) affected.", len(evt.AffectedOrders))
	}

	for _, admin := range recipients {
		if _, err := s.store.Create(ctx, scope, admin.UserID, "inventory_alert", title, detail); err != nil {
			s.log.Error("create alert notification", "error", err, "userId", admin.UserID)
			continue
		}

		body, err := email.RenderAlert(email.AlertEmailData{
			RecipientName: admin.Name,
			AlertType:     evt.AlertType,
			Severity:      evt.Severity,
			Detail:        detail,
			DashboardURL:  s.cfg.GetAppBaseURL() + "/inventory/alerts",
		})
		if err != nil {
			s.log.Error("render alert email", "error", err)
			continue
		}
		subject := email.AlertSubject(evt.AlertType, evt.Severity)
		if err := s.outbox.Enqueue(ctx, evt.TenantID, admin.Email, admin.Name, subject, body); err != nil {
			s.log.Error("enqueue alert email", "error", err, "recipient", admin.Email)
		}
	}
	return nil
}

// alertRecipients merges the tenant admins with the users who booked on the
// alert's affected orders, deduplicated by user.
func (s *NotificationService) alertRecipients(ctx context.Context, scope tenant.Scope, affectedOrders []uuid.UUID) ([]repository.Recipient, error) {
	admins, err := s.store.ListAdmins(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("list admins for alert fan-out: %w", err)
	}

	contacts, err := s.store.ListOrderContacts(ctx, scope, affectedOrders)
	if err != nil {
		return nil, fmt.Errorf("list order contacts for alert fan-out: %w", err)
	}

	seen := make(map[uuid.UUID]bool, len(admins)+len(contacts))
	out := make([]repository.Recipient, 0, len(admins)+len(contacts))
	for _, rec := range append(admins, contacts...) {
		if seen[rec.UserID] {
			continue
		}
		seen[rec.UserID] = true
		out = append(out, rec)
	}
	return out, nil
}

// HandleApprovalRequested notifies tenant admins that a campaign is waiting
// on approval at a checkpoint.
func (s *NotificationService) HandleApprovalRequested(ctx context.Context, evt events.ApprovalRequested) error {
	scope := systemScope(evt.TenantID)

	name, err := s.campaigns.CampaignName(ctx, scope, evt.CampaignID)
	if err != nil {
		if !apperr.Is(err, apperr.KindNotFound) {
			return fmt.Errorf("look up campaign for approval fan-out: %w", err)
		}
		name = evt.CampaignID.String()
	}

	admins, err := s.store.ListAdmins(ctx, scope)
	if err != nil {
		return fmt.Errorf("list admins for approval fan-out: %w", err)
	}

	title := fmt.Sprintf("Approval needed: %s", name)
	body := fmt.Sprintf("Campaign %s requires %s approval at stage %d.", name, evt.ApprovalKind, evt.Stage)

	for _, admin := range admins {
		if _, err := s.store.Create(ctx, scope, admin.UserID, "approval_request", title, body); err != nil {
			s.log.Error("create approval notification", "error", err, "userId", admin.UserID)
			continue
		}

		htmlBody, err := email.RenderApproval(email.ApprovalEmailData{
			RecipientName: admin.Name,
			CampaignName:  name,
			Stage:         evt.Stage,
			ApprovalKind:  evt.ApprovalKind,
			ReviewURL:     fmt.Sprintf("%s/campaigns/%s", s.cfg.GetAppBaseURL(), evt.CampaignID),
		})
		if err != nil {
			s.log.Error("render approval email", "error", err)
			continue
		}
		subject := email.ApprovalSubject(name, evt.Stage)
		if err := s.outbox.Enqueue(ctx, evt.TenantID, admin.Email, admin.Name, subject, htmlBody); err != nil {
			s.log.Error("enqueue approval email", "error", err, "recipient", admin.Email)
		}
	}
	return nil
}

// HandleOrderCreated records an in-app notice when a campaign completes and
// produces an insertion order. No email, the order itself is the artifact.
func (s *NotificationService) HandleOrderCreated(ctx context.Context, evt events.OrderCreated) error {
	scope := systemScope(evt.TenantID)

	admins, err := s.store.ListAdmins(ctx, scope)
	if err != nil {
		return fmt.Errorf("list admins for order fan-out: %w", err)
	}

	title := "Insertion order created"
	body := fmt.Sprintf("Campaign %s completed and produced order %s.", evt.CampaignID, evt.OrderID)
	for _, admin := range admins {
		if _, err := s.store.Create(ctx, scope, admin.UserID, "order_created", title, body); err != nil {
			s.log.Error("create order notification", "error", err, "userId", admin.UserID)
		}
	}
	return nil
}

// List returns the caller's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, scope tenant.Scope, unreadOnly bool, limit int) ([]repository.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListForUser(ctx, scope, scope.ActorID(), unreadOnly, limit)
}

// UnreadCount returns how many of the caller's notifications are unread.
func (s *NotificationService) UnreadCount(ctx context.Context, scope tenant.Scope) (int, error) {
	return s.store.CountUnread(ctx, scope, scope.ActorID())
}

// MarkRead marks one of the caller's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, scope tenant.Scope, id uuid.UUID) error {
	return s.store.MarkRead(ctx, scope, scope.ActorID(), id)
}

// MarkAllRead marks all of the caller's notifications as read and returns
// how many changed.
func (s *NotificationService) MarkAllRead(ctx context.Context, scope tenant.Scope) (int, error) {
	return s.store.MarkAllRead(ctx, scope, scope.ActorID())
}
