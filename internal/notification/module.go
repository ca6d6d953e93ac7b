// Package notification delivers in-app notifications and queues email for
// the outbox dispatcher. It subscribes to inventory and workflow events and
// never participates in their transactions.
package notification

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"adops_backend/internal/events"
	"adops_backend/internal/http"
	"adops_backend/internal/notification/handler"
	"adops_backend/internal/notification/repository"
	"adops_backend/internal/notification/service"
	"adops_backend/internal/tenant"
	wfrepo "adops_backend/internal/workflow/repository"
	"adops_backend/platform/config"
	platformevents "adops_backend/platform/events"
	"adops_backend/platform/logger"
)

type Module struct {
	handler       *handler.Handler
	Notifications *service.NotificationService
	Outbox        *repository.OutboxRepo
}

func NewModule(
	pool *pgxpool.Pool,
	resolver *tenant.Resolver,
	campaigns wfrepo.Campaigns,
	cfg config.NotificationConfig,
	log *logger.Logger,
) *Module {
	store := repository.NewNotifications(pool)
	outbox := repository.NewOutbox(pool)

	svc := service.NewNotificationService(store, outbox, campaignNames{campaigns}, cfg, log)

	return &Module{
		handler:       handler.New(svc, resolver, log),
		Notifications: svc,
		Outbox:        outbox,
	}
}

func (m *Module) Name() string { return "notification" }

func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	notifications := ctx.Protected.Group("/notifications")
	{
		notifications.GET("", m.handler.List)
		notifications.POST("/:id/read", m.handler.MarkRead)
		notifications.POST("/read-all", m.handler.MarkAllRead)
	}
}

// RegisterHandlers subscribes the fan-out handlers on the event bus.
func (m *Module) RegisterHandlers(bus platformevents.Bus) {
	bus.Subscribe(events.InventoryAlertCreated{}.EventName(), platformevents.HandlerFunc(
		func(ctx context.Context, event platformevents.Event) error {
			evt, ok := event.(events.InventoryAlertCreated)
			if !ok {
				return fmt.Errorf("unexpected event type %T", event)
			}
			return m.Notifications.HandleAlertCreated(ctx, evt)
		}))

	bus.Subscribe(events.ApprovalRequested{}.EventName(), platformevents.HandlerFunc(
		func(ctx context.Context, event platformevents.Event) error {
			evt, ok := event.(events.ApprovalRequested)
			if !ok {
				return fmt.Errorf("unexpected event type %T", event)
			}
			return m.Notifications.HandleApprovalRequested(ctx, evt)
		}))

	bus.Subscribe(events.OrderCreated{}.EventName(), platformevents.HandlerFunc(
		func(ctx context.Context, event platformevents.Event) error {
			evt, ok := event.(events.OrderCreated)
			if !ok {
				return fmt.Errorf("unexpected event type %T", event)
			}
			return m.Notifications.HandleOrderCreated(ctx, evt)
		}))
}

// campaignNames adapts the workflow campaign repository to the narrow lookup
// the fan-out needs.
type campaignNames struct {
	campaigns wfrepo.Campaigns
}

func (c campaignNames) CampaignName(ctx context.Context, scope tenant.Scope, id uuid.UUID) (string, error) {
	campaign, err := c.campaigns.GetByID(ctx, scope, id)
	if err != nil {
		return "", err
	}
	return campaign.Name, nil
}
