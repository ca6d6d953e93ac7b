package service

import (
	"context"

	"adops_backend/internal/events"
	"adops_backend/internal/inventory/repository"
	"adops_backend/internal/tenant"
	"adops_backend/platform/logger"

	"github.com/google/uuid"
)

// AlertService files and manages alert lifecycle. The reconciliation job and
// the reservation service both file alerts through it so the dedupe and
// fan-out behavior is identical regardless of source.
type AlertService struct {
	alerts repository.Alerts
	bus    events.Bus
	log    *logger.Logger
}

func NewAlertService(alerts repository.Alerts, bus events.Bus, log *logger.Logger) *AlertService {
	return &AlertService{alerts: alerts, bus: bus, log: log}
}

// File creates or refreshes an alert. Fan-out happens only for newly created
// alerts; refreshing an existing open alert stays quiet.
func (s *AlertService) File(ctx context.Context, scope tenant.Scope, params repository.UpsertAlertParams) (repository.Alert, error) {
	alert, created, err := s.alerts.Upsert(ctx, scope, params)
	if err != nil {
		return repository.Alert{}, err
	}
	if created {
		s.bus.Publish(ctx, events.InventoryAlertCreated{
			BaseEvent:      events.NewBaseEvent(),
			TenantID:       scope.TenantID(),
			AlertID:        alert.ID,
			AlertType:      string(alert.AlertType),
			Severity:       string(alert.Severity),
			EpisodeID:      alert.EpisodeID,
			AffectedOrders: alert.AffectedOrders,
		})
	}
	return alert, nil
}

func (s *AlertService) Get(ctx context.Context, scope tenant.Scope, id uuid.UUID) (repository.Alert, error) {
	return s.alerts.GetByID(ctx, scope, id)
}

func (s *AlertService) Acknowledge(ctx context.Context, scope tenant.Scope, id uuid.UUID) (repository.Alert, error) {
	return s.alerts.Acknowledge(ctx, scope, id, scope.ActorID())
}

func (s *AlertService) Resolve(ctx context.Context, scope tenant.Scope, id uuid.UUID, note string) (repository.Alert, error) {
	return s.alerts.Resolve(ctx, scope, id, scope.ActorID(), note)
}

func (s *AlertService) List(ctx context.Context, scope tenant.Scope, filter repository.AlertFilter) ([]repository.Alert, error) {
	return s.alerts.List(ctx, scope, filter)
}

func (s *AlertService) Summary(ctx context.Context, scope tenant.Scope) (repository.AlertSummary, error) {
	return s.alerts.Summary(ctx, scope)
}
