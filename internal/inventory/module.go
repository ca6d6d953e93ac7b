// Package inventory is the ad-slot capacity bounded context. It owns the
// counter ledger, the reservation lifecycle and inventory alerts.
package inventory

import (
	"adops_backend/internal/events"
	"adops_backend/internal/http"
	"adops_backend/internal/inventory/handler"
	"adops_backend/internal/inventory/repository"
	"adops_backend/internal/inventory/service"
	"adops_backend/internal/tenant"
	"adops_backend/platform/config"
	"adops_backend/platform/logger"
	"adops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler      *handler.Handler
	Reservations *service.ReservationService
	Alerts       *service.AlertService
	Ledger       repository.Ledger
	Repo         repository.Reservations
}

// NewModule wires the inventory bounded context. The exported services are
// consumed by the workflow and audit modules; capacity movement still goes
// through the ledger only.
func NewModule(
	pool *pgxpool.Pool,
	bus events.Bus,
	resolver *tenant.Resolver,
	cfg config.InventoryConfig,
	defaults config.WorkflowDefaults,
	validate *validator.Validator,
	log *logger.Logger,
) *Module {
	ledger := repository.NewLedger(pool, cfg.GetLockTimeout())
	reservations := repository.NewReservations(pool)
	alerts := repository.NewAlerts(pool)

	reservationSvc := service.NewReservationService(ledger, reservations, alerts, bus, cfg, defaults, log)
	alertSvc := service.NewAlertService(alerts, bus, log)

	return &Module{
		handler:      handler.New(reservationSvc, alertSvc, resolver, validate, log),
		Reservations: reservationSvc,
		Alerts:       alertSvc,
		Ledger:       ledger,
		Repo:         reservations,
	}
}

func (m *Module) Name() string { return "inventory" }

func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	reservations := ctx.Protected.Group("/reservations")
	{
		reservations.POST("", m.handler.CreateReservation)
		reservations.GET("/:id", m.handler.GetReservation)
		reservations.POST("/:id/confirm", m.handler.ConfirmReservation)
		reservations.POST("/:id/release", m.handler.ReleaseReservation)
		reservations.POST("/:id/extend", m.handler.ExtendReservation)
	}

	ctx.Protected.GET("/campaigns/:id/reservations", m.handler.ListCampaignReservations)
	ctx.Protected.GET("/episodes/:id/inventory", m.handler.GetEpisodeInventory)

	alerts := ctx.Protected.Group("/inventory/alerts")
	{
		alerts.GET("", m.handler.ListAlerts)
		alerts.PUT("", m.handler.UpdateAlert)
		alerts.GET("/summary", m.handler.GetAlertSummary)
		alerts.POST("/:id/acknowledge", m.handler.AcknowledgeAlert)
		alerts.POST("/:id/resolve", m.handler.ResolveAlert)
	}

	ctx.Admin.POST("/inventory/recount", m.handler.Recount)
}
