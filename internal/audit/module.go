// Package audit is the reconciliation bounded context. Its sweep audits the
// inventory ledger against ground truth and files alerts for what the
// synchronous path missed.
package audit

import (
	"adops_backend/internal/audit/handler"
	"adops_backend/internal/audit/repository"
	"adops_backend/internal/audit/service"
	"adops_backend/internal/http"
	invrepo "adops_backend/internal/inventory/repository"
	"adops_backend/internal/tenant"
	"adops_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler *handler.Handler
	Sweep   *service.Service
}

func NewModule(
	pool *pgxpool.Pool,
	ledger invrepo.Ledger,
	reservations invrepo.Reservations,
	sweeper service.ReservationSweeper,
	alerts service.AlertFiler,
	settings service.SettingsReader,
	resolver *tenant.Resolver,
	log *logger.Logger,
) *Module {
	svc := service.New(repository.New(pool), ledger, reservations, sweeper, alerts, settings, log)
	return &Module{
		handler: handler.New(svc, resolver, log),
		Sweep:   svc,
	}
}

func (m *Module) Name() string { return "audit" }

func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	ctx.Admin.GET("/audit/inventory", m.handler.RunInventoryAudit)
}
