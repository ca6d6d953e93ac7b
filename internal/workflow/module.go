// Package workflow is the campaign progress bounded context. The stage
// trigger maps progress checkpoints to idempotent side effects, one of which
// reserves inventory through the inventory module.
package workflow

import (
	"adops_backend/internal/events"
	"adops_backend/internal/http"
	"adops_backend/internal/tenant"
	"adops_backend/internal/workflow/handler"
	"adops_backend/internal/workflow/repository"
	"adops_backend/internal/workflow/service"
	"adops_backend/platform/config"
	"adops_backend/platform/logger"
	"adops_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Module struct {
	handler   *handler.Handler
	Trigger   *service.TriggerService
	Campaigns repository.Campaigns
}

func NewModule(
	pool *pgxpool.Pool,
	bus events.Bus,
	resolver *tenant.Resolver,
	inventory service.InventoryManager,
	contracts service.ContractStore,
	defaults config.WorkflowDefaults,
	validate *validator.Validator,
	log *logger.Logger,
) *Module {
	campaigns := repository.NewCampaigns(pool)
	trigger := service.NewTriggerService(
		campaigns,
		repository.NewSchedules(pool),
		repository.NewEffects(pool),
		repository.NewSettings(pool),
		repository.NewArtifacts(pool),
		inventory,
		contracts,
		bus,
		defaults,
		log,
	)

	return &Module{
		handler:   handler.New(trigger, resolver, validate, log),
		Trigger:   trigger,
		Campaigns: campaigns,
	}
}

func (m *Module) Name() string { return "workflow" }

func (m *Module) RegisterRoutes(ctx *http.RouterContext) {
	ctx.Protected.GET("/campaigns/:id", m.handler.GetCampaign)
	ctx.Protected.POST("/campaigns/:id/stage", m.handler.SetStage)
	ctx.Protected.GET("/orders/:id/ad-requests", m.handler.ListOrderAdRequests)
	ctx.Protected.POST("/workflow/simulate", m.handler.Simulate)
	ctx.Admin.POST("/campaigns/:id/approve", m.handler.ApproveCampaign)
	ctx.Protected.GET("/workflow/settings", m.handler.GetSettings)
	ctx.Protected.PUT("/workflow/settings", m.handler.UpdateSettings)
}
