package service

import (
	"context"
	"fmt"
	"time"

	"adops_backend/internal/events"
	invrepo "adops_backend/internal/inventory/repository"
	invservice "adops_backend/internal/inventory/service"
	"adops_backend/internal/tenant"
	"adops_backend/internal/workflow/domain"
	"adops_backend/internal/workflow/repository"
	"adops_backend/platform/apperr"
	"adops_backend/platform/config"
	"adops_backend/platform/logger"

	"github.com/google/uuid"
)

// EffectStatus is the per-step outcome in an advance plan.
type EffectStatus string

const (
	// EffectApplied means the step ran in this invocation.
	EffectApplied EffectStatus = "applied"
	// EffectSkipped means the idempotency record already existed.
	EffectSkipped EffectStatus = "skipped_already_applied"
	// EffectWouldApply is the dry-run answer for a step that has not run.
	EffectWouldApply EffectStatus = "would_apply"
)

// EffectResult is one step of an advance plan.
type EffectResult struct {
	Stage  domain.Stage `json:"stage"`
	Effect string       `json:"effect"`
	Status EffectStatus `json:"status"`
	Detail string       `json:"detail,omitempty"`
}

// AdvanceResult is the full outcome of a stage transition or simulation.
type AdvanceResult struct {
	CampaignID    uuid.UUID      `json:"campaignId"`
	FromStage     domain.Stage   `json:"fromStage"`
	ToStage       domain.Stage   `json:"toStage"`
	DryRun        bool           `json:"dryRun"`
	Applied       bool           `json:"applied"`
	Regression    bool           `json:"regression"`
	Plan          []EffectResult `json:"plan"`
	Notifications []string       `json:"notifications"`
}

// InventoryManager is the slice of the reservation service the trigger
// consumes.
type InventoryManager interface {
	Hold(ctx context.Context, scope tenant.Scope, params invservice.HoldParams) (invservice.HoldResult, error)
	Confirm(ctx context.Context, scope tenant.Scope, reservationID uuid.UUID) (invrepo.Reservation, error)
	ListActiveByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]invrepo.Reservation, error)
	ListByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]invrepo.Reservation, error)
	ReleaseActiveForCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID, reason string) (int, error)
}

// ContractStore renders and stores contract documents. When disabled the
// contract row is still written, just without an object key.
type ContractStore interface {
	Enabled() bool
	StoreContract(ctx context.Context, tenantID, campaignID uuid.UUID, content []byte) (string, error)
}

// TriggerService maps campaign progress transitions to their named,
// idempotent side effects.
type TriggerService struct {
	campaigns repository.Campaigns
	schedules repository.Schedules
	effects   repository.Effects
	settings  repository.SettingsStore
	artifacts repository.Artifacts
	inventory InventoryManager
	contracts ContractStore
	bus       events.Bus
	defaults  config.WorkflowDefaults
	log       *logger.Logger
	now       func() time.Time
}

func NewTriggerService(
	campaigns repository.Campaigns,
	schedules repository.Schedules,
	effects repository.Effects,
	settings repository.SettingsStore,
	artifacts repository.Artifacts,
	inventory InventoryManager,
	contracts ContractStore,
	bus events.Bus,
	defaults config.WorkflowDefaults,
	log *logger.Logger,
) *TriggerService {
	return &TriggerService{
		campaigns: campaigns,
		schedules: schedules,
		effects:   effects,
		settings:  settings,
		artifacts: artifacts,
		inventory: inventory,
		contracts: contracts,
		bus:       bus,
		defaults:  defaults,
		log:       log,
		now:       time.Now,
	}
}

func (s *TriggerService) fallbackSettings() repository.Settings {
	return repository.Settings{
		HoldTTLHours:     s.defaults.HoldTTLHours,
		AutoReserve:      s.defaults.AutoReserve,
		ApprovalRequired: s.defaults.ApprovalRequired,
		StageSLAHours:    s.defaults.StageSLAHours,
	}
}

// Advance moves a campaign to targetStage, running the effects of every
// checkpoint crossed. With dryRun the plan is computed and nothing is
// written. A regression releases the campaign's active holds instead of
// running checkpoint effects.
func (s *TriggerService) Advance(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID, targetStage domain.Stage, dryRun bool) (AdvanceResult, error) {
	if !targetStage.Valid() {
		return AdvanceResult{}, apperr.Validation("target stage must be between 0 and 100")
	}

	campaign, err := s.campaigns.GetByID(ctx, scope, campaignID)
	if err != nil {
		return AdvanceResult{}, err
	}

	result := AdvanceResult{
		CampaignID: campaignID,
		FromStage:  campaign.Progress,
		ToStage:    targetStage,
		DryRun:     dryRun,
	}

	if targetStage == campaign.Progress {
		return result, nil
	}

	settings, err := s.settings.Get(ctx, scope, s.fallbackSettings())
	if err != nil {
		return AdvanceResult{}, err
	}

	// The terminal stage is gated on the admin sign-off requested at the
	// reserved checkpoint. Simulations hit the same wall a real run would.
	if targetStage == domain.StageComplete && !domain.IsRegression(campaign.Progress, targetStage) &&
		settings.ApprovalRequired && campaign.ApprovedAt == nil {
		return result, apperr.Conflict("campaign completion requires admin approval")
	}

	run := &advanceRun{
		TriggerService: s,
		scope:          scope,
		campaign:       campaign,
		settings:       settings,
		dryRun:         dryRun,
		result:         &result,
	}

	if domain.IsRegression(campaign.Progress, targetStage) {
		result.Regression = true
		if err := run.regress(ctx, targetStage); err != nil {
			return result, err
		}
	} else {
		for _, checkpoint := range domain.CheckpointsCrossed(campaign.Progress, targetStage) {
			if err := run.runCheckpoint(ctx, checkpoint); err != nil {
				return result, err
			}
		}
	}

	if dryRun {
		return result, nil
	}

	status := campaign.Status
	switch {
	case targetStage == domain.StageComplete:
		status = repository.CampaignCompleted
	case result.Regression && targetStage == 0:
		status = repository.CampaignRejected
	case status == repository.CampaignDraft:
		status = repository.CampaignActive
	}

	moved, err := s.campaigns.UpdateProgress(ctx, scope, campaignID, campaign.Progress, targetStage, status)
	if err != nil {
		return result, err
	}
	if !moved {
		return result, apperr.Conflict("campaign progress changed concurrently")
	}
	result.Applied = true

	s.bus.Publish(ctx, events.CampaignStageChanged{
		BaseEvent:  events.NewBaseEvent(),
		TenantID:   scope.TenantID(),
		CampaignID: campaignID,
		FromStage:  int(campaign.Progress),
		ToStage:    int(targetStage),
	})
	s.log.Info("campaign stage changed",
		"campaign_id", campaignID.String(),
		"from", int(campaign.Progress),
		"to", int(targetStage),
	)
	return result, nil
}

// advanceRun carries the per-invocation state through the effect steps.
type advanceRun struct {
	*TriggerService
	scope    tenant.Scope
	campaign repository.Campaign
	settings repository.Settings
	dryRun   bool
	result   *AdvanceResult
}

func (r *advanceRun) note(stage domain.Stage, effect string, status EffectStatus, detail string) {
	r.result.Plan = append(r.result.Plan, EffectResult{Stage: stage, Effect: effect, Status: status, Detail: detail})
}

func (r *advanceRun) notify(name string) {
	r.result.Notifications = append(r.result.Notifications, name)
}

// step gates one effect behind its idempotency record. The record is written
// before fn runs so a re-invocation is a guaranteed no-op. fn is never
// called on dry runs; wouldNotify lists the notifications fn would fire, so
// a simulation reports them without running the effect.
func (r *advanceRun) step(ctx context.Context, stage domain.Stage, effect string, fn func(ctx context.Context) (string, error), wouldNotify ...string) error {
	applied, err := r.effects.Applied(ctx, r.scope, r.campaign.ID, stage, effect)
	if err != nil {
		return err
	}
	if applied {
		r.note(stage, effect, EffectSkipped, "")
		return nil
	}
	if r.dryRun {
		r.note(stage, effect, EffectWouldApply, "")
		for _, name := range wouldNotify {
			r.notify(name)
		}
		return nil
	}

	recorded, err := r.effects.Record(ctx, r.scope, r.campaign.ID, stage, effect)
	if err != nil {
		return err
	}
	if !recorded {
		// A concurrent invocation claimed the key first.
		r.note(stage, effect, EffectSkipped, "claimed concurrently")
		return nil
	}

	detail, err := fn(ctx)
	if err != nil {
		return fmt.Errorf("effect %s at stage %d: %w", effect, int(stage), err)
	}
	r.note(stage, effect, EffectApplied, detail)
	return nil
}

func (r *advanceRun) runCheckpoint(ctx context.Context, checkpoint domain.Stage) error {
	switch checkpoint {
	case domain.StageBuildable:
		return r.step(ctx, checkpoint, domain.EffectMarkBuildable, r.markBuildable)
	case domain.StageValidated:
		if err := r.step(ctx, checkpoint, domain.EffectValidateSchedule, r.validateSchedule); err != nil {
			return err
		}
		return r.step(ctx, checkpoint, domain.EffectRateTracking, func(context.Context) (string, error) {
			return "rate-card delta tracking enabled", nil
		})
	case domain.StageApproval:
		if err := r.step(ctx, checkpoint, domain.EffectRequestApproval,
			r.requestApproval(checkpoint, "talent_producer"), r.approvalNotifications("talent_producer")...); err != nil {
			return err
		}
		return r.step(ctx, checkpoint, domain.EffectExclusivityCheck, r.exclusivityCheck)
	case domain.StageReserved:
		if err := r.step(ctx, checkpoint, domain.EffectReserveSlots, r.reserveSlots); err != nil {
			return err
		}
		return r.step(ctx, checkpoint, domain.EffectAdminApproval,
			r.requestApproval(checkpoint, "admin"), r.approvalNotifications("admin")...)
	case domain.StageComplete:
		if err := r.step(ctx, checkpoint, domain.EffectConfirmHolds, r.confirmHolds); err != nil {
			return err
		}
		if err := r.step(ctx, checkpoint, domain.EffectCreateOrder, r.createOrder, "order_created"); err != nil {
			return err
		}
		if err := r.step(ctx, checkpoint, domain.EffectAdRequests, r.generateAdRequests); err != nil {
			return err
		}
		if err := r.step(ctx, checkpoint, domain.EffectContract, r.generateContract); err != nil {
			return err
		}
		return r.step(ctx, checkpoint, domain.EffectBillingSchedule, r.createBillingSchedule)
	}
	return nil
}

// regress releases the campaign's active holds. Confirmed bookings are left
// in place; releasing those is a business decision an operator makes
// explicitly, not a workflow side effect.
func (r *advanceRun) regress(ctx context.Context, target domain.Stage) error {
	if r.dryRun {
		active, err := r.inventory.ListActiveByCampaign(ctx, r.scope, r.campaign.ID)
		if err != nil {
			return err
		}
		r.note(target, domain.EffectReleaseOnRollback, EffectWouldApply,
			fmt.Sprintf("%d active holds would be released", len(active)))
		return nil
	}

	released, err := r.inventory.ReleaseActiveForCampaign(ctx, r.scope, r.campaign.ID, "stage regression")
	if err != nil {
		return err
	}
	r.note(target, domain.EffectReleaseOnRollback, EffectApplied,
		fmt.Sprintf("released %d active holds", released))
	return nil
}

func (r *advanceRun) markBuildable(ctx context.Context) (string, error) {
	if err := r.campaigns.SetBuildable(ctx, r.scope, r.campaign.ID); err != nil {
		return "", err
	}
	return "schedule editing enabled", nil
}

func (r *advanceRun) validateSchedule(ctx context.Context) (string, error) {
	schedules, err := r.schedules.ListByCampaign(ctx, r.scope, r.campaign.ID)
	if err != nil {
		return "", err
	}
	if len(schedules) == 0 {
		return "", apperr.Validation("campaign has no schedules")
	}
	for _, sched := range schedules {
		if !invrepo.Placement(sched.Placement).Valid() {
			return "", apperr.Validation("schedule has unknown placement type " + sched.Placement)
		}
		if sched.Quantity < 1 {
			return "", apperr.Validation("schedule quantity must be positive")
		}
	}
	return fmt.Sprintf("%d schedules valid", len(schedules)), nil
}

// approvalNotifications is the would-fire list for an approval request step,
// empty when the tenant has approvals switched off.
func (r *advanceRun) approvalNotifications(kind string) []string {
	if !r.settings.ApprovalRequired {
		return nil
	}
	return []string{"approval_requested:" + kind}
}

func (r *advanceRun) requestApproval(stage domain.Stage, kind string) func(context.Context) (string, error) {
	return func(ctx context.Context) (string, error) {
		if !r.settings.ApprovalRequired {
			return "approval not required for tenant", nil
		}
		r.bus.Publish(ctx, events.ApprovalRequested{
			BaseEvent:    events.NewBaseEvent(),
			TenantID:     r.scope.TenantID(),
			CampaignID:   r.campaign.ID,
			Stage:        int(stage),
			ApprovalKind: kind,
		})
		r.notify("approval_requested:" + kind)
		return kind + " approval requested", nil
	}
}

func (r *advanceRun) exclusivityCheck(ctx context.Context) (string, error) {
	conflicting, err := r.schedules.ListConflicting(ctx, r.scope, r.campaign.ID)
	if err != nil {
		return "", err
	}
	if len(conflicting) == 0 {
		return "no competing schedules", nil
	}
	// Competing demand is informational at this stage; the ledger settles it
	// at reservation time.
	return fmt.Sprintf("%d competing schedules on shared slots", len(conflicting)), nil
}

// reserveSlots places a hold for every scheduled slot. The reservation
// manager dedupes per (campaign, episode, placement), so a retry after a
// partial failure only acquires what is still missing.
func (r *advanceRun) reserveSlots(ctx context.Context) (string, error) {
	if !r.settings.AutoReserve {
		return "auto-reserve disabled for tenant", nil
	}
	schedules, err := r.schedules.ListByCampaign(ctx, r.scope, r.campaign.ID)
	if err != nil {
		return "", err
	}

	ttl := time.Duration(r.settings.HoldTTLHours) * time.Hour
	held, reused := 0, 0
	for _, sched := range schedules {
		schedID := sched.ID
		result, err := r.inventory.Hold(ctx, r.scope, invservice.HoldParams{
			ShowID:     sched.ShowID,
			EpisodeID:  sched.EpisodeID,
			Placement:  invrepo.Placement(sched.Placement),
			CampaignID: r.campaign.ID,
			ScheduleID: &schedID,
			Quantity:   sched.Quantity,
			TTL:        ttl,
		})
		if err != nil {
			return "", err
		}
		if result.Reused {
			reused++
		} else {
			held++
		}
	}
	return fmt.Sprintf("%d holds placed, %d already held", held, reused), nil
}

func (r *advanceRun) confirmHolds(ctx context.Context) (string, error) {
	active, err := r.inventory.ListActiveByCampaign(ctx, r.scope, r.campaign.ID)
	if err != nil {
		return "", err
	}
	for _, res := range active {
		if _, err := r.inventory.Confirm(ctx, r.scope, res.ID); err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%d reservations confirmed", len(active)), nil
}

func (r *advanceRun) createOrder(ctx context.Context) (string, error) {
	schedules, err := r.schedules.ListByCampaign(ctx, r.scope, r.campaign.ID)
	if err != nil {
		return "", err
	}
	var total int64
	for _, sched := range schedules {
		total += sched.RateCents * int64(sched.Quantity)
	}

	order, err := r.artifacts.CreateOrder(ctx, r.scope, r.campaign.ID, total)
	if err != nil {
		return "", err
	}

	r.bus.Publish(ctx, events.OrderCreated{
		BaseEvent:  events.NewBaseEvent(),
		TenantID:   r.scope.TenantID(),
		OrderID:    order.ID,
		CampaignID: r.campaign.ID,
	})
	r.notify("order_created")
	return "order " + order.OrderNumber, nil
}

func (r *advanceRun) generateAdRequests(ctx context.Context) (string, error) {
	order, err := r.artifacts.GetOrderByCampaign(ctx, r.scope, r.campaign.ID)
	if err != nil {
		return "", err
	}
	reservations, err := r.inventory.ListByCampaign(ctx, r.scope, r.campaign.ID)
	if err != nil {
		return "", err
	}

	created := 0
	for _, res := range reservations {
		if res.Status != invrepo.StatusConfirmed {
			continue
		}
		_, err := r.artifacts.CreateAdRequest(ctx, r.scope, repository.AdRequest{
			OrderID:       order.ID,
			CampaignID:    r.campaign.ID,
			ReservationID: res.ID,
			EpisodeID:     res.EpisodeID,
			Placement:     string(res.Placement),
		})
		if err != nil {
			return "", err
		}
		created++
	}
	return fmt.Sprintf("%d ad requests", created), nil
}

func (r *advanceRun) generateContract(ctx context.Context) (string, error) {
	order, err := r.artifacts.GetOrderByCampaign(ctx, r.scope, r.campaign.ID)
	if err != nil {
		return "", err
	}

	var objectKey *string
	if r.contracts != nil && r.contracts.Enabled() {
		content := renderContract(r.campaign, order)
		key, err := r.contracts.StoreContract(ctx, r.scope.TenantID(), r.campaign.ID, content)
		if err != nil {
			// The contract row is the system of record; the rendered document
			// can be regenerated later.
			r.log.Error("failed to store contract document",
				"campaign_id", r.campaign.ID.String(), "error", err)
		} else {
			objectKey = &key
		}
	}

	if _, err := r.artifacts.CreateContract(ctx, r.scope, r.campaign.ID, order.ID, objectKey); err != nil {
		return "", err
	}
	if objectKey != nil {
		return "contract stored at " + *objectKey, nil
	}
	return "contract row written", nil
}

// createBillingSchedule splits the order total into monthly installments.
func (r *advanceRun) createBillingSchedule(ctx context.Context) (string, error) {
	order, err := r.artifacts.GetOrderByCampaign(ctx, r.scope, r.campaign.ID)
	if err != nil {
		return "", err
	}

	const installments = 3
	per := order.TotalCents / installments
	remainder := order.TotalCents - per*installments

	entries := make([]repository.BillingScheduleEntry, 0, installments)
	due := r.now().AddDate(0, 1, 0)
	for i := 0; i < installments; i++ {
		amount := per
		if i == installments-1 {
			amount += remainder
		}
		entries = append(entries, repository.BillingScheduleEntry{
			OrderID:     order.ID,
			DueAt:       due.AddDate(0, i, 0),
			AmountCents: amount,
		})
	}
	if err := r.artifacts.CreateBillingEntries(ctx, r.scope, order.ID, entries); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d installments scheduled", installments), nil
}

func renderContract(c repository.Campaign, o repository.Order) []byte {
	return []byte(fmt.Sprintf(
		"INSERTION ORDER %s\n\nAdvertiser: %s\nCampaign: %s\nTotal: %d.%02d\n",
		o.OrderNumber, c.AdvertiserName, c.Name, o.TotalCents/100, o.TotalCents%100,
	))
}

// GetCampaign returns one campaign.
func (s *TriggerService) GetCampaign(ctx context.Context, scope tenant.Scope, id uuid.UUID) (repository.Campaign, error) {
	return s.campaigns.GetByID(ctx, scope, id)
}

// ApproveCampaign records the admin sign-off that unlocks the terminal
// stage. Approving twice keeps the first actor and timestamp.
func (s *TriggerService) ApproveCampaign(ctx context.Context, scope tenant.Scope, id uuid.UUID) (repository.Campaign, error) {
	campaign, err := s.campaigns.Approve(ctx, scope, id)
	if err != nil {
		return repository.Campaign{}, err
	}
	s.log.Info("campaign approved",
		"campaign_id", id.String(),
		"approved_by", scope.ActorID().String(),
	)
	return campaign, nil
}

// ListOrderAdRequests returns the production requests generated for an
// order at the terminal stage.
func (s *TriggerService) ListOrderAdRequests(ctx context.Context, scope tenant.Scope, orderID uuid.UUID) ([]repository.AdRequest, error) {
	return s.artifacts.ListAdRequestsByOrder(ctx, scope, orderID)
}

// GetSettings returns the tenant's workflow settings, falling back to the
// file-seeded defaults.
func (s *TriggerService) GetSettings(ctx context.Context, scope tenant.Scope) (repository.Settings, error) {
	return s.settings.Get(ctx, scope, s.fallbackSettings())
}

// UpdateSettings stores per-tenant workflow settings.
func (s *TriggerService) UpdateSettings(ctx context.Context, scope tenant.Scope, settings repository.Settings) error {
	if settings.HoldTTLHours < 1 || settings.HoldTTLHours > 720 {
		return apperr.Validation("hold TTL must be between 1 and 720 hours")
	}
	if settings.StageSLAHours < 1 {
		return apperr.Validation("stage SLA must be positive")
	}
	return s.settings.Upsert(ctx, scope, settings)
}
