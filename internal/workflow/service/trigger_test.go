package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"adops_backend/internal/events"
	invrepo "adops_backend/internal/inventory/repository"
	invservice "adops_backend/internal/inventory/service"
	"adops_backend/internal/tenant"
	"adops_backend/platform/apperr"
	"adops_backend/platform/config"
	"adops_backend/platform/logger"

	"adops_backend/internal/workflow/domain"
	"adops_backend/internal/workflow/repository"

	"github.com/google/uuid"
)

type fakeCampaigns struct {
	mu   sync.Mutex
	rows map[uuid.UUID]repository.Campaign
}

func (f *fakeCampaigns) GetByID(_ context.Context, _ tenant.Scope, id uuid.UUID) (repository.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return repository.Campaign{}, apperr.NotFound("campaign not found")
	}
	return c, nil
}

func (f *fakeCampaigns) UpdateProgress(_ context.Context, _ tenant.Scope, id uuid.UUID, expected, target domain.Stage, status repository.CampaignStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok || c.Progress != expected {
		return false, nil
	}
	c.Progress = target
	c.Status = status
	c.StageChangedAt = time.Now()
	f.rows[id] = c
	return true, nil
}

func (f *fakeCampaigns) SetBuildable(_ context.Context, _ tenant.Scope, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.rows[id]
	c.Buildable = true
	f.rows[id] = c
	return nil
}

func (f *fakeCampaigns) Approve(_ context.Context, scope tenant.Scope, id uuid.UUID) (repository.Campaign, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.rows[id]
	if !ok {
		return repository.Campaign{}, apperr.NotFound("campaign not found")
	}
	if c.ApprovedAt == nil {
		now := time.Now()
		actor := scope.ActorID()
		c.ApprovedAt = &now
		c.ApprovedBy = &actor
		f.rows[id] = c
	}
	return c, nil
}

type fakeSchedules struct {
	rows []repository.Schedule
}

func (f *fakeSchedules) ListByCampaign(_ context.Context, _ tenant.Scope, campaignID uuid.UUID) ([]repository.Schedule, error) {
	var out []repository.Schedule
	for _, s := range f.rows {
		if s.CampaignID == campaignID {
			out = append(out, s)
		}
	}
	return out, nil
}

func (f *fakeSchedules) ListConflicting(context.Context, tenant.Scope, uuid.UUID) ([]repository.Schedule, error) {
	return nil, nil
}

type effectKey struct {
	campaign uuid.UUID
	stage    domain.Stage
	effect   string
}

type fakeEffects struct {
	mu   sync.Mutex
	keys map[effectKey]bool
}

func (f *fakeEffects) Record(_ context.Context, _ tenant.Scope, campaignID uuid.UUID, stage domain.Stage, effect string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	k := effectKey{campaignID, stage, effect}
	if f.keys[k] {
		return false, nil
	}
	f.keys[k] = true
	return true, nil
}

func (f *fakeEffects) Applied(_ context.Context, _ tenant.Scope, campaignID uuid.UUID, stage domain.Stage, effect string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.keys[effectKey{campaignID, stage, effect}], nil
}

type fakeSettings struct {
	stored *repository.Settings
}

func (f *fakeSettings) Get(_ context.Context, scope tenant.Scope, fallback repository.Settings) (repository.Settings, error) {
	if f.stored != nil {
		return *f.stored, nil
	}
	fallback.TenantID = scope.TenantID()
	return fallback, nil
}

func (f *fakeSettings) Upsert(_ context.Context, _ tenant.Scope, s repository.Settings) error {
	f.stored = &s
	return nil
}

type fakeArtifacts struct {
	mu         sync.Mutex
	orders     map[uuid.UUID]repository.Order
	adRequests map[uuid.UUID]repository.AdRequest
	contracts  map[uuid.UUID]repository.Contract
	billing    map[uuid.UUID][]repository.BillingScheduleEntry
}

func newFakeArtifacts() *fakeArtifacts {
	return &fakeArtifacts{
		orders:     make(map[uuid.UUID]repository.Order),
		adRequests: make(map[uuid.UUID]repository.AdRequest),
		contracts:  make(map[uuid.UUID]repository.Contract),
		billing:    make(map[uuid.UUID][]repository.BillingScheduleEntry),
	}
}

func (f *fakeArtifacts) CreateOrder(_ context.Context, scope tenant.Scope, campaignID uuid.UUID, totalCents int64) (repository.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if o, ok := f.orders[campaignID]; ok {
		return o, nil
	}
	o := repository.Order{
		ID:          uuid.New(),
		TenantID:    scope.TenantID(),
		CampaignID:  campaignID,
		OrderNumber: "IO-TEST",
		TotalCents:  totalCents,
		Status:      "open",
	}
	f.orders[campaignID] = o
	return o, nil
}

func (f *fakeArtifacts) GetOrderByCampaign(_ context.Context, _ tenant.Scope, campaignID uuid.UUID) (repository.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o, ok := f.orders[campaignID]
	if !ok {
		return repository.Order{}, apperr.NotFound("order not found")
	}
	return o, nil
}

func (f *fakeArtifacts) CreateAdRequest(_ context.Context, _ tenant.Scope, req repository.AdRequest) (repository.AdRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.adRequests[req.ReservationID]; ok {
		return existing, nil
	}
	req.ID = uuid.New()
	f.adRequests[req.ReservationID] = req
	return req, nil
}

func (f *fakeArtifacts) ListAdRequestsByOrder(_ context.Context, _ tenant.Scope, orderID uuid.UUID) ([]repository.AdRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.AdRequest
	for _, a := range f.adRequests {
		if a.OrderID == orderID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeArtifacts) CreateContract(_ context.Context, _ tenant.Scope, campaignID, orderID uuid.UUID, objectKey *string) (repository.Contract, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.contracts[campaignID]; ok {
		return c, nil
	}
	c := repository.Contract{ID: uuid.New(), CampaignID: campaignID, OrderID: orderID, ObjectKey: objectKey}
	f.contracts[campaignID] = c
	return c, nil
}

func (f *fakeArtifacts) CreateBillingEntries(_ context.Context, _ tenant.Scope, orderID uuid.UUID, entries []repository.BillingScheduleEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.billing[orderID]) > 0 {
		return nil
	}
	f.billing[orderID] = entries
	return nil
}

// fakeInventory mimics the reservation manager: per-slot capacity, dedupe
// per (campaign, episode, placement).
type fakeInventory struct {
	mu       sync.Mutex
	capacity map[uuid.UUID]int
	holds    map[uuid.UUID]invrepo.Reservation
}

func newFakeInventory() *fakeInventory {
	return &fakeInventory{
		capacity: make(map[uuid.UUID]int),
		holds:    make(map[uuid.UUID]invrepo.Reservation),
	}
}

func (f *fakeInventory) Hold(_ context.Context, scope tenant.Scope, p invservice.HoldParams) (invservice.HoldResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, h := range f.holds {
		if h.CampaignID == p.CampaignID && h.EpisodeID == p.EpisodeID &&
			h.Placement == p.Placement && h.Status == invrepo.StatusReserved {
			return invservice.HoldResult{Reservation: h, Reused: true}, nil
		}
	}
	if f.capacity[p.EpisodeID] < p.Quantity {
		return invservice.HoldResult{}, apperr.Conflict("not enough inventory")
	}
	f.capacity[p.EpisodeID] -= p.Quantity
	res := invrepo.Reservation{
		ID:         uuid.New(),
		TenantID:   scope.TenantID(),
		EpisodeID:  p.EpisodeID,
		Placement:  p.Placement,
		CampaignID: p.CampaignID,
		Quantity:   p.Quantity,
		Status:     invrepo.StatusReserved,
	}
	f.holds[res.ID] = res
	return invservice.HoldResult{Reservation: res}, nil
}

func (f *fakeInventory) Confirm(_ context.Context, _ tenant.Scope, id uuid.UUID) (invrepo.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	h, ok := f.holds[id]
	if !ok {
		return invrepo.Reservation{}, apperr.NotFound("reservation not found")
	}
	h.Status = invrepo.StatusConfirmed
	f.holds[id] = h
	return h, nil
}

func (f *fakeInventory) ListActiveByCampaign(_ context.Context, _ tenant.Scope, campaignID uuid.UUID) ([]invrepo.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invrepo.Reservation
	for _, h := range f.holds {
		if h.CampaignID == campaignID && h.Status == invrepo.StatusReserved {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeInventory) ListByCampaign(_ context.Context, _ tenant.Scope, campaignID uuid.UUID) ([]invrepo.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []invrepo.Reservation
	for _, h := range f.holds {
		if h.CampaignID == campaignID {
			out = append(out, h)
		}
	}
	return out, nil
}

func (f *fakeInventory) ReleaseActiveForCampaign(_ context.Context, _ tenant.Scope, campaignID uuid.UUID, _ string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	released := 0
	for id, h := range f.holds {
		if h.CampaignID == campaignID && h.Status == invrepo.StatusReserved {
			h.Status = invrepo.StatusReleased
			f.holds[id] = h
			f.capacity[h.EpisodeID] += h.Quantity
			released++
		}
	}
	return released, nil
}

type triggerDeps struct {
	campaigns *fakeCampaigns
	schedules *fakeSchedules
	effects   *fakeEffects
	artifacts *fakeArtifacts
	inventory *fakeInventory
	svc       *TriggerService
	scope     tenant.Scope
	campaign  repository.Campaign
}

func newTriggerTest(t *testing.T) *triggerDeps {
	t.Helper()
	scope := tenant.NewScope(uuid.New(), uuid.New())
	campaign := repository.Campaign{
		ID:       uuid.New(),
		TenantID: scope.TenantID(),
		Name:     "Q3 flight",
		Progress: 0,
		Status:   repository.CampaignDraft,
	}

	d := &triggerDeps{
		campaigns: &fakeCampaigns{rows: map[uuid.UUID]repository.Campaign{campaign.ID: campaign}},
		schedules: &fakeSchedules{},
		effects:   &fakeEffects{keys: make(map[effectKey]bool)},
		artifacts: newFakeArtifacts(),
		inventory: newFakeInventory(),
		scope:     scope,
		campaign:  campaign,
	}

	episode := uuid.New()
	d.inventory.capacity[episode] = 5
	d.schedules.rows = []repository.Schedule{
		{
			ID:         uuid.New(),
			TenantID:   scope.TenantID(),
			CampaignID: campaign.ID,
			ShowID:     uuid.New(),
			EpisodeID:  episode,
			Placement:  "mid_roll",
			Quantity:   2,
			RateCents:  150000,
		},
		{
			ID:         uuid.New(),
			TenantID:   scope.TenantID(),
			CampaignID: campaign.ID,
			ShowID:     uuid.New(),
			EpisodeID:  episode,
			Placement:  "pre_roll",
			Quantity:   1,
			RateCents:  80000,
		},
	}

	defaults := config.WorkflowDefaults{HoldTTLHours: 72, AutoReserve: true, ApprovalRequired: true, StageSLAHours: 72}
	d.svc = NewTriggerService(
		d.campaigns, d.schedules, d.effects, &fakeSettings{}, d.artifacts,
		d.inventory, nil, events.NewInMemoryBus(logger.New("development")),
		defaults, logger.New("development"),
	)
	return d
}

func (d *triggerDeps) activeHolds() int {
	n := 0
	for _, h := range d.inventory.holds {
		if h.Status == invrepo.StatusReserved {
			n++
		}
	}
	return n
}

func TestDryRunIsPure(t *testing.T) {
	d := newTriggerTest(t)

	result, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if result.Applied {
		t.Fatal("dry run must not apply")
	}
	for _, step := range result.Plan {
		if step.Status != EffectWouldApply {
			t.Fatalf("step %s status = %s, want would_apply", step.Effect, step.Status)
		}
	}
	if len(d.inventory.holds) != 0 {
		t.Fatal("dry run placed reservations")
	}
	if len(d.effects.keys) != 0 {
		t.Fatal("dry run recorded effect keys")
	}
	got, _ := d.campaigns.GetByID(context.Background(), d.scope, d.campaign.ID)
	if got.Progress != 0 {
		t.Fatalf("progress = %d, want 0 after dry run", got.Progress)
	}
}

func TestDryRunReportsWouldFireNotifications(t *testing.T) {
	d := newTriggerTest(t)

	simulated, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	applied, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, false)
	if err != nil {
		t.Fatalf("real run: %v", err)
	}

	want := []string{"approval_requested:talent_producer", "approval_requested:admin"}
	if len(applied.Notifications) != len(want) {
		t.Fatalf("real run fired %d notifications, want %d", len(applied.Notifications), len(want))
	}
	if len(simulated.Notifications) != len(applied.Notifications) {
		t.Fatalf("dry run reported %d notifications, real run fired %d",
			len(simulated.Notifications), len(applied.Notifications))
	}
	for i, name := range want {
		if simulated.Notifications[i] != name || applied.Notifications[i] != name {
			t.Fatalf("notification %d: dry = %s, real = %s, want %s",
				i, simulated.Notifications[i], applied.Notifications[i], name)
		}
	}
}

func TestDryRunSkipsNotificationsWhenApprovalNotRequired(t *testing.T) {
	d := newTriggerTest(t)
	stored := repository.Settings{
		TenantID:         d.scope.TenantID(),
		HoldTTLHours:     72,
		AutoReserve:      true,
		ApprovalRequired: false,
		StageSLAHours:    72,
	}
	d.svc.settings = &fakeSettings{stored: &stored}

	result, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, true)
	if err != nil {
		t.Fatalf("dry run: %v", err)
	}
	if len(result.Notifications) != 0 {
		t.Fatalf("notifications = %v, want none with approvals off", result.Notifications)
	}
}

func TestCompletionBlockedUntilAdminApproval(t *testing.T) {
	d := newTriggerTest(t)

	if _, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, false); err != nil {
		t.Fatalf("advance to 90: %v", err)
	}

	_, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 100, false)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict before approval", err)
	}
	campaign, _ := d.campaigns.GetByID(context.Background(), d.scope, d.campaign.ID)
	if campaign.Progress != 90 {
		t.Fatalf("progress = %d, want 90 while approval is pending", campaign.Progress)
	}
	if d.activeHolds() != 2 {
		t.Fatalf("active holds = %d, want 2 untouched by the blocked transition", d.activeHolds())
	}

	approved, err := d.svc.ApproveCampaign(context.Background(), d.scope, d.campaign.ID)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if approved.ApprovedAt == nil || approved.ApprovedBy == nil {
		t.Fatal("approval must record actor and timestamp")
	}

	if _, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 100, false); err != nil {
		t.Fatalf("advance to 100 after approval: %v", err)
	}
	campaign, _ = d.campaigns.GetByID(context.Background(), d.scope, d.campaign.ID)
	if campaign.Progress != 100 || campaign.Status != repository.CampaignCompleted {
		t.Fatalf("progress = %d, status = %s; want 100 completed", campaign.Progress, campaign.Status)
	}
}

func TestCompletionSkipsApprovalGateWhenNotRequired(t *testing.T) {
	d := newTriggerTest(t)
	stored := repository.Settings{
		TenantID:         d.scope.TenantID(),
		HoldTTLHours:     72,
		AutoReserve:      true,
		ApprovalRequired: false,
		StageSLAHours:    72,
	}
	d.svc.settings = &fakeSettings{stored: &stored}

	if _, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 100, false); err != nil {
		t.Fatalf("advance to 100: %v", err)
	}
	campaign, _ := d.campaigns.GetByID(context.Background(), d.scope, d.campaign.ID)
	if campaign.Progress != 100 {
		t.Fatalf("progress = %d, want 100 without the approval gate", campaign.Progress)
	}
}

func TestAdvanceRunsCrossedCheckpoints(t *testing.T) {
	d := newTriggerTest(t)

	result, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, false)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	if !result.Applied {
		t.Fatal("advance must apply")
	}

	// 10, 35, 65 and 90 each contribute their effect steps.
	wantEffects := []string{
		domain.EffectMarkBuildable,
		domain.EffectValidateSchedule, domain.EffectRateTracking,
		domain.EffectRequestApproval, domain.EffectExclusivityCheck,
		domain.EffectReserveSlots, domain.EffectAdminApproval,
	}
	if len(result.Plan) != len(wantEffects) {
		t.Fatalf("plan has %d steps, want %d", len(result.Plan), len(wantEffects))
	}
	for i, step := range result.Plan {
		if step.Effect != wantEffects[i] {
			t.Fatalf("step %d = %s, want %s", i, step.Effect, wantEffects[i])
		}
		if step.Status != EffectApplied {
			t.Fatalf("step %s status = %s, want applied", step.Effect, step.Status)
		}
	}

	if got := d.activeHolds(); got != 2 {
		t.Fatalf("active holds = %d, want 2", got)
	}
	campaign, _ := d.campaigns.GetByID(context.Background(), d.scope, d.campaign.ID)
	if campaign.Progress != 90 || !campaign.Buildable {
		t.Fatalf("progress = %d, buildable = %v; want 90 and true", campaign.Progress, campaign.Buildable)
	}
}

func TestAdvanceIsIdempotentPerEffect(t *testing.T) {
	d := newTriggerTest(t)

	if _, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, false); err != nil {
		t.Fatalf("first advance: %v", err)
	}
	holdsAfterFirst := d.activeHolds()

	// Regressing progress in the fake store re-arms the transition without
	// clearing effect records, mimicking a duplicate webhook.
	d.campaigns.mu.Lock()
	c := d.campaigns.rows[d.campaign.ID]
	c.Progress = 65
	d.campaigns.rows[d.campaign.ID] = c
	d.campaigns.mu.Unlock()

	result, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, false)
	if err != nil {
		t.Fatalf("second advance: %v", err)
	}
	for _, step := range result.Plan {
		if step.Status != EffectSkipped {
			t.Fatalf("step %s status = %s, want skipped on re-invocation", step.Effect, step.Status)
		}
	}
	if got := d.activeHolds(); got != holdsAfterFirst {
		t.Fatalf("active holds = %d, want %d (no double reservation)", got, holdsAfterFirst)
	}
}

func TestTerminalStageCreatesArtifactsOnce(t *testing.T) {
	d := newTriggerTest(t)

	if _, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, false); err != nil {
		t.Fatalf("advance to 90: %v", err)
	}
	if _, err := d.svc.ApproveCampaign(context.Background(), d.scope, d.campaign.ID); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 100, false); err != nil {
		t.Fatalf("advance to 100: %v", err)
	}

	if d.activeHolds() != 0 {
		t.Fatal("expected all holds confirmed at the terminal stage")
	}
	if len(d.artifacts.orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(d.artifacts.orders))
	}
	if len(d.artifacts.adRequests) != 2 {
		t.Fatalf("ad requests = %d, want one per confirmed reservation", len(d.artifacts.adRequests))
	}
	if len(d.artifacts.contracts) != 1 {
		t.Fatalf("contracts = %d, want 1", len(d.artifacts.contracts))
	}

	order, _ := d.artifacts.GetOrderByCampaign(context.Background(), d.scope, d.campaign.ID)
	if want := int64(2*150000 + 1*80000); order.TotalCents != want {
		t.Fatalf("order total = %d, want %d", order.TotalCents, want)
	}
	if len(d.artifacts.billing[order.ID]) != 3 {
		t.Fatalf("billing entries = %d, want 3", len(d.artifacts.billing[order.ID]))
	}

	campaign, _ := d.campaigns.GetByID(context.Background(), d.scope, d.campaign.ID)
	if campaign.Status != repository.CampaignCompleted {
		t.Fatalf("status = %s, want completed", campaign.Status)
	}
}

func TestRegressionReleasesActiveHolds(t *testing.T) {
	d := newTriggerTest(t)

	if _, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, false); err != nil {
		t.Fatalf("advance to 90: %v", err)
	}
	if d.activeHolds() != 2 {
		t.Fatalf("active holds = %d, want 2", d.activeHolds())
	}

	result, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 35, false)
	if err != nil {
		t.Fatalf("regression: %v", err)
	}
	if !result.Regression || !result.Applied {
		t.Fatalf("regression = %v, applied = %v; want both true", result.Regression, result.Applied)
	}
	if d.activeHolds() != 0 {
		t.Fatal("regression must release active holds")
	}

	// Regressing again with nothing held is a harmless no-op.
	if _, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 10, false); err != nil {
		t.Fatalf("second regression: %v", err)
	}
}

func TestConflictAbortsAdvance(t *testing.T) {
	d := newTriggerTest(t)
	for id := range d.inventory.capacity {
		d.inventory.capacity[id] = 1
	}

	_, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, false)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}

	campaign, _ := d.campaigns.GetByID(context.Background(), d.scope, d.campaign.ID)
	if campaign.Progress != 0 {
		t.Fatalf("progress = %d, want unchanged after failed reserve", campaign.Progress)
	}
}

func TestAdvanceWithoutSchedulesFailsValidation(t *testing.T) {
	d := newTriggerTest(t)
	d.schedules.rows = nil

	_, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 35, false)
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("err = %v, want validation", err)
	}
}

func TestAutoReserveDisabledSkipsHolds(t *testing.T) {
	d := newTriggerTest(t)
	stored := repository.Settings{
		TenantID:         d.scope.TenantID(),
		HoldTTLHours:     72,
		AutoReserve:      false,
		ApprovalRequired: true,
		StageSLAHours:    72,
	}
	d.svc.settings = &fakeSettings{stored: &stored}

	if _, err := d.svc.Advance(context.Background(), d.scope, d.campaign.ID, 90, false); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if len(d.inventory.holds) != 0 {
		t.Fatal("auto-reserve disabled must not place holds")
	}
}
