package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"adops_backend/internal/events"
	"adops_backend/internal/inventory/repository"
	"adops_backend/internal/tenant"
	"adops_backend/platform/apperr"
	"adops_backend/platform/config"
	"adops_backend/platform/logger"

	"github.com/google/uuid"
)

// fakeLedger mirrors the counter semantics in memory, guarded by a mutex so
// concurrent tests exercise the same mutual exclusion the database row lock
// provides.
type fakeLedger struct {
	mu       sync.Mutex
	counts   map[counterKey]repository.Counts
	busyLeft int
}

type counterKey struct {
	episode   uuid.UUID
	placement repository.Placement
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{counts: make(map[counterKey]repository.Counts)}
}

func (f *fakeLedger) set(episode uuid.UUID, p repository.Placement, total int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[counterKey{episode, p}] = repository.Counts{TotalSlots: total}
}

func (f *fakeLedger) TryReserve(_ context.Context, _ tenant.Scope, episode uuid.UUID, p repository.Placement, qty int) (repository.Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busyLeft > 0 {
		f.busyLeft--
		return repository.Counts{}, apperr.Busy("inventory counter is contended")
	}
	key := counterKey{episode, p}
	c, ok := f.counts[key]
	if !ok {
		return repository.Counts{}, apperr.NotFound("inventory counter not found")
	}
	if c.ReservedSlots+c.BookedSlots+qty > c.TotalSlots {
		return c, apperr.Conflict("not enough inventory")
	}
	c.ReservedSlots += qty
	f.counts[key] = c
	return c, nil
}

func (f *fakeLedger) Release(_ context.Context, _ tenant.Scope, episode uuid.UUID, p repository.Placement, qty int) (repository.Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := counterKey{episode, p}
	c := f.counts[key]
	if c.ReservedSlots-qty < 0 {
		return c, apperr.Corruption("release would drive reserved below zero")
	}
	c.ReservedSlots -= qty
	f.counts[key] = c
	return c, nil
}

func (f *fakeLedger) Confirm(_ context.Context, _ tenant.Scope, episode uuid.UUID, p repository.Placement, qty int) (repository.Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := counterKey{episode, p}
	c := f.counts[key]
	if c.ReservedSlots-qty < 0 {
		return c, apperr.Corruption("confirm exceeds reserved count")
	}
	c.ReservedSlots -= qty
	c.BookedSlots += qty
	f.counts[key] = c
	return c, nil
}

func (f *fakeLedger) Counts(_ context.Context, _ tenant.Scope, episode uuid.UUID, p repository.Placement) (repository.Counts, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.counts[counterKey{episode, p}]
	if !ok {
		return repository.Counts{}, apperr.NotFound("inventory counter not found")
	}
	return c, nil
}

func (f *fakeLedger) Recount(context.Context, tenant.Scope, uuid.UUID, repository.Placement, bool) (repository.RecountResult, error) {
	return repository.RecountResult{}, nil
}

func (f *fakeLedger) ListCounterKeys(context.Context, tenant.Scope) ([]repository.CounterKey, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []repository.CounterKey
	for k := range f.counts {
		keys = append(keys, repository.CounterKey{EpisodeID: k.episode, Placement: k.placement})
	}
	return keys, nil
}

// fakeReservations stores rows in memory with the same conditional
// transition semantics as the SQL implementation.
type fakeReservations struct {
	mu   sync.Mutex
	rows map[uuid.UUID]repository.Reservation
	// failCreate makes the next Create return an error, for testing the
	// counter rollback path.
	failCreate bool
}

func newFakeReservations() *fakeReservations {
	return &fakeReservations{rows: make(map[uuid.UUID]repository.Reservation)}
}

func (f *fakeReservations) Create(_ context.Context, scope tenant.Scope, p repository.CreateReservationParams) (repository.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		f.failCreate = false
		return repository.Reservation{}, apperr.Internal("insert failed")
	}
	now := time.Now()
	expires := p.ExpiresAt
	res := repository.Reservation{
		ID:         uuid.New(),
		TenantID:   scope.TenantID(),
		ShowID:     p.ShowID,
		EpisodeID:  p.EpisodeID,
		Placement:  p.Placement,
		CampaignID: p.CampaignID,
		ScheduleID: p.ScheduleID,
		Quantity:   p.Quantity,
		Status:     repository.StatusReserved,
		Locked:     true,
		ExpiresAt:  &expires,
		CreatedBy:  p.CreatedBy,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	f.rows[res.ID] = res
	return res, nil
}

func (f *fakeReservations) GetByID(_ context.Context, _ tenant.Scope, id uuid.UUID) (repository.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.rows[id]
	if !ok {
		return repository.Reservation{}, apperr.NotFound("reservation not found")
	}
	return res, nil
}

func (f *fakeReservations) FindActiveHold(_ context.Context, _ tenant.Scope, campaignID, episodeID uuid.UUID, p repository.Placement) (*repository.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, res := range f.rows {
		if res.CampaignID == campaignID && res.EpisodeID == episodeID &&
			res.Placement == p && res.Status == repository.StatusReserved && res.Locked {
			r := res
			return &r, nil
		}
	}
	return nil, nil
}

func (f *fakeReservations) Transition(_ context.Context, _ tenant.Scope, id uuid.UUID, from, to repository.ReservationStatus) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.rows[id]
	if !ok || res.Status != from {
		return false, nil
	}
	res.Status = to
	res.Locked = false
	res.ExpiresAt = nil
	f.rows[id] = res
	return true, nil
}

func (f *fakeReservations) TransitionExpired(_ context.Context, _ tenant.Scope, id uuid.UUID, now time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.rows[id]
	if !ok || res.Status != repository.StatusReserved || res.ExpiresAt == nil || res.ExpiresAt.After(now) {
		return false, nil
	}
	res.Status = repository.StatusExpired
	res.Locked = false
	f.rows[id] = res
	return true, nil
}

func (f *fakeReservations) UpdateExpiry(_ context.Context, _ tenant.Scope, id uuid.UUID, expiresAt time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	res, ok := f.rows[id]
	if !ok || res.Status != repository.StatusReserved {
		return false, nil
	}
	res.ExpiresAt = &expiresAt
	f.rows[id] = res
	return true, nil
}

func (f *fakeReservations) ListExpired(_ context.Context, _ tenant.Scope, now time.Time, _ int) ([]repository.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Reservation
	for _, res := range f.rows {
		if res.Status == repository.StatusReserved && res.ExpiresAt != nil && !res.ExpiresAt.After(now) {
			out = append(out, res)
		}
	}
	return out, nil
}

func (f *fakeReservations) ListActiveByCampaign(_ context.Context, _ tenant.Scope, campaignID uuid.UUID) ([]repository.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Reservation
	for _, res := range f.rows {
		if res.CampaignID == campaignID && res.Status == repository.StatusReserved {
			out = append(out, res)
		}
	}
	return out, nil
}

func (f *fakeReservations) ListByCampaign(_ context.Context, _ tenant.Scope, campaignID uuid.UUID) ([]repository.Reservation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Reservation
	for _, res := range f.rows {
		if res.CampaignID == campaignID {
			out = append(out, res)
		}
	}
	return out, nil
}

// fakeAlerts records filed alerts.
type fakeAlerts struct {
	mu    sync.Mutex
	rows  map[uuid.UUID]repository.Alert
	filed []repository.UpsertAlertParams
}

func newFakeAlerts() *fakeAlerts {
	return &fakeAlerts{rows: make(map[uuid.UUID]repository.Alert)}
}

func (f *fakeAlerts) Upsert(_ context.Context, scope tenant.Scope, p repository.UpsertAlertParams) (repository.Alert, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filed = append(f.filed, p)
	for _, a := range f.rows {
		if a.AlertType == p.AlertType && a.Status != repository.AlertResolved &&
			equalUUIDPtr(a.EpisodeID, p.EpisodeID) {
			a.Severity = p.Severity
			f.rows[a.ID] = a
			return a, false, nil
		}
	}
	alert := repository.Alert{
		ID:        uuid.New(),
		TenantID:  scope.TenantID(),
		AlertType: p.AlertType,
		Severity:  p.Severity,
		EpisodeID: p.EpisodeID,
		Placement: p.Placement,
		Status:    repository.AlertActive,
		CreatedAt: time.Now(),
	}
	f.rows[alert.ID] = alert
	return alert, true, nil
}

func equalUUIDPtr(a, b *uuid.UUID) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func (f *fakeAlerts) GetByID(_ context.Context, _ tenant.Scope, id uuid.UUID) (repository.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return repository.Alert{}, apperr.NotFound("alert not found")
	}
	return a, nil
}

func (f *fakeAlerts) Acknowledge(_ context.Context, _ tenant.Scope, id, actor uuid.UUID) (repository.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return repository.Alert{}, apperr.NotFound("alert not found")
	}
	if a.Status != repository.AlertActive {
		return repository.Alert{}, apperr.Conflict("cannot acknowledge alert in status " + string(a.Status))
	}
	a.Status = repository.AlertAcknowledged
	a.AcknowledgedBy = &actor
	f.rows[id] = a
	return a, nil
}

func (f *fakeAlerts) Resolve(_ context.Context, _ tenant.Scope, id, actor uuid.UUID, note string) (repository.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.rows[id]
	if !ok {
		return repository.Alert{}, apperr.NotFound("alert not found")
	}
	if a.Status == repository.AlertResolved {
		return repository.Alert{}, apperr.Conflict("cannot resolve alert in status resolved")
	}
	a.Status = repository.AlertResolved
	a.ResolvedBy = &actor
	a.ResolutionNote = &note
	f.rows[id] = a
	return a, nil
}

func (f *fakeAlerts) List(_ context.Context, _ tenant.Scope, _ repository.AlertFilter) ([]repository.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []repository.Alert
	for _, a := range f.rows {
		out = append(out, a)
	}
	return out, nil
}

func (f *fakeAlerts) Summary(_ context.Context, _ tenant.Scope) (repository.AlertSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := repository.AlertSummary{BySeverity: map[string]int{}, ByType: map[string]int{}}
	for _, a := range f.rows {
		if a.Status == repository.AlertResolved {
			continue
		}
		s.BySeverity[string(a.Severity)]++
		s.ByType[string(a.AlertType)]++
		s.Total++
	}
	return s, nil
}

type fakeInventoryConfig struct {
	retries int
	degrade bool
}

func (c fakeInventoryConfig) GetLockTimeout() time.Duration { return 100 * time.Millisecond }
func (c fakeInventoryConfig) GetBusyRetryAttempts() int     { return c.retries }
func (c fakeInventoryConfig) GetDegradeToAlert() bool       { return c.degrade }

type testDeps struct {
	ledger       *fakeLedger
	reservations *fakeReservations
	alerts       *fakeAlerts
	bus          *events.InMemoryBus
	svc          *ReservationService
	scope        tenant.Scope
}

func newTestService(t *testing.T, cfg fakeInventoryConfig) *testDeps {
	t.Helper()
	d := &testDeps{
		ledger:       newFakeLedger(),
		reservations: newFakeReservations(),
		alerts:       newFakeAlerts(),
		bus:          events.NewInMemoryBus(logger.New("development")),
		scope:        tenant.NewScope(uuid.New(), uuid.New()),
	}
	if cfg.retries == 0 {
		cfg.retries = 3
	}
	d.svc = NewReservationService(
		d.ledger, d.reservations, d.alerts, d.bus,
		cfg, config.WorkflowDefaults{HoldTTLHours: 72}, logger.New("development"),
	)
	return d
}

func holdParams(episode uuid.UUID, qty int) HoldParams {
	return HoldParams{
		ShowID:     uuid.New(),
		EpisodeID:  episode,
		Placement:  repository.PlacementMidRoll,
		CampaignID: uuid.New(),
		Quantity:   qty,
	}
}

func TestHoldConsumesCapacity(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 3)

	result, err := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 2))
	if err != nil {
		t.Fatalf("Hold: %v", err)
	}
	if result.Reused {
		t.Fatal("expected a fresh hold")
	}
	if result.Reservation.Status != repository.StatusReserved {
		t.Fatalf("status = %s, want reserved", result.Reservation.Status)
	}
	if result.Counts.Available() != 1 {
		t.Fatalf("available = %d, want 1", result.Counts.Available())
	}
	if result.Reservation.ExpiresAt == nil {
		t.Fatal("expected an expiry on the hold")
	}
}

func TestHoldRejectsWhenCapacityExhausted(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 2)

	if _, err := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 2)); err != nil {
		t.Fatalf("first hold: %v", err)
	}
	_, err := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 1))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if len(d.alerts.filed) != 0 {
		t.Fatalf("filed alerts = %d, want 0 without degrade mode", len(d.alerts.filed))
	}
}

func TestCapacityConflictFilesAlertWhenDegradeEnabled(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{degrade: true})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 1)

	_, err := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 2))
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("err = %v, want conflict", err)
	}
	if len(d.alerts.filed) != 1 {
		t.Fatalf("filed alerts = %d, want 1", len(d.alerts.filed))
	}
	filed := d.alerts.filed[0]
	if filed.AlertType != repository.AlertOverbooking {
		t.Fatalf("alert type = %s, want overbooking", filed.AlertType)
	}
	if filed.EpisodeID == nil || *filed.EpisodeID != episode {
		t.Fatal("alert must reference the contested episode")
	}
	details, ok := filed.Details.(map[string]string)
	if !ok {
		t.Fatalf("details = %T, want map[string]string", filed.Details)
	}
	if details["requested"] != "2" || details["available"] != "1" {
		t.Fatalf("details = %v, want requested 2 and available 1", details)
	}
}

func TestConcurrentHoldsNeverOverbook(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 3)

	const attempts = 4
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = d.svc.Hold(context.Background(), d.scope, holdParams(episode, 1))
		}(i)
	}
	wg.Wait()

	succeeded, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case apperr.Is(err, apperr.KindConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 3 || conflicts != 1 {
		t.Fatalf("succeeded = %d, conflicts = %d; want 3 and 1", succeeded, conflicts)
	}

	counts, _ := d.ledger.Counts(context.Background(), d.scope, episode, repository.PlacementMidRoll)
	if counts.ReservedSlots != 3 || counts.Available() != 0 {
		t.Fatalf("reserved = %d, available = %d; want 3 and 0", counts.ReservedSlots, counts.Available())
	}
}

func TestHoldReusesExistingHold(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 2)

	params := holdParams(episode, 1)
	first, err := d.svc.Hold(context.Background(), d.scope, params)
	if err != nil {
		t.Fatalf("first hold: %v", err)
	}
	second, err := d.svc.Hold(context.Background(), d.scope, params)
	if err != nil {
		t.Fatalf("second hold: %v", err)
	}
	if !second.Reused {
		t.Fatal("expected the hold to be reused")
	}
	if second.Reservation.ID != first.Reservation.ID {
		t.Fatal("expected the same reservation row back")
	}

	counts, _ := d.ledger.Counts(context.Background(), d.scope, episode, repository.PlacementMidRoll)
	if counts.ReservedSlots != 1 {
		t.Fatalf("reserved = %d, want 1 (no double consumption)", counts.ReservedSlots)
	}
}

func TestHoldRetriesThroughContention(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{retries: 3})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 1)
	d.ledger.busyLeft = 2

	if _, err := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 1)); err != nil {
		t.Fatalf("hold should succeed after retries: %v", err)
	}
}

func TestHoldSurfacesBusyAfterRetriesExhausted(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{retries: 2, degrade: true})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 1)
	d.ledger.busyLeft = 5

	_, err := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 1))
	if !apperr.Is(err, apperr.KindBusy) {
		t.Fatalf("err = %v, want busy", err)
	}
	// Degrade mode covers failed capacity checks, not lock contention.
	if len(d.alerts.filed) != 0 {
		t.Fatalf("filed alerts = %d, want 0 for a contended lock", len(d.alerts.filed))
	}
}

func TestHoldRollsBackCounterWhenInsertFails(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 2)
	d.reservations.failCreate = true

	if _, err := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 1)); err == nil {
		t.Fatal("expected the hold to fail")
	}
	counts, _ := d.ledger.Counts(context.Background(), d.scope, episode, repository.PlacementMidRoll)
	if counts.ReservedSlots != 0 {
		t.Fatalf("reserved = %d, want 0 after rollback", counts.ReservedSlots)
	}
}

func TestConfirmMovesReservedToBooked(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 2)

	held, err := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 2))
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	confirmed, err := d.svc.Confirm(context.Background(), d.scope, held.Reservation.ID)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if confirmed.Status != repository.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", confirmed.Status)
	}
	if confirmed.Locked || confirmed.ExpiresAt != nil {
		t.Fatalf("locked = %v, expiresAt = %v; a booked slot holds neither", confirmed.Locked, confirmed.ExpiresAt)
	}

	counts, _ := d.ledger.Counts(context.Background(), d.scope, episode, repository.PlacementMidRoll)
	if counts.ReservedSlots != 0 || counts.BookedSlots != 2 {
		t.Fatalf("reserved = %d, booked = %d; want 0 and 2", counts.ReservedSlots, counts.BookedSlots)
	}

	stored, _ := d.svc.GetReservation(context.Background(), d.scope, held.Reservation.ID)
	if stored.Locked || stored.ExpiresAt != nil {
		t.Fatalf("stored locked = %v, expiresAt = %v; want both cleared", stored.Locked, stored.ExpiresAt)
	}
}

func TestConfirmIsIdempotent(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 1)

	held, _ := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 1))
	if _, err := d.svc.Confirm(context.Background(), d.scope, held.Reservation.ID); err != nil {
		t.Fatalf("first confirm: %v", err)
	}
	again, err := d.svc.Confirm(context.Background(), d.scope, held.Reservation.ID)
	if err != nil {
		t.Fatalf("second confirm should be a no-op: %v", err)
	}
	if again.Status != repository.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", again.Status)
	}

	counts, _ := d.ledger.Counts(context.Background(), d.scope, episode, repository.PlacementMidRoll)
	if counts.BookedSlots != 1 {
		t.Fatalf("booked = %d, want 1 (no double booking)", counts.BookedSlots)
	}
}

func TestConfirmAfterReleaseFails(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 1)

	held, _ := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 1))
	if _, err := d.svc.Release(context.Background(), d.scope, held.Reservation.ID, "advertiser backed out"); err != nil {
		t.Fatalf("release: %v", err)
	}
	_, err := d.svc.Confirm(context.Background(), d.scope, held.Reservation.ID)
	if !apperr.Is(err, apperr.KindExpired) {
		t.Fatalf("err = %v, want expired", err)
	}
}

func TestReleaseReturnsCapacityOnce(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 2)

	held, _ := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 2))
	released, err := d.svc.Release(context.Background(), d.scope, held.Reservation.ID, "")
	if err != nil {
		t.Fatalf("release: %v", err)
	}
	if released.Locked || released.ExpiresAt != nil {
		t.Fatalf("locked = %v, expiresAt = %v; want both cleared after release", released.Locked, released.ExpiresAt)
	}
	// Double release is harmless.
	if _, err := d.svc.Release(context.Background(), d.scope, held.Reservation.ID, ""); err != nil {
		t.Fatalf("second release: %v", err)
	}

	counts, _ := d.ledger.Counts(context.Background(), d.scope, episode, repository.PlacementMidRoll)
	if counts.ReservedSlots != 0 || counts.Available() != 2 {
		t.Fatalf("reserved = %d, available = %d; want 0 and 2", counts.ReservedSlots, counts.Available())
	}
}

func TestExpireOneIsRerunSafe(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 1)

	params := holdParams(episode, 1)
	params.TTL = time.Millisecond
	held, err := d.svc.Hold(context.Background(), d.scope, params)
	if err != nil {
		t.Fatalf("hold: %v", err)
	}
	time.Sleep(5 * time.Millisecond)

	moved, err := d.svc.ExpireOne(context.Background(), d.scope, held.Reservation)
	if err != nil || !moved {
		t.Fatalf("first expire: moved = %v, err = %v", moved, err)
	}
	moved, err = d.svc.ExpireOne(context.Background(), d.scope, held.Reservation)
	if err != nil || moved {
		t.Fatalf("second expire should be a no-op: moved = %v, err = %v", moved, err)
	}

	counts, _ := d.ledger.Counts(context.Background(), d.scope, episode, repository.PlacementMidRoll)
	if counts.Available() != 1 {
		t.Fatalf("available = %d, want 1 (released exactly once)", counts.Available())
	}
}

// Two campaigns race for two mid-roll slots; a third request conflicts, and
// the expiry of one hold frees capacity for it.
func TestSlotContentionLifecycle(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 2)

	a := holdParams(episode, 1)
	b := holdParams(episode, 1)
	c := holdParams(episode, 1)
	a.TTL = time.Millisecond

	heldA, err := d.svc.Hold(context.Background(), d.scope, a)
	if err != nil {
		t.Fatalf("hold A: %v", err)
	}
	if _, err := d.svc.Hold(context.Background(), d.scope, b); err != nil {
		t.Fatalf("hold B: %v", err)
	}
	if _, err := d.svc.Hold(context.Background(), d.scope, c); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("hold C err = %v, want conflict", err)
	}

	time.Sleep(5 * time.Millisecond)
	if moved, err := d.svc.ExpireOne(context.Background(), d.scope, heldA.Reservation); err != nil || !moved {
		t.Fatalf("expire A: moved = %v, err = %v", moved, err)
	}

	if _, err := d.svc.Hold(context.Background(), d.scope, c); err != nil {
		t.Fatalf("hold C after expiry: %v", err)
	}
}

func TestExtendPushesExpiry(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 1)

	held, _ := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 1))
	before := *held.Reservation.ExpiresAt

	extended, err := d.svc.Extend(context.Background(), d.scope, held.Reservation.ID, 96*time.Hour)
	if err != nil {
		t.Fatalf("extend: %v", err)
	}
	if !extended.ExpiresAt.After(before) {
		t.Fatal("expected the expiry to move forward")
	}
}

func TestExtendRejectsInactiveHold(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 1)

	held, _ := d.svc.Hold(context.Background(), d.scope, holdParams(episode, 1))
	if _, err := d.svc.Release(context.Background(), d.scope, held.Reservation.ID, ""); err != nil {
		t.Fatalf("release: %v", err)
	}
	if _, err := d.svc.Extend(context.Background(), d.scope, held.Reservation.ID, time.Hour); !apperr.Is(err, apperr.KindExpired) {
		t.Fatalf("err = %v, want expired", err)
	}
}

func TestReleaseActiveForCampaignLeavesConfirmed(t *testing.T) {
	d := newTestService(t, fakeInventoryConfig{})
	episode := uuid.New()
	d.ledger.set(episode, repository.PlacementMidRoll, 3)
	other := uuid.New()
	d.ledger.set(other, repository.PlacementMidRoll, 3)

	campaignID := uuid.New()
	p1 := holdParams(episode, 1)
	p1.CampaignID = campaignID
	p2 := holdParams(other, 2)
	p2.CampaignID = campaignID

	held1, _ := d.svc.Hold(context.Background(), d.scope, p1)
	if _, err := d.svc.Hold(context.Background(), d.scope, p2); err != nil {
		t.Fatalf("hold: %v", err)
	}
	if _, err := d.svc.Confirm(context.Background(), d.scope, held1.Reservation.ID); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	released, err := d.svc.ReleaseActiveForCampaign(context.Background(), d.scope, campaignID, "stage regression")
	if err != nil {
		t.Fatalf("release active: %v", err)
	}
	if released != 1 {
		t.Fatalf("released = %d, want 1 (confirmed booking untouched)", released)
	}

	confirmed, _ := d.svc.GetReservation(context.Background(), d.scope, held1.Reservation.ID)
	if confirmed.Status != repository.StatusConfirmed {
		t.Fatalf("status = %s, want confirmed", confirmed.Status)
	}
}
