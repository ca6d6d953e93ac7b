package service

import (
	"context"
	"strconv"
	"time"

	"adops_backend/internal/events"
	"adops_backend/internal/inventory/repository"
	"adops_backend/internal/tenant"
	"adops_backend/platform/apperr"
	"adops_backend/platform/config"
	"adops_backend/platform/logger"

	"github.com/google/uuid"
)

// busyBackoff is the pause between retries of a lock-contended reserve.
const busyBackoff = 50 * time.Millisecond

// HoldParams describes a requested hold on ad-slot capacity.
type HoldParams struct {
	ShowID     uuid.UUID
	EpisodeID  uuid.UUID
	Placement  repository.Placement
	CampaignID uuid.UUID
	ScheduleID *uuid.UUID
	Quantity   int
	// TTL overrides the configured default hold lifetime when positive.
	TTL time.Duration
}

// HoldResult is the outcome of a hold request.
type HoldResult struct {
	Reservation repository.Reservation
	Counts      repository.Counts
	// Reused is true when the campaign already held this slot and no new
	// capacity was consumed.
	Reused bool
}

// ReservationService owns the hold lifecycle. All capacity movement goes
// through the ledger; reservation rows are the durable record the
// reconciliation sweep audits against.
type ReservationService struct {
	ledger       repository.Ledger
	reservations repository.Reservations
	alerts       repository.Alerts
	bus          events.Bus
	cfg          config.InventoryConfig
	defaults     config.WorkflowDefaults
	log          *logger.Logger
	now          func() time.Time
}

func NewReservationService(
	ledger repository.Ledger,
	reservations repository.Reservations,
	alerts repository.Alerts,
	bus events.Bus,
	cfg config.InventoryConfig,
	defaults config.WorkflowDefaults,
	log *logger.Logger,
) *ReservationService {
	return &ReservationService{
		ledger:       ledger,
		reservations: reservations,
		alerts:       alerts,
		bus:          bus,
		cfg:          cfg,
		defaults:     defaults,
		log:          log,
		now:          time.Now,
	}
}

// Hold reserves quantity slots for a campaign. A campaign that already holds
// the slot gets its existing hold back unchanged. Lock contention is retried
// a bounded number of times; exhausted capacity is not.
func (s *ReservationService) Hold(ctx context.Context, scope tenant.Scope, params HoldParams) (HoldResult, error) {
	if params.Quantity < 1 {
		return HoldResult{}, apperr.Validation("quantity must be positive")
	}
	if !params.Placement.Valid() {
		return HoldResult{}, apperr.Validation("unknown placement type")
	}

	existing, err := s.reservations.FindActiveHold(ctx, scope, params.CampaignID, params.EpisodeID, params.Placement)
	if err != nil {
		return HoldResult{}, err
	}
	if existing != nil {
		counts, err := s.ledger.Counts(ctx, scope, params.EpisodeID, params.Placement)
		if err != nil {
			return HoldResult{}, err
		}
		return HoldResult{Reservation: *existing, Counts: counts, Reused: true}, nil
	}

	counts, err := s.reserveWithRetry(ctx, scope, params.EpisodeID, params.Placement, params.Quantity)
	if err != nil {
		return HoldResult{}, err
	}

	ttl := params.TTL
	if ttl <= 0 {
		ttl = time.Duration(s.defaults.HoldTTLHours) * time.Hour
	}

	res, err := s.reservations.Create(ctx, scope, repository.CreateReservationParams{
		ShowID:     params.ShowID,
		EpisodeID:  params.EpisodeID,
		Placement:  params.Placement,
		CampaignID: params.CampaignID,
		ScheduleID: params.ScheduleID,
		Quantity:   params.Quantity,
		ExpiresAt:  s.now().Add(ttl),
		CreatedBy:  scope.ActorID(),
	})
	if err != nil {
		// The counter was already incremented. Undo it so capacity is not
		// stranded behind a failed insert.
		if _, relErr := s.ledger.Release(ctx, scope, params.EpisodeID, params.Placement, params.Quantity); relErr != nil {
			s.log.Error("failed to roll back reservation counter",
				"episode_id", params.EpisodeID,
				"placement", string(params.Placement),
				"error", relErr,
			)
		}
		return HoldResult{}, err
	}

	s.log.InventoryEvent("reservation.created", params.EpisodeID.String(), string(params.Placement), params.Quantity, counts.Available())
	s.bus.Publish(ctx, events.ReservationCreated{
		BaseEvent:     events.NewBaseEvent(),
		TenantID:      scope.TenantID(),
		ReservationID: res.ID,
		CampaignID:    res.CampaignID,
		EpisodeID:     res.EpisodeID,
		Placement:     string(res.Placement),
		Quantity:      res.Quantity,
	})

	return HoldResult{Reservation: res, Counts: counts}, nil
}

// reserveWithRetry retries the ledger reserve while the counter row is
// contended. Conflict (no capacity) is terminal and never retried; when
// degrade-to-alert is configured it additionally files an overbooking alert
// so the failed demand is visible to operators.
func (s *ReservationService) reserveWithRetry(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement repository.Placement, quantity int) (repository.Counts, error) {
	attempts := s.cfg.GetBusyRetryAttempts()
	if attempts < 1 {
		attempts = 1
	}

	var counts repository.Counts
	var err error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return repository.Counts{}, ctx.Err()
			case <-time.After(busyBackoff * time.Duration(attempt)):
			}
		}
		counts, err = s.ledger.TryReserve(ctx, scope, episodeID, placement, quantity)
		if !apperr.Is(err, apperr.KindBusy) {
			break
		}
	}
	switch {
	case apperr.Is(err, apperr.KindBusy):
		s.log.Warn("reserve retries exhausted",
			"episode_id", episodeID, "placement", string(placement), "attempts", attempts)
	case apperr.Is(err, apperr.KindConflict) && s.cfg.GetDegradeToAlert():
		s.fileCapacityAlert(ctx, scope, episodeID, placement, quantity, counts)
	}
	return counts, err
}

// fileCapacityAlert records a capacity check that failed while degrade mode
// is on. The hold still fails; the alert keeps the turned-away demand from
// vanishing. Best effort.
func (s *ReservationService) fileCapacityAlert(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement repository.Placement, quantity int, counts repository.Counts) {
	alert, created, err := s.alerts.Upsert(ctx, scope, repository.UpsertAlertParams{
		AlertType: repository.AlertOverbooking,
		Severity:  repository.SeverityHigh,
		EpisodeID: &episodeID,
		Placement: &placement,
		Details: map[string]string{
			"reason":    "hold request exceeded remaining capacity",
			"requested": strconv.Itoa(quantity),
			"available": strconv.Itoa(counts.Available()),
		},
	})
	if err != nil {
		s.log.Error("failed to file capacity alert", "episode_id", episodeID, "error", err)
		return
	}
	if created {
		s.publishAlertCreated(ctx, scope, alert)
	}
}

// Confirm turns a reserved hold into a booked slot. The row transition is
// the idempotency gate: only the caller that wins it moves the counters, so
// duplicate confirms cannot double-book.
func (s *ReservationService) Confirm(ctx context.Context, scope tenant.Scope, reservationID uuid.UUID) (repository.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, scope, reservationID)
	if err != nil {
		return repository.Reservation{}, err
	}

	moved, err := s.reservations.Transition(ctx, scope, reservationID, repository.StatusReserved, repository.StatusConfirmed)
	if err != nil {
		return repository.Reservation{}, err
	}
	if !moved {
		current, err := s.reservations.GetByID(ctx, scope, reservationID)
		if err != nil {
			return repository.Reservation{}, err
		}
		switch current.Status {
		case repository.StatusConfirmed:
			return current, nil
		case repository.StatusReleased, repository.StatusExpired:
			return repository.Reservation{}, apperr.Expired("reservation is no longer active")
		default:
			return repository.Reservation{}, apperr.Conflict("reservation is not confirmable")
		}
	}

	counts, err := s.ledger.Confirm(ctx, scope, res.EpisodeID, res.Placement, res.Quantity)
	if err != nil {
		// The row moved but the counter did not. The sweep reconciles this
		// drift; surface the error so the caller knows the booking is
		// suspect.
		s.log.Error("counter confirm failed after row transition",
			"reservation_id", reservationID, "error", err)
		return repository.Reservation{}, err
	}

	res.Status = repository.StatusConfirmed
	res.Locked = false
	res.ExpiresAt = nil
	s.log.InventoryEvent("reservation.confirmed", res.EpisodeID.String(), string(res.Placement), res.Quantity, counts.Available())
	s.bus.Publish(ctx, events.ReservationConfirmed{
		BaseEvent:     events.NewBaseEvent(),
		TenantID:      scope.TenantID(),
		ReservationID: res.ID,
		CampaignID:    res.CampaignID,
		EpisodeID:     res.EpisodeID,
		Placement:     string(res.Placement),
		Quantity:      res.Quantity,
	})
	return res, nil
}

// Release returns a reserved hold's capacity to the pool. Releasing a hold
// that already left reserved status is a no-op, not an error.
func (s *ReservationService) Release(ctx context.Context, scope tenant.Scope, reservationID uuid.UUID, reason string) (repository.Reservation, error) {
	res, err := s.reservations.GetByID(ctx, scope, reservationID)
	if err != nil {
		return repository.Reservation{}, err
	}

	moved, err := s.reservations.Transition(ctx, scope, reservationID, repository.StatusReserved, repository.StatusReleased)
	if err != nil {
		return repository.Reservation{}, err
	}
	if !moved {
		return s.reservations.GetByID(ctx, scope, reservationID)
	}

	if _, err := s.ledger.Release(ctx, scope, res.EpisodeID, res.Placement, res.Quantity); err != nil {
		s.log.Error("counter release failed after row transition",
			"reservation_id", reservationID, "error", err)
		return repository.Reservation{}, err
	}

	res.Status = repository.StatusReleased
	res.Locked = false
	res.ExpiresAt = nil
	s.bus.Publish(ctx, events.ReservationReleased{
		BaseEvent:     events.NewBaseEvent(),
		TenantID:      scope.TenantID(),
		ReservationID: res.ID,
		CampaignID:    res.CampaignID,
		EpisodeID:     res.EpisodeID,
		Placement:     string(res.Placement),
		Quantity:      res.Quantity,
		Reason:        reason,
	})
	return res, nil
}

// ReleaseActiveForCampaign releases every reserved hold a campaign still has.
// Confirmed bookings are left untouched.
func (s *ReservationService) ReleaseActiveForCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID, reason string) (int, error) {
	active, err := s.reservations.ListActiveByCampaign(ctx, scope, campaignID)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, res := range active {
		if _, err := s.Release(ctx, scope, res.ID, reason); err != nil {
			return released, err
		}
		released++
	}
	return released, nil
}

// Extend pushes a reserved hold's expiry out by ttl from now.
func (s *ReservationService) Extend(ctx context.Context, scope tenant.Scope, reservationID uuid.UUID, ttl time.Duration) (repository.Reservation, error) {
	if ttl <= 0 {
		ttl = time.Duration(s.defaults.HoldTTLHours) * time.Hour
	}
	moved, err := s.reservations.UpdateExpiry(ctx, scope, reservationID, s.now().Add(ttl))
	if err != nil {
		return repository.Reservation{}, err
	}
	if !moved {
		res, err := s.reservations.GetByID(ctx, scope, reservationID)
		if err != nil {
			return repository.Reservation{}, err
		}
		return repository.Reservation{}, apperr.Expired("cannot extend a hold in status " + string(res.Status))
	}
	return s.reservations.GetByID(ctx, scope, reservationID)
}

// ExpireOne moves a lapsed hold to expired and returns its capacity. The
// conditional row transition keeps a rerun of the sweep from releasing the
// same capacity twice.
func (s *ReservationService) ExpireOne(ctx context.Context, scope tenant.Scope, res repository.Reservation) (bool, error) {
	moved, err := s.reservations.TransitionExpired(ctx, scope, res.ID, s.now())
	if err != nil {
		return false, err
	}
	if !moved {
		return false, nil
	}

	if _, err := s.ledger.Release(ctx, scope, res.EpisodeID, res.Placement, res.Quantity); err != nil {
		s.log.Error("counter release failed for expired hold",
			"reservation_id", res.ID, "error", err)
		return true, err
	}

	s.bus.Publish(ctx, events.ReservationExpired{
		BaseEvent:     events.NewBaseEvent(),
		TenantID:      scope.TenantID(),
		ReservationID: res.ID,
		CampaignID:    res.CampaignID,
		EpisodeID:     res.EpisodeID,
		Placement:     string(res.Placement),
		Quantity:      res.Quantity,
	})
	return true, nil
}

// GetReservation returns one reservation row.
func (s *ReservationService) GetReservation(ctx context.Context, scope tenant.Scope, id uuid.UUID) (repository.Reservation, error) {
	return s.reservations.GetByID(ctx, scope, id)
}

// ListActiveByCampaign returns the campaign's holds still in reserved
// status.
func (s *ReservationService) ListActiveByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]repository.Reservation, error) {
	return s.reservations.ListActiveByCampaign(ctx, scope, campaignID)
}

// ListByCampaign returns a campaign's reservations, newest last.
func (s *ReservationService) ListByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]repository.Reservation, error) {
	return s.reservations.ListByCampaign(ctx, scope, campaignID)
}

// Snapshot returns the counter snapshot for every placement of an episode.
// Placements without a counter row are omitted.
func (s *ReservationService) Snapshot(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID) (map[repository.Placement]repository.Counts, error) {
	out := make(map[repository.Placement]repository.Counts, 3)
	for _, p := range []repository.Placement{
		repository.PlacementPreRoll,
		repository.PlacementMidRoll,
		repository.PlacementPostRoll,
	} {
		counts, err := s.ledger.Counts(ctx, scope, episodeID, p)
		if err != nil {
			if apperr.Is(err, apperr.KindNotFound) {
				continue
			}
			return nil, err
		}
		out[p] = counts
	}
	if len(out) == 0 {
		return nil, apperr.NotFound("no inventory for episode")
	}
	return out, nil
}

// Recount recomputes one counter from its reservation rows, optionally
// repairing the cache. Repair is only ever triggered from this explicit
// admin path.
func (s *ReservationService) Recount(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement repository.Placement, repair bool) (repository.RecountResult, error) {
	result, err := s.ledger.Recount(ctx, scope, episodeID, placement, repair)
	if err != nil {
		return repository.RecountResult{}, err
	}
	if result.Drifted {
		s.log.LedgerCorruption(episodeID.String(), string(placement), "recount found counter drift")
	}
	return result, nil
}

func (s *ReservationService) publishAlertCreated(ctx context.Context, scope tenant.Scope, alert repository.Alert) {
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
