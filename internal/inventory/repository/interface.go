package repository

import (
	"context"
	"time"

	"adops_backend/internal/tenant"

	"github.com/google/uuid"
)

// Ledger is the only capacity-mutating surface in the system. Counter rows
// are never incremented by any other path.
type Ledger interface {
	// TryReserve atomically verifies capacity and increments reservedSlots
	// inside a single row-locked transaction. Returns Conflict when capacity
	// is exhausted (not retryable) and Busy on lock timeout (retryable).
	TryReserve(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement, quantity int) (Counts, error)
	// Release decrements reservedSlots. A decrement that would go below zero
	// is a Corruption error, never a clamp.
	Release(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement, quantity int) (Counts, error)
	// Confirm atomically moves quantity from reservedSlots to bookedSlots.
	Confirm(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement, quantity int) (Counts, error)
	// Counts returns the cached counter snapshot.
	Counts(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement) (Counts, error)
	// Recount recomputes the counters from reservation rows. It mutates only
	// when repair is true.
	Recount(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement, repair bool) (RecountResult, error)
	// ListCounterKeys returns every (episode, placement) counter row for the
	// tenant, for use by the reconciliation sweep.
	ListCounterKeys(ctx context.Context, scope tenant.Scope) ([]CounterKey, error)
}

// CounterKey identifies one counter row.
type CounterKey struct {
	EpisodeID uuid.UUID
	Placement Placement
}

// Reservations persists hold rows. The reservation service is its only
// writer.
type Reservations interface {
	Create(ctx context.Context, scope tenant.Scope, params CreateReservationParams) (Reservation, error)
	GetByID(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Reservation, error)
	// FindActiveHold returns the live hold for (campaign, episode, placement),
	// or nil when none exists. Used to make repeated stage-90 invocations
	// no-ops.
	FindActiveHold(ctx context.Context, scope tenant.Scope, campaignID, episodeID uuid.UUID, placement Placement) (*Reservation, error)
	// Transition performs a conditional status change and reports whether the
	// row actually moved. A false return with no error means the row was
	// already past the source status.
	Transition(ctx context.Context, scope tenant.Scope, id uuid.UUID, from, to ReservationStatus) (bool, error)
	// TransitionExpired moves a lapsed hold to expired, but only if it is
	// still reserved and its expiry has passed. Row-level idempotent so a
	// crashed sweep can rerun safely.
	TransitionExpired(ctx context.Context, scope tenant.Scope, id uuid.UUID, now time.Time) (bool, error)
	UpdateExpiry(ctx context.Context, scope tenant.Scope, id uuid.UUID, expiresAt time.Time) (bool, error)
	ListExpired(ctx context.Context, scope tenant.Scope, now time.Time, limit int) ([]Reservation, error)
	ListActiveByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]Reservation, error)
	ListByCampaign(ctx context.Context, scope tenant.Scope, campaignID uuid.UUID) ([]Reservation, error)
}

// Alerts persists reconciliation and capacity findings.
type Alerts interface {
	// Upsert refreshes the open alert for (type, episode, placement) or
	// creates one. Returns the alert and whether it was newly created.
	Upsert(ctx context.Context, scope tenant.Scope, params UpsertAlertParams) (Alert, bool, error)
	GetByID(ctx context.Context, scope tenant.Scope, id uuid.UUID) (Alert, error)
	Acknowledge(ctx context.Context, scope tenant.Scope, id, actor uuid.UUID) (Alert, error)
	Resolve(ctx context.Context, scope tenant.Scope, id, actor uuid.UUID, note string) (Alert, error)
	List(ctx context.Context, scope tenant.Scope, filter AlertFilter) ([]Alert, error)
	Summary(ctx context.Context, scope tenant.Scope) (AlertSummary, error)
}
