package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"adops_backend/internal/tenant"
	"adops_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	counterNotFoundMessage = "inventory counter not found"
	// pgLockNotAvailable is raised when lock_timeout expires while waiting
	// for the row lock.
	pgLockNotAvailable = "55P03"
)

// LedgerRepo implements Ledger with PostgreSQL row locking. Capacity is
// enforced pessimistically at write time; contention is scoped to the single
// (episode, placement) row.
type LedgerRepo struct {
	pool        *pgxpool.Pool
	lockTimeout time.Duration
}

// NewLedger creates the ledger repository. lockTimeout bounds the wait on a
// contended counter row before surfacing Busy.
func NewLedger(pool *pgxpool.Pool, lockTimeout time.Duration) *LedgerRepo {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &LedgerRepo{pool: pool, lockTimeout: lockTimeout}
}

// Compile-time check that LedgerRepo implements Ledger.
var _ Ledger = (*LedgerRepo)(nil)

// TryReserve acquires the row lock, verifies capacity and increments
// reservedSlots, all in one transaction. This is the only entry point that
// grows reserved capacity.
func (r *LedgerRepo) TryReserve(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement, quantity int) (Counts, error) {
	if quantity < 1 {
		return Counts{}, apperr.Validation("quantity must be positive")
	}

	var counts Counts
	err := r.withLockedRow(ctx, scope, episodeID, placement, func(tx pgx.Tx, c Counts) error {
		counts = c
		if c.ReservedSlots+c.BookedSlots+quantity > c.TotalSlots {
			return apperr.Conflict("not enough inventory").
				WithDetails(map[string]int{"remaining": c.Available()})
		}

		_, err := tx.Exec(ctx,
			`UPDATE episode_inventory
			 SET reserved_slots = reserved_slots + $1, updated_at = now()
			 WHERE tenant_id = $2 AND episode_id = $3 AND placement_type = $4`,
			quantity, scope.TenantID(), episodeID, string(placement),
		)
		if err != nil {
			return fmt.Errorf("increment reserved: %w", err)
		}
		counts.ReservedSlots += quantity
		return nil
	})
	return counts, err
}

// Release decrements reservedSlots. Going below zero signals an upstream bug
// and is surfaced as Corruption, never clamped.
func (r *LedgerRepo) Release(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement, quantity int) (Counts, error) {
	if quantity < 1 {
		return Counts{}, apperr.Validation("quantity must be positive")
	}

	var counts Counts
	err := r.withLockedRow(ctx, scope, episodeID, placement, func(tx pgx.Tx, c Counts) error {
		counts = c
		if c.ReservedSlots-quantity < 0 {
			return apperr.Corruption(fmt.Sprintf(
				"release of %d would drive reserved below zero (reserved=%d)",
				quantity, c.ReservedSlots,
			))
		}

		_, err := tx.Exec(ctx,
			`UPDATE episode_inventory
			 SET reserved_slots = reserved_slots - $1, updated_at = now()
			 WHERE tenant_id = $2 AND episode_id = $3 AND placement_type = $4`,
			quantity, scope.TenantID(), episodeID, string(placement),
		)
		if err != nil {
			return fmt.Errorf("decrement reserved: %w", err)
		}
		counts.ReservedSlots -= quantity
		return nil
	})
	return counts, err
}

// Confirm atomically moves quantity from reservedSlots to bookedSlots.
func (r *LedgerRepo) Confirm(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement, quantity int) (Counts, error) {
	if quantity < 1 {
		return Counts{}, apperr.Validation("quantity must be positive")
	}

	var counts Counts
	err := r.withLockedRow(ctx, scope, episodeID, placement, func(tx pgx.Tx, c Counts) error {
		counts = c
		if c.ReservedSlots-quantity < 0 {
			return apperr.Corruption(fmt.Sprintf(
				"confirm of %d exceeds reserved count (reserved=%d)",
				quantity, c.ReservedSlots,
			))
		}

		_, err := tx.Exec(ctx,
			`UPDATE episode_inventory
			 SET reserved_slots = reserved_slots - $1,
			     booked_slots = booked_slots + $1,
			     updated_at = now()
			 WHERE tenant_id = $2 AND episode_id = $3 AND placement_type = $4`,
			quantity, scope.TenantID(), episodeID, string(placement),
		)
		if err != nil {
			return fmt.Errorf("move reserved to booked: %w", err)
		}
		counts.ReservedSlots -= quantity
		counts.BookedSlots += quantity
		return nil
	})
	return counts, err
}

// Counts returns the cached counter snapshot without locking.
func (r *LedgerRepo) Counts(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement) (Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx,
		`SELECT total_slots, reserved_slots, booked_slots
		 FROM episode_inventory
		 WHERE tenant_id = $1 AND episode_id = $2 AND placement_type = $3`,
		scope.TenantID(), episodeID, string(placement),
	).Scan(&c.TotalSlots, &c.ReservedSlots, &c.BookedSlots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Counts{}, apperr.NotFound(counterNotFoundMessage)
		}
		return Counts{}, fmt.Errorf("read counter: %w", err)
	}
	return c, nil
}

// Recount recomputes reserved/booked from the authoritative reservation rows
// and compares against the cache. With repair=true the cached counters are
// rewritten under the row lock; otherwise the row is untouched.
func (r *LedgerRepo) Recount(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement, repair bool) (RecountResult, error) {
	var result RecountResult
	err := r.withLockedRow(ctx, scope, episodeID, placement, func(tx pgx.Tx, cached Counts) error {
		result.Cached = cached
		result.Actual.TotalSlots = cached.TotalSlots

		err := tx.QueryRow(ctx,
			`SELECT
			   COALESCE(SUM(quantity) FILTER (WHERE status = 'reserved'), 0),
			   COALESCE(SUM(quantity) FILTER (WHERE status = 'confirmed'), 0)
			 FROM reservations
			 WHERE tenant_id = $1 AND episode_id = $2 AND placement_type = $3`,
			scope.TenantID(), episodeID, string(placement),
		).Scan(&result.Actual.ReservedSlots, &result.Actual.BookedSlots)
		if err != nil {
			return fmt.Errorf("recount reservations: %w", err)
		}

		result.Drifted = result.Actual.ReservedSlots != cached.ReservedSlots ||
			result.Actual.BookedSlots != cached.BookedSlots

		if !result.Drifted || !repair {
			return nil
		}

		_, err = tx.Exec(ctx,
			`UPDATE episode_inventory
			 SET reserved_slots = $1, booked_slots = $2, updated_at = now()
			 WHERE tenant_id = $3 AND episode_id = $4 AND placement_type = $5`,
			result.Actual.ReservedSlots, result.Actual.BookedSlots,
			scope.TenantID(), episodeID, string(placement),
		)
		if err != nil {
			return fmt.Errorf("repair counter: %w", err)
		}
		result.Repaired = true
		return nil
	})
	return result, err
}

// ListCounterKeys returns every counter row key for the tenant.
func (r *LedgerRepo) ListCounterKeys(ctx context.Context, scope tenant.Scope) ([]CounterKey, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT episode_id, placement_type
		 FROM episode_inventory
		 WHERE tenant_id = $1
		 ORDER BY episode_id, placement_type`,
		scope.TenantID(),
	)
	if err != nil {
		return nil, fmt.Errorf("list counter keys: %w", err)
	}
	defer rows.Close()

	var keys []CounterKey
	for rows.Next() {
		var key CounterKey
		var placement string
		if err := rows.Scan(&key.EpisodeID, &placement); err != nil {
			return nil, fmt.Errorf("scan counter key: %w", err)
		}
		key.Placement = Placement(placement)
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// withLockedRow runs fn with the counter row locked FOR UPDATE inside a
// transaction. The wait for the lock is bounded; a timeout surfaces as Busy
// so callers can distinguish contention from exhausted capacity.
func (r *LedgerRepo) withLockedRow(ctx context.Context, scope tenant.Scope, episodeID uuid.UUID, placement Placement, fn func(tx pgx.Tx, counts Counts) error) error {
	if !placement.Valid() {
		return apperr.Validation("unknown placement type")
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", r.lockTimeout.Milliseconds()))
	if err != nil {
		return fmt.Errorf("set lock timeout: %w", err)
	}

	var counts Counts
	err = tx.QueryRow(ctx,
		`SELECT total_slots, reserved_slots, booked_slots
		 FROM episode_inventory
		 WHERE tenant_id = $1 AND episode_id = $2 AND placement_type = $3
		 FOR UPDATE`,
		scope.TenantID(), episodeID, string(placement),
	).Scan(&counts.TotalSlots, &counts.ReservedSlots, &counts.BookedSlots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return apperr.NotFound(counterNotFoundMessage)
		}
		if isLockTimeout(err) {
			return apperr.Busy("inventory counter is contended")
		}
		return fmt.Errorf("lock counter: %w", err)
	}

	if err := fn(tx, counts); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func isLockTimeout(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable
}
