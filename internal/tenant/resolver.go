package tenant

import (
	"context"
	"fmt"

	"adops_backend/platform/apperr"
	"adops_backend/platform/httpkit"
	"adops_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const tenantNotFoundMessage = "tenant not found"

// AuditWriter records cross-tenant override grants. The record must be
// written before the elevated scope is usable.
type AuditWriter interface {
	RecordOverride(ctx context.Context, actorID, targetTenantID uuid.UUID, operation string) error
}

// Resolver maps an authenticated principal to its tenant partition.
type Resolver struct {
	audit AuditWriter
	log   *logger.Logger
}

// NewResolver creates a tenant resolver.
func NewResolver(audit AuditWriter, log *logger.Logger) *Resolver {
	return &Resolver{audit: audit, log: log}
}

// Resolve returns the scope for the principal's own tenant. Resolution fails
// closed when the token carries no tenant binding.
func (r *Resolver) Resolve(ctx context.Context, id httpkit.Identity) (Scope, error) {
	if id == nil || !id.IsAuthenticated() {
		return Scope{}, apperr.Unauthorized("authentication required")
	}

	tenantID := id.TenantID()
	if tenantID == nil || *tenantID == uuid.Nil {
		return Scope{}, apperr.NotFound(tenantNotFoundMessage)
	}

	return Scope{tenantID: *tenantID, actorID: id.UserID()}, nil
}

// ResolveFor grants an admin a scope bound to a different tenant than their
// own. The audit record is written first; if it cannot be written the grant
// fails and no scope is issued.
func (r *Resolver) ResolveFor(ctx context.Context, id httpkit.Identity, targetTenantID uuid.UUID, operation string) (Scope, error) {
	if id == nil || !id.IsAuthenticated() {
		return Scope{}, apperr.Unauthorized("authentication required")
	}
	if !id.HasRole(httpkit.RoleAdmin) {
		return Scope{}, apperr.Forbidden("cross-tenant access requires admin role")
	}
	if targetTenantID == uuid.Nil {
		return Scope{}, apperr.NotFound(tenantNotFoundMessage)
	}

	if own := id.TenantID(); own != nil && *own == targetTenantID {
		return Scope{tenantID: targetTenantID, actorID: id.UserID()}, nil
	}

	if r.audit == nil {
		return Scope{}, apperr.Internal("tenant audit log not configured")
	}
	if err := r.audit.RecordOverride(ctx, id.UserID(), targetTenantID, operation); err != nil {
		return Scope{}, apperr.Wrap(apperr.KindInternal, "record tenant override", err)
	}

	if r.log != nil {
		r.log.Warn("cross-tenant override granted",
			"actor_id", id.UserID().String(),
			"target_tenant_id", targetTenantID.String(),
			"operation", operation,
		)
	}

	return Scope{tenantID: targetTenantID, actorID: id.UserID(), elevated: true}, nil
}

// AuditRepo persists override grants to tenant_audit_log.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo creates the audit log repository.
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// RecordOverride inserts the grant record.
func (r *AuditRepo) RecordOverride(ctx context.Context, actorID, targetTenantID uuid.UUID, operation string) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tenant_audit_log (actor_id, target_tenant_id, operation)
		 VALUES ($1, $2, $3)`,
		actorID, targetTenantID, operation,
	)
	if err != nil {
		return fmt.Errorf("record tenant override: %w", err)
	}
	return nil
}

// Compile-time check that AuditRepo implements AuditWriter.
var _ AuditWriter = (*AuditRepo)(nil)
