// Package tenant provides tenant partition resolution and the scoped
// data-access handle every other module consumes. No repository accepts a raw
// tenant identifier; queries are always bound through a Scope so cross-tenant
// access can only happen via the audited override path.
package tenant

import "github.com/google/uuid"

// Scope is the data-access handle bound to exactly one tenant partition.
// It is immutable once issued.
type Scope struct {
	tenantID uuid.UUID
	actorID  uuid.UUID
	elevated bool
}

// TenantID returns the bound tenant partition identifier.
func (s Scope) TenantID() uuid.UUID { return s.tenantID }

// ActorID returns the principal the scope was issued to.
func (s Scope) ActorID() uuid.UUID { return s.actorID }

// Elevated reports whether this scope was granted through the audited
// cross-tenant override.
func (s Scope) Elevated() bool { return s.elevated }

// IsZero reports whether the scope was never resolved.
func (s Scope) IsZero() bool { return s.tenantID == uuid.Nil }

// NewScope builds a scope directly. Intended for tests and background jobs
// that iterate tenants outside an HTTP request; request handlers must go
// through the Resolver.
func NewScope(tenantID, actorID uuid.UUID) Scope {
	return Scope{tenantID: tenantID, actorID: actorID}
}
