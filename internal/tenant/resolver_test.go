package tenant

import (
	"context"
	"errors"
	"testing"

	"adops_backend/platform/apperr"
	"adops_backend/platform/httpkit"

	"github.com/google/uuid"
)

type fakeAudit struct {
	records []string
	fail    bool
}

func (f *fakeAudit) RecordOverride(ctx context.Context, actorID, targetTenantID uuid.UUID, operation string) error {
	if f.fail {
		return errors.New("audit unavailable")
	}
	f.records = append(f.records, operation)
	return nil
}

func TestResolveFailsClosedWithoutTenantClaim(t *testing.T) {
	r := NewResolver(&fakeAudit{}, nil)

	_, err := r.Resolve(context.Background(), httpkit.NewIdentity(uuid.New(), nil, nil))
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("expected NotFound for unbound principal, got %v", err)
	}

	_, err = r.Resolve(context.Background(), nil)
	if !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected Unauthorized for missing identity, got %v", err)
	}
}

func TestResolveBindsOwnTenant(t *testing.T) {
	r := NewResolver(&fakeAudit{}, nil)
	tenantID := uuid.New()
	actorID := uuid.New()

	scope, err := r.Resolve(context.Background(), httpkit.NewIdentity(actorID, &tenantID, nil))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if scope.TenantID() != tenantID {
		t.Fatal("scope bound to wrong tenant")
	}
	if scope.ActorID() != actorID {
		t.Fatal("scope bound to wrong actor")
	}
	if scope.Elevated() {
		t.Fatal("own-tenant scope must not be elevated")
	}
}

func TestResolveForRequiresAdmin(t *testing.T) {
	audit := &fakeAudit{}
	r := NewResolver(audit, nil)
	own := uuid.New()

	_, err := r.ResolveFor(context.Background(), httpkit.NewIdentity(uuid.New(), &own, []string{"planner"}), uuid.New(), "audit_sweep")
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected Forbidden for non-admin, got %v", err)
	}
	if len(audit.records) != 0 {
		t.Fatal("no audit record should be written for denied grants")
	}
}

func TestResolveForAuditsBeforeGrant(t *testing.T) {
	audit := &fakeAudit{}
	r := NewResolver(audit, nil)
	own := uuid.New()
	target := uuid.New()

	scope, err := r.ResolveFor(context.Background(), httpkit.NewIdentity(uuid.New(), &own, []string{httpkit.RoleAdmin}), target, "inventory_audit")
	if err != nil {
		t.Fatalf("resolve for: %v", err)
	}
	if !scope.Elevated() {
		t.Fatal("cross-tenant scope must be marked elevated")
	}
	if scope.TenantID() != target {
		t.Fatal("scope bound to wrong tenant")
	}
	if len(audit.records) != 1 || audit.records[0] != "inventory_audit" {
		t.Fatalf("expected one audit record, got %v", audit.records)
	}
}

func TestResolveForFailsWhenAuditFails(t *testing.T) {
	r := NewResolver(&fakeAudit{fail: true}, nil)
	own := uuid.New()

	_, err := r.ResolveFor(context.Background(), httpkit.NewIdentity(uuid.New(), &own, []string{httpkit.RoleAdmin}), uuid.New(), "inventory_audit")
	if err == nil {
		t.Fatal("grant must fail when the audit record cannot be written")
	}
}

func TestResolveForOwnTenantSkipsAudit(t *testing.T) {
	audit := &fakeAudit{}
	r := NewResolver(audit, nil)
	own := uuid.New()

	scope, err := r.ResolveFor(context.Background(), httpkit.NewIdentity(uuid.New(), &own, []string{httpkit.RoleAdmin}), own, "inventory_audit")
	if err != nil {
		t.Fatalf("resolve for own tenant: %v", err)
	}
	if scope.Elevated() {
		t.Fatal("own-tenant admin scope is not an override")
	}
	if len(audit.records) != 0 {
		t.Fatal("own-tenant access must not write override records")
	}
}
