// internal/isolation/enforcer_test.go
//
// Run: go test ./internal/isolation -v

package isolation

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/requestinfo"
)

func activeCtx(id uint64) directory.Context {
	return directory.Context{TenantID: id, State: directory.StateActive, RoutingKey: "alice"}
}

func TestCheckMatchingTenant(t *testing.T) {
	e := New(zap.NewNop())
	if err := e.Check(context.Background(), activeCtx(7), 7); err != nil {
		t.Fatalf("matching tenant rejected: %v", err)
	}
}

func TestCheckCrossTenant(t *testing.T) {
	e := New(zap.NewNop())
	if err := e.Check(context.Background(), activeCtx(7), 8); !errors.Is(err, ErrViolation) {
		t.Fatalf("want ErrViolation, got %v", err)
	}
}

func TestCheckInactiveStates(t *testing.T) {
	e := New(zap.NewNop())

	for _, state := range []directory.State{directory.StateSuspended, directory.StateDeleted} {
		tctx := directory.Context{TenantID: 7, State: state}
		if err := e.Check(context.Background(), tctx, 7); !errors.Is(err, ErrTenantInactive) {
			t.Fatalf("state %s: want ErrTenantInactive, got %v", state, err)
		}
	}

	// Provisional tenants are servable immediately after commit.
	tctx := directory.Context{TenantID: 7, State: directory.StateProvisional}
	if err := e.Check(context.Background(), tctx, 7); err != nil {
		t.Fatalf("provisional tenant rejected: %v", err)
	}
}

// A violation on a request that went through the requestinfo middleware
// carries device class and country on the audit line.
func TestCheckViolationLogsRequestEnrichment(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := New(zap.New(core))

	var got error
	h := requestinfo.Enrich(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = e.Check(r.Context(), activeCtx(7), 8)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/posts/x", nil)
	req.Header.Set("User-Agent",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	h.ServeHTTP(httptest.NewRecorder(), req)

	if !errors.Is(got, ErrViolation) {
		t.Fatalf("want ErrViolation, got %v", got)
	}
	entries := logs.FilterMessage("cross-tenant access rejected").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 audit line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["device"] != "Desktop" {
		t.Fatalf("want device class on the audit line, got %v", fields["device"])
	}
	if _, ok := fields["country"]; !ok {
		t.Fatal("want country field on the audit line")
	}
}

// Without the middleware the audit line still logs the tenant pair; the
// enrichment fields are simply absent.
func TestCheckViolationWithoutEnrichment(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	e := New(zap.New(core))

	if err := e.Check(context.Background(), activeCtx(7), 8); !errors.Is(err, ErrViolation) {
		t.Fatalf("want ErrViolation, got %v", err)
	}
	entries := logs.FilterMessage("cross-tenant access rejected").All()
	if len(entries) != 1 {
		t.Fatalf("want 1 audit line, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["tenant"] != uint64(7) || fields["entity_tenant"] != uint64(8) {
		t.Fatalf("tenant pair missing from audit line: %v", fields)
	}
	if _, ok := fields["device"]; ok {
		t.Fatal("device field present without the enrichment middleware")
	}
}

func TestCheckOverride(t *testing.T) {
	e := New(zap.NewNop())
	ctx := context.Background()

	// A complete override crosses tenants.
	ov := Override{Actor: "ops:jamie", Reason: "billing export"}
	if err := e.CheckOverride(ctx, ov, activeCtx(7), 8); err != nil {
		t.Fatalf("override rejected: %v", err)
	}

	// An incomplete override falls back to the normal check.
	if err := e.CheckOverride(ctx, Override{Actor: "ops:jamie"}, activeCtx(7), 8); !errors.Is(err, ErrViolation) {
		t.Fatalf("partial override must not cross tenants, got %v", err)
	}

	// Even overrides stop at inactive tenants.
	tctx := directory.Context{TenantID: 7, State: directory.StateDeleted}
	if err := e.CheckOverride(ctx, ov, tctx, 8); !errors.Is(err, ErrTenantInactive) {
		t.Fatalf("override on deleted tenant: want ErrTenantInactive, got %v", err)
	}
}
