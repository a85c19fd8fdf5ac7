// internal/isolation/enforcer.go
//
// The single chokepoint between resolved tenant contexts and storage.
//
// Context
// -------
// Every content repository call passes through `Enforcer.Check` before it
// touches a row, and again after a row is fetched, comparing the entity's
// tenant reference against the context's tenant id.  The check is not
// bypassable: repositories take an *Enforcer at construction and there is
// no exported write path around them.  Administrative tooling that
// genuinely must cross tenants uses `Override`, which allows the access
// but writes an audit line for every single use.
//
// Repeated violations indicate either a bug in a caller or someone
// probing for other tenants' data, so every rejection is logged with the
// offending and target tenant ids and counted in Prometheus.  When the
// request passed through the requestinfo middleware, the device class and
// country ride along on the audit line as abuse signals.
package isolation

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/metrics"
	"github.com/plumeworks/plume/internal/requestinfo"
)

// ErrViolation is returned for any cross-tenant access attempt.  The HTTP
// layer renders it identically to a plain not-found so the response never
// confirms the target data exists.
var ErrViolation = errors.New("isolation violation")

// ErrTenantInactive is returned when the context's tenant is suspended or
// deleted; data operations stop at the enforcer, before storage.
var ErrTenantInactive = errors.New("tenant inactive")

// Enforcer validates tenant contexts against entity ownership.
type Enforcer struct {
	log *zap.Logger
}

// New builds an Enforcer.  A nil logger falls back to the process global.
func New(log *zap.Logger) *Enforcer {
	if log == nil {
		log = zap.L()
	}
	return &Enforcer{log: log}
}

// Check rejects the operation unless the entity belongs to the context's
// tenant and that tenant is in a servable lifecycle state.  ctx is only
// read for request enrichment; cancellation is the caller's concern.
func (e *Enforcer) Check(ctx context.Context, tctx directory.Context, entityTenantID uint64) error {
	if !tctx.State.Servable() {
		return ErrTenantInactive
	}
	if entityTenantID != tctx.TenantID {
		metrics.IsolationViolationsTotal.Inc()
		fields := []zap.Field{
			zap.Uint64("tenant", tctx.TenantID),
			zap.Uint64("entity_tenant", entityTenantID),
			zap.String("routing_key", tctx.RoutingKey),
		}
		if info := requestinfo.FromContext(ctx); info != nil {
			fields = append(fields,
				zap.String("device", info.UA.Device),
				zap.Bool("bot", info.UA.IsBot),
				zap.String("country", info.Geo.CountryISO))
		}
		e.log.Warn("cross-tenant access rejected", fields...)
		return ErrViolation
	}
	return nil
}

//
// Audited override
//

// Override identifies an administrative actor crossing tenant boundaries
// on purpose.  Both fields are required; an empty override never passes.
type Override struct {
	Actor  string
	Reason string
}

// CheckOverride allows a cross-tenant access and records who did it and
// why.  The tenant-state check still applies: even admins do not write to
// deleted tenants through this path.
func (e *Enforcer) CheckOverride(ctx context.Context, ov Override, tctx directory.Context, entityTenantID uint64) error {
	if ov.Actor == "" || ov.Reason == "" {
		return e.Check(ctx, tctx, entityTenantID)
	}
	if !tctx.State.Servable() {
		return ErrTenantInactive
	}
	e.log.Info("isolation override used",
		zap.String("actor", ov.Actor),
		zap.String("reason", ov.Reason),
		zap.Uint64("tenant", tctx.TenantID),
		zap.Uint64("entity_tenant", entityTenantID))
	return nil
}
