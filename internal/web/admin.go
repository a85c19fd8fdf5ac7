// internal/web/admin.go
//
// Tenant administration: routing-key and lifecycle mutations.
//
// Context
// -------
// These routes live on the platform host under /admin and are the only
// write path to a tenant's routing keys and lifecycle state.  Every
// mutation ends by invalidating the resolver cache for the keys it
// touched, old and new, so a rename or suspension takes effect on the
// next request instead of waiting out the refresh TTL.
//
// Authentication is the fronting proxy's job; the handlers record the
// X-Admin-Actor header on every mutation so the audit trail names a
// person.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/signup"
)

// TenantAdmin is the slice of the tenant directory the admin surface
// mutates.
type TenantAdmin interface {
	ByID(ctx context.Context, id uint64) (*directory.Record, error)
	UpdateRoutingKey(ctx context.Context, tenantID uint64, newKey string) (oldKey string, err error)
	SetCustomDomain(ctx context.Context, tenantID uint64, domain *string) error
	UpdateState(ctx context.Context, tenantID uint64, state directory.State) error
}

// Invalidator drops a routing key from the resolver cache.
type Invalidator interface {
	Invalidate(routingKey string)
}

// Admin serves the tenant-mutation API on the platform host.
type Admin struct {
	dir      TenantAdmin
	cache    Invalidator
	reserved map[string]struct{}
	log      *zap.SugaredLogger
}

// NewAdmin wires the admin surface.
func NewAdmin(dir TenantAdmin, cache Invalidator, reservedLabels []string, log *zap.SugaredLogger) *Admin {
	if log == nil {
		log = zap.S()
	}
	a := &Admin{
		dir:      dir,
		cache:    cache,
		reserved: make(map[string]struct{}, len(reservedLabels)),
		log:      log,
	}
	for _, l := range reservedLabels {
		a.reserved[strings.ToLower(l)] = struct{}{}
	}
	return a
}

// Routes builds the chi router for the /admin subtree.
func (a *Admin) Routes() http.Handler {
	r := chi.NewRouter()
	r.Route("/admin/tenants/{tenantID}", func(r chi.Router) {
		r.Put("/subdomain", a.rename)
		r.Put("/domain", a.setDomain)
		r.Put("/state", a.setState)
	})
	return r
}

//
// handlers
//

// rename moves a tenant to a new primary subdomain and drops both the old
// and the new key from the resolver cache.
func (a *Admin) rename(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	var req struct {
		Subdomain string `json:"subdomain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed_body")
		return
	}
	sub := strings.ToLower(req.Subdomain)
	if !signup.ValidSubdomain(sub) {
		writeErr(w, http.StatusUnprocessableEntity, "invalid_subdomain")
		return
	}
	if _, res := a.reserved[sub]; res {
		writeErr(w, http.StatusUnprocessableEntity, "subdomain_reserved")
		return
	}

	oldKey, err := a.dir.UpdateRoutingKey(r.Context(), id, sub)
	if err != nil {
		a.writeDirErr(w, err)
		return
	}
	a.cache.Invalidate(oldKey)
	a.cache.Invalidate(sub)
	a.logMutation(r, "tenant renamed", id, "old", oldKey, "new", sub)
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": id, "subdomain": sub})
}

// setDomain attaches or clears a custom domain.  An empty domain clears.
func (a *Admin) setDomain(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	var req struct {
		Domain string `json:"domain"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed_body")
		return
	}
	domain := strings.ToLower(strings.TrimSuffix(req.Domain, "."))
	if domain != "" && !validDomain(domain) {
		writeErr(w, http.StatusUnprocessableEntity, "invalid_domain")
		return
	}

	// The row is read first so the outgoing domain can be invalidated too.
	rec, err := a.dir.ByID(r.Context(), id)
	if err != nil {
		a.writeDirErr(w, err)
		return
	}

	var arg *string
	if domain != "" {
		arg = &domain
	}
	if err := a.dir.SetCustomDomain(r.Context(), id, arg); err != nil {
		a.writeDirErr(w, err)
		return
	}
	if rec.CustomDomain != nil {
		a.cache.Invalidate(*rec.CustomDomain)
	}
	if domain != "" {
		a.cache.Invalidate(domain)
	}
	a.logMutation(r, "custom domain set", id, "domain", domain)
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": id, "domain": domain})
}

// setState transitions a tenant's lifecycle state and invalidates every
// routing key the tenant serves under, so a suspension is visible on the
// next request.
func (a *Admin) setState(w http.ResponseWriter, r *http.Request) {
	id, ok := a.tenantID(w, r)
	if !ok {
		return
	}
	var req struct {
		State string `json:"state"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "malformed_body")
		return
	}
	state := directory.State(strings.ToLower(req.State))
	switch state {
	case directory.StateActive, directory.StateSuspended, directory.StateDeleted:
	default:
		writeErr(w, http.StatusUnprocessableEntity, "invalid_state")
		return
	}

	rec, err := a.dir.ByID(r.Context(), id)
	if err != nil {
		a.writeDirErr(w, err)
		return
	}
	if err := a.dir.UpdateState(r.Context(), id, state); err != nil {
		a.writeDirErr(w, err)
		return
	}
	a.cache.Invalidate(rec.Subdomain)
	if rec.CustomDomain != nil {
		a.cache.Invalidate(*rec.CustomDomain)
	}
	a.logMutation(r, "tenant state changed", id, "state", state)
	writeJSON(w, http.StatusOK, map[string]any{"tenant_id": id, "state": state})
}

//
// helpers
//

func (a *Admin) tenantID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "tenantID"), 10, 64)
	if err != nil || id == 0 {
		WriteNotFound(w)
		return 0, false
	}
	return id, true
}

func (a *Admin) writeDirErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrNotFound):
		WriteNotFound(w)
	case errors.Is(err, directory.ErrConflict):
		writeErr(w, http.StatusConflict, "conflict")
	default:
		a.log.Errorw("admin mutation failed", "err", err)
		writeErr(w, http.StatusInternalServerError, "internal")
	}
}

func (a *Admin) logMutation(r *http.Request, msg string, id uint64, kv ...any) {
	kv = append([]any{"tenant", id, "actor", r.Header.Get("X-Admin-Actor")}, kv...)
	a.log.Infow(msg, kv...)
}

// validDomain accepts a plausible FQDN: dotted, DNS charset, sane length.
func validDomain(d string) bool {
	if len(d) > 253 || !strings.Contains(d, ".") {
		return false
	}
	for _, label := range strings.Split(d, ".") {
		if !signup.ValidSubdomain(label) {
			return false
		}
	}
	return true
}
