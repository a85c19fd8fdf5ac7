// internal/resolver/resolver.go
//
// Host-header → tenant-context resolution.
//
// Context
// -------
// The resolver is the only component allowed to mint a tenant context.
// Given an inbound host it decides between three outcomes: a platform
// route (apex or reserved label, never a tenant), a resolved tenant, or a
// definitive not-found.  There is deliberately no default tenant anywhere
// in this file: a malformed or unknown host must fall through to
// KindNotFound, because defaulting would serve one tenant's content under
// another's route.
//
// Resolution rules
// ----------------
//  1. Normalize: strip port, lowercase, trim trailing dot.  Anything that
//     is not a plausible DNS host is NotFound.
//  2. The bare base domain and reserved labels under it short-circuit to
//     KindPlatform before any directory lookup.
//  3. A registered custom domain wins by exact match, even when the host
//     also parses as `<label>.<base domain>`.
//  4. Otherwise the leftmost label under the base domain is the subdomain
//     key.  Nested labels (`a.b.<base>`) never resolve.
//
// Suspended and deleted tenants still resolve; the caller decides how to
// render an unavailable tenant.  "Never existed" and "existed but
// inactive" stay distinguishable here and are collapsed only at the HTTP
// edge.
package resolver

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/metrics"
)

// Kind classifies a resolution outcome.
type Kind int

const (
	KindNotFound Kind = iota
	KindPlatform
	KindTenant
)

// Resolution carries the outcome of one host lookup.  Tenant is only
// meaningful when Kind == KindTenant.
type Resolution struct {
	Kind   Kind
	Tenant directory.Context
}

// Directory is the subset of the tenant directory the resolver consumes.
type Directory interface {
	BySubdomain(ctx context.Context, sub string) (*directory.Record, error)
	ByCustomDomain(ctx context.Context, domain string) (*directory.Record, error)
}

// Resolver maps host headers onto tenant contexts via a short-TTL cache.
type Resolver struct {
	dir        Directory
	baseDomain string
	reserved   map[string]struct{}
	cache      *Cache
}

// Options tunes the resolver's read cache.
type Options struct {
	RefreshTTL time.Duration
	IdleTTL    time.Duration
	MaxEntries int
}

// New builds a Resolver for one base domain.  reservedLabels are the
// subdomain labels that always route to the platform surface.
func New(dir Directory, baseDomain string, reservedLabels []string, opts Options) *Resolver {
	r := &Resolver{
		dir:        dir,
		baseDomain: strings.ToLower(baseDomain),
		reserved:   make(map[string]struct{}, len(reservedLabels)),
	}
	for _, l := range reservedLabels {
		r.reserved[strings.ToLower(l)] = struct{}{}
	}
	r.cache = NewCache(r.loadHost, opts.RefreshTTL, opts.IdleTTL, opts.MaxEntries)
	return r
}

// FromHost resolves one raw Host header.  It never returns an error; every
// failure mode collapses into KindNotFound by design.
func (r *Resolver) FromHost(ctx context.Context, host string) Resolution {
	h := normalizeHost(host)
	if h == "" {
		metrics.ResolveNotFoundTotal.Inc()
		return Resolution{Kind: KindNotFound}
	}

	if h == r.baseDomain {
		return Resolution{Kind: KindPlatform}
	}
	if label, ok := strings.CutSuffix(h, "."+r.baseDomain); ok {
		if strings.Contains(label, ".") {
			// Nested labels are not tenant keys and not platform routes.
			metrics.ResolveNotFoundTotal.Inc()
			return Resolution{Kind: KindNotFound}
		}
		if _, res := r.reserved[label]; res {
			return Resolution{Kind: KindPlatform}
		}
	}

	tctx, err := r.cache.Get(ctx, h)
	if err != nil {
		metrics.ResolveNotFoundTotal.Inc()
		return Resolution{Kind: KindNotFound}
	}
	return Resolution{Kind: KindTenant, Tenant: tctx}
}

// Invalidate drops the cached mappings a routing-key change touches.  Keys
// without a dot are subdomain labels; anything else is a custom domain.
func (r *Resolver) Invalidate(routingKey string) {
	key := strings.ToLower(routingKey)
	if strings.Contains(key, ".") {
		r.cache.Invalidate(key)
		return
	}
	r.cache.Invalidate(key + "." + r.baseDomain)
}

// Close stops the cache's background evictor.
func (r *Resolver) Close() { r.cache.Stop() }

//
// loading
//

// loadHost is the cache's miss path: custom-domain exact match first, then
// the subdomain label for hosts under the base domain.
func (r *Resolver) loadHost(ctx context.Context, host string) (directory.Context, error) {
	rec, err := r.dir.ByCustomDomain(ctx, host)
	if err == nil {
		tctx := rec.Context()
		tctx.RoutingKey = host
		return tctx, nil
	}
	if !errors.Is(err, directory.ErrNotFound) {
		return directory.Context{}, err
	}

	if label, ok := strings.CutSuffix(host, "."+r.baseDomain); ok && !strings.Contains(label, ".") {
		rec, err := r.dir.BySubdomain(ctx, label)
		if err != nil {
			return directory.Context{}, err
		}
		return rec.Context(), nil
	}
	return directory.Context{}, directory.ErrNotFound
}

//
// helpers
//

// normalizeHost strips the :port suffix, lowercases, and trims a trailing
// dot.  Returns "" when the remainder cannot be a DNS host.
func normalizeHost(h string) string {
	if i := strings.IndexByte(h, ':'); i != -1 {
		h = h[:i]
	}
	h = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(h)), ".")
	if h == "" || len(h) > 253 {
		return ""
	}
	for _, c := range h {
		switch {
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '-' || c == '.':
		default:
			return ""
		}
	}
	return h
}
