// cmd/web/main.go
//
// Plume – HTTP entry point.
//
// Boot sequence
// -------------
//
//  1. Load env vars (jail-wide file → .env fallback).
//
//  2. Start daily rotating logger (tees to console when running in a TTY).
//
//  3. Load typed config (YAML + PLUME_ env overlay) and resolve any
//     `vault:` secret references.
//
//  4. Open the control-plane DB and log the servable-tenant count.
//
//  5. Build the tenant directory, resolver cache, isolation enforcer,
//     signup store, and provisioning workflow.
//
//  6. Build the root handler: host resolution decides between the
//     platform surface (signup API, tenant admin, /metrics) and a
//     tenant site.
//
//  7. Wrap with Security headers and, when configured, ForceHTTPS, then
//     serve with hardened timeouts.
//
// Large comment blocks are framed by blank “//” lines; inline comments use
// a single “//”.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plumeworks/plume/internal/config"
	"github.com/plumeworks/plume/internal/content"
	"github.com/plumeworks/plume/internal/database"
	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/isolation"
	"github.com/plumeworks/plume/internal/logger"
	"github.com/plumeworks/plume/internal/middleware"
	"github.com/plumeworks/plume/internal/provision"
	"github.com/plumeworks/plume/internal/requestinfo"
	"github.com/plumeworks/plume/internal/resolver"
	"github.com/plumeworks/plume/internal/server"
	"github.com/plumeworks/plume/internal/signup"
	"github.com/plumeworks/plume/internal/vault"
	"github.com/plumeworks/plume/internal/web"
)

const serverEnvPath = "/usr/local/etc/plume/global.env"

// loadEnv prefers the jail-wide env file; on dev it falls back to .env.
func loadEnv() {
	if _, err := os.Stat(serverEnvPath); err == nil {
		_ = godotenv.Load(serverEnvPath)
		return
	}
	_ = godotenv.Load()
}

// runningInTTY returns true when stdout is a character device.
func runningInTTY() bool {
	fi, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func init() { loadEnv() }

func main() {
	rootDir, _ := os.Getwd()
	logOut, err := logger.New(rootDir, runningInTTY())
	if err != nil {
		log.Fatalf("start logger: %v", err)
	}
	defer logOut.Sync() //nolint:errcheck

	ctx := context.Background()

	//
	// ── 1.  Config + secrets ────────────────────────────────────────────
	//
	cfg, err := config.Load()
	if err != nil {
		logOut.Fatalf("load config: %v", err)
	}

	dbPassword := cfg.Database.Password
	if strings.HasPrefix(dbPassword, vault.RefPrefix) {
		vc, err := vault.New(ctx, logOut.Infof)
		if err != nil {
			logOut.Fatalf("vault client: %v", err)
		}
		if dbPassword, err = vc.Resolve(ctx, dbPassword, 0); err != nil {
			logOut.Fatalf("resolve db password: %v", err)
		}
	}
	dsn := strings.Replace(cfg.Database.DSN, "%s", dbPassword, 1)

	//
	// ── 2.  Control-plane DB connect ────────────────────────────────────
	//
	logOut.Infow("connecting to control-plane DB")
	db, err := database.Open(ctx, dsn)
	if err != nil {
		logOut.Fatalf("connect control-plane DB: %v", err)
	}
	defer db.Close()
	logOut.Infow("control-plane DB online")

	// Log servable-tenant count as an early sanity check.
	var servable int
	_ = db.Get(&servable, `
	    SELECT COUNT(*) FROM tenant
	    WHERE state IN ('active', 'provisional')`)
	logOut.Infow("tenant directory loaded", "servable", servable)

	//
	// ── 3.  GeoIP (optional) ────────────────────────────────────────────
	//
	if err := requestinfo.InitGeo(cfg.Geo.DBPath); err != nil {
		logOut.Warnw("geoip disabled", "err", err)
	}

	//
	// ── 4.  Core wiring ─────────────────────────────────────────────────
	//
	repo := directory.NewRepository(db, cfg.Platform.GracePeriod)

	res := resolver.New(repo, cfg.Platform.BaseDomain, cfg.Platform.ReservedLabels, resolver.Options{
		RefreshTTL: cfg.Platform.ResolverTTL,
		IdleTTL:    cfg.Platform.ResolverIdleTTL,
		MaxEntries: cfg.Platform.ResolverMaxEntries,
	})
	defer res.Close()

	guard := isolation.New(logOut.Desugar())

	posts := content.NewPosts(db, guard)
	settings := content.NewSettings(db, guard)
	media := content.NewMediaStore(db, guard)

	sessions := signup.NewStore(cfg.Platform.SessionTTL)
	defer sessions.Close()

	prov := provision.New(repo, sessions, provision.EmailIdentity{}, provision.LogNotifier{Log: logOut},
		cfg.Platform.ReservedLabels, cfg.Platform.CommitTimeout, logOut)

	platform := web.NewPlatform(sessions, prov, cfg.Platform.BaseDomain, logOut)
	admin := web.NewAdmin(repo, res, cfg.Platform.ReservedLabels, logOut)
	site := web.NewSite(posts, settings, media, logOut)

	//
	// ── 5.  Platform surface: signup API + admin + metrics ──────────────
	//
	platformMux := http.NewServeMux()
	platformMux.Handle("/metrics", promhttp.Handler())
	platformMux.Handle("/admin/", admin.Routes())
	platformMux.Handle("/", platform.Routes())

	//
	// ── 6.  Root handler: host resolution → surface dispatch ───────────
	//
	root := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sol := res.FromHost(r.Context(), r.Host)
		switch sol.Kind {
		case resolver.KindPlatform:
			platformMux.ServeHTTP(w, r)
		case resolver.KindTenant:
			site.Serve(sol.Tenant, w, r)
		default:
			web.WriteNotFound(w)
		}
	})

	var handler http.Handler = middleware.Security(requestinfo.Enrich(root))
	if cfg.HTTP.ForceHTTPS {
		handler = middleware.ForceHTTPS(res, handler)
	}

	srv := server.New(cfg.HTTP.ListenAddr, handler, server.Timeouts{
		Read:  cfg.HTTP.ReadTimeout,
		Write: cfg.HTTP.WriteTimeout,
		Idle:  cfg.HTTP.IdleTimeout,
	})
	logOut.Infow("listening", "addr", cfg.HTTP.ListenAddr, "base_domain", cfg.Platform.BaseDomain)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logOut.Fatalf("http server: %v", err)
	}
}
