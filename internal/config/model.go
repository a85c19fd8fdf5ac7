// internal/config/model.go
//
// Typed configuration model for Plume.
//
// Context
// -------
// These structs define the shape of the configuration tree that
// `internal/config/loader.go` builds from three overlay layers:
//
//   • optional `.env`                         – dotenv values,
//   • `conf/global.yaml`                      – primary static file,
//   • `PLUME_`-prefixed environment overrides – highest precedence.
//
// Any value whose string begins with the prefix `vault:` is resolved
// through the Vault client at boot, so downstream code only ever sees
// plain strings.
//
// Validation happens immediately after unmarshal; the app fails fast if
// required fields are missing.
//
// Notes
// -----
//   • Struct tags use `koanf:"…"`, not `yaml:"…"`—Koanf ignores `yaml` tags
//     unless configured otherwise.
//   • The `Paths` block is filled at runtime; YAML must not try to set it.

package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.  The timeout values guard the shared
// listener; zero values take the server package's defaults.
type HTTP struct {
	ListenAddr   string        `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS   bool          `koanf:"force_https"`
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`
	IdleTimeout  time.Duration `koanf:"idle_timeout"`
}

//
// Database section
//

// Database holds the control-plane DSN template and its secret.  The DSN
// carries one `%s` verb where the password is spliced in; the password
// itself may be a `vault:` reference resolved at boot.
type Database struct {
	DSN      string `koanf:"dsn"      validate:"required"`
	Password string `koanf:"password" validate:"required"`
}

//
// Platform section
//

// Platform groups the multi-tenant routing and provisioning tunables.
//
//   - BaseDomain is the apex under which tenant subdomains live
//     (e.g., "plume.blog" serves tenants at "*.plume.blog").
//   - ReservedLabels never resolve to a tenant; they route to the
//     platform surface (signup API, admin, metrics).
//   - GracePeriod is how long a deleted tenant keeps its routing key
//     before the key may be reclaimed by a new registration.
//   - ResolverTTL bounds how stale a cached routing-key→tenant mapping
//     may be before the resolver re-reads the directory.
type Platform struct {
	BaseDomain         string        `koanf:"base_domain" validate:"required,fqdn"`
	ReservedLabels     []string      `koanf:"reserved_labels"`
	SessionTTL         time.Duration `koanf:"session_ttl"`
	GracePeriod        time.Duration `koanf:"grace_period"`
	CommitTimeout      time.Duration `koanf:"commit_timeout"`
	ResolverTTL        time.Duration `koanf:"resolver_ttl"`
	ResolverIdleTTL    time.Duration `koanf:"resolver_idle_ttl"`
	ResolverMaxEntries int           `koanf:"resolver_max_entries"`
}

//
// Geo section
//

// Geo points at an optional MaxMind database used to tag signup and
// isolation-violation events with a country code.  Empty path disables
// the lookup.
type Geo struct {
	DBPath string `koanf:"db_path"`
}

//
// Paths section (runtime only)
//

// Paths is resolved at runtime—never set in YAML or env.  The loader
// discovers `Root` (repo root or PLUME_ROOT override) so later code can
// build absolute file paths.
type Paths struct {
	Root string // PLUME_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads throughout the app lifetime.
type Config struct {
	HTTP     HTTP     `koanf:"http"`
	Database Database `koanf:"database"`
	Platform Platform `koanf:"platform"`
	Geo      Geo      `koanf:"geo"`
	Paths    Paths    `koanf:"-"` // not loaded from config files
}

//
// Defaults
//

// applyDefaults fills zero-valued tunables with production defaults so a
// minimal YAML file still boots a working platform.
func (c *Config) applyDefaults() {
	if c.Platform.SessionTTL == 0 {
		c.Platform.SessionTTL = 24 * time.Hour
	}
	if c.Platform.GracePeriod == 0 {
		c.Platform.GracePeriod = 30 * 24 * time.Hour
	}
	if c.Platform.CommitTimeout == 0 {
		c.Platform.CommitTimeout = 10 * time.Second
	}
	if c.Platform.ResolverTTL == 0 {
		c.Platform.ResolverTTL = time.Minute
	}
	if c.Platform.ResolverIdleTTL == 0 {
		c.Platform.ResolverIdleTTL = 30 * time.Minute
	}
	if c.Platform.ResolverMaxEntries == 0 {
		c.Platform.ResolverMaxEntries = 10000
	}
	if len(c.Platform.ReservedLabels) == 0 {
		c.Platform.ReservedLabels = []string{"www", "admin", "api", "mail", "status"}
	}
}
