// internal/directory/model.go
//
// `tenant` table row model and the resolved tenant context.
//
// Context
// -------
// The `Record` struct mirrors one row in the persistent **tenant** table,
// the authoritative map from routing key (subdomain or custom domain) to
// tenant identity.  It is used by the resolver cache to build tenant
// contexts and by admin tooling that lists or edits tenants.
//
// Schema reference (2026-08-12)
//
//	CREATE TABLE tenant (
//	    id                 BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    owner_ref          VARCHAR(128)  NOT NULL,
//	    subdomain          VARCHAR(80)   NOT NULL UNIQUE,
//	    custom_domain      VARCHAR(253)  NULL UNIQUE,
//	    display_name       VARCHAR(128)  NOT NULL,
//	    state              VARCHAR(16)   NOT NULL DEFAULT 'provisional',
//	    plan_tier          VARCHAR(16)   NOT NULL DEFAULT 'free',
//	    storage_used_bytes BIGINT        NOT NULL DEFAULT 0,
//	    session_id         CHAR(36)      NOT NULL UNIQUE,
//	    created_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    updated_at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
//	                       ON UPDATE CURRENT_TIMESTAMP,
//	    deleted_at         TIMESTAMP NULL
//	);
//
// Notes
// -----
// • Routing-key uniqueness is a storage-level constraint; `Register` and
//   `UpdateRoutingKey` rely on it instead of check-then-insert.
// • `session_id` records which registration session created the row and
//   doubles as the idempotency key for retried commits.
// • Nullable columns are pointers; callers must nil-check before use.
package directory

import "time"

//
// Lifecycle state
//

// State is a tenant lifecycle state.  A deleted tenant still resolves (so
// callers can render an "unavailable" page) but its routing key becomes
// reclaimable once the grace period elapses.
type State string

const (
	StateProvisional State = "provisional"
	StateActive      State = "active"
	StateSuspended   State = "suspended"
	StateDeleted     State = "deleted"
)

// Servable reports whether content operations may run for this state.
func (s State) Servable() bool {
	return s == StateActive || s == StateProvisional
}

//
// Plan tiers
//

const (
	TierFree = "free"
	TierPro  = "pro"
)

// StorageQuotaBytes returns the media storage ceiling for a plan tier.
func StorageQuotaBytes(tier string) int64 {
	if tier == TierPro {
		return 50 << 30 // 50 GiB
	}
	return 1 << 30 // 1 GiB
}

//
// Row model
//

// Record mirrors one row in the `tenant` table.
type Record struct {
	ID               uint64     `db:"id"`
	OwnerRef         string     `db:"owner_ref"`
	Subdomain        string     `db:"subdomain"`
	CustomDomain     *string    `db:"custom_domain"`
	DisplayName      string     `db:"display_name"`
	State            State      `db:"state"`
	PlanTier         string     `db:"plan_tier"`
	StorageUsedBytes int64      `db:"storage_used_bytes"`
	SessionID        string     `db:"session_id"`
	CreatedAt        time.Time  `db:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"`
	DeletedAt        *time.Time `db:"deleted_at"`
}

//
// Resolved context
//

// Context is the immutable, trusted identification of which tenant a
// request belongs to.  It is produced only by the resolver and passed as
// an explicit argument into every data-access operation; handlers never
// accept a tenant id from client input.
type Context struct {
	TenantID    uint64
	State       State
	PlanTier    string
	RoutingKey  string
	DisplayName string
}

// Context derives the request-facing context from a directory row.  The
// routing key recorded is the row's primary subdomain; resolver swaps in
// the custom domain when that was the matched key.
func (r *Record) Context() Context {
	return Context{
		TenantID:    r.ID,
		State:       r.State,
		PlanTier:    r.PlanTier,
		RoutingKey:  r.Subdomain,
		DisplayName: r.DisplayName,
	}
}
