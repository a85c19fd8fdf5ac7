// internal/directory/repository.go
//
// Tenant-table query helpers and the transactional register operation.
//
// Context
// -------
// The Repository is the single writer-of-record for routing-key
// uniqueness.  Point lookups (`BySubdomain`, `ByCustomDomain`) are hit on
// every inbound request through the resolver cache, so they stay single
// SELECTs.  `Register` performs the one genuinely delicate write: claim a
// routing key and create the tenant skeleton atomically, with conflicts
// decided by the UNIQUE constraint rather than an application-level
// check-then-insert.
//
// Workflow
// --------
//  1. Lookups return rows regardless of lifecycle state.  "Never existed"
//     versus "existed but suspended/deleted" is a contract distinction the
//     callers depend on, so no WHERE state filter here.
//  2. `Register` INSERTs inside a transaction; a duplicate-key error
//     triggers one reclaim attempt (deleted owner past its grace period),
//     then surfaces ErrConflict.
//  3. The default site_settings row is written in the same transaction so
//     a tenant is never visible without its settings.
//
// Notes
// -----
// • Duplicate-key detection matches MySQL error 1062 and SQLSTATE 23000 by
//   message substring, avoiding driver-specific imports.
package directory

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// ErrNotFound is returned when no tenant row matches a lookup key.
var ErrNotFound = errors.New("tenant not found")

// ErrConflict is returned when a routing key or idempotency key is already
// claimed by another live tenant.
var ErrConflict = errors.New("routing key already registered")

const tenantCols = `id, owner_ref, subdomain, custom_domain, display_name,
               state, plan_tier, storage_used_bytes, session_id,
               created_at, updated_at, deleted_at`

// Repository provides access to the tenant table.
type Repository struct {
	db    *sqlx.DB
	grace time.Duration
	now   func() time.Time // injectable for tests
}

// NewRepository wraps the control-plane pool.  grace is how long a deleted
// tenant keeps its routing key before a new registration may reclaim it.
func NewRepository(db *sqlx.DB, grace time.Duration) *Repository {
	return &Repository{db: db, grace: grace, now: time.Now}
}

//
// Point lookups
//

// BySubdomain fetches a single tenant row by its primary subdomain.  Rows
// in any lifecycle state are returned; only a missing row is ErrNotFound.
func (r *Repository) BySubdomain(ctx context.Context, sub string) (*Record, error) {
	const q = `
        SELECT ` + tenantCols + `
        FROM   tenant
        WHERE  subdomain = ?
        LIMIT  1`
	var rec Record
	if err := r.db.GetContext(ctx, &rec, q, sub); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ByCustomDomain fetches a single tenant row by its custom domain.
func (r *Repository) ByCustomDomain(ctx context.Context, domain string) (*Record, error) {
	const q = `
        SELECT ` + tenantCols + `
        FROM   tenant
        WHERE  custom_domain = ?
        LIMIT  1`
	var rec Record
	if err := r.db.GetContext(ctx, &rec, q, domain); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// ByID fetches a tenant row by primary key.
func (r *Repository) ByID(ctx context.Context, id uint64) (*Record, error) {
	const q = `SELECT ` + tenantCols + ` FROM tenant WHERE id = ? LIMIT 1`
	var rec Record
	if err := r.db.GetContext(ctx, &rec, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// BySessionID fetches the tenant created by a registration session, if
// any.  This is the idempotency lookup for retried commits.
func (r *Repository) BySessionID(ctx context.Context, sessionID string) (*Record, error) {
	const q = `SELECT ` + tenantCols + ` FROM tenant WHERE session_id = ? LIMIT 1`
	var rec Record
	if err := r.db.GetContext(ctx, &rec, q, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// OwnerHasTenant reports whether ownerRef already owns a non-deleted
// tenant.  Used by provisioning to reject duplicate registrations.
func (r *Repository) OwnerHasTenant(ctx context.Context, ownerRef string) (bool, error) {
	const q = `
        SELECT 1
        FROM   tenant
        WHERE  owner_ref = ?
          AND  state <> 'deleted'
        LIMIT  1`
	var dummy int
	err := r.db.QueryRowContext(ctx, q, ownerRef).Scan(&dummy)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, err
}

//
// Register
//

// Register claims rec's subdomain and creates the tenant skeleton — the
// tenant row plus its default site_settings row — in one transaction.
// Two concurrent registrations racing for the same subdomain yield exactly
// one success; the loser gets ErrConflict.  On success rec.ID is set.
//
// A subdomain held by a deleted tenant whose grace period has elapsed is
// reclaimed: the old row's key is archived under a `#<id>` suffix and the
// insert retried once.
func (r *Repository) Register(ctx context.Context, rec *Record, theme string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := r.insertTenant(ctx, tx, rec)
	if isDuplicateKey(err) {
		if rcErr := r.reclaim(ctx, tx, rec.Subdomain); rcErr != nil {
			return rcErr
		}
		res, err = r.insertTenant(ctx, tx, rec)
		if isDuplicateKey(err) {
			return ErrConflict
		}
	}
	if err != nil {
		return err
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	rec.ID = uint64(id)

	const settingsQ = `
        INSERT INTO site_settings (tenant_id, theme, title)
        VALUES (?, ?, ?)`
	if _, err := tx.ExecContext(ctx, settingsQ, rec.ID, theme, rec.DisplayName); err != nil {
		return err
	}

	return tx.Commit()
}

func (r *Repository) insertTenant(ctx context.Context, tx *sqlx.Tx, rec *Record) (sql.Result, error) {
	const q = `
        INSERT INTO tenant
               (owner_ref, subdomain, custom_domain, display_name,
                state, plan_tier, storage_used_bytes, session_id)
        VALUES (?, ?, ?, ?, ?, ?, 0, ?)`
	return tx.ExecContext(ctx, q,
		rec.OwnerRef, rec.Subdomain, rec.CustomDomain, rec.DisplayName,
		rec.State, rec.PlanTier, rec.SessionID)
}

// reclaim frees a subdomain whose owner is deleted and past the grace
// period.  The blocking row keeps its data; only the routing key is
// archived so the historical record stays queryable by id.
func (r *Repository) reclaim(ctx context.Context, tx *sqlx.Tx, sub string) error {
	const q = `
        SELECT id, state, deleted_at
        FROM   tenant
        WHERE  subdomain = ?
        LIMIT  1
        FOR UPDATE`
	var row struct {
		ID        uint64     `db:"id"`
		State     State      `db:"state"`
		DeletedAt *time.Time `db:"deleted_at"`
	}
	if err := tx.GetContext(ctx, &row, q, sub); err != nil {
		// Row vanished between the failed insert and this lookup; the
		// caller retries the insert and the constraint decides again.
		return nil
	}

	if row.State != StateDeleted || row.DeletedAt == nil {
		return ErrConflict
	}
	if r.now().Before(row.DeletedAt.Add(r.grace)) {
		return ErrConflict
	}

	const archive = `
        UPDATE tenant
        SET    subdomain = CONCAT(subdomain, '#', id)
        WHERE  id = ?`
	_, err := tx.ExecContext(ctx, archive, row.ID)
	return err
}

//
// Mutations
//

// UpdateRoutingKey moves a tenant to a new primary subdomain.  Returns the
// old key so the resolver cache can be invalidated for both keys.
func (r *Repository) UpdateRoutingKey(ctx context.Context, tenantID uint64, newKey string) (oldKey string, err error) {
	rec, err := r.ByID(ctx, tenantID)
	if err != nil {
		return "", err
	}
	const q = `UPDATE tenant SET subdomain = ? WHERE id = ?`
	if _, err := r.db.ExecContext(ctx, q, newKey, tenantID); err != nil {
		if isDuplicateKey(err) {
			return "", ErrConflict
		}
		return "", err
	}
	return rec.Subdomain, nil
}

// SetCustomDomain attaches (or clears, with nil) a custom domain.
func (r *Repository) SetCustomDomain(ctx context.Context, tenantID uint64, domain *string) error {
	const q = `UPDATE tenant SET custom_domain = ? WHERE id = ?`
	res, err := r.db.ExecContext(ctx, q, domain, tenantID)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrConflict
		}
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateState transitions a tenant's lifecycle state.  Entering
// StateDeleted stamps deleted_at, which starts the routing-key grace
// period; content purge is a separate job, not done here.
func (r *Repository) UpdateState(ctx context.Context, tenantID uint64, state State) error {
	var q string
	if state == StateDeleted {
		q = `UPDATE tenant SET state = ?, deleted_at = CURRENT_TIMESTAMP WHERE id = ?`
	} else {
		q = `UPDATE tenant SET state = ?, deleted_at = NULL WHERE id = ?`
	}
	res, err := r.db.ExecContext(ctx, q, state, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddStorageUsed adjusts the storage-accounting counter by delta bytes
// (negative on media deletion).
func (r *Repository) AddStorageUsed(ctx context.Context, tenantID uint64, delta int64) error {
	const q = `
        UPDATE tenant
        SET    storage_used_bytes = storage_used_bytes + ?
        WHERE  id = ?`
	res, err := r.db.ExecContext(ctx, q, delta, tenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

//
// helpers
//

// isDuplicateKey recognises MariaDB/MySQL error 1062 and the generic
// SQLSTATE 23000 without importing driver-specific types.
func isDuplicateKey(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "1062") ||
		strings.Contains(msg, "Duplicate entry") ||
		strings.Contains(msg, "23000")
}
