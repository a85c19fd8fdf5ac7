// internal/content/settings.go
//
// Per-tenant site settings.  Exactly one row per tenant; the row is
// created inside the provisioning transaction, so a committed tenant can
// never be observed without it.
package content

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/isolation"
)

// SiteSettings mirrors one row in the `site_settings` table.
type SiteSettings struct {
	TenantID    uint64    `db:"tenant_id"`
	Theme       string    `db:"theme"`
	Title       string    `db:"title"`
	Description string    `db:"description"`
	Locale      string    `db:"locale"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// Settings provides tenant-scoped settings storage.
type Settings struct {
	db    *sqlx.DB
	guard *isolation.Enforcer
}

// NewSettings wraps the pool behind the enforcer.
func NewSettings(db *sqlx.DB, guard *isolation.Enforcer) *Settings {
	return &Settings{db: db, guard: guard}
}

// Get returns the tenant's settings row.
func (r *Settings) Get(ctx context.Context, tctx directory.Context) (*SiteSettings, error) {
	if err := r.guard.Check(ctx, tctx, tctx.TenantID); err != nil {
		return nil, err
	}

	const q = `
        SELECT tenant_id, theme, title, description, locale, updated_at
        FROM   site_settings
        WHERE  tenant_id = ?
        LIMIT  1`
	var s SiteSettings
	if err := r.db.GetContext(ctx, &s, q, tctx.TenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := r.guard.Check(ctx, tctx, s.TenantID); err != nil {
		return nil, err
	}
	return &s, nil
}

// Update rewrites the tenant's settings.
func (r *Settings) Update(ctx context.Context, tctx directory.Context, s *SiteSettings) error {
	if err := r.guard.Check(ctx, tctx, tctx.TenantID); err != nil {
		return err
	}

	const q = `
        UPDATE site_settings
        SET    theme = ?, title = ?, description = ?, locale = ?
        WHERE  tenant_id = ?`
	res, err := r.db.ExecContext(ctx, q, s.Theme, s.Title, s.Description, s.Locale, tctx.TenantID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
