// internal/content/post.go
//
// Tenant-scoped blog posts.
//
// Context
// -------
// Every operation takes an explicit resolved tenant context and runs it
// through the isolation enforcer; the SQL additionally carries a
// `tenant_id = ?` predicate as the storage layer's own defense-in-depth.
// A post fetched for the wrong tenant can therefore only surface as "no
// rows", which callers render as a plain not-found — indistinguishable
// from data that never existed.
//
// Schema reference (2026-08-12)
//
//	CREATE TABLE post (
//	    id         BIGINT UNSIGNED PRIMARY KEY AUTO_INCREMENT,
//	    tenant_id  BIGINT UNSIGNED NOT NULL,
//	    slug       VARCHAR(160) NOT NULL,
//	    title      VARCHAR(256) NOT NULL,
//	    body       MEDIUMTEXT   NOT NULL,
//	    published  TINYINT(1)   NOT NULL DEFAULT 0,
//	    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
//	    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
//	               ON UPDATE CURRENT_TIMESTAMP,
//	    UNIQUE KEY uq_post_slug (tenant_id, slug)
//	);
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

// ErrNotFound is returned when no entity matches within the tenant's own
// data.  Cross-tenant targets produce the same error by construction.
var ErrNotFound = errors.New("entity not found")

// Post mirrors one row in the `post` table.
type Post struct {
	ID        uint64    `db:"id"`
	TenantID  uint64    `db:"tenant_id"`
	Slug      string    `db:"slug"`
	Title     string    `db:"title"`
	Body      string    `db:"body"`
	Published bool      `db:"published"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Posts provides tenant-scoped post storage.
type Posts struct {
	db    *sqlx.DB
	guard *isolation.Enforcer
}

// NewPosts wraps the pool behind the enforcer.
func NewPosts(db *sqlx.DB, guard *isolation.Enforcer) *Posts {
	return &Posts{db: db, guard: guard}
}

// Create inserts a post owned by the context's tenant.  The tenant
// reference is taken from the context, never from the payload.
func (r *Posts) Create(ctx context.Context, tctx directory.Context, p *Post) error {
	if err := r.guard.Check(ctx, tctx, tctx.TenantID); err != nil {
		return err
	}
	p.TenantID = tctx.TenantID

	const q = `
        INSERT INTO post (tenant_id, slug, title, body, published)
        VALUES (?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q, p.TenantID, p.Slug, p.Title, p.Body, p.Published)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// BySlug fetches one post within the tenant's own data.
func (r *Posts) BySlug(ctx context.Context, tctx directory.Context, slug string) (*Post, error) {
	if err := r.guard.Check(ctx, tctx, tctx.TenantID); err != nil {
		return nil, err
	}

	const q = `
        SELECT id, tenant_id, slug, title, body, published, created_at, updated_at
        FROM   post
        WHERE  tenant_id = ? AND slug = ?
        LIMIT  1`
	var p Post
	if err := r.db.GetContext(ctx, &p, q, tctx.TenantID, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Post-fetch ownership check; the predicate already guarantees it,
	// but the enforcer stays the chokepoint either way.
	if err := r.guard.Check(ctx, tctx, p.TenantID); err != nil {
		return nil, err
	}
	return &p, nil
}

// List returns the tenant's posts, newest first.
func (r *Posts) List(ctx context.Context, tctx directory.Context) ([]Post, error) {
	if err := r.guard.Check(ctx, tctx, tctx.TenantID); err != nil {
		return nil, err
	}

	const q = `
        SELECT id, tenant_id, slug, title, body, published, created_at, updated_at
        FROM   post
        WHERE  tenant_id = ?
        ORDER  BY created_at DESC`
	var posts []Post
	if err := r.db.SelectContext(ctx, &posts, q, tctx.TenantID); err != nil {
		return nil, err
	}
	return posts, nil
}

// Update rewrites a post's mutable fields.
func (r *Posts) Update(ctx context.Context, tctx directory.Context, p *Post) error {
	if err := r.guard.Check(ctx, tctx, p.TenantID); err != nil {
		return err
	}

	const q = `
        UPDATE post
        SET    title = ?, body = ?, published = ?
        WHERE  tenant_id = ? AND slug = ?`
	res, err := r.db.ExecContext(ctx, q, p.Title, p.Body, p.Published, tctx.TenantID, p.Slug)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a post.
func (r *Posts) Delete(ctx context.Context, tctx directory.Context, slug string) error {
	if err := r.guard.Check(ctx, tctx, tctx.TenantID); err != nil {
		return err
	}

	const q = `DELETE FROM post WHERE tenant_id = ? AND slug = ?`
	res, err := r.db.ExecContext(ctx, q, tctx.TenantID, slug)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
