// internal/content/media.go
//
// Tenant-scoped media uploads with storage accounting.
//
// Context
// -------
// A media insert and the tenant's storage counter move in one
// transaction: the tenant row is locked, the prospective usage is checked
// against the plan-tier quota, and the upload is recorded only if it
// fits.  Deleting media credits the counter the same way.  The byte
// counter on the tenant row is therefore always the sum of its media
// sizes, within one in-flight transaction.
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

// ErrQuotaExceeded is returned when an upload would push the tenant past
// its plan-tier storage ceiling.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Media mirrors one row in the `media` table.
type Media struct {
	ID          uint64    `db:"id"`
	TenantID    uint64    `db:"tenant_id"`
	Path        string    `db:"path"`
	ContentType string    `db:"content_type"`
	SizeBytes   int64     `db:"size_bytes"`
	CreatedAt   time.Time `db:"created_at"`
}

// MediaStore provides tenant-scoped media metadata storage.
type MediaStore struct {
	db    *sqlx.DB
	guard *isolation.Enforcer
}

// NewMediaStore wraps the pool behind the enforcer.
func NewMediaStore(db *sqlx.DB, guard *isolation.Enforcer) *MediaStore {
	return &MediaStore{db: db, guard: guard}
}

// Create records an upload, charging its size against the tenant's quota
// atomically.
func (r *MediaStore) Create(ctx context.Context, tctx directory.Context, m *Media) error {
	if err := r.guard.Check(ctx, tctx, tctx.TenantID); err != nil {
		return err
	}
	m.TenantID = tctx.TenantID

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const usageQ = `
        SELECT storage_used_bytes, plan_tier
        FROM   tenant
        WHERE  id = ?
        FOR UPDATE`
	var row struct {
		Used int64  `db:"storage_used_bytes"`
		Tier string `db:"plan_tier"`
	}
	if err := tx.GetContext(ctx, &row, usageQ, m.TenantID); err != nil {
		return err
	}
	if row.Used+m.SizeBytes > directory.StorageQuotaBytes(row.Tier) {
		return ErrQuotaExceeded
	}

	const insertQ = `
        INSERT INTO media (tenant_id, path, content_type, size_bytes)
        VALUES (?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, insertQ, m.TenantID, m.Path, m.ContentType, m.SizeBytes)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	m.ID = uint64(id)

	const chargeQ = `
        UPDATE tenant
        SET    storage_used_bytes = storage_used_bytes + ?
        WHERE  id = ?`
	if _, err := tx.ExecContext(ctx, chargeQ, m.SizeBytes, m.TenantID); err != nil {
		return err
	}

	return tx.Commit()
}

// List returns the tenant's media records, newest first.
func (r *MediaStore) List(ctx context.Context, tctx directory.Context) ([]Media, error) {
	if err := r.guard.Check(ctx, tctx, tctx.TenantID); err != nil {
		return nil, err
	}

	const q = `
        SELECT id, tenant_id, path, content_type, size_bytes, created_at
        FROM   media
        WHERE  tenant_id = ?
        ORDER  BY created_at DESC`
	var out []Media
	if err := r.db.SelectContext(ctx, &out, q, tctx.TenantID); err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes an upload and credits its size back to the tenant.
func (r *MediaStore) Delete(ctx context.Context, tctx directory.Context, id uint64) error {
	if err := r.guard.Check(ctx, tctx, tctx.TenantID); err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const sizeQ = `
        SELECT size_bytes
        FROM   media
        WHERE  id = ? AND tenant_id = ?
        FOR UPDATE`
	var size int64
	if err := tx.GetContext(ctx, &size, sizeQ, id, tctx.TenantID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM media WHERE id = ? AND tenant_id = ?`, id, tctx.TenantID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant SET storage_used_bytes = storage_used_bytes - ? WHERE id = ?`,
		size, tctx.TenantID); err != nil {
		return err
	}

	return tx.Commit()
}
