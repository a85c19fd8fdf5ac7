// internal/content/post_test.go
//
// Tenant-scoped post storage against sqlmock.
//
// Run: go test ./internal/content -v

package content

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/isolation"
)

var postCols = []string{
	"id", "tenant_id", "slug", "title", "body", "published", "created_at", "updated_at",
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return sqlx.NewDb(db, "sqlmock"), mock
}

func testCtx(id uint64) directory.Context {
	return directory.Context{TenantID: id, State: directory.StateActive, RoutingKey: "alice"}
}

func TestPostCreateTakesTenantFromContext(t *testing.T) {
	db, mock := newMockDB(t)
	posts := NewPosts(db, isolation.New(zap.NewNop()))

	mock.ExpectExec(`INSERT INTO post`).
		WithArgs(uint64(7), "hello", "Hello", "First post.", false).
		WillReturnResult(sqlmock.NewResult(3, 1))

	// The payload claims a different tenant; the context wins.
	p := &Post{TenantID: 999, Slug: "hello", Title: "Hello", Body: "First post."}
	if err := posts.Create(context.Background(), testCtx(7), p); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if p.TenantID != 7 || p.ID != 3 {
		t.Fatalf("unexpected post: %+v", p)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet SQL expectations: %v", err)
	}
}

func TestPostBySlugScopedToTenant(t *testing.T) {
	db, mock := newMockDB(t)
	posts := NewPosts(db, isolation.New(zap.NewNop()))
	now := time.Now()

	mock.ExpectQuery(`WHERE\s+tenant_id = \? AND slug = \?`).
		WithArgs(uint64(7), "hello").
		WillReturnRows(sqlmock.NewRows(postCols).
			AddRow(3, 7, "hello", "Hello", "First post.", true, now, now))

	p, err := posts.BySlug(context.Background(), testCtx(7), "hello")
	if err != nil {
		t.Fatalf("BySlug error: %v", err)
	}
	if p.TenantID != 7 || p.Slug != "hello" {
		t.Fatalf("unexpected post: %+v", p)
	}
}

func TestPostBySlugMissingIsNotFound(t *testing.T) {
	db, mock := newMockDB(t)
	posts := NewPosts(db, isolation.New(zap.NewNop()))

	// Another tenant's slug yields no rows under the tenant predicate, so
	// the caller cannot tell it apart from a slug that never existed.
	mock.ExpectQuery(`WHERE\s+tenant_id = \? AND slug = \?`).
		WithArgs(uint64(7), "other-tenants-post").
		WillReturnRows(sqlmock.NewRows(postCols))

	_, err := posts.BySlug(context.Background(), testCtx(7), "other-tenants-post")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestPostOperationsStopAtInactiveTenant(t *testing.T) {
	db, _ := newMockDB(t)
	posts := NewPosts(db, isolation.New(zap.NewNop()))

	tctx := directory.Context{TenantID: 7, State: directory.StateSuspended}
	if _, err := posts.List(context.Background(), tctx); !errors.Is(err, isolation.ErrTenantInactive) {
		t.Fatalf("want ErrTenantInactive, got %v", err)
	}
	if err := posts.Create(context.Background(), tctx, &Post{Slug: "x"}); !errors.Is(err, isolation.ErrTenantInactive) {
		t.Fatalf("want ErrTenantInactive on create, got %v", err)
	}
}

func TestPostDeleteMissingRow(t *testing.T) {
	db, mock := newMockDB(t)
	posts := NewPosts(db, isolation.New(zap.NewNop()))

	mock.ExpectExec(`DELETE FROM post`).
		WithArgs(uint64(7), "ghost").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := posts.Delete(context.Background(), testCtx(7), "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
