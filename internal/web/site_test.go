// internal/web/site_test.go
//
// Tenant-host surface: lifecycle gating and data-error mapping.
//
// Run: go test ./internal/web -v

package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/content"
	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/isolation"
)

func newTestSite(t *testing.T) (*Site, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	sdb := sqlx.NewDb(db, "sqlmock")
	guard := isolation.New(zap.NewNop())
	site := NewSite(
		content.NewPosts(sdb, guard),
		content.NewSettings(sdb, guard),
		content.NewMediaStore(sdb, guard),
		zap.NewNop().Sugar(),
	)
	return site, mock
}

func tenantCtx(state directory.State) directory.Context {
	return directory.Context{TenantID: 7, State: state, RoutingKey: "alice", DisplayName: "Alice Writes"}
}

func serve(site *Site, tctx directory.Context, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.Host = "alice.plume.blog"
	rr := httptest.NewRecorder()
	site.Serve(tctx, rr, req)
	return rr
}

func TestSiteLifecycleGating(t *testing.T) {
	site, _ := newTestSite(t)

	rr := serve(site, tenantCtx(directory.StateSuspended), http.MethodGet, "/")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("suspended: want 503, got %d", rr.Code)
	}

	rr = serve(site, tenantCtx(directory.StateDeleted), http.MethodGet, "/")
	if rr.Code != http.StatusGone {
		t.Fatalf("deleted: want 410, got %d", rr.Code)
	}
}

func TestSiteUnknownPath(t *testing.T) {
	site, _ := newTestSite(t)

	rr := serve(site, tenantCtx(directory.StateActive), http.MethodGet, "/no/such/route")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rr.Code)
	}

	var resp struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Error.Code != "not_found" {
		t.Fatalf("unexpected error body: %s", rr.Body.String())
	}
}

func TestSiteListPosts(t *testing.T) {
	site, mock := newTestSite(t)
	now := time.Now()

	mock.ExpectQuery(`FROM\s+post\s+WHERE\s+tenant_id = \?`).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "slug", "title", "body", "published", "created_at", "updated_at",
		}).AddRow(1, 7, "hello", "Hello", "First post.", true, now, now))

	rr := serve(site, tenantCtx(directory.StateActive), http.MethodGet, "/api/posts")
	if rr.Code != http.StatusOK {
		t.Fatalf("want 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var posts []content.Post
	if err := json.Unmarshal(rr.Body.Bytes(), &posts); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(posts) != 1 || posts[0].Slug != "hello" {
		t.Fatalf("unexpected posts: %+v", posts)
	}
}

func TestSiteMissingPostIs404(t *testing.T) {
	site, mock := newTestSite(t)

	// A slug owned by another tenant produces the same empty result as a
	// slug that never existed; the response cannot tell them apart.
	mock.ExpectQuery(`WHERE\s+tenant_id = \? AND slug = \?`).
		WithArgs(uint64(7), "ghost").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	rr := serve(site, tenantCtx(directory.StateActive), http.MethodGet, "/api/posts/ghost")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("want 404, got %d", rr.Code)
	}
}

func TestSiteMethodNotAllowed(t *testing.T) {
	site, _ := newTestSite(t)

	rr := serve(site, tenantCtx(directory.StateActive), http.MethodPut, "/api/posts")
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("want 405, got %d", rr.Code)
	}
}

func TestSiteProvisionalTenantServes(t *testing.T) {
	site, mock := newTestSite(t)

	mock.ExpectQuery(`FROM\s+post\s+WHERE\s+tenant_id = \?`).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "tenant_id", "slug", "title", "body", "published", "created_at", "updated_at",
		}))

	rr := serve(site, tenantCtx(directory.StateProvisional), http.MethodGet, "/api/posts")
	if rr.Code != http.StatusOK {
		t.Fatalf("provisional tenant must serve: got %d", rr.Code)
	}
}
