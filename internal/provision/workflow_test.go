// internal/provision/workflow_test.go
//
// Commit state-machine outcomes against in-memory fakes.
//
// Run: go test ./internal/provision -v

package provision

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/signup"
)

//
// fakes
//

// fakeDir is an in-memory tenant directory with real uniqueness
// semantics: Register fails with ErrConflict on a claimed subdomain.
type fakeDir struct {
	mu        sync.Mutex
	nextID    uint64
	bySub     map[string]*directory.Record
	bySession map[string]*directory.Record
	byOwner   map[string]bool

	registerErr  error // forced Register failure when set
	registerSlow time.Duration
}

func newFakeDir() *fakeDir {
	return &fakeDir{
		nextID:    1,
		bySub:     make(map[string]*directory.Record),
		bySession: make(map[string]*directory.Record),
		byOwner:   make(map[string]bool),
	}
}

func (f *fakeDir) BySessionID(_ context.Context, sessionID string) (*directory.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.bySession[sessionID]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, directory.ErrNotFound
}

func (f *fakeDir) BySubdomain(_ context.Context, sub string) (*directory.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if rec, ok := f.bySub[sub]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, directory.ErrNotFound
}

func (f *fakeDir) OwnerHasTenant(_ context.Context, ownerRef string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byOwner[ownerRef], nil
}

func (f *fakeDir) Register(ctx context.Context, rec *directory.Record, _ string) error {
	if f.registerSlow > 0 {
		select {
		case <-time.After(f.registerSlow):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.registerErr != nil {
		return f.registerErr
	}
	if _, taken := f.bySub[rec.Subdomain]; taken {
		return directory.ErrConflict
	}
	rec.ID = f.nextID
	f.nextID++
	cp := *rec
	f.bySub[rec.Subdomain] = &cp
	f.bySession[rec.SessionID] = &cp
	f.byOwner[rec.OwnerRef] = true
	return nil
}

// seed claims a subdomain as an existing tenant.
func (f *fakeDir) seed(sub string, state directory.State) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec := &directory.Record{ID: f.nextID, Subdomain: sub, State: state, OwnerRef: "email:other@example.com"}
	f.nextID++
	f.bySub[sub] = rec
}

// fakeSessions wraps a map of live sessions.
type fakeSessions struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*signup.Session
	expired  map[uuid.UUID]bool
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{
		sessions: make(map[uuid.UUID]*signup.Session),
		expired:  make(map[uuid.UUID]bool),
	}
}

func (f *fakeSessions) add(email, blogName, sub string) *signup.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess := &signup.Session{ID: uuid.New(), Email: email, BlogName: blogName, Subdomain: sub}
	f.sessions[sess.ID] = sess
	return sess
}

func (f *fakeSessions) Get(id uuid.UUID) (*signup.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.expired[id] {
		return nil, signup.ErrExpired
	}
	if sess, ok := f.sessions[id]; ok {
		cp := *sess
		return &cp, nil
	}
	return nil, signup.ErrNotFound
}

func (f *fakeSessions) Discard(id uuid.UUID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sessions, id)
}

func newTestProvisioner(dir *fakeDir, sessions *fakeSessions) *Provisioner {
	return New(dir, sessions, EmailIdentity{}, nil,
		[]string{"www", "admin", "api"}, time.Second, zap.NewNop().Sugar())
}

//
// tests
//

func TestCommitHappyPath(t *testing.T) {
	dir := newFakeDir()
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)
	sess := sessions.add("alice@example.com", "Alice Writes", "alice")

	res, err := p.Commit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.State != StateCommitted {
		t.Fatalf("want Committed, got %+v", res)
	}
	if res.TenantID == 0 || res.RoutingKey != "alice" {
		t.Fatalf("incomplete result: %+v", res)
	}

	// The session is consumed on success.
	if _, err := sessions.Get(sess.ID); !errors.Is(err, signup.ErrNotFound) {
		t.Fatalf("session not discarded after commit")
	}
}

func TestCommitIsIdempotent(t *testing.T) {
	dir := newFakeDir()
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)
	sess := sessions.add("alice@example.com", "Alice Writes", "alice")

	first, err := p.Commit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("first commit: %v", err)
	}

	// A retry after the session is gone still returns the same tenant.
	second, err := p.Commit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("second commit: %v", err)
	}
	if second.State != StateCommitted || second.TenantID != first.TenantID {
		t.Fatalf("retry diverged: first %+v, second %+v", first, second)
	}

	// Exactly one tenant exists for the subdomain.
	if len(dir.bySub) != 1 {
		t.Fatalf("duplicate tenants created: %d", len(dir.bySub))
	}
}

func TestCommitExpiredSession(t *testing.T) {
	dir := newFakeDir()
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)
	sess := sessions.add("alice@example.com", "Alice Writes", "alice")
	sessions.expired[sess.ID] = true

	res, err := p.Commit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.State != StateExpired {
		t.Fatalf("want Expired, got %+v", res)
	}
}

func TestCommitRejectsTakenSubdomain(t *testing.T) {
	dir := newFakeDir()
	dir.seed("alice", directory.StateActive)
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)
	sess := sessions.add("alice@example.com", "Alice Writes", "alice")

	res, err := p.Commit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.State != StateRejected || res.Reason != ReasonSubdomainTaken {
		t.Fatalf("want Rejected/subdomain_taken, got %+v", res)
	}
	if len(res.Suggestions) == 0 {
		t.Fatalf("rejection carries no suggestions")
	}
	for _, s := range res.Suggestions {
		if !strings.HasPrefix(s, "alice-") {
			t.Fatalf("suggestion %q not derived from the candidate", s)
		}
		if _, taken := dir.bySub[s]; taken {
			t.Fatalf("suggestion %q is already registered", s)
		}
	}
}

func TestCommitSuggestionsAreStable(t *testing.T) {
	dir := newFakeDir()
	dir.seed("alice", directory.StateActive)
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)
	sess := sessions.add("alice@example.com", "Alice Writes", "alice")

	first, _ := p.Commit(context.Background(), sess.ID)
	second, _ := p.Commit(context.Background(), sess.ID)
	if len(first.Suggestions) != len(second.Suggestions) {
		t.Fatalf("suggestion lists differ: %v vs %v", first.Suggestions, second.Suggestions)
	}
	for i := range first.Suggestions {
		if first.Suggestions[i] != second.Suggestions[i] {
			t.Fatalf("suggestions not deterministic: %v vs %v", first.Suggestions, second.Suggestions)
		}
	}
}

func TestCommitRejectsReservedLabel(t *testing.T) {
	dir := newFakeDir()
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)
	sess := sessions.add("alice@example.com", "Alice Writes", "admin")

	res, err := p.Commit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.State != StateRejected || res.Reason != ReasonSubdomainReserved {
		t.Fatalf("want Rejected/subdomain_reserved, got %+v", res)
	}
}

func TestCommitRejectsSecondTenantPerOwner(t *testing.T) {
	dir := newFakeDir()
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)

	first := sessions.add("alice@example.com", "First", "first")
	if res, _ := p.Commit(context.Background(), first.ID); res.State != StateCommitted {
		t.Fatalf("first commit failed: %+v", res)
	}

	second := sessions.add("alice@example.com", "Second", "second")
	res, err := p.Commit(context.Background(), second.ID)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.State != StateRejected || res.Reason != ReasonEmailRegistered {
		t.Fatalf("want Rejected/email_registered, got %+v", res)
	}
}

func TestCommitPersistentConflictRejectsAfterOneRetry(t *testing.T) {
	dir := newFakeDir()
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)
	sess := sessions.add("alice@example.com", "Alice Writes", "alice")

	// The availability pre-check passes (no row), but every Register call
	// loses the race.  Two attempts, then a terminal rejection.
	dir.registerErr = directory.ErrConflict

	res, err := p.Commit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.State != StateRejected || res.Reason != ReasonSubdomainTaken {
		t.Fatalf("want Rejected/subdomain_taken after retries, got %+v", res)
	}
}

func TestCommitTimeoutIsRetryable(t *testing.T) {
	dir := newFakeDir()
	dir.registerSlow = 200 * time.Millisecond
	sessions := newFakeSessions()
	p := New(dir, sessions, EmailIdentity{}, nil,
		nil, 20*time.Millisecond, zap.NewNop().Sugar())
	sess := sessions.add("alice@example.com", "Alice Writes", "alice")

	res, err := p.Commit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.State != StateRejected || res.Reason != ReasonCommitTimeout {
		t.Fatalf("want Rejected/commit_timeout, got %+v", res)
	}
	if !res.Retryable {
		t.Fatalf("timeout rejection must be retryable")
	}

	// The session survives, so the client can retry.
	if _, err := sessions.Get(sess.ID); err != nil {
		t.Fatalf("session consumed by a timed-out commit: %v", err)
	}
}

func TestCommitSurvivesClientDisconnect(t *testing.T) {
	dir := newFakeDir()
	dir.registerSlow = 30 * time.Millisecond
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)
	sess := sessions.add("alice@example.com", "Alice Writes", "alice")

	// The client context is cancelled immediately; the commit runs on its
	// own detached bound and still completes.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Commit(ctx, sess.ID)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.State != StateCommitted {
		t.Fatalf("want Committed despite disconnect, got %+v", res)
	}
}

func TestCommitDeletedHolderGoesToRegister(t *testing.T) {
	// A deleted holder passes validation; the register step arbitrates the
	// grace period.  The fake treats any existing row as a conflict, so the
	// outcome here is a rejection rather than an error.
	dir := newFakeDir()
	dir.seed("alice", directory.StateDeleted)
	sessions := newFakeSessions()
	p := newTestProvisioner(dir, sessions)
	sess := sessions.add("alice@example.com", "Alice Writes", "alice")

	res, err := p.Commit(context.Background(), sess.ID)
	if err != nil {
		t.Fatalf("Commit error: %v", err)
	}
	if res.State != StateRejected || res.Reason != ReasonSubdomainTaken {
		t.Fatalf("want Rejected/subdomain_taken, got %+v", res)
	}
}
