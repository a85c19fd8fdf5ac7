// internal/signup/store_test.go
//
// Run: go test ./internal/signup -v

package signup

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

// newTestStore builds a store without the background sweep goroutine and
// with an adjustable clock.
func newTestStore(ttl time.Duration) (*Store, *time.Time) {
	clock := time.Now()
	s := &Store{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
		now:      func() time.Time { return clock },
	}
	return s, &clock
}

func TestCreateGetRoundtrip(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	sess, err := s.Create("alice@example.com", "Alice Writes", "alice", "classic")
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if sess.ID == uuid.Nil {
		t.Fatalf("session id not assigned")
	}

	got, err := s.Get(sess.ID)
	if err != nil {
		t.Fatalf("Get error: %v", err)
	}
	if got.Email != "alice@example.com" || got.Subdomain != "alice" {
		t.Fatalf("unexpected session: %+v", got)
	}
	if !got.ExpiresAt.Equal(got.CreatedAt.Add(time.Hour)) {
		t.Fatalf("TTL not applied: %+v", got)
	}
}

func TestCreateValidation(t *testing.T) {
	s, _ := newTestStore(time.Hour)

	cases := []struct {
		name      string
		email     string
		blogName  string
		subdomain string
	}{
		{"bad email", "not-an-email", "Blog", "alice"},
		{"empty blog name", "a@example.com", "", "alice"},
		{"uppercase subdomain", "a@example.com", "Blog", "Alice"},
		{"leading hyphen", "a@example.com", "Blog", "-alice"},
		{"trailing hyphen", "a@example.com", "Blog", "alice-"},
		{"interior dot", "a@example.com", "Blog", "a.lice"},
		{"too long", "a@example.com", "Blog", "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := s.Create(tc.email, tc.blogName, tc.subdomain, ""); err == nil {
				t.Fatalf("invalid input accepted")
			}
		})
	}

	// Hyphens inside the label are fine.
	if _, err := s.Create("a@example.com", "Blog", "my-blog-2", ""); err != nil {
		t.Fatalf("valid subdomain rejected: %v", err)
	}
}

func TestUpdateMergesPartialFields(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	sess, _ := s.Create("alice@example.com", "Alice Writes", "alice", "classic")

	name := "Alice Writes More"
	got, err := s.Update(sess.ID, Fields{BlogName: &name})
	if err != nil {
		t.Fatalf("Update error: %v", err)
	}
	if got.BlogName != name {
		t.Fatalf("blog name not updated: %+v", got)
	}
	if got.Email != "alice@example.com" || got.Subdomain != "alice" {
		t.Fatalf("untouched fields changed: %+v", got)
	}
	if !got.ExpiresAt.Equal(sess.ExpiresAt) {
		t.Fatalf("update must not extend the TTL")
	}

	// An invalid merge leaves the stored session unchanged.
	bad := "Bad.Sub"
	if _, err := s.Update(sess.ID, Fields{Subdomain: &bad}); err == nil {
		t.Fatalf("invalid subdomain accepted on update")
	}
	got, _ = s.Get(sess.ID)
	if got.Subdomain != "alice" {
		t.Fatalf("failed update mutated the session: %+v", got)
	}
}

func TestLazyExpiry(t *testing.T) {
	s, clock := newTestStore(time.Hour)
	sess, _ := s.Create("alice@example.com", "Alice Writes", "alice", "")

	// One second short of the deadline: still readable.
	*clock = clock.Add(time.Hour - time.Second)
	if _, err := s.Get(sess.ID); err != nil {
		t.Fatalf("live session rejected: %v", err)
	}

	// Past the deadline: expired even though no sweep has run.
	*clock = clock.Add(2 * time.Second)
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired, got %v", err)
	}
	if _, err := s.Update(sess.ID, Fields{}); !errors.Is(err, ErrExpired) {
		t.Fatalf("want ErrExpired on update, got %v", err)
	}
}

func TestSweepReclaimsExpiredRows(t *testing.T) {
	s, clock := newTestStore(time.Hour)
	sess, _ := s.Create("alice@example.com", "Alice Writes", "alice", "")

	*clock = clock.Add(2 * time.Hour)
	s.sweep()

	if _, ok := s.sessions[sess.ID]; ok {
		t.Fatalf("sweep left an expired session in memory")
	}
	// Outcome is unchanged: the id now reads as not-found.
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after sweep, got %v", err)
	}
}

func TestDiscard(t *testing.T) {
	s, _ := newTestStore(time.Hour)
	sess, _ := s.Create("alice@example.com", "Alice Writes", "alice", "")

	s.Discard(sess.ID)
	if _, err := s.Get(sess.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("want ErrNotFound after discard, got %v", err)
	}

	// Discarding twice is a no-op.
	s.Discard(sess.ID)
}

func TestSameCandidateInTwoSessions(t *testing.T) {
	// The store holds reservation hints, not holds; duplicates are decided
	// at commit time by the directory.
	s, _ := newTestStore(time.Hour)
	if _, err := s.Create("a@example.com", "First", "shared", ""); err != nil {
		t.Fatalf("first session: %v", err)
	}
	if _, err := s.Create("b@example.com", "Second", "shared", ""); err != nil {
		t.Fatalf("second session with same candidate rejected: %v", err)
	}
}
