// internal/signup/store.go
//
// In-memory registration session store with lazy expiry.
//
// Context
// -------
// A registration session holds provisional signup state (candidate email,
// blog name, subdomain, theme) between the first keystroke of the signup
// form and the commit request.  Sessions are keyed by unguessable UUID and
// live for a fixed TTL from creation.
//
// Expiry is checked at read time: `Get` and `Update` compare the current
// clock against ExpiresAt and return ErrExpired once the deadline passes,
// whether or not the background sweep has run.  The sweep only reclaims
// memory; correctness never depends on it.
//
// A session's candidate subdomain is a reservation hint, not a hold.  Two
// sessions may carry the same candidate; the directory's uniqueness
// constraint decides the winner at commit time.
package signup

import (
	"errors"
	"regexp"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/plumeworks/plume/internal/metrics"
)

// ErrNotFound is returned for unknown (or already swept) session ids.
var ErrNotFound = errors.New("registration session not found")

// ErrExpired is returned once a session's TTL has elapsed.
var ErrExpired = errors.New("registration session expired")

// SweepInterval is how often the background sweep reclaims expired rows.
const SweepInterval = 5 * time.Minute

//
// Session model
//

// Session is the provisional, pre-tenant signup state.  Field tags drive
// syntactic validation on create and update; uniqueness of the subdomain
// is deliberately not checked here.
type Session struct {
	ID        uuid.UUID
	Email     string `validate:"required,email"`
	BlogName  string `validate:"required,max=128"`
	Subdomain string `validate:"required,subdomain"`
	Theme     string `validate:"omitempty,max=64"`
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Fields carries partial updates; nil pointers leave the stored value
// untouched.  Every change re-validates the merged session.
type Fields struct {
	Email     *string
	BlogName  *string
	Subdomain *string
	Theme     *string
}

//
// Validation
//

// subdomainRE is the RFC 1123 label shape: lowercase alphanumerics and
// interior hyphens, at most 63 characters.
var subdomainRE = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?$`)

var v = newValidator()

func newValidator() *validator.Validate {
	val := validator.New()
	_ = val.RegisterValidation("subdomain", func(fl validator.FieldLevel) bool {
		return subdomainRE.MatchString(fl.Field().String())
	})
	return val
}

// ValidSubdomain reports whether s is a syntactically acceptable tenant
// subdomain.  Exported for the provisioning workflow's re-validation.
func ValidSubdomain(s string) bool { return subdomainRE.MatchString(s) }

//
// Store
//

// Store holds live sessions behind one mutex.  All methods are safe for
// concurrent use.
type Store struct {
	mu       sync.Mutex
	sessions map[uuid.UUID]*Session
	ttl      time.Duration
	ticker   *time.Ticker
	done     chan struct{}
	now      func() time.Time // injectable for tests
}

// NewStore builds a Store with the given session TTL and starts the
// background sweep.
func NewStore(ttl time.Duration) *Store {
	s := &Store{
		sessions: make(map[uuid.UUID]*Session),
		ttl:      ttl,
		ticker:   time.NewTicker(SweepInterval),
		done:     make(chan struct{}),
		now:      time.Now,
	}
	go s.sweepLoop()
	return s
}

// Create validates the candidate fields and stores a new session,
// returning its id.
func (s *Store) Create(email, blogName, subdomain, theme string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:        uuid.New(),
		Email:     email,
		BlogName:  blogName,
		Subdomain: subdomain,
		Theme:     theme,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if err := v.Struct(sess); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.sessions[sess.ID] = sess
	s.mu.Unlock()
	metrics.SessionsActive.Inc()
	return sess, nil
}

// Get returns a copy of the session.  Expiry is decided here, against the
// clock, not by whether the sweep has removed the row yet.
func (s *Store) Get(id uuid.UUID) (*Session, error) {
	s.mu.Lock()
	sess, ok := s.sessions[id]
	s.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(sess.ExpiresAt) {
		return nil, ErrExpired
	}
	cp := *sess
	return &cp, nil
}

// Update merges partial fields into the session and re-validates.  The
// TTL is not extended; preview edits do not keep a session alive forever.
func (s *Store) Update(id uuid.UUID, f Fields) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().After(sess.ExpiresAt) {
		return nil, ErrExpired
	}

	merged := *sess
	if f.Email != nil {
		merged.Email = *f.Email
	}
	if f.BlogName != nil {
		merged.BlogName = *f.BlogName
	}
	if f.Subdomain != nil {
		merged.Subdomain = *f.Subdomain
	}
	if f.Theme != nil {
		merged.Theme = *f.Theme
	}
	if err := v.Struct(&merged); err != nil {
		return nil, err
	}

	*sess = merged
	cp := merged
	return &cp, nil
}

// Discard removes a session.  Discarding an unknown id is a no-op:
// abandonment and commit can race the sweep.
func (s *Store) Discard(id uuid.UUID) {
	s.mu.Lock()
	if _, ok := s.sessions[id]; ok {
		delete(s.sessions, id)
		metrics.SessionsActive.Dec()
	}
	s.mu.Unlock()
}

// Close stops the background sweep.  Stored sessions remain readable.
func (s *Store) Close() {
	s.ticker.Stop()
	close(s.done)
}

//
// sweep
//

func (s *Store) sweepLoop() {
	for {
		select {
		case <-s.done:
			return
		case <-s.ticker.C:
			s.sweep()
		}
	}
}

// sweep physically removes expired rows.  Its absence never changes an
// outcome, only how long dead sessions occupy memory.
func (s *Store) sweep() {
	now := s.now()
	s.mu.Lock()
	for id, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, id)
			metrics.SessionsActive.Dec()
			metrics.SessionSweepTotal.Inc()
		}
	}
	s.mu.Unlock()
}
