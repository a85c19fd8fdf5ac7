// internal/provision/workflow.go
//
// Provisioning workflow: registration session → committed tenant.
//
// Context
// -------
// `Commit` drives the state machine
//
//	Draft -> Validating -> Committing -> Committed
//	                    \-> Rejected        (terminal failure)
//	                    \-> Expired         (session TTL elapsed)
//
// Validation re-checks subdomain availability against the directory (the
// preview-time hint is never trusted) and binds the owner identity.  The
// commit itself is one atomic conditional write in the directory; losing
// that race to a concurrent committer re-enters Validating exactly once
// before surfacing Rejected, so a persistently contended key cannot spin.
//
// Idempotency: the tenant row records the session id that created it, so
// a retried commit after a successful first one finds the existing tenant
// and returns the same result instead of creating a duplicate.
//
// The commit step runs on a context detached from the client's: a
// disconnect mid-commit must not leave a half-created tenant, so the
// write either completes or times out on its own bound.
package provision

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/directory"
	"github.com/plumeworks/plume/internal/metrics"
	"github.com/plumeworks/plume/internal/signup"
)

// ErrTimeout is returned when the commit write exceeds its bound.  The
// caller should surface it as retryable.
var ErrTimeout = errors.New("commit timed out")

// DefaultTheme is assigned when a session never picked one.
const DefaultTheme = "classic"

//
// States and reasons
//

// State is a workflow state.  Only terminal states appear in results.
type State string

const (
	StateDraft      State = "draft"
	StateValidating State = "validating"
	StateCommitting State = "committing"
	StateCommitted  State = "committed"
	StateRejected   State = "rejected"
	StateExpired    State = "expired"
)

// Rejection reason codes.  These are the only failure details a client
// ever sees; raw storage errors stay inside the process.
const (
	ReasonSubdomainInvalid  = "subdomain_invalid"
	ReasonSubdomainReserved = "subdomain_reserved"
	ReasonSubdomainTaken    = "subdomain_taken"
	ReasonEmailRegistered   = "email_registered"
	ReasonIdentity          = "identity_unverified"
	ReasonCommitTimeout     = "commit_timeout"
)

// Result is the terminal outcome of one commit request.
type Result struct {
	State       State
	TenantID    uint64
	RoutingKey  string
	Reason      string
	Retryable   bool
	Suggestions []string
}

//
// Collaborator contracts
//

// Directory is the slice of the tenant directory the workflow consumes.
type Directory interface {
	BySessionID(ctx context.Context, sessionID string) (*directory.Record, error)
	BySubdomain(ctx context.Context, sub string) (*directory.Record, error)
	OwnerHasTenant(ctx context.Context, ownerRef string) (bool, error)
	Register(ctx context.Context, rec *directory.Record, theme string) error
}

// Sessions is the slice of the registration session store in use here.
type Sessions interface {
	Get(id uuid.UUID) (*signup.Session, error)
	Discard(id uuid.UUID)
}

// Identity turns a verified signup email into an owner identity
// reference.  Credential mechanics live with the external collaborator.
type Identity interface {
	OwnerRef(ctx context.Context, email string) (string, error)
}

// EmailIdentity derives the owner reference directly from the verified
// address.  Stand-in for a real identity service.
type EmailIdentity struct{}

func (EmailIdentity) OwnerRef(_ context.Context, email string) (string, error) {
	return "email:" + email, nil
}

//
// Provisioner
//

// Provisioner executes commits.  Safe for concurrent use.
type Provisioner struct {
	dir           Directory
	sessions      Sessions
	identity      Identity
	notify        Notifier
	reserved      map[string]struct{}
	commitTimeout time.Duration
	log           *zap.SugaredLogger
}

// New wires the workflow.  reservedLabels mirror the resolver's platform
// labels; a candidate subdomain matching one is rejected outright.
func New(dir Directory, sessions Sessions, identity Identity, notify Notifier,
	reservedLabels []string, commitTimeout time.Duration, log *zap.SugaredLogger) *Provisioner {

	if log == nil {
		log = zap.S()
	}
	p := &Provisioner{
		dir:           dir,
		sessions:      sessions,
		identity:      identity,
		notify:        notify,
		reserved:      make(map[string]struct{}, len(reservedLabels)),
		commitTimeout: commitTimeout,
		log:           log,
	}
	for _, l := range reservedLabels {
		p.reserved[l] = struct{}{}
	}
	return p
}

// Commit takes a session from Draft through the terminal states.  Errors
// are internal failures only; every contract outcome, including Expired
// and Rejected, arrives in the Result.
func (p *Provisioner) Commit(ctx context.Context, sessionID uuid.UUID) (*Result, error) {
	// Two passes at most: the initial attempt plus one re-validation after
	// a lost register race.
	for attempt := 0; attempt < 2; attempt++ {
		// Idempotency first: a prior Committed outcome for this session
		// always returns the same tenant, even after session discard.
		if rec, err := p.dir.BySessionID(ctx, sessionID.String()); err == nil {
			return p.committed(rec), nil
		} else if !errors.Is(err, directory.ErrNotFound) {
			return nil, err
		}

		sess, err := p.sessions.Get(sessionID)
		if errors.Is(err, signup.ErrExpired) {
			metrics.ProvisionOutcomeTotal.WithLabelValues(string(StateExpired)).Inc()
			return &Result{State: StateExpired}, nil
		}
		if err != nil {
			return nil, err
		}

		// Validating.
		ownerRef, rejected, err := p.validate(ctx, sess)
		if err != nil {
			return nil, err
		}
		if rejected != nil {
			metrics.ProvisionOutcomeTotal.WithLabelValues(string(StateRejected)).Inc()
			return rejected, nil
		}

		// Committing: detached from the caller so a client disconnect
		// cannot abandon a half-written tenant, bounded by its own timeout.
		res, err := p.register(ctx, sess, ownerRef)
		if errors.Is(err, directory.ErrConflict) {
			p.log.Infow("register race lost, revalidating",
				"session", sessionID, "subdomain", sess.Subdomain)
			continue
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	}

	// Both attempts lost the race: the key is genuinely contended.
	sess, err := p.sessions.Get(sessionID)
	if errors.Is(err, signup.ErrExpired) {
		metrics.ProvisionOutcomeTotal.WithLabelValues(string(StateExpired)).Inc()
		return &Result{State: StateExpired}, nil
	}
	if err != nil {
		return nil, err
	}
	metrics.ProvisionOutcomeTotal.WithLabelValues(string(StateRejected)).Inc()
	return p.reject(ctx, sess, ReasonSubdomainTaken), nil
}

//
// phases
//

// validate re-checks everything the preview only hinted at.  A non-nil
// rejected result is terminal; ownerRef is set only when validation
// passes.
func (p *Provisioner) validate(ctx context.Context, sess *signup.Session) (ownerRef string, rejected *Result, err error) {
	if !signup.ValidSubdomain(sess.Subdomain) {
		return "", &Result{State: StateRejected, Reason: ReasonSubdomainInvalid}, nil
	}
	if _, ok := p.reserved[sess.Subdomain]; ok {
		return "", p.reject(ctx, sess, ReasonSubdomainReserved), nil
	}

	ownerRef, err = p.identity.OwnerRef(ctx, sess.Email)
	if err != nil {
		return "", &Result{State: StateRejected, Reason: ReasonIdentity}, nil
	}
	taken, err := p.dir.OwnerHasTenant(ctx, ownerRef)
	if err != nil {
		return "", nil, err
	}
	if taken {
		return "", &Result{State: StateRejected, Reason: ReasonEmailRegistered}, nil
	}

	// Authoritative availability check.  A deleted holder is left for the
	// register step to arbitrate: only it knows the grace period.
	if rec, err := p.dir.BySubdomain(ctx, sess.Subdomain); err == nil {
		if rec.State != directory.StateDeleted {
			return "", p.reject(ctx, sess, ReasonSubdomainTaken), nil
		}
	} else if !errors.Is(err, directory.ErrNotFound) {
		return "", nil, err
	}

	return ownerRef, nil, nil
}

// register performs the atomic conditional write and finalizes Committed.
func (p *Provisioner) register(ctx context.Context, sess *signup.Session, ownerRef string) (*Result, error) {
	theme := sess.Theme
	if theme == "" {
		theme = DefaultTheme
	}
	rec := &directory.Record{
		OwnerRef:    ownerRef,
		Subdomain:   sess.Subdomain,
		DisplayName: sess.BlogName,
		State:       directory.StateActive,
		PlanTier:    directory.TierFree,
		SessionID:   sess.ID.String(),
	}

	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.commitTimeout)
	defer cancel()

	err := p.dir.Register(cctx, rec, theme)
	if errors.Is(err, context.DeadlineExceeded) {
		metrics.ProvisionOutcomeTotal.WithLabelValues("timeout").Inc()
		return &Result{
			State:     StateRejected,
			Reason:    ReasonCommitTimeout,
			Retryable: true,
		}, nil
	}
	if err != nil {
		return nil, err
	}

	p.sessions.Discard(sess.ID)
	if p.notify != nil {
		go func(rec directory.Record, email string) {
			if nerr := p.notify.TenantCreated(context.WithoutCancel(ctx), rec, email); nerr != nil {
				p.log.Warnw("tenant-created notification failed",
					"tenant", rec.ID, "err", nerr)
			}
		}(*rec, sess.Email)
	}

	metrics.ProvisionOutcomeTotal.WithLabelValues(string(StateCommitted)).Inc()
	p.log.Infow("tenant committed",
		"tenant", rec.ID, "subdomain", rec.Subdomain, "session", sess.ID)
	return p.committed(rec), nil
}

//
// helpers
//

func (p *Provisioner) committed(rec *directory.Record) *Result {
	return &Result{
		State:      StateCommitted,
		TenantID:   rec.ID,
		RoutingKey: rec.Subdomain,
	}
}

// reject builds a subdomain rejection carrying deterministic, currently
// available alternatives.
func (p *Provisioner) reject(ctx context.Context, sess *signup.Session, reason string) *Result {
	res := &Result{State: StateRejected, Reason: reason}
	if reason == ReasonSubdomainTaken || reason == ReasonSubdomainReserved {
		res.Suggestions = suggestions(sess.Subdomain, sess.ID, func(candidate string) bool {
			if _, rsv := p.reserved[candidate]; rsv {
				return false
			}
			_, err := p.dir.BySubdomain(ctx, candidate)
			return errors.Is(err, directory.ErrNotFound)
		})
	}
	return res
}
