// internal/provision/events.go
//
// Outbound collaborator contracts for provisioning outcomes.
//
// The email and observability collaborators are fire-and-forget: a commit
// that succeeded stays succeeded even if the "tenant created" notification
// cannot be delivered.  Failures are logged, never propagated.
package provision

import (
	"context"

	"go.uber.org/zap"

	"github.com/plumeworks/plume/internal/directory"
)

// Notifier receives post-commit events.  Implementations must not block
// the caller for long; the workflow invokes them on their own goroutine.
type Notifier interface {
	// TenantCreated announces a freshly committed tenant.  email is the
	// signup address for the "verify your address" message.
	TenantCreated(ctx context.Context, rec directory.Record, email string) error
}

// LogNotifier is the default Notifier: it writes the event to the
// structured log, standing in for the external email collaborator.
type LogNotifier struct {
	Log *zap.SugaredLogger
}

func (n LogNotifier) TenantCreated(_ context.Context, rec directory.Record, email string) error {
	log := n.Log
	if log == nil {
		log = zap.S()
	}
	log.Infow("tenant created",
		"tenant", rec.ID,
		"subdomain", rec.Subdomain,
		"email", email,
	)
	return nil
}
