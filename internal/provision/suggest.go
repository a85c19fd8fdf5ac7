// internal/provision/suggest.go
//
// Deterministic alternative-subdomain suggestions for rejected commits.
// The same session always produces the same candidate list, so a client
// retrying a conflicted commit sees stable suggestions.
package provision

import (
	"fmt"

	"github.com/google/uuid"
)

// suggestions returns up to three available alternatives for a taken
// subdomain: two numeric suffixes and one short token derived from the
// session id.  available reports whether a candidate can be registered.
func suggestions(base string, sessionID uuid.UUID, available func(string) bool) []string {
	tok := sessionID.String()[:4]
	candidates := []string{
		fmt.Sprintf("%s-2", base),
		fmt.Sprintf("%s-3", base),
		fmt.Sprintf("%s-%s", base, tok),
	}

	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if len(c) <= 63 && available(c) {
			out = append(out, c)
		}
	}
	return out
}
